package main

import (
	"os"
	"os/user"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hfs/afd-sub005/internal/afdconfig"
	"github.com/hfs/afd-sub005/internal/status"
)

func TestRequiredToken(t *testing.T) {
	reset := func() { flagEnable, flagEnableAll, flagDisable, flagRetry = false, false, false, false }

	reset()
	flagDisable = true
	assert.Equal(t, afdconfig.PermDisableAFD, requiredToken())

	reset()
	flagRetry = true
	assert.Equal(t, afdconfig.PermRetry, requiredToken())

	reset()
	flagEnable = true
	assert.Equal(t, afdconfig.PermMonCtrl, requiredToken())

	reset()
	flagEnableAll = true
	assert.Equal(t, afdconfig.PermMonCtrl, requiredToken())
}

func TestResolveRowByPosition(t *testing.T) {
	area, err := status.Create(filepath.Join(t.TempDir(), "msa"), status.MSAMagic, status.MSAStride)
	require.NoError(t, err)
	defer area.Detach()

	pos, err := resolveRow(area, "2")
	require.NoError(t, err)
	assert.Equal(t, 2, pos)
}

func TestResolveRowByAlias(t *testing.T) {
	path := filepath.Join(t.TempDir(), "msa")
	area, err := status.Create(path, status.MSAMagic, status.MSAStride)
	require.NoError(t, err)
	defer area.Detach()

	require.NoError(t, area.Grow(2, status.MSAStride))
	require.NoError(t, area.SetCount(2))
	require.NoError(t, area.WriteRecord(0, &status.MonitorStatus{Alias: "afd1"}))
	require.NoError(t, area.WriteRecord(1, &status.MonitorStatus{Alias: "afd2"}))

	pos, err := resolveRow(area, "afd2")
	require.NoError(t, err)
	assert.Equal(t, 1, pos)

	_, err = resolveRow(area, "unknown")
	assert.Error(t, err)
}

func TestCheckPermissionNoFileAllows(t *testing.T) {
	assert.NoError(t, checkPermission(t.TempDir(), afdconfig.PermMonCtrl))
}

func TestCheckPermissionGrantsAndDenies(t *testing.T) {
	workDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(workDir, "etc"), 0755))
	current, err := user.Current()
	require.NoError(t, err)
	data := []byte(current.Username + " " + afdconfig.PermMafdCmd + " " + afdconfig.PermMonCtrl + "\n")
	require.NoError(t, os.WriteFile(filepath.Join(workDir, "etc", "afd.users"), data, 0644))

	assert.NoError(t, checkPermission(workDir, afdconfig.PermMonCtrl))
	assert.Error(t, checkPermission(workDir, afdconfig.PermDisableAFD))
}
