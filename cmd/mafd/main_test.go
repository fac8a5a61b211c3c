package main

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActivePIDsMissingFile(t *testing.T) {
	pids, err := activePIDs(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, pids)
}

func TestActivePIDsFiltersDeadAndGarbage(t *testing.T) {
	fifoDir := t.TempDir()
	live := os.Getpid()
	content := strconv.Itoa(live) + "\nnot-a-pid\n999999999\n"
	require.NoError(t, os.WriteFile(filepath.Join(fifoDir, "MON_ACTIVE_FILE"), []byte(content), 0644))

	pids, err := activePIDs(fifoDir)
	require.NoError(t, err)
	assert.Equal(t, []int{live}, pids)
}
