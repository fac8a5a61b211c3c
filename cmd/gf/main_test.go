package main

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hfs/afd-sub005/internal/status"
	"github.com/hfs/afd-sub005/internal/transfer"
)

func TestParseFetchURL(t *testing.T) {
	path, err := parseFetchURL("ftp://remote.example:21/incoming/reports")
	require.NoError(t, err)
	assert.Equal(t, "/incoming/reports", path)
}

func TestParseFetchURLEmpty(t *testing.T) {
	path, err := parseFetchURL("")
	require.NoError(t, err)
	assert.Equal(t, "", path)
}

func TestParseFetchURLInvalid(t *testing.T) {
	_, err := parseFetchURL("http://[::1")
	assert.Error(t, err)
}

func TestNewDriverUnsupportedProtocol(t *testing.T) {
	_, _, err := newDriver(status.HostStatus{Protocol: status.Protocol(99)})
	assert.Error(t, err)
}

func TestNewDriverLocal(t *testing.T) {
	host := status.HostStatus{Protocol: status.ProtoLOC}
	host.RealHostname[0] = "localhost"
	driver, cfg, err := newDriver(host)
	require.NoError(t, err)
	assert.NotNil(t, driver)
	assert.Equal(t, "localhost", cfg.Host)
}

func TestClassifyExitCode(t *testing.T) {
	we := &transfer.WorkerError{Code: transfer.ExitChdirError, Err: errors.New("no such dir")}
	assert.Equal(t, transfer.ExitChdirError, classifyExitCode(we, transfer.ExitOpenRemoteError))
	assert.Equal(t, transfer.ExitOpenRemoteError, classifyExitCode(errors.New("plain"), transfer.ExitOpenRemoteError))
}

func TestParseFlags(t *testing.T) {
	origArgs := os.Args
	defer func() { os.Args = origArgs }()
	os.Args = []string{"gf_loc", "-w", "/tmp/work", "-h", "dir1", "-p", "3", "-s", "7"}

	var workDir, dirAlias string
	var hostPos, slotIndex int
	parseFlags(&workDir, &dirAlias, &hostPos, &slotIndex)
	assert.Equal(t, "/tmp/work", workDir)
	assert.Equal(t, "dir1", dirAlias)
	assert.Equal(t, 3, hostPos)
	assert.Equal(t, 7, slotIndex)
}
