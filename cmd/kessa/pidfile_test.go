package main

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadPIDFile_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "kessa.pid")

	require.NoError(t, writePIDFile(path))

	pid, err := readPIDFile(path)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestReadPIDFile_Missing(t *testing.T) {
	_, err := readPIDFile(filepath.Join(t.TempDir(), "absent.pid"))
	assert.True(t, os.IsNotExist(err))
}

func TestReadPIDFile_InvalidContents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kessa.pid")
	require.NoError(t, os.WriteFile(path, []byte("not-a-pid"), 0o644))

	_, err := readPIDFile(path)
	assert.Error(t, err)
}

func TestRemovePIDFile_MissingIsNoop(t *testing.T) {
	removePIDFile(filepath.Join(t.TempDir(), "absent.pid"))
}

func TestProcessAlive_CurrentProcess(t *testing.T) {
	assert.True(t, processAlive(os.Getpid()))
}

func TestProcessAlive_UnlikelyPID(t *testing.T) {
	// PID 1<<30 is outside any real process table on the systems this
	// runs on; FindProcess succeeds unconditionally on Unix, so the
	// signal-0 probe is what actually determines liveness.
	assert.False(t, processAlive(1<<30))
}

func TestProbePIDFile_NoFile(t *testing.T) {
	alive, pid, err := probePIDFile(filepath.Join(t.TempDir(), "absent.pid"))
	require.NoError(t, err)
	assert.False(t, alive)
	assert.Zero(t, pid)
}

func TestProbePIDFile_LiveProcess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kessa.pid")
	require.NoError(t, writePIDFile(path))

	alive, pid, err := probePIDFile(path)
	require.NoError(t, err)
	assert.True(t, alive)
	assert.Equal(t, os.Getpid(), pid)
}

func TestProbePIDFile_StalePIDIsRemoved(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kessa.pid")
	require.NoError(t, os.WriteFile(path, []byte(strconv.Itoa(1<<30)), 0o644))

	alive, pid, err := probePIDFile(path)
	require.NoError(t, err)
	assert.False(t, alive)
	assert.Equal(t, 1<<30, pid)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "stale pid file should be removed")
}

func TestPidFileDir(t *testing.T) {
	assert.Equal(t, "/var/run", pidFileDir("/var/run/kessa.pid"))
	assert.Equal(t, "", pidFileDir("kessa.pid"))
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, "DEBUG", parseLogLevel("debug").String())
	assert.Equal(t, "WARN", parseLogLevel("warn").String())
	assert.Equal(t, "ERROR", parseLogLevel("error").String())
	assert.Equal(t, "INFO", parseLogLevel("").String())
	assert.Equal(t, "INFO", parseLogLevel("nonsense").String())
}
