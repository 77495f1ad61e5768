package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/foomo/idreset/pkg/backup"
	"github.com/foomo/idreset/pkg/process"
	"github.com/foomo/idreset/pkg/process/mock"
	"github.com/foomo/idreset/pkg/reset"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var cursorPID = int32(os.Getpid()) + 1000

func withPlatform(t *testing.T, p process.Platform) {
	t.Helper()
	prev := processPlatform
	processPlatform = func() process.Platform { return p }
	t.Cleanup(func() { processPlatform = prev })
}

func storagePath(dir string) string {
	return filepath.Join(dir, "User", "globalStorage", "storage.json")
}

func TestResetCommand(t *testing.T) {
	withPlatform(t, mock.NewPlatform())
	data := dataDir(t)
	backups := t.TempDir()
	metricsFile := filepath.Join(t.TempDir(), "idreset.prom")

	out, err := execute(t, "reset", "--data-dir", data, "--backup-dir", backups, "--metrics-file", metricsFile, "--json")
	require.NoError(t, err)

	var res reset.Result
	require.NoError(t, jsoniter.UnmarshalFromString(out, &res))
	assert.True(t, res.Success)
	assert.True(t, strings.HasPrefix(res.BackupID, backup.IDPrefix))
	assert.Equal(t, 1, res.Report.FilesProcessed)
	assert.Positive(t, res.Report.KeysUpdated)
	assert.Empty(t, res.Report.Errors)

	doc, err := os.ReadFile(storagePath(data))
	require.NoError(t, err)
	assert.Equal(t, res.Identifiers.DeviceID(), jsoniter.Get(doc, "telemetry.devDeviceId").ToString())
	assert.Equal(t, "dark", jsoniter.Get(doc, "window.theme").ToString())

	_, err = os.Stat(filepath.Join(backups, res.BackupID+backup.Suffix))
	require.NoError(t, err)

	prom, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "idreset_")
}

func TestResetCommandText(t *testing.T) {
	withPlatform(t, mock.NewPlatform())

	out, err := execute(t, "reset", "--data-dir", dataDir(t), "--backup-dir", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "backup:              "+backup.IDPrefix)
	assert.Contains(t, out, "files processed:     1")
	assert.NotContains(t, out, "error:")
}

func TestResetCommandTargetRunning(t *testing.T) {
	platform := mock.NewPlatform(process.Process{PID: cursorPID, Name: "Cursor"})
	withPlatform(t, platform)
	data := dataDir(t)
	backups := t.TempDir()

	_, err := execute(t, "reset", "--data-dir", data, "--backup-dir", backups)
	require.Error(t, err)
	assert.True(t, errors.Is(err, reset.ErrTargetRunning))
	assert.Empty(t, platform.Terminated())

	doc, err := os.ReadFile(storagePath(data))
	require.NoError(t, err)
	assert.Equal(t, storageJSON, string(doc))

	entries, err := os.ReadDir(backups)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestResetCommandQuitsBeforeCheck(t *testing.T) {
	platform := mock.NewPlatform(process.Process{PID: cursorPID, Name: "Cursor"})
	withPlatform(t, platform)
	data := dataDir(t)

	out, err := execute(t, "reset", "--quit", "--data-dir", data, "--backup-dir", t.TempDir(), "--json")
	require.NoError(t, err)
	assert.Equal(t, []int32{cursorPID}, platform.Terminated())
	assert.Empty(t, platform.Killed())

	var res reset.Result
	require.NoError(t, jsoniter.UnmarshalFromString(out, &res))
	assert.True(t, res.Success)
}

func TestQuitCommand(t *testing.T) {
	platform := mock.NewPlatform(process.Process{PID: cursorPID, Name: "Cursor"})
	withPlatform(t, platform)

	out, err := execute(t, "quit")
	require.NoError(t, err)
	assert.Equal(t, "Cursor: terminated\n", out)
	assert.Equal(t, []int32{cursorPID}, platform.Terminated())

	out, err = execute(t, "quit")
	require.NoError(t, err)
	assert.Equal(t, "Cursor: idle\n", out)
}

func TestStatusCommand(t *testing.T) {
	withPlatform(t, mock.NewPlatform(
		process.Process{PID: cursorPID, Name: "Cursor"},
		process.Process{PID: cursorPID + 1, Name: "bash"},
	))
	data := dataDir(t)
	require.NoError(t, os.WriteFile(filepath.Join(data, "package.json"), []byte(`{"version":"0.42.3"}`), 0o600))

	out, err := execute(t, "status", "--data-dir", data, "--json")
	require.NoError(t, err)

	var s status
	require.NoError(t, jsoniter.UnmarshalFromString(out, &s))
	assert.Equal(t, "Cursor", s.Target)
	assert.True(t, s.Installed)
	assert.Equal(t, data, s.DataRoot)
	assert.Equal(t, "0.42.3", s.Version)
	assert.Equal(t, "device-1", s.DeviceID)
	assert.Equal(t, []int32{cursorPID}, s.Running)

	out, err = execute(t, "status", "--data-dir", data)
	require.NoError(t, err)
	assert.Contains(t, out, "version:   0.42.3")
	assert.Contains(t, out, "device id: device-1")
}
