package persistence

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadFileMissingReturnsDefaults(t *testing.T) {
	state, err := LoadFile(filepath.Join(t.TempDir(), "state.yaml"))
	require.NoError(t, err)
	require.Equal(t, DefaultConnection(), state.Connection)
	require.Empty(t, state.Records)
}

func TestSaveAndLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.yaml")
	state := State{
		Connection:   BackendConnection{Endpoint: "http://influx:8086", Username: "admin", Password: "secret", Database: "home"},
		DebugLogging: true,
		Records: []PersistenceRecord{
			{ID: "a", DeviceRefID: 12, Measurement: "temp", Field: "value", Tags: map[string]string{"loc": "kitchen"}},
			{ID: "b", DeviceRefID: 3, Measurement: "power", Field: "watts"},
		},
	}
	require.NoError(t, SaveFile(path, state))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, state.Connection, loaded.Connection)
	require.True(t, loaded.DebugLogging)
	require.Len(t, loaded.Records, 2)
	require.True(t, loaded.Records[0].Equal(state.Records[0]))
	require.Equal(t, "b", loaded.Records[1].ID)
	require.Empty(t, loaded.Records[1].Tags)
}

func TestLoadFileRejectsSchemaViolations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.yaml")
	writeState(t, path, `endpoint: http://influx:8086
database: home
records:
  - id: a
    deviceRefId: 1
    measurement: ""
    field: value
`)
	_, err := LoadFile(path)
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestLoadFileRejectsRelativeEndpoint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.yaml")
	writeState(t, path, "endpoint: influx\ndatabase: home\n")
	_, err := LoadFile(path)
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestLoadFileRejectsDuplicateIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.yaml")
	writeState(t, path, `endpoint: http://influx:8086
database: home
records:
  - {id: a, deviceRefId: 1, measurement: m, field: f}
  - {id: a, deviceRefId: 2, measurement: m, field: f}
`)
	_, err := LoadFile(path)
	require.ErrorIs(t, err, ErrInvalidState)
	require.Contains(t, err.Error(), "duplicate record id")
}

func writeState(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}
