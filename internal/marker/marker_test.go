package marker

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadMissingMarker(t *testing.T) {
	m := New(filepath.Join(t.TempDir(), "marker"))

	_, ok, err := m.Read()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWriteAndRead(t *testing.T) {
	m := New(filepath.Join(t.TempDir(), "marker"))

	require.NoError(t, m.Write(42))
	key, ok, err := m.Read()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(42), key)

	// Overwrite replaces the value.
	require.NoError(t, m.Write(7))
	key, ok, err = m.Read()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(7), key)
}

func TestMangledMarkerIsNoSelection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "marker")
	require.NoError(t, os.WriteFile(path, []byte("not a number"), 0o644))

	m := New(path)
	_, ok, err := m.Read()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClear(t *testing.T) {
	m := New(filepath.Join(t.TempDir(), "marker"))

	// Clearing an absent marker is fine.
	require.NoError(t, m.Clear())

	require.NoError(t, m.Write(1))
	require.NoError(t, m.Clear())
	_, ok, err := m.Read()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWriteLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	m := New(filepath.Join(dir, "marker"))
	require.NoError(t, m.Write(3))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "marker", entries[0].Name())
}
