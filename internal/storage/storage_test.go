package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileBackend_SaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	fb, err := NewFileBackend(dir)
	require.NoError(t, err)
	defer fb.Close()

	snapshot := map[string][]byte{
		"volumes.bin": []byte("volumes payload"),
		"config.yaml": []byte("plain text payload"),
	}
	require.NoError(t, fb.Save(snapshot))

	loaded, err := fb.Load()
	require.NoError(t, err)
	assert.Equal(t, []byte("volumes payload"), loaded["volumes.bin"])
	assert.Equal(t, []byte("plain text payload"), loaded["config.yaml"])
}

func TestFileBackend_LoadOnEmptyDirReturnsEmptyMap(t *testing.T) {
	dir := t.TempDir()
	fb, err := NewFileBackend(dir)
	require.NoError(t, err)
	defer fb.Close()

	loaded, err := fb.Load()
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestFileBackend_SecondInstanceFailsToLockSameDir(t *testing.T) {
	dir := t.TempDir()
	fb1, err := NewFileBackend(dir)
	require.NoError(t, err)
	defer fb1.Close()

	_, err = NewFileBackend(dir)
	require.Error(t, err)
}

func TestFileBackend_CorruptGzipFileIsSkippedNotFatal(t *testing.T) {
	dir := t.TempDir()
	fb, err := NewFileBackend(dir)
	require.NoError(t, err)
	defer fb.Close()

	require.NoError(t, fb.Save(map[string][]byte{"volumes.bin": []byte("real data")}))

	require.NoError(t, fb.writeAtomic("topics.bin", []byte("not valid gzip")))

	loaded, err := fb.Load()
	require.NoError(t, err)
	assert.Equal(t, []byte("real data"), loaded["volumes.bin"])
	_, corruptPresent := loaded["topics.bin"]
	assert.False(t, corruptPresent)
}

func TestSQLiteBackend_SaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	backend, err := NewSQLiteBackend(dir + "/library.db")
	require.NoError(t, err)
	defer backend.Close()

	require.NoError(t, backend.Save(map[string][]byte{"a": []byte("1"), "b": []byte("2")}))
	loaded, err := backend.Load()
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), loaded["a"])
	assert.Equal(t, []byte("2"), loaded["b"])

	require.NoError(t, backend.Save(map[string][]byte{"a": []byte("updated")}))
	loaded, err = backend.Load()
	require.NoError(t, err)
	assert.Equal(t, []byte("updated"), loaded["a"])
}
