package storage

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONFile_WriteRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	f := NewJSONFile(path)

	assert.False(t, f.Exists())

	in := map[string]string{"0xabc": "Bold Whale"}
	require.NoError(t, f.Write(in))
	assert.True(t, f.Exists())

	var out map[string]string
	require.NoError(t, f.Read(&out))
	assert.Equal(t, in, out)

	// no temp files left behind
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestJSONFile_Missing(t *testing.T) {
	f := NewJSONFile(filepath.Join(t.TempDir(), "missing.json"))

	var out map[string]string
	err := f.Read(&out)
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestJSONFile_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	var out map[string]string
	err := NewJSONFile(path).Read(&out)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestJSONFile_WriteUnwritableDir(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	// parent "directory" is a regular file
	f := NewJSONFile(filepath.Join(blocker, "state.json"))
	assert.Error(t, f.Write(map[string]int{"a": 1}))
}
