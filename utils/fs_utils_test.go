package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateFileMakesDirectories(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs", "nested")
	file, err := CreateFile(dir, "run.log")
	require.NoError(t, err)
	require.NoError(t, file.Close())

	info, err := os.Stat(filepath.Join(dir, "run.log"))
	require.NoError(t, err)
	assert.False(t, info.IsDir())
}

func TestMakeDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "work")
	require.NoError(t, MakeDirectory(dir))
	// Existing directories are accepted
	require.NoError(t, MakeDirectory(dir))

	path := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(path, []byte{}, 0644))
	assert.Error(t, MakeDirectory(path))
}
