package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWritesToFile(t *testing.T) {
	baseDir := filepath.Join(t.TempDir(), "run")

	logger, closeFn, err := New(baseDir)
	require.NoError(t, err)

	logger.Printf("hello from run %d", 1)
	require.NoError(t, closeFn())

	contents, err := os.ReadFile(filepath.Join(baseDir, LogFileName))
	require.NoError(t, err)
	assert.Contains(t, string(contents), "hello from run 1")
}

// Reopening the same base dir appends rather than truncating.
func TestNewAppends(t *testing.T) {
	baseDir := t.TempDir()

	logger, closeFn, err := New(baseDir)
	require.NoError(t, err)
	logger.Print("first")
	require.NoError(t, closeFn())

	logger, closeFn, err = New(baseDir)
	require.NoError(t, err)
	logger.Print("second")
	require.NoError(t, closeFn())

	contents, err := os.ReadFile(filepath.Join(baseDir, LogFileName))
	require.NoError(t, err)
	assert.Contains(t, string(contents), "first")
	assert.Contains(t, string(contents), "second")
	assert.Less(t, strings.Index(string(contents), "first"), strings.Index(string(contents), "second"))
}

func TestNewBadBaseDir(t *testing.T) {
	file := filepath.Join(t.TempDir(), "occupied")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	// A plain file where the directory should go is an error.
	_, _, err := New(file)
	assert.Error(t, err)
}
