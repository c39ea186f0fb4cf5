// Package logging sets up the run logger: everything written to it goes
// to stdout and to <base_dir>/training.log.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
)

// LogFileName is the training log file created under the base directory.
const LogFileName = "training.log"

// New creates the base directory if needed, opens the training log for
// appending, and returns a logger writing to both it and stdout, along
// with a close function for the file.
func New(baseDir string) (*log.Logger, func() error, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("logging: failed to create base dir: %w", err)
	}
	path := filepath.Join(baseDir, LogFileName)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("logging: failed to open %s: %w", path, err)
	}
	logger := log.New(io.MultiWriter(os.Stdout, file), "", log.LstdFlags)
	return logger, file.Close, nil
}

// Discard returns a logger that drops everything. Used by tests that
// only care about returned values.
func Discard() *log.Logger {
	return log.New(io.Discard, "", 0)
}
