// Package fileutil provides file predicates and crash-safe write helpers.
package fileutil

import (
	"fmt"
	"os"
	"path/filepath"
)

// FileExists returns true if the file exists.
func FileExists(file string) bool {
	_, err := os.Stat(file)
	return err == nil
}

// IsDir returns true if the path exists and is a directory.
func IsDir(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}

// OpenOrCreateFile opens the file for appending, creating it if needed.
func OpenOrCreateFile(file string) (*os.File, error) {
	if FileExists(file) {
		return os.OpenFile(file, os.O_APPEND|os.O_WRONLY, 0600)
	}
	return os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND|os.O_SYNC, 0600)
}

// IsDirWritable probes whether the directory accepts new files.
func IsDirWritable(dir string) bool {
	f, err := os.CreateTemp(dir, ".writable-*")
	if err != nil {
		return false
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)
	return true
}

// WriteFileAtomic writes data to path by writing a temporary file in the
// same directory, syncing it, and renaming it over the target. Either
// the old content or the new content is observed, never a mix.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		// Best effort cleanup if the rename did not happen.
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
