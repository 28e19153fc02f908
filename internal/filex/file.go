// Package filex holds small filesystem helpers for the upload staging
// area.
package filex

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// EnsureDir creates dir (and parents) if missing and returns its absolute
// path.
func EnsureDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("abs %s: %w", dir, err)
	}
	if err := os.MkdirAll(abs, 0o770); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", abs, err)
	}
	return abs, nil
}

// StageFile copies src into dir under a unique name that keeps the
// original extension, and returns the staged path. The caller owns the
// staged file from here on.
func StageFile(dir, originalName string, src io.Reader) (string, error) {
	ext := filepath.Ext(originalName)

	f, err := os.CreateTemp(dir, "upload-*"+ext)
	if err != nil {
		return "", fmt.Errorf("create staged file: %w", err)
	}

	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("write staged file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("close staged file: %w", err)
	}

	return f.Name(), nil
}
