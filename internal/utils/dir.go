package utils

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// IsFile tests whether given path exists and is a file
func IsFile(filePath string) bool {
	file, err := os.Stat(filePath)
	if err != nil {
		return false
	}

	return !file.IsDir()
}

// IsDirectory tests whether given path exists and is a directory
func IsDirectory(dirPath string) bool {
	dir, err := os.Stat(dirPath)
	if err != nil {
		return false
	}

	return dir.IsDir()
}

// EnsureDir creates dirPath and its parents unless it already is a directory
func EnsureDir(dirPath string) error {
	if IsDirectory(dirPath) {
		return nil
	}
	if err := os.MkdirAll(dirPath, os.ModePerm); err != nil {
		return fmt.Errorf("create directory %s: %w", dirPath, err)
	}
	return nil
}

// EnsureParent creates the directory a file at filePath will be written to
func EnsureParent(filePath string) error {
	return EnsureDir(filepath.Dir(filePath))
}

// TrimExt strips the extension of a path. Compressed ASCII grids lose both
// extensions, e.g. dem.asc.gz becomes dem.
func TrimExt(p string) string {
	ext := filepath.Ext(p)
	trimmed := p[:len(p)-len(ext)]
	if ext == ".gz" {
		return TrimExt(trimmed)
	}
	return trimmed
}

// Ext is the counterpart of TrimExt
func Ext(p string) string {
	return p[len(TrimExt(p)):]
}

// RemoveIfExists deletes a file, ignoring a missing one
func RemoveIfExists(filePath string) error {
	if err := os.Remove(filePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
