// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package fileutil provides project filesystem helpers: root discovery,
// safe file names, backups, and atomic writes.
package fileutil

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// DefaultRootMarkers are the files whose presence marks a proposal project root.
var DefaultRootMarkers = []string{
	"nsf_config.yaml",
	"config.yaml",
	"grant.yaml",
	"grant_registry.yaml",
	".git",
}

var (
	reUnsafe = regexp.MustCompile(`[<>:"/\\|?*]`)
	reSpace  = regexp.MustCompile(`\s+`)
	reUnders = regexp.MustCompile(`_+`)
)

// SafeFilename converts name into a string usable as a file name.
func SafeFilename(name string) string {
	s := reUnsafe.ReplaceAllString(name, "_")
	s = reSpace.ReplaceAllString(s, "_")
	s = reUnders.ReplaceAllString(s, "_")
	return strings.Trim(s, "_")
}

// FindProjectRoot walks upward from start until it finds a directory that
// contains one of markers. Returns "" when the filesystem root is reached.
// A nil markers slice uses DefaultRootMarkers.
func FindProjectRoot(start string, markers []string) (string, error) {
	if markers == nil {
		markers = DefaultRootMarkers
	}
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", start, err)
	}
	for {
		for _, m := range markers {
			if _, err := os.Stat(filepath.Join(dir, m)); err == nil {
				return dir, nil
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

// BackupFile copies path to path.bak, or path.bak.N for the first free N.
// A missing file is not backed up and path is returned unchanged.
func BackupFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return path, nil
	}
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}

	backup := path + ".bak"
	for n := 1; exists(backup); n++ {
		backup = fmt.Sprintf("%s.bak.%d", path, n)
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", path, err)
	}
	if err := os.WriteFile(backup, data, info.Mode().Perm()); err != nil {
		return "", fmt.Errorf("writing backup %s: %w", backup, err)
	}
	return backup, nil
}

// WriteFileAtomic writes data to a temp file in the target directory and
// renames it over path. Parent directories are created.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing %s: %w", tmpName, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming to %s: %w", path, err)
	}
	return nil
}

// Exists reports whether path exists.
func Exists(path string) bool {
	return exists(path)
}

// IsDir reports whether path exists and is a directory.
func IsDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
