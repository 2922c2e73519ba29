// Package fsutil holds the synchronous filesystem calls behind the directory
// facade: path normalization, directory checks, creation and listing.
package fsutil

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"
)

// ErrNotADirectory reports a path that exists but is not a directory.
var ErrNotADirectory = errors.New("not a directory")

// NormalizeDir returns the absolute, cleaned form of pathValue with symlinks
// resolved, so two spellings of one directory share a key. The path must exist.
func NormalizeDir(pathValue string) (string, error) {
	if strings.TrimSpace(pathValue) == "" {
		return "", errors.New("path is required")
	}
	abs, err := filepath.Abs(pathValue)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", err
	}
	return filepath.Clean(resolved), nil
}

// IsDir reports whether pathValue is an existing directory. A missing path
// returns the stat error, which matches fs.ErrNotExist.
func IsDir(pathValue string) (bool, error) {
	info, err := os.Stat(pathValue)
	if err != nil {
		return false, err
	}
	return info.IsDir(), nil
}

// RequireDir resolves pathValue and fails unless it names a directory. A path
// that runs through a regular file ("file.txt/sub") also fails with
// ErrNotADirectory.
func RequireDir(pathValue string) (string, error) {
	normalized, err := NormalizeDir(pathValue)
	if err != nil {
		return "", notDirErr(pathValue, err)
	}
	isDir, err := IsDir(normalized)
	if err != nil {
		return "", notDirErr(normalized, err)
	}
	if !isDir {
		return "", &fs.PathError{Op: "open", Path: normalized, Err: ErrNotADirectory}
	}
	return normalized, nil
}

func notDirErr(pathValue string, err error) error {
	if errors.Is(err, syscall.ENOTDIR) {
		return &fs.PathError{Op: "open", Path: pathValue, Err: ErrNotADirectory}
	}
	return err
}

// CreateDir creates one directory, or the whole chain when parents is set.
// Without parents an existing path fails with fs.ErrExist.
func CreateDir(pathValue string, perm fs.FileMode, parents bool) error {
	if strings.TrimSpace(pathValue) == "" {
		return errors.New("path is required")
	}
	if perm == 0 {
		perm = 0o755
	}
	if !parents {
		return os.Mkdir(pathValue, perm)
	}
	if err := os.MkdirAll(pathValue, perm); err != nil {
		return err
	}
	isDir, err := IsDir(pathValue)
	if err != nil {
		return err
	}
	if !isDir {
		return &fs.PathError{Op: "mkdir", Path: pathValue, Err: ErrNotADirectory}
	}
	return nil
}

// ListChildren returns the absolute paths of the immediate entries of dir in
// lexical order. The result is a snapshot taken at call time.
func ListChildren(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	children := make([]string, 0, len(entries))
	for _, entry := range entries {
		children = append(children, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(children)
	return children, nil
}

// ParseMode parses an octal permission string such as "0755".
func ParseMode(value string) (fs.FileMode, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, nil
	}
	mode, err := strconv.ParseUint(strings.TrimPrefix(trimmed, "0o"), 8, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid mode %q: %w", value, err)
	}
	if mode > 0o7777 {
		return 0, fmt.Errorf("invalid mode %q: out of range", value)
	}
	return fs.FileMode(mode), nil
}
