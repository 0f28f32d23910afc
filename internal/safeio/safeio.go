package safeio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// Dir resolves paths relative to a fixed root and keeps every read and
// write confined to it. The harvest run hands one Dir to the dataset
// writer and one to the download cache so neither can escape its root.
type Dir struct {
	absRoot string // absolute root, parents resolved
}

// NewDir binds all future operations to the given root directory,
// creating it (and parents) when missing.
func NewDir(root string) (*Dir, error) {
	if root == "" {
		return nil, errors.New("safeio: empty root")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, err
	}
	// Resolve symlinks so the prefix check below compares real paths.
	abs, err = filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, err
	}
	return &Dir{absRoot: abs}, nil
}

// Root returns the absolute root directory bound to this Dir.
func (d *Dir) Root() string {
	if d == nil {
		return ""
	}
	return d.absRoot
}

// Reset removes everything under the root and recreates it empty.
func (d *Dir) Reset() error {
	if d == nil {
		return errors.New("safeio: dir not configured")
	}
	if err := os.RemoveAll(d.absRoot); err != nil {
		return err
	}
	return os.MkdirAll(d.absRoot, 0o755)
}

// MkdirAll creates a directory (and parents) relative to the root.
func (d *Dir) MkdirAll(userPath string) error {
	p, err := d.resolve(userPath)
	if err != nil {
		return err
	}
	return os.MkdirAll(p, 0o755)
}

// ReadFile reads a file relative to the root.
func (d *Dir) ReadFile(userPath string) ([]byte, error) {
	p, err := d.resolve(userPath)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(p)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, errors.New("safeio: path is a directory")
	}
	return os.ReadFile(p)
}

// Stat returns metadata for a path under the root.
func (d *Dir) Stat(userPath string) (os.FileInfo, error) {
	p, err := d.resolve(userPath)
	if err != nil {
		return nil, err
	}
	return os.Stat(p)
}

// WriteFileAtomic writes data to a path relative to the root via a
// temporary file in the same directory followed by a rename, so an
// interrupted run never leaves a truncated file behind.
func (d *Dir) WriteFileAtomic(userPath string, data []byte) error {
	p, err := d.resolve(userPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(p), "."+filepath.Base(p)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, p); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

func (d *Dir) resolve(userPath string) (string, error) {
	if d == nil {
		return "", errors.New("safeio: dir not configured")
	}
	if userPath == "" {
		return "", errors.New("safeio: empty path")
	}
	clean := filepath.Clean(userPath)
	if clean == "." {
		return d.absRoot, nil
	}

	isAbs := filepath.IsAbs(clean) || (runtime.GOOS == "windows" && filepath.VolumeName(clean) != "")
	if !isAbs {
		if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
			return "", errors.New("safeio: path traversal not allowed")
		}
	}

	var joined string
	if isAbs {
		joined = clean
	} else {
		joined = filepath.Join(d.absRoot, clean)
	}
	if !hasPathPrefix(joined, d.absRoot) {
		return "", fmt.Errorf("safeio: resolved outside root (root=%s, path=%s)", d.absRoot, joined)
	}
	return joined, nil
}

func hasPathPrefix(path, root string) bool {
	path = filepath.Clean(path)
	root = filepath.Clean(root)
	if runtime.GOOS == "windows" {
		path = strings.ToLower(path)
		root = strings.ToLower(root)
	}
	if len(root) == 0 {
		return true
	}
	if path == root {
		return true
	}
	sep := string(os.PathSeparator)
	if !strings.HasSuffix(root, sep) {
		root += sep
	}
	if !strings.HasSuffix(path, sep) {
		path += sep
	}
	return strings.HasPrefix(path, root)
}
