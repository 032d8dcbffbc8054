package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

var (
	ErrEscapesRoot = errors.New("path escapes root directory")
)

// Store is a minimal abstraction to list, read, and write files below a root directory.
type Store interface {
	// ListFiles lists all regular files in dir (recursively), sorted.
	// The resulting paths use forward slashes and are relative to the
	// store's root directory, so they can be passed to ReadFile and
	// WriteFile unmodified.
	ListFiles(dir string) ([]string, error)
	// ReadFile reads the contents of path from the store.
	ReadFile(path string) ([]byte, error)
	// WriteFile writes the given contents to path in the store,
	// creating parent directories as needed.
	WriteFile(path string, contents []byte) error
	// Exists reports whether path names a regular file in the store.
	Exists(path string) bool
}

// DiskStore is an implementation of Store for a directory on the local file system.
type DiskStore struct {
	rootDir string
}

var _ Store = (*DiskStore)(nil)

func NewDiskStore(rootDir string) *DiskStore {
	return &DiskStore{
		rootDir: rootDir,
	}
}

func (d *DiskStore) Root() string {
	return d.rootDir
}

func (d *DiskStore) ListFiles(dir string) ([]string, error) {
	return listFilesRecursively(d.rootDir, dir)
}

// Resolve returns the OS path of the store-relative path p.
func (d *DiskStore) Resolve(p string) (string, error) {
	return resolveRelPath(d.rootDir, p)
}

func resolveRelPath(root, subpath string) (string, error) {
	fullPath := filepath.Join(root, filepath.FromSlash(subpath))

	// Verify ancestry by calculating the relative path from the root.
	rel, err := filepath.Rel(root, fullPath)
	if err != nil {
		return "", fmt.Errorf("not a relative path: %v", err) // e.g. paths on different volumes
	}

	// A relative path escaping the root will start with ".."
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%q: %w", subpath, ErrEscapesRoot)
	}

	return fullPath, nil
}

func (d *DiskStore) ReadFile(path string) ([]byte, error) {
	fullPath, err := resolveRelPath(d.rootDir, path)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(fullPath)
}

func (d *DiskStore) WriteFile(path string, contents []byte) error {
	fullPath, err := resolveRelPath(d.rootDir, path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return err
	}
	return os.WriteFile(fullPath, contents, 0644)
}

func (d *DiskStore) Exists(path string) bool {
	fullPath, err := resolveRelPath(d.rootDir, path)
	if err != nil {
		return false
	}
	fi, err := os.Stat(fullPath)
	return err == nil && fi.Mode().IsRegular()
}

// listFilesRecursively lists all regular files in subDir, which must
// be a relative path specifying a sub-directory of rootDir.
// The resulting paths will all be relative to rootDir and use "/" as separator.
//
// Example:
// with rootDir "/foo/bar" and subDir "baz/quz", all files under
// "/foo/bar/baz/quz" will be returned, relative to "/foo/bar", such as
// ["baz/quz/yankee.js"].
func listFilesRecursively(rootDir, subDir string) ([]string, error) {
	var files []string

	startDir, err := resolveRelPath(rootDir, subDir)
	if err != nil {
		return nil, err
	}
	err = filepath.WalkDir(startDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Handle errors accessing a path (e.g. permission denied)
			return err
		}

		// Directories are recursed into automatically; symlinks and other
		// non-regular files are skipped.
		if !d.Type().IsRegular() {
			return nil
		}

		relPath, err := filepath.Rel(rootDir, path)
		if err != nil {
			return err
		}

		files = append(files, filepath.ToSlash(relPath))
		return nil
	})

	if err != nil {
		return nil, err
	}

	slices.Sort(files)
	return files, nil
}
