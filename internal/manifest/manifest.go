// Package manifest finds and reads a project's package.json and readme.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
)

const FileName = "package.json"

var (
	ErrNotFound = errors.New("could not find a package.json in your current folder, make sure to cd into your project directory")

	readmeRE = regexp.MustCompile(`(?i)^readme\.?`)
)

// FindPackageJSON returns the path of the package.json nearest to dir,
// looking at dir and then each of its ancestors.
func FindPackageJSON(dir string) (string, bool) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", false
	}
	for {
		candidate := filepath.Join(abs, FileName)
		if fi, err := os.Stat(candidate); err == nil && !fi.IsDir() {
			return candidate, true
		}
		parent := filepath.Dir(abs)
		if parent == abs {
			return "", false
		}
		abs = parent
	}
}

// ProjectPath returns the directory containing the package.json nearest to dir.
func ProjectPath(dir string) (string, bool) {
	p, ok := FindPackageJSON(dir)
	if !ok {
		return "", false
	}
	return filepath.Dir(p), true
}

// MustLoad reads and parses the package.json nearest to dir.
// It returns ErrNotFound if there is none.
func MustLoad(dir string) (map[string]any, error) {
	p, ok := FindPackageJSON(dir)
	if !ok {
		return nil, ErrNotFound
	}
	bs, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("could not read %s: %w", p, err)
	}
	var m map[string]any
	if err := json.Unmarshal(bs, &m); err != nil {
		return nil, fmt.Errorf("invalid JSON in %s: %w", p, err)
	}
	if m == nil {
		return nil, fmt.Errorf("%s does not contain a JSON object", p)
	}
	return m, nil
}

// FindReadme returns the readme of the project in dir. Like npm, it takes the
// first file whose name starts with "readme" (in any case), and falls back to
// the "readmeFile" field of the project's package.json.
func FindReadme(dir string) (string, bool) {
	entries, err := os.ReadDir(dir)
	if err == nil {
		for _, e := range entries {
			if !e.IsDir() && readmeRE.MatchString(e.Name()) {
				return filepath.Join(dir, e.Name()), true
			}
		}
	}

	pkg, err := MustLoad(dir)
	if err != nil {
		return "", false
	}
	name, ok := pkg["readmeFile"].(string)
	if !ok || name == "" {
		return "", false
	}
	p := filepath.Clean(name)
	if !filepath.IsAbs(p) {
		p = filepath.Join(dir, p)
	}
	if _, err := os.Stat(p); err != nil {
		return "", false
	}
	return p, true
}

// Copy copies the regular file src to dst, replacing dst if it exists.
func Copy(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := out.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("failed to copy %s to %s: %w", src, dst, err)
	}
	return nil
}
