// Package locale loads the translation files of a project.
package locale

import (
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/dnswlt/miixkit/internal/errs"
	"github.com/dnswlt/miixkit/internal/host"
	"github.com/yosuke-furukawa/json5/encoding/json5"
)

// Packager resolves locale globs relative to a base directory and records
// every file it reads as a dependency of the compilation.
type Packager struct {
	baseDir     string
	compilation *host.Compilation
}

func NewPackager(baseDir string, c *host.Compilation) *Packager {
	return &Packager{
		baseDir:     baseDir,
		compilation: c,
	}
}

// Compile loads all files matching pattern and returns a map from locale
// name (the file's basename without extension) to its parsed JSON5 contents.
// An empty pattern yields an empty map.
func (p *Packager) Compile(pattern string) (map[string]any, error) {
	out := make(map[string]any)
	if pattern == "" {
		return out, nil
	}

	files, err := p.expand(pattern)
	if err != nil {
		return nil, errs.WrapPlugin(err, "invalid locales pattern "+pattern)
	}

	sources := make(map[string]string)
	for _, file := range files {
		name := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
		if prev, ok := sources[name]; ok {
			return nil, errs.Pluginf("locale %q is defined by both %s and %s", name, prev, file)
		}

		bs, err := os.ReadFile(file)
		if err != nil {
			return nil, errs.WrapPlugin(err, "could not read "+file)
		}
		var parsed any
		if err := json5.Unmarshal(bs, &parsed); err != nil {
			return nil, errs.WrapPlugin(err, "could not parse "+file)
		}
		if p.compilation != nil {
			if err := p.compilation.AddFileDependencies(file); err != nil {
				return nil, err
			}
		}
		sources[name] = file
		out[name] = parsed
	}
	return out, nil
}

// expand returns the absolute, cleaned paths of all regular files matching
// pattern, sorted.
func (p *Packager) expand(pattern string) ([]string, error) {
	pat := filepath.FromSlash(pattern)
	if !filepath.IsAbs(pat) {
		pat = filepath.Join(p.baseDir, pat)
	}
	matches, err := doublestar.FilepathGlob(filepath.Clean(pat), doublestar.WithFilesOnly())
	if err != nil {
		return nil, err
	}
	files := make([]string, 0, len(matches))
	for _, m := range matches {
		abs, err := filepath.Abs(m)
		if err != nil {
			return nil, err
		}
		files = append(files, abs)
	}
	slices.Sort(files)
	return files, nil
}

// Names returns the locale names of locales, sorted.
func Names(locales map[string]any) []string {
	names := make([]string, 0, len(locales))
	for n := range locales {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}
