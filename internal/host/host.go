// Package host models the small part of a bundler that the plugin talks to:
// the lifecycle hooks of one compiler, the assets emitted by a compilation,
// and the files the compilation depends on.
package host

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/dnswlt/miixkit/internal/store"
)

// EmitFunc is called once per compilation, before its assets are written.
// A non-nil error fails the compilation.
type EmitFunc func(ctx context.Context, c *Compilation) error

// DoneFunc is called after a compilation finished, successful or not.
type DoneFunc func(ctx context.Context, stats Stats)

// Compiler is the hook surface of a host bundler.
type Compiler interface {
	// Context returns the absolute directory the compiler resolves relative paths against.
	Context() string
	// OutputPath returns the absolute output directory of the build.
	OutputPath() string
	// OnInvalid registers f to run whenever a new compilation starts after the first.
	OnInvalid(f func())
	// OnEmit registers f to run when the compilation is about to write its assets.
	OnEmit(f EmitFunc)
	// OnDone registers f to run when the compilation has finished.
	OnDone(f DoneFunc)
}

// Stats summarizes a finished compilation.
type Stats struct {
	errs []error
}

func NewStats(errs ...error) Stats {
	var nonNil []error
	for _, err := range errs {
		if err != nil {
			nonNil = append(nonNil, err)
		}
	}
	return Stats{errs: nonNil}
}

func (s Stats) HasErrors() bool {
	return len(s.errs) > 0
}

func (s Stats) Errors() []error {
	return s.errs
}

// Compilation collects the assets produced during one build and the
// input files it depends on.
type Compilation struct {
	assets   map[string][]byte
	fileDeps []string
}

func NewCompilation() *Compilation {
	return &Compilation{
		assets: make(map[string][]byte),
	}
}

// AddFileDependencies records paths as inputs of the compilation.
// Every path must be absolute. Paths that were already recorded are skipped.
func (c *Compilation) AddFileDependencies(paths ...string) error {
	for _, p := range paths {
		if !filepath.IsAbs(p) {
			return fmt.Errorf("expected path to be absolute: %s", p)
		}
		if !slices.Contains(c.fileDeps, p) {
			c.fileDeps = append(c.fileDeps, p)
		}
	}
	return nil
}

// FileDependencies returns the recorded input files in insertion order.
func (c *Compilation) FileDependencies() []string {
	return slices.Clone(c.fileDeps)
}

// AddAsset sets the contents of the output file name, replacing any
// earlier asset of the same name. name is relative to the output directory.
func (c *Compilation) AddAsset(name string, contents []byte) {
	c.assets[name] = contents
}

// AddFileAsset copies the file at path into the asset name and records
// path as a file dependency.
func (c *Compilation) AddFileAsset(name, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	bs, err := os.ReadFile(abs)
	if err != nil {
		return fmt.Errorf("could not read asset %s: %w", name, err)
	}
	c.AddAsset(name, bs)
	return c.AddFileDependencies(abs)
}

// Asset returns the contents of the named asset.
func (c *Compilation) Asset(name string) ([]byte, bool) {
	bs, ok := c.assets[name]
	return bs, ok
}

// AssetNames returns the names of all assets, sorted.
func (c *Compilation) AssetNames() []string {
	names := make([]string, 0, len(c.assets))
	for n := range c.assets {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// WriteAssets writes all assets into outputDir, creating subdirectories as needed.
// Asset names must not escape outputDir.
func (c *Compilation) WriteAssets(outputDir string) error {
	st := store.NewDiskStore(outputDir)
	for _, name := range c.AssetNames() {
		if err := st.WriteFile(name, c.assets[name]); err != nil {
			return fmt.Errorf("failed to write asset %s: %w", name, err)
		}
	}
	return nil
}

// Hooks is an ordered registry of compiler hooks. Hosts embed it to
// implement the registration half of Compiler.
type Hooks struct {
	invalid []func()
	emit    []EmitFunc
	done    []DoneFunc
}

func (h *Hooks) OnInvalid(f func()) {
	h.invalid = append(h.invalid, f)
}

func (h *Hooks) OnEmit(f EmitFunc) {
	h.emit = append(h.emit, f)
}

func (h *Hooks) OnDone(f DoneFunc) {
	h.done = append(h.done, f)
}

// Invalidate runs all invalid hooks.
func (h *Hooks) Invalidate() {
	for _, f := range h.invalid {
		f()
	}
}

// Emit runs the emit hooks in registration order and stops at the first error.
func (h *Hooks) Emit(ctx context.Context, c *Compilation) error {
	for _, f := range h.emit {
		if err := f(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

// Done runs the done hooks in registration order.
func (h *Hooks) Done(ctx context.Context, stats Stats) {
	for _, f := range h.done {
		f(ctx, stats)
	}
}
