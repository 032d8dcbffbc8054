// Package plugin wires the metadata, locale, homepage, notification and
// bundling steps into the lifecycle of a host compiler.
package plugin

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/dnswlt/miixkit/internal/bundle"
	"github.com/dnswlt/miixkit/internal/host"
	"github.com/dnswlt/miixkit/internal/inject"
	"github.com/dnswlt/miixkit/internal/locale"
	"github.com/dnswlt/miixkit/internal/manifest"
	"github.com/dnswlt/miixkit/internal/metadata"
	"github.com/dnswlt/miixkit/internal/notify"
)

// HomepageAsset is the name of the rendered homepage in the build output.
const HomepageAsset = "index.html"

var ErrNoProject = errors.New("could not find your project path, are you missing a package.json?")

type Options struct {
	// Homepage is the path of the HTML page to serve content from,
	// relative to the compiler context.
	Homepage string
	// Locales is a glob for the locale files, relative to the compiler context.
	Locales string
	// Unique is inserted into the name of the entry script, see inject.HomepageRenderer.
	Unique string
}

// Plugin post-processes the output of a compiler.
type Plugin struct {
	opts     Options
	notifier *notify.Notifier
	bundler  *bundle.Emitter
}

// New returns a plugin that reports to n and bundles with b.
// A nil b disables bundling.
func New(opts Options, n *notify.Notifier, b *bundle.Emitter) (*Plugin, error) {
	if opts.Homepage == "" {
		return nil, errors.New("plugin needs a homepage")
	}
	return &Plugin{
		opts:     opts,
		notifier: n,
		bundler:  b,
	}, nil
}

// FromEnv returns a plugin whose notifier and bundler are configured from
// the environment.
func FromEnv(opts Options) (*Plugin, error) {
	n := notify.FromEnv()
	return New(opts, n, bundle.FromEnv(n))
}

// Apply attaches the plugin to c.
func (p *Plugin) Apply(c host.Compiler) error {
	projectPath, ok := manifest.ProjectPath(c.Context())
	if !ok {
		return ErrNoProject
	}

	p.notifier.Apply(c)
	c.OnEmit(func(ctx context.Context, comp *host.Compilation) error {
		return p.emit(ctx, c, projectPath, comp)
	})
	if p.bundler != nil {
		p.bundler.Apply(c)
	}
	return nil
}

func (p *Plugin) emit(ctx context.Context, c host.Compiler, projectPath string, comp *host.Compilation) error {
	jsonPath, ok := manifest.FindPackageJSON(projectPath)
	if !ok {
		return manifest.ErrNotFound
	}
	if err := comp.AddFileDependencies(jsonPath); err != nil {
		return err
	}
	pkgJSON, err := manifest.MustLoad(projectPath)
	if err != nil {
		return err
	}
	pkg, err := metadata.Create(pkgJSON, projectPath)
	if err != nil {
		return err
	}
	if p.notifier.Enabled() {
		if err := p.notifier.Print(notify.Metadata{Metadata: pkg}); err != nil {
			return fmt.Errorf("failed to report metadata: %w", err)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	locales, err := locale.NewPackager(c.Context(), comp).Compile(p.opts.Locales)
	if err != nil {
		return err
	}

	homepage := p.opts.Homepage
	if !filepath.IsAbs(homepage) {
		homepage = filepath.Join(c.Context(), homepage)
	}
	r := &inject.HomepageRenderer{
		Package: pkg,
		Locales: locale.Names(locales),
		Unique:  p.opts.Unique,
	}
	page, err := r.RenderFile(homepage)
	if err != nil {
		return err
	}
	comp.AddAsset(HomepageAsset, page)
	return comp.AddFileDependencies(homepage)
}
