package host

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/evanw/esbuild/pkg/api"
)

// Esbuild is a Compiler backed by an esbuild build. esbuild itself is told
// not to write its output; the host writes the output files at the end of
// each build, followed by the assets added by emit hooks, so done hooks
// always see a complete output directory.
type Esbuild struct {
	Hooks
	opts       api.BuildOptions
	outputPath string
	ctx        context.Context
	builds     int
	ends       int
}

var _ Compiler = (*Esbuild)(nil)

// NewEsbuild prepares a build with the given options. AbsWorkingDir and
// Outdir must be set; Outdir may be relative to AbsWorkingDir.
func NewEsbuild(opts api.BuildOptions) (*Esbuild, error) {
	if opts.AbsWorkingDir == "" || !filepath.IsAbs(opts.AbsWorkingDir) {
		return nil, fmt.Errorf("esbuild host needs an absolute working directory, got %q", opts.AbsWorkingDir)
	}
	if opts.Outdir == "" {
		return nil, errors.New("esbuild host needs an output directory")
	}
	out := opts.Outdir
	if !filepath.IsAbs(out) {
		out = filepath.Join(opts.AbsWorkingDir, out)
	}
	return &Esbuild{
		opts:       opts,
		outputPath: filepath.Clean(out),
		ctx:        context.Background(),
	}, nil
}

func (e *Esbuild) Context() string {
	return e.opts.AbsWorkingDir
}

func (e *Esbuild) OutputPath() string {
	return e.outputPath
}

// Run executes the build and returns its stats. Hook failures are reported
// as build errors. Done hooks run exactly once per Run.
func (e *Esbuild) Run(ctx context.Context) Stats {
	e.ctx = ctx
	opts := e.opts
	opts.Write = false
	opts.Plugins = append(append([]api.Plugin(nil), opts.Plugins...), e.plugin())

	ends := e.ends
	result := api.Build(opts)
	var errs []error
	for _, m := range result.Errors {
		errs = append(errs, messageError(m))
	}
	stats := NewStats(errs...)
	// esbuild skips OnEnd if the build fails before plugins run,
	// e.g. for invalid options. Done hooks still need to see the failure.
	if e.ends == ends {
		e.Done(ctx, stats)
	}
	return stats
}

func (e *Esbuild) plugin() api.Plugin {
	return api.Plugin{
		Name: "miix",
		Setup: func(build api.PluginBuild) {
			build.OnStart(func() (api.OnStartResult, error) {
				if e.builds > 0 {
					e.Invalidate()
				}
				e.builds++
				return api.OnStartResult{}, nil
			})
			build.OnEnd(func(result *api.BuildResult) (api.OnEndResult, error) {
				return e.onEnd(result), nil
			})
		},
	}
}

func (e *Esbuild) onEnd(result *api.BuildResult) api.OnEndResult {
	e.ends++
	var errs []error
	for _, m := range result.Errors {
		errs = append(errs, messageError(m))
	}

	var extra []api.Message
	if len(errs) == 0 {
		if err := e.finish(result); err != nil {
			errs = append(errs, err)
			extra = append(extra, api.Message{PluginName: "miix", Text: err.Error()})
		}
	}

	e.Done(e.ctx, NewStats(errs...))
	return api.OnEndResult{Errors: extra}
}

// finish writes esbuild's output files, then runs the emit hooks and writes their assets.
func (e *Esbuild) finish(result *api.BuildResult) error {
	if err := os.MkdirAll(e.outputPath, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	for _, f := range result.OutputFiles {
		if err := os.MkdirAll(filepath.Dir(f.Path), 0755); err != nil {
			return err
		}
		if err := os.WriteFile(f.Path, f.Contents, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", f.Path, err)
		}
	}

	c := NewCompilation()
	if err := e.Emit(e.ctx, c); err != nil {
		return err
	}
	return c.WriteAssets(e.outputPath)
}

func messageError(m api.Message) error {
	if m.Location != nil {
		return fmt.Errorf("%s:%d:%d: %s", m.Location.File, m.Location.Line, m.Location.Column, m.Text)
	}
	return errors.New(m.Text)
}
