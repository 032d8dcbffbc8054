// Package bundle packages a finished build into a compressed tarball that
// can be uploaded, and reports its location through a notify.Notifier.
package bundle

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/dnswlt/miixkit/internal/errs"
	"github.com/dnswlt/miixkit/internal/host"
	"github.com/dnswlt/miixkit/internal/manifest"
	"github.com/dnswlt/miixkit/internal/notify"
	"github.com/google/uuid"
)

// EnvVar enables bundling when set to a non-empty value.
const EnvVar = "MIIX_PLZ_BUNDLE"

// Emitter creates a bundle after every successful compilation.
type Emitter struct {
	notifier *notify.Notifier
	enabled  bool
	// TempDir is where archives are written. Defaults to os.TempDir().
	TempDir string
}

func NewEmitter(n *notify.Notifier, enabled bool) *Emitter {
	return &Emitter{
		notifier: n,
		enabled:  enabled,
		TempDir:  os.TempDir(),
	}
}

// FromEnv returns an Emitter that is enabled iff EnvVar is set.
func FromEnv(n *notify.Notifier) *Emitter {
	return NewEmitter(n, os.Getenv(EnvVar) != "")
}

func (e *Emitter) Enabled() bool {
	return e.enabled
}

// Apply attaches the emitter to c. It does nothing if the emitter is disabled.
func (e *Emitter) Apply(c host.Compiler) {
	if !e.enabled {
		return
	}
	c.OnDone(func(ctx context.Context, stats host.Stats) {
		if stats.HasErrors() {
			return
		}
		e.emit(ctx, c.Context(), c.OutputPath())
	})
}

func (e *Emitter) emit(ctx context.Context, contextDir, outputDir string) {
	target := filepath.Join(e.TempDir, fmt.Sprintf("miix-bundle-%s.tar.gz", uuid.NewString()))
	created, err := Bundle(ctx, contextDir, outputDir, target)
	if err != nil {
		os.Remove(target)
		log.Printf("Bundling failed: %v", err)
		if perr := e.notifier.Print(notify.BundleFailed{Error: err.Error()}); perr != nil {
			log.Printf("Failed to report bundle failure: %v", perr)
		}
		return
	}
	log.Printf("Created bundle %s (%d bytes)", created.Location, created.Size)
	if err := e.notifier.Print(*created); err != nil {
		log.Printf("Failed to report bundle: %v", err)
	}
}

// Bundle verifies the build output in outputDir, copies the project's
// manifest and readme into it and writes the archive to target.
// contextDir is any directory inside the project.
func Bundle(ctx context.Context, contextDir, outputDir, target string) (*notify.BundleCreated, error) {
	projectPath, ok := manifest.ProjectPath(contextDir)
	if !ok {
		return nil, manifest.ErrNotFound
	}
	if err := VerifyIntegrity(projectPath, outputDir); err != nil {
		return nil, err
	}

	readme, hasReadme := manifest.FindReadme(projectPath)
	if hasReadme {
		if err := manifest.Copy(readme, filepath.Join(outputDir, "readme.md")); err != nil {
			return nil, fmt.Errorf("failed to copy readme: %w", err)
		}
	}
	pkgJSON, _ := manifest.FindPackageJSON(projectPath)
	if err := manifest.Copy(pkgJSON, filepath.Join(outputDir, manifest.FileName)); err != nil {
		return nil, fmt.Errorf("failed to copy %s: %w", manifest.FileName, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	modTime, err := SourceDate(projectPath)
	if err != nil {
		return nil, err
	}
	archive, err := CreateArchive(target, outputDir, modTime)
	if err != nil {
		return nil, err
	}

	result := &notify.BundleCreated{
		Location: archive.Path,
		Checksum: archive.Checksum,
		Size:     archive.Size,
	}
	if hasReadme {
		html, err := RenderReadme(readme)
		if err != nil {
			return nil, fmt.Errorf("failed to render readme: %w", err)
		}
		result.Readme = &html
	}
	return result, nil
}

// VerifyIntegrity returns an *errs.IntegrityError if the output lacks a
// homepage or the project lacks a manifest.
func VerifyIntegrity(projectPath, outputDir string) error {
	home := filepath.Join(outputDir, "index.html")
	if fi, err := os.Stat(home); err != nil || fi.IsDir() {
		return &errs.IntegrityError{
			Path: home,
			Msg:  "An index.html is missing in your project output",
		}
	}
	pkg := filepath.Join(projectPath, manifest.FileName)
	if _, err := os.Stat(pkg); err != nil {
		return &errs.IntegrityError{
			Path: pkg,
			Msg:  "A package.json is missing in your project",
		}
	}
	return nil
}
