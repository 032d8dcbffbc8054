package host

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
)

// Static is a Compiler for an output directory that some other tool has
// already built. Each Run is one compilation: emit hooks run, their assets
// are written into the output directory, then done hooks run.
type Static struct {
	Hooks
	context    string
	outputPath string
	runs       int
}

var _ Compiler = (*Static)(nil)

// NewStatic returns a host rooted at contextDir whose output lives in outputDir.
// Relative outputDir values are resolved against contextDir.
func NewStatic(contextDir, outputDir string) (*Static, error) {
	ctxAbs, err := filepath.Abs(contextDir)
	if err != nil {
		return nil, err
	}
	if !filepath.IsAbs(outputDir) {
		outputDir = filepath.Join(ctxAbs, outputDir)
	}
	return &Static{
		context:    ctxAbs,
		outputPath: filepath.Clean(outputDir),
	}, nil
}

func (s *Static) Context() string {
	return s.context
}

func (s *Static) OutputPath() string {
	return s.outputPath
}

// Run performs one compilation and returns its stats.
// A missing output directory counts as a compilation error.
func (s *Static) Run(ctx context.Context) Stats {
	if s.runs > 0 {
		s.Invalidate()
	}
	s.runs++

	stats := s.compile(ctx)
	s.Done(ctx, stats)
	return stats
}

func (s *Static) compile(ctx context.Context) Stats {
	fi, err := os.Stat(s.outputPath)
	if err != nil {
		return NewStats(fmt.Errorf("cannot use output directory: %w", err))
	}
	if !fi.IsDir() {
		return NewStats(fmt.Errorf("output path %s is not a directory", s.outputPath))
	}

	c := NewCompilation()
	if err := s.Emit(ctx, c); err != nil {
		return NewStats(err)
	}
	if err := c.WriteAssets(s.outputPath); err != nil {
		return NewStats(err)
	}
	log.Printf("Wrote %d asset(s) to %s", len(c.AssetNames()), s.outputPath)
	return NewStats()
}
