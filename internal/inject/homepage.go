package inject

import (
	"encoding/json"
	"fmt"
	"html"
	"os"

	"github.com/dnswlt/miixkit/internal/errs"
	"github.com/dnswlt/miixkit/internal/metadata"
)

// HomepageRenderer injects the package configuration and locale list into
// a project's homepage, and loads the bundled entry script if the page
// does not load any scripts itself.
type HomepageRenderer struct {
	Package *metadata.Package
	Locales []string
	// Unique, if set, is inserted into the entry script name: index.<Unique>.js.
	Unique string
}

// Injector returns the fragments to inject.
func (r *HomepageRenderer) Injector() (*Injector, error) {
	// json.Marshal escapes <, > and &, so the values cannot close the <script> element.
	pkg, err := json.Marshal(r.Package)
	if err != nil {
		return nil, fmt.Errorf("could not encode package config: %w", err)
	}
	locales := r.Locales
	if locales == nil {
		locales = []string{}
	}
	loc, err := json.Marshal(locales)
	if err != nil {
		return nil, fmt.Errorf("could not encode locales: %w", err)
	}

	return &Injector{
		Head: []string{
			fmt.Sprintf("<script>window.mixerPackageConfig=%s;window.mixerLocales=%s</script>", pkg, loc),
		},
		Body: []string{
			fmt.Sprintf(`<script src="%s"></script>`, html.EscapeString(r.EntryScript())),
		},
	}, nil
}

// EntryScript returns the relative URL of the bundled entry script.
func (r *HomepageRenderer) EntryScript() string {
	if r.Unique != "" {
		return "./index." + r.Unique + ".js"
	}
	return "./index.js"
}

// Render injects into the homepage source src.
func (r *HomepageRenderer) Render(src []byte) ([]byte, error) {
	in, err := r.Injector()
	if err != nil {
		return nil, err
	}
	return in.Render(src)
}

// RenderFile reads the homepage at path and injects into it.
func (r *HomepageRenderer) RenderFile(path string) ([]byte, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.WrapPlugin(err, "could not read your homepage")
	}
	return r.Render(src)
}
