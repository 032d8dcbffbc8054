package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"
	"text/template"

	"github.com/dnswlt/miixkit/internal/store"
	"gopkg.in/yaml.v3"
)

// DefaultFile is the name of the project configuration file.
const DefaultFile = "miix.yml"

// PluginConfig configures the homepage and locale handling.
type PluginConfig struct {
	Homepage string `yaml:"homepage"` // Path of the HTML page, relative to the project.
	Locales  string `yaml:"locales"`  // Glob for the locale files, relative to the project.
	// A Go text/template for the name component of the entry script,
	// e.g. "{{.Version}}-{{.Commit}}". Evaluated against UniqueData.
	Unique string `yaml:"unique"`
	// Cached instance of the Go template for the Unique field.
	uniqueTemplate *template.Template
}

// BuildConfig configures the esbuild host used by "miix build".
type BuildConfig struct {
	Entry      string `yaml:"entry"`
	OutDir     string `yaml:"outDir"`
	// esbuild entry name template, e.g. "bundle" or "[name]".
	// Defaults to "index", or "index.<unique>" if a unique name is configured.
	OutputName string `yaml:"outputName"`
	Minify     bool   `yaml:"minify"`
	Sourcemap  bool   `yaml:"sourcemap"`
}

// Bundle is the umbrella struct for the serialized project configuration YAML.
type Bundle struct {
	Plugin PluginConfig `yaml:"plugin"`
	Build  BuildConfig  `yaml:"build"`
}

// UniqueData is the data the Unique template is evaluated against.
type UniqueData struct {
	Name    string
	Version string
	Commit  string // Short hash of the project's git HEAD, or "".
}

// RenderUnique evaluates the Unique template. An unset template yields "".
func (c *PluginConfig) RenderUnique(data UniqueData) (string, error) {
	if c.uniqueTemplate == nil {
		return c.Unique, nil
	}
	var buf bytes.Buffer
	if err := c.uniqueTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render unique template: %v", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// SetUnique replaces the Unique template.
func (c *PluginConfig) SetUnique(s string) error {
	c.Unique = s
	c.uniqueTemplate = nil
	if !strings.Contains(s, "{{") {
		return nil
	}
	tmpl, err := template.New("unique").Parse(s)
	if err != nil {
		return fmt.Errorf("invalid unique template: %v", err)
	}
	c.uniqueTemplate = tmpl
	return nil
}

// Default returns the configuration used when a project has no config file.
func Default() *Bundle {
	return &Bundle{
		Plugin: PluginConfig{Homepage: "index.html"},
		Build: BuildConfig{
			Entry:  "index.js",
			OutDir: "dist",
		},
	}
}

// Load reads the configuration at configPath in st. Unset fields keep their
// Default values. A missing file yields the defaults if optional is true.
func Load(st store.Store, configPath string, optional bool) (*Bundle, error) {
	bundle := Default()
	bs, err := st.ReadFile(configPath)
	if optional && errors.Is(err, fs.ErrNotExist) {
		return bundle, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not read config %q: %v", configPath, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(bs))
	dec.KnownFields(true)
	if err := dec.Decode(bundle); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("invalid configuration YAML in %q: %v", configPath, err)
	}

	// Populate and validate computed fields
	if err := bundle.Plugin.SetUnique(bundle.Plugin.Unique); err != nil {
		return nil, fmt.Errorf("invalid configuration in %q: %v", configPath, err)
	}
	if bundle.Plugin.Homepage == "" {
		return nil, fmt.Errorf("invalid configuration in %q: plugin.homepage must not be empty", configPath)
	}

	return bundle, nil
}
