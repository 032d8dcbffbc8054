package plugin

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dnswlt/miixkit/internal/bundle"
	"github.com/dnswlt/miixkit/internal/errs"
	"github.com/dnswlt/miixkit/internal/host"
	"github.com/dnswlt/miixkit/internal/metadata"
	"github.com/dnswlt/miixkit/internal/notify"
	"github.com/dnswlt/miixkit/internal/testutil"
	"github.com/evanw/esbuild/pkg/api"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

const helloPackage = `{"name":"hello-world","version":"0.1.0"}`

var helloMetadata = notify.Metadata{Metadata: &metadata.Package{
	Name:     "hello-world",
	Version:  "0.1.0",
	Controls: map[string]any{},
	Scenes:   map[string]any{},
}}

type packResults struct {
	stats         host.Stats
	notifications []notify.Notification
	tarLocation   string
}

// newTestPlugin returns a plugin with notifications and bundling enabled
// that writes its records to buf and its archives into a temp dir.
func newTestPlugin(t *testing.T, opts Options, buf *bytes.Buffer) *Plugin {
	t.Helper()
	n := notify.New(buf, true)
	b := bundle.NewEmitter(n, true)
	b.TempDir = t.TempDir()
	p, err := New(opts, n, b)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return p
}

func collect(t *testing.T, stats host.Stats, buf *bytes.Buffer) packResults {
	t.Helper()
	ns, err := notify.ReadAll(buf.String())
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	r := packResults{stats: stats, notifications: ns}
	for _, n := range ns {
		if bc, ok := n.(notify.BundleCreated); ok {
			r.tarLocation = bc.Location
		}
	}
	return r
}

// ignoreBundleDetails drops the fields of bundle-created records that
// depend on the archive bytes.
var ignoreBundleDetails = cmpopts.IgnoreFields(notify.BundleCreated{}, "Location", "Checksum", "Size")

// packEsbuild builds the project in dir with esbuild, bundling index.js into dist/bundle.js.
func packEsbuild(t *testing.T, dir string) packResults {
	t.Helper()
	var buf bytes.Buffer
	p := newTestPlugin(t, Options{Homepage: "index.html"}, &buf)
	c, err := host.NewEsbuild(api.BuildOptions{
		AbsWorkingDir: dir,
		EntryPoints:   []string{"index.js"},
		EntryNames:    "bundle",
		Outdir:        "dist",
		Bundle:        true,
		LogLevel:      api.LogLevelSilent,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Apply(c); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	return collect(t, c.Run(context.Background()), &buf)
}

func TestEsbuildSimpleBuild(t *testing.T) {
	t.Setenv(bundle.SourceDateEnv, "0")
	dir := t.TempDir()
	testutil.WriteFiles(t, dir, map[string]string{
		"package.json": helloPackage,
		"index.html":   "<!DOCTYPE html><html><head></head><body></body></html>",
		"index.js":     "console.log('hello world');",
	})

	r := packEsbuild(t, dir)
	if r.stats.HasErrors() {
		t.Fatalf("build errors: %v", r.stats.Errors())
	}
	want := []notify.Notification{
		notify.Status{State: notify.Started},
		helloMetadata,
		notify.Status{State: notify.Success},
		notify.BundleCreated{},
	}
	if diff := cmp.Diff(want, r.notifications, ignoreBundleDetails); diff != "" {
		t.Errorf("notifications mismatch (-want +got):\n%s", diff)
	}

	entries := testutil.ReadTarGz(t, r.tarLocation)
	wantFiles := []string{"bundle.js", "index.html", "package.json"}
	if diff := cmp.Diff(wantFiles, testutil.Names(entries)); diff != "" {
		t.Errorf("archive mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(entries["bundle.js"].Contents, "hello world") {
		t.Errorf("bundle.js = %q", entries["bundle.js"].Contents)
	}
	srcs, err := testutil.ExtractScriptSrcs([]byte(entries["index.html"].Contents))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"./index.js"}, srcs); diff != "" {
		t.Errorf("script srcs mismatch (-want +got):\n%s", diff)
	}
}

func TestEsbuildBuildWithReadme(t *testing.T) {
	t.Setenv(bundle.SourceDateEnv, "0")
	dir := t.TempDir()
	testutil.WriteFiles(t, dir, map[string]string{
		"package.json": helloPackage,
		"readme.md":    "# build-with-readme\n",
		"index.html":   "<html><head></head><body><script src=\"./bundle.js\"></script></body></html>",
		"index.js":     "console.log('hello world');",
	})

	r := packEsbuild(t, dir)
	if r.stats.HasErrors() {
		t.Fatalf("build errors: %v", r.stats.Errors())
	}
	readme := "<h1 id=\"build-with-readme\">build-with-readme</h1>\n"
	want := []notify.Notification{
		notify.Status{State: notify.Started},
		helloMetadata,
		notify.Status{State: notify.Success},
		notify.BundleCreated{Readme: &readme},
	}
	if diff := cmp.Diff(want, r.notifications, ignoreBundleDetails); diff != "" {
		t.Errorf("notifications mismatch (-want +got):\n%s", diff)
	}

	entries := testutil.ReadTarGz(t, r.tarLocation)
	wantFiles := []string{"bundle.js", "index.html", "package.json", "readme.md"}
	if diff := cmp.Diff(wantFiles, testutil.Names(entries)); diff != "" {
		t.Errorf("archive mismatch (-want +got):\n%s", diff)
	}
	// The homepage loads its own script, so no entry script is added.
	srcs, err := testutil.ExtractScriptSrcs([]byte(entries["index.html"].Contents))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"./bundle.js"}, srcs); diff != "" {
		t.Errorf("script srcs mismatch (-want +got):\n%s", diff)
	}
}

func TestEsbuildInvalidBuild(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFiles(t, dir, map[string]string{
		"package.json": helloPackage,
		"index.html":   "<html><head></head><body></body></html>",
		"index.js":     "import './does-not-exist';",
	})

	r := packEsbuild(t, dir)
	if !r.stats.HasErrors() {
		t.Fatal("expected build errors")
	}
	want := []notify.Notification{
		notify.Status{State: notify.Started},
		notify.Status{State: notify.Error},
	}
	if diff := cmp.Diff(want, r.notifications); diff != "" {
		t.Errorf("notifications mismatch (-want +got):\n%s", diff)
	}
}

func TestStaticPackWithLocales(t *testing.T) {
	t.Setenv(bundle.SourceDateEnv, "0")
	dir := t.TempDir()
	testutil.WriteFiles(t, dir, map[string]string{
		"package.json":    helloPackage,
		"src/index.html":  "<html><head><title>x</title></head><body></body></html>",
		"locales/en.json": `{"hello": "Hello"}`,
		"locales/de.json": `{hello: "Hallo",}`,
		"dist/index.js":   "console.log(1)",
	})

	var buf bytes.Buffer
	p := newTestPlugin(t, Options{Homepage: "src/index.html", Locales: "locales/*.json", Unique: "abc123"}, &buf)
	s, err := host.NewStatic(dir, "dist")
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Apply(s); err != nil {
		t.Fatal(err)
	}
	r := collect(t, s.Run(context.Background()), &buf)
	if r.stats.HasErrors() {
		t.Fatalf("pack errors: %v", r.stats.Errors())
	}

	page, err := os.ReadFile(filepath.Join(dir, "dist", HomepageAsset))
	if err != nil {
		t.Fatal(err)
	}
	scripts, err := testutil.ExtractInlineScripts(page)
	if err != nil {
		t.Fatal(err)
	}
	wantScript := `window.mixerPackageConfig={"name":"hello-world","version":"0.1.0","controls":{},"scenes":{}};window.mixerLocales=["de","en"]`
	if diff := cmp.Diff([]string{wantScript}, scripts); diff != "" {
		t.Errorf("inline scripts mismatch (-want +got):\n%s", diff)
	}
	srcs, err := testutil.ExtractScriptSrcs(page)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"./index.abc123.js"}, srcs); diff != "" {
		t.Errorf("script srcs mismatch (-want +got):\n%s", diff)
	}

	entries := testutil.ReadTarGz(t, r.tarLocation)
	wantFiles := []string{"index.html", "index.js", "package.json"}
	if diff := cmp.Diff(wantFiles, testutil.Names(entries)); diff != "" {
		t.Errorf("archive mismatch (-want +got):\n%s", diff)
	}
}

func TestEmitRecordsDependencies(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFiles(t, dir, map[string]string{
		"package.json":    helloPackage,
		"index.html":      "<html><head></head><body></body></html>",
		"locales/en.json": `{}`,
		"dist/.keep":      "",
	})
	p, err := New(Options{Homepage: "index.html", Locales: "locales/*.json"}, notify.New(&bytes.Buffer{}, false), nil)
	if err != nil {
		t.Fatal(err)
	}
	s, err := host.NewStatic(dir, "dist")
	if err != nil {
		t.Fatal(err)
	}
	var deps []string
	if err := p.Apply(s); err != nil {
		t.Fatal(err)
	}
	s.OnEmit(func(ctx context.Context, c *host.Compilation) error {
		deps = c.FileDependencies()
		return nil
	})
	if stats := s.Run(context.Background()); stats.HasErrors() {
		t.Fatal(stats.Errors())
	}

	root := s.Context()
	want := []string{
		filepath.Join(root, "package.json"),
		filepath.Join(root, "locales", "en.json"),
		filepath.Join(root, "index.html"),
	}
	if diff := cmp.Diff(want, deps); diff != "" {
		t.Errorf("file dependencies mismatch (-want +got):\n%s", diff)
	}
}

func TestInvalidMetadataFailsCompilation(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFiles(t, dir, map[string]string{
		"package.json": `{"name":"Hello World","version":"1"}`,
		"index.html":   "<html><head></head><body></body></html>",
		"dist/.keep":   "",
	})
	var buf bytes.Buffer
	p := newTestPlugin(t, Options{Homepage: "index.html"}, &buf)
	s, err := host.NewStatic(dir, "dist")
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Apply(s); err != nil {
		t.Fatal(err)
	}
	r := collect(t, s.Run(context.Background()), &buf)

	var pe *errs.PluginError
	if len(r.stats.Errors()) != 1 || !errors.As(r.stats.Errors()[0], &pe) {
		t.Fatalf("errors = %v, want one PluginError", r.stats.Errors())
	}
	want := []notify.Notification{
		notify.Status{State: notify.Started},
		notify.Status{State: notify.Error},
	}
	if diff := cmp.Diff(want, r.notifications); diff != "" {
		t.Errorf("notifications mismatch (-want +got):\n%s", diff)
	}
}

func TestMissingHomepageSection(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFiles(t, dir, map[string]string{
		"package.json": helloPackage,
		"index.html":   "<frameset></frameset>",
		"dist/.keep":   "",
	})
	p, err := New(Options{Homepage: "index.html"}, notify.New(&bytes.Buffer{}, false), nil)
	if err != nil {
		t.Fatal(err)
	}
	s, err := host.NewStatic(dir, "dist")
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Apply(s); err != nil {
		t.Fatal(err)
	}
	stats := s.Run(context.Background())
	var pe *errs.PluginError
	if !stats.HasErrors() || !errors.As(stats.Errors()[0], &pe) {
		t.Fatalf("errors = %v, want a PluginError", stats.Errors())
	}
	if _, err := os.Stat(filepath.Join(dir, "dist", HomepageAsset)); !os.IsNotExist(err) {
		t.Errorf("homepage written for a failed compilation: %v", err)
	}
}

func TestApplyWithoutProject(t *testing.T) {
	dir := t.TempDir()
	p, err := New(Options{Homepage: "index.html"}, notify.New(&bytes.Buffer{}, false), nil)
	if err != nil {
		t.Fatal(err)
	}
	s, err := host.NewStatic(dir, ".")
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Apply(s); !errors.Is(err, ErrNoProject) {
		t.Errorf("Apply() error = %v, want ErrNoProject", err)
	}
}

func TestNewRequiresHomepage(t *testing.T) {
	if _, err := New(Options{}, notify.New(&bytes.Buffer{}, false), nil); err == nil {
		t.Error("New() without homepage succeeded")
	}
}
