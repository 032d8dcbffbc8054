package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/dnswlt/miixkit/internal/bundle"
	"github.com/dnswlt/miixkit/internal/config"
	"github.com/dnswlt/miixkit/internal/gitinfo"
	"github.com/dnswlt/miixkit/internal/host"
	"github.com/dnswlt/miixkit/internal/manifest"
	"github.com/dnswlt/miixkit/internal/notify"
	"github.com/dnswlt/miixkit/internal/plugin"
	"github.com/dnswlt/miixkit/internal/store"
	"github.com/evanw/esbuild/pkg/api"
	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v3"
)

var (
	// Version is the application version.
	// It is set at build time via -ldflags "-X main.Version=...".
	Version = "dev"
)

// Options contains program options that can be set via command-line flags or environment variables.
type Options struct {
	ProjectDir string
	ConfigFile string
	Homepage   string
	Locales    string
	Unique     string
	UIHosted   bool
	PlzBundle  bool
	// build only
	Entry      string
	OutputName string
	Minify     bool
	Sourcemap  bool
	// build and pack
	OutDir string
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "build":
		runBuild(os.Args[2:])
	case "pack":
		runPack(os.Args[2:])
	case "list":
		runList(os.Args[2:])
	case "status":
		runStatus(os.Args[2:])
	case "version":
		fmt.Println(Version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q.\n", os.Args[1])
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: miix <command> [flags]")
	fmt.Fprintln(os.Stderr, "Available commands: build, pack, list, status, version")
}

func newFlagSet(name string, opts *Options, build bool) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.StringVar(&opts.ProjectDir, "project", ".", "Project directory (any directory below the package.json works)")
	fs.StringVar(&opts.ConfigFile, "config", config.DefaultFile, "Path to the configuration YAML file, relative to the project directory")
	fs.StringVar(&opts.Homepage, "homepage", "", "HTML page to serve content from (default from config, else index.html)")
	fs.StringVar(&opts.Locales, "locales", "", "Glob for the locale files, e.g. locales/*.json")
	fs.StringVar(&opts.Unique, "unique", "", "Name component of the entry script (index.<unique>.js); may be a Go template")
	fs.BoolVar(&opts.UIHosted, "ui-hosted", false, "Print status records for the hosting developer UI to stderr")
	fs.BoolVar(&opts.PlzBundle, "plz-bundle", false, "Package the output into a tarball after each successful build")
	fs.StringVar(&opts.OutDir, "outdir", "", "Output directory, relative to the project directory (default from config, else dist)")
	if build {
		fs.StringVar(&opts.Entry, "entry", "", "Entry point of the bundle (default from config, else index.js)")
		fs.StringVar(&opts.OutputName, "outfile-name", "", "esbuild entry name template for the bundled script")
		fs.BoolVar(&opts.Minify, "minify", false, "Minify the bundle")
		fs.BoolVar(&opts.Sourcemap, "sourcemap", false, "Emit linked source maps")
	}
	return fs
}

// parseOptions parses args twice: once to find the project directory, whose
// .env file is then loaded without overriding the environment, and once
// more so that the .env values are picked up as MIIX_* variables.
// Options not set by flags or environment fall back to the config file.
func parseOptions(name string, args []string, build bool) (Options, *config.Bundle) {
	var probe Options
	if err := ff.Parse(newFlagSet(name, &probe, build), args, ff.WithEnvVarPrefix("MIIX")); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		os.Exit(1)
	}
	projectPath, ok := manifest.ProjectPath(probe.ProjectDir)
	if !ok {
		log.Fatalf("%v", plugin.ErrNoProject)
	}
	envFile := filepath.Join(projectPath, ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("Could not load %s: %v", envFile, err)
	}

	var opts Options
	fs := newFlagSet(name, &opts, build)
	if err := ff.Parse(fs, args, ff.WithEnvVarPrefix("MIIX")); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		os.Exit(1)
	}
	opts.ProjectDir = projectPath

	setFlags := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })

	cfg, err := config.Load(store.NewDiskStore(projectPath), opts.ConfigFile, !setFlags["config"])
	if err != nil {
		log.Fatalf("Could not load config: %v", err)
	}
	if setFlags["homepage"] {
		cfg.Plugin.Homepage = opts.Homepage
	}
	if setFlags["locales"] {
		cfg.Plugin.Locales = opts.Locales
	}
	if setFlags["unique"] {
		if err := cfg.Plugin.SetUnique(opts.Unique); err != nil {
			log.Fatalf("Invalid -unique: %v", err)
		}
	}
	if setFlags["outdir"] {
		cfg.Build.OutDir = opts.OutDir
	}
	if setFlags["entry"] {
		cfg.Build.Entry = opts.Entry
	}
	if setFlags["outfile-name"] {
		cfg.Build.OutputName = opts.OutputName
	}
	if setFlags["minify"] {
		cfg.Build.Minify = opts.Minify
	}
	if setFlags["sourcemap"] {
		cfg.Build.Sourcemap = opts.Sourcemap
	}
	log.Printf("Using project %s with config %+v", projectPath, *cfg)
	return opts, cfg
}

// uniqueName evaluates the configured unique template for the project.
func uniqueName(projectPath string, cfg *config.PluginConfig) (string, error) {
	data := config.UniqueData{}
	if pkg, err := manifest.MustLoad(projectPath); err == nil {
		data.Name, _ = pkg["name"].(string)
		data.Version, _ = pkg["version"].(string)
	}
	head, err := gitinfo.ReadHead(projectPath)
	if err == nil {
		data.Commit = head.Hash.String()[:7]
	} else if !errors.Is(err, gitinfo.ErrNoRepository) && !errors.Is(err, gitinfo.ErrNoCommits) {
		log.Printf("Could not read git HEAD: %v", err)
	}
	return cfg.RenderUnique(data)
}

func newPlugin(opts Options, cfg *config.Bundle) (*plugin.Plugin, string) {
	unique, err := uniqueName(opts.ProjectDir, &cfg.Plugin)
	if err != nil {
		log.Fatalf("Could not determine unique name: %v", err)
	}
	n := notify.New(os.Stderr, opts.UIHosted)
	b := bundle.NewEmitter(n, opts.PlzBundle)
	p, err := plugin.New(plugin.Options{
		Homepage: cfg.Plugin.Homepage,
		Locales:  cfg.Plugin.Locales,
		Unique:   unique,
	}, n, b)
	if err != nil {
		log.Fatalf("Could not create plugin: %v", err)
	}
	return p, unique
}

func runBuild(args []string) {
	opts, cfg := parseOptions("miix build", args, true)
	p, unique := newPlugin(opts, cfg)

	entryNames := cfg.Build.OutputName
	if entryNames == "" {
		entryNames = "index"
		if unique != "" {
			entryNames = "index." + unique
		}
	}
	buildOpts := api.BuildOptions{
		AbsWorkingDir:     opts.ProjectDir,
		EntryPoints:       []string{cfg.Build.Entry},
		EntryNames:        entryNames,
		Outdir:            cfg.Build.OutDir,
		Bundle:            true,
		MinifyWhitespace:  cfg.Build.Minify,
		MinifyIdentifiers: cfg.Build.Minify,
		MinifySyntax:      cfg.Build.Minify,
		LogLevel:          api.LogLevelWarning,
	}
	if cfg.Build.Sourcemap {
		buildOpts.Sourcemap = api.SourceMapLinked
	}
	c, err := host.NewEsbuild(buildOpts)
	if err != nil {
		log.Fatalf("Could not set up esbuild: %v", err)
	}
	if err := p.Apply(c); err != nil {
		log.Fatalf("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	exitOnErrors(c.Run(ctx))
	log.Printf("Build finished: %s", c.OutputPath())
}

func runPack(args []string) {
	opts, cfg := parseOptions("miix pack", args, false)
	p, _ := newPlugin(opts, cfg)

	c, err := host.NewStatic(opts.ProjectDir, cfg.Build.OutDir)
	if err != nil {
		log.Fatalf("Could not set up output directory: %v", err)
	}
	if err := p.Apply(c); err != nil {
		log.Fatalf("%v", err)
	}
	exitOnErrors(c.Run(context.Background()))
	log.Printf("Packed %s", c.OutputPath())
}

func exitOnErrors(stats host.Stats) {
	if !stats.HasErrors() {
		return
	}
	for _, err := range stats.Errors() {
		log.Printf("Error: %v", err)
	}
	os.Exit(1)
}

func runList(args []string) {
	fs := flag.NewFlagSet("miix list", flag.ExitOnError)
	checksum := fs.String("sha256", "", "Expected SHA-256 checksum of the archive")
	if err := ff.Parse(fs, args, ff.WithEnvVarPrefix("MIIX")); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		os.Exit(1)
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: miix list [-sha256 <checksum>] <archive>")
		os.Exit(1)
	}
	archive := fs.Arg(0)
	if *checksum != "" {
		if err := bundle.Verify(archive, *checksum); err != nil {
			log.Fatalf("%v", err)
		}
	}
	names, err := bundle.List(archive)
	if err != nil {
		log.Fatalf("Could not read archive: %v", err)
	}
	for _, n := range names {
		fmt.Println(n)
	}
}

// runStatus reads build output (typically the stderr of "miix build") and
// prints one line per status record.
func runStatus(args []string) {
	fs := flag.NewFlagSet("miix status", flag.ExitOnError)
	if err := ff.Parse(fs, args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		os.Exit(1)
	}
	var r io.Reader = os.Stdin
	if fs.NArg() == 1 {
		f, err := os.Open(fs.Arg(0))
		if err != nil {
			log.Fatalf("%v", err)
		}
		defer f.Close()
		r = f
	}
	if err := printStatus(os.Stdout, r); err != nil {
		log.Fatalf("%v", err)
	}
}

func printStatus(w io.Writer, r io.Reader) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for sc.Scan() {
		n, err := notify.Read(sc.Text())
		if err != nil {
			return err
		}
		if n == nil {
			continue
		}
		fmt.Fprintln(w, describe(n))
	}
	return sc.Err()
}

func describe(n notify.Notification) string {
	switch n := n.(type) {
	case notify.Status:
		return "status: " + n.State.String()
	case notify.Metadata:
		if n.Metadata == nil {
			return "metadata: <none>"
		}
		return fmt.Sprintf("metadata: %s@%s", n.Metadata.Name, n.Metadata.Version)
	case notify.BundleCreated:
		var sb strings.Builder
		fmt.Fprintf(&sb, "bundle-created: %s (%d bytes, sha256 %s)", n.Location, n.Size, n.Checksum)
		if n.Readme != nil {
			sb.WriteString(" with readme")
		}
		return sb.String()
	case notify.BundleFailed:
		return "bundle-failed: " + n.Error
	}
	return string(n.Kind())
}
