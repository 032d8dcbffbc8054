package testutil

import (
	"archive/tar"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"golang.org/x/net/html"
)

// WriteFiles creates the given files (slash-separated paths relative to dir)
// with their contents, creating parent directories as needed.
func WriteFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, contents := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatalf("Failed to create dir for %s: %v", name, err)
		}
		if err := os.WriteFile(p, []byte(contents), 0644); err != nil {
			t.Fatalf("Failed to write %s: %v", name, err)
		}
	}
}

// ExtractScriptSrcs returns the src attributes of all <script> elements, in document order.
func ExtractScriptSrcs(doc []byte) ([]string, error) {
	z := html.NewTokenizer(bytes.NewReader(doc))
	var srcs []string
	for {
		switch z.Next() {
		case html.ErrorToken:
			if z.Err() == io.EOF {
				return srcs, nil
			}
			return nil, z.Err()
		case html.StartTagToken:
			tok := z.Token()
			if tok.Data != "script" {
				continue
			}
			for _, a := range tok.Attr {
				if a.Key == "src" {
					srcs = append(srcs, a.Val)
				}
			}
		}
	}
}

// ExtractInlineScripts returns the text of all <script> elements without a src.
func ExtractInlineScripts(doc []byte) ([]string, error) {
	z := html.NewTokenizer(bytes.NewReader(doc))
	var scripts []string
	inScript := false
	for {
		switch z.Next() {
		case html.ErrorToken:
			if z.Err() == io.EOF {
				return scripts, nil
			}
			return nil, z.Err()
		case html.StartTagToken:
			tok := z.Token()
			inScript = tok.Data == "script"
			for _, a := range tok.Attr {
				if a.Key == "src" {
					inScript = false
				}
			}
		case html.TextToken:
			if inScript {
				scripts = append(scripts, strings.TrimSpace(string(z.Text())))
			}
		case html.EndTagToken:
			inScript = false
		}
	}
}

// TarEntry is one entry of an archive read by ReadTarGz.
type TarEntry struct {
	Header   *tar.Header
	Contents string
}

// ReadTarGz returns the entries of the gzip-compressed tar file at path, keyed by name.
func ReadTarGz(t *testing.T, path string) map[string]TarEntry {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Failed to open archive: %v", err)
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("Failed to read gzip stream: %v", err)
	}
	defer gz.Close()

	entries := make(map[string]TarEntry)
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Failed to read archive entry: %v", err)
		}
		bs, err := io.ReadAll(tr)
		if err != nil {
			t.Fatalf("Failed to read %s: %v", hdr.Name, err)
		}
		entries[hdr.Name] = TarEntry{Header: hdr, Contents: string(bs)}
	}
	return entries
}

// Names returns the sorted keys of entries.
func Names(entries map[string]TarEntry) []string {
	out := make([]string, 0, len(entries))
	for n := range entries {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
