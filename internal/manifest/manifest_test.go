package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

// newProject creates
//
//	<root>/package.json
//	<root>/readme.md
//	<root>/src/nested/
//	<root>/custom-readme/package.json (readmeFile: manual.md)
//	<root>/custom-readme/manual.md
func newProject(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "package.json"), `{"name": "hello-world", "version": "0.1.0"}`)
	writeFile(t, filepath.Join(root, "readme.md"), "# hello")
	if err := os.MkdirAll(filepath.Join(root, "src", "nested"), 0755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(root, "custom-readme", "package.json"), `{"name": "custom", "readmeFile": "manual.md"}`)
	writeFile(t, filepath.Join(root, "custom-readme", "manual.md"), "# manual")
	return root
}

func TestFindPackageJSON(t *testing.T) {
	root := newProject(t)

	got, ok := FindPackageJSON(filepath.Join(root, "src", "nested"))
	if !ok || got != filepath.Join(root, "package.json") {
		t.Errorf("FindPackageJSON(nested) = %q, %v", got, ok)
	}

	got, ok = FindPackageJSON(filepath.Join(root, "custom-readme"))
	if !ok || got != filepath.Join(root, "custom-readme", "package.json") {
		t.Errorf("FindPackageJSON(custom-readme) = %q, %v", got, ok)
	}

	if got, ok := FindPackageJSON(t.TempDir()); ok {
		// Only fails if some ancestor of the temp dir has a package.json.
		if _, err := os.Stat(got); err != nil {
			t.Errorf("FindPackageJSON(empty) = %q, which does not exist", got)
		}
	}
}

func TestProjectPath(t *testing.T) {
	root := newProject(t)
	got, ok := ProjectPath(filepath.Join(root, "src"))
	if !ok || got != root {
		t.Errorf("ProjectPath(src) = %q, %v, want %q", got, ok, root)
	}
}

func TestMustLoad(t *testing.T) {
	root := newProject(t)

	pkg, err := MustLoad(filepath.Join(root, "src"))
	if err != nil {
		t.Fatalf("MustLoad() error = %v", err)
	}
	if pkg["name"] != "hello-world" {
		t.Errorf("pkg[name] = %v, want hello-world", pkg["name"])
	}

	bad := t.TempDir()
	writeFile(t, filepath.Join(bad, "package.json"), `{"name": `)
	if _, err := MustLoad(bad); err == nil {
		t.Error("MustLoad(invalid JSON) succeeded")
	}

	arr := t.TempDir()
	writeFile(t, filepath.Join(arr, "package.json"), `null`)
	if _, err := MustLoad(arr); err == nil {
		t.Error("MustLoad(null) succeeded")
	}
}

func TestMustLoadNotFound(t *testing.T) {
	dir := t.TempDir()
	if _, ok := FindPackageJSON(dir); ok {
		t.Skip("an ancestor of the temp dir contains a package.json")
	}
	_, err := MustLoad(dir)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("MustLoad() error = %v, want ErrNotFound", err)
	}
}

func TestFindReadme(t *testing.T) {
	root := newProject(t)

	if got, ok := FindReadme(root); !ok || got != filepath.Join(root, "readme.md") {
		t.Errorf("FindReadme(root) = %q, %v", got, ok)
	}
	custom := filepath.Join(root, "custom-readme")
	if got, ok := FindReadme(custom); !ok || got != filepath.Join(custom, "manual.md") {
		t.Errorf("FindReadme(custom-readme) = %q, %v", got, ok)
	}

	upper := t.TempDir()
	writeFile(t, filepath.Join(upper, "README"), "plain")
	if got, ok := FindReadme(upper); !ok || got != filepath.Join(upper, "README") {
		t.Errorf("FindReadme(upper) = %q, %v", got, ok)
	}
}

func TestFindReadmeMissing(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "package.json"), `{"name": "x", "readmeFile": "gone.md"}`)
	if got, ok := FindReadme(dir); ok {
		t.Errorf("FindReadme() = %q, want none", got)
	}
}

func TestCopy(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.json")
	dst := filepath.Join(dir, "dst.json")
	writeFile(t, src, `{"a":1}`)
	writeFile(t, dst, `old content that is longer`)

	if err := Copy(src, dst); err != nil {
		t.Fatalf("Copy() error = %v", err)
	}
	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != `{"a":1}` {
		t.Errorf("dst = %q", got)
	}

	if err := Copy(filepath.Join(dir, "missing"), dst); err == nil {
		t.Error("Copy(missing) succeeded")
	}
}
