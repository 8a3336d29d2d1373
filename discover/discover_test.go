package discover

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
)

func touch(t *testing.T, root string, names ...string) {
	t.Helper()
	for _, n := range names {
		p := filepath.Join(root, filepath.FromSlash(n))
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, nil, 0644); err != nil {
			t.Fatalf("write %s: %v", n, err)
		}
	}
}

func TestResourceFiles_Projects(t *testing.T) {
	root := filepath.Join(t.TempDir(), "repo")
	touch(t, root,
		"Shared.properties",
		"app/App.csproj",
		"app/res/Strings.properties",
		"app/res/Strings.de.properties",
		"web/package.json",
		"web/locales/en.yml",
		"web/locales/de.json",
		"web/node_modules/lib/x.yml",
		".github/workflows/ci.yml",
		"docs/readme.md",
	)

	refs, err := ResourceFiles(root, Options{})
	if err != nil {
		t.Fatalf("ResourceFiles: %v", err)
	}
	var got []string
	for _, r := range refs {
		got = append(got, r.Project+":"+r.RelativePath)
	}
	want := []string{
		"repo:Shared.properties",
		"app:res/Strings.de.properties",
		"app:res/Strings.properties",
		"web:locales/de.json",
		"web:locales/en.yml",
	}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("refs = %v, want %v", got, want)
	}
	for _, r := range refs {
		if !filepath.IsAbs(r.Path) {
			t.Fatalf("path %q is not absolute", r.Path)
		}
	}
}

func TestResourceFiles_ExtensionsAndExclude(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "a.properties", "b.yaml", "test/c.properties", "d.PROPERTIES")

	refs, err := ResourceFiles(root, Options{
		Extensions: []string{"properties"},
		Exclude:    regexp.MustCompile(`^test/`),
	})
	if err != nil {
		t.Fatalf("ResourceFiles: %v", err)
	}
	var got []string
	for _, r := range refs {
		got = append(got, r.RelativePath)
	}
	if strings.Join(got, ",") != "a.properties,d.PROPERTIES" {
		t.Fatalf("files = %v", got)
	}
}

func TestResourceFiles_MissingRoot(t *testing.T) {
	refs, err := ResourceFiles(filepath.Join(t.TempDir(), "none"), Options{})
	if err != nil {
		t.Fatalf("ResourceFiles: %v", err)
	}
	if len(refs) != 0 {
		t.Fatalf("refs = %v, want none", refs)
	}
}

func TestSourceFiles(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "main.go", "ui/View.xaml", "ui/View.xaml.cs", "bin/out.cs", "notes.txt")

	files, err := SourceFiles([]string{root, root}, nil)
	if err != nil {
		t.Fatalf("SourceFiles: %v", err)
	}
	if len(files) != 3 {
		t.Fatalf("files = %v, want 3 (deduplicated, bin skipped)", files)
	}
	if got := DescribeFiles(files); got != "1 C#, 1 Go, 1 XAML" {
		t.Fatalf("DescribeFiles = %q", got)
	}

	only, err := SourceFiles([]string{root}, []string{"go"})
	if err != nil {
		t.Fatalf("SourceFiles: %v", err)
	}
	if len(only) != 1 || filepath.Base(only[0]) != "main.go" {
		t.Fatalf("files = %v, want main.go", only)
	}
}
