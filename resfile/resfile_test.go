package resfile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/minios-linux/reskit/culture"
	"github.com/minios-linux/reskit/resource"
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

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestSupported(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"Strings.properties", true},
		{"Strings.de.PROPERTIES", true},
		{"en.yml", true},
		{"messages.yaml", true},
		{"strings.json", true},
		{"strings.ini", false},
		{"README", false},
	}
	for _, tt := range tests {
		if got := Supported(tt.path); got != tt.want {
			t.Errorf("Supported(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestReadWrite_Properties(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Strings.properties")
	writeFile(t, path, "# Generated\n\n# Greets\n#@invariant\nhello=Hello\nbye=Bye\n")

	s := Store{}
	recs, err := s.Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(recs) != 2 || recs[0].Key != "hello" || recs[0].Comment != "Greets" || !recs[0].Invariant {
		t.Fatalf("records = %+v", recs)
	}

	recs[1].Value = "Goodbye"
	if err := s.Write(path, recs); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got := readFile(t, path)
	if !strings.HasPrefix(got, "# Generated\n\n") {
		t.Fatalf("header not kept:\n%s", got)
	}
	if !strings.Contains(got, "bye=Goodbye\n") {
		t.Fatalf("value not written:\n%s", got)
	}
}

func TestReadWrite_YAML(t *testing.T) {
	dir := t.TempDir()
	neutral := filepath.Join(dir, "messages.yml")
	german := filepath.Join(dir, "messages.de.yml")
	writeFile(t, neutral, "en:\n  nav:\n    home: Home\n")
	writeFile(t, german, "de:\n  nav:\n    home: Start\n")

	s := Store{Neutral: culture.MustParse("en")}
	for _, p := range []string{neutral, german} {
		recs, err := s.Read(p)
		if err != nil {
			t.Fatalf("Read(%s): %v", p, err)
		}
		if len(recs) != 1 || recs[0].Key != "nav.home" {
			t.Fatalf("Read(%s) = %+v", p, recs)
		}
	}

	if err := s.Write(german, []resource.Record{{Key: "nav.home", Value: "Startseite"}}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	want := "de:\n    nav:\n        home: Startseite\n"
	if got := readFile(t, german); got != want {
		t.Fatalf("file =\n%s\nwant\n%s", got, want)
	}
}

func TestRead_YAMLGroupIsNotRootKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "menu.fr.yaml")
	writeFile(t, path, "nav:\n  home: Accueil\n")

	recs, err := Store{}.Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(recs) != 1 || recs[0].Key != "nav.home" {
		t.Fatalf("records = %+v, want nav.home", recs)
	}
}

func TestReadWrite_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Strings.de.json")
	writeFile(t, path, `{"_meta": {"comments": {"hello": "Greets"}}, "translations": {"hello": "Hallo"}}`)

	s := Store{Neutral: culture.MustParse("en")}
	recs, err := s.Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(recs) != 1 || recs[0].Key != "hello" || recs[0].Value != "Hallo" || recs[0].Comment != "Greets" {
		t.Fatalf("records = %+v", recs)
	}

	recs = append(recs, resource.Record{Key: "bye", Value: "Tschüss", Invariant: true})
	if err := s.Write(path, recs); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got := readFile(t, path)
	for _, want := range []string{`"name": "Deutsch"`, `"invariant": [`, `"bye": "Tschüss"`} {
		if !strings.Contains(got, want) {
			t.Fatalf("file missing %s:\n%s", want, got)
		}
	}
	back, err := s.Read(path)
	if err != nil {
		t.Fatalf("Read back: %v", err)
	}
	if len(back) != 2 || !back[1].Invariant || back[0].Comment != "Greets" {
		t.Fatalf("read back = %+v", back)
	}
}

func TestUnsupported(t *testing.T) {
	s := Store{}
	if _, err := s.Read("x.ini"); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("Read error = %v, want ErrUnsupported", err)
	}
	if err := s.Write("x.ini", nil); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("Write error = %v, want ErrUnsupported", err)
	}
}

func TestRead_MissingFile(t *testing.T) {
	_, err := Store{}.Read(filepath.Join(t.TempDir(), "gone.properties"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("error = %v, want os.ErrNotExist", err)
	}
}

// The manager creates a missing culture file through the store and then
// writes the edited value into it.
func TestManager_CreatesCultureFile(t *testing.T) {
	contents := map[string]string{
		".properties": "Hello=Hello\n",
		".yaml":       "Hello: Hello\n",
		".json":       `{"Hello": "Hello"}`,
	}
	for ext, content := range contents {
		t.Run(ext, func(t *testing.T) {
			dir := t.TempDir()
			neutral := filepath.Join(dir, "Greetings"+ext)
			writeFile(t, neutral, content)
			before := readFile(t, neutral)

			m := resource.NewManager(Store{}, resource.Options{Root: dir})
			refs := []resource.FileRef{{Path: neutral, Project: "app", RelativePath: "Greetings" + ext}}
			if _, err := m.Reload(context.Background(), refs); err != nil {
				t.Fatalf("Reload: %v", err)
			}
			e, err := m.FindEntity("app", "Greetings")
			if err != nil {
				t.Fatalf("FindEntity: %v", err)
			}
			de := culture.MustParse("de")
			if !m.CanEdit(e, de) {
				t.Fatal("CanEdit(de) = false")
			}
			entry, ok := e.Entry("Hello")
			if !ok {
				t.Fatal("entry Hello missing")
			}
			if err := entry.SetValue(de, "Hallo"); err != nil {
				t.Fatalf("SetValue: %v", err)
			}
			res, err := m.Save(context.Background())
			if err != nil {
				t.Fatalf("Save: %v", err)
			}
			if len(res.Saved) != 1 {
				t.Fatalf("saved %v, want one file", res.Saved)
			}

			recs, err := Store{}.Read(resource.LanguageFileName(neutral, de))
			if err != nil {
				t.Fatalf("Read de: %v", err)
			}
			if len(recs) != 1 || recs[0].Key != "Hello" || recs[0].Value != "Hallo" {
				t.Fatalf("de records = %+v", recs)
			}
			if got := readFile(t, neutral); got != before {
				t.Fatalf("neutral file changed:\n%s", got)
			}
		})
	}
}
