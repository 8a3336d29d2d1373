package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/minios-linux/reskit/resource"
	"github.com/minios-linux/reskit/table"
)

func TestLoad_MissingFileGivesDefaults(t *testing.T) {
	f, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if f.Neutral().Name() != "en" {
		t.Fatalf("neutral = %q, want en", f.Neutral())
	}
	if f.DuplicatePolicy() != resource.DuplicateKeyReject {
		t.Fatalf("duplicate policy = %q, want reject", f.DuplicatePolicy())
	}
	if f.Mode() != table.SingleSheet {
		t.Fatalf("mode = %v, want single", f.Mode())
	}
	if f.Log.Level != "warn" || f.Log.Format != "text" {
		t.Fatalf("log = %+v", f.Log)
	}
	if f.ExcludePattern() != nil {
		t.Fatal("unexpected exclusion filter")
	}
	if got := f.SourcePaths("/src"); !reflect.DeepEqual(got, []string{filepath.Join("/src", ".")}) {
		t.Fatalf("SourcePaths = %v", got)
	}
}

func TestLoad_FullFile(t *testing.T) {
	dir := t.TempDir()
	data := `neutral_culture: de
save_immediately: true
duplicate_keys: rename
remove_empty_entries: true
export_mode: per-entity
rules: [Markup, StringFormat]
extensions: [.properties]
exclude: ^test/
source_dirs: [src, /abs/lib]
references:
  workers: 2
  source_extensions: [.cs]
  patterns:
    - expression: Resources.$File.$Key
    - expression: 'T\("$Key"\)'
      regexp: true
      extensions: [.go]
log:
  level: debug
  format: json
`
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	f, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	opts := f.ManagerOptions(dir)
	if opts.NeutralCulture.Name() != "de" || opts.Root != dir || !opts.SaveImmediately || !opts.RemoveEmptyEntries {
		t.Fatalf("manager options = %+v", opts)
	}
	if opts.DuplicateKeys != resource.DuplicateKeyRename {
		t.Fatalf("duplicate keys = %q, want rename", opts.DuplicateKeys)
	}
	if f.Mode() != table.SheetPerEntity {
		t.Fatalf("mode = %v, want per-entity", f.Mode())
	}
	if !f.ExcludePattern().MatchString("test/a.properties") {
		t.Fatal("exclusion filter does not match")
	}
	tc := f.TrackerConfig()
	if tc.Workers != 2 || len(tc.Patterns) != 2 || !tc.Patterns[1].Regexp {
		t.Fatalf("tracker config = %+v", tc)
	}
	want := []string{filepath.Join(dir, "src"), "/abs/lib"}
	if got := f.SourcePaths(dir); !reflect.DeepEqual(got, want) {
		t.Fatalf("SourcePaths = %v, want %v", got, want)
	}
}

func TestParse_Validation(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"bad culture", "neutral_culture: 'en us'\n", "neutral_culture"},
		{"bad policy", "duplicate_keys: merge\n", "duplicate_keys"},
		{"bad mode", "export_mode: pages\n", "export_mode"},
		{"bad exclude", "exclude: '('\n", "exclude"},
		{"unknown rule", "rules: [Spelling]\n", "rules"},
		{"bad pattern", "references:\n  patterns:\n    - expression: nokey\n", "references"},
		{"negative workers", "references:\n  workers: -1\n", "references"},
		{"bad level", "log:\n  level: loud\n", "log level"},
		{"bad format", "log:\n  format: xml\n", "log format"},
		{"unknown field", "colour: blue\n", "parsing"},
		{"malformed", "rules: [\n", "parsing"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(".reskit.yaml", []byte(tt.data))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) || !strings.Contains(err.Error(), ".reskit.yaml") {
				t.Fatalf("error = %v, want mention of %q and the file", err, tt.want)
			}
		})
	}
}

func TestParse_Empty(t *testing.T) {
	f, err := Parse(FileName, nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if f.Neutral().Name() != "en" {
		t.Fatalf("neutral = %q, want en", f.Neutral())
	}
}
