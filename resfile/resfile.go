// Package resfile is the file system resource.Store. It picks a codec by
// file extension: Java .properties files, nested YAML maps or JSON
// objects.
package resfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/minios-linux/reskit/culture"
	"github.com/minios-linux/reskit/jsonfile"
	"github.com/minios-linux/reskit/propfile"
	"github.com/minios-linux/reskit/resource"
	"github.com/minios-linux/reskit/yamlfile"
)

// ErrUnsupported is returned for paths whose extension has no codec.
var ErrUnsupported = errors.New("unsupported resource file type")

// Extensions lists the file extensions handled by Store.
var Extensions = []string{".properties", ".yaml", ".yml", ".json"}

// Supported reports whether path has a known resource extension.
func Supported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range Extensions {
		if e == ext {
			return true
		}
	}
	return false
}

// Store reads and writes resource files on disk.
type Store struct {
	// Neutral is the culture of neutral files. YAML neutral files may use
	// it as their Rails root key.
	Neutral culture.Key
}

var _ resource.Store = Store{}

// Read returns the records of path in file order.
func (s Store) Read(path string) ([]resource.Record, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".properties":
		f, err := propfile.ParseFile(path)
		if err != nil {
			return nil, err
		}
		return fromProp(f.Entries()), nil
	case ".yaml", ".yml":
		f, err := s.readYAML(path)
		if err != nil {
			return nil, err
		}
		return fromYAML(f.Entries()), nil
	case ".json":
		f, err := jsonfile.ParseFile(path)
		if err != nil {
			return nil, err
		}
		return fromJSON(f.Entries()), nil
	default:
		return nil, fmt.Errorf("%s: %w", path, ErrUnsupported)
	}
}

// Write replaces the contents of path with records. The header of an
// existing .properties file and the root key of an existing YAML file are
// kept. JSON files get the language name and flag in their _meta block.
func (s Store) Write(path string, records []resource.Record) error {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".properties":
		f := propfile.New(toProp(records))
		if old, err := propfile.ParseFile(path); err == nil {
			f.Header = old.Header
		}
		return f.WriteFile(path)
	case ".yaml", ".yml":
		f := yamlfile.New(toYAML(records))
		if old, err := s.readYAML(path); err == nil {
			f.RootKey = old.RootKey
		}
		return f.WriteFile(path)
	case ".json":
		f := jsonfile.New(toJSON(records))
		f.Name, f.Flag = s.language(path)
		return f.WriteFile(path)
	default:
		return fmt.Errorf("%s: %w", path, ErrUnsupported)
	}
}

// culture returns the culture of path, with neutral files mapped to
// s.Neutral.
func (s Store) culture(path string) culture.Key {
	_, k, _ := resource.SplitFileName(filepath.Base(path))
	if k.IsNeutral() {
		k = s.Neutral
	}
	return k
}

func (s Store) language(path string) (name, flag string) {
	k := s.culture(path)
	if k.IsNeutral() {
		return "", ""
	}
	return k.DisplayName(), k.Flag()
}

func (s Store) readYAML(path string) (*yamlfile.File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	f, err := yamlfile.ParseLocale(data, s.culture(path).Name())
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return f, nil
}

// ---------------------------------------------------------------------------
// Conversion
// ---------------------------------------------------------------------------

func fromProp(entries []propfile.Entry) []resource.Record {
	recs := make([]resource.Record, len(entries))
	for i, e := range entries {
		recs[i] = resource.Record{
			Key:           e.Key,
			Value:         e.Value,
			Comment:       e.Comment,
			Invariant:     e.Invariant,
			DisabledRules: e.DisabledRules,
		}
	}
	return recs
}

func toProp(recs []resource.Record) []propfile.Entry {
	entries := make([]propfile.Entry, len(recs))
	for i, r := range recs {
		entries[i] = propfile.Entry{
			Key:           r.Key,
			Value:         r.Value,
			Comment:       r.Comment,
			Invariant:     r.Invariant,
			DisabledRules: r.DisabledRules,
		}
	}
	return entries
}

func fromYAML(entries []yamlfile.Entry) []resource.Record {
	recs := make([]resource.Record, len(entries))
	for i, e := range entries {
		recs[i] = resource.Record{
			Key:           e.Path,
			Value:         e.Value,
			Comment:       e.Comment,
			Invariant:     e.Invariant,
			DisabledRules: e.DisabledRules,
		}
	}
	return recs
}

func toYAML(recs []resource.Record) []yamlfile.Entry {
	entries := make([]yamlfile.Entry, len(recs))
	for i, r := range recs {
		entries[i] = yamlfile.Entry{
			Path:          r.Key,
			Value:         r.Value,
			Comment:       r.Comment,
			Invariant:     r.Invariant,
			DisabledRules: r.DisabledRules,
		}
	}
	return entries
}

func fromJSON(entries []jsonfile.Entry) []resource.Record {
	recs := make([]resource.Record, len(entries))
	for i, e := range entries {
		recs[i] = resource.Record{
			Key:           e.Key,
			Value:         e.Value,
			Comment:       e.Comment,
			Invariant:     e.Invariant,
			DisabledRules: e.DisabledRules,
		}
	}
	return recs
}

func toJSON(recs []resource.Record) []jsonfile.Entry {
	entries := make([]jsonfile.Entry, len(recs))
	for i, r := range recs {
		entries[i] = jsonfile.Entry{
			Key:           r.Key,
			Value:         r.Value,
			Comment:       r.Comment,
			Invariant:     r.Invariant,
			DisabledRules: r.DisabledRules,
		}
	}
	return entries
}
