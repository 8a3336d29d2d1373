// Package jsonfile implements reading and writing of JSON resource files.
//
// The written format is:
//
//	{
//	    "_meta": {
//	        "name": "Deutsch",
//	        "flag": "🇩🇪",
//	        "comments": { "greeting": "Shown on the start page" },
//	        "invariant": [ "brand" ],
//	        "disabled_rules": { "greeting": [ "Markup" ] }
//	    },
//	    "translations": {
//	        "greeting": "Hallo",
//	        "brand": "ACME"
//	    }
//	}
//
// A plain object without "translations" is read as well; nested objects
// become dot-joined keys ("nav.home") and non-string values are skipped.
// Key order and duplicate keys are preserved on read.
package jsonfile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
)

// Meta holds the _meta object.
type Meta struct {
	Name          string              `json:"name,omitempty"`
	Flag          string              `json:"flag,omitempty"`
	Comments      map[string]string   `json:"comments,omitempty"`
	Invariant     []string            `json:"invariant,omitempty"`
	DisabledRules map[string][]string `json:"disabled_rules,omitempty"`
}

// Entry is one key of the file.
type Entry struct {
	Key           string
	Value         string
	Comment       string
	Invariant     bool
	DisabledRules []string
}

// File represents a parsed JSON resource file.
type File struct {
	// Name and Flag describe the language for human readers.
	Name string
	Flag string

	entries []Entry
}

// New returns a file holding entries.
func New(entries []Entry) *File {
	return &File{entries: append([]Entry(nil), entries...)}
}

// ---------------------------------------------------------------------------
// Parsing
// ---------------------------------------------------------------------------

// ParseFile reads and parses a JSON resource file.
func ParseFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return f, nil
}

// Parse parses JSON data. Empty input is an empty file.
func Parse(data []byte) (*File, error) {
	f := &File{}
	if len(bytes.TrimSpace(data)) == 0 {
		return f, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}

	var meta Meta
	for dec.More() {
		key, err := readKey(dec)
		if err != nil {
			return nil, err
		}
		switch key {
		case "_meta":
			if err := dec.Decode(&meta); err != nil {
				return nil, fmt.Errorf("parsing _meta: %w", err)
			}
			continue
		case "translations":
			t, err := dec.Token()
			if err != nil {
				return nil, err
			}
			if d, ok := t.(json.Delim); ok && d == '{' {
				if err := f.readObject(dec, ""); err != nil {
					return nil, err
				}
				continue
			}
			if err := f.readValue(dec, t, key); err != nil {
				return nil, err
			}
			continue
		}
		t, err := dec.Token()
		if err != nil {
			return nil, err
		}
		if err := f.readValue(dec, t, key); err != nil {
			return nil, err
		}
	}
	if err := expectDelim(dec, '}'); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("unexpected data after the top-level object")
	}

	f.Name, f.Flag = meta.Name, meta.Flag
	invariant := make(map[string]bool, len(meta.Invariant))
	for _, k := range meta.Invariant {
		invariant[k] = true
	}
	for i := range f.entries {
		e := &f.entries[i]
		e.Comment = meta.Comments[e.Key]
		e.Invariant = invariant[e.Key]
		e.DisabledRules = meta.DisabledRules[e.Key]
	}
	return f, nil
}

// readObject reads the members of an object whose '{' was consumed.
func (f *File) readObject(dec *json.Decoder, prefix string) error {
	for dec.More() {
		key, err := readKey(dec)
		if err != nil {
			return err
		}
		if prefix != "" {
			key = prefix + "." + key
		}
		t, err := dec.Token()
		if err != nil {
			return err
		}
		if err := f.readValue(dec, t, key); err != nil {
			return err
		}
	}
	return expectDelim(dec, '}')
}

// readValue handles the value starting with token t.
func (f *File) readValue(dec *json.Decoder, t json.Token, key string) error {
	switch v := t.(type) {
	case string:
		f.entries = append(f.entries, Entry{Key: key, Value: v})
		return nil
	case json.Delim:
		if v == '{' {
			return f.readObject(dec, key)
		}
		return skipArray(dec)
	}
	return nil // numbers, booleans, null
}

func skipArray(dec *json.Decoder) error {
	for depth := 1; depth > 0; {
		t, err := dec.Token()
		if err != nil {
			return err
		}
		if d, ok := t.(json.Delim); ok {
			switch d {
			case '[', '{':
				depth++
			case ']', '}':
				depth--
			}
		}
	}
	return nil
}

func readKey(dec *json.Decoder) (string, error) {
	t, err := dec.Token()
	if err != nil {
		return "", err
	}
	key, ok := t.(string)
	if !ok {
		return "", fmt.Errorf("expected string key, got %v", t)
	}
	return key, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	t, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := t.(json.Delim); !ok || d != want {
		return fmt.Errorf("expected %v, got %v", want, t)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Querying
// ---------------------------------------------------------------------------

// Entries returns all entries in file order.
func (f *File) Entries() []Entry {
	return append([]Entry(nil), f.entries...)
}

// Keys returns the keys in file order.
func (f *File) Keys() []string {
	keys := make([]string, len(f.entries))
	for i, e := range f.entries {
		keys[i] = e.Key
	}
	return keys
}

// Get returns the value of the first occurrence of key.
func (f *File) Get(key string) (string, bool) {
	for _, e := range f.entries {
		if e.Key == key {
			return e.Value, true
		}
	}
	return "", false
}

// Stats returns (total, translated, untranslated) counts.
func (f *File) Stats() (total, translated, untranslated int) {
	total = len(f.entries)
	for _, e := range f.entries {
		if e.Value != "" {
			translated++
		} else {
			untranslated++
		}
	}
	return
}

// ---------------------------------------------------------------------------
// Writing
// ---------------------------------------------------------------------------

func (f *File) meta() Meta {
	m := Meta{Name: f.Name, Flag: f.Flag}
	for _, e := range f.entries {
		if e.Comment != "" {
			if m.Comments == nil {
				m.Comments = make(map[string]string)
			}
			m.Comments[e.Key] = e.Comment
		}
		if e.Invariant {
			m.Invariant = append(m.Invariant, e.Key)
		}
		if len(e.DisabledRules) > 0 {
			if m.DisabledRules == nil {
				m.DisabledRules = make(map[string][]string)
			}
			m.DisabledRules[e.Key] = e.DisabledRules
		}
	}
	sort.Strings(m.Invariant)
	return m
}

func (m Meta) empty() bool {
	return m.Name == "" && m.Flag == "" && len(m.Comments) == 0 && len(m.Invariant) == 0 && len(m.DisabledRules) == 0
}

// Marshal produces the JSON output with 4-space indentation, preserving
// the entry order.
func (f *File) Marshal() ([]byte, error) {
	var b bytes.Buffer
	b.WriteString("{\n")

	if m := f.meta(); !m.empty() {
		data, err := marshalIndent(m, "    ")
		if err != nil {
			return nil, err
		}
		b.WriteString("    \"_meta\": ")
		b.Write(data)
		b.WriteString(",\n")
	}

	b.WriteString("    \"translations\": {")
	for i, e := range f.entries {
		if i > 0 {
			b.WriteByte(',')
		}
		k, err := marshalIndent(e.Key, "")
		if err != nil {
			return nil, err
		}
		v, err := marshalIndent(e.Value, "")
		if err != nil {
			return nil, err
		}
		b.WriteString("\n        ")
		b.Write(k)
		b.WriteString(": ")
		b.Write(v)
	}
	if len(f.entries) > 0 {
		b.WriteString("\n    ")
	}
	b.WriteString("}\n}\n")
	return b.Bytes(), nil
}

// marshalIndent encodes v without HTML escaping.
func marshalIndent(v any, prefix string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent(prefix, "    ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// WriteFile writes the file to disk, creating parent directories.
func (f *File) WriteFile(path string) error {
	data, err := f.Marshal()
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
