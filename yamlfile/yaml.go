// Package yamlfile implements reading and writing of YAML resource files.
//
// The expected file format is a nested YAML map with string leaf values:
//
//	greeting: Hello
//	nav:
//	  home: Home
//	  about: About
//
// Rails i18n style (locale as the top-level key) is also supported:
//
//	en:
//	  greeting: Hello
//
// Keys are the dot-joined paths of the leaves ("nav.home"). The head comment
// of a key is the entry comment; comment lines starting with '@' carry the
// per-entry flags:
//
//	# Shown in the title bar
//	# @invariant
//	# @disable-rules: Markup
//	brand: ACME
//
// Non-string leaves (numbers, booleans, arrays) are skipped.
package yamlfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	dirInvariant    = "@invariant"
	dirDisableRules = "@disable-rules:"
)

// ---------------------------------------------------------------------------
// File model
// ---------------------------------------------------------------------------

// Entry represents a single translatable leaf value.
type Entry struct {
	// Path is the dot-joined key path (e.g. "nav.home").
	Path          string
	Value         string
	Comment       string
	Invariant     bool
	DisabledRules []string
	// Style is the original yaml scalar style for round-trip fidelity.
	Style yaml.Style
}

// File represents a YAML resource file.
type File struct {
	// RootKey is set when the file uses Rails i18n style (e.g. "en:").
	// The entries live one level deeper.
	RootKey string

	entries []Entry
	// index maps path → index in entries.
	index map[string]int
}

// New returns a file holding entries.
func New(entries []Entry) *File {
	f := &File{index: make(map[string]int)}
	for _, e := range entries {
		f.Append(e)
	}
	return f
}

// ---------------------------------------------------------------------------
// Parsing
// ---------------------------------------------------------------------------

// ParseFile reads and parses a YAML resource file.
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

// Parse parses YAML data into a File. A single top-level key that looks
// like a locale is taken as the Rails root key.
func Parse(data []byte) (*File, error) {
	return parse(data, looksLikeLocale)
}

// ParseLocale parses YAML data into a File. Only a single top-level key
// equal to locale is taken as the Rails root key, so a file holding one
// group of keys such as "nav:" keeps its paths.
func ParseLocale(data []byte, locale string) (*File, error) {
	norm := func(s string) string { return strings.ToLower(strings.ReplaceAll(s, "_", "-")) }
	return parse(data, func(key string) bool {
		return locale != "" && norm(key) == norm(locale)
	})
}

func parse(data []byte, isRoot func(string) bool) (*File, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}

	f := &File{index: make(map[string]int)}

	// yaml.Unmarshal wraps the document in a DocumentNode.
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return f, nil
	}

	root := doc.Content[0]
	if root.Kind == yaml.ScalarNode && root.Tag == "!!null" {
		return f, nil
	}
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("YAML root must be a mapping, got kind %d", root.Kind)
	}

	// Detect Rails i18n style: single top-level key whose value is a mapping
	// and whose name is a locale.
	if len(root.Content) == 2 {
		keyNode := root.Content[0]
		valNode := root.Content[1]
		if keyNode.Kind == yaml.ScalarNode && valNode.Kind == yaml.MappingNode && isRoot(keyNode.Value) {
			f.RootKey = keyNode.Value
			if err := collectEntries(valNode, "", f); err != nil {
				return nil, err
			}
			return f, nil
		}
	}

	if err := collectEntries(root, "", f); err != nil {
		return nil, err
	}
	return f, nil
}

func looksLikeLocale(s string) bool {
	if len(s) < 2 || len(s) > 10 {
		return false
	}
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case (r == '-' || r == '_' || (r >= '0' && r <= '9')) && i >= 2:
		default:
			return false
		}
	}
	return true
}

// collectEntries recursively walks a mapping node and appends leaf entries.
func collectEntries(node *yaml.Node, prefix string, f *File) error {
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode := node.Content[i]
		valNode := node.Content[i+1]

		path := keyNode.Value
		if prefix != "" {
			path = prefix + "." + path
		}

		switch valNode.Kind {
		case yaml.MappingNode:
			if err := collectEntries(valNode, path, f); err != nil {
				return err
			}
		case yaml.ScalarNode:
			// Only string scalars are resources.
			switch valNode.Tag {
			case "!!bool", "!!int", "!!float", "!!null":
				continue
			}
			e := Entry{Path: path, Value: valNode.Value, Style: valNode.Style}
			if err := parseComment(&e, keyNode.HeadComment); err != nil {
				return fmt.Errorf("key %s: %w", path, err)
			}
			f.Append(e)
		}
	}
	return nil
}

func parseComment(e *Entry, head string) error {
	if head == "" {
		return nil
	}
	var lines []string
	for _, ln := range strings.Split(head, "\n") {
		ln = strings.TrimPrefix(strings.TrimSpace(ln), "#")
		ln = strings.TrimPrefix(ln, " ")
		switch {
		case ln == dirInvariant:
			e.Invariant = true
		case strings.HasPrefix(ln, dirDisableRules):
			for _, id := range strings.Split(strings.TrimPrefix(ln, dirDisableRules), ",") {
				if id = strings.TrimSpace(id); id != "" {
					e.DisabledRules = append(e.DisabledRules, id)
				}
			}
		case strings.HasPrefix(ln, "@"):
			return fmt.Errorf("unknown directive %q", ln)
		default:
			lines = append(lines, ln)
		}
	}
	e.Comment = strings.Join(lines, "\n")
	return nil
}

// ---------------------------------------------------------------------------
// Querying
// ---------------------------------------------------------------------------

// Entries returns all entries in document order.
func (f *File) Entries() []Entry {
	return append([]Entry(nil), f.entries...)
}

// Keys returns all entry paths in document order.
func (f *File) Keys() []string {
	keys := make([]string, len(f.entries))
	for i, e := range f.entries {
		keys[i] = e.Path
	}
	return keys
}

// Get returns the current value for the given path.
func (f *File) Get(path string) (string, bool) {
	idx, ok := f.index[path]
	if !ok {
		return "", false
	}
	return f.entries[idx].Value, true
}

// Set updates the value for the given path.
// Returns false if the path is not in the file.
func (f *File) Set(path, value string) bool {
	idx, ok := f.index[path]
	if !ok {
		return false
	}
	f.entries[idx].Value = value
	return true
}

// Append adds an entry at the end of the file.
func (f *File) Append(e Entry) {
	if f.index == nil {
		f.index = make(map[string]int)
	}
	if _, exists := f.index[e.Path]; !exists {
		f.index[e.Path] = len(f.entries)
	}
	f.entries = append(f.entries, e)
}

// ---------------------------------------------------------------------------
// Writing
// ---------------------------------------------------------------------------

// Marshal serialises the file to YAML. Paths are written as nested maps
// when that keeps every key and the entry order intact; otherwise every
// path is written as a flat key.
func (f *File) Marshal() ([]byte, error) {
	root, ok := nestedTree(f.entries)
	if !ok {
		root = &yaml.Node{Kind: yaml.MappingNode}
		for _, e := range f.entries {
			root.Content = append(root.Content, keyNode(e.Path, e), valueNode(e))
		}
	}
	if f.RootKey != "" {
		root = &yaml.Node{Kind: yaml.MappingNode, Content: []*yaml.Node{
			{Kind: yaml.ScalarNode, Value: f.RootKey}, root,
		}}
	}
	if len(root.Content) == 0 {
		return []byte("{}\n"), nil
	}
	doc := &yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{root}}
	return yaml.Marshal(doc)
}

// nestedTree builds the nested mapping for entries. It fails when a path is
// both a leaf and a parent, or when nesting would reorder the entries.
func nestedTree(entries []Entry) (*yaml.Node, bool) {
	root := &yaml.Node{Kind: yaml.MappingNode}
	seen := make(map[string]bool)
	for _, e := range entries {
		if seen[e.Path] {
			return nil, false
		}
		seen[e.Path] = true

		parts := strings.Split(e.Path, ".")
		node := root
		for i, part := range parts {
			if part == "" {
				return nil, false
			}
			last := i == len(parts)-1
			child := lookup(node, part)
			switch {
			case child == nil && last:
				node.Content = append(node.Content, keyNode(part, e), valueNode(e))
			case child == nil:
				m := &yaml.Node{Kind: yaml.MappingNode}
				node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: part}, m)
				node = m
			case last || child.Kind != yaml.MappingNode:
				return nil, false
			default:
				// Appending to an earlier group is fine only when that group
				// is the last one written at this level.
				if node.Content[len(node.Content)-1] != child {
					return nil, false
				}
				node = child
			}
		}
	}
	return root, true
}

func lookup(m *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}

func keyNode(name string, e Entry) *yaml.Node {
	n := &yaml.Node{Kind: yaml.ScalarNode, Value: name}
	var lines []string
	if e.Comment != "" {
		lines = append(lines, strings.Split(e.Comment, "\n")...)
	}
	if e.Invariant {
		lines = append(lines, dirInvariant)
	}
	if len(e.DisabledRules) > 0 {
		lines = append(lines, dirDisableRules+" "+strings.Join(e.DisabledRules, ","))
	}
	for i, ln := range lines {
		if ln == "" {
			lines[i] = "#"
		} else {
			lines[i] = "# " + ln
		}
	}
	n.HeadComment = strings.Join(lines, "\n")
	return n
}

func valueNode(e Entry) *yaml.Node {
	n := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: e.Value, Style: e.Style}
	if n.Style == 0 && (e.Value == "" || strings.ContainsAny(e.Value, "\n")) {
		n.Style = yaml.DoubleQuotedStyle
	}
	return n
}

// WriteFile serialises the file and writes it to the given path.
func (f *File) WriteFile(path string) error {
	data, err := f.Marshal()
	if err != nil {
		return fmt.Errorf("marshaling YAML: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
