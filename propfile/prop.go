// Package propfile implements reading and writing of Java .properties files.
//
// Format: key=value pairs (the separator may also be ':' or white space),
// one logical line each. A line ending in a backslash continues on the next
// line. Lines starting with '#' or '!' are comments; a comment block directly
// above an entry becomes the entry's comment. Two directive comments carry
// per-entry flags:
//
//	#@invariant
//	#@disable-rules: Markup,StringFormat
//
// A comment block separated from the first entry by a blank line is the
// file header and is preserved on write.
//
// File naming convention: each culture is stored as a separate file next to
// the neutral one:
//
//	Strings.properties     (neutral)
//	Strings.de.properties  (German)
package propfile

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	directivePrefix = "@"
	dirInvariant    = "invariant"
	dirDisableRules = "disable-rules:"
)

// ---------------------------------------------------------------------------
// File model
// ---------------------------------------------------------------------------

// Entry is a single key of the file.
type Entry struct {
	Key           string
	Value         string
	Comment       string
	Invariant     bool
	DisabledRules []string
}

// File represents a parsed .properties file. Entries keep document order;
// duplicate keys are kept as they appear.
type File struct {
	// Header holds the comment lines of the file header, without markers.
	Header []string

	entries []Entry
	// index maps key → index of its first occurrence.
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

// ParseFile reads and parses a .properties file from disk.
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

// Parse parses .properties content from a byte slice.
func Parse(data []byte) (*File, error) {
	f := &File{index: make(map[string]int)}

	text := strings.TrimPrefix(string(data), "\ufeff")
	// Normalise Windows line endings.
	text = strings.ReplaceAll(text, "\r\n", "\n")
	rawLines := strings.Split(text, "\n")

	var pending Entry
	var comment []string
	flush := func() {
		comment = nil
		pending = Entry{}
	}

	for i := 0; i < len(rawLines); i++ {
		trimmed := strings.TrimLeft(rawLines[i], " \t\f")

		switch {
		case strings.TrimSpace(trimmed) == "":
			if len(f.entries) == 0 && len(f.Header) == 0 && len(comment) > 0 {
				f.Header = comment
			}
			flush()

		case trimmed[0] == '#' || trimmed[0] == '!':
			body := trimmed[1:]
			if strings.HasPrefix(body, directivePrefix) {
				if err := applyDirective(&pending, strings.TrimPrefix(body, directivePrefix)); err != nil {
					return nil, fmt.Errorf("line %d: %w", i+1, err)
				}
				continue
			}
			comment = append(comment, strings.TrimPrefix(body, " "))

		default:
			start := i
			logical := trimmed
			for continues(logical) && i+1 < len(rawLines) {
				i++
				logical = logical[:len(logical)-1] + strings.TrimLeft(rawLines[i], " \t\f")
			}
			if continues(logical) {
				logical = logical[:len(logical)-1]
			}
			k, v, err := splitKeyValue(logical)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", start+1, err)
			}
			pending.Key, pending.Value = k, v
			pending.Comment = strings.Join(comment, "\n")
			f.Append(pending)
			flush()
		}
	}

	return f, nil
}

func applyDirective(e *Entry, d string) error {
	d = strings.TrimSpace(d)
	switch {
	case d == dirInvariant:
		e.Invariant = true
	case strings.HasPrefix(d, dirDisableRules):
		for _, id := range strings.Split(strings.TrimPrefix(d, dirDisableRules), ",") {
			if id = strings.TrimSpace(id); id != "" {
				e.DisabledRules = append(e.DisabledRules, id)
			}
		}
	default:
		return fmt.Errorf("unknown directive %q", d)
	}
	return nil
}

// continues reports whether the line ends with an odd number of
// backslashes, i.e. continues on the next line.
func continues(s string) bool {
	n := 0
	for i := len(s) - 1; i >= 0 && s[i] == '\\'; i-- {
		n++
	}
	return n%2 == 1
}

// splitKeyValue splits a logical line into the unescaped key and value.
// The key ends at the first unescaped '=', ':' or white space.
func splitKeyValue(s string) (key, value string, err error) {
	end := len(s)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\\' {
			i++
			continue
		}
		if c == '=' || c == ':' || c == ' ' || c == '\t' || c == '\f' {
			end = i
			break
		}
	}
	rest := strings.TrimLeft(s[end:], " \t\f")
	if rest != "" && (rest[0] == '=' || rest[0] == ':') {
		rest = strings.TrimLeft(rest[1:], " \t\f")
	}
	if key, err = unescape(s[:end]); err != nil {
		return "", "", err
	}
	if value, err = unescape(rest); err != nil {
		return "", "", err
	}
	return key, value, nil
}

func unescape(s string) (string, error) {
	if !strings.Contains(s, `\`) {
		return s, nil
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 == len(s) {
			b.WriteByte(c)
			continue
		}
		i++
		switch s[i] {
		case 't':
			b.WriteByte('\t')
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 'f':
			b.WriteByte('\f')
		case 'u':
			if i+4 >= len(s) {
				return "", fmt.Errorf("truncated \\u escape")
			}
			r, err := strconv.ParseUint(s[i+1:i+5], 16, 32)
			if err != nil {
				return "", fmt.Errorf("invalid \\u escape %q", s[i-1:i+5])
			}
			b.WriteRune(rune(r))
			i += 4
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String(), nil
}

// ---------------------------------------------------------------------------
// Accessors
// ---------------------------------------------------------------------------

// Entries returns all entries in document order, duplicates included.
func (f *File) Entries() []Entry {
	return append([]Entry(nil), f.entries...)
}

// Keys returns all keys in document order, duplicates included.
func (f *File) Keys() []string {
	keys := make([]string, len(f.entries))
	for i, e := range f.entries {
		keys[i] = e.Key
	}
	return keys
}

// Get returns the value of the first occurrence of key.
func (f *File) Get(key string) (string, bool) {
	if idx, ok := f.index[key]; ok {
		return f.entries[idx].Value, true
	}
	return "", false
}

// Set sets the value for an existing key. Returns true on success,
// false if the key does not exist.
func (f *File) Set(key, value string) bool {
	idx, ok := f.index[key]
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
	if _, exists := f.index[e.Key]; !exists {
		f.index[e.Key] = len(f.entries)
	}
	f.entries = append(f.entries, e)
}

// ---------------------------------------------------------------------------
// Serialization
// ---------------------------------------------------------------------------

// Marshal serialises the file back to .properties format.
func (f *File) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	if len(f.Header) > 0 {
		for _, h := range f.Header {
			writeComment(&buf, h)
		}
		buf.WriteByte('\n')
	}
	for _, e := range f.entries {
		if e.Comment != "" {
			for _, c := range strings.Split(e.Comment, "\n") {
				writeComment(&buf, c)
			}
		}
		if e.Invariant {
			buf.WriteString("#" + directivePrefix + dirInvariant + "\n")
		}
		if len(e.DisabledRules) > 0 {
			buf.WriteString("#" + directivePrefix + dirDisableRules + " " + strings.Join(e.DisabledRules, ",") + "\n")
		}
		buf.WriteString(escape(e.Key, true))
		buf.WriteByte('=')
		buf.WriteString(escape(e.Value, false))
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

func writeComment(buf *bytes.Buffer, text string) {
	if text == "" {
		buf.WriteString("#\n")
		return
	}
	buf.WriteString("# ")
	buf.WriteString(text)
	buf.WriteByte('\n')
}

func escape(s string, isKey bool) string {
	var b strings.Builder
	for i, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case '\f':
			b.WriteString(`\f`)
		case '=', ':':
			if isKey {
				b.WriteByte('\\')
			}
			b.WriteRune(r)
		case ' ':
			if isKey || i == 0 {
				b.WriteByte('\\')
			}
			b.WriteRune(r)
		case '#', '!':
			if isKey && i == 0 {
				b.WriteByte('\\')
			}
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// WriteFile serialises and writes to path, creating parent directories
// with 0755 permissions.
func (f *File) WriteFile(path string) error {
	data, err := f.Marshal()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
