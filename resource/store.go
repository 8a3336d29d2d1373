package resource

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/minios-linux/reskit/culture"
)

// Record is one key of one culture file as exchanged with a Store.
type Record struct {
	Key           string
	Value         string
	Comment       string
	Invariant     bool
	DisabledRules []string
}

// Store reads and writes the key table of a single culture file.
// The on-disk format is up to the implementation.
type Store interface {
	// Read returns the records of path in file order. Duplicate keys are
	// returned as they appear; the manager applies the duplicate policy.
	Read(path string) ([]Record, error)
	// Write replaces the contents of path with records. An empty slice
	// writes an empty template.
	Write(path string, records []Record) error
}

// FileRef is a candidate resource file supplied by file discovery.
type FileRef struct {
	// Path is the file system path used for reading and writing.
	Path string
	// Project is the logical project the file belongs to.
	Project string
	// RelativePath is the path relative to the project, including the file
	// name. Defaults to the base name of Path.
	RelativePath string
}

// cultureSegment matches the culture part of "Strings.de-AT.properties".
var cultureSegment = regexp.MustCompile(`^[A-Za-z]{2,3}([-_][A-Za-z0-9]{1,8})*$`)

// SplitFileName splits a resource file name into its base name, culture and
// extension: "Strings.de.properties" -> ("Strings", de, ".properties").
// A name without a recognizable culture segment is neutral. Segments must
// name a language known to CLDR, so "Messages.app.properties" is the neutral
// file of entity "Messages.app" rather than the Apma culture of "Messages".
func SplitFileName(name string) (base string, key culture.Key, ext string) {
	ext = filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	dot := strings.LastIndexByte(stem, '.')
	if dot <= 0 {
		return stem, culture.Neutral, ext
	}
	seg := stem[dot+1:]
	if !cultureSegment.MatchString(seg) {
		return stem, culture.Neutral, ext
	}
	k, err := culture.Parse(seg)
	if err != nil || !k.Known() {
		return stem, culture.Neutral, ext
	}
	return stem[:dot], k, ext
}

// LanguageFileName returns the path of the k culture file that belongs next
// to the given neutral file.
func LanguageFileName(neutralPath string, k culture.Key) string {
	if k.IsNeutral() {
		return neutralPath
	}
	dir, name := filepath.Split(neutralPath)
	base, _, ext := SplitFileName(name)
	return filepath.Join(dir, base+"."+k.Name()+ext)
}
