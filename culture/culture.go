// Package culture implements the culture key used to address one language of
// a resource entity.
//
// A key is either neutral (the default/fallback resource file, no culture
// suffix) or a specific IETF language tag such as "de" or "pt-BR". Key names
// are accepted with an optional '.' prefix, matching the ".de" column and
// file-name convention, and with '_' as a subtag separator ("pt_BR").
package culture

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Key identifies the neutral culture or a specific language.
// The zero value is the neutral key. Keys are comparable with ==.
type Key struct {
	name string
}

// Neutral is the key of the default resource file.
var Neutral = Key{}

// ParseError reports a malformed culture tag.
type ParseError struct {
	Input string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid culture %q: %v", e.Input, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Parse converts a culture key name to a Key. An empty name (or a lone ".")
// is the neutral key.
func Parse(s string) (Key, error) {
	name := strings.TrimPrefix(strings.TrimSpace(s), ".")
	if name == "" {
		return Neutral, nil
	}
	tag, err := language.Parse(strings.ReplaceAll(name, "_", "-"))
	if err != nil {
		return Neutral, &ParseError{Input: s, Err: err}
	}
	if tag == language.Und {
		return Neutral, &ParseError{Input: s, Err: fmt.Errorf("undetermined language")}
	}
	return Key{name: tag.String()}, nil
}

// MustParse is like Parse but panics on error. Intended for constants in tests
// and static tables.
func MustParse(s string) Key {
	k, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return k
}

// FromTag returns the key for an already parsed tag.
func FromTag(tag language.Tag) Key {
	if tag == language.Und {
		return Neutral
	}
	return Key{name: tag.String()}
}

// IsNeutral reports whether k is the neutral key.
func (k Key) IsNeutral() bool { return k.name == "" }

// Name returns the canonical tag, or "" for the neutral key.
func (k Key) Name() string { return k.name }

// String returns the tag, or "neutral".
func (k Key) String() string {
	if k.name == "" {
		return "neutral"
	}
	return k.name
}

// Tag returns the language tag. The neutral key maps to language.Und.
func (k Key) Tag() language.Tag {
	if k.name == "" {
		return language.Und
	}
	return language.Make(k.name)
}

// Compare orders keys: neutral first, then by tag name.
func (k Key) Compare(o Key) int {
	switch {
	case k.name == o.name:
		return 0
	case k.name == "":
		return -1
	case o.name == "":
		return 1
	case k.name < o.name:
		return -1
	default:
		return 1
	}
}

// Sort orders keys in place using Compare.
func Sort(keys []Key) {
	sort.Slice(keys, func(i, j int) bool { return keys[i].Compare(keys[j]) < 0 })
}

// MarshalText implements encoding.TextMarshaler. The neutral key encodes as "".
func (k Key) MarshalText() ([]byte, error) {
	return []byte(k.name), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Key) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// DisplayName returns the native name of the language ("Deutsch" for de),
// falling back to the English name and finally to the tag itself.
func (k Key) DisplayName() string {
	if k.name == "" {
		return "Neutral"
	}
	tag := k.Tag()
	if name := display.Self.Name(tag); name != "" {
		return name
	}
	if name := display.English.Tags().Name(tag); name != "" {
		return name
	}
	return k.name
}

// Known reports whether the base language of k has a CLDR name, which
// rules out syntactically valid but obscure codes such as "app" or "api".
// The neutral key is known.
func (k Key) Known() bool {
	if k.name == "" {
		return true
	}
	base, _ := k.Tag().Base()
	return display.English.Languages().Name(base) != ""
}

// EnglishName returns the English name of the language.
func (k Key) EnglishName() string {
	if k.name == "" {
		return "Neutral"
	}
	if name := display.English.Tags().Name(k.Tag()); name != "" {
		return name
	}
	return k.name
}

// Flag returns the regional indicator emoji of the language's region, as
// inferred by the CLDR likely-subtags data ("de" -> DE). It is empty for
// the neutral culture and for languages without a specific region.
func (k Key) Flag() string {
	if k.name == "" {
		return ""
	}
	region, conf := k.Tag().Region()
	if conf == language.No {
		return ""
	}
	code := region.String()
	if len(code) != 2 || code[0] < 'A' || code[0] > 'Z' || code[1] < 'A' || code[1] > 'Z' {
		return ""
	}
	return string([]rune{rune(code[0]) - 'A' + 0x1F1E6, rune(code[1]) - 'A' + 0x1F1E6})
}
