package rules

import (
	"fmt"
	"regexp"
	"slices"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/net/html"

	"github.com/minios-linux/reskit/culture"
	"github.com/minios-linux/reskit/resource"
)

func violation(id string, k culture.Key, format string, args ...any) (Violation, bool) {
	return Violation{Rule: id, Culture: k, Message: fmt.Sprintf(format, args...)}, true
}

// compared returns the neutral and culture text, or ok=false when the rule
// has nothing to compare (neutral culture or empty neutral).
func compared(entry *resource.TableEntry, k culture.Key) (neutral, text string, ok bool) {
	if k.IsNeutral() {
		return "", "", false
	}
	neutral = entry.Value(culture.Neutral)
	text = entry.Value(k)
	if neutral == "" || text == "" {
		return "", "", false
	}
	return neutral, text, true
}

// ---------------------------------------------------------------------------
// EmptyNeutral
// ---------------------------------------------------------------------------

type emptyNeutralRule struct{}

func (emptyNeutralRule) ID() string          { return EmptyNeutral }
func (emptyNeutralRule) Description() string { return "neutral text is empty" }

func (emptyNeutralRule) Check(entry *resource.TableEntry, k culture.Key) (Violation, bool) {
	if !k.IsNeutral() || strings.TrimSpace(entry.Value(culture.Neutral)) != "" {
		return Violation{}, false
	}
	return violation(EmptyNeutral, k, "neutral text is empty")
}

// ---------------------------------------------------------------------------
// Markup
// ---------------------------------------------------------------------------

type markupRule struct{}

func (markupRule) ID() string          { return Markup }
func (markupRule) Description() string { return "HTML tags differ from the neutral text" }

func (markupRule) Check(entry *resource.TableEntry, k culture.Key) (Violation, bool) {
	neutral, text, ok := compared(entry, k)
	if !ok {
		return Violation{}, false
	}
	want := markupTags(neutral)
	got := markupTags(text)
	if slices.Equal(want, got) {
		return Violation{}, false
	}
	return violation(Markup, k, "tags %v, neutral has %v", got, want)
}

// markupTags returns the sorted start, end and self-closing tags of s.
func markupTags(s string) []string {
	if !strings.ContainsRune(s, '<') {
		return nil
	}
	var tags []string
	z := html.NewTokenizer(strings.NewReader(s))
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			sort.Strings(tags)
			return tags
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			tags = append(tags, "<"+string(name)+">")
		case html.EndTagToken:
			name, _ := z.TagName()
			tags = append(tags, "</"+string(name)+">")
		}
	}
}

// ContainsMarkup reports whether s contains at least one HTML tag.
func ContainsMarkup(s string) bool {
	return len(markupTags(s)) > 0
}

// ---------------------------------------------------------------------------
// White space
// ---------------------------------------------------------------------------

type whiteSpaceLeadRule struct{}

func (whiteSpaceLeadRule) ID() string          { return WhiteSpaceLead }
func (whiteSpaceLeadRule) Description() string { return "leading white space differs from the neutral text" }

func (whiteSpaceLeadRule) Check(entry *resource.TableEntry, k culture.Key) (Violation, bool) {
	neutral, text, ok := compared(entry, k)
	if !ok {
		return Violation{}, false
	}
	want := neutral[:len(neutral)-len(strings.TrimLeftFunc(neutral, unicode.IsSpace))]
	got := text[:len(text)-len(strings.TrimLeftFunc(text, unicode.IsSpace))]
	if want == got {
		return Violation{}, false
	}
	return violation(WhiteSpaceLead, k, "leading white space %q, neutral has %q", got, want)
}

type whiteSpaceTailRule struct{}

func (whiteSpaceTailRule) ID() string          { return WhiteSpaceTail }
func (whiteSpaceTailRule) Description() string { return "trailing white space differs from the neutral text" }

func (whiteSpaceTailRule) Check(entry *resource.TableEntry, k culture.Key) (Violation, bool) {
	neutral, text, ok := compared(entry, k)
	if !ok {
		return Violation{}, false
	}
	want := neutral[len(strings.TrimRightFunc(neutral, unicode.IsSpace)):]
	got := text[len(strings.TrimRightFunc(text, unicode.IsSpace)):]
	if want == got {
		return Violation{}, false
	}
	return violation(WhiteSpaceTail, k, "trailing white space %q, neutral has %q", got, want)
}

// ---------------------------------------------------------------------------
// StringFormat
// ---------------------------------------------------------------------------

type stringFormatRule struct{}

func (stringFormatRule) ID() string          { return StringFormat }
func (stringFormatRule) Description() string { return "format placeholders differ from the neutral text" }

// placeholder matches {0}, {0:N2}, {1,-10} and {name}.
var placeholder = regexp.MustCompile(`\{\s*([A-Za-z_][A-Za-z0-9_]*|\d+)\s*(?:[,:][^{}]*)?\}`)

// Placeholders returns the sorted distinct placeholder names of s. Escaped
// braces ({{ and }}) are ignored.
func Placeholders(s string) []string {
	s = strings.NewReplacer("{{", "", "}}", "").Replace(s)
	seen := make(map[string]bool)
	var names []string
	for _, m := range placeholder.FindAllStringSubmatch(s, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	sort.Strings(names)
	return names
}

func (stringFormatRule) Check(entry *resource.TableEntry, k culture.Key) (Violation, bool) {
	neutral, text, ok := compared(entry, k)
	if !ok {
		return Violation{}, false
	}
	want := Placeholders(neutral)
	got := Placeholders(text)
	if slices.Equal(want, got) {
		return Violation{}, false
	}
	return violation(StringFormat, k, "placeholders %v, neutral has %v", got, want)
}

// ---------------------------------------------------------------------------
// DuplicateKey
// ---------------------------------------------------------------------------

type duplicateKeyRule struct{}

func (duplicateKeyRule) ID() string          { return DuplicateKey }
func (duplicateKeyRule) Description() string { return "key occurs more than once in the file" }

func (duplicateKeyRule) Check(entry *resource.TableEntry, k culture.Key) (Violation, bool) {
	n := entry.DuplicateCount(k)
	if n == 0 {
		return Violation{}, false
	}
	return violation(DuplicateKey, k, "key %q occurs %d times in the file", entry.Key(), n+1)
}

// ---------------------------------------------------------------------------
// PunctuationTail
// ---------------------------------------------------------------------------

type punctuationTailRule struct{}

func (punctuationTailRule) ID() string          { return PunctuationTail }
func (punctuationTailRule) Description() string { return "final punctuation differs from the neutral text" }

// fullWidth maps CJK punctuation to its ASCII counterpart.
var fullWidth = map[rune]rune{
	'。': '.', '．': '.', '！': '!', '？': '?', '：': ':', '；': ';', '，': ',', '\u037e': ';',
}

// tailPunctuation returns the final punctuation rune of s, or 0.
func tailPunctuation(s string) rune {
	s = strings.TrimRightFunc(s, unicode.IsSpace)
	r, _ := utf8.DecodeLastRuneInString(s)
	if r == utf8.RuneError || !unicode.IsPunct(r) {
		return 0
	}
	switch r {
	case ')', ']', '}', '"', '\'', '»', '«', '“', '”':
		return 0
	}
	if n, ok := fullWidth[r]; ok {
		return n
	}
	return r
}

func (punctuationTailRule) Check(entry *resource.TableEntry, k culture.Key) (Violation, bool) {
	neutral, text, ok := compared(entry, k)
	if !ok {
		return Violation{}, false
	}
	want := tailPunctuation(neutral)
	got := tailPunctuation(text)
	if want == got {
		return Violation{}, false
	}
	// Greek writes the question mark as a semicolon.
	if want == '?' && got == ';' && isGreek(k) {
		return Violation{}, false
	}
	return violation(PunctuationTail, k, "ends with %s, neutral ends with %s", punctName(got), punctName(want))
}

func isGreek(k culture.Key) bool {
	base, _ := k.Tag().Base()
	return base.String() == "el"
}

func punctName(r rune) string {
	if r == 0 {
		return "no punctuation"
	}
	return fmt.Sprintf("%q", r)
}
