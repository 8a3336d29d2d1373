package rules

import (
	"context"
	"slices"
	"testing"

	"github.com/minios-linux/reskit/culture"
	"github.com/minios-linux/reskit/resource"
)

var de = culture.MustParse("de")

func loadEntries(t *testing.T, files map[string][]resource.Record) *resource.Manager {
	t.Helper()
	store := resource.NewMemStore(files)
	m := resource.NewManager(store, resource.Options{})
	res, err := m.Reload(context.Background(), store.Refs("app"))
	if err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if len(res.Failures) > 0 {
		t.Fatalf("Reload failures: %v", res.Failures)
	}
	return m
}

// pair returns the entry "A" of an entity with one neutral and one de text.
func pair(t *testing.T, neutral, translated string) *resource.TableEntry {
	t.Helper()
	m := loadEntries(t, map[string][]resource.Record{
		"S.txt":    {{Key: "A", Value: neutral}},
		"S.de.txt": {{Key: "A", Value: translated}},
	})
	e, ok := m.Entity(resource.EntityID("app", "S"))
	if !ok {
		t.Fatal("entity S not loaded")
	}
	entry, ok := e.Entry("A")
	if !ok {
		t.Fatal("entry A missing")
	}
	return entry
}

func ruleIDs(vs []Violation) []string {
	var ids []string
	for _, v := range vs {
		ids = append(ids, v.Rule)
	}
	return ids
}

func defaultEngine(t *testing.T) *Engine {
	t.Helper()
	eng, err := NewEngine(DefaultRegistry(), nil)
	if err != nil {
		t.Fatal(err)
	}
	return eng
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func TestPlaceholders(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"{0} of {1}", []string{"0", "1"}},
		{"{1} of {0} and {0}", []string{"0", "1"}},
		{"{0:N2} EUR", []string{"0"}},
		{"{1,-10}|", []string{"1"}},
		{"Hello {name}", []string{"name"}},
		{"{{0}} is literal", nil},
		{"no placeholders", nil},
		{"{}", nil},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := Placeholders(tt.in)
			if !slices.Equal(got, tt.want) {
				t.Fatalf("Placeholders(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestContainsMarkup(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"<b>bold</b>", true},
		{"line<br/>break", true},
		{"a < b", false},
		{"plain", false},
	}
	for _, tt := range tests {
		if got := ContainsMarkup(tt.in); got != tt.want {
			t.Errorf("ContainsMarkup(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

// ---------------------------------------------------------------------------
// Built-in rules
// ---------------------------------------------------------------------------

func TestViolations_BuiltinRules(t *testing.T) {
	tests := []struct {
		name       string
		neutral    string
		translated string
		want       []string
	}{
		{"format mismatch", "Hello {0}", "Hallo {1}", []string{StringFormat}},
		{"format match", "Hello {0}.", "Hallo {0}.", nil},
		{"escaped braces", "{{literal}} {0}", "{{wörtlich}} {0}", nil},
		{"markup missing", "<b>Bold</b>", "Fett", []string{Markup}},
		{"markup match", "<b>Bold</b> text", "<b>Fett</b> Text", nil},
		{"leading space", " Hello", "Hallo", []string{WhiteSpaceLead}},
		{"trailing space", "Hello ", "Hallo", []string{WhiteSpaceTail}},
		{"punctuation", "Done.", "Fertig", []string{PunctuationTail}},
		{"full width punctuation", "Done.", "Fertig。", nil},
		{"empty neutral", "", "Hallo", []string{EmptyNeutral}},
		{"untranslated", "Hello {0}.", "", nil},
	}
	eng := defaultEngine(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ruleIDs(eng.Violations(pair(t, tt.neutral, tt.translated)))
			if !slices.Equal(got, tt.want) {
				t.Fatalf("violations = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestViolations_CultureReported(t *testing.T) {
	vs := defaultEngine(t).Violations(pair(t, "Hello {0}", "Hallo"))
	if len(vs) != 1 || vs[0].Culture != de {
		t.Fatalf("violations = %v, want one for de", vs)
	}
}

func TestPunctuationTail_Greek(t *testing.T) {
	m := loadEntries(t, map[string][]resource.Record{
		"S.txt":    {{Key: "A", Value: "Why?"}},
		"S.el.txt": {{Key: "A", Value: "Γιατί;"}},
	})
	e, _ := m.Entity(resource.EntityID("app", "S"))
	entry, _ := e.Entry("A")
	if vs := defaultEngine(t).Violations(entry); len(vs) != 0 {
		t.Fatalf("violations = %v, want none", vs)
	}
}

func TestDuplicateKeyRule(t *testing.T) {
	m := loadEntries(t, map[string][]resource.Record{
		"S.txt": {{Key: "A", Value: "one"}, {Key: "A", Value: "two"}},
	})
	e, _ := m.Entity(resource.EntityID("app", "S"))
	entry, _ := e.Entry("A")
	got := ruleIDs(defaultEngine(t).Violations(entry))
	if !slices.Equal(got, []string{DuplicateKey}) {
		t.Fatalf("violations = %v, want [%s]", got, DuplicateKey)
	}
}

// ---------------------------------------------------------------------------
// Suppression
// ---------------------------------------------------------------------------

func TestRuleToggling(t *testing.T) {
	entry := pair(t, "Hello {0}", "Hallo")
	eng := defaultEngine(t)

	if err := entry.SetRuleEnabled(StringFormat, false); err != nil {
		t.Fatal(err)
	}
	if got := eng.Violations(entry); len(got) != 0 {
		t.Fatalf("disabled rule reported: %v", got)
	}
	if err := entry.SetRuleEnabled(StringFormat, true); err != nil {
		t.Fatal(err)
	}
	if got := ruleIDs(eng.Violations(entry)); !slices.Equal(got, []string{StringFormat}) {
		t.Fatalf("re-enabled rule: violations = %v", got)
	}
}

func TestInvariantSuppression(t *testing.T) {
	eng := defaultEngine(t)

	entry := pair(t, "Hello {0}", "Hallo")
	if err := entry.SetInvariant(true); err != nil {
		t.Fatal(err)
	}
	if got := eng.Violations(entry); len(got) != 0 {
		t.Fatalf("invariant entry reported: %v", got)
	}

	entry = pair(t, "Hello {0}", "Hallo")
	if err := entry.SetItemInvariant(de, true); err != nil {
		t.Fatal(err)
	}
	if got := eng.Violations(entry); len(got) != 0 {
		t.Fatalf("invariant culture reported: %v", got)
	}
}

func TestNewEngine(t *testing.T) {
	if _, err := NewEngine(DefaultRegistry(), []string{"NoSuchRule"}); err == nil {
		t.Fatal("expected error for unknown rule")
	}
	eng, err := NewEngine(DefaultRegistry(), []string{Markup, Markup})
	if err != nil {
		t.Fatal(err)
	}
	if got := eng.RuleIDs(); !slices.Equal(got, []string{Markup}) {
		t.Fatalf("RuleIDs = %v", got)
	}
	if got := eng.Violations(pair(t, "Hello {0}", "Hallo")); len(got) != 0 {
		t.Fatalf("StringFormat not enabled but reported: %v", got)
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := DefaultRegistry()
	if err := r.Register(markupRule{}); err == nil {
		t.Fatal("expected duplicate registration error")
	}
	if got := len(r.IDs()); got != 7 {
		t.Fatalf("built-in rules = %d, want 7", got)
	}
}

func TestSummary(t *testing.T) {
	eng := defaultEngine(t)
	counts := eng.Summary([]*resource.TableEntry{
		pair(t, "Hello {0}", "Hallo"),
		pair(t, "Hello {0}", "Hallo {1}"),
		pair(t, "Done.", "Fertig"),
	})
	if counts[StringFormat] != 2 || counts[PunctuationTail] != 1 {
		t.Fatalf("counts = %v", counts)
	}
	if got := SortedRuleCounts(counts); got[0] != StringFormat {
		t.Fatalf("SortedRuleCounts = %v", got)
	}
}
