// Package rules checks translations for consistency with the neutral text.
//
// Rules are stateless predicates over one table entry and one culture. The
// Engine evaluates the enabled rules on demand and never mutates the table.
package rules

import (
	"fmt"
	"sort"

	"github.com/minios-linux/reskit/culture"
	"github.com/minios-linux/reskit/resource"
)

// Built-in rule IDs. Rule IDs are stored in resource files to disable rules
// per entry, so they must stay stable.
const (
	EmptyNeutral    = "EmptyNeutral"
	Markup          = "Markup"
	WhiteSpaceLead  = "WhiteSpaceLead"
	WhiteSpaceTail  = "WhiteSpaceTail"
	StringFormat    = "StringFormat"
	DuplicateKey    = "DuplicateKey"
	PunctuationTail = "PunctuationTail"
)

// Violation is one finding of one rule for one culture of an entry.
type Violation struct {
	Rule    string
	Culture culture.Key
	Message string
}

func (v Violation) String() string {
	return fmt.Sprintf("[%s] %s: %s", v.Culture, v.Rule, v.Message)
}

// Rule is a consistency check. Check is called with the culture to inspect;
// the neutral text is read from the entry when needed.
type Rule interface {
	ID() string
	Description() string
	Check(entry *resource.TableEntry, k culture.Key) (Violation, bool)
}

// ---------------------------------------------------------------------------
// Registry
// ---------------------------------------------------------------------------

// Registry maps rule IDs to rules.
type Registry struct {
	rules map[string]Rule
	order []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{rules: make(map[string]Rule)}
}

// DefaultRegistry returns a registry holding every built-in rule.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, rule := range []Rule{
		emptyNeutralRule{},
		markupRule{},
		whiteSpaceLeadRule{},
		whiteSpaceTailRule{},
		stringFormatRule{},
		duplicateKeyRule{},
		punctuationTailRule{},
	} {
		if err := r.Register(rule); err != nil {
			panic(err)
		}
	}
	return r
}

// Register adds a rule. IDs must be unique.
func (r *Registry) Register(rule Rule) error {
	id := rule.ID()
	if id == "" {
		return fmt.Errorf("rule has empty id")
	}
	if _, dup := r.rules[id]; dup {
		return fmt.Errorf("rule %q already registered", id)
	}
	r.rules[id] = rule
	r.order = append(r.order, id)
	return nil
}

// Get returns the rule with the given ID.
func (r *Registry) Get(id string) (Rule, bool) {
	rule, ok := r.rules[id]
	return rule, ok
}

// IDs returns the registered IDs in registration order.
func (r *Registry) IDs() []string {
	return append([]string(nil), r.order...)
}

// ---------------------------------------------------------------------------
// Engine
// ---------------------------------------------------------------------------

// Engine evaluates a selection of rules.
type Engine struct {
	rules []Rule
}

// NewEngine returns an engine for the given rule IDs. An empty list enables
// every registered rule.
func NewEngine(reg *Registry, enabled []string) (*Engine, error) {
	if len(enabled) == 0 {
		enabled = reg.IDs()
	}
	e := &Engine{}
	seen := make(map[string]bool)
	for _, id := range enabled {
		if seen[id] {
			continue
		}
		seen[id] = true
		rule, ok := reg.Get(id)
		if !ok {
			return nil, fmt.Errorf("unknown rule %q (known: %v)", id, reg.IDs())
		}
		e.rules = append(e.rules, rule)
	}
	return e, nil
}

// RuleIDs returns the IDs the engine evaluates.
func (e *Engine) RuleIDs() []string {
	ids := make([]string, len(e.rules))
	for i, r := range e.rules {
		ids[i] = r.ID()
	}
	return ids
}

// Violations evaluates every enabled rule on entry. An invariant entry
// reports nothing; an invariant culture and an untranslated culture are
// skipped. Results are ordered by culture, then by rule order.
func (e *Engine) Violations(entry *resource.TableEntry) []Violation {
	if !entry.Exists() || entry.IsInvariant() {
		return nil
	}
	var active []Rule
	for _, r := range e.rules {
		if entry.IsRuleEnabled(r.ID()) {
			active = append(active, r)
		}
	}
	if len(active) == 0 {
		return nil
	}

	var out []Violation
	for _, k := range entry.Entity().Cultures() {
		if !k.IsNeutral() {
			if entry.IsItemInvariant(k) || entry.Value(k) == "" {
				continue
			}
		}
		for _, r := range active {
			if v, bad := r.Check(entry, k); bad {
				out = append(out, v)
			}
		}
	}
	return out
}

// Summary counts violations per rule ID over all entries.
func (e *Engine) Summary(entries []*resource.TableEntry) map[string]int {
	counts := make(map[string]int)
	for _, entry := range entries {
		for _, v := range e.Violations(entry) {
			counts[v.Rule]++
		}
	}
	return counts
}

// SortedRuleCounts returns the rule IDs of counts sorted by descending count.
func SortedRuleCounts(counts map[string]int) []string {
	ids := make([]string, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if counts[ids[i]] != counts[ids[j]] {
			return counts[ids[i]] > counts[ids[j]]
		}
		return ids[i] < ids[j]
	})
	return ids
}
