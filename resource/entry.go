package resource

import (
	"sort"

	"github.com/minios-linux/reskit/culture"
)

// TableEntry is the projection of one key across all languages of its
// entity. It holds no data of its own; every accessor reads the live entity.
type TableEntry struct {
	entity *Entity
	key    string
}

// Entity returns the owning entity.
func (t *TableEntry) Entity() *Entity { return t.entity }

// Key returns the resource key.
func (t *TableEntry) Key() string { return t.key }

// Exists reports whether the key is still present, e.g. after a rename.
func (t *TableEntry) Exists() bool { return t.entity.HasKey(t.key) }

func (t *TableEntry) read(k culture.Key) *record {
	l, ok := t.entity.languages[k]
	if !ok {
		return nil
	}
	return l.get(t.key)
}

// Value returns the value for culture k, "" when untranslated.
func (t *TableEntry) Value(k culture.Key) string {
	t.entity.mu.RLock()
	defer t.entity.mu.RUnlock()
	if r := t.read(k); r != nil {
		return r.value
	}
	return ""
}

// HasValue reports whether the language of culture k holds the key at all.
func (t *TableEntry) HasValue(k culture.Key) bool {
	t.entity.mu.RLock()
	defer t.entity.mu.RUnlock()
	return t.read(k) != nil
}

// Comment returns the comment for culture k.
func (t *TableEntry) Comment(k culture.Key) string {
	t.entity.mu.RLock()
	defer t.entity.mu.RUnlock()
	if r := t.read(k); r != nil {
		return r.comment
	}
	return ""
}

// Values returns the value of every existing language keyed by culture.
func (t *TableEntry) Values() map[culture.Key]string {
	t.entity.mu.RLock()
	defer t.entity.mu.RUnlock()
	out := make(map[culture.Key]string, len(t.entity.languages))
	for k, l := range t.entity.languages {
		if r := l.get(t.key); r != nil {
			out[k] = r.value
		} else {
			out[k] = ""
		}
	}
	return out
}

// IsInvariant reports the entry-level invariant flag, which exempts every
// culture of the key from translation and consistency checks.
func (t *TableEntry) IsInvariant() bool {
	return t.IsItemInvariant(culture.Neutral)
}

// IsItemInvariant reports whether culture k is exempt for this key.
func (t *TableEntry) IsItemInvariant(k culture.Key) bool {
	t.entity.mu.RLock()
	defer t.entity.mu.RUnlock()
	if r := t.read(k); r != nil {
		return r.invariant
	}
	return false
}

// IsRuleEnabled reports whether ruleID is enabled for this entry. A rule
// disabled in any language is disabled for the whole entry.
func (t *TableEntry) IsRuleEnabled(ruleID string) bool {
	t.entity.mu.RLock()
	defer t.entity.mu.RUnlock()
	for _, l := range t.entity.languages {
		if r := l.get(t.key); r != nil && r.disabled[ruleID] {
			return false
		}
	}
	return true
}

// DisabledRules returns the sorted rule IDs disabled for this entry.
func (t *TableEntry) DisabledRules() []string {
	t.entity.mu.RLock()
	defer t.entity.mu.RUnlock()
	seen := make(map[string]bool)
	for _, l := range t.entity.languages {
		if r := l.get(t.key); r != nil {
			for id := range r.disabled {
				seen[id] = true
			}
		}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// DuplicateCount returns how many extra occurrences of the key the file of
// culture k contained when it was loaded.
func (t *TableEntry) DuplicateCount(k culture.Key) int {
	t.entity.mu.RLock()
	defer t.entity.mu.RUnlock()
	if l, ok := t.entity.languages[k]; ok {
		return l.duplicates[t.key]
	}
	return 0
}

// ---------------------------------------------------------------------------
// Mutations
// ---------------------------------------------------------------------------

// SetValue sets the value for culture k. For a culture the entity does not
// have yet, CanEdit may materialize the language first.
func (t *TableEntry) SetValue(k culture.Key, value string) error {
	return t.entity.manager.mutate(t.entity, k, func() ([]Event, error) {
		return t.entity.setValue(k, t.key, value)
	})
}

// SetComment sets the comment for culture k.
func (t *TableEntry) SetComment(k culture.Key, comment string) error {
	return t.entity.manager.mutate(t.entity, k, func() ([]Event, error) {
		return t.entity.setComment(k, t.key, comment)
	})
}

// SetInvariant sets the entry-level invariant flag.
func (t *TableEntry) SetInvariant(invariant bool) error {
	return t.SetItemInvariant(culture.Neutral, invariant)
}

// SetItemInvariant sets the invariant flag for culture k only.
func (t *TableEntry) SetItemInvariant(k culture.Key, invariant bool) error {
	return t.entity.manager.mutate(t.entity, k, func() ([]Event, error) {
		return t.entity.setInvariant(k, t.key, invariant)
	})
}

// SetRuleEnabled enables or disables a consistency rule for this entry.
// The state is stored with the neutral language.
func (t *TableEntry) SetRuleEnabled(ruleID string, enabled bool) error {
	return t.entity.manager.mutate(t.entity, culture.Neutral, func() ([]Event, error) {
		return t.entity.setRuleEnabled(t.key, ruleID, enabled)
	})
}
