package resource

import (
	"fmt"
	"sort"
	"sync"

	"github.com/minios-linux/reskit/culture"
)

// Entity groups the neutral language and the culture languages that share
// one logical resource name within a project.
type Entity struct {
	// mu guards every language of the entity. Edits are rare compared to
	// reads by scans and exports, so one lock per entity is enough.
	mu sync.RWMutex

	manager *Manager
	project string
	relName string
	name    string

	neutral   *Language
	languages map[culture.Key]*Language
}

// ID returns the stable identifier "project:relative/name".
func (e *Entity) ID() string { return EntityID(e.project, e.relName) }

// EntityID builds an entity identifier from its parts.
func EntityID(project, relName string) string { return project + ":" + relName }

// Project returns the project the entity belongs to.
func (e *Entity) Project() string { return e.project }

// Name returns the base name of the resource ("Strings").
func (e *Entity) Name() string { return e.name }

// RelativeName returns the slash separated path of the resource inside its
// project, without culture and extension ("Properties/Strings").
func (e *Entity) RelativeName() string { return e.relName }

func (e *Entity) String() string { return e.ID() }

// NeutralLanguage returns the neutral language.
func (e *Entity) NeutralLanguage() *Language { return e.neutral }

// Language returns the language for k.
func (e *Entity) Language(k culture.Key) (*Language, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	l, ok := e.languages[k]
	return l, ok
}

// Languages returns all languages, neutral first, then by culture.
func (e *Entity) Languages() []*Language {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.sortedLanguages()
}

func (e *Entity) sortedLanguages() []*Language {
	out := make([]*Language, 0, len(e.languages))
	for _, l := range e.languages {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].culture.Compare(out[j].culture) < 0 })
	return out
}

// Cultures returns the culture keys of all languages, neutral first.
func (e *Entity) Cultures() []culture.Key {
	e.mu.RLock()
	defer e.mu.RUnlock()
	keys := make([]culture.Key, 0, len(e.languages))
	for k := range e.languages {
		keys = append(keys, k)
	}
	culture.Sort(keys)
	return keys
}

// Keys returns the entity key set in neutral order.
func (e *Entity) Keys() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]string(nil), e.neutral.keys...)
}

// HasKey reports whether key exists in the entity.
func (e *Entity) HasKey(key string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.neutral.has(key)
}

// Entries returns one table entry per key, in neutral order.
func (e *Entity) Entries() []*TableEntry {
	keys := e.Keys()
	out := make([]*TableEntry, len(keys))
	for i, k := range keys {
		out[i] = &TableEntry{entity: e, key: k}
	}
	return out
}

// Entry returns the table entry for key.
func (e *Entity) Entry(key string) (*TableEntry, bool) {
	if !e.HasKey(key) {
		return nil, false
	}
	return &TableEntry{entity: e, key: key}, true
}

// HasChanges reports whether any language has unsaved changes.
func (e *Entity) HasChanges() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, l := range e.languages {
		if l.dirty {
			return true
		}
	}
	return false
}

// Add creates key in the neutral language and returns its entry.
func (e *Entity) Add(key string) (*TableEntry, error) {
	if key == "" {
		return nil, fmt.Errorf("%s: empty key", e.ID())
	}
	err := e.manager.mutate(e, culture.Neutral, func() ([]Event, error) {
		return e.addKey(key)
	})
	if err != nil {
		return nil, err
	}
	return &TableEntry{entity: e, key: key}, nil
}

// Remove deletes key from every language of the entity. Either all
// languages are changed or none.
func (e *Entity) Remove(key string) error {
	return e.manager.mutateAll(e, key, func() ([]Event, error) {
		return e.removeKey(key)
	})
}

// Rename renames key in every language of the entity atomically.
func (e *Entity) Rename(oldKey, newKey string) error {
	if newKey == "" {
		return fmt.Errorf("%s: empty key", e.ID())
	}
	return e.manager.mutateAll(e, oldKey, func() ([]Event, error) {
		return e.renameKey(oldKey, newKey)
	})
}

// ---------------------------------------------------------------------------
// Unlocked mutation primitives (caller holds e.mu for writing)
// ---------------------------------------------------------------------------

func (e *Entity) addKey(key string) ([]Event, error) {
	if e.neutral.has(key) {
		return nil, fmt.Errorf("%s: %q: %w", e.ID(), key, ErrKeyExists)
	}
	e.neutral.ensure(key)
	e.neutral.touch()
	return []Event{{Kind: KeyAdded, Entity: e, Culture: culture.Neutral, Key: key}}, nil
}

func (e *Entity) removeKey(key string) ([]Event, error) {
	if !e.neutral.has(key) {
		return nil, fmt.Errorf("%s: %q: %w", e.ID(), key, ErrKeyNotFound)
	}
	for _, l := range e.languages {
		if l.remove(key) {
			l.touch()
		}
	}
	return []Event{{Kind: KeyRemoved, Entity: e, Key: key}}, nil
}

func (e *Entity) renameKey(oldKey, newKey string) ([]Event, error) {
	if !e.neutral.has(oldKey) {
		return nil, fmt.Errorf("%s: %q: %w", e.ID(), oldKey, ErrKeyNotFound)
	}
	if oldKey == newKey {
		return nil, nil
	}
	for _, l := range e.languages {
		if l.has(newKey) {
			return nil, fmt.Errorf("%s: %q: %w", e.ID(), newKey, ErrKeyExists)
		}
	}
	for _, l := range e.languages {
		if l.rename(oldKey, newKey) {
			l.touch()
		}
	}
	return []Event{{Kind: KeyRenamed, Entity: e, Key: newKey, OldKey: oldKey}}, nil
}

// setField applies fn to the record of key in culture k. Culture languages
// only receive keys that already exist in the neutral language.
func (e *Entity) setField(k culture.Key, key string, fn func(r *record) bool) ([]Event, error) {
	if !e.neutral.has(key) {
		return nil, fmt.Errorf("%s: %q: %w", e.ID(), key, ErrKeyNotFound)
	}
	l, ok := e.languages[k]
	if !ok {
		return nil, &EditError{Entity: e.ID(), Culture: k, Reason: "language does not exist"}
	}
	existed := l.has(key)
	r := l.ensure(key)
	if !fn(r) && existed {
		return nil, nil
	}
	l.touch()
	return []Event{{Kind: ValueChanged, Entity: e, Culture: k, Key: key}}, nil
}

func (e *Entity) setValue(k culture.Key, key, value string) ([]Event, error) {
	return e.setField(k, key, func(r *record) bool {
		if r.value == value {
			return false
		}
		r.value = value
		return true
	})
}

func (e *Entity) setComment(k culture.Key, key, comment string) ([]Event, error) {
	return e.setField(k, key, func(r *record) bool {
		if r.comment == comment {
			return false
		}
		r.comment = comment
		return true
	})
}

func (e *Entity) setInvariant(k culture.Key, key string, invariant bool) ([]Event, error) {
	return e.setField(k, key, func(r *record) bool {
		if r.invariant == invariant {
			return false
		}
		r.invariant = invariant
		return true
	})
}

// setRuleEnabled records rule toggles on the neutral record; any other
// language that still lists the rule as disabled is cleared on enable.
func (e *Entity) setRuleEnabled(key, ruleID string, enabled bool) ([]Event, error) {
	events, err := e.setField(culture.Neutral, key, func(r *record) bool {
		if enabled {
			if !r.disabled[ruleID] {
				return false
			}
			delete(r.disabled, ruleID)
			return true
		}
		if r.disabled[ruleID] {
			return false
		}
		if r.disabled == nil {
			r.disabled = make(map[string]bool)
		}
		r.disabled[ruleID] = true
		return true
	})
	if err != nil || !enabled {
		return events, err
	}
	for _, l := range e.languages {
		if l.IsNeutral() {
			continue
		}
		if r := l.get(key); r != nil && r.disabled[ruleID] {
			delete(r.disabled, ruleID)
			l.touch()
			events = append(events, Event{Kind: ValueChanged, Entity: e, Culture: l.culture, Key: key})
		}
	}
	return events, nil
}

// adoptOrphans adds culture-only keys to the neutral language so that every
// key of the entity is present in neutral. The neutral file is not marked
// dirty.
func (e *Entity) adoptOrphans() []string {
	var adopted []string
	for _, l := range e.sortedLanguages() {
		if l.IsNeutral() {
			continue
		}
		for _, key := range l.keys {
			if !e.neutral.has(key) {
				e.neutral.ensure(key)
				adopted = append(adopted, key)
			}
		}
	}
	return adopted
}

// keySet returns a sorted copy of the neutral keys, used to detect key set
// changes between reloads.
func (e *Entity) keySet() []string {
	keys := append([]string(nil), e.neutral.keys...)
	sort.Strings(keys)
	return keys
}
