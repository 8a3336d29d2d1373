package resource

import (
	"fmt"
	"sort"

	"github.com/minios-linux/reskit/culture"
)

// DuplicateKeyHandling selects what happens when a key occurs twice in one
// culture file or in one import.
type DuplicateKeyHandling string

const (
	// DuplicateKeyReject keeps the first occurrence and records the duplicate.
	// Imports containing duplicate rows are refused.
	DuplicateKeyReject DuplicateKeyHandling = "reject"
	// DuplicateKeyRename keeps every occurrence, renaming later ones to
	// "<key>_Duplicate<n>".
	DuplicateKeyRename DuplicateKeyHandling = "rename"
	// DuplicateKeyOverwrite keeps the position of the first occurrence and
	// the value of the last.
	DuplicateKeyOverwrite DuplicateKeyHandling = "overwrite"
)

// ParseDuplicateKeyHandling validates a policy name. Empty means reject.
func ParseDuplicateKeyHandling(s string) (DuplicateKeyHandling, error) {
	switch DuplicateKeyHandling(s) {
	case "":
		return DuplicateKeyReject, nil
	case DuplicateKeyReject, DuplicateKeyRename, DuplicateKeyOverwrite:
		return DuplicateKeyHandling(s), nil
	}
	return "", fmt.Errorf("unknown duplicate key handling %q (valid: reject, rename, overwrite)", s)
}

// DuplicateName returns the first "<key>_Duplicate<n>" not accepted by taken.
func DuplicateName(key string, taken func(string) bool) string {
	for n := 1; ; n++ {
		cand := fmt.Sprintf("%s_Duplicate%d", key, n)
		if !taken(cand) {
			return cand
		}
	}
}

// ---------------------------------------------------------------------------
// Language
// ---------------------------------------------------------------------------

type record struct {
	value     string
	comment   string
	invariant bool
	disabled  map[string]bool
}

func (r *record) empty() bool {
	return r.value == "" && r.comment == "" && !r.invariant && len(r.disabled) == 0
}

// Language is the key table of one culture of one entity. All data is
// guarded by the owning entity's lock.
type Language struct {
	entity  *Entity
	culture culture.Key
	path    string

	keys       []string
	records    map[string]*record
	duplicates map[string]int

	dirty   bool
	version uint64
}

func newLanguage(e *Entity, k culture.Key, path string, recs []Record, policy DuplicateKeyHandling) *Language {
	l := &Language{
		entity:     e,
		culture:    k,
		path:       path,
		records:    make(map[string]*record, len(recs)),
		duplicates: make(map[string]int),
	}

	for _, r := range recs {
		rec := recordFrom(r)
		key := r.Key
		if _, exists := l.records[key]; exists {
			switch policy {
			case DuplicateKeyRename:
				key = DuplicateName(key, func(s string) bool { _, ok := l.records[s]; return ok })
			case DuplicateKeyOverwrite:
				l.duplicates[key]++
				l.records[key] = rec
				continue
			default:
				l.duplicates[key]++
				continue
			}
		}
		l.keys = append(l.keys, key)
		l.records[key] = rec
	}
	return l
}

func recordFrom(r Record) *record {
	rec := &record{value: r.Value, comment: r.Comment, invariant: r.Invariant}
	for _, id := range r.DisabledRules {
		if rec.disabled == nil {
			rec.disabled = make(map[string]bool)
		}
		rec.disabled[id] = true
	}
	return rec
}

// Entity returns the owning entity.
func (l *Language) Entity() *Entity { return l.entity }

// Culture returns the culture key of the language.
func (l *Language) Culture() culture.Key { return l.culture }

// Path returns the backing file path.
func (l *Language) Path() string { return l.path }

// IsNeutral reports whether this is the neutral language of its entity.
func (l *Language) IsNeutral() bool { return l.culture.IsNeutral() }

// Keys returns the keys in file order.
func (l *Language) Keys() []string {
	l.entity.mu.RLock()
	defer l.entity.mu.RUnlock()
	return append([]string(nil), l.keys...)
}

// Value returns the value stored for key and whether the key exists.
func (l *Language) Value(key string) (string, bool) {
	l.entity.mu.RLock()
	defer l.entity.mu.RUnlock()
	if r, ok := l.records[key]; ok {
		return r.value, true
	}
	return "", false
}

// HasChanges reports whether the language has unsaved changes.
func (l *Language) HasChanges() bool {
	l.entity.mu.RLock()
	defer l.entity.mu.RUnlock()
	return l.dirty
}

// Duplicates returns how many extra occurrences of each duplicated key the
// backing file contained when it was loaded.
func (l *Language) Duplicates() map[string]int {
	l.entity.mu.RLock()
	defer l.entity.mu.RUnlock()
	m := make(map[string]int, len(l.duplicates))
	for k, n := range l.duplicates {
		m[k] = n
	}
	return m
}

// Stats returns (total, translated, percentTranslated) for this language
// measured against the neutral key set.
func (l *Language) Stats() (int, int, float64) {
	l.entity.mu.RLock()
	defer l.entity.mu.RUnlock()

	total := len(l.entity.neutral.keys)
	translated := 0
	for _, key := range l.entity.neutral.keys {
		if r, ok := l.records[key]; ok && (r.value != "" || r.invariant) {
			translated++
		}
	}
	pct := 0.0
	if total > 0 {
		pct = float64(translated) / float64(total) * 100
	}
	return total, translated, pct
}

// ---------------------------------------------------------------------------
// Unlocked helpers (caller holds the entity lock)
// ---------------------------------------------------------------------------

func (l *Language) has(key string) bool {
	_, ok := l.records[key]
	return ok
}

func (l *Language) get(key string) *record {
	return l.records[key]
}

// ensure returns the record for key, appending an empty one if missing.
func (l *Language) ensure(key string) *record {
	if r, ok := l.records[key]; ok {
		return r
	}
	r := &record{}
	l.keys = append(l.keys, key)
	l.records[key] = r
	return r
}

func (l *Language) remove(key string) bool {
	if _, ok := l.records[key]; !ok {
		return false
	}
	delete(l.records, key)
	delete(l.duplicates, key)
	for i, k := range l.keys {
		if k == key {
			l.keys = append(l.keys[:i], l.keys[i+1:]...)
			break
		}
	}
	return true
}

func (l *Language) rename(oldKey, newKey string) bool {
	r, ok := l.records[oldKey]
	if !ok {
		return false
	}
	delete(l.records, oldKey)
	l.records[newKey] = r
	if n, dup := l.duplicates[oldKey]; dup {
		delete(l.duplicates, oldKey)
		l.duplicates[newKey] = n
	}
	for i, k := range l.keys {
		if k == oldKey {
			l.keys[i] = newKey
			break
		}
	}
	return true
}

func (l *Language) touch() {
	l.dirty = true
	l.version++
}

// snapshotRecords copies the table for writing. With prune set, culture
// records that carry no content are left out.
func (l *Language) snapshotRecords(prune bool) []Record {
	out := make([]Record, 0, len(l.keys))
	for _, key := range l.keys {
		r := l.records[key]
		if prune && !l.culture.IsNeutral() && r.empty() {
			continue
		}
		rec := Record{Key: key, Value: r.value, Comment: r.comment, Invariant: r.invariant}
		for id := range r.disabled {
			rec.DisabledRules = append(rec.DisabledRules, id)
		}
		sort.Strings(rec.DisabledRules)
		out = append(out, rec)
	}
	return out
}
