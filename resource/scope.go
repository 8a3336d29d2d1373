package resource

import "github.com/minios-linux/reskit/culture"

// Scope selects the part of the table that export and snapshot operate on.
type Scope struct {
	// Entries to include; nil means every entry of every entity.
	Entries []*TableEntry
	// Languages whose values are included; nil means every culture.
	Languages []culture.Key
	// Comments lists the cultures whose comments are included; nil means none.
	Comments []culture.Key
}

// FullScope selects everything; with comments set, every culture's comment
// is included as well.
func FullScope(m *Manager, withComments bool) Scope {
	s := Scope{Languages: m.Cultures()}
	if withComments {
		s.Comments = s.Languages
	}
	return s
}

// ResolveEntries returns the selected entries.
func (s Scope) ResolveEntries(m *Manager) []*TableEntry {
	if s.Entries == nil {
		return m.TableEntries()
	}
	return s.Entries
}

// ResolveLanguages returns the selected cultures in culture order.
func (s Scope) ResolveLanguages(m *Manager) []culture.Key {
	if s.Languages == nil {
		return m.Cultures()
	}
	keys := append([]culture.Key(nil), s.Languages...)
	culture.Sort(keys)
	return keys
}

// HasComment reports whether comments of culture k are selected.
func (s Scope) HasComment(k culture.Key) bool {
	for _, c := range s.Comments {
		if c == k {
			return true
		}
	}
	return false
}
