// Package snapshot captures the resource table as JSON and compares the
// live table against such a capture.
package snapshot

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/minios-linux/reskit/culture"
	"github.com/minios-linux/reskit/resource"
)

// Record is one cell of a snapshot.
type Record struct {
	Project   string      `json:"project"`
	Entity    string      `json:"entity"`
	Key       string      `json:"key"`
	Culture   culture.Key `json:"culture"`
	Value     string      `json:"value"`
	Comment   string      `json:"comment,omitempty"`
	Invariant bool        `json:"invariant,omitempty"`
}

// EntityID returns the ID of the entity the record belongs to.
func (r Record) EntityID() string { return resource.EntityID(r.Project, r.Entity) }

// Snapshot is an immutable capture of part of the resource table.
type Snapshot struct {
	Cultures []culture.Key `json:"cultures"`
	Records  []Record      `json:"records"`
}

// Capture records every cell of scope that exists in the live table.
// Records are ordered by project, entity, neutral key order and culture.
func Capture(m *resource.Manager, scope resource.Scope) *Snapshot {
	cultures := scope.ResolveLanguages(m)
	snap := &Snapshot{Cultures: cultures, Records: []Record{}}

	entries := append([]*resource.TableEntry(nil), scope.ResolveEntries(m)...)
	order := make(map[string]map[string]int)
	position := func(entry *resource.TableEntry) int {
		e := entry.Entity()
		pos, ok := order[e.ID()]
		if !ok {
			pos = make(map[string]int)
			for i, k := range e.Keys() {
				pos[k] = i
			}
			order[e.ID()] = pos
		}
		return pos[entry.Key()]
	}
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i].Entity(), entries[j].Entity()
		if a.Project() != b.Project() {
			return a.Project() < b.Project()
		}
		if a.RelativeName() != b.RelativeName() {
			return a.RelativeName() < b.RelativeName()
		}
		return position(entries[i]) < position(entries[j])
	})

	for _, entry := range entries {
		if !entry.Exists() {
			continue
		}
		e := entry.Entity()
		for _, k := range cultures {
			if !entry.HasValue(k) {
				continue
			}
			snap.Records = append(snap.Records, Record{
				Project:   e.Project(),
				Entity:    e.RelativeName(),
				Key:       entry.Key(),
				Culture:   k,
				Value:     entry.Value(k),
				Comment:   entry.Comment(k),
				Invariant: entry.IsItemInvariant(k),
			})
		}
	}
	return snap
}

// Create captures scope and returns it as JSON text.
func Create(m *resource.Manager, scope resource.Scope) (string, error) {
	data, err := json.MarshalIndent(Capture(m, scope), "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding snapshot: %w", err)
	}
	return string(data), nil
}

// Parse decodes snapshot text produced by Create.
func Parse(text string) (*Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal([]byte(text), &snap); err != nil {
		return nil, fmt.Errorf("parsing snapshot: %w", err)
	}
	return &snap, nil
}
