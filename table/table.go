// Package table converts the resource table to and from sheets of text
// cells, the representation used for spreadsheet round trips.
//
// Export writes one row per key. Import validates every sheet first and
// then produces a ChangeSet holding only the differences to the live
// table; nothing is modified until the caller applies it.
package table

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/minios-linux/reskit/culture"
	"github.com/minios-linux/reskit/resource"
)

// Mode selects the sheet layout.
type Mode int

const (
	// SingleSheet puts every entity into one sheet with Project and Entity
	// columns.
	SingleSheet Mode = iota
	// SheetPerEntity writes one sheet per entity, named after the entity.
	SheetPerEntity
)

// ParseMode parses "single" or "per-entity".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "", "single":
		return SingleSheet, nil
	case "per-entity", "multiple":
		return SheetPerEntity, nil
	}
	return 0, fmt.Errorf("unknown export mode %q (valid: single, per-entity)", s)
}

func (m Mode) String() string {
	if m == SheetPerEntity {
		return "per-entity"
	}
	return "single"
}

// Sheet is a named grid of cells. Rows[0] is the header.
type Sheet struct {
	Name string
	Rows [][]string
}

// ---------------------------------------------------------------------------
// Export
// ---------------------------------------------------------------------------

type column struct {
	culture culture.Key
	comment bool
}

// Export renders the scope as sheets. Entities are ordered by project and
// relative name, keys by neutral order and cultures by culture order.
func Export(m *resource.Manager, scope resource.Scope, mode Mode) []Sheet {
	var cols []column
	for _, k := range scope.ResolveLanguages(m) {
		if scope.HasComment(k) {
			cols = append(cols, column{culture: k, comment: true})
		}
		cols = append(cols, column{culture: k})
	}

	groups := groupByEntity(scope.ResolveEntries(m))

	cultureHeader := make([]string, len(cols))
	for i, c := range cols {
		cultureHeader[i] = ColumnName(c.culture, c.comment)
	}

	if mode == SingleSheet {
		header := append([]string{ColumnProject, ColumnEntity, ColumnKey}, cultureHeader...)
		sheet := Sheet{Rows: [][]string{header}}
		for _, g := range groups {
			for _, entry := range g.entries {
				row := []string{g.entity.Project(), g.entity.RelativeName(), entry.Key()}
				sheet.Rows = append(sheet.Rows, append(row, cells(entry, cols)...))
			}
		}
		return []Sheet{sheet}
	}

	names := sheetNames(m)
	header := append([]string{ColumnKey}, cultureHeader...)
	sheets := make([]Sheet, 0, len(groups))
	for _, g := range groups {
		sheet := Sheet{Name: names[g.entity.ID()], Rows: [][]string{header}}
		for _, entry := range g.entries {
			sheet.Rows = append(sheet.Rows, append([]string{entry.Key()}, cells(entry, cols)...))
		}
		sheets = append(sheets, sheet)
	}
	return sheets
}

func cells(entry *resource.TableEntry, cols []column) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		if c.comment {
			out[i] = entry.Comment(c.culture)
		} else {
			out[i] = entry.Value(c.culture)
		}
	}
	return out
}

type entityGroup struct {
	entity  *resource.Entity
	entries []*resource.TableEntry
}

// groupByEntity orders entries by entity and, within an entity, by the
// neutral key order.
func groupByEntity(entries []*resource.TableEntry) []*entityGroup {
	byID := make(map[string]*entityGroup)
	var groups []*entityGroup
	for _, entry := range entries {
		if !entry.Exists() {
			continue
		}
		e := entry.Entity()
		g, ok := byID[e.ID()]
		if !ok {
			g = &entityGroup{entity: e}
			byID[e.ID()] = g
			groups = append(groups, g)
		}
		g.entries = append(g.entries, entry)
	}

	sort.Slice(groups, func(i, j int) bool {
		a, b := groups[i].entity, groups[j].entity
		if a.Project() != b.Project() {
			return a.Project() < b.Project()
		}
		return a.RelativeName() < b.RelativeName()
	})
	for _, g := range groups {
		pos := make(map[string]int)
		for i, k := range g.entity.Keys() {
			pos[k] = i
		}
		sort.SliceStable(g.entries, func(i, j int) bool {
			return pos[g.entries[i].Key()] < pos[g.entries[j].Key()]
		})
	}
	return groups
}

// sheetNames names each entity by its relative name, falling back to the
// full ID when several projects share the relative name.
func sheetNames(m *resource.Manager) map[string]string {
	count := make(map[string]int)
	entities := m.Entities()
	for _, e := range entities {
		count[e.RelativeName()]++
	}
	names := make(map[string]string, len(entities))
	for _, e := range entities {
		if count[e.RelativeName()] > 1 {
			names[e.ID()] = e.ID()
		} else {
			names[e.ID()] = e.RelativeName()
		}
	}
	return names
}

// ---------------------------------------------------------------------------
// Import
// ---------------------------------------------------------------------------

type importRow struct {
	sheet  string
	line   int
	entity *resource.Entity
	key    string
	remove bool
	cells  map[column]string
}

type rowKey struct {
	entity string
	key    string
}

// Import validates sheets and returns the changes needed to make the table
// match them. Keys not mentioned are left alone. Duplicate rows for one key
// follow policy: reject fails the import, rename imports the later row as a
// new "<key>_Duplicate<n>" key, overwrite lets the later row win.
func Import(m *resource.Manager, sheets []Sheet, policy resource.DuplicateKeyHandling) (resource.ChangeSet, error) {
	var rows []*importRow
	index := make(map[rowKey]int)

	for _, sheet := range sheets {
		if len(sheet.Rows) == 0 {
			continue
		}
		h, err := ParseHeader(sheet.Rows[0])
		if err != nil {
			var ie *ImportError
			if errors.As(err, &ie) {
				ie.Sheet = sheet.Name
			}
			return nil, err
		}
		if h.Entity < 0 && sheet.Name == "" {
			return nil, &ImportError{Sheet: sheet.Name, Row: 1, Err: fmt.Errorf("missing %s column", ColumnEntity)}
		}

		for i, raw := range sheet.Rows[1:] {
			line := i + 2
			fail := func(col int, err error) error {
				return &ImportError{Sheet: sheet.Name, Row: line, Column: col, Err: err}
			}
			if blank(raw) {
				continue
			}
			if len(raw) > h.width {
				return nil, fail(0, fmt.Errorf("%d cells, header has %d", len(raw), h.width))
			}
			cell := func(idx int) string {
				if idx < 0 || idx >= len(raw) {
					return ""
				}
				return raw[idx]
			}

			e, err := resolveEntity(m, cell(h.Project), cell(h.Entity), sheet.Name)
			if err != nil {
				return nil, fail(h.Entity+1, err)
			}
			key := cell(h.Key)
			if key == "" {
				return nil, fail(h.Key+1, fmt.Errorf("empty key"))
			}

			r := &importRow{sheet: sheet.Name, line: line, entity: e, key: key, cells: make(map[column]string)}
			switch strings.ToLower(strings.TrimSpace(cell(h.Action))) {
			case "":
			case ActionRemove:
				r.remove = true
			default:
				return nil, fail(h.Action+1, fmt.Errorf("unknown action %q", cell(h.Action)))
			}
			for _, c := range h.Cells {
				r.cells[column{culture: c.Culture, comment: c.Comment}] = cell(c.Index)
			}

			rk := rowKey{e.ID(), key}
			if first, dup := index[rk]; dup {
				switch policy {
				case resource.DuplicateKeyRename:
					r.key = resource.DuplicateName(key, func(s string) bool {
						_, seen := index[rowKey{e.ID(), s}]
						return seen || e.HasKey(s)
					})
					rk = rowKey{e.ID(), r.key}
				case resource.DuplicateKeyOverwrite:
					rows[first] = r
					continue
				default:
					return nil, fail(h.Key+1, fmt.Errorf("key %q of %s duplicates row %d", key, e.ID(), rows[first].line))
				}
			}
			index[rk] = len(rows)
			rows = append(rows, r)
		}
	}

	var cs resource.ChangeSet
	for _, r := range rows {
		cs = append(cs, diffRow(r)...)
	}
	return cs, nil
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func resolveEntity(m *resource.Manager, project, name, sheetName string) (*resource.Entity, error) {
	if name == "" {
		name = sheetName
	}
	if name == "" {
		return nil, fmt.Errorf("empty entity")
	}
	if project == "" && strings.Contains(name, ":") {
		if e, ok := m.Entity(name); ok {
			return e, nil
		}
	}
	return m.FindEntity(project, name)
}

// diffRow returns the changes that make the entity match r.
func diffRow(r *importRow) resource.ChangeSet {
	id := r.entity.ID()
	entry, exists := r.entity.Entry(r.key)

	if r.remove {
		if !exists {
			return nil
		}
		return resource.ChangeSet{{Kind: resource.RemoveKey, Entity: id, Key: r.key}}
	}

	cols := make([]column, 0, len(r.cells))
	for c := range r.cells {
		cols = append(cols, c)
	}
	sort.Slice(cols, func(i, j int) bool {
		if cols[i].culture != cols[j].culture {
			return cols[i].culture.Compare(cols[j].culture) < 0
		}
		return !cols[i].comment && cols[j].comment
	})

	var cs resource.ChangeSet
	if !exists {
		cs = append(cs, resource.Change{Kind: resource.AddKey, Entity: id, Key: r.key})
	}
	for _, c := range cols {
		text := r.cells[c]
		if exists {
			current := entry.Value(c.culture)
			if c.comment {
				current = entry.Comment(c.culture)
			}
			if text == current {
				continue
			}
		} else if text == "" {
			// Empty cells of a new key would only create empty records.
			continue
		}
		kind := resource.SetValue
		if c.comment {
			kind = resource.SetComment
		}
		cs = append(cs, resource.Change{Kind: kind, Entity: id, Key: r.key, Culture: c.culture, Text: text})
	}
	return cs
}
