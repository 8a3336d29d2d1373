package snapshot

import (
	"strings"
	"sync"

	"github.com/minios-linux/reskit/culture"
	"github.com/minios-linux/reskit/resource"
)

// DiffKind classifies a cell compared with the snapshot.
type DiffKind int

const (
	Unchanged DiffKind = iota
	Changed
	Added
	Removed
)

func (k DiffKind) String() string {
	switch k {
	case Changed:
		return "changed"
	case Added:
		return "added"
	case Removed:
		return "removed"
	}
	return "unchanged"
}

// Cell is the content of one (entry, culture) cell.
type Cell struct {
	Value     string
	Comment   string
	Invariant bool
}

// CellDiff compares one cell. Old is zero for Added, New for Removed.
type CellDiff struct {
	Entity  string
	Key     string
	Culture culture.Key
	Kind    DiffKind
	Old     Cell
	New     Cell
}

// Summary counts cells per kind.
type Summary struct {
	Unchanged int
	Changed   int
	Added     int
	Removed   int
}

type cellKey struct {
	entity  string
	key     string
	culture culture.Key
}

// Overlay compares the live table of a manager with a loaded snapshot.
// It follows structural changes of the manager until Close is called.
type Overlay struct {
	m           *resource.Manager
	unsubscribe func()

	mu      sync.RWMutex
	snap    *Snapshot
	cells   map[cellKey]Record
	removed []CellDiff
}

// NewOverlay returns an overlay with no snapshot loaded.
func NewOverlay(m *resource.Manager) *Overlay {
	o := &Overlay{m: m}
	o.unsubscribe = m.Subscribe(func(ev resource.Event) {
		if ev.Kind.Structural() {
			o.Reload()
		}
	})
	return o
}

// Close stops following the manager.
func (o *Overlay) Close() {
	if o.unsubscribe != nil {
		o.unsubscribe()
	}
}

// Load parses text and makes it the reference. Empty text unloads the
// current snapshot.
func (o *Overlay) Load(text string) error {
	if strings.TrimSpace(text) == "" {
		o.mu.Lock()
		o.snap, o.cells, o.removed = nil, nil, nil
		o.mu.Unlock()
		return nil
	}
	snap, err := Parse(text)
	if err != nil {
		return err
	}

	cells := make(map[cellKey]Record, len(snap.Records))
	for _, r := range snap.Records {
		cells[cellKey{r.EntityID(), r.Key, r.Culture}] = r
	}

	o.mu.Lock()
	o.snap, o.cells = snap, cells
	o.mu.Unlock()
	o.Reload()
	return nil
}

// Loaded reports whether a snapshot is loaded.
func (o *Overlay) Loaded() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.snap != nil
}

// Reload resolves the snapshot against the current entities again.
func (o *Overlay) Reload() {
	o.mu.RLock()
	snap := o.snap
	o.mu.RUnlock()
	if snap == nil {
		return
	}

	var removed []CellDiff
	for _, r := range snap.Records {
		e, ok := o.m.Entity(r.EntityID())
		if ok && e.HasKey(r.Key) {
			continue
		}
		removed = append(removed, CellDiff{
			Entity:  r.EntityID(),
			Key:     r.Key,
			Culture: r.Culture,
			Kind:    Removed,
			Old:     Cell{Value: r.Value, Comment: r.Comment, Invariant: r.Invariant},
		})
	}

	o.mu.Lock()
	if o.snap == snap {
		o.removed = removed
	}
	o.mu.Unlock()
}

// Diff compares entry with the snapshot for every culture that is captured
// or live. Cultures absent on both sides are left out. A captured cell
// whose culture record is gone is Removed.
func (o *Overlay) Diff(entry *resource.TableEntry) []CellDiff {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.snap == nil {
		return nil
	}

	id := entry.Entity().ID()
	var out []CellDiff
	for _, k := range unionCultures(o.snap.Cultures, entry.Entity().Cultures()) {
		d := CellDiff{Entity: id, Key: entry.Key(), Culture: k}
		live := entry.HasValue(k)
		if live {
			d.New = Cell{Value: entry.Value(k), Comment: entry.Comment(k), Invariant: entry.IsItemInvariant(k)}
		}
		r, captured := o.cells[cellKey{id, entry.Key(), k}]
		if captured {
			d.Old = Cell{Value: r.Value, Comment: r.Comment, Invariant: r.Invariant}
		}
		switch {
		case captured && !live:
			d.Kind = Removed
		case captured:
			if d.Old != d.New {
				d.Kind = Changed
			}
		case live:
			d.Kind = Added
		default:
			continue
		}
		out = append(out, d)
	}
	return out
}

func unionCultures(a, b []culture.Key) []culture.Key {
	seen := make(map[culture.Key]bool, len(a)+len(b))
	var out []culture.Key
	for _, list := range [][]culture.Key{a, b} {
		for _, k := range list {
			if !seen[k] {
				seen[k] = true
				out = append(out, k)
			}
		}
	}
	culture.Sort(out)
	return out
}

// Removed returns the captured cells whose key no longer exists. Cells of
// existing keys whose culture record is gone are reported by Diff.
func (o *Overlay) Removed() []CellDiff {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return append([]CellDiff(nil), o.removed...)
}

// Summary counts the cells of the whole live table per kind.
func (o *Overlay) Summary() Summary {
	var s Summary
	for _, entry := range o.m.TableEntries() {
		for _, d := range o.Diff(entry) {
			switch d.Kind {
			case Unchanged:
				s.Unchanged++
			case Changed:
				s.Changed++
			case Added:
				s.Added++
			case Removed:
				s.Removed++
			}
		}
	}
	s.Removed += len(o.Removed())
	return s
}

// Changes returns every cell that differs from the snapshot, removed cells
// last.
func (o *Overlay) Changes() []CellDiff {
	var out []CellDiff
	for _, entry := range o.m.TableEntries() {
		for _, d := range o.Diff(entry) {
			if d.Kind != Unchanged {
				out = append(out, d)
			}
		}
	}
	return append(out, o.Removed()...)
}

// RevertChanges returns the changes that restore the snapshot content of
// changed cells and re-create removed keys. Added cells are kept. Keys of
// entities that no longer exist cannot be restored and are left out.
func (o *Overlay) RevertChanges() resource.ChangeSet {
	var cs resource.ChangeSet
	for _, entry := range o.m.TableEntries() {
		for _, d := range o.Diff(entry) {
			if d.Kind == Changed || d.Kind == Removed {
				cs = append(cs, restore(d, d.New)...)
			}
		}
	}

	added := make(map[[2]string]bool)
	for _, d := range o.Removed() {
		if _, ok := o.m.Entity(d.Entity); !ok {
			continue
		}
		k := [2]string{d.Entity, d.Key}
		if !added[k] {
			added[k] = true
			cs = append(cs, resource.Change{Kind: resource.AddKey, Entity: d.Entity, Key: d.Key})
		}
		cs = append(cs, restore(d, Cell{})...)
	}
	return cs
}

// restore returns the changes that turn cur into d.Old.
func restore(d CellDiff, cur Cell) resource.ChangeSet {
	var cs resource.ChangeSet
	if d.Old.Value != cur.Value {
		cs = append(cs, resource.Change{Kind: resource.SetValue, Entity: d.Entity, Key: d.Key, Culture: d.Culture, Text: d.Old.Value})
	}
	if d.Old.Comment != cur.Comment {
		cs = append(cs, resource.Change{Kind: resource.SetComment, Entity: d.Entity, Key: d.Key, Culture: d.Culture, Text: d.Old.Comment})
	}
	if d.Old.Invariant != cur.Invariant {
		cs = append(cs, resource.Change{Kind: resource.SetInvariant, Entity: d.Entity, Key: d.Key, Culture: d.Culture, Flag: d.Old.Invariant})
	}
	return cs
}
