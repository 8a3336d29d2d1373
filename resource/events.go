package resource

import (
	"sync"

	"github.com/minios-linux/reskit/culture"
)

// EventKind classifies change notifications.
type EventKind int

const (
	EntityAdded EventKind = iota + 1
	EntityRemoved
	LanguageAdded
	KeyAdded
	KeyRemoved
	KeyRenamed
	ValueChanged
	LanguageSaved
)

var eventKindNames = map[EventKind]string{
	EntityAdded:   "entity-added",
	EntityRemoved: "entity-removed",
	LanguageAdded: "language-added",
	KeyAdded:      "key-added",
	KeyRemoved:    "key-removed",
	KeyRenamed:    "key-renamed",
	ValueChanged:  "value-changed",
	LanguageSaved: "language-saved",
}

func (k EventKind) String() string {
	if s, ok := eventKindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Structural reports whether the event changes the set of entities or keys.
func (k EventKind) Structural() bool {
	switch k {
	case EntityAdded, EntityRemoved, KeyAdded, KeyRemoved, KeyRenamed:
		return true
	}
	return false
}

// Event is a change notification. Fields that do not apply to the kind are
// left zero.
type Event struct {
	Kind    EventKind
	Entity  *Entity
	Culture culture.Key
	Key     string
	// OldKey is set for KeyRenamed.
	OldKey string
}

// Listener receives events synchronously, after the entity lock has been
// released.
type Listener func(Event)

// BeginEditingFunc is asked before any mutation of (entity, culture).
// Returning false vetoes the edit.
type BeginEditingFunc func(e *Entity, k culture.Key) bool

type subscription[T any] struct {
	id int
	fn T
}

type eventBus struct {
	mu        sync.RWMutex
	nextID    int
	listeners []subscription[Listener]
	guards    []subscription[BeginEditingFunc]
}

func removeSub[T any](subs []subscription[T], id int) []subscription[T] {
	for i, s := range subs {
		if s.id == id {
			return append(subs[:i:i], subs[i+1:]...)
		}
	}
	return subs
}

func (b *eventBus) subscribe(l Listener) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.listeners = append(b.listeners, subscription[Listener]{id: id, fn: l})
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.listeners = removeSub(b.listeners, id)
	}
}

func (b *eventBus) guard(g BeginEditingFunc) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.guards = append(b.guards, subscription[BeginEditingFunc]{id: id, fn: g})
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.guards = removeSub(b.guards, id)
	}
}

func (b *eventBus) publish(events ...Event) {
	if len(events) == 0 {
		return
	}
	b.mu.RLock()
	subs := append([]subscription[Listener](nil), b.listeners...)
	b.mu.RUnlock()
	for _, ev := range events {
		for _, s := range subs {
			s.fn(ev)
		}
	}
}

// beginEditing asks every guard; the first veto wins.
func (b *eventBus) beginEditing(e *Entity, k culture.Key) bool {
	b.mu.RLock()
	guards := append([]subscription[BeginEditingFunc](nil), b.guards...)
	b.mu.RUnlock()
	for _, g := range guards {
		if !g.fn(e, k) {
			return false
		}
	}
	return true
}
