package resource

import (
	"context"
	"errors"
	"fmt"

	"github.com/minios-linux/reskit/culture"
)

// ChangeKind identifies the edit a Change performs.
type ChangeKind int

const (
	SetValue ChangeKind = iota + 1
	SetComment
	SetInvariant
	AddKey
	RemoveKey
	RenameKey
)

func (k ChangeKind) String() string {
	switch k {
	case SetValue:
		return "set-value"
	case SetComment:
		return "set-comment"
	case SetInvariant:
		return "set-invariant"
	case AddKey:
		return "add-key"
	case RemoveKey:
		return "remove-key"
	case RenameKey:
		return "rename-key"
	}
	return fmt.Sprintf("ChangeKind(%d)", int(k))
}

// Change is one atomic edit. Entity is the entity ID. Culture applies to the
// Set kinds; Text carries the value or comment; Flag carries the invariant
// state; NewKey is the rename target.
type Change struct {
	Kind    ChangeKind
	Entity  string
	Key     string
	NewKey  string
	Culture culture.Key
	Text    string
	Flag    bool
}

func (c Change) String() string {
	switch c.Kind {
	case RenameKey:
		return fmt.Sprintf("%s %s/%s -> %s", c.Kind, c.Entity, c.Key, c.NewKey)
	case AddKey, RemoveKey:
		return fmt.Sprintf("%s %s/%s", c.Kind, c.Entity, c.Key)
	case SetInvariant:
		return fmt.Sprintf("%s %s/%s [%s] %t", c.Kind, c.Entity, c.Key, c.Culture, c.Flag)
	}
	return fmt.Sprintf("%s %s/%s [%s] %q", c.Kind, c.Entity, c.Key, c.Culture, c.Text)
}

// ChangeSet is an ordered list of changes applied by Manager.Apply.
type ChangeSet []Change

// ApplyResult reports the outcome of Apply.
type ApplyResult struct {
	Applied int
	Skipped int
	// Denied lists each (entity, culture) pair that CanEdit or a guard
	// refused. Changes touching a denied pair were skipped.
	Denied []*EditError
}

type editPair struct {
	entity  string
	culture culture.Key
}

type entityKey struct {
	entity string
	key    string
}

// Apply validates cs as a whole and then applies it in order. A structurally
// invalid set returns a *ChangeError and changes nothing. Changes whose
// (entity, culture) pair may not be edited are skipped and reported in the
// result, together with the later changes that depend on them; the rest is
// applied.
func (m *Manager) Apply(ctx context.Context, cs ChangeSet) (*ApplyResult, error) {
	entities, err := m.validate(cs)
	if err != nil {
		return nil, err
	}

	result := &ApplyResult{}
	decided := make(map[editPair]error)
	allowed := func(e *Entity, k culture.Key) bool {
		p := editPair{entity: e.ID(), culture: k}
		err, ok := decided[p]
		if !ok {
			err = m.beginEdit(e, k)
			decided[p] = err
			var ee *EditError
			if errors.As(err, &ee) {
				result.Denied = append(result.Denied, ee)
			}
		}
		return err == nil
	}

	// Decide every pair before anything is mutated, so that guards see the
	// state the set was produced against. A skipped add, remove or rename
	// also skips every later change of the keys it names, and the key sets
	// are replayed without skipped changes, so the apply loop below only
	// sees changes that fit.
	skip := make([]bool, len(cs))
	keySets := make(map[string]map[string]bool)
	tainted := make(map[entityKey]bool)
	for i, c := range cs {
		e := entities[i]
		keys, ok := keySets[c.Entity]
		if !ok {
			keys = keySet(e)
			keySets[c.Entity] = keys
		}
		switch {
		case tainted[entityKey{c.Entity, c.Key}],
			c.Kind == RenameKey && tainted[entityKey{c.Entity, c.NewKey}],
			!fits(keys, c):
			skip[i] = true
		case c.Kind == AddKey:
			skip[i] = !allowed(e, culture.Neutral)
		case c.Kind == RemoveKey, c.Kind == RenameKey:
			for _, l := range e.Languages() {
				if _, has := l.Value(c.Key); !has && !l.IsNeutral() {
					continue
				}
				if !allowed(e, l.culture) {
					skip[i] = true
				}
			}
		default:
			skip[i] = !allowed(e, c.Culture)
		}

		switch {
		case !skip[i]:
			replay(keys, c)
		case c.Kind == AddKey, c.Kind == RemoveKey:
			tainted[entityKey{c.Entity, c.Key}] = true
		case c.Kind == RenameKey:
			tainted[entityKey{c.Entity, c.Key}] = true
			tainted[entityKey{c.Entity, c.NewKey}] = true
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for i, c := range cs {
		if skip[i] {
			result.Skipped++
			continue
		}
		e := entities[i]
		e.mu.Lock()
		events, err := applyChange(e, c)
		e.mu.Unlock()
		if err != nil {
			return result, &ChangeError{Index: i, Change: c, Err: err}
		}
		m.committed(events)
		result.Applied++
	}

	m.log.Info("change set applied", "changes", len(cs), "applied", result.Applied, "skipped", result.Skipped, "denied", len(result.Denied))
	return result, nil
}

func keySet(e *Entity) map[string]bool {
	keys := make(map[string]bool)
	for _, k := range e.Keys() {
		keys[k] = true
	}
	return keys
}

// fits reports whether c can be applied to an entity holding keys.
func fits(keys map[string]bool, c Change) bool {
	switch c.Kind {
	case AddKey:
		return !keys[c.Key]
	case RenameKey:
		return keys[c.Key] && (c.NewKey == c.Key || !keys[c.NewKey])
	}
	return keys[c.Key]
}

// replay applies the key set effect of c to keys.
func replay(keys map[string]bool, c Change) {
	switch c.Kind {
	case AddKey:
		keys[c.Key] = true
	case RemoveKey:
		delete(keys, c.Key)
	case RenameKey:
		delete(keys, c.Key)
		keys[c.NewKey] = true
	}
}

func applyChange(e *Entity, c Change) ([]Event, error) {
	switch c.Kind {
	case SetValue:
		return e.setValue(c.Culture, c.Key, c.Text)
	case SetComment:
		return e.setComment(c.Culture, c.Key, c.Text)
	case SetInvariant:
		return e.setInvariant(c.Culture, c.Key, c.Flag)
	case AddKey:
		return e.addKey(c.Key)
	case RemoveKey:
		return e.removeKey(c.Key)
	case RenameKey:
		return e.renameKey(c.Key, c.NewKey)
	}
	return nil, fmt.Errorf("unknown change kind %d", int(c.Kind))
}

// validate resolves the entity of every change and replays the key set
// edits without touching the entities.
func (m *Manager) validate(cs ChangeSet) ([]*Entity, error) {
	entities := make([]*Entity, len(cs))
	keySets := make(map[string]map[string]bool)

	for i, c := range cs {
		e, ok := m.Entity(c.Entity)
		if !ok {
			return nil, &ChangeError{Index: i, Change: c, Err: ErrEntityNotFound}
		}
		entities[i] = e

		keys, ok := keySets[c.Entity]
		if !ok {
			keys = keySet(e)
			keySets[c.Entity] = keys
		}

		fail := func(err error) error {
			return &ChangeError{Index: i, Change: c, Err: err}
		}
		if c.Key == "" {
			return nil, fail(fmt.Errorf("empty key"))
		}

		switch c.Kind {
		case AddKey:
			if keys[c.Key] {
				return nil, fail(ErrKeyExists)
			}
			keys[c.Key] = true
		case RemoveKey:
			if !keys[c.Key] {
				return nil, fail(ErrKeyNotFound)
			}
			delete(keys, c.Key)
		case RenameKey:
			if !keys[c.Key] {
				return nil, fail(ErrKeyNotFound)
			}
			if c.NewKey == "" {
				return nil, fail(fmt.Errorf("empty rename target"))
			}
			if c.NewKey != c.Key && keys[c.NewKey] {
				return nil, fail(ErrKeyExists)
			}
			delete(keys, c.Key)
			keys[c.NewKey] = true
		case SetValue, SetComment, SetInvariant:
			if !keys[c.Key] {
				return nil, fail(ErrKeyNotFound)
			}
		default:
			return nil, fail(fmt.Errorf("unknown change kind %d", int(c.Kind)))
		}
	}
	return entities, nil
}
