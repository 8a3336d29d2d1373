// Package resource implements the multi-culture resource model: languages
// (one per culture file), entities (all culture files of one logical
// resource), table entries (one key across all cultures) and the Manager
// that loads, edits and saves them.
//
// Every mutation goes through the Manager: it checks CanEdit, asks the
// begin-editing guards, applies the change under the entity lock, marks the
// language dirty and then notifies listeners.
package resource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/minios-linux/reskit/culture"
)

// Options configures a Manager.
type Options struct {
	// NeutralCulture is the language the neutral files are written in.
	NeutralCulture culture.Key
	// Root is the writable root directory. Missing culture files are only
	// created for entities below Root; empty disables creation.
	Root string
	// SaveImmediately writes a language as soon as an edit is committed.
	SaveImmediately bool
	// DuplicateKeys is the policy for duplicate keys in files and imports.
	DuplicateKeys DuplicateKeyHandling
	// RemoveEmptyEntries drops culture records without content on save.
	RemoveEmptyEntries bool
	// Logger receives structured logs. Defaults to slog.Default().
	Logger *slog.Logger
}

func (o *Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

func (o *Options) duplicatePolicy() DuplicateKeyHandling {
	if o.DuplicateKeys == "" {
		return DuplicateKeyReject
	}
	return o.DuplicateKeys
}

// Manager is the registry of all entities of a source tree.
type Manager struct {
	store  Store
	opts   Options
	log    *slog.Logger
	events eventBus

	mu          sync.RWMutex
	entities    []*Entity
	byID        map[string]*Entity
	sourceFiles []FileRef

	// opMu guards reloadOp and serialises the commit step of Reload.
	opMu     sync.Mutex
	reloadOp *operation

	// saveMu keeps two writers off the same file.
	saveMu sync.Mutex
}

type operation struct {
	cancel context.CancelFunc
}

// NewManager returns an empty manager that persists through store.
func NewManager(store Store, opts Options) *Manager {
	return &Manager{
		store: store,
		opts:  opts,
		log:   opts.logger(),
		byID:  make(map[string]*Entity),
	}
}

// Options returns the options the manager was created with.
func (m *Manager) Options() Options { return m.opts }

// Subscribe registers a listener for change events. The returned function
// removes it.
func (m *Manager) Subscribe(l Listener) (unsubscribe func()) {
	return m.events.subscribe(l)
}

// OnBeginEditing registers a guard that may veto edits.
func (m *Manager) OnBeginEditing(g BeginEditingFunc) (unsubscribe func()) {
	return m.events.guard(g)
}

// ---------------------------------------------------------------------------
// Queries
// ---------------------------------------------------------------------------

// Entities returns all entities ordered by project and relative name.
func (m *Manager) Entities() []*Entity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*Entity(nil), m.entities...)
}

// Entity returns the entity with the given ID.
func (m *Manager) Entity(id string) (*Entity, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.byID[id]
	return e, ok
}

// FindEntities returns the entities whose relative name or base name is
// name, optionally restricted to project.
func (m *Manager) FindEntities(project, name string) []*Entity {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var exact, byBase []*Entity
	for _, e := range m.entities {
		if project != "" && e.project != project {
			continue
		}
		switch {
		case e.relName == name:
			exact = append(exact, e)
		case e.name == name:
			byBase = append(byBase, e)
		}
	}
	if len(exact) > 0 {
		return exact
	}
	return byBase
}

// FindEntity returns the single entity matching name as FindEntities does.
// It fails when the name is unknown or ambiguous.
func (m *Manager) FindEntity(project, name string) (*Entity, error) {
	found := m.FindEntities(project, name)
	switch len(found) {
	case 0:
		return nil, fmt.Errorf("%s: %w", EntityID(project, name), ErrEntityNotFound)
	case 1:
		return found[0], nil
	}
	ids := make([]string, len(found))
	for i, e := range found {
		ids[i] = e.ID()
	}
	return nil, fmt.Errorf("entity name %q is ambiguous: %s", name, strings.Join(ids, ", "))
}

// TableEntries returns all entries of all entities in entity order.
func (m *Manager) TableEntries() []*TableEntry {
	var out []*TableEntry
	for _, e := range m.Entities() {
		out = append(out, e.Entries()...)
	}
	return out
}

// Cultures returns the union of cultures across all entities.
func (m *Manager) Cultures() []culture.Key {
	seen := map[culture.Key]bool{culture.Neutral: true}
	for _, e := range m.Entities() {
		for _, k := range e.Cultures() {
			seen[k] = true
		}
	}
	keys := make([]culture.Key, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	culture.Sort(keys)
	return keys
}

// HasChanges reports whether any language has unsaved changes.
func (m *Manager) HasChanges() bool {
	for _, e := range m.Entities() {
		if e.HasChanges() {
			return true
		}
	}
	return false
}

// SourceFiles returns the file list of the last committed reload.
func (m *Manager) SourceFiles() []FileRef {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]FileRef(nil), m.sourceFiles...)
}

// ---------------------------------------------------------------------------
// Reload
// ---------------------------------------------------------------------------

// ReloadResult reports the outcome of Reload.
type ReloadResult struct {
	// Changed is true when an entity was added or removed or the key set of
	// an entity differs from the previous state.
	Changed bool
	// Entities is the number of entities after the reload.
	Entities int
	// Failures lists the files that could not be used.
	Failures []FileError
}

type fileGroup struct {
	project  string
	relName  string
	name     string
	neutral  *FileRef
	cultures map[culture.Key]FileRef
}

// Reload replaces the entity set with the one built from files. A Reload
// started later cancels this one; a superseded Reload does not commit and
// returns an error for which IsCanceled is true.
func (m *Manager) Reload(ctx context.Context, files []FileRef) (*ReloadResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	op := &operation{cancel: cancel}

	m.opMu.Lock()
	if m.reloadOp != nil {
		m.reloadOp.cancel()
	}
	m.reloadOp = op
	m.opMu.Unlock()

	defer func() {
		m.opMu.Lock()
		if m.reloadOp == op {
			m.reloadOp = nil
		}
		m.opMu.Unlock()
	}()

	result := &ReloadResult{}
	groups, failures := groupFiles(files)
	result.Failures = append(result.Failures, failures...)

	policy := m.opts.duplicatePolicy()
	var built []*Entity
	for _, g := range groups {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		e, errs := m.loadEntity(ctx, g, policy)
		result.Failures = append(result.Failures, errs...)
		if e != nil {
			built = append(built, e)
		}
	}

	m.opMu.Lock()
	if m.reloadOp != op || ctx.Err() != nil {
		m.opMu.Unlock()
		return nil, fmt.Errorf("reload superseded: %w", context.Canceled)
	}
	added, removed, changed := m.commit(built, files)
	m.opMu.Unlock()

	result.Changed = changed
	result.Entities = len(built)

	for _, f := range result.Failures {
		m.log.Warn("resource file skipped", "file", f.Path, "error", f.Err)
	}
	m.log.Info("resources reloaded", "entities", len(built), "failures", len(result.Failures), "changed", changed)

	var events []Event
	for _, e := range removed {
		events = append(events, Event{Kind: EntityRemoved, Entity: e})
	}
	for _, e := range added {
		events = append(events, Event{Kind: EntityAdded, Entity: e})
	}
	m.events.publish(events...)
	return result, nil
}

func (m *Manager) commit(built []*Entity, files []FileRef) (added, removed []*Entity, changed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := make(map[string]*Entity, len(built))
	for _, e := range built {
		next[e.ID()] = e
		old, ok := m.byID[e.ID()]
		if !ok {
			added = append(added, e)
			changed = true
			continue
		}
		if !slices.Equal(old.lockedKeySet(), e.keySet()) {
			changed = true
		}
	}
	for id, e := range m.byID {
		if _, ok := next[id]; !ok {
			removed = append(removed, e)
			changed = true
		}
	}
	sort.Slice(removed, func(i, j int) bool { return removed[i].ID() < removed[j].ID() })

	m.entities = built
	m.byID = next
	m.sourceFiles = append([]FileRef(nil), files...)
	return added, removed, changed
}

func (e *Entity) lockedKeySet() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.keySet()
}

func (m *Manager) loadEntity(ctx context.Context, g *fileGroup, policy DuplicateKeyHandling) (*Entity, []FileError) {
	var failures []FileError
	cultureKeys := make([]culture.Key, 0, len(g.cultures))
	for k := range g.cultures {
		cultureKeys = append(cultureKeys, k)
	}
	culture.Sort(cultureKeys)

	if g.neutral == nil {
		for _, k := range cultureKeys {
			failures = append(failures, FileError{Path: g.cultures[k].Path, Err: ErrNoNeutral})
		}
		return nil, failures
	}

	recs, err := m.store.Read(g.neutral.Path)
	if err != nil {
		return nil, append(failures, FileError{Path: g.neutral.Path, Err: err})
	}

	e := &Entity{
		manager:   m,
		project:   g.project,
		relName:   g.relName,
		name:      g.name,
		languages: make(map[culture.Key]*Language),
	}
	e.neutral = newLanguage(e, culture.Neutral, g.neutral.Path, recs, policy)
	e.languages[culture.Neutral] = e.neutral

	for _, k := range cultureKeys {
		if ctx.Err() != nil {
			break
		}
		ref := g.cultures[k]
		recs, err := m.store.Read(ref.Path)
		if err != nil {
			failures = append(failures, FileError{Path: ref.Path, Err: err})
			continue
		}
		e.languages[k] = newLanguage(e, k, ref.Path, recs, policy)
	}

	if adopted := e.adoptOrphans(); len(adopted) > 0 {
		m.log.Debug("culture-only keys added to neutral language", "entity", e.ID(), "keys", adopted)
	}
	return e, failures
}

// groupFiles groups discovered files by project and relative base name.
// Duplicate paths are ignored; conflicting files are reported.
func groupFiles(files []FileRef) ([]*fileGroup, []FileError) {
	byID := make(map[string]*fileGroup)
	seen := make(map[string]bool)
	var failures []FileError

	for _, f := range files {
		clean := filepath.Clean(f.Path)
		if seen[clean] {
			continue
		}
		seen[clean] = true

		rel := f.RelativePath
		if rel == "" {
			rel = filepath.Base(f.Path)
		}
		base, k, _ := SplitFileName(filepath.Base(rel))
		relName := path.Join(filepath.ToSlash(filepath.Dir(rel)), base)

		id := EntityID(f.Project, relName)
		g, ok := byID[id]
		if !ok {
			g = &fileGroup{project: f.Project, relName: relName, name: base, cultures: make(map[culture.Key]FileRef)}
			byID[id] = g
		}

		ref := f
		if k.IsNeutral() {
			if g.neutral != nil {
				failures = append(failures, FileError{Path: f.Path, Err: fmt.Errorf("second neutral file for %s (first: %s)", id, g.neutral.Path)})
				continue
			}
			g.neutral = &ref
			continue
		}
		if prev, dup := g.cultures[k]; dup {
			failures = append(failures, FileError{Path: f.Path, Err: fmt.Errorf("second %s file for %s (first: %s)", k, id, prev.Path)})
			continue
		}
		g.cultures[k] = ref
	}

	groups := make([]*fileGroup, 0, len(byID))
	for _, g := range byID {
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].project != groups[j].project {
			return groups[i].project < groups[j].project
		}
		return groups[i].relName < groups[j].relName
	})
	return groups, failures
}

// ---------------------------------------------------------------------------
// Save
// ---------------------------------------------------------------------------

// SaveResult reports the outcome of Save.
type SaveResult struct {
	// Saved lists the written files.
	Saved []string
	// Failures lists the files that could not be written.
	Failures []FileError
}

// Save writes every dirty language. A file that cannot be written is
// reported and the remaining files are still saved.
func (m *Manager) Save(ctx context.Context) (*SaveResult, error) {
	result := &SaveResult{}
	for _, e := range m.Entities() {
		for _, l := range e.Languages() {
			if !l.HasChanges() {
				continue
			}
			if err := ctx.Err(); err != nil {
				return result, err
			}
			if err := m.saveLanguage(l); err != nil {
				result.Failures = append(result.Failures, FileError{Path: l.path, Err: err})
				m.log.Warn("saving resource file failed", "entity", e.ID(), "culture", l.culture.String(), "file", l.path, "error", err)
				continue
			}
			result.Saved = append(result.Saved, l.path)
		}
	}
	return result, nil
}

func (m *Manager) saveLanguage(l *Language) error {
	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	e := l.entity
	e.mu.RLock()
	records := l.snapshotRecords(m.opts.RemoveEmptyEntries)
	version := l.version
	e.mu.RUnlock()

	if err := m.store.Write(l.path, records); err != nil {
		return err
	}

	e.mu.Lock()
	if l.version == version {
		l.dirty = false
	}
	e.mu.Unlock()

	m.log.Debug("resource file saved", "entity", e.ID(), "culture", l.culture.String(), "file", l.path, "keys", len(records))
	m.events.publish(Event{Kind: LanguageSaved, Entity: e, Culture: l.culture})
	return nil
}

// ---------------------------------------------------------------------------
// Editing
// ---------------------------------------------------------------------------

// CanEdit reports whether the (entity, culture) pair may be written. For a
// culture the entity does not have yet, a new empty language file is
// created next to the neutral file, provided the entity lies below the
// configured root.
func (m *Manager) CanEdit(e *Entity, k culture.Key) bool {
	if l, ok := e.Language(k); ok {
		return isWritable(l.path)
	}
	if k.IsNeutral() {
		return false
	}
	if m.opts.Root == "" {
		return false
	}
	neutralPath := e.neutral.path
	if !isBelow(m.opts.Root, neutralPath) {
		m.log.Debug("entity outside writable root", "entity", e.ID(), "root", m.opts.Root)
		return false
	}

	p := LanguageFileName(neutralPath, k)
	var recs []Record
	if _, err := os.Stat(p); err == nil {
		if recs, err = m.store.Read(p); err != nil {
			m.log.Warn("reading existing culture file failed", "file", p, "error", err)
			return false
		}
	} else {
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			m.log.Warn("creating culture directory failed", "file", p, "error", err)
			return false
		}
		if err := m.store.Write(p, nil); err != nil {
			m.log.Warn("creating culture file failed", "file", p, "error", err)
			return false
		}
	}

	e.mu.Lock()
	if _, ok := e.languages[k]; ok {
		e.mu.Unlock()
		return true
	}
	e.languages[k] = newLanguage(e, k, p, recs, m.opts.duplicatePolicy())
	e.mu.Unlock()

	m.log.Info("culture file created", "entity", e.ID(), "culture", k.String(), "file", p)
	m.events.publish(Event{Kind: LanguageAdded, Entity: e, Culture: k})
	return true
}

// beginEdit runs the CanEdit check and the begin-editing guards.
func (m *Manager) beginEdit(e *Entity, k culture.Key) error {
	if !m.CanEdit(e, k) {
		return &EditError{Entity: e.ID(), Culture: k, Reason: "not writable"}
	}
	if !m.events.beginEditing(e, k) {
		return &EditError{Entity: e.ID(), Culture: k, Reason: "vetoed"}
	}
	return nil
}

// mutate applies fn to e after the edit checks for culture k.
func (m *Manager) mutate(e *Entity, k culture.Key, fn func() ([]Event, error)) error {
	if err := m.beginEdit(e, k); err != nil {
		return err
	}
	e.mu.Lock()
	events, err := fn()
	e.mu.Unlock()
	if err != nil {
		return err
	}
	m.committed(events)
	return nil
}

// mutateAll applies fn to e after the edit checks for every language that
// holds key. Nothing is changed when any language is denied.
func (m *Manager) mutateAll(e *Entity, key string, fn func() ([]Event, error)) error {
	for _, l := range e.Languages() {
		if _, ok := l.Value(key); !ok && !l.IsNeutral() {
			continue
		}
		if err := m.beginEdit(e, l.culture); err != nil {
			return err
		}
	}
	e.mu.Lock()
	events, err := fn()
	e.mu.Unlock()
	if err != nil {
		return err
	}
	m.committed(events)
	return nil
}

// committed publishes events and, if configured, saves touched languages.
func (m *Manager) committed(events []Event) {
	m.events.publish(events...)
	if !m.opts.SaveImmediately {
		return
	}
	for _, l := range touchedLanguages(events) {
		if !l.HasChanges() {
			continue
		}
		if err := m.saveLanguage(l); err != nil {
			m.log.Error("immediate save failed", "entity", l.entity.ID(), "culture", l.culture.String(), "file", l.path, "error", err)
		}
	}
}

func touchedLanguages(events []Event) []*Language {
	var out []*Language
	seen := make(map[*Language]bool)
	add := func(l *Language) {
		if l != nil && !seen[l] {
			seen[l] = true
			out = append(out, l)
		}
	}
	for _, ev := range events {
		if ev.Entity == nil {
			continue
		}
		switch ev.Kind {
		case KeyRemoved, KeyRenamed:
			for _, l := range ev.Entity.Languages() {
				add(l)
			}
		default:
			l, _ := ev.Entity.Language(ev.Culture)
			add(l)
		}
	}
	return out
}

func isWritable(p string) bool {
	info, err := os.Stat(p)
	if err != nil {
		// A file that vanished is recreated on save.
		return errors.Is(err, os.ErrNotExist)
	}
	return info.Mode().Perm()&0200 != 0
}

func isBelow(root, p string) bool {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return false
	}
	absPath, err := filepath.Abs(p)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absRoot, absPath)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
