// Package tracker counts references to resource keys in source files.
//
// A scan runs in the background on a bounded worker pool. Starting a new
// scan cancels and awaits the running one; each scan aggregates into its own
// state, so a superseded scan never affects the results of its successor.
package tracker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/minios-linux/reskit/resource"
)

// ErrInvalidUTF8 is recorded for source files that are not valid UTF-8.
var ErrInvalidUTF8 = errors.New("not valid UTF-8")

// DefaultCoalesce is the delay Trigger waits for further requests.
const DefaultCoalesce = 500 * time.Millisecond

// Config selects what a scan looks for.
type Config struct {
	// Patterns lists the reference patterns. Without patterns every
	// identifier token equal to a key counts as a reference.
	Patterns []Pattern
	// Workers bounds the number of files read concurrently. Zero uses the
	// number of CPUs.
	Workers int
}

func (c Config) effectiveWorkers() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return runtime.NumCPU()
}

// Validate compiles every pattern and reports the first invalid one.
func (c Config) Validate() error {
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", c.Workers)
	}
	_, err := compileAll(c.Patterns)
	return err
}

// Options configures a Tracker.
type Options struct {
	// Coalesce is how long Trigger waits for further requests before it
	// starts a scan. Zero uses DefaultCoalesce.
	Coalesce time.Duration
	// Logger receives structured logs. Defaults to slog.Default().
	Logger *slog.Logger
	// OnScan is called with every scan that is started.
	OnScan func(*Scan)
}

func (o Options) effectiveCoalesce() time.Duration {
	if o.Coalesce > 0 {
		return o.Coalesce
	}
	return DefaultCoalesce
}

// Tracker runs reference scans. The zero value is not usable; call New.
type Tracker struct {
	opts Options
	log  *slog.Logger

	// beginMu serialises BeginFind so that two callers never await the same
	// predecessor.
	beginMu sync.Mutex

	mu      sync.Mutex
	current *Scan
	timer   *time.Timer
	pending *request
	closed  bool
}

// request holds the arguments of a coalesced Trigger.
type request struct {
	m     *resource.Manager
	cfg   Config
	files []string
}

// New returns an idle tracker.
func New(opts Options) *Tracker {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Tracker{opts: opts, log: log}
}

// BeginFind cancels and awaits the running scan, then starts a scan of files
// for the keys currently loaded in m. A configuration error fails the scan
// immediately; the returned scan is never nil.
func (t *Tracker) BeginFind(m *resource.Manager, cfg Config, files []string) *Scan {
	t.beginMu.Lock()
	defer t.beginMu.Unlock()
	return t.begin(m, cfg, files)
}

// begin starts a scan. beginMu must be held.
func (t *Tracker) begin(m *resource.Manager, cfg Config, files []string) *Scan {
	t.mu.Lock()
	prev := t.current
	t.mu.Unlock()
	if prev != nil {
		prev.cancel()
		<-prev.done
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := newScan(cancel, len(files))

	t.mu.Lock()
	t.current = s
	t.mu.Unlock()
	if t.opts.OnScan != nil {
		t.opts.OnScan(s)
	}

	matchers, err := compileAll(cfg.Patterns)
	if err != nil {
		s.finish(err)
		t.log.Error("reference scan not started", "scan_id", s.ID.String(), "error", err)
		return s
	}

	idx := buildIndex(m)
	log := t.log.With("scan_id", s.ID.String())
	log.Info("reference scan started", "files", len(files), "keys", idx.size(), "workers", cfg.effectiveWorkers())

	go s.run(ctx, log, cfg.effectiveWorkers(), files, idx, matchers)
	return s
}

// StopFind cancels the running scan and waits for it to finish. It is a
// no-op when no scan is running.
func (t *Tracker) StopFind() {
	t.beginMu.Lock()
	defer t.beginMu.Unlock()

	t.mu.Lock()
	s := t.current
	t.mu.Unlock()
	if s == nil {
		return
	}
	s.cancel()
	<-s.done
}

// Trigger requests a scan. Requests arriving within the coalesce delay of
// each other result in a single BeginFind with the arguments of the last
// request.
func (t *Tracker) Trigger(m *resource.Manager, cfg Config, files []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.pending = &request{m: m, cfg: cfg, files: files}
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(t.opts.effectiveCoalesce(), t.firePending)
}

// firePending starts the pending request. The closed check and the start
// happen under beginMu, which Close's StopFind also takes, so no scan
// starts after Close returns.
func (t *Tracker) firePending() {
	t.beginMu.Lock()
	defer t.beginMu.Unlock()

	t.mu.Lock()
	req := t.pending
	t.pending = nil
	t.timer = nil
	closed := t.closed
	t.mu.Unlock()
	if req != nil && !closed {
		t.begin(req.m, req.cfg, req.files)
	}
}

// Close drops pending triggers and stops the running scan.
func (t *Tracker) Close() {
	t.mu.Lock()
	t.closed = true
	t.pending = nil
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.mu.Unlock()
	t.StopFind()
}

// Latest returns the most recently started scan, or nil.
func (t *Tracker) Latest() *Scan {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// Count returns the number of references to key of entity found by the
// latest scan.
func (t *Tracker) Count(entity, key string) int {
	if s := t.Latest(); s != nil {
		return s.Count(entity, key)
	}
	return 0
}

// References returns the references to key of entity found by the latest
// scan.
func (t *Tracker) References(entity, key string) []Reference {
	if s := t.Latest(); s != nil {
		return s.References(entity, key)
	}
	return nil
}

func compileAll(patterns []Pattern) ([]*matcher, error) {
	matchers := make([]*matcher, 0, len(patterns))
	for _, p := range patterns {
		m, err := compilePattern(p)
		if err != nil {
			return nil, err
		}
		matchers = append(matchers, m)
	}
	return matchers, nil
}

// ---------------------------------------------------------------------------
// Scan
// ---------------------------------------------------------------------------

// Reference is one occurrence of a key in a source file.
type Reference struct {
	File string
	Line int
}

type refKey struct {
	entity string
	key    string
}

// Scan is one run of the reference finder.
type Scan struct {
	ID uuid.UUID

	cancel context.CancelFunc
	done   chan struct{}
	total  int

	mu        sync.Mutex
	refs      map[refKey][]Reference
	failures  []resource.FileError
	processed int
	err       error
}

func newScan(cancel context.CancelFunc, total int) *Scan {
	return &Scan{
		ID:     uuid.New(),
		cancel: cancel,
		done:   make(chan struct{}),
		total:  total,
		refs:   make(map[refKey][]Reference),
	}
}

// Done is closed when the scan has finished or was canceled.
func (s *Scan) Done() <-chan struct{} { return s.done }

// Wait blocks until the scan is over and returns its error: nil when every
// file was visited, a context error when the scan was canceled.
func (s *Scan) Wait() error {
	<-s.done
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Progress returns the number of files visited and the number of files.
func (s *Scan) Progress() (processed, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processed, s.total
}

// Failures returns the files that could not be scanned.
func (s *Scan) Failures() []resource.FileError {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]resource.FileError(nil), s.failures...)
}

// Count returns the number of references to key of entity.
func (s *Scan) Count(entity, key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.refs[refKey{entity, key}])
}

// References returns the references to key of entity ordered by file and
// line.
func (s *Scan) References(entity, key string) []Reference {
	s.mu.Lock()
	refs := append([]Reference(nil), s.refs[refKey{entity, key}]...)
	s.mu.Unlock()
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].File != refs[j].File {
			return refs[i].File < refs[j].File
		}
		return refs[i].Line < refs[j].Line
	})
	return refs
}

// Total returns the number of references found across all keys.
func (s *Scan) Total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, refs := range s.refs {
		n += len(refs)
	}
	return n
}

func (s *Scan) finish(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	s.cancel()
	close(s.done)
}

// merge is the single point where workers hand over their results.
func (s *Scan) merge(found map[refKey][]Reference, failure *resource.FileError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, refs := range found {
		s.refs[k] = append(s.refs[k], refs...)
	}
	if failure != nil {
		s.failures = append(s.failures, *failure)
	}
	s.processed++
}

func (s *Scan) run(ctx context.Context, log *slog.Logger, workers int, files []string, idx *keyIndex, matchers []*matcher) {
	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, file := range files {
		if gctx.Err() != nil {
			break
		}
		file := file
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			found, err := scanFile(file, idx, matchers)
			if err != nil {
				s.merge(nil, &resource.FileError{Path: file, Err: err})
				return nil
			}
			s.merge(found, nil)
			return nil
		})
	}
	_ = g.Wait()

	err := ctx.Err()
	s.finish(err)

	processed, total := s.Progress()
	if err != nil {
		log.Info("reference scan canceled", "processed", processed, "files", total)
		return
	}
	log.Info("reference scan finished",
		"files", total,
		"references", s.Total(),
		"failures", len(s.Failures()),
		"duration", time.Since(start).Round(time.Millisecond).String())
}

func scanFile(path string, idx *keyIndex, matchers []*matcher) (map[refKey][]Reference, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(data) {
		return nil, ErrInvalidUTF8
	}

	found := make(map[refKey][]Reference)
	add := func(line int, entities []string, key string) {
		for _, e := range entities {
			k := refKey{e, key}
			found[k] = append(found[k], Reference{File: path, Line: line})
		}
	}

	var active []*matcher
	for _, m := range matchers {
		if m.appliesTo(path) {
			active = append(active, m)
		}
	}
	if len(matchers) > 0 && len(active) == 0 {
		return found, nil
	}

	for i, line := range bytes.Split(data, []byte("\n")) {
		text := string(line)
		if len(matchers) == 0 {
			for _, tok := range identifier.FindAllString(text, -1) {
				if entities := idx.entities(tok, ""); len(entities) > 0 {
					add(i+1, entities, tok)
				}
			}
			continue
		}
		for _, m := range active {
			for _, sub := range m.re.FindAllStringSubmatch(text, -1) {
				file := ""
				if m.fileGroup > 0 {
					file = sub[m.fileGroup]
				}
				key, entities := idx.lookup(sub[m.keyGroup], file)
				if len(entities) > 0 {
					add(i+1, entities, key)
				}
			}
		}
	}
	return found, nil
}

// ---------------------------------------------------------------------------
// Key index
// ---------------------------------------------------------------------------

type entityName struct {
	id   string
	name string
}

// keyIndex maps each key to the entities that define it. It is built once
// per scan so that workers never touch the live entities.
type keyIndex struct {
	byKey map[string][]entityName
}

func buildIndex(m *resource.Manager) *keyIndex {
	idx := &keyIndex{byKey: make(map[string][]entityName)}
	if m == nil {
		return idx
	}
	for _, e := range m.Entities() {
		en := entityName{id: e.ID(), name: e.Name()}
		for _, k := range e.Keys() {
			idx.byKey[k] = append(idx.byKey[k], en)
		}
	}
	return idx
}

func (idx *keyIndex) size() int { return len(idx.byKey) }

// entities returns the IDs of the entities defining key, restricted to
// entities named file when file is set.
func (idx *keyIndex) entities(key, file string) []string {
	var ids []string
	for _, en := range idx.byKey[key] {
		if file == "" || en.name == file {
			ids = append(ids, en.id)
		}
	}
	return ids
}

// lookup resolves a captured key. A capture that runs past the key, such as
// "Hello.ToString", is shortened at separators until a key matches.
func (idx *keyIndex) lookup(captured, file string) (string, []string) {
	for cand := captured; cand != ""; {
		if ids := idx.entities(cand, file); len(ids) > 0 {
			return cand, ids
		}
		cut := strings.LastIndexAny(cand, ".-")
		if cut < 0 {
			break
		}
		cand = cand[:cut]
	}
	return "", nil
}

func (r Reference) String() string {
	return fmt.Sprintf("%s:%d", r.File, r.Line)
}
