package resource

import (
	"fmt"
	"os"
	"sort"
	"sync"
)

// MemStore is a Store that keeps records in memory, keyed by path.
type MemStore struct {
	mu    sync.Mutex
	files map[string][]Record
}

// NewMemStore returns a store pre-populated with files.
func NewMemStore(files map[string][]Record) *MemStore {
	s := &MemStore{files: make(map[string][]Record, len(files))}
	for p, recs := range files {
		s.files[p] = cloneRecords(recs)
	}
	return s
}

func (s *MemStore) Read(path string) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs, ok := s.files[path]
	if !ok {
		return nil, fmt.Errorf("reading %s: %w", path, os.ErrNotExist)
	}
	return cloneRecords(recs), nil
}

func (s *MemStore) Write(path string, records []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.files == nil {
		s.files = make(map[string][]Record)
	}
	s.files[path] = cloneRecords(records)
	return nil
}

// Paths returns the stored paths in sorted order.
func (s *MemStore) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	paths := make([]string, 0, len(s.files))
	for p := range s.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Refs returns one FileRef per stored path, all in project.
func (s *MemStore) Refs(project string) []FileRef {
	paths := s.Paths()
	refs := make([]FileRef, len(paths))
	for i, p := range paths {
		refs[i] = FileRef{Path: p, Project: project, RelativePath: p}
	}
	return refs
}

func cloneRecords(recs []Record) []Record {
	if recs == nil {
		return nil
	}
	out := make([]Record, len(recs))
	for i, r := range recs {
		out[i] = r
		out[i].DisabledRules = append([]string(nil), r.DisabledRules...)
	}
	return out
}
