package tracker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/minios-linux/reskit/resource"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	stringsID = "app:Strings"
	otherID   = "app:Other"
)

func newManager(t *testing.T) *resource.Manager {
	t.Helper()
	store := resource.NewMemStore(map[string][]resource.Record{
		"Strings.txt": {{Key: "Hello"}, {Key: "Bye"}, {Key: "app.title"}},
		"Other.txt":   {{Key: "Hello"}},
	})
	m := resource.NewManager(store, resource.Options{})
	if _, err := m.Reload(context.Background(), store.Refs("app")); err != nil {
		t.Fatal(err)
	}
	return m
}

func writeSource(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return p
}

func runScan(t *testing.T, tr *Tracker, m *resource.Manager, cfg Config, files ...string) *Scan {
	t.Helper()
	s := tr.BeginFind(m, cfg, files)
	if err := s.Wait(); err != nil {
		t.Fatalf("scan: %v", err)
	}
	return s
}

// ---------------------------------------------------------------------------
// Matching
// ---------------------------------------------------------------------------

func TestPlainMatching(t *testing.T) {
	dir := t.TempDir()
	src := writeSource(t, dir, "main.go", "fmt.Println(Strings.Hello)\nx := Bye // Hello\nHelloWorld\n")

	tr := New(Options{})
	defer tr.Close()
	s := runScan(t, tr, newManager(t), Config{Workers: 2}, src)

	tests := []struct {
		entity, key string
		want        int
	}{
		{stringsID, "Hello", 2},
		{otherID, "Hello", 2},
		{stringsID, "Bye", 1},
		{stringsID, "app.title", 0},
	}
	for _, tt := range tests {
		if got := s.Count(tt.entity, tt.key); got != tt.want {
			t.Errorf("Count(%s, %s) = %d, want %d", tt.entity, tt.key, got, tt.want)
		}
	}
	refs := tr.References(stringsID, "Hello")
	if len(refs) != 2 || refs[0].Line != 1 || refs[1].Line != 2 {
		t.Fatalf("references = %v", refs)
	}
}

func TestPatternMatching(t *testing.T) {
	dir := t.TempDir()
	content := "var s = Resources.Strings.Hello.ToString();\n"
	cs := writeSource(t, dir, "a.cs", content)
	gofile := writeSource(t, dir, "b.go", content)

	cfg := Config{Patterns: []Pattern{{Expression: "Resources.$File.$Key", Extensions: []string{"cs"}}}}
	tr := New(Options{})
	defer tr.Close()
	s := runScan(t, tr, newManager(t), cfg, cs, gofile)

	if got := s.Count(stringsID, "Hello"); got != 1 {
		t.Fatalf("Strings.Hello = %d, want 1", got)
	}
	if got := s.Count(otherID, "Hello"); got != 0 {
		t.Fatalf("Other.Hello = %d, want 0 ($File restricts the entity)", got)
	}
}

func TestRegexpPattern(t *testing.T) {
	dir := t.TempDir()
	src := writeSource(t, dir, "view.js", `title = T("app.title"); other = T('Bye')`+"\n")

	cfg := Config{Patterns: []Pattern{{Expression: `T\(["']$Key["']\)`, Regexp: true}}}
	tr := New(Options{})
	defer tr.Close()
	s := runScan(t, tr, newManager(t), cfg, src)

	if got := s.Count(stringsID, "app.title"); got != 1 {
		t.Fatalf("app.title = %d, want 1", got)
	}
	if got := s.Count(stringsID, "Bye"); got != 1 {
		t.Fatalf("Bye = %d, want 1", got)
	}
}

func TestCompilePatternErrors(t *testing.T) {
	for _, expr := range []string{"Resources.Hello", "$Key.$Key", "$File.$File.$Key"} {
		if _, err := compilePattern(Pattern{Expression: expr}); err == nil {
			t.Errorf("compilePattern(%q): expected error", expr)
		}
	}

	tr := New(Options{})
	defer tr.Close()
	s := tr.BeginFind(newManager(t), Config{Patterns: []Pattern{{Expression: "nokey"}}}, nil)
	if err := s.Wait(); err == nil || resource.IsCanceled(err) {
		t.Fatalf("err = %v, want configuration error", err)
	}
}

func TestFailuresRecorded(t *testing.T) {
	dir := t.TempDir()
	good := writeSource(t, dir, "ok.go", "Hello\n")
	bad := writeSource(t, dir, "bin.go", string([]byte{0xff, 0xfe, 'H'}))
	missing := filepath.Join(dir, "missing.go")

	tr := New(Options{})
	defer tr.Close()
	s := runScan(t, tr, newManager(t), Config{}, good, bad, missing)

	failures := s.Failures()
	if len(failures) != 2 {
		t.Fatalf("failures = %v, want 2", failures)
	}
	var invalid bool
	for _, f := range failures {
		if errors.Is(f, ErrInvalidUTF8) {
			invalid = true
		}
	}
	if !invalid {
		t.Fatalf("expected ErrInvalidUTF8 among %v", failures)
	}
	if got := s.Count(stringsID, "Hello"); got != 1 {
		t.Fatalf("Hello = %d, want 1", got)
	}
	if processed, total := s.Progress(); processed != 3 || total != 3 {
		t.Fatalf("progress = %d/%d, want 3/3", processed, total)
	}
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

func TestBeginFindSupersedes(t *testing.T) {
	dir := t.TempDir()
	var byeFiles, helloFiles []string
	for i := 0; i < 200; i++ {
		byeFiles = append(byeFiles, writeSource(t, dir, fmt.Sprintf("bye%03d.go", i), "Bye\n"))
	}
	for i := 0; i < 3; i++ {
		helloFiles = append(helloFiles, writeSource(t, dir, fmt.Sprintf("hello%d.go", i), "Hello\n"))
	}
	m := newManager(t)

	tr := New(Options{})
	defer tr.Close()
	first := tr.BeginFind(m, Config{Workers: 1}, byeFiles)
	second := tr.BeginFind(m, Config{Workers: 4}, helloFiles)

	select {
	case <-first.Done():
	default:
		t.Fatal("second BeginFind returned before the first scan finished")
	}
	if err := first.Wait(); err != nil && !resource.IsCanceled(err) {
		t.Fatalf("first scan err = %v", err)
	}
	if err := second.Wait(); err != nil {
		t.Fatalf("second scan err = %v", err)
	}
	if first.ID == second.ID {
		t.Fatal("scans share an id")
	}
	if tr.Latest() != second {
		t.Fatal("Latest is not the second scan")
	}
	if got := tr.Count(stringsID, "Hello"); got != len(helloFiles) {
		t.Fatalf("Hello = %d, want %d", got, len(helloFiles))
	}
	if got := tr.Count(stringsID, "Bye"); got != 0 {
		t.Fatalf("Bye = %d, want 0: only the second scan's files count", got)
	}
	if got := first.Count(stringsID, "Bye"); got > len(byeFiles) {
		t.Fatalf("first scan counted %d references, more than it could see", got)
	}
}

func TestStopFind(t *testing.T) {
	tr := New(Options{})
	tr.StopFind()

	dir := t.TempDir()
	src := writeSource(t, dir, "a.go", "Hello\n")
	s := tr.BeginFind(newManager(t), Config{}, []string{src})
	tr.StopFind()
	<-s.Done()
	tr.StopFind()
	tr.Close()
}

func TestTriggerCoalesces(t *testing.T) {
	dir := t.TempDir()
	src := writeSource(t, dir, "a.go", "Hello\n")
	m := newManager(t)

	var started atomic.Int32
	scans := make(chan *Scan, 10)
	tr := New(Options{
		Coalesce: 20 * time.Millisecond,
		OnScan: func(s *Scan) {
			started.Add(1)
			scans <- s
		},
	})
	defer tr.Close()

	for i := 0; i < 5; i++ {
		tr.Trigger(m, Config{}, []string{src})
	}

	select {
	case s := <-scans:
		if err := s.Wait(); err != nil {
			t.Fatal(err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no scan started")
	}
	time.Sleep(100 * time.Millisecond)
	if got := started.Load(); got != 1 {
		t.Fatalf("scans started = %d, want 1", got)
	}
}

func TestCloseDropsPendingTrigger(t *testing.T) {
	var started atomic.Int32
	tr := New(Options{Coalesce: 10 * time.Millisecond, OnScan: func(*Scan) { started.Add(1) }})
	tr.Trigger(newManager(t), Config{}, nil)
	tr.Close()
	time.Sleep(50 * time.Millisecond)
	if got := started.Load(); got != 0 {
		t.Fatalf("scans started after Close = %d, want 0", got)
	}
}

func TestCloseWinsOverFiringTrigger(t *testing.T) {
	var started atomic.Int32
	tr := New(Options{Coalesce: time.Millisecond, OnScan: func(*Scan) { started.Add(1) }})

	// Hold the start lock so the trigger fires and waits for it.
	tr.beginMu.Lock()
	tr.Trigger(newManager(t), Config{}, nil)
	time.Sleep(50 * time.Millisecond)

	closed := make(chan struct{})
	go func() {
		tr.Close()
		close(closed)
	}()
	for {
		tr.mu.Lock()
		c := tr.closed
		tr.mu.Unlock()
		if c {
			break
		}
		time.Sleep(time.Millisecond)
	}
	tr.beginMu.Unlock()

	<-closed
	time.Sleep(50 * time.Millisecond)
	if got := started.Load(); got != 0 {
		t.Fatalf("scans started after Close = %d, want 0", got)
	}
}
