package snapshot

import (
	"context"
	"strings"
	"testing"

	"github.com/minios-linux/reskit/culture"
	"github.com/minios-linux/reskit/resource"
)

var de = culture.MustParse("de")

const greetings = "app:Greetings"

func newManager(t *testing.T) *resource.Manager {
	t.Helper()
	m, _ := newStoreManager(t)
	return m
}

func newStoreManager(t *testing.T) (*resource.Manager, *resource.MemStore) {
	t.Helper()
	store := resource.NewMemStore(map[string][]resource.Record{
		"Greetings.txt":    {{Key: "Hello", Value: "Hello", Comment: "c"}, {Key: "Bye", Value: "Bye"}},
		"Greetings.de.txt": {{Key: "Hello", Value: "Hallo"}},
	})
	m := resource.NewManager(store, resource.Options{})
	if _, err := m.Reload(context.Background(), store.Refs("app")); err != nil {
		t.Fatal(err)
	}
	return m, store
}

func entry(t *testing.T, m *resource.Manager, key string) *resource.TableEntry {
	t.Helper()
	e, ok := m.Entity(greetings)
	if !ok {
		t.Fatal("entity missing")
	}
	en, ok := e.Entry(key)
	if !ok {
		t.Fatalf("key %s missing", key)
	}
	return en
}

func loadOverlay(t *testing.T, m *resource.Manager) *Overlay {
	t.Helper()
	text, err := Create(m, resource.FullScope(m, true))
	if err != nil {
		t.Fatal(err)
	}
	o := NewOverlay(m)
	t.Cleanup(o.Close)
	if err := o.Load(text); err != nil {
		t.Fatal(err)
	}
	return o
}

func TestCreateIsDeterministic(t *testing.T) {
	m := newManager(t)
	a, err := Create(m, resource.FullScope(m, false))
	if err != nil {
		t.Fatal(err)
	}
	b, _ := Create(m, resource.FullScope(m, false))
	if a != b {
		t.Fatal("two snapshots of the same table differ")
	}
	snap, err := Parse(a)
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Records) != 3 {
		t.Fatalf("records = %d, want 3", len(snap.Records))
	}
	first := snap.Records[0]
	if first.Key != "Hello" || first.Culture != culture.Neutral || first.Comment != "c" {
		t.Fatalf("first record = %+v", first)
	}
	if len(snap.Cultures) != 2 || snap.Cultures[1] != de {
		t.Fatalf("cultures = %v", snap.Cultures)
	}
}

func TestRoundTripHasNoDiffs(t *testing.T) {
	m := newManager(t)
	o := loadOverlay(t, m)

	got := o.Summary()
	want := Summary{Unchanged: 3}
	if got != want {
		t.Fatalf("summary = %+v, want %+v", got, want)
	}
	if changes := o.Changes(); len(changes) != 0 {
		t.Fatalf("changes = %v", changes)
	}
	if cs := o.RevertChanges(); len(cs) != 0 {
		t.Fatalf("revert = %v, want empty", cs)
	}
}

func TestDiffKinds(t *testing.T) {
	m := newManager(t)
	o := loadOverlay(t, m)

	if err := entry(t, m, "Hello").SetValue(de, "Servus"); err != nil {
		t.Fatal(err)
	}
	e, _ := m.Entity(greetings)
	if err := e.Remove("Bye"); err != nil {
		t.Fatal(err)
	}
	added, err := e.Add("New")
	if err != nil {
		t.Fatal(err)
	}
	if err := added.SetValue(culture.Neutral, "new"); err != nil {
		t.Fatal(err)
	}

	got := o.Summary()
	want := Summary{Unchanged: 1, Changed: 1, Added: 1, Removed: 1}
	if got != want {
		t.Fatalf("summary = %+v, want %+v", got, want)
	}

	diffs := o.Diff(entry(t, m, "Hello"))
	if len(diffs) != 2 || diffs[1].Kind != Changed || diffs[1].Old.Value != "Hallo" || diffs[1].New.Value != "Servus" {
		t.Fatalf("Hello diffs = %+v", diffs)
	}
	removed := o.Removed()
	if len(removed) != 1 || removed[0].Key != "Bye" || removed[0].Old.Value != "Bye" {
		t.Fatalf("removed = %+v", removed)
	}
}

func TestDiffFollowsCultureChanges(t *testing.T) {
	m, store := newStoreManager(t)
	o := loadOverlay(t, m)
	fr := culture.MustParse("fr")

	if err := store.Write("Greetings.fr.txt", []resource.Record{{Key: "Hello", Value: "Bonjour"}}); err != nil {
		t.Fatal(err)
	}
	if err := store.Write("Greetings.de.txt", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Reload(context.Background(), store.Refs("app")); err != nil {
		t.Fatal(err)
	}

	diffs := o.Diff(entry(t, m, "Hello"))
	if len(diffs) != 3 {
		t.Fatalf("Hello diffs = %+v, want neutral, de and fr", diffs)
	}
	if d := diffs[1]; d.Culture != de || d.Kind != Removed || d.Old.Value != "Hallo" || d.New != (Cell{}) {
		t.Fatalf("de diff = %+v, want removed Hallo", d)
	}
	if d := diffs[2]; d.Culture != fr || d.Kind != Added || d.New.Value != "Bonjour" {
		t.Fatalf("fr diff = %+v, want added Bonjour", d)
	}
	if got, want := o.Summary(), (Summary{Unchanged: 2, Added: 1, Removed: 1}); got != want {
		t.Fatalf("summary = %+v, want %+v", got, want)
	}

	if _, err := m.Apply(context.Background(), o.RevertChanges()); err != nil {
		t.Fatal(err)
	}
	if got := entry(t, m, "Hello").Value(de); got != "Hallo" {
		t.Fatalf("de Hello after revert = %q, want Hallo", got)
	}
	if got, want := o.Summary(), (Summary{Unchanged: 3, Added: 1}); got != want {
		t.Fatalf("summary after revert = %+v, want %+v", got, want)
	}
}

func TestRevertChanges(t *testing.T) {
	m := newManager(t)
	o := loadOverlay(t, m)

	hello := entry(t, m, "Hello")
	if err := hello.SetValue(de, "Servus"); err != nil {
		t.Fatal(err)
	}
	if err := hello.SetComment(culture.Neutral, ""); err != nil {
		t.Fatal(err)
	}
	e, _ := m.Entity(greetings)
	if err := e.Remove("Bye"); err != nil {
		t.Fatal(err)
	}

	res, err := m.Apply(context.Background(), o.RevertChanges())
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Denied) != 0 {
		t.Fatalf("denied = %v", res.Denied)
	}
	if got := o.Summary(); got != (Summary{Unchanged: 3}) {
		t.Fatalf("summary after revert = %+v", got)
	}
	if got := entry(t, m, "Bye").Value(culture.Neutral); got != "Bye" {
		t.Fatalf("Bye = %q", got)
	}
}

func TestLoadEmptyUnloads(t *testing.T) {
	m := newManager(t)
	o := loadOverlay(t, m)
	if !o.Loaded() {
		t.Fatal("snapshot not loaded")
	}
	if err := o.Load("  "); err != nil {
		t.Fatal(err)
	}
	if o.Loaded() || o.Diff(entry(t, m, "Hello")) != nil {
		t.Fatal("empty text must unload the snapshot")
	}
}

func TestParseError(t *testing.T) {
	_, err := Parse("{not json")
	if err == nil || !strings.Contains(err.Error(), "parsing snapshot") {
		t.Fatalf("err = %v", err)
	}
}
