package resource

import (
	"runtime"
	"testing"
	"time"

	"github.com/wippyai/witbind/errors"
)

func TestOwned_DropIsIdempotent(t *testing.T) {
	dtor := newCountingDtor()
	table := NewTable("o", dtor.destroy)

	o, err := table.Own("v")
	if err != nil {
		t.Fatal(err)
	}
	if err := o.Drop(); err != nil {
		t.Fatalf("Drop: %v", err)
	}
	if err := o.Drop(); err != nil {
		t.Fatalf("second Drop: %v", err)
	}
	if dtor.count("v") != 1 {
		t.Fatalf("destructor ran %d times", dtor.count("v"))
	}
	if _, err := o.Value(); !errors.Is(err, errors.ErrInvalidHandle) {
		t.Errorf("Value after Drop: %v", err)
	}
}

func TestOwned_Release(t *testing.T) {
	dtor := newCountingDtor()
	table := NewTable("o", dtor.destroy)

	o, _ := table.Own("v")
	h, err := o.Release()
	if err != nil {
		t.Fatal(err)
	}
	if err := o.Drop(); err != nil {
		t.Fatal(err)
	}
	if dtor.count("v") != 0 {
		t.Fatal("released owner destroyed the entry")
	}

	adopted, err := table.Adopt(h)
	if err != nil {
		t.Fatalf("Adopt: %v", err)
	}
	adopted.Drop()
	if dtor.count("v") != 1 {
		t.Fatalf("destructor ran %d times", dtor.count("v"))
	}

	if _, err := o.Release(); err == nil {
		t.Error("second Release should fail")
	}
}

func TestOwned_StaleOwnerCannotDropReusedSlot(t *testing.T) {
	table := NewTable("o", nil)

	o, _ := table.Own("first")
	h := o.Handle()
	if err := table.Drop(h); err != nil {
		t.Fatal(err)
	}

	h2, _ := table.Insert("second")
	if h2 != h {
		t.Fatalf("expected slot reuse, got %d and %d", h, h2)
	}

	if err := o.Drop(); !errors.Is(err, errors.ErrInvalidHandle) {
		t.Fatalf("stale Drop: %v", err)
	}
	if v, err := table.Get(h2); err != nil || v != "second" {
		t.Fatalf("new entry damaged: %v, %v", v, err)
	}
}

func TestOwned_CloneAndBorrow(t *testing.T) {
	dtor := newCountingDtor()
	table := NewTable("o", dtor.destroy)

	a, _ := table.Own("v")
	b, err := a.Clone()
	if err != nil {
		t.Fatal(err)
	}
	if a.Handle() != b.Handle() {
		t.Fatal("clone should share the handle")
	}

	view := a.Borrow()
	a.Drop()
	if v, err := view.Value(); err != nil || v != "v" {
		t.Fatalf("borrow after one drop: %v, %v", v, err)
	}
	b.Drop()
	if _, err := view.Value(); !errors.Is(err, errors.ErrInvalidHandle) {
		t.Fatalf("borrow after last drop: %v", err)
	}
	if dtor.count("v") != 1 {
		t.Fatalf("destructor ran %d times", dtor.count("v"))
	}
}

//go:noinline
func abandon(table *Table, v any) Handle {
	o, _ := table.Own(v)
	return o.Handle()
}

func TestOwned_CollectedOwnerReleasesOnce(t *testing.T) {
	dtor := newCountingDtor()
	table := NewTable("gc", dtor.destroy)

	h := abandon(table, "collected")

	deadline := time.Now().Add(5 * time.Second)
	for dtor.count("collected") == 0 && time.Now().Before(deadline) {
		runtime.GC()
		time.Sleep(10 * time.Millisecond)
	}
	if got := dtor.count("collected"); got != 1 {
		t.Fatalf("destructor ran %d times after collection", got)
	}
	if _, err := table.Get(h); !errors.Is(err, errors.ErrInvalidHandle) {
		t.Errorf("entry still present: %v", err)
	}
}

func TestOwned_ExplicitDropDisarmsCleanup(t *testing.T) {
	dtor := newCountingDtor()
	table := NewTable("gc", dtor.destroy)

	func() {
		o, _ := table.Own("explicit")
		o.Drop()
	}()

	for i := 0; i < 5; i++ {
		runtime.GC()
		time.Sleep(5 * time.Millisecond)
	}
	if got := dtor.count("explicit"); got != 1 {
		t.Fatalf("destructor ran %d times", got)
	}
}

func TestStore(t *testing.T) {
	store := NewStore()
	obs := &testObserver{}
	store.Subscribe(obs)

	files := store.Define("file", nil)
	if store.Table("file") != files {
		t.Fatal("Table should return the defined table")
	}
	if _, ok := store.Lookup("socket"); ok {
		t.Fatal("unexpected table")
	}

	files.Insert("a")
	store.Table("socket").Insert("b")
	if len(obs.types()) != 2 {
		t.Fatalf("observer saw %d events", len(obs.types()))
	}

	if err := store.Close(); err != nil {
		t.Fatal(err)
	}
	if files.Len() != 0 {
		t.Error("Close left entries behind")
	}
}

func TestStore_Cancel(t *testing.T) {
	store := NewStore()
	var seen int
	cancel := store.Subscribe(ObserverFunc(func(Event) { seen++ }))

	files := store.Table("file")
	files.Insert("a")
	cancel()
	files.Insert("b")
	store.Table("socket").Insert("c")

	if seen != 1 {
		t.Fatalf("observer saw %d events after cancel, want 1", seen)
	}
}
