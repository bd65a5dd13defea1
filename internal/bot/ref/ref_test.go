package ref

import (
	"testing"

	"github.com/l1jgo/playerbot/internal/guid"
)

type obj struct{ name string }

type table struct {
	objs map[guid.GUID]*obj
}

func (t *table) resolve(g guid.GUID) *obj { return t.objs[g] }

func fixture() (*table, *int64, *Ref[obj]) {
	tab := &table{objs: make(map[guid.GUID]*obj)}
	clock := new(int64)
	r := New(tab.resolve, func() int64 { return *clock })
	return tab, clock, r
}

func TestEmptyGUIDReturnsNil(t *testing.T) {
	_, _, r := fixture()
	if r.Get() != nil {
		t.Fatalf("empty guid must yield nil")
	}
	if r.IsValid() {
		t.Fatalf("empty guid must be invalid")
	}
}

func TestSetThenGetWhileFresh(t *testing.T) {
	tab, clock, r := fixture()
	g := guid.New(guid.KindPlayer, 1)
	o := &obj{name: "leader"}
	tab.objs[g] = o

	r.Set(g, o)
	if r.Get() != o {
		t.Fatalf("fresh cache must return the set object")
	}

	// Destroy at the host. Within the TTL the stale pointer is still served;
	// after the TTL the table wins.
	delete(tab.objs, g)
	*clock += 99
	if r.Get() != o {
		t.Fatalf("inside TTL the cache is authoritative")
	}
	*clock += 2
	if r.Get() != nil {
		t.Fatalf("after TTL a destroyed object must resolve to nil")
	}
	// A null cache is never served — the next Get queries the table again.
	tab.objs[g] = o
	if r.Get() != o {
		t.Fatalf("null cache must re-resolve on next Get")
	}
}

func TestSetGUIDClearsCache(t *testing.T) {
	tab, _, r := fixture()
	g := guid.New(guid.KindNpc, 5)
	o := &obj{name: "wolf"}
	tab.objs[g] = o

	r.SetGUID(g)
	if r.Get() != o {
		t.Fatalf("SetGUID then Get must resolve through the table")
	}
	_, hits, misses, _ := statsOf(r)
	if hits != 0 || misses != 1 {
		t.Fatalf("expected 0 hits / 1 miss, got %d/%d", hits, misses)
	}
}

func TestInvalidateCacheReResolves(t *testing.T) {
	tab, _, r := fixture()
	g := guid.New(guid.KindPlayer, 2)
	o := &obj{}
	tab.objs[g] = o
	r.Set(g, o)

	r.InvalidateCache()
	if r.Get() != o {
		t.Fatalf("still-alive object must re-resolve to same pointer")
	}

	r.InvalidateCache()
	delete(tab.objs, g)
	if r.Get() != nil {
		t.Fatalf("destroyed object must re-resolve to nil")
	}
}

func TestClear(t *testing.T) {
	tab, _, r := fixture()
	g := guid.New(guid.KindPlayer, 3)
	tab.objs[g] = &obj{}
	r.SetGUID(g)
	if !r.IsValid() {
		t.Fatalf("expected valid before clear")
	}
	r.Clear()
	if !r.GUID().IsEmpty() || r.Get() != nil {
		t.Fatalf("clear must empty guid and cache")
	}
}

func TestHitRate(t *testing.T) {
	tab, _, r := fixture()
	g := guid.New(guid.KindPlayer, 4)
	o := &obj{}
	tab.objs[g] = o
	r.Set(g, o)

	for i := 0; i < 9; i++ {
		r.Get()
	}
	accesses, hits, _, rate := statsOf(r)
	if accesses != 9 || hits != 9 {
		t.Fatalf("expected 9/9, got %d/%d", accesses, hits)
	}
	if rate != 1.0 {
		t.Fatalf("expected hit rate 1.0, got %f", rate)
	}
}

func statsOf(r *Ref[obj]) (uint64, uint64, uint64, float64) {
	return r.Stats()
}
