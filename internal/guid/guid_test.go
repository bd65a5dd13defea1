package guid

import "testing"

func TestPackUnpack(t *testing.T) {
	cases := []struct {
		kind    Kind
		counter uint64
	}{
		{KindPlayer, 1},
		{KindNpc, 90210},
		{KindItem, 1<<56 - 1},
		{KindObject, 42},
	}
	for _, c := range cases {
		g := New(c.kind, c.counter)
		if g.Kind() != c.kind {
			t.Fatalf("kind: got %v want %v", g.Kind(), c.kind)
		}
		if g.Counter() != c.counter {
			t.Fatalf("counter: got %d want %d", g.Counter(), c.counter)
		}
		if g.IsEmpty() {
			t.Fatalf("packed guid reported empty: %v", g)
		}
	}
}

func TestEmpty(t *testing.T) {
	var g GUID
	if !g.IsEmpty() {
		t.Fatalf("zero value must be empty")
	}
	if g.Kind() != KindNone {
		t.Fatalf("empty guid kind: got %v", g.Kind())
	}
}

func TestKindsDoNotCollide(t *testing.T) {
	a := New(KindPlayer, 7)
	b := New(KindNpc, 7)
	if a == b {
		t.Fatalf("same counter across kinds must differ")
	}
}
