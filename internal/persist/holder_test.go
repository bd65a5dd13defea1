package persist

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition not reached in time")
}

func TestHolderDeliversOnDrainOnly(t *testing.T) {
	row := &BotCharacterRow{ID: 42, Name: "bot"}
	h := NewHolder(func(ctx context.Context, id int64) (*BotCharacterRow, error) {
		return row, nil
	}, 0, zap.NewNop())

	var got *BotCharacterRow
	h.Submit(42, func(res LoadResult) { got = res.Char })

	// The query finishes in the background but the callback must not run
	// until the world thread drains.
	waitFor(t, func() bool { return h.InFlight() == 0 })
	if got != nil {
		t.Fatalf("completion ran before drain")
	}

	if n := h.DrainCompletions(); n != 1 {
		t.Fatalf("drained %d completions, want 1", n)
	}
	if got != row {
		t.Fatalf("completion delivered wrong row: %+v", got)
	}
}

func TestHolderSurfacesLoadError(t *testing.T) {
	boom := errors.New("connection reset")
	h := NewHolder(func(ctx context.Context, id int64) (*BotCharacterRow, error) {
		return nil, boom
	}, 0, zap.NewNop())

	var res LoadResult
	h.Submit(7, func(r LoadResult) { res = r })
	waitFor(t, func() bool { return h.InFlight() == 0 })
	h.DrainCompletions()

	if !errors.Is(res.Err, boom) || res.Char != nil {
		t.Fatalf("error not surfaced: %+v", res)
	}
}

func TestHolderMultipleSubmits(t *testing.T) {
	h := NewHolder(func(ctx context.Context, id int64) (*BotCharacterRow, error) {
		return &BotCharacterRow{ID: id}, nil
	}, 0, zap.NewNop())

	seen := make(map[int64]bool)
	for i := int64(1); i <= 5; i++ {
		h.Submit(i, func(r LoadResult) { seen[r.Char.ID] = true })
	}
	waitFor(t, func() bool { return h.InFlight() == 0 })

	if n := h.DrainCompletions(); n != 5 {
		t.Fatalf("drained %d, want 5", n)
	}
	for i := int64(1); i <= 5; i++ {
		if !seen[i] {
			t.Fatalf("load %d not delivered", i)
		}
	}
	if h.DrainCompletions() != 0 {
		t.Fatalf("drain must be idempotent")
	}
}
