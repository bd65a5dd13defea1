package persist

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// LoadResult is what a character-load query holder resolves to.
type LoadResult struct {
	Char *BotCharacterRow
	Err  error
}

// CharLoader is the query the holder runs off-thread.
type CharLoader func(ctx context.Context, charID int64) (*BotCharacterRow, error)

// Holder runs character loads on background goroutines and delivers each
// completion on the world thread: callbacks are queued as they finish and
// run only inside DrainCompletions. The callback itself may touch world
// state freely.
type Holder struct {
	load    CharLoader
	timeout time.Duration
	log     *zap.Logger

	mu   sync.Mutex
	done []func()

	inFlight atomic.Int32
}

func NewHolder(load CharLoader, timeout time.Duration, log *zap.Logger) *Holder {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Holder{load: load, timeout: timeout, log: log}
}

// NewHolderFromRepo wires the holder to the character repository.
func NewHolderFromRepo(repo *CharacterRepo, log *zap.Logger) *Holder {
	return NewHolder(repo.LoadByID, 0, log)
}

// Submit starts one asynchronous character load. Safe from any thread.
func (h *Holder) Submit(charID int64, fn func(LoadResult)) {
	h.inFlight.Add(1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
		defer cancel()
		row, err := h.load(ctx, charID)
		if err != nil {
			h.log.Warn("角色載入查詢失敗", zap.Int64("char_id", charID), zap.Error(err))
		}
		h.mu.Lock()
		h.done = append(h.done, func() { fn(LoadResult{Char: row, Err: err}) })
		h.mu.Unlock()
		h.inFlight.Add(-1)
	}()
}

// DrainCompletions runs every queued completion callback and reports how
// many ran. World thread only.
func (h *Holder) DrainCompletions() int {
	h.mu.Lock()
	pending := h.done
	h.done = nil
	h.mu.Unlock()

	for _, fn := range pending {
		fn()
	}
	return len(pending)
}

// InFlight returns the number of queries still running.
func (h *Holder) InFlight() int {
	return int(h.inFlight.Load())
}
