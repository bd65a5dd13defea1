package movement

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/l1jgo/playerbot/internal/guid"
	"github.com/l1jgo/playerbot/internal/world"
)

// Outcome is the submission result reported to the caller.
type Outcome int

const (
	OutcomeQueued    Outcome = iota
	OutcomeDuplicate         // suppressed by the dedup cache
)

func (o Outcome) String() string {
	if o == OutcomeDuplicate {
		return "duplicate suppressed"
	}
	return "queued"
}

// Config bounds the arbiter. Zero values take the defaults.
type Config struct {
	WindowMS   int64   // dedup window, default 100 ms
	Distance   float64 // point equivalence radius in yards, default 0.3
	MaxPending int     // pending queue bound, default 100
}

func (c *Config) fill() {
	if c.WindowMS <= 0 {
		c.WindowMS = 100
	}
	if c.Distance <= 0 {
		c.Distance = 0.3
	}
	if c.MaxPending <= 0 {
		c.MaxPending = 100
	}
}

// Stats is a point-in-time snapshot of the arbiter counters.
type Stats struct {
	Total               uint64
	Executed            uint64
	Duplicates          uint64
	LowPriorityFiltered uint64
	Interrupted         uint64
	Overflow            uint64
	InvalidTarget       uint64
	PerBand             [6]uint64 // indexed by Band
	ArbitrationNS       [5]uint64 // <1µs, <10µs, <100µs, <1ms, rest
}

type dedupEntry struct {
	lastSeenMS atomic.Int64
	x, y, z    float64
	point      bool
}

// Arbiter serializes movement for one bot. Submit runs on any bot worker
// thread; Update, StopMovement and ClearPendingRequests run on the world
// thread only. The dedup cache is consulted before the queue lock so that
// repeated intents from a busy AI never contend.
type Arbiter struct {
	cfg Config
	log *zap.Logger
	now func() int64

	// engine resolves the owning character's motion facade each tick; nil
	// while the character is out of world.
	engine func() *world.MotionEngine
	// targetValid reports whether a chase/follow target still exists.
	targetValid func(guid.GUID) bool

	dedup sync.Map // uint64 -> *dedupEntry

	mu             sync.Mutex
	pending        []*Request
	current        *Request
	currentSinceMS int64

	total               atomic.Uint64
	executed            atomic.Uint64
	duplicates          atomic.Uint64
	lowPriorityFiltered atomic.Uint64
	interrupted         atomic.Uint64
	overflow            atomic.Uint64
	invalidTarget       atomic.Uint64
	perBand             [6]atomic.Uint64
	arbitrationNS       [5]atomic.Uint64
}

func NewArbiter(cfg Config, engine func() *world.MotionEngine, targetValid func(guid.GUID) bool, now func() int64, log *zap.Logger) *Arbiter {
	cfg.fill()
	return &Arbiter{
		cfg:         cfg,
		log:         log,
		now:         now,
		engine:      engine,
		targetValid: targetValid,
	}
}

// Submit queues one request. Safe from any thread. Duplicates inside the
// window are accepted silently without touching the queue lock.
func (a *Arbiter) Submit(r *Request) Outcome {
	nowMS := a.now()
	a.total.Add(1)
	a.perBand[r.Band()].Add(1)

	h := r.Hash()
	if v, ok := a.dedup.Load(h); ok {
		e := v.(*dedupEntry)
		if nowMS-e.lastSeenMS.Load() < a.cfg.WindowMS && a.equivalent(e, r) {
			e.lastSeenMS.Store(nowMS)
			a.duplicates.Add(1)
			return OutcomeDuplicate
		}
	}
	e := &dedupEntry{x: r.Dest.X, y: r.Dest.Y, z: r.Dest.Z, point: r.pointKind()}
	e.lastSeenMS.Store(nowMS)
	a.dedup.Store(h, e)

	r.submittedAtMS = nowMS
	a.mu.Lock()
	if len(a.pending) >= a.cfg.MaxPending {
		a.dropOldestLowLocked()
		a.overflow.Add(1)
		a.log.Warn("移動請求佇列溢位",
			zap.Int("max", a.cfg.MaxPending),
			zap.String("source", r.Source),
		)
	}
	a.pending = append(a.pending, r)
	a.mu.Unlock()
	return OutcomeQueued
}

// equivalent: bucket hit confirmed by the precise distance check for points.
// Chase/follow bucket hits (same kind, band, target) are always duplicates.
func (a *Arbiter) equivalent(e *dedupEntry, r *Request) bool {
	if !e.point {
		return true
	}
	dx, dy, dz := r.Dest.X-e.x, r.Dest.Y-e.y, r.Dest.Z-e.z
	return math.Sqrt(dx*dx+dy*dy+dz*dz) <= a.cfg.Distance
}

// dropOldestLowLocked removes the earliest-submitted entry of the lowest band.
func (a *Arbiter) dropOldestLowLocked() {
	victim := 0
	for i, r := range a.pending {
		if r.Band() < a.pending[victim].Band() {
			victim = i
		}
	}
	a.pending = append(a.pending[:victim], a.pending[victim+1:]...)
}

// Update arbitrates the pending queue and dispatches at most one command.
// World thread only.
func (a *Arbiter) Update() {
	start := time.Now()
	nowMS := a.now()

	a.mu.Lock()
	pending := a.pending
	a.pending = nil

	if a.current != nil && a.expiredLocked(nowMS) {
		a.current = nil
	}

	var winner *Request
	for _, r := range pending {
		if winner == nil {
			winner = r
			continue
		}
		if r.Band() > winner.Band() || (r.Band() == winner.Band() && r.Priority > winner.Priority) {
			winner = r
		}
		a.lowPriorityFiltered.Add(1)
	}

	if winner != nil && !a.preemptsLocked(winner) {
		a.lowPriorityFiltered.Add(1)
		winner = nil
	}
	if winner != nil && !winner.pointKind() && a.targetValid != nil && !a.targetValid(winner.Target) {
		// Target died or despawned between submission and dispatch.
		a.invalidTarget.Add(1)
		winner = nil
	}

	if winner != nil {
		if eng := a.engine(); eng != nil {
			if a.current != nil && a.current != winner {
				a.interrupted.Add(1)
			}
			prio, mode, slot := Translate(winner.Band())
			eng.Issue(winner.command(prio, mode, slot))
			a.current = winner
			a.currentSinceMS = nowMS
			a.executed.Add(1)
			a.log.Debug("派發移動指令",
				zap.String("kind", winner.Kind.String()),
				zap.String("band", winner.Band().String()),
				zap.Uint8("priority", winner.Priority),
				zap.String("engine", prio.String()+"/"+mode.String()+"/"+slot.String()),
				zap.String("source", winner.Source),
			)
		}
	}
	a.mu.Unlock()

	a.evict(nowMS)
	a.observe(time.Since(start))
}

// defaultHoldMS bounds an active request that declared no expected duration.
// The engine never reports motion completion, so without an age-out an
// uninterruptible winner would hold the slot forever.
const defaultHoldMS = 5000

// expiredLocked reports whether the active request outlived its hold.
func (a *Arbiter) expiredLocked(nowMS int64) bool {
	hold := a.current.ExpectedDurationMS
	if hold <= 0 {
		hold = defaultHoldMS
	}
	return nowMS-a.currentSinceMS >= hold
}

// preemptsLocked applies the band preemption rules against the active request.
func (a *Arbiter) preemptsLocked(w *Request) bool {
	c := a.current
	if c == nil {
		return true
	}
	wb, cb := w.Band(), c.Band()
	switch {
	case wb == BandCritical:
		return true
	case wb == BandVeryHigh && cb <= BandHigh:
		return true
	case wb == BandHigh && cb < BandHigh:
		return true
	}
	return !c.Uninterruptible && wb >= cb
}

// evict drops dedup entries older than the window.
func (a *Arbiter) evict(nowMS int64) {
	a.dedup.Range(func(k, v any) bool {
		if nowMS-v.(*dedupEntry).lastSeenMS.Load() >= a.cfg.WindowMS {
			a.dedup.Delete(k)
		}
		return true
	})
}

func (a *Arbiter) observe(d time.Duration) {
	ns := d.Nanoseconds()
	switch {
	case ns < 1_000:
		a.arbitrationNS[0].Add(1)
	case ns < 10_000:
		a.arbitrationNS[1].Add(1)
	case ns < 100_000:
		a.arbitrationNS[2].Add(1)
	case ns < 1_000_000:
		a.arbitrationNS[3].Add(1)
	default:
		a.arbitrationNS[4].Add(1)
	}
}

// ClearPendingRequests empties the queue without touching active movement.
func (a *Arbiter) ClearPendingRequests() {
	a.mu.Lock()
	a.pending = nil
	a.mu.Unlock()
}

// StopMovement clears the queue, halts the engine and releases the slot.
func (a *Arbiter) StopMovement() {
	a.mu.Lock()
	a.pending = nil
	a.current = nil
	a.mu.Unlock()
	if eng := a.engine(); eng != nil {
		eng.Stop()
	}
}

// CurrentRequest returns the request owning the active slot, or nil.
func (a *Arbiter) CurrentRequest() *Request {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

// PendingCount returns the queue depth.
func (a *Arbiter) PendingCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

// Stats snapshots the counters.
func (a *Arbiter) Stats() Stats {
	s := Stats{
		Total:               a.total.Load(),
		Executed:            a.executed.Load(),
		Duplicates:          a.duplicates.Load(),
		LowPriorityFiltered: a.lowPriorityFiltered.Load(),
		Interrupted:         a.interrupted.Load(),
		Overflow:            a.overflow.Load(),
		InvalidTarget:       a.invalidTarget.Load(),
	}
	for i := range a.perBand {
		s.PerBand[i] = a.perBand[i].Load()
	}
	for i := range a.arbitrationNS {
		s.ArbitrationNS[i] = a.arbitrationNS[i].Load()
	}
	return s
}
