package service

import (
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/l1jgo/playerbot/internal/net"
)

// WorkerPool ticks bot sessions off the world thread. Sessions are sharded
// round-robin across a fixed set of goroutines; a session reporting terminate
// is dropped from its shard.
type WorkerPool struct {
	interval time.Duration
	log      *zap.Logger

	shards []*workerShard
	next   int
	nextMu sync.Mutex

	stop chan struct{}
	wg   sync.WaitGroup
}

type workerShard struct {
	mu       sync.Mutex
	sessions []*net.BotSession
}

func NewWorkerPool(workers int, interval time.Duration, log *zap.Logger) *WorkerPool {
	if workers <= 0 {
		workers = 4
	}
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	p := &WorkerPool{
		interval: interval,
		log:      log,
		shards:   make([]*workerShard, workers),
		stop:     make(chan struct{}),
	}
	for i := range p.shards {
		p.shards[i] = &workerShard{}
	}
	return p
}

// Start launches the worker goroutines.
func (p *WorkerPool) Start() {
	for _, sh := range p.shards {
		p.wg.Add(1)
		go p.run(sh)
	}
	p.log.Info("機器人工作執行緒已啟動",
		zap.Int("workers", len(p.shards)),
		zap.Duration("interval", p.interval),
	)
}

func (p *WorkerPool) run(sh *workerShard) {
	defer p.wg.Done()

	// Stagger shard start so every shard does not hammer the world locks on
	// the same millisecond.
	jitter := time.Duration(rand.Int63n(int64(p.interval)))
	select {
	case <-p.stop:
		return
	case <-time.After(jitter):
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.tickShard(sh)
		}
	}
}

func (p *WorkerPool) tickShard(sh *workerShard) {
	sh.mu.Lock()
	snapshot := append([]*net.BotSession(nil), sh.sessions...)
	sh.mu.Unlock()

	for _, sess := range snapshot {
		if sess.Update(p.interval) == net.UpdateTerminate {
			p.removeFrom(sh, sess)
		}
	}
}

// Add assigns a session to the next shard, round-robin.
func (p *WorkerPool) Add(sess *net.BotSession) {
	p.nextMu.Lock()
	sh := p.shards[p.next%len(p.shards)]
	p.next++
	p.nextMu.Unlock()

	sh.mu.Lock()
	sh.sessions = append(sh.sessions, sess)
	sh.mu.Unlock()
}

// Remove detaches a session from whichever shard holds it.
func (p *WorkerPool) Remove(sess *net.BotSession) {
	for _, sh := range p.shards {
		if p.removeFrom(sh, sess) {
			return
		}
	}
}

func (p *WorkerPool) removeFrom(sh *workerShard, sess *net.BotSession) bool {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	for i, s := range sh.sessions {
		if s == sess {
			sh.sessions = append(sh.sessions[:i], sh.sessions[i+1:]...)
			return true
		}
	}
	return false
}

// Size returns the total number of pooled sessions.
func (p *WorkerPool) Size() int {
	total := 0
	for _, sh := range p.shards {
		sh.mu.Lock()
		total += len(sh.sessions)
		sh.mu.Unlock()
	}
	return total
}

// Stop halts all workers and waits for them to drain.
func (p *WorkerPool) Stop() {
	close(p.stop)
	p.wg.Wait()
}
