package world

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/l1jgo/playerbot/internal/guid"
	"go.uber.org/zap"
)

// State is the live object table the rest of the server resolves GUIDs
// through. Mutations happen on the world thread; lookups are safe from any
// goroutine (SafeRef resolves here from bot workers), hence the RWMutex.
type State struct {
	mu      sync.RWMutex
	players map[guid.GUID]*PlayerInfo
	npcs    map[guid.GUID]*NpcInfo

	// Characters queued for the next map-update pass. A session being torn
	// down must be removed from here first.
	pendingMapUpdate map[guid.GUID]struct{}

	Groups *GroupManager

	nextPlayer atomic.Uint64
	nextNpc    atomic.Uint64

	startedAt time.Time

	log *zap.Logger
}

func NewState(log *zap.Logger) *State {
	return &State{
		players:          make(map[guid.GUID]*PlayerInfo),
		npcs:             make(map[guid.GUID]*NpcInfo),
		pendingMapUpdate: make(map[guid.GUID]struct{}),
		Groups:           NewGroupManager(),
		startedAt:        time.Now(),
		log:              log,
	}
}

// NowMS is the authoritative monotonic clock, in milliseconds since boot.
func (s *State) NowMS() int64 {
	return time.Since(s.startedAt).Milliseconds()
}

// NextPlayerGUID allocates a fresh player GUID.
func (s *State) NextPlayerGUID() guid.GUID {
	return guid.New(guid.KindPlayer, s.nextPlayer.Add(1))
}

// NextNpcGUID allocates a fresh NPC GUID.
func (s *State) NextNpcGUID() guid.GUID {
	return guid.New(guid.KindNpc, s.nextNpc.Add(1))
}

// AddPlayer puts a character into the world. World thread only.
func (s *State) AddPlayer(p *PlayerInfo) {
	if p.Motion == nil {
		p.Motion = NewMotionEngine()
	}
	// Flag before publishing so a worker resolving the GUID right after the
	// map insert already sees an in-world character.
	p.SetInWorld(true)
	s.mu.Lock()
	s.players[p.GUID] = p
	s.mu.Unlock()
	s.log.Debug("角色進入世界",
		zap.String("guid", p.GUID.String()),
		zap.String("name", p.Name),
		zap.Bool("bot", p.IsBot),
	)
}

// RemovePlayer takes a character out of the world. World thread only.
func (s *State) RemovePlayer(g guid.GUID) *PlayerInfo {
	s.mu.Lock()
	p, ok := s.players[g]
	if ok {
		delete(s.players, g)
		delete(s.pendingMapUpdate, g)
	}
	s.mu.Unlock()
	if p == nil {
		return nil
	}
	p.SetInWorld(false)
	s.log.Debug("角色離開世界", zap.String("guid", g.String()), zap.String("name", p.Name))
	return p
}

// FindPlayer resolves a player GUID to the live record, or nil. Any thread.
func (s *State) FindPlayer(g guid.GUID) *PlayerInfo {
	if g.IsEmpty() || g.Kind() != guid.KindPlayer {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.players[g]
}

// FindNpc resolves an NPC GUID to the live record, or nil. Any thread.
func (s *State) FindNpc(g guid.GUID) *NpcInfo {
	if g.IsEmpty() || g.Kind() != guid.KindNpc {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.npcs[g]
}

// AddNpc registers an NPC. World thread only.
func (s *State) AddNpc(n *NpcInfo) {
	s.mu.Lock()
	s.npcs[n.GUID] = n
	s.mu.Unlock()
}

// RemoveNpc removes an NPC. World thread only.
func (s *State) RemoveNpc(g guid.GUID) *NpcInfo {
	s.mu.Lock()
	n, ok := s.npcs[g]
	if ok {
		delete(s.npcs, g)
	}
	s.mu.Unlock()
	if !ok {
		return nil
	}
	return n
}

// PlayerCount returns the number of in-world characters.
func (s *State) PlayerCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.players)
}

// EachPlayer iterates a snapshot of in-world characters.
func (s *State) EachPlayer(fn func(*PlayerInfo)) {
	s.mu.RLock()
	snapshot := make([]*PlayerInfo, 0, len(s.players))
	for _, p := range s.players {
		snapshot = append(snapshot, p)
	}
	s.mu.RUnlock()
	for _, p := range snapshot {
		fn(p)
	}
}

// QueueMapUpdate marks a character for the next map-update pass.
func (s *State) QueueMapUpdate(g guid.GUID) {
	s.mu.Lock()
	s.pendingMapUpdate[g] = struct{}{}
	s.mu.Unlock()
}

// CancelMapUpdate removes a character from the pending map-update set.
// Returns true if an entry was removed.
func (s *State) CancelMapUpdate(g guid.GUID) bool {
	s.mu.Lock()
	_, ok := s.pendingMapUpdate[g]
	delete(s.pendingMapUpdate, g)
	s.mu.Unlock()
	return ok
}

// HasPendingMapUpdate reports whether the character is queued for a map pass.
func (s *State) HasPendingMapUpdate(g guid.GUID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.pendingMapUpdate[g]
	return ok
}
