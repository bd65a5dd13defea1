package world

import (
	"sync"

	"github.com/l1jgo/playerbot/internal/guid"
)

// PacketSink receives a player's outbound packets. Human players sink to a
// TCP session; bots sink to their own synthetic session. May be nil while a
// character is between sessions.
type PacketSink interface {
	Deliver(data []byte)
}

// Position is a continuous world position in yards.
type Position struct {
	X, Y, Z float64
	MapID   int32
	Heading float64 // radians
}

// SpellEvent is a delayed spell effect owned by a character. Pending events
// must be cleared before the owning session is destroyed — the host applies
// them through the character's spell-mod pointer.
type SpellEvent struct {
	SpellID int32
	FireAt  int64 // monotonic ms
}

// PlayerView is a point-in-time copy of a character's state, safe to keep
// across statements on any goroutine.
type PlayerView struct {
	GUID      guid.GUID
	AccountID int64
	Name      string
	ClassID   int32
	Level     int16
	HP        int32
	MaxHP     int32
	Pos       Position
	InWorld   bool
	Alive     bool
	GroupID   guid.GUID
	IsBot     bool
}

// PlayerInfo is the in-memory character record. The identity fields (GUID,
// Name, AccountID, ClassID, Level, IsBot, Sink) are immutable after
// construction and safe to read from any goroutine. Game state (hp, position,
// in-world, group) is written by the world thread and read by bot workers, so
// it lives behind the mutex: writers go through the Set* methods, readers
// through the getters or a View snapshot. Dirty and OverrideMoverTime are
// world-thread-only bookkeeping.
type PlayerInfo struct {
	GUID      guid.GUID
	AccountID int64
	Name      string
	ClassID   int32
	Level     int16

	IsBot bool
	Sink  PacketSink

	Dirty bool // needs persistence flush

	// 套用「override transport server time」旗標後客戶端才會收到可視性更新。
	OverrideMoverTime bool

	Motion *MotionEngine

	mu      sync.Mutex
	hp      int32
	maxHP   int32
	pos     Position
	inWorld bool
	alive   bool
	groupID guid.GUID // leader GUID, empty when ungrouped

	spellEvents []SpellEvent
}

// NewPlayerInfo builds the live record from its initial snapshot. The sink
// may be nil while the character is between sessions.
func NewPlayerInfo(v PlayerView, sink PacketSink) *PlayerInfo {
	return &PlayerInfo{
		GUID:      v.GUID,
		AccountID: v.AccountID,
		Name:      v.Name,
		ClassID:   v.ClassID,
		Level:     v.Level,
		IsBot:     v.IsBot,
		Sink:      sink,
		hp:        v.HP,
		maxHP:     v.MaxHP,
		pos:       v.Pos,
		inWorld:   v.InWorld,
		alive:     v.Alive,
		groupID:   v.GroupID,
	}
}

// View snapshots the character under the lock.
func (p *PlayerInfo) View() PlayerView {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PlayerView{
		GUID:      p.GUID,
		AccountID: p.AccountID,
		Name:      p.Name,
		ClassID:   p.ClassID,
		Level:     p.Level,
		HP:        p.hp,
		MaxHP:     p.maxHP,
		Pos:       p.pos,
		InWorld:   p.inWorld,
		Alive:     p.alive,
		GroupID:   p.groupID,
		IsBot:     p.IsBot,
	}
}

func (p *PlayerInfo) HP() int32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hp
}

func (p *PlayerInfo) MaxHP() int32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.maxHP
}

func (p *PlayerInfo) Pos() Position {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pos
}

func (p *PlayerInfo) InWorld() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inWorld
}

func (p *PlayerInfo) Alive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.alive
}

func (p *PlayerInfo) GroupID() guid.GUID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.groupID
}

func (p *PlayerInfo) SetHP(hp int32) {
	p.mu.Lock()
	p.hp = hp
	p.mu.Unlock()
}

func (p *PlayerInfo) SetPos(pos Position) {
	p.mu.Lock()
	p.pos = pos
	p.mu.Unlock()
}

func (p *PlayerInfo) SetInWorld(in bool) {
	p.mu.Lock()
	p.inWorld = in
	p.mu.Unlock()
}

func (p *PlayerInfo) SetAlive(alive bool) {
	p.mu.Lock()
	p.alive = alive
	p.mu.Unlock()
}

func (p *PlayerInfo) SetGroupID(leader guid.GUID) {
	p.mu.Lock()
	p.groupID = leader
	p.mu.Unlock()
}

// AddSpellEvent queues a delayed spell effect on the character.
func (p *PlayerInfo) AddSpellEvent(ev SpellEvent) {
	p.mu.Lock()
	p.spellEvents = append(p.spellEvents, ev)
	p.mu.Unlock()
}

// ClearSpellEvents drops all pending delayed spell effects and returns how
// many were dropped. Called during session teardown.
func (p *PlayerInfo) ClearSpellEvents() int {
	p.mu.Lock()
	n := len(p.spellEvents)
	p.spellEvents = nil
	p.mu.Unlock()
	return n
}

// PendingSpellEvents returns the number of queued delayed spell effects.
func (p *PlayerInfo) PendingSpellEvents() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.spellEvents)
}

// NpcInfo is the minimal NPC record the bot core needs: something to chase,
// loot, or take quests from.
type NpcInfo struct {
	GUID  guid.GUID
	NpcID int32
	Name  string
	Level int16
	HP    int32
	MaxHP int32
	Pos   Position
	Dead  bool
}
