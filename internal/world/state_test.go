package world

import (
	"testing"

	"github.com/l1jgo/playerbot/internal/guid"
	"go.uber.org/zap"
)

func newTestState() *State {
	return NewState(zap.NewNop())
}

func TestAddRemoveFindPlayer(t *testing.T) {
	s := newTestState()
	g := s.NextPlayerGUID()
	p := NewPlayerInfo(PlayerView{GUID: g, Name: "whale01", IsBot: true, Alive: true}, nil)
	s.AddPlayer(p)

	if !p.InWorld() {
		t.Fatalf("AddPlayer must set InWorld")
	}
	if got := s.FindPlayer(g); got != p {
		t.Fatalf("FindPlayer returned %v", got)
	}
	if p.Motion == nil {
		t.Fatalf("AddPlayer must attach a motion engine")
	}

	removed := s.RemovePlayer(g)
	if removed != p || p.InWorld() {
		t.Fatalf("RemovePlayer: removed=%v inWorld=%v", removed, p.InWorld())
	}
	if s.FindPlayer(g) != nil {
		t.Fatalf("player still resolvable after removal")
	}
}

func TestFindRejectsWrongKind(t *testing.T) {
	s := newTestState()
	n := &NpcInfo{GUID: s.NextNpcGUID(), Name: "wolf"}
	s.AddNpc(n)

	if s.FindPlayer(n.GUID) != nil {
		t.Fatalf("npc guid must not resolve as player")
	}
	if s.FindNpc(n.GUID) != n {
		t.Fatalf("npc not resolvable")
	}
	if s.FindPlayer(0) != nil || s.FindNpc(0) != nil {
		t.Fatalf("empty guid must resolve to nil")
	}
}

func TestPendingMapUpdateSet(t *testing.T) {
	s := newTestState()
	g := s.NextPlayerGUID()
	s.QueueMapUpdate(g)
	if !s.HasPendingMapUpdate(g) {
		t.Fatalf("expected pending map update")
	}
	if !s.CancelMapUpdate(g) {
		t.Fatalf("expected cancel to remove entry")
	}
	if s.CancelMapUpdate(g) {
		t.Fatalf("second cancel must be a no-op")
	}
}

func TestRemovePlayerClearsPendingMapUpdate(t *testing.T) {
	s := newTestState()
	p := &PlayerInfo{GUID: s.NextPlayerGUID()}
	s.AddPlayer(p)
	s.QueueMapUpdate(p.GUID)
	s.RemovePlayer(p.GUID)
	if s.HasPendingMapUpdate(p.GUID) {
		t.Fatalf("pending map update must be cleared on removal")
	}
}

func TestPlayerStateCrossThreadAccess(t *testing.T) {
	s := newTestState()
	p := NewPlayerInfo(PlayerView{
		GUID: s.NextPlayerGUID(), Name: "whale01",
		HP: 100, MaxHP: 100, Alive: true, IsBot: true,
	}, nil)
	s.AddPlayer(p)

	// A worker snapshots through FindPlayer while the world thread mutates
	// hp, position and group. Run under -race.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			live := s.FindPlayer(p.GUID)
			v := live.View()
			if v.HP > v.MaxHP {
				t.Errorf("snapshot hp %d above max %d", v.HP, v.MaxHP)
				return
			}
			_ = live.InWorld()
			_ = live.Pos()
			_ = live.GroupID()
		}
	}()
	for i := 0; i < 1000; i++ {
		p.SetHP(int32(i % 100))
		p.SetPos(Position{X: float64(i), Y: float64(i)})
		p.SetGroupID(guid.New(guid.KindPlayer, uint64(i)+2))
		p.SetAlive(i%2 == 0)
	}
	<-done
}

func TestSpellEvents(t *testing.T) {
	p := &PlayerInfo{GUID: guid.New(guid.KindPlayer, 1)}
	p.AddSpellEvent(SpellEvent{SpellID: 10, FireAt: 100})
	p.AddSpellEvent(SpellEvent{SpellID: 11, FireAt: 200})
	if p.PendingSpellEvents() != 2 {
		t.Fatalf("expected 2 pending, got %d", p.PendingSpellEvents())
	}
	if n := p.ClearSpellEvents(); n != 2 {
		t.Fatalf("expected 2 cleared, got %d", n)
	}
	if p.PendingSpellEvents() != 0 {
		t.Fatalf("events remain after clear")
	}
}

func TestGroupLifecycle(t *testing.T) {
	m := NewGroupManager()
	leader := guid.New(guid.KindPlayer, 1)
	a := guid.New(guid.KindPlayer, 2)
	b := guid.New(guid.KindPlayer, 3)

	grp := m.Create(leader, a)
	if grp.LeaderGUID != leader || len(grp.Members) != 2 {
		t.Fatalf("bad group after create: %+v", grp)
	}
	if !m.AddMember(leader, b) {
		t.Fatalf("add member failed")
	}
	if !m.IsLeader(leader) || m.IsLeader(a) {
		t.Fatalf("leadership wrong")
	}

	// GroupOf returns a copy — mutating it must not corrupt the registry.
	cp := m.GroupOf(a)
	cp.Members[0] = guid.GUID(0)
	if m.GroupOf(a).Members[0] != leader {
		t.Fatalf("GroupOf must return a defensive copy")
	}

	if n := m.RemoveMember(b); n != 2 {
		t.Fatalf("expected 2 remaining, got %d", n)
	}
	m.SetLeader(leader, a)
	if !m.IsLeader(a) {
		t.Fatalf("leadership transfer failed")
	}
	m.Dissolve(a)
	if m.IsInGroup(leader) || m.IsInGroup(a) {
		t.Fatalf("members remain after dissolve")
	}
}

func TestGroupSizeLimit(t *testing.T) {
	m := NewGroupManager()
	leader := guid.New(guid.KindPlayer, 1)
	m.Create(leader, guid.New(guid.KindPlayer, 2))
	for i := uint64(3); i <= uint64(MaxGroupSize); i++ {
		if !m.AddMember(leader, guid.New(guid.KindPlayer, i)) {
			t.Fatalf("add below limit rejected at %d", i)
		}
	}
	if m.AddMember(leader, guid.New(guid.KindPlayer, 99)) {
		t.Fatalf("add past MaxGroupSize must fail")
	}
}

func TestMotionEngineSlots(t *testing.T) {
	e := NewMotionEngine()
	e.Issue(Command{Kind: CommandMoveTo, Priority: EnginePriorityHighest, Mode: EngineModeOverride, Slot: EngineSlotActive})
	cmd := e.Current(EngineSlotActive)
	if cmd == nil || cmd.Kind != CommandMoveTo {
		t.Fatalf("active slot not installed: %+v", cmd)
	}
	if e.Current(EngineSlotDefault) != nil {
		t.Fatalf("default slot must stay empty")
	}
	e.Stop()
	if e.Current(EngineSlotActive) != nil {
		t.Fatalf("stop must release active slot")
	}
	if e.IssuedCount() != 2 {
		t.Fatalf("expected 2 issued, got %d", e.IssuedCount())
	}
}
