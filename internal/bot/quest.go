package bot

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/l1jgo/playerbot/internal/data"
)

// progressableKinds are the objective kinds the bot knows how to advance.
// Anything else is counted and skipped: an unknown kind never blocks quest
// completion and never crashes the manager.
var progressableKinds = map[string]bool{
	"kill":    true,
	"collect": true,
	"explore": true,
	"talk":    true,
}

// QuestProgress tracks one accepted quest.
type QuestProgress struct {
	QuestID  int32
	Counts   []int32 // parallel to the template's objectives
	Complete bool
}

// QuestManager drives quest progression for one bot. Accept and the On*
// credit calls come from the AI tick and the world thread respectively, so
// state is guarded.
type QuestManager struct {
	table *data.QuestTable
	log   *zap.Logger

	mu     sync.Mutex
	active map[int32]*QuestProgress

	skippedObjectives atomic.Uint64
}

func NewQuestManager(table *data.QuestTable, log *zap.Logger) *QuestManager {
	return &QuestManager{
		table:  table,
		log:    log,
		active: make(map[int32]*QuestProgress),
	}
}

// Accept starts tracking a quest. Unknown objective kinds are logged once at
// accept time.
func (m *QuestManager) Accept(questID int32) error {
	tpl := m.table.Get(questID)
	if tpl == nil {
		return fmt.Errorf("unknown quest %d", questID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.active[questID]; ok {
		return fmt.Errorf("quest %d already active", questID)
	}

	for _, obj := range tpl.Objectives {
		if !progressableKinds[obj.Kind] {
			m.skippedObjectives.Add(1)
			m.log.Warn("任務目標類型不支援，略過",
				zap.Int32("quest", questID),
				zap.String("kind", obj.Kind),
			)
		}
	}

	m.active[questID] = &QuestProgress{
		QuestID: questID,
		Counts:  make([]int32, len(tpl.Objectives)),
	}
	return nil
}

// OnKill credits kill objectives for the given NPC template id.
func (m *QuestManager) OnKill(npcID int32) {
	m.credit("kill", npcID, 1)
}

// OnCollect credits collect objectives for the given item id.
func (m *QuestManager) OnCollect(itemID int32, count int32) {
	m.credit("collect", itemID, count)
}

// OnExplore credits explore objectives for the given area id.
func (m *QuestManager) OnExplore(areaID int32) {
	m.credit("explore", areaID, 1)
}

// OnTalk credits talk objectives for the given NPC template id.
func (m *QuestManager) OnTalk(npcID int32) {
	m.credit("talk", npcID, 1)
}

func (m *QuestManager) credit(kind string, target, count int32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for questID, prog := range m.active {
		if prog.Complete {
			continue
		}
		tpl := m.table.Get(questID)
		if tpl == nil {
			continue
		}
		for i, obj := range tpl.Objectives {
			if obj.Kind != kind || obj.Target != target {
				continue
			}
			prog.Counts[i] += count
			if prog.Counts[i] > obj.Count {
				prog.Counts[i] = obj.Count
			}
		}
		if m.completeLocked(tpl, prog) {
			prog.Complete = true
			m.log.Info("任務完成", zap.Int32("quest", questID))
		}
	}
}

// completeLocked: every progressable objective is at target count; skipped
// kinds do not gate completion.
func (m *QuestManager) completeLocked(tpl *data.QuestTemplate, prog *QuestProgress) bool {
	for i, obj := range tpl.Objectives {
		if !progressableKinds[obj.Kind] {
			continue
		}
		if prog.Counts[i] < obj.Count {
			return false
		}
	}
	return true
}

// Progress returns a copy of the tracked progress, or nil.
func (m *QuestManager) Progress(questID int32) *QuestProgress {
	m.mu.Lock()
	defer m.mu.Unlock()
	prog, ok := m.active[questID]
	if !ok {
		return nil
	}
	cp := &QuestProgress{
		QuestID:  prog.QuestID,
		Counts:   append([]int32(nil), prog.Counts...),
		Complete: prog.Complete,
	}
	return cp
}

// IsComplete reports whether the quest reached completion.
func (m *QuestManager) IsComplete(questID int32) bool {
	p := m.Progress(questID)
	return p != nil && p.Complete
}

// TurnIn hands a completed quest back: the quest leaves the active set and
// true is reported. An incomplete or unknown quest is left untouched.
func (m *QuestManager) TurnIn(questID int32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	prog, ok := m.active[questID]
	if !ok || !prog.Complete {
		return false
	}
	delete(m.active, questID)
	return true
}

// Abandon drops a quest.
func (m *QuestManager) Abandon(questID int32) {
	m.mu.Lock()
	delete(m.active, questID)
	m.mu.Unlock()
}

// ActiveCount returns how many quests are tracked.
func (m *QuestManager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// SkippedObjectives returns the diagnostic count of unsupported objective
// kinds encountered.
func (m *QuestManager) SkippedObjectives() uint64 {
	return m.skippedObjectives.Load()
}
