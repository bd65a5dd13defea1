package data

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// QuestObjective is one requirement of a quest. Kind is an open vocabulary:
// loaders keep unknown kinds so newer data files still parse, and the quest
// manager skips what it cannot progress.
type QuestObjective struct {
	Kind   string `yaml:"kind"` // kill, collect, explore, talk, ...
	Target int32  `yaml:"target"`
	Count  int32  `yaml:"count"`
}

// QuestTemplate holds static data for one quest.
type QuestTemplate struct {
	QuestID    int32            `yaml:"quest_id"`
	Title      string           `yaml:"title"`
	MinLevel   int16            `yaml:"min_level"`
	Objectives []QuestObjective `yaml:"objectives"`
}

type questListFile struct {
	Quests []QuestTemplate `yaml:"quests"`
}

// QuestTable holds all quest templates indexed by QuestID.
type QuestTable struct {
	quests map[int32]*QuestTemplate
}

// LoadQuestTable loads quest templates from a YAML file.
func LoadQuestTable(path string) (*QuestTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read quest_list: %w", err)
	}
	var f questListFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse quest_list: %w", err)
	}
	t := &QuestTable{quests: make(map[int32]*QuestTemplate, len(f.Quests))}
	for i := range f.Quests {
		q := &f.Quests[i]
		t.quests[q.QuestID] = q
	}
	return t, nil
}

// Get returns a quest template by ID, or nil if not found.
func (t *QuestTable) Get(questID int32) *QuestTemplate {
	return t.quests[questID]
}

// Count returns the number of loaded templates.
func (t *QuestTable) Count() int {
	return len(t.quests)
}
