package data

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ClassProfile holds static tuning for one bot class loaded from YAML.
type ClassProfile struct {
	ClassID        int32   `yaml:"class_id"`
	Name           string  `yaml:"name"`
	Role           string  `yaml:"role"` // tank, healer, dps
	BaseHP         int32   `yaml:"base_hp"`
	HPPerLevel     int32   `yaml:"hp_per_level"`
	FollowDistance float64 `yaml:"follow_distance"`
	EngageRange    float64 `yaml:"engage_range"`
	Ranged         bool    `yaml:"ranged"`
}

type classListFile struct {
	Classes []ClassProfile `yaml:"classes"`
}

// ClassTable holds all class profiles indexed by ClassID.
type ClassTable struct {
	profiles map[int32]*ClassProfile
}

// LoadClassTable loads class profiles from a YAML file.
func LoadClassTable(path string) (*ClassTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read class_list: %w", err)
	}
	var f classListFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse class_list: %w", err)
	}
	t := &ClassTable{profiles: make(map[int32]*ClassProfile, len(f.Classes))}
	for i := range f.Classes {
		c := &f.Classes[i]
		t.profiles[c.ClassID] = c
	}
	return t, nil
}

// Get returns a class profile by ID, or nil if not found.
func (t *ClassTable) Get(classID int32) *ClassProfile {
	return t.profiles[classID]
}

// Count returns the number of loaded profiles.
func (t *ClassTable) Count() int {
	return len(t.profiles)
}

// MaxHPFor computes a character's max HP from its profile, or a floor value
// when the class is unknown.
func (t *ClassTable) MaxHPFor(classID int32, level int16) int32 {
	p := t.Get(classID)
	if p == nil {
		return 100
	}
	return p.BaseHP + p.HPPerLevel*int32(level)
}
