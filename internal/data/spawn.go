package data

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SpawnPoint defines where freshly created bot characters enter the world.
type SpawnPoint struct {
	MapID    int32   `yaml:"map_id"`
	X        float64 `yaml:"x"`
	Y        float64 `yaml:"y"`
	Z        float64 `yaml:"z"`
	Heading  float64 `yaml:"heading"`
	MinLevel int16   `yaml:"min_level"`
	MaxLevel int16   `yaml:"max_level"`
}

type spawnListFile struct {
	Spawns []SpawnPoint `yaml:"spawns"`
}

// LoadSpawnPoints loads bot spawn points from a YAML file.
func LoadSpawnPoints(path string) ([]SpawnPoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read spawn_list: %w", err)
	}
	var f spawnListFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse spawn_list: %w", err)
	}
	return f.Spawns, nil
}

// SpawnFor picks the first spawn point whose level bracket contains level,
// falling back to the first entry.
func SpawnFor(points []SpawnPoint, level int16) *SpawnPoint {
	for i := range points {
		p := &points[i]
		if level >= p.MinLevel && (p.MaxLevel == 0 || level <= p.MaxLevel) {
			return p
		}
	}
	if len(points) > 0 {
		return &points[0]
	}
	return nil
}
