package data

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

type nameListFile struct {
	Names []string `yaml:"names"`
}

// NamePool hands out unused bot names. The spawner takes names from here so
// two bots never collide on the unique character-name column.
type NamePool struct {
	mu    sync.Mutex
	names []string
	next  int
}

// LoadNamePool loads the bot name pool from a YAML file.
func LoadNamePool(path string) (*NamePool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read name_list: %w", err)
	}
	var f nameListFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse name_list: %w", err)
	}
	if len(f.Names) == 0 {
		return nil, fmt.Errorf("name_list %s is empty", path)
	}
	return &NamePool{names: f.Names}, nil
}

// Take returns the next unused name. Once the pool is exhausted names get a
// numeric suffix instead of repeating.
func (p *NamePool) Take() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := p.next
	p.next++
	if n < len(p.names) {
		return p.names[n]
	}
	return fmt.Sprintf("%s%d", p.names[n%len(p.names)], n/len(p.names))
}

// Remaining returns how many unsuffixed names are left.
func (p *NamePool) Remaining() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.next >= len(p.names) {
		return 0
	}
	return len(p.names) - p.next
}
