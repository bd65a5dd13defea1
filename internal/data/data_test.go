package data

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadClassTable(t *testing.T) {
	path := writeFile(t, "class_list.yaml", `
classes:
  - class_id: 1
    name: warrior
    role: tank
    base_hp: 120
    hp_per_level: 18
    follow_distance: 2.5
    engage_range: 5
  - class_id: 8
    name: mage
    role: dps
    base_hp: 60
    hp_per_level: 9
    follow_distance: 4
    engage_range: 30
    ranged: true
`)
	tbl, err := LoadClassTable(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tbl.Count() != 2 {
		t.Fatalf("count = %d", tbl.Count())
	}
	mage := tbl.Get(8)
	if mage == nil || !mage.Ranged || mage.EngageRange != 30 {
		t.Fatalf("mage profile wrong: %+v", mage)
	}
	if tbl.Get(99) != nil {
		t.Fatalf("unknown class must be nil")
	}
	if hp := tbl.MaxHPFor(1, 10); hp != 300 {
		t.Fatalf("warrior hp at 10 = %d, want 300", hp)
	}
	if hp := tbl.MaxHPFor(99, 10); hp != 100 {
		t.Fatalf("unknown class hp floor = %d, want 100", hp)
	}
}

func TestNamePool(t *testing.T) {
	path := writeFile(t, "name_list.yaml", `
names: [Aldo, Bren, Cale]
`)
	pool, err := LoadNamePool(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if pool.Remaining() != 3 {
		t.Fatalf("remaining = %d", pool.Remaining())
	}
	got := map[string]bool{}
	for i := 0; i < 3; i++ {
		got[pool.Take()] = true
	}
	if !got["Aldo"] || !got["Bren"] || !got["Cale"] {
		t.Fatalf("pool order wrong: %v", got)
	}
	// Exhausted pool suffixes instead of repeating.
	if n := pool.Take(); n != "Aldo1" {
		t.Fatalf("suffixed name = %q", n)
	}
	if pool.Remaining() != 0 {
		t.Fatalf("remaining after exhaustion = %d", pool.Remaining())
	}
}

func TestLoadNamePoolEmpty(t *testing.T) {
	path := writeFile(t, "name_list.yaml", "names: []\n")
	if _, err := LoadNamePool(path); err == nil {
		t.Fatalf("empty pool must fail to load")
	}
}

func TestSpawnFor(t *testing.T) {
	path := writeFile(t, "spawn_list.yaml", `
spawns:
  - {map_id: 0, x: 100, y: 200, z: 10, min_level: 1, max_level: 9}
  - {map_id: 1, x: 500, y: 600, z: 20, min_level: 10, max_level: 0}
`)
	points, err := LoadSpawnPoints(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if p := SpawnFor(points, 5); p == nil || p.MapID != 0 {
		t.Fatalf("level 5 spawn: %+v", p)
	}
	// max_level 0 means open-ended.
	if p := SpawnFor(points, 60); p == nil || p.MapID != 1 {
		t.Fatalf("level 60 spawn: %+v", p)
	}
	if SpawnFor(nil, 5) != nil {
		t.Fatalf("empty list must yield nil")
	}
}

func TestLoadQuestTable(t *testing.T) {
	path := writeFile(t, "quest_list.yaml", `
quests:
  - quest_id: 10
    title: Wolf Cull
    min_level: 3
    objectives:
      - {kind: kill, target: 299, count: 8}
      - {kind: escort, target: 12, count: 1}
`)
	tbl, err := LoadQuestTable(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	q := tbl.Get(10)
	if q == nil || len(q.Objectives) != 2 {
		t.Fatalf("quest wrong: %+v", q)
	}
	// Unknown objective kinds survive loading untouched.
	if q.Objectives[1].Kind != "escort" {
		t.Fatalf("objective kind lost: %+v", q.Objectives[1])
	}
}
