package world

import (
	"sync"

	"github.com/l1jgo/playerbot/internal/guid"
)

const MaxGroupSize = 5

// GroupInfo tracks one party. The group ID is the leader's GUID at creation
// time; it is re-keyed when leadership transfers.
type GroupInfo struct {
	LeaderGUID guid.GUID
	Members    []guid.GUID // includes leader
}

// GroupManager manages all active groups. Reads come from bot workers
// (CHECKING_GROUP re-reads the group after world entry), so access is guarded.
type GroupManager struct {
	mu          sync.RWMutex
	groups      map[guid.GUID]*GroupInfo // groupID (=leader GUID) → group
	memberGroup map[guid.GUID]guid.GUID  // member GUID → groupID
}

func NewGroupManager() *GroupManager {
	return &GroupManager{
		groups:      make(map[guid.GUID]*GroupInfo),
		memberGroup: make(map[guid.GUID]guid.GUID),
	}
}

// GroupOf returns a copy of the group a character belongs to, or nil.
// The copy is safe to read without holding any lock.
func (m *GroupManager) GroupOf(g guid.GUID) *GroupInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	gid, ok := m.memberGroup[g]
	if !ok {
		return nil
	}
	grp := m.groups[gid]
	if grp == nil {
		return nil
	}
	cp := &GroupInfo{
		LeaderGUID: grp.LeaderGUID,
		Members:    append([]guid.GUID(nil), grp.Members...),
	}
	return cp
}

// IsInGroup returns true if the character is in any group.
func (m *GroupManager) IsInGroup(g guid.GUID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.memberGroup[g]
	return ok
}

// IsLeader returns true if the character leads their group.
func (m *GroupManager) IsLeader(g guid.GUID) bool {
	grp := m.GroupOf(g)
	return grp != nil && grp.LeaderGUID == g
}

// Create forms a new group from a leader and one member.
func (m *GroupManager) Create(leader, member guid.GUID) *GroupInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	grp := &GroupInfo{
		LeaderGUID: leader,
		Members:    []guid.GUID{leader, member},
	}
	m.groups[leader] = grp
	m.memberGroup[leader] = leader
	m.memberGroup[member] = leader
	return grp
}

// AddMember adds a character to an existing group. Returns false if full or
// the group does not exist.
func (m *GroupManager) AddMember(groupID, g guid.GUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	grp := m.groups[groupID]
	if grp == nil || len(grp.Members) >= MaxGroupSize {
		return false
	}
	grp.Members = append(grp.Members, g)
	m.memberGroup[g] = groupID
	return true
}

// RemoveMember removes a single character from their group. Does not
// auto-promote or dissolve — caller handles that. Returns remaining size,
// or -1 when the character was not grouped.
func (m *GroupManager) RemoveMember(g guid.GUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	gid, ok := m.memberGroup[g]
	if !ok {
		return -1
	}
	delete(m.memberGroup, g)
	grp := m.groups[gid]
	if grp == nil {
		return -1
	}
	for i, id := range grp.Members {
		if id == g {
			grp.Members = append(grp.Members[:i], grp.Members[i+1:]...)
			break
		}
	}
	return len(grp.Members)
}

// Dissolve removes all members and deletes the group.
func (m *GroupManager) Dissolve(groupID guid.GUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	grp := m.groups[groupID]
	if grp == nil {
		return
	}
	for _, id := range grp.Members {
		delete(m.memberGroup, id)
	}
	delete(m.groups, groupID)
}

// SetLeader transfers leadership and re-keys the group.
func (m *GroupManager) SetLeader(groupID, newLeader guid.GUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	grp := m.groups[groupID]
	if grp == nil {
		return
	}
	delete(m.groups, grp.LeaderGUID)
	grp.LeaderGUID = newLeader
	m.groups[newLeader] = grp
	for _, id := range grp.Members {
		m.memberGroup[id] = newLeader
	}
}
