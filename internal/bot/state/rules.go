package state

import "time"

// Rule is one compiled edge in the init graph. Every legal runtime transition
// must be the single matching entry of the static table below.
type Rule struct {
	From     State
	To       State
	Desc     string
	Priority int  // tie-break when several rules share (from, to)
	Force    bool // bypasses precondition when forced
	// Pre returns "" when the guard passes, else the refusal reason.
	Pre func(m *Machine) string
}

const (
	groupCheckStuckLimit = 5 * time.Second
)

// rules is the static transition table. Order is irrelevant; lookup matches
// (from, to) and picks the highest priority.
var rules = []Rule{
	{
		From: Created, To: LoadingCharacter,
		Desc: "bot created, begin character load",
	},
	{
		From: LoadingCharacter, To: InWorld,
		Desc: "character loaded and placed on a map",
		Pre: func(m *Machine) string {
			p := m.hooks.Char()
			if p == nil {
				return "character not constructed"
			}
			if !p.InWorld {
				return "host does not report character in-world"
			}
			return ""
		},
	},
	{
		From: LoadingCharacter, To: Failed,
		Desc: "character load exceeded the login budget",
		Pre: func(m *Machine) string {
			if m.stuckFor() < m.loginBudget {
				return "login budget not exhausted"
			}
			return ""
		},
	},
	{
		From: InWorld, To: CheckingGroup,
		Desc: "verify world placement, re-read group",
		Pre: func(m *Machine) string {
			p := m.hooks.Char()
			if p == nil || !p.InWorld {
				return "character left world"
			}
			if !p.Alive {
				return "character not alive"
			}
			return ""
		},
	},
	{
		From: InWorld, To: Created,
		Desc: "character removed before group check",
		Pre: func(m *Machine) string {
			if p := m.hooks.Char(); p != nil && p.InWorld {
				return "character still in world"
			}
			return ""
		},
	},
	{
		From: CheckingGroup, To: ActivatingStrategies,
		Desc: "group read complete, activate strategies",
	},
	{
		From: CheckingGroup, To: InWorld,
		Desc: "group check stuck, retry world verification",
		Pre: func(m *Machine) string {
			if m.stuckFor() <= groupCheckStuckLimit {
				return "group check not stuck yet"
			}
			return ""
		},
	},
	{
		From: ActivatingStrategies, To: Ready,
		Desc: "AI initialized",
		Pre: func(m *Machine) string {
			if !m.hooks.AIInitialized() {
				return "AI not initialized"
			}
			return ""
		},
	},
	{
		From: ActivatingStrategies, To: CheckingGroup,
		Desc: "AI reports not initialized, re-check group",
		Pre: func(m *Machine) string {
			if m.hooks.AIInitialized() {
				return "AI already initialized"
			}
			return ""
		},
	},
	{
		From: Ready, To: InWorld,
		Desc: "soft reset on explicit request",
	},
	{
		From: Ready, To: Created,
		Desc: "character removed from world",
		Pre: func(m *Machine) string {
			if p := m.hooks.Char(); p != nil && p.InWorld {
				return "character still in world"
			}
			return ""
		},
	},
	{
		From: AnyState, To: Failed,
		Desc: "forced failure, reason recorded",
		Force: true,
	},
	{
		From: Failed, To: LoadingCharacter,
		Desc: "retry character load",
		Pre: func(m *Machine) string {
			if m.retries >= m.maxRetries {
				return "retry budget exhausted"
			}
			return ""
		},
	},
	{
		From: Failed, To: Created,
		Desc: "full reset after retries exhausted",
		Pre: func(m *Machine) string {
			if m.retries < m.maxRetries {
				return "retries not exhausted, use retry edge"
			}
			return ""
		},
	},
}

// findRules returns all table entries matching (from, to), exact edges before
// the AnyState wildcard, highest priority first within each class.
func findRules(from, to State) []Rule {
	var exact, wild []Rule
	for _, r := range rules {
		if r.To != to {
			continue
		}
		if r.From == from {
			exact = append(exact, r)
		} else if r.From == AnyState {
			wild = append(wild, r)
		}
	}
	sortByPriority(exact)
	sortByPriority(wild)
	return append(exact, wild...)
}

// sortByPriority: insertion sort, the table is tiny.
func sortByPriority(rs []Rule) {
	for i := 1; i < len(rs); i++ {
		for j := i; j > 0 && rs[j].Priority > rs[j-1].Priority; j-- {
			rs[j], rs[j-1] = rs[j-1], rs[j]
		}
	}
}
