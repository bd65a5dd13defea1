package guid

import "fmt"

// Kind identifies the object class a GUID refers to. The high byte of the
// packed value, so GUIDs of different kinds never collide even if the host
// reuses counters per table.
type Kind uint8

const (
	KindNone   Kind = 0
	KindPlayer Kind = 1
	KindNpc    Kind = 2
	KindItem   Kind = 3
	KindObject Kind = 4
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "None"
	case KindPlayer:
		return "Player"
	case KindNpc:
		return "Npc"
	case KindItem:
		return "Item"
	case KindObject:
		return "Object"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// GUID is a stable world-object identifier: [8b kind][56b counter].
// The zero value is the empty GUID and never names a live object.
type GUID uint64

const counterMask = (GUID(1) << 56) - 1

// New packs a kind and counter into a GUID.
func New(k Kind, counter uint64) GUID {
	return GUID(k)<<56 | GUID(counter)&counterMask
}

func (g GUID) IsEmpty() bool { return g == 0 }

func (g GUID) Kind() Kind { return Kind(g >> 56) }

func (g GUID) Counter() uint64 { return uint64(g & counterMask) }

func (g GUID) String() string {
	if g.IsEmpty() {
		return "GUID(empty)"
	}
	return fmt.Sprintf("%s-%d", g.Kind(), g.Counter())
}
