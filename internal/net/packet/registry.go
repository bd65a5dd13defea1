package packet

import (
	"fmt"

	"go.uber.org/zap"
)

// SessionStatus is the protocol phase an opcode is legal in.
type SessionStatus int

const (
	StatusAuthed  SessionStatus = iota // account bound, character not yet in world
	StatusInWorld                      // character placed on a map
	StatusLogout                       // teardown in progress
)

func (s SessionStatus) String() string {
	switch s {
	case StatusAuthed:
		return "Authed"
	case StatusInWorld:
		return "InWorld"
	case StatusLogout:
		return "Logout"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// HandlerFunc is the callback signature for packet handlers.
// The session pointer is passed as an opaque interface to avoid import cycles.
type HandlerFunc func(sess any, r *Reader)

type handlerEntry struct {
	fn            HandlerFunc
	allowedStates map[SessionStatus]bool
}

// Registry maps opcodes to handlers with status-based access control. The
// thread class of an opcode comes from Classify, not from the registry; a
// packet must already be on its proper thread when Dispatch runs.
type Registry struct {
	handlers map[Opcode]*handlerEntry
	log      *zap.Logger
}

func NewRegistry(log *zap.Logger) *Registry {
	return &Registry{
		handlers: make(map[Opcode]*handlerEntry),
		log:      log,
	}
}

// Register maps an opcode to a handler, restricted to the given statuses.
func (reg *Registry) Register(opcode Opcode, statuses []SessionStatus, fn HandlerFunc) {
	allowed := make(map[SessionStatus]bool, len(statuses))
	for _, s := range statuses {
		allowed[s] = true
	}
	reg.handlers[opcode] = &handlerEntry{
		fn:            fn,
		allowedStates: allowed,
	}
}

// Dispatch finds the handler for the opcode in data[0..1], validates the
// session status, and calls the handler. Returns an error if the packet is
// malformed or the status is not allowed.
func (reg *Registry) Dispatch(sess any, status SessionStatus, data []byte) error {
	if len(data) < 2 {
		return fmt.Errorf("short packet")
	}
	r := NewReader(data)
	opcode := r.Opcode()
	reg.log.Debug("收到封包",
		zap.Uint16("opcode", uint16(opcode)),
		zap.Int("size", len(data)),
		zap.String("status", status.String()),
	)

	entry, ok := reg.handlers[opcode]
	if !ok {
		reg.log.Debug("未知操作碼", zap.Uint16("opcode", uint16(opcode)), zap.String("status", status.String()))
		return nil // silently ignore unknown opcodes
	}

	if !entry.allowedStates[status] {
		reg.log.Warn("操作碼在此狀態下不允許",
			zap.Uint16("opcode", uint16(opcode)),
			zap.String("status", status.String()),
		)
		return fmt.Errorf("opcode %d not allowed in status %s", opcode, status)
	}

	return reg.safeCall(entry.fn, sess, r, opcode)
}

// safeCall executes a handler with panic recovery to prevent a single
// bad packet from crashing the entire game loop.
func (reg *Registry) safeCall(fn HandlerFunc, sess any, r *Reader, opcode Opcode) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			reg.log.Error("處理器 panic 已恢復",
				zap.Uint16("opcode", uint16(opcode)),
				zap.Any("panic", rec),
			)
			err = fmt.Errorf("handler panic for opcode %d: %v", opcode, rec)
		}
	}()
	fn(sess, r)
	return nil
}
