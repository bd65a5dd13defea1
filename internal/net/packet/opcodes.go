package packet

// Opcode identifies a packet type. Client opcodes are inbound to the server;
// server opcodes are outbound and pass through the session send path where
// the bot intercepts them.
type Opcode uint16

// Client opcodes.
const (
	COpcodePing               Opcode = 0x0001
	COpcodeChat               Opcode = 0x0002
	COpcodeNameQuery          Opcode = 0x0003
	COpcodeTimeSyncResponse   Opcode = 0x0004
	COpcodeQueuedMessagesEnd  Opcode = 0x0005
	COpcodeActiveMoverDone    Opcode = 0x0006 // move-init-active-mover-complete
	COpcodeMoveForward        Opcode = 0x0010
	COpcodeMoveStop           Opcode = 0x0011
	COpcodeMoveHeartbeat      Opcode = 0x0012
	COpcodeMoveWorldportAck   Opcode = 0x0013 // teleport completion, spawns grids
	COpcodeCastSpell          Opcode = 0x0020
	COpcodeUseItem            Opcode = 0x0021
	COpcodeResurrectResponse  Opcode = 0x0022
	COpcodeQuestQuery         Opcode = 0x0030
	COpcodeQuestAccept        Opcode = 0x0031
	COpcodeQuestComplete      Opcode = 0x0032
	COpcodeGroupAccept        Opcode = 0x0040
	COpcodeGroupDecline       Opcode = 0x0041
	COpcodeGroupUninvite      Opcode = 0x0042
	COpcodeLFGProposalResult  Opcode = 0x0050
	COpcodeLFGBootVote        Opcode = 0x0051
	COpcodeTradeAccept        Opcode = 0x0060
	COpcodeMailSend           Opcode = 0x0061
	COpcodeAuctionPlaceBid    Opcode = 0x0062
)

// Server opcodes.
const (
	SOpcodeGroupInvite       Opcode = 0x1001
	SOpcodeLFGProposalUpdate Opcode = 0x1002
	SOpcodeLFGBootProposal   Opcode = 0x1003
	SOpcodeTimeSyncRequest   Opcode = 0x1004
	SOpcodeChatMessage       Opcode = 0x1005
	SOpcodeSpellGo           Opcode = 0x1006
	SOpcodeGroupUpdate       Opcode = 0x1007
)

// Processing is the thread class of an inbound opcode handler.
type Processing int

const (
	// ProcessInline runs inside the session's own worker tick.
	ProcessInline Processing = iota
	// ProcessMainThread defers the packet to the world thread drain.
	ProcessMainThread
)

func (p Processing) String() string {
	if p == ProcessMainThread {
		return "MAIN_THREAD"
	}
	return "INLINE"
}

// classification routes each inbound opcode to a thread class. Anything that
// can touch map, unit or spell state must run on the world thread; only
// side-effect-free packets stay on the worker.
var classification = map[Opcode]Processing{
	COpcodePing:              ProcessInline,
	COpcodeChat:              ProcessInline,
	COpcodeNameQuery:         ProcessInline,
	COpcodeTimeSyncResponse:  ProcessInline,
	COpcodeQueuedMessagesEnd: ProcessInline,
	COpcodeMoveForward:       ProcessInline,
	COpcodeMoveStop:          ProcessInline,
	COpcodeMoveHeartbeat:     ProcessInline,
	COpcodeGroupDecline:      ProcessInline,

	COpcodeActiveMoverDone:   ProcessMainThread, // mutates visibility
	COpcodeMoveWorldportAck:  ProcessMainThread,
	COpcodeCastSpell:         ProcessMainThread,
	COpcodeUseItem:           ProcessMainThread,
	COpcodeResurrectResponse: ProcessMainThread,
	COpcodeQuestQuery:        ProcessInline, // read-only
	COpcodeQuestAccept:       ProcessMainThread,
	COpcodeQuestComplete:     ProcessMainThread,
	COpcodeGroupAccept:       ProcessMainThread,
	COpcodeGroupUninvite:     ProcessMainThread,
	COpcodeLFGProposalResult: ProcessMainThread,
	COpcodeLFGBootVote:       ProcessMainThread,
	COpcodeTradeAccept:       ProcessMainThread,
	COpcodeMailSend:          ProcessMainThread,
	COpcodeAuctionPlaceBid:   ProcessMainThread,
}

// Classify is total: opcodes without an entry default to the world thread,
// the safe side for anything unrecognized.
func Classify(op Opcode) Processing {
	if p, ok := classification[op]; ok {
		return p
	}
	return ProcessMainThread
}
