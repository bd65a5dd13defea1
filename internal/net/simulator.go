package net

import (
	"go.uber.org/zap"

	"github.com/l1jgo/playerbot/internal/net/packet"
)

// Simulator forges the inbound packets a real client sends during and after
// login. Each forged packet is hand-built and dispatched straight into the
// handler table, never queued: the caller's thread is the pipeline step's
// thread (world thread for the login pair, session worker for time sync).
type Simulator struct {
	sess *BotSession
	log  *zap.Logger
}

// QueuedMessagesEnd resumes communication after the async character load and
// seeds time synchronization. Body: u32 clientTime.
func (sim *Simulator) QueuedMessagesEnd() {
	w := packet.NewWriterWithOpcode(packet.COpcodeQueuedMessagesEnd)
	w.WriteDU(uint32(sim.sess.now()))
	sim.sess.forge(w.Bytes())
	sim.log.Debug("偽造佇列結束封包")
}

// ActiveMoverComplete acknowledges mover initialization once the character
// is on a map. The handler sets the character's override-mover-time flag and
// queues a visibility update; without it the bot sees nothing. Body: u32
// ticks.
func (sim *Simulator) ActiveMoverComplete() {
	w := packet.NewWriterWithOpcode(packet.COpcodeActiveMoverDone)
	w.WriteDU(uint32(sim.sess.now()))
	sim.sess.forge(w.Bytes())
	sim.log.Debug("偽造移動器初始化完成封包")
}

// TimeSyncResponse keeps the host's clock-delta computation current. Body:
// u32 sequenceIndex, u32 clientTime.
func (sim *Simulator) TimeSyncResponse() {
	seq := sim.sess.timeSyncSeq.Add(1) - 1
	w := packet.NewWriterWithOpcode(packet.COpcodeTimeSyncResponse)
	w.WriteDU(seq)
	w.WriteDU(uint32(sim.sess.now()))
	sim.sess.forge(w.Bytes())
}
