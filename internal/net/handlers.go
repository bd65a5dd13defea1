package net

import (
	"go.uber.org/zap"

	"github.com/l1jgo/playerbot/internal/core/event"
	"github.com/l1jgo/playerbot/internal/guid"
	"github.com/l1jgo/playerbot/internal/net/packet"
	"github.com/l1jgo/playerbot/internal/world"
)

// RegisterBotHandlers installs the opcode handlers the bot pipeline needs.
// Handlers receive the session as `any`; the registry owns status gating and
// panic recovery.
func RegisterBotHandlers(reg *packet.Registry, w *world.State, bus *event.Bus, log *zap.Logger) {
	authedOrWorld := []packet.SessionStatus{packet.StatusAuthed, packet.StatusInWorld}
	worldOnly := []packet.SessionStatus{packet.StatusInWorld}

	reg.Register(packet.COpcodePing, authedOrWorld, func(sess any, r *packet.Reader) {
		// Latency echo only; bots measure nothing from it.
	})

	reg.Register(packet.COpcodeQueuedMessagesEnd, authedOrWorld, func(sess any, r *packet.Reader) {
		s := sess.(*BotSession)
		clientTime := r.ReadDU()
		s.clockDeltaMS.Store(s.now() - int64(clientTime))
		log.Debug("佇列結束，時間同步已初始化",
			zap.String("char", s.CharGUID.String()),
			zap.Uint32("client_time", clientTime),
		)
	})

	reg.Register(packet.COpcodeActiveMoverDone, worldOnly, func(sess any, r *packet.Reader) {
		s := sess.(*BotSession)
		_ = r.ReadDU() // ticks
		if p := w.FindPlayer(s.CharGUID); p != nil {
			p.OverrideMoverTime = true
		}
		w.QueueMapUpdate(s.CharGUID) // visibility refresh
	})

	reg.Register(packet.COpcodeTimeSyncResponse, worldOnly, func(sess any, r *packet.Reader) {
		s := sess.(*BotSession)
		_ = r.ReadDU() // sequence
		clientTime := r.ReadDU()
		s.clockDeltaMS.Store(s.now() - int64(clientTime))
	})

	reg.Register(packet.COpcodeChat, worldOnly, func(sess any, r *packet.Reader) {
		s := sess.(*BotSession)
		msg := r.ReadS()
		log.Debug("機器人聊天", zap.String("char", s.CharGUID.String()), zap.String("msg", msg))
	})

	reg.Register(packet.COpcodeGroupAccept, worldOnly, func(sess any, r *packet.Reader) {
		s := sess.(*BotSession)
		inviter := guid.GUID(r.ReadQ())
		joinGroup(w, bus, s, inviter, log)
	})

	reg.Register(packet.COpcodeGroupDecline, worldOnly, func(sess any, r *packet.Reader) {})

	// Quest mutations are main-thread opcodes: the bot forges them into its
	// own inbound queue and they land here via the deferred drain.
	reg.Register(packet.COpcodeQuestAccept, worldOnly, func(sess any, r *packet.Reader) {
		s := sess.(*BotSession)
		questID := int32(r.ReadDU())
		if s.quests == nil {
			return
		}
		if err := s.quests.Accept(questID); err != nil {
			log.Debug("任務接受被拒", zap.Int32("quest", questID), zap.Error(err))
			return
		}
		log.Info("機器人接受任務",
			zap.String("char", s.CharGUID.String()),
			zap.Int32("quest", questID),
		)
	})

	reg.Register(packet.COpcodeQuestComplete, worldOnly, func(sess any, r *packet.Reader) {
		s := sess.(*BotSession)
		questID := int32(r.ReadDU())
		if s.quests == nil {
			return
		}
		if s.quests.TurnIn(questID) {
			log.Info("機器人交付任務",
				zap.String("char", s.CharGUID.String()),
				zap.Int32("quest", questID),
			)
		}
	})

	reg.Register(packet.COpcodeLFGProposalResult, worldOnly, func(sess any, r *packet.Reader) {
		s := sess.(*BotSession)
		proposalID := r.ReadDU()
		accepted := r.ReadC() == 1
		log.Debug("LFG 提案結果",
			zap.String("char", s.CharGUID.String()),
			zap.Uint32("proposal", proposalID),
			zap.Bool("accepted", accepted),
		)
	})

	reg.Register(packet.COpcodeLFGBootVote, worldOnly, func(sess any, r *packet.Reader) {
		s := sess.(*BotSession)
		yes := r.ReadC() == 1
		log.Debug("LFG 踢人投票", zap.String("char", s.CharGUID.String()), zap.Bool("yes", yes))
	})
}

// joinGroup attaches the bot to the inviter's group, creating one when the
// inviter is ungrouped.
func joinGroup(w *world.State, bus *event.Bus, s *BotSession, inviter guid.GUID, log *zap.Logger) {
	if w.FindPlayer(inviter) == nil {
		log.Debug("邀請者已離線，忽略組隊", zap.String("inviter", inviter.String()))
		return
	}

	var leader guid.GUID
	if g := w.Groups.GroupOf(inviter); g != nil {
		if !w.Groups.AddMember(g.LeaderGUID, s.CharGUID) {
			log.Debug("隊伍已滿", zap.String("leader", g.LeaderGUID.String()))
			return
		}
		leader = g.LeaderGUID
	} else {
		w.Groups.Create(inviter, s.CharGUID)
		leader = inviter
	}

	if p := w.FindPlayer(s.CharGUID); p != nil {
		p.SetGroupID(leader)
	}
	event.Emit(bus, event.GroupJoined{CharGUID: s.CharGUID, LeaderGUID: leader})
	log.Info("機器人加入隊伍",
		zap.String("char", s.CharGUID.String()),
		zap.String("leader", leader.String()),
	)
}
