package event

import "github.com/l1jgo/playerbot/internal/guid"

// Bot lifecycle events published by the init state machine and session.

type BotCreated struct {
	AccountID int64
	CharGUID  guid.GUID
}

type BotAddedToWorld struct {
	CharGUID guid.GUID
}

type BotReady struct {
	CharGUID guid.GUID
	ReadyAt  int64 // monotonic ms
}

type BotFailed struct {
	CharGUID guid.GUID
	Reason   string
}

type GroupJoined struct {
	CharGUID   guid.GUID
	LeaderGUID guid.GUID
	AtLogin    bool // group existed before this login
}

type IdleStrategy struct {
	CharGUID guid.GUID
}

type StateChanged struct {
	CharGUID guid.GUID
	From     string
	To       string
}

// World events consumed by SafeRef holders.

type TargetAcquired struct {
	CharGUID   guid.GUID
	TargetGUID guid.GUID
}

type PathFailed struct {
	CharGUID guid.GUID
	Reason   string
}
