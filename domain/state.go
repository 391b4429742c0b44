package domain

import "time"

// State is the lifecycle position of the primary connection.
type State int

const (
	Idle State = iota
	Connecting
	Queued
	Matched
	InChat
	Ended
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Queued:
		return "queued"
	case Matched:
		return "matched"
	case InChat:
		return "in_chat"
	case Ended:
		return "ended"
	default:
		return "unknown"
	}
}

// EndReason says why a session was torn down.
type EndReason string

const (
	EndVoluntary   EndReason = "voluntary"
	EndReported    EndReason = "reported"
	EndExpired     EndReason = "expired"
	EndPartnerLeft EndReason = "partner_left"
)

// EndedSession summarises a finished session. It is captured before the ephemeral
// store is cleared so the post-chat screen can still offer a block.
type EndedSession struct {
	Reason       EndReason
	Room         *MatchRoom
	ReportTarget string
	Counted      bool
	At           time.Time
}

// Update is emitted on every orchestrator transition and on inbound chat
// traffic.
// Err annotates Connecting/Queued with a recoverable transport error, or
// carries the protocol reason of a forced teardown.
type Update struct {
	SessionID     string
	State         State
	Err           error
	Room          *MatchRoom
	Ended         *EndedSession
	Message       *ChatMessage
	PartnerTyping bool
}
