package core

import (
	"github.com/pion/webrtc/v4"

	"github.com/mkhas/Rescue/internal/domain"
)

type EventKind int

const (
	EventPeerJoined EventKind = iota
	EventPeerLeft
	EventSignal
	EventChat
)

func (k EventKind) String() string {
	switch k {
	case EventPeerJoined:
		return "peer-joined"
	case EventPeerLeft:
		return "peer-left"
	case EventSignal:
		return "signal"
	case EventChat:
		return "chat-message"
	}
	return "unknown"
}

// Event is the tagged union delivered by the signaling relay. Exactly the
// fields for the kind are set; the rest are zero.
type Event struct {
	Kind   EventKind
	PeerID string // peer-joined, peer-left, signal

	Description *webrtc.SessionDescription // signal
	Candidate   *webrtc.ICECandidateInit   // signal

	Message domain.ChatMessage // chat-message
}

// Signaler is the coordinator's view of the relay. Delivery is at-most-once
// per transport connection; reconnects are the implementation's problem and
// missed events are not replayed.
type Signaler interface {
	// Join is idempotent: joining the room we are already in is a no-op.
	Join(roomID domain.SessionID, identity domain.Identity) error
	// Leave is idempotent: leaving a room we are not in is a no-op.
	Leave(roomID domain.SessionID) error

	// SendSignal targets one peer with a description and/or candidate.
	SendSignal(target string, desc *webrtc.SessionDescription, cand *webrtc.ICECandidateInit) error
	// SendChat fans a message out to the room. Fire-and-forget.
	SendChat(roomID domain.SessionID, text string) error

	// Events is the single consumption point for relay traffic.
	Events() <-chan Event

	Close()
}
