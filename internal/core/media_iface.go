package core

import (
	"context"

	"github.com/pion/webrtc/v4"
)

// MediaTrack is the app-level view of a remote track. Adapters translate
// transport-specific track types into this.
type MediaTrack struct {
	ID       string
	StreamID string
	Kind     string
}

// MediaConnection is the offer/answer + ICE negotiation primitive for one
// remote peer. Candidate buffering before the remote description is set is
// the implementation's job, not the caller's.
type MediaConnection interface {
	// Start configures internal callbacks and binds the connection lifetime to ctx.
	Start(ctx context.Context) error
	// Close should stop all underlying media resources.
	Close()
	IsClosed() bool

	// CreateAndSetOffer generates and installs the local offer.
	CreateAndSetOffer() (*webrtc.SessionDescription, error)
	// ApplyAnswer installs the remote answer on the offering side.
	ApplyAnswer(webrtc.SessionDescription) error
	// ApplyOfferAndCreateAnswer installs a remote offer and returns our answer,
	// already set locally.
	ApplyOfferAndCreateAnswer(webrtc.SessionDescription) (*webrtc.SessionDescription, error)
	// AddICECandidate applies a remote ICE candidate.
	AddICECandidate(webrtc.ICECandidateInit) error

	// OnICECandidate sets a callback for newly gathered local ICE candidates.
	OnICECandidate(func(webrtc.ICECandidateInit))
	// OnTrack sets a callback invoked when a new remote track arrives.
	OnTrack(func(MediaTrack))
	// OnClosed sets a callback for cleanup when the transport dies underneath us.
	OnClosed(func())

	// AddLocalTrack attaches a local track to the underlying connection.
	AddLocalTrack(track webrtc.TrackLocal) error
}

// MediaFactory builds one MediaConnection per remote peer. A construction
// failure closes that peer only; the mesh continues without it.
type MediaFactory func(peerID string) (MediaConnection, error)

// MediaSource is the local capture device. Acquired at most once per session,
// shared by every peer connection, released exactly once on teardown.
type MediaSource interface {
	Tracks() []webrtc.TrackLocal
	Close()
}
