package app

import (
	"context"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/mkhas/Rescue/internal/core"
)

type PeerState int

const (
	PeerIdle PeerState = iota
	PeerOffering
	PeerAwaitingAnswer
	PeerAnswerPending
	PeerConnected
	PeerClosed
)

func (s PeerState) String() string {
	switch s {
	case PeerIdle:
		return "idle"
	case PeerOffering:
		return "offering"
	case PeerAwaitingAnswer:
		return "awaiting_answer"
	case PeerAnswerPending:
		return "answer_pending"
	case PeerConnected:
		return "connected"
	case PeerClosed:
		return "closed"
	}
	return "unknown"
}

// SignalSender is the narrow slice of the signaler the mesh needs.
type SignalSender interface {
	SendSignal(target string, desc *webrtc.SessionDescription, cand *webrtc.ICECandidateInit) error
}

type peerEntry struct {
	id     string
	conn   core.MediaConnection
	state  PeerState
	stream string // remote stream id, set by the first track
	tracks []core.MediaTrack
}

// PeerSnapshot is a read-only view for APIs.
type PeerSnapshot struct {
	ID       string `json:"id"`
	State    string `json:"state"`
	StreamID string `json:"streamId,omitempty"`
}

// PeerMesh owns one negotiation state machine per remote participant.
// The entry table is mutated only here, in response to relay events and
// connection callbacks; one peer's failure never aborts the others.
type PeerMesh struct {
	factory core.MediaFactory
	signal  SignalSender

	mu     sync.Mutex
	peers  map[string]*peerEntry
	source core.MediaSource // nil when the session runs data-only

	onStream func(peerID string, track core.MediaTrack)
	onGone   func(peerID string)
}

func NewPeerMesh(factory core.MediaFactory, signal SignalSender) *PeerMesh {
	return &PeerMesh{
		factory: factory,
		signal:  signal,
		peers:   make(map[string]*peerEntry),
	}
}

// SetSource attaches the shared local capture source. nil means data-only;
// negotiation still proceeds for every peer.
func (m *PeerMesh) SetSource(src core.MediaSource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.source = src
}

// OnRemoteStream registers the observer notified on the first track of each
// remote stream.
func (m *PeerMesh) OnRemoteStream(fn func(peerID string, track core.MediaTrack)) {
	m.onStream = fn
}

// OnPeerGone registers the observer notified when a peer's entry is released.
func (m *PeerMesh) OnPeerGone(fn func(peerID string)) {
	m.onGone = fn
}

// HandlePeerJoined creates an entry for the new peer and starts the offering
// side of negotiation: Idle -> Offering -> AwaitingAnswer.
func (m *PeerMesh) HandlePeerJoined(ctx context.Context, peerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.peers[peerID]; ok {
		log.Debug().Str("module", "app.mesh").Str("peer", peerID).Msg("peer already known, ignoring join")
		return
	}

	entry, ok := m.createEntry(ctx, peerID)
	if !ok {
		return
	}

	entry.state = PeerOffering
	offer, err := entry.conn.CreateAndSetOffer()
	if err != nil {
		log.Error().Err(err).Str("module", "app.mesh").Str("peer", peerID).Msg("create offer")
		m.closeEntryLocked(entry)
		return
	}
	if err := m.signal.SendSignal(peerID, offer, nil); err != nil {
		log.Error().Err(err).Str("module", "app.mesh").Str("peer", peerID).Msg("send offer")
		m.closeEntryLocked(entry)
		return
	}
	entry.state = PeerAwaitingAnswer
	log.Info().Str("module", "app.mesh").Str("peer", peerID).Msg("offer sent, awaiting answer")
}

// HandleSignal applies a remote description and/or ICE candidate from a peer.
func (m *PeerMesh) HandleSignal(ctx context.Context, from string, desc *webrtc.SessionDescription, cand *webrtc.ICECandidateInit) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if desc != nil {
		m.applyDescriptionLocked(ctx, from, *desc)
	}
	if cand != nil {
		m.applyCandidateLocked(ctx, from, *cand)
	}
}

func (m *PeerMesh) applyDescriptionLocked(ctx context.Context, from string, desc webrtc.SessionDescription) {
	entry, ok := m.peers[from]
	if !ok {
		// Answering side: the description reached us before any join event.
		entry, ok = m.createEntry(ctx, from)
		if !ok {
			return
		}
	}
	if entry.state == PeerClosed || entry.conn == nil {
		return
	}

	switch desc.Type {
	case webrtc.SDPTypeAnswer:
		if entry.state != PeerAwaitingAnswer {
			log.Warn().Str("module", "app.mesh").Str("peer", from).Str("state", entry.state.String()).Msg("unexpected answer")
			return
		}
		if err := entry.conn.ApplyAnswer(desc); err != nil {
			log.Error().Err(err).Str("module", "app.mesh").Str("peer", from).Msg("apply answer")
			m.closeEntryLocked(entry)
			return
		}
		entry.state = PeerConnected
		log.Info().Str("module", "app.mesh").Str("peer", from).Msg("connected (offerer)")

	case webrtc.SDPTypeOffer:
		// No further round trip is expected once our answer's local
		// description is set, so this path completes immediately.
		entry.state = PeerAnswerPending
		answer, err := entry.conn.ApplyOfferAndCreateAnswer(desc)
		if err != nil {
			log.Error().Err(err).Str("module", "app.mesh").Str("peer", from).Msg("apply offer")
			m.closeEntryLocked(entry)
			return
		}
		if err := m.signal.SendSignal(from, answer, nil); err != nil {
			log.Error().Err(err).Str("module", "app.mesh").Str("peer", from).Msg("send answer")
			m.closeEntryLocked(entry)
			return
		}
		entry.state = PeerConnected
		log.Info().Str("module", "app.mesh").Str("peer", from).Msg("connected (answerer)")

	default:
		log.Warn().Str("module", "app.mesh").Str("peer", from).Str("type", desc.Type.String()).Msg("unknown description type")
	}
}

func (m *PeerMesh) applyCandidateLocked(ctx context.Context, from string, cand webrtc.ICECandidateInit) {
	entry, ok := m.peers[from]
	if !ok {
		// Candidates can outrun the offer; the connection buffers them
		// until a remote description lands.
		entry, ok = m.createEntry(ctx, from)
		if !ok {
			return
		}
	}
	if entry.state == PeerClosed || entry.conn == nil {
		return
	}
	if err := entry.conn.AddICECandidate(cand); err != nil {
		log.Error().Err(err).Str("module", "app.mesh").Str("peer", from).Msg("add ice candidate")
	}
}

// HandlePeerLeft closes the peer's connection and releases its entry.
func (m *PeerMesh) HandlePeerLeft(peerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.peers[peerID]
	if !ok {
		return
	}
	m.closeEntryLocked(entry)
	delete(m.peers, peerID)
	if m.onGone != nil {
		m.onGone(peerID)
	}
	log.Info().Str("module", "app.mesh").Str("peer", peerID).Msg("peer left, entry released")
}

// CloseAll tears down every peer. New events for torn-down peers are ignored
// until the peer joins again.
func (m *PeerMesh) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, entry := range m.peers {
		m.closeEntryLocked(entry)
		delete(m.peers, id)
		if m.onGone != nil {
			m.onGone(id)
		}
	}
	log.Info().Str("module", "app.mesh").Msg("all peers closed")
}

// createEntry builds the connection, wires callbacks and attaches local
// tracks. A factory failure marks the peer closed; the mesh carries on.
// Caller holds m.mu.
func (m *PeerMesh) createEntry(ctx context.Context, peerID string) (*peerEntry, bool) {
	entry := &peerEntry{id: peerID, state: PeerIdle}
	m.peers[peerID] = entry

	conn, err := m.factory(peerID)
	if err != nil {
		log.Error().Err(err).Str("module", "app.mesh").Str("peer", peerID).Msg("media connection construction failed")
		entry.state = PeerClosed
		return entry, false
	}
	entry.conn = conn

	conn.OnICECandidate(func(ci webrtc.ICECandidateInit) {
		if err := m.signal.SendSignal(peerID, nil, &ci); err != nil {
			log.Warn().Err(err).Str("module", "app.mesh").Str("peer", peerID).Msg("send candidate")
		}
	})
	conn.OnTrack(func(track core.MediaTrack) {
		m.attachTrack(peerID, track)
	})
	conn.OnClosed(func() {
		m.markClosed(peerID)
	})

	if m.source != nil {
		for _, t := range m.source.Tracks() {
			if err := conn.AddLocalTrack(t); err != nil {
				// Degrade to data-only for this peer, keep negotiating.
				log.Warn().Err(err).Str("module", "app.mesh").Str("peer", peerID).Msg("add local track")
			}
		}
	}

	if err := conn.Start(ctx); err != nil {
		log.Error().Err(err).Str("module", "app.mesh").Str("peer", peerID).Msg("start media connection")
		m.closeEntryLocked(entry)
		return entry, false
	}
	return entry, true
}

// attachTrack records a remote track. The first track of a stream announces
// the stream to observers; repeats for a populated stream are no-ops.
func (m *PeerMesh) attachTrack(peerID string, track core.MediaTrack) {
	m.mu.Lock()
	entry, ok := m.peers[peerID]
	if !ok || entry.state == PeerClosed {
		m.mu.Unlock()
		return
	}
	first := entry.stream == ""
	if !first && entry.stream == track.StreamID {
		for _, t := range entry.tracks {
			if t.ID == track.ID {
				m.mu.Unlock()
				return
			}
		}
	}
	if first {
		entry.stream = track.StreamID
	}
	entry.tracks = append(entry.tracks, track)
	m.mu.Unlock()

	if first && m.onStream != nil {
		m.onStream(peerID, track)
	}
}

// markClosed flags a dead connection without releasing the entry; release
// happens on peer-left or session teardown, keeping the entry set aligned
// with room membership.
func (m *PeerMesh) markClosed(peerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry, ok := m.peers[peerID]; ok {
		m.closeEntryLocked(entry)
	}
}

func (m *PeerMesh) closeEntryLocked(entry *peerEntry) {
	if entry.state == PeerClosed {
		return
	}
	entry.state = PeerClosed
	entry.stream = ""
	entry.tracks = nil
	if entry.conn != nil && !entry.conn.IsClosed() {
		entry.conn.Close()
	}
}

// Peers returns a read-only snapshot of the entry table.
func (m *PeerMesh) Peers() []PeerSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PeerSnapshot, 0, len(m.peers))
	for _, e := range m.peers {
		out = append(out, PeerSnapshot{ID: e.id, State: e.state.String(), StreamID: e.stream})
	}
	return out
}

// StateOf reports the negotiation state for one peer.
func (m *PeerMesh) StateOf(peerID string) (PeerState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.peers[peerID]; ok {
		return e.state, true
	}
	return PeerClosed, false
}
