package app

import (
	"context"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/mkhas/Rescue/internal/core"
	"github.com/mkhas/Rescue/internal/domain"
)

// callOrder records the relative order of side effects across fakes.
type callOrder struct {
	mu    sync.Mutex
	calls []string
}

func (o *callOrder) note(name string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, name)
}

func (o *callOrder) snapshot() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, len(o.calls))
	copy(out, o.calls)
	return out
}

func (o *callOrder) indexOf(name string) int {
	for i, c := range o.snapshot() {
		if c == name {
			return i
		}
	}
	return -1
}

type sentSignal struct {
	target string
	desc   *webrtc.SessionDescription
	cand   *webrtc.ICECandidateInit
}

type fakeSignaler struct {
	mu      sync.Mutex
	joins   []domain.SessionID
	leaves  []domain.SessionID
	signals []sentSignal
	chats   []string
	events  chan core.Event
	order   *callOrder
}

func newFakeSignaler() *fakeSignaler {
	return &fakeSignaler{events: make(chan core.Event, 16)}
}

func (f *fakeSignaler) Join(roomID domain.SessionID, _ domain.Identity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joins = append(f.joins, roomID)
	return nil
}

func (f *fakeSignaler) Leave(roomID domain.SessionID) error {
	f.mu.Lock()
	f.leaves = append(f.leaves, roomID)
	f.mu.Unlock()
	if f.order != nil {
		f.order.note("signal.leave")
	}
	return nil
}

func (f *fakeSignaler) SendSignal(target string, desc *webrtc.SessionDescription, cand *webrtc.ICECandidateInit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signals = append(f.signals, sentSignal{target: target, desc: desc, cand: cand})
	return nil
}

func (f *fakeSignaler) SendChat(_ domain.SessionID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chats = append(f.chats, text)
	return nil
}

func (f *fakeSignaler) Events() <-chan core.Event { return f.events }

func (f *fakeSignaler) Close() {}

func (f *fakeSignaler) sentSignals() []sentSignal {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sentSignal, len(f.signals))
	copy(out, f.signals)
	return out
}

func (f *fakeSignaler) sentChats() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.chats))
	copy(out, f.chats)
	return out
}

func (f *fakeSignaler) joinedRooms() []domain.SessionID {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.SessionID, len(f.joins))
	copy(out, f.joins)
	return out
}

func (f *fakeSignaler) leftRooms() []domain.SessionID {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.SessionID, len(f.leaves))
	copy(out, f.leaves)
	return out
}

type fakeConn struct {
	mu          sync.Mutex
	peerID      string
	started     bool
	closed      bool
	offers      int
	answers     int
	remoteDescs []webrtc.SessionDescription
	candidates  []webrtc.ICECandidateInit
	localTracks int
	failOffer   bool

	onICE    func(webrtc.ICECandidateInit)
	onTrack  func(core.MediaTrack)
	onClosed func()

	order *callOrder
}

func (f *fakeConn) Start(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = true
	return nil
}

func (f *fakeConn) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	if f.order != nil {
		f.order.note("peer.close")
	}
}

func (f *fakeConn) IsClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeConn) CreateAndSetOffer() (*webrtc.SessionDescription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOffer {
		return nil, core.ErrMediaUnavailable
	}
	f.offers++
	return &webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "offer-" + f.peerID}, nil
}

func (f *fakeConn) ApplyAnswer(desc webrtc.SessionDescription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.remoteDescs = append(f.remoteDescs, desc)
	return nil
}

func (f *fakeConn) ApplyOfferAndCreateAnswer(desc webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.remoteDescs = append(f.remoteDescs, desc)
	f.answers++
	return &webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "answer-" + f.peerID}, nil
}

func (f *fakeConn) AddICECandidate(ci webrtc.ICECandidateInit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.candidates = append(f.candidates, ci)
	return nil
}

func (f *fakeConn) OnICECandidate(fn func(webrtc.ICECandidateInit)) { f.onICE = fn }

func (f *fakeConn) OnTrack(fn func(core.MediaTrack)) { f.onTrack = fn }

func (f *fakeConn) OnClosed(fn func()) { f.onClosed = fn }

func (f *fakeConn) AddLocalTrack(webrtc.TrackLocal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.localTracks++
	return nil
}

// connRig hands out fakeConns and remembers them by peer id.
type connRig struct {
	mu    sync.Mutex
	conns map[string]*fakeConn
	fail  map[string]bool
	order *callOrder
}

func newConnRig() *connRig {
	return &connRig{conns: make(map[string]*fakeConn), fail: make(map[string]bool)}
}

func (r *connRig) factory(peerID string) (core.MediaConnection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail[peerID] {
		return nil, core.ErrMediaUnavailable
	}
	c := &fakeConn{peerID: peerID, order: r.order}
	r.conns[peerID] = c
	return c, nil
}

func (r *connRig) conn(peerID string) *fakeConn {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conns[peerID]
}

type fakeRegistry struct {
	mu        sync.Mutex
	startID   domain.SessionID
	startErr  error
	updateErr error
	stopErr   error
	listErr   error
	list      []core.SessionSummary

	startCalls  int
	updateCalls int
	stopCalls   int

	updateGate chan struct{} // when set, Update blocks until the gate closes
	order      *callOrder
}

func (f *fakeRegistry) Start(_ context.Context, _ domain.Location) (domain.SessionID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startCalls++
	if f.startErr != nil {
		return "", f.startErr
	}
	return f.startID, nil
}

func (f *fakeRegistry) Update(_ context.Context, _ domain.Location) error {
	f.mu.Lock()
	f.updateCalls++
	gate := f.updateGate
	err := f.updateErr
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return err
}

func (f *fakeRegistry) Stop(context.Context) error {
	f.mu.Lock()
	f.stopCalls++
	err := f.stopErr
	f.mu.Unlock()
	if f.order != nil {
		f.order.note("registry.stop")
	}
	return err
}

func (f *fakeRegistry) ListActive(context.Context) ([]core.SessionSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]core.SessionSummary, len(f.list))
	copy(out, f.list)
	return out, nil
}

func (f *fakeRegistry) updates() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.updateCalls
}

func (f *fakeRegistry) starts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.startCalls
}

type fakeStore struct {
	mu    sync.Mutex
	id    domain.SessionID
	has   bool
	order *callOrder
}

func (f *fakeStore) Load() (domain.SessionID, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.id, f.has, nil
}

func (f *fakeStore) Save(id domain.SessionID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.id = id
	f.has = true
	return nil
}

func (f *fakeStore) Clear() error {
	f.mu.Lock()
	f.id = ""
	f.has = false
	f.mu.Unlock()
	if f.order != nil {
		f.order.note("state.clear")
	}
	return nil
}

func (f *fakeStore) stored() (domain.SessionID, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.id, f.has
}

type fakeLocator struct {
	mu   sync.Mutex
	loc  domain.Location
	errs []error // consumed one per call, then nil
}

func (f *fakeLocator) Current(context.Context) (domain.Location, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return domain.Location{}, err
		}
	}
	return f.loc, nil
}
