package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mkhas/Rescue/internal/core"
	"github.com/mkhas/Rescue/internal/domain"
)

var ErrSessionActive = errors.New("session already active")

// MediaAcquire opens the local capture device. Called at most once per
// session; failure degrades the session to data-only.
type MediaAcquire func() (core.MediaSource, error)

// Controller is the single authority over session identity and lifecycle.
// Nothing else mutates EmergencySession.
type Controller struct {
	registry core.SessionRegistry
	signal   core.Signaler
	state    core.StateStore
	locator  core.Locator
	acquire  MediaAcquire

	identity domain.Identity
	mesh     *PeerMesh
	chat     *ChatChannel
	reporter *Reporter

	onLogout func()

	mu         sync.Mutex
	session    domain.EmergencySession
	active     bool
	joined     domain.SessionID // room currently joined (session id, or a responder target)
	source     core.MediaSource
	loopCancel context.CancelFunc
}

func NewController(
	registry core.SessionRegistry,
	signal core.Signaler,
	state core.StateStore,
	locator core.Locator,
	acquire MediaAcquire,
	identity domain.Identity,
	mesh *PeerMesh,
	chat *ChatChannel,
	reporter *Reporter,
) *Controller {
	c := &Controller{
		registry: registry,
		signal:   signal,
		state:    state,
		locator:  locator,
		acquire:  acquire,
		identity: identity,
		mesh:     mesh,
		chat:     chat,
		reporter: reporter,
	}
	reporter.OnCredentialExpired(c.forceLogout)
	reporter.OnReport(c.noteReport)
	return c
}

// OnLogout registers the hook fired when a credential expiry forces logout.
func (c *Controller) OnLogout(fn func()) { c.onLogout = fn }

// Start creates a session at the registry with the given location (acquired
// from the locator when nil), persists its id, and brings up reporting,
// media and room membership.
func (c *Controller) Start(ctx context.Context, loc *domain.Location) error {
	c.mu.Lock()
	if c.active {
		c.mu.Unlock()
		return ErrSessionActive
	}
	c.mu.Unlock()

	if loc == nil {
		fresh, err := c.locator.Current(ctx)
		if err != nil {
			return fmt.Errorf("acquire position: %w", err)
		}
		loc = &fresh
	}

	id, err := c.registry.Start(ctx, *loc)
	if err != nil {
		if errors.Is(err, core.ErrCredentialExpired) {
			c.forceLogout()
		}
		return fmt.Errorf("create session: %w", err)
	}

	if err := c.state.Save(id); err != nil {
		log.Error().Err(err).Str("module", "app.controller").Msg("persist session id")
	}

	c.mu.Lock()
	c.session = domain.EmergencySession{
		ID:        id,
		Owner:     c.identity,
		Location:  *loc,
		Status:    domain.StatusActive,
		StartedAt: time.Now(),
	}
	c.active = true
	c.mu.Unlock()

	c.bringUp(ctx, id, true)
	log.Info().Str("module", "app.controller").Str("session", string(id)).Msg("session started")
	return nil
}

// Resume re-activates a persisted session after a process restart. It never
// re-creates the session at the registry; an empty store is a clean no-op.
func (c *Controller) Resume(ctx context.Context) error {
	id, ok, err := c.state.Load()
	if err != nil {
		return fmt.Errorf("read persisted state: %w", err)
	}
	if !ok {
		return nil
	}

	c.mu.Lock()
	if c.active {
		c.mu.Unlock()
		return ErrSessionActive
	}
	c.session = domain.EmergencySession{
		ID:        id,
		Owner:     c.identity,
		Status:    domain.StatusActive,
		StartedAt: time.Now(),
	}
	c.active = true
	c.mu.Unlock()

	c.bringUp(ctx, id, true)
	log.Info().Str("module", "app.controller").Str("session", string(id)).Msg("session resumed")
	return nil
}

// Stop tears the session down. Ordering: network stop, timer cancellation,
// peer teardown, room leave, local state clear. Local cleanup is
// unconditional even when the registry call fails.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return core.ErrNoSession
	}
	id := c.session.ID
	c.active = false
	c.mu.Unlock()

	stopErr := c.registry.Stop(ctx)
	if stopErr != nil {
		if errors.Is(stopErr, core.ErrCredentialExpired) {
			defer c.forceLogout()
		}
		log.Warn().Err(stopErr).Str("module", "app.controller").Msg("registry stop failed, tearing down anyway")
	}

	c.reporter.Stop()
	c.tearDownRoom(id)

	if err := c.state.Clear(); err != nil {
		log.Error().Err(err).Str("module", "app.controller").Msg("clear persisted state")
	}

	c.mu.Lock()
	c.session.Status = domain.StatusStopped
	c.mu.Unlock()

	log.Info().Str("module", "app.controller").Str("session", string(id)).Msg("session stopped")
	return stopErr
}

// JoinRoom joins an existing session's room as a responder: mesh and chat
// come up, the reporter does not.
func (c *Controller) JoinRoom(ctx context.Context, roomID domain.SessionID) error {
	c.mu.Lock()
	if c.joined == roomID {
		c.mu.Unlock()
		return nil
	}
	already := c.joined
	c.mu.Unlock()
	if already != "" {
		c.LeaveRoom()
	}
	c.bringUp(ctx, roomID, false)
	log.Info().Str("module", "app.controller").Str("room", string(roomID)).Msg("joined as responder")
	return nil
}

// LeaveRoom leaves the currently joined room without touching any owned
// session state.
func (c *Controller) LeaveRoom() {
	c.mu.Lock()
	id := c.joined
	c.mu.Unlock()
	if id == "" {
		return
	}
	c.tearDownRoom(id)
	log.Info().Str("module", "app.controller").Str("room", string(id)).Msg("left room")
}

// Snapshot returns a copy of the current session for observers.
func (c *Controller) Snapshot() domain.EmergencySession {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.session
	if last, ok := c.reporter.LastReported(); ok {
		s.Location = last
	}
	return s
}

// Active reports whether a session is live.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// bringUp acquires media, joins the signaling room, scopes chat, starts the
// event loop and, for the owning side, the reporter.
func (c *Controller) bringUp(ctx context.Context, roomID domain.SessionID, owner bool) {
	c.ensureMedia()

	if err := c.signal.Join(roomID, c.identity); err != nil {
		log.Warn().Err(err).Str("module", "app.controller").Str("room", string(roomID)).Msg("room join failed, relay will retry on reconnect")
	}
	c.chat.JoinRoom(roomID)

	c.mu.Lock()
	c.joined = roomID
	prevCancel := c.loopCancel
	loopCtx, cancel := context.WithCancel(ctx)
	c.loopCancel = cancel
	c.mu.Unlock()
	if prevCancel != nil {
		prevCancel()
	}
	go c.runEvents(loopCtx)

	if owner {
		c.reporter.Begin(ctx)
	}
}

// tearDownRoom is shared by Stop and LeaveRoom: peers, membership, chat,
// capture device, event loop — in that order.
func (c *Controller) tearDownRoom(roomID domain.SessionID) {
	c.mesh.CloseAll()
	if err := c.signal.Leave(roomID); err != nil {
		log.Warn().Err(err).Str("module", "app.controller").Msg("room leave failed")
	}
	c.chat.LeaveRoom()

	c.mu.Lock()
	c.joined = ""
	src := c.source
	c.source = nil
	cancel := c.loopCancel
	c.loopCancel = nil
	c.mu.Unlock()

	if src != nil {
		src.Close()
	}
	c.mesh.SetSource(nil)
	if cancel != nil {
		cancel()
	}
}

// ensureMedia acquires the capture device once. Failure degrades the session
// to data-only rather than aborting it.
func (c *Controller) ensureMedia() {
	if c.acquire == nil {
		return
	}
	c.mu.Lock()
	have := c.source != nil
	c.mu.Unlock()
	if have {
		return
	}
	src, err := c.acquire()
	if err != nil {
		log.Warn().Err(err).Str("module", "app.controller").Msg("media unavailable, continuing data-only")
		return
	}
	c.mu.Lock()
	c.source = src
	c.mu.Unlock()
	c.mesh.SetSource(src)
}

// runEvents is the single consumption point for relay events; per-peer
// serialization falls out of processing here to completion.
func (c *Controller) runEvents(ctx context.Context) {
	events := c.signal.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			c.mu.Lock()
			joined := c.joined
			c.mu.Unlock()
			if joined == "" {
				// Stale event after teardown; membership is gone, ignore.
				continue
			}
			switch ev.Kind {
			case core.EventPeerJoined:
				c.mesh.HandlePeerJoined(ctx, ev.PeerID)
			case core.EventSignal:
				c.mesh.HandleSignal(ctx, ev.PeerID, ev.Description, ev.Candidate)
			case core.EventPeerLeft:
				c.mesh.HandlePeerLeft(ev.PeerID)
			case core.EventChat:
				c.chat.Receive(ev.Message)
			}
		}
	}
}

// noteReport records the last successful upload time on the session.
func (c *Controller) noteReport(loc domain.Location) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		return
	}
	c.session.Location = loc
	c.session.LastReportedAt = time.Now()
}

// forceLogout clears all local state regardless of which call detected the
// expired credential, then notifies the owner hook.
func (c *Controller) forceLogout() {
	log.Error().Str("module", "app.controller").Msg("credential expired, forcing logout")

	c.mu.Lock()
	active := c.active
	joined := c.joined
	c.active = false
	c.mu.Unlock()

	c.reporter.Stop()
	if joined != "" {
		c.tearDownRoom(joined)
	}
	if err := c.state.Clear(); err != nil {
		log.Error().Err(err).Str("module", "app.controller").Msg("clear persisted state")
	}
	if active {
		c.mu.Lock()
		c.session.Status = domain.StatusStopped
		c.mu.Unlock()
	}
	if c.onLogout != nil {
		c.onLogout()
	}
}
