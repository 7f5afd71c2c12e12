// Package signalws is the relay client: a reconnecting WebSocket carrying
// room-membership, negotiation and chat events.
package signalws

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/mkhas/Rescue/internal/core"
	"github.com/mkhas/Rescue/internal/domain"
)

const (
	reconnectBaseDelay = 1 * time.Second
	reconnectMaxDelay  = 30 * time.Second
	writeTimeout       = 5 * time.Second

	// Consecutive dial failures tolerated before the transport gives up.
	defaultMaxRetries = 8
)

// Client implements core.Signaler over a single WebSocket. Delivery is
// at-most-once per connection; after a reconnect the current room is
// re-joined but missed events are gone.
type Client struct {
	url        string
	maxRetries int

	mu       sync.Mutex
	writeMu  sync.Mutex // serialises all conn writes
	conn     *websocket.Conn
	joined   domain.SessionID
	identity domain.Identity
	cancel   context.CancelFunc

	events    chan core.Event
	closeOnce sync.Once
}

func NewClient(url string) *Client {
	return &Client{
		url:        url,
		maxRetries: defaultMaxRetries,
		events:     make(chan core.Event, 64),
	}
}

// Run dials and keeps the connection alive until ctx is done or the retry
// budget is exhausted. It owns the events channel and closes it on exit.
func (c *Client) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	defer c.closeEvents()

	delay := reconnectBaseDelay
	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
		if err != nil {
			failures++
			if failures > c.maxRetries {
				log.Error().Err(err).Str("module", "signalws").Int("failures", failures).Msg("retry budget exhausted, giving up")
				return
			}
			log.Warn().Err(err).Str("module", "signalws").Dur("retry_in", delay).Msg("dial failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			delay = min(delay*2, reconnectMaxDelay)
			continue
		}
		failures = 0
		delay = reconnectBaseDelay

		c.mu.Lock()
		c.conn = conn
		room, identity := c.joined, c.identity
		c.mu.Unlock()
		log.Info().Str("module", "signalws").Str("url", c.url).Msg("connected")

		// Membership is ours to restore; missed events are not.
		if room != "" {
			if err := c.sendEnvelope(eventJoinRoom, joinPayload{RoomID: room, Identity: identity}); err != nil {
				log.Warn().Err(err).Str("module", "signalws").Msg("rejoin after reconnect")
			}
		}

		c.readPump(ctx, conn)

		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
		_ = conn.Close()
	}
}

// Join is idempotent: joining the room we are already in is a no-op.
func (c *Client) Join(roomID domain.SessionID, identity domain.Identity) error {
	c.mu.Lock()
	if c.joined == roomID {
		c.mu.Unlock()
		return nil
	}
	c.joined = roomID
	c.identity = identity
	c.mu.Unlock()
	return c.sendEnvelope(eventJoinRoom, joinPayload{RoomID: roomID, Identity: identity})
}

// Leave is idempotent: leaving a room we are not in is a no-op.
func (c *Client) Leave(roomID domain.SessionID) error {
	c.mu.Lock()
	if c.joined != roomID {
		c.mu.Unlock()
		return nil
	}
	c.joined = ""
	c.mu.Unlock()
	return c.sendEnvelope(eventLeaveRoom, leavePayload{RoomID: roomID})
}

// SendSignal targets one peer with a description and/or candidate.
// Fire-and-forget: a drop is the peer's loss, not ours to replay.
func (c *Client) SendSignal(target string, desc *webrtc.SessionDescription, cand *webrtc.ICECandidateInit) error {
	return c.sendEnvelope(eventSignal, signalPayload{Target: target, Description: desc, Candidate: cand})
}

// SendChat fans a message out to the room.
func (c *Client) SendChat(roomID domain.SessionID, text string) error {
	return c.sendEnvelope(eventChatMessage, chatOutPayload{RoomID: roomID, Message: text})
}

// Events is the single consumption point for relay traffic.
func (c *Client) Events() <-chan core.Event {
	return c.events
}

// Close stops the transport. The events channel closes once Run returns.
func (c *Client) Close() {
	c.mu.Lock()
	cancel := c.cancel
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close()
	}
}

func (c *Client) closeEvents() {
	c.closeOnce.Do(func() { close(c.events) })
}

func (c *Client) readPump(ctx context.Context, conn *websocket.Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			log.Warn().Err(err).Str("module", "signalws").Msg("read error, reconnecting")
			return
		}
		c.dispatch(data)
	}
}
