package signalws

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/mkhas/Rescue/internal/core"
	"github.com/mkhas/Rescue/internal/domain"
)

// Wire event names, matching the relay contract.
const (
	eventJoinRoom    = "join-room"
	eventLeaveRoom   = "leave-room"
	eventSignal      = "signal"
	eventChatMessage = "chat-message"
	eventPeerJoined  = "peer-joined"
	eventPeerLeft    = "peer-left"
)

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type joinPayload struct {
	RoomID   domain.SessionID `json:"roomId"`
	Identity domain.Identity  `json:"identity"`
}

type leavePayload struct {
	RoomID domain.SessionID `json:"roomId"`
}

type signalPayload struct {
	Target      string                     `json:"target,omitempty"`
	From        string                     `json:"from,omitempty"`
	Description *webrtc.SessionDescription `json:"description,omitempty"`
	Candidate   *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
}

type chatOutPayload struct {
	RoomID  domain.SessionID `json:"roomId"`
	Message string           `json:"message"`
}

type chatInPayload struct {
	RoomID    domain.SessionID `json:"roomId,omitempty"`
	From      domain.Identity  `json:"from"`
	Text      string           `json:"text"`
	Timestamp int64            `json:"timestamp"`
}

type peerPayload struct {
	SocketID string `json:"socketId"`
}

func (c *Client) sendEnvelope(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	frame, err := json.Marshal(envelope{Event: event, Data: data})
	if err != nil {
		return err
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return core.ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, frame)
}

// dispatch translates one inbound frame into a typed core.Event. Unknown
// or malformed frames are dropped; at-most-once delivery means nobody
// retries them anyway.
func (c *Client) dispatch(data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "signalws").Msg("bad frame")
		return
	}

	switch env.Event {
	case eventPeerJoined:
		var p peerPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			log.Warn().Err(err).Str("module", "signalws").Msg("bad peer-joined payload")
			return
		}
		c.emit(core.Event{Kind: core.EventPeerJoined, PeerID: p.SocketID})

	case eventPeerLeft:
		var p peerPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			log.Warn().Err(err).Str("module", "signalws").Msg("bad peer-left payload")
			return
		}
		c.emit(core.Event{Kind: core.EventPeerLeft, PeerID: p.SocketID})

	case eventSignal:
		var p signalPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			log.Warn().Err(err).Str("module", "signalws").Msg("bad signal payload")
			return
		}
		c.emit(core.Event{
			Kind:        core.EventSignal,
			PeerID:      p.From,
			Description: p.Description,
			Candidate:   p.Candidate,
		})

	case eventChatMessage:
		var p chatInPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			log.Warn().Err(err).Str("module", "signalws").Msg("bad chat payload")
			return
		}
		c.emit(core.Event{Kind: core.EventChat, Message: domain.ChatMessage{
			RoomID:    p.RoomID,
			From:      p.From,
			Text:      p.Text,
			Timestamp: p.Timestamp,
		}})

	default:
		log.Warn().Str("module", "signalws").Str("event", env.Event).Msg("unknown event")
	}
}

func (c *Client) emit(ev core.Event) {
	select {
	case c.events <- ev:
	default:
		// Consumer is wedged; dropping beats blocking the read pump.
		log.Warn().Str("module", "signalws").Str("kind", ev.Kind.String()).Msg("event buffer full, dropped")
	}
}

var _ core.Signaler = (*Client)(nil)
