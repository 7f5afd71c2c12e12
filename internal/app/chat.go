package app

import (
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/mkhas/Rescue/internal/core"
	"github.com/mkhas/Rescue/internal/domain"
)

// ChatSender is the narrow slice of the signaler the chat channel needs.
type ChatSender interface {
	SendChat(roomID domain.SessionID, text string) error
}

// ChatChannel is the append-only, room-scoped message log. Messages are
// applied in arrival order; the log never merges across rooms.
type ChatChannel struct {
	sender ChatSender

	mu     sync.Mutex
	roomID domain.SessionID
	msgs   []domain.ChatMessage
}

func NewChatChannel(sender ChatSender) *ChatChannel {
	return &ChatChannel{sender: sender}
}

// JoinRoom scopes the channel to a room and clears the previous log.
func (c *ChatChannel) JoinRoom(roomID domain.SessionID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roomID = roomID
	c.msgs = nil
}

// LeaveRoom unscopes the channel and clears the log.
func (c *ChatChannel) LeaveRoom() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roomID = ""
	c.msgs = nil
}

// Send emits a chat-message event for the current room. Empty or
// whitespace-only text never emits; neither does an unscoped channel.
func (c *ChatChannel) Send(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	c.mu.Lock()
	roomID := c.roomID
	c.mu.Unlock()
	if roomID == "" {
		return nil
	}
	if err := c.sender.SendChat(roomID, text); err != nil {
		log.Warn().Err(err).Str("module", "app.chat").Msg("send failed")
		return err
	}
	return nil
}

// Receive appends an incoming message to the current room's log. Messages
// for other rooms (stale fan-out after a switch) are dropped.
func (c *ChatChannel) Receive(msg domain.ChatMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.roomID == "" || (msg.RoomID != "" && msg.RoomID != c.roomID) {
		return
	}
	c.msgs = append(c.msgs, msg)
}

// Messages returns the log in arrival order.
func (c *ChatChannel) Messages() []domain.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.ChatMessage, len(c.msgs))
	copy(out, c.msgs)
	return out
}

var _ ChatSender = (core.Signaler)(nil)
