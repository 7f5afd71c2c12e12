package domain

// ChatMessage is immutable once received. Timestamp is the sender's clock,
// used for display and dedup keys only, never for delivery order.
type ChatMessage struct {
	RoomID    SessionID `json:"roomId"`
	From      Identity  `json:"from"`
	Text      string    `json:"text"`
	Timestamp int64     `json:"timestamp"`
}
