package domain

import "time"

// Message is one entry of a conversation. Content and Timestamp are immutable;
// IsRead only transitions from false to true.
type Message struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"conversation"`
	SenderID       int64     `json:"sender"`
	ReceiverID     int64     `json:"receiver"`
	Content        string    `json:"content"`
	Timestamp      time.Time `json:"timestamp"`
	IsRead         bool      `json:"is_read"`
}

// SupportSender identifies the author of a support transcript entry.
type SupportSender string

const (
	SupportSenderUser SupportSender = "user"
	SupportSenderBot  SupportSender = "bot"
)

// SupportMessage is a stored line of the anonymous support bot transcript.
type SupportMessage struct {
	ID        int64         `json:"id"`
	SessionID string        `json:"session_id"`
	Sender    SupportSender `json:"sender"`
	Message   string        `json:"message"`
	CreatedAt time.Time     `json:"timestamp"`
}
