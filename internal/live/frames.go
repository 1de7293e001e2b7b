package live

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/ashureev/jobchat/internal/domain"
)

const (
	FrameChatMessage = "chat_message"
	FrameError       = "error"
	FramePing        = "ping"
	FramePong        = "pong"
)

// flexID accepts an id sent either as a JSON number or a numeric string.
type flexID int64

func (f *flexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		data = []byte(s)
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid id %q: %w", data, err)
	}
	*f = flexID(n)
	return nil
}

// inboundChat is a frame received on a job chat connection.
type inboundChat struct {
	Type       string  `json:"type,omitempty"`
	Message    *string `json:"message"`
	ReceiverID *flexID `json:"receiver_id"`
}

// ChatEvent is broadcast to a room after a message is stored.
type ChatEvent struct {
	Type       string      `json:"type"`
	MessageID  int64       `json:"message_id"`
	Message    string      `json:"message"`
	Sender     string      `json:"sender"`
	SenderID   int64       `json:"sender_id"`
	SenderType domain.Role `json:"sender_type"`
	ReceiverID int64       `json:"receiver_id"`
	Timestamp  time.Time   `json:"timestamp"`
}

// NewChatEvent describes msg as sent by sender.
func NewChatEvent(sender *domain.User, msg *domain.Message) ChatEvent {
	return ChatEvent{
		Type:       FrameChatMessage,
		MessageID:  msg.ID,
		Message:    msg.Content,
		Sender:     sender.Username,
		SenderID:   sender.ID,
		SenderType: sender.Role,
		ReceiverID: msg.ReceiverID,
		Timestamp:  msg.Timestamp,
	}
}

// ErrorFrame is sent only to the connection whose frame was rejected.
type ErrorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func newErrorFrame(message string) ErrorFrame {
	return ErrorFrame{Type: FrameError, Message: message}
}

// inboundSupport is a frame received on the support bot channel.
type inboundSupport struct {
	Message string `json:"message"`
}

// SupportFrame is broadcast on the support bot channel.
type SupportFrame struct {
	Sender  domain.SupportSender `json:"sender"`
	Message string               `json:"message"`
}
