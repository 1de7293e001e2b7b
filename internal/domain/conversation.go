package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// Conversation is a persistent two-party messaging thread.
// Participants are stored normalised so that UserLow < UserHigh.
type Conversation struct {
	ID                int64     `json:"id"`
	UserLow           int64     `json:"-"`
	UserHigh          int64     `json:"-"`
	InitiatedBy       *int64    `json:"initiated_by"`
	JobseekerCanReply bool      `json:"jobseeker_can_reply"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// OrderedPair returns the participant pair in canonical (low, high) order.
func OrderedPair(a, b int64) (int64, int64) {
	if a < b {
		return a, b
	}
	return b, a
}

// Participants returns both participant ids.
func (c *Conversation) Participants() []int64 {
	return []int64{c.UserLow, c.UserHigh}
}

// HasParticipant reports whether userID is bound to the conversation.
func (c *Conversation) HasParticipant(userID int64) bool {
	return c.UserLow == userID || c.UserHigh == userID
}

// Other returns the participant that is not userID.
// The result is meaningless when userID is not a participant.
func (c *Conversation) Other(userID int64) int64 {
	if c.UserLow == userID {
		return c.UserHigh
	}
	return c.UserLow
}

// Room is the canonical live broadcast room for the conversation.
func (c *Conversation) Room() string {
	return RoomName(c.UserLow, c.UserHigh)
}

// RoomName builds the live room key for an unordered pair.
func RoomName(a, b int64) string {
	lo, hi := OrderedPair(a, b)
	return fmt.Sprintf("chat_%d_%d", lo, hi)
}

var pairRoomPattern = regexp.MustCompile(`^chat_(\d+)_(\d+)$`)

// ParseRoomName reports whether name has the chat_<a>_<b> shape of a
// conversation room and returns the pair in (low, high) order.
// Ids that do not fit an int64 come back as 0, which matches no user.
func ParseRoomName(name string) (lo, hi int64, ok bool) {
	m := pairRoomPattern.FindStringSubmatch(name)
	if m == nil {
		return 0, 0, false
	}
	a, errA := strconv.ParseInt(m[1], 10, 64)
	b, errB := strconv.ParseInt(m[2], 10, 64)
	if errA != nil || errB != nil {
		return 0, 0, true
	}
	lo, hi = OrderedPair(a, b)
	return lo, hi, true
}

// RoomAdmits reports whether userID may subscribe to the room. Conversation
// rooms admit only their two participants; free-form rooms admit anyone.
func RoomAdmits(name string, userID int64) bool {
	lo, hi, ok := ParseRoomName(name)
	if !ok {
		return true
	}
	return userID > 0 && (userID == lo || userID == hi)
}

// ConversationSummary is a conversation as seen from one participant.
type ConversationSummary struct {
	Conversation
	LastMessage *Message `json:"last_message"`
	UnreadCount int      `json:"unread_count"`
}
