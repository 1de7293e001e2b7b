// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/ashureev/jobchat/internal/domain"
)

// DefaultHistoryLimit bounds ListMessages when the caller passes limit <= 0.
const DefaultHistoryLimit = 50

// Repository is the only mutation surface for users, conversations and messages.
// Getters return (nil, nil) when the row does not exist.
type Repository interface {
	// GetUser retrieves a user by id.
	GetUser(ctx context.Context, userID int64) (*domain.User, error)

	// UpsertUser creates or updates the mirrored identity record.
	UpsertUser(ctx context.Context, user *domain.User) error

	// ListUsersExcept returns every user other than userID ordered by username.
	ListUsersExcept(ctx context.Context, userID int64) ([]*domain.User, error)

	// FindConversation looks a conversation up by its unordered participant pair.
	FindConversation(ctx context.Context, userA, userB int64) (*domain.Conversation, error)

	// CreateConversation creates a conversation for the pair.
	// It returns a shared.KindConflict error if one already exists.
	CreateConversation(ctx context.Context, userA, userB int64, initiator *int64) (*domain.Conversation, error)

	// GetConversation retrieves a conversation by id.
	GetConversation(ctx context.Context, conversationID int64) (*domain.Conversation, error)

	// ListConversations returns the user's conversations, most recently updated first.
	ListConversations(ctx context.Context, userID int64) ([]*domain.ConversationSummary, error)

	// SetJobseekerCanReply toggles the reply permission flag.
	SetJobseekerCanReply(ctx context.Context, conversationID int64, allowed bool) error

	// DeleteConversation removes a conversation and, by cascade, its messages.
	DeleteConversation(ctx context.Context, conversationID int64) error

	// AppendMessage persists a message and bumps the conversation's updated_at.
	AppendMessage(ctx context.Context, conversationID, senderID, receiverID int64, content string) (*domain.Message, error)

	// ListMessages returns the most recent limit messages in ascending timestamp order.
	ListMessages(ctx context.Context, conversationID int64, limit int) ([]*domain.Message, error)

	// GetMessage retrieves a message by id.
	GetMessage(ctx context.Context, messageID int64) (*domain.Message, error)

	// MarkRead flags every unread message addressed to reader in the conversation.
	MarkRead(ctx context.Context, conversationID, readerID int64) (int64, error)

	// MarkMessageRead flags a single message; reader must be its receiver.
	MarkMessageRead(ctx context.Context, messageID, readerID int64) error

	// UnreadCount counts unread messages addressed to userID across all conversations.
	UnreadCount(ctx context.Context, userID int64) (int, error)

	// AppendSupportMessage stores a support bot transcript line.
	AppendSupportMessage(ctx context.Context, msg *domain.SupportMessage) error

	// PruneSupportMessages deletes transcript lines created before the cutoff.
	PruneSupportMessages(ctx context.Context, before time.Time) (int64, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
