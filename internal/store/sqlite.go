package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ashureev/jobchat/internal/domain"
	"github.com/ashureev/jobchat/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ Repository = (*SQLiteStore)(nil)

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL for concurrent readers; foreign keys must be enabled per connection
	// for ON DELETE CASCADE; immediate transactions avoid lock upgrades.
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY,
		username TEXT NOT NULL,
		role TEXT NOT NULL CHECK (role IN ('jobseeker', 'employer', 'admin')),
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS conversations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_low INTEGER NOT NULL,
		user_high INTEGER NOT NULL,
		initiated_by INTEGER,
		jobseeker_can_reply INTEGER NOT NULL DEFAULT 1,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		CHECK (user_low < user_high),
		UNIQUE (user_low, user_high)
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_high ON conversations(user_high);
	CREATE INDEX IF NOT EXISTS idx_conversations_updated ON conversations(updated_at);

	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		conversation_id INTEGER NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		sender_id INTEGER NOT NULL,
		receiver_id INTEGER NOT NULL,
		content TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		is_read INTEGER NOT NULL DEFAULT 0,
		CHECK (sender_id <> receiver_id)
	);
	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_messages_unread ON messages(receiver_id) WHERE is_read = 0;

	CREATE TABLE IF NOT EXISTS support_messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		sender TEXT NOT NULL CHECK (sender IN ('user', 'bot')),
		message TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_support_messages_created ON support_messages(created_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// GetUser retrieves a user by id.
func (s *SQLiteStore) GetUser(ctx context.Context, userID int64) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, username, role, created_at, updated_at FROM users WHERE id = ?`, userID)

	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}
	return user, nil
}

// UpsertUser creates or updates a user record.
func (s *SQLiteStore) UpsertUser(ctx context.Context, user *domain.User) error {
	if !user.Role.Valid() {
		return shared.FieldError("role", fmt.Sprintf("unknown role %q", user.Role))
	}

	now := time.Now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	query := `
	INSERT INTO users (id, username, role, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		username = excluded.username,
		role = excluded.role,
		updated_at = excluded.updated_at`

	return withRetry(ctx, "upsert_user", func() error {
		_, err := s.db.ExecContext(ctx, query,
			user.ID, user.Username, string(user.Role),
			user.CreatedAt.UnixNano(), user.UpdatedAt.UnixNano())
		if err != nil {
			return fmt.Errorf("upsert user: %w", err)
		}
		return nil
	})
}

// ListUsersExcept returns every other user.
func (s *SQLiteStore) ListUsersExcept(ctx context.Context, userID int64) ([]*domain.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, username, role, created_at, updated_at FROM users WHERE id <> ? ORDER BY username, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer closeRows(rows, "users")

	var users []*domain.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user row: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

const conversationColumns = `c.id, c.user_low, c.user_high, c.initiated_by, c.jobseeker_can_reply, c.created_at, c.updated_at`

// FindConversation looks up a conversation by unordered participant pair.
func (s *SQLiteStore) FindConversation(ctx context.Context, userA, userB int64) (*domain.Conversation, error) {
	lo, hi := domain.OrderedPair(userA, userB)
	row := s.db.QueryRowContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations c WHERE c.user_low = ? AND c.user_high = ?`, lo, hi)

	conv, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan conversation row: %w", err)
	}
	return conv, nil
}

// CreateConversation inserts a conversation for the pair. The UNIQUE
// constraint on (user_low, user_high) makes concurrent creation safe: the
// loser receives a conflict error.
func (s *SQLiteStore) CreateConversation(ctx context.Context, userA, userB int64, initiator *int64) (*domain.Conversation, error) {
	if userA == userB {
		return nil, shared.FieldError("receiver_id", "cannot start a conversation with yourself")
	}
	if initiator != nil && *initiator != userA && *initiator != userB {
		return nil, shared.FieldError("initiated_by", "initiator must be a participant")
	}

	lo, hi := domain.OrderedPair(userA, userB)
	now := time.Now()
	conv := &domain.Conversation{
		UserLow:           lo,
		UserHigh:          hi,
		InitiatedBy:       initiator,
		JobseekerCanReply: true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	var initiatedBy interface{}
	if initiator != nil {
		initiatedBy = *initiator
	}

	err := withRetry(ctx, "create_conversation", func() error {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO conversations (user_low, user_high, initiated_by, jobseeker_can_reply, created_at, updated_at)
			VALUES (?, ?, ?, 1, ?, ?)`,
			lo, hi, initiatedBy, now.UnixNano(), now.UnixNano())
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("conversation last insert id: %w", err)
		}
		conv.ID = id
		return nil
	})
	if shared.IsSQLiteUniqueError(err) {
		return nil, shared.Conflict("conversation already exists").Wrap(err)
	}
	if err != nil {
		return nil, fmt.Errorf("insert conversation: %w", err)
	}
	return conv, nil
}

// GetConversation retrieves a conversation by id.
func (s *SQLiteStore) GetConversation(ctx context.Context, conversationID int64) (*domain.Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations c WHERE c.id = ?`, conversationID)

	conv, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan conversation row: %w", err)
	}
	return conv, nil
}

// ListConversations returns summaries of the user's conversations ordered by
// updated_at descending, each with its latest message and the user's unread count.
func (s *SQLiteStore) ListConversations(ctx context.Context, userID int64) ([]*domain.ConversationSummary, error) {
	query := `
		SELECT ` + conversationColumns + `,
		       (SELECT COUNT(*) FROM messages u
		         WHERE u.conversation_id = c.id AND u.receiver_id = ? AND u.is_read = 0),
		       lm.id, lm.sender_id, lm.receiver_id, lm.content, lm.timestamp, lm.is_read
		FROM conversations c
		LEFT JOIN messages lm ON lm.id = (
			SELECT m.id FROM messages m
			WHERE m.conversation_id = c.id
			ORDER BY m.timestamp DESC, m.id DESC LIMIT 1)
		WHERE c.user_low = ? OR c.user_high = ?
		ORDER BY c.updated_at DESC, c.id DESC`

	rows, err := s.db.QueryContext(ctx, query, userID, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer closeRows(rows, "conversations")

	var summaries []*domain.ConversationSummary
	for rows.Next() {
		var (
			sum         domain.ConversationSummary
			initiatedBy sql.NullInt64
			createdAt   int64
			updatedAt   int64
			lmID        sql.NullInt64
			lmSender    sql.NullInt64
			lmReceiver  sql.NullInt64
			lmContent   sql.NullString
			lmTimestamp sql.NullInt64
			lmRead      sql.NullBool
		)
		if err := rows.Scan(
			&sum.ID, &sum.UserLow, &sum.UserHigh, &initiatedBy, &sum.JobseekerCanReply,
			&createdAt, &updatedAt, &sum.UnreadCount,
			&lmID, &lmSender, &lmReceiver, &lmContent, &lmTimestamp, &lmRead,
		); err != nil {
			return nil, fmt.Errorf("scan conversation summary: %w", err)
		}
		if initiatedBy.Valid {
			v := initiatedBy.Int64
			sum.InitiatedBy = &v
		}
		sum.CreatedAt = time.Unix(0, createdAt)
		sum.UpdatedAt = time.Unix(0, updatedAt)
		if lmID.Valid {
			sum.LastMessage = &domain.Message{
				ID:             lmID.Int64,
				ConversationID: sum.ID,
				SenderID:       lmSender.Int64,
				ReceiverID:     lmReceiver.Int64,
				Content:        lmContent.String,
				Timestamp:      time.Unix(0, lmTimestamp.Int64),
				IsRead:         lmRead.Bool,
			}
		}
		summaries = append(summaries, &sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}
	return summaries, nil
}

// SetJobseekerCanReply toggles the conversation's reply permission.
func (s *SQLiteStore) SetJobseekerCanReply(ctx context.Context, conversationID int64, allowed bool) error {
	return withRetry(ctx, "set_jobseeker_can_reply", func() error {
		res, err := s.db.ExecContext(ctx,
			`UPDATE conversations SET jobseeker_can_reply = ?, updated_at = ? WHERE id = ?`,
			allowed, time.Now().UnixNano(), conversationID)
		if err != nil {
			return fmt.Errorf("update jobseeker_can_reply: %w", err)
		}
		return requireRow(res, "conversation not found")
	})
}

// DeleteConversation removes the conversation; messages go with it.
func (s *SQLiteStore) DeleteConversation(ctx context.Context, conversationID int64) error {
	return withRetry(ctx, "delete_conversation", func() error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, conversationID)
		if err != nil {
			return fmt.Errorf("delete conversation: %w", err)
		}
		return requireRow(res, "conversation not found")
	})
}

// AppendMessage validates and stores a message.
func (s *SQLiteStore) AppendMessage(ctx context.Context, conversationID, senderID, receiverID int64, content string) (*domain.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, shared.FieldError("content", "message content must not be empty")
	}

	conv, err := s.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, shared.NotFound("conversation not found")
	}
	if senderID == receiverID || !conv.HasParticipant(senderID) || !conv.HasParticipant(receiverID) {
		return nil, shared.FieldError("receiver_id", "receiver must be the other participant of the conversation")
	}

	msg := &domain.Message{
		ConversationID: conversationID,
		SenderID:       senderID,
		ReceiverID:     receiverID,
		Content:        content,
		Timestamp:      time.Now(),
	}

	err = withRetry(ctx, "append_message", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin append message: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		res, err := tx.ExecContext(ctx, `
			INSERT INTO messages (conversation_id, sender_id, receiver_id, content, timestamp, is_read)
			VALUES (?, ?, ?, ?, ?, 0)`,
			conversationID, senderID, receiverID, content, msg.Timestamp.UnixNano())
		if err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("message last insert id: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE conversations SET updated_at = ? WHERE id = ?`,
			msg.Timestamp.UnixNano(), conversationID); err != nil {
			return fmt.Errorf("touch conversation: %w", err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit append message: %w", err)
		}
		msg.ID = id
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

const messageColumns = `id, conversation_id, sender_id, receiver_id, content, timestamp, is_read`

// ListMessages returns the most recent limit messages, oldest first.
func (s *SQLiteStore) ListMessages(ctx context.Context, conversationID int64, limit int) ([]*domain.Message, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	query := `
		SELECT ` + messageColumns + ` FROM (
			SELECT ` + messageColumns + ` FROM messages
			WHERE conversation_id = ?
			ORDER BY timestamp DESC, id DESC
			LIMIT ?
		) ORDER BY timestamp ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer closeRows(rows, "messages")

	messages := make([]*domain.Message, 0, limit)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

// GetMessage retrieves a message by id.
func (s *SQLiteStore) GetMessage(ctx context.Context, messageID int64) (*domain.Message, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = ?`, messageID)
	msg, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan message row: %w", err)
	}
	return msg, nil
}

// MarkRead flags the reader's unread messages in a conversation. Idempotent.
func (s *SQLiteStore) MarkRead(ctx context.Context, conversationID, readerID int64) (int64, error) {
	var updated int64
	err := withRetry(ctx, "mark_read", func() error {
		res, err := s.db.ExecContext(ctx,
			`UPDATE messages SET is_read = 1 WHERE conversation_id = ? AND receiver_id = ? AND is_read = 0`,
			conversationID, readerID)
		if err != nil {
			return fmt.Errorf("mark conversation read: %w", err)
		}
		updated, err = res.RowsAffected()
		if err != nil {
			return fmt.Errorf("get rows affected: %w", err)
		}
		return nil
	})
	return updated, err
}

// MarkMessageRead flags a single message as read by its receiver.
func (s *SQLiteStore) MarkMessageRead(ctx context.Context, messageID, readerID int64) error {
	msg, err := s.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if msg == nil {
		return shared.NotFound("message not found")
	}
	if msg.ReceiverID != readerID {
		return shared.Forbidden("You can only mark messages sent to you as read")
	}
	if msg.IsRead {
		return nil
	}

	return withRetry(ctx, "mark_message_read", func() error {
		if _, err := s.db.ExecContext(ctx, `UPDATE messages SET is_read = 1 WHERE id = ?`, messageID); err != nil {
			return fmt.Errorf("mark message read: %w", err)
		}
		return nil
	})
}

// UnreadCount counts unread messages addressed to the user.
func (s *SQLiteStore) UnreadCount(ctx context.Context, userID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE receiver_id = ? AND is_read = 0`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unread messages: %w", err)
	}
	return count, nil
}

// AppendSupportMessage stores a support transcript line and sets its id.
func (s *SQLiteStore) AppendSupportMessage(ctx context.Context, msg *domain.SupportMessage) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	return withRetry(ctx, "append_support_message", func() error {
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO support_messages (session_id, sender, message, created_at) VALUES (?, ?, ?, ?)`,
			msg.SessionID, string(msg.Sender), msg.Message, msg.CreatedAt.UnixNano())
		if err != nil {
			return fmt.Errorf("insert support message: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("support message last insert id: %w", err)
		}
		msg.ID = id
		return nil
	})
}

// PruneSupportMessages deletes transcript lines older than before.
func (s *SQLiteStore) PruneSupportMessages(ctx context.Context, before time.Time) (int64, error) {
	var deleted int64
	err := withRetry(ctx, "prune_support_messages", func() error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM support_messages WHERE created_at < ?`, before.UnixNano())
		if err != nil {
			return fmt.Errorf("prune support messages: %w", err)
		}
		deleted, err = res.RowsAffected()
		return err
	})
	return deleted, err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (*domain.User, error) {
	var user domain.User
	var role string
	var createdAt, updatedAt int64
	if err := row.Scan(&user.ID, &user.Username, &role, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	user.Role = domain.Role(role)
	user.CreatedAt = time.Unix(0, createdAt)
	user.UpdatedAt = time.Unix(0, updatedAt)
	return &user, nil
}

func scanConversation(row rowScanner) (*domain.Conversation, error) {
	var conv domain.Conversation
	var initiatedBy sql.NullInt64
	var createdAt, updatedAt int64
	if err := row.Scan(
		&conv.ID, &conv.UserLow, &conv.UserHigh, &initiatedBy,
		&conv.JobseekerCanReply, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}
	if initiatedBy.Valid {
		v := initiatedBy.Int64
		conv.InitiatedBy = &v
	}
	conv.CreatedAt = time.Unix(0, createdAt)
	conv.UpdatedAt = time.Unix(0, updatedAt)
	return &conv, nil
}

func scanMessage(row rowScanner) (*domain.Message, error) {
	var msg domain.Message
	var ts int64
	if err := row.Scan(
		&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.ReceiverID,
		&msg.Content, &ts, &msg.IsRead,
	); err != nil {
		return nil, err
	}
	msg.Timestamp = time.Unix(0, ts)
	return &msg, nil
}

func requireRow(res sql.Result, notFound string) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return shared.NotFound(notFound)
	}
	return nil
}

func closeRows(rows *sql.Rows, what string) {
	if err := rows.Close(); err != nil {
		slog.Warn("failed to close rows", "table", what, "error", err)
	}
}
