package support

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/jobchat/internal/domain"
	"github.com/ashureev/jobchat/internal/shared"
	"github.com/ashureev/jobchat/internal/store"
	"github.com/google/uuid"
)

// Exchange is one question and the bot's answer.
type Exchange struct {
	User *domain.SupportMessage `json:"user"`
	Bot  *domain.SupportMessage `json:"bot"`
}

// Service answers support questions and records the transcript.
type Service struct {
	repo      store.Repository
	responder *Responder
	logger    *slog.Logger
}

// NewService creates a support service. A nil responder uses a clock seeded one.
func NewService(repo store.Repository, responder *Responder, logger *slog.Logger) *Service {
	if responder == nil {
		responder = NewResponder()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, responder: responder, logger: logger}
}

// NewSessionID returns a fresh transcript session id.
func NewSessionID() string {
	return uuid.NewString()
}

// Converse answers text and persists both lines under sessionID.
// An empty sessionID gets a new one.
func (s *Service) Converse(ctx context.Context, sessionID, text string) (*Exchange, error) {
	if strings.TrimSpace(text) == "" {
		return nil, shared.FieldError("message", "Message is required")
	}
	if sessionID == "" {
		sessionID = NewSessionID()
	}

	userMsg := &domain.SupportMessage{
		SessionID: sessionID,
		Sender:    domain.SupportSenderUser,
		Message:   text,
		CreatedAt: time.Now(),
	}
	if err := s.repo.AppendSupportMessage(ctx, userMsg); err != nil {
		return nil, err
	}

	botMsg := &domain.SupportMessage{
		SessionID: sessionID,
		Sender:    domain.SupportSenderBot,
		Message:   s.responder.Reply(text),
		CreatedAt: time.Now(),
	}
	if err := s.repo.AppendSupportMessage(ctx, botMsg); err != nil {
		return nil, err
	}

	s.logger.Debug("Support bot replied",
		"session_id", sessionID,
		"topic", Classify(text).String())
	return &Exchange{User: userMsg, Bot: botMsg}, nil
}
