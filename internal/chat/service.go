package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ashureev/jobchat/internal/domain"
	"github.com/ashureev/jobchat/internal/shared"
	"github.com/ashureev/jobchat/internal/store"
)

// Options tunes the chat service.
type Options struct {
	// HistoryLimit is used when a caller does not ask for a specific page size.
	HistoryLimit int
	// HistoryMax caps caller supplied limits.
	HistoryMax int
	Logger     *slog.Logger
}

// Service applies the chat rules to a store.Repository. It is safe for
// concurrent use; all shared state lives in the repository.
type Service struct {
	repo         store.Repository
	logger       *slog.Logger
	historyLimit int
	historyMax   int
}

// NewService creates a chat service.
func NewService(repo store.Repository, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = store.DefaultHistoryLimit
	}
	if opts.HistoryMax < opts.HistoryLimit {
		opts.HistoryMax = opts.HistoryLimit
	}
	return &Service{
		repo:         repo,
		logger:       opts.Logger,
		historyLimit: opts.HistoryLimit,
		historyMax:   opts.HistoryMax,
	}
}

// ConversationView is a conversation summary decorated for one participant.
type ConversationView struct {
	*domain.ConversationSummary
	Participants []*domain.User `json:"participants"`
	Room         string         `json:"room"`
}

// Thread is a conversation together with its recent history.
type Thread struct {
	Conversation *ConversationView `json:"conversation"`
	Messages     []*domain.Message `json:"messages"`
}

// SendResult describes a persisted message.
type SendResult struct {
	Message      *domain.Message
	Conversation *domain.Conversation
	// Created is true when the send opened a new conversation.
	Created bool
}

// InitiateResult is the outcome of an employer opening a conversation.
type InitiateResult struct {
	Conversation *domain.Conversation
	Message      *domain.Message
	Created      bool
}

// ListConversations returns the actor's conversations, most recently updated first.
func (s *Service) ListConversations(ctx context.Context, actor *domain.User) ([]*ConversationView, error) {
	summaries, err := s.repo.ListConversations(ctx, actor.ID)
	if err != nil {
		return nil, err
	}

	views := make([]*ConversationView, 0, len(summaries))
	for _, sum := range summaries {
		view, err := s.decorate(ctx, sum)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}

// GetConversation returns one conversation the actor participates in.
func (s *Service) GetConversation(ctx context.Context, actor *domain.User, conversationID int64) (*ConversationView, error) {
	if _, err := s.participantConversation(ctx, actor, conversationID); err != nil {
		return nil, err
	}

	summaries, err := s.repo.ListConversations(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	for _, sum := range summaries {
		if sum.ID == conversationID {
			return s.decorate(ctx, sum)
		}
	}
	// Deleted between the two reads.
	return nil, shared.NotFound("conversation not found")
}

// History returns the last limit messages of a conversation, oldest first.
func (s *Service) History(ctx context.Context, actor *domain.User, conversationID int64, limit int) ([]*domain.Message, error) {
	if _, err := s.participantConversation(ctx, actor, conversationID); err != nil {
		return nil, err
	}
	return s.repo.ListMessages(ctx, conversationID, s.clampLimit(limit))
}

// Send persists a message from sender to receiverID, creating the pair's
// conversation if needed. A policy rejection is returned as a forbidden
// error carrying the reason; nothing is persisted in that case.
func (s *Service) Send(ctx context.Context, sender *domain.User, receiverID int64, content string) (*SendResult, error) {
	fields := map[string]string{}
	if receiverID <= 0 {
		fields["receiver_id"] = "receiver_id is required"
	} else if receiverID == sender.ID {
		fields["receiver_id"] = "you cannot send a message to yourself"
	}
	if strings.TrimSpace(content) == "" {
		fields["content"] = "message content must not be empty"
	}
	if len(fields) > 0 {
		return nil, shared.Validation("invalid message", fields)
	}

	receiver, err := s.repo.GetUser(ctx, receiverID)
	if err != nil {
		return nil, err
	}
	if receiver == nil {
		return nil, shared.NotFound("User not found")
	}

	conv, err := s.repo.FindConversation(ctx, sender.ID, receiverID)
	if err != nil {
		return nil, err
	}

	if d := CanSend(sender, conv); !d.Allowed {
		s.logger.Info("Chat send rejected",
			"sender_id", sender.ID,
			"sender_type", sender.Role,
			"receiver_id", receiverID,
			"reason", d.Reason)
		return nil, shared.Forbidden(d.Reason)
	}

	created := false
	if conv == nil {
		var initiator *int64
		if sender.IsEmployer() {
			id := sender.ID
			initiator = &id
		}
		conv, created, err = s.findOrCreate(ctx, sender.ID, receiverID, initiator)
		if err != nil {
			return nil, err
		}
	}

	msg, err := s.repo.AppendMessage(ctx, conv.ID, sender.ID, receiverID, content)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Chat message stored",
		"conversation_id", conv.ID,
		"message_id", msg.ID,
		"sender_id", sender.ID,
		"receiver_id", receiverID)

	return &SendResult{Message: msg, Conversation: conv, Created: created}, nil
}

// MarkConversationRead flags every message addressed to the actor as read.
func (s *Service) MarkConversationRead(ctx context.Context, actor *domain.User, conversationID int64) (int64, error) {
	if _, err := s.participantConversation(ctx, actor, conversationID); err != nil {
		return 0, err
	}
	return s.repo.MarkRead(ctx, conversationID, actor.ID)
}

// MarkMessageRead flags a message addressed to the actor as read.
func (s *Service) MarkMessageRead(ctx context.Context, actor *domain.User, messageID int64) error {
	return s.repo.MarkMessageRead(ctx, messageID, actor.ID)
}

// UnreadCount counts the actor's unread messages.
func (s *Service) UnreadCount(ctx context.Context, actor *domain.User) (int, error) {
	return s.repo.UnreadCount(ctx, actor.ID)
}

// ConversationWith resolves or creates the conversation between the actor and
// otherID and returns its recent history. Creating an empty conversation is
// not gated by CanSend; appending to it is.
func (s *Service) ConversationWith(ctx context.Context, actor *domain.User, otherID int64, limit int) (*Thread, error) {
	if otherID <= 0 {
		return nil, shared.FieldError("user_id", "user_id parameter is required")
	}
	if otherID == actor.ID {
		return nil, shared.FieldError("user_id", "you cannot open a conversation with yourself")
	}

	other, err := s.repo.GetUser(ctx, otherID)
	if err != nil {
		return nil, err
	}
	if other == nil {
		return nil, shared.NotFound("User not found")
	}

	if _, _, err := s.findOrCreate(ctx, actor.ID, otherID, nil); err != nil {
		return nil, err
	}

	summaries, err := s.repo.ListConversations(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	lo, hi := domain.OrderedPair(actor.ID, otherID)
	for _, sum := range summaries {
		if sum.UserLow != lo || sum.UserHigh != hi {
			continue
		}
		view, err := s.decorate(ctx, sum)
		if err != nil {
			return nil, err
		}
		msgs, err := s.repo.ListMessages(ctx, sum.ID, s.clampLimit(limit))
		if err != nil {
			return nil, err
		}
		return &Thread{Conversation: view, Messages: msgs}, nil
	}
	return nil, shared.NotFound("conversation not found")
}

// EmployerInitiate opens a conversation between an employer and a jobseeker,
// optionally with a first message. An existing conversation is returned
// untouched and the message is not sent.
func (s *Service) EmployerInitiate(ctx context.Context, actor *domain.User, jobseekerID int64, message string) (*InitiateResult, error) {
	if !actor.IsEmployer() {
		return nil, shared.Forbidden("Only employers can initiate new conversations")
	}
	if jobseekerID <= 0 {
		return nil, shared.FieldError("jobseeker_id", "jobseeker_id is required")
	}

	target, err := s.repo.GetUser(ctx, jobseekerID)
	if err != nil {
		return nil, err
	}
	if target == nil || !target.IsJobseeker() {
		return nil, shared.NotFound("Jobseeker not found")
	}

	initiator := actor.ID
	conv, created, err := s.findOrCreate(ctx, actor.ID, jobseekerID, &initiator)
	if err != nil {
		return nil, err
	}
	result := &InitiateResult{Conversation: conv, Created: created}
	if !created || strings.TrimSpace(message) == "" {
		return result, nil
	}

	msg, err := s.repo.AppendMessage(ctx, conv.ID, actor.ID, jobseekerID, message)
	if err != nil {
		// Keep create+first message all-or-nothing.
		if delErr := s.repo.DeleteConversation(ctx, conv.ID); delErr != nil {
			s.logger.Error("Failed to roll back initiated conversation",
				"conversation_id", conv.ID, "error", delErr)
		}
		return nil, err
	}
	result.Message = msg

	s.logger.Info("Employer initiated conversation",
		"conversation_id", conv.ID,
		"employer_id", actor.ID,
		"jobseeker_id", jobseekerID)
	return result, nil
}

// SetReplyPermission toggles jobseeker_can_reply. Only the employer
// participant or an administrator may change it.
func (s *Service) SetReplyPermission(ctx context.Context, actor *domain.User, conversationID int64, allowed bool) (*domain.Conversation, error) {
	conv, err := s.repo.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, shared.NotFound("conversation not found")
	}
	if !actor.IsAdmin() && !(actor.IsEmployer() && conv.HasParticipant(actor.ID)) {
		return nil, shared.Forbidden("Only the employer in this conversation can change reply permission")
	}

	if err := s.repo.SetJobseekerCanReply(ctx, conversationID, allowed); err != nil {
		return nil, err
	}
	s.logger.Info("Reply permission changed",
		"conversation_id", conversationID,
		"actor_id", actor.ID,
		"jobseeker_can_reply", allowed)

	return s.repo.GetConversation(ctx, conversationID)
}

// DeleteConversation removes a conversation and its messages. Admin only.
func (s *Service) DeleteConversation(ctx context.Context, actor *domain.User, conversationID int64) error {
	if !actor.IsAdmin() {
		return shared.Forbidden("Only administrators can delete conversations")
	}
	if err := s.repo.DeleteConversation(ctx, conversationID); err != nil {
		return err
	}
	s.logger.Info("Conversation deleted", "conversation_id", conversationID, "actor_id", actor.ID)
	return nil
}

// ChatUsers lists everyone the actor could talk to.
func (s *Service) ChatUsers(ctx context.Context, actor *domain.User) ([]*domain.User, error) {
	users, err := s.repo.ListUsersExcept(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []*domain.User{}
	}
	return users, nil
}

// findOrCreate is atomic per unordered pair: the store's unique constraint
// picks one winner and every loser re-reads the winner's row.
func (s *Service) findOrCreate(ctx context.Context, a, b int64, initiator *int64) (*domain.Conversation, bool, error) {
	conv, err := s.repo.FindConversation(ctx, a, b)
	if err != nil {
		return nil, false, err
	}
	if conv != nil {
		return conv, false, nil
	}

	conv, err = s.repo.CreateConversation(ctx, a, b, initiator)
	if err == nil {
		return conv, true, nil
	}
	if !shared.IsKind(err, shared.KindConflict) {
		return nil, false, err
	}

	s.logger.Debug("Conversation created concurrently, using existing", "user_a", a, "user_b", b)
	conv, err = s.repo.FindConversation(ctx, a, b)
	if err != nil {
		return nil, false, err
	}
	if conv == nil {
		return nil, false, fmt.Errorf("conversation for %d/%d vanished after conflict", a, b)
	}
	return conv, false, nil
}

func (s *Service) participantConversation(ctx context.Context, actor *domain.User, conversationID int64) (*domain.Conversation, error) {
	conv, err := s.repo.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, shared.NotFound("conversation not found")
	}
	if !conv.HasParticipant(actor.ID) {
		return nil, shared.Forbidden("You are not a participant in this conversation")
	}
	return conv, nil
}

func (s *Service) decorate(ctx context.Context, sum *domain.ConversationSummary) (*ConversationView, error) {
	participants := make([]*domain.User, 0, 2)
	for _, id := range sum.Participants() {
		user, err := s.repo.GetUser(ctx, id)
		if err != nil {
			return nil, err
		}
		if user == nil {
			user = &domain.User{ID: id}
		}
		participants = append(participants, user)
	}
	return &ConversationView{
		ConversationSummary: sum,
		Participants:        participants,
		Room:                sum.Room(),
	}, nil
}

func (s *Service) clampLimit(limit int) int {
	if limit <= 0 {
		return s.historyLimit
	}
	if limit > s.historyMax {
		return s.historyMax
	}
	return limit
}
