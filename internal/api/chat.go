package api

import (
	"log/slog"
	"net/http"

	"github.com/ashureev/jobchat/internal/chat"
	"github.com/ashureev/jobchat/internal/domain"
	"github.com/ashureev/jobchat/internal/identity"
	"github.com/ashureev/jobchat/internal/shared"
	"github.com/go-chi/chi/v5"
)

// Publisher pushes a stored message to live subscribers of a room.
type Publisher interface {
	PublishMessage(room string, sender *domain.User, msg *domain.Message)
}

// ChatHandler handles the request/response chat endpoints.
type ChatHandler struct {
	chat      *chat.Service
	publisher Publisher
}

// NewChatHandler creates a chat handler. publisher may be nil.
func NewChatHandler(svc *chat.Service, publisher Publisher) *ChatHandler {
	return &ChatHandler{chat: svc, publisher: publisher}
}

// RegisterRoutes registers chat routes. The caller installs identity middleware.
func (h *ChatHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/chat", func(r chi.Router) {
		r.Get("/conversations", h.ListConversations)
		r.Get("/conversations/{id}", h.GetConversation)
		r.Delete("/conversations/{id}", h.DeleteConversation)
		r.Get("/conversations/{id}/messages", h.History)
		r.Post("/conversations/{id}/mark-read", h.MarkConversationRead)
		r.Patch("/conversations/{id}/reply-permission", h.SetReplyPermission)
		r.Post("/messages/send", h.Send)
		r.Get("/messages/unread", h.UnreadCount)
		r.Post("/messages/{id}/read", h.MarkMessageRead)
		r.Get("/with-user", h.ConversationWith)
		r.Get("/users", h.ChatUsers)
		r.Post("/employer/initiate", h.EmployerInitiate)
	})
}

// ListConversations returns the caller's conversations.
func (h *ChatHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	user, err := identity.Require(r.Context())
	if err != nil {
		WriteError(w, r, err)
		return
	}

	views, err := h.chat.ListConversations(r.Context(), user)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, views)
}

// GetConversation returns one conversation.
func (h *ChatHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	user, err := identity.Require(r.Context())
	if err != nil {
		WriteError(w, r, err)
		return
	}
	id, err := idParam(r, "id")
	if err != nil {
		WriteError(w, r, err)
		return
	}

	view, err := h.chat.GetConversation(r.Context(), user, id)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, view)
}

// History returns the most recent messages of a conversation.
func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	user, err := identity.Require(r.Context())
	if err != nil {
		WriteError(w, r, err)
		return
	}
	id, err := idParam(r, "id")
	if err != nil {
		WriteError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		WriteError(w, r, err)
		return
	}

	msgs, err := h.chat.History(r.Context(), user, id, int(limit))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, msgs)
}

// MarkConversationRead marks every message addressed to the caller as read.
func (h *ChatHandler) MarkConversationRead(w http.ResponseWriter, r *http.Request) {
	user, err := identity.Require(r.Context())
	if err != nil {
		WriteError(w, r, err)
		return
	}
	id, err := idParam(r, "id")
	if err != nil {
		WriteError(w, r, err)
		return
	}

	n, err := h.chat.MarkConversationRead(r.Context(), user, id)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"status": "conversation marked as read",
		"marked": n,
	})
}

type replyPermissionRequest struct {
	JobseekerCanReply *bool `json:"jobseeker_can_reply"`
}

// SetReplyPermission toggles whether the jobseeker may reply.
func (h *ChatHandler) SetReplyPermission(w http.ResponseWriter, r *http.Request) {
	user, err := identity.Require(r.Context())
	if err != nil {
		WriteError(w, r, err)
		return
	}
	id, err := idParam(r, "id")
	if err != nil {
		WriteError(w, r, err)
		return
	}
	var req replyPermissionRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, r, err)
		return
	}
	if req.JobseekerCanReply == nil {
		WriteError(w, r, shared.FieldError("jobseeker_can_reply", "jobseeker_can_reply is required"))
		return
	}

	conv, err := h.chat.SetReplyPermission(r.Context(), user, id, *req.JobseekerCanReply)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, conv)
}

// DeleteConversation removes a conversation. Admin only.
func (h *ChatHandler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	user, err := identity.Require(r.Context())
	if err != nil {
		WriteError(w, r, err)
		return
	}
	id, err := idParam(r, "id")
	if err != nil {
		WriteError(w, r, err)
		return
	}

	if err := h.chat.DeleteConversation(r.Context(), user, id); err != nil {
		WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type sendRequest struct {
	ReceiverID int64  `json:"receiver_id"`
	Content    string `json:"content"`
}

// Send stores a message and returns it.
func (h *ChatHandler) Send(w http.ResponseWriter, r *http.Request) {
	user, err := identity.Require(r.Context())
	if err != nil {
		WriteError(w, r, err)
		return
	}
	var req sendRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, r, err)
		return
	}

	res, err := h.chat.Send(r.Context(), user, req.ReceiverID, req.Content)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	h.publish(res.Conversation, user, res.Message)
	JSON(w, http.StatusCreated, res.Message)
}

// UnreadCount returns the caller's unread message count.
func (h *ChatHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	user, err := identity.Require(r.Context())
	if err != nil {
		WriteError(w, r, err)
		return
	}

	count, err := h.chat.UnreadCount(r.Context(), user)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]int{"unread_count": count})
}

// MarkMessageRead marks one message addressed to the caller as read.
func (h *ChatHandler) MarkMessageRead(w http.ResponseWriter, r *http.Request) {
	user, err := identity.Require(r.Context())
	if err != nil {
		WriteError(w, r, err)
		return
	}
	id, err := idParam(r, "id")
	if err != nil {
		WriteError(w, r, err)
		return
	}

	if err := h.chat.MarkMessageRead(r.Context(), user, id); err != nil {
		WriteError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "message marked as read"})
}

// ConversationWith resolves or creates the conversation with ?user_id=.
func (h *ChatHandler) ConversationWith(w http.ResponseWriter, r *http.Request) {
	user, err := identity.Require(r.Context())
	if err != nil {
		WriteError(w, r, err)
		return
	}
	otherID, err := queryInt(r, "user_id")
	if err != nil {
		WriteError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		WriteError(w, r, err)
		return
	}

	thread, err := h.chat.ConversationWith(r.Context(), user, otherID, int(limit))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"conversation_id": thread.Conversation.ID,
		"room":            thread.Conversation.Room,
		"participants":    thread.Conversation.Participants,
		"conversation":    thread.Conversation,
		"messages":        thread.Messages,
	})
}

// ChatUsers lists the users the caller can talk to.
func (h *ChatHandler) ChatUsers(w http.ResponseWriter, r *http.Request) {
	user, err := identity.Require(r.Context())
	if err != nil {
		WriteError(w, r, err)
		return
	}

	users, err := h.chat.ChatUsers(r.Context(), user)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, users)
}

type initiateRequest struct {
	JobseekerID int64  `json:"jobseeker_id"`
	Message     string `json:"message"`
}

// EmployerInitiate opens a conversation with a jobseeker.
func (h *ChatHandler) EmployerInitiate(w http.ResponseWriter, r *http.Request) {
	user, err := identity.Require(r.Context())
	if err != nil {
		WriteError(w, r, err)
		return
	}
	var req initiateRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, r, err)
		return
	}

	res, err := h.chat.EmployerInitiate(r.Context(), user, req.JobseekerID, req.Message)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	if !res.Created {
		JSON(w, http.StatusOK, map[string]interface{}{
			"status":          "Conversation exists",
			"conversation_id": res.Conversation.ID,
		})
		return
	}

	body := map[string]interface{}{
		"status":          "Conversation started",
		"conversation_id": res.Conversation.ID,
	}
	if res.Message != nil {
		body["message"] = res.Message
		h.publish(res.Conversation, user, res.Message)
	}
	JSON(w, http.StatusCreated, body)
}

func (h *ChatHandler) publish(conv *domain.Conversation, sender *domain.User, msg *domain.Message) {
	if h.publisher == nil || conv == nil {
		return
	}
	h.publisher.PublishMessage(conv.Room(), sender, msg)
	slog.Debug("Published message to live room", "room", conv.Room(), "message_id", msg.ID)
}
