package live

import (
	"context"
	"encoding/json"
	"net/http"
	"regexp"
	"strings"

	"github.com/ashureev/jobchat/internal/chat"
	"github.com/ashureev/jobchat/internal/domain"
	"github.com/ashureev/jobchat/internal/identity"
	"github.com/ashureev/jobchat/internal/shared"
	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
)

var roomPattern = regexp.MustCompile(`^\w+$`)

// ValidRoom reports whether name can be used as a room key.
func ValidRoom(name string) bool {
	return roomPattern.MatchString(name)
}

// ChatHandler serves authenticated job chat connections at /ws/jobchat/{room}.
type ChatHandler struct {
	chat *chat.Service
	hub  *Broadcaster
	opts Options
}

// NewChatHandler creates a new job chat websocket handler.
func NewChatHandler(svc *chat.Service, hub *Broadcaster, opts Options) *ChatHandler {
	return &ChatHandler{chat: svc, hub: hub, opts: opts.withDefaults()}
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	user, err := identity.Require(r.Context())
	if err != nil {
		http.Error(w, shared.MessageOf(err), http.StatusUnauthorized)
		return
	}
	room := chi.URLParam(r, "room")
	if !ValidRoom(room) {
		http.Error(w, "invalid room name", http.StatusBadRequest)
		return
	}
	if !domain.RoomAdmits(room, user.ID) {
		h.opts.Logger.Info("Rejected chat room subscription", "user_id", user.ID, "room", room)
		http.Error(w, "You are not a participant in this conversation", http.StatusForbidden)
		return
	}

	logger := h.opts.Logger.With("user_id", user.ID, "room", room)
	logger.Info("WebSocket connection request", "ip", identity.IPFromRequest(r))

	ws, ok := h.opts.accept(w, r)
	if !ok {
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "connection closed"); closeErr != nil {
			logger.Debug("Failed to close websocket", "error", closeErr)
		}
	}()

	client := NewClient(room, user, h.opts.SendQueue)
	err = serve(r.Context(), ws, h.hub, client, h.opts, func(ctx context.Context, data []byte) {
		h.handleFrame(ctx, client, data)
	})
	if err != nil {
		logger.Warn("Chat connection ended with error", "error", err)
		return
	}
	logger.Info("Chat connection ended")
}

func (h *ChatHandler) handleFrame(ctx context.Context, client *Client, data []byte) {
	var in inboundChat
	if err := json.Unmarshal(data, &in); err != nil {
		h.opts.Logger.Debug("Dropping malformed chat frame", "user_id", client.User.ID, "error", err)
		return
	}
	if in.Type == FramePing {
		h.reply(client, map[string]string{"type": FramePong})
		return
	}
	if in.Message == nil || in.ReceiverID == nil || strings.TrimSpace(*in.Message) == "" || *in.ReceiverID <= 0 {
		h.opts.Logger.Debug("Dropping incomplete chat frame", "user_id", client.User.ID)
		return
	}

	res, err := h.chat.Send(ctx, client.User, int64(*in.ReceiverID), *in.Message)
	if err != nil {
		switch shared.KindOf(err) {
		case shared.KindForbidden, shared.KindNotFound, shared.KindValidation:
			h.reply(client, newErrorFrame(shared.MessageOf(err)))
		default:
			h.opts.Logger.Error("Live chat send failed", "user_id", client.User.ID, "error", err)
		}
		return
	}

	h.hub.PublishMessage(client.Room, client.User, res.Message)
	if canonical := res.Conversation.Room(); canonical != client.Room {
		h.hub.PublishMessage(canonical, client.User, res.Message)
	}
}

func (h *ChatHandler) reply(client *Client, v any) {
	if _, err := h.hub.SendJSON(client, v); err != nil {
		h.opts.Logger.Error("Failed to encode chat frame", "user_id", client.User.ID, "error", err)
	}
}
