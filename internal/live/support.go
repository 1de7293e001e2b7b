package live

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/ashureev/jobchat/internal/domain"
	"github.com/ashureev/jobchat/internal/support"
	"github.com/coder/websocket"
)

// DefaultSupportRoom is the room every support bot connection joins.
const DefaultSupportRoom = "support_chat"

// SupportHandler serves the anonymous support bot channel.
type SupportHandler struct {
	support *support.Service
	hub     *Broadcaster
	room    string
	opts    Options
}

// NewSupportHandler creates a support bot websocket handler. An empty room
// uses DefaultSupportRoom.
func NewSupportHandler(svc *support.Service, hub *Broadcaster, room string, opts Options) *SupportHandler {
	if room == "" {
		room = DefaultSupportRoom
	}
	return &SupportHandler{support: svc, hub: hub, room: room, opts: opts.withDefaults()}
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *SupportHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.opts.accept(w, r)
	if !ok {
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "connection closed"); closeErr != nil {
			h.opts.Logger.Debug("Failed to close websocket", "error", closeErr)
		}
	}()

	client := NewClient(h.room, nil, h.opts.SendQueue)
	logger := h.opts.Logger.With("session_id", client.ID, "room", h.room)
	logger.Info("Support connection opened", "ip", r.RemoteAddr)

	err := serve(r.Context(), ws, h.hub, client, h.opts, func(ctx context.Context, data []byte) {
		h.handleFrame(ctx, client, data)
	})
	if err != nil {
		logger.Warn("Support connection ended with error", "error", err)
		return
	}
	logger.Info("Support connection ended")
}

func (h *SupportHandler) handleFrame(ctx context.Context, client *Client, data []byte) {
	var in inboundSupport
	if err := json.Unmarshal(data, &in); err != nil || strings.TrimSpace(in.Message) == "" {
		h.opts.Logger.Debug("Dropping support frame", "session_id", client.ID)
		return
	}

	ex, err := h.support.Converse(ctx, client.ID, in.Message)
	if err != nil {
		h.opts.Logger.Error("Support bot failed to answer", "session_id", client.ID, "error", err)
		return
	}

	for _, frame := range []SupportFrame{
		{Sender: domain.SupportSenderUser, Message: ex.User.Message},
		{Sender: domain.SupportSenderBot, Message: ex.Bot.Message},
	} {
		if _, err := h.hub.BroadcastJSON(h.room, frame); err != nil {
			h.opts.Logger.Error("Failed to broadcast support frame", "error", err)
		}
	}
}
