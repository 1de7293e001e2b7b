package api

import (
	"net/http"

	"github.com/ashureev/jobchat/internal/support"
	"github.com/go-chi/chi/v5"
)

// SupportSessionHeader lets a client keep consecutive questions in one transcript.
const SupportSessionHeader = "X-Support-Session-ID"

// SupportHandler serves the request/response support bot.
type SupportHandler struct {
	support *support.Service
}

// NewSupportHandler creates a support handler.
func NewSupportHandler(svc *support.Service) *SupportHandler {
	return &SupportHandler{support: svc}
}

// RegisterRoutes registers support routes. They are public.
func (h *SupportHandler) RegisterRoutes(r chi.Router) {
	r.Post("/api/support/chat", h.Chat)
}

type supportRequest struct {
	Message string `json:"message"`
}

// Chat answers one question and returns both transcript entries.
func (h *SupportHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req supportRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, r, err)
		return
	}

	ex, err := h.support.Converse(r.Context(), r.Header.Get(SupportSessionHeader), req.Message)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	w.Header().Set(SupportSessionHeader, ex.User.SessionID)
	JSON(w, http.StatusOK, ex)
}
