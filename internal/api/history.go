package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/ayudante-ai/ayudante/internal/log"
	"github.com/ayudante-ai/ayudante/internal/store"
)

// historyDefaultLimit caps the number of messages returned per request.
const historyDefaultLimit = 50

type historyMessage struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	ToolsUsed []string  `json:"toolsUsed,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type historyResponse struct {
	Messages []historyMessage `json:"messages"`
}

type historyHandler struct {
	store    Store
	sessions *sessionManager
	logger   log.Logger
}

// history handles GET /api/v1/conversations/{id}/history. The signed
// uid cookie must own the conversation.
func (h *historyHandler) history(w http.ResponseWriter, r *http.Request) {
	conversationID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "invalid conversation ID", h.logger)
		return
	}

	userID, ok := h.sessions.userID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "No hay sesión activa", h.logger)
		return
	}

	conversation, err := h.store.ConversationByID(r.Context(), conversationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "Conversación no encontrada", h.logger)
			return
		}
		h.logger.Error("loading conversation failed", "error", err, "conversation_id", conversationID)
		writeError(w, http.StatusInternalServerError, "history_failed", "Error interno", h.logger)
		return
	}

	if conversation.UserID != userID {
		h.logger.Warn("conversation ownership check failed",
			"conversation_id", conversationID, "owner", conversation.UserID, "caller", userID)
		writeError(w, http.StatusForbidden, "forbidden", "conversation access denied", h.logger)
		return
	}

	messages, err := h.store.MessagesByConversation(r.Context(), conversationID, historyDefaultLimit)
	if err != nil {
		h.logger.Error("loading history failed", "error", err, "conversation_id", conversationID)
		writeError(w, http.StatusInternalServerError, "history_failed", "Error interno", h.logger)
		return
	}

	resp := historyResponse{Messages: make([]historyMessage, 0, len(messages))}
	for _, m := range messages {
		resp.Messages = append(resp.Messages, historyMessage{
			ID:        m.ID.String(),
			Role:      m.Role,
			Content:   m.Content,
			ToolsUsed: m.ToolsUsed,
			Timestamp: m.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp, h.logger)
}
