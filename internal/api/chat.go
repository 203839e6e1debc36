package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/ayudante-ai/ayudante/internal/log"
	"github.com/ayudante-ai/ayudante/internal/model"
	"github.com/ayudante-ai/ayudante/internal/ratelimit"
	"github.com/ayudante-ai/ayudante/internal/store"
	"github.com/ayudante-ai/ayudante/internal/turn"
)

// maxChatBodyBytes limits the chat request body size.
const maxChatBodyBytes = 1024 * 1024

const rateLimitedMessage = "Has alcanzado el límite de consultas. Intentá de nuevo en unos minutos."

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Messages       []chatMessage `json:"messages"`
	UserID         string        `json:"userId"`
	ConversationID string        `json:"conversationId"`
}

// chatHandler streams orchestrated turns as newline-delimited JSON.
type chatHandler struct {
	orchestrator *turn.Orchestrator
	store        Store
	sessions     *sessionManager
	limiter      *ratelimit.Limiter
	logger       log.Logger
}

// stream handles POST /api/v1/chat/stream. The response is
// application/x-ndjson: one JSON object per line, exactly one of which
// carries finished=true, always last. Client disconnects abandon the
// turn without a terminal line.
func (h *chatHandler) stream(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxChatBodyBytes)

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body", h.logger)
		return
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_user", "userId must be a UUID", h.logger)
		return
	}
	conversationID, err := uuid.Parse(req.ConversationID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_conversation", "conversationId must be a UUID", h.logger)
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "missing_messages", "messages are required", h.logger)
		return
	}

	// The signed cookie must carry the same identity the body claims.
	cookieUserID, ok := h.sessions.userID(r)
	if !ok || cookieUserID != userID {
		writeError(w, http.StatusForbidden, "forbidden", "session does not match user", h.logger)
		return
	}

	// The conversation must belong to the caller.
	conversation, err := h.store.ConversationByID(r.Context(), conversationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "Conversación no encontrada", h.logger)
			return
		}
		h.logger.Error("loading conversation failed", "error", err, "conversation_id", conversationID)
		writeError(w, http.StatusInternalServerError, "chat_failed", "Error interno", h.logger)
		return
	}
	if conversation.UserID != userID {
		h.logger.Warn("conversation ownership check failed",
			"conversation_id", conversationID, "owner", conversation.UserID, "caller", userID)
		writeError(w, http.StatusForbidden, "forbidden", "conversation access denied", h.logger)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming_unsupported", "streaming not supported", h.logger)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")

	if !h.limiter.Allow(userID.String()) {
		h.logger.Warn("rate limit exceeded", "user_id", userID)
		w.Header().Set("Retry-After", "60")
		w.WriteHeader(http.StatusTooManyRequests)
		h.writeLine(w, flusher, turn.StreamEvent{
			Type:     turn.EventError,
			Content:  rateLimitedMessage,
			Finished: true,
		})
		return
	}

	messages := make([]model.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		role := model.Role(m.Role)
		if role != model.RoleUser && role != model.RoleAssistant {
			continue
		}
		messages = append(messages, model.Message{Role: role, Content: m.Content})
	}

	// Persist the incoming user message before the turn starts so
	// history survives even an abandoned turn.
	if last := req.Messages[len(req.Messages)-1]; last.Role == "user" {
		if _, err := h.store.InsertMessage(r.Context(), conversationID, "user", last.Content, nil); err != nil {
			h.logger.Error("persisting user message failed",
				"conversation_id", conversationID, "error", err)
		}
	}

	for event := range h.orchestrator.Run(r.Context(), turn.Turn{
		Messages:       messages,
		UserID:         userID,
		ConversationID: conversationID,
	}) {
		if !h.writeLine(w, flusher, event) {
			// Write failure means the client went away.
			return
		}
	}
}

// writeLine writes one NDJSON line and flushes it.
func (h *chatHandler) writeLine(w http.ResponseWriter, flusher http.Flusher, event turn.StreamEvent) bool {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("encoding stream event failed", "error", err)
		return false
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		h.logger.Debug("writing stream event failed", "error", err)
		return false
	}
	flusher.Flush()
	return true
}
