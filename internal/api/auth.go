package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ayudante-ai/ayudante/internal/log"
	"github.com/ayudante-ai/ayudante/internal/store"
)

// Cookie configuration.
const (
	userCookieName         = "uid"
	conversationCookieName = "sid"
	cookieMaxAge           = 7 * 24 * 3600 // 7 days in seconds
)

// Verification message patterns. The user introduces themselves in
// natural language ("Soy Juan, mi código es ABC123"); name and access
// code are extracted separately so either order works.
var (
	namePattern = regexp.MustCompile(`(?i)(?:soy|me llamo|mi nombre es)\s+([^,\n]+)`)
	codePattern = regexp.MustCompile(`(?i)(?:c[oó]digo|code|clave)(?:\s*es)?\s*:?\s*([A-Za-z0-9]+)`)

	// nameTrailer strips a code phrase that leaked into the name capture
	// when the message has no separating comma.
	nameTrailer = regexp.MustCompile(`(?i)\s*,?\s*(?:mi\s+)?(?:c[oó]digo|code|clave).*$`)
)

// sessionManager issues and verifies HMAC-signed identity cookies.
type sessionManager struct {
	store      Store
	hmacSecret []byte
	isDev      bool
	logger     log.Logger
}

// userID extracts and verifies the user identity from the uid cookie.
func (sm *sessionManager) userID(r *http.Request) (uuid.UUID, bool) {
	return sm.signedUUID(r, userCookieName)
}

// conversationID extracts and verifies the conversation from the sid cookie.
func (sm *sessionManager) conversationID(r *http.Request) (uuid.UUID, bool) {
	return sm.signedUUID(r, conversationCookieName)
}

func (sm *sessionManager) signedUUID(r *http.Request, name string) (uuid.UUID, bool) {
	cookie, err := r.Cookie(name)
	if err != nil {
		return uuid.Nil, false
	}
	value, ok := verifySigned(cookie.Value, sm.hmacSecret)
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func (sm *sessionManager) setCookie(w http.ResponseWriter, name, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    sign(value, sm.hmacSecret),
		Path:     "/",
		Secure:   !sm.isDev,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   cookieMaxAge,
	})
}

func (sm *sessionManager) clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Secure:   !sm.isDev,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

// sign creates a tamper-evident cookie value:
// "value.base64url(HMAC-SHA256(secret, value))".
func sign(value string, secret []byte) string {
	h := hmac.New(sha256.New, secret)
	h.Write([]byte(value))
	sig := base64.URLEncoding.EncodeToString(h.Sum(nil))
	return value + "." + sig
}

// verifySigned splits a signed cookie value and verifies its signature.
func verifySigned(value string, secret []byte) (string, bool) {
	idx := strings.LastIndex(value, ".")
	if idx < 1 {
		return "", false
	}

	raw := value[:idx]
	sig, err := base64.URLEncoding.DecodeString(value[idx+1:])
	if err != nil {
		return "", false
	}

	h := hmac.New(sha256.New, secret)
	h.Write([]byte(raw))
	expected := h.Sum(nil)

	if subtle.ConstantTimeCompare(sig, expected) != 1 {
		return "", false
	}
	return raw, true
}

// extractCredentials pulls a name and access code out of a
// natural-language introduction. Either value may be absent.
func extractCredentials(message string) (name, code string) {
	if m := namePattern.FindStringSubmatch(message); m != nil {
		name = strings.TrimSpace(nameTrailer.ReplaceAllString(m[1], ""))
	}
	if m := codePattern.FindStringSubmatch(message); m != nil {
		code = strings.TrimSpace(m[1])
	}
	return name, code
}

type verifyRequest struct {
	Message string `json:"message"`
}

type verifyUser struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
}

type verifyResponse struct {
	Success        bool        `json:"success"`
	Message        string      `json:"message"`
	NeedsMoreInfo  bool        `json:"needsMoreInfo,omitempty"`
	InvalidCode    bool        `json:"invalidCode,omitempty"`
	User           *verifyUser `json:"user,omitempty"`
	ConversationID string      `json:"conversationId,omitempty"`
	SessionID      string      `json:"sessionId,omitempty"`
}

// verify handles POST /api/v1/auth/verify. It extracts the name and
// access code from the message, looks the code up, creates a fresh
// conversation, and issues signed identity cookies.
func (sm *sessionManager) verify(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 64*1024)

	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body", sm.logger)
		return
	}

	name, code := extractCredentials(req.Message)
	if name == "" || code == "" {
		writeJSON(w, http.StatusOK, verifyResponse{
			Success:       false,
			Message:       `Por favor, proporciona tu nombre y código. Ejemplo: "Soy Juan, mi código es ABC123"`,
			NeedsMoreInfo: true,
		}, sm.logger)
		return
	}

	code = strings.ToUpper(code)
	user, err := sm.store.UserByAccessCode(r.Context(), code)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusOK, verifyResponse{
				Success:     false,
				Message:     fmt.Sprintf("No reconozco el código %q. Verificá que esté correcto o contactá soporte.", code),
				InvalidCode: true,
			}, sm.logger)
			return
		}
		sm.logger.Error("looking up access code failed", "error", err)
		writeError(w, http.StatusInternalServerError, "verify_failed", "Error interno. Intentá nuevamente en unos segundos.", sm.logger)
		return
	}

	sessionID := fmt.Sprintf("session_%d_%s", time.Now().UnixMilli(), uuid.New().String()[:8])
	conversation, err := sm.store.CreateConversation(r.Context(), user.ID, sessionID)
	if err != nil {
		sm.logger.Error("creating conversation failed", "error", err, "user_id", user.ID)
		writeError(w, http.StatusInternalServerError, "verify_failed", "Error interno. Intentá nuevamente en unos segundos.", sm.logger)
		return
	}

	sm.setCookie(w, userCookieName, user.ID.String())
	sm.setCookie(w, conversationCookieName, conversation.ID.String())

	sm.logger.Info("user verified", "user_id", user.ID, "conversation_id", conversation.ID)

	writeJSON(w, http.StatusOK, verifyResponse{
		Success: true,
		Message: fmt.Sprintf("¡Perfecto %s! Ya podés preguntarme lo que necesites.", name),
		User: &verifyUser{
			ID:          user.ID.String(),
			Name:        user.Name,
			DisplayName: name,
		},
		ConversationID: conversation.ID.String(),
		SessionID:      sessionID,
	}, sm.logger)
}

type sessionResponse struct {
	Authenticated  bool        `json:"authenticated"`
	Message        string      `json:"message,omitempty"`
	User           *verifyUser `json:"user,omitempty"`
	ConversationID string      `json:"conversationId,omitempty"`
}

// session handles GET /api/v1/auth/session, reporting the identity
// carried by the signed cookies.
func (sm *sessionManager) session(w http.ResponseWriter, r *http.Request) {
	userID, ok := sm.userID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, sessionResponse{
			Authenticated: false,
			Message:       "No hay sesión activa",
		}, sm.logger)
		return
	}

	user, err := sm.store.UserByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusUnauthorized, sessionResponse{
				Authenticated: false,
				Message:       "No hay sesión activa",
			}, sm.logger)
			return
		}
		sm.logger.Error("loading session user failed", "error", err, "user_id", userID)
		writeError(w, http.StatusInternalServerError, "session_failed", "Error verificando sesión", sm.logger)
		return
	}

	resp := sessionResponse{
		Authenticated: true,
		User: &verifyUser{
			ID:          user.ID.String(),
			Name:        user.Name,
			DisplayName: user.Name,
		},
	}
	if conversationID, ok := sm.conversationID(r); ok {
		resp.ConversationID = conversationID.String()
	}
	writeJSON(w, http.StatusOK, resp, sm.logger)
}

// logout handles POST /api/v1/auth/logout by expiring both cookies.
func (sm *sessionManager) logout(w http.ResponseWriter, _ *http.Request) {
	sm.clearCookie(w, userCookieName)
	sm.clearCookie(w, conversationCookieName)

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Sesión cerrada exitosamente",
	}, sm.logger)
}
