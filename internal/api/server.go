// Package api exposes the HTTP surface: conversational auth, the NDJSON
// chat stream, conversation history, and health probes.
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ayudante-ai/ayudante/internal/log"
	"github.com/ayudante-ai/ayudante/internal/ratelimit"
	"github.com/ayudante-ai/ayudante/internal/store"
	"github.com/ayudante-ai/ayudante/internal/turn"
)

// Store is the persistence surface the API needs. *store.Store
// satisfies it.
type Store interface {
	UserByAccessCode(ctx context.Context, code string) (*store.User, error)
	UserByID(ctx context.Context, id uuid.UUID) (*store.User, error)
	CreateConversation(ctx context.Context, userID uuid.UUID, sessionID string) (*store.Conversation, error)
	ConversationByID(ctx context.Context, id uuid.UUID) (*store.Conversation, error)
	InsertMessage(ctx context.Context, conversationID uuid.UUID, role, content string, toolsUsed []string) (*store.Message, error)
	MessagesByConversation(ctx context.Context, conversationID uuid.UUID, limit int32) ([]store.Message, error)
}

var _ Store = (*store.Store)(nil)

// ServerConfig contains the dependencies of the API server.
type ServerConfig struct {
	Logger       log.Logger
	Orchestrator *turn.Orchestrator // Required
	Store        Store              // Required
	Limiter      *ratelimit.Limiter // Required
	Pool         *pgxpool.Pool      // Optional: nil disables DB ping in /ready
	HMACSecret   []byte             // Required: 32+ bytes
	CORSOrigins  []string           // Allowed origins for CORS
	IsDev        bool               // Enables HTTP cookies (no Secure flag)
	TrustProxy   bool               // Trust X-Real-IP/X-Forwarded-For headers
}

// Server is the HTTP server for the assistant API.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates a server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Orchestrator == nil {
		return nil, errors.New("orchestrator is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	if cfg.Limiter == nil {
		return nil, errors.New("rate limiter is required")
	}
	if len(cfg.HMACSecret) < 32 {
		return nil, errors.New("hmac secret must be at least 32 bytes")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	sm := &sessionManager{
		store:      cfg.Store,
		hmacSecret: cfg.HMACSecret,
		isDev:      cfg.IsDev,
		logger:     logger,
	}

	ch := &chatHandler{
		orchestrator: cfg.Orchestrator,
		store:        cfg.Store,
		sessions:     sm,
		limiter:      cfg.Limiter,
		logger:       logger,
	}

	hh := &historyHandler{store: cfg.Store, sessions: sm, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/auth/verify", sm.verify)
	mux.HandleFunc("GET /api/v1/auth/session", sm.session)
	mux.HandleFunc("POST /api/v1/auth/logout", sm.logout)
	mux.HandleFunc("POST /api/v1/chat/stream", ch.stream)
	mux.HandleFunc("GET /api/v1/conversations/{id}/history", hh.history)

	// Middleware stack, outermost first:
	//   Recovery → RequestID → Logging → CORS → Routes
	// RequestID runs before Logging so request_id is available in log
	// attributes. CORS runs last so preflight OPTIONS short-circuits.
	var handler http.Handler = mux
	handler = corsMiddleware(cfg.CORSOrigins)(handler)
	handler = loggingMiddleware(logger, cfg.TrustProxy)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	isDev := cfg.IsDev
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setSecurityHeaders(w, isDev)
		handler.ServeHTTP(w, r)
	})

	// Health probes bypass the middleware stack.
	health := &healthHandler{pool: cfg.Pool, logger: logger}
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", health.liveness)
	topMux.HandleFunc("GET /ready", health.readiness)
	topMux.Handle("/", final)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}
