// Package store persists users, conversations, messages and saved data
// in PostgreSQL.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ayudante-ai/ayudante/internal/log"
)

// ErrNotFound indicates the requested row does not exist.
var ErrNotFound = errors.New("not found")

// DB is the subset of pgxpool.Pool the store uses. The interface is
// defined here, by the consumer, so tests can substitute a fake.
// *pgxpool.Pool satisfies it directly.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// User is a registered user identified by an access code.
type User struct {
	ID         uuid.UUID
	Name       string
	AccessCode string
	CreatedAt  time.Time
}

// Conversation groups the messages of one browser session.
type Conversation struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	SessionID string
	CreatedAt time.Time
}

// Message is one persisted conversation message.
type Message struct {
	ID             uuid.UUID
	ConversationID uuid.UUID
	Role           string
	Content        string
	ToolsUsed      []string
	CreatedAt      time.Time
}

// SavedData is a user note stored by the save tool.
type SavedData struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	DataType  string
	Content   string
	CreatedAt time.Time
}

// Store is safe for concurrent use.
type Store struct {
	db     DB
	logger log.Logger
}

// New creates a Store backed by db, normally a *pgxpool.Pool.
func New(db DB, logger log.Logger) *Store {
	return &Store{db: db, logger: logger.With("component", "store")}
}

// UserByAccessCode looks a user up by access code.
// Returns ErrNotFound when the code is unknown.
func (s *Store) UserByAccessCode(ctx context.Context, code string) (*User, error) {
	var u User
	err := s.db.QueryRow(ctx,
		`SELECT id, name, access_code, created_at FROM users WHERE access_code = $1`,
		code,
	).Scan(&u.ID, &u.Name, &u.AccessCode, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("user with access code: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}
	return &u, nil
}

// UserByID looks a user up by id.
func (s *Store) UserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	var u User
	err := s.db.QueryRow(ctx,
		`SELECT id, name, access_code, created_at FROM users WHERE id = $1`,
		id,
	).Scan(&u.ID, &u.Name, &u.AccessCode, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}
	return &u, nil
}

// CreateConversation creates a conversation for a user session.
func (s *Store) CreateConversation(ctx context.Context, userID uuid.UUID, sessionID string) (*Conversation, error) {
	var c Conversation
	err := s.db.QueryRow(ctx,
		`INSERT INTO conversations (user_id, session_id)
		 VALUES ($1, $2)
		 RETURNING id, user_id, session_id, created_at`,
		userID, sessionID,
	).Scan(&c.ID, &c.UserID, &c.SessionID, &c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("creating conversation: %w", err)
	}
	s.logger.Debug("created conversation", "id", c.ID, "user_id", userID)
	return &c, nil
}

// ConversationByID retrieves a conversation.
// Returns ErrNotFound when it does not exist.
func (s *Store) ConversationByID(ctx context.Context, id uuid.UUID) (*Conversation, error) {
	var c Conversation
	err := s.db.QueryRow(ctx,
		`SELECT id, user_id, session_id, created_at FROM conversations WHERE id = $1`,
		id,
	).Scan(&c.ID, &c.UserID, &c.SessionID, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying conversation: %w", err)
	}
	return &c, nil
}

// InsertMessage persists one message and returns it with generated fields.
func (s *Store) InsertMessage(ctx context.Context, conversationID uuid.UUID, role, content string, toolsUsed []string) (*Message, error) {
	if toolsUsed == nil {
		toolsUsed = []string{}
	}
	tools, err := json.Marshal(toolsUsed)
	if err != nil {
		return nil, fmt.Errorf("encoding tools_used: %w", err)
	}

	m := Message{ConversationID: conversationID, Role: role, Content: content, ToolsUsed: toolsUsed}
	err = s.db.QueryRow(ctx,
		`INSERT INTO messages (conversation_id, role, content, tools_used)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		conversationID, role, content, tools,
	).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("inserting message: %w", err)
	}
	return &m, nil
}

// MessagesByConversation returns a conversation's messages in
// chronological order.
func (s *Store) MessagesByConversation(ctx context.Context, conversationID uuid.UUID, limit int32) ([]Message, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, conversation_id, role, content, COALESCE(tools_used, '[]'::jsonb), created_at
		 FROM messages
		 WHERE conversation_id = $1
		 ORDER BY created_at ASC
		 LIMIT $2`,
		conversationID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		var tools []byte
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &tools, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		if err := json.Unmarshal(tools, &m.ToolsUsed); err != nil {
			return nil, fmt.Errorf("decoding tools_used: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading messages: %w", err)
	}
	return messages, nil
}

// InsertSavedData stores a note captured by the save tool.
func (s *Store) InsertSavedData(ctx context.Context, userID uuid.UUID, dataType, content string) (*SavedData, error) {
	d := SavedData{UserID: userID, DataType: dataType, Content: content}
	err := s.db.QueryRow(ctx,
		`INSERT INTO saved_data (user_id, data_type, content)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at`,
		userID, dataType, content,
	).Scan(&d.ID, &d.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("inserting saved data: %w", err)
	}
	s.logger.Debug("saved data", "id", d.ID, "type", dataType, "user_id", userID)
	return &d, nil
}
