package store_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/ayudante-ai/ayudante/internal/log"
	"github.com/ayudante-ai/ayudante/internal/store"
	"github.com/ayudante-ai/ayudante/internal/testutil"
)

func TestStoreRoundTrip(t *testing.T) {
	testDB, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	s := store.New(testDB.Pool, log.NewNop())

	_, err := testDB.Pool.Exec(ctx,
		`INSERT INTO users (name, access_code) VALUES ($1, $2)`,
		"María", "ABC123")
	require.NoError(t, err)

	user, err := s.UserByAccessCode(ctx, "ABC123")
	require.NoError(t, err)
	require.Equal(t, "María", user.Name)

	_, err = s.UserByAccessCode(ctx, "NOPE")
	require.ErrorIs(t, err, store.ErrNotFound)

	conv, err := s.CreateConversation(ctx, user.ID, "sess-1")
	require.NoError(t, err)
	require.Equal(t, user.ID, conv.UserID)

	got, err := s.ConversationByID(ctx, conv.ID)
	require.NoError(t, err)
	require.Equal(t, "sess-1", got.SessionID)

	_, err = s.ConversationByID(ctx, uuid.New())
	require.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.InsertMessage(ctx, conv.ID, "user", "hola", nil)
	require.NoError(t, err)
	_, err = s.InsertMessage(ctx, conv.ID, "assistant", "¡Hola! ¿En qué puedo ayudarte?", []string{"searchDocuments"})
	require.NoError(t, err)

	messages, err := s.MessagesByConversation(ctx, conv.ID, 50)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	require.Equal(t, "user", messages[0].Role)
	require.Empty(t, messages[0].ToolsUsed)
	require.Equal(t, []string{"searchDocuments"}, messages[1].ToolsUsed)

	saved, err := s.InsertSavedData(ctx, user.ID, "nota", "recordar la reunión")
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, saved.ID)
}

func TestMessagesEmptyConversation(t *testing.T) {
	testDB, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	s := store.New(testDB.Pool, log.NewNop())
	messages, err := s.MessagesByConversation(context.Background(), uuid.New(), 50)
	require.NoError(t, err)
	require.Empty(t, messages)
}
