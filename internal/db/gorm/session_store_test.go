package gorm

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"

	"github.com/pilotlabs/console/pkg/models"
)

// testSessionStore creates a SessionStore with a temporary database for testing.
func testSessionStore(t *testing.T) (*SessionStore, *Store, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "gorm_session_test_*")
	if err != nil {
		t.Fatalf("create temp dir: %v", err)
	}

	dbPath := filepath.Join(tmpDir, "test.db")
	cfg := Config{
		Path:     dbPath,
		MaxConns: 4,
		LogLevel: logger.Silent,
	}

	store, err := NewStore(cfg)
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("NewStore failed: %v", err)
	}

	sessionStore := NewSessionStore(store)

	cleanup := func() {
		store.Close()
		os.RemoveAll(tmpDir)
	}

	return sessionStore, store, cleanup
}

func TestSessionStore_CreateSession(t *testing.T) {
	sessionStore, _, cleanup := testSessionStore(t)
	defer cleanup()

	ctx := context.Background()

	id, err := sessionStore.CreateSession(ctx, "content-1", "test-project", "initial prompt")
	require.NoError(t, err)
	assert.Greater(t, id, int64(0))

	sess, err := sessionStore.GetSessionByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, "content-1", sess.ContentSessionID)
	assert.Equal(t, "test-project", sess.Project)
	assert.Equal(t, models.SessionStatusActive, sess.Status)
	assert.True(t, sess.UserPrompt.Valid)
	assert.Equal(t, "initial prompt", sess.UserPrompt.String)
	assert.Greater(t, sess.StartedAtEpoch, int64(0))
}

func TestSessionStore_CreateSession_Idempotent(t *testing.T) {
	sessionStore, _, cleanup := testSessionStore(t)
	defer cleanup()

	ctx := context.Background()

	id1, err := sessionStore.CreateSession(ctx, "content-1", "project-a", "prompt 1")
	require.NoError(t, err)

	// Same content session id, different project: must reuse the row
	id2, err := sessionStore.CreateSession(ctx, "content-1", "project-b", "prompt 2")
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	sess, err := sessionStore.GetSessionByID(ctx, id1)
	require.NoError(t, err)
	assert.Equal(t, "project-b", sess.Project)
	assert.Equal(t, "prompt 2", sess.UserPrompt.String)
}

func TestSessionStore_CreateSession_EmptyPrompt(t *testing.T) {
	sessionStore, _, cleanup := testSessionStore(t)
	defer cleanup()

	ctx := context.Background()

	id, err := sessionStore.CreateSession(ctx, "content-2", "test-project", "")
	require.NoError(t, err)

	sess, err := sessionStore.GetSessionByID(ctx, id)
	require.NoError(t, err)
	assert.False(t, sess.UserPrompt.Valid)
}

func TestSessionStore_GetSessionByID_NotFound(t *testing.T) {
	sessionStore, _, cleanup := testSessionStore(t)
	defer cleanup()

	sess, err := sessionStore.GetSessionByID(context.Background(), 99999)
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestSessionStore_FindSessionByContentID(t *testing.T) {
	sessionStore, _, cleanup := testSessionStore(t)
	defer cleanup()

	ctx := context.Background()

	id, err := sessionStore.CreateSession(ctx, "content-3", "proj", "hello")
	require.NoError(t, err)

	sess, err := sessionStore.FindSessionByContentID(ctx, "content-3")
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, id, sess.ID)

	missing, err := sessionStore.FindSessionByContentID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSessionStore_IncrementPromptCounter(t *testing.T) {
	sessionStore, _, cleanup := testSessionStore(t)
	defer cleanup()

	ctx := context.Background()

	id, err := sessionStore.CreateSession(ctx, "content-4", "proj", "")
	require.NoError(t, err)

	n1, err := sessionStore.IncrementPromptCounter(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, n1)

	n2, err := sessionStore.IncrementPromptCounter(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, n2)

	counter, err := sessionStore.GetPromptCounter(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, counter)
}

func TestSessionStore_MarkCompleted(t *testing.T) {
	sessionStore, _, cleanup := testSessionStore(t)
	defer cleanup()

	ctx := context.Background()

	id, err := sessionStore.CreateSession(ctx, "content-5", "proj", "")
	require.NoError(t, err)

	active, err := sessionStore.CountActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), active)

	require.NoError(t, sessionStore.MarkCompleted(ctx, id))

	sess, err := sessionStore.GetSessionByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusCompleted, sess.Status)
	assert.True(t, sess.CompletedAt.Valid)
	assert.True(t, sess.CompletedAtEpoch.Valid)

	active, err = sessionStore.CountActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), active)
}

func TestSessionStore_DeleteSession(t *testing.T) {
	sessionStore, _, cleanup := testSessionStore(t)
	defer cleanup()

	ctx := context.Background()

	id, err := sessionStore.CreateSession(ctx, "content-6", "proj", "")
	require.NoError(t, err)

	require.NoError(t, sessionStore.DeleteSession(ctx, id))

	sess, err := sessionStore.GetSessionByID(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, sess)
}
