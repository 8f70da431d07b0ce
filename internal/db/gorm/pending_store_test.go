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

// testPendingStore creates a PendingMessageStore with a temporary database.
func testPendingStore(t *testing.T, maxRetries int) (*PendingMessageStore, *SessionStore, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "gorm_pending_test_*")
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

	cleanup := func() {
		store.Close()
		os.RemoveAll(tmpDir)
	}

	return NewPendingMessageStore(store, maxRetries), NewSessionStore(store), cleanup
}

func enqueueObservation(t *testing.T, s *PendingMessageStore, sessionDBID int64, contentSessionID string) int64 {
	t.Helper()
	id, err := s.Enqueue(context.Background(), sessionDBID, contentSessionID, EnqueueParams{
		MessageType: models.MessageTypeObservation,
		ToolName:    "Edit",
		ToolInput:   []byte(`{"file_path":"main.go"}`),
	})
	require.NoError(t, err)
	return id
}

func TestPendingStore_EnqueueAndClaim(t *testing.T) {
	pending, sessions, cleanup := testPendingStore(t, 0)
	defer cleanup()

	ctx := context.Background()
	sessID, err := sessions.CreateSession(ctx, "content-1", "proj", "")
	require.NoError(t, err)

	msgID := enqueueObservation(t, pending, sessID, "content-1")
	assert.Greater(t, msgID, int64(0))

	claimed, err := pending.ClaimNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, msgID, claimed.ID)
	assert.Equal(t, sessID, claimed.SessionDBID)
	assert.Equal(t, models.MessageTypeObservation, claimed.MessageType)
	assert.Equal(t, models.MessageStatusProcessing, claimed.Status)
	assert.True(t, claimed.StartedProcessingEpoch.Valid)
	assert.Equal(t, `{"file_path":"main.go"}`, string(claimed.ToolInput))
}

func TestPendingStore_ClaimNext_EmptyQueue(t *testing.T) {
	pending, _, cleanup := testPendingStore(t, 0)
	defer cleanup()

	claimed, err := pending.ClaimNext(context.Background())
	require.NoError(t, err)
	assert.Nil(t, claimed)
}

func TestPendingStore_ClaimNext_OldestFirst(t *testing.T) {
	pending, sessions, cleanup := testPendingStore(t, 0)
	defer cleanup()

	ctx := context.Background()
	sessID, err := sessions.CreateSession(ctx, "content-1", "proj", "")
	require.NoError(t, err)

	// Force distinct created_at_epoch values so the order is deterministic
	first, err := pending.Enqueue(ctx, sessID, "content-1", EnqueueParams{MessageType: models.MessageTypeObservation})
	require.NoError(t, err)
	require.NoError(t, pending.db.Model(&PendingMessage{}).Where("id = ?", first).
		Update("created_at_epoch", 1000).Error)

	second, err := pending.Enqueue(ctx, sessID, "content-1", EnqueueParams{MessageType: models.MessageTypeSummarize})
	require.NoError(t, err)
	require.NoError(t, pending.db.Model(&PendingMessage{}).Where("id = ?", second).
		Update("created_at_epoch", 2000).Error)

	claimed, err := pending.ClaimNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, first, claimed.ID)
}

func TestPendingStore_Enqueue_InvalidTypeRejected(t *testing.T) {
	pending, sessions, cleanup := testPendingStore(t, 0)
	defer cleanup()

	ctx := context.Background()
	sessID, err := sessions.CreateSession(ctx, "content-1", "proj", "")
	require.NoError(t, err)

	// CHECK constraint on message_type rejects unknown kinds
	_, err = pending.Enqueue(ctx, sessID, "content-1", EnqueueParams{MessageType: "telemetry"})
	assert.Error(t, err)
}

func TestPendingStore_MarkProcessed(t *testing.T) {
	pending, sessions, cleanup := testPendingStore(t, 0)
	defer cleanup()

	ctx := context.Background()
	sessID, err := sessions.CreateSession(ctx, "content-1", "proj", "")
	require.NoError(t, err)

	enqueueObservation(t, pending, sessID, "content-1")

	claimed, err := pending.ClaimNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)

	require.NoError(t, pending.MarkProcessed(ctx, claimed.ID))

	// Processed rows no longer count as pending work
	count, err := pending.GetPendingCount(ctx, sessID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	// Terminal: cannot be processed twice
	assert.Error(t, pending.MarkProcessed(ctx, claimed.ID))
}

func TestPendingStore_MarkFailed_RetriesThenTerminal(t *testing.T) {
	pending, sessions, cleanup := testPendingStore(t, 2)
	defer cleanup()

	ctx := context.Background()
	sessID, err := sessions.CreateSession(ctx, "content-1", "proj", "")
	require.NoError(t, err)

	msgID := enqueueObservation(t, pending, sessID, "content-1")

	// maxRetries=2 means three attempts total before terminal failure
	for attempt := 1; attempt <= 2; attempt++ {
		claimed, err := pending.ClaimNext(ctx)
		require.NoError(t, err)
		require.NotNil(t, claimed, "attempt %d", attempt)
		require.Equal(t, msgID, claimed.ID)

		require.NoError(t, pending.MarkFailed(ctx, claimed.ID))

		var row PendingMessage
		require.NoError(t, pending.db.First(&row, msgID).Error)
		assert.Equal(t, models.MessageStatusPending, row.Status)
		assert.Equal(t, attempt, row.RetryCount)
		assert.False(t, row.FailedAtEpoch.Valid)
	}

	claimed, err := pending.ClaimNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	require.NoError(t, pending.MarkFailed(ctx, claimed.ID))

	var row PendingMessage
	require.NoError(t, pending.db.First(&row, msgID).Error)
	assert.Equal(t, models.MessageStatusFailed, row.Status)
	assert.Equal(t, 3, row.RetryCount)
	assert.True(t, row.FailedAtEpoch.Valid)

	// Terminal rows never come back out of the queue
	next, err := pending.ClaimNext(ctx)
	require.NoError(t, err)
	assert.Nil(t, next)
}

func TestPendingStore_GetPendingCount_CrossSessionIsolation(t *testing.T) {
	pending, sessions, cleanup := testPendingStore(t, 0)
	defer cleanup()

	ctx := context.Background()
	sessA, err := sessions.CreateSession(ctx, "content-a", "proj", "")
	require.NoError(t, err)
	sessB, err := sessions.CreateSession(ctx, "content-b", "proj", "")
	require.NoError(t, err)

	enqueueObservation(t, pending, sessA, "content-a")
	enqueueObservation(t, pending, sessA, "content-a")
	enqueueObservation(t, pending, sessB, "content-b")

	countA, err := pending.GetPendingCount(ctx, sessA)
	require.NoError(t, err)
	assert.Equal(t, int64(2), countA)

	countB, err := pending.GetPendingCount(ctx, sessB)
	require.NoError(t, err)
	assert.Equal(t, int64(1), countB)
}

func TestPendingStore_DeleteAllForSession(t *testing.T) {
	pending, sessions, cleanup := testPendingStore(t, 0)
	defer cleanup()

	ctx := context.Background()
	sessA, err := sessions.CreateSession(ctx, "content-a", "proj", "")
	require.NoError(t, err)
	sessB, err := sessions.CreateSession(ctx, "content-b", "proj", "")
	require.NoError(t, err)

	enqueueObservation(t, pending, sessA, "content-a")
	enqueueObservation(t, pending, sessA, "content-a")
	enqueueObservation(t, pending, sessA, "content-a")
	enqueueObservation(t, pending, sessB, "content-b")

	// One of A's rows mid-processing: deletion covers every status
	claimed, err := pending.ClaimNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)

	deleted, err := pending.DeleteAllForSession(ctx, sessA)
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)

	countA, err := pending.GetPendingCount(ctx, sessA)
	require.NoError(t, err)
	assert.Equal(t, int64(0), countA)

	// B untouched
	countB, err := pending.GetPendingCount(ctx, sessB)
	require.NoError(t, err)
	assert.Equal(t, int64(1), countB)

	hasWork, err := pending.HasAnyPendingWork(ctx)
	require.NoError(t, err)
	assert.True(t, hasWork)

	_, err = pending.DeleteAllForSession(ctx, sessB)
	require.NoError(t, err)

	hasWork, err = pending.HasAnyPendingWork(ctx)
	require.NoError(t, err)
	assert.False(t, hasWork)
}

func TestPendingStore_DeleteAllForSession_UnknownSession(t *testing.T) {
	pending, _, cleanup := testPendingStore(t, 0)
	defer cleanup()

	deleted, err := pending.DeleteAllForSession(context.Background(), 424242)
	require.NoError(t, err)
	assert.Equal(t, int64(0), deleted)
}

func TestPendingStore_MarkAllSessionMessagesFailed(t *testing.T) {
	pending, sessions, cleanup := testPendingStore(t, 0)
	defer cleanup()

	ctx := context.Background()
	sessID, err := sessions.CreateSession(ctx, "content-1", "proj", "")
	require.NoError(t, err)

	enqueueObservation(t, pending, sessID, "content-1")
	enqueueObservation(t, pending, sessID, "content-1")
	enqueueObservation(t, pending, sessID, "content-1")

	// First row becomes processed, second stays processing, third stays pending
	first, err := pending.ClaimNext(ctx)
	require.NoError(t, err)
	require.NoError(t, pending.MarkProcessed(ctx, first.ID))

	_, err = pending.ClaimNext(ctx)
	require.NoError(t, err)

	affected, err := pending.MarkAllSessionMessagesFailed(ctx, sessID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), affected)

	var processed PendingMessage
	require.NoError(t, pending.db.First(&processed, first.ID).Error)
	assert.Equal(t, models.MessageStatusProcessed, processed.Status)

	var failedEpochs []int64
	require.NoError(t, pending.db.Model(&PendingMessage{}).
		Where("session_db_id = ? AND status = ?", sessID, models.MessageStatusFailed).
		Pluck("failed_at_epoch", &failedEpochs).Error)
	require.Len(t, failedEpochs, 2)

	// Idempotent: second call touches nothing, timestamps stay put
	affected, err = pending.MarkAllSessionMessagesFailed(ctx, sessID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), affected)

	var afterEpochs []int64
	require.NoError(t, pending.db.Model(&PendingMessage{}).
		Where("session_db_id = ? AND status = ?", sessID, models.MessageStatusFailed).
		Pluck("failed_at_epoch", &afterEpochs).Error)
	assert.Equal(t, failedEpochs, afterEpochs)
}

func TestPendingStore_GetQueueMessages(t *testing.T) {
	pending, sessions, cleanup := testPendingStore(t, 0)
	defer cleanup()

	ctx := context.Background()
	sessID, err := sessions.CreateSession(ctx, "content-1", "proj", "")
	require.NoError(t, err)

	enqueueObservation(t, pending, sessID, "content-1")
	_, err = pending.Enqueue(ctx, sessID, "content-1", EnqueueParams{
		MessageType:  models.MessageTypeSummarize,
		PromptNumber: 2,
	})
	require.NoError(t, err)

	msgs, err := pending.GetQueueMessages(ctx)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
}
