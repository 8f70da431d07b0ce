package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/pilotlabs/console/internal/db/gorm"
	"github.com/pilotlabs/console/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"
)

// fakeProcessor records processed messages and can be told to fail.
type fakeProcessor struct {
	mu        sync.Mutex
	processed []int64
	failIDs   map[int64]bool
	available bool
}

func newFakeProcessor() *fakeProcessor {
	return &fakeProcessor{failIDs: make(map[int64]bool), available: true}
}

func (f *fakeProcessor) Process(ctx context.Context, msg *models.PendingMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failIDs[msg.ID] {
		return errors.New("processing failed")
	}
	f.processed = append(f.processed, msg.ID)
	return nil
}

func (f *fakeProcessor) IsAvailable() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.available
}

func (f *fakeProcessor) processedIDs() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.processed...)
}

func testDispatcherStores(t *testing.T) (*gorm.SessionStore, *gorm.PendingMessageStore, func()) {
	t.Helper()

	dir, err := os.MkdirTemp("", "console-dispatcher-test-*")
	require.NoError(t, err)

	store, err := gorm.NewStore(gorm.Config{
		Path:     filepath.Join(dir, "test.db"),
		MaxConns: 2,
		LogLevel: logger.Silent,
	})
	require.NoError(t, err)

	cleanup := func() {
		_ = store.Close()
		_ = os.RemoveAll(dir)
	}

	return gorm.NewSessionStore(store), gorm.NewPendingMessageStore(store, 1), cleanup
}

func enqueueTestMessage(t *testing.T, sessionStore *gorm.SessionStore, pendingStore *gorm.PendingMessageStore, contentID string) int64 {
	t.Helper()

	ctx := context.Background()
	sessionID, err := sessionStore.CreateSession(ctx, contentID, "proj", "prompt")
	require.NoError(t, err)

	msgID, err := pendingStore.Enqueue(ctx, sessionID, contentID, gorm.EnqueueParams{
		MessageType: models.MessageTypeObservation,
		ToolName:    "Edit",
		CWD:         "/tmp",
	})
	require.NoError(t, err)
	return msgID
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestDispatcher_ProcessesQueuedMessage(t *testing.T) {
	sessionStore, pendingStore, cleanup := testDispatcherStores(t)
	defer cleanup()

	msgID := enqueueTestMessage(t, sessionStore, pendingStore, "content-dispatch")

	proc := newFakeProcessor()
	notify := make(chan struct{}, 1)
	d := NewDispatcher(pendingStore, proc, notify)
	d.Start()
	defer d.Stop()

	notify <- struct{}{}

	waitFor(t, 2*time.Second, func() bool {
		return len(proc.processedIDs()) == 1
	})
	assert.Equal(t, []int64{msgID}, proc.processedIDs())

	messages, err := pendingStore.GetQueueMessages(context.Background())
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, models.MessageStatusProcessed, messages[0].Status)
}

func TestDispatcher_FailureGoesBackToPending(t *testing.T) {
	sessionStore, pendingStore, cleanup := testDispatcherStores(t)
	defer cleanup()

	msgID := enqueueTestMessage(t, sessionStore, pendingStore, "content-retry")

	proc := newFakeProcessor()
	proc.failIDs[msgID] = true
	notify := make(chan struct{}, 1)
	d := NewDispatcher(pendingStore, proc, notify)
	d.Start()

	notify <- struct{}{}

	// maxRetries is 1: attempt one fails back to pending, attempt two fails
	// terminally. The poll ticker drives the second attempt.
	waitFor(t, 10*time.Second, func() bool {
		messages, err := pendingStore.GetQueueMessages(context.Background())
		if err != nil || len(messages) != 1 {
			return false
		}
		return messages[0].Status == models.MessageStatusFailed
	})
	d.Stop()

	messages, err := pendingStore.GetQueueMessages(context.Background())
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, 2, messages[0].RetryCount)
	assert.True(t, messages[0].FailedAtEpoch.Valid)
	assert.Empty(t, proc.processedIDs())
}

func TestDispatcher_NilProcessorLeavesQueueAlone(t *testing.T) {
	sessionStore, pendingStore, cleanup := testDispatcherStores(t)
	defer cleanup()

	enqueueTestMessage(t, sessionStore, pendingStore, "content-nil")

	notify := make(chan struct{}, 1)
	d := NewDispatcher(pendingStore, nil, notify)
	d.Start()
	notify <- struct{}{}
	time.Sleep(100 * time.Millisecond)
	d.Stop()

	messages, err := pendingStore.GetQueueMessages(context.Background())
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, models.MessageStatusPending, messages[0].Status)
}

func TestDispatcher_UnavailableProcessorDefersWork(t *testing.T) {
	sessionStore, pendingStore, cleanup := testDispatcherStores(t)
	defer cleanup()

	enqueueTestMessage(t, sessionStore, pendingStore, "content-defer")

	proc := newFakeProcessor()
	proc.mu.Lock()
	proc.available = false
	proc.mu.Unlock()

	notify := make(chan struct{}, 1)
	d := NewDispatcher(pendingStore, proc, notify)
	d.Start()
	notify <- struct{}{}
	time.Sleep(100 * time.Millisecond)

	assert.Empty(t, proc.processedIDs())

	// Once the processor recovers, the poll ticker picks the message up
	proc.mu.Lock()
	proc.available = true
	proc.mu.Unlock()

	waitFor(t, 5*time.Second, func() bool {
		return len(proc.processedIDs()) == 1
	})
	d.Stop()
}
