package gorm

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"
)

// testPromptStore creates a PromptStore with a temporary database for testing.
func testPromptStore(t *testing.T) (*PromptStore, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "gorm_prompt_test_*")
	if err != nil {
		t.Fatalf("create temp dir: %v", err)
	}

	store, err := NewStore(Config{
		Path:     filepath.Join(tmpDir, "test.db"),
		MaxConns: 4,
		LogLevel: logger.Silent,
	})
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("NewStore failed: %v", err)
	}

	cleanup := func() {
		store.Close()
		os.RemoveAll(tmpDir)
	}

	return NewPromptStore(store), cleanup
}

func TestPromptStore_SavePrompt(t *testing.T) {
	store, cleanup := testPromptStore(t)
	defer cleanup()

	ctx := context.Background()

	id, err := store.SavePrompt(ctx, "content-1", 1, "add a feature")
	require.NoError(t, err)
	assert.Greater(t, id, int64(0))

	prompts, err := store.ListPrompts(ctx, "content-1", 0)
	require.NoError(t, err)
	require.Len(t, prompts, 1)
	assert.Equal(t, "add a feature", prompts[0].PromptText)
	assert.Equal(t, 1, prompts[0].PromptNumber)
}

func TestPromptStore_SavePrompt_DuplicateIgnored(t *testing.T) {
	store, cleanup := testPromptStore(t)
	defer cleanup()

	ctx := context.Background()

	id1, err := store.SavePrompt(ctx, "content-1", 1, "first")
	require.NoError(t, err)

	// Same (session, number): INSERT OR IGNORE returns the existing row
	id2, err := store.SavePrompt(ctx, "content-1", 1, "second")
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	prompts, err := store.ListPrompts(ctx, "content-1", 0)
	require.NoError(t, err)
	require.Len(t, prompts, 1)
	assert.Equal(t, "first", prompts[0].PromptText)
}

func TestPromptStore_FindRecentPromptByText(t *testing.T) {
	store, cleanup := testPromptStore(t)
	defer cleanup()

	ctx := context.Background()

	id, err := store.SavePrompt(ctx, "content-1", 3, "fix the bug")
	require.NoError(t, err)

	foundID, foundNumber, found := store.FindRecentPromptByText(ctx, "content-1", "fix the bug", 120)
	assert.True(t, found)
	assert.Equal(t, id, foundID)
	assert.Equal(t, 3, foundNumber)

	_, _, found = store.FindRecentPromptByText(ctx, "content-1", "different text", 120)
	assert.False(t, found)

	_, _, found = store.FindRecentPromptByText(ctx, "other-session", "fix the bug", 120)
	assert.False(t, found)
}

func TestPromptStore_DeletePromptsForSession(t *testing.T) {
	store, cleanup := testPromptStore(t)
	defer cleanup()

	ctx := context.Background()

	_, err := store.SavePrompt(ctx, "content-1", 1, "one")
	require.NoError(t, err)
	_, err = store.SavePrompt(ctx, "content-1", 2, "two")
	require.NoError(t, err)
	_, err = store.SavePrompt(ctx, "content-2", 1, "other")
	require.NoError(t, err)

	deleted, err := store.DeletePromptsForSession(ctx, "content-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	remaining, err := store.ListPrompts(ctx, "content-2", 0)
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}
