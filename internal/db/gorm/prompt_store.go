package gorm

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pilotlabs/console/pkg/models"
)

// PromptStore provides user prompt-related database operations using GORM.
type PromptStore struct {
	db *gorm.DB
}

// NewPromptStore creates a new prompt store.
func NewPromptStore(store *Store) *PromptStore {
	return &PromptStore{db: store.DB}
}

// SavePrompt saves a user prompt.
// Uses INSERT OR IGNORE to be idempotent - duplicate (session, prompt_number)
// pairs are silently ignored. This prevents duplicate prompts when the
// user-prompt hook fires multiple times.
func (s *PromptStore) SavePrompt(ctx context.Context, contentSessionID string, promptNumber int, promptText string) (int64, error) {
	now := time.Now()

	prompt := &UserPrompt{
		ContentSessionID: contentSessionID,
		PromptNumber:     promptNumber,
		PromptText:       promptText,
		CreatedAt:        now.Format(time.RFC3339),
		CreatedAtEpoch:   now.UnixMilli(),
	}

	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "content_session_id"}, {Name: "prompt_number"}},
			DoNothing: true,
		}).
		Create(prompt)

	if result.Error != nil {
		return 0, result.Error
	}

	if result.RowsAffected == 0 {
		var existing UserPrompt
		err := s.db.WithContext(ctx).
			Where("content_session_id = ? AND prompt_number = ?", contentSessionID, promptNumber).
			First(&existing).Error
		if err != nil {
			return 0, err
		}
		return existing.ID, nil
	}

	return prompt.ID, nil
}

// FindRecentPromptByText finds a recent prompt by exact text match within a
// time window. Returns (promptID, promptNumber, found).
func (s *PromptStore) FindRecentPromptByText(ctx context.Context, contentSessionID, promptText string, withinSeconds int) (int64, int, bool) {
	cutoffEpoch := time.Now().Add(-time.Duration(withinSeconds) * time.Second).UnixMilli()

	var prompt UserPrompt
	err := s.db.WithContext(ctx).
		Where("content_session_id = ? AND prompt_text = ? AND created_at_epoch >= ?",
			contentSessionID, promptText, cutoffEpoch).
		Order("created_at_epoch DESC").
		First(&prompt).Error

	if err != nil {
		return 0, 0, false
	}

	return prompt.ID, prompt.PromptNumber, true
}

// ListPrompts retrieves prompts for a session, oldest first.
func (s *PromptStore) ListPrompts(ctx context.Context, contentSessionID string, limit int) ([]*models.UserPrompt, error) {
	query := s.db.WithContext(ctx).
		Where("content_session_id = ?", contentSessionID).
		Order("prompt_number ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rows []UserPrompt
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}

	prompts := make([]*models.UserPrompt, len(rows))
	for i := range rows {
		prompts[i] = rows[i].toModel()
	}
	return prompts, nil
}

// DeletePromptsForSession removes a session's prompts. Part of cascade cleanup.
func (s *PromptStore) DeletePromptsForSession(ctx context.Context, contentSessionID string) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("content_session_id = ?", contentSessionID).
		Delete(&UserPrompt{})
	return result.RowsAffected, result.Error
}
