package gorm

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pilotlabs/console/pkg/models"
)

// SessionStore provides session-related database operations using GORM.
type SessionStore struct {
	db *gorm.DB
}

// NewSessionStore creates a new session store.
func NewSessionStore(store *Store) *SessionStore {
	return &SessionStore{db: store.DB}
}

// CreateSession creates a new session (idempotent - returns existing ID if exists).
// Every hook calls this, so the unique content_session_id is what keeps a
// single session row shared across all of them.
func (s *SessionStore) CreateSession(ctx context.Context, contentSessionID, project, userPrompt string) (int64, error) {
	now := time.Now()

	session := &SDKSession{
		ContentSessionID: contentSessionID,
		Project:          project,
		UserPrompt:       sqlNullString(userPrompt),
		Status:           models.SessionStatusActive,
		StartedAt:        now.Format(time.RFC3339),
		StartedAtEpoch:   now.UnixMilli(),
	}

	// INSERT OR IGNORE keeps this idempotent under concurrent hooks
	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "content_session_id"}},
			DoNothing: true,
		}).
		Create(session)

	if result.Error != nil {
		return 0, result.Error
	}

	if result.RowsAffected == 0 {
		// Session exists - refresh project and user_prompt with non-empty values
		if project != "" {
			updates := map[string]interface{}{
				"project": project,
			}
			if userPrompt != "" {
				updates["user_prompt"] = userPrompt
			}
			if err := s.db.WithContext(ctx).
				Model(&SDKSession{}).
				Where("content_session_id = ?", contentSessionID).
				Updates(updates).Error; err != nil {
				return 0, fmt.Errorf("update session: %w", err)
			}
		}

		var existing SDKSession
		err := s.db.WithContext(ctx).
			Where("content_session_id = ?", contentSessionID).
			First(&existing).Error
		if err != nil {
			return 0, err
		}
		return existing.ID, nil
	}

	return session.ID, nil
}

// GetSessionByID retrieves a session by its database ID.
// Returns nil without error when no row exists.
func (s *SessionStore) GetSessionByID(ctx context.Context, id int64) (*models.SDKSession, error) {
	var sess SDKSession
	err := s.db.WithContext(ctx).First(&sess, id).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return sess.toModel(), nil
}

// FindSessionByContentID finds a session by its content session ID (any status).
func (s *SessionStore) FindSessionByContentID(ctx context.Context, contentSessionID string) (*models.SDKSession, error) {
	var sess SDKSession
	err := s.db.WithContext(ctx).
		Where("content_session_id = ?", contentSessionID).
		First(&sess).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return sess.toModel(), nil
}

// SetMemorySessionID records the external memory session id once it is known.
func (s *SessionStore) SetMemorySessionID(ctx context.Context, id int64, memorySessionID string) error {
	return s.db.WithContext(ctx).
		Model(&SDKSession{}).
		Where("id = ?", id).
		Update("memory_session_id", sqlNullString(memorySessionID)).Error
}

// IncrementPromptCounter increments the prompt counter and returns the new value.
// Single UPDATE ... RETURNING round trip (SQLite >= 3.35).
func (s *SessionStore) IncrementPromptCounter(ctx context.Context, id int64) (int, error) {
	var newCounter int
	err := s.db.WithContext(ctx).Raw(`
		UPDATE sdk_sessions
		SET prompt_counter = COALESCE(prompt_counter, 0) + 1
		WHERE id = ?
		RETURNING prompt_counter
	`, id).Scan(&newCounter).Error
	if err != nil {
		return 0, err
	}
	return newCounter, nil
}

// GetPromptCounter returns the current prompt counter for a session.
func (s *SessionStore) GetPromptCounter(ctx context.Context, id int64) (int, error) {
	var sess SDKSession
	err := s.db.WithContext(ctx).
		Select("prompt_counter").
		First(&sess, id).Error
	if err != nil {
		return 0, err
	}
	return int(sess.PromptCounter), nil
}

// CountActive returns the number of sessions still marked active.
func (s *SessionStore) CountActive(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&SDKSession{}).
		Where("status = ?", models.SessionStatusActive).
		Count(&count).Error
	return count, err
}

// MarkCompleted transitions a session to completed and stamps completion time.
func (s *SessionStore) MarkCompleted(ctx context.Context, id int64) error {
	now := time.Now()
	return s.db.WithContext(ctx).
		Model(&SDKSession{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":             models.SessionStatusCompleted,
			"completed_at":       now.Format(time.RFC3339),
			"completed_at_epoch": sql.NullInt64{Int64: now.UnixMilli(), Valid: true},
		}).Error
}

// DeleteSession removes the session row itself. Queue rows are cleaned up
// separately by PendingMessageStore.DeleteAllForSession.
func (s *SessionStore) DeleteSession(ctx context.Context, id int64) error {
	return s.db.WithContext(ctx).
		Delete(&SDKSession{}, id).Error
}

// GetSessionsToday returns the count of sessions started today.
func (s *SessionStore) GetSessionsToday(ctx context.Context) (int, error) {
	now := time.Now()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	var count int64
	err := s.db.WithContext(ctx).
		Model(&SDKSession{}).
		Where("started_at_epoch >= ?", startOfDay.UnixMilli()).
		Count(&count).Error

	return int(count), err
}

// GetAllProjects returns all unique project names.
func (s *SessionStore) GetAllProjects(ctx context.Context) ([]string, error) {
	var projects []string
	err := s.db.WithContext(ctx).
		Model(&SDKSession{}).
		Distinct("project").
		Where("project IS NOT NULL AND project != ''").
		Order("project ASC").
		Pluck("project", &projects).Error

	return projects, err
}
