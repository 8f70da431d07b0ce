package gorm

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/pilotlabs/console/pkg/models"
)

// DefaultMaxRetries is the number of re-deliveries a message gets after its
// first attempt fails. A message is attempted at most maxRetries+1 times.
const DefaultMaxRetries = 3

// EnqueueParams carries the payload of a queued message. Session identity
// travels separately.
type EnqueueParams struct {
	MessageType          models.MessageType
	ToolName             string
	ToolInput            []byte
	ToolResponse         []byte
	CWD                  string
	LastUserMessage      string
	LastAssistantMessage string
	PromptNumber         int64
}

// PendingMessageStore provides durable queue operations using GORM.
type PendingMessageStore struct {
	db         *gorm.DB
	maxRetries int
}

// NewPendingMessageStore creates a new pending message store.
// maxRetries <= 0 falls back to DefaultMaxRetries.
func NewPendingMessageStore(store *Store, maxRetries int) *PendingMessageStore {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &PendingMessageStore{db: store.DB, maxRetries: maxRetries}
}

// Enqueue inserts a new pending row for the session and returns its id.
// An unknown message type fails the table's CHECK constraint.
func (s *PendingMessageStore) Enqueue(ctx context.Context, sessionDBID int64, contentSessionID string, params EnqueueParams) (int64, error) {
	msg := &PendingMessage{
		SessionDBID:          sessionDBID,
		ContentSessionID:     contentSessionID,
		MessageType:          params.MessageType,
		Status:               models.MessageStatusPending,
		ToolName:             sqlNullString(params.ToolName),
		ToolInput:            sqlNullString(string(params.ToolInput)),
		ToolResponse:         sqlNullString(string(params.ToolResponse)),
		CWD:                  sqlNullString(params.CWD),
		LastUserMessage:      sqlNullString(params.LastUserMessage),
		LastAssistantMessage: sqlNullString(params.LastAssistantMessage),
		CreatedAtEpoch:       sqlNullInt64(time.Now().UnixMilli()),
	}
	if params.PromptNumber > 0 {
		msg.PromptNumber = sqlNullInt64(params.PromptNumber)
	}

	if err := s.db.WithContext(ctx).Create(msg).Error; err != nil {
		return 0, fmt.Errorf("enqueue message: %w", err)
	}
	return msg.ID, nil
}

// ClaimNext atomically claims the oldest pending message for processing.
// Returns nil without error when the queue is empty.
//
// The claim runs in a transaction so two dispatcher workers never grab the
// same row: the UPDATE only wins if the row is still pending.
func (s *PendingMessageStore) ClaimNext(ctx context.Context) (*models.PendingMessage, error) {
	var claimed *models.PendingMessage

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var msg PendingMessage
		err := tx.
			Where("status = ?", models.MessageStatusPending).
			Order("created_at_epoch ASC").
			First(&msg).Error
		if err == gorm.ErrRecordNotFound {
			return nil
		}
		if err != nil {
			return err
		}

		now := time.Now().UnixMilli()
		result := tx.Model(&PendingMessage{}).
			Where("id = ? AND status = ?", msg.ID, models.MessageStatusPending).
			Updates(map[string]interface{}{
				"status":                      models.MessageStatusProcessing,
				"started_processing_at_epoch": sql.NullInt64{Int64: now, Valid: true},
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			// Lost the race; caller retries on the next tick.
			return nil
		}

		msg.Status = models.MessageStatusProcessing
		msg.StartedProcessingEpoch = sql.NullInt64{Int64: now, Valid: true}
		claimed = msg.toModel()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("claim next message: %w", err)
	}
	return claimed, nil
}

// MarkProcessed transitions a processing message to its terminal processed state.
func (s *PendingMessageStore) MarkProcessed(ctx context.Context, id int64) error {
	result := s.db.WithContext(ctx).
		Model(&PendingMessage{}).
		Where("id = ? AND status = ?", id, models.MessageStatusProcessing).
		Updates(map[string]interface{}{
			"status":             models.MessageStatusProcessed,
			"completed_at_epoch": sql.NullInt64{Int64: time.Now().UnixMilli(), Valid: true},
		})
	if result.Error != nil {
		return fmt.Errorf("mark processed: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("mark processed: message %d not in processing state", id)
	}
	return nil
}

// MarkFailed records a failed attempt. Below the retry budget the message
// returns to pending for another delivery; at the budget it becomes
// terminally failed. Retry pacing is the consumer's concern.
func (s *PendingMessageStore) MarkFailed(ctx context.Context, id int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var msg PendingMessage
		if err := tx.First(&msg, id).Error; err != nil {
			return fmt.Errorf("mark failed: %w", err)
		}
		if msg.Status != models.MessageStatusProcessing {
			return fmt.Errorf("mark failed: message %d not in processing state", id)
		}

		retries := msg.RetryCount + 1
		updates := map[string]interface{}{
			"retry_count": retries,
		}
		if retries > s.maxRetries {
			updates["status"] = models.MessageStatusFailed
			updates["failed_at_epoch"] = sql.NullInt64{Int64: time.Now().UnixMilli(), Valid: true}
		} else {
			updates["status"] = models.MessageStatusPending
			updates["started_processing_at_epoch"] = sql.NullInt64{}
		}

		return tx.Model(&PendingMessage{}).
			Where("id = ?", id).
			Updates(updates).Error
	})
}

// GetPendingCount returns the number of undelivered (pending or processing)
// messages for a session.
func (s *PendingMessageStore) GetPendingCount(ctx context.Context, sessionDBID int64) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&PendingMessage{}).
		Where("session_db_id = ? AND status IN ?", sessionDBID,
			[]models.MessageStatus{models.MessageStatusPending, models.MessageStatusProcessing}).
		Count(&count).Error
	return count, err
}

// HasAnyPendingWork reports whether any session still has undelivered work.
// Used for worker shutdown decisions.
func (s *PendingMessageStore) HasAnyPendingWork(ctx context.Context) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&PendingMessage{}).
		Where("status IN ?",
			[]models.MessageStatus{models.MessageStatusPending, models.MessageStatusProcessing}).
		Limit(1).
		Count(&count).Error
	return count > 0, err
}

// DeleteAllForSession physically removes every queue row for a session,
// regardless of status. Rows of other sessions are untouched.
func (s *PendingMessageStore) DeleteAllForSession(ctx context.Context, sessionDBID int64) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("session_db_id = ?", sessionDBID).
		Delete(&PendingMessage{})
	if result.Error != nil {
		return 0, fmt.Errorf("delete session messages: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// MarkAllSessionMessagesFailed flips a session's undelivered rows to failed,
// preserving them for audit. Rows already processed or failed keep their
// status and timestamps, so a second invocation reports 0.
func (s *PendingMessageStore) MarkAllSessionMessagesFailed(ctx context.Context, sessionDBID int64) (int64, error) {
	result := s.db.WithContext(ctx).
		Model(&PendingMessage{}).
		Where("session_db_id = ? AND status IN ?", sessionDBID,
			[]models.MessageStatus{models.MessageStatusPending, models.MessageStatusProcessing}).
		Updates(map[string]interface{}{
			"status":          models.MessageStatusFailed,
			"failed_at_epoch": sql.NullInt64{Int64: time.Now().UnixMilli(), Valid: true},
		})
	if result.Error != nil {
		return 0, fmt.Errorf("mark session messages failed: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// GetQueueMessages returns every queue row, newest first. Diagnostics only.
func (s *PendingMessageStore) GetQueueMessages(ctx context.Context) ([]models.PendingMessage, error) {
	var rows []PendingMessage
	err := s.db.WithContext(ctx).
		Order("created_at_epoch DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]models.PendingMessage, 0, len(rows))
	for i := range rows {
		out = append(out, *rows[i].toModel())
	}
	return out, nil
}
