package gorm

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/pilotlabs/console/pkg/models"
)

// NotificationStore provides notification feed operations using GORM.
type NotificationStore struct {
	db *gorm.DB
}

// NewNotificationStore creates a new notification store.
func NewNotificationStore(store *Store) *NotificationStore {
	return &NotificationStore{db: store.DB}
}

// CreateNotificationParams carries the create-notification payload.
type CreateNotificationParams struct {
	Type      string
	Title     string
	Message   string
	PlanPath  string
	SessionID string
}

// Create validates and inserts a notification, returning the stored record.
func (s *NotificationStore) Create(ctx context.Context, params CreateNotificationParams) (*models.Notification, error) {
	if err := models.ValidateNotificationFields(params.Type, params.Title, params.Message); err != nil {
		return nil, err
	}

	now := time.Now()
	n := &Notification{
		Type:           params.Type,
		Title:          params.Title,
		Message:        params.Message,
		PlanPath:       sqlNullString(params.PlanPath),
		SessionID:      sqlNullString(params.SessionID),
		IsRead:         0,
		CreatedAt:      now.Format(time.RFC3339),
		CreatedAtEpoch: now.UnixMilli(),
	}

	if err := s.db.WithContext(ctx).Create(n).Error; err != nil {
		return nil, fmt.Errorf("create notification: %w", err)
	}
	return n.toModel(), nil
}

// List returns notifications newest first. Unread only unless includeRead.
func (s *NotificationStore) List(ctx context.Context, limit int, includeRead bool) ([]models.Notification, error) {
	if limit <= 0 {
		limit = 50
	}

	query := s.db.WithContext(ctx).
		Order("created_at_epoch DESC").
		Limit(limit)
	if !includeRead {
		query = query.Where("is_read = 0")
	}

	var rows []Notification
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]models.Notification, 0, len(rows))
	for i := range rows {
		out = append(out, *rows[i].toModel())
	}
	return out, nil
}

// MarkRead flags a single notification as read. Unknown ids are a no-op.
func (s *NotificationStore) MarkRead(ctx context.Context, id int64) error {
	return s.db.WithContext(ctx).
		Model(&Notification{}).
		Where("id = ?", id).
		Update("is_read", 1).Error
}

// MarkAllRead flags every unread notification as read.
func (s *NotificationStore) MarkAllRead(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).
		Model(&Notification{}).
		Where("is_read = 0").
		Update("is_read", 1)
	return result.RowsAffected, result.Error
}

// UnreadCount returns the number of unread notifications.
func (s *NotificationStore) UnreadCount(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&Notification{}).
		Where("is_read = 0").
		Count(&count).Error
	return count, err
}
