package models

import (
	"database/sql"
	"fmt"
)

// Notification field limits enforced at the API boundary.
const (
	NotificationTitleMaxLen   = 500
	NotificationMessageMaxLen = 2000
)

// Notification is a single entry in the dashboard notification feed.
type Notification struct {
	ID             int64          `db:"id" json:"id"`
	Type           string         `db:"type" json:"type"`
	Title          string         `db:"title" json:"title"`
	Message        string         `db:"message" json:"message"`
	PlanPath       sql.NullString `db:"plan_path" json:"plan_path,omitempty"`
	SessionID      sql.NullString `db:"session_id" json:"session_id,omitempty"`
	IsRead         int            `db:"is_read" json:"is_read"`
	CreatedAt      string         `db:"created_at" json:"created_at"`
	CreatedAtEpoch int64          `db:"created_at_epoch" json:"created_at_epoch"`
}

// ValidateNotificationFields checks the create-notification payload bounds.
func ValidateNotificationFields(typ, title, message string) error {
	if typ == "" || title == "" || message == "" {
		return fmt.Errorf("type, title and message are required")
	}
	if len(title) > NotificationTitleMaxLen {
		return fmt.Errorf("title exceeds %d characters", NotificationTitleMaxLen)
	}
	if len(message) > NotificationMessageMaxLen {
		return fmt.Errorf("message exceeds %d characters", NotificationMessageMaxLen)
	}
	return nil
}
