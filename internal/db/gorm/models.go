package gorm

import (
	"database/sql"
	"time"

	"gorm.io/gorm"

	"github.com/pilotlabs/console/pkg/models"
)

// GORM Models
//
// Field order optimized for memory alignment (fieldalignment).

// SDKSession represents an assistant session tracked by the console.
type SDKSession struct {
	ContentSessionID string               `gorm:"uniqueIndex;not null"`
	Project          string               `gorm:"index;not null"`
	Status           models.SessionStatus `gorm:"type:text;check:status IN ('active', 'completed', 'failed');default:'active';index"`
	StartedAt        string               `gorm:"not null"`
	MemorySessionID  sql.NullString       `gorm:"uniqueIndex"`
	UserPrompt       sql.NullString
	CompletedAt      sql.NullString
	CompletedAtEpoch sql.NullInt64
	ID               int64 `gorm:"primaryKey;autoIncrement"`
	PromptCounter    int64 `gorm:"default:0"`
	StartedAtEpoch   int64 `gorm:"index:idx_sessions_started,sort:desc;not null"`
}

func (SDKSession) TableName() string { return "sdk_sessions" }

// BeforeCreate hook to ensure timestamps are set.
func (s *SDKSession) BeforeCreate(tx *gorm.DB) error {
	if s.StartedAtEpoch == 0 {
		s.StartedAtEpoch = time.Now().UnixMilli()
	}
	if s.StartedAt == "" {
		s.StartedAt = time.Now().Format(time.RFC3339)
	}
	if s.Status == "" {
		s.Status = models.SessionStatusActive
	}
	return nil
}

// toModel converts the GORM row to the domain model.
func (s *SDKSession) toModel() *models.SDKSession {
	return &models.SDKSession{
		ID:               s.ID,
		ContentSessionID: s.ContentSessionID,
		MemorySessionID:  s.MemorySessionID,
		Project:          s.Project,
		UserPrompt:       s.UserPrompt,
		PromptCounter:    s.PromptCounter,
		Status:           s.Status,
		StartedAt:        s.StartedAt,
		StartedAtEpoch:   s.StartedAtEpoch,
		CompletedAt:      s.CompletedAt,
		CompletedAtEpoch: s.CompletedAtEpoch,
	}
}

// PendingMessage is a queued unit of work awaiting dispatch.
// The session row owns its queue: deleting a session cascades here.
type PendingMessage struct {
	ContentSessionID       string               `gorm:"index;not null"`
	MessageType            models.MessageType   `gorm:"type:text;check:message_type IN ('observation', 'summarize');not null"`
	Status                 models.MessageStatus `gorm:"type:text;default:'pending';check:status IN ('pending', 'processing', 'processed', 'failed');index:idx_pending_status_created,priority:1"`
	ToolName               sql.NullString
	ToolInput              sql.NullString `gorm:"type:text"`
	ToolResponse           sql.NullString `gorm:"type:text"`
	CWD                    sql.NullString `gorm:"column:cwd"`
	LastUserMessage        sql.NullString `gorm:"type:text"`
	LastAssistantMessage   sql.NullString `gorm:"type:text"`
	PromptNumber           sql.NullInt64
	CreatedAtEpoch         sql.NullInt64 `gorm:"index:idx_pending_status_created,priority:2"`
	StartedProcessingEpoch sql.NullInt64 `gorm:"column:started_processing_at_epoch"`
	CompletedAtEpoch       sql.NullInt64
	FailedAtEpoch          sql.NullInt64
	ID                     int64 `gorm:"primaryKey;autoIncrement"`
	SessionDBID            int64 `gorm:"column:session_db_id;index;not null"`
	RetryCount             int   `gorm:"default:0"`
}

func (PendingMessage) TableName() string { return "pending_messages" }

// BeforeCreate hook to ensure defaults are set.
func (m *PendingMessage) BeforeCreate(tx *gorm.DB) error {
	if !m.CreatedAtEpoch.Valid {
		m.CreatedAtEpoch = sql.NullInt64{Int64: time.Now().UnixMilli(), Valid: true}
	}
	if m.Status == "" {
		m.Status = models.MessageStatusPending
	}
	return nil
}

// toModel converts the GORM row to the domain model.
func (m *PendingMessage) toModel() *models.PendingMessage {
	out := &models.PendingMessage{
		ID:                     m.ID,
		SessionDBID:            m.SessionDBID,
		ContentSessionID:       m.ContentSessionID,
		MessageType:            m.MessageType,
		ToolName:               m.ToolName,
		CWD:                    m.CWD,
		LastUserMessage:        m.LastUserMessage,
		LastAssistantMessage:   m.LastAssistantMessage,
		PromptNumber:           m.PromptNumber,
		Status:                 m.Status,
		RetryCount:             m.RetryCount,
		CreatedAtEpoch:         m.CreatedAtEpoch,
		StartedProcessingEpoch: m.StartedProcessingEpoch,
		CompletedAtEpoch:       m.CompletedAtEpoch,
		FailedAtEpoch:          m.FailedAtEpoch,
	}
	if m.ToolInput.Valid {
		out.ToolInput = []byte(m.ToolInput.String)
	}
	if m.ToolResponse.Valid {
		out.ToolResponse = []byte(m.ToolResponse.String)
	}
	return out
}

// UserPrompt represents a user prompt within a session.
type UserPrompt struct {
	ContentSessionID string `gorm:"index;not null;uniqueIndex:idx_user_prompts_session_number_unique,priority:1"`
	PromptText       string `gorm:"type:text;not null"`
	CreatedAt        string `gorm:"not null"`
	ID               int64  `gorm:"primaryKey;autoIncrement"`
	PromptNumber     int    `gorm:"index;not null;uniqueIndex:idx_user_prompts_session_number_unique,priority:2"`
	CreatedAtEpoch   int64  `gorm:"index:idx_prompts_created,sort:desc;not null"`
}

func (UserPrompt) TableName() string { return "user_prompts" }

// BeforeCreate hook to ensure timestamps are set.
func (p *UserPrompt) BeforeCreate(tx *gorm.DB) error {
	if p.CreatedAtEpoch == 0 {
		p.CreatedAtEpoch = time.Now().UnixMilli()
	}
	if p.CreatedAt == "" {
		p.CreatedAt = time.Now().Format(time.RFC3339)
	}
	return nil
}

// toModel converts the GORM row to the domain model.
func (p *UserPrompt) toModel() *models.UserPrompt {
	return &models.UserPrompt{
		ID:               p.ID,
		ContentSessionID: p.ContentSessionID,
		PromptNumber:     p.PromptNumber,
		PromptText:       p.PromptText,
		CreatedAt:        p.CreatedAt,
		CreatedAtEpoch:   p.CreatedAtEpoch,
	}
}

// Notification is a single entry in the dashboard notification feed.
type Notification struct {
	Type           string `gorm:"type:text;not null;index"`
	Title          string `gorm:"type:text;not null"`
	Message        string `gorm:"type:text;not null"`
	CreatedAt      string `gorm:"not null"`
	PlanPath       sql.NullString
	SessionID      sql.NullString `gorm:"index"`
	ID             int64          `gorm:"primaryKey;autoIncrement"`
	IsRead         int            `gorm:"default:0;index:idx_notifications_unread"`
	CreatedAtEpoch int64          `gorm:"index:idx_notifications_created,sort:desc;not null"`
}

func (Notification) TableName() string { return "notifications" }

// BeforeCreate hook to ensure timestamps are set.
func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	if n.CreatedAtEpoch == 0 {
		n.CreatedAtEpoch = time.Now().UnixMilli()
	}
	if n.CreatedAt == "" {
		n.CreatedAt = time.Now().Format(time.RFC3339)
	}
	return nil
}

// toModel converts the GORM row to the domain model.
func (n *Notification) toModel() *models.Notification {
	return &models.Notification{
		ID:             n.ID,
		Type:           n.Type,
		Title:          n.Title,
		Message:        n.Message,
		PlanPath:       n.PlanPath,
		SessionID:      n.SessionID,
		IsRead:         n.IsRead,
		CreatedAt:      n.CreatedAt,
		CreatedAtEpoch: n.CreatedAtEpoch,
	}
}
