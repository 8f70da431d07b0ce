// Package models contains domain models for the console worker.
package models

import (
	"database/sql"
	"time"
)

// SessionStatus represents the status of a tracked session.
type SessionStatus string

const (
	SessionStatusActive    SessionStatus = "active"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusFailed    SessionStatus = "failed"
)

// SDKSession represents an assistant session tracked by the console.
type SDKSession struct {
	ID               int64          `db:"id" json:"id"`
	ContentSessionID string         `db:"content_session_id" json:"content_session_id"`
	MemorySessionID  sql.NullString `db:"memory_session_id" json:"memory_session_id,omitempty"`
	Project          string         `db:"project" json:"project"`
	UserPrompt       sql.NullString `db:"user_prompt" json:"user_prompt,omitempty"`
	PromptCounter    int64          `db:"prompt_counter" json:"prompt_counter"`
	Status           SessionStatus  `db:"status" json:"status"`
	StartedAt        string         `db:"started_at" json:"started_at"`
	StartedAtEpoch   int64          `db:"started_at_epoch" json:"started_at_epoch"`
	CompletedAt      sql.NullString `db:"completed_at" json:"completed_at,omitempty"`
	CompletedAtEpoch sql.NullInt64  `db:"completed_at_epoch" json:"completed_at_epoch,omitempty"`
}

// ActiveSession represents an in-memory handle to a session being processed.
// Queue state lives in the database; this only carries identity and activity
// bookkeeping for the stale-session sweep.
type ActiveSession struct {
	SessionDBID      int64
	ContentSessionID string
	Project          string
	UserPrompt       string
	LastPromptNumber int
	StartTime        time.Time
	LastActivity     time.Time
}
