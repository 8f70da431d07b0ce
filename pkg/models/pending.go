package models

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

// MessageType is the kind of work a pending message carries.
type MessageType string

const (
	MessageTypeObservation MessageType = "observation"
	MessageTypeSummarize   MessageType = "summarize"
)

// ParseMessageType validates a raw string against the closed set of types.
func ParseMessageType(s string) (MessageType, error) {
	switch MessageType(s) {
	case MessageTypeObservation, MessageTypeSummarize:
		return MessageType(s), nil
	}
	return "", fmt.Errorf("invalid message type %q", s)
}

// MessageStatus is the processing state of a pending message.
type MessageStatus string

const (
	MessageStatusPending    MessageStatus = "pending"
	MessageStatusProcessing MessageStatus = "processing"
	MessageStatusProcessed  MessageStatus = "processed"
	MessageStatusFailed     MessageStatus = "failed"
)

// ParseMessageStatus validates a raw string against the closed set of statuses.
func ParseMessageStatus(s string) (MessageStatus, error) {
	switch MessageStatus(s) {
	case MessageStatusPending, MessageStatusProcessing, MessageStatusProcessed, MessageStatusFailed:
		return MessageStatus(s), nil
	}
	return "", fmt.Errorf("invalid message status %q", s)
}

// CanTransition reports whether the status state machine allows moving to next.
// Transitions only run forward: pending -> processing -> {processed, failed},
// with processing -> pending as the retry path.
func (s MessageStatus) CanTransition(next MessageStatus) bool {
	switch s {
	case MessageStatusPending:
		return next == MessageStatusProcessing
	case MessageStatusProcessing:
		return next == MessageStatusProcessed || next == MessageStatusFailed || next == MessageStatusPending
	default:
		return false
	}
}

// Terminal reports whether the status admits no further transitions.
func (s MessageStatus) Terminal() bool {
	return s == MessageStatusProcessed || s == MessageStatusFailed
}

// PendingMessage is a queued unit of work awaiting processing.
// Tool payloads are opaque JSON; only the consumer that understands the
// message type deserializes them.
type PendingMessage struct {
	ID                     int64           `db:"id" json:"id"`
	SessionDBID            int64           `db:"session_db_id" json:"session_db_id"`
	ContentSessionID       string          `db:"content_session_id" json:"content_session_id"`
	MessageType            MessageType     `db:"message_type" json:"message_type"`
	ToolName               sql.NullString  `db:"tool_name" json:"tool_name,omitempty"`
	ToolInput              json.RawMessage `db:"tool_input" json:"tool_input,omitempty"`
	ToolResponse           json.RawMessage `db:"tool_response" json:"tool_response,omitempty"`
	CWD                    sql.NullString  `db:"cwd" json:"cwd,omitempty"`
	LastUserMessage        sql.NullString  `db:"last_user_message" json:"last_user_message,omitempty"`
	LastAssistantMessage   sql.NullString  `db:"last_assistant_message" json:"last_assistant_message,omitempty"`
	PromptNumber           sql.NullInt64   `db:"prompt_number" json:"prompt_number,omitempty"`
	Status                 MessageStatus   `db:"status" json:"status"`
	RetryCount             int             `db:"retry_count" json:"retry_count"`
	CreatedAtEpoch         sql.NullInt64   `db:"created_at_epoch" json:"created_at_epoch,omitempty"`
	StartedProcessingEpoch sql.NullInt64   `db:"started_processing_at_epoch" json:"started_processing_at_epoch,omitempty"`
	CompletedAtEpoch       sql.NullInt64   `db:"completed_at_epoch" json:"completed_at_epoch,omitempty"`
	FailedAtEpoch          sql.NullInt64   `db:"failed_at_epoch" json:"failed_at_epoch,omitempty"`
}
