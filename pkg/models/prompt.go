package models

// UserPrompt represents a single user prompt within a session.
type UserPrompt struct {
	ID               int64  `db:"id" json:"id"`
	ContentSessionID string `db:"content_session_id" json:"content_session_id"`
	PromptNumber     int    `db:"prompt_number" json:"prompt_number"`
	PromptText       string `db:"prompt_text" json:"prompt_text"`
	CreatedAt        string `db:"created_at" json:"created_at"`
	CreatedAtEpoch   int64  `db:"created_at_epoch" json:"created_at_epoch"`
}
