// Package models - session.go defines AssessmentSession, the durable record of one
// end user's pass through a template, plus the responses collected against it.
package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// Derived session states. None of them is stored; see AssessmentSession.State.
const (
	SessionStateCreated   = "created"
	SessionStateActive    = "active"
	SessionStatePaused    = "paused"
	SessionStateExpired   = "expired"
	SessionStateCompleted = "completed"
)

// AssessmentSession is identified externally by its opaque SessionToken.
// Sessions are never deleted, only marked inactive or completed.
type AssessmentSession struct {
	ID                   string       `db:"id" json:"session_id"`
	OrganizationID       string       `db:"organization_id" json:"organization_id"`
	APIKeyID             *string      `db:"api_key_id" json:"-"`
	ExternalUserID       string       `db:"external_user_id" json:"external_user_id"`
	TemplateID           string       `db:"template_id" json:"template_id"`
	SessionToken         string       `db:"session_token" json:"-"`
	IsActive             bool         `db:"is_active" json:"is_active"`
	CurrentQuestionIndex int          `db:"current_question_index" json:"current_question_index"`
	ProgressData         ProgressData `db:"progress_data" json:"progress_data"`
	ClientMetadata       JSONMap      `db:"client_metadata" json:"client_metadata"`
	CallbackURL          *string      `db:"callback_url" json:"callback_url,omitempty"`
	WebhookURL           *string      `db:"webhook_url" json:"webhook_url,omitempty"`
	ReturnURL            *string      `db:"return_url" json:"return_url,omitempty"`
	CreatedAt            time.Time    `db:"created_at" json:"created_at"`
	StartedAt            *time.Time   `db:"started_at" json:"started_at,omitempty"`
	CompletedAt          *time.Time   `db:"completed_at" json:"completed_at,omitempty"`
	ExpiresAt            time.Time    `db:"expires_at" json:"expires_at"`
	LastActivityAt       time.Time    `db:"last_activity_at" json:"last_activity_at"`
	PausedAt             *time.Time   `db:"paused_at" json:"paused_at,omitempty"`
	TemplateVersion      int          `db:"template_version" json:"template_version"`
}

// IsCompleted reports whether the session has been finalized.
func (s *AssessmentSession) IsCompleted() bool {
	return s.CompletedAt != nil
}

// IsExpired reports whether now is at or past expires_at. Paused sessions do not expire.
func (s *AssessmentSession) IsExpired(now time.Time) bool {
	if s.PausedAt != nil {
		return false
	}
	return !now.Before(s.ExpiresAt)
}

// State derives the lifecycle state at now.
func (s *AssessmentSession) State(now time.Time) string {
	switch {
	case s.IsCompleted():
		return SessionStateCompleted
	case s.PausedAt != nil:
		return SessionStatePaused
	case !s.IsActive || s.IsExpired(now):
		return SessionStateExpired
	case s.StartedAt == nil:
		return SessionStateCreated
	default:
		return SessionStateActive
	}
}

// ProgressData is the structured progress document kept on a session.
type ProgressData struct {
	ResponsesCount int        `json:"responses_count"`
	LastResponseAt *time.Time `json:"last_response_at,omitempty"`
	Extensions     int        `json:"extensions"`
	Recoveries     int        `json:"recoveries"`
}

// Value implements driver.Valuer.
func (p ProgressData) Value() (driver.Value, error) {
	return json.Marshal(p)
}

// Scan implements sql.Scanner.
func (p *ProgressData) Scan(src any) error {
	return scanJSON(src, p)
}

// AssessmentResponse is one answer to one question of a session. Append-only.
type AssessmentResponse struct {
	ID         string          `db:"id" json:"response_id"`
	SessionID  string          `db:"session_id" json:"session_id"`
	QuestionID string          `db:"question_id" json:"question_id"`
	Answer     json.RawMessage `db:"answer" json:"answer"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
}
