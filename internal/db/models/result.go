// Package models - result.go defines the persisted outcome of a completed session:
// the scored result, its ranked recommendations and webhook delivery attempts.
package models

import "time"

// AssessmentResult is keyed by SessionID; at most one exists per session.
// Forced recomputation bumps Revision in place.
type AssessmentResult struct {
	ID               string    `db:"id" json:"assessment_id"`
	SessionID        string    `db:"session_id" json:"session_id"`
	OrganizationID   string    `db:"organization_id" json:"organization_id"`
	Strategy         string    `db:"strategy" json:"strategy"`
	Profile          string    `db:"profile" json:"profile"`
	Scores           ScoreMap  `db:"scores" json:"scores"`
	ResponsesCount   int       `db:"responses_count" json:"responses_count"`
	RequiredCount    int       `db:"required_count" json:"required_count"`
	AnsweredRequired int       `db:"answered_required" json:"answered_required"`
	CompletionRate   float64   `db:"completion_rate" json:"completion_rate"`
	Revision         int       `db:"revision" json:"revision"`
	ComputedAt       time.Time `db:"computed_at" json:"computed_at"`
	ArchiveKey       *string   `db:"archive_key" json:"archive_key,omitempty"`
}

// CareerRecommendation is one ranked recommendation of a result revision. Immutable.
type CareerRecommendation struct {
	ID          string    `db:"id" json:"id"`
	ResultID    string    `db:"result_id" json:"-"`
	Revision    int       `db:"revision" json:"-"`
	Rank        int       `db:"rank" json:"rank"`
	Title       string    `db:"title" json:"title"`
	Description string    `db:"description" json:"description,omitempty"`
	MatchScore  float64   `db:"match_score" json:"match_score"`
	Attributes  JSONMap   `db:"attributes" json:"attributes,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"-"`
}

// WebhookDelivery records one outbound completion webhook attempt.
type WebhookDelivery struct {
	ID          string    `db:"id" json:"id"`
	SessionID   string    `db:"session_id" json:"session_id"`
	ResultID    *string   `db:"result_id" json:"result_id,omitempty"`
	URL         string    `db:"url" json:"url"`
	StatusCode  *int      `db:"status_code" json:"status_code,omitempty"`
	Success     bool      `db:"success" json:"success"`
	Error       *string   `db:"error" json:"error,omitempty"`
	DurationMs  int64     `db:"duration_ms" json:"duration_ms"`
	AttemptedAt time.Time `db:"attempted_at" json:"attempted_at"`
}

// ResultSummary is a listing row joining a session with its (optional) result.
type ResultSummary struct {
	SessionID      string     `db:"session_id" json:"session_id"`
	ExternalUserID string     `db:"external_user_id" json:"external_user_id"`
	TemplateID     string     `db:"template_id" json:"template_id"`
	IsActive       bool       `db:"is_active" json:"is_active"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	ExpiresAt      time.Time  `db:"expires_at" json:"expires_at"`
	CompletedAt    *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	AssessmentID   *string    `db:"assessment_id" json:"assessment_id,omitempty"`
	Profile        *string    `db:"profile" json:"profile,omitempty"`
	CompletionRate *float64   `db:"completion_rate" json:"completion_rate,omitempty"`
}

// ResultAnalytics aggregates sessions and results of one organization over a period.
type ResultAnalytics struct {
	TotalSessions         int64            `json:"total_sessions"`
	CompletedSessions     int64            `json:"completed_sessions"`
	ActiveSessions        int64            `json:"active_sessions"`
	ExpiredSessions       int64            `json:"expired_sessions"`
	CompletionRate        float64          `json:"completion_rate"`
	AvgDurationMinutes    float64          `json:"avg_duration_minutes"`
	AvgCompletionRate     float64          `json:"avg_result_completion_rate"`
	ProfileDistribution   map[string]int64 `json:"profile_distribution"`
	WebhookDeliveryRate   float64          `json:"webhook_delivery_rate"`
	WebhookAttemptedCount int64            `json:"webhook_attempted"`
}
