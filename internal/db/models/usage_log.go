// Package models - usage_log.go defines the append-only request log and the
// aggregate shape read back from it.
package models

import "time"

// UsageLog is one inbound request. Rows are never updated.
type UsageLog struct {
	ID             int64     `db:"id" json:"id"`
	OrganizationID *string   `db:"organization_id" json:"organization_id,omitempty"`
	APIKeyID       *string   `db:"api_key_id" json:"api_key_id,omitempty"`
	RequestID      string    `db:"request_id" json:"request_id"`
	Method         string    `db:"method" json:"method"`
	Endpoint       string    `db:"endpoint" json:"endpoint"`
	StatusCode     int       `db:"status_code" json:"status_code"`
	LatencyMs      int64     `db:"latency_ms" json:"latency_ms"`
	ClientIP       string    `db:"client_ip" json:"client_ip"`
	Metadata       JSONMap   `db:"metadata" json:"metadata,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// UsageBucket is one time bucket of aggregated usage for an organization.
type UsageBucket struct {
	Bucket       time.Time `db:"bucket" json:"bucket"`
	Requests     int64     `db:"requests" json:"requests"`
	Errors       int64     `db:"errors" json:"errors"`
	RateLimited  int64     `db:"rate_limited" json:"rate_limited"`
	AvgLatencyMs float64   `db:"avg_latency_ms" json:"avg_latency_ms"`
}
