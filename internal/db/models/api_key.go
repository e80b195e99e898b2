package models

import "time"

// APIKey represents an organization's API credential. Only the bcrypt hash is stored.
type APIKey struct {
	ID                 string     `db:"id" json:"id"`
	OrganizationID     string     `db:"organization_id" json:"organization_id"`
	Name               string     `db:"name" json:"name"`               // Friendly name (e.g., "Production LMS")
	Description        *string    `db:"description" json:"description"` // Optional human-friendly description
	KeyHash            string     `db:"key_hash" json:"-"`              // Bcrypt hash of the full key
	KeyPrefix          string     `db:"key_prefix" json:"key_prefix"`   // First 10 chars, used for lookup and display
	RateLimitPerMinute int        `db:"rate_limit_per_minute" json:"rate_limit_per_minute"`
	IsActive           bool       `db:"is_active" json:"is_active"`
	UsageCount         int64      `db:"usage_count" json:"usage_count"`
	ExpiresAt          *time.Time `db:"expires_at" json:"expires_at,omitempty"`
	LastUsedAt         *time.Time `db:"last_used_at" json:"last_used_at,omitempty"`
	RevokedAt          *time.Time `db:"revoked_at" json:"revoked_at,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
}

// IsUsable reports whether the key may authenticate a request at now.
func (k *APIKey) IsUsable(now time.Time) bool {
	if !k.IsActive || k.RevokedAt != nil {
		return false
	}
	return k.ExpiresAt == nil || now.Before(*k.ExpiresAt)
}
