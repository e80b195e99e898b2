// Package models - organization.go defines the Organization model: the tenant that owns
// API keys, assessment templates and session quotas.
package models

import "time"

// Organization represents an API consumer (tenant)
type Organization struct {
	ID          string `db:"id" json:"id"`
	Name        string `db:"name" json:"name"` // URL-safe slug, immutable
	DisplayName string `db:"display_name" json:"display_name"`
	// WebhookSecretEncrypted is the AES-GCM sealed HMAC secret used to sign webhooks.
	WebhookSecretEncrypted *string `db:"webhook_secret_encrypted" json:"-"`
	// MonthlySessionQuota caps sessions created per calendar month; 0 means unlimited.
	MonthlySessionQuota int       `db:"monthly_session_quota" json:"monthly_session_quota"`
	DefaultRateLimit    int       `db:"default_rate_limit" json:"default_rate_limit"`
	IsActive            bool      `db:"is_active" json:"is_active"`
	CreatedAt           time.Time `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time `db:"updated_at" json:"updated_at"`
}

// HasWebhookSecret reports whether outbound webhooks for this organization are signed.
func (o *Organization) HasWebhookSecret() bool {
	return o.WebhookSecretEncrypted != nil && *o.WebhookSecretEncrypted != ""
}
