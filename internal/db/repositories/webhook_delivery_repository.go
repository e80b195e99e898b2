// webhook_delivery_repository.go implements WebhookDeliveryRepository, the append-only
// record of outbound completion webhooks.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/assessment-platform/assessment-api/internal/db/models"
	"github.com/jmoiron/sqlx"
)

// WebhookDeliveryRepository handles database operations for webhook deliveries
type WebhookDeliveryRepository struct {
	db *sqlx.DB
}

// NewWebhookDeliveryRepository creates a new webhook delivery repository
func NewWebhookDeliveryRepository(db *sqlx.DB) *WebhookDeliveryRepository {
	return &WebhookDeliveryRepository{db: db}
}

// Record appends one delivery attempt.
func (r *WebhookDeliveryRepository) Record(ctx context.Context, d *models.WebhookDelivery) error {
	err := r.db.QueryRowxContext(ctx, `
		INSERT INTO webhook_deliveries (session_id, result_id, url, status_code, success, error, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, attempted_at
	`, d.SessionID, d.ResultID, d.URL, d.StatusCode, d.Success, d.Error, d.DurationMs).Scan(&d.ID, &d.AttemptedAt)
	if err != nil {
		return fmt.Errorf("failed to record webhook delivery: %w", err)
	}
	return nil
}

// LatestForSession returns the most recent attempt for a session, or nil.
func (r *WebhookDeliveryRepository) LatestForSession(ctx context.Context, sessionID string) (*models.WebhookDelivery, error) {
	d := &models.WebhookDelivery{}
	err := r.db.GetContext(ctx, d, `
		SELECT id, session_id, result_id, url, status_code, success, error, duration_ms, attempted_at
		FROM webhook_deliveries
		WHERE session_id = $1
		ORDER BY attempted_at DESC
		LIMIT 1
	`, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get webhook delivery: %w", err)
	}
	return d, nil
}
