// api_key_repository.go implements APIKeyRepository, providing database queries for API key
// lookup by prefix, issuance, soft revocation and usage accounting.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/assessment-platform/assessment-api/internal/db/models"
	"github.com/jmoiron/sqlx"
)

const apiKeyColumns = `id, organization_id, name, description, key_hash, key_prefix, rate_limit_per_minute,
	is_active, usage_count, expires_at, last_used_at, revoked_at, created_at`

// APIKeyRepository handles API key database operations
type APIKeyRepository struct {
	db *sqlx.DB
}

// NewAPIKeyRepository creates a new APIKeyRepository
func NewAPIKeyRepository(db *sqlx.DB) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

// Create stores a new API key. Only the hash and display prefix are persisted.
func (r *APIKeyRepository) Create(ctx context.Context, key *models.APIKey) error {
	query := `
		INSERT INTO api_keys (organization_id, name, description, key_hash, key_prefix, rate_limit_per_minute, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, is_active, created_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		key.OrganizationID,
		key.Name,
		key.Description,
		key.KeyHash,
		key.KeyPrefix,
		key.RateLimitPerMinute,
		key.ExpiresAt,
	).Scan(&key.ID, &key.IsActive, &key.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create API key: %w", err)
	}
	return nil
}

// GetActiveByPrefix returns the active keys of active organizations sharing a display prefix.
// Callers must still bcrypt-compare each candidate.
func (r *APIKeyRepository) GetActiveByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	query := `
		SELECT k.id, k.organization_id, k.name, k.description, k.key_hash, k.key_prefix, k.rate_limit_per_minute,
		       k.is_active, k.usage_count, k.expires_at, k.last_used_at, k.revoked_at, k.created_at
		FROM api_keys k
		JOIN organizations o ON o.id = k.organization_id
		WHERE k.key_prefix = $1 AND k.is_active AND k.revoked_at IS NULL AND o.is_active
	`
	keys := []*models.APIKey{}
	if err := r.db.SelectContext(ctx, &keys, query, prefix); err != nil {
		return nil, fmt.Errorf("failed to look up API keys: %w", err)
	}
	return keys, nil
}

// GetByID retrieves an API key by ID
func (r *APIKeyRepository) GetByID(ctx context.Context, id string) (*models.APIKey, error) {
	key := &models.APIKey{}
	err := r.db.GetContext(ctx, key, `SELECT `+apiKeyColumns+` FROM api_keys WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get API key: %w", err)
	}
	return key, nil
}

// ListByOrganization returns every key of an organization, newest first.
func (r *APIKeyRepository) ListByOrganization(ctx context.Context, orgID string) ([]*models.APIKey, error) {
	keys := []*models.APIKey{}
	err := r.db.SelectContext(ctx, &keys,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE organization_id = $1 ORDER BY created_at DESC`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list API keys: %w", err)
	}
	return keys, nil
}

// Deactivate soft-revokes a key. It reports false when no active key matched.
func (r *APIKeyRepository) Deactivate(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE api_keys SET is_active = FALSE, revoked_at = now() WHERE id = $1 AND is_active`, id)
	if err != nil {
		return false, fmt.Errorf("failed to deactivate API key: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to deactivate API key: %w", err)
	}
	return n > 0, nil
}

// RecordUse increments the cumulative usage counter and stamps last_used_at.
func (r *APIKeyRepository) RecordUse(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE api_keys SET usage_count = usage_count + 1, last_used_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to record API key use: %w", err)
	}
	return nil
}
