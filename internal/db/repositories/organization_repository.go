// organization_repository.go implements OrganizationRepository, providing database queries
// for tenant onboarding, lookup and quota configuration.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/assessment-platform/assessment-api/internal/db/models"
	"github.com/jmoiron/sqlx"
)

const organizationColumns = `id, name, display_name, webhook_secret_encrypted, monthly_session_quota,
	default_rate_limit, is_active, created_at, updated_at`

// OrganizationRepository handles database operations for organizations
type OrganizationRepository struct {
	db *sqlx.DB
}

// NewOrganizationRepository creates a new organization repository
func NewOrganizationRepository(db *sqlx.DB) *OrganizationRepository {
	return &OrganizationRepository{db: db}
}

// Create inserts a new organization and fills in its generated fields.
func (r *OrganizationRepository) Create(ctx context.Context, org *models.Organization) error {
	query := `
		INSERT INTO organizations (name, display_name, webhook_secret_encrypted, monthly_session_quota, default_rate_limit, is_active)
		VALUES ($1, $2, $3, $4, $5, TRUE)
		RETURNING id, is_active, created_at, updated_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		org.Name,
		org.DisplayName,
		org.WebhookSecretEncrypted,
		org.MonthlySessionQuota,
		org.DefaultRateLimit,
	).Scan(&org.ID, &org.IsActive, &org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create organization: %w", err)
	}
	return nil
}

// GetByID retrieves an organization by ID
func (r *OrganizationRepository) GetByID(ctx context.Context, id string) (*models.Organization, error) {
	org := &models.Organization{}
	err := r.db.GetContext(ctx, org, `SELECT `+organizationColumns+` FROM organizations WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	return org, nil
}

// GetByName retrieves an organization by its slug
func (r *OrganizationRepository) GetByName(ctx context.Context, name string) (*models.Organization, error) {
	org := &models.Organization{}
	err := r.db.GetContext(ctx, org, `SELECT `+organizationColumns+` FROM organizations WHERE name = $1`, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	return org, nil
}

// List returns a page of organizations ordered by name together with the total count.
func (r *OrganizationRepository) List(ctx context.Context, limit, offset int) ([]*models.Organization, int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM organizations`); err != nil {
		return nil, 0, fmt.Errorf("failed to count organizations: %w", err)
	}

	orgs := []*models.Organization{}
	err := r.db.SelectContext(ctx, &orgs,
		`SELECT `+organizationColumns+` FROM organizations ORDER BY name LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list organizations: %w", err)
	}
	return orgs, total, nil
}

// Update persists the mutable settings of an organization. The name is immutable.
func (r *OrganizationRepository) Update(ctx context.Context, org *models.Organization) error {
	query := `
		UPDATE organizations
		SET display_name = $2, webhook_secret_encrypted = $3, monthly_session_quota = $4,
		    default_rate_limit = $5, is_active = $6, updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		org.ID,
		org.DisplayName,
		org.WebhookSecretEncrypted,
		org.MonthlySessionQuota,
		org.DefaultRateLimit,
		org.IsActive,
	).Scan(&org.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return sql.ErrNoRows
		}
		return fmt.Errorf("failed to update organization: %w", err)
	}
	return nil
}
