// template_repository.go implements TemplateRepository, providing database queries for
// organization-scoped assessment templates including default selection and versioning.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/assessment-platform/assessment-api/internal/db"
	"github.com/assessment-platform/assessment-api/internal/db/models"
	"github.com/jmoiron/sqlx"
)

const templateColumns = `id, organization_id, name, description, version, is_default, is_active, questions,
	scoring_logic, branding, languages, session_timeout_minutes, retry_policy, page_size, created_at, updated_at`

// TemplateRepository handles database operations for assessment templates
type TemplateRepository struct {
	db *sqlx.DB
}

// NewTemplateRepository creates a new template repository
func NewTemplateRepository(db *sqlx.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

// Create inserts a template. When it is the default, any previous default of the
// organization is cleared in the same transaction.
func (r *TemplateRepository) Create(ctx context.Context, tpl *models.AssessmentTemplate) error {
	return db.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if tpl.IsDefault {
			if err := clearDefault(ctx, tx, tpl.OrganizationID, ""); err != nil {
				return err
			}
		}
		query := `
			INSERT INTO assessment_templates (organization_id, name, description, version, is_default, is_active,
				questions, scoring_logic, branding, languages, session_timeout_minutes, retry_policy, page_size)
			VALUES ($1, $2, $3, 1, $4, TRUE, $5, $6, $7, $8, $9, $10, $11)
			RETURNING id, version, is_active, created_at, updated_at
		`
		err := tx.QueryRowxContext(ctx, query,
			tpl.OrganizationID,
			tpl.Name,
			tpl.Description,
			tpl.IsDefault,
			tpl.Questions,
			tpl.ScoringLogic,
			tpl.Branding,
			tpl.Languages,
			tpl.SessionTimeoutMinutes,
			tpl.RetryPolicy,
			tpl.PageSize,
		).Scan(&tpl.ID, &tpl.Version, &tpl.IsActive, &tpl.CreatedAt, &tpl.UpdatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicate
			}
			return fmt.Errorf("failed to create template: %w", err)
		}
		return recordVersion(ctx, tx, tpl)
	})
}

// Update replaces the content of an active template and bumps its version. It returns
// sql.ErrNoRows when the template does not exist or has been deactivated.
func (r *TemplateRepository) Update(ctx context.Context, tpl *models.AssessmentTemplate) error {
	return db.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if tpl.IsDefault {
			if err := clearDefault(ctx, tx, tpl.OrganizationID, tpl.ID); err != nil {
				return err
			}
		}
		query := `
			UPDATE assessment_templates
			SET description = $3, is_default = $4, questions = $5, scoring_logic = $6, branding = $7,
			    languages = $8, session_timeout_minutes = $9, retry_policy = $10, page_size = $11,
			    version = version + 1, updated_at = now()
			WHERE id = $1 AND organization_id = $2 AND is_active
			RETURNING version, is_active, updated_at
		`
		err := tx.QueryRowxContext(ctx, query,
			tpl.ID,
			tpl.OrganizationID,
			tpl.Description,
			tpl.IsDefault,
			tpl.Questions,
			tpl.ScoringLogic,
			tpl.Branding,
			tpl.Languages,
			tpl.SessionTimeoutMinutes,
			tpl.RetryPolicy,
			tpl.PageSize,
		).Scan(&tpl.Version, &tpl.IsActive, &tpl.UpdatedAt)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return sql.ErrNoRows
			}
			if isUniqueViolation(err) {
				return ErrDuplicate
			}
			return fmt.Errorf("failed to update template: %w", err)
		}
		return recordVersion(ctx, tx, tpl)
	})
}

// recordVersion freezes the questions and scoring logic of tpl at its current version.
func recordVersion(ctx context.Context, tx *sqlx.Tx, tpl *models.AssessmentTemplate) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO assessment_template_versions (template_id, version, questions, scoring_logic)
		VALUES ($1, $2, $3, $4)
	`, tpl.ID, tpl.Version, tpl.Questions, tpl.ScoringLogic)
	if err != nil {
		return fmt.Errorf("failed to record template version: %w", err)
	}
	return nil
}

// GetVersion returns the frozen content of one template version, or nil.
func (r *TemplateRepository) GetVersion(ctx context.Context, templateID string, version int) (*models.TemplateVersion, error) {
	v := &models.TemplateVersion{}
	err := r.db.GetContext(ctx, v, `
		SELECT template_id, version, questions, scoring_logic, created_at
		FROM assessment_template_versions
		WHERE template_id = $1 AND version = $2
	`, templateID, version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get template version: %w", err)
	}
	return v, nil
}

func clearDefault(ctx context.Context, tx *sqlx.Tx, orgID, exceptID string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE assessment_templates SET is_default = FALSE, updated_at = now()
		WHERE organization_id = $1 AND is_default AND id::text <> $2
	`, orgID, exceptID)
	if err != nil {
		return fmt.Errorf("failed to clear default template: %w", err)
	}
	return nil
}

// GetByID retrieves a template of an organization by ID, active or not.
func (r *TemplateRepository) GetByID(ctx context.Context, orgID, id string) (*models.AssessmentTemplate, error) {
	return r.getOne(ctx, `SELECT `+templateColumns+` FROM assessment_templates
		WHERE organization_id = $1 AND id = $2`, orgID, id)
}

// GetActiveByName retrieves an active template by its per-organization name.
func (r *TemplateRepository) GetActiveByName(ctx context.Context, orgID, name string) (*models.AssessmentTemplate, error) {
	return r.getOne(ctx, `SELECT `+templateColumns+` FROM assessment_templates
		WHERE organization_id = $1 AND name = $2 AND is_active`, orgID, name)
}

// GetDefault retrieves the active default template of an organization.
func (r *TemplateRepository) GetDefault(ctx context.Context, orgID string) (*models.AssessmentTemplate, error) {
	return r.getOne(ctx, `SELECT `+templateColumns+` FROM assessment_templates
		WHERE organization_id = $1 AND is_default AND is_active`, orgID)
}

func (r *TemplateRepository) getOne(ctx context.Context, query string, args ...interface{}) (*models.AssessmentTemplate, error) {
	tpl := &models.AssessmentTemplate{}
	if err := r.db.GetContext(ctx, tpl, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get template: %w", err)
	}
	return tpl, nil
}

// List returns the templates of an organization ordered by name.
func (r *TemplateRepository) List(ctx context.Context, orgID string, includeInactive bool) ([]*models.AssessmentTemplate, error) {
	query := `SELECT ` + templateColumns + ` FROM assessment_templates WHERE organization_id = $1`
	if !includeInactive {
		query += ` AND is_active`
	}
	query += ` ORDER BY name`

	templates := []*models.AssessmentTemplate{}
	if err := r.db.SelectContext(ctx, &templates, query, orgID); err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	return templates, nil
}

// Deactivate retires a template. Existing sessions keep referencing it.
func (r *TemplateRepository) Deactivate(ctx context.Context, orgID, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE assessment_templates SET is_active = FALSE, is_default = FALSE, updated_at = now()
		WHERE organization_id = $1 AND id = $2 AND is_active
	`, orgID, id)
	if err != nil {
		return false, fmt.Errorf("failed to deactivate template: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to deactivate template: %w", err)
	}
	return n > 0, nil
}
