package assessment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/assessment-platform/assessment-api/internal/db/models"
	"github.com/assessment-platform/assessment-api/internal/db/repositories"
	"github.com/assessment-platform/assessment-api/internal/scoring"
	"github.com/assessment-platform/assessment-api/internal/validation"
)

// TemplateRequest is the body of POST /templates and PUT /templates/:id.
// Name is ignored on update.
type TemplateRequest struct {
	Name                  string                  `json:"name" binding:"max=128"`
	Description           *string                 `json:"description"`
	IsDefault             bool                    `json:"is_default"`
	Questions             models.QuestionSections `json:"questions" binding:"required"`
	ScoringLogic          models.ScoringLogic     `json:"scoring_logic"`
	Branding              models.JSONMap          `json:"branding"`
	Languages             models.StringList       `json:"languages"`
	SessionTimeoutMinutes *int                    `json:"session_timeout_minutes"`
	RetryPolicy           models.JSONMap          `json:"retry_policy"`
	PageSize              *int                    `json:"page_size"`
}

var questionTypes = map[string]bool{
	models.QuestionTypeSingleChoice:   true,
	models.QuestionTypeMultipleChoice: true,
	models.QuestionTypeScale:          true,
	models.QuestionTypeText:           true,
}

// ValidateTemplate checks a template configuration before it is stored. It returns a
// KindValidation *Error describing the first problem found.
func ValidateTemplate(req *TemplateRequest) error {
	invalid := func(format string, args ...any) error {
		return Validation(CodeInvalidTemplate, fmt.Sprintf(format, args...))
	}

	if req.Questions.Total() == 0 {
		return invalid("template must contain at least one question")
	}
	seen := map[string]bool{}
	for _, q := range req.Questions.Flatten() {
		if q.ID == "" {
			return invalid("every question needs an id")
		}
		if seen[q.ID] {
			return invalid("question id %q is used more than once", q.ID)
		}
		seen[q.ID] = true
		if !questionTypes[q.Type] {
			return invalid("question %s has unsupported type %q", q.ID, q.Type)
		}
		if (q.Type == models.QuestionTypeSingleChoice || q.Type == models.QuestionTypeMultipleChoice) && len(q.Options) == 0 {
			return invalid("choice question %s has no options", q.ID)
		}
		if q.Min != nil && q.Max != nil && *q.Min > *q.Max {
			return invalid("question %s has min greater than max", q.ID)
		}
	}

	if req.ScoringLogic.Strategy == "" {
		req.ScoringLogic.Strategy = models.StrategyWeighted
	}
	strategy, err := scoring.Lookup(req.ScoringLogic.Strategy)
	if err != nil {
		return invalid("%v", err)
	}
	if err := strategy.Validate(req.Questions, req.ScoringLogic); err != nil {
		return invalid("%v", err)
	}
	if c := req.ScoringLogic.EngineConstraint; c != "" {
		if err := validation.ValidateConstraint(c); err != nil {
			return invalid("%v", err)
		}
		if err := scoring.CheckEngine(c); err != nil {
			return invalid("%v", err)
		}
	}

	if req.SessionTimeoutMinutes != nil && *req.SessionTimeoutMinutes < 1 {
		return invalid("session_timeout_minutes must be at least 1")
	}
	if req.PageSize != nil && *req.PageSize < 1 {
		return invalid("page_size must be at least 1")
	}
	return nil
}

func (req *TemplateRequest) apply(tpl *models.AssessmentTemplate) {
	tpl.Description = req.Description
	tpl.IsDefault = req.IsDefault
	tpl.Questions = req.Questions
	tpl.ScoringLogic = req.ScoringLogic
	tpl.Branding = req.Branding
	tpl.Languages = req.Languages
	tpl.SessionTimeoutMinutes = req.SessionTimeoutMinutes
	tpl.RetryPolicy = req.RetryPolicy
	tpl.PageSize = req.PageSize
	if tpl.Branding == nil {
		tpl.Branding = models.JSONMap{}
	}
	if tpl.RetryPolicy == nil {
		tpl.RetryPolicy = models.JSONMap{}
	}
	if tpl.Languages == nil {
		tpl.Languages = models.StringList{"en"}
	}
}

// ListTemplates returns the organization's templates.
func (s *Service) ListTemplates(ctx context.Context, orgID string, includeInactive bool) ([]*models.AssessmentTemplate, error) {
	return s.templates.List(ctx, orgID, includeInactive)
}

// GetTemplate returns one of the organization's templates.
func (s *Service) GetTemplate(ctx context.Context, orgID, id string) (*models.AssessmentTemplate, error) {
	tpl, err := s.templates.GetByID(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if tpl == nil {
		return nil, NotFound(CodeNotFound, "template not found")
	}
	return tpl, nil
}

// CreateTemplate validates and stores a new template at version 1.
func (s *Service) CreateTemplate(ctx context.Context, orgID string, req *TemplateRequest) (*models.AssessmentTemplate, error) {
	if req.Name == "" {
		return nil, Validation(CodeValidation, "name is required")
	}
	if err := ValidateTemplate(req); err != nil {
		return nil, err
	}
	tpl := &models.AssessmentTemplate{OrganizationID: orgID, Name: req.Name}
	req.apply(tpl)

	if err := s.templates.Create(ctx, tpl); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, Validation(CodeDuplicateName, fmt.Sprintf("a template named %q already exists", req.Name))
		}
		return nil, err
	}
	slog.InfoContext(ctx, "template created", "template_id", tpl.ID, "organization_id", orgID, "default", tpl.IsDefault)
	return tpl, nil
}

// UpdateTemplate replaces a template's configuration and increments its version.
// Sessions already running keep the version they were created from. A deactivated
// template cannot be updated.
func (s *Service) UpdateTemplate(ctx context.Context, orgID, id string, req *TemplateRequest) (*models.AssessmentTemplate, error) {
	tpl, err := s.GetTemplate(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if !tpl.IsActive {
		return nil, NotFound(CodeNotFound, "template not found")
	}
	if err := ValidateTemplate(req); err != nil {
		return nil, err
	}
	req.apply(tpl)

	if err := s.templates.Update(ctx, tpl); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NotFound(CodeNotFound, "template not found")
		}
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, Validation(CodeDuplicateName, "another template is already the default")
		}
		return nil, err
	}
	slog.InfoContext(ctx, "template updated", "template_id", tpl.ID, "version", tpl.Version)
	return tpl, nil
}

// DeleteTemplate deactivates a template. Sessions created from it keep working.
func (s *Service) DeleteTemplate(ctx context.Context, orgID, id string) error {
	ok, err := s.templates.Deactivate(ctx, orgID, id)
	if err != nil {
		return err
	}
	if !ok {
		return NotFound(CodeNotFound, "template not found")
	}
	slog.InfoContext(ctx, "template deactivated", "template_id", id, "organization_id", orgID)
	return nil
}
