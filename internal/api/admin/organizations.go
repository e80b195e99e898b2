// Package admin implements the platform onboarding endpoints: organizations and their
// API keys. Every route requires a platform admin token (see middleware.AdminAuth);
// tenants never reach this surface with their API keys.
package admin

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"regexp"

	"github.com/gin-gonic/gin"

	"github.com/assessment-platform/assessment-api/internal/api/params"
	"github.com/assessment-platform/assessment-api/internal/api/respond"
	"github.com/assessment-platform/assessment-api/internal/assessment"
	"github.com/assessment-platform/assessment-api/internal/audit"
	"github.com/assessment-platform/assessment-api/internal/crypto"
	"github.com/assessment-platform/assessment-api/internal/db/models"
	"github.com/assessment-platform/assessment-api/internal/db/repositories"
	"github.com/assessment-platform/assessment-api/internal/middleware"
)

// organizationNamePattern is the URL-safe slug accepted as an organization name.
var organizationNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,62}[a-z0-9]$`)

// Auditor receives the audit trail of admin changes.
type Auditor interface {
	Record(ctx context.Context, ev *audit.Event)
}

// OrganizationHandlers handles organization management endpoints
type OrganizationHandlers struct {
	orgRepo *repositories.OrganizationRepository
	cipher  *crypto.SecretCipher
	auditor Auditor
}

// NewOrganizationHandlers creates a new OrganizationHandlers instance. cipher may be
// nil, in which case webhook secrets cannot be generated.
func NewOrganizationHandlers(orgRepo *repositories.OrganizationRepository, cipher *crypto.SecretCipher, auditor Auditor) *OrganizationHandlers {
	return &OrganizationHandlers{orgRepo: orgRepo, cipher: cipher, auditor: auditor}
}

// auditEvent fills the request-scoped fields of an audit event.
func auditEvent(c *gin.Context, action, orgID, resourceType, resourceID string, metadata map[string]any) *audit.Event {
	return &audit.Event{
		Action:         action,
		Actor:          c.GetString(middleware.AdminSubjectKey),
		OrganizationID: orgID,
		ResourceType:   resourceType,
		ResourceID:     resourceID,
		RequestID:      c.GetString(middleware.RequestIDKey),
		IPAddress:      c.ClientIP(),
		Metadata:       metadata,
	}
}

// CreateOrganizationRequest is the body of POST /admin/organizations.
type CreateOrganizationRequest struct {
	Name                  string `json:"name" binding:"required"`
	DisplayName           string `json:"display_name" binding:"required,max=255"`
	MonthlySessionQuota   int    `json:"monthly_session_quota" binding:"min=0"`
	DefaultRateLimit      int    `json:"default_rate_limit" binding:"min=0"`
	GenerateWebhookSecret bool   `json:"generate_webhook_secret"`
}

// UpdateOrganizationRequest is the body of PUT /admin/organizations/:id. Omitted
// fields are left unchanged.
type UpdateOrganizationRequest struct {
	DisplayName         *string `json:"display_name" binding:"omitempty,max=255"`
	MonthlySessionQuota *int    `json:"monthly_session_quota" binding:"omitempty,min=0"`
	DefaultRateLimit    *int    `json:"default_rate_limit" binding:"omitempty,min=0"`
	IsActive            *bool   `json:"is_active"`
	RotateWebhookSecret bool    `json:"rotate_webhook_secret"`
	ClearWebhookSecret  bool    `json:"clear_webhook_secret"`
}

// organizationResponse discloses a freshly generated webhook secret exactly once.
type organizationResponse struct {
	*models.Organization
	HasWebhookSecret bool   `json:"has_webhook_secret"`
	WebhookSecret    string `json:"webhook_secret,omitempty"`
}

func present(org *models.Organization, secret string) organizationResponse {
	return organizationResponse{Organization: org, HasWebhookSecret: org.HasWebhookSecret(), WebhookSecret: secret}
}

// sealNewSecret generates a webhook secret and returns it with its sealed form.
func (h *OrganizationHandlers) sealNewSecret() (plain string, sealed *string, err error) {
	if h.cipher == nil {
		return "", nil, assessment.Validation(assessment.CodeValidation,
			"webhook secrets are unavailable: no encryption key is configured")
	}
	plain, err = crypto.GenerateSecret()
	if err != nil {
		return "", nil, fmt.Errorf("failed to generate webhook secret: %w", err)
	}
	s, err := h.cipher.Seal(plain)
	if err != nil {
		return "", nil, fmt.Errorf("failed to seal webhook secret: %w", err)
	}
	return plain, &s, nil
}

// @Summary      Create organization
// @Description  Onboards a tenant. With generate_webhook_secret the signing secret is returned once and stored sealed.
// @Tags         Admin
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  CreateOrganizationRequest  true  "Organization"
// @Success      201  {object}  map[string]interface{}  "Organization, plus webhook_secret when generated"
// @Failure      400  {object}  map[string]interface{}  "Invalid request or duplicate name"
// @Failure      401  {object}  map[string]interface{}  "Missing or invalid admin token"
// @Router       /admin/organizations [post]
// CreateOrganizationHandler creates a new organization
func (h *OrganizationHandlers) CreateOrganizationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateOrganizationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respond.BadRequest(c, err)
			return
		}
		if !organizationNamePattern.MatchString(req.Name) {
			respond.Error(c, assessment.Validation(assessment.CodeValidation,
				"name must be 3-64 lowercase letters, digits or hyphens"))
			return
		}

		org := &models.Organization{
			Name:                req.Name,
			DisplayName:         req.DisplayName,
			MonthlySessionQuota: req.MonthlySessionQuota,
			DefaultRateLimit:    req.DefaultRateLimit,
		}
		var secret string
		if req.GenerateWebhookSecret {
			plain, sealed, err := h.sealNewSecret()
			if err != nil {
				respond.Error(c, err)
				return
			}
			secret, org.WebhookSecretEncrypted = plain, sealed
		}

		if err := h.orgRepo.Create(c.Request.Context(), org); err != nil {
			if errors.Is(err, repositories.ErrDuplicate) {
				respond.Error(c, assessment.Validation(assessment.CodeDuplicateName,
					fmt.Sprintf("an organization named %q already exists", req.Name)))
				return
			}
			respond.Error(c, err)
			return
		}

		h.auditor.Record(c.Request.Context(), auditEvent(c, audit.ActionOrganizationCreated, org.ID, "organization", org.ID,
			map[string]any{
				"name":                  org.Name,
				"monthly_session_quota": org.MonthlySessionQuota,
				"default_rate_limit":    org.DefaultRateLimit,
				"webhook_secret":        secret != "",
			}))
		c.JSON(http.StatusCreated, present(org, secret))
	}
}

// ListOrganizationsHandler lists organizations ordered by name. ?name= looks up a
// single organization by its slug instead.
// GET /admin/organizations?limit=20&offset=0
func (h *OrganizationHandlers) ListOrganizationsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, offset, err := params.Page(c)
		if err != nil {
			respond.Error(c, err)
			return
		}

		if name := c.Query("name"); name != "" {
			org, err := h.orgRepo.GetByName(c.Request.Context(), name)
			if err != nil {
				respond.Error(c, err)
				return
			}
			out := []organizationResponse{}
			if org != nil {
				out = append(out, present(org, ""))
			}
			c.JSON(http.StatusOK, gin.H{
				"organizations": out,
				"pagination":    gin.H{"limit": limit, "offset": 0, "total": len(out)},
			})
			return
		}

		orgs, total, err := h.orgRepo.List(c.Request.Context(), limit, offset)
		if err != nil {
			respond.Error(c, err)
			return
		}

		out := make([]organizationResponse, len(orgs))
		for i, org := range orgs {
			out[i] = present(org, "")
		}
		c.JSON(http.StatusOK, gin.H{
			"organizations": out,
			"pagination": gin.H{
				"limit":  limit,
				"offset": offset,
				"total":  total,
			},
		})
	}
}

// GetOrganizationHandler retrieves a specific organization by ID
// GET /admin/organizations/:id
func (h *OrganizationHandlers) GetOrganizationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		org, err := h.load(c)
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, present(org, ""))
	}
}

// UpdateOrganizationHandler changes quotas, limits, status or the webhook secret
// PUT /admin/organizations/:id
func (h *OrganizationHandlers) UpdateOrganizationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req UpdateOrganizationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respond.BadRequest(c, err)
			return
		}
		if req.RotateWebhookSecret && req.ClearWebhookSecret {
			respond.Error(c, assessment.Validation(assessment.CodeValidation,
				"rotate_webhook_secret and clear_webhook_secret are mutually exclusive"))
			return
		}

		org, err := h.load(c)
		if err != nil {
			respond.Error(c, err)
			return
		}

		if req.DisplayName != nil {
			org.DisplayName = *req.DisplayName
		}
		if req.MonthlySessionQuota != nil {
			org.MonthlySessionQuota = *req.MonthlySessionQuota
		}
		if req.DefaultRateLimit != nil {
			org.DefaultRateLimit = *req.DefaultRateLimit
		}
		if req.IsActive != nil {
			org.IsActive = *req.IsActive
		}
		var secret string
		switch {
		case req.RotateWebhookSecret:
			plain, sealed, err := h.sealNewSecret()
			if err != nil {
				respond.Error(c, err)
				return
			}
			secret, org.WebhookSecretEncrypted = plain, sealed
		case req.ClearWebhookSecret:
			org.WebhookSecretEncrypted = nil
		}

		if err := h.orgRepo.Update(c.Request.Context(), org); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				respond.Error(c, assessment.NotFound(assessment.CodeNotFound, "organization not found"))
				return
			}
			respond.Error(c, err)
			return
		}

		h.auditor.Record(c.Request.Context(), auditEvent(c, audit.ActionOrganizationUpdated, org.ID, "organization", org.ID,
			map[string]any{
				"monthly_session_quota":  org.MonthlySessionQuota,
				"default_rate_limit":     org.DefaultRateLimit,
				"is_active":              org.IsActive,
				"webhook_secret_rotated": req.RotateWebhookSecret,
				"webhook_secret_cleared": req.ClearWebhookSecret,
			}))
		c.JSON(http.StatusOK, present(org, secret))
	}
}

func (h *OrganizationHandlers) load(c *gin.Context) (*models.Organization, error) {
	id, err := params.UUID(c, "id", assessment.CodeNotFound)
	if err != nil {
		return nil, err
	}
	org, err := h.orgRepo.GetByID(c.Request.Context(), id)
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, assessment.NotFound(assessment.CodeNotFound, "organization not found")
	}
	return org, nil
}
