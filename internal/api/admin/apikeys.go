package admin

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/assessment-platform/assessment-api/internal/api/params"
	"github.com/assessment-platform/assessment-api/internal/api/respond"
	"github.com/assessment-platform/assessment-api/internal/assessment"
	"github.com/assessment-platform/assessment-api/internal/audit"
	"github.com/assessment-platform/assessment-api/internal/auth"
	"github.com/assessment-platform/assessment-api/internal/db/models"
	"github.com/assessment-platform/assessment-api/internal/db/repositories"
)

// APIKeyHandlers handles API key management endpoints
type APIKeyHandlers struct {
	apiKeyRepo *repositories.APIKeyRepository
	orgRepo    *repositories.OrganizationRepository
	keyPrefix  string
	auditor    Auditor
	now        func() time.Time
}

// NewAPIKeyHandlers creates a new APIKeyHandlers instance. keyPrefix is prepended to
// generated keys and defaults to auth.DefaultKeyPrefix.
func NewAPIKeyHandlers(apiKeyRepo *repositories.APIKeyRepository, orgRepo *repositories.OrganizationRepository,
	keyPrefix string, auditor Auditor) *APIKeyHandlers {
	if keyPrefix == "" {
		keyPrefix = auth.DefaultKeyPrefix
	}
	return &APIKeyHandlers{apiKeyRepo: apiKeyRepo, orgRepo: orgRepo, keyPrefix: keyPrefix, auditor: auditor, now: time.Now}
}

// CreateAPIKeyRequest represents the request to create a new API key
type CreateAPIKeyRequest struct {
	Name               string     `json:"name" binding:"required,max=255"`
	Description        *string    `json:"description"`
	RateLimitPerMinute int        `json:"rate_limit_per_minute" binding:"min=0"`
	ExpiresAt          *time.Time `json:"expires_at"`
}

// CreateAPIKeyResponse represents the response when creating an API key
type CreateAPIKeyResponse struct {
	*models.APIKey
	Key string `json:"key"` // Only returned once during creation
}

// @Summary      Create API key
// @Description  Issues a tenant API key. The full key is returned once; only its bcrypt hash and 10-character prefix are stored.
// @Tags         Admin
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string               true  "Organization ID"
// @Param        body  body  CreateAPIKeyRequest  true  "API key"
// @Success      201  {object}  CreateAPIKeyResponse
// @Failure      400  {object}  map[string]interface{}  "Invalid request"
// @Failure      404  {object}  map[string]interface{}  "Organization not found"
// @Router       /admin/organizations/{id}/apikeys [post]
// CreateAPIKeyHandler issues a key for an organization
func (h *APIKeyHandlers) CreateAPIKeyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID, err := params.UUID(c, "id", assessment.CodeNotFound)
		if err != nil {
			respond.Error(c, err)
			return
		}
		var req CreateAPIKeyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respond.BadRequest(c, err)
			return
		}
		if req.ExpiresAt != nil && !req.ExpiresAt.After(h.now()) {
			respond.Error(c, assessment.Validation(assessment.CodeValidation, "expires_at must be in the future"))
			return
		}

		org, err := h.orgRepo.GetByID(c.Request.Context(), orgID)
		if err != nil {
			respond.Error(c, err)
			return
		}
		if org == nil {
			respond.Error(c, assessment.NotFound(assessment.CodeNotFound, "organization not found"))
			return
		}

		fullKey, keyHash, displayPrefix, err := auth.GenerateAPIKey(h.keyPrefix)
		if err != nil {
			respond.Error(c, err)
			return
		}
		key := &models.APIKey{
			OrganizationID:     org.ID,
			Name:               req.Name,
			Description:        req.Description,
			KeyHash:            keyHash,
			KeyPrefix:          displayPrefix,
			RateLimitPerMinute: req.RateLimitPerMinute,
			ExpiresAt:          req.ExpiresAt,
		}
		if err := h.apiKeyRepo.Create(c.Request.Context(), key); err != nil {
			respond.Error(c, err)
			return
		}

		h.auditor.Record(c.Request.Context(), auditEvent(c, audit.ActionAPIKeyCreated, org.ID, "api_key", key.ID,
			map[string]any{"key_prefix": displayPrefix, "name": key.Name}))
		c.JSON(http.StatusCreated, CreateAPIKeyResponse{APIKey: key, Key: fullKey})
	}
}

// ListAPIKeysHandler lists an organization's keys, revoked ones included
// GET /admin/organizations/:id/apikeys
func (h *APIKeyHandlers) ListAPIKeysHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID, err := params.UUID(c, "id", assessment.CodeNotFound)
		if err != nil {
			respond.Error(c, err)
			return
		}

		keys, err := h.apiKeyRepo.ListByOrganization(c.Request.Context(), orgID)
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"api_keys": keys})
	}
}

// DeleteAPIKeyHandler revokes a key. The row is kept so usage history stays attributable.
// DELETE /admin/apikeys/:id
func (h *APIKeyHandlers) DeleteAPIKeyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		keyID, err := params.UUID(c, "id", assessment.CodeNotFound)
		if err != nil {
			respond.Error(c, err)
			return
		}

		ok, err := h.apiKeyRepo.Deactivate(c.Request.Context(), keyID)
		if err != nil {
			respond.Error(c, err)
			return
		}
		if !ok {
			respond.Error(c, assessment.NotFound(assessment.CodeNotFound, "API key not found"))
			return
		}

		h.auditor.Record(c.Request.Context(), auditEvent(c, audit.ActionAPIKeyRevoked, "", "api_key", keyID, nil))
		c.Status(http.StatusNoContent)
	}
}
