// Package templates implements CRUD over an organization's assessment templates.
package templates

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/assessment-platform/assessment-api/internal/api/params"
	"github.com/assessment-platform/assessment-api/internal/api/respond"
	"github.com/assessment-platform/assessment-api/internal/assessment"
	"github.com/assessment-platform/assessment-api/internal/db/models"
	"github.com/assessment-platform/assessment-api/internal/middleware"
)

// Service is the part of assessment.Service the template endpoints use.
type Service interface {
	ListTemplates(ctx context.Context, orgID string, includeInactive bool) ([]*models.AssessmentTemplate, error)
	GetTemplate(ctx context.Context, orgID, id string) (*models.AssessmentTemplate, error)
	CreateTemplate(ctx context.Context, orgID string, req *assessment.TemplateRequest) (*models.AssessmentTemplate, error)
	UpdateTemplate(ctx context.Context, orgID, id string, req *assessment.TemplateRequest) (*models.AssessmentTemplate, error)
	DeleteTemplate(ctx context.Context, orgID, id string) error
}

// Handlers serves /templates.
type Handlers struct {
	svc Service
}

// NewHandlers creates the template handlers.
func NewHandlers(svc Service) *Handlers {
	return &Handlers{svc: svc}
}

// ListHandler lists templates. Deactivated ones are included with include_inactive=true.
// GET /templates
func (h *Handlers) ListHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		includeInactive, _ := strconv.ParseBool(c.Query("include_inactive"))

		tpls, err := h.svc.ListTemplates(c.Request.Context(), middleware.OrganizationID(c), includeInactive)
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"templates": tpls})
	}
}

// GetHandler returns one template.
// GET /templates/:id
func (h *Handlers) GetHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := params.UUID(c, "id", assessment.CodeNotFound)
		if err != nil {
			respond.Error(c, err)
			return
		}

		tpl, err := h.svc.GetTemplate(c.Request.Context(), middleware.OrganizationID(c), id)
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, tpl)
	}
}

// @Summary      Create template
// @Description  Validates and stores a template. The first default template of an organization is used when a session names none.
// @Tags         Templates
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  assessment.TemplateRequest  true  "Template"
// @Success      201  {object}  models.AssessmentTemplate
// @Failure      400  {object}  map[string]interface{}  "Invalid template or duplicate name"
// @Router       /templates [post]
// CreateHandler stores a new template.
func (h *Handlers) CreateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req assessment.TemplateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respond.BadRequest(c, err)
			return
		}

		tpl, err := h.svc.CreateTemplate(c.Request.Context(), middleware.OrganizationID(c), &req)
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusCreated, tpl)
	}
}

// UpdateHandler replaces a template's configuration and bumps its version.
// PUT /templates/:id
func (h *Handlers) UpdateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := params.UUID(c, "id", assessment.CodeNotFound)
		if err != nil {
			respond.Error(c, err)
			return
		}
		var req assessment.TemplateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respond.BadRequest(c, err)
			return
		}

		tpl, err := h.svc.UpdateTemplate(c.Request.Context(), middleware.OrganizationID(c), id, &req)
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, tpl)
	}
}

// DeleteHandler deactivates a template.
// DELETE /templates/:id
func (h *Handlers) DeleteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := params.UUID(c, "id", assessment.CodeNotFound)
		if err != nil {
			respond.Error(c, err)
			return
		}

		if err := h.svc.DeleteTemplate(c.Request.Context(), middleware.OrganizationID(c), id); err != nil {
			respond.Error(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}
