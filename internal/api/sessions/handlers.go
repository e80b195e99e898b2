// Package sessions implements the tenant-facing session endpoints: creation, response
// submission, state, completion and the manage actions.
package sessions

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/assessment-platform/assessment-api/internal/api/respond"
	"github.com/assessment-platform/assessment-api/internal/assessment"
	"github.com/assessment-platform/assessment-api/internal/db/models"
	"github.com/assessment-platform/assessment-api/internal/middleware"
)

// Service is the part of assessment.Service the session endpoints use.
type Service interface {
	CreateSession(ctx context.Context, orgID, apiKeyID string, req *assessment.CreateSessionRequest) (*assessment.CreateSessionResult, error)
	SubmitResponse(ctx context.Context, orgID, token string, req *assessment.SubmitResponseRequest) (*assessment.SubmitResponseResult, error)
	GetState(ctx context.Context, orgID, token string) (*assessment.SessionState, error)
	Complete(ctx context.Context, org *models.Organization, token string, force bool) (*assessment.CompletionResult, error)
	Manage(ctx context.Context, orgID, token string, req *assessment.ManageRequest) (any, error)
}

// Handlers serves /sessions.
type Handlers struct {
	svc Service
}

// NewHandlers creates the session handlers.
func NewHandlers(svc Service) *Handlers {
	return &Handlers{svc: svc}
}

// @Summary      Create session
// @Description  Starts an assessment session for an end user and returns its one-time token with the first question page.
// @Tags         Sessions
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  assessment.CreateSessionRequest  true  "Session parameters"
// @Success      201  {object}  assessment.CreateSessionResult
// @Failure      400  {object}  map[string]interface{}  "Validation error"
// @Failure      404  {object}  map[string]interface{}  "Template not found"
// @Failure      429  {object}  map[string]interface{}  "Rate limited or quota exhausted"
// @Router       /sessions [post]
// CreateHandler starts a session.
func (h *Handlers) CreateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req assessment.CreateSessionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respond.BadRequest(c, err)
			return
		}

		out, err := h.svc.CreateSession(c.Request.Context(), middleware.OrganizationID(c), middleware.APIKeyID(c), &req)
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusCreated, out)
	}
}

// @Summary      Submit response
// @Description  Stores one answer. Re-answering a question keeps the first answer and reports duplicate=true.
// @Tags         Sessions
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        token  path  string                            true  "Session token"
// @Param        body   body  assessment.SubmitResponseRequest  true  "Answer"
// @Success      200  {object}  assessment.SubmitResponseResult
// @Failure      400  {object}  map[string]interface{}  "Question mismatch, invalid answer or paused session"
// @Failure      401  {object}  map[string]interface{}  "Invalid or expired session"
// @Router       /sessions/{token} [post]
// SubmitHandler stores one answer.
func (h *Handlers) SubmitHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req assessment.SubmitResponseRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respond.BadRequest(c, err)
			return
		}

		out, err := h.svc.SubmitResponse(c.Request.Context(), middleware.OrganizationID(c), c.Param("token"), &req)
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, out)
	}
}

// StateHandler returns the session status with the current question page.
// GET /sessions/:token
func (h *Handlers) StateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		out, err := h.svc.GetState(c.Request.Context(), middleware.OrganizationID(c), c.Param("token"))
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, out)
	}
}

// @Summary      Complete session
// @Description  Scores the session and stores its result. Repeated calls return the stored result with status already_completed.
// @Tags         Sessions
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        token  path  string                      true   "Session token"
// @Param        body   body  assessment.CompleteRequest  false  "Completion options"
// @Success      200  {object}  assessment.CompletionResult
// @Failure      401  {object}  map[string]interface{}  "Invalid or expired session"
// @Failure      422  {object}  map[string]interface{}  "Required questions unanswered"
// @Router       /sessions/{token}/complete [post]
// CompleteHandler finalizes a session. The body is optional.
func (h *Handlers) CompleteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req assessment.CompleteRequest
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			respond.BadRequest(c, err)
			return
		}

		out, err := h.svc.Complete(c.Request.Context(), middleware.Organization(c), c.Param("token"), req.ForceComplete)
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, out)
	}
}

// ManageHandler dispatches status, extend, recovery, analytics, pause and resume.
// POST /sessions/:token/manage
func (h *Handlers) ManageHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req assessment.ManageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respond.BadRequest(c, err)
			return
		}

		out, err := h.svc.Manage(c.Request.Context(), middleware.OrganizationID(c), c.Param("token"), &req)
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, out)
	}
}
