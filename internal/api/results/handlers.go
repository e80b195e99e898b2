// Package results implements the read side over completed assessments: listing, single
// results, aggregate analytics and archived snapshots.
package results

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/assessment-platform/assessment-api/internal/api/params"
	"github.com/assessment-platform/assessment-api/internal/api/respond"
	"github.com/assessment-platform/assessment-api/internal/assessment"
	"github.com/assessment-platform/assessment-api/internal/db/models"
	"github.com/assessment-platform/assessment-api/internal/middleware"
)

// defaultAnalyticsWindow applies when from is omitted.
const defaultAnalyticsWindow = 30 * 24 * time.Hour

// Service is the part of assessment.Service the result endpoints use.
type Service interface {
	ListResults(ctx context.Context, orgID, status string, limit, offset int) (*assessment.ResultPage, error)
	GetResult(ctx context.Context, orgID, sessionID string) (*assessment.ResultView, error)
	ResultsAnalytics(ctx context.Context, orgID string, from, to time.Time) (*models.ResultAnalytics, error)
	ArchivedSnapshot(ctx context.Context, orgID, sessionID string) ([]byte, error)
}

// Handlers serves /results.
type Handlers struct {
	svc Service
	now func() time.Time
}

// NewHandlers creates the result handlers.
func NewHandlers(svc Service) *Handlers {
	return &Handlers{svc: svc, now: time.Now}
}

// @Summary      List results
// @Description  Pages the organization's sessions with their latest result, newest first.
// @Tags         Results
// @Security     Bearer
// @Produce      json
// @Param        limit   query  int     false  "Page size, max 100 (default 20)"
// @Param        offset  query  int     false  "Rows to skip"
// @Param        status  query  string  false  "completed, active, expired or all (default)"
// @Success      200  {object}  assessment.ResultPage
// @Failure      400  {object}  map[string]interface{}  "Invalid filter"
// @Router       /results [get]
// ListHandler lists the organization's results.
func (h *Handlers) ListHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, offset, err := params.Page(c)
		if err != nil {
			respond.Error(c, err)
			return
		}

		page, err := h.svc.ListResults(c.Request.Context(), middleware.OrganizationID(c), c.Query("status"), limit, offset)
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, page)
	}
}

// AnalyticsHandler aggregates the organization's sessions created in [from, to).
// Both bounds are RFC 3339; to defaults to now and from to 30 days before to.
// GET /results/analytics?from=&to=
func (h *Handlers) AnalyticsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		to, err := params.Time(c, "to", h.now())
		if err != nil {
			respond.Error(c, err)
			return
		}
		from, err := params.Time(c, "from", to.Add(-defaultAnalyticsWindow))
		if err != nil {
			respond.Error(c, err)
			return
		}

		out, err := h.svc.ResultsAnalytics(c.Request.Context(), middleware.OrganizationID(c), from, to)
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"from":      from.UTC(),
			"to":        to.UTC(),
			"analytics": out,
		})
	}
}

// GetHandler returns one session's latest result.
// GET /results/:session_id
func (h *Handlers) GetHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID, err := params.UUID(c, "session_id", assessment.CodeSessionNotFound)
		if err != nil {
			respond.Error(c, err)
			return
		}

		out, err := h.svc.GetResult(c.Request.Context(), middleware.OrganizationID(c), sessionID)
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, out)
	}
}

// ArchiveHandler streams the archived JSON snapshot of a session's latest result.
// GET /results/:session_id/archive
func (h *Handlers) ArchiveHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID, err := params.UUID(c, "session_id", assessment.CodeSessionNotFound)
		if err != nil {
			respond.Error(c, err)
			return
		}

		body, err := h.svc.ArchivedSnapshot(c.Request.Context(), middleware.OrganizationID(c), sessionID)
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.Data(http.StatusOK, "application/json", body)
	}
}
