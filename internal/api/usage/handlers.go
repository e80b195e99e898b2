// Package usage serves the per-organization usage report aggregated from usage_logs.
package usage

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/assessment-platform/assessment-api/internal/api/params"
	"github.com/assessment-platform/assessment-api/internal/api/respond"
	"github.com/assessment-platform/assessment-api/internal/assessment"
	"github.com/assessment-platform/assessment-api/internal/db/models"
	"github.com/assessment-platform/assessment-api/internal/db/repositories"
	"github.com/assessment-platform/assessment-api/internal/middleware"
)

// defaultWindow applies when from is omitted.
const defaultWindow = 30 * 24 * time.Hour

// Aggregator buckets usage rows.
type Aggregator interface {
	Aggregate(ctx context.Context, orgID, period string, from, to time.Time) ([]*models.UsageBucket, error)
}

// Handler serves GET /usage.
type Handler struct {
	usage Aggregator
	now   func() time.Time
}

// NewHandler creates the usage handler.
func NewHandler(usage Aggregator) *Handler {
	return &Handler{usage: usage, now: time.Now}
}

// Totals sums the buckets of a report.
type Totals struct {
	Requests    int64 `json:"requests"`
	Errors      int64 `json:"errors"`
	RateLimited int64 `json:"rate_limited"`
}

// @Summary      Usage report
// @Description  Returns the caller's request counts bucketed by day, week or month over [from, to).
// @Tags         Usage
// @Security     Bearer
// @Produce      json
// @Param        period  query  string  false  "daily (default), weekly or monthly"
// @Param        from    query  string  false  "RFC 3339 start, default 30 days before to"
// @Param        to      query  string  false  "RFC 3339 end, default now"
// @Success      200  {object}  map[string]interface{}  "period, from, to, buckets, totals"
// @Failure      400  {object}  map[string]interface{}  "Invalid period or range"
// @Router       /usage [get]
// ReportHandler returns the organization's usage report.
func (h *Handler) ReportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		period := c.DefaultQuery("period", repositories.PeriodDaily)
		if !repositories.ValidPeriod(period) {
			respond.Error(c, assessment.Validation(assessment.CodeValidation, "period must be one of daily, weekly, monthly"))
			return
		}
		to, err := params.Time(c, "to", h.now())
		if err != nil {
			respond.Error(c, err)
			return
		}
		from, err := params.Time(c, "from", to.Add(-defaultWindow))
		if err != nil {
			respond.Error(c, err)
			return
		}
		if !from.Before(to) {
			respond.Error(c, assessment.Validation(assessment.CodeValidation, "from must be before to"))
			return
		}

		buckets, err := h.usage.Aggregate(c.Request.Context(), middleware.OrganizationID(c), period, from, to)
		if err != nil {
			respond.Error(c, err)
			return
		}

		var totals Totals
		for _, b := range buckets {
			totals.Requests += b.Requests
			totals.Errors += b.Errors
			totals.RateLimited += b.RateLimited
		}
		c.JSON(http.StatusOK, gin.H{
			"period":  period,
			"from":    from.UTC(),
			"to":      to.UTC(),
			"buckets": buckets,
			"totals":  totals,
		})
	}
}
