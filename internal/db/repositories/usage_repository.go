// usage_repository.go implements UsageRepository, the append-only request log and the
// read-only aggregations computed over it.
package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/assessment-platform/assessment-api/internal/db/models"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Aggregation periods accepted by Aggregate.
const (
	PeriodDaily   = "daily"
	PeriodWeekly  = "weekly"
	PeriodMonthly = "monthly"
)

var periodUnits = map[string]string{
	PeriodDaily:   "day",
	PeriodWeekly:  "week",
	PeriodMonthly: "month",
}

// ValidPeriod reports whether p is an aggregation period.
func ValidPeriod(p string) bool {
	_, ok := periodUnits[p]
	return ok
}

// UsageRepository handles database operations for usage logs
type UsageRepository struct {
	db *sqlx.DB
}

// NewUsageRepository creates a new usage repository
func NewUsageRepository(db *sqlx.DB) *UsageRepository {
	return &UsageRepository{db: db}
}

// Insert appends one request record.
func (r *UsageRepository) Insert(ctx context.Context, entry *models.UsageLog) error {
	query := `
		INSERT INTO usage_logs (organization_id, api_key_id, request_id, method, endpoint, status_code,
			latency_ms, client_ip, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		entry.OrganizationID,
		entry.APIKeyID,
		entry.RequestID,
		entry.Method,
		entry.Endpoint,
		entry.StatusCode,
		entry.LatencyMs,
		entry.ClientIP,
		entry.Metadata,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert usage log: %w", err)
	}
	return nil
}

// Aggregate buckets an organization's requests in [from, to) by period.
func (r *UsageRepository) Aggregate(ctx context.Context, orgID, period string, from, to time.Time) ([]*models.UsageBucket, error) {
	unit, ok := periodUnits[period]
	if !ok {
		return nil, fmt.Errorf("unknown aggregation period %q", period)
	}

	buckets := []*models.UsageBucket{}
	err := r.db.SelectContext(ctx, &buckets, `
		SELECT date_trunc($2, created_at) AS bucket,
		       COUNT(*) AS requests,
		       COUNT(*) FILTER (WHERE status_code >= 400) AS errors,
		       COUNT(*) FILTER (WHERE status_code = 429) AS rate_limited,
		       COALESCE(AVG(latency_ms), 0)::float8 AS avg_latency_ms
		FROM usage_logs
		WHERE organization_id = $1 AND created_at >= $3 AND created_at < $4
		GROUP BY bucket
		ORDER BY bucket
	`, orgID, unit, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate usage: %w", err)
	}
	return buckets, nil
}

// CountThisMonth counts an organization's requests in the current UTC calendar month
// (database clock) that hit one of endpoints with the given method and status.
func (r *UsageRepository) CountThisMonth(ctx context.Context, orgID, method string, endpoints []string, status int) (int64, error) {
	var n int64
	err := r.db.GetContext(ctx, &n, `
		SELECT COUNT(*)
		FROM usage_logs
		WHERE organization_id = $1 AND method = $2 AND endpoint = ANY($3) AND status_code = $4
		  AND created_at >= date_trunc('month', now() AT TIME ZONE 'UTC') AT TIME ZONE 'UTC'
	`, orgID, method, pq.Array(endpoints), status)
	if err != nil {
		return 0, fmt.Errorf("failed to count usage: %w", err)
	}
	return n, nil
}
