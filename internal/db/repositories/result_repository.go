// result_repository.go implements ResultRepository, providing idempotent persistence of
// scored results keyed by session id, their ranked recommendations, and result analytics.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/assessment-platform/assessment-api/internal/db/models"
	"github.com/jmoiron/sqlx"
)

const resultColumns = `id, session_id, organization_id, strategy, profile, scores, responses_count, required_count,
	answered_required, completion_rate, revision, computed_at, archive_key`

// ResultRepository handles database operations for assessment results
type ResultRepository struct {
	db *sqlx.DB
}

// NewResultRepository creates a new result repository
func NewResultRepository(db *sqlx.DB) *ResultRepository {
	return &ResultRepository{db: db}
}

// InsertIfAbsent stores res unless a result already exists for its session. It reports
// false when another writer got there first; res is left untouched in that case.
func (r *ResultRepository) InsertIfAbsent(ctx context.Context, q Querier, res *models.AssessmentResult) (bool, error) {
	query := `
		INSERT INTO assessment_results (session_id, organization_id, strategy, profile, scores, responses_count,
			required_count, answered_required, completion_rate)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (session_id) DO NOTHING
		RETURNING id, revision, computed_at
	`
	err := q.QueryRowxContext(ctx, query, resultArgs(res)...).Scan(&res.ID, &res.Revision, &res.ComputedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to insert result: %w", err)
	}
	return true, nil
}

// Recompute overwrites the result of a session in place and bumps its revision.
func (r *ResultRepository) Recompute(ctx context.Context, q Querier, res *models.AssessmentResult) error {
	query := `
		INSERT INTO assessment_results (session_id, organization_id, strategy, profile, scores, responses_count,
			required_count, answered_required, completion_rate)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (session_id) DO UPDATE
		SET strategy = EXCLUDED.strategy, profile = EXCLUDED.profile, scores = EXCLUDED.scores,
		    responses_count = EXCLUDED.responses_count, required_count = EXCLUDED.required_count,
		    answered_required = EXCLUDED.answered_required, completion_rate = EXCLUDED.completion_rate,
		    revision = assessment_results.revision + 1, computed_at = now()
		RETURNING id, revision, computed_at
	`
	err := q.QueryRowxContext(ctx, query, resultArgs(res)...).Scan(&res.ID, &res.Revision, &res.ComputedAt)
	if err != nil {
		return fmt.Errorf("failed to recompute result: %w", err)
	}
	return nil
}

func resultArgs(res *models.AssessmentResult) []interface{} {
	return []interface{}{
		res.SessionID,
		res.OrganizationID,
		res.Strategy,
		res.Profile,
		res.Scores,
		res.ResponsesCount,
		res.RequiredCount,
		res.AnsweredRequired,
		res.CompletionRate,
	}
}

// GetBySession returns the result of a session, or nil when none exists.
func (r *ResultRepository) GetBySession(ctx context.Context, q Querier, sessionID string) (*models.AssessmentResult, error) {
	if q == nil {
		q = r.db
	}
	res := &models.AssessmentResult{}
	err := q.GetContext(ctx, res, `SELECT `+resultColumns+` FROM assessment_results WHERE session_id = $1`, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get result: %w", err)
	}
	return res, nil
}

// InsertRecommendations writes the ranked recommendations of one result revision.
// Rank is assigned from slice order starting at 1.
func (r *ResultRepository) InsertRecommendations(ctx context.Context, q Querier, resultID string, revision int, recs []*models.CareerRecommendation) error {
	for i, rec := range recs {
		rec.ResultID = resultID
		rec.Revision = revision
		rec.Rank = i + 1
		err := q.QueryRowxContext(ctx, `
			INSERT INTO career_recommendations (result_id, revision, rank, title, description, match_score, attributes)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id, created_at
		`, resultID, revision, rec.Rank, rec.Title, rec.Description, rec.MatchScore, rec.Attributes).Scan(&rec.ID, &rec.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert recommendation %d: %w", rec.Rank, err)
		}
	}
	return nil
}

// ListRecommendations returns the recommendations of one result revision by rank.
func (r *ResultRepository) ListRecommendations(ctx context.Context, q Querier, resultID string, revision int) ([]*models.CareerRecommendation, error) {
	if q == nil {
		q = r.db
	}
	recs := []*models.CareerRecommendation{}
	err := q.SelectContext(ctx, &recs, `
		SELECT id, result_id, revision, rank, title, description, match_score, attributes, created_at
		FROM career_recommendations
		WHERE result_id = $1 AND revision = $2
		ORDER BY rank
	`, resultID, revision)
	if err != nil {
		return nil, fmt.Errorf("failed to list recommendations: %w", err)
	}
	return recs, nil
}

// SetArchiveKey records where the snapshot of a result was stored.
func (r *ResultRepository) SetArchiveKey(ctx context.Context, resultID, key string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE assessment_results SET archive_key = $2 WHERE id = $1`, resultID, key)
	if err != nil {
		return fmt.Errorf("failed to set archive key: %w", err)
	}
	return nil
}

type sessionAggregate struct {
	Total              int64   `db:"total"`
	Completed          int64   `db:"completed"`
	Active             int64   `db:"active"`
	AvgDurationMinutes float64 `db:"avg_duration_minutes"`
}

type profileCount struct {
	Profile string `db:"profile"`
	Count   int64  `db:"count"`
}

type webhookAggregate struct {
	Attempted int64 `db:"attempted"`
	Delivered int64 `db:"delivered"`
}

// Analytics aggregates the sessions created in [from, to) and their results.
func (r *ResultRepository) Analytics(ctx context.Context, orgID string, from, to time.Time) (*models.ResultAnalytics, error) {
	var agg sessionAggregate
	err := r.db.GetContext(ctx, &agg, `
		SELECT COUNT(*) AS total,
		       COUNT(*) FILTER (WHERE completed_at IS NOT NULL) AS completed,
		       COUNT(*) FILTER (WHERE completed_at IS NULL AND is_active
		                        AND (paused_at IS NOT NULL OR expires_at > now())) AS active,
		       COALESCE(AVG(EXTRACT(EPOCH FROM completed_at - COALESCE(started_at, created_at)) / 60)
		                FILTER (WHERE completed_at IS NOT NULL), 0)::float8 AS avg_duration_minutes
		FROM assessment_sessions
		WHERE organization_id = $1 AND created_at >= $2 AND created_at < $3
	`, orgID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate sessions: %w", err)
	}

	var avgRate float64
	err = r.db.GetContext(ctx, &avgRate, `
		SELECT COALESCE(AVG(r.completion_rate), 0)::float8
		FROM assessment_results r
		JOIN assessment_sessions s ON s.id = r.session_id
		WHERE r.organization_id = $1 AND s.created_at >= $2 AND s.created_at < $3
	`, orgID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate completion rate: %w", err)
	}

	profiles := []profileCount{}
	err = r.db.SelectContext(ctx, &profiles, `
		SELECT r.profile, COUNT(*) AS count
		FROM assessment_results r
		JOIN assessment_sessions s ON s.id = r.session_id
		WHERE r.organization_id = $1 AND s.created_at >= $2 AND s.created_at < $3
		GROUP BY r.profile
		ORDER BY count DESC, r.profile
	`, orgID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate profiles: %w", err)
	}

	var hooks webhookAggregate
	err = r.db.GetContext(ctx, &hooks, `
		SELECT COUNT(DISTINCT d.session_id) AS attempted,
		       COUNT(DISTINCT d.session_id) FILTER (WHERE d.success) AS delivered
		FROM webhook_deliveries d
		JOIN assessment_sessions s ON s.id = d.session_id
		WHERE s.organization_id = $1 AND s.created_at >= $2 AND s.created_at < $3
	`, orgID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate webhook deliveries: %w", err)
	}

	out := &models.ResultAnalytics{
		TotalSessions:         agg.Total,
		CompletedSessions:     agg.Completed,
		ActiveSessions:        agg.Active,
		ExpiredSessions:       agg.Total - agg.Completed - agg.Active,
		AvgDurationMinutes:    round2(agg.AvgDurationMinutes),
		AvgCompletionRate:     round2(avgRate),
		ProfileDistribution:   make(map[string]int64, len(profiles)),
		WebhookAttemptedCount: hooks.Attempted,
	}
	if agg.Total > 0 {
		out.CompletionRate = round2(float64(agg.Completed) * 100 / float64(agg.Total))
	}
	if hooks.Attempted > 0 {
		out.WebhookDeliveryRate = round2(float64(hooks.Delivered) * 100 / float64(hooks.Attempted))
	}
	for _, p := range profiles {
		out.ProfileDistribution[p.Profile] = p.Count
	}
	return out, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
