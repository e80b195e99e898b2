// session_repository.go implements SessionRepository, providing database queries for the
// assessment session lifecycle. Every validity decision is made by the database clock.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/assessment-platform/assessment-api/internal/db/models"
	"github.com/jmoiron/sqlx"
)

const sessionColumns = `id, organization_id, api_key_id, external_user_id, template_id, session_token, is_active,
	current_question_index, progress_data, client_metadata, callback_url, webhook_url, return_url,
	created_at, started_at, completed_at, expires_at, last_activity_at, paused_at, template_version`

// validSessionPredicate selects a session that a token may currently resolve to.
// Paused sessions stay valid until resumed; their clock is frozen.
const validSessionPredicate = `session_token = $1 AND organization_id = $2 AND is_active AND completed_at IS NULL
	AND (paused_at IS NOT NULL OR expires_at > now())`

// SessionRepository handles database operations for assessment sessions
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// DB exposes the underlying handle for callers that open their own transaction.
func (r *SessionRepository) DB() *sqlx.DB {
	return r.db
}

// Create inserts a session with expires_at computed by the database clock.
func (r *SessionRepository) Create(ctx context.Context, s *models.AssessmentSession, expiresIn time.Duration) error {
	query := `
		INSERT INTO assessment_sessions (organization_id, api_key_id, external_user_id, template_id, template_version,
			session_token, client_metadata, callback_url, webhook_url, return_url, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now() + make_interval(secs => $11))
		RETURNING ` + sessionColumns
	err := r.db.QueryRowxContext(ctx, query,
		s.OrganizationID,
		s.APIKeyID,
		s.ExternalUserID,
		s.TemplateID,
		s.TemplateVersion,
		s.SessionToken,
		s.ClientMetadata,
		s.CallbackURL,
		s.WebhookURL,
		s.ReturnURL,
		expiresIn.Seconds(),
	).StructScan(s)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetValid returns the session a token currently resolves to within an organization.
func (r *SessionRepository) GetValid(ctx context.Context, token, orgID string) (*models.AssessmentSession, error) {
	return getSession(ctx, r.db, `SELECT `+sessionColumns+` FROM assessment_sessions WHERE `+validSessionPredicate, token, orgID)
}

// GetValidForUpdate is GetValid with the row locked for the rest of tx.
func (r *SessionRepository) GetValidForUpdate(ctx context.Context, tx Querier, token, orgID string) (*models.AssessmentSession, error) {
	return getSession(ctx, tx, `SELECT `+sessionColumns+` FROM assessment_sessions WHERE `+validSessionPredicate+` FOR UPDATE`, token, orgID)
}

// GetByToken returns the session for a token regardless of its state.
func (r *SessionRepository) GetByToken(ctx context.Context, token, orgID string) (*models.AssessmentSession, error) {
	return getSession(ctx, r.db, `SELECT `+sessionColumns+` FROM assessment_sessions
		WHERE session_token = $1 AND organization_id = $2`, token, orgID)
}

// GetByTokenForUpdate is GetByToken with the row locked for the rest of tx.
func (r *SessionRepository) GetByTokenForUpdate(ctx context.Context, tx Querier, token, orgID string) (*models.AssessmentSession, error) {
	return getSession(ctx, tx, `SELECT `+sessionColumns+` FROM assessment_sessions
		WHERE session_token = $1 AND organization_id = $2 FOR UPDATE`, token, orgID)
}

// GetByID returns a session of an organization by its id.
func (r *SessionRepository) GetByID(ctx context.Context, orgID, id string) (*models.AssessmentSession, error) {
	return getSession(ctx, r.db, `SELECT `+sessionColumns+` FROM assessment_sessions
		WHERE organization_id = $1 AND id = $2`, orgID, id)
}

func getSession(ctx context.Context, q Querier, query string, args ...interface{}) (*models.AssessmentSession, error) {
	s := &models.AssessmentSession{}
	if err := q.GetContext(ctx, s, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s, nil
}

// Touch stamps last_activity_at on a valid session.
func (r *SessionRepository) Touch(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE assessment_sessions SET last_activity_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	return nil
}

// Extend pushes expires_at forward on a valid session. It returns nil when no valid
// session matched.
func (r *SessionRepository) Extend(ctx context.Context, token, orgID string, by time.Duration) (*models.AssessmentSession, error) {
	query := `
		UPDATE assessment_sessions
		SET expires_at = GREATEST(expires_at, now()) + make_interval(secs => $3),
		    progress_data = progress_data || jsonb_build_object('extensions', COALESCE((progress_data->>'extensions')::int, 0) + 1),
		    last_activity_at = now()
		WHERE ` + validSessionPredicate + `
		RETURNING ` + sessionColumns
	return getSession(ctx, r.db, query, token, orgID, by.Seconds())
}

// Recover re-activates a session whose expiry passed less than grace ago. Completed and
// paused sessions never match.
func (r *SessionRepository) Recover(ctx context.Context, token, orgID string, extension, grace time.Duration) (*models.AssessmentSession, error) {
	query := `
		UPDATE assessment_sessions
		SET is_active = TRUE,
		    expires_at = now() + make_interval(secs => $3),
		    progress_data = progress_data || jsonb_build_object('recoveries', COALESCE((progress_data->>'recoveries')::int, 0) + 1),
		    last_activity_at = now()
		WHERE session_token = $1 AND organization_id = $2 AND completed_at IS NULL AND paused_at IS NULL
		  AND expires_at <= now() AND expires_at > now() - make_interval(secs => $4)
		RETURNING ` + sessionColumns
	return getSession(ctx, r.db, query, token, orgID, extension.Seconds(), grace.Seconds())
}

// Pause freezes the clock of a valid, running session.
func (r *SessionRepository) Pause(ctx context.Context, token, orgID string) (*models.AssessmentSession, error) {
	query := `
		UPDATE assessment_sessions
		SET paused_at = now(), last_activity_at = now()
		WHERE ` + validSessionPredicate + ` AND paused_at IS NULL
		RETURNING ` + sessionColumns
	return getSession(ctx, r.db, query, token, orgID)
}

// Resume restarts a paused session with the time that was remaining when it was paused.
func (r *SessionRepository) Resume(ctx context.Context, token, orgID string) (*models.AssessmentSession, error) {
	query := `
		UPDATE assessment_sessions
		SET expires_at = now() + GREATEST(expires_at - paused_at, interval '0'),
		    paused_at = NULL,
		    last_activity_at = now()
		WHERE ` + validSessionPredicate + ` AND paused_at IS NOT NULL
		RETURNING ` + sessionColumns
	return getSession(ctx, r.db, query, token, orgID)
}

// AdvanceProgress recomputes the index and progress counters from the stored responses.
// The index only ever moves forward.
func (r *SessionRepository) AdvanceProgress(ctx context.Context, tx Querier, sessionID string) (*models.AssessmentSession, error) {
	query := `
		WITH answered AS (
			SELECT COUNT(DISTINCT question_id)::int AS n, MAX(created_at) AS last_at
			FROM assessment_responses WHERE session_id = $1
		)
		UPDATE assessment_sessions s
		SET current_question_index = GREATEST(s.current_question_index, answered.n),
		    progress_data = s.progress_data || jsonb_build_object('responses_count', answered.n, 'last_response_at', answered.last_at),
		    started_at = COALESCE(s.started_at, now()),
		    last_activity_at = now()
		FROM answered
		WHERE s.id = $1
		RETURNING ` + prefixed("s.", sessionColumns)
	return getSession(ctx, tx, query, sessionID)
}

// MarkCompleted closes a session. completed_at is set only once.
func (r *SessionRepository) MarkCompleted(ctx context.Context, tx Querier, sessionID string) (time.Time, error) {
	var completedAt time.Time
	err := tx.GetContext(ctx, &completedAt, `
		UPDATE assessment_sessions
		SET is_active = FALSE, completed_at = COALESCE(completed_at, now()), paused_at = NULL, last_activity_at = now()
		WHERE id = $1
		RETURNING completed_at
	`, sessionID)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to mark session completed: %w", err)
	}
	return completedAt, nil
}

// Session listing filters accepted by ListSummaries.
const (
	SessionFilterAll       = "all"
	SessionFilterCompleted = "completed"
	SessionFilterActive    = "active"
	SessionFilterExpired   = "expired"
)

// ListSummaries pages an organization's sessions joined with their results, newest first.
func (r *SessionRepository) ListSummaries(ctx context.Context, orgID, status string, limit, offset int) ([]*models.ResultSummary, int, error) {
	where := `s.organization_id = $1`
	switch status {
	case SessionFilterCompleted:
		where += ` AND s.completed_at IS NOT NULL`
	case SessionFilterActive:
		where += ` AND s.completed_at IS NULL AND s.is_active AND (s.paused_at IS NOT NULL OR s.expires_at > now())`
	case SessionFilterExpired:
		where += ` AND s.completed_at IS NULL AND s.paused_at IS NULL AND (NOT s.is_active OR s.expires_at <= now())`
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM assessment_sessions s WHERE `+where, orgID); err != nil {
		return nil, 0, fmt.Errorf("failed to count sessions: %w", err)
	}

	query := `
		SELECT s.id AS session_id, s.external_user_id, s.template_id, s.is_active, s.created_at, s.expires_at,
		       s.completed_at, r.id AS assessment_id, r.profile, r.completion_rate
		FROM assessment_sessions s
		LEFT JOIN assessment_results r ON r.session_id = s.id
		WHERE ` + where + `
		ORDER BY s.created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows := []*models.ResultSummary{}
	if err := r.db.SelectContext(ctx, &rows, query, orgID, limit, offset); err != nil {
		return nil, 0, fmt.Errorf("failed to list sessions: %w", err)
	}
	return rows, total, nil
}

// DeactivateExpired flips is_active off for sessions whose expiry lies further back than
// grace. It returns the number of sessions deactivated.
func (r *SessionRepository) DeactivateExpired(ctx context.Context, grace time.Duration) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE assessment_sessions
		SET is_active = FALSE
		WHERE is_active AND completed_at IS NULL AND paused_at IS NULL
		  AND expires_at <= now() - make_interval(secs => $1)
	`, grace.Seconds())
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate expired sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate expired sessions: %w", err)
	}
	return n, nil
}

func prefixed(prefix, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = prefix + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
