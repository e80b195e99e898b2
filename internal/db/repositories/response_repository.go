// response_repository.go implements ResponseRepository, providing append-only storage
// for session answers.
package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/assessment-platform/assessment-api/internal/db/models"
)

// ResponseRepository handles database operations for assessment responses
type ResponseRepository struct{}

// NewResponseRepository creates a new response repository. Every method runs on the
// Querier handed in, normally the caller's transaction.
func NewResponseRepository() *ResponseRepository {
	return &ResponseRepository{}
}

// Insert stores an answer unless the question was already answered in this session.
// It returns the id of the stored row and whether this call inserted it.
func (r *ResponseRepository) Insert(ctx context.Context, q Querier, sessionID, questionID string, answer json.RawMessage) (string, bool, error) {
	var id string
	err := q.GetContext(ctx, &id, `
		INSERT INTO assessment_responses (session_id, question_id, answer)
		VALUES ($1, $2, $3)
		ON CONFLICT (session_id, question_id) DO NOTHING
		RETURNING id
	`, sessionID, questionID, []byte(answer))
	if err == nil {
		return id, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", false, fmt.Errorf("failed to insert response: %w", err)
	}

	err = q.GetContext(ctx, &id,
		`SELECT id FROM assessment_responses WHERE session_id = $1 AND question_id = $2`, sessionID, questionID)
	if err != nil {
		return "", false, fmt.Errorf("failed to load existing response: %w", err)
	}
	return id, false, nil
}

// ListBySession returns every response of a session in submission order.
func (r *ResponseRepository) ListBySession(ctx context.Context, q Querier, sessionID string) ([]*models.AssessmentResponse, error) {
	responses := []*models.AssessmentResponse{}
	err := q.SelectContext(ctx, &responses, `
		SELECT id, session_id, question_id, answer, created_at
		FROM assessment_responses
		WHERE session_id = $1
		ORDER BY created_at, id
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list responses: %w", err)
	}
	return responses, nil
}
