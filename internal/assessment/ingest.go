package assessment

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/assessment-platform/assessment-api/internal/db"
	"github.com/assessment-platform/assessment-api/internal/scoring"
	"github.com/assessment-platform/assessment-api/internal/telemetry"
)

// SubmitResponseRequest is the body of POST /sessions/:token.
type SubmitResponseRequest struct {
	QuestionID string          `json:"question_id" binding:"required"`
	Answer     json.RawMessage `json:"answer" binding:"required"`
}

// SubmitResponseResult reports the stored answer and the session's new progress.
type SubmitResponseResult struct {
	ResponseID        string `json:"response_id"`
	QuestionID        string `json:"question_id"`
	NextQuestionIndex int    `json:"next_question_index"`
	Duplicate         bool   `json:"duplicate"`
	ResponsesCount    int    `json:"responses_count"`
	TotalQuestions    int    `json:"total_questions"`
	IsLastQuestion    bool   `json:"is_last_question"`
}

// SubmitResponse stores one answer and advances progress in a single transaction with
// the session row locked, so concurrent submissions on a session are serialized.
// Re-answering a question keeps the first answer and reports Duplicate.
func (s *Service) SubmitResponse(ctx context.Context, orgID, token string, req *SubmitResponseRequest) (*SubmitResponseResult, error) {
	var out *SubmitResponseResult
	err := db.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		sess, err := s.sessions.GetValidForUpdate(ctx, tx, token, orgID)
		if err != nil {
			return err
		}
		if sess == nil {
			return InvalidOrExpired()
		}
		if sess.PausedAt != nil {
			return Validation(CodeSessionPaused, "session is paused; resume it before submitting responses")
		}

		tpl, err := s.sessionTemplate(ctx, sess)
		if err != nil {
			return err
		}
		q, ok := tpl.Questions.Find(req.QuestionID)
		if !ok {
			return Validation(CodeQuestionMismatch,
				fmt.Sprintf("question %q does not belong to this session's template", req.QuestionID))
		}
		if err := scoring.ValidateAnswer(q, req.Answer); err != nil {
			return Validation(CodeInvalidAnswer, err.Error())
		}

		responseID, inserted, err := s.responses.Insert(ctx, tx, sess.ID, q.ID, req.Answer)
		if err != nil {
			return err
		}
		updated, err := s.sessions.AdvanceProgress(ctx, tx, sess.ID)
		if err != nil {
			return err
		}
		if updated == nil {
			return fmt.Errorf("session %s vanished while advancing progress", sess.ID)
		}

		total := tpl.Questions.Total()
		out = &SubmitResponseResult{
			ResponseID:        responseID,
			QuestionID:        q.ID,
			NextQuestionIndex: updated.CurrentQuestionIndex,
			Duplicate:         !inserted,
			ResponsesCount:    updated.ProgressData.ResponsesCount,
			TotalQuestions:    total,
			IsLastQuestion:    updated.CurrentQuestionIndex >= total,
		}
		return nil
	})
	if err != nil {
		if _, ok := AsError(err); ok {
			telemetry.ResponsesTotal.WithLabelValues("rejected").Inc()
		}
		return nil, err
	}

	if out.Duplicate {
		telemetry.ResponsesTotal.WithLabelValues("duplicate").Inc()
		slog.DebugContext(ctx, "duplicate response ignored", "question_id", out.QuestionID)
	} else {
		telemetry.ResponsesTotal.WithLabelValues("stored").Inc()
	}
	return out, nil
}
