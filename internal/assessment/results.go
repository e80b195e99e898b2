package assessment

import (
	"context"
	"errors"
	"time"

	"github.com/assessment-platform/assessment-api/internal/db/models"
	"github.com/assessment-platform/assessment-api/internal/db/repositories"
	"github.com/assessment-platform/assessment-api/internal/storage"
)

// CodeResultNotFound is returned for a session that has no result (yet).
const CodeResultNotFound = "RESULT_NOT_FOUND"

// ResultPage is one page of an organization's sessions with their results.
type ResultPage struct {
	Results []*models.ResultSummary `json:"results"`
	Total   int                     `json:"total"`
	Limit   int                     `json:"limit"`
	Offset  int                     `json:"offset"`
	Status  string                  `json:"status"`
}

// ResultView is a stored result with the session it belongs to.
type ResultView struct {
	*models.AssessmentResult
	ExternalUserID  string                         `json:"external_user_id"`
	TemplateID      string                         `json:"template_id"`
	CompletedAt     *time.Time                     `json:"completed_at,omitempty"`
	Recommendations []*models.CareerRecommendation `json:"recommendations"`
}

// ValidResultFilter reports whether status is accepted by ListResults.
func ValidResultFilter(status string) bool {
	switch status {
	case repositories.SessionFilterAll, repositories.SessionFilterCompleted,
		repositories.SessionFilterActive, repositories.SessionFilterExpired:
		return true
	}
	return false
}

// ListResults pages the organization's sessions, newest first.
func (s *Service) ListResults(ctx context.Context, orgID, status string, limit, offset int) (*ResultPage, error) {
	if status == "" {
		status = repositories.SessionFilterAll
	}
	if !ValidResultFilter(status) {
		return nil, Validation(CodeValidation, "status must be one of completed, active, expired, all")
	}
	rows, total, err := s.sessions.ListSummaries(ctx, orgID, status, limit, offset)
	if err != nil {
		return nil, err
	}
	return &ResultPage{Results: rows, Total: total, Limit: limit, Offset: offset, Status: status}, nil
}

// GetResult returns the latest result revision of one of the organization's sessions.
func (s *Service) GetResult(ctx context.Context, orgID, sessionID string) (*ResultView, error) {
	sess, res, err := s.ownedResult(ctx, orgID, sessionID)
	if err != nil {
		return nil, err
	}
	recs, err := s.results.ListRecommendations(ctx, nil, res.ID, res.Revision)
	if err != nil {
		return nil, err
	}
	return &ResultView{
		AssessmentResult: res,
		ExternalUserID:   sess.ExternalUserID,
		TemplateID:       sess.TemplateID,
		CompletedAt:      sess.CompletedAt,
		Recommendations:  recs,
	}, nil
}

func (s *Service) ownedResult(ctx context.Context, orgID, sessionID string) (*models.AssessmentSession, *models.AssessmentResult, error) {
	sess, err := s.sessions.GetByID(ctx, orgID, sessionID)
	if err != nil {
		return nil, nil, err
	}
	if sess == nil {
		return nil, nil, NotFound(CodeSessionNotFound, "session not found")
	}
	res, err := s.results.GetBySession(ctx, nil, sess.ID)
	if err != nil {
		return nil, nil, err
	}
	if res == nil {
		return nil, nil, NotFound(CodeResultNotFound, "session has no result")
	}
	return sess, res, nil
}

// ResultsAnalytics aggregates the organization's sessions created in [from, to).
func (s *Service) ResultsAnalytics(ctx context.Context, orgID string, from, to time.Time) (*models.ResultAnalytics, error) {
	if !from.Before(to) {
		return nil, Validation(CodeValidation, "from must be before to")
	}
	return s.results.Analytics(ctx, orgID, from, to)
}

// ArchivedSnapshot returns the raw JSON snapshot stored for a session's latest result.
func (s *Service) ArchivedSnapshot(ctx context.Context, orgID, sessionID string) ([]byte, error) {
	if s.archiver == nil {
		return nil, NotFound(CodeNotFound, "result archiving is disabled")
	}
	_, res, err := s.ownedResult(ctx, orgID, sessionID)
	if err != nil {
		return nil, err
	}
	if res.ArchiveKey == nil {
		return nil, NotFound(CodeNotFound, "result has not been archived")
	}
	body, err := s.archiver.Fetch(ctx, *res.ArchiveKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, NotFound(CodeNotFound, "archived snapshot is missing")
	}
	return body, err
}
