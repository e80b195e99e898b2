package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/assessment-platform/assessment-api/internal/db/models"
)

var sessionCols = []string{
	"id", "organization_id", "api_key_id", "external_user_id", "template_id", "session_token", "is_active",
	"current_question_index", "progress_data", "client_metadata", "callback_url", "webhook_url", "return_url",
	"created_at", "started_at", "completed_at", "expires_at", "last_activity_at", "paused_at",
	"template_version",
}

func sampleSessionRow(index int) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(sessionCols).
		AddRow("sess-1", "org-1", "key-1", "user-42", "tpl-1", "tok", true,
			index, []byte(`{"responses_count":1,"extensions":0}`), []byte(`{}`), nil, nil, nil,
			now, nil, nil, now.Add(time.Hour), now, nil, 2)
}

func newSessionRepo(t *testing.T) (*SessionRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := newMockDB(t)
	return NewSessionRepository(db), mock
}

// ---------------------------------------------------------------------------
// Create
// ---------------------------------------------------------------------------

func TestSessionCreate_UsesDatabaseClockForExpiry(t *testing.T) {
	repo, mock := newSessionRepo(t)
	mock.ExpectQuery("INSERT INTO assessment_sessions .+ now\\(\\) \\+ make_interval").
		WithArgs("org-1", nil, "user-42", "tpl-1", 2, "tok", sqlmock.AnyArg(), nil, nil, nil, float64(3600)).
		WillReturnRows(sampleSessionRow(0))

	s := &models.AssessmentSession{
		OrganizationID: "org-1", ExternalUserID: "user-42", TemplateID: "tpl-1", TemplateVersion: 2, SessionToken: "tok",
	}
	if err := repo.Create(context.Background(), s, time.Hour); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.ID != "sess-1" {
		t.Errorf("ID = %q, want sess-1", s.ID)
	}
	if s.TemplateVersion != 2 {
		t.Errorf("TemplateVersion = %d, want 2", s.TemplateVersion)
	}
	expectationsMet(t, mock)
}

func TestSessionCreate_TokenCollision(t *testing.T) {
	repo, mock := newSessionRepo(t)
	mock.ExpectQuery("INSERT INTO assessment_sessions").WillReturnError(&pq.Error{Code: "23505"})

	err := repo.Create(context.Background(), &models.AssessmentSession{}, time.Minute)
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("error = %v, want ErrDuplicate", err)
	}
}

// ---------------------------------------------------------------------------
// Validation lookups
// ---------------------------------------------------------------------------

func TestSessionGetValid_ScopedToOrganization(t *testing.T) {
	repo, mock := newSessionRepo(t)
	mock.ExpectQuery("session_token = \\$1 AND organization_id = \\$2 AND is_active AND completed_at IS NULL").
		WithArgs("tok", "org-2").
		WillReturnRows(sqlmock.NewRows(sessionCols))

	s, err := repo.GetValid(context.Background(), "tok", "org-2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s != nil {
		t.Errorf("token resolved across organizations: %+v", s)
	}
}

func TestSessionGetValidForUpdate_LocksRow(t *testing.T) {
	repo, mock := newSessionRepo(t)
	mock.ExpectBegin()
	mock.ExpectQuery("expires_at > now\\(\\)\\) FOR UPDATE").
		WithArgs("tok", "org-1").
		WillReturnRows(sampleSessionRow(1))

	tx, err := repo.DB().Beginx()
	if err != nil {
		t.Fatalf("Beginx: %v", err)
	}
	s, err := repo.GetValidForUpdate(context.Background(), tx, "tok", "org-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s == nil || s.CurrentQuestionIndex != 1 || s.ProgressData.ResponsesCount != 1 {
		t.Errorf("GetValidForUpdate = %+v", s)
	}
}

func TestSessionGetByToken_DBError(t *testing.T) {
	repo, mock := newSessionRepo(t)
	mock.ExpectQuery("FROM assessment_sessions").WillReturnError(errors.New("boom"))

	if _, err := repo.GetByToken(context.Background(), "tok", "org-1"); err == nil {
		t.Error("expected error, got nil")
	}
}

// ---------------------------------------------------------------------------
// Lifecycle updates
// ---------------------------------------------------------------------------

func TestSessionExtend_GreatestOfExpiryAndNow(t *testing.T) {
	repo, mock := newSessionRepo(t)
	mock.ExpectQuery("SET expires_at = GREATEST\\(expires_at, now\\(\\)\\) \\+ make_interval").
		WithArgs("tok", "org-1", float64(1800)).
		WillReturnRows(sampleSessionRow(0))

	s, err := repo.Extend(context.Background(), "tok", "org-1", 30*time.Minute)
	if err != nil || s == nil {
		t.Fatalf("Extend = %v, %v", s, err)
	}
	expectationsMet(t, mock)
}

func TestSessionExtend_NoValidSession(t *testing.T) {
	repo, mock := newSessionRepo(t)
	mock.ExpectQuery("UPDATE assessment_sessions").WillReturnRows(sqlmock.NewRows(sessionCols))

	s, err := repo.Extend(context.Background(), "tok", "org-1", time.Minute)
	if err != nil || s != nil {
		t.Errorf("Extend = %v, %v; want nil, nil", s, err)
	}
}

func TestSessionRecover_BoundedByGrace(t *testing.T) {
	repo, mock := newSessionRepo(t)
	mock.ExpectQuery("expires_at <= now\\(\\) AND expires_at > now\\(\\) - make_interval").
		WithArgs("tok", "org-1", float64(1800), float64(86400)).
		WillReturnRows(sampleSessionRow(0))

	s, err := repo.Recover(context.Background(), "tok", "org-1", 30*time.Minute, 24*time.Hour)
	if err != nil || s == nil {
		t.Fatalf("Recover = %v, %v", s, err)
	}
}

func TestSessionPauseResume(t *testing.T) {
	repo, mock := newSessionRepo(t)
	mock.ExpectQuery("SET paused_at = now\\(\\)").WillReturnRows(sampleSessionRow(0))
	mock.ExpectQuery("expires_at = now\\(\\) \\+ GREATEST\\(expires_at - paused_at").WillReturnRows(sampleSessionRow(0))

	if s, err := repo.Pause(context.Background(), "tok", "org-1"); err != nil || s == nil {
		t.Fatalf("Pause = %v, %v", s, err)
	}
	if s, err := repo.Resume(context.Background(), "tok", "org-1"); err != nil || s == nil {
		t.Fatalf("Resume = %v, %v", s, err)
	}
	expectationsMet(t, mock)
}

func TestSessionAdvanceProgress_NeverDecreases(t *testing.T) {
	repo, mock := newSessionRepo(t)
	mock.ExpectQuery("current_question_index = GREATEST\\(s.current_question_index, answered.n\\)").
		WithArgs("sess-1").
		WillReturnRows(sampleSessionRow(2))

	s, err := repo.AdvanceProgress(context.Background(), repo.DB(), "sess-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.CurrentQuestionIndex != 2 {
		t.Errorf("index = %d, want 2", s.CurrentQuestionIndex)
	}
}

func TestSessionMarkCompleted(t *testing.T) {
	repo, mock := newSessionRepo(t)
	now := time.Now()
	mock.ExpectQuery("completed_at = COALESCE\\(completed_at, now\\(\\)\\)").
		WithArgs("sess-1").
		WillReturnRows(sqlmock.NewRows([]string{"completed_at"}).AddRow(now))

	got, err := repo.MarkCompleted(context.Background(), repo.DB(), "sess-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Equal(now) {
		t.Errorf("completed_at = %v, want %v", got, now)
	}
}

// ---------------------------------------------------------------------------
// Listing and sweeping
// ---------------------------------------------------------------------------

func TestSessionListSummaries_CompletedFilter(t *testing.T) {
	repo, mock := newSessionRepo(t)
	now := time.Now()
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM assessment_sessions s WHERE s.organization_id = \\$1 AND s.completed_at IS NOT NULL").
		WithArgs("org-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("LEFT JOIN assessment_results r").
		WithArgs("org-1", 10, 0).
		WillReturnRows(sqlmock.NewRows([]string{
			"session_id", "external_user_id", "template_id", "is_active", "created_at", "expires_at",
			"completed_at", "assessment_id", "profile", "completion_rate",
		}).AddRow("sess-1", "user-42", "tpl-1", false, now, now, now, "res-1", "realistic", 100.0))

	rows, total, err := repo.ListSummaries(context.Background(), "org-1", SessionFilterCompleted, 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 || len(rows) != 1 || *rows[0].Profile != "realistic" {
		t.Errorf("ListSummaries = %+v, total %d", rows, total)
	}
	expectationsMet(t, mock)
}

func TestSessionDeactivateExpired(t *testing.T) {
	repo, mock := newSessionRepo(t)
	mock.ExpectExec("SET is_active = FALSE").
		WithArgs(float64(86400)).
		WillReturnResult(sqlmock.NewResult(0, 7))

	n, err := repo.DeactivateExpired(context.Background(), 24*time.Hour)
	if err != nil || n != 7 {
		t.Errorf("DeactivateExpired = %d, %v; want 7, nil", n, err)
	}
}
