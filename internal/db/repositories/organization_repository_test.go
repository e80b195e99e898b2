package repositories

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/assessment-platform/assessment-api/internal/db/models"
)

// ---------------------------------------------------------------------------
// Column definitions
// ---------------------------------------------------------------------------

var orgCols = []string{
	"id", "name", "display_name", "webhook_secret_encrypted", "monthly_session_quota",
	"default_rate_limit", "is_active", "created_at", "updated_at",
}

func sampleOrgRow() *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(orgCols).
		AddRow("org-1", "acme", "Acme Corp", nil, 1000, 60, true, now, now)
}

func newOrgRepo(t *testing.T) (*OrganizationRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := newMockDB(t)
	return NewOrganizationRepository(db), mock
}

// ---------------------------------------------------------------------------
// Create
// ---------------------------------------------------------------------------

func TestOrganizationCreate_Success(t *testing.T) {
	repo, mock := newOrgRepo(t)
	now := time.Now()
	mock.ExpectQuery("INSERT INTO organizations").
		WithArgs("acme", "Acme Corp", nil, 100, 60).
		WillReturnRows(sqlmock.NewRows([]string{"id", "is_active", "created_at", "updated_at"}).
			AddRow("org-1", true, now, now))

	org := &models.Organization{Name: "acme", DisplayName: "Acme Corp", MonthlySessionQuota: 100, DefaultRateLimit: 60}
	if err := repo.Create(context.Background(), org); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if org.ID != "org-1" || !org.IsActive {
		t.Errorf("generated fields not filled: %+v", org)
	}
	expectationsMet(t, mock)
}

func TestOrganizationCreate_Duplicate(t *testing.T) {
	repo, mock := newOrgRepo(t)
	mock.ExpectQuery("INSERT INTO organizations").
		WillReturnError(&pq.Error{Code: "23505"})

	err := repo.Create(context.Background(), &models.Organization{Name: "acme"})
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("error = %v, want ErrDuplicate", err)
	}
}

// ---------------------------------------------------------------------------
// Lookups
// ---------------------------------------------------------------------------

func TestOrganizationGetByID_Found(t *testing.T) {
	repo, mock := newOrgRepo(t)
	mock.ExpectQuery("SELECT .+ FROM organizations WHERE id").
		WithArgs("org-1").
		WillReturnRows(sampleOrgRow())

	org, err := repo.GetByID(context.Background(), "org-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if org == nil || org.Name != "acme" || org.MonthlySessionQuota != 1000 {
		t.Errorf("GetByID = %+v", org)
	}
}

func TestOrganizationGetByID_NotFound(t *testing.T) {
	repo, mock := newOrgRepo(t)
	mock.ExpectQuery("SELECT .+ FROM organizations WHERE id").
		WillReturnRows(sqlmock.NewRows(orgCols))

	org, err := repo.GetByID(context.Background(), "missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if org != nil {
		t.Errorf("expected nil, got %+v", org)
	}
}

func TestOrganizationGetByName_DBError(t *testing.T) {
	repo, mock := newOrgRepo(t)
	mock.ExpectQuery("SELECT .+ FROM organizations WHERE name").
		WillReturnError(errors.New("connection reset"))

	if _, err := repo.GetByName(context.Background(), "acme"); err == nil {
		t.Error("expected error, got nil")
	}
}

func TestOrganizationList_Success(t *testing.T) {
	repo, mock := newOrgRepo(t)
	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery("SELECT .+ FROM organizations ORDER BY name").
		WithArgs(1, 0).
		WillReturnRows(sampleOrgRow())

	orgs, total, err := repo.List(context.Background(), 1, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 3 || len(orgs) != 1 {
		t.Errorf("List = %d rows, total %d", len(orgs), total)
	}
	expectationsMet(t, mock)
}

// ---------------------------------------------------------------------------
// Update
// ---------------------------------------------------------------------------

func TestOrganizationUpdate_Success(t *testing.T) {
	repo, mock := newOrgRepo(t)
	mock.ExpectQuery("UPDATE organizations").
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(time.Now()))

	org := &models.Organization{ID: "org-1", DisplayName: "Acme", DefaultRateLimit: 30, IsActive: true}
	if err := repo.Update(context.Background(), org); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if org.UpdatedAt.IsZero() {
		t.Error("UpdatedAt not filled")
	}
}

func TestOrganizationUpdate_NotFound(t *testing.T) {
	repo, mock := newOrgRepo(t)
	mock.ExpectQuery("UPDATE organizations").
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}))

	err := repo.Update(context.Background(), &models.Organization{ID: "nope"})
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("error = %v, want sql.ErrNoRows", err)
	}
}
