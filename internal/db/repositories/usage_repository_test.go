package repositories

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/assessment-platform/assessment-api/internal/db/models"
)

func newUsageRepo(t *testing.T) (*UsageRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := newMockDB(t)
	return NewUsageRepository(db), mock
}

func TestUsageInsert(t *testing.T) {
	repo, mock := newUsageRepo(t)
	mock.ExpectQuery("INSERT INTO usage_logs").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(17), time.Now()))

	org := "org-1"
	entry := &models.UsageLog{OrganizationID: &org, Method: "POST", Endpoint: "/sessions", StatusCode: 201}
	if err := repo.Insert(context.Background(), entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.ID != 17 {
		t.Errorf("ID = %d, want 17", entry.ID)
	}
}

func TestUsageAggregate_TruncatesByPeriod(t *testing.T) {
	repo, mock := newUsageRepo(t)
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)
	mock.ExpectQuery("SELECT date_trunc\\(\\$2, created_at\\) AS bucket").
		WithArgs("org-1", "week", from, to).
		WillReturnRows(sqlmock.NewRows([]string{"bucket", "requests", "errors", "rate_limited", "avg_latency_ms"}).
			AddRow(from, 120, 6, 2, 14.5))

	buckets, err := repo.Aggregate(context.Background(), "org-1", PeriodWeekly, from, to)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(buckets) != 1 || buckets[0].Requests != 120 || buckets[0].RateLimited != 2 {
		t.Errorf("Aggregate = %+v", buckets)
	}
	expectationsMet(t, mock)
}

func TestUsageAggregate_UnknownPeriod(t *testing.T) {
	repo, _ := newUsageRepo(t)
	if _, err := repo.Aggregate(context.Background(), "org-1", "hourly", time.Now(), time.Now()); err == nil {
		t.Error("expected error for unknown period")
	}
	if ValidPeriod("hourly") || !ValidPeriod(PeriodMonthly) {
		t.Error("ValidPeriod mismatch")
	}
}

func TestUsageCountThisMonth(t *testing.T) {
	repo, mock := newUsageRepo(t)
	endpoints := []string{"/sessions", "/api/v1/sessions"}
	mock.ExpectQuery("endpoint = ANY\\(\\$3\\) .+ date_trunc\\('month', now\\(\\) AT TIME ZONE 'UTC'\\) AT TIME ZONE 'UTC'").
		WithArgs("org-1", "POST", pq.Array(endpoints), 201).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(99)))

	n, err := repo.CountThisMonth(context.Background(), "org-1", "POST", endpoints, 201)
	if err != nil || n != 99 {
		t.Errorf("CountThisMonth = %d, %v; want 99, nil", n, err)
	}
}
