package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"

	"github.com/assessment-platform/assessment-api/internal/auth"
	"github.com/assessment-platform/assessment-api/internal/db/models"
	"github.com/assessment-platform/assessment-api/internal/db/repositories"
	"github.com/assessment-platform/assessment-api/internal/ratelimit"
)

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

const testAPIKey = "ask_Zm9vYmFyYmF6cXV4MTIzNDU2Nzg5"

var (
	gateAPIKeyCols = []string{
		"id", "organization_id", "name", "description", "key_hash", "key_prefix", "rate_limit_per_minute",
		"is_active", "usage_count", "expires_at", "last_used_at", "revoked_at", "created_at",
	}
	gateOrgCols = []string{
		"id", "name", "display_name", "webhook_secret_encrypted", "monthly_session_quota",
		"default_rate_limit", "is_active", "created_at", "updated_at",
	}
)

const (
	prefixLookupQuery = "FROM api_keys k\\s+JOIN organizations o"
	orgByIDQuery      = "FROM organizations WHERE id = \\$1$"
	quotaCountQuery   = "SELECT COUNT\\(\\*\\) FROM usage_logs"
)

func testKeyHash(t *testing.T) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(testAPIKey), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return string(h)
}

func keyRows(hash string, rateLimit int) *sqlmock.Rows {
	return sqlmock.NewRows(gateAPIKeyCols).
		AddRow("key-1", "org-1", "LMS", nil, hash, auth.DisplayPrefix(testAPIKey), rateLimit,
			true, int64(0), nil, nil, nil, time.Now())
}

func orgRows(active bool, defaultLimit, quota int) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(gateOrgCols).
		AddRow("org-1", "acme", "Acme Corp", nil, quota, defaultLimit, active, now, now)
}

type stubLimiter struct {
	decision  *ratelimit.Decision
	err       error
	gotKey    string
	gotLimit  int
	callCount int
}

func (s *stubLimiter) Admit(_ context.Context, keyID string, limit int) (*ratelimit.Decision, error) {
	s.callCount++
	s.gotKey, s.gotLimit = keyID, limit
	if s.err != nil {
		return nil, s.err
	}
	d := *s.decision
	d.Limit = limit
	return &d, nil
}

func allowAll() *stubLimiter {
	return &stubLimiter{decision: &ratelimit.Decision{Allowed: true, Remaining: 9, ResetAt: time.Now().Add(time.Minute)}}
}

func newTestGate(t *testing.T, limiter ratelimit.Limiter) (*Gate, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })
	db := sqlx.NewDb(sqlDB, "postgres")
	g := NewGate(
		repositories.NewAPIKeyRepository(db),
		repositories.NewOrganizationRepository(db),
		repositories.NewUsageRepository(db),
		limiter,
		100,
	)
	return g, mock
}

func serveGate(g *Gate, authHeader string, handler gin.HandlerFunc) *httptest.ResponseRecorder {
	r := gin.New()
	r.Use(g.Authenticate())
	r.GET("/sessions/:token", handler)
	req := httptest.NewRequest(http.MethodGet, "/sessions/abc", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func okHandler(c *gin.Context) { c.Status(http.StatusOK) }

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", w.Body.String(), err)
	}
	code, _ := body["code"].(string)
	return code
}

// ---------------------------------------------------------------------------
// Authenticate
// ---------------------------------------------------------------------------

func TestAuthenticate_MissingHeader(t *testing.T) {
	limiter := allowAll()
	g, mock := newTestGate(t, limiter)

	w := serveGate(g, "", okHandler)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
	if code := errorCode(t, w); code != "UNAUTHENTICATED" {
		t.Errorf("code = %q", code)
	}
	if limiter.callCount != 0 {
		t.Error("limiter consulted for an unauthenticated request")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestAuthenticate_UnknownKey(t *testing.T) {
	g, mock := newTestGate(t, allowAll())
	mock.ExpectQuery(prefixLookupQuery).
		WithArgs(auth.DisplayPrefix(testAPIKey)).
		WillReturnRows(sqlmock.NewRows(gateAPIKeyCols))

	w := serveGate(g, "Bearer "+testAPIKey, okHandler)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestAuthenticate_WrongSecretSamePrefix(t *testing.T) {
	g, mock := newTestGate(t, allowAll())
	other, _ := bcrypt.GenerateFromPassword([]byte("ask_somethingelse"), bcrypt.MinCost)
	mock.ExpectQuery(prefixLookupQuery).WillReturnRows(keyRows(string(other), 60))

	w := serveGate(g, "Bearer "+testAPIKey, okHandler)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestAuthenticate_InactiveOrganization(t *testing.T) {
	g, mock := newTestGate(t, allowAll())
	mock.ExpectQuery(prefixLookupQuery).WillReturnRows(keyRows(testKeyHash(t), 60))
	mock.ExpectQuery(orgByIDQuery).WithArgs("org-1").WillReturnRows(orgRows(false, 0, 0))

	w := serveGate(g, "Bearer "+testAPIKey, okHandler)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestAuthenticate_Admitted(t *testing.T) {
	limiter := allowAll()
	g, mock := newTestGate(t, limiter)
	mock.ExpectQuery(prefixLookupQuery).WillReturnRows(keyRows(testKeyHash(t), 60))
	mock.ExpectQuery(orgByIDQuery).WithArgs("org-1").WillReturnRows(orgRows(true, 30, 0))

	var seenOrg, seenKey string
	w := serveGate(g, "Bearer "+testAPIKey, func(c *gin.Context) {
		seenOrg, seenKey = OrganizationID(c), APIKeyID(c)
		c.Status(http.StatusOK)
	})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	if seenOrg != "org-1" || seenKey != "key-1" {
		t.Errorf("context org=%q key=%q", seenOrg, seenKey)
	}
	if limiter.gotKey != "key-1" || limiter.gotLimit != 60 {
		t.Errorf("limiter called with key=%q limit=%d, want key-1/60", limiter.gotKey, limiter.gotLimit)
	}
	if got := w.Header().Get("X-RateLimit-Limit"); got != "60" {
		t.Errorf("X-RateLimit-Limit = %q", got)
	}
	if got := w.Header().Get("X-RateLimit-Remaining"); got != "9" {
		t.Errorf("X-RateLimit-Remaining = %q", got)
	}
	if w.Header().Get("Retry-After") != "" {
		t.Error("Retry-After set on an admitted request")
	}
}

func TestAuthenticate_LimitFallsBack(t *testing.T) {
	tests := []struct {
		name     string
		keyLimit int
		orgLimit int
		want     int
	}{
		{"key limit wins", 60, 30, 60},
		{"organization default", 0, 30, 30},
		{"configured default", 0, 0, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limiter := allowAll()
			g, mock := newTestGate(t, limiter)
			mock.ExpectQuery(prefixLookupQuery).WillReturnRows(keyRows(testKeyHash(t), tt.keyLimit))
			mock.ExpectQuery(orgByIDQuery).WillReturnRows(orgRows(true, tt.orgLimit, 0))

			serveGate(g, "Bearer "+testAPIKey, okHandler)
			if limiter.gotLimit != tt.want {
				t.Errorf("limit = %d, want %d", limiter.gotLimit, tt.want)
			}
		})
	}
}

func TestAuthenticate_RateLimited(t *testing.T) {
	reset := time.Now().Add(30 * time.Second)
	limiter := &stubLimiter{decision: &ratelimit.Decision{Allowed: false, ResetAt: reset}}
	g, mock := newTestGate(t, limiter)
	mock.ExpectQuery(prefixLookupQuery).WillReturnRows(keyRows(testKeyHash(t), 60))
	mock.ExpectQuery(orgByIDQuery).WillReturnRows(orgRows(true, 0, 0))

	called := false
	w := serveGate(g, "Bearer "+testAPIKey, func(c *gin.Context) { called = true })

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if called {
		t.Error("handler ran for a rejected request")
	}
	var body map[string]any
	json.Unmarshal(w.Body.Bytes(), &body)
	if body["code"] != "RATE_LIMITED" {
		t.Errorf("code = %v", body["code"])
	}
	if _, ok := body["reset_at"]; !ok {
		t.Error("reset_at missing from body")
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("Retry-After missing")
	}
	if got := w.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Errorf("X-RateLimit-Remaining = %q, want 0", got)
	}
}

func TestAuthenticate_LimiterFailureIsClosed(t *testing.T) {
	limiter := &stubLimiter{err: errors.New("connection refused")}
	g, mock := newTestGate(t, limiter)
	mock.ExpectQuery(prefixLookupQuery).WillReturnRows(keyRows(testKeyHash(t), 60))
	mock.ExpectQuery(orgByIDQuery).WillReturnRows(orgRows(true, 0, 0))

	w := serveGate(g, "Bearer "+testAPIKey, okHandler)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

// ---------------------------------------------------------------------------
// SessionQuota
// ---------------------------------------------------------------------------

func serveQuota(g *Gate, org *models.Organization) *httptest.ResponseRecorder {
	r := gin.New()
	r.POST("/sessions",
		func(c *gin.Context) {
			c.Set(OrganizationKey, org)
			c.Set(OrganizationIDKey, org.ID)
		},
		g.SessionQuota(),
		func(c *gin.Context) { c.Status(http.StatusCreated) },
	)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/sessions", nil))
	return w
}

func TestSessionQuota_Unlimited(t *testing.T) {
	g, mock := newTestGate(t, allowAll())
	w := serveQuota(g, &models.Organization{ID: "org-1"})
	if w.Code != http.StatusCreated {
		t.Errorf("status = %d, want 201", w.Code)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestSessionQuota_UnderQuota(t *testing.T) {
	g, mock := newTestGate(t, allowAll())
	mock.ExpectQuery(quotaCountQuery).
		WithArgs("org-1", http.MethodPost, sqlmock.AnyArg(), 201).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(9)))

	w := serveQuota(g, &models.Organization{ID: "org-1", MonthlySessionQuota: 10})
	if w.Code != http.StatusCreated {
		t.Errorf("status = %d, want 201", w.Code)
	}
}

func TestSessionQuota_Exhausted(t *testing.T) {
	g, mock := newTestGate(t, allowAll())
	g.now = func() time.Time { return time.Date(2026, time.December, 15, 10, 0, 0, 0, time.UTC) }
	mock.ExpectQuery(quotaCountQuery).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(10)))

	w := serveQuota(g, &models.Organization{ID: "org-1", MonthlySessionQuota: 10})
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	var body map[string]any
	json.Unmarshal(w.Body.Bytes(), &body)
	if body["code"] != "QUOTA_EXCEEDED" {
		t.Errorf("code = %v", body["code"])
	}
	if body["reset_at"] != "2027-01-01T00:00:00Z" {
		t.Errorf("reset_at = %v, want start of next month", body["reset_at"])
	}
}
