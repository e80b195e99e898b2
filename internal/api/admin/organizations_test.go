package admin

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/assessment-platform/assessment-api/internal/audit"
	"github.com/assessment-platform/assessment-api/internal/crypto"
	"github.com/assessment-platform/assessment-api/internal/db/repositories"
)

const testOrgID = "6f1c2d3e-4a5b-4c6d-8e9f-0a1b2c3d4e5f"

var orgCols = []string{
	"id", "name", "display_name", "webhook_secret_encrypted", "monthly_session_quota",
	"default_rate_limit", "is_active", "created_at", "updated_at",
}

func orgRow() *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(orgCols).
		AddRow(testOrgID, "acme", "Acme Corp", nil, 1000, 60, true, now, now)
}

func testCipher(t *testing.T) *crypto.SecretCipher {
	t.Helper()
	c, err := crypto.NewSecretCipher(bytes.Repeat([]byte{7}, 32))
	require.NoError(t, err)
	return c
}

func newOrgRouter(t *testing.T, cipher *crypto.SecretCipher) (sqlmock.Sqlmock, *gin.Engine) {
	mock, r, _ := newAuditedOrgRouter(t, cipher)
	return mock, r
}

func newAuditedOrgRouter(t *testing.T, cipher *crypto.SecretCipher) (sqlmock.Sqlmock, *gin.Engine, *recordingAuditor) {
	t.Helper()
	db, mock := newMockDB(t)
	auditor := &recordingAuditor{}
	h := NewOrganizationHandlers(repositories.NewOrganizationRepository(db), cipher, auditor)

	r := gin.New()
	r.GET("/admin/organizations", h.ListOrganizationsHandler())
	r.GET("/admin/organizations/:id", h.GetOrganizationHandler())
	r.POST("/admin/organizations", h.CreateOrganizationHandler())
	r.PUT("/admin/organizations/:id", h.UpdateOrganizationHandler())
	return mock, r, auditor
}

func doJSON(r http.Handler, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var out map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w, out
}

func TestCreateOrganization(t *testing.T) {
	mock, r, auditor := newAuditedOrgRouter(t, nil)
	now := time.Now()
	mock.ExpectQuery("INSERT INTO organizations").
		WithArgs("acme", "Acme Corp", nil, 500, 30).
		WillReturnRows(sqlmock.NewRows([]string{"id", "is_active", "created_at", "updated_at"}).
			AddRow(testOrgID, true, now, now))

	w, body := doJSON(r, http.MethodPost, "/admin/organizations", gin.H{
		"name": "acme", "display_name": "Acme Corp", "monthly_session_quota": 500, "default_rate_limit": 30,
	})

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, testOrgID, body["id"])
	assert.Equal(t, false, body["has_webhook_secret"])
	assert.NotContains(t, body, "webhook_secret")
	assert.Equal(t, []string{audit.ActionOrganizationCreated}, auditor.actions())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOrganization_WithWebhookSecret(t *testing.T) {
	cipher := testCipher(t)
	mock, r := newOrgRouter(t, cipher)
	now := time.Now()
	mock.ExpectQuery("INSERT INTO organizations").
		WithArgs("acme", "Acme Corp", sqlmock.AnyArg(), 0, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "is_active", "created_at", "updated_at"}).
			AddRow(testOrgID, true, now, now))

	w, body := doJSON(r, http.MethodPost, "/admin/organizations", gin.H{
		"name": "acme", "display_name": "Acme Corp", "generate_webhook_secret": true,
	})

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, true, body["has_webhook_secret"])
	secret, _ := body["webhook_secret"].(string)
	assert.NotEmpty(t, secret)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOrganization_WebhookSecretWithoutCipher(t *testing.T) {
	_, r := newOrgRouter(t, nil)

	w, body := doJSON(r, http.MethodPost, "/admin/organizations", gin.H{
		"name": "acme", "display_name": "Acme Corp", "generate_webhook_secret": true,
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", body["code"])
}

func TestCreateOrganization_InvalidName(t *testing.T) {
	_, r := newOrgRouter(t, nil)

	for _, name := range []string{"A", "Acme", "acme corp", "-acme", "acme-"} {
		w, body := doJSON(r, http.MethodPost, "/admin/organizations", gin.H{"name": name, "display_name": "x"})
		assert.Equal(t, http.StatusBadRequest, w.Code, name)
		assert.Equal(t, "VALIDATION_ERROR", body["code"], name)
	}
}

func TestCreateOrganization_MissingFields(t *testing.T) {
	_, r := newOrgRouter(t, nil)

	w, _ := doJSON(r, http.MethodPost, "/admin/organizations", gin.H{"name": "acme"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateOrganization_Duplicate(t *testing.T) {
	mock, r, auditor := newAuditedOrgRouter(t, nil)
	mock.ExpectQuery("INSERT INTO organizations").
		WillReturnError(&pq.Error{Code: "23505"})

	w, body := doJSON(r, http.MethodPost, "/admin/organizations", gin.H{"name": "acme", "display_name": "Acme"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "DUPLICATE_NAME", body["code"])
	assert.Empty(t, auditor.actions())
}

func TestListOrganizations(t *testing.T) {
	mock, r := newOrgRouter(t, nil)
	mock.ExpectQuery("SELECT COUNT").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("SELECT .+ FROM organizations ORDER BY name").
		WithArgs(5, 0).
		WillReturnRows(orgRow())

	w, body := doJSON(r, http.MethodGet, "/admin/organizations?limit=5", nil)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	orgs, _ := body["organizations"].([]any)
	assert.Len(t, orgs, 1)
	page, _ := body["pagination"].(map[string]any)
	assert.EqualValues(t, 1, page["total"])
	assert.EqualValues(t, 5, page["limit"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListOrganizations_ByName(t *testing.T) {
	mock, r := newOrgRouter(t, nil)
	mock.ExpectQuery("SELECT .+ FROM organizations WHERE name").
		WithArgs("acme").
		WillReturnRows(orgRow())

	w, body := doJSON(r, http.MethodGet, "/admin/organizations?name=acme", nil)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	orgs, _ := body["organizations"].([]any)
	assert.Len(t, orgs, 1)

	mock.ExpectQuery("SELECT .+ FROM organizations WHERE name").
		WithArgs("nobody").
		WillReturnRows(sqlmock.NewRows(orgCols))
	w, body = doJSON(r, http.MethodGet, "/admin/organizations?name=nobody", nil)
	require.Equal(t, http.StatusOK, w.Code)
	orgs, _ = body["organizations"].([]any)
	assert.Empty(t, orgs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOrganization(t *testing.T) {
	mock, r := newOrgRouter(t, nil)
	mock.ExpectQuery("SELECT .+ FROM organizations WHERE id").
		WithArgs(testOrgID).
		WillReturnRows(orgRow())

	w, body := doJSON(r, http.MethodGet, "/admin/organizations/"+testOrgID, nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "acme", body["name"])
	assert.NotContains(t, body, "webhook_secret_encrypted")
}

func TestGetOrganization_NotFound(t *testing.T) {
	mock, r := newOrgRouter(t, nil)
	mock.ExpectQuery("SELECT .+ FROM organizations WHERE id").
		WillReturnRows(sqlmock.NewRows(orgCols))

	w, body := doJSON(r, http.MethodGet, "/admin/organizations/"+testOrgID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", body["code"])

	w, _ = doJSON(r, http.MethodGet, "/admin/organizations/not-a-uuid", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpdateOrganization(t *testing.T) {
	mock, r := newOrgRouter(t, nil)
	mock.ExpectQuery("SELECT .+ FROM organizations WHERE id").
		WithArgs(testOrgID).
		WillReturnRows(orgRow())
	mock.ExpectQuery("UPDATE organizations").
		WithArgs(testOrgID, "Acme Corp", nil, 2000, 60, false).
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(time.Now()))

	w, body := doJSON(r, http.MethodPut, "/admin/organizations/"+testOrgID, gin.H{
		"monthly_session_quota": 2000, "is_active": false,
	})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 2000, body["monthly_session_quota"])
	assert.Equal(t, false, body["is_active"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateOrganization_RotateSecret(t *testing.T) {
	mock, r := newOrgRouter(t, testCipher(t))
	mock.ExpectQuery("SELECT .+ FROM organizations WHERE id").
		WillReturnRows(orgRow())
	mock.ExpectQuery("UPDATE organizations").
		WithArgs(testOrgID, "Acme Corp", sqlmock.AnyArg(), 1000, 60, true).
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(time.Now()))

	w, body := doJSON(r, http.MethodPut, "/admin/organizations/"+testOrgID, gin.H{"rotate_webhook_secret": true})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotEmpty(t, body["webhook_secret"])
	assert.Equal(t, true, body["has_webhook_secret"])
}

func TestUpdateOrganization_ConflictingSecretFlags(t *testing.T) {
	_, r := newOrgRouter(t, testCipher(t))

	w, _ := doJSON(r, http.MethodPut, "/admin/organizations/"+testOrgID, gin.H{
		"rotate_webhook_secret": true, "clear_webhook_secret": true,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
