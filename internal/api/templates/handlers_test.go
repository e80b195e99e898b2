package templates

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/assessment-platform/assessment-api/internal/assessment"
	"github.com/assessment-platform/assessment-api/internal/db/models"
	"github.com/assessment-platform/assessment-api/internal/middleware"
)

const templateID = "0c1d7f9e-3a4b-4c5d-8e6f-7a8b9c0d1e2f"

const templateBody = `{
	"name": "career-v2",
	"is_default": true,
	"questions": [{"category": "realistic", "questions": [
		{"id": "q1", "type": "scale", "text": "I enjoy fixing machines", "min": 1, "max": 5, "required": true}
	]}],
	"scoring_logic": {"strategy": "weighted"}
}`

type stubService struct {
	err error

	gotInactive bool
	gotID       string
	gotReq      *assessment.TemplateRequest
	deleted     string
}

func (s *stubService) ListTemplates(_ context.Context, _ string, includeInactive bool) ([]*models.AssessmentTemplate, error) {
	s.gotInactive = includeInactive
	return []*models.AssessmentTemplate{{ID: templateID, Name: "career-v2"}}, s.err
}

func (s *stubService) GetTemplate(_ context.Context, _ string, id string) (*models.AssessmentTemplate, error) {
	s.gotID = id
	if s.err != nil {
		return nil, s.err
	}
	return &models.AssessmentTemplate{ID: id, Name: "career-v2", Version: 3}, nil
}

func (s *stubService) CreateTemplate(_ context.Context, orgID string, req *assessment.TemplateRequest) (*models.AssessmentTemplate, error) {
	s.gotReq = req
	if s.err != nil {
		return nil, s.err
	}
	return &models.AssessmentTemplate{ID: templateID, OrganizationID: orgID, Name: req.Name, Version: 1}, nil
}

func (s *stubService) UpdateTemplate(_ context.Context, _ string, id string, req *assessment.TemplateRequest) (*models.AssessmentTemplate, error) {
	s.gotID, s.gotReq = id, req
	if s.err != nil {
		return nil, s.err
	}
	return &models.AssessmentTemplate{ID: id, Name: "career-v2", Version: 2}, nil
}

func (s *stubService) DeleteTemplate(_ context.Context, _ string, id string) error {
	s.deleted = id
	return s.err
}

func newRouter(svc Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandlers(svc)
	r := gin.New()
	r.Use(func(c *gin.Context) { c.Set(middleware.OrganizationIDKey, "org-1") })
	r.GET("/templates", h.ListHandler())
	r.POST("/templates", h.CreateHandler())
	r.GET("/templates/:id", h.GetHandler())
	r.PUT("/templates/:id", h.UpdateHandler())
	r.DELETE("/templates/:id", h.DeleteHandler())
	return r
}

func do(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestListHandler(t *testing.T) {
	svc := &stubService{}
	w := do(newRouter(svc), http.MethodGet, "/templates?include_inactive=true", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, svc.gotInactive)
	var body struct {
		Templates []models.AssessmentTemplate `json:"templates"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body.Templates, 1)
}

func TestCreateHandler(t *testing.T) {
	svc := &stubService{}
	w := do(newRouter(svc), http.MethodPost, "/templates", templateBody)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.NotNil(t, svc.gotReq)
	assert.Equal(t, "career-v2", svc.gotReq.Name)
	assert.True(t, svc.gotReq.IsDefault)
	assert.Equal(t, 1, svc.gotReq.Questions.Total())
}

func TestCreateHandler_Duplicate(t *testing.T) {
	svc := &stubService{err: assessment.Validation(assessment.CodeDuplicateName, "a template named \"career-v2\" already exists")}
	w := do(newRouter(svc), http.MethodPost, "/templates", templateBody)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), assessment.CodeDuplicateName)
}

func TestCreateHandler_MissingQuestions(t *testing.T) {
	svc := &stubService{}
	w := do(newRouter(svc), http.MethodPost, "/templates", `{"name":"empty"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Nil(t, svc.gotReq)
}

func TestGetHandler(t *testing.T) {
	svc := &stubService{}
	w := do(newRouter(svc), http.MethodGet, "/templates/"+templateID, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, templateID, svc.gotID)
}

func TestGetHandler_MalformedID(t *testing.T) {
	svc := &stubService{}
	w := do(newRouter(svc), http.MethodGet, "/templates/career-v2", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Empty(t, svc.gotID)
}

func TestUpdateHandler(t *testing.T) {
	svc := &stubService{}
	w := do(newRouter(svc), http.MethodPut, "/templates/"+templateID, templateBody)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, templateID, svc.gotID)
}

func TestDeleteHandler(t *testing.T) {
	svc := &stubService{}
	w := do(newRouter(svc), http.MethodDelete, "/templates/"+templateID, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, templateID, svc.deleted)
}

func TestDeleteHandler_NotFound(t *testing.T) {
	svc := &stubService{err: assessment.NotFound(assessment.CodeNotFound, "template not found")}
	w := do(newRouter(svc), http.MethodDelete, "/templates/"+templateID, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
