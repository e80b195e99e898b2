package assessment

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/assessment-platform/assessment-api/internal/telemetry"
)

func submit(questionID, answer string) *SubmitResponseRequest {
	return &SubmitResponseRequest{QuestionID: questionID, Answer: json.RawMessage(answer)}
}

func TestSubmitResponse_Stored(t *testing.T) {
	svc, mock := newTestService(t)
	before := testutil.ToFloat64(telemetry.ResponsesTotal.WithLabelValues("stored"))
	advanced := activeSession()
	advanced.Index, advanced.Responses = 1, 1

	mock.ExpectBegin()
	mock.ExpectQuery(validSessionQuery+".+FOR UPDATE").WithArgs("tok", "org-1").WillReturnRows(activeSession().rows())
	mock.ExpectQuery(templateByIDQuery).WillReturnRows(acmeTemplateRows())
	mock.ExpectQuery("INSERT INTO assessment_responses").
		WithArgs("sess-1", "q1", []byte(`4`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("resp-1"))
	mock.ExpectQuery("WITH answered AS").WithArgs("sess-1").WillReturnRows(advanced.rows())
	mock.ExpectCommit()

	out, err := svc.SubmitResponse(context.Background(), "org-1", "tok", submit("q1", `4`))
	require.NoError(t, err)
	assert.Equal(t, "resp-1", out.ResponseID)
	assert.False(t, out.Duplicate)
	assert.Equal(t, 1, out.NextQuestionIndex)
	assert.Equal(t, 1, out.ResponsesCount)
	assert.Equal(t, 2, out.TotalQuestions)
	assert.False(t, out.IsLastQuestion)
	assert.Equal(t, before+1, testutil.ToFloat64(telemetry.ResponsesTotal.WithLabelValues("stored")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// The template was edited after the session started: version 4 only asks q3, but the
// session keeps answering the version 3 questions it was created with.
func TestSubmitResponse_UsesPinnedTemplateVersion(t *testing.T) {
	svc, mock := newTestService(t)
	edited := []byte(`[{"category":"social","questions":[{"id":"q3","text":"Do you enjoy teaching?","type":"scale","required":true,"min":1,"max":5}]}]`)
	advanced := activeSession()
	advanced.Index, advanced.Responses = 1, 1

	mock.ExpectBegin()
	mock.ExpectQuery(validSessionQuery).WillReturnRows(activeSession().rows())
	mock.ExpectQuery(templateByIDQuery).WillReturnRows(templateRows(4, true, edited, []byte(`{"strategy":"weighted"}`)))
	mock.ExpectQuery(templateVersionQuery).
		WithArgs("tpl-1", 3).
		WillReturnRows(sqlmock.NewRows([]string{"template_id", "version", "questions", "scoring_logic", "created_at"}).
			AddRow("tpl-1", 3, acmeQuestions, acmeLogic, time.Now()))
	mock.ExpectQuery("INSERT INTO assessment_responses").
		WithArgs("sess-1", "q1", []byte(`4`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("resp-1"))
	mock.ExpectQuery("WITH answered AS").WillReturnRows(advanced.rows())
	mock.ExpectCommit()

	out, err := svc.SubmitResponse(context.Background(), "org-1", "tok", submit("q1", `4`))
	require.NoError(t, err)
	assert.Equal(t, "q1", out.QuestionID)
	assert.Equal(t, 2, out.TotalQuestions)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmitResponse_DuplicateKeepsFirstAnswer(t *testing.T) {
	svc, mock := newTestService(t)
	advanced := activeSession()
	advanced.Index, advanced.Responses = 2, 2

	mock.ExpectBegin()
	mock.ExpectQuery(validSessionQuery).WillReturnRows(activeSession().rows())
	mock.ExpectQuery(templateByIDQuery).WillReturnRows(acmeTemplateRows())
	mock.ExpectQuery("INSERT INTO assessment_responses").WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery("SELECT id FROM assessment_responses").
		WithArgs("sess-1", "q2").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("resp-2"))
	mock.ExpectQuery("WITH answered AS").WillReturnRows(advanced.rows())
	mock.ExpectCommit()

	out, err := svc.SubmitResponse(context.Background(), "org-1", "tok", submit("q2", `1`))
	require.NoError(t, err)
	assert.True(t, out.Duplicate)
	assert.Equal(t, "resp-2", out.ResponseID)
	assert.True(t, out.IsLastQuestion)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmitResponse_Rejections(t *testing.T) {
	pausedAt := time.Now()

	tests := []struct {
		name    string
		session *sqlmock.Rows
		request *SubmitResponseRequest
		kind    Kind
		code    string
	}{
		{
			name:    "expired or unknown token",
			session: sqlmock.NewRows(sessionCols),
			request: submit("q1", `3`),
			kind:    KindInvalidOrExpired,
			code:    CodeInvalidOrExpired,
		},
		{
			name: "paused session",
			session: func() *sqlmock.Rows {
				f := activeSession()
				f.PausedAt = &pausedAt
				return f.rows()
			}(),
			request: submit("q1", `3`),
			kind:    KindValidation,
			code:    CodeSessionPaused,
		},
		{
			name:    "question of another template",
			session: activeSession().rows(),
			request: submit("q9", `3`),
			kind:    KindValidation,
			code:    CodeQuestionMismatch,
		},
		{
			name:    "answer out of range",
			session: activeSession().rows(),
			request: submit("q1", `9`),
			kind:    KindValidation,
			code:    CodeInvalidAnswer,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, mock := newTestService(t)
			before := testutil.ToFloat64(telemetry.ResponsesTotal.WithLabelValues("rejected"))

			mock.ExpectBegin()
			mock.ExpectQuery(validSessionQuery).WillReturnRows(tt.session)
			if tt.code == CodeQuestionMismatch || tt.code == CodeInvalidAnswer {
				mock.ExpectQuery(templateByIDQuery).WillReturnRows(acmeTemplateRows())
			}
			mock.ExpectRollback()

			_, err := svc.SubmitResponse(context.Background(), "org-1", "tok", tt.request)
			assertKind(t, err, tt.kind, tt.code)
			assert.Equal(t, before+1, testutil.ToFloat64(telemetry.ResponsesTotal.WithLabelValues("rejected")))
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}
