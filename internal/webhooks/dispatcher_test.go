package webhooks

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/assessment-platform/assessment-api/internal/config"
	"github.com/assessment-platform/assessment-api/internal/crypto"
	"github.com/assessment-platform/assessment-api/internal/db/models"
	"github.com/assessment-platform/assessment-api/internal/telemetry"
)

type fakeRecorder struct {
	mu   sync.Mutex
	got  []*models.WebhookDelivery
	fail error
}

func (f *fakeRecorder) Record(_ context.Context, d *models.WebhookDelivery) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, d)
	return f.fail
}

func sampleEvent() *Event {
	return &Event{
		SessionID:      "sess-1",
		OrganizationID: "org-1",
		ExternalUserID: "user-42",
		AssessmentID:   "res-1",
		Timestamp:      time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Profile:        "builder",
		Scores:         models.ScoreMap{"builder": 7},
		Recommendations: []models.CareerRecommendation{
			{Rank: 1, Title: "Engineer"}, {Rank: 2, Title: "Carpenter"},
			{Rank: 3, Title: "Architect"}, {Rank: 4, Title: "Surveyor"},
		},
		Metadata: models.JSONMap{"cohort": "spring"},
	}
}

func newDispatcher(rec DeliveryRecorder, timeout time.Duration) *Dispatcher {
	return NewDispatcher(&config.WebhooksConfig{Timeout: timeout, MaxRecommendations: 3}, rec)
}

func TestDeliver_SuccessSendsSignedEvent(t *testing.T) {
	var (
		headers http.Header
		body    []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers = r.Header.Clone()
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	rec := &fakeRecorder{}
	before := testutil.ToFloat64(telemetry.WebhookDeliveriesTotal.WithLabelValues("success"))

	ok := newDispatcher(rec, time.Second).Deliver(context.Background(), Target{URL: srv.URL, Secret: "s3cret"}, sampleEvent())
	require.True(t, ok)

	assert.Equal(t, "application/json", headers.Get("Content-Type"))
	assert.Equal(t, "assessment-api-webhook/1.0", headers.Get("User-Agent"))
	assert.Equal(t, EventCompleted, headers.Get(HeaderEvent))
	_, err := uuid.Parse(headers.Get(HeaderDelivery))
	assert.NoError(t, err, "delivery header should be a uuid")
	assert.True(t, crypto.Verify("s3cret", body, headers.Get(HeaderSignature)))

	var sent Event
	require.NoError(t, json.Unmarshal(body, &sent))
	assert.Equal(t, EventCompleted, sent.Event)
	assert.Equal(t, "user-42", sent.ExternalUserID)
	assert.Len(t, sent.Recommendations, 3, "recommendations are truncated")
	assert.Equal(t, "spring", sent.Metadata["cohort"])

	require.Len(t, rec.got, 1)
	d := rec.got[0]
	assert.True(t, d.Success)
	require.NotNil(t, d.StatusCode)
	assert.Equal(t, http.StatusNoContent, *d.StatusCode)
	require.NotNil(t, d.ResultID)
	assert.Equal(t, "res-1", *d.ResultID)
	assert.Nil(t, d.Error)

	assert.Equal(t, before+1, testutil.ToFloat64(telemetry.WebhookDeliveriesTotal.WithLabelValues("success")))
}

func TestDeliver_NoSecretNoSignature(t *testing.T) {
	var sig string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sig = r.Header.Get(HeaderSignature)
	}))
	defer srv.Close()

	ok := newDispatcher(&fakeRecorder{}, time.Second).Deliver(context.Background(), Target{URL: srv.URL}, sampleEvent())
	assert.True(t, ok)
	assert.Empty(t, sig)
}

func TestDeliver_Non2xxIsFailure(t *testing.T) {
	for _, status := range []int{http.StatusMultipleChoices, http.StatusBadRequest, http.StatusInternalServerError} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))

		rec := &fakeRecorder{}
		ok := newDispatcher(rec, time.Second).Deliver(context.Background(), Target{URL: srv.URL}, sampleEvent())
		srv.Close()

		assert.False(t, ok, "status %d", status)
		require.Len(t, rec.got, 1)
		assert.False(t, rec.got[0].Success)
		require.NotNil(t, rec.got[0].StatusCode)
		assert.Equal(t, status, *rec.got[0].StatusCode)
		require.NotNil(t, rec.got[0].Error)
	}
}

func TestDeliver_TimeoutIsFailure(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	rec := &fakeRecorder{}
	start := time.Now()
	ok := newDispatcher(rec, 50*time.Millisecond).Deliver(context.Background(), Target{URL: srv.URL}, sampleEvent())

	assert.False(t, ok)
	assert.Less(t, time.Since(start), 2*time.Second)
	require.Len(t, rec.got, 1)
	assert.Nil(t, rec.got[0].StatusCode, "no response means no status")
}

func TestDeliver_UnreachableIsFailure(t *testing.T) {
	rec := &fakeRecorder{}
	ok := newDispatcher(rec, time.Second).Deliver(context.Background(), Target{URL: "http://127.0.0.1:1/hook"}, sampleEvent())
	assert.False(t, ok)
	require.Len(t, rec.got, 1)
	assert.False(t, rec.got[0].Success)
}

func TestDeliver_RecorderErrorDoesNotChangeOutcome(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	rec := &fakeRecorder{fail: errors.New("db down")}
	ok := newDispatcher(rec, time.Second).Deliver(context.Background(), Target{URL: srv.URL}, sampleEvent())
	assert.True(t, ok)
}

func TestFail_RecordsWithoutSending(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { hits++ }))
	defer srv.Close()

	rec := &fakeRecorder{}
	before := testutil.ToFloat64(telemetry.WebhookDeliveriesTotal.WithLabelValues("failure"))
	ok := newDispatcher(rec, time.Second).Fail(context.Background(), srv.URL, sampleEvent(), errors.New("secret unavailable"))

	assert.False(t, ok)
	assert.Zero(t, hits)
	require.Len(t, rec.got, 1)
	d := rec.got[0]
	assert.False(t, d.Success)
	assert.Equal(t, srv.URL, d.URL)
	assert.Nil(t, d.StatusCode)
	require.NotNil(t, d.ResultID)
	assert.Equal(t, "res-1", *d.ResultID)
	require.NotNil(t, d.Error)
	assert.Equal(t, "secret unavailable", *d.Error)
	assert.Equal(t, before+1, testutil.ToFloat64(telemetry.WebhookDeliveriesTotal.WithLabelValues("failure")))
}

func TestNewDispatcher_Defaults(t *testing.T) {
	d := NewDispatcher(&config.WebhooksConfig{}, &fakeRecorder{})
	assert.Equal(t, 5*time.Second, d.client.Timeout)
	assert.Equal(t, "assessment-api-webhook/1.0", d.userAgent)
}
