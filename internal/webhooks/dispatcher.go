// Package webhooks delivers the assessment.completed event to the webhook URL
// a tenant attached to a session. Delivery is a single bounded POST issued
// after the completion transaction commits; failures are recorded and
// reported to the caller as a boolean, never as an error.
package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/assessment-platform/assessment-api/internal/config"
	"github.com/assessment-platform/assessment-api/internal/crypto"
	"github.com/assessment-platform/assessment-api/internal/db/models"
	"github.com/assessment-platform/assessment-api/internal/telemetry"
)

// EventCompleted is the only event type emitted today.
const EventCompleted = "assessment.completed"

// Header names set on every delivery.
const (
	HeaderEvent     = "X-Assessment-Event"
	HeaderDelivery  = "X-Assessment-Delivery"
	HeaderSignature = "X-Assessment-Signature"
)

// Event is the JSON body posted to the webhook URL.
type Event struct {
	Event           string                        `json:"event"`
	SessionID       string                        `json:"session_id"`
	OrganizationID  string                        `json:"organization_id"`
	ExternalUserID  string                        `json:"external_user_id"`
	AssessmentID    string                        `json:"assessment_id"`
	Timestamp       time.Time                     `json:"timestamp"`
	Profile         string                        `json:"profile"`
	Scores          models.ScoreMap               `json:"scores"`
	Recommendations []models.CareerRecommendation `json:"recommendations"`
	Metadata        models.JSONMap                `json:"metadata,omitempty"`
}

// Target is where and how one event is delivered.
type Target struct {
	URL string
	// Secret signs the body when non-empty.
	Secret string
}

// DeliveryRecorder persists delivery attempts.
type DeliveryRecorder interface {
	Record(ctx context.Context, d *models.WebhookDelivery) error
}

// Dispatcher posts completion events.
type Dispatcher struct {
	client             *http.Client
	recorder           DeliveryRecorder
	userAgent          string
	maxRecommendations int
}

// NewDispatcher creates a dispatcher with a client bounded by cfg.Timeout.
func NewDispatcher(cfg *config.WebhooksConfig, recorder DeliveryRecorder) *Dispatcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = "assessment-api-webhook/1.0"
	}
	return &Dispatcher{
		client:             &http.Client{Timeout: timeout},
		recorder:           recorder,
		userAgent:          ua,
		maxRecommendations: cfg.MaxRecommendations,
	}
}

// Deliver posts ev to target and records the attempt. It reports whether the
// receiver answered with a 2xx status.
func (d *Dispatcher) Deliver(ctx context.Context, target Target, ev *Event) bool {
	if ev.Event == "" {
		ev.Event = EventCompleted
	}
	if d.maxRecommendations > 0 && len(ev.Recommendations) > d.maxRecommendations {
		ev.Recommendations = ev.Recommendations[:d.maxRecommendations]
	}

	start := time.Now()
	status, err := d.send(ctx, target, ev)
	delivery := newDelivery(target.URL, ev)
	delivery.Success = err == nil
	delivery.DurationMs = time.Since(start).Milliseconds()
	if status > 0 {
		delivery.StatusCode = &status
	}

	if err != nil {
		slog.Warn("webhook delivery failed",
			"session_id", ev.SessionID, "status", status, "error", err)
	}
	d.record(ctx, delivery, err)
	return err == nil
}

// Fail records ev as undelivered without contacting url and reports false. It is used
// when the event cannot be sent the way the receiver expects, such as when the signing
// secret is unavailable.
func (d *Dispatcher) Fail(ctx context.Context, url string, ev *Event, reason error) bool {
	slog.Warn("webhook not sent", "session_id", ev.SessionID, "error", reason)
	d.record(ctx, newDelivery(url, ev), reason)
	return false
}

func newDelivery(url string, ev *Event) *models.WebhookDelivery {
	delivery := &models.WebhookDelivery{SessionID: ev.SessionID, URL: url}
	if ev.AssessmentID != "" {
		id := ev.AssessmentID
		delivery.ResultID = &id
	}
	return delivery
}

func (d *Dispatcher) record(ctx context.Context, delivery *models.WebhookDelivery, err error) {
	if err != nil {
		msg := err.Error()
		delivery.Error = &msg
		telemetry.WebhookDeliveriesTotal.WithLabelValues("failure").Inc()
	} else {
		telemetry.WebhookDeliveriesTotal.WithLabelValues("success").Inc()
	}

	// The request context may already be cancelled by the time the receiver
	// answers; the record is written on its own budget.
	recCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if rerr := d.recorder.Record(recCtx, delivery); rerr != nil {
		slog.Error("failed to record webhook delivery", "session_id", delivery.SessionID, "error", rerr)
	}
}

// send performs the POST and returns the response status, 0 when no response arrived.
func (d *Dispatcher) send(ctx context.Context, target Target, ev *Event) (int, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal webhook event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.URL, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", d.userAgent)
	req.Header.Set(HeaderEvent, ev.Event)
	req.Header.Set(HeaderDelivery, uuid.NewString())
	if target.Secret != "" {
		req.Header.Set(HeaderSignature, crypto.Sign(target.Secret, body))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}
