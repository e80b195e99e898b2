package assessment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/assessment-platform/assessment-api/internal/archive"
	"github.com/assessment-platform/assessment-api/internal/db"
	"github.com/assessment-platform/assessment-api/internal/db/models"
	"github.com/assessment-platform/assessment-api/internal/scoring"
	"github.com/assessment-platform/assessment-api/internal/telemetry"
	"github.com/assessment-platform/assessment-api/internal/webhooks"
)

// Completion statuses.
const (
	StatusCompleted        = "completed"
	StatusAlreadyCompleted = "already_completed"
)

// CompleteRequest is the optional body of POST /sessions/:token/complete.
type CompleteRequest struct {
	ForceComplete bool `json:"force_complete"`
}

// CompletionResult is the scored outcome returned by Complete.
type CompletionResult struct {
	Status           string                         `json:"status"`
	AssessmentID     string                         `json:"assessment_id"`
	SessionID        string                         `json:"session_id"`
	Profile          string                         `json:"profile"`
	Scores           models.ScoreMap                `json:"scores"`
	Recommendations  []*models.CareerRecommendation `json:"recommendations"`
	ResponsesCount   int                            `json:"responses_count"`
	CompletionRate   float64                        `json:"completion_rate"`
	Revision         int                            `json:"revision"`
	CompletedAt      time.Time                      `json:"completed_at"`
	WebhookDelivered bool                           `json:"webhook_delivered"`
	CallbackURL      *string                        `json:"callback_url,omitempty"`
	ReturnURL        *string                        `json:"return_url,omitempty"`
}

// completion carries what the post-commit steps need from the transaction.
type completion struct {
	session   *models.AssessmentSession
	template  *models.AssessmentTemplate
	result    *models.AssessmentResult
	recs      []*models.CareerRecommendation
	responses []*models.AssessmentResponse
	fresh     bool
}

// CompletionRate is answered required questions as a percentage of required questions,
// rounded to two decimals. A template without required questions is always 100.
func CompletionRate(answeredRequired, required int) float64 {
	if required == 0 {
		return 100
	}
	return round2(float64(answeredRequired) * 100 / float64(required))
}

// Complete scores a session and persists the result exactly once per session. A repeat
// call returns the stored result as already_completed unless force is set, in which
// case the result is recomputed under a new revision.
//
// The webhook is sent after commit; its outcome only sets WebhookDelivered.
func (s *Service) Complete(ctx context.Context, org *models.Organization, token string, force bool) (*CompletionResult, error) {
	var c *completion
	err := db.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		var err error
		c, err = s.completeTx(ctx, tx, org.ID, token, force)
		return err
	})
	if err != nil {
		return nil, err
	}

	out := &CompletionResult{
		Status:          StatusAlreadyCompleted,
		AssessmentID:    c.result.ID,
		SessionID:       c.session.ID,
		Profile:         c.result.Profile,
		Scores:          c.result.Scores,
		Recommendations: c.recs,
		ResponsesCount:  c.result.ResponsesCount,
		CompletionRate:  c.result.CompletionRate,
		Revision:        c.result.Revision,
		CallbackURL:     c.session.CallbackURL,
		ReturnURL:       c.session.ReturnURL,
	}
	if c.session.CompletedAt != nil {
		out.CompletedAt = *c.session.CompletedAt
	}

	if !c.fresh {
		telemetry.SessionsCompletedTotal.WithLabelValues(c.result.Strategy, StatusAlreadyCompleted).Inc()
		last, err := s.deliveries.LatestForSession(ctx, c.session.ID)
		if err != nil {
			slog.WarnContext(ctx, "failed to load last webhook delivery", "session_id", c.session.ID, "error", err)
		} else if last != nil {
			out.WebhookDelivered = last.Success
		}
		return out, nil
	}

	out.Status = StatusCompleted
	telemetry.SessionsCompletedTotal.WithLabelValues(c.result.Strategy, StatusCompleted).Inc()
	slog.InfoContext(ctx, "assessment completed",
		"session_id", c.session.ID,
		"assessment_id", c.result.ID,
		"profile", c.result.Profile,
		"revision", c.result.Revision,
		"forced", force)

	if s.archiver != nil {
		s.archiver.StoreAsync(s.snapshot(c))
	}
	if c.session.WebhookURL != nil {
		ev := &webhooks.Event{
			Event:           webhooks.EventCompleted,
			SessionID:       c.session.ID,
			OrganizationID:  org.ID,
			ExternalUserID:  c.session.ExternalUserID,
			AssessmentID:    c.result.ID,
			Timestamp:       out.CompletedAt,
			Profile:         c.result.Profile,
			Scores:          c.result.Scores,
			Recommendations: derefRecommendations(c.recs),
			Metadata:        c.session.ClientMetadata,
		}
		target, err := s.webhookTarget(org, *c.session.WebhookURL)
		if err != nil {
			out.WebhookDelivered = s.dispatcher.Fail(ctx, target.URL, ev, err)
		} else {
			out.WebhookDelivered = s.dispatcher.Deliver(ctx, target, ev)
		}
	}
	return out, nil
}

func (s *Service) completeTx(ctx context.Context, tx *sqlx.Tx, orgID, token string, force bool) (*completion, error) {
	sess, err := s.sessions.GetValidForUpdate(ctx, tx, token, orgID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		// Only a completed session may be looked at past the validity predicate.
		sess, err = s.sessions.GetByTokenForUpdate(ctx, tx, token, orgID)
		if err != nil {
			return nil, err
		}
		if sess == nil || !sess.IsCompleted() {
			return nil, InvalidOrExpired()
		}
	}

	if sess.IsCompleted() && !force {
		existing, err := s.results.GetBySession(ctx, tx, sess.ID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return s.storedCompletion(ctx, tx, sess, existing)
		}
	}

	tpl, err := s.sessionTemplate(ctx, sess)
	if err != nil {
		return nil, err
	}
	responses, err := s.responses.ListBySession(ctx, tx, sess.ID)
	if err != nil {
		return nil, err
	}
	answers := scoring.AnswersFromResponses(responses)

	required := tpl.Questions.RequiredIDs()
	var missing []string
	for _, id := range required {
		if _, ok := answers[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 && !force {
		return nil, Incomplete(missing)
	}

	start := time.Now()
	outcome, err := scoring.Run(&scoring.Input{Questions: tpl.Questions, Logic: tpl.ScoringLogic, Answers: answers})
	telemetry.ScoringDuration.WithLabelValues(tpl.ScoringLogic.Strategy).Observe(time.Since(start).Seconds())
	if err != nil {
		slog.ErrorContext(ctx, "template scoring configuration rejected",
			"template_id", tpl.ID, "session_id", sess.ID, "error", err)
		return nil, fmt.Errorf("failed to score session %s: %w", sess.ID, err)
	}

	res := &models.AssessmentResult{
		SessionID:        sess.ID,
		OrganizationID:   orgID,
		Strategy:         tpl.ScoringLogic.Strategy,
		Profile:          outcome.Profile,
		Scores:           models.ScoreMap(outcome.Scores),
		ResponsesCount:   len(responses),
		RequiredCount:    len(required),
		AnsweredRequired: len(required) - len(missing),
		CompletionRate:   CompletionRate(len(required)-len(missing), len(required)),
	}

	if force {
		if err := s.results.Recompute(ctx, tx, res); err != nil {
			return nil, err
		}
	} else {
		inserted, err := s.results.InsertIfAbsent(ctx, tx, res)
		if err != nil {
			return nil, err
		}
		if !inserted {
			existing, err := s.results.GetBySession(ctx, tx, sess.ID)
			if err != nil {
				return nil, err
			}
			if existing == nil {
				return nil, fmt.Errorf("result of session %s conflicted but cannot be loaded", sess.ID)
			}
			return s.storedCompletion(ctx, tx, sess, existing)
		}
	}

	recs := scoring.Recommend(tpl.ScoringLogic, res.Profile, s.cfg.Completion.MaxRecommendations)
	if err := s.results.InsertRecommendations(ctx, tx, res.ID, res.Revision, recs); err != nil {
		return nil, err
	}

	completedAt, err := s.sessions.MarkCompleted(ctx, tx, sess.ID)
	if err != nil {
		return nil, err
	}
	sess.CompletedAt = &completedAt
	sess.IsActive = false

	return &completion{
		session:   sess,
		template:  tpl,
		result:    res,
		recs:      recs,
		responses: responses,
		fresh:     true,
	}, nil
}

func (s *Service) storedCompletion(ctx context.Context, tx *sqlx.Tx, sess *models.AssessmentSession, res *models.AssessmentResult) (*completion, error) {
	recs, err := s.results.ListRecommendations(ctx, tx, res.ID, res.Revision)
	if err != nil {
		return nil, err
	}
	return &completion{session: sess, result: res, recs: recs}, nil
}

// webhookTarget resolves the signing secret of org. An organization that has a secret
// never gets unsigned events: if the secret cannot be opened an error is returned and
// the event must not be sent.
func (s *Service) webhookTarget(org *models.Organization, url string) (webhooks.Target, error) {
	target := webhooks.Target{URL: url}
	if !org.HasWebhookSecret() {
		return target, nil
	}
	if s.cipher == nil {
		return target, errors.New("organization has a webhook secret but no encryption key is configured")
	}
	secret, err := s.cipher.Open(*org.WebhookSecretEncrypted)
	if err != nil {
		return target, fmt.Errorf("failed to open webhook secret: %w", err)
	}
	target.Secret = secret
	return target, nil
}

func (s *Service) snapshot(c *completion) *archive.Snapshot {
	snap := &archive.Snapshot{
		AssessmentID:     c.result.ID,
		SessionID:        c.session.ID,
		OrganizationID:   c.session.OrganizationID,
		ExternalUserID:   c.session.ExternalUserID,
		TemplateID:       c.template.ID,
		TemplateVersion:  c.template.Version,
		Strategy:         c.result.Strategy,
		Profile:          c.result.Profile,
		Scores:           c.result.Scores,
		Recommendations:  derefRecommendations(c.recs),
		Responses:        make([]models.AssessmentResponse, 0, len(c.responses)),
		ResponsesCount:   c.result.ResponsesCount,
		RequiredCount:    c.result.RequiredCount,
		AnsweredRequired: c.result.AnsweredRequired,
		CompletionRate:   c.result.CompletionRate,
		Revision:         c.result.Revision,
	}
	if c.session.CompletedAt != nil {
		snap.CompletedAt = *c.session.CompletedAt
	}
	for _, r := range c.responses {
		snap.Responses = append(snap.Responses, *r)
	}
	return snap
}

func derefRecommendations(recs []*models.CareerRecommendation) []models.CareerRecommendation {
	out := make([]models.CareerRecommendation, 0, len(recs))
	for _, r := range recs {
		out = append(out, *r)
	}
	return out
}
