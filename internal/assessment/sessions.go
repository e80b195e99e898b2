package assessment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/assessment-platform/assessment-api/internal/auth"
	"github.com/assessment-platform/assessment-api/internal/db/models"
	"github.com/assessment-platform/assessment-api/internal/db/repositories"
	"github.com/assessment-platform/assessment-api/internal/telemetry"
)

// Manage actions accepted by POST /sessions/:token/manage.
const (
	ActionStatus    = "status"
	ActionExtend    = "extend"
	ActionRecovery  = "recovery"
	ActionAnalytics = "analytics"
	ActionPause     = "pause"
	ActionResume    = "resume"
)

// CodeSessionNotPaused is returned when resuming a session that is running.
const CodeSessionNotPaused = "SESSION_NOT_PAUSED"

const tokenAttempts = 3

// CreateSessionRequest is the body of POST /sessions.
type CreateSessionRequest struct {
	ExternalUserID   string         `json:"external_user_id" binding:"required,max=255"`
	TemplateName     string         `json:"template_name"`
	CallbackURL      string         `json:"callback_url" binding:"omitempty,httpurl"`
	WebhookURL       string         `json:"webhook_url" binding:"omitempty,httpurl"`
	ReturnURL        string         `json:"return_url" binding:"omitempty,httpurl"`
	ClientMetadata   models.JSONMap `json:"client_metadata"`
	ExpiresInMinutes *int           `json:"expires_in_minutes"`
}

// QuestionPage is one page of a template's questions in template order.
type QuestionPage struct {
	Questions      []models.Question `json:"questions"`
	Page           int               `json:"page"`
	PageSize       int               `json:"page_size"`
	Offset         int               `json:"offset"`
	TotalQuestions int               `json:"total_questions"`
}

// CreateSessionResult is returned once; it is the only place the token is disclosed.
type CreateSessionResult struct {
	SessionID       string       `json:"session_id"`
	SessionToken    string       `json:"session_token"`
	ExpiresAt       time.Time    `json:"expires_at"`
	Status          string       `json:"status"`
	TemplateID      string       `json:"template_id"`
	TemplateVersion int          `json:"template_version"`
	QuestionPage    QuestionPage `json:"question_page"`
}

// StatusView is the derived, read-only projection of a session.
type StatusView struct {
	SessionID                string     `json:"session_id"`
	Status                   string     `json:"status"`
	ProgressPercentage       float64    `json:"progress_percentage"`
	CurrentQuestionIndex     int        `json:"current_question_index"`
	TotalQuestions           int        `json:"total_questions"`
	ResponsesCount           int        `json:"responses_count"`
	ElapsedMinutes           float64    `json:"elapsed_minutes"`
	RemainingMinutes         float64    `json:"remaining_minutes"`
	MinutesSinceLastActivity float64    `json:"minutes_since_last_activity"`
	ExpiresAt                time.Time  `json:"expires_at"`
	PausedAt                 *time.Time `json:"paused_at,omitempty"`
}

// SessionState is the body of GET /sessions/:token.
type SessionState struct {
	StatusView
	ExternalUserID  string              `json:"external_user_id"`
	TemplateID      string              `json:"template_id"`
	TemplateVersion int                 `json:"template_version"`
	Progress        models.ProgressData `json:"progress"`
	QuestionPage    QuestionPage        `json:"question_page"`
	ClientMetadata  models.JSONMap      `json:"client_metadata,omitempty"`
}

// ManageRequest is the body of POST /sessions/:token/manage.
type ManageRequest struct {
	Action  string `json:"action" binding:"required"`
	Minutes *int   `json:"minutes"`
}

// ExtendResult is the payload of the extend action.
type ExtendResult struct {
	Action            string    `json:"action"`
	SessionID         string    `json:"session_id"`
	ExpiresAt         time.Time `json:"expires_at"`
	ExtendedByMinutes int       `json:"extended_by_minutes"`
	Extensions        int       `json:"extensions"`
}

// RecoveryResult is the payload of the recovery action.
type RecoveryResult struct {
	Action      string      `json:"action"`
	Recovered   bool        `json:"recovered"`
	Recoverable bool        `json:"recoverable"`
	ExpiresAt   *time.Time  `json:"expires_at,omitempty"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
	Status      *StatusView `json:"status,omitempty"`
}

// TimelineEntry is one answer in a session's analytics timeline.
type TimelineEntry struct {
	QuestionID           string    `json:"question_id"`
	Category             string    `json:"category,omitempty"`
	AnsweredAt           time.Time `json:"answered_at"`
	SecondsSincePrevious float64   `json:"seconds_since_previous"`
}

// CategoryCoverage counts answered questions of one category.
type CategoryCoverage struct {
	Answered int `json:"answered"`
	Total    int `json:"total"`
}

// SessionAnalytics is the payload of the analytics action.
type SessionAnalytics struct {
	Action                string                      `json:"action"`
	SessionID             string                      `json:"session_id"`
	Status                string                      `json:"status"`
	ResponsesCount        int                         `json:"responses_count"`
	TotalQuestions        int                         `json:"total_questions"`
	AvgSecondsPerResponse float64                     `json:"avg_seconds_per_response"`
	Timeline              []TimelineEntry             `json:"timeline"`
	Categories            map[string]CategoryCoverage `json:"categories"`
}

// PauseResult is the payload of the pause and resume actions.
type PauseResult struct {
	Action string     `json:"action"`
	Status StatusView `json:"status"`
}

// CreateSession starts a session for an organization, authenticated by apiKeyID.
func (s *Service) CreateSession(ctx context.Context, orgID, apiKeyID string, req *CreateSessionRequest) (*CreateSessionResult, error) {
	tpl, err := s.resolveTemplate(ctx, orgID, req.TemplateName)
	if err != nil {
		return nil, err
	}

	minutes := s.cfg.Sessions.DefaultExpiryMinutes
	if tpl.SessionTimeoutMinutes != nil && *tpl.SessionTimeoutMinutes > 0 {
		minutes = *tpl.SessionTimeoutMinutes
	}
	if req.ExpiresInMinutes != nil {
		minutes = *req.ExpiresInMinutes
	}
	minutes = clamp(minutes, 1, s.cfg.Sessions.MaxExpiryMinutes)

	sess := &models.AssessmentSession{
		OrganizationID:  orgID,
		ExternalUserID:  req.ExternalUserID,
		TemplateID:      tpl.ID,
		TemplateVersion: tpl.Version,
		ClientMetadata:  req.ClientMetadata,
		CallbackURL:     optional(req.CallbackURL),
		WebhookURL:      optional(req.WebhookURL),
		ReturnURL:       optional(req.ReturnURL),
	}
	if apiKeyID != "" {
		sess.APIKeyID = &apiKeyID
	}
	if sess.ClientMetadata == nil {
		sess.ClientMetadata = models.JSONMap{}
	}

	for attempt := 1; ; attempt++ {
		token, err := auth.GenerateSessionToken()
		if err != nil {
			return nil, err
		}
		sess.SessionToken = token
		err = s.sessions.Create(ctx, sess, time.Duration(minutes)*time.Minute)
		if err == nil {
			break
		}
		if !errors.Is(err, repositories.ErrDuplicate) || attempt == tokenAttempts {
			return nil, err
		}
	}

	telemetry.SessionsCreatedTotal.Inc()
	slog.InfoContext(ctx, "assessment session created",
		"session_id", sess.ID,
		"organization_id", orgID,
		"template_id", tpl.ID,
		"expires_in_minutes", minutes)

	return &CreateSessionResult{
		SessionID:       sess.ID,
		SessionToken:    sess.SessionToken,
		ExpiresAt:       sess.ExpiresAt,
		Status:          sess.State(s.now()),
		TemplateID:      tpl.ID,
		TemplateVersion: tpl.Version,
		QuestionPage:    s.page(tpl, 0),
	}, nil
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

// resolveTemplate picks the named active template, or the organization's default.
func (s *Service) resolveTemplate(ctx context.Context, orgID, name string) (*models.AssessmentTemplate, error) {
	var (
		tpl *models.AssessmentTemplate
		err error
	)
	if name != "" {
		tpl, err = s.templates.GetActiveByName(ctx, orgID, name)
	} else {
		tpl, err = s.templates.GetDefault(ctx, orgID)
	}
	if err != nil {
		return nil, err
	}
	if tpl == nil {
		if name != "" {
			return nil, NotFound(CodeTemplateNotFound, fmt.Sprintf("template %q not found", name))
		}
		return nil, NotFound(CodeTemplateNotFound, "organization has no default template")
	}
	return tpl, nil
}

// sessionTemplate loads the template a session was created from, with the questions
// and scoring logic of the version the session is pinned to.
func (s *Service) sessionTemplate(ctx context.Context, sess *models.AssessmentSession) (*models.AssessmentTemplate, error) {
	tpl, err := s.templates.GetByID(ctx, sess.OrganizationID, sess.TemplateID)
	if err != nil {
		return nil, err
	}
	if tpl == nil {
		return nil, fmt.Errorf("template %s of session %s is missing", sess.TemplateID, sess.ID)
	}
	if sess.TemplateVersion == 0 || sess.TemplateVersion == tpl.Version {
		return tpl, nil
	}

	v, err := s.templates.GetVersion(ctx, tpl.ID, sess.TemplateVersion)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, fmt.Errorf("version %d of template %s is missing", sess.TemplateVersion, tpl.ID)
	}
	pinned := *tpl
	pinned.Version = v.Version
	pinned.Questions = v.Questions
	pinned.ScoringLogic = v.ScoringLogic
	return &pinned, nil
}

func (s *Service) pageSize(tpl *models.AssessmentTemplate) int {
	if tpl.PageSize != nil && *tpl.PageSize > 0 {
		return *tpl.PageSize
	}
	if s.cfg.Sessions.DefaultPageSize > 0 {
		return s.cfg.Sessions.DefaultPageSize
	}
	return 5
}

func (s *Service) page(tpl *models.AssessmentTemplate, offset int) QuestionPage {
	size := s.pageSize(tpl)
	return QuestionPage{
		Questions:      tpl.Questions.Page(offset, size),
		Page:           offset/size + 1,
		PageSize:       size,
		Offset:         offset,
		TotalQuestions: tpl.Questions.Total(),
	}
}

// ValidateSession returns the session a token currently resolves to within orgID.
func (s *Service) ValidateSession(ctx context.Context, orgID, token string) (*models.AssessmentSession, error) {
	sess, err := s.sessions.GetValid(ctx, token, orgID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, InvalidOrExpired()
	}
	return sess, nil
}

func (s *Service) statusView(sess *models.AssessmentSession, total int) StatusView {
	now := s.now()
	v := StatusView{
		SessionID:                sess.ID,
		Status:                   sess.State(now),
		CurrentQuestionIndex:     sess.CurrentQuestionIndex,
		TotalQuestions:           total,
		ResponsesCount:           sess.ProgressData.ResponsesCount,
		MinutesSinceLastActivity: minutesBetween(sess.LastActivityAt, now),
		ExpiresAt:                sess.ExpiresAt,
		PausedAt:                 sess.PausedAt,
	}
	if total > 0 {
		v.ProgressPercentage = round2(float64(sess.CurrentQuestionIndex) * 100 / float64(total))
	}

	start := sess.CreatedAt
	if sess.StartedAt != nil {
		start = *sess.StartedAt
	}
	end := now
	if sess.CompletedAt != nil {
		end = *sess.CompletedAt
	}
	v.ElapsedMinutes = minutesBetween(start, end)

	switch {
	case sess.IsCompleted():
	case sess.PausedAt != nil:
		v.RemainingMinutes = minutesBetween(*sess.PausedAt, sess.ExpiresAt)
	case now.Before(sess.ExpiresAt):
		v.RemainingMinutes = minutesBetween(now, sess.ExpiresAt)
	}
	if v.RemainingMinutes < 0 {
		v.RemainingMinutes = 0
	}
	return v
}

// Status returns the derived projection of a valid session.
func (s *Service) Status(ctx context.Context, orgID, token string) (*StatusView, error) {
	sess, err := s.ValidateSession(ctx, orgID, token)
	if err != nil {
		return nil, err
	}
	tpl, err := s.sessionTemplate(ctx, sess)
	if err != nil {
		return nil, err
	}
	v := s.statusView(sess, tpl.Questions.Total())
	return &v, nil
}

// GetState returns the status, the question page at the current index and the
// progress of a valid session, and stamps its last activity.
func (s *Service) GetState(ctx context.Context, orgID, token string) (*SessionState, error) {
	sess, err := s.ValidateSession(ctx, orgID, token)
	if err != nil {
		return nil, err
	}
	tpl, err := s.sessionTemplate(ctx, sess)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Touch(ctx, sess.ID); err != nil {
		return nil, err
	}
	sess.LastActivityAt = s.now()

	return &SessionState{
		StatusView:      s.statusView(sess, tpl.Questions.Total()),
		ExternalUserID:  sess.ExternalUserID,
		TemplateID:      sess.TemplateID,
		TemplateVersion: tpl.Version,
		Progress:        sess.ProgressData,
		QuestionPage:    s.page(tpl, sess.CurrentQuestionIndex),
		ClientMetadata:  sess.ClientMetadata,
	}, nil
}

// Manage runs one of the manage actions on a session.
func (s *Service) Manage(ctx context.Context, orgID, token string, req *ManageRequest) (any, error) {
	switch req.Action {
	case ActionStatus:
		return s.Status(ctx, orgID, token)
	case ActionExtend:
		return s.Extend(ctx, orgID, token, req.Minutes)
	case ActionRecovery:
		return s.Recover(ctx, orgID, token)
	case ActionAnalytics:
		return s.Analytics(ctx, orgID, token)
	case ActionPause:
		return s.Pause(ctx, orgID, token)
	case ActionResume:
		return s.Resume(ctx, orgID, token)
	default:
		return nil, Validation(CodeValidation, fmt.Sprintf("unknown action %q", req.Action))
	}
}

// explainMiss turns a mutation that matched no valid session into the right error.
func (s *Service) explainMiss(ctx context.Context, orgID, token string) error {
	sess, err := s.sessions.GetByToken(ctx, token, orgID)
	if err != nil {
		return err
	}
	if sess != nil && sess.IsCompleted() {
		return Validation(CodeSessionCompleted, "session is already completed")
	}
	return InvalidOrExpired()
}

// Extend pushes the expiry of a valid session forward by minutes, or by the
// configured default when minutes is nil.
func (s *Service) Extend(ctx context.Context, orgID, token string, minutes *int) (*ExtendResult, error) {
	by := s.cfg.Sessions.DefaultExtensionMinutes
	if minutes != nil {
		by = *minutes
	}
	if by < 1 {
		return nil, Validation(CodeValidation, "minutes must be at least 1")
	}
	if limit := s.cfg.Sessions.MaxExtensionMinutes; limit > 0 && by > limit {
		by = limit
	}

	sess, err := s.sessions.Extend(ctx, token, orgID, time.Duration(by)*time.Minute)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, s.explainMiss(ctx, orgID, token)
	}

	slog.InfoContext(ctx, "session extended", "session_id", sess.ID, "minutes", by)
	return &ExtendResult{
		Action:            ActionExtend,
		SessionID:         sess.ID,
		ExpiresAt:         sess.ExpiresAt,
		ExtendedByMinutes: by,
		Extensions:        sess.ProgressData.Extensions,
	}, nil
}

// Recover re-activates a session whose expiry passed within the grace window.
func (s *Service) Recover(ctx context.Context, orgID, token string) (*RecoveryResult, error) {
	sess, err := s.sessions.GetByToken(ctx, token, orgID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, InvalidOrExpired()
	}
	if sess.IsCompleted() {
		return &RecoveryResult{Action: ActionRecovery, CompletedAt: sess.CompletedAt}, nil
	}

	tpl, err := s.sessionTemplate(ctx, sess)
	if err != nil {
		return nil, err
	}

	recovered, err := s.sessions.Recover(ctx, token, orgID,
		time.Duration(s.cfg.Sessions.RecoveryExtensionMinutes)*time.Minute,
		s.cfg.Sessions.RecoveryGrace)
	if err != nil {
		return nil, err
	}
	if recovered != nil {
		slog.InfoContext(ctx, "session recovered", "session_id", recovered.ID)
		v := s.statusView(recovered, tpl.Questions.Total())
		return &RecoveryResult{
			Action:      ActionRecovery,
			Recovered:   true,
			Recoverable: true,
			ExpiresAt:   &recovered.ExpiresAt,
			Status:      &v,
		}, nil
	}

	// Nothing to recover: either the session is still valid or it is past the grace window.
	valid, err := s.sessions.GetValid(ctx, token, orgID)
	if err != nil {
		return nil, err
	}
	if valid == nil {
		return nil, InvalidOrExpired()
	}
	v := s.statusView(valid, tpl.Questions.Total())
	return &RecoveryResult{Action: ActionRecovery, Recoverable: true, ExpiresAt: &valid.ExpiresAt, Status: &v}, nil
}

// Pause freezes the clock of a running session.
func (s *Service) Pause(ctx context.Context, orgID, token string) (*PauseResult, error) {
	sess, err := s.sessions.Pause(ctx, token, orgID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		current, err := s.sessions.GetValid(ctx, token, orgID)
		if err != nil {
			return nil, err
		}
		if current != nil && current.PausedAt != nil {
			return nil, Validation(CodeSessionPaused, "session is already paused")
		}
		return nil, s.explainMiss(ctx, orgID, token)
	}
	return s.pauseResult(ctx, ActionPause, sess)
}

// Resume restarts a paused session with the time it had left.
func (s *Service) Resume(ctx context.Context, orgID, token string) (*PauseResult, error) {
	sess, err := s.sessions.Resume(ctx, token, orgID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		current, err := s.sessions.GetValid(ctx, token, orgID)
		if err != nil {
			return nil, err
		}
		if current != nil {
			return nil, Validation(CodeSessionNotPaused, "session is not paused")
		}
		return nil, s.explainMiss(ctx, orgID, token)
	}
	return s.pauseResult(ctx, ActionResume, sess)
}

func (s *Service) pauseResult(ctx context.Context, action string, sess *models.AssessmentSession) (*PauseResult, error) {
	tpl, err := s.sessionTemplate(ctx, sess)
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "session clock changed", "session_id", sess.ID, "action", action)
	return &PauseResult{Action: action, Status: s.statusView(sess, tpl.Questions.Total())}, nil
}

// Analytics reports the answer timeline and category coverage of a session. Completed
// sessions are included.
func (s *Service) Analytics(ctx context.Context, orgID, token string) (*SessionAnalytics, error) {
	sess, err := s.sessions.GetByToken(ctx, token, orgID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, InvalidOrExpired()
	}
	tpl, err := s.sessionTemplate(ctx, sess)
	if err != nil {
		return nil, err
	}
	responses, err := s.responses.ListBySession(ctx, s.db, sess.ID)
	if err != nil {
		return nil, err
	}

	questions := tpl.Questions.Flatten()
	categoryOf := make(map[string]string, len(questions))
	out := &SessionAnalytics{
		Action:         ActionAnalytics,
		SessionID:      sess.ID,
		Status:         sess.State(s.now()),
		ResponsesCount: len(responses),
		TotalQuestions: len(questions),
		Timeline:       make([]TimelineEntry, 0, len(responses)),
		Categories:     map[string]CategoryCoverage{},
	}
	for _, q := range questions {
		categoryOf[q.ID] = q.Category
		c := out.Categories[q.Category]
		c.Total++
		out.Categories[q.Category] = c
	}

	prev := sess.CreatedAt
	if sess.StartedAt != nil && sess.StartedAt.Before(prev) {
		prev = *sess.StartedAt
	}
	var total float64
	for _, r := range responses {
		gap := r.CreatedAt.Sub(prev).Seconds()
		if gap < 0 {
			gap = 0
		}
		total += gap
		out.Timeline = append(out.Timeline, TimelineEntry{
			QuestionID:           r.QuestionID,
			Category:             categoryOf[r.QuestionID],
			AnsweredAt:           r.CreatedAt,
			SecondsSincePrevious: round2(gap),
		})
		if cat, ok := categoryOf[r.QuestionID]; ok {
			c := out.Categories[cat]
			c.Answered++
			out.Categories[cat] = c
		}
		prev = r.CreatedAt
	}
	if len(responses) > 0 {
		out.AvgSecondsPerResponse = round2(total / float64(len(responses)))
	}
	return out, nil
}
