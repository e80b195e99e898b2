// Package assessment implements the session lifecycle, response ingestion, completion and
// template management of the Assessment API on top of the repositories layer.
//
// Every validity decision (is a token usable, has a session expired) is made by the
// database clock inside the statement that acts on it. The service clock is only used
// for derived, informational values such as elapsed or remaining minutes.
package assessment

import (
	"math"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/assessment-platform/assessment-api/internal/archive"
	"github.com/assessment-platform/assessment-api/internal/config"
	"github.com/assessment-platform/assessment-api/internal/crypto"
	"github.com/assessment-platform/assessment-api/internal/db/repositories"
	"github.com/assessment-platform/assessment-api/internal/webhooks"
)

// Service coordinates the repositories for one request at a time. It holds no
// per-session state and is safe for concurrent use.
type Service struct {
	db         *sqlx.DB
	cfg        *config.Config
	templates  *repositories.TemplateRepository
	sessions   *repositories.SessionRepository
	responses  *repositories.ResponseRepository
	results    *repositories.ResultRepository
	deliveries *repositories.WebhookDeliveryRepository
	dispatcher *webhooks.Dispatcher
	archiver   *archive.Archiver
	cipher     *crypto.SecretCipher
	now        func() time.Time
}

// NewService creates a service over database. Archiving and webhook signing are
// disabled until WithArchiver and WithSecretCipher are called.
func NewService(database *sqlx.DB, cfg *config.Config) *Service {
	deliveries := repositories.NewWebhookDeliveryRepository(database)
	return &Service{
		db:         database,
		cfg:        cfg,
		templates:  repositories.NewTemplateRepository(database),
		sessions:   repositories.NewSessionRepository(database),
		responses:  repositories.NewResponseRepository(),
		results:    repositories.NewResultRepository(database),
		deliveries: deliveries,
		dispatcher: webhooks.NewDispatcher(&cfg.Webhooks, deliveries),
		now:        time.Now,
	}
}

// WithArchiver enables result snapshots.
func (s *Service) WithArchiver(a *archive.Archiver) *Service {
	s.archiver = a
	return s
}

// WithSecretCipher enables signing webhooks with each organization's sealed secret.
func (s *Service) WithSecretCipher(c *crypto.SecretCipher) *Service {
	s.cipher = c
	return s
}

// Archiver returns the configured archiver, or nil.
func (s *Service) Archiver() *archive.Archiver {
	return s.archiver
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func minutesBetween(from, to time.Time) float64 {
	return round2(to.Sub(from).Minutes())
}

// clamp bounds v to [lo, hi]. hi <= 0 means unbounded above.
func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if hi > 0 && v > hi {
		return hi
	}
	return v
}
