// session_sweeper.go implements the SessionSweeper background job, which deactivates
// sessions whose expiry lies further back than the recovery grace window. Sessions inside
// the window stay recoverable; completed and paused sessions are never touched.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/assessment-platform/assessment-api/internal/telemetry"
)

// sweepTimeout bounds a single sweep.
const sweepTimeout = 2 * time.Minute

// ExpiredSessionDeactivator is the storage the sweeper needs.
type ExpiredSessionDeactivator interface {
	DeactivateExpired(ctx context.Context, grace time.Duration) (int64, error)
}

// SessionSweeper periodically deactivates expired sessions on a cron schedule.
type SessionSweeper struct {
	sessions ExpiredSessionDeactivator
	schedule string
	grace    time.Duration
	cron     *cron.Cron

	mu      sync.Mutex
	running bool
}

// NewSessionSweeper creates a sweeper. schedule accepts standard five-field cron
// expressions and descriptors such as "@every 15m".
func NewSessionSweeper(sessions ExpiredSessionDeactivator, schedule string, grace time.Duration) *SessionSweeper {
	return &SessionSweeper{
		sessions: sessions,
		schedule: schedule,
		grace:    grace,
		cron:     cron.New(),
	}
}

// Start registers the sweep and starts the scheduler. It returns an error for an
// unparseable schedule.
func (s *SessionSweeper) Start() error {
	_, err := s.cron.AddFunc(s.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
		defer cancel()
		if _, err := s.RunOnce(ctx); err != nil {
			slog.Error("session sweep failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule session sweeper: %w", err)
	}
	s.cron.Start()
	slog.Info("session sweeper started", "schedule", s.schedule, "grace", s.grace)
	return nil
}

// Stop stops the scheduler and waits for a running sweep to finish.
func (s *SessionSweeper) Stop() {
	<-s.cron.Stop().Done()
	slog.Info("session sweeper stopped")
}

// RunOnce performs a single sweep. Overlapping calls are skipped and report zero.
func (s *SessionSweeper) RunOnce(ctx context.Context) (int64, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		slog.Warn("session sweep already running, skipping")
		return 0, nil
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	n, err := s.sessions.DeactivateExpired(ctx, s.grace)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		telemetry.SessionsSweptTotal.Add(float64(n))
		slog.Info("expired sessions deactivated", "count", n)
	}
	return n, nil
}
