package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/assessment-platform/assessment-api/internal/telemetry"
)

type stubDeactivator struct {
	n        int64
	err      error
	gotGrace time.Duration
	calls    int
	block    chan struct{}
}

func (s *stubDeactivator) DeactivateExpired(_ context.Context, grace time.Duration) (int64, error) {
	s.calls++
	s.gotGrace = grace
	if s.block != nil {
		<-s.block
	}
	return s.n, s.err
}

func TestSessionSweeper_RunOnce(t *testing.T) {
	stub := &stubDeactivator{n: 3}
	s := NewSessionSweeper(stub, "@every 15m", 24*time.Hour)
	before := testutil.ToFloat64(telemetry.SessionsSweptTotal)

	n, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.Equal(t, 24*time.Hour, stub.gotGrace)
	assert.Equal(t, 3.0, testutil.ToFloat64(telemetry.SessionsSweptTotal)-before)
}

func TestSessionSweeper_RunOnceError(t *testing.T) {
	stub := &stubDeactivator{err: errors.New("connection reset")}
	s := NewSessionSweeper(stub, "@every 15m", time.Hour)

	_, err := s.RunOnce(context.Background())
	assert.Error(t, err)
}

func TestSessionSweeper_SkipsOverlappingRun(t *testing.T) {
	stub := &stubDeactivator{n: 1, block: make(chan struct{})}
	s := NewSessionSweeper(stub, "@every 15m", time.Hour)

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.RunOnce(context.Background())
	}()

	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.running
	}, time.Second, 5*time.Millisecond)

	n, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	close(stub.block)
	<-done
	assert.Equal(t, 1, stub.calls)
}

func TestSessionSweeper_InvalidSchedule(t *testing.T) {
	s := NewSessionSweeper(&stubDeactivator{}, "not a schedule", time.Hour)
	assert.Error(t, s.Start())
}

func TestSessionSweeper_StartStop(t *testing.T) {
	s := NewSessionSweeper(&stubDeactivator{}, "@every 1h", time.Hour)
	require.NoError(t, s.Start())
	s.Stop()
}
