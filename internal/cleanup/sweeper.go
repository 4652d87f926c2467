// Package cleanup runs the background sweep that purges session records
// untouched past their max age and prunes stale viewer rows. It runs on
// its own schedule; sweep failures never surface to request handlers.
package cleanup

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/qrlink/relay/internal/metrics"
)

// RetentionStore is the storage surface the sweeper drives.
type RetentionStore interface {
	RunRetention(ctx context.Context, sessionCutoffMs, viewerCutoffMs int64) (sessions, viewers int64, err error)
}

// Config holds sweep cadence and age thresholds.
type Config struct {
	Interval        time.Duration // default 1m
	SessionMaxAge   time.Duration // default 24h
	ViewerHeartbeat time.Duration // default 10s
}

// Sweeper periodically runs store retention.
type Sweeper struct {
	cfg     Config
	store   RetentionStore
	metrics *metrics.Metrics
	logger  zerolog.Logger
	now     func() time.Time
}

// NewSweeper creates a sweeper.
func NewSweeper(cfg Config, st RetentionStore, m *metrics.Metrics, logger zerolog.Logger) *Sweeper {
	return &Sweeper{
		cfg:     cfg,
		store:   st,
		metrics: m,
		logger:  logger.With().Str("component", "cleanup").Logger(),
		now:     time.Now,
	}
}

// Run blocks, sweeping on the configured interval until ctx is
// cancelled. Intended to run on its own goroutine.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.logger.Info().
		Dur("interval", s.cfg.Interval).
		Dur("session_max_age", s.cfg.SessionMaxAge).
		Msg("cleanup sweeper started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("cleanup sweeper stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one retention pass. Errors are logged and counted, never
// returned: cleanup is best-effort and must not block or fail anything.
func (s *Sweeper) Sweep(ctx context.Context) {
	now := s.now()
	sessionCutoff := now.Add(-s.cfg.SessionMaxAge).UnixMilli()
	viewerCutoff := now.Add(-s.cfg.ViewerHeartbeat).UnixMilli()

	sessions, viewers, err := s.store.RunRetention(ctx, sessionCutoff, viewerCutoff)
	if err != nil {
		s.metrics.RecordSweep("error")
		s.logger.Error().Err(err).Msg("retention sweep failed")
		return
	}

	s.metrics.RecordSweep("ok")
	s.metrics.RecordPurgedSessions(sessions)
	if sessions > 0 || viewers > 0 {
		s.logger.Info().
			Int64("sessions", sessions).
			Int64("viewers", viewers).
			Msg("retention sweep removed stale records")
	}
}
