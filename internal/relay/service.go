package relay

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/qrlink/relay/internal/metrics"
	"github.com/qrlink/relay/internal/store"
)

// ErrSessionInactive reports a send against a closed gate. It is a
// distinct condition, not a server fault: the caller should prompt the
// receiver to start the session, then retry.
var ErrSessionInactive = errors.New("session not active")

// SessionStore is the durable record storage the service runs against.
type SessionStore interface {
	GetSession(key string) (*store.SessionRecord, error)
	PutSession(rec *store.SessionRecord) error
}

// Config bounds the per-send TTL.
type Config struct {
	DefaultTTL time.Duration
	MinTTL     time.Duration
	MaxTTL     time.Duration
}

// Service is the relay core: it accepts identifiers from senders,
// deduplicates them, and serves consume-once delivery to pollers.
// All mutations of one session happen under that session's lock.
type Service struct {
	store   SessionStore
	cfg     Config
	locks   sessionLocks
	metrics *metrics.Metrics
	logger  zerolog.Logger
	now     func() time.Time
}

// NewService creates a relay service.
func NewService(st SessionStore, cfg Config, m *metrics.Metrics, logger zerolog.Logger) *Service {
	return &Service{
		store:   st,
		cfg:     cfg,
		metrics: m,
		logger:  logger.With().Str("component", "relay").Logger(),
		now:     time.Now,
	}
}

// SendResult reports an accepted (or deduplicated) send.
type SendResult struct {
	Version   int64
	Duplicate bool
	Time      time.Time
}

// Send accepts an identifier for a session. A closed gate returns
// ErrSessionInactive with no mutation. A live duplicate id returns the
// original version marked Duplicate, so re-scans of the same code are
// harmless.
func (s *Service) Send(session, id string, ttl time.Duration) (SendResult, error) {
	ttl = s.clampTTL(ttl)

	unlock := s.locks.lock(session)
	defer unlock()

	rec, err := s.store.GetSession(session)
	if err != nil {
		return SendResult{}, fmt.Errorf("send: %w", err)
	}

	if !rec.Active {
		s.metrics.RecordSend("rejected")
		return SendResult{}, ErrSessionInactive
	}

	now := s.now()
	expired := purgeExpired(rec, now)
	if expired > 0 {
		s.metrics.RecordExpired(expired)
	}

	if version, ok := findLive(rec, id); ok {
		if expired > 0 {
			if err := s.store.PutSession(rec); err != nil {
				return SendResult{}, fmt.Errorf("send: %w", err)
			}
		}
		s.metrics.RecordSend("duplicate")
		s.logger.Debug().Str("session", session).Int64("version", version).Msg("duplicate send")
		return SendResult{Version: version, Duplicate: true, Time: now}, nil
	}

	version := enqueue(rec, id, ttl, now)
	if err := s.store.PutSession(rec); err != nil {
		return SendResult{}, fmt.Errorf("send: %w", err)
	}

	s.metrics.RecordSend("accepted")
	s.logger.Debug().
		Str("session", session).
		Int64("version", version).
		Dur("ttl", ttl).
		Msg("message enqueued")
	return SendResult{Version: version, Time: now}, nil
}

// NextResult reports the outcome of a poll. Delivered=false with a nil
// error means the queue was empty, which is a normal outcome.
type NextResult struct {
	ID        string
	Delivered bool
	Time      time.Time
}

// Next dequeues the head message for a session. Delivery ignores the
// gate: deactivation stops new intake, not draining of queued items.
// Repeated calls on an empty queue are no-ops.
func (s *Service) Next(session string) (NextResult, error) {
	unlock := s.locks.lock(session)
	defer unlock()

	rec, err := s.store.GetSession(session)
	if err != nil {
		return NextResult{}, fmt.Errorf("next: %w", err)
	}

	now := s.now()
	expired := purgeExpired(rec, now)
	if expired > 0 {
		s.metrics.RecordExpired(expired)
	}

	msg, delivered := dequeueHead(rec)
	if delivered || expired > 0 {
		if err := s.store.PutSession(rec); err != nil {
			return NextResult{}, fmt.Errorf("next: %w", err)
		}
	}

	if delivered {
		s.metrics.RecordDelivery()
		s.logger.Debug().Str("session", session).Int64("version", msg.Version).Msg("message delivered")
	}
	return NextResult{ID: msg.ID, Delivered: delivered, Time: now}, nil
}

// GateState is the activity gate read result.
type GateState struct {
	Active     bool
	LastUpdate time.Time
}

// Status reads the activity gate; an unseen session reads inactive.
func (s *Service) Status(session string) (GateState, error) {
	rec, err := s.store.GetSession(session)
	if err != nil {
		return GateState{}, fmt.Errorf("status: %w", err)
	}
	return GateState{
		Active:     rec.Active,
		LastUpdate: time.UnixMilli(rec.LastUpdate),
	}, nil
}

// SetStatus toggles the activity gate. Any state may follow any state;
// each write stamps LastUpdate.
func (s *Service) SetStatus(session string, active bool) error {
	unlock := s.locks.lock(session)
	defer unlock()

	rec, err := s.store.GetSession(session)
	if err != nil {
		return fmt.Errorf("set status: %w", err)
	}

	rec.Active = active
	rec.LastUpdate = s.now().UnixMilli()
	if err := s.store.PutSession(rec); err != nil {
		return fmt.Errorf("set status: %w", err)
	}

	s.logger.Info().Str("session", session).Bool("active", active).Msg("gate toggled")
	return nil
}

func (s *Service) clampTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return s.cfg.DefaultTTL
	}
	if ttl < s.cfg.MinTTL {
		return s.cfg.MinTTL
	}
	if ttl > s.cfg.MaxTTL {
		return s.cfg.MaxTTL
	}
	return ttl
}
