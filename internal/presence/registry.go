// Package presence tracks which devices are currently presenting
// themselves as connected to an operator slot, via a short heartbeat.
package presence

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/qrlink/relay/internal/store"
)

// ViewerStore is the storage the registry runs against.
type ViewerStore interface {
	PutViewer(v *store.Viewer) error
	GetViewers(operatorID int64, cutoffMs int64) ([]store.Viewer, error)
	DeleteViewer(deviceID string) error
	PruneViewers(cutoffMs int64) (int64, error)
}

// Registry is the viewer presence table. Entries older than the
// heartbeat window count as gone and are physically pruned on the next
// write. Independent of the session queue and gate.
type Registry struct {
	store  ViewerStore
	window time.Duration
	logger zerolog.Logger
	now    func() time.Time
}

// NewRegistry creates a presence registry with the given heartbeat window.
func NewRegistry(st ViewerStore, window time.Duration, logger zerolog.Logger) *Registry {
	return &Registry{
		store:  st,
		window: window,
		logger: logger.With().Str("component", "presence").Logger(),
		now:    time.Now,
	}
}

// Register records a device as connected to an operator slot. Stale
// entries are pruned first; a prior entry for the same device is
// replaced, so a device lives in at most one slot.
func (r *Registry) Register(deviceID, operatorName string, operatorID int64) error {
	now := r.now()

	if pruned, err := r.store.PruneViewers(r.cutoff(now)); err != nil {
		// Pruning is housekeeping; a failed prune must not lose the heartbeat.
		r.logger.Warn().Err(err).Msg("viewer prune failed")
	} else if pruned > 0 {
		r.logger.Debug().Int64("pruned", pruned).Msg("stale viewers pruned")
	}

	v := &store.Viewer{
		DeviceID:     deviceID,
		OperatorName: operatorName,
		OperatorID:   operatorID,
		LastSeen:     now.UnixMilli(),
	}
	if err := r.store.PutViewer(v); err != nil {
		return fmt.Errorf("register viewer: %w", err)
	}
	return nil
}

// List returns the live viewers for one operator slot.
func (r *Registry) List(operatorID int64) ([]store.Viewer, error) {
	viewers, err := r.store.GetViewers(operatorID, r.cutoff(r.now()))
	if err != nil {
		return nil, fmt.Errorf("list viewers: %w", err)
	}
	return viewers, nil
}

// Unregister removes a device from the table.
func (r *Registry) Unregister(deviceID string) error {
	if err := r.store.DeleteViewer(deviceID); err != nil {
		return fmt.Errorf("unregister viewer: %w", err)
	}
	return nil
}

func (r *Registry) cutoff(now time.Time) int64 {
	return now.Add(-r.window).UnixMilli()
}
