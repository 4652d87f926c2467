package store

import (
	"context"
	"fmt"
)

// RunRetention deletes session rows not touched since sessionCutoffMs
// and viewer rows not seen since viewerCutoffMs. Returns the number of
// rows removed from each table.
func (s *Store) RunRetention(ctx context.Context, sessionCutoffMs, viewerCutoffMs int64) (sessions, viewers int64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"DELETE FROM sessions WHERE touched_at < ?",
		sessionCutoffMs,
	)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to delete stale sessions: %w", err)
	}
	sessions, _ = res.RowsAffected()

	res, err = s.db.ExecContext(ctx,
		"DELETE FROM viewers WHERE last_seen < ?",
		viewerCutoffMs,
	)
	if err != nil {
		return sessions, 0, fmt.Errorf("failed to delete stale viewers: %w", err)
	}
	viewers, _ = res.RowsAffected()

	return sessions, viewers, nil
}
