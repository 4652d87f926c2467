package store

import (
	"fmt"
	"time"
)

// Viewer is one device presenting itself as connected to an operator
// slot, refreshed by a short heartbeat.
type Viewer struct {
	DeviceID     string `json:"deviceId"`
	OperatorName string `json:"operatorName"`
	OperatorID   int64  `json:"operatorId"`
	LastSeen     int64  `json:"lastSeen"` // Unix ms
}

// PutViewer inserts or refreshes a viewer row. One live entry per
// device: re-registering the same device overwrites its previous slot.
func (s *Store) PutViewer(v *Viewer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v.LastSeen == 0 {
		v.LastSeen = time.Now().UnixMilli()
	}

	query := `
	INSERT OR REPLACE INTO viewers (
		device_id, operator_name, operator_id, last_seen
	) VALUES (?, ?, ?, ?)
	`

	_, err := s.db.Exec(query, v.DeviceID, v.OperatorName, v.OperatorID, v.LastSeen)
	if err != nil {
		return fmt.Errorf("failed to save viewer %s: %w", v.DeviceID, err)
	}
	return nil
}

// GetViewers returns viewers for one operator slot seen since cutoffMs.
func (s *Store) GetViewers(operatorID int64, cutoffMs int64) ([]Viewer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
	SELECT device_id, operator_name, operator_id, last_seen
	FROM viewers
	WHERE operator_id = ? AND last_seen > ?
	ORDER BY last_seen DESC
	`

	rows, err := s.db.Query(query, operatorID, cutoffMs)
	if err != nil {
		return nil, fmt.Errorf("failed to list viewers: %w", err)
	}
	defer rows.Close()

	viewers := []Viewer{}
	for rows.Next() {
		var v Viewer
		if err := rows.Scan(&v.DeviceID, &v.OperatorName, &v.OperatorID, &v.LastSeen); err != nil {
			return nil, fmt.Errorf("failed to scan viewer: %w", err)
		}
		viewers = append(viewers, v)
	}
	return viewers, rows.Err()
}

// DeleteViewer removes a viewer row by device.
func (s *Store) DeleteViewer(deviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`DELETE FROM viewers WHERE device_id = ?`, deviceID); err != nil {
		return fmt.Errorf("failed to delete viewer %s: %w", deviceID, err)
	}
	return nil
}

// PruneViewers removes viewer rows last seen at or before cutoffMs and
// returns the number removed.
func (s *Store) PruneViewers(cutoffMs int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`DELETE FROM viewers WHERE last_seen <= ?`, cutoffMs)
	if err != nil {
		return 0, fmt.Errorf("failed to prune viewers: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}
