package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Message is one pending identifier awaiting delivery. Timestamps are
// Unix milliseconds.
type Message struct {
	ID        string `json:"id"`
	Version   int64  `json:"version"`
	CreatedAt int64  `json:"created_at"`
	ExpiresAt int64  `json:"expires_at"`
}

// SessionRecord is the full state of one relay session: the activity
// gate, the pending message queue, and the version counter.
//
// LastVersion is a logical clock, not a queue length: it never resets
// and stays ahead of every version ever issued for this session, even
// after those messages are consumed or expire.
type SessionRecord struct {
	Key         string
	Active      bool
	LastUpdate  int64 // last gate mutation, Unix ms
	LastVersion int64
	Messages    []Message
	TouchedAt   int64 // last persist, Unix ms; drives age-based retention
}

// GetSession returns the stored record for key, or a fresh zero-value
// record (inactive, empty queue, version 0) if the key has never been
// seen. A missing key is not an error.
func (s *Store) GetSession(key string) (*SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec := &SessionRecord{Key: key}
	var active int64
	var messages sql.NullString
	var lastVersion sql.NullInt64

	query := `
	SELECT active, last_update, last_version, messages, touched_at
	FROM sessions WHERE key = ?
	`

	err := s.db.QueryRow(query, key).Scan(
		&active, &rec.LastUpdate, &lastVersion, &messages, &rec.TouchedAt,
	)

	if err == sql.ErrNoRows {
		rec.Messages = []Message{}
		return rec, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session %s: %w", key, err)
	}

	rec.Active = active != 0
	// Defaulting happens once here: older rows may predate the
	// last_version column or carry malformed queue JSON.
	if lastVersion.Valid {
		rec.LastVersion = lastVersion.Int64
	}
	rec.Messages = decodeMessages(messages)

	return rec, nil
}

// PutSession persists the full record, overwriting prior content. The
// single-statement upsert keeps concurrent readers from ever observing
// a partially-written record.
func (s *Store) PutSession(rec *SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	encoded, err := json.Marshal(rec.Messages)
	if err != nil {
		return fmt.Errorf("failed to encode messages for %s: %w", rec.Key, err)
	}

	rec.TouchedAt = time.Now().UnixMilli()

	query := `
	INSERT OR REPLACE INTO sessions (
		key, active, last_update, last_version, messages, touched_at
	) VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.Exec(query,
		rec.Key, boolToInt(rec.Active), rec.LastUpdate,
		rec.LastVersion, string(encoded), rec.TouchedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to save session %s: %w", rec.Key, err)
	}
	return nil
}

// decodeMessages parses the stored queue JSON, falling back to an empty
// queue for NULL, empty, or unparseable content.
func decodeMessages(raw sql.NullString) []Message {
	if !raw.Valid || raw.String == "" {
		return []Message{}
	}
	var msgs []Message
	if err := json.Unmarshal([]byte(raw.String), &msgs); err != nil || msgs == nil {
		return []Message{}
	}
	return msgs
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
