// Package relay implements the session mailbox: duplicate-suppressed,
// TTL-bounded, consume-once message queues gated by a per-session
// active flag.
package relay

import (
	"time"

	"github.com/qrlink/relay/internal/store"
)

// purgeExpired removes every message with expires_at <= now and returns
// how many were dropped. Callers persist only when the count is nonzero.
// Runs on every path that inspects the queue, so an expired message is
// never delivered or counted.
func purgeExpired(rec *store.SessionRecord, now time.Time) int {
	nowMs := now.UnixMilli()
	kept := rec.Messages[:0]
	dropped := 0
	for _, m := range rec.Messages {
		if m.ExpiresAt <= nowMs {
			dropped++
			continue
		}
		kept = append(kept, m)
	}
	rec.Messages = kept
	return dropped
}

// findLive returns the version of a live message with the given id.
// Assumes purgeExpired already ran for this cycle.
func findLive(rec *store.SessionRecord, id string) (int64, bool) {
	for _, m := range rec.Messages {
		if m.ID == id {
			return m.Version, true
		}
	}
	return 0, false
}

// enqueue appends a new message with the next version and advances the
// session's version counter.
func enqueue(rec *store.SessionRecord, id string, ttl time.Duration, now time.Time) int64 {
	version := rec.LastVersion + 1
	rec.LastVersion = version
	rec.Messages = append(rec.Messages, store.Message{
		ID:        id,
		Version:   version,
		CreatedAt: now.UnixMilli(),
		ExpiresAt: now.Add(ttl).UnixMilli(),
	})
	return version
}

// dequeueHead removes and returns the earliest-inserted message. This is
// the consume-once point: once returned, the message is gone even if the
// caller never acts on it.
func dequeueHead(rec *store.SessionRecord) (store.Message, bool) {
	if len(rec.Messages) == 0 {
		return store.Message{}, false
	}
	head := rec.Messages[0]
	rec.Messages = rec.Messages[1:]
	return head, true
}
