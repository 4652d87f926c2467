package relay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/qrlink/relay/internal/store"
)

func record(msgs ...store.Message) *store.SessionRecord {
	rec := &store.SessionRecord{Key: "s", Active: true, Messages: msgs}
	for _, m := range msgs {
		if m.Version > rec.LastVersion {
			rec.LastVersion = m.Version
		}
	}
	return rec
}

func TestPurgeExpired(t *testing.T) {
	now := time.Now()
	rec := record(
		store.Message{ID: "dead", Version: 1, ExpiresAt: now.Add(-time.Second).UnixMilli()},
		store.Message{ID: "live", Version: 2, ExpiresAt: now.Add(time.Minute).UnixMilli()},
		store.Message{ID: "edge", Version: 3, ExpiresAt: now.UnixMilli()},
	)

	dropped := purgeExpired(rec, now)

	assert.Equal(t, 2, dropped, "expires_at <= now counts as expired")
	assert.Len(t, rec.Messages, 1)
	assert.Equal(t, "live", rec.Messages[0].ID)
	assert.Equal(t, int64(3), rec.LastVersion, "purge never touches the version counter")
}

func TestPurgeExpired_EmptyQueue(t *testing.T) {
	rec := record()
	assert.Zero(t, purgeExpired(rec, time.Now()))
	assert.Empty(t, rec.Messages)
}

func TestFindLive(t *testing.T) {
	now := time.Now()
	rec := record(
		store.Message{ID: "x", Version: 4, ExpiresAt: now.Add(time.Minute).UnixMilli()},
	)

	v, ok := findLive(rec, "x")
	assert.True(t, ok)
	assert.Equal(t, int64(4), v)

	_, ok = findLive(rec, "y")
	assert.False(t, ok)
}

func TestEnqueue_AssignsMonotonicVersions(t *testing.T) {
	now := time.Now()
	rec := record()

	v1 := enqueue(rec, "a", time.Minute, now)
	v2 := enqueue(rec, "b", time.Minute, now)

	assert.Equal(t, int64(1), v1)
	assert.Equal(t, int64(2), v2)
	assert.Equal(t, int64(2), rec.LastVersion)
	assert.Equal(t, now.Add(time.Minute).UnixMilli(), rec.Messages[0].ExpiresAt)
}

func TestEnqueue_CounterSurvivesDequeue(t *testing.T) {
	now := time.Now()
	rec := record()

	enqueue(rec, "a", time.Minute, now)
	_, ok := dequeueHead(rec)
	assert.True(t, ok)
	assert.Empty(t, rec.Messages)

	v := enqueue(rec, "b", time.Minute, now)
	assert.Equal(t, int64(2), v, "version counter is a logical clock, not a queue length")
}

func TestDequeueHead_FIFO(t *testing.T) {
	now := time.Now()
	rec := record()
	enqueue(rec, "first", time.Minute, now)
	enqueue(rec, "second", time.Minute, now)

	m, ok := dequeueHead(rec)
	assert.True(t, ok)
	assert.Equal(t, "first", m.ID)

	m, ok = dequeueHead(rec)
	assert.True(t, ok)
	assert.Equal(t, "second", m.ID)

	_, ok = dequeueHead(rec)
	assert.False(t, ok)
}
