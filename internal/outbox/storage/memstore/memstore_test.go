package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborerp/backoffice/internal/outbox/storage"
)

func newRecord(eventID string) *storage.EventRecord {
	return &storage.EventRecord{
		EventID:       eventID,
		EventType:     "sales.order_paid.v1",
		AggregateType: "order",
		AggregateID:   "ord-1",
		Topic:         "sales.events",
		Payload:       []byte(`{}`),
		Headers:       []byte(`{}`),
	}
}

func TestMemStore_CreateAndFetch(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.CreateEvent(ctx, nil, newRecord("evt-1")))
	require.NoError(t, s.CreateEvent(ctx, nil, newRecord("evt-2")))

	events, err := s.FetchNewEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, int64(1), events[0].ID)
	assert.Equal(t, int64(2), events[1].ID)

	// Batch size caps the fetch.
	events, err = s.FetchNewEvents(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestMemStore_CreateEvent_DuplicateEventID(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.CreateEvent(ctx, nil, newRecord("evt-1")))
	err := s.CreateEvent(ctx, nil, newRecord("evt-1"))
	assert.ErrorIs(t, err, storage.ErrDuplicateEventID)
}

func TestMemStore_MarkAsSentRemovesFromFetch(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.CreateEvent(ctx, nil, newRecord("evt-1")))
	require.NoError(t, s.MarkAsSent(ctx, 1))

	events, err := s.FetchNewEvents(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Equal(t, 0, s.PendingCount())

	record, ok := s.Get(1)
	require.True(t, ok)
	assert.NotNil(t, record.ProcessedAt)
}

func TestMemStore_RetryScheduling(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.CreateEvent(ctx, nil, newRecord("evt-1")))

	// A future next attempt hides the event from the fetch.
	future := time.Now().UTC().Add(time.Hour)
	require.NoError(t, s.UpdateForRetry(ctx, 1, future, "kafka is down"))

	events, err := s.FetchNewEvents(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, events)

	// A due next attempt exposes it again with the attempt recorded.
	past := time.Now().UTC().Add(-time.Minute)
	require.NoError(t, s.UpdateForRetry(ctx, 1, past, "kafka is down"))

	events, err = s.FetchNewEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, 2, events[0].AttemptCount)
	assert.Equal(t, "kafka is down", events[0].LastError)
}

func TestMemStore_ProcessingAndStuckRecovery(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.CreateEvent(ctx, nil, newRecord("evt-1")))
	require.NoError(t, s.MarkAsProcessing(ctx, []int64{1}))

	// Leased events are invisible to the relay fetch.
	events, err := s.FetchNewEvents(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, events)

	// With a zero timeout everything processing counts as stuck.
	stuck, err := s.FetchStuckEvents(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, stuck, 1)

	require.NoError(t, s.ResetStuckEvents(ctx, []int64{1}, time.Now().UTC().Add(-time.Second)))
	events, err = s.FetchNewEvents(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestMemStore_DeadLetterFlow(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.CreateEvent(ctx, nil, newRecord("evt-1")))
	require.NoError(t, s.MarkAsFailed(ctx, 1, "kafka is down"))

	failed, err := s.FetchEventsToMoveToDeadLetter(ctx, 10, 5)
	require.NoError(t, err)
	require.Len(t, failed, 1)

	require.NoError(t, s.MoveToDeadLetter(ctx, failed[0], "kafka is down"))
	assert.Equal(t, 1, s.DeadLetterCount())
	assert.Equal(t, 0, s.PendingCount())

	_, ok := s.Get(1)
	assert.False(t, ok)
}

func TestMemStore_NotFound(t *testing.T) {
	s := New()
	ctx := context.Background()

	assert.ErrorIs(t, s.MarkAsSent(ctx, 99), storage.ErrEventNotFound)
	assert.ErrorIs(t, s.UpdateForRetry(ctx, 99, time.Now(), "x"), storage.ErrEventNotFound)
	assert.ErrorIs(t, s.MarkAsFailed(ctx, 99, "x"), storage.ErrEventNotFound)
	assert.ErrorIs(t, s.MoveToDeadLetter(ctx, storage.EventRecord{ID: 99}, "x"), storage.ErrEventNotFound)
}

func TestMemStore_Cleanup(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.CreateEvent(ctx, nil, newRecord("evt-1")))
	require.NoError(t, s.MarkAsSent(ctx, 1))

	// Zero retention deletes everything sent before now.
	deleted, err := s.DeleteSentEvents(ctx, -time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}
