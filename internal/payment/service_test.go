package payment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/harborerp/backoffice/internal/events"
	"github.com/harborerp/backoffice/internal/outbox"
	"github.com/harborerp/backoffice/internal/outbox/storage/memstore"
)

func newServiceFixture(t *testing.T) (*Service, *MemoryRepository, *memstore.MemStore) {
	t.Helper()
	store := memstore.New()
	recorder := outbox.NewRecorder(store, events.NewRegistry(), zap.NewNop(), nil)
	repo := NewMemoryRepository()
	return NewService(repo, recorder, nil, nil, zap.NewNop()), repo, store
}

func TestService_RecordPayment(t *testing.T) {
	svc, repo, store := newServiceFixture(t)
	ctx := context.Background()

	p, err := svc.RecordPayment(ctx, "ord-1", 38500, "card")
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.Empty(t, p.PendingEvents(), "events must be drained by capture")

	stored, err := repo.GetByOrderID(ctx, "ord-1")
	require.NoError(t, err)
	assert.Equal(t, p.ID, stored.ID)

	require.Equal(t, 1, store.PendingCount())
	record, ok := store.Get(1)
	require.True(t, ok)
	assert.Equal(t, events.TypePaymentSucceeded, record.EventType)
	assert.Equal(t, events.TopicPayment, record.Topic)
	assert.Contains(t, string(record.Headers), outbox.HeaderCorrelationID)
}

func TestService_RecordPayment_Validation(t *testing.T) {
	svc, _, store := newServiceFixture(t)
	ctx := context.Background()

	_, err := svc.RecordPayment(ctx, "", 100, "card")
	assert.Error(t, err)
	_, err = svc.RecordPayment(ctx, "ord-1", 0, "card")
	assert.Error(t, err)
	assert.Equal(t, 0, store.PendingCount())
}

func TestService_RecordPayment_Duplicate(t *testing.T) {
	svc, _, store := newServiceFixture(t)
	ctx := context.Background()

	_, err := svc.RecordPayment(ctx, "ord-1", 38500, "card")
	require.NoError(t, err)

	_, err = svc.RecordPayment(ctx, "ord-1", 38500, "card")
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.Equal(t, 1, store.PendingCount())
}
