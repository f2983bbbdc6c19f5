package outbox

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"github.com/harborerp/backoffice/internal/outbox/storage"
)

func newTestRelay(store storage.Store, publisher Publisher, maxAttempts int) *Relay {
	return NewRelay(store, publisher, zap.NewNop(), nil,
		WithRelayBatchSize(10),
		WithRelayMaxAttempts(maxAttempts),
	)
}

func TestRelay_ProcessEvents_HappyPath(t *testing.T) {
	mockStore := new(storage.MockStore)
	mockPublisher := new(MockPublisher)

	relay := newTestRelay(mockStore, mockPublisher, 3)

	events := []storage.EventRecord{{ID: 1, Topic: "sales.events"}}
	eventIDs := []int64{1}

	mockStore.On("FetchNewEvents", mock.Anything, 10).Return(events, nil).Once()
	mockStore.On("MarkAsProcessing", mock.Anything, eventIDs).Return(nil).Once()
	mockPublisher.On("Publish", mock.Anything, mock.Anything).Return(nil).Once()
	mockStore.On("MarkAsSent", mock.Anything, int64(1)).Return(nil).Once()

	err := relay.ProcessEvents(context.Background())
	assert.NoError(t, err)

	mockStore.AssertExpectations(t)
	mockPublisher.AssertExpectations(t)
}

func TestRelay_ProcessEvents_NoEvents(t *testing.T) {
	mockStore := new(storage.MockStore)
	mockPublisher := new(MockPublisher)

	relay := newTestRelay(mockStore, mockPublisher, 3)

	mockStore.On("FetchNewEvents", mock.Anything, 10).Return([]storage.EventRecord{}, nil).Once()

	err := relay.ProcessEvents(context.Background())
	assert.NoError(t, err)

	mockStore.AssertExpectations(t)
	mockPublisher.AssertNotCalled(t, "Publish")
}

func TestRelay_ProcessEvents_FetchFails(t *testing.T) {
	mockStore := new(storage.MockStore)
	mockPublisher := new(MockPublisher)

	relay := newTestRelay(mockStore, mockPublisher, 3)

	mockStore.On("FetchNewEvents", mock.Anything, 10).
		Return([]storage.EventRecord{}, errors.New("db connection lost")).Once()

	err := relay.ProcessEvents(context.Background())
	assert.Error(t, err)
	mockPublisher.AssertNotCalled(t, "Publish")
}

func TestRelay_ProcessEvents_PublishFails_Retry(t *testing.T) {
	mockStore := new(storage.MockStore)
	mockPublisher := new(MockPublisher)

	relay := newTestRelay(mockStore, mockPublisher, 3)

	events := []storage.EventRecord{{ID: 1, Topic: "sales.events", AttemptCount: 0}}
	eventIDs := []int64{1}
	publishErr := errors.New("kafka is down")

	mockStore.On("FetchNewEvents", mock.Anything, 10).Return(events, nil).Once()
	mockStore.On("MarkAsProcessing", mock.Anything, eventIDs).Return(nil).Once()
	mockPublisher.On("Publish", mock.Anything, mock.Anything).Return(publishErr).Once()
	mockStore.On("UpdateForRetry", mock.Anything, int64(1), mock.AnythingOfType("time.Time"), publishErr.Error()).Return(nil).Once()

	err := relay.ProcessEvents(context.Background())
	assert.NoError(t, err)

	mockStore.AssertExpectations(t)
	mockPublisher.AssertExpectations(t)
}

func TestRelay_ProcessEvents_PublishFails_MaxAttempts(t *testing.T) {
	mockStore := new(storage.MockStore)
	mockPublisher := new(MockPublisher)

	maxAttempts := 3
	relay := newTestRelay(mockStore, mockPublisher, maxAttempts)

	events := []storage.EventRecord{{ID: 1, Topic: "sales.events", AttemptCount: maxAttempts - 1}}
	eventIDs := []int64{1}
	publishErr := errors.New("kafka is still down")

	mockStore.On("FetchNewEvents", mock.Anything, 10).Return(events, nil).Once()
	mockStore.On("MarkAsProcessing", mock.Anything, eventIDs).Return(nil).Once()
	mockPublisher.On("Publish", mock.Anything, mock.Anything).Return(publishErr).Once()
	// The final attempt parks the event for the dead-letter mover.
	mockStore.On("MarkAsFailed", mock.Anything, int64(1), publishErr.Error()).Return(nil).Once()

	err := relay.ProcessEvents(context.Background())
	assert.NoError(t, err)

	mockStore.AssertExpectations(t)
	mockStore.AssertNotCalled(t, "UpdateForRetry")
	mockPublisher.AssertExpectations(t)
}

func TestRelay_ProcessEvents_LeaseFailureStillPublishes(t *testing.T) {
	mockStore := new(storage.MockStore)
	mockPublisher := new(MockPublisher)

	relay := newTestRelay(mockStore, mockPublisher, 3)

	events := []storage.EventRecord{{ID: 1, Topic: "sales.events"}}
	eventIDs := []int64{1}

	mockStore.On("FetchNewEvents", mock.Anything, 10).Return(events, nil).Once()
	mockStore.On("MarkAsProcessing", mock.Anything, eventIDs).Return(errors.New("lock timeout")).Once()
	mockPublisher.On("Publish", mock.Anything, mock.Anything).Return(nil).Once()
	mockStore.On("MarkAsSent", mock.Anything, int64(1)).Return(nil).Once()

	err := relay.ProcessEvents(context.Background())
	assert.NoError(t, err)

	mockStore.AssertExpectations(t)
	mockPublisher.AssertExpectations(t)
}

func TestRelay_ProcessEvents_StoreFailsOnMarkSent(t *testing.T) {
	mockStore := new(storage.MockStore)
	mockPublisher := new(MockPublisher)

	relay := newTestRelay(mockStore, mockPublisher, 3)

	events := []storage.EventRecord{{ID: 1, Topic: "sales.events"}}
	eventIDs := []int64{1}
	storeErr := errors.New("db connection lost")

	mockStore.On("FetchNewEvents", mock.Anything, 10).Return(events, nil).Once()
	mockStore.On("MarkAsProcessing", mock.Anything, eventIDs).Return(nil).Once()
	mockPublisher.On("Publish", mock.Anything, mock.Anything).Return(nil).Once()
	mockStore.On("MarkAsSent", mock.Anything, int64(1)).Return(storeErr).Once()

	// The cycle itself must not fail; stuck-event recovery picks the row up.
	err := relay.ProcessEvents(context.Background())
	assert.NoError(t, err)

	mockStore.AssertExpectations(t)
	mockPublisher.AssertExpectations(t)
}

func TestRelay_ProcessEvents_SequentialBatch(t *testing.T) {
	mockStore := new(storage.MockStore)
	mockPublisher := new(MockPublisher)

	relay := newTestRelay(mockStore, mockPublisher, 3)

	events := []storage.EventRecord{
		{ID: 1, Topic: "sales.events"},
		{ID: 2, Topic: "sales.events"},
		{ID: 3, Topic: "sales.events"},
	}
	eventIDs := []int64{1, 2, 3}

	mockStore.On("FetchNewEvents", mock.Anything, 10).Return(events, nil).Once()
	mockStore.On("MarkAsProcessing", mock.Anything, eventIDs).Return(nil).Once()
	mockPublisher.On("Publish", mock.Anything, mock.Anything).Return(nil).Times(3)
	for _, id := range eventIDs {
		mockStore.On("MarkAsSent", mock.Anything, id).Return(nil).Once()
	}

	err := relay.ProcessEvents(context.Background())
	assert.NoError(t, err)

	mockStore.AssertExpectations(t)
	mockPublisher.AssertExpectations(t)
}
