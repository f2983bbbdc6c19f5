package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/harborerp/backoffice/internal/outbox/storage"
)

type fakeAggregate struct {
	events []Event
}

func (f *fakeAggregate) PendingEvents() []Event { return f.events }
func (f *fakeAggregate) ClearPendingEvents()    { f.events = nil }

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	require.NoError(t, r.Register("sales.order_placed.v1", JSONDecoder[orderPlaced]()))
	return r
}

func validEvent() Event {
	return Event{
		EventID:       "evt-1",
		EventType:     "sales.order_placed.v1",
		AggregateType: "order",
		AggregateID:   "ord-1",
		Topic:         "sales.events",
		Payload:       orderPlaced{OrderID: "ord-1", Amount: 38500},
	}
}

func TestRecorder_Capture(t *testing.T) {
	mockStore := new(storage.MockStore)
	recorder := NewRecorder(mockStore, testRegistry(t), zap.NewNop(), nil)

	var saved *storage.EventRecord
	mockStore.On("CreateEvent", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			saved = args.Get(2).(*storage.EventRecord)
		}).
		Return(nil).Once()

	source := &fakeAggregate{events: []Event{validEvent()}}
	require.NoError(t, recorder.Capture(context.Background(), nil, source))

	assert.Empty(t, source.PendingEvents(), "pending events must be cleared after capture")
	require.NotNil(t, saved)
	assert.Equal(t, "evt-1", saved.EventID)
	assert.Equal(t, EventStatusNew, saved.Status)

	// The identity headers ride along with the payload.
	var headers map[string]string
	require.NoError(t, json.Unmarshal(saved.Headers, &headers))
	assert.Equal(t, "evt-1", headers[HeaderEventID])
	assert.Equal(t, "sales.order_placed.v1", headers[HeaderEventType])

	mockStore.AssertExpectations(t)
}

func TestRecorder_Capture_EmptySource(t *testing.T) {
	mockStore := new(storage.MockStore)
	recorder := NewRecorder(mockStore, testRegistry(t), zap.NewNop(), nil)

	require.NoError(t, recorder.Capture(context.Background(), nil, &fakeAggregate{}))
	mockStore.AssertNotCalled(t, "CreateEvent")
}

func TestRecorder_Capture_StoreFailureKeepsPending(t *testing.T) {
	mockStore := new(storage.MockStore)
	recorder := NewRecorder(mockStore, testRegistry(t), zap.NewNop(), nil)

	mockStore.On("CreateEvent", mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("insert failed")).Once()

	source := &fakeAggregate{events: []Event{validEvent()}}
	err := recorder.Capture(context.Background(), nil, source)
	require.Error(t, err)

	// The caller's transaction rolls back; the aggregate keeps its events so
	// a retried save captures them again.
	assert.Len(t, source.PendingEvents(), 1)
}

func TestRecorder_Capture_UnknownEventType(t *testing.T) {
	mockStore := new(storage.MockStore)
	recorder := NewRecorder(mockStore, testRegistry(t), zap.NewNop(), nil)

	event := validEvent()
	event.EventType = "sales.order_placed.v9"
	err := recorder.Capture(context.Background(), nil, &fakeAggregate{events: []Event{event}})

	assert.ErrorIs(t, err, ErrUnknownEventType)
	mockStore.AssertNotCalled(t, "CreateEvent")
}

func TestRecorder_Capture_Validation(t *testing.T) {
	mockStore := new(storage.MockStore)
	recorder := NewRecorder(mockStore, testRegistry(t), zap.NewNop(), nil)

	tests := []struct {
		name   string
		mutate func(*Event)
	}{
		{"missing event id", func(e *Event) { e.EventID = "" }},
		{"missing event type", func(e *Event) { e.EventType = "" }},
		{"missing aggregate type", func(e *Event) { e.AggregateType = "" }},
		{"missing aggregate id", func(e *Event) { e.AggregateID = "" }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			event := validEvent()
			tc.mutate(&event)
			err := recorder.Save(context.Background(), nil, event)
			assert.Error(t, err)
		})
	}
	mockStore.AssertNotCalled(t, "CreateEvent")
}

func TestRecorder_Capture_PreservesCorrelationHeader(t *testing.T) {
	mockStore := new(storage.MockStore)
	recorder := NewRecorder(mockStore, testRegistry(t), zap.NewNop(), nil)

	var saved *storage.EventRecord
	mockStore.On("CreateEvent", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			saved = args.Get(2).(*storage.EventRecord)
		}).
		Return(nil).Once()

	event := validEvent()
	event.Headers = map[string]string{HeaderCorrelationID: "corr-1"}
	require.NoError(t, recorder.Save(context.Background(), nil, event))

	var headers map[string]string
	require.NoError(t, json.Unmarshal(saved.Headers, &headers))
	assert.Equal(t, "corr-1", headers[HeaderCorrelationID])
}
