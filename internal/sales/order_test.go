package sales

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborerp/backoffice/internal/events"
	"github.com/harborerp/backoffice/internal/outbox"
)

func testLines() []Line {
	return []Line{
		{ProductID: "prod-laptop", Quantity: 2, UnitPrice: 10000},
		{ProductID: "prod-mouse", Quantity: 3, UnitPrice: 5000},
	}
}

func TestNewOrder_Validation(t *testing.T) {
	_, err := NewOrder("ord-1", "cust-1", "c@example.com", 1000, nil)
	assert.ErrorIs(t, err, ErrNoLines)

	_, err = NewOrder("ord-1", "cust-1", "c@example.com", 1000, []Line{{ProductID: "p", Quantity: 0, UnitPrice: 100}})
	assert.Error(t, err)

	_, err = NewOrder("ord-1", "cust-1", "c@example.com", 1000, []Line{{ProductID: "p", Quantity: 1, UnitPrice: -1}})
	assert.Error(t, err)
}

func TestOrder_Totals(t *testing.T) {
	order, err := NewOrder("ord-1", "cust-1", "c@example.com", 1000, testLines())
	require.NoError(t, err)

	assert.Equal(t, int64(35000), order.Subtotal())
	assert.Equal(t, int64(3500), order.Tax())
	assert.Equal(t, int64(38500), order.Total())
}

func TestOrder_MarkPaid(t *testing.T) {
	order, err := NewOrder("ord-1", "cust-1", "c@example.com", 1000, testLines())
	require.NoError(t, err)
	require.NoError(t, order.Confirm())

	paidAt := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	require.NoError(t, order.MarkPaid(38500, paidAt, "corr-1"))

	assert.Equal(t, StatusPaid, order.Status)
	require.NotNil(t, order.PaidAt)
	assert.Equal(t, paidAt, *order.PaidAt)

	pending := order.PendingEvents()
	require.Len(t, pending, 2)

	assert.Equal(t, events.TypeOrderPaid, pending[0].EventType)
	assert.Equal(t, "corr-1", pending[0].Headers[outbox.HeaderCorrelationID])
	paid, ok := pending[0].Payload.(events.OrderPaid)
	require.True(t, ok)
	assert.Equal(t, "c@example.com", paid.CustomerEmail)
	assert.Equal(t, int64(38500), paid.TotalAmount)

	assert.Equal(t, events.TypeInvoiceRequested, pending[1].EventType)
	invoice, ok := pending[1].Payload.(events.InvoiceRequested)
	require.True(t, ok)
	assert.Equal(t, int64(35000), invoice.SubtotalAmount)
	assert.Equal(t, int64(3500), invoice.TaxAmount)
	assert.Equal(t, int64(38500), invoice.TotalAmount)
}

func TestOrder_MarkPaid_AmountMismatch(t *testing.T) {
	order, err := NewOrder("ord-1", "cust-1", "c@example.com", 1000, testLines())
	require.NoError(t, err)

	err = order.MarkPaid(10000, time.Now(), "")
	assert.ErrorIs(t, err, ErrAmountMismatch)
	assert.Equal(t, StatusPending, order.Status)
	assert.Empty(t, order.PendingEvents())
}

func TestOrder_MarkPaid_Twice(t *testing.T) {
	order, err := NewOrder("ord-1", "cust-1", "c@example.com", 1000, testLines())
	require.NoError(t, err)
	require.NoError(t, order.MarkPaid(38500, time.Now(), ""))

	err = order.MarkPaid(38500, time.Now(), "")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestOrder_Fulfill(t *testing.T) {
	order, err := NewOrder("ord-1", "cust-1", "c@example.com", 1000, testLines())
	require.NoError(t, err)
	require.NoError(t, order.MarkPaid(38500, time.Now(), "corr-1"))
	order.ClearPendingEvents()

	require.NoError(t, order.Fulfill(time.Now(), "corr-1"))
	assert.Equal(t, StatusFulfilled, order.Status)

	// One serial per unit, all distinct.
	seen := make(map[string]bool)
	for _, l := range order.Lines {
		require.Len(t, l.Serials, l.Quantity)
		for _, sn := range l.Serials {
			assert.False(t, seen[sn], "serial %s assigned twice", sn)
			seen[sn] = true
		}
	}
	assert.Len(t, seen, 5)

	pending := order.PendingEvents()
	require.Len(t, pending, 1)
	assert.Equal(t, events.TypeOrderFulfilled, pending[0].EventType)
	fulfilled, ok := pending[0].Payload.(events.OrderFulfilled)
	require.True(t, ok)
	require.Len(t, fulfilled.Lines, 2)
	assert.Len(t, fulfilled.Lines[0].SerialNumbers, 2)
	assert.Len(t, fulfilled.Lines[1].SerialNumbers, 3)
}

func TestOrder_Fulfill_RequiresPaid(t *testing.T) {
	order, err := NewOrder("ord-1", "cust-1", "c@example.com", 1000, testLines())
	require.NoError(t, err)

	err = order.Fulfill(time.Now(), "")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestOrder_ShipDeliver(t *testing.T) {
	order, err := NewOrder("ord-1", "cust-1", "c@example.com", 1000, testLines())
	require.NoError(t, err)
	require.NoError(t, order.MarkPaid(38500, time.Now(), ""))
	require.NoError(t, order.Fulfill(time.Now(), ""))

	require.NoError(t, order.Ship())
	assert.Equal(t, StatusShipped, order.Status)
	require.NoError(t, order.Deliver())
	assert.Equal(t, StatusDelivered, order.Status)
}

func TestOrder_Cancel(t *testing.T) {
	order, err := NewOrder("ord-1", "cust-1", "c@example.com", 1000, testLines())
	require.NoError(t, err)
	require.NoError(t, order.Cancel())
	assert.Equal(t, StatusCancelled, order.Status)

	paid, err := NewOrder("ord-2", "cust-1", "c@example.com", 1000, testLines())
	require.NoError(t, err)
	require.NoError(t, paid.MarkPaid(38500, time.Now(), ""))
	assert.ErrorIs(t, paid.Cancel(), ErrInvalidTransition)
}

func TestMemoryRepository_RoundTrip(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	order, err := NewOrder("ord-1", "cust-1", "c@example.com", 1000, testLines())
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, order))

	got, err := repo.Get(ctx, "ord-1")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)

	// Stored copy must not share pending events with the aggregate.
	require.NoError(t, got.MarkPaid(38500, time.Now(), ""))
	require.NoError(t, repo.Update(ctx, got))
	again, err := repo.Get(ctx, "ord-1")
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, again.Status)
	assert.Empty(t, again.PendingEvents())

	_, err = repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, repo.Update(ctx, &Order{ID: "missing"}), ErrNotFound)
}
