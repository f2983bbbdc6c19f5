package communication

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/harborerp/backoffice/internal/consumer"
	"github.com/harborerp/backoffice/internal/events"
)

type recordingSender struct {
	sent []Email
	err  error
}

func (s *recordingSender) Send(_ context.Context, email Email) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, email)
	return nil
}

func paidMessage() consumer.Message {
	return consumer.Message{
		EventID:   "evt-paid-1",
		EventType: events.TypeOrderPaid,
		Payload: events.OrderPaid{
			OrderID:       "ord-1",
			CustomerID:    "cust-1",
			CustomerEmail: "c@example.com",
			TotalAmount:   38500,
			PaidAt:        time.Now().UTC(),
		},
	}
}

func TestOrderPaidHandler_SendsConfirmation(t *testing.T) {
	sender := &recordingSender{}
	h := NewOrderPaidHandler(sender, zap.NewNop(), nil)

	require.NoError(t, h.Handle(context.Background(), paidMessage()))

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "c@example.com", sender.sent[0].To)
	assert.Contains(t, sender.sent[0].Subject, "ord-1")
	assert.Contains(t, sender.sent[0].Body, "385.00")
}

func TestOrderPaidHandler_SwallowsSendFailure(t *testing.T) {
	sender := &recordingSender{err: errors.New("smtp unreachable")}
	h := NewOrderPaidHandler(sender, zap.NewNop(), nil)

	// A failed email must still acknowledge so the chain is not retried.
	assert.NoError(t, h.Handle(context.Background(), paidMessage()))
}

func TestOrderPaidHandler_WrongPayload(t *testing.T) {
	h := NewOrderPaidHandler(&recordingSender{}, zap.NewNop(), nil)

	msg := paidMessage()
	msg.Payload = 42
	assert.Error(t, h.Handle(context.Background(), msg))
}
