package communication

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/harborerp/backoffice/internal/consumer"
	"github.com/harborerp/backoffice/internal/events"
	"github.com/harborerp/backoffice/internal/outbox"
)

// OrderPaidHandler emails the customer an order confirmation. Send failures
// are logged and swallowed: the handler always acknowledges, because a
// notification is not worth blocking the event chain or a redelivery storm
// of duplicate business effects.
type OrderPaidHandler struct {
	sender  Sender
	logger  *zap.Logger
	metrics outbox.MetricsCollector
}

func NewOrderPaidHandler(sender Sender, logger *zap.Logger, metrics outbox.MetricsCollector) *OrderPaidHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = outbox.NewNopMetricsCollector()
	}
	return &OrderPaidHandler{
		sender:  sender,
		logger:  logger,
		metrics: metrics,
	}
}

func (h *OrderPaidHandler) EventType() string {
	return events.TypeOrderPaid
}

func (h *OrderPaidHandler) Handle(ctx context.Context, msg consumer.Message) error {
	paid, ok := msg.Payload.(events.OrderPaid)
	if !ok {
		return fmt.Errorf("unexpected payload type %T", msg.Payload)
	}

	email := Email{
		To:      paid.CustomerEmail,
		Subject: fmt.Sprintf("Order %s confirmed", paid.OrderID),
		Body: fmt.Sprintf(
			"Thank you for your purchase.\n\nOrder %s is paid in full (%d.%02d) and is being prepared for shipment.\n",
			paid.OrderID, paid.TotalAmount/100, paid.TotalAmount%100,
		),
	}

	if err := h.sender.Send(ctx, email); err != nil {
		h.logger.Error("Failed to send order confirmation",
			zap.String("order_id", paid.OrderID),
			zap.String("event_id", msg.EventID),
			zap.Error(err),
		)
		h.metrics.IncrementCounter("communication.send_failed", map[string]string{"event_type": msg.EventType})
		return nil
	}

	h.metrics.IncrementCounter("communication.sent", map[string]string{"event_type": msg.EventType})
	return nil
}
