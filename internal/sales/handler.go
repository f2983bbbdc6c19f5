package sales

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/harborerp/backoffice/internal/consumer"
	"github.com/harborerp/backoffice/internal/events"
	"github.com/harborerp/backoffice/internal/outbox"
)

// PaymentSucceededHandler reacts to a captured payment: it marks the order
// paid, fulfills it, and captures the resulting events in the same
// transaction as the order update. An order that is already paid means the
// message is a redelivery and the handler acknowledges without effect.
type PaymentSucceededHandler struct {
	orders   Repository
	recorder *outbox.Recorder
	txm      outbox.TxManager
	exec     outbox.Executor
	logger   *zap.Logger
}

func NewPaymentSucceededHandler(orders Repository, recorder *outbox.Recorder, txm outbox.TxManager, exec outbox.Executor, logger *zap.Logger) *PaymentSucceededHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if txm == nil {
		txm = outbox.NopTxManager{}
	}
	if exec == nil {
		exec = outbox.NopExecutor
	}
	return &PaymentSucceededHandler{
		orders:   orders,
		recorder: recorder,
		txm:      txm,
		exec:     exec,
		logger:   logger,
	}
}

func (h *PaymentSucceededHandler) EventType() string {
	return events.TypePaymentSucceeded
}

func (h *PaymentSucceededHandler) Handle(ctx context.Context, msg consumer.Message) error {
	payment, ok := msg.Payload.(events.PaymentSucceeded)
	if !ok {
		return fmt.Errorf("unexpected payload type %T", msg.Payload)
	}

	order, err := h.orders.Get(ctx, payment.OrderID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// The order may not exist yet if the payment raced order
			// creation. Returning the error gets the message redelivered.
			return fmt.Errorf("order %s not found yet: %w", payment.OrderID, err)
		}
		return err
	}

	if order.IsPaid() {
		h.logger.Info("Order already paid, skipping redelivery",
			zap.String("order_id", order.ID),
			zap.String("event_id", msg.EventID),
		)
		return nil
	}

	paidAt := payment.OccurredAt
	if paidAt.IsZero() {
		paidAt = time.Now().UTC()
	}
	if err := order.MarkPaid(payment.Amount, paidAt, msg.CorrelationID); err != nil {
		return err
	}
	if err := order.Fulfill(paidAt, msg.CorrelationID); err != nil {
		return err
	}

	return h.txm.Do(ctx, func(ctx context.Context) error {
		if err := h.orders.Update(ctx, order); err != nil {
			return fmt.Errorf("failed to update order %s: %w", order.ID, err)
		}
		return h.recorder.Capture(ctx, h.exec(ctx), order)
	})
}
