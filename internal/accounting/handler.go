package accounting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/harborerp/backoffice/internal/consumer"
	"github.com/harborerp/backoffice/internal/events"
	"github.com/harborerp/backoffice/internal/outbox"
)

// InvoiceRequestedHandler issues the AR invoice for a paid order. The payment
// is already settled when the request arrives, so the invoice is marked paid
// immediately and an InvoicePaid event is captured for the ledger side.
type InvoiceRequestedHandler struct {
	invoices Repository
	recorder *outbox.Recorder
	txm      outbox.TxManager
	exec     outbox.Executor
	logger   *zap.Logger
}

func NewInvoiceRequestedHandler(invoices Repository, recorder *outbox.Recorder, txm outbox.TxManager, exec outbox.Executor, logger *zap.Logger) *InvoiceRequestedHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if txm == nil {
		txm = outbox.NopTxManager{}
	}
	if exec == nil {
		exec = outbox.NopExecutor
	}
	return &InvoiceRequestedHandler{
		invoices: invoices,
		recorder: recorder,
		txm:      txm,
		exec:     exec,
		logger:   logger,
	}
}

func (h *InvoiceRequestedHandler) EventType() string {
	return events.TypeInvoiceRequested
}

func (h *InvoiceRequestedHandler) Handle(ctx context.Context, msg consumer.Message) error {
	request, ok := msg.Payload.(events.InvoiceRequested)
	if !ok {
		return fmt.Errorf("unexpected payload type %T", msg.Payload)
	}

	if _, err := h.invoices.GetByOrderID(ctx, request.OrderID); err == nil {
		h.logger.Info("Invoice for order already issued, skipping redelivery",
			zap.String("order_id", request.OrderID),
			zap.String("event_id", msg.EventID),
		)
		return nil
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}

	invoice := NewInvoice(request.OrderID, request.CustomerID, request.SubtotalAmount, request.TaxAmount, request.TotalAmount)
	invoice.MarkPaid(time.Now())

	err := h.txm.Do(ctx, func(ctx context.Context) error {
		if err := h.invoices.Create(ctx, invoice); err != nil {
			return err
		}

		headers := make(map[string]string)
		if msg.CorrelationID != "" {
			headers[outbox.HeaderCorrelationID] = msg.CorrelationID
		}
		return h.recorder.Save(ctx, h.exec(ctx), outbox.Event{
			EventID:       uuid.NewString(),
			EventType:     events.TypeInvoicePaid,
			AggregateType: "invoice",
			AggregateID:   invoice.ID,
			Topic:         events.TopicAccounting,
			Payload: events.InvoicePaid{
				InvoiceID:   invoice.ID,
				OrderID:     invoice.OrderID,
				TotalAmount: invoice.TotalAmount,
				PaidAt:      *invoice.PaidAt,
			},
			Headers: headers,
		})
	})
	if err != nil {
		// Two deliveries racing past the existence check resolve on the
		// unique order id constraint; the loser acknowledges.
		if errors.Is(err, ErrDuplicateOrder) {
			return nil
		}
		return err
	}

	h.logger.Info("Invoice issued",
		zap.String("invoice_id", invoice.ID),
		zap.String("order_id", invoice.OrderID),
		zap.Int64("total_amount", invoice.TotalAmount),
	)
	return nil
}
