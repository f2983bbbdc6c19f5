package payment

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/harborerp/backoffice/internal/outbox"
)

// Service records captured payments. The repository insert and the outbox
// capture share one transaction; if either fails, neither is visible.
type Service struct {
	payments Repository
	recorder *outbox.Recorder
	txm      outbox.TxManager
	exec     outbox.Executor
	logger   *zap.Logger
}

func NewService(payments Repository, recorder *outbox.Recorder, txm outbox.TxManager, exec outbox.Executor, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if txm == nil {
		txm = outbox.NopTxManager{}
	}
	if exec == nil {
		exec = outbox.NopExecutor
	}
	return &Service{
		payments: payments,
		recorder: recorder,
		txm:      txm,
		exec:     exec,
		logger:   logger,
	}
}

// RecordPayment persists a captured payment and its PaymentSucceeded event
// atomically, returning the stored payment.
func (s *Service) RecordPayment(ctx context.Context, orderID string, amount int64, method string) (*Payment, error) {
	if orderID == "" {
		return nil, fmt.Errorf("payment: order id is required")
	}
	if amount <= 0 {
		return nil, fmt.Errorf("payment: amount must be positive, got %d", amount)
	}

	p := NewPayment(orderID, amount, method, time.Now())

	err := s.txm.Do(ctx, func(ctx context.Context) error {
		if err := s.payments.Create(ctx, p); err != nil {
			return err
		}
		return s.recorder.Capture(ctx, s.exec(ctx), p)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Payment recorded",
		zap.String("payment_id", p.ID),
		zap.String("order_id", p.OrderID),
		zap.Int64("amount", p.Amount),
	)
	return p, nil
}
