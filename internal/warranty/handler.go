package warranty

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/harborerp/backoffice/internal/catalog"
	"github.com/harborerp/backoffice/internal/consumer"
	"github.com/harborerp/backoffice/internal/events"
)

// OrderFulfilledHandler registers one warranty per serial number on a
// fulfilled order. A serial that is already registered is skipped, so a
// redelivered event tops up exactly the warranties a previous partial run
// missed and nothing else.
type OrderFulfilledHandler struct {
	warranties Repository
	products   catalog.Repository
	logger     *zap.Logger
}

func NewOrderFulfilledHandler(warranties Repository, products catalog.Repository, logger *zap.Logger) *OrderFulfilledHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrderFulfilledHandler{
		warranties: warranties,
		products:   products,
		logger:     logger,
	}
}

func (h *OrderFulfilledHandler) EventType() string {
	return events.TypeOrderFulfilled
}

func (h *OrderFulfilledHandler) Handle(ctx context.Context, msg consumer.Message) error {
	fulfilled, ok := msg.Payload.(events.OrderFulfilled)
	if !ok {
		return fmt.Errorf("unexpected payload type %T", msg.Payload)
	}

	for _, line := range fulfilled.Lines {
		product, err := h.products.Get(ctx, line.ProductID)
		if err != nil {
			// Without the product there is no coverage period. Redelivery
			// retries once the catalog knows the product.
			return fmt.Errorf("failed to resolve product %s: %w", line.ProductID, err)
		}

		for _, serial := range line.SerialNumbers {
			w := NewProductWarranty(serial, product.ID, fulfilled.OrderID, fulfilled.CustomerID, fulfilled.PurchasedAt, product.WarrantyMonths)
			if err := h.warranties.Create(ctx, w); err != nil {
				if errors.Is(err, ErrSerialExists) {
					continue
				}
				return fmt.Errorf("failed to register warranty for serial %s: %w", serial, err)
			}
			h.logger.Debug("Warranty registered",
				zap.String("serial_number", serial),
				zap.String("order_id", fulfilled.OrderID),
				zap.Time("expires_at", w.ExpiresAt),
			)
		}
	}
	return nil
}
