// Package bus is an in-memory pub/sub transport for single-process
// deployments and tests. Delivery is asynchronous and at-least-once within
// the process: a failed dispatch is requeued with a bounded number of
// attempts. It is not durable across restarts; durability lives in the
// outbox store feeding it.
package bus

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/harborerp/backoffice/internal/consumer"
	"github.com/harborerp/backoffice/internal/outbox"
)

const (
	defaultQueueSize   = 1024
	defaultMaxAttempts = 5
	defaultRetryDelay  = 100 * time.Millisecond
)

type Bus struct {
	mux         *consumer.Mux
	logger      *zap.Logger
	queue       chan consumer.Delivery
	maxAttempts int
	retryDelay  time.Duration

	startOnce sync.Once
	stopOnce  sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
	pending   sync.WaitGroup
}

type Option func(*Bus)

func WithMaxAttempts(attempts int) Option {
	return func(b *Bus) {
		if attempts > 0 {
			b.maxAttempts = attempts
		}
	}
}

func WithRetryDelay(delay time.Duration) Option {
	return func(b *Bus) {
		if delay > 0 {
			b.retryDelay = delay
		}
	}
}

func New(mux *consumer.Mux, logger *zap.Logger, opts ...Option) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Bus{
		mux:         mux,
		logger:      logger,
		queue:       make(chan consumer.Delivery, defaultQueueSize),
		maxAttempts: defaultMaxAttempts,
		retryDelay:  defaultRetryDelay,
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Start launches the dispatch loop.
func (b *Bus) Start(ctx context.Context) {
	b.startOnce.Do(func() {
		loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		b.cancel = cancel
		go b.dispatchLoop(loopCtx)
		b.logger.Info("In-process bus started")
	})
}

// Stop drains in-flight redeliveries and stops the loop.
func (b *Bus) Stop() {
	b.stopOnce.Do(func() {
		b.pending.Wait()
		if b.cancel != nil {
			b.cancel()
		}
		<-b.done
		b.logger.Info("In-process bus stopped")
	})
}

// Publish implements outbox.Publisher by enqueueing the event for delivery.
func (b *Bus) Publish(ctx context.Context, record outbox.EventRecord) error {
	d := consumer.DeliveryFromRecord(record, 1)
	select {
	case b.queue <- d:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Bus) Close() error {
	b.Stop()
	return nil
}

func (b *Bus) dispatchLoop(ctx context.Context) {
	defer close(b.done)
	for {
		select {
		case <-ctx.Done():
			return
		case d := <-b.queue:
			b.deliver(ctx, d)
		}
	}
}

func (b *Bus) deliver(ctx context.Context, d consumer.Delivery) {
	err := b.mux.Dispatch(ctx, d)
	if err == nil {
		return
	}

	if d.Attempt >= b.maxAttempts {
		b.logger.Error("Delivery attempts exhausted, dropping message",
			zap.String("event_id", d.EventID),
			zap.String("event_type", d.EventType),
			zap.Int("attempts", d.Attempt),
			zap.Error(err),
		)
		return
	}

	next := d
	next.Attempt++
	b.logger.Warn("Delivery failed, scheduling redelivery",
		zap.String("event_id", d.EventID),
		zap.String("event_type", d.EventType),
		zap.Int("next_attempt", next.Attempt),
		zap.Error(err),
	)

	b.pending.Add(1)
	time.AfterFunc(b.retryDelay, func() {
		defer b.pending.Done()
		select {
		case b.queue <- next:
		case <-ctx.Done():
		}
	})
}
