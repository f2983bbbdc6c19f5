// Package app assembles the back office: storage, the capture recorder, the
// relay and its maintenance workers, the transport, and every module's
// handlers. Two axes are configurable independently: where outbox events are
// stored (memory or MySQL) and how they travel (in-process bus or Kafka).
package app

import (
	"context"
	"database/sql"
	"fmt"

	trmsql "github.com/avito-tech/go-transaction-manager/drivers/sql/v2"
	"github.com/avito-tech/go-transaction-manager/trm/v2/manager"
	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/harborerp/backoffice/internal/accounting"
	"github.com/harborerp/backoffice/internal/bus"
	"github.com/harborerp/backoffice/internal/catalog"
	"github.com/harborerp/backoffice/internal/communication"
	"github.com/harborerp/backoffice/internal/config"
	"github.com/harborerp/backoffice/internal/consumer"
	"github.com/harborerp/backoffice/internal/events"
	"github.com/harborerp/backoffice/internal/kafkax"
	"github.com/harborerp/backoffice/internal/outbox"
	"github.com/harborerp/backoffice/internal/outbox/storage"
	"github.com/harborerp/backoffice/internal/outbox/storage/memstore"
	"github.com/harborerp/backoffice/internal/outbox/storage/sqlstore"
	"github.com/harborerp/backoffice/internal/payment"
	"github.com/harborerp/backoffice/internal/sales"
	"github.com/harborerp/backoffice/internal/warranty"
)

type App struct {
	Config *config.Config
	Logger *zap.Logger

	DB       *sql.DB
	Store    storage.Store
	Registry *outbox.Registry
	Recorder *outbox.Recorder
	Metrics  outbox.MetricsCollector
	Mux      *consumer.Mux
	Relay    *outbox.Relay

	Payments   *payment.Service
	Orders     sales.Repository
	Products   *catalog.MemoryRepository
	Invoices   *accounting.MemoryRepository
	Warranties *warranty.MemoryRepository

	publisher     outbox.Publisher
	dispatcher    *outbox.Dispatcher
	bus           *bus.Bus
	kafkaConsumer *kafkax.Consumer
	sqlStore      *sqlstore.SQLStore
	paymentSQL    *payment.SQLRepository
}

func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	a := &App{
		Config:   cfg,
		Logger:   logger,
		Registry: events.NewRegistry(),
		Metrics:  outbox.NewOTelMetricsCollector(),
	}

	if err := a.initStorage(); err != nil {
		return nil, err
	}
	a.Recorder = outbox.NewRecorder(a.Store, a.Registry, logger, a.Metrics)

	a.initModules()
	if err := a.initHandlers(); err != nil {
		return nil, err
	}
	if err := a.initTransport(); err != nil {
		return nil, err
	}
	a.initWorkers()

	return a, nil
}

func (a *App) initStorage() error {
	switch a.Config.Storage {
	case config.StorageMySQL:
		db, err := sql.Open("mysql", a.Config.MySQL.DSN)
		if err != nil {
			return fmt.Errorf("failed to open mysql connection: %w", err)
		}
		a.DB = db
		a.sqlStore = sqlstore.NewSQLStore(db, a.Logger)
		a.Store = a.sqlStore
	default:
		a.Store = memstore.New()
	}
	return nil
}

func (a *App) initModules() {
	a.Products = catalog.NewMemoryRepository()
	a.Orders = sales.NewMemoryRepository()
	a.Invoices = accounting.NewMemoryRepository()
	a.Warranties = warranty.NewMemoryRepository()

	txm, exec := a.txScope()
	var payments payment.Repository
	if a.DB != nil {
		a.paymentSQL = payment.NewSQLRepository(a.DB)
		payments = a.paymentSQL
	} else {
		payments = payment.NewMemoryRepository()
	}
	a.Payments = payment.NewService(payments, a.Recorder, txm, exec, a.Logger)
}

// txScope returns the transactional scope matching the storage mode: trm over
// the shared connection for MySQL, no-ops for the in-memory store.
func (a *App) txScope() (outbox.TxManager, outbox.Executor) {
	if a.DB == nil {
		return outbox.NopTxManager{}, outbox.NopExecutor
	}
	db := a.DB
	txm := manager.Must(trmsql.NewDefaultFactory(db))
	exec := func(ctx context.Context) storage.DBTX {
		return trmsql.DefaultCtxGetter.DefaultTrOrDB(ctx, db)
	}
	return txm, exec
}

func (a *App) initHandlers() error {
	a.Mux = consumer.NewMux(a.Registry, a.Logger, a.Metrics)

	var sender communication.Sender = communication.NopSender{}
	if a.Config.SMTP.Host != "" {
		sender = communication.NewSMTPSender(
			a.Config.SMTP.Host,
			a.Config.SMTP.Port,
			a.Config.SMTP.Username,
			a.Config.SMTP.Password,
			a.Config.SMTP.From,
		)
	}

	txm, exec := a.txScope()
	return a.Mux.Register(
		sales.NewPaymentSucceededHandler(a.Orders, a.Recorder, txm, exec, a.Logger),
		accounting.NewInvoiceRequestedHandler(a.Invoices, a.Recorder, txm, exec, a.Logger),
		warranty.NewOrderFulfilledHandler(a.Warranties, a.Products, a.Logger),
		communication.NewOrderPaidHandler(sender, a.Logger, a.Metrics),
	)
}

func (a *App) initTransport() error {
	switch a.Config.Transport {
	case config.TransportKafka:
		pub, err := outbox.NewKafkaPublisher(a.Logger,
			outbox.WithKafkaProducerProps(kafka.ConfigMap{
				"bootstrap.servers": a.Config.Kafka.Brokers,
			}),
			outbox.WithKafkaDefaultTopic(a.Config.Kafka.DefaultTopic),
		)
		if err != nil {
			return err
		}
		a.publisher = pub

		topics := []string{events.TopicPayment, events.TopicSales, events.TopicAccounting}
		kc, err := kafkax.NewConsumer(a.Config.Kafka.Brokers, a.Config.Kafka.GroupID, topics, a.Mux, a.Logger)
		if err != nil {
			return err
		}
		a.kafkaConsumer = kc
	default:
		a.bus = bus.New(a.Mux, a.Logger)
		a.publisher = a.bus
	}
	return nil
}

func (a *App) initWorkers() {
	cfg := a.Config
	backoff := outbox.ExponentialBackoff{
		BaseDelay: cfg.Relay.BaseDelay,
		MaxDelay:  cfg.Relay.MaxDelay,
	}

	a.Relay = outbox.NewRelay(a.Store, a.publisher, a.Logger, a.Metrics,
		outbox.WithRelayBatchSize(cfg.Relay.BatchSize),
		outbox.WithRelayMaxAttempts(cfg.Relay.MaxAttempts),
		outbox.WithRelayBackoffStrategy(backoff),
	)
	stuck := outbox.NewStuckEventRecovery(a.Store, a.Logger, a.Metrics,
		outbox.WithStuckRecoveryTimeout(cfg.Workers.StuckTimeout),
		outbox.WithStuckRecoveryMaxAttempts(cfg.Relay.MaxAttempts),
	)
	deadLetters := outbox.NewDeadLetterService(a.Store, a.Logger, a.Metrics, cfg.Relay.BatchSize, cfg.Relay.MaxAttempts)
	cleanup := outbox.NewCleanupService(a.Store, a.Logger, a.Metrics,
		outbox.WithSentRetention(cfg.Workers.SentRetention),
		outbox.WithDeadLetterRetention(cfg.Workers.DeadLetterRetention),
	)

	a.dispatcher = outbox.NewDispatcher(a.Logger,
		outbox.NewBaseWorker("outbox-relay", cfg.Relay.Interval, a.Logger, a.Relay.ProcessEvents),
		outbox.NewBaseWorker("stuck-event-recovery", cfg.Workers.StuckInterval, a.Logger, stuck.RecoverStuckEvents),
		outbox.NewBaseWorker("dead-letter-mover", cfg.Workers.DeadLetterInterval, a.Logger, deadLetters.MoveToDeadLetters),
		outbox.NewBaseWorker("outbox-cleanup", cfg.Workers.CleanupInterval, a.Logger, cleanup.Cleanup),
	)
}

// Run starts the transport and the outbox workers and blocks until ctx is
// cancelled, then shuts everything down in reverse order.
func (a *App) Run(ctx context.Context) error {
	if a.bus != nil {
		a.bus.Start(ctx)
	}
	if a.kafkaConsumer != nil {
		go func() {
			if err := a.kafkaConsumer.Run(ctx); err != nil {
				a.Logger.Error("Kafka consumer exited", zap.Error(err))
			}
		}()
	}

	a.dispatcher.Start(ctx)

	if a.kafkaConsumer != nil {
		if err := a.kafkaConsumer.Close(); err != nil {
			a.Logger.Error("Failed to close kafka consumer", zap.Error(err))
		}
	}
	if err := a.publisher.Close(); err != nil {
		a.Logger.Error("Failed to close publisher", zap.Error(err))
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.Error("Failed to close database", zap.Error(err))
		}
	}
	return nil
}

// Stop triggers the same shutdown Run performs on context cancellation.
func (a *App) Stop() {
	a.dispatcher.Stop()
}

// Migrate creates the MySQL tables the outbox and payment modules need. A
// no-op for in-memory storage.
func (a *App) Migrate(ctx context.Context) error {
	if a.sqlStore == nil {
		return nil
	}
	if err := a.sqlStore.EnsureTables(ctx); err != nil {
		return err
	}
	return a.paymentSQL.EnsureTables(ctx)
}
