package outbox

import (
	"context"

	"github.com/harborerp/backoffice/internal/outbox/storage"
)

// TxManager opens a transaction around fn. Business services use it to commit
// state changes and captured events atomically. The SQL implementation is
// trm's manager; NopTxManager serves stores that do not need one.
type TxManager interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}

// Executor resolves the statement executor for the current context: inside a
// TxManager.Do it must return the active transaction, outside it the plain
// connection. In-memory stores ignore the executor entirely.
type Executor func(ctx context.Context) storage.DBTX

// NopTxManager runs fn directly, without transactional scope.
type NopTxManager struct{}

func (NopTxManager) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// NopExecutor returns a nil executor for stores that do not use one.
func NopExecutor(context.Context) storage.DBTX { return nil }
