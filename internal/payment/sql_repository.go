package payment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	trmsql "github.com/avito-tech/go-transaction-manager/drivers/sql/v2"
	"github.com/go-sql-driver/mysql"
)

const (
	insertPaymentQuery = `
		INSERT INTO payments (id, order_id, amount, method, occurred_at)
		VALUES (?, ?, ?, ?, ?)
	`
	selectPaymentQuery = `
		SELECT id, order_id, amount, method, occurred_at
		FROM payments
		WHERE %s = ?
	`
	createPaymentsTable = `
		CREATE TABLE IF NOT EXISTS payments (
			id VARCHAR(36) NOT NULL,
			order_id VARCHAR(36) NOT NULL,
			amount BIGINT NOT NULL,
			method VARCHAR(32) NOT NULL,
			occurred_at TIMESTAMP(6) NOT NULL,
			PRIMARY KEY (id),
			UNIQUE KEY uk_payments_order_id (order_id)
		) ENGINE=InnoDB
	`
)

// SQLRepository stores payments in MySQL. Statements run on the transaction
// the transaction manager put into the context, or on the bare connection
// outside of one, so the repository composes with any transactional scope.
type SQLRepository struct {
	db     *sql.DB
	getter *trmsql.CtxGetter
}

func NewSQLRepository(db *sql.DB) *SQLRepository {
	return &SQLRepository{
		db:     db,
		getter: trmsql.DefaultCtxGetter,
	}
}

func (r *SQLRepository) EnsureTables(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createPaymentsTable); err != nil {
		return fmt.Errorf("failed to create payments table: %w", err)
	}
	return nil
}

func (r *SQLRepository) Create(ctx context.Context, p *Payment) error {
	tr := r.getter.DefaultTrOrDB(ctx, r.db)
	_, err := tr.ExecContext(ctx, insertPaymentQuery, p.ID, p.OrderID, p.Amount, p.Method, p.OccurredAt)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert payment: %w", err)
	}
	return nil
}

func (r *SQLRepository) Get(ctx context.Context, id string) (*Payment, error) {
	return r.selectOne(ctx, "id", id)
}

func (r *SQLRepository) GetByOrderID(ctx context.Context, orderID string) (*Payment, error) {
	return r.selectOne(ctx, "order_id", orderID)
}

func (r *SQLRepository) selectOne(ctx context.Context, column, value string) (*Payment, error) {
	tr := r.getter.DefaultTrOrDB(ctx, r.db)
	row := tr.QueryRowContext(ctx, fmt.Sprintf(selectPaymentQuery, column), value)

	var p Payment
	if err := row.Scan(&p.ID, &p.OrderID, &p.Amount, &p.Method, &p.OccurredAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan payment: %w", err)
	}
	return &p, nil
}
