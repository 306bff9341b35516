package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/example/orders-ms/internal/domain/order"
)

// PostgresOrderStore stores orders, order items and receipts in PostgreSQL
type PostgresOrderStore struct {
	db *sql.DB
}

func NewPostgresOrderStore(db *sql.DB) *PostgresOrderStore {
	return &PostgresOrderStore{db: db}
}

// CreateOrder inserts the order and all of its items in one transaction.
func (s *PostgresOrderStore) CreateOrder(ctx context.Context, o *order.Order) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO orders (id, total_amount, total_items, status, paid, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		o.ID, o.TotalAmount, o.TotalItems, o.Status, o.Paid, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for pos, item := range o.Items {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO order_items (id, order_id, position, product_id, price, quantity)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			uuid.New().String(), o.ID, pos, item.ProductID, item.Price, item.Quantity,
		)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	return tx.Commit()
}

// GetOrder loads an order with its items and, when present, its receipt.
func (s *PostgresOrderStore) GetOrder(ctx context.Context, id string) (*order.Order, error) {
	var o order.Order
	var paidAt sql.NullTime
	var chargeID sql.NullString

	err := s.db.QueryRowContext(ctx,
		`SELECT id, total_amount, total_items, status, paid, paid_at, stripe_charge_id, created_at, updated_at
		 FROM orders WHERE id = $1`, id,
	).Scan(&o.ID, &o.TotalAmount, &o.TotalItems, &o.Status, &o.Paid, &paidAt, &chargeID, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, order.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	if paidAt.Valid {
		o.PaidAt = &paidAt.Time
	}
	o.StripeChargeID = chargeID.String

	rows, err := s.db.QueryContext(ctx,
		`SELECT product_id, price, quantity FROM order_items WHERE order_id = $1 ORDER BY position`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var item order.OrderItem
		if err := rows.Scan(&item.ProductID, &item.Price, &item.Quantity); err != nil {
			return nil, err
		}
		o.Items = append(o.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var receipt order.Receipt
	err = s.db.QueryRowContext(ctx,
		`SELECT id, order_id, receipt_url, created_at FROM order_receipts WHERE order_id = $1`, id,
	).Scan(&receipt.ID, &receipt.OrderID, &receipt.ReceiptURL, &receipt.CreatedAt)
	if err == nil {
		o.Receipt = &receipt
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	return &o, nil
}

// ListOrders returns one page of orders plus the total matching count.
func (s *PostgresOrderStore) ListOrders(ctx context.Context, filter ListFilter) ([]order.Order, int, error) {
	where := ""
	args := []any{}
	if filter.Status != nil {
		where = "WHERE status = $1"
		args = append(args, *filter.Status)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM orders "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.Limit
	query := fmt.Sprintf(
		`SELECT id, total_amount, total_items, status, paid, paid_at, stripe_charge_id, created_at, updated_at
		 FROM orders %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		where, len(args)+1, len(args)+2,
	)
	args = append(args, filter.Limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	orders := make([]order.Order, 0, filter.Limit)
	for rows.Next() {
		var o order.Order
		var paidAt sql.NullTime
		var chargeID sql.NullString
		if err := rows.Scan(&o.ID, &o.TotalAmount, &o.TotalItems, &o.Status, &o.Paid, &paidAt, &chargeID, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, 0, err
		}
		if paidAt.Valid {
			o.PaidAt = &paidAt.Time
		}
		o.StripeChargeID = chargeID.String
		orders = append(orders, o)
	}
	return orders, total, rows.Err()
}

// UpdateStatus sets only the status field.
func (s *PostgresOrderStore) UpdateStatus(ctx context.Context, id string, status order.Status) (*order.Order, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE orders SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, order.ErrOrderNotFound
	}
	return s.GetOrder(ctx, id)
}

// MarkPaid applies the payment-confirmation fields and creates the receipt
// in one transaction. The unique constraint on order_receipts.order_id makes
// receipt creation idempotent under event re-delivery.
func (s *PostgresOrderStore) MarkPaid(ctx context.Context, id string, upd PaidUpdate) (*order.Order, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE orders
		 SET status = $2, paid = true, paid_at = $3, stripe_charge_id = $4, updated_at = now()
		 WHERE id = $1`,
		id, order.StatusPaid, upd.PaidAt, upd.StripeChargeID,
	)
	if err != nil {
		return nil, fmt.Errorf("mark order paid: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, order.ErrOrderNotFound
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO order_receipts (id, order_id, receipt_url, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (order_id) DO NOTHING`,
		uuid.New().String(), id, upd.ReceiptURL, time.Now(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert receipt: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetOrder(ctx, id)
}

// ConnectPostgres establishes a connection to PostgreSQL
func ConnectPostgres(connStr string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, err
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

// EnsureSchema creates the order tables when they do not exist yet.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS orders (
			id               UUID PRIMARY KEY,
			total_amount     DOUBLE PRECISION NOT NULL,
			total_items      INTEGER NOT NULL,
			status           TEXT NOT NULL DEFAULT 'PENDING',
			paid             BOOLEAN NOT NULL DEFAULT false,
			paid_at          TIMESTAMPTZ,
			stripe_charge_id TEXT,
			created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE TABLE IF NOT EXISTS order_items (
			id         UUID PRIMARY KEY,
			order_id   UUID NOT NULL REFERENCES orders(id),
			position   INTEGER NOT NULL,
			product_id TEXT NOT NULL,
			price      DOUBLE PRECISION NOT NULL,
			quantity   INTEGER NOT NULL CHECK (quantity > 0),
			UNIQUE (order_id, position)
		);
		CREATE TABLE IF NOT EXISTS order_receipts (
			id          UUID PRIMARY KEY,
			order_id    UUID NOT NULL UNIQUE REFERENCES orders(id),
			receipt_url TEXT NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status);
		CREATE INDEX IF NOT EXISTS idx_order_items_order_id ON order_items(order_id);
	`)
	return err
}
