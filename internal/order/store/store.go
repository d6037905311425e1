// Package store persists orders in PostgreSQL. Every workflow write is one
// database transaction that also appends the lifecycle event to the outbox.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/nazeru/escrow-fulfillment-go/internal/order/domain"
	"github.com/nazeru/escrow-fulfillment-go/internal/order/view"
	"github.com/nazeru/escrow-fulfillment-go/pkg/contracts"
	"github.com/nazeru/escrow-fulfillment-go/pkg/outbox"
	"github.com/nazeru/escrow-fulfillment-go/pkg/tx"
)

type Store struct {
	DB *pgxpool.Pool
	// Topic receives every lifecycle event through the outbox.
	Topic string
}

func New(db *pgxpool.Pool, topic string) *Store { return &Store{DB: db, Topic: topic} }

func (s *Store) GetOrder(ctx context.Context, id domain.OrderID) (domain.Order, error) {
	var (
		o     domain.Order
		total string
	)
	err := s.DB.QueryRow(ctx, `
SELECT id, total_price::text, status, created_at, buyer_email, contract_address
FROM orders
WHERE id=$1
`, int64(id)).Scan(&o.ID, &total, &o.Status, &o.CreatedAt, &o.BuyerEmail, &o.ContractAddress)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if err != nil {
		return domain.Order{}, err
	}
	if err := knownStatus(o.ID, o.Status); err != nil {
		return domain.Order{}, err
	}
	if o.TotalPrice, err = decimal.NewFromString(total); err != nil {
		return domain.Order{}, fmt.Errorf("order %d total: %w", id, err)
	}
	return o, nil
}

func (s *Store) ProductIDs(ctx context.Context) ([]domain.ProductID, error) {
	rows, err := s.DB.Query(ctx, `SELECT id FROM products ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[domain.ProductID])
}

func (s *Store) ProductPrices(ctx context.Context, ids []domain.ProductID) ([]domain.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	raw := make([]int64, len(ids))
	for i, id := range ids {
		raw[i] = int64(id)
	}
	rows, err := s.DB.Query(ctx, `SELECT id, name, price::text FROM products WHERE id = ANY($1) ORDER BY id ASC`, raw)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Product
	for rows.Next() {
		var (
			p     domain.Product
			price string
		)
		if err := rows.Scan(&p.ID, &p.Name, &price); err != nil {
			return nil, err
		}
		if p.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("product %d price: %w", p.ID, err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CreateOrder inserts the order, its lines, the idempotency key and the
// created event in one transaction. A key already taken by a concurrent
// request yields domain.ErrIdempotencyRace.
func (s *Store) CreateOrder(ctx context.Context, p domain.Placement, evt contracts.Event) (domain.OrderID, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	dbtx, err := s.DB.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = dbtx.Rollback(ctx) }()

	var id int64
	err = dbtx.QueryRow(ctx, `
INSERT INTO orders(total_price, status, created_at, buyer_email, contract_address)
VALUES($1::numeric, $2, $3, $4, $5)
RETURNING id
`, p.Order.TotalPrice.String(), string(p.Order.Status), p.Order.CreatedAt, p.Order.BuyerEmail, p.Order.ContractAddress).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert order: %w", err)
	}

	if len(p.Items) > 0 {
		lines := make([][]any, 0, len(p.Items))
		for _, it := range p.Items {
			lines = append(lines, []any{id, int64(it.ProductID), it.Quantity})
		}
		_, err = dbtx.CopyFrom(ctx, pgx.Identifier{"product_orders"}, []string{"order_id", "product_id", "quantity"}, pgx.CopyFromRows(lines))
		if err != nil {
			return 0, fmt.Errorf("insert order lines: %w", err)
		}
	}

	if p.IdempotencyKey != "" {
		_, err = dbtx.Exec(ctx, `INSERT INTO order_idempotency(idempotency_key, order_id) VALUES($1, $2)`, p.IdempotencyKey, id)
		if err != nil {
			if isUniqueViolation(err) {
				return 0, domain.ErrIdempotencyRace
			}
			return 0, fmt.Errorf("insert idempotency key: %w", err)
		}
	}

	evt.OrderID = id
	if err := outbox.Insert(ctx, dbtx, s.Topic, evt); err != nil {
		return 0, fmt.Errorf("insert outbox event: %w", err)
	}
	if err := dbtx.Commit(ctx); err != nil {
		return 0, err
	}
	return domain.OrderID(id), nil
}

func (s *Store) OrderByIdempotencyKey(ctx context.Context, key string) (domain.OrderID, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	var id int64
	err := s.DB.QueryRow(ctx, `SELECT order_id FROM order_idempotency WHERE idempotency_key=$1`, key).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return domain.OrderID(id), true, nil
}

// UpdateStatus moves the order from one status to the next only if it is
// still in the expected one.
func (s *Store) UpdateStatus(ctx context.Context, id domain.OrderID, from, to domain.OrderStatus, evt contracts.Event) error {
	dbtx, err := s.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = dbtx.Rollback(ctx) }()

	tag, err := dbtx.Exec(ctx, `UPDATE orders SET status=$3, updated_at=now() WHERE id=$1 AND status=$2`,
		int64(id), string(from), string(to))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrStatusConflict
	}
	if err := outbox.Insert(ctx, dbtx, s.Topic, evt); err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return dbtx.Commit(ctx)
}

func (s *Store) RecordEvent(ctx context.Context, evt contracts.Event) error {
	return outbox.Insert(ctx, s.DB, s.Topic, evt)
}

// Record implements tx.Journal.
func (s *Store) Record(ctx context.Context, e tx.Entry) error {
	var orderID *int64
	if e.OrderID != 0 {
		orderID = &e.OrderID
	}
	_, err := s.DB.Exec(ctx, `INSERT INTO chain_tx_log(order_id, step, tx_hash, status, detail) VALUES($1, $2, NULLIF($3, ''), $4, $5)`,
		orderID, string(e.Step), e.TxHash, string(e.Status), e.Detail)
	return err
}

func (s *Store) UndeliveredOrders(ctx context.Context) ([]domain.Order, error) {
	rows, err := s.DB.Query(ctx, `SELECT id, buyer_email FROM orders WHERE status=$1 ORDER BY id`, string(domain.OrderStatusCreated))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Order
	for rows.Next() {
		o := domain.Order{Status: domain.OrderStatusCreated}
		if err := rows.Scan(&o.ID, &o.BuyerEmail); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *Store) BuyerOrderRows(ctx context.Context, email string) ([]view.StatusRow, error) {
	rows, err := s.DB.Query(ctx, `
SELECT o.id, o.status, o.total_price::text, o.created_at,
       p.id, p.name, p.price::text, po.quantity, c.name
FROM orders o
JOIN product_orders po ON po.order_id = o.id
JOIN products p ON p.id = po.product_id
JOIN product_categories pc ON pc.product_id = p.id
JOIN categories c ON c.id = pc.category_id
WHERE o.buyer_email = $1
ORDER BY o.id ASC, p.id ASC, c.name ASC
`, email)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []view.StatusRow
	for rows.Next() {
		var (
			r            view.StatusRow
			total, price string
		)
		if err := rows.Scan(&r.OrderID, &r.Status, &total, &r.CreatedAt, &r.ProductID, &r.ProductName, &price, &r.Quantity, &r.Category); err != nil {
			return nil, err
		}
		if err := knownStatus(r.OrderID, r.Status); err != nil {
			return nil, err
		}
		if r.TotalPrice, err = decimal.NewFromString(total); err != nil {
			return nil, err
		}
		if r.ProductPrice, err = decimal.NewFromString(price); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SearchRows matches name and category as case-insensitive substrings; an
// empty filter matches everything.
func (s *Store) SearchRows(ctx context.Context, name, category string) ([]view.SearchRow, error) {
	rows, err := s.DB.Query(ctx, `
SELECT p.id, p.name, p.price::text, c.name
FROM products p
JOIN product_categories pc ON pc.product_id = p.id
JOIN categories c ON c.id = pc.category_id
WHERE p.name ILIKE '%' || $1 || '%' AND c.name ILIKE '%' || $2 || '%'
ORDER BY p.id ASC, c.name ASC
`, name, category)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []view.SearchRow
	for rows.Next() {
		var (
			r     view.SearchRow
			price string
		)
		if err := rows.Scan(&r.ProductID, &r.ProductName, &price, &r.Category); err != nil {
			return nil, err
		}
		if r.Price, err = decimal.NewFromString(price); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Ping backs the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return s.DB.Ping(ctx)
}

// knownStatus guards against rows written outside the lifecycle.
func knownStatus(id domain.OrderID, s domain.OrderStatus) error {
	if !s.Valid() {
		return fmt.Errorf("order %d has unknown status %q", id, s)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
