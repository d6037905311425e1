package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nazeru/escrow-fulfillment-go/internal/order/domain"
	"github.com/nazeru/escrow-fulfillment-go/pkg/contracts"
	"github.com/nazeru/escrow-fulfillment-go/pkg/db"
	"github.com/nazeru/escrow-fulfillment-go/pkg/outbox"
	"github.com/nazeru/escrow-fulfillment-go/pkg/tx"
)

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})))
	assert.False(t, isUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, isUniqueViolation(errors.New("duplicate key")))
}

func TestKnownStatus(t *testing.T) {
	assert.NoError(t, knownStatus(1, domain.OrderStatusPending))
	assert.EqualError(t, knownStatus(4, "PAID"), `order 4 has unknown status "PAID"`)
}

// openLive connects to a scratch database and resets the schema.
func openLive(t *testing.T) *Store {
	t.Helper()
	if os.Getenv("ESCROW_INTEGRATION") != "1" {
		t.Skip("set ESCROW_INTEGRATION=1 and TEST_DATABASE_URL to run against Postgres")
	}
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL is not set")
	}
	ctx := context.Background()
	pool, err := db.Connect(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	schema, err := os.ReadFile(filepath.Join("..", "..", "..", "migrations", "0001_init.sql"))
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `DROP TABLE IF EXISTS notifications, chain_tx_log, outbox, order_idempotency, product_orders, orders, product_categories, categories, products CASCADE`)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, string(schema))
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `
INSERT INTO products(id, name, price) VALUES (7, 'oak desk', 50), (9, 'desk lamp', 30.5);
INSERT INTO categories(id, name) VALUES (1, 'furniture'), (2, 'office'), (3, 'lighting');
INSERT INTO product_categories(product_id, category_id) VALUES (7, 1), (7, 2), (9, 2), (9, 3);
`)
	require.NoError(t, err)
	return New(pool, "escrow.orders")
}

func placement(key string) domain.Placement {
	return domain.Placement{
		Order: domain.Order{
			TotalPrice:      decimal.RequireFromString("130.5"),
			Status:          domain.OrderStatusCreated,
			CreatedAt:       time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
			BuyerEmail:      "buyer@shop.test",
			ContractAddress: "0x00000000000000000000000000000000000E5C70",
		},
		Items:          []domain.OrderItem{{ProductID: 7, Quantity: 2}, {ProductID: 9, Quantity: 1}},
		IdempotencyKey: key,
	}
}

type capturePublisher struct {
	keys []string
}

func (p *capturePublisher) Publish(ctx context.Context, topic, key string, value []byte) error {
	p.keys = append(p.keys, key)
	return nil
}

func TestStoreLifecycleLive(t *testing.T) {
	s := openLive(t)
	ctx := context.Background()

	ids, err := s.ProductIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.ProductID{7, 9}, ids)

	prices, err := s.ProductPrices(ctx, []domain.ProductID{9, 7})
	require.NoError(t, err)
	require.Len(t, prices, 2)
	assert.Equal(t, domain.ProductID(7), prices[0].ID)
	assert.True(t, decimal.RequireFromString("30.5").Equal(prices[1].Price))

	id, err := s.CreateOrder(ctx, placement("k-1"), contracts.NewEvent(contracts.EventOrderCreated, 0, "0xabc", nil))
	require.NoError(t, err)

	got, ok, err := s.OrderByIdempotencyKey(ctx, "k-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, id, got)

	_, err = s.CreateOrder(ctx, placement("k-1"), contracts.NewEvent(contracts.EventOrderCreated, 0, "0xdef", nil))
	assert.ErrorIs(t, err, domain.ErrIdempotencyRace)

	order, err := s.GetOrder(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCreated, order.Status)
	assert.Equal(t, "130.5", order.TotalPrice.String())

	_, err = s.GetOrder(ctx, id+100)
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)

	undelivered, err := s.UndeliveredOrders(ctx)
	require.NoError(t, err)
	require.Len(t, undelivered, 1)

	err = s.UpdateStatus(ctx, id, domain.OrderStatusCreated, domain.OrderStatusPending, contracts.NewEvent(contracts.EventOrderPickedUp, int64(id), "0x1", nil))
	require.NoError(t, err)
	err = s.UpdateStatus(ctx, id, domain.OrderStatusCreated, domain.OrderStatusPending, contracts.NewEvent(contracts.EventOrderPickedUp, int64(id), "0x2", nil))
	assert.ErrorIs(t, err, domain.ErrStatusConflict)

	rows, err := s.BuyerOrderRows(ctx, "buyer@shop.test")
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "furniture", rows[0].Category)
	assert.Equal(t, domain.OrderStatusPending, rows[0].Status)

	found, err := s.SearchRows(ctx, "DESK", "")
	require.NoError(t, err)
	assert.Len(t, found, 4)
	found, err = s.SearchRows(ctx, "", "light")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, domain.ProductID(9), found[0].ProductID)

	require.NoError(t, s.Record(ctx, tx.Entry{OrderID: int64(id), Step: tx.StepCourierPickUp, TxHash: "0x1", Status: tx.TxConfirmed}))
	require.NoError(t, s.Record(ctx, tx.Entry{Step: tx.StepDeployEscrow, Status: tx.TxUnavailable, Detail: "chain id: refused"}))

	pub := &capturePublisher{}
	relay := &outbox.Relay{DB: s.DB, Publisher: pub}
	sent, err := relay.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
	assert.Equal(t, []string{fmt.Sprintf("order-%d", id), fmt.Sprintf("order-%d", id)}, pub.keys)

	sent, err = relay.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, sent)
}
