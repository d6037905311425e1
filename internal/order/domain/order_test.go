package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	all := []OrderStatus{OrderStatusCreated, OrderStatusPending, OrderStatusComplete}
	legal := map[[2]OrderStatus]bool{
		{OrderStatusCreated, OrderStatusPending}:  true,
		{OrderStatusPending, OrderStatusComplete}: true,
	}
	for _, from := range all {
		for _, to := range all {
			assert.Equal(t, legal[[2]OrderStatus{from, to}], CanTransition(from, to), "%s -> %s", from, to)
		}
	}
	assert.False(t, CanTransition("PAID", OrderStatusComplete))
}

func TestStatusHelpers(t *testing.T) {
	assert.True(t, OrderStatusCreated.Valid())
	assert.False(t, OrderStatus("created").Valid())
}

func TestTotal(t *testing.T) {
	prices := map[ProductID]decimal.Decimal{
		7: decimal.NewFromInt(50),
		9: decimal.NewFromInt(30),
	}
	got, overflow := Total([]OrderItem{{ProductID: 7, Quantity: 2}, {ProductID: 9, Quantity: 1}}, prices)
	assert.True(t, got.Equal(decimal.NewFromInt(130)), "got %s", got)
	assert.Equal(t, -1, overflow)

	fractional := map[ProductID]decimal.Decimal{1: decimal.RequireFromString("33.35")}
	got, _ = Total([]OrderItem{{ProductID: 1, Quantity: 3}}, fractional)
	assert.Equal(t, "100.05", got.String())
}

func TestTotalOverflow(t *testing.T) {
	// Largest NUMERIC(20,4) unit price.
	prices := map[ProductID]decimal.Decimal{1: decimal.RequireFromString("9999999999999999.9999")}
	line := OrderItem{ProductID: 1, Quantity: MaxQuantity}

	_, overflow := Total([]OrderItem{line, line, line}, prices)
	assert.Equal(t, -1, overflow)

	items := make([]OrderItem, 6)
	for i := range items {
		items[i] = line
	}
	_, overflow = Total(items, prices)
	assert.Equal(t, 4, overflow)
}
