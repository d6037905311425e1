package domain

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

type OrderID int64
type ProductID int64

type OrderStatus string

const (
	OrderStatusCreated  OrderStatus = "CREATED"
	OrderStatusPending  OrderStatus = "PENDING"
	OrderStatusComplete OrderStatus = "COMPLETE"
)

// next is the only legal successor of each status; COMPLETE has none.
var next = map[OrderStatus]OrderStatus{
	OrderStatusCreated: OrderStatusPending,
	OrderStatusPending: OrderStatusComplete,
}

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusCreated, OrderStatusPending, OrderStatusComplete:
		return true
	}
	return false
}

// CanTransition reports whether from -> to is a legal single step.
func CanTransition(from, to OrderStatus) bool {
	n, ok := next[from]
	return ok && n == to
}

type Order struct {
	ID              OrderID
	TotalPrice      decimal.Decimal // smallest chain denomination, may carry a fraction
	Status          OrderStatus
	CreatedAt       time.Time
	BuyerEmail      string
	ContractAddress string
}

type OrderItem struct {
	ProductID ProductID
	Quantity  int64
}

type Product struct {
	ID    ProductID
	Name  string
	Price decimal.Decimal
}

// MaxQuantity is the largest quantity product_orders.quantity (INTEGER) holds.
const MaxQuantity = math.MaxInt32

// MaxTotal is the largest price orders.total_price (NUMERIC(30,4)) holds.
var MaxTotal = decimal.New(1, 26).Sub(decimal.New(1, -4))

// Total sums unit price x quantity. Items whose product has no price are
// skipped; callers validate existence first. overflow is the index of the
// first line that takes the sum past MaxTotal, or -1.
func Total(items []OrderItem, prices map[ProductID]decimal.Decimal) (total decimal.Decimal, overflow int) {
	total = decimal.Zero
	for n, it := range items {
		p, ok := prices[it.ProductID]
		if !ok {
			continue
		}
		total = total.Add(p.Mul(decimal.NewFromInt(it.Quantity)))
		if total.GreaterThan(MaxTotal) {
			return total, n
		}
	}
	return total, -1
}
