package view

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nazeru/escrow-fulfillment-go/internal/order/domain"
)

// StatusRow is one order x line x category row, ordered by order id, product
// id and category name.
type StatusRow struct {
	OrderID      domain.OrderID
	Status       domain.OrderStatus
	TotalPrice   decimal.Decimal
	CreatedAt    time.Time
	ProductID    domain.ProductID
	ProductName  string
	ProductPrice decimal.Decimal
	Quantity     int64
	Category     string
}

type OrderLine struct {
	Categories []string    `json:"categories"`
	Name       string      `json:"name"`
	Price      json.Number `json:"price"`
	Quantity   int64       `json:"quantity"`
}

type OrderStatus struct {
	Products  []OrderLine `json:"products"`
	Price     json.Number `json:"price"`
	Status    string      `json:"status"`
	Timestamp string      `json:"timestamp"`
}

type StatusList struct {
	Orders []OrderStatus `json:"orders"`
}

func GroupStatuses(rows []StatusRow) StatusList {
	out := StatusList{Orders: []OrderStatus{}}
	var (
		prevOrder   domain.OrderID   = -1
		prevProduct domain.ProductID = -1
	)
	for _, r := range rows {
		switch {
		case r.OrderID != prevOrder:
			out.Orders = append(out.Orders, OrderStatus{
				Products:  []OrderLine{line(r)},
				Price:     Number(r.TotalPrice),
				Status:    string(r.Status),
				Timestamp: r.CreatedAt.UTC().Format(time.RFC3339),
			})
		case r.ProductID != prevProduct:
			o := &out.Orders[len(out.Orders)-1]
			o.Products = append(o.Products, line(r))
		default:
			o := &out.Orders[len(out.Orders)-1]
			l := &o.Products[len(o.Products)-1]
			l.Categories = append(l.Categories, r.Category)
		}
		prevOrder, prevProduct = r.OrderID, r.ProductID
	}
	return out
}

func line(r StatusRow) OrderLine {
	return OrderLine{
		Categories: []string{r.Category},
		Name:       r.ProductName,
		Price:      Number(r.ProductPrice),
		Quantity:   r.Quantity,
	}
}

type Undelivered struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
}

type UndeliveredList struct {
	Orders []Undelivered `json:"orders"`
}

func UndeliveredOrders(orders []domain.Order) UndeliveredList {
	out := UndeliveredList{Orders: make([]Undelivered, 0, len(orders))}
	for _, o := range orders {
		out.Orders = append(out.Orders, Undelivered{ID: int64(o.ID), Email: o.BuyerEmail})
	}
	return out
}
