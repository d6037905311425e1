// Package view folds flat join rows into the response trees of the listing
// endpoints.
package view

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/nazeru/escrow-fulfillment-go/internal/order/domain"
)

// SearchRow is one product x category match.
type SearchRow struct {
	ProductID   domain.ProductID
	ProductName string
	Price       decimal.Decimal
	Category    string
}

type SearchProduct struct {
	Categories []string    `json:"categories"`
	ID         int64       `json:"id"`
	Name       string      `json:"name"`
	Price      json.Number `json:"price"`
}

type SearchResult struct {
	Categories []string        `json:"categories"`
	Products   []SearchProduct `json:"products"`
}

// GroupSearch keeps first-appearance order of categories and products. A
// product matched through several categories appears once, carrying all of
// them.
func GroupSearch(rows []SearchRow) SearchResult {
	res := SearchResult{Categories: []string{}, Products: []SearchProduct{}}
	seenCategory := map[string]bool{}
	productIdx := map[domain.ProductID]int{}

	for _, r := range rows {
		if !seenCategory[r.Category] {
			seenCategory[r.Category] = true
			res.Categories = append(res.Categories, r.Category)
		}
		if i, ok := productIdx[r.ProductID]; ok {
			res.Products[i].Categories = append(res.Products[i].Categories, r.Category)
			continue
		}
		productIdx[r.ProductID] = len(res.Products)
		res.Products = append(res.Products, SearchProduct{
			Categories: []string{r.Category},
			ID:         int64(r.ProductID),
			Name:       r.ProductName,
			Price:      Number(r.Price),
		})
	}
	return res
}

// Number renders a price as a bare JSON number without float rounding.
func Number(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}
