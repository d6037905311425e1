package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nazeru/escrow-fulfillment-go/internal/order/domain"
	"github.com/nazeru/escrow-fulfillment-go/internal/order/lifecycle"
	"github.com/nazeru/escrow-fulfillment-go/internal/order/view"
	"github.com/nazeru/escrow-fulfillment-go/pkg/idempotency"
)

type CustomerWorkflows interface {
	PlaceOrder(ctx context.Context, buyer domain.Principal, req lifecycle.PlaceOrderRequest) (domain.OrderID, error)
	PayOrder(ctx context.Context, req lifecycle.PaymentRequest) error
	ConfirmDelivery(ctx context.Context, req lifecycle.PaymentRequest) error
	OrderStatuses(ctx context.Context, buyer domain.Principal) (view.StatusList, error)
	Search(ctx context.Context, name, category string) (view.SearchResult, error)
}

func CustomerRouter(wf CustomerWorkflows, s Server) http.Handler {
	r := s.base()
	r.Group(func(r chi.Router) {
		r.Use(requireRole(domain.RoleCustomer))
		r.Get("/search", func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			res, err := wf.Search(r.Context(), q.Get("name"), q.Get("category"))
			if err != nil {
				s.writeError(w, r, "search", err)
				return
			}
			writeJSON(w, http.StatusOK, res)
		})
		r.Post("/order", func(w http.ResponseWriter, r *http.Request) {
			var req lifecycle.PlaceOrderRequest
			if err := decode(w, r, &req); err != nil {
				writeBadBody(w)
				return
			}
			req.IdempotencyKey = idempotency.Key(r)
			id, err := wf.PlaceOrder(r.Context(), PrincipalFrom(r.Context()), req)
			if err != nil {
				s.writeError(w, r, "place_order", err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]int64{"id": int64(id)})
		})
		r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
			res, err := wf.OrderStatuses(r.Context(), PrincipalFrom(r.Context()))
			if err != nil {
				s.writeError(w, r, "status", err)
				return
			}
			writeJSON(w, http.StatusOK, res)
		})
		r.Post("/pay", s.payment("customer_pay", wf.PayOrder))
		r.Post("/delivered", s.payment("confirm_delivery", wf.ConfirmDelivery))
	})
	return r
}

func (s Server) payment(step string, run func(context.Context, lifecycle.PaymentRequest) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req lifecycle.PaymentRequest
		if err := decode(w, r, &req); err != nil {
			writeBadBody(w)
			return
		}
		if err := run(r.Context(), req); err != nil {
			s.writeError(w, r, step, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}
