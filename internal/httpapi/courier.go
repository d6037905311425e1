package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nazeru/escrow-fulfillment-go/internal/order/domain"
	"github.com/nazeru/escrow-fulfillment-go/internal/order/lifecycle"
	"github.com/nazeru/escrow-fulfillment-go/internal/order/view"
)

type CourierWorkflows interface {
	UndeliveredOrders(ctx context.Context) (view.UndeliveredList, error)
	PickUpOrder(ctx context.Context, req lifecycle.PickUpRequest) error
}

func CourierRouter(wf CourierWorkflows, s Server) http.Handler {
	r := s.base()
	r.Group(func(r chi.Router) {
		r.Use(requireRole(domain.RoleCourier))
		r.Get("/orders_to_deliver", func(w http.ResponseWriter, r *http.Request) {
			res, err := wf.UndeliveredOrders(r.Context())
			if err != nil {
				s.writeError(w, r, "orders_to_deliver", err)
				return
			}
			writeJSON(w, http.StatusOK, res)
		})
		r.Post("/pick_up_order", func(w http.ResponseWriter, r *http.Request) {
			var req lifecycle.PickUpRequest
			if err := decode(w, r, &req); err != nil {
				writeBadBody(w)
				return
			}
			if err := wf.PickUpOrder(r.Context(), req); err != nil {
				s.writeError(w, r, "pick_up_order", err)
				return
			}
			w.WriteHeader(http.StatusOK)
		})
	})
	return r
}
