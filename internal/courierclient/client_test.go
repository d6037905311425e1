package courierclient

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nazeru/escrow-fulfillment-go/internal/httpapi"
	"github.com/nazeru/escrow-fulfillment-go/internal/order/domain"
	"github.com/nazeru/escrow-fulfillment-go/internal/order/lifecycle"
	"github.com/nazeru/escrow-fulfillment-go/internal/order/view"
)

type courierFake struct {
	picked lifecycle.PickUpRequest
	err    error
}

func (f *courierFake) UndeliveredOrders(ctx context.Context) (view.UndeliveredList, error) {
	return view.UndeliveredOrders([]domain.Order{{ID: 3, BuyerEmail: "a@shop.test"}, {ID: 8, BuyerEmail: "b@shop.test"}}), nil
}

func (f *courierFake) PickUpOrder(ctx context.Context, req lifecycle.PickUpRequest) error {
	f.picked = req
	return f.err
}

func TestUndeliveredAndPickUp(t *testing.T) {
	fake := &courierFake{}
	srv := httptest.NewServer(httpapi.CourierRouter(fake, httpapi.Server{}))
	defer srv.Close()
	c := New(srv.URL+"/", "courier@shop.test")
	ctx := context.Background()

	orders, err := c.Undelivered(ctx)
	require.NoError(t, err)
	assert.Equal(t, []view.Undelivered{{ID: 3, Email: "a@shop.test"}, {ID: 8, Email: "b@shop.test"}}, orders)

	require.NoError(t, c.PickUp(ctx, 8, "0x00000000000000000000000000000000000C0DE5"))
	assert.Equal(t, json.RawMessage(`8`), fake.picked.ID)
	assert.Equal(t, json.RawMessage(`"0x00000000000000000000000000000000000C0DE5"`), fake.picked.Address)
}

func TestPickUpRejected(t *testing.T) {
	fake := &courierFake{err: &lifecycle.Error{Kind: lifecycle.ErrValidation, Message: "Invalid order id."}}
	srv := httptest.NewServer(httpapi.CourierRouter(fake, httpapi.Server{}))
	defer srv.Close()

	err := New(srv.URL, "courier@shop.test").PickUp(context.Background(), 99, "0x00000000000000000000000000000000000C0DE5")
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 400, se.Code)
	assert.Equal(t, "Invalid order id.", se.Message)
}

func TestMissingPrincipalIsUnauthorized(t *testing.T) {
	srv := httptest.NewServer(httpapi.CourierRouter(&courierFake{}, httpapi.Server{}))
	defer srv.Close()

	_, err := New(srv.URL, "").Undelivered(context.Background())
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 401, se.Code)
	assert.Equal(t, "Missing Authorization Header", se.Message)
}
