// Package lifecycle drives orders through CREATED -> PENDING -> COMPLETE.
// Every transition is gated by a confirmed escrow transaction and committed
// to the store only after confirmation.
package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"

	"github.com/nazeru/escrow-fulfillment-go/internal/chain"
	"github.com/nazeru/escrow-fulfillment-go/internal/keys"
	"github.com/nazeru/escrow-fulfillment-go/internal/order/domain"
	"github.com/nazeru/escrow-fulfillment-go/internal/order/view"
	"github.com/nazeru/escrow-fulfillment-go/pkg/contracts"
	"github.com/nazeru/escrow-fulfillment-go/pkg/logging"
	"github.com/nazeru/escrow-fulfillment-go/pkg/tx"
)

type Store interface {
	GetOrder(ctx context.Context, id domain.OrderID) (domain.Order, error)
	ProductIDs(ctx context.Context) ([]domain.ProductID, error)
	// ProductPrices returns the requested products ordered by id.
	ProductPrices(ctx context.Context, ids []domain.ProductID) ([]domain.Product, error)
	CreateOrder(ctx context.Context, p domain.Placement, evt contracts.Event) (domain.OrderID, error)
	OrderByIdempotencyKey(ctx context.Context, key string) (domain.OrderID, bool, error)
	// UpdateStatus is a compare-and-swap on the status column.
	UpdateStatus(ctx context.Context, id domain.OrderID, from, to domain.OrderStatus, evt contracts.Event) error
	RecordEvent(ctx context.Context, evt contracts.Event) error
	UndeliveredOrders(ctx context.Context) ([]domain.Order, error)
	BuyerOrderRows(ctx context.Context, email string) ([]view.StatusRow, error)
	SearchRows(ctx context.Context, name, category string) ([]view.SearchRow, error)
}

type Unsealer interface {
	Unseal(bundle, passphrase string) (keys.Credential, error)
}

type Executor interface {
	Execute(ctx context.Context, from keys.Credential, call chain.Call) (*types.Receipt, error)
}

// DivergenceObserver is told about confirmed transactions whose local commit
// failed.
type DivergenceObserver interface {
	ObserveDivergence()
}

type Deps struct {
	Store    Store
	Unsealer Unsealer
	Chain    Executor
	Escrow   *chain.Escrow
	// Owner pays for deployment and pick-up.
	Owner  keys.Credential
	Log    logging.Logger
	Alerts DivergenceObserver
	Now    func() time.Time
}

type Engine struct {
	store    Store
	unsealer Unsealer
	chain    Executor
	escrow   *chain.Escrow
	owner    keys.Credential
	log      logging.Logger
	alerts   DivergenceObserver
	now      func() time.Time
}

func NewEngine(d Deps) *Engine {
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Engine{
		store:    d.Store,
		unsealer: d.Unsealer,
		chain:    d.Chain,
		escrow:   d.Escrow,
		owner:    d.Owner,
		log:      d.Log,
		alerts:   d.Alerts,
		now:      d.Now,
	}
}

// PlaceOrder validates the lines and the buyer address, deploys the escrow
// bound to the buyer and ceil(total), then persists the order as CREATED.
// A replayed idempotency key returns the first order without deploying again.
func (e *Engine) PlaceOrder(ctx context.Context, buyer domain.Principal, req PlaceOrderRequest) (domain.OrderID, error) {
	if absent(req.Requests) {
		return 0, invalid("Field requests is missing.")
	}
	ids, err := e.store.ProductIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("load product ids: %w", err)
	}
	known := make(map[domain.ProductID]bool, len(ids))
	for _, id := range ids {
		known[id] = true
	}
	items, err := lines(req.Requests, known)
	if err != nil {
		return 0, err
	}
	buyerAddr, err := address(req.Address, "Field address is missing.")
	if err != nil {
		return 0, err
	}

	if req.IdempotencyKey != "" {
		existing, ok, err := e.store.OrderByIdempotencyKey(ctx, req.IdempotencyKey)
		if err != nil {
			return 0, fmt.Errorf("lookup idempotency key: %w", err)
		}
		if ok {
			e.log.Log(logging.Fields{OrderID: int64(existing), Step: "place_order", Status: "idempotent_replay"})
			return existing, nil
		}
	}

	total, err := e.total(ctx, items)
	if err != nil {
		return 0, err
	}

	data, err := e.escrow.DeployData(common.HexToAddress(buyerAddr), chain.Value(total))
	if err != nil {
		return 0, fmt.Errorf("build escrow deployment: %w", err)
	}
	receipt, err := e.chain.Execute(ctx, e.owner, chain.Call{Step: tx.StepDeployEscrow, Data: data})
	if err != nil {
		return 0, chainError(err)
	}

	order := domain.Order{
		TotalPrice:      total,
		Status:          domain.OrderStatusCreated,
		CreatedAt:       e.now().UTC(),
		BuyerEmail:      buyer.Email,
		ContractAddress: receipt.ContractAddress.Hex(),
	}
	evt := contracts.NewEvent(contracts.EventOrderCreated, 0, receipt.TxHash.Hex(), map[string]any{
		"buyer_email":      buyer.Email,
		"buyer_address":    buyerAddr,
		"contract_address": order.ContractAddress,
		"total_price":      total.String(),
	})
	id, err := e.store.CreateOrder(ctx, domain.Placement{Order: order, Items: items, IdempotencyKey: req.IdempotencyKey}, evt)
	if errors.Is(err, domain.ErrIdempotencyRace) {
		existing, ok, qerr := e.store.OrderByIdempotencyKey(ctx, req.IdempotencyKey)
		if qerr == nil && ok {
			e.log.Log(logging.Fields{
				OrderID: int64(existing),
				TxHash:  receipt.TxHash.Hex(),
				Step:    "place_order",
				Status:  "idempotent_replay",
				Message: "escrow " + order.ContractAddress + " left unused",
			})
			return existing, nil
		}
	}
	if err != nil {
		return 0, e.diverged(0, tx.StepDeployEscrow, receipt, err)
	}
	e.log.Log(logging.Fields{OrderID: int64(id), TxHash: receipt.TxHash.Hex(), Step: "place_order", Status: string(domain.OrderStatusCreated)})
	return id, nil
}

// total prices every line at the current unit price. Duplicate product ids
// are priced once and counted per line.
func (e *Engine) total(ctx context.Context, items []domain.OrderItem) (decimal.Decimal, error) {
	ids := make([]domain.ProductID, 0, len(items))
	seen := map[domain.ProductID]bool{}
	for _, it := range items {
		if !seen[it.ProductID] {
			seen[it.ProductID] = true
			ids = append(ids, it.ProductID)
		}
	}
	products, err := e.store.ProductPrices(ctx, ids)
	if err != nil {
		return decimal.Zero, fmt.Errorf("load product prices: %w", err)
	}
	prices := make(map[domain.ProductID]decimal.Decimal, len(products))
	for _, p := range products {
		prices[p.ID] = p.Price
	}
	for n, it := range items {
		if _, ok := prices[it.ProductID]; !ok {
			return decimal.Zero, invalid("Invalid product for request number %d.", n)
		}
	}
	total, overflow := domain.Total(items, prices)
	if overflow >= 0 {
		return decimal.Zero, invalid("Invalid product quantity for request number %d.", overflow)
	}
	return total, nil
}

// PickUpOrder binds the courier to the escrow from the owner account and
// moves the order to PENDING.
func (e *Engine) PickUpOrder(ctx context.Context, req PickUpRequest) error {
	order, err := e.orderIn(ctx, req.ID, domain.OrderStatusCreated)
	if err != nil {
		return err
	}
	courier, err := address(req.Address, "Missing address.")
	if err != nil {
		return err
	}
	data, err := e.escrow.PickUpData(common.HexToAddress(courier), int64(order.ID))
	if err != nil {
		return fmt.Errorf("build pick-up call: %w", err)
	}
	receipt, err := e.invoke(ctx, e.owner, order, tx.StepCourierPickUp, nil, data)
	if err != nil {
		return err
	}
	evt := contracts.NewEvent(contracts.EventOrderPickedUp, int64(order.ID), receipt.TxHash.Hex(), map[string]any{
		"courier_address": courier,
		"buyer_email":     order.BuyerEmail,
	})
	return e.commit(ctx, order, domain.OrderStatusPending, tx.StepCourierPickUp, receipt, evt)
}

// PayOrder moves ceil(price) into the escrow, signed by the buyer. The stored
// status does not change; the payment is recorded as an event.
func (e *Engine) PayOrder(ctx context.Context, req PaymentRequest) error {
	order, from, err := e.buyerCall(ctx, req, domain.OrderStatusCreated)
	if err != nil {
		return err
	}
	data, err := e.escrow.PayData(int64(order.ID))
	if err != nil {
		return fmt.Errorf("build payment call: %w", err)
	}
	receipt, err := e.invoke(ctx, from, order, tx.StepCustomerPay, chain.Value(order.TotalPrice), data)
	if err != nil {
		return err
	}
	evt := contracts.NewEvent(contracts.EventOrderPaid, int64(order.ID), receipt.TxHash.Hex(), map[string]any{
		"buyer_email":   order.BuyerEmail,
		"payer_address": from.Address.Hex(),
		"value":         chain.Value(order.TotalPrice).String(),
	})
	if err := e.store.RecordEvent(ctx, evt); err != nil {
		return e.diverged(order.ID, tx.StepCustomerPay, receipt, err)
	}
	e.log.Log(logging.Fields{OrderID: int64(order.ID), TxHash: receipt.TxHash.Hex(), Step: string(tx.StepCustomerPay), Status: "paid"})
	return nil
}

// ConfirmDelivery releases the escrow to owner and courier, signed by the
// buyer, and completes the order.
func (e *Engine) ConfirmDelivery(ctx context.Context, req PaymentRequest) error {
	order, from, err := e.buyerCall(ctx, req, domain.OrderStatusPending)
	if err != nil {
		return err
	}
	data, err := e.escrow.ConfirmDeliveryData(int64(order.ID))
	if err != nil {
		return fmt.Errorf("build delivery call: %w", err)
	}
	receipt, err := e.invoke(ctx, from, order, tx.StepConfirmDelivery, nil, data)
	if err != nil {
		return err
	}
	evt := contracts.NewEvent(contracts.EventOrderDelivered, int64(order.ID), receipt.TxHash.Hex(), map[string]any{
		"buyer_email": order.BuyerEmail,
	})
	return e.commit(ctx, order, domain.OrderStatusComplete, tx.StepConfirmDelivery, receipt, evt)
}

func (e *Engine) UndeliveredOrders(ctx context.Context) (view.UndeliveredList, error) {
	orders, err := e.store.UndeliveredOrders(ctx)
	if err != nil {
		return view.UndeliveredList{}, fmt.Errorf("list undelivered orders: %w", err)
	}
	return view.UndeliveredOrders(orders), nil
}

func (e *Engine) OrderStatuses(ctx context.Context, buyer domain.Principal) (view.StatusList, error) {
	rows, err := e.store.BuyerOrderRows(ctx, buyer.Email)
	if err != nil {
		return view.StatusList{}, fmt.Errorf("list buyer orders: %w", err)
	}
	return view.GroupStatuses(rows), nil
}

func (e *Engine) Search(ctx context.Context, name, category string) (view.SearchResult, error) {
	rows, err := e.store.SearchRows(ctx, name, category)
	if err != nil {
		return view.SearchResult{}, fmt.Errorf("search products: %w", err)
	}
	return view.GroupSearch(rows), nil
}

// orderIn resolves the order id and requires the exact prior status.
func (e *Engine) orderIn(ctx context.Context, raw json.RawMessage, want domain.OrderStatus) (domain.Order, error) {
	id, err := orderID(raw)
	if err != nil {
		return domain.Order{}, err
	}
	order, err := e.store.GetOrder(ctx, id)
	if errors.Is(err, domain.ErrOrderNotFound) {
		return domain.Order{}, invalid("Invalid order id.")
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("load order %d: %w", id, err)
	}
	if order.Status != want {
		return domain.Order{}, invalid("Invalid order id.")
	}
	return order, nil
}

// buyerCall runs the checks shared by payment and delivery confirmation and
// unseals the buyer credential.
func (e *Engine) buyerCall(ctx context.Context, req PaymentRequest, want domain.OrderStatus) (domain.Order, keys.Credential, error) {
	order, err := e.orderIn(ctx, req.ID, want)
	if err != nil {
		return domain.Order{}, keys.Credential{}, err
	}
	if blank(req.Keys) {
		return domain.Order{}, keys.Credential{}, invalid("Missing keys.")
	}
	if blank(req.Passphrase) {
		return domain.Order{}, keys.Credential{}, invalid("Missing passphrase.")
	}
	passphrase, ok := text(req.Passphrase)
	if !ok {
		return domain.Order{}, keys.Credential{}, &Error{Kind: ErrCredentials, Message: msgInvalidCredentials}
	}
	from, err := e.unsealer.Unseal(bundle(req.Keys), passphrase)
	if err != nil {
		e.log.Log(logging.Fields{OrderID: int64(order.ID), Step: "unseal", Status: "rejected"})
		return domain.Order{}, keys.Credential{}, &Error{Kind: ErrCredentials, Message: msgInvalidCredentials, Err: err}
	}
	return order, from, nil
}

func (e *Engine) invoke(ctx context.Context, from keys.Credential, order domain.Order, step tx.StepName, value *big.Int, data []byte) (*types.Receipt, error) {
	contract := common.HexToAddress(order.ContractAddress)
	receipt, err := e.chain.Execute(ctx, from, chain.Call{
		Step:    step,
		OrderID: int64(order.ID),
		To:      &contract,
		Value:   value,
		Data:    data,
	})
	if err != nil {
		return nil, chainError(err)
	}
	return receipt, nil
}

// commit applies a confirmed transition. Losing the compare-and-swap here
// means the chain moved and the store did not.
func (e *Engine) commit(ctx context.Context, order domain.Order, to domain.OrderStatus, step tx.StepName, receipt *types.Receipt, evt contracts.Event) error {
	if !domain.CanTransition(order.Status, to) {
		return fmt.Errorf("illegal transition %s -> %s for order %d", order.Status, to, order.ID)
	}
	if err := e.store.UpdateStatus(ctx, order.ID, order.Status, to, evt); err != nil {
		return e.diverged(order.ID, step, receipt, err)
	}
	e.log.Log(logging.Fields{OrderID: int64(order.ID), TxHash: receipt.TxHash.Hex(), Step: string(step), Status: string(to)})
	return nil
}

func (e *Engine) diverged(id domain.OrderID, step tx.StepName, receipt *types.Receipt, err error) error {
	e.log.Log(logging.Fields{
		OrderID: int64(id),
		TxHash:  receipt.TxHash.Hex(),
		Step:    string(step),
		Status:  "divergence",
		Message: "transaction confirmed but local commit failed",
		Error:   err.Error(),
	})
	if e.alerts != nil {
		e.alerts.ObserveDivergence()
	}
	return fmt.Errorf("commit %s after tx %s: %w", step, receipt.TxHash.Hex(), err)
}

func chainError(err error) error {
	var rejected *chain.RejectedError
	if errors.As(err, &rejected) {
		return &Error{Kind: ErrChainRejected, Message: rejected.Reason, Err: err}
	}
	if errors.Is(err, chain.ErrUnavailable) {
		return &Error{Kind: ErrChainUnavailable, Message: msgChainUnavailable, Err: err}
	}
	return err
}
