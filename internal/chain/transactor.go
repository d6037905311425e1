package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/nazeru/escrow-fulfillment-go/internal/keys"
	"github.com/nazeru/escrow-fulfillment-go/pkg/logging"
	"github.com/nazeru/escrow-fulfillment-go/pkg/tx"
)

// ErrUnavailable marks failures where the ledger could not be reached or did
// not confirm in time. The transaction may still land.
var ErrUnavailable = errors.New("ledger unavailable")

// ErrRefused marks a JSON-RPC error object that carries no revert: the node
// was reached but will not take the transaction as built. It is an operating
// problem, not a contract decision, and is not shown to callers.
var ErrRefused = errors.New("ledger node refused transaction")

// RejectedError carries the contract's revert reason verbatim.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string { return e.Reason }

type Observer interface {
	ObserveChainTx(step, status string, waited time.Duration)
}

type Call struct {
	Step    tx.StepName
	OrderID int64
	To      *common.Address // nil deploys
	Value   *big.Int
	Data    []byte
}

type Options struct {
	GasPrice       *big.Int
	ReceiptTimeout time.Duration
	PollInterval   time.Duration
	Log            logging.Logger
	Observer       Observer
	Journal        tx.Journal
}

// Transactor runs the build, sign, submit, wait protocol against a Gateway.
type Transactor struct {
	gw   Gateway
	opts Options
}

func NewTransactor(gw Gateway, opts Options) *Transactor {
	if opts.GasPrice == nil {
		opts.GasPrice = big.NewInt(21000)
	}
	if opts.ReceiptTimeout <= 0 {
		opts.ReceiptTimeout = 120 * time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 100 * time.Millisecond
	}
	return &Transactor{gw: gw, opts: opts}
}

// Execute blocks until the transaction has a receipt. A successful return
// means the transaction is included and did not revert.
func (t *Transactor) Execute(ctx context.Context, from keys.Credential, call Call) (*types.Receipt, error) {
	value := call.Value
	if value == nil {
		value = new(big.Int)
	}
	t.log(ctx, call, "", tx.TxBuilding, "", 0)

	chainID, err := t.gw.ChainID(ctx)
	if err != nil {
		return nil, t.fail(ctx, call, "chain id", err)
	}
	nonce, err := t.gw.PendingNonceAt(ctx, from.Address)
	if err != nil {
		return nil, t.fail(ctx, call, "nonce", err)
	}
	gas, err := t.gw.EstimateGas(ctx, ethereum.CallMsg{
		From:     from.Address,
		To:       call.To,
		GasPrice: t.opts.GasPrice,
		Value:    value,
		Data:     call.Data,
	})
	if err != nil {
		return nil, t.fail(ctx, call, "estimate gas", err)
	}

	unsigned := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: t.opts.GasPrice,
		Gas:      gas,
		To:       call.To,
		Value:    value,
		Data:     call.Data,
	})
	signed, err := types.SignTx(unsigned, types.LatestSignerForChainID(chainID), from.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("sign %s: %w", call.Step, err)
	}
	if err := t.gw.SendTransaction(ctx, signed); err != nil {
		return nil, t.fail(ctx, call, "send", err)
	}
	hash := signed.Hash().Hex()
	t.log(ctx, call, hash, tx.TxSubmitted, "", 0)

	start := time.Now()
	receipt, err := t.waitReceipt(ctx, signed.Hash())
	waited := time.Since(start)
	if err != nil {
		t.observe(call, tx.TxUnavailable, waited)
		t.log(ctx, call, hash, tx.TxUnavailable, err.Error(), waited)
		return nil, fmt.Errorf("%w: wait for %s: %w", ErrUnavailable, hash, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		t.observe(call, tx.TxRejected, waited)
		t.log(ctx, call, hash, tx.TxRejected, "receipt status failed", waited)
		return receipt, &RejectedError{Reason: "Transaction reverted."}
	}
	t.observe(call, tx.TxConfirmed, waited)
	t.log(ctx, call, hash, tx.TxConfirmed, "", waited)
	return receipt, nil
}

func (t *Transactor) waitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, t.opts.ReceiptTimeout)
	defer cancel()

	ticker := time.NewTicker(t.opts.PollInterval)
	defer ticker.Stop()
	for {
		receipt, err := t.gw.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) && ctx.Err() == nil {
			t.opts.Log.Log(logging.Fields{TxHash: hash.Hex(), Step: "wait_receipt", Status: "retry", Error: err.Error()})
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// fail classifies a pre-submission error. Only a revert is a rejection; any
// other error object the node answered with is a refusal, and everything else
// is unavailability.
func (t *Transactor) fail(ctx context.Context, call Call, op string, err error) error {
	if reason, ok := RevertReason(err); ok {
		t.observe(call, tx.TxRejected, 0)
		t.log(ctx, call, "", tx.TxRejected, reason, 0)
		return &RejectedError{Reason: reason}
	}
	if nodeAnswered(err) {
		t.observe(call, tx.TxRefused, 0)
		t.log(ctx, call, "", tx.TxRefused, op+": "+err.Error(), 0)
		return fmt.Errorf("%w: %s: %w", ErrRefused, op, err)
	}
	t.observe(call, tx.TxUnavailable, 0)
	t.log(ctx, call, "", tx.TxUnavailable, op+": "+err.Error(), 0)
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
}

func (t *Transactor) observe(call Call, status tx.TxStatus, waited time.Duration) {
	if t.opts.Observer != nil {
		t.opts.Observer.ObserveChainTx(string(call.Step), string(status), waited)
	}
}

func (t *Transactor) log(ctx context.Context, call Call, hash string, status tx.TxStatus, msg string, waited time.Duration) {
	t.opts.Log.Log(logging.Fields{
		OrderID:    call.OrderID,
		TxHash:     hash,
		Step:       string(call.Step),
		Status:     string(status),
		DurationMS: waited.Milliseconds(),
		Message:    msg,
	})
	if t.opts.Journal == nil || !tx.Journaled(status) {
		return
	}
	// The request context may already be done after a receipt timeout.
	jctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	err := t.opts.Journal.Record(jctx, tx.Entry{OrderID: call.OrderID, Step: call.Step, TxHash: hash, Status: status, Detail: msg})
	if err != nil {
		t.opts.Log.Log(logging.Fields{OrderID: call.OrderID, TxHash: hash, Step: "journal", Status: "error", Error: err.Error()})
	}
}
