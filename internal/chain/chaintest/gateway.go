// Package chaintest provides an in-memory ledger for exercising the
// orchestration protocol without a node.
package chaintest

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// Gateway confirms every submitted transaction unless told otherwise.
type Gateway struct {
	mu sync.Mutex

	ID              *big.Int
	ContractAddress common.Address

	ChainIDErr error
	NonceErr   error
	// EstimateFunc, when set, decides gas estimation; a non-nil error
	// simulates a revert or an unreachable node.
	EstimateFunc func(msg ethereum.CallMsg) (uint64, error)
	SendErr      error
	ReceiptErr   error
	// Pending keeps receipts unavailable forever.
	Pending bool
	// FailReceipt mines transactions with a failed status.
	FailReceipt bool

	nonces    map[common.Address]uint64
	Estimates []ethereum.CallMsg
	Sent      []*types.Transaction
}

func New() *Gateway {
	return &Gateway{
		ID:              big.NewInt(1337),
		ContractAddress: common.HexToAddress("0x00000000000000000000000000000000000E5C70"),
		nonces:          map[common.Address]uint64{},
	}
}

func (g *Gateway) ChainID(ctx context.Context) (*big.Int, error) {
	if g.ChainIDErr != nil {
		return nil, g.ChainIDErr
	}
	return new(big.Int).Set(g.ID), nil
}

func (g *Gateway) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.NonceErr != nil {
		return 0, g.NonceErr
	}
	return g.nonces[account], nil
}

func (g *Gateway) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	g.mu.Lock()
	g.Estimates = append(g.Estimates, msg)
	fn := g.EstimateFunc
	g.mu.Unlock()
	if fn != nil {
		return fn(msg)
	}
	return 90000, nil
}

func (g *Gateway) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	if g.SendErr != nil {
		return g.SendErr
	}
	from, err := types.Sender(types.LatestSignerForChainID(g.ID), tx)
	if err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nonces[from] = tx.Nonce() + 1
	g.Sent = append(g.Sent, tx)
	return nil
}

func (g *Gateway) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	if g.ReceiptErr != nil {
		return nil, g.ReceiptErr
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Pending {
		return nil, ethereum.NotFound
	}
	for _, tx := range g.Sent {
		if tx.Hash() != hash {
			continue
		}
		r := &types.Receipt{TxHash: hash, Status: types.ReceiptStatusSuccessful, GasUsed: tx.Gas()}
		if g.FailReceipt {
			r.Status = types.ReceiptStatusFailed
		}
		if tx.To() == nil {
			r.ContractAddress = g.ContractAddress
		}
		return r, nil
	}
	return nil, ethereum.NotFound
}

// SentCount is safe to call while requests are in flight.
func (g *Gateway) SentCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.Sent)
}

// RPCError mimics the JSON-RPC error object a node returns.
type RPCError struct {
	Code    int
	Message string
	Data    any
}

func (e *RPCError) Error() string  { return e.Message }
func (e *RPCError) ErrorCode() int { return e.Code }
func (e *RPCError) ErrorData() any { return e.Data }

// Revert builds the error geth returns for require(false, reason).
func Revert(reason string) *RPCError {
	stringType, _ := abi.NewType("string", "", nil)
	packed, _ := abi.Arguments{{Type: stringType}}.Pack(reason)
	selector := []byte{0x08, 0xc3, 0x79, 0xa0}
	return &RPCError{
		Code:    3,
		Message: "execution reverted: " + reason,
		Data:    hexutil.Encode(append(selector, packed...)),
	}
}
