package chain

import (
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Contract entry points of the per-order escrow.
const (
	methodPickUp          = "courierPickUpOrder"
	methodPay             = "customerPayOrder"
	methodConfirmDelivery = "customerConfirmDelivery"
)

// Escrow packs calldata for the escrow contract. It holds no address: every
// order has its own deployment.
type Escrow struct {
	abi      abi.ABI
	bytecode []byte
}

func LoadEscrow(abiPath, binPath string) (*Escrow, error) {
	abiJSON, err := os.ReadFile(abiPath)
	if err != nil {
		return nil, fmt.Errorf("read escrow abi: %w", err)
	}
	bin, err := os.ReadFile(binPath)
	if err != nil {
		return nil, fmt.Errorf("read escrow bytecode: %w", err)
	}
	return ParseEscrow(string(abiJSON), string(bin))
}

func ParseEscrow(abiJSON, bin string) (*Escrow, error) {
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return nil, fmt.Errorf("parse escrow abi: %w", err)
	}
	for _, m := range []string{methodPickUp, methodPay, methodConfirmDelivery} {
		if _, ok := parsed.Methods[m]; !ok {
			return nil, fmt.Errorf("escrow abi has no method %s", m)
		}
	}
	bin = strings.TrimSpace(bin)
	if !strings.HasPrefix(bin, "0x") {
		bin = "0x" + bin
	}
	code, err := hexutil.Decode(bin)
	if err != nil {
		return nil, fmt.Errorf("decode escrow bytecode: %w", err)
	}
	return &Escrow{abi: parsed, bytecode: code}, nil
}

// DeployData is the creation payload binding the escrow to the buyer and the
// integer price.
func (e *Escrow) DeployData(buyer common.Address, price *big.Int) ([]byte, error) {
	args, err := e.abi.Pack("", buyer, price)
	if err != nil {
		return nil, fmt.Errorf("pack constructor: %w", err)
	}
	data := make([]byte, 0, len(e.bytecode)+len(args))
	data = append(data, e.bytecode...)
	return append(data, args...), nil
}

func (e *Escrow) PickUpData(courier common.Address, orderID int64) ([]byte, error) {
	return e.abi.Pack(methodPickUp, courier, big.NewInt(orderID))
}

func (e *Escrow) PayData(orderID int64) ([]byte, error) {
	return e.abi.Pack(methodPay, big.NewInt(orderID))
}

func (e *Escrow) ConfirmDeliveryData(orderID int64) ([]byte, error) {
	return e.abi.Pack(methodConfirmDelivery, big.NewInt(orderID))
}
