package chain

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nazeru/escrow-fulfillment-go/internal/chain/chaintest"
)

func TestValueRoundsTowardPositiveInfinity(t *testing.T) {
	cases := map[string]int64{
		"100.1":  101,
		"100.0":  100,
		"100":    100,
		"100.5":  101,
		"100.99": 101,
		"0.0001": 1,
		"0":      0,
	}
	for in, want := range cases {
		got := Value(decimal.RequireFromString(in))
		assert.Equal(t, want, got.Int64(), "price %s", in)
	}
}

func TestIsAddress(t *testing.T) {
	valid := []string{
		"0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed",
		"0x5AAEB6053F3E94C9B9A09F33669435E7EF1BEAED",
		"0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
		"5aaeb6053f3e94c9b9a09f33669435e7ef1beaed",
	}
	for _, a := range valid {
		assert.True(t, IsAddress(a), a)
	}
	invalid := []string{
		"not-an-address",
		"",
		"0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAeD",
		"0x5aaeb6053f3e94c9b9a09f33669435e7ef1bea",
		"0xZaaeb6053f3e94c9b9a09f33669435e7ef1beaed",
	}
	for _, a := range invalid {
		assert.False(t, IsAddress(a), a)
	}
}

func TestRevertReason(t *testing.T) {
	reason, ok := RevertReason(chaintest.Revert("Transfer not complete."))
	require.True(t, ok)
	assert.Equal(t, "Transfer not complete.", reason)

	ganache := &chaintest.RPCError{Code: -32000, Message: "VM Exception while processing transaction: revert Delivery not complete."}
	reason, ok = RevertReason(ganache)
	require.True(t, ok)
	assert.Equal(t, "Delivery not complete.", reason)

	reason, ok = RevertReason(errors.New("execution reverted: Invalid customer account."))
	require.True(t, ok)
	assert.Equal(t, "Invalid customer account.", reason)

	_, ok = RevertReason(errors.New("dial tcp 127.0.0.1:8545: connect: connection refused"))
	assert.False(t, ok)
	_, ok = RevertReason(nil)
	assert.False(t, ok)
}

func TestEscrowPacking(t *testing.T) {
	esc, err := LoadEscrow(filepath.Join("testdata", "escrow.abi.json"), filepath.Join("testdata", "escrow.bin"))
	require.NoError(t, err)

	buyer := mustAddress("0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed")
	data, err := esc.DeployData(buyer, Value(decimal.RequireFromString("130")))
	require.NoError(t, err)
	assert.Equal(t, esc.bytecode, data[:len(esc.bytecode)])
	assert.Len(t, data, len(esc.bytecode)+64)
	assert.Equal(t, byte(130), data[len(data)-1])

	pickUp, err := esc.PickUpData(buyer, 5)
	require.NoError(t, err)
	assert.Equal(t, esc.abi.Methods["courierPickUpOrder"].ID, pickUp[:4])
	assert.Len(t, pickUp, 4+64)

	pay, err := esc.PayData(5)
	require.NoError(t, err)
	assert.Equal(t, esc.abi.Methods["customerPayOrder"].ID, pay[:4])

	deliver, err := esc.ConfirmDeliveryData(5)
	require.NoError(t, err)
	assert.Equal(t, esc.abi.Methods["customerConfirmDelivery"].ID, deliver[:4])
}

func TestParseEscrowRejectsForeignABI(t *testing.T) {
	_, err := ParseEscrow(`[{"inputs":[],"name":"transfer","outputs":[],"stateMutability":"nonpayable","type":"function"}]`, "0x00")
	require.Error(t, err)

	_, err = ParseEscrow(`not json`, "0x00")
	require.Error(t, err)
}
