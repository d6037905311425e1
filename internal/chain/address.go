package chain

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// IsAddress accepts 40 hex digits with or without 0x. All-lower and all-upper
// forms are accepted as is; mixed case must carry a valid EIP-55 checksum.
func IsAddress(s string) bool {
	if !common.IsHexAddress(s) {
		return false
	}
	digits := s
	if len(digits) >= 2 && digits[0] == '0' && (digits[1] == 'x' || digits[1] == 'X') {
		digits = digits[2:]
	}
	if digits == strings.ToLower(digits) || digits == strings.ToUpper(digits) {
		return true
	}
	return common.HexToAddress(s).Hex()[2:] == digits
}

// Value converts a price to the integer value field of a transaction,
// rounding toward positive infinity: 100.1 -> 101, 100.0 -> 100.
func Value(price decimal.Decimal) *big.Int {
	return price.Ceil().BigInt()
}
