package payments

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"
)

// ToBaseUnits scales a token amount to its smallest unit. Amounts finer than
// the token's precision are refused instead of being rounded.
func ToBaseUnits(amount decimal.Decimal, decimals int32) (*big.Int, error) {
	if decimals < 0 || decimals > 36 {
		return nil, errors.New("invalid decimals")
	}
	if amount.IsNegative() {
		return nil, errors.New("amount must not be negative")
	}
	shifted := amount.Shift(decimals)
	if !shifted.Equal(shifted.Truncate(0)) {
		return nil, fmt.Errorf("amount %s exceeds %d decimal places", amount, decimals)
	}
	return shifted.BigInt(), nil
}

func DecodeHex(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}
	return hexutil.Decode(s)
}

func DecodeBytes32(s string) ([32]byte, error) {
	var out [32]byte
	b, err := DecodeHex(s)
	if err != nil {
		return out, err
	}
	if len(b) != 32 {
		return out, fmt.Errorf("expected 32 bytes, got %d", len(b))
	}
	copy(out[:], b)
	return out, nil
}

// ParseUint256 accepts decimal or 0x-prefixed hex.
func ParseUint256(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	base := 10
	digits := s
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		base = 16
		digits = s[2:]
	}
	n, ok := new(big.Int).SetString(digits, base)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", s)
	}
	if n.Sign() < 0 || n.BitLen() > 256 {
		return nil, fmt.Errorf("integer %q out of uint256 range", s)
	}
	return n, nil
}
