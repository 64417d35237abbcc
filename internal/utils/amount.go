package utils

import (
	"fmt"
	"math/big"
	"strings"
)

// nativeDecimals is the minor-unit scale of the native currency and of every
// token this service routes (18, the EVM convention).
const nativeDecimals = 18

var weiPerCoin = new(big.Int).Exp(big.NewInt(10), big.NewInt(nativeDecimals), nil)

// ToWei converts a decimal amount string ("1.5") to integer minor units.
// Amounts must be non-negative and carry at most 18 fractional digits.
func ToWei(amount string) (*big.Int, error) {
	s := strings.TrimSpace(amount)
	if s == "" || strings.HasPrefix(s, "-") {
		return nil, fmt.Errorf("invalid amount %q", amount)
	}

	whole, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i+1:]
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > nativeDecimals {
		return nil, fmt.Errorf("invalid amount %q: more than %d decimal places", amount, nativeDecimals)
	}

	wholeInt, ok := new(big.Int).SetString(whole, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", amount)
	}

	wei := new(big.Int).Mul(wholeInt, weiPerCoin)
	if frac != "" {
		fracInt, ok := new(big.Int).SetString(frac, 10)
		if !ok {
			return nil, fmt.Errorf("invalid amount %q", amount)
		}
		scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(nativeDecimals-len(frac))), nil)
		wei.Add(wei, fracInt.Mul(fracInt, scale))
	}
	return wei, nil
}

// FromWei renders integer minor units as a decimal coin string, trimming
// trailing zeros ("1500000000000000000" -> "1.5").
func FromWei(wei *big.Int) string {
	if wei == nil {
		return "0"
	}

	quo, rem := new(big.Int).QuoRem(wei, weiPerCoin, new(big.Int))
	if rem.Sign() == 0 {
		return quo.String()
	}

	frac := strings.TrimRight(fmt.Sprintf("%018s", rem.String()), "0")
	return quo.String() + "." + frac
}
