/*
This file contains the integer math used by the planners. All financial
arithmetic in this repository goes through these helpers: amounts are
arbitrary-precision integers in a token's smallest unit, every division
floors, and nothing here ever touches floating point.
*/

package mathutils

import (
	"errors"
	"fmt"
	"math/big"
)

// Error definitions for zero-tolerance error handling
var (
	ErrDivisionByZero     = errors.New("division by zero")
	ErrAmountNil          = errors.New("amount is nil")
	ErrAmountNegative     = errors.New("amount is negative")
	ErrSlippageOutOfRange = errors.New("slippage bps out of range")
)

const bpsDenominator = 10000

// MulDivFloor returns floor(a*b/denom). The intermediate product is computed
// at full precision, so 256-bit operands cannot overflow.
func MulDivFloor(a, b, denom *big.Int) (*big.Int, error) {
	if err := validateAmount(a); err != nil {
		return nil, fmt.Errorf("multiplicand: %w", err)
	}
	if err := validateAmount(b); err != nil {
		return nil, fmt.Errorf("multiplier: %w", err)
	}
	if denom == nil {
		return nil, fmt.Errorf("denominator: %w", ErrAmountNil)
	}
	if denom.Sign() == 0 {
		return nil, ErrDivisionByZero
	}
	if denom.Sign() < 0 {
		return nil, fmt.Errorf("denominator: %w", ErrAmountNegative)
	}

	product := new(big.Int).Mul(a, b)
	return product.Quo(product, denom), nil
}

// ApplySlippageFloor lowers amount by slippageBps basis points, flooring the
// division. The result is the minimum-output guarantee handed to the chain:
// ApplySlippageFloor(x, 0) == x and ApplySlippageFloor(x, 10000) == 0.
func ApplySlippageFloor(amount *big.Int, slippageBps uint32) (*big.Int, error) {
	if slippageBps > bpsDenominator {
		return nil, fmt.Errorf("%w: %d", ErrSlippageOutOfRange, slippageBps)
	}
	return MulDivFloor(amount, big.NewInt(int64(bpsDenominator-slippageBps)), big.NewInt(bpsDenominator))
}

// CeilDiv returns ceil(a/b). It is used when sizing amounts that must be
// sufficient, such as flash-loan repayments, where flooring would undershoot.
func CeilDiv(a, b *big.Int) (*big.Int, error) {
	if err := validateAmount(a); err != nil {
		return nil, fmt.Errorf("numerator: %w", err)
	}
	if b == nil {
		return nil, fmt.Errorf("denominator: %w", ErrAmountNil)
	}
	if b.Sign() == 0 {
		return nil, ErrDivisionByZero
	}
	if b.Sign() < 0 {
		return nil, fmt.Errorf("denominator: %w", ErrAmountNegative)
	}
	if a.Sign() == 0 {
		return big.NewInt(0), nil
	}

	quotient, remainder := new(big.Int).QuoRem(a, b, new(big.Int))
	if remainder.Sign() != 0 {
		quotient.Add(quotient, big.NewInt(1))
	}
	return quotient, nil
}

// SubFloorZero returns a-b floored at zero. Amount subtraction in the
// planners must never wrap below zero.
func SubFloorZero(a, b *big.Int) (*big.Int, error) {
	if err := validateAmount(a); err != nil {
		return nil, err
	}
	if err := validateAmount(b); err != nil {
		return nil, err
	}
	diff := new(big.Int).Sub(a, b)
	if diff.Sign() < 0 {
		return big.NewInt(0), nil
	}
	return diff, nil
}

func validateAmount(v *big.Int) error {
	if v == nil {
		return ErrAmountNil
	}
	if v.Sign() < 0 {
		return ErrAmountNegative
	}
	return nil
}
