package mathutils

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMulDivFloorFloors(t *testing.T) {
	// 7*3/2 = 10.5 floors to 10
	got, err := MulDivFloor(big.NewInt(7), big.NewInt(3), big.NewInt(2))
	require.NoError(t, err)
	require.Equal(t, big.NewInt(10), got)
}

func TestMulDivFloorFullPrecisionIntermediate(t *testing.T) {
	// Both operands near 2^255: the product needs more than 256 bits.
	a := new(big.Int).Lsh(big.NewInt(1), 255)
	b := new(big.Int).Lsh(big.NewInt(1), 255)
	denom := new(big.Int).Lsh(big.NewInt(1), 255)

	got, err := MulDivFloor(a, b, denom)
	require.NoError(t, err)
	require.Equal(t, a, got)
}

func TestMulDivFloorRejectsZeroDenominator(t *testing.T) {
	_, err := MulDivFloor(big.NewInt(1), big.NewInt(1), big.NewInt(0))
	require.ErrorIs(t, err, ErrDivisionByZero)
}

func TestMulDivFloorRejectsNilAndNegative(t *testing.T) {
	_, err := MulDivFloor(nil, big.NewInt(1), big.NewInt(1))
	require.ErrorIs(t, err, ErrAmountNil)

	_, err = MulDivFloor(big.NewInt(-1), big.NewInt(1), big.NewInt(1))
	require.ErrorIs(t, err, ErrAmountNegative)
}

func TestApplySlippageFloorIdentities(t *testing.T) {
	amount := big.NewInt(123456789)

	unchanged, err := ApplySlippageFloor(amount, 0)
	require.NoError(t, err)
	require.Equal(t, amount, unchanged)

	zeroed, err := ApplySlippageFloor(amount, 10000)
	require.NoError(t, err)
	require.Zero(t, zeroed.Sign())
}

func TestApplySlippageFloorNeverRoundsUp(t *testing.T) {
	// 1001 at 50 bps: 1001*9950/10000 = 995.995 floors to 995
	got, err := ApplySlippageFloor(big.NewInt(1001), 50)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(995), got)
}

func TestApplySlippageFloorRejectsOutOfRange(t *testing.T) {
	_, err := ApplySlippageFloor(big.NewInt(100), 10001)
	require.ErrorIs(t, err, ErrSlippageOutOfRange)
}

func TestCeilDiv(t *testing.T) {
	got, err := CeilDiv(big.NewInt(10), big.NewInt(3))
	require.NoError(t, err)
	require.Equal(t, big.NewInt(4), got)

	exact, err := CeilDiv(big.NewInt(9), big.NewInt(3))
	require.NoError(t, err)
	require.Equal(t, big.NewInt(3), exact)
}

func TestCeilDivZeroNumerator(t *testing.T) {
	got, err := CeilDiv(big.NewInt(0), big.NewInt(7))
	require.NoError(t, err)
	require.Zero(t, got.Sign())
}

func TestCeilDivRejectsZeroDenominator(t *testing.T) {
	_, err := CeilDiv(big.NewInt(1), big.NewInt(0))
	require.ErrorIs(t, err, ErrDivisionByZero)
}

func TestSubFloorZero(t *testing.T) {
	positive, err := SubFloorZero(big.NewInt(10), big.NewInt(3))
	require.NoError(t, err)
	require.Equal(t, big.NewInt(7), positive)

	floored, err := SubFloorZero(big.NewInt(3), big.NewInt(10))
	require.NoError(t, err)
	require.Zero(t, floored.Sign())

	equal, err := SubFloorZero(big.NewInt(5), big.NewInt(5))
	require.NoError(t, err)
	require.Zero(t, equal.Sign())
}
