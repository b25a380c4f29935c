package planner

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/levered-fi/ltm/internal/types"
)

func TestAssembleSwapCallsERC20Path(t *testing.T) {
	q := erc20Quote(big.NewInt(1000), nil)
	calls, err := assembleSwapCalls(types.TokenAsset{Address: testDebtAddr, Decimals: 6}, testWrappedNative, q, big.NewInt(120))
	require.NoError(t, err)
	require.Len(t, calls, 2)

	// approve(spender, amount) on the swapped token, before the swap.
	require.Equal(t, testDebtAddr, calls[0].Target)
	require.Equal(t, []byte{0x09, 0x5e, 0xa7, 0xb3}, calls[0].Data[:4])
	require.Zero(t, calls[0].Value.Sign())

	require.Equal(t, testSwapAddr, calls[1].Target)
	require.Equal(t, q.Calldata, calls[1].Data)
	require.Zero(t, calls[1].Value.Sign())
}

func TestAssembleSwapCallsNativePath(t *testing.T) {
	q := erc20Quote(big.NewInt(1000), nil)
	q.RequiresNative = true

	calls, err := assembleSwapCalls(types.TokenAsset{Address: testWrappedNative, Decimals: 18}, testWrappedNative, q, big.NewInt(120))
	require.NoError(t, err)
	require.Len(t, calls, 2)

	// withdraw(wad) on the wrapped native token, before the value-carrying swap.
	require.Equal(t, testWrappedNative, calls[0].Target)
	require.Equal(t, []byte{0x2e, 0x1a, 0x7d, 0x4d}, calls[0].Data[:4])
	require.Zero(t, calls[0].Value.Sign())

	require.Equal(t, testSwapAddr, calls[1].Target)
	require.Equal(t, big.NewInt(120), calls[1].Value)
}

func TestAssembleSwapCallsWrappedAssetWithoutNativeQuote(t *testing.T) {
	// The swap asset is the wrapped native token but the quote consumes an
	// ERC-20 allowance: no unwrap, standard approve path.
	q := erc20Quote(big.NewInt(1000), nil)

	calls, err := assembleSwapCalls(types.TokenAsset{Address: testWrappedNative, Decimals: 18}, testWrappedNative, q, big.NewInt(120))
	require.NoError(t, err)
	require.Len(t, calls, 2)
	require.Equal(t, testWrappedNative, calls[0].Target)
	require.Equal(t, []byte{0x09, 0x5e, 0xa7, 0xb3}, calls[0].Data[:4])
	require.Zero(t, calls[1].Value.Sign())
}

func TestAssembleSwapCallsRejectsNonPositiveAmount(t *testing.T) {
	q := erc20Quote(big.NewInt(1000), nil)

	_, err := assembleSwapCalls(types.TokenAsset{Address: testDebtAddr}, testWrappedNative, q, big.NewInt(0))
	require.Error(t, err)

	_, err = assembleSwapCalls(types.TokenAsset{Address: testDebtAddr}, testWrappedNative, q, nil)
	require.Error(t, err)
}
