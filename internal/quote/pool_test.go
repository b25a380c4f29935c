package quote

import (
	"bytes"
	"context"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/levered-fi/ltm/internal/types"
)

var (
	poolTokenA = types.TokenAsset{Address: common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"), Decimals: 18}
	poolTokenB = types.TokenAsset{Address: common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"), Decimals: 6}
	poolPair   = common.HexToAddress("0xcccccccccccccccccccccccccccccccccccccccc")
	poolRouter = common.HexToAddress("0xdddddddddddddddddddddddddddddddddddddddd")
	poolFrom   = common.HexToAddress("0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee")
)

// fakePairCaller serves getReserves and token0 reads for one pair contract.
type fakePairCaller struct {
	t        *testing.T
	token0   common.Address
	reserve0 *big.Int
	reserve1 *big.Int
}

func (f *fakePairCaller) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	parsed, err := abi.JSON(strings.NewReader(pairABIJSON))
	require.NoError(f.t, err)

	switch {
	case len(call.Data) >= 4 && bytes.Equal(call.Data[:4], parsed.Methods["getReserves"].ID):
		return parsed.Methods["getReserves"].Outputs.Pack(f.reserve0, f.reserve1, uint32(0))
	case len(call.Data) >= 4 && bytes.Equal(call.Data[:4], parsed.Methods["token0"].ID):
		return parsed.Methods["token0"].Outputs.Pack(f.token0)
	}
	f.t.Fatalf("unexpected call data %x", call.Data)
	return nil, nil
}

func newTestPoolAdapter(t *testing.T, reserveA, reserveB int64) *PoolAdapter {
	caller := &fakePairCaller{
		t:        t,
		token0:   poolTokenA.Address,
		reserve0: big.NewInt(reserveA),
		reserve1: big.NewInt(reserveB),
	}
	pairs := map[string]common.Address{
		PairKey(poolTokenA.Address, poolTokenB.Address): poolPair,
	}
	adapter, err := NewPoolAdapter(caller, poolRouter, pairs)
	require.NoError(t, err)
	return adapter
}

func TestPairKeyIsOrderInsensitive(t *testing.T) {
	require.Equal(t,
		PairKey(poolTokenA.Address, poolTokenB.Address),
		PairKey(poolTokenB.Address, poolTokenA.Address))
}

func TestPoolExactInQuote(t *testing.T) {
	adapter := newTestPoolAdapter(t, 1_000_000, 1_000_000)

	q, err := adapter.Quote(context.Background(), Request{
		InToken:     poolTokenA,
		OutToken:    poolTokenB,
		AmountIn:    big.NewInt(1000),
		Intent:      IntentExactIn,
		SlippageBps: 100,
		From:        poolFrom,
	})
	require.NoError(t, err)

	// 997*1000*1e6 / (1e6*1000 + 997000) floors to 996.
	require.Equal(t, big.NewInt(996), q.Out)
	// 996 * 9900 / 10000 = 986
	require.Equal(t, big.NewInt(986), q.MinOut)
	require.Nil(t, q.MaxIn)
	require.Equal(t, poolRouter, q.ApprovalTarget)
	require.Equal(t, poolRouter, q.SwapTarget)
	require.NotEmpty(t, q.Calldata)
	// swapExactTokensForTokens selector
	require.Equal(t, []byte{0x38, 0xed, 0x17, 0x39}, q.Calldata[:4])
}

func TestPoolExactOutQuoteBoundsInput(t *testing.T) {
	adapter := newTestPoolAdapter(t, 1_000_000, 1_000_000)
	want := big.NewInt(996)

	q, err := adapter.Quote(context.Background(), Request{
		InToken:   poolTokenA,
		OutToken:  poolTokenB,
		AmountOut: want,
		Intent:    IntentExactOut,
		From:      poolFrom,
	})
	require.NoError(t, err)
	require.Equal(t, want, q.Out)
	require.NotNil(t, q.MaxIn)
	// swapTokensForExactTokens selector
	require.Equal(t, []byte{0x88, 0x03, 0xdb, 0xee}, q.Calldata[:4])

	// The bound must be sufficient: feeding MaxIn back through the forward
	// curve covers the requested output.
	forward, err := amountOut(q.MaxIn, big.NewInt(1_000_000), big.NewInt(1_000_000))
	require.NoError(t, err)
	require.GreaterOrEqual(t, forward.Cmp(want), 0)
}

func TestPoolReservesOrientedToInputToken(t *testing.T) {
	// Asymmetric reserves: swapping B -> A must read them in reverse order.
	adapter := newTestPoolAdapter(t, 2_000_000, 1_000_000)

	q, err := adapter.Quote(context.Background(), Request{
		InToken:  poolTokenB,
		OutToken: poolTokenA,
		AmountIn: big.NewInt(1000),
		Intent:   IntentExactIn,
		From:     poolFrom,
	})
	require.NoError(t, err)
	// reserveIn=1e6 (B side), reserveOut=2e6: roughly double the input.
	require.Equal(t, big.NewInt(1992), q.Out)
}

func TestPoolUnknownPair(t *testing.T) {
	adapter := newTestPoolAdapter(t, 1_000_000, 1_000_000)

	_, err := adapter.Quote(context.Background(), Request{
		InToken:  poolTokenA,
		OutToken: types.TokenAsset{Address: common.HexToAddress("0xffffffffffffffffffffffffffffffffffffffff")},
		AmountIn: big.NewInt(1000),
		Intent:   IntentExactIn,
		From:     poolFrom,
	})
	require.ErrorIs(t, err, ErrPairUnknown)
}

func TestPoolExactOutExceedingReserves(t *testing.T) {
	adapter := newTestPoolAdapter(t, 1_000_000, 1_000_000)

	_, err := adapter.Quote(context.Background(), Request{
		InToken:   poolTokenA,
		OutToken:  poolTokenB,
		AmountOut: big.NewInt(1_000_000),
		Intent:    IntentExactOut,
		From:      poolFrom,
	})
	require.ErrorIs(t, err, ErrInsufficientLiquidity)
}

func TestAmountInInvertsAmountOut(t *testing.T) {
	reserveIn := big.NewInt(5_000_000)
	reserveOut := big.NewInt(3_000_000)

	for _, want := range []int64{1, 997, 10_000, 1_500_000} {
		in, err := amountIn(big.NewInt(want), reserveIn, reserveOut)
		require.NoError(t, err)

		out, err := amountOut(in, reserveIn, reserveOut)
		require.NoError(t, err)
		require.GreaterOrEqual(t, out.Cmp(big.NewInt(want)), 0,
			"amountIn(%d) = %s must buy at least the requested output", want, in)
	}
}
