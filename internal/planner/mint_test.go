package planner

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/levered-fi/ltm/internal/preview"
	"github.com/levered-fi/ltm/internal/quote"
	"github.com/levered-fi/ltm/internal/types"
)

var (
	testCollateralAddr = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testDebtAddr       = common.HexToAddress("0x2222222222222222222222222222222222222222")
	testTokenAddr      = common.HexToAddress("0x3333333333333333333333333333333333333333")
	testRouterAddr     = common.HexToAddress("0x4444444444444444444444444444444444444444")
	testSwapAddr       = common.HexToAddress("0x5555555555555555555555555555555555555555")
	testSpenderAddr    = common.HexToAddress("0x6666666666666666666666666666666666666666")
	testWrappedNative  = common.HexToAddress("0x7777777777777777777777777777777777777777")
)

func testLeverageToken() types.LeverageToken {
	return types.LeverageToken{
		Address:         testTokenAddr,
		ChainID:         8453,
		CollateralAsset: types.TokenAsset{Address: testCollateralAddr, Decimals: 18},
		DebtAsset:       types.TokenAsset{Address: testDebtAddr, Decimals: 6},
	}
}

// stubPort is a scripted ManagerPort. Final previews are consumed in order so
// clamp-and-requote paths can observe a different authoritative figure on the
// second read.
type stubPort struct {
	ideal preview.IdealMintPreview

	finalMints   []preview.FinalMintPreview
	finalMintIdx int

	redeem preview.RedeemPreview

	finalRedeems   []preview.FinalRedeemPreview
	finalRedeemIdx int
}

func (s *stubPort) IdealMintPreview(ctx context.Context, token common.Address, userCollateral *big.Int) (preview.IdealMintPreview, error) {
	return s.ideal, nil
}

func (s *stubPort) FinalMintPreview(ctx context.Context, token common.Address, totalCollateral *big.Int) (preview.FinalMintPreview, error) {
	idx := s.finalMintIdx
	if idx >= len(s.finalMints) {
		idx = len(s.finalMints) - 1
	}
	s.finalMintIdx++
	return s.finalMints[idx], nil
}

func (s *stubPort) RedeemPreview(ctx context.Context, token common.Address, shares *big.Int) (preview.RedeemPreview, error) {
	return s.redeem, nil
}

func (s *stubPort) FinalRedeemPreview(ctx context.Context, token common.Address, shares *big.Int) (preview.FinalRedeemPreview, error) {
	idx := s.finalRedeemIdx
	if idx >= len(s.finalRedeems) {
		idx = len(s.finalRedeems) - 1
	}
	s.finalRedeemIdx++
	return s.finalRedeems[idx], nil
}

func (s *stubPort) LeverageTokenAssets(ctx context.Context, token common.Address) (types.TokenAsset, types.TokenAsset, error) {
	lt := testLeverageToken()
	return lt.CollateralAsset, lt.DebtAsset, nil
}

// stubAdapter records every request and answers through quoteFn.
type stubAdapter struct {
	quoteFn  func(req quote.Request) (types.Quote, error)
	requests []quote.Request
}

func (s *stubAdapter) Name() string { return "stub" }
func (s *stubAdapter) ID() string   { return "stub-v1" }

func (s *stubAdapter) Quote(ctx context.Context, req quote.Request) (types.Quote, error) {
	s.requests = append(s.requests, req)
	return s.quoteFn(req)
}

func erc20Quote(out, maxIn *big.Int) types.Quote {
	return types.Quote{
		Out:            out,
		MaxIn:          maxIn,
		ApprovalTarget: testSpenderAddr,
		SwapTarget:     testSwapAddr,
		Calldata:       []byte{0xde, 0xad, 0xbe, 0xef},
	}
}

func mintParams(equity int64) MintParams {
	lt := testLeverageToken()
	return MintParams{
		Token:              lt,
		InputAsset:         lt.CollateralAsset,
		EquityInInputAsset: big.NewInt(equity),
		SlippageBps:        100,
		WrappedNative:      testWrappedNative,
		Router:             testRouterAddr,
	}
}

func TestPlanMintExactOutHappyPath(t *testing.T) {
	port := &stubPort{
		ideal: preview.IdealMintPreview{
			TargetCollateral: big.NewInt(2000),
			IdealDebt:        big.NewInt(110),
			IdealShares:      big.NewInt(1950),
		},
		finalMints: []preview.FinalMintPreview{
			{PreviewDebt: big.NewInt(120), PreviewShares: big.NewInt(1900)},
		},
	}
	adapter := &stubAdapter{
		quoteFn: func(req quote.Request) (types.Quote, error) {
			require.Equal(t, quote.IntentExactOut, req.Intent)
			require.Equal(t, big.NewInt(1000), req.AmountOut)
			return erc20Quote(big.NewInt(1000), big.NewInt(120)), nil
		},
	}

	plan, err := PlanMint(context.Background(), mintParams(1000), port, adapter)
	require.NoError(t, err)

	require.Equal(t, big.NewInt(120), plan.ExpectedDebt)
	require.Equal(t, big.NewInt(2000), plan.ExpectedTotalCollateral)
	require.Equal(t, big.NewInt(1900), plan.ExpectedShares)
	// 1900 * 9900 / 10000 = 1881
	require.Equal(t, big.NewInt(1881), plan.MinShares)
	require.Zero(t, plan.ExpectedExcessDebt.Sign())
	require.Equal(t, "stub", plan.QuoteSourceName)
	require.NotEmpty(t, plan.PlanID)

	// One exact-out quote was enough.
	require.Len(t, adapter.requests, 1)

	// Approve precedes the swap, both with zero native value.
	require.Len(t, plan.Calls, 2)
	require.Equal(t, testDebtAddr, plan.Calls[0].Target)
	require.Equal(t, testSwapAddr, plan.Calls[1].Target)
	require.Zero(t, plan.Calls[0].Value.Sign())
	require.Zero(t, plan.Calls[1].Value.Sign())
}

func TestPlanMintClampAndRequote(t *testing.T) {
	// The sized flash loan (140) exceeds the authoritative preview debt (120):
	// the planner must clamp to 120 and re-quote rather than reuse stale
	// calldata sized for 140.
	port := &stubPort{
		ideal: preview.IdealMintPreview{
			TargetCollateral: big.NewInt(2000),
			IdealDebt:        big.NewInt(140),
			IdealShares:      big.NewInt(1950),
		},
		finalMints: []preview.FinalMintPreview{
			{PreviewDebt: big.NewInt(120), PreviewShares: big.NewInt(1850)},
			{PreviewDebt: big.NewInt(120), PreviewShares: big.NewInt(1800)},
		},
	}
	adapter := &stubAdapter{
		quoteFn: func(req quote.Request) (types.Quote, error) {
			if req.Intent == quote.IntentExactOut {
				return erc20Quote(big.NewInt(1000), big.NewInt(140)), nil
			}
			// The clamp re-quote must ask for exactly the preview debt.
			require.Equal(t, big.NewInt(120), req.AmountIn)
			return erc20Quote(big.NewInt(900), nil), nil
		},
	}

	plan, err := PlanMint(context.Background(), mintParams(1000), port, adapter)
	require.NoError(t, err)

	require.Equal(t, big.NewInt(120), plan.ExpectedDebt)
	// Total collateral reflects the re-quoted output: 1000 + 900.
	require.Equal(t, big.NewInt(1900), plan.ExpectedTotalCollateral)
	require.Equal(t, big.NewInt(1800), plan.ExpectedShares)
	require.Zero(t, plan.ExpectedExcessDebt.Sign())

	// Exact-out sizing plus one clamp re-quote.
	require.Len(t, adapter.requests, 2)
	// Both final previews were consumed.
	require.Equal(t, 2, port.finalMintIdx)
}

func TestPlanMintExactInRefinement(t *testing.T) {
	// The source cannot answer exact-out, so the planner refines exact-in
	// quotes starting from the ideal debt.
	port := &stubPort{
		ideal: preview.IdealMintPreview{
			TargetCollateral: big.NewInt(2000),
			IdealDebt:        big.NewInt(100),
			IdealShares:      big.NewInt(1950),
		},
		finalMints: []preview.FinalMintPreview{
			{PreviewDebt: big.NewInt(125), PreviewShares: big.NewInt(1900)},
		},
	}
	adapter := &stubAdapter{
		quoteFn: func(req quote.Request) (types.Quote, error) {
			if req.Intent == quote.IntentExactOut {
				return types.Quote{}, quote.ErrExactOutUnsupported
			}
			// Linear price: 100 in -> 800 out, so 125 in -> 1000 out.
			out := new(big.Int).Mul(req.AmountIn, big.NewInt(8))
			return erc20Quote(out, nil), nil
		},
	}

	plan, err := PlanMint(context.Background(), mintParams(1000), port, adapter)
	require.NoError(t, err)

	// ceil(100 * 1000 / 800) = 125
	require.Equal(t, big.NewInt(125), plan.ExpectedDebt)
	require.Equal(t, big.NewInt(2000), plan.ExpectedTotalCollateral)

	// One rejected exact-out, then two refinement iterations.
	require.Len(t, adapter.requests, 3)
	require.Equal(t, quote.IntentExactOut, adapter.requests[0].Intent)
	require.Equal(t, quote.IntentExactIn, adapter.requests[1].Intent)
	require.Equal(t, big.NewInt(100), adapter.requests[1].AmountIn)
	require.Equal(t, big.NewInt(125), adapter.requests[2].AmountIn)
}

func TestPlanMintRefinementAtTokenScale(t *testing.T) {
	// Full 18-decimal magnitudes: 1.0 collateral equity doubling to a 2.0
	// target, debt priced in 6-decimal units. The refinement arithmetic must
	// hold well past 64-bit range.
	wad := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	equity := new(big.Int).Set(wad)
	target := new(big.Int).Mul(wad, big.NewInt(2))
	idealDebt := big.NewInt(4_000_000_000)
	// One debt unit buys 2e8 collateral units.
	rate := big.NewInt(200_000_000)

	previewShares, ok := new(big.Int).SetString("1994000000000000000", 10)
	require.True(t, ok)
	wantMinShares, ok := new(big.Int).SetString("1974060000000000000", 10)
	require.True(t, ok)

	port := &stubPort{
		ideal: preview.IdealMintPreview{
			TargetCollateral: target,
			IdealDebt:        idealDebt,
			IdealShares:      new(big.Int).Set(wad),
		},
		finalMints: []preview.FinalMintPreview{
			{PreviewDebt: big.NewInt(5_000_000_000), PreviewShares: previewShares},
		},
	}
	adapter := &stubAdapter{
		quoteFn: func(req quote.Request) (types.Quote, error) {
			if req.Intent == quote.IntentExactOut {
				return types.Quote{}, quote.ErrExactOutUnsupported
			}
			return erc20Quote(new(big.Int).Mul(req.AmountIn, rate), nil), nil
		},
	}

	params := mintParams(1)
	params.EquityInInputAsset = equity
	plan, err := PlanMint(context.Background(), params, port, adapter)
	require.NoError(t, err)

	// 4e9 in buys 8e17, underfilling the needed 1e18; scaled candidate is
	// ceil(4e9 * 1e18 / 8e17) = 5e9, which fills exactly.
	require.Equal(t, big.NewInt(5_000_000_000), plan.ExpectedDebt)
	require.Equal(t, target, plan.ExpectedTotalCollateral)
	require.Equal(t, previewShares, plan.ExpectedShares)
	// 1.994e18 * 9900 / 10000 at full precision.
	require.Equal(t, wantMinShares, plan.MinShares)
	require.Zero(t, plan.ExpectedExcessDebt.Sign())
}

func TestPlanMintRefinementBudgetExhausted(t *testing.T) {
	port := &stubPort{
		ideal: preview.IdealMintPreview{
			TargetCollateral: big.NewInt(2000),
			IdealDebt:        big.NewInt(100),
			IdealShares:      big.NewInt(1950),
		},
		finalMints: []preview.FinalMintPreview{
			{PreviewDebt: big.NewInt(100), PreviewShares: big.NewInt(1900)},
		},
	}
	adapter := &stubAdapter{
		quoteFn: func(req quote.Request) (types.Quote, error) {
			if req.Intent == quote.IntentExactOut {
				return types.Quote{}, quote.ErrExactOutUnsupported
			}
			// A source that never fills the need regardless of input.
			return erc20Quote(big.NewInt(1), nil), nil
		},
	}

	params := mintParams(1000)
	params.MaxRefineIterations = 2
	_, err := PlanMint(context.Background(), params, port, adapter)
	require.ErrorIs(t, err, ErrQuoteConvergence)
}

func TestPlanMintClampAndRequoteNativeDebt(t *testing.T) {
	// Clamp with a native-value swap: the re-quoted swap call must carry the
	// clamped flash loan as its value, preceded by the unwrap call.
	lt := testLeverageToken()
	lt.DebtAsset = types.TokenAsset{Address: testWrappedNative, Decimals: 18}

	port := &stubPort{
		ideal: preview.IdealMintPreview{
			TargetCollateral: big.NewInt(2000),
			IdealDebt:        big.NewInt(140),
			IdealShares:      big.NewInt(1950),
		},
		finalMints: []preview.FinalMintPreview{
			{PreviewDebt: big.NewInt(120), PreviewShares: big.NewInt(1850)},
			{PreviewDebt: big.NewInt(120), PreviewShares: big.NewInt(1800)},
		},
	}
	adapter := &stubAdapter{
		quoteFn: func(req quote.Request) (types.Quote, error) {
			var q types.Quote
			if req.Intent == quote.IntentExactOut {
				q = erc20Quote(big.NewInt(1000), big.NewInt(140))
			} else {
				require.Equal(t, big.NewInt(120), req.AmountIn)
				q = erc20Quote(big.NewInt(900), nil)
			}
			q.ApprovalTarget = common.Address{}
			q.RequiresNative = true
			return q, nil
		},
	}

	params := mintParams(1000)
	params.Token = lt
	plan, err := PlanMint(context.Background(), params, port, adapter)
	require.NoError(t, err)

	require.Equal(t, big.NewInt(120), plan.ExpectedDebt)
	require.Len(t, plan.Calls, 2)
	require.Equal(t, testWrappedNative, plan.Calls[0].Target)
	require.Equal(t, []byte{0x2e, 0x1a, 0x7d, 0x4d}, plan.Calls[0].Data[:4])
	require.Zero(t, plan.Calls[0].Value.Sign())
	require.Equal(t, testSwapAddr, plan.Calls[1].Target)
	require.Equal(t, big.NewInt(120), plan.Calls[1].Value)
}

func TestPlanMintRejectsNonCollateralInput(t *testing.T) {
	params := mintParams(1000)
	params.InputAsset = params.Token.DebtAsset

	_, err := PlanMint(context.Background(), params, &stubPort{}, &stubAdapter{})
	require.ErrorIs(t, err, ErrUnsupportedInputAsset)
	require.Contains(t, err.Error(), "collateral-only")
}

func TestPlanMintNoSwapNeeded(t *testing.T) {
	// Target collateral equals the equity: the entire deposit is funded by the
	// user and no flash loan swap is required.
	port := &stubPort{
		ideal: preview.IdealMintPreview{
			TargetCollateral: big.NewInt(1000),
			IdealDebt:        big.NewInt(0),
			IdealShares:      big.NewInt(1000),
		},
	}
	adapter := &stubAdapter{quoteFn: func(req quote.Request) (types.Quote, error) {
		t.Fatal("no quote should be requested")
		return types.Quote{}, nil
	}}

	_, err := PlanMint(context.Background(), mintParams(1000), port, adapter)
	require.ErrorIs(t, err, ErrNoSwapNeeded)
	require.Empty(t, adapter.requests)
}

func TestPlanMintValidatesParams(t *testing.T) {
	params := mintParams(1000)
	params.EquityInInputAsset = big.NewInt(0)
	_, err := PlanMint(context.Background(), params, &stubPort{}, &stubAdapter{})
	require.ErrorIs(t, err, ErrInvalidParams)

	params = mintParams(1000)
	params.SlippageBps = 10001
	_, err = PlanMint(context.Background(), params, &stubPort{}, &stubAdapter{})
	require.ErrorIs(t, err, ErrInvalidParams)

	_, err = PlanMint(context.Background(), mintParams(1000), nil, &stubAdapter{})
	require.ErrorIs(t, err, ErrInvalidParams)

	_, err = PlanMint(context.Background(), mintParams(1000), &stubPort{}, nil)
	require.ErrorIs(t, err, ErrInvalidParams)
}

func TestPlanMintNativeDebtCallOrdering(t *testing.T) {
	// Debt asset is the wrapped native token and the quote consumes raw native
	// value: the plan must unwrap first, then send the value with the swap.
	lt := testLeverageToken()
	lt.DebtAsset = types.TokenAsset{Address: testWrappedNative, Decimals: 18}

	port := &stubPort{
		ideal: preview.IdealMintPreview{
			TargetCollateral: big.NewInt(2000),
			IdealDebt:        big.NewInt(110),
			IdealShares:      big.NewInt(1950),
		},
		finalMints: []preview.FinalMintPreview{
			{PreviewDebt: big.NewInt(120), PreviewShares: big.NewInt(1900)},
		},
	}
	adapter := &stubAdapter{
		quoteFn: func(req quote.Request) (types.Quote, error) {
			q := erc20Quote(big.NewInt(1000), big.NewInt(120))
			q.ApprovalTarget = common.Address{}
			q.RequiresNative = true
			return q, nil
		},
	}

	params := mintParams(1000)
	params.Token = lt
	plan, err := PlanMint(context.Background(), params, port, adapter)
	require.NoError(t, err)

	require.Len(t, plan.Calls, 2)
	require.Equal(t, testWrappedNative, plan.Calls[0].Target)
	require.Zero(t, plan.Calls[0].Value.Sign())
	require.Equal(t, testSwapAddr, plan.Calls[1].Target)
	require.Equal(t, big.NewInt(120), plan.Calls[1].Value)
}
