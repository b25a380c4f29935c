/*
This file implements the mint planner: the fixed-point sizing pass that turns
a user's equity contribution into a flash-loan-funded collateral deposit.

The flow is preview -> size swap -> final preview -> clamp-and-requote. The
off-chain quote source is best-effort, so the swap is sized either from the
source's own exact-out bound or by a bounded exact-in refinement loop; the
protocol's final preview is the ground truth the plan must satisfy.
*/

package planner

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/levered-fi/ltm/internal/logger"
	"github.com/levered-fi/ltm/internal/mathutils"
	"github.com/levered-fi/ltm/internal/preview"
	"github.com/levered-fi/ltm/internal/quote"
	"github.com/levered-fi/ltm/internal/types"
)

// Error definitions for zero-tolerance error handling
var (
	ErrInvalidParams         = errors.New("planner parameters are invalid")
	ErrUnsupportedInputAsset = errors.New("unsupported input asset")
	ErrNoSwapNeeded          = errors.New("no auxiliary swap needed")
	ErrQuoteConvergence      = errors.New("quote refinement did not converge within iteration budget")
)

// DefaultMaxRefineIterations bounds the exact-in refinement loop when the
// caller does not configure a budget. Implementations typically converge in
// one to three iterations.
const DefaultMaxRefineIterations = 3

// MintParams carries everything one mint planning pass needs. Each call
// receives its own params; the planner holds no state between calls.
type MintParams struct {
	Token              types.LeverageToken
	InputAsset         types.TokenAsset
	EquityInInputAsset *big.Int
	SlippageBps        uint32
	// MaxRefineIterations bounds exact-in refinement; 0 selects the default.
	MaxRefineIterations int
	WrappedNative       common.Address
	// Router executes the emitted calls and is the from-address for quotes.
	Router common.Address
}

// sizedSwap is the converged result of the swap-sizing step.
type sizedSwap struct {
	q        types.Quote
	amountIn *big.Int
}

// PlanMint produces an immutable MintPlan for the given equity contribution,
// or a typed error. It performs no retries and never returns a partial plan.
func PlanMint(
	ctx context.Context,
	params MintParams,
	port preview.ManagerPort,
	adapter quote.Adapter,
) (*types.MintPlan, error) {
	mintLogger := logger.GetForComponent("mint_planner")

	if err := validateMintParams(params, port, adapter); err != nil {
		mintLogger.Error().Err(err).Msg("Mint parameter validation failed")
		return nil, err
	}

	// ===== STEP 1: IDEAL PREVIEW =====
	ideal, err := port.IdealMintPreview(ctx, params.Token.Address, params.EquityInInputAsset)
	if err != nil {
		return nil, fmt.Errorf("ideal mint preview failed: %w", err)
	}

	neededFromDebtSwap, err := mathutils.SubFloorZero(ideal.TargetCollateral, params.EquityInInputAsset)
	if err != nil {
		return nil, err
	}
	if neededFromDebtSwap.Sign() == 0 {
		return nil, fmt.Errorf("%w: no debt swap needed for equity %s",
			ErrNoSwapNeeded, params.EquityInInputAsset.String())
	}

	mintLogger.Debug().
		Str("targetCollateral", ideal.TargetCollateral.String()).
		Str("idealDebt", ideal.IdealDebt.String()).
		Str("neededFromDebtSwap", neededFromDebtSwap.String()).
		Msg("Ideal preview complete")

	// ===== STEP 2: SIZE THE DEBT->COLLATERAL SWAP =====
	sized, err := sizeSwap(ctx, adapter, sizeRequest{
		inToken:       params.Token.DebtAsset,
		outToken:      params.Token.CollateralAsset,
		neededOut:     neededFromDebtSwap,
		initialIn:     ideal.IdealDebt,
		maxIn:         nil,
		slippageBps:   params.SlippageBps,
		from:          params.Router,
		maxIterations: refineBudget(params.MaxRefineIterations),
	})
	if err != nil {
		return nil, err
	}
	flashLoanAmount := sized.amountIn

	// ===== STEP 3: FINAL PREVIEW =====
	expectedTotalCollateral := new(big.Int).Add(params.EquityInInputAsset, sized.q.Out)
	final, err := port.FinalMintPreview(ctx, params.Token.Address, expectedTotalCollateral)
	if err != nil {
		return nil, fmt.Errorf("final mint preview failed: %w", err)
	}

	// ===== STEP 4: CLAMP-AND-REQUOTE =====
	// When the protocol needs to borrow less than what was sized, the original
	// quote's calldata is for the wrong amount and must not be reused: clamp
	// the flash loan down and re-issue one exact-in quote for it.
	if final.PreviewDebt.Cmp(flashLoanAmount) < 0 {
		mintLogger.Info().
			Str("sizedFlashLoan", flashLoanAmount.String()).
			Str("previewDebt", final.PreviewDebt.String()).
			Msg("Clamping flash loan to authoritative preview debt and re-quoting")

		flashLoanAmount = final.PreviewDebt
		if flashLoanAmount.Sign() == 0 {
			return nil, fmt.Errorf("%w: authoritative preview requires no debt", ErrNoSwapNeeded)
		}

		requoted, err := adapter.Quote(ctx, quote.Request{
			InToken:     params.Token.DebtAsset,
			OutToken:    params.Token.CollateralAsset,
			AmountIn:    flashLoanAmount,
			Intent:      quote.IntentExactIn,
			SlippageBps: params.SlippageBps,
			From:        params.Router,
		})
		if err != nil {
			return nil, fmt.Errorf("clamp re-quote failed: %w", err)
		}
		sized = sizedSwap{q: requoted, amountIn: flashLoanAmount}

		expectedTotalCollateral = new(big.Int).Add(params.EquityInInputAsset, requoted.Out)
		final, err = port.FinalMintPreview(ctx, params.Token.Address, expectedTotalCollateral)
		if err != nil {
			return nil, fmt.Errorf("post-clamp final preview failed: %w", err)
		}
	}

	// ===== STEP 5: GUARANTEES =====
	expectedShares := final.PreviewShares
	minShares, err := mathutils.ApplySlippageFloor(expectedShares, params.SlippageBps)
	if err != nil {
		return nil, err
	}
	expectedExcessDebt, err := mathutils.SubFloorZero(flashLoanAmount, final.PreviewDebt)
	if err != nil {
		return nil, err
	}

	// ===== STEP 6: CALL ASSEMBLY =====
	calls, err := assembleSwapCalls(params.Token.DebtAsset, params.WrappedNative, sized.q, flashLoanAmount)
	if err != nil {
		return nil, err
	}

	plan := &types.MintPlan{
		PlanID:                  uuid.New().String(),
		Token:                   params.Token,
		InputAsset:              params.InputAsset,
		EquityInInputAsset:      new(big.Int).Set(params.EquityInInputAsset),
		MinShares:               minShares,
		ExpectedShares:          expectedShares,
		ExpectedDebt:            flashLoanAmount,
		ExpectedTotalCollateral: expectedTotalCollateral,
		ExpectedExcessDebt:      expectedExcessDebt,
		Calls:                   calls,
		QuoteSourceName:         adapter.Name(),
		QuoteSourceID:           adapter.ID(),
	}

	mintLogger.Info().
		Str("planID", plan.PlanID).
		Str("flashLoan", flashLoanAmount.String()).
		Str("expectedShares", expectedShares.String()).
		Str("minShares", minShares.String()).
		Int("calls", len(plan.Calls)).
		Msg("Mint plan produced")

	return plan, nil
}

// validateMintParams performs comprehensive validation of all input parameters
func validateMintParams(params MintParams, port preview.ManagerPort, adapter quote.Adapter) error {
	if port == nil {
		return errors.Join(ErrInvalidParams, errors.New("preview port cannot be nil"))
	}
	if adapter == nil {
		return errors.Join(ErrInvalidParams, errors.New("quote adapter cannot be nil"))
	}
	if params.EquityInInputAsset == nil || params.EquityInInputAsset.Sign() <= 0 {
		return errors.Join(ErrInvalidParams, errors.New("equity must be positive"))
	}
	if params.SlippageBps > 10000 {
		return errors.Join(ErrInvalidParams, errors.New("slippage bps out of range"))
	}
	if params.Token.Address == (common.Address{}) {
		return errors.Join(ErrInvalidParams, errors.New("leverage token address cannot be zero"))
	}
	if params.InputAsset.Address != params.Token.CollateralAsset.Address {
		return fmt.Errorf("%w: mint supports collateral-only input, got %s",
			ErrUnsupportedInputAsset, params.InputAsset.Address.Hex())
	}
	return nil
}

func refineBudget(configured int) int {
	if configured <= 0 {
		return DefaultMaxRefineIterations
	}
	return configured
}

// sizeRequest describes one swap-sizing problem: find an input amount whose
// quoted output covers neededOut.
type sizeRequest struct {
	inToken       types.TokenAsset
	outToken      types.TokenAsset
	neededOut     *big.Int
	initialIn     *big.Int
	maxIn         *big.Int // optional hard cap on the input (redeem side)
	slippageBps   uint32
	from          common.Address
	maxIterations int
	// tighten keeps refining downward after the first satisfying quote, for
	// callers whose initial candidate deliberately overshoots (redeem starts
	// from the full redeemed collateral).
	tighten bool
}

// sizeSwap sizes one auxiliary swap. It first asks for an exact-out quote;
// sources that bound the input answer in one shot. Otherwise it refines via
// exact-in quotes, scaling the candidate proportionally by neededOut/out,
// for at most the configured iteration budget.
func sizeSwap(ctx context.Context, adapter quote.Adapter, req sizeRequest) (sizedSwap, error) {
	sizeLogger := logger.GetForComponent("swap_sizer")

	exactOut, err := adapter.Quote(ctx, quote.Request{
		InToken:     req.inToken,
		OutToken:    req.outToken,
		AmountOut:   req.neededOut,
		Intent:      quote.IntentExactOut,
		SlippageBps: req.slippageBps,
		From:        req.from,
	})
	switch {
	case err == nil && exactOut.MaxIn != nil:
		if exactOut.Out.Cmp(req.neededOut) < 0 {
			return sizedSwap{}, fmt.Errorf("%w: exact-out quote underfills %s < %s",
				ErrQuoteConvergence, exactOut.Out.String(), req.neededOut.String())
		}
		if req.maxIn == nil || exactOut.MaxIn.Cmp(req.maxIn) <= 0 {
			return sizedSwap{q: exactOut, amountIn: exactOut.MaxIn}, nil
		}
		// The source would charge more than the caller can spend; its calldata
		// is sized for an input that will not exist. Refine under the cap.
		sizeLogger.Warn().
			Str("exactOutMaxIn", exactOut.MaxIn.String()).
			Str("inputCap", req.maxIn.String()).
			Msg("Exact-out bound exceeds the input cap, falling back to capped exact-in refinement")
	case err == nil:
		// No MaxIn bound: the source cannot commit to an input; refine below.
	case errors.Is(err, quote.ErrExactOutUnsupported):
		// Expected for exact-in-only sources; refine below.
	default:
		return sizedSwap{}, err
	}

	if req.initialIn == nil || req.initialIn.Sign() <= 0 {
		return sizedSwap{}, fmt.Errorf("%w: no initial candidate for exact-in refinement", ErrQuoteConvergence)
	}

	candidate := new(big.Int).Set(req.initialIn)
	if req.maxIn != nil && candidate.Cmp(req.maxIn) > 0 {
		candidate.Set(req.maxIn)
	}

	var accepted *sizedSwap
	for iteration := 0; iteration < req.maxIterations; iteration++ {
		q, err := adapter.Quote(ctx, quote.Request{
			InToken:     req.inToken,
			OutToken:    req.outToken,
			AmountIn:    candidate,
			Intent:      quote.IntentExactIn,
			SlippageBps: req.slippageBps,
			From:        req.from,
		})
		if err != nil {
			return sizedSwap{}, err
		}
		if q.Out.Sign() == 0 {
			return sizedSwap{}, fmt.Errorf("%w: quote source returned zero output", ErrQuoteConvergence)
		}

		sizeLogger.Debug().
			Int("iteration", iteration).
			Str("candidateIn", candidate.String()).
			Str("out", q.Out.String()).
			Str("neededOut", req.neededOut.String()).
			Msg("Exact-in refinement step")

		if q.Out.Cmp(req.neededOut) >= 0 {
			accepted = &sizedSwap{q: q, amountIn: new(big.Int).Set(candidate)}
			if !req.tighten {
				break
			}
			// Try a proportionally smaller input; keep the last satisfying
			// quote if the tightened attempt underfills.
			scaled := new(big.Int).Mul(candidate, req.neededOut)
			next, err := mathutils.CeilDiv(scaled, q.Out)
			if err != nil {
				return sizedSwap{}, err
			}
			if next.Cmp(candidate) >= 0 {
				break
			}
			candidate = next
			continue
		}

		if accepted != nil {
			// A tightened attempt underfilled; the previous sizing stands.
			break
		}

		// Proportional scale-up: candidate *= neededOut/out, rounded up so the
		// next attempt cannot undershoot by flooring.
		scaled := new(big.Int).Mul(candidate, req.neededOut)
		next, err := mathutils.CeilDiv(scaled, q.Out)
		if err != nil {
			return sizedSwap{}, err
		}
		if req.maxIn != nil && next.Cmp(req.maxIn) > 0 {
			next.Set(req.maxIn)
		}
		if next.Cmp(candidate) == 0 {
			break
		}
		candidate = next
	}

	if accepted == nil {
		return sizedSwap{}, fmt.Errorf("%w: needed %s of %s after %d iterations",
			ErrQuoteConvergence, req.neededOut.String(), req.outToken.Address.Hex(), req.maxIterations)
	}
	return *accepted, nil
}
