/*
This file implements the redeem planner, the mirror of the mint pass: redeem
shares into a collateral/debt split, size a collateral->debt swap sufficient
to repay the flash loan, clamp against the authoritative preview, and floor
the collateral returned to the sender.

PlanRedeemVelora is an alternate execution path, not an alternate planning
algorithm: pre-built Augustus swap data is attached to the plan unmodified
and consumed by a specialized router entry point.
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

// RedeemParams carries everything one redeem planning pass needs.
type RedeemParams struct {
	Token          types.LeverageToken
	SharesToRedeem *big.Int
	SlippageBps    uint32
	// MaxRefineIterations bounds exact-in refinement; 0 selects the default.
	MaxRefineIterations int
	WrappedNative       common.Address
	Router              common.Address
}

// PlanRedeem produces an immutable RedeemPlan for the given shares, or a
// typed error. It performs no retries and never returns a partial plan.
func PlanRedeem(
	ctx context.Context,
	params RedeemParams,
	port preview.ManagerPort,
	adapter quote.Adapter,
) (*types.RedeemPlan, error) {
	redeemLogger := logger.GetForComponent("redeem_planner")

	if err := validateRedeemParams(params, port); err != nil {
		redeemLogger.Error().Err(err).Msg("Redeem parameter validation failed")
		return nil, err
	}
	if adapter == nil {
		return nil, errors.Join(ErrInvalidParams, errors.New("quote adapter cannot be nil"))
	}

	// ===== STEP 1: REDEEM PREVIEW =====
	ideal, err := port.RedeemPreview(ctx, params.Token.Address, params.SharesToRedeem)
	if err != nil {
		return nil, fmt.Errorf("redeem preview failed: %w", err)
	}
	if ideal.Debt.Sign() == 0 {
		return nil, fmt.Errorf("%w: no debt repayment swap needed for %s shares",
			ErrNoSwapNeeded, params.SharesToRedeem.String())
	}
	if ideal.Collateral.Sign() == 0 {
		return nil, errors.Join(ErrInvalidParams, errors.New("redeem preview returned zero collateral"))
	}

	redeemLogger.Debug().
		Str("collateral", ideal.Collateral.String()).
		Str("debt", ideal.Debt.String()).
		Msg("Redeem preview complete")

	// ===== STEP 2: SIZE THE COLLATERAL->DEBT SWAP =====
	// The swap must produce at least the debt repayment; the input can never
	// exceed the redeemed collateral. Exact-in refinement starts from the
	// full collateral and tightens down.
	sized, err := sizeSwap(ctx, adapter, sizeRequest{
		inToken:       params.Token.CollateralAsset,
		outToken:      params.Token.DebtAsset,
		neededOut:     ideal.Debt,
		initialIn:     ideal.Collateral,
		maxIn:         ideal.Collateral,
		slippageBps:   params.SlippageBps,
		from:          params.Router,
		maxIterations: refineBudget(params.MaxRefineIterations),
		tighten:       true,
	})
	if err != nil {
		return nil, err
	}
	collateralToSwap := sized.amountIn

	// ===== STEP 3: FINAL PREVIEW =====
	final, err := port.FinalRedeemPreview(ctx, params.Token.Address, params.SharesToRedeem)
	if err != nil {
		return nil, fmt.Errorf("final redeem preview failed: %w", err)
	}

	// ===== STEP 4: CLAMP-AND-REQUOTE =====
	// When the authoritative debt figure is below what was sized, re-issue one
	// exact-in quote for a proportionally smaller collateral slice. If the
	// tightened quote underfills the repayment, the original sizing stands:
	// it covers strictly more than required.
	if final.PreviewDebt.Sign() > 0 && final.PreviewDebt.Cmp(sized.q.Out) < 0 {
		scaled := new(big.Int).Mul(collateralToSwap, final.PreviewDebt)
		clamped, err := mathutils.CeilDiv(scaled, sized.q.Out)
		if err != nil {
			return nil, err
		}
		if clamped.Cmp(collateralToSwap) < 0 && clamped.Sign() > 0 {
			redeemLogger.Info().
				Str("sizedCollateral", collateralToSwap.String()).
				Str("previewDebt", final.PreviewDebt.String()).
				Msg("Clamping collateral swap to authoritative preview debt and re-quoting")

			requoted, err := adapter.Quote(ctx, quote.Request{
				InToken:     params.Token.CollateralAsset,
				OutToken:    params.Token.DebtAsset,
				AmountIn:    clamped,
				Intent:      quote.IntentExactIn,
				SlippageBps: params.SlippageBps,
				From:        params.Router,
			})
			if err != nil {
				return nil, fmt.Errorf("clamp re-quote failed: %w", err)
			}
			if requoted.Out.Cmp(final.PreviewDebt) >= 0 {
				sized = sizedSwap{q: requoted, amountIn: clamped}
				collateralToSwap = clamped
			}
		}
	}

	// ===== STEP 5: GUARANTEES =====
	previewCollateralForSender, err := mathutils.SubFloorZero(final.PreviewCollateral, collateralToSwap)
	if err != nil {
		return nil, err
	}
	minCollateralForSender, err := mathutils.ApplySlippageFloor(previewCollateralForSender, params.SlippageBps)
	if err != nil {
		return nil, err
	}
	previewExcessDebt, err := mathutils.SubFloorZero(sized.q.Out, final.PreviewDebt)
	if err != nil {
		return nil, err
	}
	minExcessDebt, err := mathutils.ApplySlippageFloor(previewExcessDebt, params.SlippageBps)
	if err != nil {
		return nil, err
	}

	// ===== STEP 6: CALL ASSEMBLY =====
	calls, err := assembleSwapCalls(params.Token.CollateralAsset, params.WrappedNative, sized.q, collateralToSwap)
	if err != nil {
		return nil, err
	}

	plan := &types.RedeemPlan{
		PlanID:                      uuid.New().String(),
		Token:                       params.Token,
		SharesToRedeem:              new(big.Int).Set(params.SharesToRedeem),
		CollateralToSwap:            collateralToSwap,
		CollateralToDebtQuoteAmount: sized.q.Out,
		MinCollateralForSender:      minCollateralForSender,
		PreviewCollateralForSender:  previewCollateralForSender,
		MinExcessDebt:               minExcessDebt,
		PreviewExcessDebt:           previewExcessDebt,
		Calls:                       calls,
		QuoteSourceName:             adapter.Name(),
		QuoteSourceID:               adapter.ID(),
	}

	redeemLogger.Info().
		Str("planID", plan.PlanID).
		Str("collateralToSwap", collateralToSwap.String()).
		Str("minCollateralForSender", minCollateralForSender.String()).
		Int("calls", len(plan.Calls)).
		Msg("Redeem plan produced")

	return plan, nil
}

// PlanRedeemVelora builds a redeem plan around pre-built Augustus swap data.
// collateralToSwap and quoteAmount come from whoever built the swap data; the
// planner attaches them and the raw data unmodified for the specialized
// execution entry point.
func PlanRedeemVelora(
	ctx context.Context,
	params RedeemParams,
	port preview.ManagerPort,
	velora types.VeloraSwapData,
	collateralToSwap *big.Int,
	quoteAmount *big.Int,
) (*types.RedeemPlan, error) {
	redeemLogger := logger.GetForComponent("redeem_planner")

	if err := validateRedeemParams(params, port); err != nil {
		redeemLogger.Error().Err(err).Msg("Velora redeem parameter validation failed")
		return nil, err
	}
	if velora.AugustusAddress == (common.Address{}) || len(velora.SwapData) == 0 {
		return nil, errors.Join(ErrInvalidParams, errors.New("velora swap data is incomplete"))
	}
	if collateralToSwap == nil || collateralToSwap.Sign() <= 0 {
		return nil, errors.Join(ErrInvalidParams, errors.New("collateralToSwap must be positive"))
	}
	if quoteAmount == nil || quoteAmount.Sign() <= 0 {
		return nil, errors.Join(ErrInvalidParams, errors.New("quoteAmount must be positive"))
	}

	final, err := port.FinalRedeemPreview(ctx, params.Token.Address, params.SharesToRedeem)
	if err != nil {
		return nil, fmt.Errorf("final redeem preview failed: %w", err)
	}
	if quoteAmount.Cmp(final.PreviewDebt) < 0 {
		return nil, errors.Join(ErrInvalidParams,
			fmt.Errorf("velora swap output %s does not cover debt repayment %s",
				quoteAmount.String(), final.PreviewDebt.String()))
	}

	previewCollateralForSender, err := mathutils.SubFloorZero(final.PreviewCollateral, collateralToSwap)
	if err != nil {
		return nil, err
	}
	minCollateralForSender, err := mathutils.ApplySlippageFloor(previewCollateralForSender, params.SlippageBps)
	if err != nil {
		return nil, err
	}
	previewExcessDebt, err := mathutils.SubFloorZero(quoteAmount, final.PreviewDebt)
	if err != nil {
		return nil, err
	}
	minExcessDebt, err := mathutils.ApplySlippageFloor(previewExcessDebt, params.SlippageBps)
	if err != nil {
		return nil, err
	}

	veloraCopy := velora
	return &types.RedeemPlan{
		PlanID:                      uuid.New().String(),
		Token:                       params.Token,
		SharesToRedeem:              new(big.Int).Set(params.SharesToRedeem),
		CollateralToSwap:            new(big.Int).Set(collateralToSwap),
		CollateralToDebtQuoteAmount: new(big.Int).Set(quoteAmount),
		MinCollateralForSender:      minCollateralForSender,
		PreviewCollateralForSender:  previewCollateralForSender,
		MinExcessDebt:               minExcessDebt,
		PreviewExcessDebt:           previewExcessDebt,
		Velora:                      &veloraCopy,
		QuoteSourceName:             "velora",
		QuoteSourceID:               "velora-augustus",
	}, nil
}

// validateRedeemParams performs comprehensive validation of all input parameters
func validateRedeemParams(params RedeemParams, port preview.ManagerPort) error {
	if port == nil {
		return errors.Join(ErrInvalidParams, errors.New("preview port cannot be nil"))
	}
	if params.SharesToRedeem == nil || params.SharesToRedeem.Sign() <= 0 {
		return errors.Join(ErrInvalidParams, errors.New("shares to redeem must be positive"))
	}
	if params.SlippageBps > 10000 {
		return errors.Join(ErrInvalidParams, errors.New("slippage bps out of range"))
	}
	if params.Token.Address == (common.Address{}) {
		return errors.Join(ErrInvalidParams, errors.New("leverage token address cannot be zero"))
	}
	return nil
}
