/*
This file coordinates the plan -> persist -> execute -> settle flow. The
orchestrator owns no sizing logic: planning belongs to the planner package and
transaction mechanics to the executor. Its job is wiring, version dispatch,
and leaving an audit trail for every attempt.
*/

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"

	"github.com/levered-fi/ltm/internal/config"
	"github.com/levered-fi/ltm/internal/executor"
	"github.com/levered-fi/ltm/internal/logger"
	"github.com/levered-fi/ltm/internal/planner"
	"github.com/levered-fi/ltm/internal/preview"
	"github.com/levered-fi/ltm/internal/quote"
	"github.com/levered-fi/ltm/internal/state"
	"github.com/levered-fi/ltm/internal/types"
)

// Error definitions for zero-tolerance error handling
var (
	ErrInvalidOrchestratorConfig = errors.New("orchestrator configuration is invalid")
	ErrExecutionUnavailable      = errors.New("execution is not configured")
)

// Version selects which router generation the orchestrator drives.
type Version int

const (
	VersionV1 Version = 1
	VersionV2 Version = 2
)

// DetectVersion picks the protocol generation from configuration: a
// configured V2 router wins, otherwise the V1 path is used.
func DetectVersion() Version {
	if config.RouterV2Address != (common.Address{}) {
		return VersionV2
	}
	return VersionV1
}

// Config holds the dependencies for creating an Orchestrator.
type Config struct {
	Port    preview.ManagerPort
	Adapter quote.Adapter
	// Executor may be nil: the orchestrator then plans but refuses to execute.
	Executor *executor.Executor
	// ExecutorAddress is the signing address; the router mints shares to it.
	ExecutorAddress common.Address
	Version         Version
	// PersistPlans disables the audit trail when no database is wired.
	PersistPlans bool
}

// Orchestrator drives full mint/redeem flows against one protocol generation.
type Orchestrator struct {
	logger          zerolog.Logger
	port            preview.ManagerPort
	adapter         quote.Adapter
	executor        *executor.Executor
	executorAddress common.Address
	version         Version
	persistPlans    bool
}

// NewOrchestrator creates an orchestrator with dependency injection. The V2
// path plans its own swaps and therefore requires a quote adapter; V1 plans
// are sized elsewhere and arrive as opaque swap context.
func NewOrchestrator(cfg Config) (*Orchestrator, error) {
	if cfg.Port == nil {
		return nil, errors.Join(ErrInvalidOrchestratorConfig, errors.New("preview port cannot be nil"))
	}
	if cfg.Version != VersionV1 && cfg.Version != VersionV2 {
		return nil, errors.Join(ErrInvalidOrchestratorConfig, fmt.Errorf("unknown version %d", cfg.Version))
	}
	if cfg.Version == VersionV2 && cfg.Adapter == nil {
		return nil, errors.Join(ErrInvalidOrchestratorConfig, errors.New("V2 requires a quote adapter"))
	}

	if cfg.Executor != nil && cfg.ExecutorAddress == (common.Address{}) {
		return nil, errors.Join(ErrInvalidOrchestratorConfig, errors.New("executor address required when execution is enabled"))
	}

	o := &Orchestrator{
		logger:          logger.GetForComponent("orchestrator"),
		port:            cfg.Port,
		adapter:         cfg.Adapter,
		executor:        cfg.Executor,
		executorAddress: cfg.ExecutorAddress,
		version:         cfg.Version,
		persistPlans:    cfg.PersistPlans,
	}

	o.logger.Info().
		Int("version", int(cfg.Version)).
		Bool("executionEnabled", cfg.Executor != nil).
		Bool("persistPlans", cfg.PersistPlans).
		Msg("Orchestrator created")

	return o, nil
}

// Version returns the protocol generation this orchestrator drives.
func (o *Orchestrator) Version() Version {
	return o.version
}

// PlanMint resolves the token's assets and produces a mint plan without
// executing it.
func (o *Orchestrator) PlanMint(ctx context.Context, token common.Address, equity *big.Int, slippageBps uint32) (*types.MintPlan, error) {
	leverageToken, err := o.resolveToken(ctx, token)
	if err != nil {
		return nil, err
	}

	params := planner.MintParams{
		Token:               leverageToken,
		InputAsset:          leverageToken.CollateralAsset,
		EquityInInputAsset:  equity,
		SlippageBps:         slippageBps,
		MaxRefineIterations: config.QuoteMaxRefineIterations,
		WrappedNative:       config.WrappedNativeAddress,
		Router:              o.routerAddress(),
	}

	plan, err := planner.PlanMint(ctx, params, o.port, o.adapter)
	if err != nil {
		return nil, err
	}

	o.persistMintPlan(plan, slippageBps)
	return plan, nil
}

// PlanRedeem resolves the token's assets and produces a redeem plan without
// executing it.
func (o *Orchestrator) PlanRedeem(ctx context.Context, token common.Address, shares *big.Int, slippageBps uint32) (*types.RedeemPlan, error) {
	leverageToken, err := o.resolveToken(ctx, token)
	if err != nil {
		return nil, err
	}

	params := planner.RedeemParams{
		Token:               leverageToken,
		SharesToRedeem:      shares,
		SlippageBps:         slippageBps,
		MaxRefineIterations: config.QuoteMaxRefineIterations,
		WrappedNative:       config.WrappedNativeAddress,
		Router:              o.routerAddress(),
	}

	plan, err := planner.PlanRedeem(ctx, params, o.port, o.adapter)
	if err != nil {
		return nil, err
	}

	o.persistRedeemPlan(plan, slippageBps)
	return plan, nil
}

// Mint plans and executes a mint end to end. On V1 the pre-computed swap
// context must be supplied; on V2 it is ignored.
func (o *Orchestrator) Mint(ctx context.Context, token common.Address, equity *big.Int, slippageBps uint32, swapContext []byte) (*types.MintPlan, *types.TxResult, *types.MintedShares, error) {
	if o.executor == nil {
		return nil, nil, nil, ErrExecutionUnavailable
	}

	plan, err := o.PlanMint(ctx, token, equity, slippageBps)
	if err != nil {
		return nil, nil, nil, err
	}

	var result *types.TxResult
	var receipt *gethtypes.Receipt
	switch o.version {
	case VersionV1:
		result, receipt, err = o.executor.ExecuteMintV1(ctx, plan, swapContext)
	default:
		result, receipt, err = o.executor.ExecuteMintV2(ctx, plan)
	}
	if err != nil {
		o.settle(plan.PlanID, types.PlanStatusFailed, "", err)
		return plan, nil, nil, err
	}
	o.settle(plan.PlanID, types.PlanStatusExecuted, result.Hash.Hex(), nil)

	minted := o.parseMinted(receipt, plan.Token.Address)
	return plan, result, minted, nil
}

// Redeem plans and executes a redeem end to end through the V2 router.
func (o *Orchestrator) Redeem(ctx context.Context, token common.Address, shares *big.Int, slippageBps uint32) (*types.RedeemPlan, *types.TxResult, error) {
	if o.executor == nil {
		return nil, nil, ErrExecutionUnavailable
	}
	if o.version != VersionV2 {
		return nil, nil, errors.Join(ErrExecutionUnavailable, errors.New("redeem execution requires the V2 router"))
	}

	plan, err := o.PlanRedeem(ctx, token, shares, slippageBps)
	if err != nil {
		return nil, nil, err
	}

	result, _, err := o.executor.ExecuteRedeemV2(ctx, plan)
	if err != nil {
		o.settle(plan.PlanID, types.PlanStatusFailed, "", err)
		return plan, nil, err
	}
	o.settle(plan.PlanID, types.PlanStatusExecuted, result.Hash.Hex(), nil)

	return plan, result, nil
}

// RedeemVelora executes a redeem through the Augustus pass-through entry
// point with caller-supplied swap data.
func (o *Orchestrator) RedeemVelora(ctx context.Context, token common.Address, shares *big.Int, slippageBps uint32, velora types.VeloraSwapData, collateralToSwap, quoteAmount *big.Int) (*types.RedeemPlan, *types.TxResult, error) {
	if o.executor == nil {
		return nil, nil, ErrExecutionUnavailable
	}
	if o.version != VersionV2 {
		return nil, nil, errors.Join(ErrExecutionUnavailable, errors.New("velora redeem requires the V2 router"))
	}

	leverageToken, err := o.resolveToken(ctx, token)
	if err != nil {
		return nil, nil, err
	}

	params := planner.RedeemParams{
		Token:          leverageToken,
		SharesToRedeem: shares,
		SlippageBps:    slippageBps,
		WrappedNative:  config.WrappedNativeAddress,
		Router:         o.routerAddress(),
	}

	plan, err := planner.PlanRedeemVelora(ctx, params, o.port, velora, collateralToSwap, quoteAmount)
	if err != nil {
		return nil, nil, err
	}
	o.persistRedeemPlan(plan, slippageBps)

	result, _, err := o.executor.ExecuteRedeemVelora(ctx, plan)
	if err != nil {
		o.settle(plan.PlanID, types.PlanStatusFailed, "", err)
		return plan, nil, err
	}
	o.settle(plan.PlanID, types.PlanStatusExecuted, result.Hash.Hex(), nil)

	return plan, result, nil
}

// resolveToken resolves collateral and debt assets for the leverage token.
func (o *Orchestrator) resolveToken(ctx context.Context, token common.Address) (types.LeverageToken, error) {
	collateral, debt, err := o.port.LeverageTokenAssets(ctx, token)
	if err != nil {
		return types.LeverageToken{}, fmt.Errorf("failed to resolve assets for %s: %w", token.Hex(), err)
	}
	return types.LeverageToken{
		Address:         token,
		ChainID:         config.ChainID,
		CollateralAsset: collateral,
		DebtAsset:       debt,
	}, nil
}

func (o *Orchestrator) routerAddress() common.Address {
	if o.version == VersionV2 {
		return config.RouterV2Address
	}
	return config.RouterV1Address
}

// parseMinted recovers the minted share amount. The router mints shares to
// the transaction sender, which is always the executor address here.
func (o *Orchestrator) parseMinted(receipt *gethtypes.Receipt, token common.Address) *types.MintedShares {
	if receipt == nil || o.executor == nil {
		return nil
	}
	minted, err := executor.ParseMintedShares(receipt, token, o.executorAddress)
	if err != nil {
		o.logger.Warn().Err(err).Msg("Could not parse minted shares from receipt")
		return nil
	}
	return &minted
}

func (o *Orchestrator) persistMintPlan(plan *types.MintPlan, slippageBps uint32) {
	if !o.persistPlans {
		return
	}
	record := types.PlanRecord{
		PlanID:          plan.PlanID,
		Kind:            types.PlanKindMint,
		TokenAddress:    plan.Token.Address.Hex(),
		ChainID:         plan.Token.ChainID,
		AmountIn:        plan.EquityInInputAsset.String(),
		ExpectedOut:     plan.ExpectedShares.String(),
		MinOut:          plan.MinShares.String(),
		SlippageBps:     slippageBps,
		CallCount:       len(plan.Calls),
		QuoteSourceName: plan.QuoteSourceName,
		Status:          types.PlanStatusPlanned,
	}
	if _, err := state.SavePlanRecord(record, plan); err != nil {
		o.logger.Error().Err(err).Str("planID", plan.PlanID).Msg("Failed to persist mint plan snapshot")
	}
}

func (o *Orchestrator) persistRedeemPlan(plan *types.RedeemPlan, slippageBps uint32) {
	if !o.persistPlans {
		return
	}
	record := types.PlanRecord{
		PlanID:          plan.PlanID,
		Kind:            types.PlanKindRedeem,
		TokenAddress:    plan.Token.Address.Hex(),
		ChainID:         plan.Token.ChainID,
		AmountIn:        plan.SharesToRedeem.String(),
		ExpectedOut:     plan.PreviewCollateralForSender.String(),
		MinOut:          plan.MinCollateralForSender.String(),
		SlippageBps:     slippageBps,
		CallCount:       len(plan.Calls),
		QuoteSourceName: plan.QuoteSourceName,
		Status:          types.PlanStatusPlanned,
	}
	if _, err := state.SavePlanRecord(record, plan); err != nil {
		o.logger.Error().Err(err).Str("planID", plan.PlanID).Msg("Failed to persist redeem plan snapshot")
	}
}

func (o *Orchestrator) settle(planID string, status types.PlanStatus, txHash string, execErr error) {
	if !o.persistPlans {
		return
	}
	errMessage := ""
	if execErr != nil {
		errMessage = execErr.Error()
	}
	if err := state.UpdatePlanStatus(planID, status, txHash, errMessage); err != nil {
		o.logger.Error().Err(err).Str("planID", planID).Msg("Failed to settle plan snapshot")
	}
}
