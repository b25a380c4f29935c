/*
This file implements the execution adapters. Every path is simulate-then-send:
the encoded router call is first executed as an eth_call from the executor
address, and only a clean simulation is signed and broadcast. A plan is
consumed exactly once; nothing here re-sizes or re-quotes.
*/

package executor

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/levered-fi/ltm/internal/logger"
	"github.com/levered-fi/ltm/internal/types"
	"github.com/levered-fi/ltm/internal/wallet"
)

// Error definitions for zero-tolerance error handling
var (
	ErrInvalidPlan         = errors.New("execution plan is invalid")
	ErrSimulationReverted  = errors.New("pre-send simulation reverted")
	ErrTransactionReverted = errors.New("transaction reverted on chain")
)

var execLogger = logger.GetForComponent("executor")

const routerV1ABIJSON = `[
	{"name":"mint","type":"function","stateMutability":"payable",
	 "inputs":[
		{"name":"token","type":"address"},
		{"name":"equityInCollateralAsset","type":"uint256"},
		{"name":"minShares","type":"uint256"},
		{"name":"swapContext","type":"bytes"}],
	 "outputs":[]}
]`

const routerV2ABIJSON = `[
	{"name":"deposit","type":"function","stateMutability":"payable",
	 "inputs":[
		{"name":"token","type":"address"},
		{"name":"equityInCollateralAsset","type":"uint256"},
		{"name":"minShares","type":"uint256"},
		{"name":"calls","type":"tuple[]","components":[
			{"name":"target","type":"address"},
			{"name":"data","type":"bytes"},
			{"name":"value","type":"uint256"}]}],
	 "outputs":[]},
	{"name":"redeem","type":"function","stateMutability":"nonpayable",
	 "inputs":[
		{"name":"token","type":"address"},
		{"name":"shares","type":"uint256"},
		{"name":"minCollateralForSender","type":"uint256"},
		{"name":"calls","type":"tuple[]","components":[
			{"name":"target","type":"address"},
			{"name":"data","type":"bytes"},
			{"name":"value","type":"uint256"}]}],
	 "outputs":[]},
	{"name":"redeemWithVelora","type":"function","stateMutability":"nonpayable",
	 "inputs":[
		{"name":"token","type":"address"},
		{"name":"shares","type":"uint256"},
		{"name":"minCollateralForSender","type":"uint256"},
		{"name":"adapter","type":"address"},
		{"name":"augustus","type":"address"},
		{"name":"offsets","type":"uint256"},
		{"name":"swapData","type":"bytes"}],
	 "outputs":[]}
]`

// routerCall is the ABI tuple shape of one multicall instruction.
type routerCall struct {
	Target common.Address
	Data   []byte
	Value  *big.Int
}

// Executor signs and sends router transactions for produced plans.
type Executor struct {
	signer      *wallet.SigningClient
	routerV1    common.Address
	routerV2    common.Address
	routerV1ABI abi.ABI
	routerV2ABI abi.ABI
}

// NewExecutor creates an executor bound to the configured routers. A zero
// router address disables that generation's paths.
func NewExecutor(signer *wallet.SigningClient, routerV1, routerV2 common.Address) (*Executor, error) {
	if signer == nil {
		return nil, errors.New("signing client cannot be nil")
	}
	v1ABI, err := abi.JSON(strings.NewReader(routerV1ABIJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse V1 router ABI: %w", err)
	}
	v2ABI, err := abi.JSON(strings.NewReader(routerV2ABIJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse V2 router ABI: %w", err)
	}
	return &Executor{
		signer:      signer,
		routerV1:    routerV1,
		routerV2:    routerV2,
		routerV1ABI: v1ABI,
		routerV2ABI: v2ABI,
	}, nil
}

// ExecuteMintV1 executes a mint through the first-generation router, which
// takes an opaque swap context instead of a call array.
func (e *Executor) ExecuteMintV1(ctx context.Context, plan *types.MintPlan, swapContext []byte) (*types.TxResult, *gethtypes.Receipt, error) {
	if err := validateMintPlan(plan); err != nil {
		return nil, nil, err
	}
	if e.routerV1 == (common.Address{}) {
		return nil, nil, errors.Join(ErrInvalidPlan, errors.New("V1 router is not configured"))
	}
	if len(swapContext) == 0 {
		return nil, nil, errors.Join(ErrInvalidPlan, errors.New("swap context cannot be empty"))
	}

	calldata, err := e.routerV1ABI.Pack("mint",
		plan.Token.Address, plan.EquityInInputAsset, plan.MinShares, swapContext)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode V1 mint: %w", err)
	}

	return e.run(ctx, "mint_v1", plan.PlanID, e.routerV1, calldata, big.NewInt(0))
}

// ExecuteMintV2 executes a mint through the second-generation router with the
// plan's ordered call array.
func (e *Executor) ExecuteMintV2(ctx context.Context, plan *types.MintPlan) (*types.TxResult, *gethtypes.Receipt, error) {
	if err := validateMintPlan(plan); err != nil {
		return nil, nil, err
	}
	if e.routerV2 == (common.Address{}) {
		return nil, nil, errors.Join(ErrInvalidPlan, errors.New("V2 router is not configured"))
	}
	if len(plan.Calls) == 0 {
		return nil, nil, errors.Join(ErrInvalidPlan, errors.New("mint plan carries no calls"))
	}

	calldata, err := e.routerV2ABI.Pack("deposit",
		plan.Token.Address, plan.EquityInInputAsset, plan.MinShares, toRouterCalls(plan.Calls))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode V2 deposit: %w", err)
	}

	return e.run(ctx, "mint_v2", plan.PlanID, e.routerV2, calldata, big.NewInt(0))
}

// ExecuteRedeemV2 executes a redeem through the second-generation router.
func (e *Executor) ExecuteRedeemV2(ctx context.Context, plan *types.RedeemPlan) (*types.TxResult, *gethtypes.Receipt, error) {
	if err := validateRedeemPlan(plan); err != nil {
		return nil, nil, err
	}
	if e.routerV2 == (common.Address{}) {
		return nil, nil, errors.Join(ErrInvalidPlan, errors.New("V2 router is not configured"))
	}
	if len(plan.Calls) == 0 {
		return nil, nil, errors.Join(ErrInvalidPlan, errors.New("redeem plan carries no calls"))
	}

	calldata, err := e.routerV2ABI.Pack("redeem",
		plan.Token.Address, plan.SharesToRedeem, plan.MinCollateralForSender, toRouterCalls(plan.Calls))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode V2 redeem: %w", err)
	}

	return e.run(ctx, "redeem_v2", plan.PlanID, e.routerV2, calldata, big.NewInt(0))
}

// ExecuteRedeemVelora executes a redeem through the specialized Augustus
// entry point using the plan's attached pass-through swap data.
func (e *Executor) ExecuteRedeemVelora(ctx context.Context, plan *types.RedeemPlan) (*types.TxResult, *gethtypes.Receipt, error) {
	if err := validateRedeemPlan(plan); err != nil {
		return nil, nil, err
	}
	if e.routerV2 == (common.Address{}) {
		return nil, nil, errors.Join(ErrInvalidPlan, errors.New("V2 router is not configured"))
	}
	if plan.Velora == nil {
		return nil, nil, errors.Join(ErrInvalidPlan, errors.New("plan carries no velora swap data"))
	}

	offsets := plan.Velora.Offsets
	if offsets == nil {
		offsets = big.NewInt(0)
	}
	calldata, err := e.routerV2ABI.Pack("redeemWithVelora",
		plan.Token.Address, plan.SharesToRedeem, plan.MinCollateralForSender,
		plan.Velora.AdapterAddress, plan.Velora.AugustusAddress, offsets, plan.Velora.SwapData)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode redeemWithVelora: %w", err)
	}

	return e.run(ctx, "redeem_velora", plan.PlanID, e.routerV2, calldata, big.NewInt(0))
}

// run is the shared simulate-then-send pipeline.
func (e *Executor) run(ctx context.Context, operation, planID string, target common.Address, calldata []byte, value *big.Int) (*types.TxResult, *gethtypes.Receipt, error) {
	execLogger.Info().
		Str("operation", operation).
		Str("planID", planID).
		Str("target", target.Hex()).
		Msg("Simulating router call before send")

	if _, err := e.signer.SimulateCall(ctx, target, calldata, value); err != nil {
		execLogger.Error().
			Err(err).
			Str("operation", operation).
			Str("planID", planID).
			Msg("Pre-send simulation reverted, transaction will not be sent")
		return nil, nil, errors.Join(ErrSimulationReverted, err)
	}

	gasLimit, err := e.signer.EstimateGas(ctx, target, calldata, value)
	if err != nil {
		return nil, nil, err
	}

	tx, err := e.signer.SendTransaction(ctx, target, calldata, value, gasLimit)
	if err != nil {
		return nil, nil, err
	}

	receipt, err := e.signer.WaitForReceipt(ctx, tx.Hash())
	if err != nil {
		return nil, nil, err
	}
	if receipt.Status != gethtypes.ReceiptStatusSuccessful {
		execLogger.Error().
			Str("operation", operation).
			Str("planID", planID).
			Str("txHash", tx.Hash().Hex()).
			Msg("Transaction reverted on chain after clean simulation")
		return nil, receipt, errors.Join(ErrTransactionReverted,
			fmt.Errorf("tx %s reverted in block %s", tx.Hash().Hex(), receipt.BlockNumber.String()))
	}

	execLogger.Info().
		Str("operation", operation).
		Str("planID", planID).
		Str("txHash", tx.Hash().Hex()).
		Uint64("gasUsed", receipt.GasUsed).
		Msg("Transaction confirmed")

	return &types.TxResult{Hash: tx.Hash()}, receipt, nil
}

func toRouterCalls(calls []types.Call) []routerCall {
	out := make([]routerCall, len(calls))
	for i, c := range calls {
		value := c.Value
		if value == nil {
			value = big.NewInt(0)
		}
		out[i] = routerCall{Target: c.Target, Data: c.Data, Value: value}
	}
	return out
}

func validateMintPlan(plan *types.MintPlan) error {
	if plan == nil {
		return errors.Join(ErrInvalidPlan, errors.New("mint plan cannot be nil"))
	}
	if plan.EquityInInputAsset == nil || plan.EquityInInputAsset.Sign() <= 0 {
		return errors.Join(ErrInvalidPlan, errors.New("plan equity must be positive"))
	}
	if plan.MinShares == nil || plan.MinShares.Sign() < 0 {
		return errors.Join(ErrInvalidPlan, errors.New("plan min shares is invalid"))
	}
	if plan.Token.Address == (common.Address{}) {
		return errors.Join(ErrInvalidPlan, errors.New("plan token address cannot be zero"))
	}
	return nil
}

func validateRedeemPlan(plan *types.RedeemPlan) error {
	if plan == nil {
		return errors.Join(ErrInvalidPlan, errors.New("redeem plan cannot be nil"))
	}
	if plan.SharesToRedeem == nil || plan.SharesToRedeem.Sign() <= 0 {
		return errors.Join(ErrInvalidPlan, errors.New("plan shares must be positive"))
	}
	if plan.MinCollateralForSender == nil || plan.MinCollateralForSender.Sign() < 0 {
		return errors.Join(ErrInvalidPlan, errors.New("plan min collateral is invalid"))
	}
	if plan.Token.Address == (common.Address{}) {
		return errors.Join(ErrInvalidPlan, errors.New("plan token address cannot be zero"))
	}
	return nil
}
