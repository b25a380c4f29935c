/*

Plan types. A plan is produced once per mint/redeem attempt, is immutable once
returned, and is consumed exactly once by the execution adapter. The Calls
array must execute strictly in order: allowance-setting calls precede the
calls that consume them, and a withdraw-to-native call precedes any call that
sends native value.

*/

package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Call is an ordered, immutable instruction for the router's multicall executor.
type Call struct {
	Target common.Address `json:"target"`
	Data   []byte         `json:"data"`
	Value  *big.Int       `json:"value"`
}

// MintPlan is the fully-sized result of one mint planning pass.
type MintPlan struct {
	PlanID             string        `json:"plan_id"`
	Token              LeverageToken `json:"token"`
	InputAsset         TokenAsset    `json:"input_asset"`
	EquityInInputAsset *big.Int      `json:"equity_in_input_asset"`

	// MinShares is the on-chain floor the user accepts; always <= ExpectedShares.
	MinShares      *big.Int `json:"min_shares"`
	ExpectedShares *big.Int `json:"expected_shares"`

	// ExpectedDebt is the flash-loan amount the router will borrow.
	ExpectedDebt            *big.Int `json:"expected_debt"`
	ExpectedTotalCollateral *big.Int `json:"expected_total_collateral"`
	// ExpectedExcessDebt is debt dust left from over-sizing, floored at zero.
	ExpectedExcessDebt *big.Int `json:"expected_excess_debt"`

	Calls []Call `json:"calls"`

	QuoteSourceName string `json:"quote_source_name"`
	QuoteSourceID   string `json:"quote_source_id"`
}

// RedeemPlan is the fully-sized result of one redeem planning pass.
type RedeemPlan struct {
	PlanID         string        `json:"plan_id"`
	Token          LeverageToken `json:"token"`
	SharesToRedeem *big.Int      `json:"shares_to_redeem"`

	// CollateralToSwap is the slice of redeemed collateral sold for debt asset
	// to cover the flash-loan repayment.
	CollateralToSwap *big.Int `json:"collateral_to_swap"`
	// CollateralToDebtQuoteAmount is the debt amount the sized swap yields.
	CollateralToDebtQuoteAmount *big.Int `json:"collateral_to_debt_quote_amount"`

	MinCollateralForSender     *big.Int `json:"min_collateral_for_sender"`
	PreviewCollateralForSender *big.Int `json:"preview_collateral_for_sender"`
	MinExcessDebt              *big.Int `json:"min_excess_debt"`
	PreviewExcessDebt          *big.Int `json:"preview_excess_debt"`

	Calls []Call `json:"calls"`

	// Velora is set only on the pass-through execution variant.
	Velora *VeloraSwapData `json:"velora,omitempty"`

	QuoteSourceName string `json:"quote_source_name"`
	QuoteSourceID   string `json:"quote_source_id"`
}

// TxResult is the outcome of a simulate-then-send execution.
type TxResult struct {
	Hash common.Hash `json:"hash"`
}

// MintedShares is the result of parsing leverage-token shares out of a mint
// receipt. Heuristic is set when the mint-from-zero Transfer was not found
// and the total is the sum of all incoming transfers, which can overcount if
// unrelated transfers to the recipient land in the same transaction.
type MintedShares struct {
	Amount    *big.Int `json:"amount"`
	Heuristic bool     `json:"heuristic"`
}
