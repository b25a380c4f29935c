/*

Quote is a momentary, best-effort price commitment from an external liquidity
source. It is produced fresh per request and never cached: the calldata and
approval target are only valid for the amounts quoted, so a stale quote must
never be reused for an execution with different amounts.

*/

package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Quote is the result of one quote request against an external liquidity source.
type Quote struct {
	// Out is the best-effort output amount in the out-token's smallest unit.
	Out *big.Int `json:"out"`
	// MinOut is an optional guaranteed lower bound honoring the requested
	// slippage. Nil when the source offers no bound.
	MinOut *big.Int `json:"min_out,omitempty"`
	// MaxIn is an optional guaranteed upper bound on the input charged for an
	// exact-out request. Nil signals the source cannot answer exact-out
	// natively and the caller must refine via repeated exact-in calls.
	MaxIn *big.Int `json:"max_in,omitempty"`
	// ApprovalTarget is the spender that must be approved before the swap call.
	ApprovalTarget common.Address `json:"approval_target"`
	// SwapTarget is the contract the swap call must be sent to.
	SwapTarget common.Address `json:"swap_target"`
	// Calldata is the encoded swap call for exactly the quoted amounts.
	Calldata []byte `json:"calldata"`
	// RequiresNative is set when the swap call expects the input as native
	// value instead of pulling an ERC-20 allowance.
	RequiresNative bool `json:"requires_native"`
}

// VeloraSwapData carries pre-built Augustus aggregator swap data for the
// Velora-specific redeem entry point. It is passed through unmodified; no
// planning decisions are derived from it.
type VeloraSwapData struct {
	AdapterAddress  common.Address `json:"adapter_address"`
	AugustusAddress common.Address `json:"augustus_address"`
	Offsets         *big.Int       `json:"offsets"`
	SwapData        []byte         `json:"swap_data"`
}
