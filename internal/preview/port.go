/*

Manager/router preview ports. These abstract the protocol's on-chain preview
views: the ideal preview is the first approximation used to size the
auxiliary swap, and the final preview is the protocol's authoritative figure
the plan must ultimately satisfy. Two contract generations implement the same
behavior contract behind one interface; they differ only in which entry
points they call.

*/

package preview

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/levered-fi/ltm/internal/types"
)

// Error definitions for zero-tolerance error handling
var (
	ErrPreviewReverted = errors.New("on-chain preview call reverted")
	ErrInvalidPreview  = errors.New("preview returned invalid data")
)

// IdealMintPreview is the protocol's view of what should happen if the user
// contributed exactly the given collateral with no swap cost.
type IdealMintPreview struct {
	TargetCollateral *big.Int
	IdealDebt        *big.Int
	IdealShares      *big.Int
}

// FinalMintPreview is the authoritative computation once the actual total
// collateral is known.
type FinalMintPreview struct {
	PreviewDebt   *big.Int
	PreviewShares *big.Int
}

// RedeemPreview is the expected collateral/debt split for redeeming shares.
type RedeemPreview struct {
	Collateral *big.Int
	Debt       *big.Int
}

// FinalRedeemPreview is the authoritative redeem figure, fee-adjusted.
type FinalRedeemPreview struct {
	PreviewCollateral *big.Int
	PreviewDebt       *big.Int
}

// ManagerPort is the read-side contract both protocol generations satisfy.
type ManagerPort interface {
	// IdealMintPreview previews a mint of userCollateral equity with no swap cost.
	IdealMintPreview(ctx context.Context, token common.Address, userCollateral *big.Int) (IdealMintPreview, error)

	// FinalMintPreview previews the deposit of the actual total collateral.
	FinalMintPreview(ctx context.Context, token common.Address, totalCollateral *big.Int) (FinalMintPreview, error)

	// RedeemPreview previews the collateral/debt split for redeeming shares.
	RedeemPreview(ctx context.Context, token common.Address, shares *big.Int) (RedeemPreview, error)

	// FinalRedeemPreview returns the authoritative redeem collateral and debt.
	FinalRedeemPreview(ctx context.Context, token common.Address, shares *big.Int) (FinalRedeemPreview, error)

	// LeverageTokenAssets resolves the token's collateral and debt assets.
	LeverageTokenAssets(ctx context.Context, token common.Address) (collateral, debt types.TokenAsset, err error)
}
