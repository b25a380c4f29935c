/*

Token identity types. A LeverageToken combines one collateral asset and one
borrowed debt asset at a target leverage ratio; both underlying assets are
fetched from the manager contract once and are effectively immutable for the
token's lifetime.

*/

package types

import "github.com/ethereum/go-ethereum/common"

// TokenAsset identifies one ERC-20-like asset on one chain.
type TokenAsset struct {
	Address  common.Address `json:"address"`
	Decimals uint8          `json:"decimals"`
}

// LeverageToken represents one tradable leveraged position type.
type LeverageToken struct {
	Address         common.Address `json:"address"`
	ChainID         uint64         `json:"chain_id"`
	CollateralAsset TokenAsset     `json:"collateral_asset"`
	DebtAsset       TokenAsset     `json:"debt_asset"`
}
