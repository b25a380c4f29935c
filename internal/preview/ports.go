/*
This file implements the two concrete preview ports. ManagerV1 reads the
leverage manager contract directly; RouterV2 goes through the V2 router's
quote views. Every preview entry point returns the same
(collateral, debt, shares, tokenFee, treasuryFee) tuple on chain; the ports
map it onto the result structs the planners consume.
*/

package preview

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/levered-fi/ltm/internal/types"
)

const managerABIJSON = `[
	{"name":"previewMint","type":"function","stateMutability":"view",
	 "inputs":[{"name":"token","type":"address"},{"name":"equityInCollateralAsset","type":"uint256"}],
	 "outputs":[{"name":"collateral","type":"uint256"},{"name":"debt","type":"uint256"},{"name":"shares","type":"uint256"},{"name":"tokenFee","type":"uint256"},{"name":"treasuryFee","type":"uint256"}]},
	{"name":"previewDeposit","type":"function","stateMutability":"view",
	 "inputs":[{"name":"token","type":"address"},{"name":"totalCollateral","type":"uint256"}],
	 "outputs":[{"name":"collateral","type":"uint256"},{"name":"debt","type":"uint256"},{"name":"shares","type":"uint256"},{"name":"tokenFee","type":"uint256"},{"name":"treasuryFee","type":"uint256"}]},
	{"name":"previewRedeem","type":"function","stateMutability":"view",
	 "inputs":[{"name":"token","type":"address"},{"name":"shares","type":"uint256"}],
	 "outputs":[{"name":"collateral","type":"uint256"},{"name":"debt","type":"uint256"},{"name":"shares","type":"uint256"},{"name":"tokenFee","type":"uint256"},{"name":"treasuryFee","type":"uint256"}]},
	{"name":"previewWithdraw","type":"function","stateMutability":"view",
	 "inputs":[{"name":"token","type":"address"},{"name":"shares","type":"uint256"}],
	 "outputs":[{"name":"collateral","type":"uint256"},{"name":"debt","type":"uint256"},{"name":"shares","type":"uint256"},{"name":"tokenFee","type":"uint256"},{"name":"treasuryFee","type":"uint256"}]},
	{"name":"getLeverageTokenCollateralAsset","type":"function","stateMutability":"view",
	 "inputs":[{"name":"token","type":"address"}],"outputs":[{"name":"","type":"address"}]},
	{"name":"getLeverageTokenDebtAsset","type":"function","stateMutability":"view",
	 "inputs":[{"name":"token","type":"address"}],"outputs":[{"name":"","type":"address"}]}
]`

const erc20ABIJSON = `[
	{"name":"decimals","type":"function","stateMutability":"view","inputs":[],
	 "outputs":[{"name":"","type":"uint8"}]}
]`

// ContractCaller is the slice of the ethclient surface the ports read through.
// Satisfied by *ethclient.Client.
type ContractCaller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// actionData is the decoded on-chain preview tuple.
type actionData struct {
	Collateral  *big.Int
	Debt        *big.Int
	Shares      *big.Int
	TokenFee    *big.Int
	TreasuryFee *big.Int
}

// chainPort is the shared machinery behind both generations. The only
// per-generation difference is which contract the preview views live on.
type chainPort struct {
	caller     ContractCaller
	manager    common.Address
	previewOn  common.Address
	managerABI abi.ABI
	erc20ABI   abi.ABI
}

// ManagerV1 previews through direct manager reads.
type ManagerV1 struct{ chainPort }

// RouterV2 previews through the V2 router's mirrored quote views.
type RouterV2 struct{ chainPort }

// NewManagerV1 creates the V1 preview port.
func NewManagerV1(caller ContractCaller, manager common.Address) (*ManagerV1, error) {
	port, err := newChainPort(caller, manager, manager)
	if err != nil {
		return nil, err
	}
	return &ManagerV1{*port}, nil
}

// NewRouterV2 creates the V2 preview port. Asset resolution still goes to
// the manager; preview views go through the router.
func NewRouterV2(caller ContractCaller, manager, router common.Address) (*RouterV2, error) {
	port, err := newChainPort(caller, manager, router)
	if err != nil {
		return nil, err
	}
	return &RouterV2{*port}, nil
}

func newChainPort(caller ContractCaller, manager, previewOn common.Address) (*chainPort, error) {
	if caller == nil {
		return nil, errors.New("contract caller cannot be nil")
	}
	if manager == (common.Address{}) || previewOn == (common.Address{}) {
		return nil, errors.New("contract addresses cannot be zero")
	}
	managerParsed, err := abi.JSON(strings.NewReader(managerABIJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse manager ABI: %w", err)
	}
	erc20Parsed, err := abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ERC-20 ABI: %w", err)
	}
	return &chainPort{
		caller:     caller,
		manager:    manager,
		previewOn:  previewOn,
		managerABI: managerParsed,
		erc20ABI:   erc20Parsed,
	}, nil
}

// IdealMintPreview implements ManagerPort.
func (p *chainPort) IdealMintPreview(ctx context.Context, token common.Address, userCollateral *big.Int) (IdealMintPreview, error) {
	data, err := p.preview(ctx, "previewMint", token, userCollateral)
	if err != nil {
		return IdealMintPreview{}, err
	}
	return IdealMintPreview{
		TargetCollateral: data.Collateral,
		IdealDebt:        data.Debt,
		IdealShares:      data.Shares,
	}, nil
}

// FinalMintPreview implements ManagerPort.
func (p *chainPort) FinalMintPreview(ctx context.Context, token common.Address, totalCollateral *big.Int) (FinalMintPreview, error) {
	data, err := p.preview(ctx, "previewDeposit", token, totalCollateral)
	if err != nil {
		return FinalMintPreview{}, err
	}
	return FinalMintPreview{
		PreviewDebt:   data.Debt,
		PreviewShares: data.Shares,
	}, nil
}

// RedeemPreview implements ManagerPort.
func (p *chainPort) RedeemPreview(ctx context.Context, token common.Address, shares *big.Int) (RedeemPreview, error) {
	data, err := p.preview(ctx, "previewRedeem", token, shares)
	if err != nil {
		return RedeemPreview{}, err
	}
	return RedeemPreview{
		Collateral: data.Collateral,
		Debt:       data.Debt,
	}, nil
}

// FinalRedeemPreview implements ManagerPort.
func (p *chainPort) FinalRedeemPreview(ctx context.Context, token common.Address, shares *big.Int) (FinalRedeemPreview, error) {
	data, err := p.preview(ctx, "previewWithdraw", token, shares)
	if err != nil {
		return FinalRedeemPreview{}, err
	}
	return FinalRedeemPreview{
		PreviewCollateral: data.Collateral,
		PreviewDebt:       data.Debt,
	}, nil
}

// LeverageTokenAssets implements ManagerPort. Collateral and debt addresses
// are independent reads, so they are issued concurrently and joined.
func (p *chainPort) LeverageTokenAssets(ctx context.Context, token common.Address) (types.TokenAsset, types.TokenAsset, error) {
	type assetResult struct {
		asset types.TokenAsset
		err   error
	}
	collateralCh := make(chan assetResult, 1)
	debtCh := make(chan assetResult, 1)

	go func() {
		asset, err := p.resolveAsset(ctx, "getLeverageTokenCollateralAsset", token)
		collateralCh <- assetResult{asset, err}
	}()
	go func() {
		asset, err := p.resolveAsset(ctx, "getLeverageTokenDebtAsset", token)
		debtCh <- assetResult{asset, err}
	}()

	collateral := <-collateralCh
	debt := <-debtCh
	if collateral.err != nil {
		return types.TokenAsset{}, types.TokenAsset{}, collateral.err
	}
	if debt.err != nil {
		return types.TokenAsset{}, types.TokenAsset{}, debt.err
	}
	return collateral.asset, debt.asset, nil
}

// resolveAsset reads one asset address off the manager and its decimals off
// the asset itself.
func (p *chainPort) resolveAsset(ctx context.Context, method string, token common.Address) (types.TokenAsset, error) {
	calldata, err := p.managerABI.Pack(method, token)
	if err != nil {
		return types.TokenAsset{}, fmt.Errorf("failed to encode %s: %w", method, err)
	}
	raw, err := p.caller.CallContract(ctx, ethereum.CallMsg{To: &p.manager, Data: calldata}, nil)
	if err != nil {
		return types.TokenAsset{}, errors.Join(ErrPreviewReverted, fmt.Errorf("%s: %w", method, err))
	}
	vals, err := p.managerABI.Unpack(method, raw)
	if err != nil {
		return types.TokenAsset{}, errors.Join(ErrInvalidPreview, fmt.Errorf("failed to decode %s: %w", method, err))
	}
	addr, ok := vals[0].(common.Address)
	if !ok || addr == (common.Address{}) {
		return types.TokenAsset{}, errors.Join(ErrInvalidPreview, fmt.Errorf("%s returned invalid address", method))
	}

	decCalldata, err := p.erc20ABI.Pack("decimals")
	if err != nil {
		return types.TokenAsset{}, fmt.Errorf("failed to encode decimals: %w", err)
	}
	decRaw, err := p.caller.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: decCalldata}, nil)
	if err != nil {
		return types.TokenAsset{}, errors.Join(ErrPreviewReverted, fmt.Errorf("decimals on %s: %w", addr.Hex(), err))
	}
	decVals, err := p.erc20ABI.Unpack("decimals", decRaw)
	if err != nil {
		return types.TokenAsset{}, errors.Join(ErrInvalidPreview, fmt.Errorf("failed to decode decimals: %w", err))
	}
	decimals, ok := decVals[0].(uint8)
	if !ok {
		return types.TokenAsset{}, errors.Join(ErrInvalidPreview, errors.New("decimals returned unexpected type"))
	}

	return types.TokenAsset{Address: addr, Decimals: decimals}, nil
}

// preview performs one preview view call and decodes the shared tuple.
func (p *chainPort) preview(ctx context.Context, method string, token common.Address, amount *big.Int) (actionData, error) {
	if amount == nil || amount.Sign() < 0 {
		return actionData{}, errors.Join(ErrInvalidPreview, errors.New("preview amount must be non-negative"))
	}

	calldata, err := p.managerABI.Pack(method, token, amount)
	if err != nil {
		return actionData{}, fmt.Errorf("failed to encode %s: %w", method, err)
	}
	raw, err := p.caller.CallContract(ctx, ethereum.CallMsg{To: &p.previewOn, Data: calldata}, nil)
	if err != nil {
		return actionData{}, errors.Join(ErrPreviewReverted, fmt.Errorf("%s(%s, %s): %w", method, token.Hex(), amount.String(), err))
	}

	vals, err := p.managerABI.Unpack(method, raw)
	if err != nil {
		return actionData{}, errors.Join(ErrInvalidPreview, fmt.Errorf("failed to decode %s: %w", method, err))
	}
	if len(vals) != 5 {
		return actionData{}, errors.Join(ErrInvalidPreview, fmt.Errorf("%s returned %d values, want 5", method, len(vals)))
	}

	fields := make([]*big.Int, 5)
	for i, v := range vals {
		n, ok := v.(*big.Int)
		if !ok || n.Sign() < 0 {
			return actionData{}, errors.Join(ErrInvalidPreview, fmt.Errorf("%s field %d is invalid", method, i))
		}
		fields[i] = n
	}

	return actionData{
		Collateral:  fields[0],
		Debt:        fields[1],
		Shares:      fields[2],
		TokenFee:    fields[3],
		TreasuryFee: fields[4],
	}, nil
}
