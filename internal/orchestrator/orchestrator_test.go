package orchestrator

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/levered-fi/ltm/internal/config"
	"github.com/levered-fi/ltm/internal/preview"
	"github.com/levered-fi/ltm/internal/quote"
	"github.com/levered-fi/ltm/internal/types"
)

type fakePort struct{}

func (fakePort) IdealMintPreview(ctx context.Context, token common.Address, userCollateral *big.Int) (preview.IdealMintPreview, error) {
	return preview.IdealMintPreview{}, nil
}

func (fakePort) FinalMintPreview(ctx context.Context, token common.Address, totalCollateral *big.Int) (preview.FinalMintPreview, error) {
	return preview.FinalMintPreview{}, nil
}

func (fakePort) RedeemPreview(ctx context.Context, token common.Address, shares *big.Int) (preview.RedeemPreview, error) {
	return preview.RedeemPreview{}, nil
}

func (fakePort) FinalRedeemPreview(ctx context.Context, token common.Address, shares *big.Int) (preview.FinalRedeemPreview, error) {
	return preview.FinalRedeemPreview{}, nil
}

func (fakePort) LeverageTokenAssets(ctx context.Context, token common.Address) (types.TokenAsset, types.TokenAsset, error) {
	return types.TokenAsset{}, types.TokenAsset{}, nil
}

type fakeAdapter struct{}

func (fakeAdapter) Name() string { return "fake" }
func (fakeAdapter) ID() string   { return "fake-v1" }
func (fakeAdapter) Quote(ctx context.Context, req quote.Request) (types.Quote, error) {
	return types.Quote{}, nil
}

func TestDetectVersion(t *testing.T) {
	prev := config.RouterV2Address
	defer func() { config.RouterV2Address = prev }()

	config.RouterV2Address = common.Address{}
	require.Equal(t, VersionV1, DetectVersion())

	config.RouterV2Address = common.HexToAddress("0x1234567890123456789012345678901234567890")
	require.Equal(t, VersionV2, DetectVersion())
}

func TestNewOrchestratorValidation(t *testing.T) {
	_, err := NewOrchestrator(Config{Version: VersionV2, Adapter: fakeAdapter{}})
	require.ErrorIs(t, err, ErrInvalidOrchestratorConfig)

	_, err = NewOrchestrator(Config{Port: fakePort{}, Version: Version(9)})
	require.ErrorIs(t, err, ErrInvalidOrchestratorConfig)

	// V2 without a quote adapter cannot size its own swaps.
	_, err = NewOrchestrator(Config{Port: fakePort{}, Version: VersionV2})
	require.ErrorIs(t, err, ErrInvalidOrchestratorConfig)

	// V1 plans arrive pre-sized, no adapter needed.
	o, err := NewOrchestrator(Config{Port: fakePort{}, Version: VersionV1})
	require.NoError(t, err)
	require.Equal(t, VersionV1, o.Version())
}

func TestExecutionDisabledWithoutExecutor(t *testing.T) {
	o, err := NewOrchestrator(Config{Port: fakePort{}, Adapter: fakeAdapter{}, Version: VersionV2})
	require.NoError(t, err)

	_, _, _, err = o.Mint(context.Background(), common.Address{}, big.NewInt(1), 0, nil)
	require.ErrorIs(t, err, ErrExecutionUnavailable)

	_, _, err = o.Redeem(context.Background(), common.Address{}, big.NewInt(1), 0)
	require.ErrorIs(t, err, ErrExecutionUnavailable)

	_, _, err = o.RedeemVelora(context.Background(), common.Address{}, big.NewInt(1), 0, types.VeloraSwapData{}, big.NewInt(1), big.NewInt(1))
	require.ErrorIs(t, err, ErrExecutionUnavailable)
}
