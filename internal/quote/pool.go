/*
This file implements the DEX-pool-backed quote adapter. It prices swaps
directly against a constant-product pair's on-chain reserves (0.30% fee) and
encodes calls for the pair's router. Because the constant-product curve has a
closed-form inverse, this adapter answers exact-out requests natively and
returns a guaranteed MaxIn bound.
*/

package quote

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/levered-fi/ltm/internal/logger"
	"github.com/levered-fi/ltm/internal/mathutils"
	"github.com/levered-fi/ltm/internal/types"
)

var (
	ErrPairUnknown           = errors.New("no pair configured for token route")
	ErrInsufficientLiquidity = errors.New("insufficient pair liquidity for requested amount")
)

const (
	poolFeeMul       = 997
	poolFeeDen       = 1000
	poolSwapDeadline = 20 * time.Minute
)

const pairABIJSON = `[
	{"name":"getReserves","type":"function","stateMutability":"view","inputs":[],
	 "outputs":[{"name":"reserve0","type":"uint112"},{"name":"reserve1","type":"uint112"},{"name":"blockTimestampLast","type":"uint32"}]},
	{"name":"token0","type":"function","stateMutability":"view","inputs":[],
	 "outputs":[{"name":"","type":"address"}]}
]`

const poolRouterABIJSON = `[
	{"name":"swapExactTokensForTokens","type":"function","stateMutability":"nonpayable",
	 "inputs":[{"name":"amountIn","type":"uint256"},{"name":"amountOutMin","type":"uint256"},
	           {"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],
	 "outputs":[{"name":"amounts","type":"uint256[]"}]},
	{"name":"swapTokensForExactTokens","type":"function","stateMutability":"nonpayable",
	 "inputs":[{"name":"amountOut","type":"uint256"},{"name":"amountInMax","type":"uint256"},
	           {"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],
	 "outputs":[{"name":"amounts","type":"uint256[]"}]}
]`

// ContractCaller is the slice of the ethclient surface the adapter reads
// reserves through. Satisfied by *ethclient.Client.
type ContractCaller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// PoolAdapter quotes swaps against configured constant-product pairs.
type PoolAdapter struct {
	caller    ContractCaller
	router    common.Address
	pairs     map[string]common.Address
	pairABI   abi.ABI
	routerABI abi.ABI
}

// NewPoolAdapter creates a pool adapter. pairs maps a canonical token-pair
// key (see pairKey) to the pair contract holding that route's reserves.
func NewPoolAdapter(caller ContractCaller, router common.Address, pairs map[string]common.Address) (*PoolAdapter, error) {
	if caller == nil {
		return nil, errors.Join(ErrInvalidRequest, errors.New("contract caller cannot be nil"))
	}
	if router == (common.Address{}) {
		return nil, errors.Join(ErrInvalidRequest, errors.New("router address cannot be zero"))
	}
	pairParsed, err := abi.JSON(strings.NewReader(pairABIJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse pair ABI: %w", err)
	}
	routerParsed, err := abi.JSON(strings.NewReader(poolRouterABIJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse router ABI: %w", err)
	}
	return &PoolAdapter{
		caller:    caller,
		router:    router,
		pairs:     pairs,
		pairABI:   pairParsed,
		routerABI: routerParsed,
	}, nil
}

// PairKey returns the canonical lookup key for an unordered token pair.
func PairKey(a, b common.Address) string {
	if strings.Compare(strings.ToLower(a.Hex()), strings.ToLower(b.Hex())) < 0 {
		return strings.ToLower(a.Hex() + "-" + b.Hex())
	}
	return strings.ToLower(b.Hex() + "-" + a.Hex())
}

// Name implements Adapter.
func (p *PoolAdapter) Name() string { return "pool" }

// ID implements Adapter.
func (p *PoolAdapter) ID() string { return "pool-cpmm-v1" }

// Quote implements Adapter.
func (p *PoolAdapter) Quote(ctx context.Context, req Request) (types.Quote, error) {
	poolLogger := logger.GetForComponent("pool_adapter")

	if err := validateRequest(req); err != nil {
		return types.Quote{}, err
	}

	pair, exists := p.pairs[PairKey(req.InToken.Address, req.OutToken.Address)]
	if !exists {
		return types.Quote{}, fmt.Errorf("%w: %s -> %s",
			ErrPairUnknown, req.InToken.Address.Hex(), req.OutToken.Address.Hex())
	}

	reserveIn, reserveOut, err := p.fetchReserves(ctx, pair, req.InToken.Address)
	if err != nil {
		return types.Quote{}, errors.Join(ErrQuoteUnavailable, err)
	}
	if reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return types.Quote{}, fmt.Errorf("%w: pair %s has empty reserves", ErrInsufficientLiquidity, pair.Hex())
	}

	deadline := big.NewInt(time.Now().Add(poolSwapDeadline).Unix())
	path := []common.Address{req.InToken.Address, req.OutToken.Address}

	switch req.Intent {
	case IntentExactIn:
		out, err := amountOut(req.AmountIn, reserveIn, reserveOut)
		if err != nil {
			return types.Quote{}, err
		}
		minOut, err := mathutils.ApplySlippageFloor(out, req.SlippageBps)
		if err != nil {
			return types.Quote{}, err
		}
		calldata, err := p.routerABI.Pack("swapExactTokensForTokens",
			req.AmountIn, minOut, path, req.From, deadline)
		if err != nil {
			return types.Quote{}, fmt.Errorf("failed to encode exact-in swap: %w", err)
		}

		poolLogger.Debug().
			Str("pair", pair.Hex()).
			Str("amountIn", req.AmountIn.String()).
			Str("out", out.String()).
			Msg("Pool exact-in quote computed")

		return types.Quote{
			Out:            out,
			MinOut:         minOut,
			ApprovalTarget: p.router,
			SwapTarget:     p.router,
			Calldata:       calldata,
		}, nil

	case IntentExactOut:
		maxIn, err := amountIn(req.AmountOut, reserveIn, reserveOut)
		if err != nil {
			return types.Quote{}, err
		}
		calldata, err := p.routerABI.Pack("swapTokensForExactTokens",
			req.AmountOut, maxIn, path, req.From, deadline)
		if err != nil {
			return types.Quote{}, fmt.Errorf("failed to encode exact-out swap: %w", err)
		}

		poolLogger.Debug().
			Str("pair", pair.Hex()).
			Str("amountOut", req.AmountOut.String()).
			Str("maxIn", maxIn.String()).
			Msg("Pool exact-out quote computed")

		return types.Quote{
			Out:            new(big.Int).Set(req.AmountOut),
			MaxIn:          maxIn,
			ApprovalTarget: p.router,
			SwapTarget:     p.router,
			Calldata:       calldata,
		}, nil
	}

	return types.Quote{}, errors.Join(ErrInvalidRequest, errors.New("unknown intent"))
}

// fetchReserves reads the pair's reserves and orients them to the input token.
func (p *PoolAdapter) fetchReserves(ctx context.Context, pair, inToken common.Address) (*big.Int, *big.Int, error) {
	reservesData, err := p.callView(ctx, pair, "getReserves")
	if err != nil {
		return nil, nil, fmt.Errorf("getReserves call failed: %w", err)
	}
	reserveVals, err := p.pairABI.Unpack("getReserves", reservesData)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode getReserves: %w", err)
	}
	if len(reserveVals) != 3 {
		return nil, nil, fmt.Errorf("getReserves returned %d values, want 3", len(reserveVals))
	}
	reserve0, ok0 := reserveVals[0].(*big.Int)
	reserve1, ok1 := reserveVals[1].(*big.Int)
	if !ok0 || !ok1 {
		return nil, nil, errors.New("getReserves returned unexpected types")
	}

	token0Data, err := p.callView(ctx, pair, "token0")
	if err != nil {
		return nil, nil, fmt.Errorf("token0 call failed: %w", err)
	}
	token0Vals, err := p.pairABI.Unpack("token0", token0Data)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode token0: %w", err)
	}
	token0, ok := token0Vals[0].(common.Address)
	if !ok {
		return nil, nil, errors.New("token0 returned unexpected type")
	}

	if token0 == inToken {
		return reserve0, reserve1, nil
	}
	return reserve1, reserve0, nil
}

func (p *PoolAdapter) callView(ctx context.Context, target common.Address, method string) ([]byte, error) {
	data, err := p.pairABI.Pack(method)
	if err != nil {
		return nil, err
	}
	return p.caller.CallContract(ctx, ethereum.CallMsg{To: &target, Data: data}, nil)
}

// amountOut returns the constant-product output for an exact input after the
// 0.30% fee, flooring the division.
func amountOut(in, reserveIn, reserveOut *big.Int) (*big.Int, error) {
	if in == nil || in.Sign() <= 0 {
		return nil, errors.Join(ErrInvalidRequest, errors.New("amountIn must be positive"))
	}
	inWithFee := new(big.Int).Mul(in, big.NewInt(poolFeeMul))
	numerator := new(big.Int).Mul(inWithFee, reserveOut)
	denominator := new(big.Int).Mul(reserveIn, big.NewInt(poolFeeDen))
	denominator.Add(denominator, inWithFee)
	return numerator.Quo(numerator, denominator), nil
}

// amountIn inverts the curve for an exact output. The +1 keeps the bound
// sufficient after flooring, so it is safe to use as a MaxIn guarantee.
func amountIn(out, reserveIn, reserveOut *big.Int) (*big.Int, error) {
	if out == nil || out.Sign() <= 0 {
		return nil, errors.Join(ErrInvalidRequest, errors.New("amountOut must be positive"))
	}
	if out.Cmp(reserveOut) >= 0 {
		return nil, fmt.Errorf("%w: requested %s of reserve %s", ErrInsufficientLiquidity, out.String(), reserveOut.String())
	}
	numerator := new(big.Int).Mul(reserveIn, out)
	numerator.Mul(numerator, big.NewInt(poolFeeDen))
	denominator := new(big.Int).Sub(reserveOut, out)
	denominator.Mul(denominator, big.NewInt(poolFeeMul))
	in, err := mathutils.CeilDiv(numerator, denominator)
	if err != nil {
		return nil, err
	}
	return in.Add(in, big.NewInt(1)), nil
}
