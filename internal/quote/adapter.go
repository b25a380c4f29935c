/*

Quote adapter capability contract. The planners only depend on this
interface; concrete adapters (aggregator-backed, DEX-pool-backed) translate
one request into one best-effort quote from an external liquidity source.

Adapters are pure network reads with no side effects. A failed request
surfaces ErrQuoteUnavailable; retrying is the caller's decision and is never
unbounded inside a single planning call.

*/

package quote

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/levered-fi/ltm/internal/types"
)

// Error definitions for zero-tolerance error handling
var (
	ErrQuoteUnavailable    = errors.New("quote source unavailable")
	ErrExactOutUnsupported = errors.New("exact-out not natively supported by quote source")
	ErrInvalidRequest      = errors.New("invalid quote request")
)

// Intent selects which side of the swap is fixed.
type Intent string

const (
	IntentExactIn  Intent = "exactIn"
	IntentExactOut Intent = "exactOut"
)

// Request describes one quote request.
type Request struct {
	InToken  types.TokenAsset
	OutToken types.TokenAsset
	// AmountIn is required for IntentExactIn.
	AmountIn *big.Int
	// AmountOut is required for IntentExactOut.
	AmountOut   *big.Int
	Intent      Intent
	SlippageBps uint32
	// From is the contract that will execute the swap calldata (the router).
	From common.Address
}

// Adapter is the capability contract all quote sources satisfy.
type Adapter interface {
	// Name is the human-readable quote source name (e.g. "aggregator").
	Name() string
	// ID is the stable identifier recorded on plans.
	ID() string
	// Quote performs one quote request. For IntentExactOut, sources that
	// cannot bound the input natively return ErrExactOutUnsupported (or a
	// quote with a nil MaxIn); the caller then refines via exact-in calls.
	Quote(ctx context.Context, req Request) (types.Quote, error)
}

// validateRequest checks the invariants shared by all adapters.
func validateRequest(req Request) error {
	switch req.Intent {
	case IntentExactIn:
		if req.AmountIn == nil || req.AmountIn.Sign() <= 0 {
			return errors.Join(ErrInvalidRequest, errors.New("exact-in request requires a positive amountIn"))
		}
	case IntentExactOut:
		if req.AmountOut == nil || req.AmountOut.Sign() <= 0 {
			return errors.Join(ErrInvalidRequest, errors.New("exact-out request requires a positive amountOut"))
		}
	default:
		return errors.Join(ErrInvalidRequest, errors.New("unknown intent: "+string(req.Intent)))
	}
	if req.SlippageBps > 10000 {
		return errors.Join(ErrInvalidRequest, errors.New("slippage bps out of range"))
	}
	if req.InToken.Address == (common.Address{}) || req.OutToken.Address == (common.Address{}) {
		return errors.Join(ErrInvalidRequest, errors.New("token addresses must be set"))
	}
	if req.InToken.Address == req.OutToken.Address {
		return errors.Join(ErrInvalidRequest, errors.New("in and out token are identical"))
	}
	return nil
}
