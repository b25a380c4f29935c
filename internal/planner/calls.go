/*
This file builds the ordered router call lists. Ordering is a hard
invariant: the allowance-setting call precedes the swap that consumes it, and
the withdraw-to-native call precedes the swap that sends native value.
*/

package planner

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/levered-fi/ltm/internal/types"
)

const approveABIJSON = `[
	{"name":"approve","type":"function","stateMutability":"nonpayable",
	 "inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],
	 "outputs":[{"name":"","type":"bool"}]}
]`

const withdrawABIJSON = `[
	{"name":"withdraw","type":"function","stateMutability":"nonpayable",
	 "inputs":[{"name":"wad","type":"uint256"}],"outputs":[]}
]`

var (
	approveABI  abi.ABI
	withdrawABI abi.ABI
)

func init() {
	var err error
	approveABI, err = abi.JSON(strings.NewReader(approveABIJSON))
	if err != nil {
		panic(fmt.Sprintf("planner: invalid approve ABI: %v", err))
	}
	withdrawABI, err = abi.JSON(strings.NewReader(withdrawABIJSON))
	if err != nil {
		panic(fmt.Sprintf("planner: invalid withdraw ABI: %v", err))
	}
}

// assembleSwapCalls emits the two-call sequence executing one sized swap of
// swapAsset. Native path: unwrap first, then the swap carrying amountIn as
// value. ERC-20 path: approve first, then the swap with zero value.
func assembleSwapCalls(
	swapAsset types.TokenAsset,
	wrappedNative common.Address,
	q types.Quote,
	amountIn *big.Int,
) ([]types.Call, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, fmt.Errorf("swap call amount must be positive, got %v", amountIn)
	}

	swapValue := big.NewInt(0)
	var first types.Call

	if swapAsset.Address == wrappedNative && q.RequiresNative {
		unwrapData, err := withdrawABI.Pack("withdraw", amountIn)
		if err != nil {
			return nil, fmt.Errorf("failed to encode withdraw: %w", err)
		}
		first = types.Call{
			Target: wrappedNative,
			Data:   unwrapData,
			Value:  big.NewInt(0),
		}
		swapValue = new(big.Int).Set(amountIn)
	} else {
		approveData, err := approveABI.Pack("approve", q.ApprovalTarget, amountIn)
		if err != nil {
			return nil, fmt.Errorf("failed to encode approve: %w", err)
		}
		first = types.Call{
			Target: swapAsset.Address,
			Data:   approveData,
			Value:  big.NewInt(0),
		}
	}

	swap := types.Call{
		Target: q.SwapTarget,
		Data:   q.Calldata,
		Value:  swapValue,
	}

	return []types.Call{first, swap}, nil
}
