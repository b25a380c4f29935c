/*
This file recovers the minted share amount from a confirmed mint receipt. The
exact answer is the ERC-20 Transfer from the zero address to the recipient; if
that log is absent the fallback sums every incoming transfer of the leverage
token, which can overcount when unrelated transfers to the recipient land in
the same transaction, so the result is flagged as heuristic.
*/

package executor

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/levered-fi/ltm/internal/types"
)

var ErrNoSharesMinted = errors.New("no leverage token transfer to recipient found in receipt")

// transferTopic is keccak256("Transfer(address,address,uint256)").
var transferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// ParseMintedShares extracts the share amount minted to recipient from the
// receipt's leverage token Transfer logs.
func ParseMintedShares(receipt *gethtypes.Receipt, leverageToken, recipient common.Address) (types.MintedShares, error) {
	if receipt == nil {
		return types.MintedShares{}, errors.New("receipt cannot be nil")
	}

	recipientTopic := common.BytesToHash(recipient.Bytes())
	zeroTopic := common.BytesToHash(common.Address{}.Bytes())

	total := new(big.Int)
	found := false

	for _, log := range receipt.Logs {
		if log.Address != leverageToken || len(log.Topics) != 3 {
			continue
		}
		if log.Topics[0] != transferTopic || log.Topics[2] != recipientTopic {
			continue
		}

		amount := new(big.Int).SetBytes(log.Data)

		// Mint-from-zero is the definitive answer.
		if log.Topics[1] == zeroTopic {
			return types.MintedShares{Amount: amount, Heuristic: false}, nil
		}

		total.Add(total, amount)
		found = true
	}

	if !found {
		return types.MintedShares{}, ErrNoSharesMinted
	}

	execLogger.Warn().
		Str("token", leverageToken.Hex()).
		Str("recipient", recipient.Hex()).
		Str("summedAmount", total.String()).
		Msg("Mint-from-zero transfer not found, share amount is a heuristic sum of incoming transfers")

	return types.MintedShares{Amount: total, Heuristic: true}, nil
}
