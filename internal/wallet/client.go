package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/levered-fi/ltm/internal/config"
	"github.com/levered-fi/ltm/internal/logger"
)

// Error definitions for zero-tolerance error handling
var (
	ErrInvalidConfig       = errors.New("invalid configuration")
	ErrKeyInvalid          = errors.New("signing key is invalid")
	ErrClientInvalid       = errors.New("chain client is invalid")
	ErrNonceFetchFailed    = errors.New("nonce retrieval failed")
	ErrFeeFetchFailed      = errors.New("fee suggestion failed")
	ErrGasEstimationFailed = errors.New("gas estimation failed")
	ErrTxSignFailed        = errors.New("transaction signing failed")
	ErrTxSendFailed        = errors.New("transaction send failed")
	ErrReceiptTimeout      = errors.New("transaction receipt not available")
)

var walletLogger = logger.GetForComponent("wallet_client")

// gasLimitBufferBps pads the estimate so boundary-exact transactions do not
// run out of gas when state shifts between estimation and inclusion.
const gasLimitBufferBps = 2000

// SigningClient signs and sends EIP-1559 transactions from the configured
// executor key. One instance serializes nonce assignment across goroutines.
type SigningClient struct {
	client  *ethclient.Client
	key     *ecdsa.PrivateKey
	address common.Address
	chainID *big.Int
	signer  gethtypes.Signer

	nonceMu sync.Mutex
}

// NewSigningClient creates a signing client from the configured executor key.
func NewSigningClient(client *ethclient.Client) (*SigningClient, error) {
	if client == nil {
		return nil, errors.Join(ErrClientInvalid, errors.New("ethclient cannot be nil"))
	}
	if config.ExecutorKeyHex == "" {
		return nil, errors.Join(ErrInvalidConfig, errors.New("executor key is not configured"))
	}
	if config.ChainID == 0 {
		return nil, errors.Join(ErrInvalidConfig, errors.New("chain ID cannot be zero"))
	}

	key, err := crypto.HexToECDSA(config.ExecutorKeyHex)
	if err != nil {
		return nil, errors.Join(ErrKeyInvalid, fmt.Errorf("failed to parse executor key: %w", err))
	}

	chainID := new(big.Int).SetUint64(config.ChainID)
	address := crypto.PubkeyToAddress(key.PublicKey)

	sc := &SigningClient{
		client:  client,
		key:     key,
		address: address,
		chainID: chainID,
		signer:  gethtypes.LatestSignerForChainID(chainID),
	}

	walletLogger.Info().
		Str("address", address.Hex()).
		Uint64("chainID", config.ChainID).
		Msg("Signing client initialized")

	return sc, nil
}

// Address returns the executor address derived from the signing key.
func (s *SigningClient) Address() common.Address {
	return s.address
}

// SimulateCall executes the call as an eth_call from the executor address at
// the latest block. A revert surfaces as an error carrying the node's reason
// string when one is available.
func (s *SigningClient) SimulateCall(ctx context.Context, to common.Address, data []byte, value *big.Int) ([]byte, error) {
	msg := ethereum.CallMsg{
		From:  s.address,
		To:    &to,
		Data:  data,
		Value: value,
	}
	result, err := s.client.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("simulation call to %s failed: %w", to.Hex(), err)
	}
	return result, nil
}

// EstimateGas estimates gas for the call and pads the result.
func (s *SigningClient) EstimateGas(ctx context.Context, to common.Address, data []byte, value *big.Int) (uint64, error) {
	msg := ethereum.CallMsg{
		From:  s.address,
		To:    &to,
		Data:  data,
		Value: value,
	}
	estimate, err := s.client.EstimateGas(ctx, msg)
	if err != nil {
		return 0, errors.Join(ErrGasEstimationFailed, err)
	}
	padded := estimate + estimate*gasLimitBufferBps/10000

	walletLogger.Debug().
		Uint64("estimate", estimate).
		Uint64("padded", padded).
		Str("to", to.Hex()).
		Msg("Gas estimated")

	return padded, nil
}

// SendTransaction builds, signs, and broadcasts one EIP-1559 transaction.
// Nonce assignment is serialized so concurrent sends cannot collide.
func (s *SigningClient) SendTransaction(ctx context.Context, to common.Address, data []byte, value *big.Int, gasLimit uint64) (*gethtypes.Transaction, error) {
	if gasLimit == 0 {
		return nil, errors.Join(ErrGasEstimationFailed, errors.New("gas limit cannot be zero"))
	}
	if value == nil {
		value = big.NewInt(0)
	}

	s.nonceMu.Lock()
	defer s.nonceMu.Unlock()

	nonce, err := s.client.PendingNonceAt(ctx, s.address)
	if err != nil {
		return nil, errors.Join(ErrNonceFetchFailed, err)
	}

	tipCap, feeCap, err := s.suggestFees(ctx)
	if err != nil {
		return nil, err
	}

	tx := gethtypes.NewTx(&gethtypes.DynamicFeeTx{
		ChainID:   s.chainID,
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       gasLimit,
		To:        &to,
		Value:     value,
		Data:      data,
	})

	signed, err := gethtypes.SignTx(tx, s.signer, s.key)
	if err != nil {
		return nil, errors.Join(ErrTxSignFailed, err)
	}

	if err := s.client.SendTransaction(ctx, signed); err != nil {
		return nil, errors.Join(ErrTxSendFailed, fmt.Errorf("send to %s: %w", to.Hex(), err))
	}

	walletLogger.Info().
		Str("txHash", signed.Hash().Hex()).
		Uint64("nonce", nonce).
		Uint64("gasLimit", gasLimit).
		Str("to", to.Hex()).
		Msg("Transaction sent")

	return signed, nil
}

// WaitForReceipt polls until the transaction is mined or the context expires.
func (s *SigningClient) WaitForReceipt(ctx context.Context, txHash common.Hash) (*gethtypes.Receipt, error) {
	for {
		receipt, err := s.client.TransactionReceipt(ctx, txHash)
		if err == nil && receipt != nil {
			walletLogger.Debug().
				Str("txHash", txHash.Hex()).
				Uint64("blockNumber", receipt.BlockNumber.Uint64()).
				Uint64("status", receipt.Status).
				Msg("Receipt retrieved")
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("receipt query for %s failed: %w", txHash.Hex(), err)
		}

		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrReceiptTimeout, ctx.Err())
		case <-receiptPollDelay():
		}
	}
}

func receiptPollDelay() <-chan time.Time {
	return time.After(2 * time.Second)
}

// suggestFees derives the EIP-1559 fee pair: suggested tip, fee cap at twice
// the current base fee plus the tip.
func (s *SigningClient) suggestFees(ctx context.Context) (tipCap, feeCap *big.Int, err error) {
	tipCap, err = s.client.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, nil, errors.Join(ErrFeeFetchFailed, fmt.Errorf("tip cap: %w", err))
	}

	header, err := s.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, nil, errors.Join(ErrFeeFetchFailed, fmt.Errorf("latest header: %w", err))
	}
	if header.BaseFee == nil {
		return nil, nil, errors.Join(ErrFeeFetchFailed, errors.New("chain does not report a base fee"))
	}

	feeCap = new(big.Int).Mul(header.BaseFee, big.NewInt(2))
	feeCap.Add(feeCap, tipCap)
	return tipCap, feeCap, nil
}
