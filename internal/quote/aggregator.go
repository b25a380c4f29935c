/*
This file implements the aggregator-backed quote adapter. It speaks to an
off-chain swap aggregator over HTTP: the request carries the token pair, the
fixed amount and the slippage tolerance, and the response carries the
best-effort output, an optional guaranteed minimum, the approval target and
the ready-to-send transaction request.

The aggregator API is exact-in only. Exact-out requests are rejected with
ErrExactOutUnsupported so the planners fall back to bounded exact-in
refinement.
*/

package quote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/levered-fi/ltm/internal/logger"
	"github.com/levered-fi/ltm/internal/types"
)

const (
	aggregatorMaxRetries     = 2
	aggregatorTimeoutSeconds = 15
)

// aggregatorResponse mirrors the aggregator's quote endpoint payload.
type aggregatorResponse struct {
	ToAmount           string `json:"toAmount"`
	ToAmountMin        string `json:"toAmountMin"`
	ApprovalAddress    string `json:"approvalAddress"`
	TransactionRequest struct {
		To    string `json:"to"`
		Data  string `json:"data"`
		Value string `json:"value"`
	} `json:"transactionRequest"`
}

// AggregatorAdapter quotes swaps through an off-chain aggregator API.
type AggregatorAdapter struct {
	baseURL string
	client  *http.Client
}

// NewAggregatorAdapter creates an aggregator adapter against the given base URL.
func NewAggregatorAdapter(baseURL string) (*AggregatorAdapter, error) {
	if baseURL == "" {
		return nil, errors.Join(ErrInvalidRequest, errors.New("aggregator base URL cannot be empty"))
	}
	return &AggregatorAdapter{
		baseURL: baseURL,
		client:  &http.Client{Timeout: aggregatorTimeoutSeconds * time.Second},
	}, nil
}

// Name implements Adapter.
func (a *AggregatorAdapter) Name() string { return "aggregator" }

// ID implements Adapter.
func (a *AggregatorAdapter) ID() string { return "aggregator-v1" }

// Quote implements Adapter.
func (a *AggregatorAdapter) Quote(ctx context.Context, req Request) (types.Quote, error) {
	quoteLogger := logger.GetForComponent("aggregator_adapter")

	if err := validateRequest(req); err != nil {
		return types.Quote{}, err
	}
	if req.Intent == IntentExactOut {
		return types.Quote{}, ErrExactOutUnsupported
	}

	endpoint, err := url.Parse(a.baseURL + "/quote")
	if err != nil {
		return types.Quote{}, errors.Join(ErrQuoteUnavailable, fmt.Errorf("invalid aggregator URL: %w", err))
	}
	query := endpoint.Query()
	query.Set("fromToken", req.InToken.Address.Hex())
	query.Set("toToken", req.OutToken.Address.Hex())
	query.Set("fromAmount", req.AmountIn.String())
	query.Set("slippageBps", fmt.Sprintf("%d", req.SlippageBps))
	query.Set("fromAddress", req.From.Hex())
	endpoint.RawQuery = query.Encode()

	var lastErr error
	for attempt := 0; attempt <= aggregatorMaxRetries; attempt++ {
		if attempt > 0 {
			quoteLogger.Warn().
				Int("attempt", attempt).
				Err(lastErr).
				Msg("Retrying aggregator quote request")
		}

		body, err := a.fetch(ctx, endpoint.String())
		if err != nil {
			lastErr = err
			continue
		}

		parsed, err := parseAggregatorResponse(body)
		if err != nil {
			lastErr = err
			continue
		}

		quoteLogger.Debug().
			Str("fromToken", req.InToken.Address.Hex()).
			Str("toToken", req.OutToken.Address.Hex()).
			Str("amountIn", req.AmountIn.String()).
			Str("out", parsed.Out.String()).
			Msg("Aggregator quote received")

		return parsed, nil
	}

	return types.Quote{}, errors.Join(ErrQuoteUnavailable, lastErr)
}

// fetch performs one HTTP round trip and returns the raw body.
func (a *AggregatorAdapter) fetch(ctx context.Context, endpoint string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("aggregator returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, nil
}

// parseAggregatorResponse validates and converts the wire payload into a Quote.
func parseAggregatorResponse(body []byte) (types.Quote, error) {
	var raw aggregatorResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return types.Quote{}, fmt.Errorf("failed to decode aggregator response: %w", err)
	}

	out, ok := new(big.Int).SetString(raw.ToAmount, 10)
	if !ok || out.Sign() < 0 {
		return types.Quote{}, fmt.Errorf("aggregator returned invalid toAmount: %q", raw.ToAmount)
	}

	var minOut *big.Int
	if raw.ToAmountMin != "" {
		minOut, ok = new(big.Int).SetString(raw.ToAmountMin, 10)
		if !ok || minOut.Sign() < 0 {
			return types.Quote{}, fmt.Errorf("aggregator returned invalid toAmountMin: %q", raw.ToAmountMin)
		}
		if minOut.Cmp(out) > 0 {
			return types.Quote{}, errors.New("aggregator returned toAmountMin above toAmount")
		}
	}

	if !common.IsHexAddress(raw.TransactionRequest.To) {
		return types.Quote{}, fmt.Errorf("aggregator returned invalid swap target: %q", raw.TransactionRequest.To)
	}
	swapTarget := common.HexToAddress(raw.TransactionRequest.To)

	calldata, err := hexutil.Decode(raw.TransactionRequest.Data)
	if err != nil {
		return types.Quote{}, fmt.Errorf("aggregator returned invalid calldata: %w", err)
	}
	if len(calldata) == 0 {
		return types.Quote{}, errors.New("aggregator returned empty calldata")
	}

	// An empty approval address means the swap consumes native value instead
	// of an ERC-20 allowance.
	requiresNative := raw.ApprovalAddress == ""
	var approvalTarget common.Address
	if !requiresNative {
		if !common.IsHexAddress(raw.ApprovalAddress) {
			return types.Quote{}, fmt.Errorf("aggregator returned invalid approval address: %q", raw.ApprovalAddress)
		}
		approvalTarget = common.HexToAddress(raw.ApprovalAddress)
	}

	return types.Quote{
		Out:            out,
		MinOut:         minOut,
		ApprovalTarget: approvalTarget,
		SwapTarget:     swapTarget,
		Calldata:       calldata,
		RequiresNative: requiresNative,
	}, nil
}
