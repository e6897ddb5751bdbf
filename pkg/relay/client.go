package relay

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	json "github.com/goccy/go-json"
	"go.uber.org/zap"
)

// Client talks to a Flashbots-compatible private bundle relay over signed
// JSON-RPC.
type Client struct {
	endpoint   string
	signingKey *ecdsa.PrivateKey
	httpClient *http.Client
	logger     *zap.Logger

	// The executor calls the relay from concurrent dispatches.
	reqID atomic.Uint64
}

// Config holds relay client configuration.
type Config struct {
	Endpoint   string
	SigningKey *ecdsa.PrivateKey
	Timeout    time.Duration
	Logger     *zap.Logger
}

// BundleSimResult is the relay's verdict on a simulated bundle.
type BundleSimResult struct {
	Success      bool
	RevertedAt   int // index of the first reverting transaction, -1 if none
	RevertReason string
	CoinbaseDiff *big.Int // wei paid to the builder, net profit proxy
	GasUsed      uint64
}

// BundleStats reports inclusion status for a submitted bundle.
type BundleStats struct {
	Included      bool
	IncludedBlock uint64
}

// NewClient creates a relay client.
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if cfg.Endpoint == "" {
		return nil, errors.New("endpoint cannot be empty")
	}
	if cfg.SigningKey == nil {
		return nil, errors.New("signing key cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Client{
		endpoint:   cfg.Endpoint,
		signingKey: cfg.SigningKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     cfg.Logger,
	}, nil
}

type sendBundleParams struct {
	Txs          []string `json:"txs"`
	BlockNumber  string   `json:"blockNumber"`
	MinTimestamp uint64   `json:"minTimestamp,omitempty"`
	MaxTimestamp uint64   `json:"maxTimestamp,omitempty"`
}

type callBundleParams struct {
	Txs              []string `json:"txs"`
	BlockNumber      string   `json:"blockNumber"`
	StateBlockNumber string   `json:"stateBlockNumber"`
}

type bundleStatsParams struct {
	BundleHash  string `json:"bundleHash"`
	BlockNumber string `json:"blockNumber"`
}

type sendBundleResult struct {
	BundleHash string `json:"bundleHash"`
}

type callBundleResult struct {
	Results []struct {
		Error   string `json:"error"`
		Revert  string `json:"revert"`
		GasUsed uint64 `json:"gasUsed"`
	} `json:"results"`
	CoinbaseDiff     string `json:"coinbaseDiff"`
	TotalGasUsed     uint64 `json:"totalGasUsed"`
	StateBlockNumber uint64 `json:"stateBlockNumber"`
}

type bundleStatsResult struct {
	IsSimulated    bool   `json:"isSimulated"`
	IsHighPriority bool   `json:"isHighPriority"`
	IncludedBlock  uint64 `json:"includedBlock"`
}

// SendBundle submits an ordered atomic transaction list targeting one block.
func (c *Client) SendBundle(
	ctx context.Context,
	txs []*gethtypes.Transaction,
	targetBlock uint64,
	minTimestamp, maxTimestamp uint64,
) (string, error) {
	encoded, err := encodeTxs(txs)
	if err != nil {
		return "", err
	}

	params := sendBundleParams{
		Txs:          encoded,
		BlockNumber:  hexutil.EncodeUint64(targetBlock),
		MinTimestamp: minTimestamp,
		MaxTimestamp: maxTimestamp,
	}

	var result sendBundleResult
	err = c.call(ctx, "eth_sendBundle", []interface{}{params}, &result)
	if err != nil {
		BundleSubmissionsTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("send bundle: %w", err)
	}

	BundleSubmissionsTotal.WithLabelValues("submitted").Inc()

	c.logger.Info("bundle-submitted",
		zap.String("bundle_hash", result.BundleHash),
		zap.Uint64("target_block", targetBlock),
		zap.Int("tx_count", len(txs)))

	return result.BundleHash, nil
}

// SimulateBundle runs the bundle against the given state block and reports
// the first revert, if any.
func (c *Client) SimulateBundle(
	ctx context.Context,
	txs []*gethtypes.Transaction,
	blockNumber uint64,
) (*BundleSimResult, error) {
	encoded, err := encodeTxs(txs)
	if err != nil {
		return nil, err
	}

	params := callBundleParams{
		Txs:              encoded,
		BlockNumber:      hexutil.EncodeUint64(blockNumber + 1),
		StateBlockNumber: "latest",
	}

	var result callBundleResult
	err = c.call(ctx, "eth_callBundle", []interface{}{params}, &result)
	if err != nil {
		return nil, fmt.Errorf("simulate bundle: %w", err)
	}

	sim := &BundleSimResult{
		Success:      true,
		RevertedAt:   -1,
		GasUsed:      result.TotalGasUsed,
		CoinbaseDiff: parseDecimalWei(result.CoinbaseDiff),
	}

	for i, txResult := range result.Results {
		if txResult.Error != "" || txResult.Revert != "" {
			sim.Success = false
			sim.RevertedAt = i
			sim.RevertReason = txResult.Error
			if txResult.Revert != "" {
				sim.RevertReason = txResult.Revert
			}
			break
		}
	}

	return sim, nil
}

// GetBundleStats reports whether a submitted bundle landed in its target block.
func (c *Client) GetBundleStats(ctx context.Context, bundleHash string, targetBlock uint64) (*BundleStats, error) {
	params := bundleStatsParams{
		BundleHash:  bundleHash,
		BlockNumber: hexutil.EncodeUint64(targetBlock),
	}

	var result bundleStatsResult
	err := c.call(ctx, "flashbots_getBundleStats", []interface{}{params}, &result)
	if err != nil {
		return nil, fmt.Errorf("bundle stats: %w", err)
	}

	return &BundleStats{
		Included:      result.IncludedBlock != 0,
		IncludedBlock: result.IncludedBlock,
	}, nil
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// call performs one signed JSON-RPC request against the relay.
func (c *Client) call(ctx context.Context, method string, params []interface{}, out interface{}) error {
	start := time.Now()
	defer func() {
		RequestDurationSeconds.WithLabelValues(method).Observe(time.Since(start).Seconds())
	}()

	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.reqID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	signature, err := signPayload(c.signingKey, body)
	if err != nil {
		return fmt.Errorf("sign payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Flashbots-Signature", signature)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("relay error: status %d", resp.StatusCode)
	}

	var rpcResp rpcResponse
	err = json.NewDecoder(resp.Body).Decode(&rpcResp)
	if err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	if rpcResp.Error != nil {
		return fmt.Errorf("relay rejected %s: %s (%d)", method, rpcResp.Error.Message, rpcResp.Error.Code)
	}

	if out != nil {
		err = json.Unmarshal(rpcResp.Result, out)
		if err != nil {
			return fmt.Errorf("decode result: %w", err)
		}
	}

	return nil
}

func encodeTxs(txs []*gethtypes.Transaction) ([]string, error) {
	encoded := make([]string, 0, len(txs))
	for _, tx := range txs {
		raw, err := tx.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("encode transaction %s: %w", tx.Hash().Hex(), err)
		}
		encoded = append(encoded, hexutil.Encode(raw))
	}
	return encoded, nil
}

// parseDecimalWei parses the relay's decimal wei strings; malformed input
// yields zero rather than an error since the field is informational.
func parseDecimalWei(s string) *big.Int {
	if s == "" {
		return big.NewInt(0)
	}

	value, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return big.NewInt(0)
	}

	return value
}
