/*

This file contains the JSON-RPC client for the execution node and the bundle
relay. All chain access goes through the generic call helper; the typed
methods on Client only build parameters and decode hex quantities.

Transactions are signed by the node account (eth_sendTransaction with the
configured searcher address), so no key material lives in this process.

*/

package chain

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"

	"github.com/mevforge/searcher/internal/logger"
	"github.com/mevforge/searcher/internal/types"
)

const (
	rpcTimeout = 20 * time.Second

	// Uniswap V2 selectors.
	selGetReserves = "0x0902f1ac"
	selAllowance   = "0xdd62ed3e"
	selBalanceOf   = "0x70a08231"
)

var (
	ErrNotMined    = fmt.Errorf("transaction not mined")
	ErrUnknownPair = fmt.Errorf("unknown pair")
)

var (
	readLogger   = logger.GetForComponent("chain_reader")
	submitLogger = logger.GetForComponent("chain_submitter")
)

// JSONRPCRequest defines the structure of a JSON-RPC request.
type JSONRPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

// JSONRPCResponse defines the structure of a JSON-RPC response.
type JSONRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *JSONRPCError   `json:"error,omitempty"`
}

// JSONRPCError defines the structure of a JSON-RPC error.
type JSONRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

// PairInfo maps a pair identifier onto its on-chain deployment.
type PairInfo struct {
	Address string
	TokenIn string // token the pair's reserve0 belongs to when InIsToken0
	TokenOut string
	FeeBps   uint16
	// InIsToken0 orients getReserves output onto (ReserveIn, ReserveOut).
	InIsToken0 bool
}

// Client talks to the execution node and the bundle relay over JSON-RPC.
// It implements Reader and Submitter.
type Client struct {
	nodeURL  string
	relayURL string
	from     string
	router   string

	httpClient http.Client

	mu      sync.RWMutex
	pairs   map[types.PairID]PairInfo
	tokens  map[string]string // symbol -> contract address
	bundles map[string][]string // bundle hash -> tx hashes
	nextID  int
}

// NewClient builds a client for the given endpoints. from is the searcher
// account held by the node; router is the swap router granted approvals.
func NewClient(nodeURL, relayURL, from, router string) *Client {
	return &Client{
		nodeURL:    nodeURL,
		relayURL:   relayURL,
		from:       from,
		router:     router,
		httpClient: http.Client{Timeout: rpcTimeout},
		pairs:      make(map[types.PairID]PairInfo),
		tokens:     make(map[string]string),
		bundles:    make(map[string][]string),
		nextID:     1,
	}
}

// RegisterToken maps a token symbol onto its contract address.
func (c *Client) RegisterToken(symbol, address string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens[symbol] = address
}

// resolveToken returns the contract address for a symbol.
func (c *Client) resolveToken(symbol string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	addr, ok := c.tokens[symbol]
	if !ok {
		return "", fmt.Errorf("unknown token %s", symbol)
	}
	return addr, nil
}

// RegisterPair teaches the client where a pair lives on chain. Reserve
// queries for unregistered pairs fail with ErrUnknownPair.
func (c *Client) RegisterPair(id types.PairID, info PairInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pairs[id] = info
}

// --- Reader ---

func (c *Client) GetPoolReserves(ctx context.Context, pairID types.PairID) (types.Pool, error) {
	c.mu.RLock()
	info, ok := c.pairs[pairID]
	c.mu.RUnlock()
	if !ok {
		return types.Pool{}, fmt.Errorf("%w: %s", ErrUnknownPair, pairID)
	}

	raw, err := c.call(ctx, c.nodeURL, "eth_call", readLogger,
		map[string]string{"to": info.Address, "data": selGetReserves}, "latest")
	if err != nil {
		return types.Pool{}, fmt.Errorf("failed to query reserves for %s: %w", pairID, err)
	}

	var hexResult string
	if err := json.Unmarshal(raw, &hexResult); err != nil {
		return types.Pool{}, fmt.Errorf("failed to decode reserves for %s: %w", pairID, err)
	}
	reserve0, reserve1, err := parseReserves(hexResult)
	if err != nil {
		return types.Pool{}, fmt.Errorf("failed to parse reserves for %s: %w", pairID, err)
	}

	reserveIn, reserveOut := reserve0, reserve1
	if !info.InIsToken0 {
		reserveIn, reserveOut = reserve1, reserve0
	}

	pool := types.Pool{
		PairID:     pairID,
		TokenIn:    info.TokenIn,
		TokenOut:   info.TokenOut,
		ReserveIn:  reserveIn,
		ReserveOut: reserveOut,
		FeeBps:     info.FeeBps,
		LastUpdate: time.Now(),
	}
	if err := pool.Validate(); err != nil {
		return types.Pool{}, fmt.Errorf("pool %s failed validation: %w", pairID, err)
	}
	return pool, nil
}

func (c *Client) GasPrice(ctx context.Context) (sdkmath.Int, error) {
	raw, err := c.call(ctx, c.nodeURL, "eth_gasPrice", readLogger)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("failed to query gas price: %w", err)
	}
	return decodeHexInt(raw)
}

func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	raw, err := c.call(ctx, c.nodeURL, "eth_blockNumber", readLogger)
	if err != nil {
		return 0, fmt.Errorf("failed to query block number: %w", err)
	}
	return decodeHexUint64(raw)
}

func (c *Client) ChainID(ctx context.Context) (uint64, error) {
	raw, err := c.call(ctx, c.nodeURL, "eth_chainId", readLogger)
	if err != nil {
		return 0, fmt.Errorf("failed to query chain id: %w", err)
	}
	return decodeHexUint64(raw)
}

func (c *Client) Allowance(ctx context.Context, token string) (sdkmath.Int, error) {
	addr, err := c.resolveToken(token)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	data := selAllowance + padAddress(c.from) + padAddress(c.router)
	raw, err := c.call(ctx, c.nodeURL, "eth_call", readLogger,
		map[string]string{"to": addr, "data": data}, "latest")
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("failed to query allowance for %s: %w", token, err)
	}
	return decodeHexInt(raw)
}

func (c *Client) TokenBalance(ctx context.Context, token string) (sdkmath.Int, error) {
	addr, err := c.resolveToken(token)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	data := selBalanceOf + padAddress(c.from)
	raw, err := c.call(ctx, c.nodeURL, "eth_call", readLogger,
		map[string]string{"to": addr, "data": data}, "latest")
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("failed to query balance for %s: %w", token, err)
	}
	return decodeHexInt(raw)
}

func (c *Client) TransactionReceipt(ctx context.Context, txHash string) (*Receipt, error) {
	raw, err := c.call(ctx, c.nodeURL, "eth_getTransactionReceipt", readLogger, txHash)
	if err != nil {
		return nil, fmt.Errorf("failed to query receipt for %s: %w", txHash, err)
	}
	if bytes.Equal(raw, []byte("null")) {
		return nil, fmt.Errorf("%w: %s", ErrNotMined, txHash)
	}

	var wire struct {
		BlockNumber string `json:"blockNumber"`
		GasUsed     string `json:"gasUsed"`
		Status      string `json:"status"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("failed to decode receipt for %s: %w", txHash, err)
	}
	block, err := parseHexUint64(wire.BlockNumber)
	if err != nil {
		return nil, fmt.Errorf("bad block number in receipt for %s: %w", txHash, err)
	}
	gasUsed, err := parseHexUint64(wire.GasUsed)
	if err != nil {
		return nil, fmt.Errorf("bad gas used in receipt for %s: %w", txHash, err)
	}

	return &Receipt{
		TxHash:      txHash,
		BlockNumber: block,
		GasUsed:     gasUsed,
		Success:     wire.Status == "0x1",
	}, nil
}

// --- Submitter ---

func (c *Client) SignAndSend(ctx context.Context, payload []byte, gasPrice sdkmath.Int, gasLimit uint64) (string, error) {
	tx := map[string]string{
		"from":     c.from,
		"to":       c.router,
		"gas":      encodeHexUint64(gasLimit),
		"gasPrice": "0x" + gasPrice.BigInt().Text(16),
		"data":     "0x" + hex.EncodeToString(payload),
	}
	raw, err := c.call(ctx, c.nodeURL, "eth_sendTransaction", submitLogger, tx)
	if err != nil {
		return "", fmt.Errorf("failed to send transaction: %w", err)
	}
	var txHash string
	if err := json.Unmarshal(raw, &txHash); err != nil {
		return "", fmt.Errorf("failed to decode transaction hash: %w", err)
	}
	submitLogger.Info().
		Str("txHash", txHash).
		Uint64("gasLimit", gasLimit).
		Str("gasPrice", gasPrice.String()).
		Msg("Transaction submitted")
	return txHash, nil
}

func (c *Client) Approve(ctx context.Context, token string, amount sdkmath.Int) (string, error) {
	addr, err := c.resolveToken(token)
	if err != nil {
		return "", err
	}
	// approve(spender, amount)
	data := "0x095ea7b3" + padAddress(c.router) + padInt(amount)
	tx := map[string]string{
		"from": c.from,
		"to":   addr,
		"data": data,
	}
	raw, err := c.call(ctx, c.nodeURL, "eth_sendTransaction", submitLogger, tx)
	if err != nil {
		return "", fmt.Errorf("failed to send approval for %s: %w", token, err)
	}
	var txHash string
	if err := json.Unmarshal(raw, &txHash); err != nil {
		return "", fmt.Errorf("failed to decode approval hash: %w", err)
	}
	submitLogger.Info().
		Str("token", token).
		Str("amount", amount.String()).
		Str("txHash", txHash).
		Msg("Approval submitted")
	return txHash, nil
}

func (c *Client) SubmitBundle(ctx context.Context, txs [][]byte, targetBlock uint64) (string, error) {
	encoded := make([]string, len(txs))
	for i, tx := range txs {
		encoded[i] = "0x" + hex.EncodeToString(tx)
	}
	params := map[string]any{
		"txs":         encoded,
		"blockNumber": encodeHexUint64(targetBlock),
	}
	raw, err := c.call(ctx, c.relayURL, "eth_sendBundle", submitLogger, params)
	if err != nil {
		return "", fmt.Errorf("failed to submit bundle for block %d: %w", targetBlock, err)
	}

	var result struct {
		BundleHash string   `json:"bundleHash"`
		TxHashes   []string `json:"txHashes"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", fmt.Errorf("failed to decode bundle response: %w", err)
	}

	c.mu.Lock()
	c.bundles[result.BundleHash] = result.TxHashes
	c.mu.Unlock()

	submitLogger.Info().
		Str("bundleHash", result.BundleHash).
		Int("txCount", len(txs)).
		Uint64("targetBlock", targetBlock).
		Msg("Bundle submitted")
	return result.BundleHash, nil
}

func (c *Client) BundleStatus(ctx context.Context, bundleHash string, targetBlock uint64) (BundleInclusion, error) {
	c.mu.RLock()
	txHashes := c.bundles[bundleHash]
	c.mu.RUnlock()
	if len(txHashes) == 0 {
		return BundleInclusion{}, fmt.Errorf("unknown bundle %s", bundleHash)
	}

	raw, err := c.call(ctx, c.nodeURL, "eth_getBlockByNumber", readLogger,
		encodeHexUint64(targetBlock), false)
	if err != nil {
		return BundleInclusion{}, fmt.Errorf("failed to query block %d: %w", targetBlock, err)
	}
	if bytes.Equal(raw, []byte("null")) {
		// Target block not produced yet.
		return BundleInclusion{BlockNumber: targetBlock}, nil
	}

	var block struct {
		Transactions []string `json:"transactions"`
	}
	if err := json.Unmarshal(raw, &block); err != nil {
		return BundleInclusion{}, fmt.Errorf("failed to decode block %d: %w", targetBlock, err)
	}

	mined := make(map[string]bool, len(block.Transactions))
	for _, h := range block.Transactions {
		mined[strings.ToLower(h)] = true
	}
	for _, h := range txHashes {
		if !mined[strings.ToLower(h)] {
			return BundleInclusion{BlockNumber: targetBlock}, nil
		}
	}
	return BundleInclusion{Included: true, BlockNumber: targetBlock, TxHashes: txHashes}, nil
}

// --- Helper Functions ---

// call executes a JSON-RPC request against the given endpoint and returns
// the raw result.
func (c *Client) call(ctx context.Context, endpoint, method string, log zerolog.Logger, params ...any) (json.RawMessage, error) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.mu.Unlock()

	if params == nil {
		params = []any{}
	}
	jsonRPCReq := JSONRPCRequest{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  params,
	}
	jsonData, err := json.Marshal(jsonRPCReq)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal JSON-RPC request")
		return nil, fmt.Errorf("failed to marshal JSON-RPC request: %w", err)
	}

	log.Debug().
		Str("endpoint", endpoint).
		Str("method", method).
		Msg("Executing RPC call")

	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		log.Error().Err(err).Msg("Failed to create HTTP request")
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Error().Err(err).Str("method", method).Msg("Failed to send HTTP request")
		return nil, fmt.Errorf("failed to send HTTP request: %w", err)
	}
	defer resp.Body.Close()

	respBodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read response body")
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var jsonRPCResp JSONRPCResponse
	if err := json.Unmarshal(respBodyBytes, &jsonRPCResp); err != nil {
		log.Error().Err(err).Str("body", string(respBodyBytes)).Msg("Failed to unmarshal JSON-RPC response")
		return nil, fmt.Errorf("failed to unmarshal JSON-RPC response: %w", err)
	}

	if jsonRPCResp.Error != nil {
		log.Error().
			Int("code", jsonRPCResp.Error.Code).
			Str("message", jsonRPCResp.Error.Message).
			Str("method", method).
			Msg("RPC error received")
		return nil, fmt.Errorf("RPC error: %s (code %d)", jsonRPCResp.Error.Message, jsonRPCResp.Error.Code)
	}

	return jsonRPCResp.Result, nil
}

// parseReserves decodes the three-word getReserves return value.
func parseReserves(hexResult string) (sdkmath.Int, sdkmath.Int, error) {
	zero := sdkmath.ZeroInt()
	data := strings.TrimPrefix(hexResult, "0x")
	if len(data) < 128 {
		return zero, zero, fmt.Errorf("getReserves result too short: %d hex chars", len(data))
	}
	r0, ok := new(big.Int).SetString(data[0:64], 16)
	if !ok {
		return zero, zero, fmt.Errorf("bad reserve0 word: %s", data[0:64])
	}
	r1, ok := new(big.Int).SetString(data[64:128], 16)
	if !ok {
		return zero, zero, fmt.Errorf("bad reserve1 word: %s", data[64:128])
	}
	return sdkmath.NewIntFromBigInt(r0), sdkmath.NewIntFromBigInt(r1), nil
}

func decodeHexInt(raw json.RawMessage) (sdkmath.Int, error) {
	var hexVal string
	if err := json.Unmarshal(raw, &hexVal); err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("failed to decode hex quantity: %w", err)
	}
	v, ok := new(big.Int).SetString(strings.TrimPrefix(hexVal, "0x"), 16)
	if !ok {
		return sdkmath.ZeroInt(), fmt.Errorf("bad hex quantity: %s", hexVal)
	}
	return sdkmath.NewIntFromBigInt(v), nil
}

func decodeHexUint64(raw json.RawMessage) (uint64, error) {
	var hexVal string
	if err := json.Unmarshal(raw, &hexVal); err != nil {
		return 0, fmt.Errorf("failed to decode hex quantity: %w", err)
	}
	return parseHexUint64(hexVal)
}

func parseHexUint64(hexVal string) (uint64, error) {
	v, ok := new(big.Int).SetString(strings.TrimPrefix(hexVal, "0x"), 16)
	if !ok || !v.IsUint64() {
		return 0, fmt.Errorf("bad hex quantity: %s", hexVal)
	}
	return v.Uint64(), nil
}

func encodeHexUint64(v uint64) string {
	return fmt.Sprintf("0x%x", v)
}

// padAddress left-pads a 20-byte address to a 32-byte ABI word.
func padAddress(addr string) string {
	a := strings.ToLower(strings.TrimPrefix(addr, "0x"))
	return strings.Repeat("0", 64-len(a)) + a
}

// padInt left-pads an integer to a 32-byte ABI word.
func padInt(v sdkmath.Int) string {
	h := v.BigInt().Text(16)
	return strings.Repeat("0", 64-len(h)) + h
}
