// Package etherscan is the Etherscan API client (Ethereum network stats,
// blocks, transactions, addresses).
package etherscan

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/tickerhub/internal/domain"
	"github.com/aristath/tickerhub/internal/fetch"
)

const (
	requestTimeout = 10 * time.Second

	// Ethereum block time is effectively fixed post-merge.
	avgBlockTimeSeconds = 12.1

	// Static block reward shown by the explorer surface.
	blockReward = "2"

	// Fallback daily transaction count when the stats endpoint is
	// unavailable on the configured API tier.
	fallbackDailyTxCount = 1_100_000
)

// Client is an Etherscan API client.
type Client struct {
	baseURL string
	apiKey  string
	fetcher *fetch.Fetcher
	log     zerolog.Logger
}

// NewClient creates a new Etherscan client.
func NewClient(baseURL, apiKey string, fetcher *fetch.Fetcher, log zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		fetcher: fetcher,
		log:     log.With().Str("client", "etherscan").Logger(),
	}
}

// proxyResponse wraps the JSON-RPC proxy module.
type proxyResponse struct {
	Result json.RawMessage `json:"result"`
}

// accountResponse wraps the account/stats/gastracker modules.
type accountResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// proxyBlock is the eth_getBlockByNumber shape; all quantities are hex.
type proxyBlock struct {
	Number       string    `json:"number"`
	Hash         string    `json:"hash"`
	Timestamp    string    `json:"timestamp"`
	Miner        string    `json:"miner"`
	Size         string    `json:"size"`
	GasUsed      string    `json:"gasUsed"`
	GasLimit     string    `json:"gasLimit"`
	ParentHash   string    `json:"parentHash"`
	Transactions []proxyTx `json:"transactions"`
}

// proxyTx is the eth_getTransactionByHash shape.
type proxyTx struct {
	Hash        string `json:"hash"`
	BlockNumber string `json:"blockNumber"`
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	Gas         string `json:"gas"`
	GasPrice    string `json:"gasPrice"`
	Input       string `json:"input"`
}

type proxyReceipt struct {
	Status  string `json:"status"`
	GasUsed string `json:"gasUsed"`
}

type gasOracle struct {
	SafeGasPrice    string `json:"SafeGasPrice"`
	ProposeGasPrice string `json:"ProposeGasPrice"`
	FastGasPrice    string `json:"FastGasPrice"`
}

func (c *Client) apiURL(params url.Values) string {
	if c.apiKey != "" {
		params.Set("apikey", c.apiKey)
	}
	return fmt.Sprintf("%s/api?%s", c.baseURL, params.Encode())
}

// LatestBlockNumber returns the current chain head height.
func (c *Client) LatestBlockNumber(ctx context.Context) (int64, error) {
	params := url.Values{}
	params.Set("module", "proxy")
	params.Set("action", "eth_blockNumber")

	var resp proxyResponse
	if err := c.fetcher.FetchJSON(ctx, c.apiURL(params), requestTimeout, &resp); err != nil {
		return 0, fmt.Errorf("etherscan blockNumber: %w", err)
	}

	var hexNum string
	if err := json.Unmarshal(resp.Result, &hexNum); err != nil {
		return 0, fmt.Errorf("etherscan blockNumber result: %w", err)
	}
	return parseHexInt(hexNum), nil
}

// NetworkStats assembles the Ethereum network summary. The gas oracle and
// daily transaction count are optional augmentations: their failure degrades
// the payload instead of failing it.
func (c *Client) NetworkStats(ctx context.Context) (*domain.NetworkStats, error) {
	height, err := c.LatestBlockNumber(ctx)
	if err != nil {
		return nil, err
	}

	stats := &domain.NetworkStats{
		Chain:        domain.ChainEthereum,
		BlockHeight:  height,
		TPS:          float64(c.dailyTxCount(ctx)) / 86_400,
		AvgBlockTime: avgBlockTimeSeconds,
	}

	if oracle := c.gasOracle(ctx); oracle != nil {
		stats.GasPrice = &domain.GasPrice{
			Low:  parseFloat(oracle.SafeGasPrice),
			Avg:  parseFloat(oracle.ProposeGasPrice),
			High: parseFloat(oracle.FastGasPrice),
			Unit: "gwei",
		}
	}

	return stats, nil
}

func (c *Client) gasOracle(ctx context.Context) *gasOracle {
	params := url.Values{}
	params.Set("module", "gastracker")
	params.Set("action", "gasoracle")

	var resp accountResponse
	if !c.fetcher.SafeFetch(ctx, c.apiURL(params), requestTimeout, &resp) || resp.Status != "1" {
		return nil
	}

	var oracle gasOracle
	if err := json.Unmarshal(resp.Result, &oracle); err != nil {
		return nil
	}
	return &oracle
}

func (c *Client) dailyTxCount(ctx context.Context) int64 {
	params := url.Values{}
	params.Set("module", "stats")
	params.Set("action", "dailytx")

	var resp accountResponse
	if !c.fetcher.SafeFetch(ctx, c.apiURL(params), requestTimeout, &resp) || resp.Status != "1" {
		return fallbackDailyTxCount
	}

	var rows []struct {
		TransactionCount json.Number `json:"transactionCount"`
	}
	if err := json.Unmarshal(resp.Result, &rows); err != nil || len(rows) == 0 {
		return fallbackDailyTxCount
	}

	count, err := rows[len(rows)-1].TransactionCount.Int64()
	if err != nil || count <= 0 {
		return fallbackDailyTxCount
	}
	return count
}

// GetBlock fetches one block by height.
func (c *Client) GetBlock(ctx context.Context, number int64) (*domain.Block, error) {
	block, err := c.proxyBlockByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	if block == nil {
		return nil, nil
	}

	normalized := normalizeBlock(*block)
	return &normalized, nil
}

// ListBlocks fetches recent blocks, newest first. Pagination walks down from
// the head: startBlock = latest - (page-1)*limit. At most 10 blocks are
// fetched per request to respect upstream quota.
func (c *Client) ListBlocks(ctx context.Context, limit, page int) ([]domain.Block, error) {
	latest, err := c.LatestBlockNumber(ctx)
	if err != nil {
		return nil, err
	}

	if limit > 10 {
		limit = 10
	}
	start := latest - int64(page-1)*int64(limit)

	blocks := make([]domain.Block, 0, limit)
	for i := 0; i < limit; i++ {
		number := start - int64(i)
		if number < 0 {
			break
		}
		block, err := c.proxyBlockByNumber(ctx, number)
		if err != nil {
			return nil, err
		}
		if block == nil {
			continue
		}
		blocks = append(blocks, normalizeBlock(*block))
	}
	return blocks, nil
}

// GetBlockTransactions fetches the transactions of one block.
func (c *Client) GetBlockTransactions(ctx context.Context, number int64) ([]domain.Transaction, error) {
	block, err := c.proxyBlockByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	if block == nil {
		return []domain.Transaction{}, nil
	}

	latest, err := c.LatestBlockNumber(ctx)
	if err != nil {
		latest = parseHexInt(block.Number)
	}

	timestamp := parseHexInt(block.Timestamp)
	txs := make([]domain.Transaction, 0, len(block.Transactions))
	for _, tx := range block.Transactions {
		txs = append(txs, normalizeTx(tx, timestamp, latest, nil))
	}
	return txs, nil
}

// GetTransaction fetches one transaction by hash, augmented with its receipt
// when available.
func (c *Client) GetTransaction(ctx context.Context, hash string) (*domain.Transaction, error) {
	params := url.Values{}
	params.Set("module", "proxy")
	params.Set("action", "eth_getTransactionByHash")
	params.Set("txhash", hash)

	var resp proxyResponse
	if err := c.fetcher.FetchJSON(ctx, c.apiURL(params), requestTimeout, &resp); err != nil {
		return nil, fmt.Errorf("etherscan tx %s: %w", hash, err)
	}
	if isNullResult(resp.Result) {
		return nil, nil
	}

	var tx proxyTx
	if err := json.Unmarshal(resp.Result, &tx); err != nil {
		return nil, fmt.Errorf("etherscan tx result: %w", err)
	}

	latest, err := c.LatestBlockNumber(ctx)
	if err != nil {
		latest = 0
	}

	receipt := c.receipt(ctx, hash)
	normalized := normalizeTx(tx, 0, latest, receipt)
	return &normalized, nil
}

func (c *Client) receipt(ctx context.Context, hash string) *proxyReceipt {
	params := url.Values{}
	params.Set("module", "proxy")
	params.Set("action", "eth_getTransactionReceipt")
	params.Set("txhash", hash)

	var resp proxyResponse
	if !c.fetcher.SafeFetch(ctx, c.apiURL(params), requestTimeout, &resp) || isNullResult(resp.Result) {
		return nil
	}

	var receipt proxyReceipt
	if err := json.Unmarshal(resp.Result, &receipt); err != nil {
		return nil
	}
	return &receipt
}

// GetAddress fetches an address balance summary. Balance stays a wei string.
func (c *Client) GetAddress(ctx context.Context, address string) (*domain.AddressInfo, error) {
	params := url.Values{}
	params.Set("module", "account")
	params.Set("action", "balance")
	params.Set("address", address)
	params.Set("tag", "latest")

	var resp accountResponse
	if err := c.fetcher.FetchJSON(ctx, c.apiURL(params), requestTimeout, &resp); err != nil {
		return nil, fmt.Errorf("etherscan balance %s: %w", address, err)
	}
	if resp.Status != "1" {
		return nil, nil
	}

	var balance string
	if err := json.Unmarshal(resp.Result, &balance); err != nil {
		return nil, fmt.Errorf("etherscan balance result: %w", err)
	}

	txs, _ := c.GetAddressTransactions(ctx, address, 10)

	info := &domain.AddressInfo{
		Address: address,
		Balance: balance,
		TxCount: int64(len(txs)),
		Chain:   domain.ChainEthereum,
	}
	if len(txs) > 0 {
		last := txs[0].Timestamp
		first := txs[len(txs)-1].Timestamp
		info.LastActivity = &last
		info.FirstSeen = &first
	}
	return info, nil
}

// GetAddressTransactions fetches an address's recent transactions, newest
// first.
func (c *Client) GetAddressTransactions(ctx context.Context, address string, limit int) ([]domain.Transaction, error) {
	params := url.Values{}
	params.Set("module", "account")
	params.Set("action", "txlist")
	params.Set("address", address)
	params.Set("sort", "desc")
	params.Set("page", "1")
	params.Set("offset", strconv.Itoa(limit))

	var resp accountResponse
	if err := c.fetcher.FetchJSON(ctx, c.apiURL(params), requestTimeout, &resp); err != nil {
		return nil, fmt.Errorf("etherscan txlist %s: %w", address, err)
	}
	if resp.Status != "1" {
		return []domain.Transaction{}, nil
	}

	var rows []struct {
		Hash          string `json:"hash"`
		BlockNumber   string `json:"blockNumber"` // decimal on this module
		TimeStamp     string `json:"timeStamp"`
		From          string `json:"from"`
		To            string `json:"to"`
		Value         string `json:"value"`
		Gas           string `json:"gas"`
		GasUsed       string `json:"gasUsed"`
		GasPrice      string `json:"gasPrice"`
		IsError       string `json:"isError"`
		Confirmations string `json:"confirmations"`
	}
	if err := json.Unmarshal(resp.Result, &rows); err != nil {
		return nil, fmt.Errorf("etherscan txlist result: %w", err)
	}

	txs := make([]domain.Transaction, 0, len(rows))
	for _, row := range rows {
		status := domain.TxStatusConfirmed
		if row.IsError == "1" {
			status = domain.TxStatusFailed
		}

		gas := parseDecInt(row.Gas)
		txs = append(txs, domain.Transaction{
			Hash:          row.Hash,
			BlockNumber:   parseDecInt(row.BlockNumber),
			Timestamp:     parseDecInt(row.TimeStamp),
			From:          row.From,
			To:            row.To,
			Value:         row.Value,
			Fee:           weiFee(row.GasUsed, row.GasPrice),
			Gas:           &gas,
			Status:        status,
			Confirmations: parseDecInt(row.Confirmations),
			Chain:         domain.ChainEthereum,
		})
	}
	return txs, nil
}

func (c *Client) proxyBlockByNumber(ctx context.Context, number int64) (*proxyBlock, error) {
	params := url.Values{}
	params.Set("module", "proxy")
	params.Set("action", "eth_getBlockByNumber")
	params.Set("tag", fmt.Sprintf("0x%x", number))
	params.Set("boolean", "true")

	var resp proxyResponse
	if err := c.fetcher.FetchJSON(ctx, c.apiURL(params), requestTimeout, &resp); err != nil {
		return nil, fmt.Errorf("etherscan block %d: %w", number, err)
	}
	if isNullResult(resp.Result) {
		return nil, nil
	}

	var block proxyBlock
	if err := json.Unmarshal(resp.Result, &block); err != nil {
		return nil, fmt.Errorf("etherscan block result: %w", err)
	}
	return &block, nil
}

func normalizeBlock(block proxyBlock) domain.Block {
	gasUsed := parseHexInt(block.GasUsed)
	gasLimit := parseHexInt(block.GasLimit)

	return domain.Block{
		Number:     parseHexInt(block.Number),
		Hash:       block.Hash,
		Timestamp:  parseHexInt(block.Timestamp),
		TxCount:    len(block.Transactions),
		Miner:      block.Miner,
		Size:       parseHexInt(block.Size),
		GasUsed:    &gasUsed,
		GasLimit:   &gasLimit,
		ParentHash: block.ParentHash,
		Reward:     blockReward,
		Chain:      domain.ChainEthereum,
	}
}

func normalizeTx(tx proxyTx, blockTimestamp, latest int64, receipt *proxyReceipt) domain.Transaction {
	blockNumber := parseHexInt(tx.BlockNumber)
	gas := parseHexInt(tx.Gas)

	status := domain.TxStatusPending
	var confirmations int64
	if tx.BlockNumber != "" && tx.BlockNumber != "0x" {
		status = domain.TxStatusConfirmed
		if latest >= blockNumber {
			confirmations = latest - blockNumber + 1
		}
	}
	if receipt != nil && receipt.Status == "0x0" {
		status = domain.TxStatusFailed
	}

	fee := "0"
	if receipt != nil {
		fee = weiFeeHex(receipt.GasUsed, tx.GasPrice)
	}

	normalized := domain.Transaction{
		Hash:          tx.Hash,
		BlockNumber:   blockNumber,
		Timestamp:     blockTimestamp,
		From:          tx.From,
		To:            tx.To,
		Value:         hexToDecString(tx.Value),
		Fee:           fee,
		Gas:           &gas,
		Status:        status,
		Confirmations: confirmations,
		Chain:         domain.ChainEthereum,
	}
	if tx.Input != "" && tx.Input != "0x" {
		input := tx.Input
		normalized.Input = &input
	}
	return normalized
}

// parseHexInt parses a 0x-prefixed hex quantity, returning 0 on any failure.
func parseHexInt(s string) int64 {
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		return 0
	}
	v, err := strconv.ParseInt(s, 16, 64)
	if err != nil {
		return 0
	}
	return v
}

func parseDecInt(s string) int64 {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// hexToDecString converts a hex quantity to a decimal string, preserving
// full wei precision via big.Int.
func hexToDecString(s string) string {
	trimmed := strings.TrimPrefix(s, "0x")
	if trimmed == "" {
		return "0"
	}
	v, ok := new(big.Int).SetString(trimmed, 16)
	if !ok {
		return "0"
	}
	return v.String()
}

// weiFee multiplies decimal gasUsed by decimal gasPrice into a wei string.
func weiFee(gasUsed, gasPrice string) string {
	used, ok1 := new(big.Int).SetString(gasUsed, 10)
	price, ok2 := new(big.Int).SetString(gasPrice, 10)
	if !ok1 || !ok2 {
		return "0"
	}
	return new(big.Int).Mul(used, price).String()
}

// weiFeeHex multiplies hex gasUsed by hex gasPrice into a wei string.
func weiFeeHex(gasUsed, gasPrice string) string {
	used, ok1 := new(big.Int).SetString(strings.TrimPrefix(gasUsed, "0x"), 16)
	price, ok2 := new(big.Int).SetString(strings.TrimPrefix(gasPrice, "0x"), 16)
	if !ok1 || !ok2 {
		return "0"
	}
	return new(big.Int).Mul(used, price).String()
}

func isNullResult(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return trimmed == "" || trimmed == "null" || trimmed == `""`
}
