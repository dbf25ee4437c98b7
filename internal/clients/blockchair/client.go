// Package blockchair is the Blockchair API client (Bitcoin network stats,
// blocks, transactions, addresses).
package blockchair

import (
	"context"
	"fmt"
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

	// Bitcoin target block interval.
	avgBlockTimeSeconds = 600

	// Bitcoin throughput is effectively flat; the explorer surface shows a
	// constant.
	bitcoinTPS = 5

	blockReward = "6.25"

	// Blockchair timestamps are UTC wall-clock strings.
	timeLayout = "2006-01-02 15:04:05"
)

// Client is a Blockchair API client.
type Client struct {
	baseURL string
	apiKey  string
	fetcher *fetch.Fetcher
	log     zerolog.Logger
}

// NewClient creates a new Blockchair client.
func NewClient(baseURL, apiKey string, fetcher *fetch.Fetcher, log zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		fetcher: fetcher,
		log:     log.With().Str("client", "blockchair").Logger(),
	}
}

type statsResponse struct {
	Data struct {
		Blocks     int64  `json:"blocks"`
		Hashrate24 string `json:"hashrate_24h"`
	} `json:"data"`
}

// blockRow is the /bitcoin/blocks list shape.
type blockRow struct {
	ID               int64  `json:"id"`
	Hash             string `json:"hash"`
	Time             string `json:"time"`
	TransactionCount int    `json:"transaction_count"`
	Size             int64  `json:"size"`
	PoolName         string `json:"pool_name"`
}

type blocksResponse struct {
	Data []blockRow `json:"data"`
}

// txRow is the /bitcoin/transactions list shape. Amounts are satoshi.
type txRow struct {
	Hash        string `json:"hash"`
	BlockID     int64  `json:"block_id"`
	Time        string `json:"time"`
	InputTotal  int64  `json:"input_total"`
	OutputTotal int64  `json:"output_total"`
	Fee         int64  `json:"fee"`
}

type txsResponse struct {
	Data []txRow `json:"data"`
}

// txDashboard is the /bitcoin/dashboards/transaction/{hash} shape.
type txDashboard struct {
	Data map[string]struct {
		Transaction struct {
			Hash        string `json:"hash"`
			BlockID     int64  `json:"block_id"`
			Time        string `json:"time"`
			OutputTotal int64  `json:"output_total"`
			Fee         int64  `json:"fee"`
		} `json:"transaction"`
		Inputs []struct {
			Recipient string `json:"recipient"`
		} `json:"inputs"`
		Outputs []struct {
			Recipient string `json:"recipient"`
		} `json:"outputs"`
	} `json:"data"`
}

// addressEntry is one /bitcoin/dashboards/address/{addr} entry.
type addressEntry struct {
	Address struct {
		Balance          int64  `json:"balance"`
		TransactionCount int64  `json:"transaction_count"`
		FirstSeenReceive string `json:"first_seen_receiving"`
		LastSeenSpending string `json:"last_seen_spending"`
		LastSeenReceive  string `json:"last_seen_receiving"`
	} `json:"address"`
	Transactions []string `json:"transactions"`
}

type addressDashboard struct {
	Data map[string]addressEntry `json:"data"`
}

func (c *Client) apiURL(path string, params url.Values) string {
	if params == nil {
		params = url.Values{}
	}
	if c.apiKey != "" {
		params.Set("key", c.apiKey)
	}
	if encoded := params.Encode(); encoded != "" {
		return fmt.Sprintf("%s%s?%s", c.baseURL, path, encoded)
	}
	return c.baseURL + path
}

// NetworkStats assembles the Bitcoin network summary.
func (c *Client) NetworkStats(ctx context.Context) (*domain.NetworkStats, error) {
	var resp statsResponse
	if err := c.fetcher.FetchJSON(ctx, c.apiURL("/bitcoin/stats", nil), requestTimeout, &resp); err != nil {
		return nil, fmt.Errorf("blockchair stats: %w", err)
	}

	stats := &domain.NetworkStats{
		Chain:        domain.ChainBitcoin,
		BlockHeight:  resp.Data.Blocks - 1, // Blockchair reports block count, height is count-1
		TPS:          bitcoinTPS,
		AvgBlockTime: avgBlockTimeSeconds,
	}
	if resp.Data.Hashrate24 != "" {
		hashRate := resp.Data.Hashrate24
		stats.HashRate = &hashRate
	}
	return stats, nil
}

// ListBlocks fetches recent blocks, newest first.
func (c *Client) ListBlocks(ctx context.Context, limit, page int) ([]domain.Block, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	params.Set("offset", strconv.Itoa((page-1)*limit))
	params.Set("s", "id(desc)")

	var resp blocksResponse
	if err := c.fetcher.FetchJSON(ctx, c.apiURL("/bitcoin/blocks", params), requestTimeout, &resp); err != nil {
		return nil, fmt.Errorf("blockchair blocks: %w", err)
	}

	blocks := make([]domain.Block, 0, len(resp.Data))
	for _, row := range resp.Data {
		blocks = append(blocks, normalizeBlock(row))
	}
	return blocks, nil
}

// GetBlock fetches one block by height.
func (c *Client) GetBlock(ctx context.Context, number int64) (*domain.Block, error) {
	params := url.Values{}
	params.Set("q", fmt.Sprintf("id(%d)", number))

	var resp blocksResponse
	if err := c.fetcher.FetchJSON(ctx, c.apiURL("/bitcoin/blocks", params), requestTimeout, &resp); err != nil {
		return nil, fmt.Errorf("blockchair block %d: %w", number, err)
	}
	if len(resp.Data) == 0 {
		return nil, nil
	}

	block := normalizeBlock(resp.Data[0])
	return &block, nil
}

// GetBlockTransactions fetches a block's transactions, capped at 25 rows.
func (c *Client) GetBlockTransactions(ctx context.Context, number int64) ([]domain.Transaction, error) {
	params := url.Values{}
	params.Set("q", fmt.Sprintf("block_id(%d)", number))
	params.Set("limit", "25")

	var resp txsResponse
	if err := c.fetcher.FetchJSON(ctx, c.apiURL("/bitcoin/transactions", params), requestTimeout, &resp); err != nil {
		return nil, fmt.Errorf("blockchair block txs %d: %w", number, err)
	}

	txs := make([]domain.Transaction, 0, len(resp.Data))
	for _, row := range resp.Data {
		txs = append(txs, domain.Transaction{
			Hash:        row.Hash,
			BlockNumber: row.BlockID,
			Timestamp:   parseTime(row.Time),
			From:        "Multiple",
			To:          "Multiple",
			Value:       strconv.FormatInt(row.OutputTotal, 10),
			Fee:         strconv.FormatInt(row.Fee, 10),
			Status:      domain.TxStatusConfirmed,
			Chain:       domain.ChainBitcoin,
		})
	}
	return txs, nil
}

// GetTransaction fetches one transaction by hash. From/To are the first
// input and output recipients; "Multiple" when absent.
func (c *Client) GetTransaction(ctx context.Context, hash string) (*domain.Transaction, error) {
	reqURL := c.apiURL("/bitcoin/dashboards/transaction/"+url.PathEscape(hash), nil)

	var resp txDashboard
	if err := c.fetcher.FetchJSON(ctx, reqURL, requestTimeout, &resp); err != nil {
		if apiErr, ok := fetch.AsApiError(err); ok && apiErr.Status == 404 {
			return nil, nil
		}
		return nil, fmt.Errorf("blockchair tx %s: %w", hash, err)
	}

	entry, ok := resp.Data[hash]
	if !ok {
		return nil, nil
	}

	from, to := "Multiple", "Multiple"
	if len(entry.Inputs) > 0 && entry.Inputs[0].Recipient != "" {
		from = entry.Inputs[0].Recipient
	}
	if len(entry.Outputs) > 0 && entry.Outputs[0].Recipient != "" {
		to = entry.Outputs[0].Recipient
	}

	status := domain.TxStatusConfirmed
	var confirmations int64
	if entry.Transaction.BlockID <= 0 {
		status = domain.TxStatusPending
	} else if height, err := c.chainHeight(ctx); err == nil && height >= entry.Transaction.BlockID {
		confirmations = height - entry.Transaction.BlockID + 1
	}

	return &domain.Transaction{
		Hash:          entry.Transaction.Hash,
		BlockNumber:   entry.Transaction.BlockID,
		Timestamp:     parseTime(entry.Transaction.Time),
		From:          from,
		To:            to,
		Value:         strconv.FormatInt(entry.Transaction.OutputTotal, 10),
		Fee:           strconv.FormatInt(entry.Transaction.Fee, 10),
		Status:        status,
		Confirmations: confirmations,
		Chain:         domain.ChainBitcoin,
	}, nil
}

// GetAddress fetches an address balance summary. Balance stays a satoshi
// string.
func (c *Client) GetAddress(ctx context.Context, address string) (*domain.AddressInfo, error) {
	entry, err := c.fetchAddressEntry(ctx, address)
	if err != nil || entry == nil {
		return nil, err
	}

	info := &domain.AddressInfo{
		Address: address,
		Balance: strconv.FormatInt(entry.Address.Balance, 10),
		TxCount: entry.Address.TransactionCount,
		Chain:   domain.ChainBitcoin,
	}
	if first := parseTime(entry.Address.FirstSeenReceive); first > 0 {
		info.FirstSeen = &first
	}
	if last := lastActivity(entry.Address.LastSeenReceive, entry.Address.LastSeenSpending); last > 0 {
		info.LastActivity = &last
	}
	return info, nil
}

// GetAddressTransactions fetches an address's recent transactions, newest
// first, resolving at most limit hashes to full rows.
func (c *Client) GetAddressTransactions(ctx context.Context, address string, limit int) ([]domain.Transaction, error) {
	entry, err := c.fetchAddressEntry(ctx, address)
	if err != nil {
		return nil, err
	}
	if entry == nil || len(entry.Transactions) == 0 {
		return []domain.Transaction{}, nil
	}

	hashes := entry.Transactions
	if len(hashes) > limit {
		hashes = hashes[:limit]
	}

	txs := make([]domain.Transaction, 0, len(hashes))
	for _, hash := range hashes {
		tx, err := c.GetTransaction(ctx, hash)
		if err != nil {
			c.log.Warn().Err(err).Str("hash", hash).Msg("skipping unresolvable transaction")
			continue
		}
		if tx != nil {
			txs = append(txs, *tx)
		}
	}
	return txs, nil
}

func (c *Client) fetchAddressEntry(ctx context.Context, address string) (*addressEntry, error) {
	reqURL := c.apiURL("/bitcoin/dashboards/address/"+url.PathEscape(address), nil)

	var resp addressDashboard
	if err := c.fetcher.FetchJSON(ctx, reqURL, requestTimeout, &resp); err != nil {
		if apiErr, ok := fetch.AsApiError(err); ok && apiErr.Status == 404 {
			return nil, nil
		}
		return nil, fmt.Errorf("blockchair address %s: %w", address, err)
	}

	entry, ok := resp.Data[address]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

func (c *Client) chainHeight(ctx context.Context) (int64, error) {
	var resp statsResponse
	if err := c.fetcher.FetchJSON(ctx, c.apiURL("/bitcoin/stats", nil), requestTimeout, &resp); err != nil {
		return 0, err
	}
	return resp.Data.Blocks - 1, nil
}

func normalizeBlock(row blockRow) domain.Block {
	miner := row.PoolName
	if miner == "" {
		miner = "Unknown"
	}

	return domain.Block{
		Number:    row.ID,
		Hash:      row.Hash,
		Timestamp: parseTime(row.Time),
		TxCount:   row.TransactionCount,
		Miner:     miner,
		Size:      row.Size,
		Reward:    blockReward,
		Chain:     domain.ChainBitcoin,
	}
}

// parseTime parses Blockchair's UTC wall-clock strings to epoch seconds,
// returning 0 on any failure.
func parseTime(s string) int64 {
	if s == "" {
		return 0
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return 0
	}
	return t.Unix()
}

func lastActivity(receive, spend string) int64 {
	r, s := parseTime(receive), parseTime(spend)
	if r > s {
		return r
	}
	return s
}
