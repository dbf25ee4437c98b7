package blockchair

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/tickerhub/internal/domain"
	"github.com/aristath/tickerhub/internal/fetch"
)

const (
	testAddr = "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa"
	testHash = "6f7cf9580f1c2dfb3c4d5d043cdbb128c640e3f20161245aa7372e9666aaca1c"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)

	fetcher := fetch.New(fetch.Config{AllowedHosts: []string{u.Host}, AllowPrivate: true}, zerolog.Nop())
	return NewClient(srv.URL, "", fetcher, zerolog.Nop())
}

func TestNetworkStats(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bitcoin/stats", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{
				"blocks":       850_001,
				"hashrate_24h": "612000000000000000000",
			},
		})
	})

	stats, err := client.NetworkStats(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.ChainBitcoin, stats.Chain)
	assert.Equal(t, int64(850_000), stats.BlockHeight)
	assert.Equal(t, float64(bitcoinTPS), stats.TPS)
	assert.Equal(t, float64(avgBlockTimeSeconds), stats.AvgBlockTime)
	require.NotNil(t, stats.HashRate)
	assert.Equal(t, "612000000000000000000", *stats.HashRate)
	assert.Nil(t, stats.GasPrice)
}

func TestListBlocks(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bitcoin/blocks", r.URL.Path)
		assert.Equal(t, "10", r.URL.Query().Get("limit"))
		assert.Equal(t, "10", r.URL.Query().Get("offset")) // page 2
		assert.Equal(t, "id(desc)", r.URL.Query().Get("s"))

		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{
				{
					"id":                850_000,
					"hash":              "00000000abc",
					"time":              "2024-06-01 12:00:00",
					"transaction_count": 3_200,
					"size":              1_500_000,
					"pool_name":         "Foundry USA",
				},
				{
					"id":                849_999,
					"hash":              "00000000def",
					"time":              "2024-06-01 11:50:00",
					"transaction_count": 2_800,
					"size":              1_400_000,
				},
			},
		})
	})

	blocks, err := client.ListBlocks(context.Background(), 10, 2)
	require.NoError(t, err)
	require.Len(t, blocks, 2)

	assert.Equal(t, "Foundry USA", blocks[0].Miner)
	assert.Equal(t, "Unknown", blocks[1].Miner)
	assert.Equal(t, blockReward, blocks[0].Reward)
	assert.Equal(t, int64(1717243200), blocks[0].Timestamp)
	assert.Equal(t, domain.ChainBitcoin, blocks[0].Chain)
}

func TestGetBlockMissing(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[]}`))
	})

	block, err := client.GetBlock(context.Background(), 99_999_999)
	require.NoError(t, err)
	assert.Nil(t, block)
}

func TestGetBlockTransactionsSatoshiStrings(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bitcoin/transactions", r.URL.Path)
		assert.Equal(t, "block_id(850000)", r.URL.Query().Get("q"))

		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{{
				"hash":         testHash,
				"block_id":     850_000,
				"time":         "2024-06-01 12:00:00",
				"output_total": 5_000_000_000,
				"fee":          12_500,
			}},
		})
	})

	txs, err := client.GetBlockTransactions(context.Background(), 850_000)
	require.NoError(t, err)
	require.Len(t, txs, 1)

	assert.Equal(t, "5000000000", txs[0].Value)
	assert.Equal(t, "12500", txs[0].Fee)
	assert.Equal(t, domain.TxStatusConfirmed, txs[0].Status)
	assert.Equal(t, "Multiple", txs[0].From)
}

func TestGetTransactionFirstInputOutput(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/bitcoin/stats" {
			w.Write([]byte(`{"data":{"blocks":850011}}`))
			return
		}
		assert.Equal(t, "/bitcoin/dashboards/transaction/"+testHash, r.URL.Path)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{
				testHash: map[string]interface{}{
					"transaction": map[string]interface{}{
						"hash":         testHash,
						"block_id":     850_000,
						"time":         "2024-06-01 12:00:00",
						"output_total": 150_000_000,
						"fee":          2_000,
					},
					"inputs":  []map[string]interface{}{{"recipient": "bc1qsender"}},
					"outputs": []map[string]interface{}{{"recipient": "bc1qreceiver"}, {"recipient": "bc1qchange"}},
				},
			},
		})
	})

	tx, err := client.GetTransaction(context.Background(), testHash)
	require.NoError(t, err)
	require.NotNil(t, tx)

	assert.Equal(t, "bc1qsender", tx.From)
	assert.Equal(t, "bc1qreceiver", tx.To)
	assert.Equal(t, "150000000", tx.Value)
	assert.Equal(t, int64(11), tx.Confirmations) // 850010 - 850000 + 1
	assert.Equal(t, domain.TxStatusConfirmed, tx.Status)
}

func TestGetTransactionPendingCoinbase(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{
				testHash: map[string]interface{}{
					"transaction": map[string]interface{}{
						"hash":         testHash,
						"block_id":     -1,
						"output_total": 1_000,
					},
					"inputs":  []map[string]interface{}{},
					"outputs": []map[string]interface{}{},
				},
			},
		})
	})

	tx, err := client.GetTransaction(context.Background(), testHash)
	require.NoError(t, err)
	require.NotNil(t, tx)

	assert.Equal(t, domain.TxStatusPending, tx.Status)
	assert.Equal(t, "Multiple", tx.From)
	assert.Equal(t, "Multiple", tx.To)
}

func TestGetTransactionNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	})

	tx, err := client.GetTransaction(context.Background(), testHash)
	require.NoError(t, err)
	assert.Nil(t, tx)
}

func TestGetAddress(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bitcoin/dashboards/address/"+testAddr, r.URL.Path)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{
				testAddr: map[string]interface{}{
					"address": map[string]interface{}{
						"balance":              6_800_000_000,
						"transaction_count":    3_500,
						"first_seen_receiving": "2009-01-03 18:15:05",
						"last_seen_receiving":  "2024-06-01 12:00:00",
						"last_seen_spending":   "",
					},
					"transactions": []string{},
				},
			},
		})
	})

	info, err := client.GetAddress(context.Background(), testAddr)
	require.NoError(t, err)
	require.NotNil(t, info)

	assert.Equal(t, "6800000000", info.Balance)
	assert.Equal(t, int64(3_500), info.TxCount)
	assert.Equal(t, domain.ChainBitcoin, info.Chain)
	require.NotNil(t, info.FirstSeen)
	require.NotNil(t, info.LastActivity)
	assert.Equal(t, int64(1717243200), *info.LastActivity)
}

func TestGetAddressNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{}}`))
	})

	info, err := client.GetAddress(context.Background(), testAddr)
	require.NoError(t, err)
	assert.Nil(t, info)
}

func TestParseTime(t *testing.T) {
	assert.Equal(t, int64(1717243200), parseTime("2024-06-01 12:00:00"))
	assert.Equal(t, int64(0), parseTime(""))
	assert.Equal(t, int64(0), parseTime("not-a-time"))
}
