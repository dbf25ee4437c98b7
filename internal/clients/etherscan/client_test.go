package etherscan

import (
	"context"
	"encoding/json"
	"fmt"
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

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)

	fetcher := fetch.New(fetch.Config{AllowedHosts: []string{u.Host}, AllowPrivate: true}, zerolog.Nop())
	return NewClient(srv.URL, "testkey", fetcher, zerolog.Nop())
}

// dispatch routes by the module/action query pair, mimicking the single
// /api endpoint Etherscan exposes.
func dispatch(t *testing.T, routes map[string]interface{}) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Query().Get("module") + "/" + r.URL.Query().Get("action")
		payload, ok := routes[key]
		if !ok {
			http.Error(w, "unexpected action "+key, http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(payload)
	}
}

func TestLatestBlockNumber(t *testing.T) {
	client := newTestClient(t, dispatch(t, map[string]interface{}{
		"proxy/eth_blockNumber": map[string]string{"result": "0x1234c8"},
	}))

	height, err := client.LatestBlockNumber(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0x1234c8), height)
}

func TestNetworkStatsWithGasOracle(t *testing.T) {
	client := newTestClient(t, dispatch(t, map[string]interface{}{
		"proxy/eth_blockNumber": map[string]string{"result": "0x1234c8"},
		"gastracker/gasoracle": map[string]interface{}{
			"status": "1",
			"result": map[string]string{
				"SafeGasPrice":    "12",
				"ProposeGasPrice": "15.5",
				"FastGasPrice":    "22",
			},
		},
		"stats/dailytx": map[string]interface{}{
			"status": "1",
			"result": []map[string]interface{}{
				{"transactionCount": 1_209_600},
			},
		},
	}))

	stats, err := client.NetworkStats(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.ChainEthereum, stats.Chain)
	assert.Equal(t, int64(0x1234c8), stats.BlockHeight)
	assert.Equal(t, avgBlockTimeSeconds, stats.AvgBlockTime)
	assert.InDelta(t, 14.0, stats.TPS, 0.01) // 1209600 / 86400

	require.NotNil(t, stats.GasPrice)
	assert.Equal(t, 12.0, stats.GasPrice.Low)
	assert.Equal(t, 15.5, stats.GasPrice.Avg)
	assert.Equal(t, 22.0, stats.GasPrice.High)
	assert.Equal(t, "gwei", stats.GasPrice.Unit)
}

func TestNetworkStatsDegradesWithoutOracle(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("action") == "eth_blockNumber" {
			w.Write([]byte(`{"result":"0x64"}`))
			return
		}
		http.Error(w, "not on this tier", http.StatusForbidden)
	})

	stats, err := client.NetworkStats(context.Background())
	require.NoError(t, err)

	assert.Nil(t, stats.GasPrice)
	assert.InDelta(t, float64(fallbackDailyTxCount)/86_400, stats.TPS, 0.001)
}

func TestGetBlockNormalizesHexFields(t *testing.T) {
	client := newTestClient(t, dispatch(t, map[string]interface{}{
		"proxy/eth_getBlockByNumber": map[string]interface{}{
			"result": map[string]interface{}{
				"number":     "0x1234c8",
				"hash":       "0xabc123",
				"timestamp":  "0x665a1c40",
				"miner":      "0xminer",
				"size":       "0x1f4",
				"gasUsed":    "0xbebc20",
				"gasLimit":   "0x1c9c380",
				"parentHash": "0xparent",
				"transactions": []map[string]string{
					{"hash": "0xt1"}, {"hash": "0xt2"}, {"hash": "0xt3"},
				},
			},
		},
	}))

	block, err := client.GetBlock(context.Background(), 0x1234c8)
	require.NoError(t, err)
	require.NotNil(t, block)

	assert.Equal(t, int64(0x1234c8), block.Number)
	assert.Equal(t, int64(0x665a1c40), block.Timestamp)
	assert.Equal(t, 3, block.TxCount)
	assert.Equal(t, int64(500), block.Size)
	require.NotNil(t, block.GasUsed)
	assert.Equal(t, int64(12_500_000), *block.GasUsed)
	assert.Equal(t, blockReward, block.Reward)
	assert.Equal(t, domain.ChainEthereum, block.Chain)
}

func TestGetBlockMissing(t *testing.T) {
	client := newTestClient(t, dispatch(t, map[string]interface{}{
		"proxy/eth_getBlockByNumber": map[string]interface{}{"result": nil},
	}))

	block, err := client.GetBlock(context.Background(), 99_999_999)
	require.NoError(t, err)
	assert.Nil(t, block)
}

func TestListBlocksWalksDownFromHead(t *testing.T) {
	var requested []string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("action") {
		case "eth_blockNumber":
			w.Write([]byte(`{"result":"0x64"}`)) // head = 100
		case "eth_getBlockByNumber":
			tag := r.URL.Query().Get("tag")
			requested = append(requested, tag)
			fmt.Fprintf(w, `{"result":{"number":"%s","hash":"0xh","timestamp":"0x1","transactions":[]}}`, tag)
		}
	})

	blocks, err := client.ListBlocks(context.Background(), 5, 2)
	require.NoError(t, err)

	// page 2, limit 5: start = 100 - 5 = 95, then walk down.
	assert.Equal(t, []string{"0x5f", "0x5e", "0x5d", "0x5c", "0x5b"}, requested)
	require.Len(t, blocks, 5)
	assert.Equal(t, int64(95), blocks[0].Number)
	assert.Equal(t, int64(91), blocks[4].Number)
}

func TestListBlocksCapsLimitAtTen(t *testing.T) {
	var blockFetches int
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("action") {
		case "eth_blockNumber":
			w.Write([]byte(`{"result":"0x64"}`))
		case "eth_getBlockByNumber":
			blockFetches++
			fmt.Fprintf(w, `{"result":{"number":"%s","transactions":[]}}`, r.URL.Query().Get("tag"))
		}
	})

	blocks, err := client.ListBlocks(context.Background(), 50, 1)
	require.NoError(t, err)
	assert.Len(t, blocks, 10)
	assert.Equal(t, 10, blockFetches)
}

func TestGetTransactionWithReceipt(t *testing.T) {
	client := newTestClient(t, dispatch(t, map[string]interface{}{
		"proxy/eth_blockNumber": map[string]string{"result": "0x6e"}, // 110
		"proxy/eth_getTransactionByHash": map[string]interface{}{
			"result": map[string]string{
				"hash":        "0xtx",
				"blockNumber": "0x64", // 100
				"from":        "0xfrom",
				"to":          "0xto",
				"value":       "0xde0b6b3a7640000", // 1 ETH in wei
				"gas":         "0x5208",
				"gasPrice":    "0x3b9aca00", // 1 gwei
				"input":       "0x",
			},
		},
		"proxy/eth_getTransactionReceipt": map[string]interface{}{
			"result": map[string]string{
				"status":  "0x1",
				"gasUsed": "0x5208", // 21000
			},
		},
	}))

	tx, err := client.GetTransaction(context.Background(), "0xtx")
	require.NoError(t, err)
	require.NotNil(t, tx)

	assert.Equal(t, "1000000000000000000", tx.Value)
	assert.Equal(t, "21000000000000", tx.Fee) // 21000 * 1e9
	assert.Equal(t, domain.TxStatusConfirmed, tx.Status)
	assert.Equal(t, int64(11), tx.Confirmations) // 110 - 100 + 1
	assert.Nil(t, tx.Input)
}

func TestGetTransactionFailedReceipt(t *testing.T) {
	client := newTestClient(t, dispatch(t, map[string]interface{}{
		"proxy/eth_blockNumber": map[string]string{"result": "0x6e"},
		"proxy/eth_getTransactionByHash": map[string]interface{}{
			"result": map[string]string{
				"hash":        "0xtx",
				"blockNumber": "0x64",
				"value":       "0x0",
				"gasPrice":    "0x1",
			},
		},
		"proxy/eth_getTransactionReceipt": map[string]interface{}{
			"result": map[string]string{"status": "0x0", "gasUsed": "0x5208"},
		},
	}))

	tx, err := client.GetTransaction(context.Background(), "0xtx")
	require.NoError(t, err)
	require.NotNil(t, tx)
	assert.Equal(t, domain.TxStatusFailed, tx.Status)
}

func TestGetTransactionNotFound(t *testing.T) {
	client := newTestClient(t, dispatch(t, map[string]interface{}{
		"proxy/eth_getTransactionByHash": map[string]interface{}{"result": nil},
	}))

	tx, err := client.GetTransaction(context.Background(), "0xmissing")
	require.NoError(t, err)
	assert.Nil(t, tx)
}

func TestGetAddress(t *testing.T) {
	client := newTestClient(t, dispatch(t, map[string]interface{}{
		"account/balance": map[string]interface{}{
			"status": "1",
			"result": "40891626854930000000000",
		},
		"account/txlist": map[string]interface{}{
			"status": "1",
			"result": []map[string]string{
				{
					"hash":          "0xnew",
					"blockNumber":   "19000010",
					"timeStamp":     "1700000200",
					"value":         "5",
					"gas":           "21000",
					"gasUsed":       "21000",
					"gasPrice":      "1000000000",
					"isError":       "0",
					"confirmations": "12",
				},
				{
					"hash":          "0xold",
					"blockNumber":   "19000000",
					"timeStamp":     "1700000000",
					"value":         "3",
					"gas":           "21000",
					"gasUsed":       "21000",
					"gasPrice":      "1000000000",
					"isError":       "1",
					"confirmations": "22",
				},
			},
		},
	}))

	info, err := client.GetAddress(context.Background(), "0xde0B295669a9FD93d5F28D9Ec85E40f4cb697BAe")
	require.NoError(t, err)
	require.NotNil(t, info)

	assert.Equal(t, "40891626854930000000000", info.Balance)
	assert.Equal(t, int64(2), info.TxCount)
	require.NotNil(t, info.LastActivity)
	assert.Equal(t, int64(1700000200), *info.LastActivity)
	require.NotNil(t, info.FirstSeen)
	assert.Equal(t, int64(1700000000), *info.FirstSeen)
}

func TestGetAddressTransactionsNormalization(t *testing.T) {
	client := newTestClient(t, dispatch(t, map[string]interface{}{
		"account/txlist": map[string]interface{}{
			"status": "1",
			"result": []map[string]string{{
				"hash":          "0xfailed",
				"blockNumber":   "19000000",
				"timeStamp":     "1700000000",
				"from":          "0xa",
				"to":            "0xb",
				"value":         "1000000000000000000",
				"gas":           "50000",
				"gasUsed":       "30000",
				"gasPrice":      "2000000000",
				"isError":       "1",
				"confirmations": "100",
			}},
		},
	}))

	txs, err := client.GetAddressTransactions(context.Background(), "0xde0B295669a9FD93d5F28D9Ec85E40f4cb697BAe", 10)
	require.NoError(t, err)
	require.Len(t, txs, 1)

	tx := txs[0]
	assert.Equal(t, domain.TxStatusFailed, tx.Status)
	assert.Equal(t, "1000000000000000000", tx.Value)
	assert.Equal(t, "60000000000000", tx.Fee) // 30000 * 2e9
	assert.Equal(t, int64(100), tx.Confirmations)
	assert.Equal(t, int64(1700000000), tx.Timestamp)
}

func TestGetAddressTransactionsEmpty(t *testing.T) {
	client := newTestClient(t, dispatch(t, map[string]interface{}{
		"account/txlist": map[string]interface{}{
			"status":  "0",
			"message": "No transactions found",
			"result":  []interface{}{},
		},
	}))

	txs, err := client.GetAddressTransactions(context.Background(), "0xde0B295669a9FD93d5F28D9Ec85E40f4cb697BAe", 10)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestParseHexInt(t *testing.T) {
	assert.Equal(t, int64(0), parseHexInt(""))
	assert.Equal(t, int64(0), parseHexInt("0x"))
	assert.Equal(t, int64(255), parseHexInt("0xff"))
	assert.Equal(t, int64(0), parseHexInt("0xnothex"))
}

func TestHexToDecString(t *testing.T) {
	// Larger than int64.
	assert.Equal(t, "40891626854930000000000", hexToDecString("0x8a8bd52136f36663400"))
	assert.Equal(t, "0", hexToDecString("0x"))
	assert.Equal(t, "0", hexToDecString("bogus"))
}
