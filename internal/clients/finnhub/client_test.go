package finnhub

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

func TestGetQuote(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/quote", r.URL.Path)
		assert.Equal(t, "AAPL", r.URL.Query().Get("symbol"))
		assert.Equal(t, "testkey", r.URL.Query().Get("token"))

		json.NewEncoder(w).Encode(map[string]interface{}{
			"c": 195.5, "d": 1.2, "dp": 0.62,
			"h": 196.4, "l": 193.0, "o": 194.0, "pc": 194.3,
			"t": 1717243200,
		})
	})

	asset, err := client.GetQuote(context.Background(), "aapl")
	require.NoError(t, err)
	require.NotNil(t, asset)

	assert.Equal(t, "AAPL", asset.Symbol)
	assert.Equal(t, 195.5, asset.Price)
	assert.Equal(t, 194.3, asset.PreviousClose)
	assert.Equal(t, int64(1717243200000), asset.LastUpdated)
	assert.Nil(t, asset.MarketCap)
	assert.Nil(t, asset.Sector)
}

func TestGetQuoteUnknownSymbol(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		// Finnhub answers unknown symbols with an all-zero quote.
		w.Write([]byte(`{"c":0,"d":null,"dp":null,"h":0,"l":0,"o":0,"pc":0,"t":0}`))
	})

	asset, err := client.GetQuote(context.Background(), "NOPE")
	require.NoError(t, err)
	assert.Nil(t, asset)
}

func TestGetProfileConvertsMarketCap(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/stock/profile2", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"name":                 "Apple Inc",
			"ticker":               "AAPL",
			"exchange":             "NASDAQ NMS - GLOBAL MARKET",
			"currency":             "USD",
			"marketCapitalization": 3_000_000.0, // millions
			"finnhubIndustry":      "Technology",
		})
	})

	profile, err := client.GetProfile(context.Background(), "AAPL")
	require.NoError(t, err)
	require.NotNil(t, profile)

	assert.Equal(t, 3.0e12, profile.MarketCap)
	assert.Equal(t, "Technology", profile.Sector)
}

func TestGetProfileUnknownSymbol(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})

	profile, err := client.GetProfile(context.Background(), "NOPE")
	require.NoError(t, err)
	assert.Nil(t, profile)
}

func TestCandles(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/stock/candle", r.URL.Path)
		assert.Equal(t, "60", r.URL.Query().Get("resolution"))
		assert.NotEmpty(t, r.URL.Query().Get("from"))
		assert.NotEmpty(t, r.URL.Query().Get("to"))

		json.NewEncoder(w).Encode(map[string]interface{}{
			"s": "ok",
			"t": []int64{1717243200, 1717246800},
			"c": []float64{195.2, 195.8},
			"o": []float64{194.9, 195.2},
			"h": []float64{195.5, 196.0},
			"l": []float64{194.7, 195.0},
			"v": []float64{1_000_000, 900_000},
		})
	})

	points, err := client.Candles(context.Background(), "AAPL", "60",
		time.Now().Add(-7*24*time.Hour), time.Now())
	require.NoError(t, err)
	require.Len(t, points, 2)

	assert.Equal(t, int64(1717243200000), points[0].Timestamp)
	assert.Equal(t, 195.2, points[0].Price)
	require.NotNil(t, points[0].High)
	assert.Equal(t, 195.5, *points[0].High)
	assert.Less(t, points[0].Timestamp, points[1].Timestamp)
}

func TestCandlesNoData(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"s":"no_data"}`))
	})

	points, err := client.Candles(context.Background(), "NOPE", "D",
		time.Now().Add(-24*time.Hour), time.Now())
	require.NoError(t, err)
	assert.Empty(t, points)
}

func TestNormalizeCandlesRaggedArrays(t *testing.T) {
	points := normalizeCandles(candleResponse{
		Status:    "ok",
		Timestamp: []int64{1, 2, 3},
		Close:     []float64{10, 11},
		Volume:    []float64{100},
	})

	require.Len(t, points, 2)
	require.NotNil(t, points[0].Volume)
	assert.Nil(t, points[1].Volume)
	assert.Nil(t, points[0].Open)
}
