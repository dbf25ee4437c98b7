package stocks

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

	"github.com/aristath/tickerhub/internal/cache"
	"github.com/aristath/tickerhub/internal/clients/finnhub"
	"github.com/aristath/tickerhub/internal/clients/fmp"
	"github.com/aristath/tickerhub/internal/domain"
	"github.com/aristath/tickerhub/internal/fetch"
	"github.com/aristath/tickerhub/internal/reliability"
)

// harness wires a stocks service against two httptest upstream doubles.
type harness struct {
	svc             *Service
	cache           *cache.Cache
	primaryBreaker  *reliability.Breaker
	fallbackBreaker *reliability.Breaker
}

func newHarness(t *testing.T, primaryKey, fallbackKey string, primary, fallback http.HandlerFunc) *harness {
	t.Helper()

	primarySrv := httptest.NewServer(primary)
	t.Cleanup(primarySrv.Close)
	fallbackSrv := httptest.NewServer(fallback)
	t.Cleanup(fallbackSrv.Close)

	pu, err := url.Parse(primarySrv.URL)
	require.NoError(t, err)
	fu, err := url.Parse(fallbackSrv.URL)
	require.NoError(t, err)

	fetcher := fetch.New(fetch.Config{AllowedHosts: []string{pu.Host, fu.Host}, AllowPrivate: true}, zerolog.Nop())

	c := cache.New()
	primaryBreaker := reliability.NewBreaker(reliability.BreakerConfig{
		Name:             "fmp",
		FailureThreshold: 3,
		ResetTimeout:     time.Minute,
	}, zerolog.Nop())
	fallbackBreaker := reliability.NewBreaker(reliability.BreakerConfig{Name: "finnhub"}, zerolog.Nop())

	svc := NewService(
		fmp.NewClient(primarySrv.URL, primaryKey, fetcher, zerolog.Nop()),
		finnhub.NewClient(fallbackSrv.URL, fallbackKey, fetcher, zerolog.Nop()),
		c, primaryBreaker, fallbackBreaker, zerolog.Nop(),
	)
	return &harness{svc: svc, cache: c, primaryBreaker: primaryBreaker, fallbackBreaker: fallbackBreaker}
}

func fmpQuoteHandler(calls *int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		*calls++
		json.NewEncoder(w).Encode([]map[string]interface{}{{
			"symbol": "AAPL", "name": "Apple Inc.", "price": 195.5,
			"change": 1.2, "changesPercentage": 0.62, "timestamp": 1717243200,
		}})
	}
}

func noCalls(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected call to %s", r.URL.Path)
	}
}

func TestQuoteNotConfigured(t *testing.T) {
	h := newHarness(t, "", "", noCalls(t), noCalls(t))

	_, _, err := h.svc.Quote(context.Background(), "AAPL")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestQuoteServedFromCache(t *testing.T) {
	h := newHarness(t, "pk", "fk", noCalls(t), noCalls(t))
	h.cache.Set(cache.Key("stocks", "quote", "AAPL"), &domain.StockAsset{Symbol: "AAPL", Price: 190})

	asset, stale, err := h.svc.Quote(context.Background(), "aapl")
	require.NoError(t, err)
	assert.False(t, stale)
	assert.Equal(t, 190.0, asset.Price)
}

func TestQuoteMergesFallbackProfile(t *testing.T) {
	primaryCalls := 0
	fallback := func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/stock/profile2", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"name": "Apple Inc", "ticker": "AAPL",
			"marketCapitalization": 2_800_000.0, // millions
			"finnhubIndustry":      "Technology",
		})
	}
	h := newHarness(t, "pk", "fk", fmpQuoteHandler(&primaryCalls), fallback)

	asset, stale, err := h.svc.Quote(context.Background(), "AAPL")
	require.NoError(t, err)
	require.NotNil(t, asset)
	assert.False(t, stale)

	// Price fields from primary, profile fields from fallback.
	assert.Equal(t, 195.5, asset.Price)
	require.NotNil(t, asset.MarketCap)
	assert.Equal(t, 2.8e12, *asset.MarketCap)
	require.NotNil(t, asset.Sector)
	assert.Equal(t, "Technology", *asset.Sector)
	assert.Equal(t, 1, primaryCalls)
}

func TestQuoteFullFallbackWhenPrimaryFails(t *testing.T) {
	primary := func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}
	fallback := func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/quote":
			json.NewEncoder(w).Encode(map[string]interface{}{"c": 196.0, "t": 1717243200})
		case "/api/v1/stock/profile2":
			json.NewEncoder(w).Encode(map[string]interface{}{"ticker": "AAPL", "name": "Apple Inc", "marketCapitalization": 2_800_000.0, "finnhubIndustry": "Technology"})
		}
	}
	h := newHarness(t, "pk", "fk", primary, fallback)

	asset, stale, err := h.svc.Quote(context.Background(), "AAPL")
	require.NoError(t, err)
	require.NotNil(t, asset)
	assert.False(t, stale)
	assert.Equal(t, 196.0, asset.Price)
	require.NotNil(t, asset.Sector)
}

func TestQuoteStaleCacheAfterBothFail(t *testing.T) {
	failing := func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}
	h := newHarness(t, "pk", "fk", failing, failing)

	// Entry is 2 minutes old: past quoteTTL, within the stale horizon.
	clock := time.Now()
	h.cache.SetClock(func() time.Time { return clock })
	h.cache.Set(cache.Key("stocks", "quote", "AAPL"), &domain.StockAsset{Symbol: "AAPL", Price: 188})
	h.cache.SetClock(func() time.Time { return clock.Add(2 * time.Minute) })

	asset, stale, err := h.svc.Quote(context.Background(), "AAPL")
	require.NoError(t, err)
	require.NotNil(t, asset)
	assert.True(t, stale)
	assert.Equal(t, 188.0, asset.Price)
}

func TestQuoteNilWhenNothingLeft(t *testing.T) {
	failing := func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}
	h := newHarness(t, "pk", "fk", failing, failing)

	asset, stale, err := h.svc.Quote(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Nil(t, asset)
	assert.False(t, stale)
}

func TestQuoteUnknownSymbolIsNil(t *testing.T) {
	primary := func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}
	h := newHarness(t, "pk", "", primary, noCalls(t))

	asset, _, err := h.svc.Quote(context.Background(), "NOPE")
	require.NoError(t, err)
	assert.Nil(t, asset)
}

func TestBreakerShortCircuitsPrimary(t *testing.T) {
	primaryCalls := 0
	primary := func(w http.ResponseWriter, r *http.Request) {
		primaryCalls++
		http.Error(w, "down", http.StatusInternalServerError)
	}
	h := newHarness(t, "pk", "", primary, noCalls(t))

	for i := 0; i < 5; i++ {
		asset, _, err := h.svc.Quote(context.Background(), "AAPL")
		require.NoError(t, err)
		assert.Nil(t, asset)
	}

	// Threshold 3: the last two requests never reach the upstream.
	assert.Equal(t, 3, primaryCalls)
	assert.Equal(t, reliability.StateOpen, h.primaryBreaker.State())

	// After resetTimeout one HALF_OPEN probe goes out.
	h.primaryBreaker.SetClock(func() time.Time { return time.Now().Add(2 * time.Minute) })
	_, _, err := h.svc.Quote(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 4, primaryCalls)
}

func TestBatchMixesCacheAndFetch(t *testing.T) {
	primaryCalls := 0
	primary := func(w http.ResponseWriter, r *http.Request) {
		primaryCalls++
		assert.Equal(t, "/api/v3/quote/MSFT", r.URL.Path)
		json.NewEncoder(w).Encode([]map[string]interface{}{{"symbol": "MSFT", "price": 420.0}})
	}
	h := newHarness(t, "pk", "", primary, noCalls(t))
	h.cache.Set(cache.Key("stocks", "quote", "AAPL"), &domain.StockAsset{Symbol: "AAPL", Price: 190})

	assets, err := h.svc.Batch(context.Background(), []string{"AAPL", "MSFT"})
	require.NoError(t, err)
	require.Len(t, assets, 2)
	assert.Equal(t, 1, primaryCalls)
}

func TestChartTimeframes(t *testing.T) {
	assert.True(t, ValidTimeframe("1D"))
	assert.True(t, ValidTimeframe("1Y"))
	assert.False(t, ValidTimeframe("2W"))

	h := newHarness(t, "pk", "", noCalls(t), noCalls(t))
	_, err := h.svc.Chart(context.Background(), "AAPL", "2W")
	require.Error(t, err)
}

func TestChartPrimaryIntraday(t *testing.T) {
	primary := func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/historical-chart/5min/AAPL", r.URL.Path)
		json.NewEncoder(w).Encode([]map[string]interface{}{
			{"date": "2024-06-03 10:00:00", "close": 195.0},
			{"date": "2024-06-03 09:55:00", "close": 194.5},
		})
	}
	h := newHarness(t, "pk", "", primary, noCalls(t))

	points, err := h.svc.Chart(context.Background(), "AAPL", "1D")
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Less(t, points[0].Timestamp, points[1].Timestamp)
}

func TestChartFallbackResolution(t *testing.T) {
	primary := func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}
	fallback := func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/stock/candle", r.URL.Path)
		assert.Equal(t, "60", r.URL.Query().Get("resolution"))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"s": "ok",
			"t": []int64{1717243200, 1717246800},
			"c": []float64{195.0, 195.5},
		})
	}
	h := newHarness(t, "pk", "fk", primary, fallback)

	points, err := h.svc.Chart(context.Background(), "AAPL", "7D")
	require.NoError(t, err)
	require.Len(t, points, 2)
}

func TestSearchRequiresPrimary(t *testing.T) {
	h := newHarness(t, "", "fk", noCalls(t), noCalls(t))
	_, err := h.svc.Search(context.Background(), "apple")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestStatus(t *testing.T) {
	h := newHarness(t, "pk", "", noCalls(t), noCalls(t))

	status := h.svc.Status()
	assert.True(t, status.Configured)
	assert.True(t, status.AnyConfigured)
	assert.False(t, status.FallbackConfigured)
	assert.Equal(t, reliability.StateClosed, status.CircuitState)
}
