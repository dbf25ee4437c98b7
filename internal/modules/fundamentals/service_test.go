package fundamentals

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/tickerhub/internal/cache"
	"github.com/aristath/tickerhub/internal/clients/fmp"
	"github.com/aristath/tickerhub/internal/fetch"
	"github.com/aristath/tickerhub/internal/reliability"
)

func newService(t *testing.T, apiKey string, handler http.HandlerFunc) *Service {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)

	fetcher := fetch.New(fetch.Config{AllowedHosts: []string{u.Host}, AllowPrivate: true}, zerolog.Nop())
	client := fmp.NewClient(srv.URL, apiKey, fetcher, zerolog.Nop())
	breaker := reliability.NewBreaker(reliability.BreakerConfig{Name: "fmp"}, zerolog.Nop())
	return NewService(client, cache.New(), breaker, zerolog.Nop())
}

func TestNotConfigured(t *testing.T) {
	svc := newService(t, "", func(w http.ResponseWriter, r *http.Request) {
		t.Error("no call expected")
	})

	_, err := svc.Profile(context.Background(), "AAPL")
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = svc.Movers(context.Background(), "gainers")
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = svc.News(context.Background(), "AAPL")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestProfileCachesAndUppercases(t *testing.T) {
	calls := 0
	svc := newService(t, "key", func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "/api/v3/profile/AAPL", r.URL.Path)
		json.NewEncoder(w).Encode([]map[string]interface{}{{"symbol": "AAPL", "companyName": "Apple Inc.", "sector": "Technology"}})
	})

	profile, err := svc.Profile(context.Background(), "aapl")
	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.Equal(t, "Technology", profile.Sector)

	_, err = svc.Profile(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestProfileUnknownSymbol(t *testing.T) {
	svc := newService(t, "key", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})

	profile, err := svc.Profile(context.Background(), "NOPE")
	require.NoError(t, err)
	assert.Nil(t, profile)
}

func TestValidPE(t *testing.T) {
	valid := func(v float64) *float64 { return &v }

	assert.NotNil(t, ValidPE(valid(28.5)))
	assert.NotNil(t, ValidPE(valid(-12)))
	assert.Nil(t, ValidPE(nil))
	assert.Nil(t, ValidPE(valid(0)))
	assert.Nil(t, ValidPE(valid(10_000)))
	assert.Nil(t, ValidPE(valid(-25_000)))
	assert.Nil(t, ValidPE(valid(math.NaN())))
	assert.Nil(t, ValidPE(valid(math.Inf(1))))
}

func TestPERatioFiltersImplausible(t *testing.T) {
	svc := newService(t, "key", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]interface{}{{"symbol": "AAPL", "pe": 123456.0}})
	})

	pe, err := svc.PERatio(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Nil(t, pe)
}

func TestMovers(t *testing.T) {
	svc := newService(t, "key", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/stock_market/losers", r.URL.Path)
		json.NewEncoder(w).Encode([]map[string]interface{}{{"symbol": "XYZ", "changesPercentage": -8.1}})
	})

	movers, err := svc.Movers(context.Background(), "losers")
	require.NoError(t, err)
	require.Len(t, movers, 1)
	assert.Equal(t, -8.1, movers[0].ChangePercent)
}

func TestCalendarKinds(t *testing.T) {
	var paths []string
	svc := newService(t, "key", func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		w.Write([]byte(`[]`))
	})

	for _, kind := range []string{"earnings", "dividends", "ipos", "splits"} {
		_, err := svc.Calendar(context.Background(), kind)
		require.NoError(t, err, kind)
	}
	assert.Equal(t, []string{
		"/api/v3/earning_calendar",
		"/api/v3/stock_dividend_calendar",
		"/api/v3/ipo_calendar",
		"/api/v3/stock_split_calendar",
	}, paths)

	_, err := svc.Calendar(context.Background(), "holidays")
	require.Error(t, err)
}

func TestStatementKinds(t *testing.T) {
	var paths []string
	svc := newService(t, "key", func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		w.Write([]byte(`[]`))
	})

	for _, kind := range []string{"income", "balance-sheet", "cash-flow", "metrics"} {
		_, err := svc.Statement(context.Background(), "aapl", kind)
		require.NoError(t, err, kind)
	}
	assert.Equal(t, []string{
		"/api/v3/income-statement/AAPL",
		"/api/v3/balance-sheet-statement/AAPL",
		"/api/v3/cash-flow-statement/AAPL",
		"/api/v3/key-metrics/AAPL",
	}, paths)

	_, err := svc.Statement(context.Background(), "AAPL", "quarterly")
	require.Error(t, err)
}

func TestRawPayloadCached(t *testing.T) {
	calls := 0
	svc := newService(t, "key", func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`[{"title":"hello"}]`))
	})

	first, err := svc.News(context.Background(), "AAPL")
	require.NoError(t, err)
	second, err := svc.News(context.Background(), "AAPL")
	require.NoError(t, err)

	assert.JSONEq(t, string(first), string(second))
	assert.Equal(t, 1, calls)
}

func TestUpstreamErrorPropagates(t *testing.T) {
	svc := newService(t, "key", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	})

	_, err := svc.Sectors(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotConfigured)
}
