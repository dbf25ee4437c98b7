// Package stocks serves stock quotes, charts and search through a
// dual-provider policy: FMP primary, Finnhub fallback, stale cache as the
// last resort.
package stocks

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/tickerhub/internal/cache"
	"github.com/aristath/tickerhub/internal/clients/finnhub"
	"github.com/aristath/tickerhub/internal/clients/fmp"
	"github.com/aristath/tickerhub/internal/domain"
	"github.com/aristath/tickerhub/internal/metrics"
	"github.com/aristath/tickerhub/internal/reliability"
)

const (
	quoteTTL   = time.Minute
	chartTTL   = 5 * time.Minute
	searchTTL  = 5 * time.Minute
	profileTTL = 24 * time.Hour

	// How far past quoteTTL a stale entry may still be served when every
	// provider has failed.
	staleHorizon = 5 * time.Minute

	searchLimit = 10
)

// ErrNotConfigured signals that no provider has credentials for the
// requested operation.
var ErrNotConfigured = errors.New("no stock provider configured")

// DefaultSymbols is the top-stocks listing set.
var DefaultSymbols = []string{"AAPL", "MSFT", "GOOGL", "AMZN", "NVDA", "META", "TSLA", "BRK-B", "JPM", "V"}

// timeframeSpec maps a public timeframe to each provider's request shape.
type timeframeSpec struct {
	interval   string // FMP intraday interval; empty means daily
	points     int
	resolution string // Finnhub resolution code
	window     time.Duration
}

var timeframes = map[string]timeframeSpec{
	"1D":  {interval: "5min", points: 78, resolution: "5", window: 5 * 24 * time.Hour},
	"7D":  {interval: "1hour", points: 50, resolution: "60", window: 10 * 24 * time.Hour},
	"30D": {points: 30, resolution: "D", window: 30 * 24 * time.Hour},
	"1Y":  {points: 252, resolution: "D", window: 365 * 24 * time.Hour},
}

// ValidTimeframe reports whether tf is a supported chart timeframe.
func ValidTimeframe(tf string) bool {
	_, ok := timeframes[tf]
	return ok
}

// Status is the stock provider health payload.
type Status struct {
	Configured           bool              `json:"configured"`
	AnyConfigured        bool              `json:"anyConfigured"`
	CircuitState         reliability.State `json:"circuitState"`
	FallbackConfigured   bool              `json:"fallbackConfigured"`
	FallbackCircuitState reliability.State `json:"fallbackCircuitState"`
}

// Service provides stock market data operations.
type Service struct {
	primary         *fmp.Client
	fallback        *finnhub.Client
	cache           *cache.Cache
	primaryBreaker  *reliability.Breaker
	fallbackBreaker *reliability.Breaker
	now             func() time.Time
	log             zerolog.Logger
}

// SetClock overrides the time source used for chart windows, for tests.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// NewService creates a new stocks service.
func NewService(primary *fmp.Client, fallback *finnhub.Client, c *cache.Cache, primaryBreaker, fallbackBreaker *reliability.Breaker, log zerolog.Logger) *Service {
	return &Service{
		primary:         primary,
		fallback:        fallback,
		cache:           c,
		primaryBreaker:  primaryBreaker,
		fallbackBreaker: fallbackBreaker,
		now:             time.Now,
		log:             log.With().Str("service", "stocks").Logger(),
	}
}

// Quote returns one stock quote. stale is true when the value came from the
// extended cache horizon after every provider failed.
func (s *Service) Quote(ctx context.Context, symbol string) (*domain.StockAsset, bool, error) {
	symbol = strings.ToUpper(symbol)
	key := cache.Key("stocks", "quote", symbol)

	if v, ok := s.cache.Get(key, quoteTTL); ok {
		metrics.CacheHits.WithLabelValues("stocks").Inc()
		return v.(*domain.StockAsset), false, nil
	}
	metrics.CacheMisses.WithLabelValues("stocks").Inc()

	if !s.primary.Configured() && !s.fallback.Configured() {
		return nil, false, ErrNotConfigured
	}

	if s.primary.Configured() {
		asset, err := s.primaryQuote(ctx, symbol)
		if err == nil {
			if asset == nil {
				return nil, false, nil
			}
			s.mergeProfile(ctx, asset)
			s.cache.Set(key, asset)
			return asset, false, nil
		}
		s.log.Warn().Err(err).Str("symbol", symbol).Msg("primary quote failed, trying fallback")
	}

	if s.fallback.Configured() {
		asset, err := s.fallbackQuote(ctx, symbol)
		if err == nil {
			if asset == nil {
				return nil, false, nil
			}
			s.mergeProfile(ctx, asset)
			s.cache.Set(key, asset)
			return asset, false, nil
		}
		s.log.Warn().Err(err).Str("symbol", symbol).Msg("fallback quote failed")
	}

	if v, ok := s.cache.Get(key, quoteTTL+staleHorizon); ok {
		s.log.Info().Str("symbol", symbol).Msg("serving stale quote")
		return v.(*domain.StockAsset), true, nil
	}
	return nil, false, nil
}

// Batch returns quotes for the requested symbols, serving fresh cache
// entries individually and fetching only the rest.
func (s *Service) Batch(ctx context.Context, symbols []string) ([]domain.StockAsset, error) {
	if !s.primary.Configured() && !s.fallback.Configured() {
		return nil, ErrNotConfigured
	}

	assets := make([]domain.StockAsset, 0, len(symbols))
	missing := make([]string, 0, len(symbols))
	for _, raw := range symbols {
		symbol := strings.ToUpper(raw)
		if v, ok := s.cache.Get(cache.Key("stocks", "quote", symbol), quoteTTL); ok {
			metrics.CacheHits.WithLabelValues("stocks").Inc()
			assets = append(assets, *v.(*domain.StockAsset))
			continue
		}
		metrics.CacheMisses.WithLabelValues("stocks").Inc()
		missing = append(missing, symbol)
	}
	if len(missing) == 0 {
		return assets, nil
	}

	fetched, err := s.fetchBatch(ctx, missing)
	if err != nil {
		return nil, err
	}
	for i := range fetched {
		asset := fetched[i]
		s.applyCachedProfile(&asset)
		s.cache.Set(cache.Key("stocks", "quote", asset.Symbol), &asset)
		assets = append(assets, asset)
	}
	return assets, nil
}

// Top returns the default top-stocks listing.
func (s *Service) Top(ctx context.Context) ([]domain.StockAsset, error) {
	return s.Batch(ctx, DefaultSymbols)
}

// Chart returns a stock's price series for a named timeframe, points in
// ascending order with epoch-ms timestamps.
func (s *Service) Chart(ctx context.Context, symbol, timeframe string) ([]domain.ChartPoint, error) {
	symbol = strings.ToUpper(symbol)
	spec, ok := timeframes[timeframe]
	if !ok {
		return nil, errors.New("invalid timeframe")
	}

	key := cache.Key("stocks", "chart", symbol, timeframe)
	if v, ok := s.cache.Get(key, chartTTL); ok {
		metrics.CacheHits.WithLabelValues("stocks").Inc()
		return v.([]domain.ChartPoint), nil
	}
	metrics.CacheMisses.WithLabelValues("stocks").Inc()

	if !s.primary.Configured() && !s.fallback.Configured() {
		return nil, ErrNotConfigured
	}

	if s.primary.Configured() {
		points, err := s.primaryChart(ctx, symbol, spec)
		if err == nil && len(points) > 0 {
			s.cache.Set(key, points)
			return points, nil
		}
		if err != nil {
			s.log.Warn().Err(err).Str("symbol", symbol).Msg("primary chart failed, trying fallback")
		}
	}

	if s.fallback.Configured() {
		points, err := s.fallbackChart(ctx, symbol, spec)
		if err == nil && len(points) > 0 {
			s.cache.Set(key, points)
			return points, nil
		}
		if err != nil {
			s.log.Warn().Err(err).Str("symbol", symbol).Msg("fallback chart failed")
		}
	}
	return nil, nil
}

// Search looks up symbols by free-text query.
func (s *Service) Search(ctx context.Context, query string) ([]domain.StockSearchResult, error) {
	if !s.primary.Configured() {
		return nil, ErrNotConfigured
	}

	key := cache.Key("stocks", "search", strings.ToLower(query))
	if v, ok := s.cache.Get(key, searchTTL); ok {
		metrics.CacheHits.WithLabelValues("stocks").Inc()
		return v.([]domain.StockSearchResult), nil
	}
	metrics.CacheMisses.WithLabelValues("stocks").Inc()

	var results []domain.StockSearchResult
	err := s.primaryBreaker.Execute(func() error {
		var err error
		results, err = s.primary.Search(ctx, query, searchLimit)
		return err
	})
	s.observe("fmp", s.primaryBreaker, err)
	if err != nil {
		return nil, err
	}

	s.cache.Set(key, results)
	return results, nil
}

// Status reports provider configuration and breaker state.
func (s *Service) Status() Status {
	return Status{
		Configured:           s.primary.Configured(),
		AnyConfigured:        s.primary.Configured() || s.fallback.Configured(),
		CircuitState:         s.primaryBreaker.State(),
		FallbackConfigured:   s.fallback.Configured(),
		FallbackCircuitState: s.fallbackBreaker.State(),
	}
}

func (s *Service) primaryQuote(ctx context.Context, symbol string) (*domain.StockAsset, error) {
	var asset *domain.StockAsset
	err := s.primaryBreaker.Execute(func() error {
		rows, err := s.primary.Quotes(ctx, []string{symbol})
		if err != nil {
			return err
		}
		if len(rows) > 0 {
			asset = &rows[0]
		}
		return nil
	})
	s.observe("fmp", s.primaryBreaker, err)
	return asset, err
}

func (s *Service) fallbackQuote(ctx context.Context, symbol string) (*domain.StockAsset, error) {
	var asset *domain.StockAsset
	err := s.fallbackBreaker.Execute(func() error {
		var err error
		asset, err = s.fallback.GetQuote(ctx, symbol)
		return err
	})
	s.observe("finnhub", s.fallbackBreaker, err)
	return asset, err
}

func (s *Service) fetchBatch(ctx context.Context, symbols []string) ([]domain.StockAsset, error) {
	if s.primary.Configured() {
		var rows []domain.StockAsset
		err := s.primaryBreaker.Execute(func() error {
			var err error
			rows, err = s.primary.Quotes(ctx, symbols)
			return err
		})
		s.observe("fmp", s.primaryBreaker, err)
		if err == nil {
			return rows, nil
		}
		s.log.Warn().Err(err).Msg("primary batch failed, trying fallback")
	}

	if !s.fallback.Configured() {
		return nil, errors.New("stock providers unavailable")
	}

	rows := make([]domain.StockAsset, 0, len(symbols))
	for _, symbol := range symbols {
		asset, err := s.fallbackQuote(ctx, symbol)
		if err != nil {
			return nil, err
		}
		if asset != nil {
			rows = append(rows, *asset)
		}
	}
	return rows, nil
}

func (s *Service) primaryChart(ctx context.Context, symbol string, spec timeframeSpec) ([]domain.ChartPoint, error) {
	var points []domain.ChartPoint
	err := s.primaryBreaker.Execute(func() error {
		var err error
		if spec.interval != "" {
			points, err = s.primary.IntradayChart(ctx, symbol, spec.interval, s.now().Add(-spec.window), s.now(), spec.points)
		} else {
			points, err = s.primary.DailyChart(ctx, symbol, spec.points)
		}
		return err
	})
	s.observe("fmp", s.primaryBreaker, err)
	return points, err
}

func (s *Service) fallbackChart(ctx context.Context, symbol string, spec timeframeSpec) ([]domain.ChartPoint, error) {
	var points []domain.ChartPoint
	err := s.fallbackBreaker.Execute(func() error {
		var err error
		points, err = s.fallback.Candles(ctx, symbol, spec.resolution, s.now().Add(-spec.window), s.now())
		return err
	})
	s.observe("finnhub", s.fallbackBreaker, err)
	if err != nil {
		return nil, err
	}

	if len(points) > spec.points {
		points = points[len(points)-spec.points:]
	}
	return points, nil
}

// mergeProfile fills marketCap and sector from the fallback provider's
// profile when the quote lacks them. Profile lookups are cached for a day.
func (s *Service) mergeProfile(ctx context.Context, asset *domain.StockAsset) {
	if asset.MarketCap != nil && asset.Sector != nil {
		return
	}
	if !s.fallback.Configured() {
		return
	}

	profile := s.cachedProfile(ctx, asset.Symbol)
	if profile == nil {
		return
	}
	applyProfile(asset, profile)
}

// applyCachedProfile merges a profile only if one is already cached; batch
// paths never spend fallback quota on profile lookups.
func (s *Service) applyCachedProfile(asset *domain.StockAsset) {
	if v, ok := s.cache.Get(cache.Key("stocks", "profile", asset.Symbol), profileTTL); ok {
		applyProfile(asset, v.(*finnhub.Profile))
	}
}

func (s *Service) cachedProfile(ctx context.Context, symbol string) *finnhub.Profile {
	key := cache.Key("stocks", "profile", symbol)
	if v, ok := s.cache.Get(key, profileTTL); ok {
		return v.(*finnhub.Profile)
	}

	var profile *finnhub.Profile
	err := s.fallbackBreaker.Execute(func() error {
		var err error
		profile, err = s.fallback.GetProfile(ctx, symbol)
		return err
	})
	s.observe("finnhub", s.fallbackBreaker, err)
	if err != nil || profile == nil {
		return nil
	}

	s.cache.Set(key, profile)
	return profile
}

func applyProfile(asset *domain.StockAsset, profile *finnhub.Profile) {
	if asset.MarketCap == nil && profile.MarketCap > 0 {
		marketCap := profile.MarketCap
		asset.MarketCap = &marketCap
	}
	if asset.Sector == nil && profile.Sector != "" {
		sector := profile.Sector
		asset.Sector = &sector
	}
	if asset.Name == asset.Symbol && profile.Name != "" {
		asset.Name = profile.Name
	}
}

func (s *Service) observe(provider string, breaker *reliability.Breaker, err error) {
	switch {
	case err == nil:
		metrics.UpstreamRequests.WithLabelValues(provider, "ok").Inc()
	case errors.Is(err, reliability.ErrCircuitOpen):
		metrics.UpstreamRequests.WithLabelValues(provider, "rejected").Inc()
	default:
		metrics.UpstreamRequests.WithLabelValues(provider, "error").Inc()
	}
	metrics.ObserveBreaker(provider, string(breaker.State()))
}
