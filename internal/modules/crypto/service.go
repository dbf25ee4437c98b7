// Package crypto serves cryptocurrency quotes and charts from the price
// upstream through the cache and circuit breaker.
package crypto

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/tickerhub/internal/cache"
	"github.com/aristath/tickerhub/internal/domain"
	"github.com/aristath/tickerhub/internal/metrics"
	"github.com/aristath/tickerhub/internal/reliability"
)

const (
	quoteTTL = time.Minute
	chartTTL = 5 * time.Minute

	topCoinsLimit = 50
)

// Provider is the upstream surface the service needs. *coingecko.Client
// satisfies it.
type Provider interface {
	Markets(ctx context.Context, ids []string, limit int) ([]domain.PriceQuote, error)
	MarketChart(ctx context.Context, coinID string, days int) ([]domain.ChartPoint, error)
}

// Service provides crypto market data operations.
type Service struct {
	provider Provider
	cache    *cache.Cache
	breaker  *reliability.Breaker
	log      zerolog.Logger
}

// NewService creates a new crypto service.
func NewService(provider Provider, c *cache.Cache, breaker *reliability.Breaker, log zerolog.Logger) *Service {
	return &Service{
		provider: provider,
		cache:    c,
		breaker:  breaker,
		log:      log.With().Str("service", "crypto").Logger(),
	}
}

// TopCoins returns the top coins by market cap.
func (s *Service) TopCoins(ctx context.Context) ([]domain.PriceQuote, error) {
	key := cache.Key("crypto", "top")
	if v, ok := s.cache.Get(key, quoteTTL); ok {
		metrics.CacheHits.WithLabelValues("crypto").Inc()
		return v.([]domain.PriceQuote), nil
	}
	metrics.CacheMisses.WithLabelValues("crypto").Inc()

	quotes, err := s.fetchMarkets(ctx, nil)
	if err != nil {
		return nil, err
	}
	s.cache.Set(key, quotes)
	return quotes, nil
}

// BatchCoins returns quotes for the requested coin ids.
func (s *Service) BatchCoins(ctx context.Context, ids []string) ([]domain.PriceQuote, error) {
	key := cache.Key("crypto", "batch", strings.Join(ids, ","))
	if v, ok := s.cache.Get(key, quoteTTL); ok {
		metrics.CacheHits.WithLabelValues("crypto").Inc()
		return v.([]domain.PriceQuote), nil
	}
	metrics.CacheMisses.WithLabelValues("crypto").Inc()

	quotes, err := s.fetchMarkets(ctx, ids)
	if err != nil {
		return nil, err
	}
	s.cache.Set(key, quotes)
	return quotes, nil
}

// Chart returns a coin's price series for a named range.
func (s *Service) Chart(ctx context.Context, coinID, rng string) ([]domain.ChartPoint, error) {
	days, ok := domain.CoinRanges[rng]
	if !ok {
		return nil, fmt.Errorf("invalid range %q", rng)
	}

	key := cache.Key("crypto", "chart", coinID, rng)
	if v, ok := s.cache.Get(key, chartTTL); ok {
		metrics.CacheHits.WithLabelValues("crypto").Inc()
		return v.([]domain.ChartPoint), nil
	}
	metrics.CacheMisses.WithLabelValues("crypto").Inc()

	var points []domain.ChartPoint
	err := s.breaker.Execute(func() error {
		var err error
		points, err = s.provider.MarketChart(ctx, coinID, days)
		return err
	})
	s.observe(err)
	if err != nil {
		return nil, err
	}

	s.cache.Set(key, points)
	return points, nil
}

// Status reports the breaker state for the health surface.
func (s *Service) Status() reliability.BreakerStats {
	return s.breaker.Stats()
}

func (s *Service) fetchMarkets(ctx context.Context, ids []string) ([]domain.PriceQuote, error) {
	var quotes []domain.PriceQuote
	err := s.breaker.Execute(func() error {
		var err error
		quotes, err = s.provider.Markets(ctx, ids, topCoinsLimit)
		return err
	})
	s.observe(err)
	return quotes, err
}

func (s *Service) observe(err error) {
	switch {
	case err == nil:
		metrics.UpstreamRequests.WithLabelValues("coingecko", "ok").Inc()
	case errors.Is(err, reliability.ErrCircuitOpen):
		metrics.UpstreamRequests.WithLabelValues("coingecko", "rejected").Inc()
	default:
		metrics.UpstreamRequests.WithLabelValues("coingecko", "error").Inc()
	}
	metrics.ObserveBreaker("coingecko", string(s.breaker.State()))
}
