// Package fundamentals serves company fundamentals, market news, analyst
// data, calendars and financial statements from the fundamentals upstream.
// Most payloads pass through unreshaped; caching and breaker policy is the
// gateway's.
package fundamentals

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/tickerhub/internal/cache"
	"github.com/aristath/tickerhub/internal/clients/fmp"
	"github.com/aristath/tickerhub/internal/domain"
	"github.com/aristath/tickerhub/internal/metrics"
	"github.com/aristath/tickerhub/internal/reliability"
)

// Tiered TTLs: the faster a payload moves, the shorter it lives.
const (
	moversTTL     = 5 * time.Minute
	newsTTL       = 10 * time.Minute
	profileTTL    = 15 * time.Minute
	calendarTTL   = 15 * time.Minute
	analystTTL    = 30 * time.Minute
	financialsTTL = time.Hour

	newsLimit      = 20
	statementLimit = 4
	gradeLimit     = 30

	calendarWindow = 30 * 24 * time.Hour
)

// ErrNotConfigured signals that the fundamentals provider has no credentials.
var ErrNotConfigured = errors.New("fundamentals provider not configured")

// Service provides fundamentals data operations.
type Service struct {
	client  *fmp.Client
	cache   *cache.Cache
	breaker *reliability.Breaker
	now     func() time.Time
	log     zerolog.Logger
}

// NewService creates a new fundamentals service. The breaker is shared with
// the stocks service: both fronts hit the same upstream quota.
func NewService(client *fmp.Client, c *cache.Cache, breaker *reliability.Breaker, log zerolog.Logger) *Service {
	return &Service{
		client:  client,
		cache:   c,
		breaker: breaker,
		now:     time.Now,
		log:     log.With().Str("service", "fundamentals").Logger(),
	}
}

// Configured reports whether the upstream has credentials.
func (s *Service) Configured() bool {
	return s.client.Configured()
}

// Profile returns a company profile; nil when the symbol is unknown.
func (s *Service) Profile(ctx context.Context, symbol string) (*fmp.Profile, error) {
	symbol = strings.ToUpper(symbol)
	if !s.client.Configured() {
		return nil, ErrNotConfigured
	}

	key := cache.Key("fmp", "profile", symbol)
	if v, ok := s.cache.Get(key, profileTTL); ok {
		metrics.CacheHits.WithLabelValues("fundamentals").Inc()
		return v.(*fmp.Profile), nil
	}
	metrics.CacheMisses.WithLabelValues("fundamentals").Inc()

	var profile *fmp.Profile
	err := s.breaker.Execute(func() error {
		var err error
		profile, err = s.client.GetProfile(ctx, symbol)
		return err
	})
	s.observe(err)
	if err != nil {
		return nil, err
	}

	if profile != nil {
		s.cache.Set(key, profile)
	}
	return profile, nil
}

// PERatio returns a symbol's P/E when it passes the sanity gate: finite,
// non-zero, magnitude under 10000. nil otherwise.
func (s *Service) PERatio(ctx context.Context, symbol string) (*float64, error) {
	symbol = strings.ToUpper(symbol)
	if !s.client.Configured() {
		return nil, ErrNotConfigured
	}

	key := cache.Key("fmp", "pe", symbol)
	if v, ok := s.cache.Get(key, profileTTL); ok {
		metrics.CacheHits.WithLabelValues("fundamentals").Inc()
		return v.(*float64), nil
	}
	metrics.CacheMisses.WithLabelValues("fundamentals").Inc()

	var rows []domain.StockAsset
	err := s.breaker.Execute(func() error {
		var err error
		rows, err = s.client.Quotes(ctx, []string{symbol})
		return err
	})
	s.observe(err)
	if err != nil {
		return nil, err
	}

	var pe *float64
	if len(rows) > 0 {
		pe = ValidPE(rows[0].PE)
	}
	s.cache.Set(key, pe)
	return pe, nil
}

// ValidPE filters implausible P/E values.
func ValidPE(pe *float64) *float64 {
	if pe == nil {
		return nil
	}
	v := *pe
	if math.IsNaN(v) || math.IsInf(v, 0) || v == 0 || math.Abs(v) >= 10_000 {
		return nil
	}
	return &v
}

// Movers returns a market-movers board: gainers, losers or actives.
func (s *Service) Movers(ctx context.Context, board string) ([]domain.Mover, error) {
	if !s.client.Configured() {
		return nil, ErrNotConfigured
	}

	key := cache.Key("fmp", "movers", board)
	if v, ok := s.cache.Get(key, moversTTL); ok {
		metrics.CacheHits.WithLabelValues("fundamentals").Inc()
		return v.([]domain.Mover), nil
	}
	metrics.CacheMisses.WithLabelValues("fundamentals").Inc()

	var movers []domain.Mover
	err := s.breaker.Execute(func() error {
		var err error
		movers, err = s.client.Movers(ctx, board)
		return err
	})
	s.observe(err)
	if err != nil {
		return nil, err
	}

	s.cache.Set(key, movers)
	return movers, nil
}

// News returns recent news for a symbol.
func (s *Service) News(ctx context.Context, symbol string) (json.RawMessage, error) {
	symbol = strings.ToUpper(symbol)
	return s.raw(ctx, cache.Key("fmp", "news", symbol), newsTTL, func(ctx context.Context) (json.RawMessage, error) {
		return s.client.StockNews(ctx, symbol, newsLimit)
	})
}

// GeneralNews returns the market-wide news feed.
func (s *Service) GeneralNews(ctx context.Context) (json.RawMessage, error) {
	return s.raw(ctx, cache.Key("fmp", "generalnews"), newsTTL, func(ctx context.Context) (json.RawMessage, error) {
		return s.client.GeneralNews(ctx, 0)
	})
}

// Earnings returns a symbol's earnings history and upcoming dates.
func (s *Service) Earnings(ctx context.Context, symbol string) (json.RawMessage, error) {
	symbol = strings.ToUpper(symbol)
	return s.raw(ctx, cache.Key("fmp", "earnings", symbol), analystTTL, func(ctx context.Context) (json.RawMessage, error) {
		return s.client.EarningsHistory(ctx, symbol, gradeLimit)
	})
}

// AnalystEstimates returns per-symbol analyst estimates.
func (s *Service) AnalystEstimates(ctx context.Context, symbol string) (json.RawMessage, error) {
	symbol = strings.ToUpper(symbol)
	return s.raw(ctx, cache.Key("fmp", "estimates", symbol), analystTTL, func(ctx context.Context) (json.RawMessage, error) {
		return s.client.AnalystEstimates(ctx, symbol)
	})
}

// PriceTargetConsensus returns the aggregated price target.
func (s *Service) PriceTargetConsensus(ctx context.Context, symbol string) (json.RawMessage, error) {
	symbol = strings.ToUpper(symbol)
	return s.raw(ctx, cache.Key("fmp", "pricetarget", symbol), analystTTL, func(ctx context.Context) (json.RawMessage, error) {
		return s.client.PriceTargetConsensus(ctx, symbol)
	})
}

// Grades returns recent analyst grade changes.
func (s *Service) Grades(ctx context.Context, symbol string) (json.RawMessage, error) {
	symbol = strings.ToUpper(symbol)
	return s.raw(ctx, cache.Key("fmp", "grades", symbol), analystTTL, func(ctx context.Context) (json.RawMessage, error) {
		return s.client.GradeHistory(ctx, symbol, gradeLimit)
	})
}

// GradeConsensus returns the aggregated analyst rating.
func (s *Service) GradeConsensus(ctx context.Context, symbol string) (json.RawMessage, error) {
	symbol = strings.ToUpper(symbol)
	return s.raw(ctx, cache.Key("fmp", "gradeconsensus", symbol), analystTTL, func(ctx context.Context) (json.RawMessage, error) {
		return s.client.GradeConsensus(ctx, symbol)
	})
}

// Calendar returns one of the market calendars: earnings, dividends, ipos
// or splits, spanning the next 30 days.
func (s *Service) Calendar(ctx context.Context, kind string) (json.RawMessage, error) {
	from, to := s.now(), s.now().Add(calendarWindow)

	var fetch func(context.Context) (json.RawMessage, error)
	switch kind {
	case "earnings":
		fetch = func(ctx context.Context) (json.RawMessage, error) { return s.client.EarningsCalendar(ctx, from, to) }
	case "dividends":
		fetch = func(ctx context.Context) (json.RawMessage, error) { return s.client.DividendCalendar(ctx, from, to) }
	case "ipos":
		fetch = func(ctx context.Context) (json.RawMessage, error) { return s.client.IPOCalendar(ctx, from, to) }
	case "splits":
		fetch = func(ctx context.Context) (json.RawMessage, error) { return s.client.SplitCalendar(ctx, from, to) }
	default:
		return nil, errors.New("invalid calendar kind")
	}
	return s.raw(ctx, cache.Key("fmp", "calendar", kind), calendarTTL, fetch)
}

// Sectors returns the day's per-sector performance.
func (s *Service) Sectors(ctx context.Context) (json.RawMessage, error) {
	return s.raw(ctx, cache.Key("fmp", "sectors"), newsTTL, s.client.SectorPerformance)
}

// Statement returns a financial statement set: income, balance-sheet,
// cash-flow or metrics.
func (s *Service) Statement(ctx context.Context, symbol, kind string) (json.RawMessage, error) {
	symbol = strings.ToUpper(symbol)

	var fetch func(context.Context) (json.RawMessage, error)
	switch kind {
	case "income":
		fetch = func(ctx context.Context) (json.RawMessage, error) {
			return s.client.IncomeStatement(ctx, symbol, statementLimit)
		}
	case "balance-sheet":
		fetch = func(ctx context.Context) (json.RawMessage, error) {
			return s.client.BalanceSheet(ctx, symbol, statementLimit)
		}
	case "cash-flow":
		fetch = func(ctx context.Context) (json.RawMessage, error) {
			return s.client.CashFlow(ctx, symbol, statementLimit)
		}
	case "metrics":
		fetch = func(ctx context.Context) (json.RawMessage, error) {
			return s.client.KeyMetrics(ctx, symbol, statementLimit)
		}
	default:
		return nil, errors.New("invalid statement kind")
	}
	return s.raw(ctx, cache.Key("fmp", "statement", kind, symbol), financialsTTL, fetch)
}

// Institutions returns the institutional holders list.
func (s *Service) Institutions(ctx context.Context, symbol string) (json.RawMessage, error) {
	symbol = strings.ToUpper(symbol)
	return s.raw(ctx, cache.Key("fmp", "institutions", symbol), financialsTTL, func(ctx context.Context) (json.RawMessage, error) {
		return s.client.InstitutionalHolders(ctx, symbol)
	})
}

func (s *Service) raw(ctx context.Context, key string, ttl time.Duration, fetch func(context.Context) (json.RawMessage, error)) (json.RawMessage, error) {
	if !s.client.Configured() {
		return nil, ErrNotConfigured
	}

	if v, ok := s.cache.Get(key, ttl); ok {
		metrics.CacheHits.WithLabelValues("fundamentals").Inc()
		return v.(json.RawMessage), nil
	}
	metrics.CacheMisses.WithLabelValues("fundamentals").Inc()

	var payload json.RawMessage
	err := s.breaker.Execute(func() error {
		var err error
		payload, err = fetch(ctx)
		return err
	})
	s.observe(err)
	if err != nil {
		return nil, err
	}

	s.cache.Set(key, payload)
	return payload, nil
}

func (s *Service) observe(err error) {
	switch {
	case err == nil:
		metrics.UpstreamRequests.WithLabelValues("fmp", "ok").Inc()
	case errors.Is(err, reliability.ErrCircuitOpen):
		metrics.UpstreamRequests.WithLabelValues("fmp", "rejected").Inc()
	default:
		metrics.UpstreamRequests.WithLabelValues("fmp", "error").Inc()
	}
	metrics.ObserveBreaker("fmp", string(s.breaker.State()))
}
