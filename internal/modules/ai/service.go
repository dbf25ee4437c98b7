// Package ai layers LLM-backed analysis on top of the stock and fundamentals
// services: natural-language search parsing, per-stock summaries and a
// market-wide overview. Every operation degrades: parse falls back to
// keywords, the generators report unavailability instead of failing the
// request pipeline.
package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/tickerhub/internal/clients/fmp"
	"github.com/aristath/tickerhub/internal/clients/gemini"
	"github.com/aristath/tickerhub/internal/domain"
)

const (
	summaryTTL  = gemini.DefaultTTL
	overviewTTL = 30 * time.Minute
	searchTTL   = 10 * time.Minute

	keyPointLimit = 3
)

// ErrNotConfigured signals that no LLM credentials are present.
var ErrNotConfigured = errors.New("llm provider not configured")

// ErrUnavailable signals that the LLM could not produce a result right now:
// rate-limited, upstream failure, or unparseable output.
var ErrUnavailable = errors.New("llm unavailable")

// QuoteSource supplies the live quote for a summary.
type QuoteSource interface {
	Quote(ctx context.Context, symbol string) (*domain.StockAsset, bool, error)
}

// FundamentalsSource supplies the contextual data blended into prompts.
type FundamentalsSource interface {
	Profile(ctx context.Context, symbol string) (*fmp.Profile, error)
	News(ctx context.Context, symbol string) (json.RawMessage, error)
	GradeConsensus(ctx context.Context, symbol string) (json.RawMessage, error)
	PriceTargetConsensus(ctx context.Context, symbol string) (json.RawMessage, error)
	Movers(ctx context.Context, board string) ([]domain.Mover, error)
	Sectors(ctx context.Context) (json.RawMessage, error)
}

// Service provides AI analysis operations.
type Service struct {
	llm    *gemini.Client
	stocks QuoteSource
	fund   FundamentalsSource
	now    func() time.Time
	log    zerolog.Logger
}

// NewService creates a new AI service.
func NewService(llm *gemini.Client, stocks QuoteSource, fund FundamentalsSource, log zerolog.Logger) *Service {
	return &Service{
		llm:    llm,
		stocks: stocks,
		fund:   fund,
		now:    time.Now,
		log:    log.With().Str("service", "ai").Logger(),
	}
}

// SetClock overrides the time source, for tests.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Status describes the LLM adapter's health for the status endpoint.
type Status struct {
	Configured        bool            `json:"configured"`
	Available         bool            `json:"available"`
	RequestsRemaining int             `json:"requestsRemaining"`
	Features          map[string]bool `json:"features"`
}

// Status reports configuration, limiter headroom and per-feature availability.
func (s *Service) Status() Status {
	configured, rate := s.llm.Status()
	available := configured && rate.RequestsRemaining > 0
	return Status{
		Configured:        configured,
		Available:         available,
		RequestsRemaining: rate.RequestsRemaining,
		Features: map[string]bool{
			"search":   true, // keyword fallback keeps search alive without the LLM
			"summary":  configured,
			"overview": configured,
		},
	}
}

// llmSummary is the shape requested from the model; fields are validated and
// defaulted before they become a domain.StockSummary.
type llmSummary struct {
	Sentiment struct {
		Score int    `json:"score"`
		Label string `json:"label"`
	} `json:"sentiment"`
	Summary   string `json:"summary"`
	KeyPoints struct {
		Positive []string `json:"positive"`
		Negative []string `json:"negative"`
		Neutral  []string `json:"neutral"`
	} `json:"keyPoints"`
	Catalysts []string `json:"catalysts"`
	Risks     []string `json:"risks"`
}

const summaryPrompt = `You are a financial analyst. Using ONLY the data below,
write a concise analysis of %s as JSON with fields:
sentiment {score: 1-10 integer, label}, summary (2-3 sentences),
keyPoints {positive, negative, neutral: string lists, max 3 each},
catalysts (string list), risks (string list).
Respond with JSON only, no prose, no markdown.

%s`

// SummarizeStock builds a prompt from the quote, profile, news and analyst
// data fetched in parallel, and asks the LLM for a structured summary.
// Returns (nil, nil) when the symbol is unknown; ErrUnavailable when the LLM
// cannot answer.
func (s *Service) SummarizeStock(ctx context.Context, symbol string) (*domain.StockSummary, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if !s.llm.Configured() {
		return nil, ErrNotConfigured
	}

	var (
		wg      sync.WaitGroup
		quote   *domain.StockAsset
		profile *fmp.Profile
		news    json.RawMessage
		grades  json.RawMessage
		targets json.RawMessage
	)

	// Each input is optional except the quote; per-source failures degrade
	// the prompt instead of the request.
	wg.Add(5)
	go func() {
		defer wg.Done()
		q, _, err := s.stocks.Quote(ctx, symbol)
		if err != nil {
			s.log.Debug().Err(err).Str("symbol", symbol).Msg("summary quote unavailable")
			return
		}
		quote = q
	}()
	go func() {
		defer wg.Done()
		profile, _ = s.fund.Profile(ctx, symbol)
	}()
	go func() {
		defer wg.Done()
		news, _ = s.fund.News(ctx, symbol)
	}()
	go func() {
		defer wg.Done()
		grades, _ = s.fund.GradeConsensus(ctx, symbol)
	}()
	go func() {
		defer wg.Done()
		targets, _ = s.fund.PriceTargetConsensus(ctx, symbol)
	}()
	wg.Wait()

	if quote == nil {
		return nil, nil
	}

	var data strings.Builder
	writeSection(&data, "QUOTE", quote)
	if profile != nil {
		writeSection(&data, "PROFILE", profile)
	}
	writeRawSection(&data, "RECENT NEWS", news)
	writeRawSection(&data, "ANALYST RATINGS", grades)
	writeRawSection(&data, "PRICE TARGETS", targets)

	prompt := fmt.Sprintf(summaryPrompt, symbol, data.String())
	cacheKey := "llm:summary:" + symbol

	var raw llmSummary
	if !s.llm.GenerateJSON(ctx, prompt, cacheKey, summaryTTL, &raw) {
		return nil, ErrUnavailable
	}

	summary := &domain.StockSummary{
		Symbol: symbol,
		Sentiment: domain.Sentiment{
			Score: clampScore(raw.Sentiment.Score),
		},
		Summary: raw.Summary,
		KeyPoints: domain.KeyPoints{
			Positive: capList(raw.KeyPoints.Positive, keyPointLimit),
			Negative: capList(raw.KeyPoints.Negative, keyPointLimit),
			Neutral:  capList(raw.KeyPoints.Neutral, keyPointLimit),
		},
		Catalysts:   nonNil(raw.Catalysts),
		Risks:       nonNil(raw.Risks),
		GeneratedAt: s.now().UTC().Format(time.RFC3339),
		DataSource:  "gemini",
	}
	summary.Sentiment.Label = SentimentLabel(summary.Sentiment.Score)
	return summary, nil
}

// llmOverview mirrors domain.MarketOverview minus the server-set fields.
type llmOverview struct {
	Sentiment      string   `json:"sentiment"`
	Summary        string   `json:"summary"`
	TopThemes      []string `json:"topThemes"`
	SectorsToWatch struct {
		Bullish []string `json:"bullish"`
		Bearish []string `json:"bearish"`
	} `json:"sectorsToWatch"`
	Outlook string `json:"outlook"`
}

const overviewPrompt = `You are a market strategist. Using ONLY the data below,
describe today's US market as JSON with fields:
sentiment (one of "Risk-On", "Risk-Off", "Mixed", "Neutral"),
summary (2-3 sentences), topThemes (string list),
sectorsToWatch {bullish, bearish: sector name lists},
outlook (1-2 sentences).
Respond with JSON only, no prose, no markdown.

%s`

// MarketOverview asks the LLM for a market-wide read built from the movers
// boards and sector performance. Missing inputs shrink the prompt; an LLM
// failure returns ErrUnavailable.
func (s *Service) MarketOverview(ctx context.Context) (*domain.MarketOverview, error) {
	if !s.llm.Configured() {
		return nil, ErrNotConfigured
	}

	var (
		wg      sync.WaitGroup
		gainers []domain.Mover
		losers  []domain.Mover
		sectors json.RawMessage
	)
	wg.Add(3)
	go func() {
		defer wg.Done()
		gainers, _ = s.fund.Movers(ctx, "gainers")
	}()
	go func() {
		defer wg.Done()
		losers, _ = s.fund.Movers(ctx, "losers")
	}()
	go func() {
		defer wg.Done()
		sectors, _ = s.fund.Sectors(ctx)
	}()
	wg.Wait()

	var data strings.Builder
	if len(gainers) > 0 {
		writeSection(&data, "TOP GAINERS", gainers)
	}
	if len(losers) > 0 {
		writeSection(&data, "TOP LOSERS", losers)
	}
	writeRawSection(&data, "SECTOR PERFORMANCE", sectors)

	prompt := fmt.Sprintf(overviewPrompt, data.String())

	var raw llmOverview
	if !s.llm.GenerateJSON(ctx, prompt, "llm:overview", overviewTTL, &raw) {
		return nil, ErrUnavailable
	}

	overview := &domain.MarketOverview{
		Sentiment:   normalizeOverviewSentiment(raw.Sentiment),
		Summary:     raw.Summary,
		TopThemes:   nonNil(raw.TopThemes),
		Outlook:     raw.Outlook,
		GeneratedAt: s.now().UTC().Format(time.RFC3339),
	}
	overview.SectorsToWatch.Bullish = nonNil(raw.SectorsToWatch.Bullish)
	overview.SectorsToWatch.Bearish = nonNil(raw.SectorsToWatch.Bearish)
	return overview, nil
}

// SentimentLabel maps a 1-10 score onto the five-level label scale.
func SentimentLabel(score int) string {
	return domain.SentimentLabels[(clampScore(score)-1)/2]
}

func clampScore(score int) int {
	switch {
	case score < 1:
		return 5
	case score > 10:
		return 10
	default:
		return score
	}
}

func normalizeOverviewSentiment(v string) string {
	for _, valid := range domain.OverviewSentiments {
		if strings.EqualFold(v, valid) {
			return valid
		}
	}
	return "Neutral"
}

func capList(items []string, max int) []string {
	if items == nil {
		return []string{}
	}
	if len(items) > max {
		return items[:max]
	}
	return items
}

func nonNil(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}

func writeSection(b *strings.Builder, title string, v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		return
	}
	fmt.Fprintf(b, "%s:\n%s\n\n", title, payload)
}

func writeRawSection(b *strings.Builder, title string, raw json.RawMessage) {
	if len(raw) == 0 {
		return
	}
	fmt.Fprintf(b, "%s:\n%s\n\n", title, raw)
}
