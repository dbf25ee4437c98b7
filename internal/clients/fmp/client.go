// Package fmp is the Financial Modeling Prep API client: the primary stock
// quote/chart provider plus the fundamentals endpoints (news, analyst data,
// calendars, financial statements).
package fmp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/tickerhub/internal/domain"
	"github.com/aristath/tickerhub/internal/fetch"
)

const (
	requestTimeout = 10 * time.Second

	intradayLayout = "2006-01-02 15:04:05"
	dailyLayout    = "2006-01-02"
)

// Client is a Financial Modeling Prep API client.
type Client struct {
	baseURL string
	apiKey  string
	fetcher *fetch.Fetcher
	log     zerolog.Logger
}

// NewClient creates a new FMP client.
func NewClient(baseURL, apiKey string, fetcher *fetch.Fetcher, log zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		fetcher: fetcher,
		log:     log.With().Str("client", "fmp").Logger(),
	}
}

// Configured reports whether real calls can be made.
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

// quoteRow is the /api/v3/quote shape.
type quoteRow struct {
	Symbol            string   `json:"symbol"`
	Name              string   `json:"name"`
	Price             float64  `json:"price"`
	Change            float64  `json:"change"`
	ChangesPercentage float64  `json:"changesPercentage"`
	DayLow            float64  `json:"dayLow"`
	DayHigh           float64  `json:"dayHigh"`
	MarketCap         float64  `json:"marketCap"`
	Volume            float64  `json:"volume"`
	Exchange          string   `json:"exchange"`
	Open              float64  `json:"open"`
	PreviousClose     float64  `json:"previousClose"`
	PE                *float64 `json:"pe"`
	Timestamp         int64    `json:"timestamp"` // epoch seconds
}

// Profile is the company profile subset the gateway consumes for merging
// and the profile endpoint.
type Profile struct {
	Symbol      string  `json:"symbol"`
	CompanyName string  `json:"companyName"`
	Sector      string  `json:"sector"`
	Industry    string  `json:"industry"`
	MarketCap   float64 `json:"mktCap"`
	Description string  `json:"description"`
	Website     string  `json:"website"`
	CEO         string  `json:"ceo"`
	Country     string  `json:"country"`
	Image       string  `json:"image"`
	Exchange    string  `json:"exchangeShortName"`
	Currency    string  `json:"currency"`
	IPODate     string  `json:"ipoDate"`
	Employees   string  `json:"fullTimeEmployees"`
}

// candleRow covers both the intraday and the daily chart shapes.
type candleRow struct {
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

type historicalResponse struct {
	Historical []candleRow `json:"historical"`
}

type searchRow struct {
	Symbol            string `json:"symbol"`
	Name              string `json:"name"`
	ExchangeShortName string `json:"exchangeShortName"`
}

type moverRow struct {
	Symbol            string  `json:"symbol"`
	Name              string  `json:"name"`
	Price             float64 `json:"price"`
	Change            float64 `json:"change"`
	ChangesPercentage float64 `json:"changesPercentage"`
}

func (c *Client) apiURL(path string, params url.Values) string {
	if params == nil {
		params = url.Values{}
	}
	params.Set("apikey", c.apiKey)
	return fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())
}

// Quotes fetches quotes for one or more symbols in a single call.
func (c *Client) Quotes(ctx context.Context, symbols []string) ([]domain.StockAsset, error) {
	if len(symbols) == 0 {
		return []domain.StockAsset{}, nil
	}

	path := "/api/v3/quote/" + url.PathEscape(strings.Join(symbols, ","))
	var rows []quoteRow
	if err := c.fetcher.FetchJSON(ctx, c.apiURL(path, nil), requestTimeout, &rows); err != nil {
		return nil, fmt.Errorf("fmp quote: %w", err)
	}

	assets := make([]domain.StockAsset, 0, len(rows))
	for _, row := range rows {
		assets = append(assets, normalizeQuote(row))
	}
	return assets, nil
}

// GetProfile fetches a company profile; nil when the symbol is unknown.
func (c *Client) GetProfile(ctx context.Context, symbol string) (*Profile, error) {
	path := "/api/v3/profile/" + url.PathEscape(symbol)
	var rows []Profile
	if err := c.fetcher.FetchJSON(ctx, c.apiURL(path, nil), requestTimeout, &rows); err != nil {
		return nil, fmt.Errorf("fmp profile %s: %w", symbol, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// IntradayChart fetches interval candles ("5min" or "1hour") within the
// given window, returned oldest first with at most maxPoints rows.
func (c *Client) IntradayChart(ctx context.Context, symbol, interval string, from, to time.Time, maxPoints int) ([]domain.ChartPoint, error) {
	params := url.Values{}
	params.Set("from", from.Format(dailyLayout))
	params.Set("to", to.Format(dailyLayout))

	path := fmt.Sprintf("/api/v3/historical-chart/%s/%s", url.PathEscape(interval), url.PathEscape(symbol))
	var rows []candleRow
	if err := c.fetcher.FetchJSON(ctx, c.apiURL(path, params), requestTimeout, &rows); err != nil {
		return nil, fmt.Errorf("fmp intraday chart %s: %w", symbol, err)
	}

	return normalizeCandles(rows, intradayLayout, maxPoints), nil
}

// DailyChart fetches the last `days` daily candles, oldest first.
func (c *Client) DailyChart(ctx context.Context, symbol string, days int) ([]domain.ChartPoint, error) {
	params := url.Values{}
	params.Set("timeseries", strconv.Itoa(days))

	path := "/api/v3/historical-price-full/" + url.PathEscape(symbol)
	var resp historicalResponse
	if err := c.fetcher.FetchJSON(ctx, c.apiURL(path, params), requestTimeout, &resp); err != nil {
		return nil, fmt.Errorf("fmp daily chart %s: %w", symbol, err)
	}

	return normalizeCandles(resp.Historical, dailyLayout, days), nil
}

// Search looks up symbols by free-text query.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]domain.StockSearchResult, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("limit", strconv.Itoa(limit))

	var rows []searchRow
	if err := c.fetcher.FetchJSON(ctx, c.apiURL("/api/v3/search", params), requestTimeout, &rows); err != nil {
		return nil, fmt.Errorf("fmp search: %w", err)
	}

	results := make([]domain.StockSearchResult, 0, len(rows))
	for _, row := range rows {
		symbol := strings.ToUpper(row.Symbol)
		results = append(results, domain.StockSearchResult{
			ID:       symbol,
			Symbol:   symbol,
			Name:     row.Name,
			Exchange: row.ExchangeShortName,
		})
	}
	return results, nil
}

// Movers fetches a market-movers board: "gainers", "losers" or "actives".
func (c *Client) Movers(ctx context.Context, board string) ([]domain.Mover, error) {
	path := "/api/v3/stock_market/" + url.PathEscape(board)
	var rows []moverRow
	if err := c.fetcher.FetchJSON(ctx, c.apiURL(path, nil), requestTimeout, &rows); err != nil {
		return nil, fmt.Errorf("fmp movers %s: %w", board, err)
	}

	movers := make([]domain.Mover, 0, len(rows))
	for _, row := range rows {
		movers = append(movers, domain.Mover{
			Symbol:        row.Symbol,
			Name:          row.Name,
			Price:         row.Price,
			Change:        row.Change,
			ChangePercent: row.ChangesPercentage,
		})
	}
	return movers, nil
}

// Fundamentals endpoints below are thin pass-through wrappers: the upstream
// payloads are served as-is, so they stay json.RawMessage.

// StockNews fetches recent news for a symbol.
func (c *Client) StockNews(ctx context.Context, symbol string, limit int) (json.RawMessage, error) {
	params := url.Values{}
	params.Set("tickers", symbol)
	params.Set("limit", strconv.Itoa(limit))
	return c.raw(ctx, "/api/v3/stock_news", params)
}

// GeneralNews fetches the general market news feed.
func (c *Client) GeneralNews(ctx context.Context, page int) (json.RawMessage, error) {
	params := url.Values{}
	params.Set("page", strconv.Itoa(page))
	return c.raw(ctx, "/api/v4/general_news", params)
}

// AnalystEstimates fetches per-symbol analyst estimates.
func (c *Client) AnalystEstimates(ctx context.Context, symbol string) (json.RawMessage, error) {
	return c.raw(ctx, "/api/v3/analyst-estimates/"+url.PathEscape(symbol), nil)
}

// EarningsHistory fetches a symbol's past and upcoming earnings dates.
func (c *Client) EarningsHistory(ctx context.Context, symbol string, limit int) (json.RawMessage, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	return c.raw(ctx, "/api/v3/historical/earning_calendar/"+url.PathEscape(symbol), params)
}

// PriceTargetConsensus fetches the aggregated price target.
func (c *Client) PriceTargetConsensus(ctx context.Context, symbol string) (json.RawMessage, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	return c.raw(ctx, "/api/v4/price-target-consensus", params)
}

// GradeHistory fetches recent analyst grade changes.
func (c *Client) GradeHistory(ctx context.Context, symbol string, limit int) (json.RawMessage, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	return c.raw(ctx, "/api/v3/grade/"+url.PathEscape(symbol), params)
}

// GradeConsensus fetches the aggregated analyst rating.
func (c *Client) GradeConsensus(ctx context.Context, symbol string) (json.RawMessage, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	return c.raw(ctx, "/api/v4/upgrades-downgrades-consensus", params)
}

// EarningsCalendar fetches the earnings calendar for a date window.
func (c *Client) EarningsCalendar(ctx context.Context, from, to time.Time) (json.RawMessage, error) {
	return c.raw(ctx, "/api/v3/earning_calendar", windowParams(from, to))
}

// DividendCalendar fetches the dividend calendar for a date window.
func (c *Client) DividendCalendar(ctx context.Context, from, to time.Time) (json.RawMessage, error) {
	return c.raw(ctx, "/api/v3/stock_dividend_calendar", windowParams(from, to))
}

// IPOCalendar fetches the IPO calendar for a date window.
func (c *Client) IPOCalendar(ctx context.Context, from, to time.Time) (json.RawMessage, error) {
	return c.raw(ctx, "/api/v3/ipo_calendar", windowParams(from, to))
}

// SplitCalendar fetches the stock split calendar for a date window.
func (c *Client) SplitCalendar(ctx context.Context, from, to time.Time) (json.RawMessage, error) {
	return c.raw(ctx, "/api/v3/stock_split_calendar", windowParams(from, to))
}

// SectorPerformance fetches the day's per-sector performance.
func (c *Client) SectorPerformance(ctx context.Context) (json.RawMessage, error) {
	return c.raw(ctx, "/api/v3/sectors-performance", nil)
}

// IncomeStatement fetches recent income statements.
func (c *Client) IncomeStatement(ctx context.Context, symbol string, limit int) (json.RawMessage, error) {
	return c.statement(ctx, "/api/v3/income-statement/", symbol, limit)
}

// BalanceSheet fetches recent balance sheet statements.
func (c *Client) BalanceSheet(ctx context.Context, symbol string, limit int) (json.RawMessage, error) {
	return c.statement(ctx, "/api/v3/balance-sheet-statement/", symbol, limit)
}

// CashFlow fetches recent cash flow statements.
func (c *Client) CashFlow(ctx context.Context, symbol string, limit int) (json.RawMessage, error) {
	return c.statement(ctx, "/api/v3/cash-flow-statement/", symbol, limit)
}

// KeyMetrics fetches recent key financial metrics.
func (c *Client) KeyMetrics(ctx context.Context, symbol string, limit int) (json.RawMessage, error) {
	return c.statement(ctx, "/api/v3/key-metrics/", symbol, limit)
}

// InstitutionalHolders fetches the institutional holders list.
func (c *Client) InstitutionalHolders(ctx context.Context, symbol string) (json.RawMessage, error) {
	return c.raw(ctx, "/api/v3/institutional-holder/"+url.PathEscape(symbol), nil)
}

func (c *Client) statement(ctx context.Context, prefix, symbol string, limit int) (json.RawMessage, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	return c.raw(ctx, prefix+url.PathEscape(symbol), params)
}

func (c *Client) raw(ctx context.Context, path string, params url.Values) (json.RawMessage, error) {
	var payload json.RawMessage
	if err := c.fetcher.FetchJSON(ctx, c.apiURL(path, params), requestTimeout, &payload); err != nil {
		return nil, fmt.Errorf("fmp %s: %w", path, err)
	}
	return payload, nil
}

func windowParams(from, to time.Time) url.Values {
	params := url.Values{}
	params.Set("from", from.Format(dailyLayout))
	params.Set("to", to.Format(dailyLayout))
	return params
}

func normalizeQuote(row quoteRow) domain.StockAsset {
	symbol := strings.ToUpper(row.Symbol)

	asset := domain.StockAsset{
		ID:               symbol,
		Type:             "stock",
		Symbol:           symbol,
		Name:             row.Name,
		Price:            row.Price,
		Change24h:        row.Change,
		ChangePercent24h: row.ChangesPercentage,
		Volume24h:        row.Volume,
		High24h:          row.DayHigh,
		Low24h:           row.DayLow,
		Exchange:         row.Exchange,
		Currency:         "USD",
		PreviousClose:    row.PreviousClose,
		Open:             row.Open,
		LastUpdated:      row.Timestamp * 1000,
	}
	if row.MarketCap > 0 {
		marketCap := row.MarketCap
		asset.MarketCap = &marketCap
	}
	if row.PE != nil {
		pe := *row.PE
		asset.PE = &pe
	}
	return asset
}

// normalizeCandles converts upstream candles (newest first) to ascending
// chart points with epoch-ms timestamps, keeping at most maxPoints of the
// most recent rows.
func normalizeCandles(rows []candleRow, layout string, maxPoints int) []domain.ChartPoint {
	if maxPoints > 0 && len(rows) > maxPoints {
		rows = rows[:maxPoints]
	}

	points := make([]domain.ChartPoint, 0, len(rows))
	for _, row := range rows {
		t, err := time.Parse(layout, row.Date)
		if err != nil {
			continue
		}

		open, high, low, closeP, volume := row.Open, row.High, row.Low, row.Close, row.Volume
		points = append(points, domain.ChartPoint{
			Timestamp: t.UnixMilli(),
			Price:     row.Close,
			Open:      &open,
			High:      &high,
			Low:       &low,
			Close:     &closeP,
			Volume:    &volume,
		})
	}

	sort.Slice(points, func(i, j int) bool { return points[i].Timestamp < points[j].Timestamp })
	return points
}
