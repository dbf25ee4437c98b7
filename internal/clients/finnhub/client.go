// Package finnhub is the Finnhub API client, the fallback stock provider.
package finnhub

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/tickerhub/internal/domain"
	"github.com/aristath/tickerhub/internal/fetch"
)

const requestTimeout = 10 * time.Second

// Client is a Finnhub API client.
type Client struct {
	baseURL string
	apiKey  string
	fetcher *fetch.Fetcher
	log     zerolog.Logger
}

// NewClient creates a new Finnhub client.
func NewClient(baseURL, apiKey string, fetcher *fetch.Fetcher, log zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		fetcher: fetcher,
		log:     log.With().Str("client", "finnhub").Logger(),
	}
}

// Configured reports whether real calls can be made.
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

// quoteResponse is the /api/v1/quote shape. A zero current price with a
// zero timestamp means the symbol is unknown.
type quoteResponse struct {
	Current       float64 `json:"c"`
	Change        float64 `json:"d"`
	ChangePercent float64 `json:"dp"`
	High          float64 `json:"h"`
	Low           float64 `json:"l"`
	Open          float64 `json:"o"`
	PreviousClose float64 `json:"pc"`
	Timestamp     int64   `json:"t"` // epoch seconds
}

// profileResponse is the /api/v1/stock/profile2 shape. Market cap comes in
// millions of dollars.
type profileResponse struct {
	Name            string  `json:"name"`
	Ticker          string  `json:"ticker"`
	Exchange        string  `json:"exchange"`
	Currency        string  `json:"currency"`
	MarketCapMillis float64 `json:"marketCapitalization"`
	Industry        string  `json:"finnhubIndustry"`
}

// candleResponse is the /api/v1/stock/candle shape: parallel arrays plus a
// status flag ("ok" or "no_data").
type candleResponse struct {
	Close     []float64 `json:"c"`
	High      []float64 `json:"h"`
	Low       []float64 `json:"l"`
	Open      []float64 `json:"o"`
	Volume    []float64 `json:"v"`
	Timestamp []int64   `json:"t"` // epoch seconds
	Status    string    `json:"s"`
}

// Profile is the profile subset used for merging into a quote.
type Profile struct {
	Name      string
	Exchange  string
	Currency  string
	MarketCap float64 // dollars
	Sector    string
}

func (c *Client) apiURL(path string, params url.Values) string {
	params.Set("token", c.apiKey)
	return fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())
}

// GetQuote fetches a quote; nil when the symbol is unknown.
func (c *Client) GetQuote(ctx context.Context, symbol string) (*domain.StockAsset, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	var resp quoteResponse
	if err := c.fetcher.FetchJSON(ctx, c.apiURL("/api/v1/quote", params), requestTimeout, &resp); err != nil {
		return nil, fmt.Errorf("finnhub quote %s: %w", symbol, err)
	}
	if resp.Current == 0 && resp.Timestamp == 0 {
		return nil, nil
	}

	symbol = strings.ToUpper(symbol)
	return &domain.StockAsset{
		ID:               symbol,
		Type:             "stock",
		Symbol:           symbol,
		Name:             symbol,
		Price:            resp.Current,
		Change24h:        resp.Change,
		ChangePercent24h: resp.ChangePercent,
		High24h:          resp.High,
		Low24h:           resp.Low,
		Currency:         "USD",
		PreviousClose:    resp.PreviousClose,
		Open:             resp.Open,
		LastUpdated:      resp.Timestamp * 1000,
	}, nil
}

// GetProfile fetches the company profile used for quote merging; nil when
// the symbol is unknown.
func (c *Client) GetProfile(ctx context.Context, symbol string) (*Profile, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	var resp profileResponse
	if err := c.fetcher.FetchJSON(ctx, c.apiURL("/api/v1/stock/profile2", params), requestTimeout, &resp); err != nil {
		return nil, fmt.Errorf("finnhub profile %s: %w", symbol, err)
	}
	if resp.Ticker == "" && resp.Name == "" {
		return nil, nil
	}

	return &Profile{
		Name:      resp.Name,
		Exchange:  resp.Exchange,
		Currency:  resp.Currency,
		MarketCap: resp.MarketCapMillis * 1_000_000,
		Sector:    resp.Industry,
	}, nil
}

// Candles fetches candles at a resolution code ("5", "60" or "D") within
// [from, to], returned in ascending timestamp order with epoch-ms stamps.
func (c *Client) Candles(ctx context.Context, symbol, resolution string, from, to time.Time) ([]domain.ChartPoint, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("resolution", resolution)
	params.Set("from", strconv.FormatInt(from.Unix(), 10))
	params.Set("to", strconv.FormatInt(to.Unix(), 10))

	var resp candleResponse
	if err := c.fetcher.FetchJSON(ctx, c.apiURL("/api/v1/stock/candle", params), requestTimeout, &resp); err != nil {
		return nil, fmt.Errorf("finnhub candles %s: %w", symbol, err)
	}
	if resp.Status != "ok" {
		return []domain.ChartPoint{}, nil
	}

	return normalizeCandles(resp), nil
}

// normalizeCandles zips the parallel candle arrays into chart points,
// skipping indexes where the arrays disagree in length.
func normalizeCandles(resp candleResponse) []domain.ChartPoint {
	points := make([]domain.ChartPoint, 0, len(resp.Timestamp))
	for i, ts := range resp.Timestamp {
		if i >= len(resp.Close) {
			break
		}

		point := domain.ChartPoint{
			Timestamp: ts * 1000,
			Price:     resp.Close[i],
		}
		if i < len(resp.Open) {
			open := resp.Open[i]
			point.Open = &open
		}
		if i < len(resp.High) {
			high := resp.High[i]
			point.High = &high
		}
		if i < len(resp.Low) {
			low := resp.Low[i]
			point.Low = &low
		}
		closeP := resp.Close[i]
		point.Close = &closeP
		if i < len(resp.Volume) {
			volume := resp.Volume[i]
			point.Volume = &volume
		}
		points = append(points, point)
	}
	return points
}
