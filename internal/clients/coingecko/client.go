// Package coingecko is the CoinGecko API client (crypto quotes and charts).
package coingecko

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/aristath/tickerhub/internal/domain"
	"github.com/aristath/tickerhub/internal/fetch"
)

const requestTimeout = 10 * time.Second

// Client is a CoinGecko API client. The free tier works without a key; a
// demo key raises the quota when configured.
type Client struct {
	baseURL  string
	apiKey   string
	fetcher  *fetch.Fetcher
	throttle *rate.Limiter
	log      zerolog.Logger
}

// NewClient creates a new CoinGecko client.
func NewClient(baseURL, apiKey string, fetcher *fetch.Fetcher, log zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		fetcher: fetcher,
		// Free-tier courtesy throttle: ~30 calls/min with small bursts.
		throttle: rate.NewLimiter(rate.Every(2*time.Second), 3),
		log:      log.With().Str("client", "coingecko").Logger(),
	}
}

// marketCoin is the upstream market-row shape.
type marketCoin struct {
	ID                       string  `json:"id"`
	Symbol                   string  `json:"symbol"`
	Name                     string  `json:"name"`
	Image                    string  `json:"image"`
	CurrentPrice             float64 `json:"current_price"`
	PriceChange24h           float64 `json:"price_change_24h"`
	PriceChangePercentage24h float64 `json:"price_change_percentage_24h"`
	MarketCap                float64 `json:"market_cap"`
	TotalVolume              float64 `json:"total_volume"`
	High24h                  float64 `json:"high_24h"`
	Low24h                   float64 `json:"low_24h"`
	SparklineIn7d            struct {
		Price []float64 `json:"price"`
	} `json:"sparkline_in_7d"`
}

// marketChart is the upstream chart shape: [timestamp-ms, value] pairs.
type marketChart struct {
	Prices [][2]float64 `json:"prices"`
}

// Markets fetches the top coins by market cap, or the given ids when set.
func (c *Client) Markets(ctx context.Context, ids []string, limit int) ([]domain.PriceQuote, error) {
	if err := c.throttle.Wait(ctx); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("vs_currency", "usd")
	params.Set("order", "market_cap_desc")
	params.Set("per_page", fmt.Sprintf("%d", limit))
	params.Set("page", "1")
	params.Set("sparkline", "true")
	if len(ids) > 0 {
		params.Set("ids", strings.Join(ids, ","))
	}
	if c.apiKey != "" {
		params.Set("x_cg_demo_api_key", c.apiKey)
	}

	var coins []marketCoin
	reqURL := fmt.Sprintf("%s/api/v3/coins/markets?%s", c.baseURL, params.Encode())
	if err := c.fetcher.FetchJSON(ctx, reqURL, requestTimeout, &coins); err != nil {
		return nil, fmt.Errorf("coingecko markets: %w", err)
	}

	quotes := make([]domain.PriceQuote, 0, len(coins))
	for _, coin := range coins {
		quotes = append(quotes, normalizeCoin(coin))
	}
	return quotes, nil
}

// MarketChart fetches a coin's price series over the given number of days,
// downsampled to at most 100 points with timestamps in epoch seconds.
func (c *Client) MarketChart(ctx context.Context, coinID string, days int) ([]domain.ChartPoint, error) {
	if err := c.throttle.Wait(ctx); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("vs_currency", "usd")
	params.Set("days", fmt.Sprintf("%d", days))
	if c.apiKey != "" {
		params.Set("x_cg_demo_api_key", c.apiKey)
	}

	var chart marketChart
	reqURL := fmt.Sprintf("%s/api/v3/coins/%s/market_chart?%s", c.baseURL, url.PathEscape(coinID), params.Encode())
	if err := c.fetcher.FetchJSON(ctx, reqURL, requestTimeout, &chart); err != nil {
		return nil, fmt.Errorf("coingecko chart %s: %w", coinID, err)
	}

	return normalizeChart(chart.Prices), nil
}

// normalizeCoin maps an upstream market row to the normalized quote,
// sampling the 7-day sparkline down to every 4th point.
func normalizeCoin(coin marketCoin) domain.PriceQuote {
	var sparkline []float64
	for i, price := range coin.SparklineIn7d.Price {
		if i%4 == 0 {
			sparkline = append(sparkline, price)
		}
	}

	return domain.PriceQuote{
		ID:               coin.ID,
		Symbol:           coin.Symbol,
		Name:             coin.Name,
		Image:            coin.Image,
		Price:            coin.CurrentPrice,
		Change24h:        coin.PriceChange24h,
		ChangePercent24h: coin.PriceChangePercentage24h,
		MarketCap:        coin.MarketCap,
		Volume24h:        coin.TotalVolume,
		High24h:          coin.High24h,
		Low24h:           coin.Low24h,
		Sparkline:        sparkline,
	}
}

// normalizeChart converts [ms, price] pairs to chart points in epoch
// seconds, keeping every ceil(N/100)-th entry so the result never exceeds
// 100 points.
func normalizeChart(prices [][2]float64) []domain.ChartPoint {
	if len(prices) == 0 {
		return []domain.ChartPoint{}
	}

	step := (len(prices) + 99) / 100
	points := make([]domain.ChartPoint, 0, 100)
	for i, pair := range prices {
		if i%step != 0 {
			continue
		}
		points = append(points, domain.ChartPoint{
			Timestamp: int64(pair[0]) / 1000,
			Price:     pair[1],
		})
	}
	return points
}
