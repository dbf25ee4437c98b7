// Package domain defines the normalized DTOs the gateway exposes. Every
// upstream payload is mapped into these shapes by its provider adapter;
// clients never see an upstream's own format.
package domain

// Chain identifies a supported blockchain.
type Chain string

const (
	ChainBitcoin  Chain = "bitcoin"
	ChainEthereum Chain = "ethereum"
)

// Valid reports whether the chain is one the gateway serves.
func (c Chain) Valid() bool {
	return c == ChainBitcoin || c == ChainEthereum
}

// PriceQuote is a normalized cryptocurrency quote.
type PriceQuote struct {
	ID               string    `json:"id"`
	Symbol           string    `json:"symbol"`
	Name             string    `json:"name"`
	Image            string    `json:"image"`
	Price            float64   `json:"price"`
	Change24h        float64   `json:"change24h"`
	ChangePercent24h float64   `json:"changePercent24h"`
	MarketCap        float64   `json:"marketCap"`
	Volume24h        float64   `json:"volume24h"`
	High24h          float64   `json:"high24h"`
	Low24h           float64   `json:"low24h"`
	Sparkline        []float64 `json:"sparkline,omitempty"`
}

// StockAsset is a normalized stock quote, possibly merged from two providers.
type StockAsset struct {
	ID               string   `json:"id"` // upper-cased symbol
	Type             string   `json:"type"`
	Symbol           string   `json:"symbol"`
	Name             string   `json:"name"`
	Price            float64  `json:"price"`
	Change24h        float64  `json:"change24h"`
	ChangePercent24h float64  `json:"changePercent24h"`
	Volume24h        float64  `json:"volume24h"`
	High24h          float64  `json:"high24h"`
	Low24h           float64  `json:"low24h"`
	Exchange         string   `json:"exchange"`
	Currency         string   `json:"currency"`
	MarketCap        *float64 `json:"marketCap,omitempty"`
	PE               *float64 `json:"pe,omitempty"`
	Sector           *string  `json:"sector,omitempty"`
	PreviousClose    float64  `json:"previousClose"`
	Open             float64  `json:"open"`
	LastUpdated      int64    `json:"lastUpdated"` // epoch-ms
}

// ChartPoint is one sample of a price series. Crypto charts carry epoch
// seconds; stock charts carry epoch milliseconds, matching what each
// upstream's consumers expect. Series are ordered by ascending timestamp.
type ChartPoint struct {
	Timestamp int64    `json:"timestamp"`
	Price     float64  `json:"price"`
	Open      *float64 `json:"open,omitempty"`
	High      *float64 `json:"high,omitempty"`
	Low       *float64 `json:"low,omitempty"`
	Close     *float64 `json:"close,omitempty"`
	Volume    *float64 `json:"volume,omitempty"`
}

// GasPrice is the low/avg/high gas price triple for EVM chains.
type GasPrice struct {
	Low  float64 `json:"low"`
	Avg  float64 `json:"avg"`
	High float64 `json:"high"`
	Unit string  `json:"unit"`
}

// NetworkStats summarizes one chain's current state.
type NetworkStats struct {
	Chain        Chain     `json:"chain"`
	BlockHeight  int64     `json:"blockHeight"`
	TPS          float64   `json:"tps"`
	AvgBlockTime float64   `json:"avgBlockTime"` // seconds
	HashRate     *string   `json:"hashRate,omitempty"`
	GasPrice     *GasPrice `json:"gasPrice,omitempty"`
}

// Block is a normalized block header.
type Block struct {
	Number     int64  `json:"number"`
	Hash       string `json:"hash"`
	Timestamp  int64  `json:"timestamp"` // epoch seconds
	TxCount    int    `json:"txCount"`
	Miner      string `json:"miner"`
	Size       int64  `json:"size"`
	GasUsed    *int64 `json:"gasUsed,omitempty"`
	GasLimit   *int64 `json:"gasLimit,omitempty"`
	ParentHash string `json:"parentHash"`
	Reward     string `json:"reward"` // coin units, string to preserve precision
	Chain      Chain  `json:"chain"`
}

// Transaction status values.
const (
	TxStatusPending   = "pending"
	TxStatusConfirmed = "confirmed"
	TxStatusFailed    = "failed"
)

// Transaction is a normalized transaction. Value and Fee are strings so
// satoshi/wei precision survives the JSON boundary.
type Transaction struct {
	Hash          string  `json:"hash"`
	BlockNumber   int64   `json:"blockNumber"`
	Timestamp     int64   `json:"timestamp"` // epoch seconds
	From          string  `json:"from"`
	To            string  `json:"to"`
	Value         string  `json:"value"`
	Fee           string  `json:"fee"`
	Gas           *int64  `json:"gas,omitempty"`
	Status        string  `json:"status"`
	Confirmations int64   `json:"confirmations"`
	Input         *string `json:"input,omitempty"` // hex
	Chain         Chain   `json:"chain"`
}

// AddressInfo is a normalized address summary.
type AddressInfo struct {
	Address      string `json:"address"`
	Balance      string `json:"balance"`
	TxCount      int64  `json:"txCount"`
	Chain        Chain  `json:"chain"`
	FirstSeen    *int64 `json:"firstSeen,omitempty"`    // epoch seconds
	LastActivity *int64 `json:"lastActivity,omitempty"` // epoch seconds
}

// Mover is an aggregate market summary row (gainers/losers/actives).
type Mover struct {
	Symbol        string  `json:"symbol"`
	Name          string  `json:"name"`
	Price         float64 `json:"price"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"changePercent"`
}

// StockSearchResult is one row of a symbol search.
type StockSearchResult struct {
	ID       string `json:"id"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Exchange string `json:"exchange"`
}

// CanonicalSectors is the closed set of sector values SearchFilters admits.
var CanonicalSectors = []string{
	"technology",
	"healthcare",
	"financial",
	"energy",
	"consumer",
	"industrial",
	"utilities",
	"materials",
	"real-estate",
	"communication",
}

// IsCanonicalSector reports whether s is in CanonicalSectors.
func IsCanonicalSector(s string) bool {
	for _, sector := range CanonicalSectors {
		if s == sector {
			return true
		}
	}
	return false
}

// PriceRange bounds a SearchFilters price constraint.
type PriceRange struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

// SearchFilters is the structured form of a natural-language search query.
type SearchFilters struct {
	Type            string      `json:"type"` // "stock" | "crypto" | "both"
	Sector          *string     `json:"sector"`
	PriceRange      *PriceRange `json:"priceRange"`
	ChangeDirection string      `json:"changeDirection"` // "up" | "down" | "any"
	Symbols         []string    `json:"symbols"`
	Keywords        []string    `json:"keywords"`
	Action          string      `json:"action"` // "search" | "compare"
}

// SentimentLabels, ordered from most bearish to most bullish.
var SentimentLabels = []string{
	"Very Bearish",
	"Bearish",
	"Neutral",
	"Bullish",
	"Very Bullish",
}

// Sentiment scores a stock from 1 (bearish) to 10 (bullish).
type Sentiment struct {
	Score int    `json:"score"`
	Label string `json:"label"`
}

// KeyPoints groups summary takeaways; each list carries at most three items.
type KeyPoints struct {
	Positive []string `json:"positive"`
	Negative []string `json:"negative"`
	Neutral  []string `json:"neutral"`
}

// StockSummary is the LLM-generated per-stock analysis.
type StockSummary struct {
	Symbol      string    `json:"symbol"`
	Sentiment   Sentiment `json:"sentiment"`
	Summary     string    `json:"summary"`
	KeyPoints   KeyPoints `json:"keyPoints"`
	Catalysts   []string  `json:"catalysts"`
	Risks       []string  `json:"risks"`
	GeneratedAt string    `json:"generatedAt"` // ISO-8601
	DataSource  string    `json:"dataSource"`
}

// SectorsToWatch splits sectors by expected direction.
type SectorsToWatch struct {
	Bullish []string `json:"bullish"`
	Bearish []string `json:"bearish"`
}

// OverviewSentiments enumerates valid MarketOverview sentiment values.
var OverviewSentiments = []string{"Risk-On", "Risk-Off", "Mixed", "Neutral"}

// MarketOverview is the LLM-generated market-wide analysis.
type MarketOverview struct {
	Sentiment      string         `json:"sentiment"`
	Summary        string         `json:"summary"`
	TopThemes      []string       `json:"topThemes"`
	SectorsToWatch SectorsToWatch `json:"sectorsToWatch"`
	Outlook        string         `json:"outlook"`
	GeneratedAt    string         `json:"generatedAt"`
}
