package ai

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/aristath/tickerhub/internal/domain"
)

// commonWords are short uppercase tokens that look like tickers but are not.
var commonWords = map[string]bool{
	"A": true, "I": true, "THE": true, "AND": true, "OR": true, "FOR": true,
	"TO": true, "IN": true, "ON": true, "UP": true, "DOWN": true, "VS": true,
}

// sectorAliases maps query words to canonical sector values.
var sectorAliases = map[string]string{
	"technology": "technology", "tech": "technology", "software": "technology",
	"healthcare": "healthcare", "health": "healthcare", "pharma": "healthcare", "biotech": "healthcare",
	"financial": "financial", "finance": "financial", "bank": "financial", "banks": "financial",
	"energy": "energy", "oil": "energy", "gas": "energy",
	"consumer": "consumer", "retail": "consumer",
	"industrial": "industrial", "industrials": "industrial",
	"utilities": "utilities", "utility": "utilities",
	"materials": "materials", "mining": "materials",
	"real-estate": "real-estate", "reit": "real-estate", "reits": "real-estate",
	"communication": "communication", "telecom": "communication", "media": "communication",
}

var upWords = map[string]bool{
	"up": true, "gain": true, "gains": true, "gainers": true, "gaining": true,
	"rising": true, "bullish": true, "green": true, "winners": true,
}

var downWords = map[string]bool{
	"down": true, "loss": true, "losses": true, "losers": true, "losing": true,
	"falling": true, "bearish": true, "red": true, "drop": true, "dropping": true,
}

var tickerPattern = regexp.MustCompile(`^[A-Z]{1,5}$`)

const searchPrompt = `Parse this market search query into JSON with fields:
type ("stock"|"crypto"|"both"), sector (one of: %s, or null),
priceRange ({min,max} or null), changeDirection ("up"|"down"|"any"),
symbols (ticker strings), keywords (strings), action ("search"|"compare").
Respond with JSON only, no prose.

Query: %s`

// ParseSearchQuery turns a natural-language query into structured filters.
// The LLM path is preferred; on any LLM failure the keyword fallback runs,
// so a result is always produced.
func (s *Service) ParseSearchQuery(ctx context.Context, query string) domain.SearchFilters {
	prompt := fmt.Sprintf(searchPrompt, strings.Join(domain.CanonicalSectors, ", "), query)
	cacheKey := "llm:search:" + strings.ToLower(strings.TrimSpace(query))

	var filters domain.SearchFilters
	if s.llm.GenerateJSON(ctx, prompt, cacheKey, searchTTL, &filters) {
		NormalizeFilters(&filters)
		return filters
	}

	s.log.Debug().Str("query", query).Msg("llm parse unavailable, using keyword fallback")
	return KeywordFallback(query)
}

// KeywordFallback derives filters from the query text alone: sector names,
// direction words, and short uppercase tokens that are not common words.
func KeywordFallback(query string) domain.SearchFilters {
	filters := domain.SearchFilters{
		Type:            "both",
		ChangeDirection: "any",
		Symbols:         []string{},
		Keywords:        []string{},
		Action:          "search",
	}

	hasStock, hasCrypto := false, false
	for _, raw := range strings.Fields(query) {
		word := strings.Trim(raw, ".,!?;:()\"'")
		if word == "" {
			continue
		}
		lower := strings.ToLower(word)

		if sector, ok := sectorAliases[lower]; ok && filters.Sector == nil {
			s := sector
			filters.Sector = &s
			continue
		}
		if upWords[lower] {
			filters.ChangeDirection = "up"
			continue
		}
		if downWords[lower] {
			filters.ChangeDirection = "down"
			continue
		}

		switch lower {
		case "crypto", "cryptocurrency", "cryptocurrencies", "coin", "coins", "token", "tokens":
			hasCrypto = true
			continue
		case "stock", "stocks", "equity", "equities", "share", "shares":
			hasStock = true
			continue
		case "compare", "vs", "versus":
			filters.Action = "compare"
			continue
		}

		if tickerPattern.MatchString(word) && !commonWords[word] {
			filters.Symbols = append(filters.Symbols, word)
			continue
		}
		filters.Keywords = append(filters.Keywords, lower)
	}

	switch {
	case hasStock && !hasCrypto:
		filters.Type = "stock"
	case hasCrypto && !hasStock:
		filters.Type = "crypto"
	}
	return filters
}

// NormalizeFilters coerces LLM-produced filters into the valid domain:
// unknown enum values fall back to defaults, non-canonical sectors are
// dropped, symbols are upper-cased, and nil slices become empty.
func NormalizeFilters(f *domain.SearchFilters) {
	switch f.Type {
	case "stock", "crypto", "both":
	default:
		f.Type = "both"
	}

	switch f.ChangeDirection {
	case "up", "down", "any":
	default:
		f.ChangeDirection = "any"
	}

	switch f.Action {
	case "search", "compare":
	default:
		f.Action = "search"
	}

	if f.Sector != nil && !domain.IsCanonicalSector(*f.Sector) {
		f.Sector = nil
	}

	symbols := make([]string, 0, len(f.Symbols))
	for _, sym := range f.Symbols {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym != "" {
			symbols = append(symbols, sym)
		}
	}
	f.Symbols = symbols

	if f.Keywords == nil {
		f.Keywords = []string{}
	}
}
