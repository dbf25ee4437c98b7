package server

import (
	"errors"
	"net/http"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/aristath/tickerhub/internal/domain"
	"github.com/aristath/tickerhub/internal/modules/fundamentals"
	"github.com/aristath/tickerhub/internal/modules/stocks"
)

var symbolPattern = regexp.MustCompile(`^[A-Za-z0-9.\-]{1,10}$`)

func validSymbol(symbol string) bool {
	return symbolPattern.MatchString(symbol)
}

func (s *Server) handleTopStocks(w http.ResponseWriter, r *http.Request) {
	assets, err := s.deps.Stocks.Top(r.Context())
	if err != nil {
		if errors.Is(err, stocks.ErrNotConfigured) {
			s.notConfigured(w, "No stock provider is configured")
			return
		}
		s.internalError(w, err)
		return
	}
	if assets == nil {
		assets = []domain.StockAsset{}
	}
	s.respondJSON(w, http.StatusOK, assets)
}

func (s *Server) handleStockQuote(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	if !validSymbol(symbol) {
		s.badRequest(w, "invalid symbol", map[string]string{"symbol": "must be 1-10 characters: letters, digits, dot, dash"})
		return
	}

	asset, stale, err := s.deps.Stocks.Quote(r.Context(), symbol)
	if err != nil {
		if errors.Is(err, stocks.ErrNotConfigured) {
			s.notConfigured(w, "No stock provider is configured")
			return
		}
		s.internalError(w, err)
		return
	}
	if asset == nil {
		s.notFound(w, "stock not found")
		return
	}
	if stale {
		w.Header().Set("X-Cache-Status", "stale")
	}
	s.respondJSON(w, http.StatusOK, asset)
}

func (s *Server) handleStockChart(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	timeframe := r.URL.Query().Get("timeframe")
	if timeframe == "" {
		timeframe = "1D"
	}

	details := map[string]string{}
	if !validSymbol(symbol) {
		details["symbol"] = "must be 1-10 characters: letters, digits, dot, dash"
	}
	if !stocks.ValidTimeframe(timeframe) {
		details["timeframe"] = "must be one of 1D, 7D, 30D, 1Y"
	}
	if len(details) > 0 {
		s.badRequest(w, "invalid chart parameters", details)
		return
	}

	points, err := s.deps.Stocks.Chart(r.Context(), symbol, timeframe)
	if err != nil {
		if errors.Is(err, stocks.ErrNotConfigured) {
			s.notConfigured(w, "No stock provider is configured")
			return
		}
		s.internalError(w, err)
		return
	}
	if points == nil {
		points = []domain.ChartPoint{}
	}
	s.respondJSON(w, http.StatusOK, points)
}

func (s *Server) handleStocksBatch(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("symbols")
	if strings.TrimSpace(raw) == "" {
		s.badRequest(w, "symbols parameter is required", map[string]string{"symbols": "must be a comma-separated list of symbols"})
		return
	}

	symbols := splitList(raw)
	if len(symbols) == 0 {
		s.badRequest(w, "symbols parameter is empty", map[string]string{"symbols": "must contain at least one symbol"})
		return
	}
	for _, sym := range symbols {
		if !validSymbol(sym) {
			s.badRequest(w, "invalid symbol", map[string]string{"symbols": "bad symbol: " + sym})
			return
		}
	}

	assets, err := s.deps.Stocks.Batch(r.Context(), symbols)
	if err != nil {
		if errors.Is(err, stocks.ErrNotConfigured) {
			s.notConfigured(w, "No stock provider is configured")
			return
		}
		s.internalError(w, err)
		return
	}
	if assets == nil {
		assets = []domain.StockAsset{}
	}
	s.respondJSON(w, http.StatusOK, assets)
}

func (s *Server) handleStockSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		s.badRequest(w, "q parameter is required", map[string]string{"q": "must be a non-empty search string"})
		return
	}

	results, err := s.deps.Stocks.Search(r.Context(), query)
	if err != nil {
		if errors.Is(err, stocks.ErrNotConfigured) {
			s.notConfigured(w, "Stock search requires the primary provider")
			return
		}
		s.internalError(w, err)
		return
	}
	if results == nil {
		results = []domain.StockSearchResult{}
	}
	s.respondJSON(w, http.StatusOK, results)
}

func (s *Server) handleMovers(w http.ResponseWriter, r *http.Request) {
	board := chi.URLParam(r, "board")
	if board != "gainers" && board != "losers" && board != "actives" {
		s.badRequest(w, "invalid movers board", map[string]string{"board": "must be gainers, losers or actives"})
		return
	}

	movers, err := s.deps.Fund.Movers(r.Context(), board)
	if err != nil {
		s.fundamentalsError(w, err)
		return
	}
	if movers == nil {
		movers = []domain.Mover{}
	}
	s.respondJSON(w, http.StatusOK, movers)
}

func (s *Server) handleSectors(w http.ResponseWriter, r *http.Request) {
	payload, err := s.deps.Fund.Sectors(r.Context())
	if err != nil {
		s.fundamentalsError(w, err)
		return
	}
	s.respondRaw(w, payload)
}

func (s *Server) handleGeneralNews(w http.ResponseWriter, r *http.Request) {
	payload, err := s.deps.Fund.GeneralNews(r.Context())
	if err != nil {
		s.fundamentalsError(w, err)
		return
	}
	s.respondRaw(w, payload)
}

func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	kind := chi.URLParam(r, "kind")
	switch kind {
	case "earnings", "dividends", "ipos", "splits":
	default:
		s.badRequest(w, "invalid calendar kind", map[string]string{"kind": "must be earnings, dividends, ipos or splits"})
		return
	}

	payload, err := s.deps.Fund.Calendar(r.Context(), kind)
	if err != nil {
		s.fundamentalsError(w, err)
		return
	}
	s.respondRaw(w, payload)
}

// handleFundamentals serves the per-symbol fundamentals datasets. Most are
// upstream passthroughs; profile is typed and 404s on unknown symbols.
func (s *Server) handleFundamentals(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	dataset := chi.URLParam(r, "dataset")

	if !validSymbol(symbol) {
		s.badRequest(w, "invalid symbol", map[string]string{"symbol": "must be 1-10 characters: letters, digits, dot, dash"})
		return
	}

	ctx := r.Context()
	if dataset == "profile" {
		profile, err := s.deps.Fund.Profile(ctx, symbol)
		if err != nil {
			s.fundamentalsError(w, err)
			return
		}
		if profile == nil {
			s.notFound(w, "profile not found")
			return
		}
		s.respondJSON(w, http.StatusOK, profile)
		return
	}

	var (
		payload []byte
		err     error
	)
	switch dataset {
	case "news":
		payload, err = s.deps.Fund.News(ctx, symbol)
	case "earnings":
		payload, err = s.deps.Fund.Earnings(ctx, symbol)
	case "grades":
		payload, err = s.deps.Fund.Grades(ctx, symbol)
	case "consensus":
		payload, err = s.deps.Fund.GradeConsensus(ctx, symbol)
	case "price-target", "price-targets":
		payload, err = s.deps.Fund.PriceTargetConsensus(ctx, symbol)
	case "estimates":
		payload, err = s.deps.Fund.AnalystEstimates(ctx, symbol)
	case "income":
		payload, err = s.deps.Fund.Statement(ctx, symbol, "income")
	case "balance-sheet":
		payload, err = s.deps.Fund.Statement(ctx, symbol, "balance-sheet")
	case "cash-flow":
		payload, err = s.deps.Fund.Statement(ctx, symbol, "cash-flow")
	case "metrics":
		payload, err = s.deps.Fund.Statement(ctx, symbol, "metrics")
	case "institutions":
		payload, err = s.deps.Fund.Institutions(ctx, symbol)
	default:
		s.notFound(w, "unknown dataset")
		return
	}
	if err != nil {
		s.fundamentalsError(w, err)
		return
	}
	s.respondRaw(w, payload)
}

func (s *Server) handleStocksStatus(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.deps.Stocks.Status())
}

func (s *Server) fundamentalsError(w http.ResponseWriter, err error) {
	if errors.Is(err, fundamentals.ErrNotConfigured) {
		s.notConfigured(w, "Fundamentals provider is not configured")
		return
	}
	s.unavailable(w, "Fundamentals provider is unavailable")
}
