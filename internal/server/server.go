// Package server binds the HTTP surface: routing, middleware, validation and
// response shaping. Handlers validate before touching any adapter, map nil
// results to 404 (single entities) or [] (listings), and translate the
// not-configured sentinels into 503 {configured:false}.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/tickerhub/internal/cache"
	"github.com/aristath/tickerhub/internal/config"
	"github.com/aristath/tickerhub/internal/fetch"
	"github.com/aristath/tickerhub/internal/metrics"
	"github.com/aristath/tickerhub/internal/modules/ai"
	"github.com/aristath/tickerhub/internal/modules/blockchain"
	"github.com/aristath/tickerhub/internal/modules/crypto"
	"github.com/aristath/tickerhub/internal/modules/explorer"
	"github.com/aristath/tickerhub/internal/modules/fundamentals"
	"github.com/aristath/tickerhub/internal/modules/stocks"
	"github.com/aristath/tickerhub/internal/modules/watchlist"
	"github.com/aristath/tickerhub/internal/reliability"
)

const (
	maxBodyBytes   = 10 * 1024
	requestTimeout = 60 * time.Second
)

// Deps collects everything the HTTP surface dispatches to.
type Deps struct {
	Config    *config.Config
	Cache     *cache.Cache
	Fetcher   *fetch.Fetcher
	Crypto    *crypto.Service
	Chains    *blockchain.Service
	Explorer  *explorer.Service
	Stocks    *stocks.Service
	Fund      *fundamentals.Service
	AI        *ai.Service
	Watchlist *watchlist.Service
	Log       zerolog.Logger
}

// Server is the gateway's HTTP server.
type Server struct {
	router    *chi.Mux
	server    *http.Server
	deps      Deps
	limiter   *reliability.KeyedRateLimiter
	startedAt time.Time
	log       zerolog.Logger
}

// New creates the HTTP server with all routes and middleware installed.
func New(deps Deps) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		deps:      deps,
		limiter:   reliability.NewKeyedRateLimiter(deps.Config.ClientRequestsPerMinute, time.Minute),
		startedAt: time.Now(),
		log:       deps.Log.With().Str("component", "server").Logger(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", deps.Config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 75 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler exposes the router, for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(requestTimeout))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{s.deps.Config.AppURL, "http://localhost:3000"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/metrics", metrics.Handler().ServeHTTP)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(s.securityHeaders)
		r.Use(s.rateLimit)
		r.Use(s.limitBody)

		// Crypto
		r.Get("/prices", s.handlePrices)
		r.Get("/prices/batch", s.handlePricesBatch)
		r.Get("/chart/{coinId}/{range}", s.handleCoinChart)

		// Blockchain
		r.Get("/network/{chain}", s.handleNetworkStats)
		r.Get("/blocks/{chain}/{limit}/{page}", s.handleBlocks)
		r.Get("/block/{chain}/{number}", s.handleBlock)
		r.Get("/block/{chain}/{number}/transactions", s.handleBlockTransactions)

		// Explorer (chain auto-detected)
		r.Get("/tx/{hash}", s.handleTransaction)
		r.Get("/address/{address}", s.handleAddress)
		r.Get("/address/{address}/transactions", s.handleAddressTransactions)

		// Stocks: fixed paths before the {symbol} wildcards.
		r.Get("/stocks", s.handleTopStocks)
		r.Get("/stocks/batch", s.handleStocksBatch)
		r.Get("/stocks/search", s.handleStockSearch)
		r.Get("/stocks/status", s.handleStocksStatus)
		r.Get("/stocks/sectors", s.handleSectors)
		r.Get("/stocks/news", s.handleGeneralNews)
		r.Get("/stocks/movers/{board}", s.handleMovers)
		r.Get("/stocks/calendar/{kind}", s.handleCalendar)
		r.Get("/stocks/{symbol}", s.handleStockQuote)
		r.Get("/stocks/{symbol}/chart", s.handleStockChart)
		r.Get("/stocks/{symbol}/{dataset}", s.handleFundamentals)

		// AI
		r.Post("/ai/search", s.handleAISearch)
		r.Get("/ai/summary/{symbol}", s.handleAISummary)
		r.Get("/ai/market", s.handleAIMarket)
		r.Get("/ai/status", s.handleAIStatus)

		// Watchlist (authenticated)
		r.Route("/watchlist", func(r chi.Router) {
			r.Use(s.requireToken)
			r.Get("/", s.handleWatchlistList)
			r.Post("/", s.handleWatchlistAdd)
			r.Delete("/{id}", s.handleWatchlistRemove)
		})

		// System
		r.Get("/stats", s.handleStats)
		r.Get("/health", s.handleHealth)
	})

	// Health is also reachable unprefixed, for load balancers.
	s.router.Get("/health", s.handleHealth)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.log.Info().Int("port", s.deps.Config.Port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
