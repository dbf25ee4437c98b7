// Package main is the entry point for the TickerHub market-data gateway.
// It wires configuration, the upstream clients with their per-provider
// circuit breakers, the service layer, background jobs and the HTTP surface,
// then runs until signalled.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/tickerhub/internal/backup"
	"github.com/aristath/tickerhub/internal/cache"
	"github.com/aristath/tickerhub/internal/clients/blockchair"
	"github.com/aristath/tickerhub/internal/clients/coingecko"
	"github.com/aristath/tickerhub/internal/clients/etherscan"
	"github.com/aristath/tickerhub/internal/clients/finnhub"
	"github.com/aristath/tickerhub/internal/clients/fmp"
	"github.com/aristath/tickerhub/internal/clients/gemini"
	"github.com/aristath/tickerhub/internal/config"
	"github.com/aristath/tickerhub/internal/database"
	"github.com/aristath/tickerhub/internal/domain"
	"github.com/aristath/tickerhub/internal/fetch"
	"github.com/aristath/tickerhub/internal/modules/ai"
	"github.com/aristath/tickerhub/internal/modules/blockchain"
	"github.com/aristath/tickerhub/internal/modules/crypto"
	"github.com/aristath/tickerhub/internal/modules/explorer"
	"github.com/aristath/tickerhub/internal/modules/fundamentals"
	"github.com/aristath/tickerhub/internal/modules/stocks"
	"github.com/aristath/tickerhub/internal/modules/watchlist"
	"github.com/aristath/tickerhub/internal/reliability"
	"github.com/aristath/tickerhub/internal/scheduler"
	"github.com/aristath/tickerhub/internal/server"
	"github.com/aristath/tickerhub/pkg/logger"
)

const backupRetentionDays = 30

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Use fallback logger if config fails
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: !cfg.IsProduction(),
	})

	log.Info().Str("env", cfg.Env).Msg("Starting TickerHub")

	c := cache.New()
	fetcher := fetch.New(fetch.Config{
		AllowedHosts: cfg.AllowedHosts(),
		HTTPSOnly:    cfg.IsProduction(),
	}, log)

	// Upstream clients. Unconfigured clients stay inert: their services
	// answer with the not-configured sentinel instead of calling out.
	coingeckoClient := coingecko.NewClient(cfg.CoinGeckoBaseURL, cfg.CoinGeckoAPIKey, fetcher, log)
	etherscanClient := etherscan.NewClient(cfg.EtherscanBaseURL, cfg.EtherscanAPIKey, fetcher, log)
	blockchairClient := blockchair.NewClient(cfg.BlockchairBaseURL, cfg.BlockchairAPIKey, fetcher, log)
	fmpClient := fmp.NewClient(cfg.FMPBaseURL, cfg.FMPAPIKey, fetcher, log)
	finnhubClient := finnhub.NewClient(cfg.FinnhubBaseURL, cfg.FinnhubAPIKey, fetcher, log)

	llmLimiter := reliability.NewRateLimiter(cfg.LLMRequestsPerMinute, time.Minute)
	llmClient := gemini.NewClient(cfg.GeminiBaseURL, cfg.GeminiAPIKey, fetcher, c, llmLimiter, log)

	// One breaker per upstream. Stocks and fundamentals share the FMP
	// breaker: both fronts hit the same quota.
	coingeckoBreaker := reliability.NewBreaker(reliability.BreakerConfig{Name: "coingecko"}, log)
	etherscanBreaker := reliability.NewBreaker(reliability.BreakerConfig{Name: "etherscan"}, log)
	blockchairBreaker := reliability.NewBreaker(reliability.BreakerConfig{Name: "blockchair"}, log)
	fmpBreaker := reliability.NewBreaker(reliability.BreakerConfig{Name: "fmp"}, log)
	finnhubBreaker := reliability.NewBreaker(reliability.BreakerConfig{Name: "finnhub"}, log)

	backends := chainBackends(cfg, etherscanClient, blockchairClient, etherscanBreaker, blockchairBreaker, log)

	cryptoSvc := crypto.NewService(coingeckoClient, c, coingeckoBreaker, log)
	chainSvc := blockchain.NewService(backends, c, log)
	explorerSvc := explorer.NewService(backends, c, log)
	stocksSvc := stocks.NewService(fmpClient, finnhubClient, c, fmpBreaker, finnhubBreaker, log)
	fundSvc := fundamentals.NewService(fmpClient, c, fmpBreaker, log)
	aiSvc := ai.NewService(llmClient, stocksSvc, fundSvc, log)

	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DatabasePath).Msg("Failed to open watchlist database")
	}
	defer db.Close()

	watchlistSvc := watchlist.NewService(watchlist.NewRepository(db.Conn(), log), log)

	sched := scheduler.New(log)
	if err := sched.AddJob(scheduler.CacheWarmSchedule, scheduler.NewCacheWarmJob(cryptoSvc, stocksSvc, log)); err != nil {
		log.Fatal().Err(err).Msg("Failed to register cache warm job")
	}
	if cfg.HasR2() {
		store, err := backup.NewR2Client(cfg.R2AccountID, cfg.R2AccessKeyID, cfg.R2SecretAccessKey, cfg.R2Bucket, log)
		if err != nil {
			log.Error().Err(err).Msg("Failed to initialize R2 client, backups disabled")
		} else {
			backupSvc := backup.NewService(db, store, filepath.Dir(db.Path()), backupRetentionDays, log)
			if err := sched.AddJob(scheduler.BackupSchedule, scheduler.NewBackupJob(backupSvc, log)); err != nil {
				log.Fatal().Err(err).Msg("Failed to register backup job")
			}
			log.Info().Str("bucket", cfg.R2Bucket).Msg("Nightly backups enabled")
		}
	} else {
		log.Info().Msg("R2 credentials not configured, backups disabled")
	}
	sched.Start()

	srv := server.New(server.Deps{
		Config:    cfg,
		Cache:     c,
		Fetcher:   fetcher,
		Crypto:    cryptoSvc,
		Chains:    chainSvc,
		Explorer:  explorerSvc,
		Stocks:    stocksSvc,
		Fund:      fundSvc,
		AI:        aiSvc,
		Watchlist: watchlistSvc,
		Log:       log,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	sched.Stop()

	log.Info().Msg("Server stopped")
}

// chainBackends selects the per-chain providers: the real adapters, or the
// deterministic mock providers when USE_MOCK_CHAIN is set (development
// without credentials). Mock and real providers are never mixed.
func chainBackends(
	cfg *config.Config,
	etherscanClient *etherscan.Client,
	blockchairClient *blockchair.Client,
	etherscanBreaker, blockchairBreaker *reliability.Breaker,
	log zerolog.Logger,
) map[domain.Chain]blockchain.Backend {
	if cfg.UseMockChain {
		log.Warn().Msg("Using mock blockchain providers")
		return map[domain.Chain]blockchain.Backend{
			domain.ChainEthereum: {Provider: blockchain.NewMockProvider(domain.ChainEthereum), Breaker: etherscanBreaker},
			domain.ChainBitcoin:  {Provider: blockchain.NewMockProvider(domain.ChainBitcoin), Breaker: blockchairBreaker},
		}
	}
	return map[domain.Chain]blockchain.Backend{
		domain.ChainEthereum: {Provider: etherscanClient, Breaker: etherscanBreaker},
		domain.ChainBitcoin:  {Provider: blockchairClient, Breaker: blockchairBreaker},
	}
}
