// Package blockchain serves per-chain network stats, blocks and block
// transactions from the explorer upstreams (or the mock provider).
package blockchain

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/tickerhub/internal/cache"
	"github.com/aristath/tickerhub/internal/domain"
	"github.com/aristath/tickerhub/internal/metrics"
	"github.com/aristath/tickerhub/internal/reliability"
)

const (
	statsTTL    = time.Minute
	blocksTTL   = 30 * time.Second
	blockTTL    = 5 * time.Minute
	blockTxsTTL = 5 * time.Minute
)

// Provider is the per-chain upstream surface. *etherscan.Client,
// *blockchair.Client and *MockProvider all satisfy it.
type Provider interface {
	NetworkStats(ctx context.Context) (*domain.NetworkStats, error)
	ListBlocks(ctx context.Context, limit, page int) ([]domain.Block, error)
	GetBlock(ctx context.Context, number int64) (*domain.Block, error)
	GetBlockTransactions(ctx context.Context, number int64) ([]domain.Transaction, error)
	GetTransaction(ctx context.Context, hash string) (*domain.Transaction, error)
	GetAddress(ctx context.Context, address string) (*domain.AddressInfo, error)
	GetAddressTransactions(ctx context.Context, address string, limit int) ([]domain.Transaction, error)
}

// Backend couples one chain's provider with its circuit breaker.
type Backend struct {
	Provider Provider
	Breaker  *reliability.Breaker
}

// Service provides blockchain data operations across the supported chains.
type Service struct {
	backends map[domain.Chain]Backend
	cache    *cache.Cache
	log      zerolog.Logger
}

// NewService creates a new blockchain service.
func NewService(backends map[domain.Chain]Backend, c *cache.Cache, log zerolog.Logger) *Service {
	return &Service{
		backends: backends,
		cache:    c,
		log:      log.With().Str("service", "blockchain").Logger(),
	}
}

// Backend returns the backend serving chain; ok is false for unsupported
// chains.
func (s *Service) Backend(chain domain.Chain) (Backend, bool) {
	b, ok := s.backends[chain]
	return b, ok
}

// NetworkStats returns a chain's current network summary.
func (s *Service) NetworkStats(ctx context.Context, chain domain.Chain) (*domain.NetworkStats, error) {
	key := cache.Key("chain", string(chain), "stats")
	if v, ok := s.cache.Get(key, statsTTL); ok {
		metrics.CacheHits.WithLabelValues("blockchain").Inc()
		return v.(*domain.NetworkStats), nil
	}
	metrics.CacheMisses.WithLabelValues("blockchain").Inc()

	backend, err := s.backend(chain)
	if err != nil {
		return nil, err
	}

	var stats *domain.NetworkStats
	err = backend.Breaker.Execute(func() error {
		var err error
		stats, err = backend.Provider.NetworkStats(ctx)
		return err
	})
	s.observe(chain, backend, err)
	if err != nil {
		return nil, err
	}

	s.cache.Set(key, stats)
	return stats, nil
}

// Blocks returns a page of recent blocks, newest first.
func (s *Service) Blocks(ctx context.Context, chain domain.Chain, limit, page int) ([]domain.Block, error) {
	key := cache.Key("chain", string(chain), "blocks", strconv.Itoa(limit), strconv.Itoa(page))
	if v, ok := s.cache.Get(key, blocksTTL); ok {
		metrics.CacheHits.WithLabelValues("blockchain").Inc()
		return v.([]domain.Block), nil
	}
	metrics.CacheMisses.WithLabelValues("blockchain").Inc()

	backend, err := s.backend(chain)
	if err != nil {
		return nil, err
	}

	var blocks []domain.Block
	err = backend.Breaker.Execute(func() error {
		var err error
		blocks, err = backend.Provider.ListBlocks(ctx, limit, page)
		return err
	})
	s.observe(chain, backend, err)
	if err != nil {
		return nil, err
	}

	s.cache.Set(key, blocks)
	return blocks, nil
}

// Block returns one block by height; nil when it does not exist.
func (s *Service) Block(ctx context.Context, chain domain.Chain, number int64) (*domain.Block, error) {
	key := cache.Key("chain", string(chain), "block", strconv.FormatInt(number, 10))
	if v, ok := s.cache.Get(key, blockTTL); ok {
		metrics.CacheHits.WithLabelValues("blockchain").Inc()
		return v.(*domain.Block), nil
	}
	metrics.CacheMisses.WithLabelValues("blockchain").Inc()

	backend, err := s.backend(chain)
	if err != nil {
		return nil, err
	}

	var block *domain.Block
	err = backend.Breaker.Execute(func() error {
		var err error
		block, err = backend.Provider.GetBlock(ctx, number)
		return err
	})
	s.observe(chain, backend, err)
	if err != nil {
		return nil, err
	}

	if block != nil {
		s.cache.Set(key, block)
	}
	return block, nil
}

// BlockTransactions returns the transactions of one block.
func (s *Service) BlockTransactions(ctx context.Context, chain domain.Chain, number int64) ([]domain.Transaction, error) {
	key := cache.Key("chain", string(chain), "blocktxs", strconv.FormatInt(number, 10))
	if v, ok := s.cache.Get(key, blockTxsTTL); ok {
		metrics.CacheHits.WithLabelValues("blockchain").Inc()
		return v.([]domain.Transaction), nil
	}
	metrics.CacheMisses.WithLabelValues("blockchain").Inc()

	backend, err := s.backend(chain)
	if err != nil {
		return nil, err
	}

	var txs []domain.Transaction
	err = backend.Breaker.Execute(func() error {
		var err error
		txs, err = backend.Provider.GetBlockTransactions(ctx, number)
		return err
	})
	s.observe(chain, backend, err)
	if err != nil {
		return nil, err
	}

	s.cache.Set(key, txs)
	return txs, nil
}

// Status reports each chain's breaker state.
func (s *Service) Status() map[string]reliability.BreakerStats {
	out := make(map[string]reliability.BreakerStats, len(s.backends))
	for chain, backend := range s.backends {
		out[string(chain)] = backend.Breaker.Stats()
	}
	return out
}

func (s *Service) backend(chain domain.Chain) (Backend, error) {
	backend, ok := s.backends[chain]
	if !ok {
		return Backend{}, fmt.Errorf("unsupported chain %q", chain)
	}
	return backend, nil
}

func (s *Service) observe(chain domain.Chain, backend Backend, err error) {
	provider := string(chain)
	switch {
	case err == nil:
		metrics.UpstreamRequests.WithLabelValues(provider, "ok").Inc()
	case errors.Is(err, reliability.ErrCircuitOpen):
		metrics.UpstreamRequests.WithLabelValues(provider, "rejected").Inc()
	default:
		metrics.UpstreamRequests.WithLabelValues(provider, "error").Inc()
	}
	metrics.ObserveBreaker(provider, string(backend.Breaker.State()))
}
