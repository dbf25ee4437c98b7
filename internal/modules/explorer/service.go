// Package explorer serves cross-chain transaction and address lookups,
// auto-detecting the chain from the identifier shape.
package explorer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/tickerhub/internal/cache"
	"github.com/aristath/tickerhub/internal/domain"
	"github.com/aristath/tickerhub/internal/metrics"
	"github.com/aristath/tickerhub/internal/modules/blockchain"
	"github.com/aristath/tickerhub/internal/reliability"
)

const (
	txTTL      = time.Minute
	addressTTL = time.Minute

	addressTxLimit = 10
)

// Service provides explorer lookups on top of the blockchain backends.
type Service struct {
	backends map[domain.Chain]blockchain.Backend
	cache    *cache.Cache
	log      zerolog.Logger
}

// NewService creates a new explorer service sharing the blockchain
// service's backends.
func NewService(backends map[domain.Chain]blockchain.Backend, c *cache.Cache, log zerolog.Logger) *Service {
	return &Service{
		backends: backends,
		cache:    c,
		log:      log.With().Str("service", "explorer").Logger(),
	}
}

// Transaction looks up a transaction by hash on the chain its shape implies.
func (s *Service) Transaction(ctx context.Context, hash string) (*domain.Transaction, error) {
	chain := domain.DetectChain(hash)

	key := cache.Key("explorer", "tx", hash)
	if v, ok := s.cache.Get(key, txTTL); ok {
		metrics.CacheHits.WithLabelValues("explorer").Inc()
		return v.(*domain.Transaction), nil
	}
	metrics.CacheMisses.WithLabelValues("explorer").Inc()

	backend, err := s.backend(chain)
	if err != nil {
		return nil, err
	}

	var tx *domain.Transaction
	err = backend.Breaker.Execute(func() error {
		var err error
		tx, err = backend.Provider.GetTransaction(ctx, hash)
		return err
	})
	s.observe(chain, backend, err)
	if err != nil {
		return nil, err
	}

	if tx != nil {
		s.cache.Set(key, tx)
	}
	return tx, nil
}

// Address looks up an address summary on the chain its shape implies.
func (s *Service) Address(ctx context.Context, address string) (*domain.AddressInfo, error) {
	chain := domain.DetectChain(address)

	key := cache.Key("explorer", "address", address)
	if v, ok := s.cache.Get(key, addressTTL); ok {
		metrics.CacheHits.WithLabelValues("explorer").Inc()
		return v.(*domain.AddressInfo), nil
	}
	metrics.CacheMisses.WithLabelValues("explorer").Inc()

	backend, err := s.backend(chain)
	if err != nil {
		return nil, err
	}

	var info *domain.AddressInfo
	err = backend.Breaker.Execute(func() error {
		var err error
		info, err = backend.Provider.GetAddress(ctx, address)
		return err
	})
	s.observe(chain, backend, err)
	if err != nil {
		return nil, err
	}

	if info != nil {
		s.cache.Set(key, info)
	}
	return info, nil
}

// AddressTransactions lists an address's recent transactions, newest first.
func (s *Service) AddressTransactions(ctx context.Context, address string) ([]domain.Transaction, error) {
	chain := domain.DetectChain(address)

	key := cache.Key("explorer", "addresstxs", address)
	if v, ok := s.cache.Get(key, addressTTL); ok {
		metrics.CacheHits.WithLabelValues("explorer").Inc()
		return v.([]domain.Transaction), nil
	}
	metrics.CacheMisses.WithLabelValues("explorer").Inc()

	backend, err := s.backend(chain)
	if err != nil {
		return nil, err
	}

	var txs []domain.Transaction
	err = backend.Breaker.Execute(func() error {
		var err error
		txs, err = backend.Provider.GetAddressTransactions(ctx, address, addressTxLimit)
		return err
	})
	s.observe(chain, backend, err)
	if err != nil {
		return nil, err
	}

	s.cache.Set(key, txs)
	return txs, nil
}

func (s *Service) backend(chain domain.Chain) (blockchain.Backend, error) {
	backend, ok := s.backends[chain]
	if !ok {
		return blockchain.Backend{}, fmt.Errorf("unsupported chain %q", chain)
	}
	return backend, nil
}

func (s *Service) observe(chain domain.Chain, backend blockchain.Backend, err error) {
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
