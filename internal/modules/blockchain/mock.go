package blockchain

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand"
	"strconv"
	"time"

	"github.com/aristath/tickerhub/internal/domain"
)

// MockProvider generates plausibly-shaped chain data without any upstream.
// Selected only by configuration (USE_MOCK_CHAIN); the real providers never
// mix with it. All output is deterministic for a given input and clock.
type MockProvider struct {
	chain domain.Chain
	now   func() time.Time
}

// NewMockProvider creates a mock provider for chain.
func NewMockProvider(chain domain.Chain) *MockProvider {
	return &MockProvider{chain: chain, now: time.Now}
}

// SetClock overrides the time source, for tests.
func (m *MockProvider) SetClock(now func() time.Time) {
	m.now = now
}

// seedEpoch anchors mock chain heights so they grow realistically.
var seedEpoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func (m *MockProvider) params() (baseHeight int64, blockTime float64, tps float64) {
	if m.chain == domain.ChainEthereum {
		return 18_900_000, 12.1, 13.9
	}
	return 823_000, 600, 5
}

func (m *MockProvider) height() int64 {
	base, blockTime, _ := m.params()
	elapsed := m.now().Sub(seedEpoch).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	return base + int64(elapsed/blockTime)
}

// rng returns a generator seeded by the chain and a discriminator, so every
// derived field is stable across calls.
func (m *MockProvider) rng(parts ...string) *rand.Rand {
	h := fnv.New64a()
	h.Write([]byte(m.chain))
	for _, p := range parts {
		h.Write([]byte{0})
		h.Write([]byte(p))
	}
	return rand.New(rand.NewSource(int64(h.Sum64())))
}

func (m *MockProvider) hashFor(kind string, n int64) string {
	r := m.rng(kind, strconv.FormatInt(n, 10))
	const hexDigits = "0123456789abcdef"
	buf := make([]byte, 64)
	for i := range buf {
		buf[i] = hexDigits[r.Intn(16)]
	}
	if m.chain == domain.ChainEthereum {
		return "0x" + string(buf)
	}
	return "00000000" + string(buf[8:])
}

func (m *MockProvider) addressFor(r *rand.Rand) string {
	if m.chain == domain.ChainEthereum {
		const hexDigits = "0123456789abcdef"
		buf := make([]byte, 40)
		for i := range buf {
			buf[i] = hexDigits[r.Intn(16)]
		}
		return "0x" + string(buf)
	}
	const base58 = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"
	buf := make([]byte, 33)
	for i := range buf {
		buf[i] = base58[r.Intn(len(base58))]
	}
	return "1" + string(buf)
}

// NetworkStats returns synthetic stats near the current mock height.
func (m *MockProvider) NetworkStats(ctx context.Context) (*domain.NetworkStats, error) {
	_, blockTime, tps := m.params()

	stats := &domain.NetworkStats{
		Chain:        m.chain,
		BlockHeight:  m.height(),
		TPS:          tps,
		AvgBlockTime: blockTime,
	}
	if m.chain == domain.ChainEthereum {
		stats.GasPrice = &domain.GasPrice{Low: 10, Avg: 16, High: 25, Unit: "gwei"}
	} else {
		hashRate := "600000000000000000000"
		stats.HashRate = &hashRate
	}
	return stats, nil
}

// ListBlocks returns synthetic blocks walking down from the mock height.
func (m *MockProvider) ListBlocks(ctx context.Context, limit, page int) ([]domain.Block, error) {
	start := m.height() - int64(page-1)*int64(limit)

	blocks := make([]domain.Block, 0, limit)
	for i := 0; i < limit; i++ {
		number := start - int64(i)
		if number < 0 {
			break
		}
		block, _ := m.GetBlock(ctx, number)
		blocks = append(blocks, *block)
	}
	return blocks, nil
}

// GetBlock returns a synthetic block; nil above the mock height.
func (m *MockProvider) GetBlock(ctx context.Context, number int64) (*domain.Block, error) {
	height := m.height()
	if number > height || number < 0 {
		return nil, nil
	}

	_, blockTime, _ := m.params()
	r := m.rng("block", strconv.FormatInt(number, 10))

	block := domain.Block{
		Number:     number,
		Hash:       m.hashFor("block", number),
		Timestamp:  m.now().Unix() - int64(float64(height-number)*blockTime),
		TxCount:    50 + r.Intn(250),
		Miner:      m.minerFor(r),
		Size:       100_000 + int64(r.Intn(1_400_000)),
		ParentHash: m.hashFor("block", number-1),
		Chain:      m.chain,
	}
	if m.chain == domain.ChainEthereum {
		gasUsed := int64(8_000_000 + r.Intn(22_000_000))
		gasLimit := int64(30_000_000)
		block.GasUsed = &gasUsed
		block.GasLimit = &gasLimit
		block.Reward = "2"
	} else {
		block.Reward = "6.25"
	}
	return &block, nil
}

func (m *MockProvider) minerFor(r *rand.Rand) string {
	if m.chain == domain.ChainBitcoin {
		pools := []string{"Foundry USA", "AntPool", "F2Pool", "ViaBTC", "Binance Pool"}
		return pools[r.Intn(len(pools))]
	}
	return m.addressFor(r)
}

// GetBlockTransactions returns synthetic transactions for one block.
func (m *MockProvider) GetBlockTransactions(ctx context.Context, number int64) ([]domain.Transaction, error) {
	block, _ := m.GetBlock(ctx, number)
	if block == nil {
		return []domain.Transaction{}, nil
	}

	count := 10
	txs := make([]domain.Transaction, 0, count)
	for i := 0; i < count; i++ {
		r := m.rng("tx", strconv.FormatInt(number, 10), strconv.Itoa(i))
		txs = append(txs, domain.Transaction{
			Hash:          m.hashFor("txhash", number*1000+int64(i)),
			BlockNumber:   number,
			Timestamp:     block.Timestamp,
			From:          m.addressFor(r),
			To:            m.addressFor(r),
			Value:         strconv.FormatInt(int64(r.Intn(1_000_000_000)), 10),
			Fee:           strconv.FormatInt(int64(1000+r.Intn(100_000)), 10),
			Status:        domain.TxStatusConfirmed,
			Confirmations: m.height() - number + 1,
			Chain:         m.chain,
		})
	}
	return txs, nil
}

// GetTransaction returns a synthetic transaction derived from the hash.
func (m *MockProvider) GetTransaction(ctx context.Context, hash string) (*domain.Transaction, error) {
	r := m.rng("txlookup", hash)
	height := m.height()
	blockNumber := height - int64(r.Intn(1000))

	return &domain.Transaction{
		Hash:          hash,
		BlockNumber:   blockNumber,
		Timestamp:     m.now().Unix() - int64(r.Intn(86_400)),
		From:          m.addressFor(r),
		To:            m.addressFor(r),
		Value:         strconv.FormatInt(int64(r.Intn(1_000_000_000)), 10),
		Fee:           strconv.FormatInt(int64(1000+r.Intn(100_000)), 10),
		Status:        domain.TxStatusConfirmed,
		Confirmations: height - blockNumber + 1,
		Chain:         m.chain,
	}, nil
}

// GetAddress returns a synthetic address summary derived from the address.
func (m *MockProvider) GetAddress(ctx context.Context, address string) (*domain.AddressInfo, error) {
	r := m.rng("address", address)
	now := m.now().Unix()

	first := now - int64(r.Intn(3*365*86_400))
	last := now - int64(r.Intn(7*86_400))
	return &domain.AddressInfo{
		Address:      address,
		Balance:      strconv.FormatInt(int64(r.Intn(2_000_000_000)), 10),
		TxCount:      int64(1 + r.Intn(5000)),
		Chain:        m.chain,
		FirstSeen:    &first,
		LastActivity: &last,
	}, nil
}

// GetAddressTransactions returns synthetic transactions for an address.
func (m *MockProvider) GetAddressTransactions(ctx context.Context, address string, limit int) ([]domain.Transaction, error) {
	txs := make([]domain.Transaction, 0, limit)
	for i := 0; i < limit; i++ {
		tx, _ := m.GetTransaction(ctx, fmt.Sprintf("%s-%d", address, i))
		tx.Hash = m.hashFor("addrtx", int64(i)+hashSeed(address))
		txs = append(txs, *tx)
	}
	return txs, nil
}

func hashSeed(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64() & 0x7fffffff)
}
