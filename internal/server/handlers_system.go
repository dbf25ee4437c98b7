package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/tickerhub/internal/domain"
)

const probeTimeout = 5 * time.Second

type serviceHealth struct {
	Status       string `json:"status"` // "ok" | "error"
	ResponseTime int64  `json:"responseTime"` // milliseconds
}

type healthResponse struct {
	Status       string                   `json:"status"` // "ok" | "degraded"
	Timestamp    string                   `json:"timestamp"`
	Uptime       int64                    `json:"uptime"` // seconds
	ResponseTime int64                    `json:"responseTime"`
	Services     map[string]serviceHealth `json:"services"`
	Cache        map[string]int           `json:"cache"`
	Environment  string                   `json:"environment"`
}

// healthProbes lists a cheap JSON endpoint per configured upstream.
func (s *Server) healthProbes() map[string]string {
	cfg := s.deps.Config
	probes := make(map[string]string)

	if cfg.HasCoinGecko() {
		probes["coingecko"] = cfg.CoinGeckoBaseURL + "/api/v3/ping"
	}
	if cfg.HasEtherscan() {
		probes["etherscan"] = cfg.EtherscanBaseURL + "/api?module=stats&action=ethprice&apikey=" + cfg.EtherscanAPIKey
	}
	if cfg.HasBlockchair() {
		probes["blockchair"] = cfg.BlockchairBaseURL + "/bitcoin/stats"
	}
	if cfg.HasFMP() {
		probes["fmp"] = cfg.FMPBaseURL + "/api/v3/stock_market/actives?apikey=" + cfg.FMPAPIKey
	}
	if cfg.HasFinnhub() {
		probes["finnhub"] = cfg.FinnhubBaseURL + "/api/v1/quote?symbol=AAPL&token=" + cfg.FinnhubAPIKey
	}
	return probes
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(r.Context(), probeTimeout+time.Second)
	defer cancel()

	probes := s.healthProbes()
	services := make(map[string]serviceHealth, len(probes))

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for name, probeURL := range probes {
		wg.Add(1)
		go func(name, probeURL string) {
			defer wg.Done()

			probeStart := time.Now()
			var out interface{}
			ok := s.deps.Fetcher.SafeFetch(ctx, probeURL, probeTimeout, &out)

			status := "ok"
			if !ok {
				status = "error"
			}
			mu.Lock()
			services[name] = serviceHealth{
				Status:       status,
				ResponseTime: time.Since(probeStart).Milliseconds(),
			}
			mu.Unlock()
		}(name, probeURL)
	}
	wg.Wait()

	aggregate := "ok"
	statusCode := http.StatusOK
	for _, svc := range services {
		if svc.Status != "ok" {
			aggregate = "degraded"
			statusCode = http.StatusServiceUnavailable
			break
		}
	}

	entries, _ := s.deps.Cache.Stats()
	s.respondJSON(w, statusCode, healthResponse{
		Status:       aggregate,
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
		Uptime:       int64(time.Since(s.startedAt).Seconds()),
		ResponseTime: time.Since(start).Milliseconds(),
		Services:     services,
		Cache:        map[string]int{"entries": entries},
		Environment:  s.deps.Config.Env,
	})
}

type statsResponse struct {
	TotalBlocks       int64   `json:"totalBlocks"`
	TotalTransactions int64   `json:"totalTransactions"`
	NetworksSupported int     `json:"networksSupported"`
	Uptime            int64   `json:"uptime"` // seconds
	MemoryUsedPercent float64 `json:"memoryUsedPercent"`
}

// handleStats reports platform-wide counters: summed chain heights, an
// estimated daily transaction volume, and process vitals.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	resp := statsResponse{
		Uptime: int64(time.Since(s.startedAt).Seconds()),
	}

	for chain := range s.deps.Chains.Status() {
		resp.NetworksSupported++

		stats, err := s.deps.Chains.NetworkStats(r.Context(), domain.Chain(chain))
		if err != nil || stats == nil {
			continue
		}
		resp.TotalBlocks += stats.BlockHeight
		resp.TotalTransactions += int64(stats.TPS * 86400)
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		resp.MemoryUsedPercent = vm.UsedPercent
	}
	s.respondJSON(w, http.StatusOK, resp)
}
