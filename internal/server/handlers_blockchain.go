package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/aristath/tickerhub/internal/domain"
)

func parseChain(r *http.Request) (domain.Chain, bool) {
	chain := domain.Chain(chi.URLParam(r, "chain"))
	return chain, chain.Valid()
}

func (s *Server) handleNetworkStats(w http.ResponseWriter, r *http.Request) {
	chain, ok := parseChain(r)
	if !ok {
		s.badRequest(w, "invalid chain", map[string]string{"chain": "must be bitcoin or ethereum"})
		return
	}

	stats, err := s.deps.Chains.NetworkStats(r.Context(), chain)
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, stats)
}

func (s *Server) handleBlocks(w http.ResponseWriter, r *http.Request) {
	chain, chainOK := parseChain(r)

	// Path-level pagination is strict: out-of-range values are caller bugs,
	// not something to silently coerce.
	details := map[string]string{}
	if !chainOK {
		details["chain"] = "must be bitcoin or ethereum"
	}
	limit, err := strconv.Atoi(chi.URLParam(r, "limit"))
	if err != nil || limit < 1 || limit > 100 {
		details["limit"] = "must be an integer between 1 and 100"
	}
	page, err := strconv.Atoi(chi.URLParam(r, "page"))
	if err != nil || page < 1 {
		details["page"] = "must be an integer of at least 1"
	}
	if len(details) > 0 {
		s.badRequest(w, "invalid block listing parameters", details)
		return
	}

	blocks, err := s.deps.Chains.Blocks(r.Context(), chain, limit, page)
	if err != nil {
		s.internalError(w, err)
		return
	}
	if blocks == nil {
		blocks = []domain.Block{}
	}
	s.respondJSON(w, http.StatusOK, blocks)
}

func parseBlockNumber(r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "number")
	if !domain.ValidBlockNumber(raw) {
		return 0, false
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func (s *Server) handleBlock(w http.ResponseWriter, r *http.Request) {
	chain, chainOK := parseChain(r)
	number, numberOK := parseBlockNumber(r)

	details := map[string]string{}
	if !chainOK {
		details["chain"] = "must be bitcoin or ethereum"
	}
	if !numberOK {
		details["number"] = "must be a non-negative integer without leading zeros"
	}
	if len(details) > 0 {
		s.badRequest(w, "invalid block parameters", details)
		return
	}

	block, err := s.deps.Chains.Block(r.Context(), chain, number)
	if err != nil {
		s.internalError(w, err)
		return
	}
	if block == nil {
		s.notFound(w, "block not found")
		return
	}
	s.respondJSON(w, http.StatusOK, block)
}

func (s *Server) handleBlockTransactions(w http.ResponseWriter, r *http.Request) {
	chain, chainOK := parseChain(r)
	number, numberOK := parseBlockNumber(r)

	details := map[string]string{}
	if !chainOK {
		details["chain"] = "must be bitcoin or ethereum"
	}
	if !numberOK {
		details["number"] = "must be a non-negative integer without leading zeros"
	}
	if len(details) > 0 {
		s.badRequest(w, "invalid block parameters", details)
		return
	}

	txs, err := s.deps.Chains.BlockTransactions(r.Context(), chain, number)
	if err != nil {
		s.internalError(w, err)
		return
	}
	if txs == nil {
		txs = []domain.Transaction{}
	}
	s.respondJSON(w, http.StatusOK, txs)
}

func (s *Server) handleTransaction(w http.ResponseWriter, r *http.Request) {
	hash := chi.URLParam(r, "hash")
	if !domain.ValidTxHash(hash) {
		s.badRequest(w, "invalid transaction hash", map[string]string{"hash": "must be a 64-hex-digit hash, optionally 0x-prefixed"})
		return
	}

	tx, err := s.deps.Explorer.Transaction(r.Context(), hash)
	if err != nil {
		s.internalError(w, err)
		return
	}
	if tx == nil {
		s.notFound(w, "transaction not found")
		return
	}
	s.respondJSON(w, http.StatusOK, tx)
}

func validAddress(address string) bool {
	if domain.DetectChain(address) == domain.ChainEthereum {
		return domain.ValidEthAddress(address)
	}
	return domain.ValidBtcAddress(address)
}

func (s *Server) handleAddress(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	if !validAddress(address) {
		s.badRequest(w, "invalid address", map[string]string{"address": "must be a valid Ethereum or Bitcoin address"})
		return
	}

	info, err := s.deps.Explorer.Address(r.Context(), address)
	if err != nil {
		s.internalError(w, err)
		return
	}
	if info == nil {
		s.notFound(w, "address not found")
		return
	}
	s.respondJSON(w, http.StatusOK, info)
}

func (s *Server) handleAddressTransactions(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	if !validAddress(address) {
		s.badRequest(w, "invalid address", map[string]string{"address": "must be a valid Ethereum or Bitcoin address"})
		return
	}

	txs, err := s.deps.Explorer.AddressTransactions(r.Context(), address)
	if err != nil {
		s.internalError(w, err)
		return
	}
	if txs == nil {
		txs = []domain.Transaction{}
	}
	s.respondJSON(w, http.StatusOK, txs)
}
