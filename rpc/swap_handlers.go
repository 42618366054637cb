package rpc

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"otcswap/core/state"
	"otcswap/native/swap"
	"otcswap/observability"
)

type initConfigParams struct {
	BaseAsset  string `json:"baseAsset"`
	QuoteAsset string `json:"quoteAsset"`
}

type createOfferParams struct {
	Depositor string `json:"depositor"`
	AssetIn   string `json:"assetIn"`
	AssetOut  string `json:"assetOut"`
	Amount    string `json:"amount"`
}

type takeOfferParams struct {
	Taker     string `json:"taker"`
	AssetIn   string `json:"assetIn"`
	Depositor string `json:"depositor"`
}

type cancelOfferParams struct {
	Depositor string `json:"depositor"`
	AssetIn   string `json:"assetIn"`
}

type getOfferParams struct {
	AssetIn   string `json:"assetIn"`
	Depositor string `json:"depositor"`
}

type registerAssetParams struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Decimals uint8  `json:"decimals"`
}

type ConfigResult struct {
	BaseAsset  string `json:"baseAsset"`
	QuoteAsset string `json:"quoteAsset"`
}

type OfferResult struct {
	ID            string `json:"id"`
	AssetIn       string `json:"assetIn"`
	AssetOut      string `json:"assetOut"`
	DepositAmount string `json:"depositAmount"`
	Depositor     string `json:"depositor"`
	Vault         string `json:"vault"`
	CreatedAt     int64  `json:"createdAt"`
}

type SettlementResult struct {
	OfferID       string `json:"offerId"`
	AssetIn       string `json:"assetIn"`
	AssetOut      string `json:"assetOut"`
	DepositAmount string `json:"depositAmount"`
	CounterAmount string `json:"counterAmount"`
	Price         string `json:"price"`
	Depositor     string `json:"depositor"`
	Taker         string `json:"taker"`
}

type BalanceResponse struct {
	Address  string            `json:"address"`
	Nonce    uint64            `json:"nonce"`
	Balances map[string]string `json:"balances"`
}

func parseAddress(value string) ([20]byte, error) {
	var addr [20]byte
	trimmed := strings.TrimSpace(value)
	if !strings.HasPrefix(trimmed, "0x") {
		return addr, fmt.Errorf("address must carry the 0x prefix")
	}
	raw, err := hex.DecodeString(trimmed[2:])
	if err != nil {
		return addr, fmt.Errorf("address is not valid hex: %w", err)
	}
	if len(raw) != len(addr) {
		return addr, fmt.Errorf("address must be %d bytes, got %d", len(addr), len(raw))
	}
	copy(addr[:], raw)
	return addr, nil
}

func formatAddress(addr [20]byte) string {
	return "0x" + hex.EncodeToString(addr[:])
}

func offerResult(offer *swap.Offer) OfferResult {
	return OfferResult{
		ID:            hex.EncodeToString(offer.ID[:]),
		AssetIn:       offer.AssetIn,
		AssetOut:      offer.AssetOut,
		DepositAmount: offer.DepositAmount.String(),
		Depositor:     formatAddress(offer.Depositor),
		Vault:         formatAddress(offer.Vault),
		CreatedAt:     offer.CreatedAt,
	}
}

func settlementResult(settlement *swap.Settlement) SettlementResult {
	return SettlementResult{
		OfferID:       hex.EncodeToString(settlement.OfferID[:]),
		AssetIn:       settlement.AssetIn,
		AssetOut:      settlement.AssetOut,
		DepositAmount: settlement.DepositAmount.String(),
		CounterAmount: settlement.CounterAmount.String(),
		Price:         settlement.Price.String(),
		Depositor:     formatAddress(settlement.Depositor),
		Taker:         formatAddress(settlement.Taker),
	}
}

// writeSwapError maps engine sentinels onto JSON-RPC error codes so clients
// can distinguish bad requests from missing records and internal faults.
func writeSwapError(w http.ResponseWriter, id interface{}, err error) {
	switch {
	case errors.Is(err, swap.ErrOfferNotFound):
		writeError(w, http.StatusNotFound, id, codeNotFound, err.Error(), nil)
	case errors.Is(err, swap.ErrAmountZero),
		errors.Is(err, swap.ErrAmountOverflow),
		errors.Is(err, swap.ErrInvalidTokenIn),
		errors.Is(err, swap.ErrInvalidTokenOut),
		errors.Is(err, swap.ErrSameToken),
		errors.Is(err, swap.ErrOfferExists),
		errors.Is(err, swap.ErrInvalidPrice),
		errors.Is(err, swap.ErrStalePrice),
		errors.Is(err, swap.ErrConfigNotSet):
		writeError(w, http.StatusBadRequest, id, codeInvalidParams, err.Error(), nil)
	default:
		writeError(w, http.StatusInternalServerError, id, codeServerError, err.Error(), nil)
	}
}

func decodeParams(req *RPCRequest, target interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("parameter object required")
	}
	return json.Unmarshal(req.Params[0], target)
}

func (s *Server) checkRate(w http.ResponseWriter, r *http.Request, req *RPCRequest) bool {
	source := clientSource(r)
	if !s.allowSource(source, time.Now()) {
		observability.Swap().ObserveRequest(req.Method, "rate_limited")
		writeError(w, http.StatusTooManyRequests, req.ID, codeRateLimited, "request rate limit exceeded", source)
		return false
	}
	return true
}

func (s *Server) handleInitConfig(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if !s.checkRate(w, r, req) {
		return
	}
	var params initConfigParams
	if err := decodeParams(req, &params); err != nil {
		observability.Swap().ObserveRequest(req.Method, "invalid")
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	cfg, err := s.engine.InitConfig(params.BaseAsset, params.QuoteAsset)
	if err != nil {
		observability.Swap().ObserveRequest(req.Method, "error")
		writeSwapError(w, req.ID, err)
		return
	}
	observability.Swap().ObserveRequest(req.Method, "ok")
	writeResult(w, req.ID, ConfigResult{BaseAsset: cfg.BaseAsset, QuoteAsset: cfg.QuoteAsset})
}

func (s *Server) handleGetConfig(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	cfg, ok, err := s.state.SwapConfigGet()
	if err != nil {
		observability.Swap().ObserveRequest(req.Method, "error")
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to load config", err.Error())
		return
	}
	if !ok {
		observability.Swap().ObserveRequest(req.Method, "error")
		writeSwapError(w, req.ID, swap.ErrConfigNotSet)
		return
	}
	observability.Swap().ObserveRequest(req.Method, "ok")
	writeResult(w, req.ID, ConfigResult{BaseAsset: cfg.BaseAsset, QuoteAsset: cfg.QuoteAsset})
}

func (s *Server) handleCreateOffer(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if !s.checkRate(w, r, req) {
		return
	}
	var params createOfferParams
	if err := decodeParams(req, &params); err != nil {
		observability.Swap().ObserveRequest(req.Method, "invalid")
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	depositor, err := parseAddress(params.Depositor)
	if err != nil {
		observability.Swap().ObserveRequest(req.Method, "invalid")
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid depositor address", err.Error())
		return
	}
	amount, ok := new(big.Int).SetString(strings.TrimSpace(params.Amount), 10)
	if !ok {
		observability.Swap().ObserveRequest(req.Method, "invalid")
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "amount must be a base-10 integer", params.Amount)
		return
	}
	offer, err := s.engine.CreateOffer(depositor, params.AssetIn, params.AssetOut, amount)
	if err != nil {
		observability.Swap().ObserveRequest(req.Method, "error")
		writeSwapError(w, req.ID, err)
		return
	}
	observability.Swap().ObserveRequest(req.Method, "ok")
	writeResult(w, req.ID, offerResult(offer))
}

func (s *Server) handleTakeOffer(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if !s.checkRate(w, r, req) {
		return
	}
	var params takeOfferParams
	if err := decodeParams(req, &params); err != nil {
		observability.Swap().ObserveRequest(req.Method, "invalid")
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	taker, err := parseAddress(params.Taker)
	if err != nil {
		observability.Swap().ObserveRequest(req.Method, "invalid")
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid taker address", err.Error())
		return
	}
	depositor, err := parseAddress(params.Depositor)
	if err != nil {
		observability.Swap().ObserveRequest(req.Method, "invalid")
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid depositor address", err.Error())
		return
	}
	if s.oracle == nil {
		observability.Swap().ObserveRequest(req.Method, "error")
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "price oracle unavailable", nil)
		return
	}
	cfg, ok, err := s.state.SwapConfigGet()
	if err != nil {
		observability.Swap().ObserveRequest(req.Method, "error")
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to load config", err.Error())
		return
	}
	if !ok {
		observability.Swap().ObserveRequest(req.Method, "error")
		writeSwapError(w, req.ID, swap.ErrConfigNotSet)
		return
	}
	sample, err := s.oracle.ReadPrice(cfg.BaseAsset, cfg.QuoteAsset)
	if err != nil {
		observability.Swap().ObserveRequest(req.Method, "error")
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to read oracle price", err.Error())
		return
	}
	settlement, err := s.engine.TakeOffer(taker, params.AssetIn, depositor, sample)
	if err != nil {
		if errors.Is(err, swap.ErrStalePrice) {
			observability.Swap().ObserveStaleSample()
		}
		observability.Swap().ObserveRequest(req.Method, "error")
		writeSwapError(w, req.ID, err)
		return
	}
	observability.Swap().ObserveRequest(req.Method, "ok")
	writeResult(w, req.ID, settlementResult(settlement))
}

func (s *Server) handleCancelOffer(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if !s.checkRate(w, r, req) {
		return
	}
	var params cancelOfferParams
	if err := decodeParams(req, &params); err != nil {
		observability.Swap().ObserveRequest(req.Method, "invalid")
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	depositor, err := parseAddress(params.Depositor)
	if err != nil {
		observability.Swap().ObserveRequest(req.Method, "invalid")
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid depositor address", err.Error())
		return
	}
	if err := s.engine.CancelOffer(depositor, params.AssetIn); err != nil {
		observability.Swap().ObserveRequest(req.Method, "error")
		writeSwapError(w, req.ID, err)
		return
	}
	observability.Swap().ObserveRequest(req.Method, "ok")
	writeResult(w, req.ID, true)
}

func (s *Server) handleGetOffer(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params getOfferParams
	if err := decodeParams(req, &params); err != nil {
		observability.Swap().ObserveRequest(req.Method, "invalid")
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	depositor, err := parseAddress(params.Depositor)
	if err != nil {
		observability.Swap().ObserveRequest(req.Method, "invalid")
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid depositor address", err.Error())
		return
	}
	offer, ok, err := s.engine.GetOffer(params.AssetIn, depositor)
	if err != nil {
		observability.Swap().ObserveRequest(req.Method, "error")
		writeSwapError(w, req.ID, err)
		return
	}
	if !ok {
		observability.Swap().ObserveRequest(req.Method, "error")
		writeSwapError(w, req.ID, swap.ErrOfferNotFound)
		return
	}
	observability.Swap().ObserveRequest(req.Method, "ok")
	writeResult(w, req.ID, offerResult(offer))
}

func (s *Server) handleGetBalance(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) == 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "address parameter required", nil)
		return
	}
	var addrStr string
	if err := json.Unmarshal(req.Params[0], &addrStr); err != nil {
		observability.Swap().ObserveRequest(req.Method, "invalid")
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid address parameter", err.Error())
		return
	}
	addr, err := parseAddress(addrStr)
	if err != nil {
		observability.Swap().ObserveRequest(req.Method, "invalid")
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "failed to decode address", err.Error())
		return
	}
	account, err := s.state.GetAccount(addr[:])
	if err != nil {
		observability.Swap().ObserveRequest(req.Method, "error")
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to load account", err.Error())
		return
	}
	balances := make(map[string]string, len(account.Balances))
	for asset, amount := range account.Balances {
		balances[asset] = amount.String()
	}
	observability.Swap().ObserveRequest(req.Method, "ok")
	writeResult(w, req.ID, BalanceResponse{
		Address:  formatAddress(addr),
		Nonce:    account.Nonce,
		Balances: balances,
	})
}

func (s *Server) handleRegisterAsset(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if !s.checkRate(w, r, req) {
		return
	}
	var params registerAssetParams
	if err := decodeParams(req, &params); err != nil {
		observability.Swap().ObserveRequest(req.Method, "invalid")
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	meta := state.AssetMetadata{Symbol: params.Symbol, Name: params.Name, Decimals: params.Decimals}
	if err := s.state.RegisterAsset(meta); err != nil {
		observability.Swap().ObserveRequest(req.Method, "error")
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "failed to register asset", err.Error())
		return
	}
	observability.Swap().ObserveRequest(req.Method, "ok")
	writeResult(w, req.ID, true)
}

func (s *Server) handleAssetList(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	symbols, err := s.state.AssetList()
	if err != nil {
		observability.Swap().ObserveRequest(req.Method, "error")
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to list assets", err.Error())
		return
	}
	observability.Swap().ObserveRequest(req.Method, "ok")
	writeResult(w, req.ID, symbols)
}
