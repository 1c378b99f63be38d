package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog/log"

	"nexusdex/internal/amm"
	"nexusdex/internal/pool"
	"nexusdex/internal/token"
)

var (
	errBadRequest  = errors.New("bad request")
	errRateLimited = errors.New("too many requests")
)

type assetResponse struct {
	Address          string `json:"address"`
	Symbol           string `json:"symbol"`
	Decimals         uint8  `json:"decimals"`
	Reserve          string `json:"reserve"`
	ReserveFormatted string `json:"reserveFormatted"`
}

type poolResponse struct {
	Address  string        `json:"address"`
	AssetA   assetResponse `json:"assetA"`
	AssetB   assetResponse `json:"assetB"`
	Fee      string        `json:"fee"`
	FeeRate  string        `json:"feeRate"`
	PriceA   string        `json:"priceA"`
	PriceB   string        `json:"priceB"`
	Sequence uint64        `json:"sequence"`
}

type quoteResponse struct {
	Side               string `json:"side"`
	AmountIn           string `json:"amountIn"`
	AmountOut          string `json:"amountOut"`
	AmountOutFormatted string `json:"amountOutFormatted"`
	SpotPrice          string `json:"spotPrice"`
	PriceImpact        string `json:"priceImpact"`
}

type swapRequest struct {
	Trader       string `json:"trader"`
	Side         string `json:"side,omitempty"`
	AssetIn      string `json:"assetIn,omitempty"`
	AmountIn     string `json:"amountIn"`
	MinAmountOut string `json:"minAmountOut,omitempty"`
}

type swapResponse struct {
	Side      string `json:"side"`
	AssetIn   string `json:"assetIn"`
	AssetOut  string `json:"assetOut"`
	AmountIn  string `json:"amountIn"`
	AmountOut string `json:"amountOut"`
	ReserveA  string `json:"reserveA"`
	ReserveB  string `json:"reserveB"`
	Sequence  uint64 `json:"sequence"`
}

type depositRequest struct {
	Depositor string `json:"depositor"`
	AmountA   string `json:"amountA"`
	AmountB   string `json:"amountB"`
}

type depositResponse struct {
	AmountA  string `json:"amountA"`
	AmountB  string `json:"amountB"`
	ReserveA string `json:"reserveA"`
	ReserveB string `json:"reserveB"`
	Sequence uint64 `json:"sequence"`
}

type approveRequest struct {
	Owner  string `json:"owner"`
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

type balanceResponse struct {
	Account   string `json:"account"`
	Asset     string `json:"asset"`
	Symbol    string `json:"symbol"`
	Balance   string `json:"balance"`
	Allowance string `json:"allowance"`
}

type updateResponse struct {
	Pool      string    `json:"pool"`
	Kind      string    `json:"kind"`
	Sequence  uint64    `json:"sequence"`
	ReserveA  string    `json:"reserveA"`
	ReserveB  string    `json:"reserveB"`
	Timestamp time.Time `json:"timestamp"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func newUpdateResponse(u pool.ReserveUpdate) updateResponse {
	return updateResponse{
		Pool:      u.Pool.Hex(),
		Kind:      u.Kind,
		Sequence:  u.Sequence,
		ReserveA:  u.ReserveA.Dec(),
		ReserveB:  u.ReserveB.Dec(),
		Timestamp: u.Timestamp,
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *Server) handlePool(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.poolState())
}

func (s *Server) poolState() poolResponse {
	reserves, seq := s.manager.State()
	fee := s.manager.Fee()
	tokA, tokB := s.manager.Token(pool.SideA), s.manager.Token(pool.SideB)

	return poolResponse{
		Address:  s.manager.Address().Hex(),
		AssetA:   newAssetResponse(tokA, reserves.A),
		AssetB:   newAssetResponse(tokB, reserves.B),
		Fee:      fee.String(),
		FeeRate:  fee.Rate().String(),
		PriceA:   amm.SpotPrice(reserves.A, reserves.B).String(),
		PriceB:   amm.SpotPrice(reserves.B, reserves.A).String(),
		Sequence: seq,
	}
}

func newAssetResponse(tok token.Token, reserve *uint256.Int) assetResponse {
	return assetResponse{
		Address:          tok.ID().Hex(),
		Symbol:           tok.Symbol(),
		Decimals:         tok.Decimals(),
		Reserve:          reserve.Dec(),
		ReserveFormatted: amm.FormatUnits(reserve, tok.Decimals()),
	}
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	side, err := s.resolveSide(q.Get("side"), q.Get("asset"))
	if err != nil {
		writeError(w, err)
		return
	}
	amountIn, err := parseAmount(q.Get("amount"))
	if err != nil {
		writeError(w, err)
		return
	}

	reserves := s.manager.Reserves()
	amountOut, err := s.manager.Quote(side, amountIn)
	if err != nil {
		writeError(w, err)
		return
	}

	reserveIn, reserveOut := reserves.InOut(side)
	writeJSON(w, http.StatusOK, quoteResponse{
		Side:               side.String(),
		AmountIn:           amountIn.Dec(),
		AmountOut:          amountOut.Dec(),
		AmountOutFormatted: amm.FormatUnits(amountOut, s.manager.Token(side.Other()).Decimals()),
		SpotPrice:          amm.SpotPrice(reserveIn, reserveOut).String(),
		PriceImpact:        amm.PriceImpact(amountIn, amountOut, reserveIn, reserveOut).String(),
	})
}

func (s *Server) handleSwap(w http.ResponseWriter, r *http.Request) {
	var req swapRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	trader, err := parseAccount("trader", req.Trader)
	if err != nil {
		writeError(w, err)
		return
	}
	side, err := s.resolveSide(req.Side, req.AssetIn)
	if err != nil {
		writeError(w, err)
		return
	}
	amountIn, err := parseAmount(req.AmountIn)
	if err != nil {
		writeError(w, err)
		return
	}

	swap := pool.SwapRequest{Side: side, AmountIn: amountIn}
	if req.MinAmountOut != "" {
		minOut, err := uint256.FromDecimal(req.MinAmountOut)
		if err != nil {
			writeError(w, fmt.Errorf("%w: minAmountOut: %v", errBadRequest, err))
			return
		}
		swap.MinAmountOut = minOut
	}

	res, err := s.manager.Swap(r.Context(), swap, trader)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, swapResponse{
		Side:      res.Side.String(),
		AssetIn:   res.AssetIn.Hex(),
		AssetOut:  res.AssetOut.Hex(),
		AmountIn:  res.AmountIn.Dec(),
		AmountOut: res.AmountOut.Dec(),
		ReserveA:  res.Reserves.A.Dec(),
		ReserveB:  res.Reserves.B.Dec(),
		Sequence:  res.Sequence,
	})
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	depositor, err := parseAccount("depositor", req.Depositor)
	if err != nil {
		writeError(w, err)
		return
	}
	amountA, err := parseAmount(req.AmountA)
	if err != nil {
		writeError(w, err)
		return
	}
	amountB, err := parseAmount(req.AmountB)
	if err != nil {
		writeError(w, err)
		return
	}

	res, err := s.manager.Deposit(r.Context(), amountA, amountB, depositor)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, depositResponse{
		AmountA:  res.AmountA.Dec(),
		AmountB:  res.AmountB.Dec(),
		ReserveA: res.Reserves.A.Dec(),
		ReserveB: res.Reserves.B.Dec(),
		Sequence: res.Sequence,
	})
}

// handleApprove sets the pool's allowance over owner's balance. "max" approves
// without limit.
func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	var req approveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	owner, err := parseAccount("owner", req.Owner)
	if err != nil {
		writeError(w, err)
		return
	}
	if owner == s.manager.Address() {
		writeError(w, fmt.Errorf("%w: owner %s", pool.ErrInvalidAccount, owner.Hex()))
		return
	}
	tok, err := s.resolveToken(req.Asset)
	if err != nil {
		writeError(w, err)
		return
	}

	var amount *uint256.Int
	if strings.EqualFold(req.Amount, "max") {
		amount = new(uint256.Int).SetAllOne()
	} else if amount, err = uint256.FromDecimal(req.Amount); err != nil {
		writeError(w, fmt.Errorf("%w: amount: %v", errBadRequest, err))
		return
	}

	if err := tok.Approve(r.Context(), owner, s.manager.Address(), amount); err != nil {
		writeError(w, err)
		return
	}
	s.writeBalance(w, r, tok, owner)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	account, err := parseAccount("account", q.Get("account"))
	if err != nil {
		writeError(w, err)
		return
	}
	tok, err := s.resolveToken(q.Get("asset"))
	if err != nil {
		writeError(w, err)
		return
	}
	s.writeBalance(w, r, tok, account)
}

func (s *Server) writeBalance(w http.ResponseWriter, r *http.Request, tok token.Token, account common.Address) {
	balance, err := tok.BalanceOf(r.Context(), account)
	if err != nil {
		writeError(w, err)
		return
	}
	allowance, err := tok.Allowance(r.Context(), account, s.manager.Address())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, balanceResponse{
		Account:   account.Hex(),
		Asset:     tok.ID().Hex(),
		Symbol:    tok.Symbol(),
		Balance:   balance.Dec(),
		Allowance: allowance.Dec(),
	})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	s.hub.ServeWS(w, r, func() ([]byte, error) {
		return json.Marshal(s.poolState())
	})
}

// resolveSide picks the input side from an explicit side or an asset
// identifier (address or symbol).
func (s *Server) resolveSide(side, asset string) (pool.Side, error) {
	if side != "" {
		return pool.ParseSide(side)
	}
	if asset == "" {
		return 0, fmt.Errorf("%w: side or asset is required", errBadRequest)
	}
	tok, err := s.resolveToken(asset)
	if err != nil {
		return 0, err
	}
	return s.manager.SideOf(tok.ID())
}

// resolveToken accepts a pool asset address, symbol or side letter.
func (s *Server) resolveToken(asset string) (token.Token, error) {
	for _, side := range []pool.Side{pool.SideA, pool.SideB} {
		tok := s.manager.Token(side)
		if strings.EqualFold(asset, side.String()) || strings.EqualFold(asset, tok.Symbol()) {
			return tok, nil
		}
		if common.IsHexAddress(asset) && common.HexToAddress(asset) == tok.ID() {
			return tok, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", pool.ErrUnknownAsset, asset)
}

func parseAccount(field, value string) (common.Address, error) {
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("%w: %s must be a hex address", errBadRequest, field)
	}
	addr := common.HexToAddress(value)
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%w: %s", token.ErrZeroAddress, field)
	}
	return addr, nil
}

func parseAmount(value string) (*uint256.Int, error) {
	if value == "" {
		return nil, fmt.Errorf("%w: amount is required", pool.ErrInvalidAmount)
	}
	amount, err := uint256.FromDecimal(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", pool.ErrInvalidAmount, value, err)
	}
	return amount, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

// statusFor maps the error taxonomy onto HTTP statuses.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, token.ErrZeroAddress):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, errRateLimited):
		return http.StatusTooManyRequests, "rate_limited"
	case errors.Is(err, pool.ErrInvalidAmount), errors.Is(err, pool.ErrInvalidSide),
		errors.Is(err, pool.ErrInvalidAccount), errors.Is(err, pool.ErrArithmeticOverflow):
		return http.StatusBadRequest, pool.ErrorClass(err)
	case errors.Is(err, pool.ErrUnknownAsset):
		return http.StatusNotFound, pool.ErrorClass(err)
	case errors.Is(err, pool.ErrInsufficientLiquidity), errors.Is(err, pool.ErrSlippage):
		return http.StatusUnprocessableEntity, pool.ErrorClass(err)
	case errors.Is(err, pool.ErrTransferFailed):
		return http.StatusConflict, pool.ErrorClass(err)
	default:
		return http.StatusInternalServerError, pool.ErrorClass(err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Msg("API request failed")
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to write response")
	}
}
