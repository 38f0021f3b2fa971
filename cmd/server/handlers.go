package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tomastoth/crypto-common/internal/provider"
)

const maxSymbols = 250

type symbolIndex interface {
	Len() int
}

type handler struct {
	prices  provider.BatchPriceProvider
	symbols symbolIndex
	timeout time.Duration
	log     *zap.Logger
}

type priceResponse struct {
	Symbol   string          `json:"symbol"`
	Price    decimal.Decimal `json:"price"`
	Currency string          `json:"currency"`
}

type pricesResponse struct {
	Prices []priceResponse `json:"prices"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type postBody struct {
	Symbols []string `json:"symbols"`
}

func (h *handler) healthz(w http.ResponseWriter, r *http.Request) {
	if h.symbols != nil && h.symbols.Len() == 0 {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "symbol index is empty"})
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *handler) price(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}
	symbol := strings.TrimSpace(r.URL.Query().Get("symbol"))
	if symbol == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing symbol query param"})
		return
	}

	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	price, err := h.prices.GetPriceBySymbol(ctx, symbol)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, priceResponse{Symbol: provider.NormalizeSymbol(symbol), Price: price, Currency: "usd"})
}

func (h *handler) batchPrices(w http.ResponseWriter, r *http.Request) {
	var symbols []string
	switch r.Method {
	case http.MethodGet:
		q := r.URL.Query().Get("symbols")
		if strings.TrimSpace(q) == "" {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing symbols query param"})
			return
		}
		symbols = provider.SplitSymbols(q)
	case http.MethodPost:
		var b postBody
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&b); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
			return
		}
		symbols = b.Symbols
	default:
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}
	if len(symbols) == 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "symbols cannot be empty"})
		return
	}
	if len(symbols) > maxSymbols {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "too many symbols"})
		return
	}

	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	prices, err := h.prices.GetPricesBySymbols(ctx, symbols)
	if err != nil {
		h.writeError(w, err)
		return
	}

	// preserve request order, drop duplicates
	resp := pricesResponse{Prices: make([]priceResponse, 0, len(prices))}
	seen := make(map[string]struct{}, len(prices))
	for _, s := range symbols {
		key := provider.NormalizeSymbol(s)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		if p, ok := prices[key]; ok {
			resp.Prices = append(resp.Prices, priceResponse{Symbol: key, Price: p, Currency: "usd"})
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if h.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, h.timeout)
}

func (h *handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, provider.ErrUnknownSymbol):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, provider.ErrProviderUnavailable):
		h.log.Warn("price lookup failed", zap.Error(err))
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
	default:
		h.log.Error("price lookup failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
