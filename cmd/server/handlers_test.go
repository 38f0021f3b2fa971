package main

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tomastoth/crypto-common/internal/metrics"
	"github.com/tomastoth/crypto-common/internal/provider"
)

type fakeProvider struct {
	prices map[string]decimal.Decimal
	err    error
}

func (f fakeProvider) Initialize(context.Context) error { return nil }

func (f fakeProvider) GetPriceBySymbol(ctx context.Context, symbol string) (decimal.Decimal, error) {
	prices, err := f.GetPricesBySymbols(ctx, []string{symbol})
	if err != nil {
		return decimal.Decimal{}, err
	}
	return prices[provider.NormalizeSymbol(symbol)], nil
}

func (f fakeProvider) GetPricesBySymbols(_ context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]decimal.Decimal, len(symbols))
	for _, s := range symbols {
		key := provider.NormalizeSymbol(s)
		p, ok := f.prices[key]
		if !ok {
			return nil, fmt.Errorf("%w: %q", provider.ErrUnknownSymbol, s)
		}
		out[key] = p
	}
	return out, nil
}

type fakeIndex int

func (f fakeIndex) Len() int { return int(f) }

func newHandler(p provider.BatchPriceProvider) *handler {
	return &handler{prices: p, symbols: fakeIndex(2), log: zap.NewNop()}
}

var defaultPrices = fakeProvider{prices: map[string]decimal.Decimal{
	"btc": decimal.RequireFromString("50000.12"),
	"eth": decimal.RequireFromString("3000.5"),
}}

func TestPrice_OK(t *testing.T) {
	h := newHandler(defaultPrices)

	rr := httptest.NewRecorder()
	h.price(rr, httptest.NewRequest(http.MethodGet, "/api/price?symbol=BTC", nil))

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var resp priceResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, "btc", resp.Symbol)
	require.Equal(t, "usd", resp.Currency)
	require.True(t, decimal.RequireFromString("50000.12").Equal(resp.Price))
	require.Contains(t, rr.Body.String(), `"price":"50000.12"`)
}

func TestPrice_ErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		p      fakeProvider
		url    string
		status int
	}{
		{name: "missing param", p: defaultPrices, url: "/api/price", status: http.StatusBadRequest},
		{name: "unknown symbol", p: defaultPrices, url: "/api/price?symbol=doge", status: http.StatusNotFound},
		{name: "unavailable", p: fakeProvider{err: provider.ErrProviderUnavailable}, url: "/api/price?symbol=btc", status: http.StatusBadGateway},
		{name: "unexpected", p: fakeProvider{err: fmt.Errorf("boom")}, url: "/api/price?symbol=btc", status: http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			newHandler(tc.p).price(rr, httptest.NewRequest(http.MethodGet, tc.url, nil))
			require.Equal(t, tc.status, rr.Code, rr.Body.String())
		})
	}
}

func TestPrices_GetPreservesOrder(t *testing.T) {
	h := newHandler(defaultPrices)

	rr := httptest.NewRecorder()
	h.batchPrices(rr, httptest.NewRequest(http.MethodGet, "/api/prices?symbols=ETH,btc,eth", nil))

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var resp pricesResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Prices, 2)
	require.Equal(t, "eth", resp.Prices[0].Symbol)
	require.Equal(t, "btc", resp.Prices[1].Symbol)
}

func TestPrices_Post(t *testing.T) {
	h := newHandler(defaultPrices)

	rr := httptest.NewRecorder()
	h.batchPrices(rr, httptest.NewRequest(http.MethodPost, "/api/prices", strings.NewReader(`{"symbols":["btc"]}`)))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = httptest.NewRecorder()
	h.batchPrices(rr, httptest.NewRequest(http.MethodPost, "/api/prices", strings.NewReader(`{"tickers":["btc"]}`)))
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = httptest.NewRecorder()
	h.batchPrices(rr, httptest.NewRequest(http.MethodPost, "/api/prices", strings.NewReader(`{"symbols":[]}`)))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestPrices_TooMany(t *testing.T) {
	h := newHandler(defaultPrices)

	symbols := make([]string, maxSymbols+1)
	for i := range symbols {
		symbols[i] = fmt.Sprintf("s%d", i)
	}
	rr := httptest.NewRecorder()
	h.batchPrices(rr, httptest.NewRequest(http.MethodGet, "/api/prices?symbols="+strings.Join(symbols, ","), nil))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestPrices_UnknownSymbolFailsWholeRequest(t *testing.T) {
	h := newHandler(defaultPrices)

	rr := httptest.NewRecorder()
	h.batchPrices(rr, httptest.NewRequest(http.MethodGet, "/api/prices?symbols=btc,doge", nil))
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHealthz(t *testing.T) {
	rr := httptest.NewRecorder()
	newHandler(defaultPrices).healthz(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	h := &handler{prices: defaultPrices, symbols: fakeIndex(0), log: zap.NewNop()}
	rr = httptest.NewRecorder()
	h.healthz(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestMiddleware_MetricsAndPanics(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	mux := http.NewServeMux()
	mux.HandleFunc("/api/price", func(w http.ResponseWriter, r *http.Request) { panic("boom") })
	srv := withMetrics(m, withJSONHeaders(recoverPanic(zap.NewNop(), mux)))

	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/price", nil))
	require.Equal(t, http.StatusInternalServerError, rr.Code)

	rr = httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/nope/123", nil))
	require.Equal(t, http.StatusNotFound, rr.Code)

	require.InDelta(t, 1, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("/api/price", "GET", "500")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("other", "GET", "404")), 0)
}

func TestRouter_MetricsCompressedOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.CacheHit(1)
	srv := newRouter(newHandler(defaultPrices), reg, m)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "gzip", rr.Header().Get("Content-Encoding"))
	require.NotContains(t, rr.Header().Get("Content-Type"), "application/json")
	zr, err := gzip.NewReader(rr.Body)
	require.NoError(t, err)
	body, err := io.ReadAll(zr)
	require.NoError(t, err)
	require.Contains(t, string(body), "price_cache_hits_total 1")
}

func TestRouter_APIGzipped(t *testing.T) {
	reg := prometheus.NewRegistry()
	srv := newRouter(newHandler(defaultPrices), reg, metrics.New(reg))

	req := httptest.NewRequest(http.MethodGet, "/api/price?symbol=eth", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	zr, err := gzip.NewReader(rr.Body)
	require.NoError(t, err)
	var resp priceResponse
	require.NoError(t, json.NewDecoder(zr).Decode(&resp))
	require.Equal(t, "eth", resp.Symbol)
}
