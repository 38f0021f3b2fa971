package app

import (
	"time"

	"go.uber.org/zap"

	"github.com/tomastoth/crypto-common/internal/config"
	"github.com/tomastoth/crypto-common/internal/httpx"
	"github.com/tomastoth/crypto-common/internal/logging"
	"github.com/tomastoth/crypto-common/internal/metrics"
	"github.com/tomastoth/crypto-common/internal/provider"
	"github.com/tomastoth/crypto-common/internal/provider/cache"
	"github.com/tomastoth/crypto-common/internal/provider/coingecko"
	"github.com/tomastoth/crypto-common/internal/provider/ratelimit"
)

// Stack is the assembled lookup chain: cache -> throttle -> CoinGecko.
type Stack struct {
	Prices provider.BatchPriceProvider
	Cache  *cache.Provider
	Remote *coingecko.Provider
}

// Build wires the provider chain described by cfg.
func Build(cfg config.Config, log *zap.Logger, m *metrics.Metrics) *Stack {
	log = logging.OrNop(log)

	httpClient := httpx.New(cfg.CoinGecko.RequestTimeout())
	client := coingecko.NewCoinGeckoAPIClient(
		coingecko.WithBaseURL(cfg.CoinGecko.Endpoint),
		coingecko.WithHTTPClient(httpClient),
		coingecko.WithMetrics(m),
	)
	remote := coingecko.New(client, log)

	var p provider.PriceProvider = remote
	// Prefer token bucket with burst if RPM is set, otherwise use min-interval
	if cfg.CoinGecko.MaxRequestsPerMinute > 0 {
		limiter := ratelimit.PerMinute(cfg.CoinGecko.MaxRequestsPerMinute, cfg.CoinGecko.Burst)
		p = &ratelimit.TokenBucketProvider{P: p, Limiter: limiter}
	} else if cfg.CoinGecko.MinRequestIntervalSec > 0 {
		interval := time.Duration(cfg.CoinGecko.MinRequestIntervalSec) * time.Second
		p = &ratelimit.MinInterval{P: p, Interval: interval}
	}

	c := &cache.Provider{
		P:        p,
		TTL:      cfg.Cache.TTL(),
		MaxItems: cfg.Cache.MaxItems,
		Log:      log,
		Metrics:  m,

		// covers the throttle wait plus the request itself
		RefreshTimeout: 2 * cfg.CoinGecko.RequestTimeout(),
	}
	return &Stack{Prices: c, Cache: c, Remote: remote}
}
