package cache

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/tomastoth/crypto-common/internal/logging"
	"github.com/tomastoth/crypto-common/internal/metrics"
	"github.com/tomastoth/crypto-common/internal/provider"
)

const (
	// DefaultTTL is used when TTL is not set.
	DefaultTTL = 5 * time.Minute
	// DefaultRefreshTimeout bounds a shared refresh when RefreshTimeout is not set.
	DefaultRefreshTimeout = 30 * time.Second
)

// Provider memoizes prices of the wrapped provider per normalized symbol.
//
// An entry is fresh while now-ObservedAt <= TTL. Missing or stale entries are
// refreshed through P; concurrent refreshes of one symbol share a single call.
// The shared call runs detached from any single caller's context and is bounded
// by RefreshTimeout, while each caller still returns on its own cancellation.
// A failed refresh stores nothing and leaves any previous entry in place, but a
// stale entry is never served. MaxItems bounds the cache with LRU eviction;
// zero means unbounded.
type Provider struct {
	P        provider.PriceProvider
	TTL      time.Duration
	MaxItems int
	Clock    provider.Clock
	Log      *zap.Logger
	Metrics  *metrics.Metrics

	RefreshTimeout time.Duration

	once  sync.Once
	items *lru.Cache[string, provider.PriceRecord] // key: normalized symbol
	sf    singleflight.Group
}

var _ provider.BatchPriceProvider = (*Provider)(nil)

func (c *Provider) init() {
	c.once.Do(func() {
		size := c.MaxItems
		if size <= 0 {
			size = math.MaxInt32
		}
		// only fails for a non-positive size
		c.items, _ = lru.New[string, provider.PriceRecord](size)
		if c.Clock == nil {
			c.Clock = provider.SystemClock{}
		}
		if c.TTL <= 0 {
			c.TTL = DefaultTTL
		}
		if c.RefreshTimeout <= 0 {
			c.RefreshTimeout = DefaultRefreshTimeout
		}
		c.Log = logging.OrNop(c.Log).Named("cache")
	})
}

// Initialize delegates to the wrapped provider.
func (c *Provider) Initialize(ctx context.Context) error {
	c.init()
	return c.P.Initialize(ctx)
}

// GetPriceBySymbol returns the cached price when fresh and refreshes it otherwise.
func (c *Provider) GetPriceBySymbol(ctx context.Context, symbol string) (decimal.Decimal, error) {
	c.init()
	key := provider.NormalizeSymbol(symbol)

	if rec, ok := c.fresh(key, c.Clock.Now()); ok {
		c.Metrics.CacheHit(1)
		return rec.Price, nil
	}
	c.Metrics.CacheMiss(1)
	return c.refresh(ctx, key)
}

// refresh fetches one symbol through P, coalescing concurrent callers.
func (c *Provider) refresh(ctx context.Context, key string) (decimal.Decimal, error) {
	v, err := c.do(ctx, key, func(ctx context.Context) (any, error) {
		now := c.Clock.Now()
		// another flight may have stored it since the caller checked
		if rec, ok := c.fresh(key, now); ok {
			return rec.Price, nil
		}
		price, err := c.P.GetPriceBySymbol(ctx, key)
		if err != nil {
			return nil, err
		}
		c.items.Add(key, provider.PriceRecord{Symbol: key, Price: price, ObservedAt: now})
		return price, nil
	})
	if err != nil {
		c.Metrics.CacheRefreshError()
		c.Log.Debug("refresh failed", zap.String("symbol", key), zap.Error(err))
		return decimal.Decimal{}, err
	}
	return v.(decimal.Decimal), nil
}

// do runs fn once per key among concurrent callers. fn gets a context that
// survives the cancellation of whichever caller started the flight.
func (c *Provider) do(ctx context.Context, key string, fn func(ctx context.Context) (any, error)) (any, error) {
	ch := c.sf.DoChan(key, func() (any, error) {
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.RefreshTimeout)
		defer cancel()
		return fn(flightCtx)
	})
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", provider.ErrProviderUnavailable, ctx.Err())
	case res := <-ch:
		return res.Val, res.Err
	}
}

// GetPricesBySymbols serves fresh entries from the cache and refreshes the
// rest. When P supports batching, all missing symbols go out in one call.
// The result is keyed by normalized symbol; any failure fails the whole call.
func (c *Provider) GetPricesBySymbols(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	c.init()
	now := c.Clock.Now()

	out := make(map[string]decimal.Decimal, len(symbols))
	missing := make([]string, 0, len(symbols))
	seen := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		key := provider.NormalizeSymbol(s)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		if rec, ok := c.fresh(key, now); ok {
			out[key] = rec.Price
			continue
		}
		missing = append(missing, key)
	}
	c.Metrics.CacheHit(len(out))
	if len(missing) == 0 {
		return out, nil
	}
	c.Metrics.CacheMiss(len(missing))

	batch, ok := c.P.(provider.BatchPriceProvider)
	// a lone miss shares its flight with single-symbol lookups
	if !ok || len(missing) == 1 {
		for _, key := range missing {
			price, err := c.refresh(ctx, key)
			if err != nil {
				return nil, err
			}
			out[key] = price
		}
		return out, nil
	}

	sorted := append([]string(nil), missing...)
	sort.Strings(sorted)
	v, err := c.do(ctx, "batch:"+strings.Join(sorted, ","), func(ctx context.Context) (any, error) {
		fetched, err := batch.GetPricesBySymbols(ctx, missing)
		if err != nil {
			return nil, err
		}
		for _, key := range missing {
			price, ok := fetched[key]
			if !ok {
				continue
			}
			c.items.Add(key, provider.PriceRecord{Symbol: key, Price: price, ObservedAt: now})
		}
		return fetched, nil
	})
	if err != nil {
		c.Metrics.CacheRefreshError()
		c.Log.Debug("batch refresh failed", zap.Strings("symbols", missing), zap.Error(err))
		return nil, err
	}
	fetched := v.(map[string]decimal.Decimal)
	for _, key := range missing {
		price, ok := fetched[key]
		if !ok {
			return nil, fmt.Errorf("%w: no price returned for %q", provider.ErrProviderUnavailable, key)
		}
		out[key] = price
	}
	return out, nil
}

// Peek returns the stored record for a symbol regardless of freshness.
func (c *Provider) Peek(symbol string) (provider.PriceRecord, bool) {
	c.init()
	return c.items.Peek(provider.NormalizeSymbol(symbol))
}

// Len reports the number of stored records.
func (c *Provider) Len() int {
	c.init()
	return c.items.Len()
}

func (c *Provider) fresh(key string, now time.Time) (provider.PriceRecord, bool) {
	rec, ok := c.items.Get(key)
	if !ok || now.Sub(rec.ObservedAt) > c.TTL {
		return provider.PriceRecord{}, false
	}
	return rec, true
}
