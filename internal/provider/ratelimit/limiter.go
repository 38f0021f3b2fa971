package ratelimit

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/tomastoth/crypto-common/internal/provider"
)

// PerMinute returns a limiter allowing requestsPerMinute with the given burst.
// A non-positive burst is raised to 1.
func PerMinute(requestsPerMinute int, burst int) *rate.Limiter {
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), burst)
}

// TokenBucketProvider wraps a PriceProvider and gates every remote-bound call
// on a token bucket limiter. A batched lookup consumes a single token.
type TokenBucketProvider struct {
	P       provider.PriceProvider
	Limiter *rate.Limiter
}

var _ provider.BatchPriceProvider = (*TokenBucketProvider)(nil)

func (t *TokenBucketProvider) Initialize(ctx context.Context) error {
	if err := wait(ctx, t.Limiter); err != nil {
		return err
	}
	return t.P.Initialize(ctx)
}

func (t *TokenBucketProvider) GetPriceBySymbol(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if err := wait(ctx, t.Limiter); err != nil {
		return decimal.Decimal{}, err
	}
	return t.P.GetPriceBySymbol(ctx, symbol)
}

func (t *TokenBucketProvider) GetPricesBySymbols(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	if batch, ok := t.P.(provider.BatchPriceProvider); ok {
		if err := wait(ctx, t.Limiter); err != nil {
			return nil, err
		}
		return batch.GetPricesBySymbols(ctx, symbols)
	}
	return eachSymbol(ctx, symbols, t.GetPriceBySymbol)
}

// wait blocks until l admits one request. A nil limiter admits everything.
func wait(ctx context.Context, l *rate.Limiter) error {
	if l == nil {
		return nil
	}
	if err := l.Wait(ctx); err != nil {
		return fmt.Errorf("%w: waiting for request slot: %w", provider.ErrProviderUnavailable, err)
	}
	return nil
}

func eachSymbol(ctx context.Context, symbols []string, get func(context.Context, string) (decimal.Decimal, error)) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(symbols))
	for _, s := range symbols {
		price, err := get(ctx, s)
		if err != nil {
			return nil, err
		}
		out[provider.NormalizeSymbol(s)] = price
	}
	return out, nil
}
