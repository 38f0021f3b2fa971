package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/tomastoth/crypto-common/internal/provider"
)

// MinInterval wraps a provider and enforces a minimum time between calls.
// Concurrent calls wait their turn, or return early if the context is canceled.
type MinInterval struct {
	P        provider.PriceProvider
	Interval time.Duration

	once    sync.Once
	limiter *rate.Limiter
}

var _ provider.BatchPriceProvider = (*MinInterval)(nil)

func (m *MinInterval) gate(ctx context.Context) error {
	m.once.Do(func() {
		if m.Interval > 0 {
			m.limiter = rate.NewLimiter(rate.Every(m.Interval), 1)
		}
	})
	return wait(ctx, m.limiter)
}

func (m *MinInterval) Initialize(ctx context.Context) error {
	if err := m.gate(ctx); err != nil {
		return err
	}
	return m.P.Initialize(ctx)
}

func (m *MinInterval) GetPriceBySymbol(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if err := m.gate(ctx); err != nil {
		return decimal.Decimal{}, err
	}
	return m.P.GetPriceBySymbol(ctx, symbol)
}

func (m *MinInterval) GetPricesBySymbols(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	batch, ok := m.P.(provider.BatchPriceProvider)
	if !ok {
		return eachSymbol(ctx, symbols, m.GetPriceBySymbol)
	}
	if err := m.gate(ctx); err != nil {
		return nil, err
	}
	return batch.GetPricesBySymbols(ctx, symbols)
}
