package provider

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PriceRecord is a USD price observed for a symbol at a point in time.
type PriceRecord struct {
	Symbol     string          `json:"symbol"`
	Price      decimal.Decimal `json:"price"`
	ObservedAt time.Time       `json:"observed_at"`
}

// PriceProvider answers USD price lookups by ticker symbol.
// Initialize must be called before the first lookup.
type PriceProvider interface {
	Initialize(ctx context.Context) error
	GetPriceBySymbol(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// BatchPriceProvider resolves several symbols with a single remote call.
// The returned map is keyed by normalized symbol.
type BatchPriceProvider interface {
	PriceProvider
	GetPricesBySymbols(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error)
}

// NormalizeSymbol folds a ticker to the form used for index and cache keys.
func NormalizeSymbol(symbol string) string {
	return strings.ToLower(strings.TrimSpace(symbol))
}

// SplitSymbols splits a comma-separated symbol list, dropping blank entries.
// Symbols are returned as given; callers normalize them on lookup.
func SplitSymbols(csv string) []string {
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Clock is the time source used for freshness decisions.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
