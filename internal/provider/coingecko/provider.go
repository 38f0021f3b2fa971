package coingecko

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tomastoth/crypto-common/internal/logging"
	"github.com/tomastoth/crypto-common/internal/provider"
)

// API is the subset of the CoinGecko API used by Provider.
type API interface {
	ListCoins(ctx context.Context) ([]Coin, error)
	SimplePrice(ctx context.Context, ids []string) (map[string]decimal.Decimal, error)
}

// Provider resolves ticker symbols to CoinGecko identifiers and fetches
// USD prices in batch.
type Provider struct {
	api API
	log *zap.Logger

	mu         sync.RWMutex
	symbolToID map[string]string // key: normalized symbol
}

var _ provider.BatchPriceProvider = (*Provider)(nil)

func New(api API, log *zap.Logger) *Provider {
	return &Provider{api: api, log: logging.OrNop(log).Named("coingecko")}
}

// Initialize fetches the asset listing and replaces the symbol index.
// On failure the previous index is left untouched.
func (p *Provider) Initialize(ctx context.Context) error {
	coins, err := p.api.ListCoins(ctx)
	if err != nil {
		p.log.Warn("listing coins failed", zap.Error(err))
		return err
	}

	index := make(map[string]string, len(coins))
	skipped := 0
	for _, coin := range coins {
		symbol := provider.NormalizeSymbol(coin.Symbol)
		if symbol == "" || coin.ID == "" {
			skipped++
			continue
		}
		// Later entries win for colliding symbols.
		index[symbol] = coin.ID
	}

	p.mu.Lock()
	p.symbolToID = index
	p.mu.Unlock()

	p.log.Info("symbol index built", zap.Int("symbols", len(index)), zap.Int("coins", len(coins)), zap.Int("skipped", skipped))
	return nil
}

// GetPriceBySymbol returns the USD price of a single symbol.
func (p *Provider) GetPriceBySymbol(ctx context.Context, symbol string) (decimal.Decimal, error) {
	prices, err := p.GetPricesBySymbols(ctx, []string{symbol})
	if err != nil {
		return decimal.Decimal{}, err
	}
	return prices[provider.NormalizeSymbol(symbol)], nil
}

// GetPricesBySymbols resolves every symbol before touching the network;
// one unknown symbol fails the whole call with provider.ErrUnknownSymbol.
// The remaining identifiers are fetched with a single request.
func (p *Provider) GetPricesBySymbols(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	idBySymbol := make(map[string]string, len(symbols))
	ids := make([]string, 0, len(symbols))
	seen := make(map[string]struct{}, len(symbols))

	p.mu.RLock()
	for _, s := range symbols {
		symbol := provider.NormalizeSymbol(s)
		id, ok := p.symbolToID[symbol]
		if !ok {
			p.mu.RUnlock()
			return nil, fmt.Errorf("%w: %q", provider.ErrUnknownSymbol, s)
		}
		idBySymbol[symbol] = id
		if _, dup := seen[id]; !dup {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	p.mu.RUnlock()

	if len(ids) == 0 {
		return map[string]decimal.Decimal{}, nil
	}

	byID, err := p.api.SimplePrice(ctx, ids)
	if err != nil {
		p.log.Warn("fetching prices failed", zap.Strings("ids", ids), zap.Error(err))
		return nil, err
	}

	out := make(map[string]decimal.Decimal, len(idBySymbol))
	for symbol, id := range idBySymbol {
		price, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: no price returned for %q", provider.ErrProviderUnavailable, id)
		}
		out[symbol] = price
	}
	p.log.Debug("prices fetched", zap.Int("symbols", len(out)))
	return out, nil
}

// Len reports the number of indexed symbols.
func (p *Provider) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.symbolToID)
}

// Symbols returns the indexed symbols in sorted order.
func (p *Provider) Symbols() []string {
	p.mu.RLock()
	out := make([]string, 0, len(p.symbolToID))
	for s := range p.symbolToID {
		out = append(out, s)
	}
	p.mu.RUnlock()
	sort.Strings(out)
	return out
}
