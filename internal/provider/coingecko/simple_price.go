package coingecko

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/tomastoth/crypto-common/internal/provider"
)

const vsCurrency = "usd"

type simplePrice struct {
	// usd may arrive as a JSON number or a JSON string.
	USD *decimal.Decimal `json:"usd"`
}

// SimplePrice retrieves the USD price of each identifier in a single
// /simple/price request. The result is keyed by identifier and holds an
// entry for every requested id; a missing or negative price fails the
// whole call.
func (c *CoinGeckoAPIClient) SimplePrice(ctx context.Context, ids []string) (map[string]decimal.Decimal, error) {
	if len(ids) == 0 {
		return map[string]decimal.Decimal{}, nil
	}

	query := url.Values{}
	query.Set("ids", strings.Join(ids, ","))
	query.Set("vs_currencies", vsCurrency)

	res, err := c.get(ctx, "simple_price", "/simple/price", query)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	// {
	//   "bitcoin": {"usd": 50000.12},
	//   "ethereum": {"usd": "3000.5"}
	// }
	var body map[string]simplePrice
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decoding simple price response: %w", provider.ErrProviderUnavailable, err)
	}

	prices := make(map[string]decimal.Decimal, len(ids))
	for _, id := range ids {
		p, ok := body[id]
		if !ok {
			return nil, fmt.Errorf("%w: simple price response has no entry for %q", provider.ErrProviderUnavailable, id)
		}
		if p.USD == nil {
			return nil, fmt.Errorf("%w: simple price response has no %s price for %q", provider.ErrProviderUnavailable, vsCurrency, id)
		}
		if p.USD.IsNegative() {
			return nil, fmt.Errorf("%w: negative price %s for %q", provider.ErrProviderUnavailable, p.USD.String(), id)
		}
		prices[id] = *p.USD
	}
	return prices, nil
}
