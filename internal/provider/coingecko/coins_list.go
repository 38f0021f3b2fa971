package coingecko

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tomastoth/crypto-common/internal/provider"
)

// Coin is one entry of the CoinGecko asset listing.
type Coin struct {
	ID     string `json:"id"`
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
}

// ListCoins retrieves the full asset listing from /coins/list.
func (c *CoinGeckoAPIClient) ListCoins(ctx context.Context) ([]Coin, error) {
	res, err := c.get(ctx, "coins_list", "/coins/list", nil)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	// [
	//   {"id": "bitcoin", "symbol": "btc", "name": "Bitcoin"},
	//   ...
	// ]
	var coins []Coin
	if err := json.NewDecoder(res.Body).Decode(&coins); err != nil {
		return nil, fmt.Errorf("%w: decoding coins list: %w", provider.ErrProviderUnavailable, err)
	}
	return coins, nil
}
