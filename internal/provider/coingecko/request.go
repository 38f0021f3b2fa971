package coingecko

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/tomastoth/crypto-common/internal/provider"
)

// get performs a GET against the API and returns the response when the status is 200.
// Every failure is wrapped with provider.ErrProviderUnavailable.
func (c *CoinGeckoAPIClient) get(ctx context.Context, endpoint, path string, query url.Values) (*http.Response, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("%w: creating request: %w", provider.ErrProviderUnavailable, err)
	}
	req.Header = c.header.Clone()
	req.Header.Set("Accept", "application/json")

	started := c.now()
	res, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.ObserveRemote(endpoint, 0, c.now().Sub(started))
		return nil, fmt.Errorf("%w: performing request: %w", provider.ErrProviderUnavailable, err)
	}
	c.metrics.ObserveRemote(endpoint, res.StatusCode, c.now().Sub(started))

	switch res.StatusCode {
	case http.StatusOK:
		return res, nil

	case http.StatusTooManyRequests:
		// 429 is not retried.
		res.Body.Close()
		return nil, fmt.Errorf("%w: %s: rate limited", provider.ErrProviderUnavailable, endpoint)

	default:
		b, _ := io.ReadAll(io.LimitReader(res.Body, 2<<10))
		res.Body.Close()
		return nil, fmt.Errorf("%w: %s: unexpected status code %d: %s", provider.ErrProviderUnavailable, endpoint, res.StatusCode, string(b))
	}
}
