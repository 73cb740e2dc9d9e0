// Package coingecko fetches the ETH/USD spot rate from the CoinGecko simple
// price API. It is the rate source behind the conversion oracle.
package coingecko

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/alanyoungcy/niftyarb/internal/domain"
)

// Client is a minimal CoinGecko REST client.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new CoinGecko client.
//
// baseURL is the API root, e.g. "https://api.coingecko.com".
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// FetchRate returns the current ETH price in USD.
func (c *Client) FetchRate(ctx context.Context) (float64, error) {
	url := c.baseURL + "/api/v3/simple/price?ids=ethereum&vs_currencies=usd"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("coingecko: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("coingecko: %w: http request: %v", domain.ErrTransient, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("coingecko: %w: read response: %v", domain.ErrTransient, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return 0, fmt.Errorf("coingecko: %w: %s", domain.ErrRateLimited, body)
	case resp.StatusCode >= 500:
		return 0, fmt.Errorf("coingecko: %w: HTTP %d", domain.ErrTransient, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return 0, fmt.Errorf("coingecko: HTTP %d: %s", resp.StatusCode, body)
	}

	var prices map[string]map[string]float64
	if err := json.Unmarshal(body, &prices); err != nil {
		return 0, fmt.Errorf("coingecko: decode price: %w", err)
	}

	rate, ok := prices["ethereum"]["usd"]
	if !ok || rate <= 0 {
		return 0, fmt.Errorf("coingecko: %w: no ethereum/usd rate in response", domain.ErrMalformedData)
	}
	return rate, nil
}
