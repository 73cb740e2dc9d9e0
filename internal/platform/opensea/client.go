// Package opensea is the REST client for the OpenSea v2 API: collection
// identity lookups by contract address and best-offer queries per NFT.
package opensea

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/alanyoungcy/niftyarb/internal/domain"
)

// Client is the OpenSea v2 REST client. It is a thin transport: rate limiting
// and retries are applied by the resolvers that own it.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new OpenSea client.
//
// baseURL is the API root, e.g. "https://api.opensea.io".
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// GetCollection looks up the collection identity for an Ethereum contract.
func (c *Client) GetCollection(ctx context.Context, contract string) (domain.CollectionIdentity, error) {
	path := fmt.Sprintf("/api/v2/chain/ethereum/contract/%s", url.PathEscape(contract))

	body, err := c.doGet(ctx, path)
	if err != nil {
		return domain.CollectionIdentity{}, fmt.Errorf("opensea: get collection %s: %w", contract, err)
	}

	var resp apiContract
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.CollectionIdentity{}, fmt.Errorf("opensea: decode collection: %w", err)
	}

	return domain.CollectionIdentity{
		Contract: contract,
		Name:     resp.Name,
		Slug:     resp.Collection,
		Status:   domain.IdentityResolved,
	}, nil
}

// GetBestOffer fetches the best standing offer for a token. It returns
// (nil, nil) when the item has no offers, which the API signals either by a
// 404 or by a 200 response without protocol data.
func (c *Client) GetBestOffer(ctx context.Context, slug, tokenID string) (*BestOffer, error) {
	path := fmt.Sprintf("/api/v2/offers/collection/%s/nfts/%s/best",
		url.PathEscape(slug), url.PathEscape(tokenID))

	body, err := c.doGet(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("opensea: get best offer %s/%s: %w", slug, tokenID, err)
	}

	var resp apiBestOffer
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("opensea: decode best offer: %w", err)
	}

	offer, err := resp.toBestOffer()
	if err != nil {
		return nil, fmt.Errorf("opensea: offer %s/%s: %w", slug, tokenID, err)
	}
	return offer, nil
}

// doGet sends an authenticated GET request to the OpenSea API.
func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: http request: %v", domain.ErrTransient, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", domain.ErrTransient, err)
	}

	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}

	return body, nil
}

// checkHTTPStatus maps non-2xx status codes to domain errors so the retry
// policy can classify them.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch {
	case statusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case statusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	case statusCode >= 500:
		return fmt.Errorf("%w: HTTP %d: %s", domain.ErrTransient, statusCode, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
