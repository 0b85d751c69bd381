package mbta

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/mbtalive/mbtalive/pkg/apicache"
)

const DefaultBaseURL = "https://api-v3.mbta.com"

// Per-endpoint cache TTLs, tuned to how quickly the data changes. The
// prediction and vehicle TTLs sit below the 20s refresh cycle so each tick
// normally causes exactly one upstream fetch per distinct query.
const (
	TTLStops       = 24 * time.Hour
	TTLRoutes      = 24 * time.Hour
	TTLTrips       = 6 * time.Hour
	TTLSchedules   = 5 * time.Minute
	TTLAlerts      = time.Minute
	TTLPredictions = 15 * time.Second
	TTLVehicles    = 15 * time.Second
)

// Client talks to the MBTA V3 API. Every request is routed through the
// shared cache service - the client itself holds no state between calls.
type Client struct {
	APIKey  string
	BaseURL string

	httpClient *http.Client
	cache      *apicache.Service
}

func NewClient(apiKey string, cacheService *apicache.Service) *Client {
	return &Client{
		APIKey:  apiKey,
		BaseURL: DefaultBaseURL,

		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		cache: cacheService,
	}
}

// Cache exposes the shared cache service, for reconfiguration flows that
// need to drop everything cached under an old API key
func (c *Client) Cache() *apicache.Service {
	return c.cache
}

// get fetches path through the cache layer and decodes the JSON:API
// document. The returned bool marks a payload served stale from cache.
func (c *Client) get(ctx context.Context, path string, params url.Values, ttl time.Duration) ([]resource, bool, error) {
	result, err := c.cache.Fetch(ctx, c.BaseURL+path, params, ttl, func(ctx context.Context) ([]byte, error) {
		return c.request(ctx, path, params)
	})
	if err != nil {
		return nil, false, err
	}

	var doc document
	if err := json.Unmarshal(result.Payload, &doc); err != nil {
		return nil, false, fmt.Errorf("mbta: decoding %s response: %w", path, err)
	}

	return doc.Data, result.Stale, nil
}

func (c *Client) request(ctx context.Context, path string, params url.Values) ([]byte, error) {
	requestURL := c.BaseURL + path
	if len(params) > 0 {
		requestURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, "GET", requestURL, nil)
	if err != nil {
		return nil, &APIError{Err: err}
	}
	req.Header.Set("accept", "application/vnd.api+json")
	if c.APIKey != "" {
		req.Header.Set("x-api-key", c.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &APIError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &APIError{Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized:
		return nil, ErrAuthentication
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &APIError{Status: resp.StatusCode, Err: ErrRateLimited}
	case resp.StatusCode != http.StatusOK:
		return nil, &APIError{Status: resp.StatusCode, Detail: errorDetail(body)}
	}

	return body, nil
}

// document is the JSON:API envelope. All the endpoints this client consumes
// are collection queries, so data is always an array.
type document struct {
	Data []resource `json:"data"`
}

type resource struct {
	ID            string                  `json:"id"`
	Type          string                  `json:"type"`
	Attributes    json.RawMessage         `json:"attributes"`
	Relationships map[string]relationship `json:"relationships"`
}

type relationship struct {
	Data *relationshipData `json:"data"`
}

type relationshipData struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

func (r resource) relatedID(name string) string {
	rel, ok := r.Relationships[name]
	if !ok || rel.Data == nil {
		return ""
	}
	return rel.Data.ID
}

func errorDetail(body []byte) string {
	var errDoc struct {
		Errors []struct {
			Detail string `json:"detail"`
			Code   string `json:"code"`
		} `json:"errors"`
	}

	if err := json.Unmarshal(body, &errDoc); err != nil || len(errDoc.Errors) == 0 {
		return ""
	}
	if errDoc.Errors[0].Detail != "" {
		return errDoc.Errors[0].Detail
	}
	return errDoc.Errors[0].Code
}
