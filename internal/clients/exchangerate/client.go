// Package exchangerate provides a rate provider backed by exchangerate-api.com.
package exchangerate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// DefaultBaseURL is the public v4 endpoint (no API key required)
const DefaultBaseURL = "https://api.exchangerate-api.com/v4/latest"

// Client for exchangerate-api.com
type Client struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

// NewClient creates a new exchangerate-api.com client.
// httpClient is optional - if nil, a client with a 10s timeout is used.
func NewClient(baseURL string, httpClient *http.Client, log zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  httpClient,
		log:     log.With().Str("client", "exchangerate-api").Logger(),
	}
}

// Name identifies the provider in logs and metrics
func (c *Client) Name() string {
	return "exchangerate-api"
}

type latestResponse struct {
	Rates map[string]float64 `json:"rates"`
	Base  string             `json:"base"`
}

// FetchRates fetches all rates for base in a single request and returns the requested targets.
// Targets missing from the response are omitted; an error is returned only when none are found.
func (c *Client) FetchRates(ctx context.Context, base string, targets []string) (map[string]float64, error) {
	url := fmt.Sprintf("%s/%s", c.baseURL, base)
	c.log.Debug().Str("url", url).Msg("Fetching rates")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	var result latestResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	rates := make(map[string]float64, len(targets))
	for _, target := range targets {
		if rate, ok := result.Rates[target]; ok && rate > 0 {
			rates[target] = rate
		}
	}
	if len(rates) == 0 {
		return nil, fmt.Errorf("no rates found for %s->%s", base, strings.Join(targets, ","))
	}

	c.log.Debug().
		Str("base", base).
		Int("requested", len(targets)).
		Int("found", len(rates)).
		Msg("Fetched rates")

	return rates, nil
}
