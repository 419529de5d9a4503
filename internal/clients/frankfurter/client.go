// Package frankfurter provides a rate provider backed by the Frankfurter API (ECB reference rates).
package frankfurter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// DefaultBaseURL is the public Frankfurter endpoint
const DefaultBaseURL = "https://api.frankfurter.app"

// Client for api.frankfurter.app
type Client struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

// NewClient creates a new Frankfurter client.
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
		log:     log.With().Str("client", "frankfurter").Logger(),
	}
}

// Name identifies the provider in logs and metrics
func (c *Client) Name() string {
	return "frankfurter"
}

type latestResponse struct {
	Rates  map[string]float64 `json:"rates"`
	Base   string             `json:"base"`
	Date   string             `json:"date"`
	Amount float64            `json:"amount"`
}

// FetchRates requests only the given targets for base in a single call
func (c *Client) FetchRates(ctx context.Context, base string, targets []string) (map[string]float64, error) {
	query := url.Values{}
	query.Set("from", base)
	query.Set("to", strings.Join(targets, ","))
	endpoint := fmt.Sprintf("%s/latest?%s", c.baseURL, query.Encode())

	c.log.Debug().Str("url", endpoint).Msg("Fetching rates")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
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

	// Rates are quoted per result.Amount units of base
	amount := result.Amount
	if amount <= 0 {
		amount = 1
	}

	rates := make(map[string]float64, len(targets))
	for _, target := range targets {
		if rate, ok := result.Rates[target]; ok && rate > 0 {
			rates[target] = rate / amount
		}
	}
	if len(rates) == 0 {
		return nil, fmt.Errorf("no rates found for %s->%s", base, strings.Join(targets, ","))
	}

	return rates, nil
}
