package currency

import "time"

const (
	// TTLExchangeRate is how long a cached rate is served without a refresh
	TTLExchangeRate = time.Hour

	// DefaultStaleRetention bounds how long an expired rate is kept for stale-serve
	DefaultStaleRetention = 48 * time.Hour

	// DefaultProviderTimeout bounds a single provider request
	DefaultProviderTimeout = 10 * time.Second
)
