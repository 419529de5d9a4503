package currency

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/aristath/subwatch/internal/domain"
	"github.com/aristath/subwatch/internal/metrics"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

// Source describes where a quoted rate came from
type Source string

const (
	SourceIdentity Source = "identity" // same currency
	SourceCache    Source = "cache"    // fresh cache entry
	SourceProvider Source = "provider" // fetched just now
	SourceStale    Source = "stale"    // expired cache entry, providers failed
	SourceFallback Source = "fallback" // identity rate, providers failed and nothing cached
)

// RateQuote is a rate together with its provenance
type RateQuote struct {
	FetchedAt time.Time   `json:"fetched_at,omitempty"`
	Pair      domain.Pair `json:"pair"`
	Source    Source      `json:"source"`
	Rate      float64     `json:"rate"`
}

// Degraded reports whether the rate was served without a fresh value
func (q RateQuote) Degraded() bool {
	return q.Source == SourceStale || q.Source == SourceFallback
}

// RateFetcher fetches rates from external providers
type RateFetcher interface {
	Fetch(ctx context.Context, base string, targets []string) (map[string]float64, error)
}

// Converter converts amounts between currencies using a RateFetcher and a RateCache.
// Lookups never fail because of provider outages: an expired cached rate is served when no
// fresh one is obtainable, and an identity rate of 1.0 when nothing was ever cached.
type Converter struct {
	source  RateFetcher
	cache   *RateCache
	metrics *metrics.Metrics
	group   singleflight.Group
	log     zerolog.Logger
}

// NewConverter creates a converter that owns cache.
// m is optional - if nil, no metrics are recorded.
func NewConverter(source RateFetcher, cache *RateCache, m *metrics.Metrics, log zerolog.Logger) *Converter {
	return &Converter{
		source:  source,
		cache:   cache,
		metrics: m,
		log:     log.With().Str("service", "currency_converter").Logger(),
	}
}

// Cache returns the converter's rate cache
func (c *Converter) Cache() *RateCache {
	return c.cache
}

// GetRate returns the rate from one currency to another.
// The only error is *domain.InvalidInputError for an unrecognised currency code.
func (c *Converter) GetRate(ctx context.Context, from, to string) (float64, error) {
	quote, err := c.Quote(ctx, from, to)
	if err != nil {
		return 0, err
	}
	return quote.Rate, nil
}

// Convert converts amount from one currency to another
func (c *Converter) Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	rate, err := c.GetRate(ctx, from, to)
	if err != nil {
		return decimal.Zero, err
	}
	return ApplyRate(amount, rate), nil
}

// ApplyRate multiplies amount by rate. A rate of exactly 1 returns amount unchanged.
func ApplyRate(amount decimal.Decimal, rate float64) decimal.Decimal {
	if rate == 1 {
		return amount
	}
	return amount.Mul(decimal.NewFromFloat(rate))
}

// Quote returns the rate from one currency to another along with its source
func (c *Converter) Quote(ctx context.Context, from, to string) (RateQuote, error) {
	from, err := domain.ParseCurrency(from)
	if err != nil {
		return RateQuote{}, err
	}
	to, err = domain.ParseCurrency(to)
	if err != nil {
		return RateQuote{}, err
	}

	pair := domain.Pair{From: from, To: to}
	if from == to {
		return RateQuote{Pair: pair, Rate: 1, Source: SourceIdentity}, nil
	}

	if entry, ok := c.cache.GetIfFresh(pair); ok {
		c.metrics.CacheHit()
		c.log.Debug().
			Str("from", from).
			Str("to", to).
			Float64("rate", entry.Rate).
			Msg("Cache hit")
		return quoteFromEntry(entry, SourceCache), nil
	}
	c.metrics.CacheMiss()

	// Concurrent refreshes of the same pair share one provider request. The shared
	// fetch is detached from the caller so it can finish and warm the cache.
	shared := context.WithoutCancel(ctx)
	v, _, _ := c.group.Do(pair.String(), func() (interface{}, error) {
		if entry, ok := c.cache.GetIfFresh(pair); ok {
			return quoteFromEntry(entry, SourceCache), nil
		}

		rates, fetchErr := c.source.Fetch(shared, from, []string{to})
		if rate, ok := rates[to]; ok {
			entry := c.cache.Store(pair, rate)
			c.metrics.CacheSize(c.cache.Len())
			c.log.Info().
				Str("from", from).
				Str("to", to).
				Float64("rate", rate).
				Msg("Fetched rate")
			return quoteFromEntry(entry, SourceProvider), nil
		}
		return c.degrade(pair, fetchErr), nil
	})

	return v.(RateQuote), nil
}

// BatchRates returns rates from base to every target.
// Targets not fresh in the cache are fetched with a single provider request per base,
// and every rate retrieved is stored in the cache.
func (c *Converter) BatchRates(ctx context.Context, base string, targets []string) (map[string]float64, error) {
	quotes, err := c.BatchQuotes(ctx, base, targets)
	if err != nil {
		return nil, err
	}
	rates := make(map[string]float64, len(quotes))
	for target, quote := range quotes {
		rates[target] = quote.Rate
	}
	return rates, nil
}

type batchResult struct {
	rates map[string]float64
	err   error
}

// BatchQuotes is BatchRates with the source of each rate
func (c *Converter) BatchQuotes(ctx context.Context, base string, targets []string) (map[string]RateQuote, error) {
	base, err := domain.ParseCurrency(base)
	if err != nil {
		return nil, err
	}

	quotes := make(map[string]RateQuote, len(targets))
	var missing []string
	for _, t := range targets {
		target, err := domain.ParseCurrency(t)
		if err != nil {
			return nil, err
		}
		if _, done := quotes[target]; done {
			continue
		}

		pair := domain.Pair{From: base, To: target}
		if target == base {
			quotes[target] = RateQuote{Pair: pair, Rate: 1, Source: SourceIdentity}
			continue
		}
		if entry, ok := c.cache.GetIfFresh(pair); ok {
			c.metrics.CacheHit()
			quotes[target] = quoteFromEntry(entry, SourceCache)
			continue
		}
		c.metrics.CacheMiss()
		// placeholder keeps duplicates out of missing
		quotes[target] = RateQuote{Pair: pair}
		missing = append(missing, target)
	}

	if len(missing) == 0 {
		return quotes, nil
	}

	sort.Strings(missing)
	key := "batch:" + base + ":" + strings.Join(missing, ",")
	shared := context.WithoutCancel(ctx)

	v, _, _ := c.group.Do(key, func() (interface{}, error) {
		rates, fetchErr := c.source.Fetch(shared, base, missing)
		for target, rate := range rates {
			c.cache.Store(domain.Pair{From: base, To: target}, rate)
		}
		c.metrics.CacheSize(c.cache.Len())
		return batchResult{rates: rates, err: fetchErr}, nil
	})
	fetched := v.(batchResult)

	retrieved := 0
	for _, target := range missing {
		pair := domain.Pair{From: base, To: target}
		if _, ok := fetched.rates[target]; ok {
			entry, _ := c.cache.Get(pair)
			quotes[target] = quoteFromEntry(entry, SourceProvider)
			retrieved++
			continue
		}
		quotes[target] = c.degrade(pair, fetched.err)
	}

	c.log.Info().
		Str("base", base).
		Int("requested", len(missing)).
		Int("retrieved", retrieved).
		Msg("Fetched batch rates")

	return quotes, nil
}

// degrade serves the last cached rate regardless of age, or the identity rate
func (c *Converter) degrade(pair domain.Pair, cause error) RateQuote {
	if cause == nil {
		cause = domain.ErrAllProvidersFailed
	}

	if entry, ok := c.cache.Get(pair); ok {
		c.metrics.StaleServed()
		c.log.Warn().
			Err(cause).
			Str("from", pair.From).
			Str("to", pair.To).
			Float64("rate", entry.Rate).
			Dur("age", c.cache.Now().Sub(entry.FetchedAt)).
			Msg("Providers failed, using stale cached rate")
		return quoteFromEntry(entry, SourceStale)
	}

	c.metrics.IdentityFallback()
	c.log.Warn().
		Err(cause).
		Bool("total_provider_failure", errors.Is(cause, domain.ErrAllProvidersFailed)).
		Str("from", pair.From).
		Str("to", pair.To).
		Msg("No rate available, falling back to identity rate")
	return RateQuote{Pair: pair, Rate: 1, Source: SourceFallback}
}

func quoteFromEntry(entry domain.CachedRate, source Source) RateQuote {
	return RateQuote{
		Pair:      entry.Pair,
		Rate:      entry.Rate,
		Source:    source,
		FetchedAt: entry.FetchedAt,
	}
}
