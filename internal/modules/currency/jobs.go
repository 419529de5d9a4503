package currency

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// RateWarmupJob refreshes the cache for every configured base currency.
// It should be scheduled well inside the cache TTL.
type RateWarmupJob struct {
	converter  *Converter
	log        zerolog.Logger
	bases      []string
	currencies []string
}

// NewRateWarmupJob creates a job fetching currencies for each base
func NewRateWarmupJob(converter *Converter, bases, currencies []string, log zerolog.Logger) *RateWarmupJob {
	return &RateWarmupJob{
		converter:  converter,
		bases:      bases,
		currencies: currencies,
		log:        log.With().Str("job", "rate_warmup").Logger(),
	}
}

// Run fetches rates for every base.
// Returns error only if no rate could be obtained fresh; partial success is logged.
func (j *RateWarmupJob) Run() error {
	ctx := context.Background()
	fresh, degraded := 0, 0

	for _, base := range j.bases {
		quotes, err := j.converter.BatchQuotes(ctx, base, j.currencies)
		if err != nil {
			j.log.Error().Err(err).Str("base", base).Msg("Invalid warmup currency")
			continue
		}
		for _, quote := range quotes {
			switch {
			case quote.Source == SourceIdentity:
			case quote.Degraded():
				degraded++
			default:
				fresh++
			}
		}
	}

	j.log.Info().
		Int("fresh", fresh).
		Int("degraded", degraded).
		Msg("Exchange rate warmup completed")

	if fresh == 0 && degraded > 0 {
		return fmt.Errorf("all rate fetches failed")
	}
	return nil
}

// Name returns the job name for scheduling and logging.
func (j *RateWarmupJob) Name() string {
	return "rate_warmup"
}

// CachePruneJob removes cached rates older than the stale retention window.
// It should be scheduled to run daily.
type CachePruneJob struct {
	cache  *RateCache
	log    zerolog.Logger
	maxAge time.Duration
}

// NewCachePruneJob creates a prune job. A non-positive maxAge uses DefaultStaleRetention.
func NewCachePruneJob(cache *RateCache, maxAge time.Duration, log zerolog.Logger) *CachePruneJob {
	if maxAge <= 0 {
		maxAge = DefaultStaleRetention
	}
	return &CachePruneJob{
		cache:  cache,
		maxAge: maxAge,
		log:    log.With().Str("job", "rate_cache_prune").Logger(),
	}
}

// Run executes the prune
func (j *CachePruneJob) Run() error {
	removed := j.cache.Prune(j.maxAge)
	if removed > 0 {
		j.log.Info().
			Int("removed", removed).
			Int("remaining", j.cache.Len()).
			Msg("Pruned expired exchange rates")
	}
	return nil
}

// Name returns the job name for scheduling and logging.
func (j *CachePruneJob) Name() string {
	return "rate_cache_prune"
}
