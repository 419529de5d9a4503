package currency

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aristath/subwatch/internal/domain"
	"github.com/aristath/subwatch/internal/metrics"
	"github.com/rs/zerolog"
)

// Provider fetches exchange rates from one external service
type Provider interface {
	Name() string
	// FetchRates returns rates from base to each of targets that the provider could supply
	FetchRates(ctx context.Context, base string, targets []string) (map[string]float64, error)
}

// attempt is the tagged outcome of asking one provider
type attempt struct {
	rates    map[string]float64
	err      error
	provider string
}

func (a attempt) ok() bool {
	return a.err == nil
}

// RateSource tries providers in fixed priority order, each at most once per fetch.
// A later provider is asked only for the targets earlier providers did not supply.
type RateSource struct {
	metrics   *metrics.Metrics
	providers []Provider
	timeout   time.Duration
	log       zerolog.Logger
}

// NewRateSource creates a source over providers in priority order.
// m is optional - if nil, no metrics are recorded.
func NewRateSource(providers []Provider, timeout time.Duration, m *metrics.Metrics, log zerolog.Logger) *RateSource {
	if timeout <= 0 {
		timeout = DefaultProviderTimeout
	}
	return &RateSource{
		metrics:   m,
		providers: providers,
		timeout:   timeout,
		log:       log.With().Str("service", "rate_source").Logger(),
	}
}

// Providers returns the provider names in priority order
func (s *RateSource) Providers() []string {
	names := make([]string, len(s.providers))
	for i, p := range s.providers {
		names[i] = p.Name()
	}
	return names
}

// Fetch returns rates from base to targets.
// When some targets could not be obtained from any provider, the rates that were found are
// returned together with an error wrapping domain.ErrAllProvidersFailed.
func (s *RateSource) Fetch(ctx context.Context, base string, targets []string) (map[string]float64, error) {
	found := make(map[string]float64, len(targets))
	missing := targets

	for _, provider := range s.providers {
		if len(missing) == 0 {
			break
		}

		result := s.try(ctx, provider, base, missing)
		if !result.ok() {
			s.log.Warn().
				Err(result.err).
				Str("base", base).
				Strs("targets", missing).
				Msg("Rate provider failed, trying next")
			continue
		}

		for target, rate := range result.rates {
			found[target] = rate
		}
		missing = remaining(missing, found)

		if len(missing) > 0 {
			s.metrics.ProviderFailure(result.provider)
			s.log.Warn().
				Str("provider", result.provider).
				Str("base", base).
				Strs("missing", missing).
				Msg("Rate provider response incomplete, trying next")
		}
	}

	if len(missing) > 0 {
		return found, fmt.Errorf("%w: %s->%s", domain.ErrAllProvidersFailed, base, strings.Join(missing, ","))
	}
	return found, nil
}

func (s *RateSource) try(ctx context.Context, provider Provider, base string, targets []string) attempt {
	name := provider.Name()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	s.metrics.ProviderRequest(name)
	rates, err := provider.FetchRates(ctx, base, targets)
	if err != nil {
		s.metrics.ProviderFailure(name)
		return attempt{provider: name, err: &domain.ProviderError{Provider: name, Err: err}}
	}

	usable := make(map[string]float64, len(targets))
	for _, target := range targets {
		if rate, ok := rates[target]; ok && rate > 0 {
			usable[target] = rate
		}
	}
	if len(usable) == 0 {
		s.metrics.ProviderFailure(name)
		return attempt{provider: name, err: &domain.ProviderError{Provider: name, Err: fmt.Errorf("no usable rates for %s", base)}}
	}

	s.log.Debug().
		Str("provider", name).
		Str("base", base).
		Int("rates", len(usable)).
		Msg("Got rates from provider")

	return attempt{provider: name, rates: usable}
}

func remaining(targets []string, found map[string]float64) []string {
	var out []string
	for _, target := range targets {
		if _, ok := found[target]; !ok {
			out = append(out, target)
		}
	}
	return out
}
