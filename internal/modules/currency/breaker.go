package currency

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// BreakerProvider wraps a Provider in a circuit breaker.
// While the breaker is open, requests fail immediately without a network call.
type BreakerProvider struct {
	next Provider
	cb   *gobreaker.CircuitBreaker
}

// WithCircuitBreaker trips after 5 consecutive failures and half-opens after 60s
func WithCircuitBreaker(next Provider, log zerolog.Logger) *BreakerProvider {
	log = log.With().Str("provider", next.Name()).Logger()
	settings := gobreaker.Settings{
		Name:        next.Name(),
		MaxRequests: 1,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn().
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Rate provider circuit breaker state changed")
		},
	}
	return &BreakerProvider{
		next: next,
		cb:   gobreaker.NewCircuitBreaker(settings),
	}
}

// Name returns the wrapped provider's name
func (b *BreakerProvider) Name() string {
	return b.next.Name()
}

// State returns the breaker state
func (b *BreakerProvider) State() gobreaker.State {
	return b.cb.State()
}

// FetchRates calls the wrapped provider through the breaker
func (b *BreakerProvider) FetchRates(ctx context.Context, base string, targets []string) (map[string]float64, error) {
	result, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.FetchRates(ctx, base, targets)
	})
	if err != nil {
		return nil, err
	}
	rates, ok := result.(map[string]float64)
	if !ok {
		return nil, fmt.Errorf("unexpected result type %T", result)
	}
	return rates, nil
}
