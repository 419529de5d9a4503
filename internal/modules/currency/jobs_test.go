package currency

import (
	"errors"
	"testing"
	"time"

	"github.com/aristath/subwatch/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateWarmupJob_Run(t *testing.T) {
	f := newConverterFixture(map[string]map[string]float64{
		"USD": {"EUR": 0.9, "GBP": 0.78},
		"EUR": {"USD": 1.1, "GBP": 0.86},
	}, nil)

	job := NewRateWarmupJob(f.converter, []string{"USD", "EUR"}, []string{"USD", "EUR", "GBP"}, zerolog.Nop())
	require.NoError(t, job.Run())

	assert.Equal(t, "rate_warmup", job.Name())
	assert.Equal(t, 4, f.cache.Len())
	assert.Equal(t, 2, f.primary.Calls())
}

func TestRateWarmupJob_AllFail(t *testing.T) {
	f := newConverterFixture(nil, nil)
	f.primary.SetErr(errors.New("down"))
	f.fallback.SetErr(errors.New("down"))

	job := NewRateWarmupJob(f.converter, []string{"USD"}, []string{"EUR"}, zerolog.Nop())
	assert.Error(t, job.Run())
}

func TestCachePruneJob_Run(t *testing.T) {
	clock := newTestClock()
	cache := newTestCache(clock)
	cache.Store(domain.Pair{From: "USD", To: "EUR"}, 0.9)
	clock.Advance(49 * time.Hour)
	cache.Store(domain.Pair{From: "USD", To: "GBP"}, 0.78)

	job := NewCachePruneJob(cache, 0, zerolog.Nop())
	require.NoError(t, job.Run())

	assert.Equal(t, "rate_cache_prune", job.Name())
	assert.Equal(t, 1, cache.Len())
}
