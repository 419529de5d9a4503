package currency

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aristath/subwatch/internal/domain"
	"github.com/aristath/subwatch/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type converterFixture struct {
	converter *Converter
	cache     *RateCache
	clock     *testClock
	primary   *fakeProvider
	fallback  *fakeProvider
	metrics   *metrics.Metrics
}

func newConverterFixture(primaryRates, fallbackRates map[string]map[string]float64) *converterFixture {
	clock := newTestClock()
	cache := newTestCache(clock)
	m := metrics.NewMetrics(prometheus.NewRegistry())
	primary := newFakeProvider("primary", primaryRates)
	fallback := newFakeProvider("fallback", fallbackRates)
	source := NewRateSource([]Provider{primary, fallback}, time.Second, m, zerolog.Nop())

	return &converterFixture{
		converter: NewConverter(source, cache, m, zerolog.Nop()),
		cache:     cache,
		clock:     clock,
		primary:   primary,
		fallback:  fallback,
		metrics:   m,
	}
}

func TestConverter_SameCurrencyNoNetwork(t *testing.T) {
	f := newConverterFixture(nil, nil)
	amount := decimal.RequireFromString("19.99")

	for _, code := range []string{"USD", "EUR", "JPY", "gbp"} {
		converted, err := f.converter.Convert(context.Background(), amount, code, code)
		require.NoError(t, err)
		assert.True(t, amount.Equal(converted), code)
	}

	quote, err := f.converter.Quote(context.Background(), "EUR", "eur")
	require.NoError(t, err)
	assert.Equal(t, SourceIdentity, quote.Source)
	assert.Equal(t, 1.0, quote.Rate)
	assert.Equal(t, 0, f.primary.Calls())
	assert.Equal(t, 0, f.cache.Len())
}

func TestConverter_CacheHitWithinTTL(t *testing.T) {
	f := newConverterFixture(map[string]map[string]float64{"EUR": {"USD": 1.1}}, nil)
	ctx := context.Background()

	first, err := f.converter.GetRate(ctx, "EUR", "USD")
	require.NoError(t, err)
	f.clock.Advance(30 * time.Minute)
	second, err := f.converter.GetRate(ctx, "EUR", "USD")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, f.primary.Calls())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.RateCacheHitsTotal))
}

func TestConverter_RefreshAfterTTL(t *testing.T) {
	f := newConverterFixture(map[string]map[string]float64{"EUR": {"USD": 1.1}}, nil)
	ctx := context.Background()

	_, err := f.converter.GetRate(ctx, "EUR", "USD")
	require.NoError(t, err)

	f.clock.Advance(TTLExchangeRate)
	quote, err := f.converter.Quote(ctx, "EUR", "USD")
	require.NoError(t, err)
	assert.Equal(t, SourceProvider, quote.Source)
	assert.Equal(t, 2, f.primary.Calls())

	entry, ok := f.cache.Get(eurUSD)
	require.True(t, ok)
	assert.Equal(t, f.clock.Now(), entry.FetchedAt)
}

func TestConverter_FallbackProviderStoredLikePrimary(t *testing.T) {
	f := newConverterFixture(nil, map[string]map[string]float64{"EUR": {"USD": 1.1}})
	f.primary.SetErr(errors.New("primary down"))

	converted, err := f.converter.Convert(context.Background(), decimal.NewFromInt(100), "EUR", "USD")
	require.NoError(t, err)
	assert.Equal(t, "110", converted.String())
	assert.Equal(t, "110.00", converted.StringFixed(2))

	fromFallback, ok := f.cache.Get(eurUSD)
	require.True(t, ok)

	p := newConverterFixture(map[string]map[string]float64{"EUR": {"USD": 1.1}}, nil)
	_, err = p.converter.GetRate(context.Background(), "EUR", "USD")
	require.NoError(t, err)
	fromPrimary, _ := p.cache.Get(eurUSD)

	assert.Equal(t, fromPrimary, fromFallback)
}

func TestConverter_StaleServeWhenAllProvidersFail(t *testing.T) {
	f := newConverterFixture(map[string]map[string]float64{"EUR": {"USD": 1.1}}, nil)
	ctx := context.Background()

	_, err := f.converter.GetRate(ctx, "EUR", "USD")
	require.NoError(t, err)

	f.primary.SetErr(errors.New("down"))
	f.fallback.SetErr(errors.New("down"))
	f.clock.Advance(5 * time.Hour)

	quote, err := f.converter.Quote(ctx, "EUR", "USD")
	require.NoError(t, err)
	assert.Equal(t, 1.1, quote.Rate)
	assert.Equal(t, SourceStale, quote.Source)
	assert.True(t, quote.Degraded())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.StaleRatesServedTotal))
}

func TestConverter_IdentityFallbackWhenNothingCached(t *testing.T) {
	f := newConverterFixture(nil, nil)
	f.primary.SetErr(errors.New("down"))
	f.fallback.SetErr(errors.New("down"))

	converted, err := f.converter.Convert(context.Background(), decimal.NewFromInt(100), "EUR", "USD")
	require.NoError(t, err)
	assert.Equal(t, "100", converted.String())

	quote, err := f.converter.Quote(context.Background(), "EUR", "USD")
	require.NoError(t, err)
	assert.Equal(t, SourceFallback, quote.Source)
	assert.Equal(t, 0, f.cache.Len(), "identity fallback is never cached")
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.IdentityFallbacksTotal))
}

func TestConverter_InvalidCurrency(t *testing.T) {
	f := newConverterFixture(nil, nil)

	_, err := f.converter.GetRate(context.Background(), "EUR", "NOPE")
	assert.True(t, domain.IsInvalidInput(err))

	_, err = f.converter.Convert(context.Background(), decimal.NewFromInt(1), "", "USD")
	assert.True(t, domain.IsInvalidInput(err))
	assert.Equal(t, 0, f.primary.Calls())
}

func TestConverter_ConcurrentRefreshDeduplicated(t *testing.T) {
	f := newConverterFixture(map[string]map[string]float64{"EUR": {"USD": 1.1}}, nil)
	f.primary.release = make(chan struct{})

	var wg sync.WaitGroup
	results := make([]float64, 10)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rate, err := f.converter.GetRate(context.Background(), "EUR", "USD")
			assert.NoError(t, err)
			results[i] = rate
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(f.primary.release)
	wg.Wait()

	assert.Equal(t, 1, f.primary.Calls())
	for _, rate := range results {
		assert.Equal(t, 1.1, rate)
	}
}

func TestConverter_CanceledCallerStillWarmsCache(t *testing.T) {
	f := newConverterFixture(map[string]map[string]float64{"EUR": {"USD": 1.1}}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rate, err := f.converter.GetRate(ctx, "EUR", "USD")
	require.NoError(t, err)
	assert.Equal(t, 1.1, rate)
	assert.Equal(t, 1, f.cache.Len())
}

func TestConverter_BatchRatesOneRequestPerBase(t *testing.T) {
	f := newConverterFixture(map[string]map[string]float64{
		"USD": {"EUR": 0.9, "GBP": 0.78, "JPY": 150},
	}, nil)
	ctx := context.Background()

	rates, err := f.converter.BatchRates(ctx, "USD", []string{"EUR", "GBP", "JPY", "USD", "eur"})
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"EUR": 0.9, "GBP": 0.78, "JPY": 150, "USD": 1}, rates)
	assert.Equal(t, 1, f.primary.Calls())
	assert.Equal(t, [][]string{{"EUR", "GBP", "JPY"}}, f.primary.Requested())

	// Every retrieved pair is now cached
	assert.Equal(t, 3, f.cache.Len())
	rate, err := f.converter.GetRate(ctx, "USD", "GBP")
	require.NoError(t, err)
	assert.Equal(t, 0.78, rate)
	assert.Equal(t, 1, f.primary.Calls())
}

func TestConverter_BatchSkipsFreshTargets(t *testing.T) {
	f := newConverterFixture(map[string]map[string]float64{"USD": {"EUR": 0.9, "GBP": 0.78}}, nil)
	ctx := context.Background()

	_, err := f.converter.GetRate(ctx, "USD", "EUR")
	require.NoError(t, err)

	_, err = f.converter.BatchRates(ctx, "USD", []string{"EUR", "GBP"})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"EUR"}, {"GBP"}}, f.primary.Requested())
}

func TestConverter_BatchDegradesMissingTargets(t *testing.T) {
	f := newConverterFixture(map[string]map[string]float64{"USD": {"EUR": 0.9}}, nil)

	quotes, err := f.converter.BatchQuotes(context.Background(), "USD", []string{"EUR", "CHF"})
	require.NoError(t, err)
	assert.Equal(t, SourceProvider, quotes["EUR"].Source)
	assert.Equal(t, SourceFallback, quotes["CHF"].Source)
	assert.Equal(t, 1.0, quotes["CHF"].Rate)
}

func TestConverter_BatchInvalidCurrency(t *testing.T) {
	f := newConverterFixture(nil, nil)
	_, err := f.converter.BatchRates(context.Background(), "USD", []string{"EUR", "???"})
	assert.True(t, domain.IsInvalidInput(err))
}
