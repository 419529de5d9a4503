package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aristath/subwatch/internal/domain"
	"github.com/aristath/subwatch/internal/modules/currency"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockConverter struct {
	rates  map[string]float64 // keyed by FROM:TO
	errs   map[string]error
	source currency.Source
	calls  map[string]int
}

func newMockConverter(rates map[string]float64) *mockConverter {
	return &mockConverter{rates: rates, errs: map[string]error{}, source: currency.SourceCache, calls: map[string]int{}}
}

func (m *mockConverter) Quote(ctx context.Context, from, to string) (currency.RateQuote, error) {
	key := from + ":" + to
	m.calls[key]++
	if err := m.errs[key]; err != nil {
		return currency.RateQuote{}, err
	}
	rate, ok := m.rates[key]
	if !ok {
		return currency.RateQuote{Rate: 1, Source: currency.SourceFallback}, nil
	}
	return currency.RateQuote{Rate: rate, Source: m.source}, nil
}

func (m *mockConverter) totalCalls() int {
	total := 0
	for _, n := range m.calls {
		total += n
	}
	return total
}

func sub(id, amount, code string, period domain.BillingPeriod, category domain.Category) domain.Subscription {
	return domain.Subscription{
		ID:            id,
		Name:          id,
		Amount:        decimal.RequireFromString(amount),
		Currency:      code,
		BillingPeriod: period,
		Category:      category,
		RenewalDate:   time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC),
		IsActive:      true,
	}
}

func TestEngine_MonthlyAndYearlyTotals(t *testing.T) {
	engine := NewEngine(newMockConverter(nil), nil, zerolog.Nop())
	subs := []domain.Subscription{
		sub("a", "25", "USD", domain.PeriodMonthly, domain.CategoryEntertainment),
		sub("b", "240", "USD", domain.PeriodYearly, domain.CategoryProductivity),
	}

	monthly, err := engine.MonthlyTotal(context.Background(), subs, "USD")
	require.NoError(t, err)
	assert.Equal(t, "45.00", monthly.Amount.StringFixed(2))
	assert.Equal(t, "USD", monthly.Currency)
	assert.Equal(t, 2, monthly.Count)
	assert.False(t, monthly.Degraded)

	yearly, err := engine.YearlyTotal(context.Background(), subs, "usd")
	require.NoError(t, err)
	assert.Equal(t, "540.00", yearly.Amount.StringFixed(2))
}

func TestEngine_SkipsInactiveAndExcludesInvalid(t *testing.T) {
	engine := NewEngine(newMockConverter(nil), nil, zerolog.Nop())
	inactive := sub("inactive", "100", "USD", domain.PeriodMonthly, "")
	inactive.IsActive = false
	subs := []domain.Subscription{
		sub("ok", "10", "USD", domain.PeriodMonthly, ""),
		inactive,
		sub("zero", "0", "USD", domain.PeriodMonthly, ""),
		sub("badcode", "10", "XYZ1", domain.PeriodMonthly, ""),
	}

	total, err := engine.MonthlyTotal(context.Background(), subs, "USD")
	require.NoError(t, err)
	assert.True(t, total.Amount.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, 1, total.Count)
	assert.Equal(t, 2, total.Excluded)
}

func TestEngine_ConvertsOncePerCurrency(t *testing.T) {
	conv := newMockConverter(map[string]float64{"EUR:USD": 1.1, "GBP:USD": 1.25})
	engine := NewEngine(conv, nil, zerolog.Nop())
	subs := []domain.Subscription{
		sub("a", "10", "EUR", domain.PeriodMonthly, ""),
		sub("b", "20", "EUR", domain.PeriodMonthly, ""),
		sub("c", "120", "EUR", domain.PeriodYearly, ""),
		sub("d", "8", "GBP", domain.PeriodMonthly, ""),
		sub("e", "5", "USD", domain.PeriodMonthly, ""),
	}

	total, err := engine.MonthlyTotal(context.Background(), subs, "USD")
	require.NoError(t, err)

	// EUR: (10+20+10) * 1.1 = 44; GBP: 8 * 1.25 = 10; USD: 5
	assert.Equal(t, "59.00", total.Amount.StringFixed(2))
	assert.Equal(t, 1, conv.calls["EUR:USD"])
	assert.Equal(t, 1, conv.calls["GBP:USD"])
	assert.Equal(t, 2, conv.totalCalls())
}

func TestEngine_FailedConversionAddsUnconverted(t *testing.T) {
	conv := newMockConverter(map[string]float64{"EUR:USD": 1.1})
	conv.errs["GBP:USD"] = errors.New("boom")
	engine := NewEngine(conv, nil, zerolog.Nop())
	subs := []domain.Subscription{
		sub("a", "10", "EUR", domain.PeriodMonthly, ""),
		sub("b", "8", "GBP", domain.PeriodMonthly, ""),
	}

	total, err := engine.MonthlyTotal(context.Background(), subs, "USD")
	require.NoError(t, err)
	assert.Equal(t, "19.00", total.Amount.StringFixed(2))
	assert.True(t, total.Degraded)
}

func TestEngine_DegradedQuoteFlagsTotal(t *testing.T) {
	conv := newMockConverter(map[string]float64{"EUR:USD": 1.1})
	conv.source = currency.SourceStale
	engine := NewEngine(conv, nil, zerolog.Nop())

	total, err := engine.MonthlyTotal(context.Background(), []domain.Subscription{
		sub("a", "10", "EUR", domain.PeriodMonthly, ""),
	}, "USD")
	require.NoError(t, err)
	assert.Equal(t, "11.00", total.Amount.StringFixed(2))
	assert.True(t, total.Degraded)
}

func TestEngine_InvalidTargetCurrency(t *testing.T) {
	engine := NewEngine(newMockConverter(nil), nil, zerolog.Nop())
	_, err := engine.MonthlyTotal(context.Background(), nil, "DOLLARS")
	assert.True(t, domain.IsInvalidInput(err))
}

func TestEngine_EmptyInput(t *testing.T) {
	engine := NewEngine(newMockConverter(nil), nil, zerolog.Nop())
	total, err := engine.MonthlyTotal(context.Background(), nil, "EUR")
	require.NoError(t, err)
	assert.True(t, total.Amount.IsZero())

	rows, err := engine.CategoryBreakdown(context.Background(), nil, "EUR")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestEngine_CategoryBreakdown(t *testing.T) {
	conv := newMockConverter(map[string]float64{"EUR:USD": 1.1})
	engine := NewEngine(conv, nil, zerolog.Nop())
	subs := []domain.Subscription{
		sub("netflix", "15", "USD", domain.PeriodMonthly, domain.CategoryEntertainment),
		sub("spotify", "10", "EUR", domain.PeriodMonthly, domain.CategoryEntertainment),
		sub("notion", "96", "USD", domain.PeriodYearly, domain.CategoryProductivity),
		sub("misc", "14", "USD", domain.PeriodMonthly, ""),
	}

	rows, err := engine.CategoryBreakdown(context.Background(), subs, "USD")
	require.NoError(t, err)
	require.Len(t, rows, 3)

	// entertainment 15 + 11 = 26, other 14, productivity 8; total 48
	assert.Equal(t, domain.CategoryEntertainment, rows[0].Category)
	assert.Equal(t, "26.00", rows[0].MonthlyTotal.StringFixed(2))
	assert.Equal(t, 2, rows[0].Count)
	assert.InDelta(t, 54.17, rows[0].Percentage, 0.001)

	assert.Equal(t, domain.CategoryOther, rows[1].Category)
	assert.Equal(t, domain.CategoryProductivity, rows[2].Category)
	assert.Equal(t, "8.00", rows[2].MonthlyTotal.StringFixed(2))
	assert.Equal(t, 1, conv.calls["EUR:USD"])
}

func TestEngine_TopSubscriptions(t *testing.T) {
	conv := newMockConverter(map[string]float64{"EUR:USD": 2})
	engine := NewEngine(conv, nil, zerolog.Nop())
	subs := []domain.Subscription{
		sub("cheap", "5", "USD", domain.PeriodMonthly, ""),
		sub("euro", "10", "EUR", domain.PeriodMonthly, ""),
		sub("annual", "180", "USD", domain.PeriodYearly, ""),
		sub("mid", "12", "USD", domain.PeriodMonthly, ""),
	}

	top, err := engine.TopSubscriptions(context.Background(), subs, "USD", 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "euro", top[0].Subscription.ID)
	assert.Equal(t, "20.00", top[0].MonthlyAmount.StringFixed(2))
	assert.Equal(t, "annual", top[1].Subscription.ID)

	none, err := engine.TopSubscriptions(context.Background(), subs, "USD", 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestEngine_Summarize(t *testing.T) {
	conv := newMockConverter(map[string]float64{"EUR:USD": 1.1})
	engine := NewEngine(conv, nil, zerolog.Nop())
	subs := []domain.Subscription{
		sub("a", "25", "USD", domain.PeriodMonthly, domain.CategoryEntertainment),
		sub("b", "240", "USD", domain.PeriodYearly, domain.CategoryProductivity),
		sub("c", "10", "EUR", domain.PeriodMonthly, domain.CategoryEntertainment),
	}

	summary, err := engine.Summarize(context.Background(), subs, "USD", 5)
	require.NoError(t, err)
	assert.Equal(t, "56.00", summary.MonthlyTotal.StringFixed(2))
	assert.Equal(t, "672.00", summary.YearlyTotal.StringFixed(2))
	assert.Len(t, summary.Categories, 2)
	assert.Len(t, summary.TopSubscriptions, 3)
	assert.Equal(t, 3, summary.Count)
	assert.Equal(t, 1, conv.calls["EUR:USD"])
}
