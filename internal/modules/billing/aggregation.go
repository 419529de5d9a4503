package billing

import (
	"context"
	"sort"

	"github.com/aristath/subwatch/internal/domain"
	"github.com/aristath/subwatch/internal/metrics"
	"github.com/aristath/subwatch/internal/modules/currency"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// RateConverter quotes exchange rates
type RateConverter interface {
	Quote(ctx context.Context, from, to string) (currency.RateQuote, error)
}

// Total is an aggregated amount in a single currency
type Total struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	Count    int             `json:"count"`
	Excluded int             `json:"excluded"`
	Degraded bool            `json:"degraded"`
}

// CategoryTotal is one category's monthly cost
type CategoryTotal struct {
	MonthlyTotal decimal.Decimal `json:"monthly_total"`
	Category     domain.Category `json:"category"`
	Count        int             `json:"count"`
	Percentage   float64         `json:"percentage"`
}

// RankedSubscription is a subscription with its monthly cost in the target currency
type RankedSubscription struct {
	MonthlyAmount decimal.Decimal     `json:"monthly_amount"`
	Subscription  domain.Subscription `json:"subscription"`
}

// Summary combines totals, breakdown and top subscriptions
type Summary struct {
	MonthlyTotal     decimal.Decimal      `json:"monthly_total"`
	YearlyTotal      decimal.Decimal      `json:"yearly_total"`
	Currency         string               `json:"currency"`
	Categories       []CategoryTotal      `json:"categories"`
	TopSubscriptions []RankedSubscription `json:"top_subscriptions"`
	Count            int                  `json:"count"`
	Excluded         int                  `json:"excluded"`
	Degraded         bool                 `json:"degraded"`
}

// Engine aggregates subscription costs into one target currency.
// Subtotals are accumulated per native currency and converted once per group.
type Engine struct {
	converter RateConverter
	metrics   *metrics.Metrics
	log       zerolog.Logger
}

// NewEngine creates an aggregation engine.
// m is optional - if nil, no metrics are recorded.
func NewEngine(converter RateConverter, m *metrics.Metrics, log zerolog.Logger) *Engine {
	return &Engine{
		converter: converter,
		metrics:   m,
		log:       log.With().Str("service", "billing_aggregation").Logger(),
	}
}

type groupKey struct {
	category domain.Category
	currency string
}

type accumulator struct {
	monthly decimal.Decimal
	yearly  decimal.Decimal
	count   int
}

// MonthlyTotal sums the monthly equivalent of every active subscription
func (e *Engine) MonthlyTotal(ctx context.Context, subs []domain.Subscription, target string) (Total, error) {
	return e.total(ctx, subs, target, func(a *accumulator) decimal.Decimal { return a.monthly })
}

// YearlyTotal sums the yearly equivalent of every active subscription
func (e *Engine) YearlyTotal(ctx context.Context, subs []domain.Subscription, target string) (Total, error) {
	return e.total(ctx, subs, target, func(a *accumulator) decimal.Decimal { return a.yearly })
}

func (e *Engine) total(ctx context.Context, subs []domain.Subscription, target string, pick func(*accumulator) decimal.Decimal) (Total, error) {
	target, err := domain.ParseCurrency(target)
	if err != nil {
		return Total{}, err
	}

	valid, excluded := e.eligible(subs)
	groups := groupSubscriptions(valid, false)
	conv := e.newConversion(ctx, target)

	sum := decimal.Zero
	for key, acc := range groups {
		sum = sum.Add(conv.apply(pick(acc), key.currency))
	}

	return Total{
		Amount:   sum.Round(2),
		Currency: target,
		Count:    len(valid),
		Excluded: excluded,
		Degraded: conv.degraded,
	}, nil
}

// CategoryBreakdown returns the monthly cost per category, highest first
func (e *Engine) CategoryBreakdown(ctx context.Context, subs []domain.Subscription, target string) ([]CategoryTotal, error) {
	target, err := domain.ParseCurrency(target)
	if err != nil {
		return nil, err
	}

	valid, _ := e.eligible(subs)
	conv := e.newConversion(ctx, target)
	categories, _, _ := breakdown(groupSubscriptions(valid, true), conv)
	return categories, nil
}

// TopSubscriptions returns the n most expensive subscriptions by monthly cost in target
func (e *Engine) TopSubscriptions(ctx context.Context, subs []domain.Subscription, target string, n int) ([]RankedSubscription, error) {
	target, err := domain.ParseCurrency(target)
	if err != nil {
		return nil, err
	}

	valid, _ := e.eligible(subs)
	return topN(valid, e.newConversion(ctx, target), n), nil
}

// Summarize computes totals, breakdown and top-n in one pass.
// Each distinct currency is quoted once.
func (e *Engine) Summarize(ctx context.Context, subs []domain.Subscription, target string, n int) (Summary, error) {
	target, err := domain.ParseCurrency(target)
	if err != nil {
		return Summary{}, err
	}

	valid, excluded := e.eligible(subs)
	conv := e.newConversion(ctx, target)
	categories, monthly, yearly := breakdown(groupSubscriptions(valid, true), conv)
	top := topN(valid, conv, n)

	summary := Summary{
		MonthlyTotal:     monthly.Round(2),
		YearlyTotal:      yearly.Round(2),
		Currency:         target,
		Categories:       categories,
		TopSubscriptions: top,
		Count:            len(valid),
		Excluded:         excluded,
		Degraded:         conv.degraded,
	}

	e.log.Debug().
		Str("currency", target).
		Int("count", summary.Count).
		Int("excluded", summary.Excluded).
		Bool("degraded", summary.Degraded).
		Str("monthly_total", summary.MonthlyTotal.String()).
		Msg("Summarized subscriptions")

	return summary, nil
}

// eligible keeps active subscriptions that pass validation, with normalized currency codes
func (e *Engine) eligible(subs []domain.Subscription) ([]domain.Subscription, int) {
	valid := make([]domain.Subscription, 0, len(subs))
	excluded := 0
	for _, sub := range subs {
		if !sub.IsActive {
			continue
		}
		if err := sub.Validate(); err != nil {
			excluded++
			e.metrics.Excluded()
			e.log.Warn().
				Err(err).
				Str("subscription_id", sub.ID).
				Msg("Excluding invalid subscription from aggregation")
			continue
		}
		sub.Currency = domain.NormalizeCurrency(sub.Currency)
		valid = append(valid, sub)
	}
	return valid, excluded
}

func groupSubscriptions(subs []domain.Subscription, byCategory bool) map[groupKey]*accumulator {
	groups := make(map[groupKey]*accumulator)
	for _, sub := range subs {
		key := groupKey{currency: sub.Currency}
		if byCategory {
			key.category = sub.Category.OrDefault()
		}
		acc, ok := groups[key]
		if !ok {
			acc = &accumulator{monthly: decimal.Zero, yearly: decimal.Zero}
			groups[key] = acc
		}
		acc.monthly = acc.monthly.Add(MonthlyEquivalent(sub.Amount, sub.BillingPeriod))
		acc.yearly = acc.yearly.Add(YearlyEquivalent(sub.Amount, sub.BillingPeriod))
		acc.count++
	}
	return groups
}

// breakdown converts category groups and returns per-category rows plus overall totals
func breakdown(groups map[groupKey]*accumulator, conv *conversion) ([]CategoryTotal, decimal.Decimal, decimal.Decimal) {
	byCategory := make(map[domain.Category]*CategoryTotal)
	monthly, yearly := decimal.Zero, decimal.Zero

	for key, acc := range groups {
		m := conv.apply(acc.monthly, key.currency)
		y := conv.apply(acc.yearly, key.currency)
		monthly = monthly.Add(m)
		yearly = yearly.Add(y)

		row, ok := byCategory[key.category]
		if !ok {
			row = &CategoryTotal{Category: key.category, MonthlyTotal: decimal.Zero}
			byCategory[key.category] = row
		}
		row.MonthlyTotal = row.MonthlyTotal.Add(m)
		row.Count += acc.count
	}

	rows := make([]CategoryTotal, 0, len(byCategory))
	for _, row := range byCategory {
		if monthly.IsPositive() {
			row.Percentage = row.MonthlyTotal.Div(monthly).Mul(decimal.NewFromInt(100)).Round(2).InexactFloat64()
		}
		row.MonthlyTotal = row.MonthlyTotal.Round(2)
		rows = append(rows, *row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].MonthlyTotal.Equal(rows[j].MonthlyTotal) {
			return rows[i].MonthlyTotal.GreaterThan(rows[j].MonthlyTotal)
		}
		return rows[i].Category < rows[j].Category
	})

	return rows, monthly, yearly
}

func topN(subs []domain.Subscription, conv *conversion, n int) []RankedSubscription {
	if n <= 0 {
		return []RankedSubscription{}
	}

	ranked := make([]RankedSubscription, 0, len(subs))
	for _, sub := range subs {
		monthly := MonthlyEquivalent(sub.Amount, sub.BillingPeriod)
		ranked = append(ranked, RankedSubscription{
			Subscription:  sub,
			MonthlyAmount: conv.apply(monthly, sub.Currency).Round(2),
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if !a.MonthlyAmount.Equal(b.MonthlyAmount) {
			return a.MonthlyAmount.GreaterThan(b.MonthlyAmount)
		}
		if a.Subscription.Name != b.Subscription.Name {
			return a.Subscription.Name < b.Subscription.Name
		}
		return a.Subscription.ID < b.Subscription.ID
	})

	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}
