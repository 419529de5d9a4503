// Package billing normalizes billing cadences and aggregates subscription costs
// into a single target currency.
package billing

import (
	"github.com/aristath/subwatch/internal/domain"
	"github.com/shopspring/decimal"
)

// periodFactor converts an amount charged once per period into monthly and yearly figures.
// Weekly uses 4.33 weeks per month but 52 weeks per year.
type periodFactor struct {
	monthlyMul decimal.Decimal
	monthlyDiv decimal.Decimal
	yearlyMul  decimal.Decimal
}

var (
	one    = decimal.NewFromInt(1)
	twelve = decimal.NewFromInt(12)

	factors = map[domain.BillingPeriod]periodFactor{
		domain.PeriodMonthly:   {monthlyMul: one, monthlyDiv: one, yearlyMul: twelve},
		domain.PeriodYearly:    {monthlyMul: one, monthlyDiv: twelve, yearlyMul: one},
		domain.PeriodQuarterly: {monthlyMul: one, monthlyDiv: decimal.NewFromInt(3), yearlyMul: decimal.NewFromInt(4)},
		domain.PeriodWeekly:    {monthlyMul: decimal.RequireFromString("4.33"), monthlyDiv: one, yearlyMul: decimal.NewFromInt(52)},
	}
)

// MonthlyEquivalent returns what amount charged every period costs per month.
// Unknown periods contribute zero.
func MonthlyEquivalent(amount decimal.Decimal, period domain.BillingPeriod) decimal.Decimal {
	f, ok := factors[period]
	if !ok {
		return decimal.Zero
	}
	monthly := amount.Mul(f.monthlyMul)
	if !f.monthlyDiv.Equal(one) {
		monthly = monthly.Div(f.monthlyDiv)
	}
	return monthly
}

// YearlyEquivalent returns what amount charged every period costs per year.
// Unknown periods contribute zero.
func YearlyEquivalent(amount decimal.Decimal, period domain.BillingPeriod) decimal.Decimal {
	f, ok := factors[period]
	if !ok {
		return decimal.Zero
	}
	return amount.Mul(f.yearlyMul)
}
