// Package domain provides core domain models and types.
package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// BillingPeriod represents how often a subscription is charged
type BillingPeriod string

const (
	PeriodWeekly    BillingPeriod = "weekly"
	PeriodMonthly   BillingPeriod = "monthly"
	PeriodQuarterly BillingPeriod = "quarterly"
	PeriodYearly    BillingPeriod = "yearly"
)

// IsKnown reports whether the period is one of the supported cadences
func (p BillingPeriod) IsKnown() bool {
	switch p {
	case PeriodWeekly, PeriodMonthly, PeriodQuarterly, PeriodYearly:
		return true
	}
	return false
}

// Category groups subscriptions for breakdowns
type Category string

const (
	CategoryEntertainment Category = "entertainment"
	CategoryProductivity  Category = "productivity"
	CategoryUtilities     Category = "utilities"
	CategoryHealth        Category = "health"
	CategoryEducation     Category = "education"
	CategoryFinance       Category = "finance"
	CategoryNews          Category = "news"
	CategoryOther         Category = "other"
)

// OrDefault maps an empty category to CategoryOther
func (c Category) OrDefault() Category {
	if c == "" {
		return CategoryOther
	}
	return c
}

// Subscription is a recurring charge owned by a user.
// Subscriptions are persisted by an external collaborator; this module only reads them.
type Subscription struct {
	RenewalDate   time.Time       `json:"renewal_date"`
	Amount        decimal.Decimal `json:"amount"`
	ID            string          `json:"id"`
	UserID        string          `json:"user_id"`
	Name          string          `json:"name"`
	Currency      string          `json:"currency"`
	BillingPeriod BillingPeriod   `json:"billing_period"`
	Category      Category        `json:"category"`
	IsActive      bool            `json:"is_active"`
}

// Validate checks the amount and currency of a subscription.
// Returns *InvalidInputError describing the first problem found.
func (s Subscription) Validate() error {
	if !s.Amount.IsPositive() {
		return &InvalidInputError{Field: "amount", Value: s.Amount.String(), Reason: "must be greater than 0"}
	}
	if _, err := ParseCurrency(s.Currency); err != nil {
		return err
	}
	return nil
}

// NormalizeCurrency upper-cases and trims a currency code
func NormalizeCurrency(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ParseCurrency normalizes code and checks it is a recognised ISO 4217 currency
func ParseCurrency(code string) (string, error) {
	normalized := NormalizeCurrency(code)
	unit, err := currency.ParseISO(normalized)
	if err != nil {
		return "", &InvalidInputError{Field: "currency", Value: code, Reason: "unrecognized ISO 4217 code"}
	}
	return unit.String(), nil
}

// Pair is an ordered currency pair
type Pair struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// String returns the pair as FROM:TO
func (p Pair) String() string {
	return p.From + ":" + p.To
}

// CachedRate is an exchange rate held in process memory.
// The cache does not record which provider produced the rate.
type CachedRate struct {
	FetchedAt time.Time `json:"fetched_at"`
	Pair      Pair      `json:"pair"`
	Rate      float64   `json:"rate"`
}

// NotificationKind identifies a recurring notification
type NotificationKind string

const (
	KindMonthlySummary NotificationKind = "monthly_summary"
	KindRenewalAlert   NotificationKind = "renewal_alert"
)

// PlanType is the user's billing plan as produced by payment-processor webhooks
type PlanType string

const (
	PlanFree PlanType = "free"
	PlanPro  PlanType = "pro"
)

// UserNotificationPreference holds one user's settings for one notification kind
type UserNotificationPreference struct {
	LastSent     *time.Time       `json:"last_sent,omitempty"`
	UserID       string           `json:"user_id"`
	Kind         NotificationKind `json:"kind"`
	ReminderDays []int            `json:"reminder_days"`
	Enabled      bool             `json:"enabled"`
}

// Validate checks that reminder days are distinct positive integers
func (p UserNotificationPreference) Validate() error {
	seen := make(map[int]bool, len(p.ReminderDays))
	for _, d := range p.ReminderDays {
		if d <= 0 {
			return &InvalidInputError{Field: "reminder_days", Value: itoa(d), Reason: "must be positive"}
		}
		if seen[d] {
			return &InvalidInputError{Field: "reminder_days", Value: itoa(d), Reason: "duplicate value"}
		}
		seen[d] = true
	}
	return nil
}

// Recipient is a user targeted by a notification batch
type Recipient struct {
	UserID   string   `json:"user_id"`
	Email    string   `json:"email"`
	PlanType PlanType `json:"plan_type"`
}
