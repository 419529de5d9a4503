package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the calendar date format used in requests and storage
const DateLayout = "2006-01-02"

// SubscriptionInput is a subscription as posted over HTTP.
// RenewalDate accepts YYYY-MM-DD or RFC3339, and IsActive defaults to true.
type SubscriptionInput struct {
	Amount        decimal.Decimal `json:"amount"`
	IsActive      *bool           `json:"is_active,omitempty"`
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Currency      string          `json:"currency"`
	BillingPeriod BillingPeriod   `json:"billing_period"`
	RenewalDate   string          `json:"renewal_date"`
	Category      Category        `json:"category"`
}

// ToSubscription converts the input, failing only on an unparseable renewal date
func (in SubscriptionInput) ToSubscription() (Subscription, error) {
	date, err := ParseDate(in.RenewalDate)
	if err != nil {
		return Subscription{}, err
	}
	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}
	return Subscription{
		ID:            in.ID,
		Name:          in.Name,
		Amount:        in.Amount,
		Currency:      in.Currency,
		BillingPeriod: BillingPeriod(strings.ToLower(string(in.BillingPeriod))),
		RenewalDate:   date,
		Category:      Category(strings.ToLower(string(in.Category))),
		IsActive:      active,
	}, nil
}

// ParseDate parses YYYY-MM-DD (as UTC) or an RFC3339 timestamp
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.ParseInLocation(DateLayout, s, time.UTC); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, &InvalidInputError{Field: "renewal_date", Value: s, Reason: "expected YYYY-MM-DD"}
	}
	return t, nil
}
