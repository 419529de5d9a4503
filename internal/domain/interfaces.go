package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// SubscriptionRepository reads subscriptions owned by the host application
type SubscriptionRepository interface {
	// GetActiveByUser returns the user's active subscriptions
	GetActiveByUser(ctx context.Context, userID string) ([]Subscription, error)
}

// PreferenceRepository reads notification preferences and stores last-sent markers
type PreferenceRepository interface {
	// Get returns the preference for (userID, kind), or nil if none exists
	Get(ctx context.Context, userID string, kind NotificationKind) (*UserNotificationPreference, error)

	// ListRecipients returns users with an enabled preference of the given kind
	ListRecipients(ctx context.Context, kind NotificationKind) ([]Recipient, error)

	// UpdateLastSent persists a proposed last_sent value.
	// Implementations must not move last_sent backwards.
	UpdateLastSent(ctx context.Context, userID string, kind NotificationKind, sentAt time.Time) error
}

// EmailDispatcher delivers a structured notification payload to an address.
// Rendering and transport belong to the implementation.
type EmailDispatcher interface {
	Send(ctx context.Context, address string, payload Payload) error
}

// Payload is the numeric content of a notification. It never contains markup.
type Payload struct {
	GeneratedAt      time.Time             `json:"generated_at"`
	MonthlyTotal     decimal.Decimal       `json:"monthly_total"`
	YearlyTotal      decimal.Decimal       `json:"yearly_total"`
	UserID           string                `json:"user_id"`
	Kind             NotificationKind      `json:"kind"`
	Currency         string                `json:"currency"`
	Categories       []PayloadCategory     `json:"categories,omitempty"`
	TopSubscriptions []PayloadSubscription `json:"top_subscriptions,omitempty"`
	Renewals         []PayloadRenewal      `json:"renewals,omitempty"`
	Degraded         bool                  `json:"degraded"`
}

// PayloadCategory is one row of the category breakdown
type PayloadCategory struct {
	MonthlyTotal decimal.Decimal `json:"monthly_total"`
	Category     Category        `json:"category"`
	Count        int             `json:"count"`
	Percentage   float64         `json:"percentage"`
}

// PayloadSubscription is one of the most expensive subscriptions
type PayloadSubscription struct {
	MonthlyAmount decimal.Decimal `json:"monthly_amount"`
	ID            string          `json:"id"`
	Name          string          `json:"name"`
}

// PayloadRenewal is an upcoming renewal with the days remaining
type PayloadRenewal struct {
	RenewalDate time.Time       `json:"renewal_date"`
	Amount      decimal.Decimal `json:"amount"`
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Currency    string          `json:"currency"`
	DaysUntil   int             `json:"days_until"`
}
