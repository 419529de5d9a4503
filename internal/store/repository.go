// Package store is a SQLite implementation of the subscription and preference repositories.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aristath/subwatch/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Repository reads and writes subscriptions, users and notification preferences
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a repository on an open connection
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "store").Logger(),
	}
}

// SaveUser inserts or replaces a user
func (r *Repository) SaveUser(ctx context.Context, user domain.Recipient) error {
	plan := user.PlanType
	if plan == "" {
		plan = domain.PlanFree
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO users (id, email, plan_type) VALUES (?, ?, ?)`,
		user.UserID, user.Email, string(plan),
	)
	if err != nil {
		return fmt.Errorf("failed to save user %s: %w", user.UserID, err)
	}
	return nil
}

// SaveSubscription inserts or replaces a subscription
func (r *Repository) SaveSubscription(ctx context.Context, sub domain.Subscription) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO subscriptions
			(id, user_id, name, amount, currency, billing_period, renewal_date, category, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID, sub.UserID, sub.Name, sub.Amount.String(), domain.NormalizeCurrency(sub.Currency),
		string(sub.BillingPeriod), sub.RenewalDate.Format(domain.DateLayout), string(sub.Category.OrDefault()), boolToInt(sub.IsActive),
	)
	if err != nil {
		return fmt.Errorf("failed to save subscription %s: %w", sub.ID, err)
	}
	return nil
}

// GetActiveByUser returns the user's active subscriptions ordered by name
func (r *Repository) GetActiveByUser(ctx context.Context, userID string) ([]domain.Subscription, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, name, amount, currency, billing_period, renewal_date, category, is_active
		FROM subscriptions WHERE user_id = ? AND is_active = 1 ORDER BY name, id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query subscriptions: %w", err)
	}
	defer rows.Close()

	subs := []domain.Subscription{}
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			// A corrupt row is skipped so the rest of the user's data stays usable
			r.log.Warn().Err(err).Str("user_id", userID).Msg("Skipping unreadable subscription")
			continue
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating subscriptions: %w", err)
	}
	return subs, nil
}

func scanSubscription(rows *sql.Rows) (domain.Subscription, error) {
	var (
		sub                            domain.Subscription
		amount, period, renewal, categ string
		active                         int
	)
	if err := rows.Scan(&sub.ID, &sub.UserID, &sub.Name, &amount, &sub.Currency, &period, &renewal, &categ, &active); err != nil {
		return sub, fmt.Errorf("failed to scan subscription: %w", err)
	}

	parsed, err := decimal.NewFromString(amount)
	if err != nil {
		return sub, fmt.Errorf("invalid amount %q for %s: %w", amount, sub.ID, err)
	}
	date, err := time.ParseInLocation(domain.DateLayout, renewal, time.UTC)
	if err != nil {
		return sub, fmt.Errorf("invalid renewal date %q for %s: %w", renewal, sub.ID, err)
	}

	sub.Amount = parsed
	sub.BillingPeriod = domain.BillingPeriod(period)
	sub.RenewalDate = date
	sub.Category = domain.Category(categ)
	sub.IsActive = active == 1
	return sub, nil
}

// SavePreference inserts or replaces a notification preference.
// Reminder days are normalized before storage.
func (r *Repository) SavePreference(ctx context.Context, pref domain.UserNotificationPreference) error {
	days, err := json.Marshal(domain.NormalizeReminderDays(pref.ReminderDays))
	if err != nil {
		return fmt.Errorf("failed to marshal reminder days: %w", err)
	}

	var lastSent interface{}
	if pref.LastSent != nil {
		lastSent = pref.LastSent.Unix()
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO notification_preferences (user_id, kind, enabled, reminder_days, last_sent)
		VALUES (?, ?, ?, ?, ?)`,
		pref.UserID, string(pref.Kind), boolToInt(pref.Enabled), string(days), lastSent,
	)
	if err != nil {
		return fmt.Errorf("failed to save preference %s/%s: %w", pref.UserID, pref.Kind, err)
	}
	return nil
}

// Get returns the preference for (userID, kind), or nil if none exists
func (r *Repository) Get(ctx context.Context, userID string, kind domain.NotificationKind) (*domain.UserNotificationPreference, error) {
	var (
		enabled  int
		days     string
		lastSent sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT enabled, reminder_days, last_sent FROM notification_preferences WHERE user_id = ? AND kind = ?`,
		userID, string(kind),
	).Scan(&enabled, &days, &lastSent)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get preference: %w", err)
	}

	pref := &domain.UserNotificationPreference{
		UserID:  userID,
		Kind:    kind,
		Enabled: enabled == 1,
	}
	if err := json.Unmarshal([]byte(days), &pref.ReminderDays); err != nil {
		return nil, fmt.Errorf("failed to unmarshal reminder days: %w", err)
	}
	if lastSent.Valid {
		t := time.Unix(lastSent.Int64, 0).UTC()
		pref.LastSent = &t
	}
	return pref, nil
}

// ListRecipients returns users with an enabled preference of kind, ordered by user id
func (r *Repository) ListRecipients(ctx context.Context, kind domain.NotificationKind) ([]domain.Recipient, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT u.id, u.email, u.plan_type
		FROM users u
		JOIN notification_preferences p ON p.user_id = u.id
		WHERE p.kind = ? AND p.enabled = 1
		ORDER BY u.id`,
		string(kind),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query recipients: %w", err)
	}
	defer rows.Close()

	recipients := []domain.Recipient{}
	for rows.Next() {
		var rec domain.Recipient
		var plan string
		if err := rows.Scan(&rec.UserID, &rec.Email, &plan); err != nil {
			return nil, fmt.Errorf("failed to scan recipient: %w", err)
		}
		rec.PlanType = domain.PlanType(plan)
		recipients = append(recipients, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating recipients: %w", err)
	}
	return recipients, nil
}

// UpdateLastSent moves last_sent forward to sentAt.
// An older sentAt leaves the stored value unchanged.
func (r *Repository) UpdateLastSent(ctx context.Context, userID string, kind domain.NotificationKind, sentAt time.Time) error {
	ts := sentAt.Unix()
	result, err := r.db.ExecContext(ctx,
		`UPDATE notification_preferences SET last_sent = ?
		WHERE user_id = ? AND kind = ? AND (last_sent IS NULL OR last_sent < ?)`,
		ts, userID, string(kind), ts,
	)
	if err != nil {
		return fmt.Errorf("failed to update last_sent: %w", err)
	}

	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		r.log.Debug().
			Str("user_id", userID).
			Str("kind", string(kind)).
			Msg("last_sent not advanced")
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
