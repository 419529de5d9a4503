package notifications

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aristath/subwatch/internal/domain"
	"github.com/aristath/subwatch/internal/metrics"
	"github.com/aristath/subwatch/internal/modules/billing"
	"github.com/aristath/subwatch/internal/modules/renewals"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	// SummaryTopN is how many subscriptions a monthly summary ranks
	SummaryTopN = 5
	// SummaryRenewalWindowDays is how far ahead a monthly summary lists renewals
	SummaryRenewalWindowDays = 30

	defaultConcurrency = 4
)

type outcome string

const (
	outcomeSent    outcome = "sent"
	outcomeSkipped outcome = "skipped"
	outcomeFailed  outcome = "failed"
)

// Failure is one user's failed send
type Failure struct {
	UserID string `json:"user_id"`
	Error  string `json:"error"`
}

// BatchResult summarizes one notification run
type BatchResult struct {
	Kind     domain.NotificationKind `json:"kind"`
	Failures []Failure               `json:"failures"`
	Sent     int                     `json:"sent"`
	Skipped  int                     `json:"skipped"`
	RunID    uuid.UUID               `json:"run_id"`
}

// RunnerConfig holds runner settings
type RunnerConfig struct {
	Location    *time.Location
	Currency    string
	Concurrency int
}

// Runner sends a notification kind to every eligible recipient.
// Users are processed concurrently and fail independently.
type Runner struct {
	subscriptions domain.SubscriptionRepository
	preferences   domain.PreferenceRepository
	dispatcher    domain.EmailDispatcher
	engine        *billing.Engine
	metrics       *metrics.Metrics
	location      *time.Location
	log           zerolog.Logger
	currency      string
	concurrency   int
}

// NewRunner creates a notification runner
func NewRunner(
	subscriptions domain.SubscriptionRepository,
	preferences domain.PreferenceRepository,
	dispatcher domain.EmailDispatcher,
	engine *billing.Engine,
	cfg RunnerConfig,
	m *metrics.Metrics,
	log zerolog.Logger,
) *Runner {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}
	return &Runner{
		subscriptions: subscriptions,
		preferences:   preferences,
		dispatcher:    dispatcher,
		engine:        engine,
		metrics:       m,
		location:      cfg.Location,
		currency:      cfg.Currency,
		concurrency:   cfg.Concurrency,
		log:           log.With().Str("service", "notification_runner").Logger(),
	}
}

// RunMonthlySummaries sends the monthly spending summary to every eligible user
func (r *Runner) RunMonthlySummaries(ctx context.Context, now time.Time) (BatchResult, error) {
	return r.run(ctx, domain.KindMonthlySummary, now)
}

// RunRenewalAlerts sends renewal alerts for subscriptions landing on a reminder day
func (r *Runner) RunRenewalAlerts(ctx context.Context, now time.Time) (BatchResult, error) {
	return r.run(ctx, domain.KindRenewalAlert, now)
}

func (r *Runner) run(ctx context.Context, kind domain.NotificationKind, now time.Time) (BatchResult, error) {
	result := BatchResult{
		RunID:    uuid.New(),
		Kind:     kind,
		Failures: []Failure{},
	}
	log := r.log.With().Str("run_id", result.RunID.String()).Str("kind", string(kind)).Logger()

	recipients, err := r.preferences.ListRecipients(ctx, kind)
	if err != nil {
		return result, fmt.Errorf("failed to list recipients for %s: %w", kind, err)
	}

	var mu sync.Mutex
	var eg errgroup.Group
	eg.SetLimit(r.concurrency)

	for _, recipient := range recipients {
		recipient := recipient
		eg.Go(func() error {
			out, err := r.deliver(ctx, kind, recipient, now)
			r.metrics.Notification(string(kind), string(out))

			mu.Lock()
			defer mu.Unlock()
			switch out {
			case outcomeSent:
				result.Sent++
			case outcomeSkipped:
				result.Skipped++
			case outcomeFailed:
				result.Failures = append(result.Failures, Failure{UserID: recipient.UserID, Error: err.Error()})
				log.Error().Err(err).Str("user_id", recipient.UserID).Msg("Notification failed")
			}
			return nil
		})
	}
	_ = eg.Wait()

	log.Info().
		Int("recipients", len(recipients)).
		Int("sent", result.Sent).
		Int("skipped", result.Skipped).
		Int("failed", len(result.Failures)).
		Msg("Notification run completed")

	return result, nil
}

// deliver handles one user. A non-nil error is returned only with outcomeFailed.
func (r *Runner) deliver(ctx context.Context, kind domain.NotificationKind, recipient domain.Recipient, now time.Time) (outcome, error) {
	if !PlanAllows(recipient.PlanType, kind) {
		return outcomeSkipped, nil
	}

	pref, err := r.preferences.Get(ctx, recipient.UserID, kind)
	if err != nil {
		return outcomeFailed, fmt.Errorf("failed to load preference: %w", err)
	}
	if pref == nil || !ShouldSend(*pref, kind, now) {
		return outcomeSkipped, nil
	}

	subs, err := r.subscriptions.GetActiveByUser(ctx, recipient.UserID)
	if err != nil {
		return outcomeFailed, fmt.Errorf("failed to load subscriptions: %w", err)
	}

	var payload domain.Payload
	switch kind {
	case domain.KindMonthlySummary:
		payload, err = r.summaryPayload(ctx, recipient.UserID, subs, now)
		if err != nil {
			return outcomeFailed, err
		}
	case domain.KindRenewalAlert:
		payload = r.alertPayload(recipient.UserID, *pref, subs, now)
		if len(payload.Renewals) == 0 {
			return outcomeSkipped, nil
		}
	default:
		return outcomeSkipped, nil
	}

	if err := r.dispatcher.Send(ctx, recipient.Email, payload); err != nil {
		return outcomeFailed, fmt.Errorf("failed to send %s: %w", kind, err)
	}

	updated := RecordSent(*pref, kind, now)
	if err := r.preferences.UpdateLastSent(ctx, recipient.UserID, kind, *updated.LastSent); err != nil {
		return outcomeFailed, fmt.Errorf("sent but failed to record last_sent: %w", err)
	}
	return outcomeSent, nil
}

func (r *Runner) summaryPayload(ctx context.Context, userID string, subs []domain.Subscription, now time.Time) (domain.Payload, error) {
	summary, err := r.engine.Summarize(ctx, subs, r.currency, SummaryTopN)
	if err != nil {
		return domain.Payload{}, fmt.Errorf("failed to summarize subscriptions: %w", err)
	}

	payload := domain.Payload{
		GeneratedAt:      now,
		UserID:           userID,
		Kind:             domain.KindMonthlySummary,
		Currency:         summary.Currency,
		MonthlyTotal:     summary.MonthlyTotal,
		YearlyTotal:      summary.YearlyTotal,
		Categories:       make([]domain.PayloadCategory, 0, len(summary.Categories)),
		TopSubscriptions: make([]domain.PayloadSubscription, 0, len(summary.TopSubscriptions)),
		Degraded:         summary.Degraded,
	}
	for _, c := range summary.Categories {
		payload.Categories = append(payload.Categories, domain.PayloadCategory{
			Category:     c.Category,
			MonthlyTotal: c.MonthlyTotal,
			Count:        c.Count,
			Percentage:   c.Percentage,
		})
	}
	for _, s := range summary.TopSubscriptions {
		payload.TopSubscriptions = append(payload.TopSubscriptions, domain.PayloadSubscription{
			ID:            s.Subscription.ID,
			Name:          s.Subscription.Name,
			MonthlyAmount: s.MonthlyAmount,
		})
	}

	today := renewals.DateOf(now, r.location)
	payload.Renewals = toPayloadRenewals(renewals.FilterUpcoming(subs, SummaryRenewalWindowDays, today))
	return payload, nil
}

func (r *Runner) alertPayload(userID string, pref domain.UserNotificationPreference, subs []domain.Subscription, now time.Time) domain.Payload {
	window := 0
	for _, d := range pref.ReminderDays {
		if d > window {
			window = d
		}
	}

	today := renewals.DateOf(now, r.location)
	batch := AlertBatch(pref, renewals.FilterUpcoming(subs, window, today))

	return domain.Payload{
		GeneratedAt: now,
		UserID:      userID,
		Kind:        domain.KindRenewalAlert,
		Currency:    r.currency,
		Renewals:    toPayloadRenewals(batch),
	}
}

func toPayloadRenewals(upcoming []renewals.Upcoming) []domain.PayloadRenewal {
	out := make([]domain.PayloadRenewal, 0, len(upcoming))
	for _, u := range upcoming {
		out = append(out, domain.PayloadRenewal{
			ID:          u.Subscription.ID,
			Name:        u.Subscription.Name,
			Amount:      u.Subscription.Amount,
			Currency:    u.Subscription.Currency,
			RenewalDate: u.NextRenewal,
			DaysUntil:   u.DaysUntil,
		})
	}
	return out
}
