// Package notifications decides when recurring notifications may be sent and runs
// the per-user send batches.
package notifications

import (
	"time"

	"github.com/aristath/subwatch/internal/domain"
	"github.com/aristath/subwatch/internal/modules/renewals"
)

const (
	// MonthlySummaryCooldown is the minimum gap between two monthly summaries
	MonthlySummaryCooldown = 28 * 24 * time.Hour
	// RenewalAlertCooldown is the minimum gap between two renewal alerts
	RenewalAlertCooldown = 24 * time.Hour
)

// Cooldown returns the anti-spam cooldown for kind
func Cooldown(kind domain.NotificationKind) (time.Duration, bool) {
	switch kind {
	case domain.KindMonthlySummary:
		return MonthlySummaryCooldown, true
	case domain.KindRenewalAlert:
		return RenewalAlertCooldown, true
	default:
		return 0, false
	}
}

// ShouldSend reports whether pref allows a notification of kind at now.
// The preference must match kind, be enabled, and be outside its cooldown.
func ShouldSend(pref domain.UserNotificationPreference, kind domain.NotificationKind, now time.Time) bool {
	if pref.Kind != kind || !pref.Enabled {
		return false
	}
	cooldown, ok := Cooldown(kind)
	if !ok {
		return false
	}
	if pref.LastSent == nil {
		return true
	}
	return now.Sub(*pref.LastSent) >= cooldown
}

// RecordSent returns a copy of pref with LastSent advanced to now.
// LastSent never moves backwards, and pref itself is not modified.
func RecordSent(pref domain.UserNotificationPreference, kind domain.NotificationKind, now time.Time) domain.UserNotificationPreference {
	updated := pref
	updated.ReminderDays = append([]int(nil), pref.ReminderDays...)
	if pref.Kind != kind {
		return updated
	}

	sent := now
	if pref.LastSent != nil && pref.LastSent.After(now) {
		sent = *pref.LastSent
	}
	updated.LastSent = &sent
	return updated
}

// AlertBatch keeps renewals whose DaysUntil is exactly one of the reminder days
func AlertBatch(pref domain.UserNotificationPreference, upcoming []renewals.Upcoming) []renewals.Upcoming {
	days := make(map[int]bool, len(pref.ReminderDays))
	for _, d := range domain.NormalizeReminderDays(pref.ReminderDays) {
		days[d] = true
	}

	batch := []renewals.Upcoming{}
	for _, u := range upcoming {
		if days[u.DaysUntil] {
			batch = append(batch, u)
		}
	}
	return batch
}

// KindsForPlan returns the notification kinds a plan may receive.
// Unknown plans get the free tier.
func KindsForPlan(plan domain.PlanType) []domain.NotificationKind {
	switch plan {
	case domain.PlanPro:
		return []domain.NotificationKind{domain.KindMonthlySummary, domain.KindRenewalAlert}
	default:
		return []domain.NotificationKind{domain.KindMonthlySummary}
	}
}

// PlanAllows reports whether plan may receive kind
func PlanAllows(plan domain.PlanType, kind domain.NotificationKind) bool {
	for _, k := range KindsForPlan(plan) {
		if k == kind {
			return true
		}
	}
	return false
}
