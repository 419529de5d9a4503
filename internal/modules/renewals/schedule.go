// Package renewals computes upcoming renewal dates for recurring subscriptions.
package renewals

import (
	"sort"
	"time"

	"github.com/aristath/subwatch/internal/domain"
)

const day = 24 * time.Hour

// Upcoming is a subscription whose next renewal falls inside a notice window
type Upcoming struct {
	NextRenewal  time.Time           `json:"next_renewal"`
	Subscription domain.Subscription `json:"subscription"`
	DaysUntil    int                 `json:"days_until"`
}

// DateOf truncates t to midnight of its calendar date in loc.
// A nil loc means UTC.
func DateOf(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// NextOccurrence returns the first renewal strictly after today.
//
// Yearly subscriptions renew on the same month and day each year. Every other
// period is treated as renewing on the same day-of-month each month. Days that do
// not exist in the target month clamp to its last day, so Feb 29 becomes Feb 28
// in a non-leap year.
func NextOccurrence(renewalDate time.Time, period domain.BillingPeriod, today time.Time) time.Time {
	today = DateOf(today, today.Location())
	loc := today.Location()
	dom := renewalDate.Day()

	if period == domain.PeriodYearly {
		candidate := clampedDate(today.Year(), renewalDate.Month(), dom, loc)
		if !candidate.After(today) {
			candidate = clampedDate(today.Year()+1, renewalDate.Month(), dom, loc)
		}
		return candidate
	}

	candidate := clampedDate(today.Year(), today.Month(), dom, loc)
	if !candidate.After(today) {
		candidate = clampedDate(today.Year(), today.Month()+1, dom, loc)
	}
	return candidate
}

// DaysUntil returns the whole days from today to date, rounded up and never negative.
// Both sides are compared by wall clock, so a DST shift between them does not add a day.
func DaysUntil(date, today time.Time) int {
	diff := wallClock(date).Sub(wallClock(today))
	if diff <= 0 {
		return 0
	}
	days := int(diff / day)
	if diff%day != 0 {
		days++
	}
	return days
}

// FilterUpcoming returns active subscriptions renewing within [today, today+windowDays],
// soonest first
func FilterUpcoming(subs []domain.Subscription, windowDays int, today time.Time) []Upcoming {
	result := []Upcoming{}
	if windowDays < 0 {
		return result
	}

	today = DateOf(today, today.Location())
	end := today.AddDate(0, 0, windowDays)

	for _, sub := range subs {
		if !sub.IsActive {
			continue
		}
		next := NextOccurrence(sub.RenewalDate, sub.BillingPeriod, today)
		if next.Before(today) || next.After(end) {
			continue
		}
		result = append(result, Upcoming{
			Subscription: sub,
			NextRenewal:  next,
			DaysUntil:    DaysUntil(next, today),
		})
	}

	sort.SliceStable(result, func(i, j int) bool {
		if !result[i].NextRenewal.Equal(result[j].NextRenewal) {
			return result[i].NextRenewal.Before(result[j].NextRenewal)
		}
		return result[i].Subscription.Name < result[j].Subscription.Name
	})
	return result
}

// wallClock re-expresses t's wall-clock reading in UTC
func wallClock(t time.Time) time.Time {
	y, m, d := t.Date()
	hh, mm, ss := t.Clock()
	return time.Date(y, m, d, hh, mm, ss, t.Nanosecond(), time.UTC)
}

// clampedDate builds year-month-day, normalizing month overflow and clamping the
// day to the length of the resulting month
func clampedDate(year int, month time.Month, dom int, loc *time.Location) time.Time {
	first := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	year, month = first.Year(), first.Month()
	if last := daysInMonth(year, month); dom > last {
		dom = last
	}
	return time.Date(year, month, dom, 0, 0, 0, 0, loc)
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
