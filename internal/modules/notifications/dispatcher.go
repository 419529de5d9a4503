package notifications

import (
	"context"

	"github.com/aristath/subwatch/internal/domain"
	"github.com/rs/zerolog"
)

// LogDispatcher writes payloads to the log instead of sending email.
// Used when no outbound transport is configured.
type LogDispatcher struct {
	log zerolog.Logger
}

// NewLogDispatcher creates a dispatcher that logs every payload
func NewLogDispatcher(log zerolog.Logger) *LogDispatcher {
	return &LogDispatcher{log: log.With().Str("service", "log_dispatcher").Logger()}
}

// Send logs the payload summary
func (d *LogDispatcher) Send(ctx context.Context, address string, payload domain.Payload) error {
	d.log.Info().
		Str("to", address).
		Str("user_id", payload.UserID).
		Str("kind", string(payload.Kind)).
		Str("currency", payload.Currency).
		Str("monthly_total", payload.MonthlyTotal.String()).
		Int("renewals", len(payload.Renewals)).
		Bool("degraded", payload.Degraded).
		Msg("Notification dispatched")
	return nil
}
