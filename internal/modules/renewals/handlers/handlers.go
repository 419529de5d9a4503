// Package handlers provides HTTP handlers for renewal scheduling.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/aristath/subwatch/internal/domain"
	"github.com/aristath/subwatch/internal/modules/renewals"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

const defaultWindowDays = 30

// Handler handles renewal HTTP requests
type Handler struct {
	now func() time.Time
	log zerolog.Logger
}

// NewHandler creates a new renewals handler
func NewHandler(log zerolog.Logger) *Handler {
	return &Handler{
		now: time.Now,
		log: log.With().Str("handler", "renewals").Logger(),
	}
}

// UpcomingRequest represents a request for renewals inside a window
type UpcomingRequest struct {
	WindowDays    *int                       `json:"window_days,omitempty"`
	Today         string                     `json:"today,omitempty"`
	Subscriptions []domain.SubscriptionInput `json:"subscriptions"`
}

// RegisterRoutes registers all renewal routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/renewals", func(r chi.Router) {
		r.Post("/upcoming", h.HandleUpcoming)
	})
}

// HandleUpcoming handles POST /api/renewals/upcoming
func (h *Handler) HandleUpcoming(w http.ResponseWriter, r *http.Request) {
	var req UpcomingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Error().Err(err).Msg("Failed to decode request body")
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	window := defaultWindowDays
	if req.WindowDays != nil {
		window = *req.WindowDays
	}
	if window < 0 {
		h.writeError(w, http.StatusBadRequest, "window_days must not be negative")
		return
	}

	today := renewals.DateOf(h.now(), time.UTC)
	if req.Today != "" {
		parsed, err := domain.ParseDate(req.Today)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		today = renewals.DateOf(parsed, time.UTC)
	}

	subs := make([]domain.Subscription, 0, len(req.Subscriptions))
	for _, in := range req.Subscriptions {
		sub, err := in.ToSubscription()
		if err != nil {
			h.log.Warn().Err(err).Str("subscription_id", in.ID).Msg("Skipping unparseable subscription")
			continue
		}
		subs = append(subs, sub)
	}

	upcoming := renewals.FilterUpcoming(subs, window, today)
	items := make([]map[string]interface{}, 0, len(upcoming))
	for _, u := range upcoming {
		items = append(items, map[string]interface{}{
			"id":           u.Subscription.ID,
			"name":         u.Subscription.Name,
			"amount":       u.Subscription.Amount,
			"currency":     domain.NormalizeCurrency(u.Subscription.Currency),
			"next_renewal": u.NextRenewal.Format(domain.DateLayout),
			"days_until":   u.DaysUntil,
		})
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"today":       today.Format(domain.DateLayout),
			"window_days": window,
			"renewals":    items,
			"count":       len(items),
		},
		"metadata": map[string]interface{}{
			"timestamp": h.now().Format(time.RFC3339),
		},
	})
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]interface{}{
		"data": nil,
		"metadata": map[string]interface{}{
			"timestamp": h.now().Format(time.RFC3339),
			"error":     msg,
		},
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
