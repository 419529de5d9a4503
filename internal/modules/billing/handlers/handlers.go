// Package handlers provides HTTP handlers for billing aggregation.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/aristath/subwatch/internal/domain"
	"github.com/aristath/subwatch/internal/modules/billing"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

const defaultTopN = 5

// Handler handles billing HTTP requests
type Handler struct {
	engine          *billing.Engine
	log             zerolog.Logger
	defaultCurrency string
}

// NewHandler creates a new billing handler
func NewHandler(engine *billing.Engine, defaultCurrency string, log zerolog.Logger) *Handler {
	return &Handler{
		engine:          engine,
		defaultCurrency: defaultCurrency,
		log:             log.With().Str("handler", "billing").Logger(),
	}
}

// SummaryRequest represents a request to summarize subscriptions
type SummaryRequest struct {
	TopN          *int                       `json:"top_n,omitempty"`
	Currency      string                     `json:"currency"`
	Subscriptions []domain.SubscriptionInput `json:"subscriptions"`
}

// RegisterRoutes registers all billing routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/billing", func(r chi.Router) {
		r.Post("/summary", h.HandleSummary)
	})
}

// HandleSummary handles POST /api/billing/summary
func (h *Handler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	var req SummaryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Error().Err(err).Msg("Failed to decode request body")
		h.writeError(w, &domain.InvalidInputError{Field: "body", Value: "", Reason: "invalid JSON"})
		return
	}

	target := req.Currency
	if target == "" {
		target = h.defaultCurrency
	}
	topN := defaultTopN
	if req.TopN != nil {
		topN = *req.TopN
	}

	subs := make([]domain.Subscription, 0, len(req.Subscriptions))
	unparsed := 0
	for _, in := range req.Subscriptions {
		sub, err := in.ToSubscription()
		if err != nil {
			unparsed++
			h.log.Warn().Err(err).Str("subscription_id", in.ID).Msg("Excluding unparseable subscription")
			continue
		}
		subs = append(subs, sub)
	}

	summary, err := h.engine.Summarize(r.Context(), subs, target, topN)
	if err != nil {
		h.writeError(w, err)
		return
	}
	summary.Excluded += unparsed

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": summary,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
			"degraded":  summary.Degraded,
		},
	})
}

// writeError maps invalid input to 400 and everything else to 500
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var invalid *domain.InvalidInputError
	if errors.As(err, &invalid) {
		status = http.StatusBadRequest
	}

	h.writeJSON(w, status, map[string]interface{}{
		"data": nil,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
			"error":     err.Error(),
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
