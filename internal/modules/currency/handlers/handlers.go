// Package handlers provides HTTP handlers for currency operations.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/aristath/subwatch/internal/domain"
	"github.com/aristath/subwatch/internal/modules/currency"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Handler handles currency HTTP requests
type Handler struct {
	converter *currency.Converter
	log       zerolog.Logger
}

// NewHandler creates a new currency handler
func NewHandler(converter *currency.Converter, log zerolog.Logger) *Handler {
	return &Handler{
		converter: converter,
		log:       log.With().Str("handler", "currency").Logger(),
	}
}

// ConvertRequest represents a request to convert currency
type ConvertRequest struct {
	Amount       decimal.Decimal `json:"amount"`
	FromCurrency string          `json:"from_currency"`
	ToCurrency   string          `json:"to_currency"`
}

// BatchRequest represents a request for rates from one base to many targets
type BatchRequest struct {
	Base    string   `json:"base"`
	Targets []string `json:"targets"`
}

// HandleGetRate handles GET /api/currency/rate/{from}/{to}
func (h *Handler) HandleGetRate(w http.ResponseWriter, r *http.Request) {
	from := chi.URLParam(r, "from")
	to := chi.URLParam(r, "to")

	quote, err := h.converter.Quote(r.Context(), from, to)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, envelope(quoteData(quote)))
}

// HandleConvert handles POST /api/currency/convert
func (h *Handler) HandleConvert(w http.ResponseWriter, r *http.Request) {
	var req ConvertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Error().Err(err).Msg("Failed to decode request body")
		h.writeError(w, &domain.InvalidInputError{Field: "body", Value: "", Reason: "invalid JSON"})
		return
	}

	if !req.Amount.IsPositive() {
		h.writeError(w, &domain.InvalidInputError{Field: "amount", Value: req.Amount.String(), Reason: "must be greater than 0"})
		return
	}

	quote, err := h.converter.Quote(r.Context(), req.FromCurrency, req.ToCurrency)
	if err != nil {
		h.writeError(w, err)
		return
	}

	converted := currency.ApplyRate(req.Amount, quote.Rate)
	data := quoteData(quote)
	data["from_amount"] = req.Amount.StringFixed(2)
	data["to_amount"] = converted.StringFixed(2)

	h.writeJSON(w, http.StatusOK, envelope(data))
}

// HandleBatch handles POST /api/currency/batch
func (h *Handler) HandleBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Error().Err(err).Msg("Failed to decode request body")
		h.writeError(w, &domain.InvalidInputError{Field: "body", Value: "", Reason: "invalid JSON"})
		return
	}
	if len(req.Targets) == 0 {
		h.writeError(w, &domain.InvalidInputError{Field: "targets", Value: "", Reason: "at least one target is required"})
		return
	}

	quotes, err := h.converter.BatchQuotes(r.Context(), req.Base, req.Targets)
	if err != nil {
		h.writeError(w, err)
		return
	}

	rates := make(map[string]interface{}, len(quotes))
	degraded := false
	for target, quote := range quotes {
		rates[target] = quoteData(quote)
		degraded = degraded || quote.Degraded()
	}

	h.writeJSON(w, http.StatusOK, envelope(map[string]interface{}{
		"base":     domain.NormalizeCurrency(req.Base),
		"rates":    rates,
		"degraded": degraded,
	}))
}

// HandleGetCache handles GET /api/currency/cache
func (h *Handler) HandleGetCache(w http.ResponseWriter, r *http.Request) {
	cache := h.converter.Cache()
	entries := cache.Snapshot()

	items := make([]map[string]interface{}, 0, len(entries))
	for _, entry := range entries {
		items = append(items, map[string]interface{}{
			"pair":       entry.Pair.String(),
			"rate":       entry.Rate,
			"fetched_at": entry.FetchedAt.Format(time.RFC3339),
			"fresh":      cache.IsFresh(entry),
		})
	}

	h.writeJSON(w, http.StatusOK, envelope(map[string]interface{}{
		"entries":     items,
		"count":       len(items),
		"ttl_seconds": int(cache.TTL().Seconds()),
	}))
}

// HandleClearCache handles DELETE /api/currency/cache
func (h *Handler) HandleClearCache(w http.ResponseWriter, r *http.Request) {
	cache := h.converter.Cache()
	removed := cache.Len()
	cache.Clear()

	h.log.Info().Int("removed", removed).Msg("Exchange rate cache cleared")
	h.writeJSON(w, http.StatusOK, envelope(map[string]interface{}{
		"removed": removed,
	}))
}

func quoteData(quote currency.RateQuote) map[string]interface{} {
	data := map[string]interface{}{
		"from_currency": quote.Pair.From,
		"to_currency":   quote.Pair.To,
		"rate":          quote.Rate,
		"source":        quote.Source,
		"degraded":      quote.Degraded(),
	}
	if !quote.FetchedAt.IsZero() {
		data["fetched_at"] = quote.FetchedAt.Format(time.RFC3339)
	}
	return data
}

func envelope(data interface{}) map[string]interface{} {
	return map[string]interface{}{
		"data": data,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}
}

// writeError maps invalid input to 400 and everything else to 500
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var invalid *domain.InvalidInputError
	if errors.As(err, &invalid) {
		status = http.StatusBadRequest
	} else {
		h.log.Error().Err(err).Msg("Currency request failed")
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
