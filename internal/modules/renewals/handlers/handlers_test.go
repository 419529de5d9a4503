package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRouter() *chi.Mux {
	handler := NewHandler(zerolog.New(nil).Level(zerolog.Disabled))
	handler.now = func() time.Time { return time.Date(2026, 5, 1, 15, 0, 0, 0, time.UTC) }

	router := chi.NewRouter()
	router.Route("/api", handler.RegisterRoutes)
	return router
}

func post(t *testing.T, router http.Handler, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	req := httptest.NewRequest("POST", "/api/renewals/upcoming", bytes.NewReader([]byte(body)))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var response map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Contains(t, response, "data")
	assert.Contains(t, response, "metadata")
	return w, response
}

func TestHandleUpcoming(t *testing.T) {
	router := setupRouter()

	w, response := post(t, router, `{
		"window_days": 7,
		"subscriptions": [
			{"id": "a", "name": "Later", "amount": 10, "currency": "usd", "billing_period": "monthly", "renewal_date": "2025-01-20"},
			{"id": "b", "name": "Soon", "amount": 10, "currency": "eur", "billing_period": "monthly", "renewal_date": "2025-01-04"},
			{"id": "c", "name": "Week", "amount": 99, "currency": "USD", "billing_period": "yearly", "renewal_date": "2020-05-08"},
			{"id": "d", "name": "Off", "amount": 10, "currency": "USD", "billing_period": "monthly", "renewal_date": "2025-01-02", "is_active": false}
		]
	}`)
	assert.Equal(t, http.StatusOK, w.Code)

	data := response["data"].(map[string]interface{})
	assert.Equal(t, "2026-05-01", data["today"])
	assert.Equal(t, 2.0, data["count"])

	metadata := response["metadata"].(map[string]interface{})
	assert.Equal(t, "2026-05-01T15:00:00Z", metadata["timestamp"])

	items := data["renewals"].([]interface{})
	first := items[0].(map[string]interface{})
	assert.Equal(t, "b", first["id"])
	assert.Equal(t, "EUR", first["currency"])
	assert.Equal(t, "2026-05-04", first["next_renewal"])
	assert.Equal(t, 3.0, first["days_until"])

	second := items[1].(map[string]interface{})
	assert.Equal(t, "c", second["id"])
	assert.Equal(t, 7.0, second["days_until"])
}

func TestHandleUpcoming_ExplicitToday(t *testing.T) {
	router := setupRouter()

	w, response := post(t, router, `{
		"today": "2027-01-10",
		"subscriptions": [
			{"id": "leap", "name": "Leap", "amount": 10, "currency": "USD", "billing_period": "yearly", "renewal_date": "2024-02-29"}
		],
		"window_days": 60
	}`)
	assert.Equal(t, http.StatusOK, w.Code)

	items := response["data"].(map[string]interface{})["renewals"].([]interface{})
	require.Len(t, items, 1)
	assert.Equal(t, "2027-02-28", items[0].(map[string]interface{})["next_renewal"])
}

func TestHandleUpcoming_Validation(t *testing.T) {
	router := setupRouter()

	w, _ := post(t, router, `{"window_days": -1, "subscriptions": []}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = post(t, router, `{"today": "tomorrow", "subscriptions": []}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = post(t, router, `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
