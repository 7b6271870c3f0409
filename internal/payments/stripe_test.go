package payments

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v81"

	"github.com/ai-bootcamp/backend/internal/checkout"
)

func testBackends(t *testing.T, handler http.HandlerFunc) *stripe.Backends {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(srv.URL),
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	})
	return &stripe.Backends{API: backend, Connect: backend, Uploads: backend}
}

func TestCreateSession(t *testing.T) {
	var form url.Values
	backends := testBackends(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		require.NoError(t, r.ParseForm())
		form = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cs_test_abc","object":"checkout.session","url":"https://checkout.stripe.com/c/pay/cs_test_abc"}`))
	})
	g := NewStripeGateway("sk_test_123", backends, nil)

	s, err := g.CreateSession(context.Background(), checkout.SessionParams{
		RegistrationID: "reg-42",
		CustomerEmail:  "ada@example.com",
		ProductName:    "AI Bootcamp",
		Currency:       "usd",
		UnitAmount:     19900,
		SuccessURL:     "https://bootcamp.example.com/ok",
		CancelURL:      "https://bootcamp.example.com/cancel",
		Metadata:       map[string]string{"registrationId": "reg-42", "eventId": "ev-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_test_abc", s.ID)
	assert.Equal(t, "https://checkout.stripe.com/c/pay/cs_test_abc", s.URL)

	assert.Equal(t, "payment", form.Get("mode"))
	assert.Equal(t, "reg-42", form.Get("client_reference_id"))
	assert.Equal(t, "ada@example.com", form.Get("customer_email"))
	assert.Equal(t, "19900", form.Get("line_items[0][price_data][unit_amount]"))
	assert.Equal(t, "AI Bootcamp", form.Get("line_items[0][price_data][product_data][name]"))
	assert.Equal(t, "1", form.Get("line_items[0][quantity]"))
	assert.Equal(t, "reg-42", form.Get("metadata[registrationId]"))
	assert.Equal(t, "ev-1", form.Get("payment_intent_data[metadata][eventId]"))
}

func TestCreateSessionError(t *testing.T) {
	backends := testBackends(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","code":"amount_too_small","message":"Amount must be at least 50 cents"}}`))
	})
	g := NewStripeGateway("sk_test_123", backends, nil)

	_, err := g.CreateSession(context.Background(), checkout.SessionParams{Currency: "usd", UnitAmount: 1, Metadata: map[string]string{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Amount must be at least 50 cents")
}
