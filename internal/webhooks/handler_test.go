package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"

	"github.com/ai-bootcamp/backend/internal/metrics"
	"github.com/ai-bootcamp/backend/internal/models"
	"github.com/ai-bootcamp/backend/internal/registrations/regtest"
)

const testSecret = "whsec_test_secret"

func init() {
	gin.SetMode(gin.TestMode)
}

type memoryDeduper struct {
	seen     map[string]bool
	claimErr error
}

func (d *memoryDeduper) Claim(_ context.Context, id, _ string) (bool, error) {
	if d.claimErr != nil {
		return false, d.claimErr
	}
	if d.seen[id] {
		return false, nil
	}
	d.seen[id] = true
	return true, nil
}

func (d *memoryDeduper) Complete(context.Context, string) error { return nil }

func (d *memoryDeduper) Release(_ context.Context, id string) error {
	delete(d.seen, id)
	return nil
}

type handlerFunc func(ctx context.Context, ev stripe.Event) (string, error)

func (f handlerFunc) Handle(ctx context.Context, ev stripe.Event) (string, error) { return f(ctx, ev) }

func payload(t *testing.T, id string, typ stripe.EventType, object map[string]any) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"id":          id,
		"object":      "event",
		"type":        typ,
		"api_version": stripe.APIVersion,
		"created":     time.Now().Unix(),
		"data":        map[string]any{"object": object},
	})
	require.NoError(t, err)
	return body
}

func sign(body []byte, secret string) string {
	return webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   body,
		Secret:    secret,
		Timestamp: time.Now(),
	}).Header
}

func deliver(h *Handler, body []byte, signature string) *httptest.ResponseRecorder {
	r := gin.New()
	r.POST("/webhooks/stripe", h.Stripe)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader(body))
	if signature != "" {
		req.Header.Set(SignatureHeader, signature)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func newMetrics(t *testing.T) (*metrics.Metrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)
	return m, reg
}

// webhookCount returns the webhook counter value for a label pair.
func webhookCount(t *testing.T, reg *prometheus.Registry, eventType, outcome string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != "bootcamp_webhook_events_total" {
			continue
		}
		for _, m := range f.GetMetric() {
			labels := map[string]string{}
			for _, l := range m.GetLabel() {
				labels[l.GetName()] = l.GetValue()
			}
			if labels["type"] == eventType && labels["outcome"] == outcome {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestStripeWebhookRejectsBadSignature(t *testing.T) {
	store := regtest.New()
	reg := pending(store)
	m, promReg := newMetrics(t)
	h := NewHandler(NewVerifier(testSecret), NewReconciler(store, nil, nil, Config{}, nil), nil, m, nil)

	body := payload(t, "evt_forged", stripe.EventTypeCheckoutSessionCompleted, map[string]any{
		"id": "cs_1", "client_reference_id": reg.ID.String(), "payment_status": "paid", "amount_total": 19900,
	})

	cases := map[string]string{
		"missing":      "",
		"wrong secret": sign(body, "whsec_other"),
		"garbage":      "t=1,v1=deadbeef",
	}
	for name, sig := range cases {
		w := deliver(h, body, sig)
		assert.Equal(t, http.StatusBadRequest, w.Code, name)
	}

	// A valid signature over a different body does not authenticate this one.
	w := deliver(h, body, sign(append([]byte(" "), body...), testSecret))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assert.Equal(t, models.PaymentStatusPending, store.Get(reg.ID).PaymentStatus)
	assert.Empty(t, store.Writes)
	assert.Equal(t, 4.0, webhookCount(t, promReg, "unknown", metrics.OutcomeInvalid))
}

func TestStripeWebhookMarksPaid(t *testing.T) {
	store := regtest.New()
	reg := pending(store)
	n := &recordingNotifier{}
	m, promReg := newMetrics(t)
	h := NewHandler(NewVerifier(testSecret), NewReconciler(store, nil, n, Config{}, nil), &memoryDeduper{seen: map[string]bool{}}, m, nil)

	body := payload(t, "evt_1", stripe.EventTypeCheckoutSessionCompleted, map[string]any{
		"id":                  "cs_123",
		"object":              "checkout.session",
		"client_reference_id": reg.ID.String(),
		"payment_intent":      "pi_123",
		"payment_status":      "paid",
		"amount_total":        19900,
	})
	w := deliver(h, body, sign(body, testSecret))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"received":true}`, w.Body.String())

	got := store.Get(reg.ID)
	assert.Equal(t, models.PaymentStatusPaid, got.PaymentStatus)
	assert.Equal(t, 199.0, *got.AmountPaid)
	assert.Equal(t, "pi_123", *got.PaymentIntentID)
	assert.Len(t, n.notified, 1)

	// Same event id again: acknowledged without touching the store.
	w = deliver(h, body, sign(body, testSecret))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, store.Writes["MarkPaid"])
	assert.Len(t, n.notified, 1)

	assert.Equal(t, 1.0, webhookCount(t, promReg, string(stripe.EventTypeCheckoutSessionCompleted), metrics.OutcomeProcessed))
	assert.Equal(t, 1.0, webhookCount(t, promReg, string(stripe.EventTypeCheckoutSessionCompleted), metrics.OutcomeDuplicate))
}

func TestStripeWebhookDistinctEventsSameSession(t *testing.T) {
	store := regtest.New()
	fallback := uuid.New()
	h := NewHandler(NewVerifier(testSecret), NewReconciler(store, nil, nil, Config{FallbackEventID: fallback}, nil),
		&memoryDeduper{seen: map[string]bool{}}, nil, nil)

	object := map[string]any{
		"id": "cs_bb", "payment_status": "paid", "amount_total": 19900, "customer_email": "x@example.com",
	}
	for _, id := range []string{"evt_a", "evt_b"} {
		body := payload(t, id, stripe.EventTypeCheckoutSessionCompleted, object)
		w := deliver(h, body, sign(body, testSecret))
		require.Equal(t, http.StatusOK, w.Code)
	}
	assert.Len(t, store.All(), 1)
}

func TestStripeWebhookUnhandledType(t *testing.T) {
	store := regtest.New()
	h := NewHandler(NewVerifier(testSecret), NewReconciler(store, nil, nil, Config{}, nil), nil, nil, nil)

	body := payload(t, "evt_cus", "customer.created", map[string]any{"id": "cus_1", "object": "customer"})
	w := deliver(h, body, sign(body, testSecret))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, store.Writes)
}

func TestStripeWebhookProcessingErrorReleasesClaim(t *testing.T) {
	dedup := &memoryDeduper{seen: map[string]bool{}}
	calls := 0
	events := handlerFunc(func(context.Context, stripe.Event) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("database unavailable")
		}
		return OutcomeProcessed, nil
	})
	h := NewHandler(NewVerifier(testSecret), events, dedup, nil, nil)

	body := payload(t, "evt_retry", stripe.EventTypePaymentIntentSucceeded, map[string]any{"id": "pi_1"})
	w := deliver(h, body, sign(body, testSecret))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.False(t, dedup.seen["evt_retry"])

	w = deliver(h, body, sign(body, testSecret))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, calls)
}

func TestStripeWebhookMalformedEvent(t *testing.T) {
	events := handlerFunc(func(context.Context, stripe.Event) (string, error) {
		return "", ErrMalformedEvent
	})
	h := NewHandler(NewVerifier(testSecret), events, nil, nil, nil)

	body := payload(t, "evt_bad", stripe.EventTypeCheckoutSessionCompleted, map[string]any{"id": "cs_1"})
	w := deliver(h, body, sign(body, testSecret))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStripeWebhookDedupUnavailable(t *testing.T) {
	calls := 0
	events := handlerFunc(func(context.Context, stripe.Event) (string, error) {
		calls++
		return OutcomeProcessed, nil
	})
	h := NewHandler(NewVerifier(testSecret), events, &memoryDeduper{claimErr: errors.New("redis down")}, nil, nil)

	body := payload(t, "evt_1", stripe.EventTypePaymentIntentSucceeded, map[string]any{"id": "pi_1"})
	w := deliver(h, body, sign(body, testSecret))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, calls)
}

func TestStripeWebhookPayloadTooLarge(t *testing.T) {
	h := NewHandler(NewVerifier(testSecret), handlerFunc(func(context.Context, stripe.Event) (string, error) {
		t.Fatal("handler must not run")
		return "", nil
	}), nil, nil, nil)

	body := bytes.Repeat([]byte("a"), MaxBodyBytes+1)
	w := deliver(h, body, sign(body, testSecret))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}
