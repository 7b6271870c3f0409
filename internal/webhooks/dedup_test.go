package webhooks

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v81"
)

func newRedisDeduper(t *testing.T) (*RedisDeduper, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisDeduper(client, time.Hour), mr
}

func TestRedisDeduper(t *testing.T) {
	d, mr := newRedisDeduper(t)
	ctx := context.Background()
	key := "webhook:event:evt_1"

	first, err := d.Claim(ctx, "evt_1", "checkout.session.completed")
	require.NoError(t, err)
	assert.True(t, first)
	assert.Equal(t, DefaultProcessingTTL, mr.TTL(key))

	again, err := d.Claim(ctx, "evt_1", "checkout.session.completed")
	require.NoError(t, err)
	assert.False(t, again)

	require.NoError(t, d.Complete(ctx, "evt_1"))
	assert.Equal(t, time.Hour, mr.TTL(key))

	require.NoError(t, d.Release(ctx, "evt_1"))
	first, err = d.Claim(ctx, "evt_1", "checkout.session.completed")
	require.NoError(t, err)
	assert.True(t, first)

	require.NoError(t, d.Complete(ctx, "evt_1"))
	mr.FastForward(2 * time.Hour)
	first, err = d.Claim(ctx, "evt_1", "checkout.session.completed")
	require.NoError(t, err)
	assert.True(t, first)
}

func TestRedisDeduperAbandonedClaimExpires(t *testing.T) {
	d, mr := newRedisDeduper(t)
	ctx := context.Background()

	// A claim whose handler never finished, e.g. the process died mid-event.
	first, err := d.Claim(ctx, "evt_crash", "payment_intent.succeeded")
	require.NoError(t, err)
	require.True(t, first)

	mr.FastForward(DefaultProcessingTTL + time.Second)
	first, err = d.Claim(ctx, "evt_crash", "payment_intent.succeeded")
	require.NoError(t, err)
	assert.True(t, first)
}

func TestRedisDeduperUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	_, err := NewRedisDeduper(client, time.Hour).Claim(context.Background(), "evt_1", "x")
	assert.Error(t, err)
}

func TestStripeWebhookRetryAfterCanceledRequest(t *testing.T) {
	d, mr := newRedisDeduper(t)
	calls := 0
	var cancelRequest context.CancelFunc
	events := handlerFunc(func(ctx context.Context, _ stripe.Event) (string, error) {
		calls++
		if calls == 1 {
			// The provider hangs up while the database write is still running.
			cancelRequest()
			return "", ctx.Err()
		}
		return OutcomeProcessed, nil
	})
	h := NewHandler(NewVerifier(testSecret), events, d, nil, nil)
	r := gin.New()
	r.POST("/webhooks/stripe", h.Stripe)

	body := payload(t, "evt_slow", stripe.EventTypePaymentIntentSucceeded, map[string]any{"id": "pi_1"})
	send := func(ctx context.Context) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader(body)).WithContext(ctx)
		req.Header.Set(SignatureHeader, sign(body, testSecret))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cancelRequest = cancel
	w := send(ctx)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.False(t, mr.Exists("webhook:event:evt_slow"))

	w = send(context.Background())
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "duplicate")
	assert.Equal(t, 2, calls)
	assert.Equal(t, time.Hour, mr.TTL("webhook:event:evt_slow"))

	w = send(context.Background())
	assert.Contains(t, w.Body.String(), `"duplicate":true`)
	assert.Equal(t, 2, calls)
}

func TestStripeWebhookHandlerErrorReleasesRedisClaim(t *testing.T) {
	d, mr := newRedisDeduper(t)
	h := NewHandler(NewVerifier(testSecret), handlerFunc(func(context.Context, stripe.Event) (string, error) {
		return "", errors.New("database unavailable")
	}), d, nil, nil)

	body := payload(t, "evt_db", stripe.EventTypePaymentIntentSucceeded, map[string]any{"id": "pi_1"})
	w := deliver(h, body, sign(body, testSecret))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.False(t, mr.Exists("webhook:event:evt_db"))
}
