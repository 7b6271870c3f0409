package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.WebhookEvent("checkout.session.completed", OutcomeProcessed)
	m.WebhookEvent("checkout.session.completed", OutcomeProcessed)
	m.CheckoutSession(OutcomeCreated)
	m.Email("registration_confirmation", OutcomeFailed)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.webhookEvents.WithLabelValues("checkout.session.completed", OutcomeProcessed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.checkoutSessions.WithLabelValues(OutcomeCreated)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.emails.WithLabelValues("registration_confirmation", OutcomeFailed)))

	_, err = New(reg)
	assert.Error(t, err)
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.WebhookEvent("x", OutcomeIgnored)
		m.CheckoutSession(OutcomeError)
		m.Email("x", OutcomeSent)
	})
}
