package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bootcamp"

// Outcome label values.
const (
	OutcomeProcessed = "processed"
	OutcomeDuplicate = "duplicate"
	OutcomeIgnored   = "ignored"
	OutcomeNotFound  = "not_found"
	OutcomeInvalid   = "invalid_signature"
	OutcomeError     = "error"
	OutcomeCreated   = "created"
	OutcomeSent      = "sent"
	OutcomeFailed    = "failed"
)

// Metrics holds the counters of the registration and payment flow. A nil *Metrics
// records nothing, so components can be built without it in tests.
type Metrics struct {
	webhookEvents    *prometheus.CounterVec
	checkoutSessions *prometheus.CounterVec
	emails           *prometheus.CounterVec
}

// New creates the counters and registers them on reg (the default registerer when nil).
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_events_total",
			Help:      "Payment provider webhook deliveries by event type and outcome.",
		}, []string{"type", "outcome"}),
		checkoutSessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_sessions_total",
			Help:      "Hosted checkout session creation attempts by outcome.",
		}, []string{"outcome"}),
		emails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "emails_total",
			Help:      "Notification emails by type and outcome.",
		}, []string{"type", "outcome"}),
	}
	for _, c := range []prometheus.Collector{m.webhookEvents, m.checkoutSessions, m.emails} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register metric: %w", err)
		}
	}
	return m, nil
}

// WebhookEvent counts one webhook delivery.
func (m *Metrics) WebhookEvent(eventType, outcome string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(eventType, outcome).Inc()
}

// CheckoutSession counts one checkout session attempt.
func (m *Metrics) CheckoutSession(outcome string) {
	if m == nil {
		return
	}
	m.checkoutSessions.WithLabelValues(outcome).Inc()
}

// Email counts one email send attempt.
func (m *Metrics) Email(emailType, outcome string) {
	if m == nil {
		return
	}
	m.emails.WithLabelValues(emailType, outcome).Inc()
}

// Handler serves the metrics of g in the Prometheus exposition format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
