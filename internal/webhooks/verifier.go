package webhooks

import (
	"errors"
	"time"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"
)

// ErrInvalidSignature is returned when a payload does not carry a valid provider signature.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// Verifier checks the Stripe-Signature header (HMAC-SHA256 over "timestamp.payload") and
// decodes the event.
type Verifier struct {
	secret    string
	tolerance time.Duration
}

// NewVerifier creates a verifier for the endpoint's signing secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: secret, tolerance: webhook.DefaultTolerance}
}

// Verify authenticates payload and returns the decoded event. The event's API version is not
// checked; only the fields the reconciler reads are decoded.
func (v *Verifier) Verify(payload []byte, signatureHeader string) (stripe.Event, error) {
	if signatureHeader == "" {
		return stripe.Event{}, ErrInvalidSignature
	}
	ev, err := webhook.ConstructEventWithOptions(payload, signatureHeader, v.secret, webhook.ConstructEventOptions{
		Tolerance:                v.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return stripe.Event{}, errors.Join(ErrInvalidSignature, err)
	}
	return ev, nil
}
