// Package payments adapts the Stripe API to the checkout flow.
package payments

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
	"go.uber.org/zap"

	"github.com/ai-bootcamp/backend/internal/checkout"
)

// StripeGateway creates hosted checkout sessions with Stripe.
type StripeGateway struct {
	api    *client.API
	logger *zap.Logger
}

// NewStripeGateway creates a gateway for secretKey. backends may be nil to use Stripe's API.
func NewStripeGateway(secretKey string, backends *stripe.Backends, logger *zap.Logger) *StripeGateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StripeGateway{api: client.New(secretKey, backends), logger: logger.Named("stripe")}
}

// CreateSession creates a payment-mode checkout session with a single line item. The
// correlation metadata is set on both the session and its payment intent, so that
// payment_intent.* events can be matched as well.
func (g *StripeGateway) CreateSession(ctx context.Context, p checkout.SessionParams) (*checkout.Session, error) {
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(p.Currency),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(p.ProductName),
				},
				UnitAmount: stripe.Int64(p.UnitAmount),
			},
			Quantity: stripe.Int64(1),
		}},
		SuccessURL:        stripe.String(p.SuccessURL),
		CancelURL:         stripe.String(p.CancelURL),
		ClientReferenceID: stripe.String(p.RegistrationID),
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: p.Metadata,
		},
	}
	if p.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(p.CustomerEmail)
	}
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx

	s, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		if serr, ok := err.(*stripe.Error); ok {
			g.logger.Warn("stripe rejected checkout session",
				zap.String("code", string(serr.Code)),
				zap.String("request_id", serr.RequestID),
				zap.Int("status", serr.HTTPStatusCode),
			)
		}
		return nil, fmt.Errorf("stripe checkout session: %w", err)
	}
	return &checkout.Session{ID: s.ID, URL: s.URL}, nil
}

var _ checkout.Gateway = (*StripeGateway)(nil)
