package webhooks

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v81"
	"go.uber.org/zap"

	"github.com/ai-bootcamp/backend/internal/metrics"
	"github.com/ai-bootcamp/backend/pkg/response"
)

// MaxBodyBytes bounds the webhook payload read into memory.
const MaxBodyBytes = 64 << 10

// SignatureHeader carries the provider's payload signature.
const SignatureHeader = "Stripe-Signature"

// EventHandler applies a verified event.
type EventHandler interface {
	Handle(ctx context.Context, ev stripe.Event) (string, error)
}

// Handler receives payment provider webhooks.
type Handler struct {
	verifier *Verifier
	events   EventHandler
	dedup    Deduper
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewHandler creates a webhook handler. dedup defaults to NopDeduper.
func NewHandler(verifier *Verifier, events EventHandler, dedup Deduper, m *metrics.Metrics, logger *zap.Logger) *Handler {
	if dedup == nil {
		dedup = NopDeduper{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{verifier: verifier, events: events, dedup: dedup, metrics: m, logger: logger.Named("webhooks")}
}

// Stripe handles POST /webhooks/stripe. The raw body is verified before anything is decoded.
// A 2xx tells the provider to stop redelivering; handler errors answer 500 so it retries.
func (h *Handler) Stripe(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, MaxBodyBytes+1))
	if err != nil {
		response.BadRequest(c, "failed to read body")
		return
	}
	if len(payload) > MaxBodyBytes {
		response.Fail(c, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}

	ev, err := h.verifier.Verify(payload, c.GetHeader(SignatureHeader))
	if err != nil {
		h.logger.Warn("webhook signature verification failed", zap.Error(err))
		h.metrics.WebhookEvent("unknown", metrics.OutcomeInvalid)
		response.BadRequest(c, "invalid signature")
		return
	}

	ctx := c.Request.Context()
	eventType := string(ev.Type)
	log := h.logger.With(zap.String("event_id", ev.ID), zap.String("event_type", eventType))

	if ev.ID != "" {
		first, err := h.dedup.Claim(ctx, ev.ID, eventType)
		if err != nil {
			// State transitions are idempotent on their own, so a dedup outage only costs work.
			log.Warn("webhook dedup unavailable", zap.Error(err))
			first = true
		}
		if !first {
			log.Debug("duplicate webhook delivery")
			h.metrics.WebhookEvent(eventType, metrics.OutcomeDuplicate)
			c.JSON(http.StatusOK, gin.H{"received": true, "duplicate": true})
			return
		}
	}

	outcome, err := h.events.Handle(ctx, ev)
	// The claim must be settled even when the provider hung up mid-request.
	settleCtx := context.WithoutCancel(ctx)
	if err != nil {
		h.release(settleCtx, log, ev.ID)
		if errors.Is(err, ErrMalformedEvent) {
			log.Warn("malformed webhook event", zap.Error(err))
			h.metrics.WebhookEvent(eventType, metrics.OutcomeInvalid)
			response.BadRequest(c, "malformed event")
			return
		}
		log.Error("webhook processing failed", zap.Error(err))
		h.metrics.WebhookEvent(eventType, metrics.OutcomeError)
		response.Internal(c, "webhook processing failed")
		return
	}
	h.complete(settleCtx, log, ev.ID)
	log.Info("webhook processed", zap.String("outcome", outcome))
	h.metrics.WebhookEvent(eventType, outcome)
	c.JSON(http.StatusOK, gin.H{"received": true})
}

func (h *Handler) complete(ctx context.Context, log *zap.Logger, id string) {
	if id == "" {
		return
	}
	if err := h.dedup.Complete(ctx, id); err != nil {
		log.Warn("complete webhook claim failed", zap.Error(err))
	}
}

func (h *Handler) release(ctx context.Context, log *zap.Logger, id string) {
	if id == "" {
		return
	}
	if err := h.dedup.Release(ctx, id); err != nil {
		log.Warn("release webhook claim failed", zap.Error(err))
	}
}
