package webhooks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v81"
	"go.uber.org/zap"

	"github.com/ai-bootcamp/backend/internal/auth"
	"github.com/ai-bootcamp/backend/internal/checkout"
	"github.com/ai-bootcamp/backend/internal/metrics"
	"github.com/ai-bootcamp/backend/internal/models"
	"github.com/ai-bootcamp/backend/internal/registrations"
)

// ErrMalformedEvent is returned when a verified event's object cannot be decoded.
var ErrMalformedEvent = errors.New("malformed webhook event")

// Outcome values reported by Handle.
const (
	OutcomeProcessed = metrics.OutcomeProcessed
	OutcomeDuplicate = metrics.OutcomeDuplicate
	OutcomeIgnored   = metrics.OutcomeIgnored
	OutcomeNotFound  = metrics.OutcomeNotFound
)

// Store is the registration persistence the reconciler writes through.
type Store interface {
	GetByPaymentIntentID(ctx context.Context, paymentIntentID string) (*models.Registration, error)
	SetCheckoutSession(ctx context.Context, id uuid.UUID, sessionID string) error
	MarkPaid(ctx context.Context, id uuid.UUID, u registrations.PaidUpdate) (*models.Registration, error)
	MarkFailed(ctx context.Context, id uuid.UUID, u registrations.FailedUpdate) (*models.Registration, error)
	InsertPaid(ctx context.Context, reg *models.Registration) (bool, error)
}

// AccountFinder resolves accounts by email.
type AccountFinder interface {
	FindByEmail(ctx context.Context, email string) (*models.Account, error)
}

// Config holds reconciler settings.
type Config struct {
	// FallbackEventID is used for sessions that name neither a registration nor an event.
	FallbackEventID uuid.UUID
}

// Reconciler applies payment provider events to registrations.
type Reconciler struct {
	store    Store
	accounts AccountFinder
	notifier Notifier
	cfg      Config
	logger   *zap.Logger
	now      func() time.Time
}

// NewReconciler creates a reconciler. accounts and notifier may be nil.
func NewReconciler(store Store, accounts AccountFinder, notifier Notifier, cfg Config, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		store:    store,
		accounts: accounts,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger.Named("reconciler"),
		now:      time.Now,
	}
}

// Handle applies ev and reports its outcome. An error means the event should be redelivered.
func (r *Reconciler) Handle(ctx context.Context, ev stripe.Event) (string, error) {
	log := r.logger.With(zap.String("event_id", ev.ID), zap.String("event_type", string(ev.Type)))
	if ev.Data == nil {
		return OutcomeIgnored, fmt.Errorf("%w: missing data", ErrMalformedEvent)
	}
	switch ev.Type {
	case stripe.EventTypeCheckoutSessionCompleted, stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		var s stripe.CheckoutSession
		if err := json.Unmarshal(ev.Data.Raw, &s); err != nil {
			return OutcomeIgnored, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		return r.sessionPaid(ctx, log, &s)
	case stripe.EventTypeCheckoutSessionAsyncPaymentFailed:
		var s stripe.CheckoutSession
		if err := json.Unmarshal(ev.Data.Raw, &s); err != nil {
			return OutcomeIgnored, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		return r.sessionFailed(ctx, log, &s)
	case stripe.EventTypePaymentIntentSucceeded:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(ev.Data.Raw, &pi); err != nil {
			return OutcomeIgnored, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		return r.intentSucceeded(ctx, log, &pi)
	case stripe.EventTypePaymentIntentPaymentFailed:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(ev.Data.Raw, &pi); err != nil {
			return OutcomeIgnored, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		return r.intentFailed(ctx, log, &pi)
	default:
		log.Debug("unhandled event type")
		return OutcomeIgnored, nil
	}
}

func (r *Reconciler) sessionPaid(ctx context.Context, log *zap.Logger, s *stripe.CheckoutSession) (string, error) {
	log = log.With(zap.String("checkout_session_id", s.ID))
	regID, hasRef := registrationRef(s.ClientReferenceID, s.Metadata)

	if s.PaymentStatus == stripe.CheckoutSessionPaymentStatusUnpaid {
		// Delayed payment methods complete the session before the money arrives; the
		// async_payment_* events settle it.
		if hasRef {
			if err := r.store.SetCheckoutSession(ctx, regID, s.ID); err != nil && !errors.Is(err, registrations.ErrNotFound) {
				return "", fmt.Errorf("record checkout session: %w", err)
			}
		}
		log.Info("checkout session completed, payment pending")
		return OutcomeIgnored, nil
	}

	update := registrations.PaidUpdate{
		CheckoutSessionID: s.ID,
		PaymentIntentID:   sessionPaymentRef(s),
		AmountPaid:        fromMinorUnits(s.AmountTotal),
		PaidAt:            r.now().UTC(),
	}
	if !hasRef {
		if s.ClientReferenceID != "" {
			log.Warn("client reference is not a registration id", zap.String("client_reference_id", s.ClientReferenceID))
			return OutcomeNotFound, nil
		}
		return r.insertFallback(ctx, log, s, update)
	}
	return r.markPaid(ctx, log.With(zap.String("registration_id", regID.String())), regID, update)
}

// insertFallback creates a paid registration for a session that was not started from a
// registration, such as an embedded buy button.
func (r *Reconciler) insertFallback(ctx context.Context, log *zap.Logger, s *stripe.CheckoutSession, u registrations.PaidUpdate) (string, error) {
	email, name := s.CustomerEmail, ""
	if s.CustomerDetails != nil {
		if s.CustomerDetails.Email != "" {
			email = s.CustomerDetails.Email
		}
		name = s.CustomerDetails.Name
	}
	email = strings.TrimSpace(email)
	if email == "" {
		log.Error("checkout session without registration or customer email")
		return OutcomeIgnored, nil
	}
	eventID := r.cfg.FallbackEventID
	if id, err := uuid.Parse(s.Metadata[checkout.MetaEventID]); err == nil {
		eventID = id
	}
	if eventID == uuid.Nil {
		log.Error("checkout session without event id and no fallback event configured")
		return OutcomeIgnored, nil
	}

	reg := &models.Registration{
		EventID:           eventID,
		Name:              name,
		Email:             email,
		CheckoutSessionID: &u.CheckoutSessionID,
		PaymentIntentID:   &u.PaymentIntentID,
		PaymentStatus:     models.PaymentStatusPaid,
		AmountPaid:        &u.AmountPaid,
		PaidAt:            &u.PaidAt,
	}
	if r.accounts != nil {
		account, err := r.accounts.FindByEmail(ctx, email)
		switch {
		case err == nil:
			reg.AuthUserID = &account.ID
		case !errors.Is(err, auth.ErrAccountNotFound):
			log.Warn("account lookup failed, inserting unlinked registration", zap.Error(err))
		}
	}

	created, err := r.store.InsertPaid(ctx, reg)
	if err != nil {
		return "", fmt.Errorf("insert paid registration: %w", err)
	}
	if !created {
		log.Info("registration for checkout session already exists", zap.String("registration_id", reg.ID.String()))
		return OutcomeDuplicate, nil
	}
	log.Info("paid registration created from checkout session",
		zap.String("registration_id", reg.ID.String()),
		zap.String("event_id", eventID.String()),
	)
	r.notify(ctx, log, reg)
	return OutcomeProcessed, nil
}

func (r *Reconciler) sessionFailed(ctx context.Context, log *zap.Logger, s *stripe.CheckoutSession) (string, error) {
	regID, ok := registrationRef(s.ClientReferenceID, s.Metadata)
	if !ok {
		log.Warn("async payment failed for session without registration", zap.String("checkout_session_id", s.ID))
		return OutcomeNotFound, nil
	}
	piID, msg := "", "asynchronous payment failed"
	if s.PaymentIntent != nil {
		piID = s.PaymentIntent.ID
		msg = paymentErrorMessage(s.PaymentIntent, msg)
	}
	return r.markFailed(ctx, log.With(zap.String("registration_id", regID.String())), regID, registrations.FailedUpdate{
		PaymentIntentID: piID,
		Error:           msg,
	})
}

func (r *Reconciler) intentSucceeded(ctx context.Context, log *zap.Logger, pi *stripe.PaymentIntent) (string, error) {
	log = log.With(zap.String("payment_intent_id", pi.ID))
	regID, ok, err := r.intentRegistration(ctx, pi)
	if err != nil {
		return "", err
	}
	if !ok {
		log.Warn("payment intent without registration metadata")
		return OutcomeNotFound, nil
	}
	amount := pi.AmountReceived
	if amount == 0 {
		amount = pi.Amount
	}
	return r.markPaid(ctx, log.With(zap.String("registration_id", regID.String())), regID, registrations.PaidUpdate{
		PaymentIntentID: pi.ID,
		AmountPaid:      fromMinorUnits(amount),
		PaidAt:          r.now().UTC(),
	})
}

func (r *Reconciler) intentFailed(ctx context.Context, log *zap.Logger, pi *stripe.PaymentIntent) (string, error) {
	log = log.With(zap.String("payment_intent_id", pi.ID))
	regID, ok, err := r.intentRegistration(ctx, pi)
	if err != nil {
		return "", err
	}
	if !ok {
		log.Warn("payment intent without registration metadata")
		return OutcomeNotFound, nil
	}
	return r.markFailed(ctx, log.With(zap.String("registration_id", regID.String())), regID, registrations.FailedUpdate{
		PaymentIntentID: pi.ID,
		Error:           paymentErrorMessage(pi, "payment failed"),
	})
}

// paymentErrorMessage returns the provider's message for the last failed attempt of pi.
func paymentErrorMessage(pi *stripe.PaymentIntent, fallback string) string {
	if pi.LastPaymentError != nil && pi.LastPaymentError.Msg != "" {
		return pi.LastPaymentError.Msg
	}
	return fallback
}

// intentRegistration finds the registration of a payment intent from its metadata, falling
// back to a previously stored payment intent id.
func (r *Reconciler) intentRegistration(ctx context.Context, pi *stripe.PaymentIntent) (uuid.UUID, bool, error) {
	if id, ok := registrationRef("", pi.Metadata); ok {
		return id, true, nil
	}
	if pi.ID == "" {
		return uuid.Nil, false, nil
	}
	reg, err := r.store.GetByPaymentIntentID(ctx, pi.ID)
	if errors.Is(err, registrations.ErrNotFound) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("find registration by payment intent: %w", err)
	}
	return reg.ID, true, nil
}

func (r *Reconciler) markPaid(ctx context.Context, log *zap.Logger, id uuid.UUID, u registrations.PaidUpdate) (string, error) {
	reg, err := r.store.MarkPaid(ctx, id, u)
	switch {
	case err == nil:
	case errors.Is(err, registrations.ErrNotFound):
		log.Warn("no registration to mark paid")
		return OutcomeNotFound, nil
	case errors.Is(err, registrations.ErrAlreadyApplied):
		log.Debug("registration already paid")
		return OutcomeDuplicate, nil
	case errors.Is(err, registrations.ErrInvalidTransition):
		log.Warn("registration cannot be marked paid")
		return OutcomeIgnored, nil
	default:
		return "", fmt.Errorf("mark paid: %w", err)
	}
	log.Info("registration paid", zap.Float64("amount_paid", u.AmountPaid))
	r.notify(ctx, log, reg)
	return OutcomeProcessed, nil
}

func (r *Reconciler) markFailed(ctx context.Context, log *zap.Logger, id uuid.UUID, u registrations.FailedUpdate) (string, error) {
	_, err := r.store.MarkFailed(ctx, id, u)
	switch {
	case err == nil:
		log.Info("registration payment failed", zap.String("payment_error", u.Error))
		return OutcomeProcessed, nil
	case errors.Is(err, registrations.ErrNotFound):
		log.Warn("no registration to mark failed")
		return OutcomeNotFound, nil
	case errors.Is(err, registrations.ErrAlreadyApplied):
		return OutcomeDuplicate, nil
	case errors.Is(err, registrations.ErrInvalidTransition):
		log.Info("payment failure after successful payment ignored")
		return OutcomeIgnored, nil
	default:
		return "", fmt.Errorf("mark failed: %w", err)
	}
}

func (r *Reconciler) notify(ctx context.Context, log *zap.Logger, reg *models.Registration) {
	if r.notifier == nil || reg == nil || reg.EmailSent {
		return
	}
	if err := r.notifier.Notify(ctx, reg); err != nil {
		log.Error("queue confirmation email failed", zap.Error(err))
	}
}

// registrationRef extracts the registration id from a client reference or correlation metadata.
func registrationRef(clientReferenceID string, metadata map[string]string) (uuid.UUID, bool) {
	for _, v := range []string{clientReferenceID, metadata[checkout.MetaRegistrationID], metadata["registration_id"]} {
		if v == "" {
			continue
		}
		if id, err := uuid.Parse(v); err == nil {
			return id, true
		}
	}
	return uuid.Nil, false
}

// sessionPaymentRef returns the payment intent of a session, or the session id for sessions
// that have none (for example fully discounted ones), so paid rows always carry a reference.
func sessionPaymentRef(s *stripe.CheckoutSession) string {
	if s.PaymentIntent != nil && s.PaymentIntent.ID != "" {
		return s.PaymentIntent.ID
	}
	return s.ID
}

func fromMinorUnits(v int64) float64 {
	return float64(v) / 100
}
