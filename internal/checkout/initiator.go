package checkout

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ai-bootcamp/backend/internal/events"
	"github.com/ai-bootcamp/backend/internal/metrics"
	"github.com/ai-bootcamp/backend/internal/models"
)

var (
	// ErrInvalidRequest is returned for malformed checkout requests.
	ErrInvalidRequest = errors.New("invalid checkout request")
	// ErrAlreadyPaid is returned when the registration has already been paid.
	ErrAlreadyPaid = errors.New("registration already paid")
	// ErrGateway wraps failures of the payment provider.
	ErrGateway = errors.New("payment provider error")
)

// Correlation metadata keys carried on the checkout session and its payment intent.
const (
	MetaRegistrationID = "registrationId"
	MetaEventID        = "eventId"
	MetaUserID         = "userId"
)

const defaultProductName = "AI Bootcamp registration"

// SessionParams describes a hosted checkout session with a single line item.
type SessionParams struct {
	RegistrationID string
	CustomerEmail  string
	ProductName    string
	Currency       string
	UnitAmount     int64 // minor units
	SuccessURL     string
	CancelURL      string
	Metadata       map[string]string
}

// Session is a created hosted checkout session.
type Session struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Gateway creates hosted checkout sessions with the payment provider.
type Gateway interface {
	CreateSession(ctx context.Context, p SessionParams) (*Session, error)
}

// Store is the registration persistence the initiator needs.
type Store interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Registration, error)
	SetCheckoutSession(ctx context.Context, id uuid.UUID, sessionID string) error
}

// EventLookup loads events.
type EventLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error)
}

// Request asks for a checkout session for a registration.
type Request struct {
	EventID        uuid.UUID
	RegistrationID uuid.UUID
	Amount         float64 // major units
	Email          string
	UserID         *uuid.UUID
}

// Config holds initiator settings.
type Config struct {
	BaseURL  string
	Currency string
}

// Initiator creates checkout sessions and correlates them with registrations.
type Initiator struct {
	gateway Gateway
	store   Store
	events  EventLookup
	metrics *metrics.Metrics
	cfg     Config
	logger  *zap.Logger
}

// NewInitiator creates a checkout initiator.
func NewInitiator(gateway Gateway, store Store, events EventLookup, m *metrics.Metrics, cfg Config, logger *zap.Logger) *Initiator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Initiator{
		gateway: gateway,
		store:   store,
		events:  events,
		metrics: m,
		cfg:     cfg,
		logger:  logger.Named("checkout"),
	}
}

// ToMinorUnits converts a major-unit amount to minor units, rounding half away from zero.
func ToMinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// Create opens a hosted checkout session for req and stores its id on the registration.
// A gateway failure leaves the registration untouched. A failure to store the session id is
// logged only, since the webhook can still correlate through client_reference_id.
func (i *Initiator) Create(ctx context.Context, req Request) (*Session, error) {
	s, err := i.create(ctx, req)
	switch {
	case err == nil:
		i.metrics.CheckoutSession(metrics.OutcomeCreated)
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, ErrAlreadyPaid):
		i.metrics.CheckoutSession(metrics.OutcomeIgnored)
	default:
		i.metrics.CheckoutSession(metrics.OutcomeError)
	}
	return s, err
}

func (i *Initiator) create(ctx context.Context, req Request) (*Session, error) {
	if req.EventID == uuid.Nil || req.RegistrationID == uuid.Nil {
		return nil, fmt.Errorf("%w: eventId and registrationId are required", ErrInvalidRequest)
	}
	if math.IsNaN(req.Amount) || math.IsInf(req.Amount, 0) || req.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	}
	unitAmount := ToMinorUnits(req.Amount)
	if unitAmount <= 0 {
		return nil, fmt.Errorf("%w: amount below the smallest currency unit", ErrInvalidRequest)
	}

	reg, err := i.store.GetByID(ctx, req.RegistrationID)
	if err != nil {
		return nil, fmt.Errorf("load registration: %w", err)
	}
	if reg.EventID != req.EventID {
		return nil, fmt.Errorf("%w: registration belongs to another event", ErrInvalidRequest)
	}
	if reg.IsPaid() {
		return nil, ErrAlreadyPaid
	}

	productName, currency := defaultProductName, i.cfg.Currency
	ev, err := i.events.GetByID(ctx, req.EventID)
	switch {
	case err == nil:
		if ev.PriceCents > 0 && ev.PriceCents != unitAmount {
			return nil, fmt.Errorf("%w: amount does not match event price", ErrInvalidRequest)
		}
		productName = ev.Title
		if ev.Currency != "" {
			currency = ev.Currency
		}
	case errors.Is(err, events.ErrNotFound):
		i.logger.Warn("event not found, using default product name", zap.String("event_id", req.EventID.String()))
	default:
		return nil, fmt.Errorf("load event: %w", err)
	}

	email := strings.TrimSpace(req.Email)
	if email == "" {
		email = reg.Email
	}
	meta := map[string]string{
		MetaRegistrationID: req.RegistrationID.String(),
		MetaEventID:        req.EventID.String(),
	}
	userID := req.UserID
	if userID == nil {
		userID = reg.AuthUserID
	}
	if userID != nil {
		meta[MetaUserID] = userID.String()
	}

	session, err := i.gateway.CreateSession(ctx, SessionParams{
		RegistrationID: req.RegistrationID.String(),
		CustomerEmail:  email,
		ProductName:    productName,
		Currency:       currency,
		UnitAmount:     unitAmount,
		SuccessURL:     fmt.Sprintf("%s/registration/success?registration=%s&session_id={CHECKOUT_SESSION_ID}", i.cfg.BaseURL, req.RegistrationID),
		CancelURL:      fmt.Sprintf("%s/registration/cancelled?registration=%s", i.cfg.BaseURL, req.RegistrationID),
		Metadata:       meta,
	})
	if err != nil {
		i.logger.Error("create checkout session failed", zap.Error(err), zap.String("registration_id", req.RegistrationID.String()))
		return nil, fmt.Errorf("%w: create checkout session: %w", ErrGateway, err)
	}

	if err := i.store.SetCheckoutSession(ctx, req.RegistrationID, session.ID); err != nil {
		i.logger.Warn("store checkout session id failed",
			zap.Error(err),
			zap.String("registration_id", req.RegistrationID.String()),
			zap.String("checkout_session_id", session.ID),
		)
	}
	i.logger.Info("checkout session created",
		zap.String("registration_id", req.RegistrationID.String()),
		zap.String("checkout_session_id", session.ID),
	)
	return session, nil
}
