package registrations

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ai-bootcamp/backend/internal/auth"
	"github.com/ai-bootcamp/backend/internal/events"
	"github.com/ai-bootcamp/backend/internal/models"
	"github.com/ai-bootcamp/backend/internal/notifications"
	"github.com/ai-bootcamp/backend/pkg/response"
)

// Store is the registration persistence used by the HTTP handler.
type Store interface {
	Create(ctx context.Context, reg *models.Registration) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Registration, error)
	GetByEventAndEmail(ctx context.Context, eventID uuid.UUID, email string) (*models.Registration, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Registration, error)
	LinkByEmail(ctx context.Context, userID uuid.UUID, email string) (int64, error)
}

// EventLookup loads events.
type EventLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error)
}

// ConfirmationSender sends the registration confirmation email.
type ConfirmationSender interface {
	SendRegistrationConfirmation(ctx context.Context, req notifications.ConfirmationRequest) notifications.Result
}

// RegisterRequest is the body for POST /events/:id/register.
type RegisterRequest struct {
	Name  string `json:"name" binding:"required"`
	Email string `json:"email" binding:"required,email"`
}

// StatusView is the public view of a registration shown on the checkout return page.
type StatusView struct {
	ID            uuid.UUID            `json:"id"`
	EventID       uuid.UUID            `json:"event_id"`
	PaymentStatus models.PaymentStatus `json:"payment_status"`
	PaymentError  *string              `json:"payment_error,omitempty"`
	AmountPaid    *float64             `json:"amount_paid,omitempty"`
	EmailSent     bool                 `json:"email_sent"`
	PaidAt        *time.Time           `json:"paid_at,omitempty"`
}

func statusView(r *models.Registration) StatusView {
	return StatusView{
		ID:            r.ID,
		EventID:       r.EventID,
		PaymentStatus: r.PaymentStatus,
		PaymentError:  r.PaymentError,
		AmountPaid:    r.AmountPaid,
		EmailSent:     r.EmailSent,
		PaidAt:        r.PaidAt,
	}
}

// Handler handles registration HTTP endpoints.
type Handler struct {
	repo   Store
	events EventLookup
	mailer ConfirmationSender
	logger *zap.Logger
}

// NewHandler creates a registrations handler.
func NewHandler(repo Store, events EventLookup, mailer ConfirmationSender, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, events: events, mailer: mailer, logger: logger}
}

// Register handles POST /events/:id/register. Creates a pending registration, or returns the
// caller's existing unpaid one for the same event so a retried checkout reuses it.
func (h *Handler) Register(c *gin.Context) {
	ctx := c.Request.Context()
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if _, err := h.events.GetByID(ctx, eventID); err != nil {
		if errors.Is(err, events.ErrNotFound) {
			response.NotFound(c, "event not found")
			return
		}
		h.logger.Error("load event failed", zap.Error(err), zap.String("event_id", eventID.String()))
		response.Internal(c, "failed to register")
		return
	}
	email := strings.TrimSpace(req.Email)

	existing, err := h.repo.GetByEventAndEmail(ctx, eventID, email)
	switch {
	case err == nil && existing.IsPaid():
		response.Conflict(c, "already registered for this event")
		return
	case err == nil:
		response.OK(c, existing)
		return
	case !errors.Is(err, ErrNotFound):
		h.logger.Error("lookup registration failed", zap.Error(err), zap.String("event_id", eventID.String()))
		response.Internal(c, "failed to register")
		return
	}

	reg := &models.Registration{
		EventID: eventID,
		Name:    strings.TrimSpace(req.Name),
		Email:   email,
	}
	if id, ok := auth.IdentityFromContext(c); ok {
		reg.AuthUserID = &id.UserID
	}
	if err := h.repo.Create(ctx, reg); err != nil {
		h.logger.Error("create registration failed", zap.Error(err), zap.String("event_id", eventID.String()))
		response.Internal(c, "failed to register")
		return
	}
	h.logger.Info("registration created",
		zap.String("registration_id", reg.ID.String()),
		zap.String("event_id", eventID.String()),
	)
	response.Created(c, reg)
}

// Get handles GET /registrations/:id.
func (h *Handler) Get(c *gin.Context) {
	reg, ok := h.load(c)
	if !ok {
		return
	}
	response.OK(c, statusView(reg))
}

// MyRegistrations handles GET /me/registrations (JWT). Registrations made with the caller's
// email before they signed in are linked to the account first.
func (h *Handler) MyRegistrations(c *gin.Context) {
	id, ok := auth.IdentityFromContext(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}
	ctx := c.Request.Context()
	if id.Email != "" {
		n, err := h.repo.LinkByEmail(ctx, id.UserID, id.Email)
		if err != nil {
			h.logger.Warn("link registrations failed", zap.Error(err), zap.String("user_id", id.UserID.String()))
		} else if n > 0 {
			h.logger.Info("linked registrations", zap.Int64("count", n), zap.String("user_id", id.UserID.String()))
		}
	}
	list, err := h.repo.ListByUser(ctx, id.UserID)
	if err != nil {
		h.logger.Error("list registrations failed", zap.Error(err), zap.String("user_id", id.UserID.String()))
		response.Internal(c, "failed to list registrations")
		return
	}
	if list == nil {
		list = []*models.Registration{}
	}
	response.OK(c, list)
}

// ConfirmationEmail handles POST /registrations/:id/confirmation-email, the synchronous trigger
// used by the checkout success page. It only sends for paid registrations that have not been
// emailed yet.
func (h *Handler) ConfirmationEmail(c *gin.Context) {
	reg, ok := h.load(c)
	if !ok {
		return
	}
	if !reg.IsPaid() {
		response.Conflict(c, "registration is not paid")
		return
	}
	if reg.EmailSent {
		response.OK(c, notifications.Result{Success: true, Message: "confirmation email already sent"})
		return
	}
	ev, err := h.events.GetByID(c.Request.Context(), reg.EventID)
	if err != nil && !errors.Is(err, events.ErrNotFound) {
		h.logger.Error("load event failed", zap.Error(err), zap.String("event_id", reg.EventID.String()))
		response.Internal(c, "failed to load event")
		return
	}
	res := h.mailer.SendRegistrationConfirmation(c.Request.Context(), notifications.NewConfirmationRequest(reg, ev))
	if !res.Success {
		c.JSON(http.StatusBadGateway, response.Body{Success: false, Data: res, Error: res.Message})
		return
	}
	response.OK(c, res)
}

func (h *Handler) load(c *gin.Context) (*models.Registration, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid registration id")
		return nil, false
	}
	reg, err := h.repo.GetByID(c.Request.Context(), id)
	if errors.Is(err, ErrNotFound) {
		response.NotFound(c, "registration not found")
		return nil, false
	}
	if err != nil {
		h.logger.Error("load registration failed", zap.Error(err), zap.String("registration_id", id.String()))
		response.Internal(c, "failed to load registration")
		return nil, false
	}
	return reg, true
}
