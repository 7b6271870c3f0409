package emaillogs

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ai-bootcamp/backend/internal/models"
	"github.com/ai-bootcamp/backend/internal/registrations"
	"github.com/ai-bootcamp/backend/pkg/queue"
	"github.com/ai-bootcamp/backend/pkg/response"
)

// Lister reads email logs.
type Lister interface {
	ListByEvent(ctx context.Context, eventID uuid.UUID) ([]*models.EmailLog, error)
}

// RegistrationLookup loads registrations.
type RegistrationLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Registration, error)
}

// Enqueuer queues email jobs for the worker.
type Enqueuer interface {
	EnqueueEmail(ctx context.Context, payload queue.EmailPayload) error
}

// Handler handles email log HTTP endpoints.
type Handler struct {
	repo   Lister
	regs   RegistrationLookup
	jobs   Enqueuer
	logger *zap.Logger
}

// NewHandler creates an email logs handler.
func NewHandler(repo Lister, regs RegistrationLookup, jobs Enqueuer, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, regs: regs, jobs: jobs, logger: logger}
}

// ListByEvent handles GET /events/:id/emails (admin only).
func (h *Handler) ListByEvent(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	logs, err := h.repo.ListByEvent(c.Request.Context(), eventID)
	if err != nil {
		h.logger.Error("list email logs failed", zap.Error(err), zap.String("event_id", eventID.String()))
		response.Internal(c, "failed to load email logs")
		return
	}
	if logs == nil {
		logs = []*models.EmailLog{}
	}
	response.OK(c, logs)
}

// ResendRequest is the body for POST /events/:id/emails/resend.
type ResendRequest struct {
	RegistrationID string `json:"registration_id" binding:"required,uuid"`
	EmailType      string `json:"email_type"`
}

// Resend handles POST /events/:id/emails/resend (admin only). It queues a confirmation for a
// paid registration or a payment reminder for an unpaid one.
func (h *Handler) Resend(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	var body ResendRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "registration_id required")
		return
	}
	regID := uuid.MustParse(body.RegistrationID)
	reg, err := h.regs.GetByID(c.Request.Context(), regID)
	if errors.Is(err, registrations.ErrNotFound) || (err == nil && reg.EventID != eventID) {
		response.NotFound(c, "registration not found")
		return
	}
	if err != nil {
		h.logger.Error("load registration failed", zap.Error(err), zap.String("registration_id", regID.String()))
		response.Internal(c, "failed to load registration")
		return
	}

	emailType := body.EmailType
	if emailType == "" {
		emailType = models.EmailTypeRegistrationConfirmation
		if !reg.IsPaid() {
			emailType = models.EmailTypePaymentReminder
		}
	}
	switch emailType {
	case models.EmailTypeRegistrationConfirmation:
		if !reg.IsPaid() {
			response.Conflict(c, "registration is not paid")
			return
		}
	case models.EmailTypePaymentReminder:
		if reg.IsPaid() {
			response.Conflict(c, "registration is already paid")
			return
		}
	default:
		response.BadRequest(c, "unsupported email_type")
		return
	}

	payload := queue.EmailPayload{
		EmailType:      emailType,
		EventID:        eventID,
		RegistrationID: reg.ID,
		RecipientEmail: reg.Email,
		Force:          true,
	}
	if err := h.jobs.EnqueueEmail(c.Request.Context(), payload); err != nil {
		h.logger.Error("enqueue resend failed", zap.Error(err), zap.String("registration_id", reg.ID.String()))
		response.ServiceUnavailable(c, "failed to queue email")
		return
	}
	response.Accepted(c, gin.H{"message": "resend queued", "email_type": emailType})
}
