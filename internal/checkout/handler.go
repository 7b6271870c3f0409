package checkout

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ai-bootcamp/backend/internal/auth"
	"github.com/ai-bootcamp/backend/internal/registrations"
	"github.com/ai-bootcamp/backend/pkg/response"
)

// Creator creates checkout sessions.
type Creator interface {
	Create(ctx context.Context, req Request) (*Session, error)
}

// CreateRequest is the body for POST /checkout/sessions.
type CreateRequest struct {
	EventID        string  `json:"eventId" binding:"required,uuid"`
	RegistrationID string  `json:"registrationId" binding:"required,uuid"`
	Amount         float64 `json:"amount" binding:"required,gt=0"`
	Email          string  `json:"email" binding:"omitempty,email"`
}

// Handler handles checkout HTTP endpoints.
type Handler struct {
	initiator Creator
}

// NewHandler creates a checkout handler.
func NewHandler(initiator Creator) *Handler {
	return &Handler{initiator: initiator}
}

// CreateSession handles POST /checkout/sessions and returns the hosted checkout URL.
func (h *Handler) CreateSession(c *gin.Context) {
	var body CreateRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	req := Request{
		EventID:        uuid.MustParse(body.EventID),
		RegistrationID: uuid.MustParse(body.RegistrationID),
		Amount:         body.Amount,
		Email:          body.Email,
	}
	if id, ok := auth.IdentityFromContext(c); ok {
		req.UserID = &id.UserID
	}

	session, err := h.initiator.Create(c.Request.Context(), req)
	switch {
	case err == nil:
		response.OK(c, session)
	case errors.Is(err, ErrInvalidRequest):
		response.BadRequest(c, err.Error())
	case errors.Is(err, ErrAlreadyPaid):
		response.Conflict(c, err.Error())
	case errors.Is(err, registrations.ErrNotFound):
		response.NotFound(c, "registration not found")
	case errors.Is(err, ErrGateway):
		response.BadGateway(c, "failed to create checkout session")
	default:
		response.Internal(c, "failed to create checkout session")
	}
}
