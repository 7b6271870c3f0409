package analytics

import (
	"context"
	"errors"
	"math"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ai-bootcamp/backend/internal/events"
	"github.com/ai-bootcamp/backend/internal/models"
	"github.com/ai-bootcamp/backend/pkg/response"
)

// Counter aggregates registrations of an event.
type Counter interface {
	CountByEvent(ctx context.Context, eventID uuid.UUID) (Counts, error)
}

// EventLookup loads events.
type EventLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error)
}

// Handler handles GET /events/:id/analytics.
type Handler struct {
	counts Counter
	events EventLookup
}

// NewHandler creates an analytics handler.
func NewHandler(counts Counter, evs EventLookup) *Handler {
	return &Handler{counts: counts, events: evs}
}

// SummaryResponse is the JSON shape of an event's registration summary.
type SummaryResponse struct {
	TotalRegistrations int      `json:"total_registrations"`
	Pending            int      `json:"pending"`
	Paid               int      `json:"paid"`
	Failed             int      `json:"failed"`
	ConfirmationsSent  int      `json:"confirmations_sent"`
	RevenueCents       int64    `json:"revenue_cents"`
	Currency           string   `json:"currency"`
	ConversionRate     *float64 `json:"conversion_rate,omitempty"`
}

// GetByEvent handles GET /events/:id/analytics (admin only).
func (h *Handler) GetByEvent(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	ctx := c.Request.Context()

	ev, err := h.events.GetByID(ctx, id)
	if errors.Is(err, events.ErrNotFound) {
		response.NotFound(c, "event not found")
		return
	}
	if err != nil {
		response.Internal(c, "failed to load event")
		return
	}

	counts, err := h.counts.CountByEvent(ctx, id)
	if err != nil {
		response.Internal(c, "failed to load registration counts")
		return
	}

	out := SummaryResponse{
		TotalRegistrations: counts.Total,
		Pending:            counts.Pending,
		Paid:               counts.Paid,
		Failed:             counts.Failed,
		ConfirmationsSent:  counts.EmailsSent,
		RevenueCents:       int64(math.Round(counts.RevenuePaid * 100)),
		Currency:           ev.Currency,
	}
	if counts.Total > 0 {
		conv := float64(counts.Paid) / float64(counts.Total)
		out.ConversionRate = &conv
	}
	response.OK(c, out)
}
