package events

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ai-bootcamp/backend/internal/models"
	"github.com/ai-bootcamp/backend/pkg/response"
	"github.com/ai-bootcamp/backend/pkg/storage"
)

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

// Store is the event persistence used by the handler.
type Store interface {
	Create(ctx context.Context, e *models.Event) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error)
	List(ctx context.Context, upcomingAfter *time.Time) ([]*models.Event, error)
	SetImageKey(ctx context.Context, id uuid.UUID, key string) (string, error)
}

// ImageStore is the object storage holding event images.
type ImageStore interface {
	GeneratePresignedUploadURL(ctx context.Context, key, contentType string) (string, error)
	PresignExpire() time.Duration
	PublicURL(key string) string
	Upload(ctx context.Context, key, contentType string, body io.Reader) (string, error)
	Delete(ctx context.Context, key string) error
}

// CreateRequest is the body for POST /events.
type CreateRequest struct {
	Title       string  `json:"title" binding:"required"`
	Description string  `json:"description"`
	StartsAt    string  `json:"starts_at" binding:"required"`
	EndsAt      *string `json:"ends_at"`
	PriceCents  int64   `json:"price_cents" binding:"min=0"`
	Currency    string  `json:"currency"`
	MeetingLink *string `json:"meeting_link"`
}

// UploadURLRequest is the body for POST /events/:id/image/upload-url.
type UploadURLRequest struct {
	Filename string `json:"filename" binding:"required"`
}

// EventView is an event with its resolved image URL.
type EventView struct {
	*models.Event
	ImageURL string `json:"image_url,omitempty"`
}

// Handler handles event HTTP endpoints.
type Handler struct {
	repo     Store
	images   ImageStore // nil when object storage is not configured
	currency string
	logger   *zap.Logger
}

// NewHandler creates an event handler. images may be nil.
func NewHandler(repo Store, images ImageStore, currency string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, images: images, currency: currency, logger: logger}
}

func (h *Handler) view(e *models.Event) EventView {
	v := EventView{Event: e}
	if h.images != nil && e.ImageKey != nil && *e.ImageKey != "" {
		v.ImageURL = h.images.PublicURL(*e.ImageKey)
	}
	return v
}

// Create handles POST /events (admin only).
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	startsAt, err := parseTime(req.StartsAt)
	if err != nil {
		response.BadRequest(c, "invalid starts_at")
		return
	}
	var endsAt *time.Time
	if req.EndsAt != nil {
		t, err := parseTime(*req.EndsAt)
		if err != nil || t.Before(startsAt) {
			response.BadRequest(c, "invalid ends_at")
			return
		}
		endsAt = &t
	}
	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = h.currency
	}
	e := &models.Event{
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		StartsAt:    startsAt,
		EndsAt:      endsAt,
		PriceCents:  req.PriceCents,
		Currency:    currency,
		MeetingLink: req.MeetingLink,
	}
	if err := h.repo.Create(c.Request.Context(), e); err != nil {
		h.logger.Error("create event failed", zap.Error(err))
		response.Internal(c, "failed to create event")
		return
	}
	response.Created(c, h.view(e))
}

// GetByID handles GET /events/:id.
func (h *Handler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	e, err := h.repo.GetByID(c.Request.Context(), id)
	if errors.Is(err, ErrNotFound) {
		response.NotFound(c, "event not found")
		return
	}
	if err != nil {
		h.logger.Error("get event failed", zap.Error(err), zap.String("event_id", id.String()))
		response.Internal(c, "failed to load event")
		return
	}
	response.OK(c, h.view(e))
}

// List handles GET /events. ?upcoming=true restricts to events that have not started.
func (h *Handler) List(c *gin.Context) {
	var after *time.Time
	if c.Query("upcoming") == "true" {
		now := time.Now()
		after = &now
	}
	list, err := h.repo.List(c.Request.Context(), after)
	if err != nil {
		h.logger.Error("list events failed", zap.Error(err))
		response.Internal(c, "failed to list events")
		return
	}
	out := make([]EventView, 0, len(list))
	for _, e := range list {
		out = append(out, h.view(e))
	}
	response.OK(c, out)
}

// ImageUploadURL handles POST /events/:id/image/upload-url (admin only). It reserves a new
// object key on the event and returns a pre-signed PUT URL for it.
func (h *Handler) ImageUploadURL(c *gin.Context) {
	if h.images == nil {
		response.ServiceUnavailable(c, "image storage not configured")
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	var req UploadURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "filename required")
		return
	}
	contentType := storage.ImageContentType(req.Filename)
	if contentType == "" {
		response.BadRequest(c, "unsupported image type")
		return
	}
	key := storage.ImageKey(id.String(), req.Filename, time.Now())
	url, err := h.images.GeneratePresignedUploadURL(c.Request.Context(), key, contentType)
	if err != nil {
		h.logger.Error("presign image upload failed", zap.Error(err), zap.String("event_id", id.String()))
		response.BadGateway(c, "failed to create upload url")
		return
	}
	if !h.replaceImage(c, id, key) {
		return
	}
	response.OK(c, gin.H{
		"upload_url":   url,
		"key":          key,
		"content_type": contentType,
		"public_url":   h.images.PublicURL(key),
		"expires_in":   int(h.images.PresignExpire().Seconds()),
	})
}

// UploadImage handles POST /events/:id/image (admin only, multipart field "file").
func (h *Handler) UploadImage(c *gin.Context) {
	if h.images == nil {
		response.ServiceUnavailable(c, "image storage not configured")
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		response.BadRequest(c, "file required")
		return
	}
	if fh.Size > storage.MaxImageFileSize {
		response.Fail(c, http.StatusRequestEntityTooLarge, "image too large")
		return
	}
	contentType := storage.ImageContentType(fh.Filename)
	if contentType == "" {
		response.BadRequest(c, "unsupported image type")
		return
	}
	f, err := fh.Open()
	if err != nil {
		response.BadRequest(c, "unreadable file")
		return
	}
	defer f.Close()

	key := storage.ImageKey(id.String(), fh.Filename, time.Now())
	url, err := h.images.Upload(c.Request.Context(), key, contentType, f)
	if err != nil {
		h.logger.Error("upload image failed", zap.Error(err), zap.String("event_id", id.String()))
		response.BadGateway(c, "failed to upload image")
		return
	}
	if !h.replaceImage(c, id, key) {
		return
	}
	response.Created(c, gin.H{"key": key, "public_url": url})
}

// replaceImage points the event at key and removes the previous object. It writes the
// error response and returns false on failure.
func (h *Handler) replaceImage(c *gin.Context, id uuid.UUID, key string) bool {
	previous, err := h.repo.SetImageKey(c.Request.Context(), id, key)
	if errors.Is(err, ErrNotFound) {
		response.NotFound(c, "event not found")
		return false
	}
	if err != nil {
		h.logger.Error("set image key failed", zap.Error(err), zap.String("event_id", id.String()))
		response.Internal(c, "failed to update event")
		return false
	}
	if previous != "" && previous != key {
		if err := h.images.Delete(c.Request.Context(), previous); err != nil {
			h.logger.Warn("delete previous image failed", zap.Error(err), zap.String("key", previous))
		}
	}
	return true
}

var _ ImageStore = (*storage.S3)(nil)
