package auth

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ai-bootcamp/backend/pkg/response"
)

// MeRequest is the optional body for PUT /me.
type MeRequest struct {
	FullName string `json:"full_name"`
}

// Handler handles account HTTP endpoints.
type Handler struct {
	repo   *AccountRepository
	logger *zap.Logger
}

// NewHandler creates an auth handler.
func NewHandler(repo *AccountRepository, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, logger: logger}
}

// Me handles GET /me. Mirrors the caller into accounts so that webhook
// fallbacks can resolve them by email, and returns the account.
func (h *Handler) Me(c *gin.Context) {
	h.sync(c, "")
}

// UpdateMe handles PUT /me.
func (h *Handler) UpdateMe(c *gin.Context) {
	var req MeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	h.sync(c, req.FullName)
}

func (h *Handler) sync(c *gin.Context, fullName string) {
	id, ok := IdentityFromContext(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}
	account, err := h.repo.Upsert(c.Request.Context(), id, fullName)
	if err != nil {
		h.logger.Error("sync account failed", zap.Error(err), zap.String("user_id", id.UserID.String()))
		response.Internal(c, "failed to load account")
		return
	}
	response.OK(c, account)
}
