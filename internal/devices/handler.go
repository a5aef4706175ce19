package devices

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agreet/backend/internal/auth"
	"github.com/agreet/backend/internal/models"
	"github.com/agreet/backend/pkg/response"
)

// UpdateTokenRequest is the body for PUT /devices/token. A null token
// removes the registration.
type UpdateTokenRequest struct {
	Token *string `json:"token"`
}

// TokenStore persists a user's device token.
type TokenStore interface {
	SetToken(ctx context.Context, userID uuid.UUID, token *string) error
}

// Handler handles device registration HTTP endpoints.
type Handler struct {
	store  TokenStore
	logger *zap.Logger
}

// NewHandler creates a devices handler.
func NewHandler(store TokenStore, logger *zap.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

// UpdateToken handles PUT /devices/token.
func (h *Handler) UpdateToken(c *gin.Context) {
	var req UpdateTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	userID := c.MustGet(auth.ContextUserID).(uuid.UUID)

	if err := h.store.SetToken(c.Request.Context(), userID, req.Token); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			response.NotFound(c, "user not found")
			return
		}
		h.logger.Error("update device token failed", zap.Error(err))
		response.Internal(c, "failed to update token")
		return
	}
	response.OK(c, gin.H{"registered": req.Token != nil})
}
