package auth

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agreet/backend/internal/models"
	"github.com/agreet/backend/pkg/response"
	"github.com/agreet/backend/pkg/utils"
)

// DeviceSignInRequest is the body for POST /auth/device. The device UUID is
// a stable opaque identifier generated by the app installation.
type DeviceSignInRequest struct {
	DeviceUUID  string `json:"device_uuid" binding:"required,min=8"`
	DisplayName string `json:"display_name"`
}

// RegisterRequest is the body for POST /auth/register (account upgrade).
type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

// LoginRequest is the body for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// TokenResponse is the auth response with JWT.
type TokenResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// ContextUserID is the gin context key under which the JWT middleware
// stores the authenticated user's id.
const ContextUserID = "user_id"

// ContextUserRole is the gin context key for the authenticated user's role.
const ContextUserRole = "user_role"

// UserStore is the persistence surface the auth handler needs.
type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetOrCreateByDevice(ctx context.Context, deviceUUID, displayName string) (*models.User, error)
	UpgradeAccount(ctx context.Context, userID uuid.UUID, email, passwordHash string) (*models.User, error)
	UpdateDisplayName(ctx context.Context, userID uuid.UUID, name string) error
}

// UpdateProfileRequest is the body for PATCH /auth/me.
type UpdateProfileRequest struct {
	DisplayName string `json:"display_name" binding:"required,min=1,max=64"`
}

// Handler handles auth HTTP endpoints.
type Handler struct {
	store  UserStore
	jwt    *JWTService
	logger *zap.Logger
}

// NewHandler creates an auth handler.
func NewHandler(store UserStore, jwt *JWTService, logger *zap.Logger) *Handler {
	return &Handler{store: store, jwt: jwt, logger: logger}
}

// DeviceSignIn handles POST /auth/device. Idempotent: repeated sign-ins from
// the same device return the same user.
func (h *Handler) DeviceSignIn(c *gin.Context) {
	var req DeviceSignInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	name := req.DisplayName
	if name == "" {
		name = "Guest"
	}
	user, err := h.store.GetOrCreateByDevice(c.Request.Context(), req.DeviceUUID, name)
	if err != nil {
		h.logger.Error("device sign-in failed", zap.Error(err))
		response.Internal(c, "failed to sign in")
		return
	}

	token, err := h.jwt.Generate(user.ID, string(user.Role))
	if err != nil {
		response.Internal(c, "failed to issue token")
		return
	}
	response.OK(c, TokenResponse{Token: token, User: user})
}

// Register handles POST /auth/register: attaches credentials to the calling
// anonymous user so the account survives app reinstalls.
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	userID := c.MustGet(ContextUserID).(uuid.UUID)

	if _, err := h.store.GetByEmail(c.Request.Context(), req.Email); err == nil {
		response.Conflict(c, "email already registered")
		return
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		response.Internal(c, "failed to hash password")
		return
	}

	user, err := h.store.UpgradeAccount(c.Request.Context(), userID, req.Email, hash)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			response.Conflict(c, "account already upgraded")
			return
		}
		if errors.Is(err, models.ErrEmailTaken) {
			response.Conflict(c, "email already registered")
			return
		}
		h.logger.Error("account upgrade failed", zap.Error(err))
		response.Internal(c, "failed to register")
		return
	}

	token, err := h.jwt.Generate(user.ID, string(user.Role))
	if err != nil {
		response.Internal(c, "failed to issue token")
		return
	}
	response.OK(c, TokenResponse{Token: token, User: user})
}

// Login handles POST /auth/login for upgraded accounts.
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	user, err := h.store.GetByEmail(c.Request.Context(), req.Email)
	if err != nil || user.PasswordHash == nil || !utils.CheckPassword(req.Password, *user.PasswordHash) {
		response.Unauthorized(c, "invalid email or password")
		return
	}

	token, err := h.jwt.Generate(user.ID, string(user.Role))
	if err != nil {
		response.Internal(c, "failed to issue token")
		return
	}
	response.OK(c, TokenResponse{Token: token, User: user})
}

// Me handles GET /me.
func (h *Handler) Me(c *gin.Context) {
	userID := c.MustGet(ContextUserID).(uuid.UUID)
	user, err := h.store.GetByID(c.Request.Context(), userID)
	if err != nil {
		response.NotFound(c, "user not found")
		return
	}
	response.OK(c, user)
}

// UpdateProfile handles PATCH /auth/me.
func (h *Handler) UpdateProfile(c *gin.Context) {
	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	userID := c.MustGet(ContextUserID).(uuid.UUID)

	if err := h.store.UpdateDisplayName(c.Request.Context(), userID, req.DisplayName); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			response.NotFound(c, "user not found")
			return
		}
		h.logger.Error("update profile failed", zap.Error(err))
		response.Internal(c, "failed to update profile")
		return
	}
	user, err := h.store.GetByID(c.Request.Context(), userID)
	if err != nil {
		response.Internal(c, "failed to load profile")
		return
	}
	response.OK(c, user)
}
