package sessions

import (
	"context"
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agreet/backend/config"
	"github.com/agreet/backend/internal/auth"
	"github.com/agreet/backend/internal/models"
	"github.com/agreet/backend/pkg/response"
)

// CreateRequest is the body for POST /sessions.
type CreateRequest struct {
	CategoryID uuid.UUID `json:"category_id" binding:"required"`
	QuorumN    int       `json:"quorum_n" binding:"required"`
}

// JoinRequest is the body for POST /sessions/join.
type JoinRequest struct {
	InviteCode string `json:"invite_code" binding:"required"`
}

// CloseResponse reports the close outcome. Committed is false when the
// session left the open state before this request's conditional update.
type CloseResponse struct {
	Committed bool            `json:"committed"`
	Session   *models.Session `json:"session"`
}

// Store is the persistence surface of the session directory and state machine.
type Store interface {
	Create(ctx context.Context, creatorID, categoryID uuid.UUID, quorumN int) (*models.Session, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error)
	GetByInviteCode(ctx context.Context, code string) (*models.Session, error)
	IsParticipant(ctx context.Context, sessionID, userID uuid.UUID) (bool, error)
	ParticipantCount(ctx context.Context, sessionID uuid.UUID) (int, error)
	AddParticipant(ctx context.Context, sessionID, userID uuid.UUID) error
	ListByUser(ctx context.Context, userID uuid.UUID, statuses []models.SessionStatus) ([]models.Session, error)
	TryClose(ctx context.Context, sessionID uuid.UUID) (bool, error)
}

// Events receives session change events for fan-out to connected clients.
type Events interface {
	PublishSessionEvent(sessionID uuid.UUID, event string, payload interface{})
}

// Handler handles session directory HTTP endpoints.
type Handler struct {
	store  Store
	policy config.SessionConfig
	events Events
	logger *zap.Logger
}

// NewHandler creates a sessions handler.
func NewHandler(store Store, policy config.SessionConfig, events Events, logger *zap.Logger) *Handler {
	return &Handler{store: store, policy: policy, events: events, logger: logger}
}

// Create handles POST /sessions. The creator is auto-joined.
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if req.QuorumN < h.policy.MinQuorum || req.QuorumN > h.policy.MaxQuorum {
		response.BadRequest(c, fmt.Sprintf("quorum_n must be between %d and %d", h.policy.MinQuorum, h.policy.MaxQuorum))
		return
	}
	userID := c.MustGet(auth.ContextUserID).(uuid.UUID)

	session, err := h.store.Create(c.Request.Context(), userID, req.CategoryID, req.QuorumN)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			response.NotFound(c, "category not found")
			return
		}
		h.logger.Error("create session failed", zap.Error(err))
		response.Internal(c, "failed to create session")
		return
	}
	response.Created(c, session)
}

// Join handles POST /sessions/join.
func (h *Handler) Join(c *gin.Context) {
	var req JoinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	userID := c.MustGet(auth.ContextUserID).(uuid.UUID)

	session, err := h.store.GetByInviteCode(c.Request.Context(), req.InviteCode)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			response.NotFound(c, "invalid invite code")
			return
		}
		h.logger.Error("invite code lookup failed", zap.Error(err))
		response.Internal(c, "failed to join session")
		return
	}
	switch session.Status {
	case models.StatusMatched:
		response.Conflict(c, "session already matched")
		return
	case models.StatusClosed:
		response.Conflict(c, "session is closed")
		return
	}

	count, err := h.store.ParticipantCount(c.Request.Context(), session.ID)
	if err != nil {
		response.Internal(c, "failed to join session")
		return
	}
	if count >= h.policy.Capacity {
		response.Conflict(c, "session is full")
		return
	}

	if err := h.store.AddParticipant(c.Request.Context(), session.ID, userID); err != nil {
		if errors.Is(err, models.ErrAlreadyJoined) {
			response.Conflict(c, "already joined this session")
			return
		}
		h.logger.Error("join session failed", zap.Error(err), zap.String("session_id", session.ID.String()))
		response.Internal(c, "failed to join session")
		return
	}

	if h.events != nil {
		h.events.PublishSessionEvent(session.ID, "participant_joined", gin.H{
			"session_id": session.ID, "user_id": userID,
		})
	}

	session, err = h.store.GetByID(c.Request.Context(), session.ID)
	if err != nil {
		response.Internal(c, "failed to load session")
		return
	}
	response.OK(c, session)
}

// List handles GET /sessions?status=open|finished.
func (h *Handler) List(c *gin.Context) {
	userID := c.MustGet(auth.ContextUserID).(uuid.UUID)

	var statuses []models.SessionStatus
	switch c.DefaultQuery("status", "open") {
	case "open":
		statuses = []models.SessionStatus{models.StatusOpen}
	case "finished":
		statuses = []models.SessionStatus{models.StatusMatched, models.StatusClosed}
	default:
		response.BadRequest(c, "status must be open or finished")
		return
	}

	list, err := h.store.ListByUser(c.Request.Context(), userID, statuses)
	if err != nil {
		h.logger.Error("list sessions failed", zap.Error(err))
		response.Internal(c, "failed to list sessions")
		return
	}
	if list == nil {
		list = []models.Session{}
	}
	response.OK(c, list)
}

// Get handles GET /sessions/:id for participants.
func (h *Handler) Get(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	userID := c.MustGet(auth.ContextUserID).(uuid.UUID)

	ok, err := h.store.IsParticipant(c.Request.Context(), sessionID, userID)
	if err != nil {
		response.Internal(c, "failed to load session")
		return
	}
	if !ok {
		response.Forbidden(c, "not a participant of this session")
		return
	}

	session, err := h.store.GetByID(c.Request.Context(), sessionID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			response.NotFound(c, "session not found")
			return
		}
		response.Internal(c, "failed to load session")
		return
	}
	response.OK(c, session)
}

// Close handles POST /sessions/:id/close (creator only). A lost race against
// a concurrent match or close is reported as committed=false, not an error.
func (h *Handler) Close(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	userID := c.MustGet(auth.ContextUserID).(uuid.UUID)

	session, err := h.store.GetByID(c.Request.Context(), sessionID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			response.NotFound(c, "session not found")
			return
		}
		response.Internal(c, "failed to load session")
		return
	}
	if session.CreatorID != userID {
		response.Forbidden(c, "only the creator can close a session")
		return
	}

	committed, err := h.store.TryClose(c.Request.Context(), sessionID)
	if err != nil {
		h.logger.Error("close session failed", zap.Error(err), zap.String("session_id", sessionID.String()))
		response.Internal(c, "failed to close session")
		return
	}

	if committed && h.events != nil {
		h.events.PublishSessionEvent(sessionID, "session_closed", gin.H{"session_id": sessionID})
	}

	session, err = h.store.GetByID(c.Request.Context(), sessionID)
	if err != nil {
		response.Internal(c, "failed to load session")
		return
	}
	response.OK(c, CloseResponse{Committed: committed, Session: session})
}
