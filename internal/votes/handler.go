package votes

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agreet/backend/internal/auth"
	"github.com/agreet/backend/internal/consensus"
	"github.com/agreet/backend/internal/models"
	"github.com/agreet/backend/pkg/response"
)

// CastRequest is the body for POST /sessions/:id/votes.
type CastRequest struct {
	OptionID uuid.UUID       `json:"option_id" binding:"required"`
	Decision models.Decision `json:"decision" binding:"required,oneof=like dislike"`
}

// Engine casts votes through the consensus engine.
type Engine interface {
	CastVote(ctx context.Context, sessionID, userID, optionID uuid.UUID, decision models.Decision) (*consensus.Outcome, error)
}

// Ledger is the read surface for a participant's own votes.
type Ledger interface {
	ListForUser(ctx context.Context, sessionID, userID uuid.UUID) ([]models.Vote, error)
}

// Handler handles vote HTTP endpoints.
type Handler struct {
	engine Engine
	ledger Ledger
	events Events
	logger *zap.Logger
}

// Events receives vote change events for connected clients.
type Events interface {
	PublishSessionEvent(sessionID uuid.UUID, event string, payload interface{})
}

// NewHandler creates a votes handler.
func NewHandler(engine Engine, ledger Ledger, events Events, logger *zap.Logger) *Handler {
	return &Handler{engine: engine, ledger: ledger, events: events, logger: logger}
}

// Cast handles POST /sessions/:id/votes. The response tells the caller
// whether this vote completed a match so the client can stop swiping.
func (h *Handler) Cast(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	var req CastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: decision must be like or dislike")
		return
	}
	userID := c.MustGet(auth.ContextUserID).(uuid.UUID)

	outcome, err := h.engine.CastVote(c.Request.Context(), sessionID, userID, req.OptionID, req.Decision)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrNotFound):
			response.NotFound(c, "session or option not found")
		case errors.Is(err, models.ErrNotParticipant):
			response.Forbidden(c, "join the session before voting")
		case errors.Is(err, models.ErrSessionNotOpen):
			response.Conflict(c, "session is no longer open")
		default:
			h.logger.Error("cast vote failed", zap.Error(err),
				zap.String("session_id", sessionID.String()))
			response.ServiceUnavailable(c, "vote not recorded, try again")
		}
		return
	}

	if h.events != nil && !outcome.Committed {
		// An anonymous activity ping; who voted for what stays private until a
		// match. The match event itself is published by the winning transition.
		h.events.PublishSessionEvent(sessionID, "vote_recorded", gin.H{
			"session_id": sessionID,
		})
	}

	response.OK(c, outcome)
}

// ListMine handles GET /sessions/:id/votes: the caller's own votes, used to
// resume a partially swiped deck.
func (h *Handler) ListMine(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	userID := c.MustGet(auth.ContextUserID).(uuid.UUID)

	list, err := h.ledger.ListForUser(c.Request.Context(), sessionID, userID)
	if err != nil {
		h.logger.Error("list votes failed", zap.Error(err))
		response.Internal(c, "failed to list votes")
		return
	}
	if list == nil {
		list = []models.Vote{}
	}
	response.OK(c, list)
}
