// Package consensus implements the session consensus engine: it records
// votes, detects when an option has unanimous support from quorum_n distinct
// participants, and drives the exactly-once transition to the matched state.
//
// All cross-request coordination happens through the durable store's
// atomicity primitives (upsert for votes, conditional update for the status
// transition); the engine itself holds no mutable state and is safe for
// concurrent use.
package consensus

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agreet/backend/internal/models"
	"github.com/agreet/backend/pkg/utils"
)

// Store write retry policy for transient failures. Every retried operation
// is idempotent (vote upsert, conditional status update).
const (
	storeRetries    = 3
	storeRetryDelay = 150 * time.Millisecond
)

// SessionStore is the session surface the engine needs.
type SessionStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error)
	IsParticipant(ctx context.Context, sessionID, userID uuid.UUID) (bool, error)
	TryMatch(ctx context.Context, sessionID, optionID uuid.UUID) (bool, error)
}

// VoteLedger is the durable vote record the engine writes to and queries.
type VoteLedger interface {
	Record(ctx context.Context, v *models.Vote) error
	LikeCount(ctx context.Context, sessionID, optionID uuid.UUID) (int, error)
	OptionInCategory(ctx context.Context, optionID, categoryID uuid.UUID) (bool, error)
}

// MatchSink is notified exactly once per session, by the caller that won the
// match transition. Implementations must not fail the vote: the transition
// is already durably committed when the sink runs.
type MatchSink interface {
	MatchCommitted(ctx context.Context, session *models.Session, optionID uuid.UUID)
}

// Outcome reports the result of a cast vote back to the voter.
type Outcome struct {
	Vote *models.Vote `json:"vote"`
	// Committed is true only for the single request that won the match
	// transition for this session.
	Committed bool `json:"committed"`
	// Matched is true when the session is matched as of this request,
	// whether by this vote or a concurrent one.
	Matched         bool       `json:"matched"`
	MatchedOptionID *uuid.UUID `json:"matched_option_id,omitempty"`
}

// Engine ties the vote ledger, quorum detection and the session state
// machine together.
type Engine struct {
	sessions SessionStore
	ledger   VoteLedger
	sink     MatchSink
	logger   *zap.Logger
}

// NewEngine creates a consensus engine. sink may be nil.
func NewEngine(sessions SessionStore, ledger VoteLedger, sink MatchSink, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{sessions: sessions, ledger: ledger, sink: sink, logger: logger}
}

// CastVote validates, records and evaluates one like/dislike decision.
//
// The vote is recorded even when the session has already matched or closed
// (late votes are kept for bookkeeping) but quorum evaluation is skipped and
// models.ErrSessionNotOpen is returned. A quorum hit attempts the
// compare-and-set transition; losing that race is a benign outcome reported
// as Committed=false.
func (e *Engine) CastVote(ctx context.Context, sessionID, userID, optionID uuid.UUID, decision models.Decision) (*Outcome, error) {
	session, err := e.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	isParticipant, err := e.sessions.IsParticipant(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	if !isParticipant {
		return nil, models.ErrNotParticipant
	}

	ok, err := e.ledger.OptionInCategory(ctx, optionID, session.CategoryID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, models.ErrNotFound
	}

	vote := &models.Vote{
		SessionID: sessionID,
		UserID:    userID,
		OptionID:  optionID,
		Decision:  decision,
	}
	if err := utils.Retry(ctx, storeRetries, storeRetryDelay, func() error {
		return e.ledger.Record(ctx, vote)
	}); err != nil {
		return nil, err
	}

	if !session.IsOpen() {
		return nil, models.ErrSessionNotOpen
	}

	outcome := &Outcome{Vote: vote}
	if decision != models.DecisionLike {
		return outcome, nil
	}

	likes, err := e.ledger.LikeCount(ctx, sessionID, optionID)
	if err != nil {
		return nil, err
	}
	if likes < session.QuorumN {
		return outcome, nil
	}

	var committed bool
	if err := utils.Retry(ctx, storeRetries, storeRetryDelay, func() error {
		var tryErr error
		committed, tryErr = e.sessions.TryMatch(ctx, sessionID, optionID)
		return tryErr
	}); err != nil {
		return nil, err
	}

	if committed {
		outcome.Committed = true
		outcome.Matched = true
		outcome.MatchedOptionID = &optionID
		e.logger.Info("session matched",
			zap.String("session_id", sessionID.String()),
			zap.String("option_id", optionID.String()),
			zap.Int("likes", likes))
		if e.sink != nil {
			e.sink.MatchCommitted(ctx, session, optionID)
		}
		return outcome, nil
	}

	// Lost the race: someone else matched or the creator closed. Report the
	// current terminal state so the caller can stop voting.
	current, err := e.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return outcome, nil
	}
	if current.Status == models.StatusMatched {
		outcome.Matched = true
		outcome.MatchedOptionID = current.MatchedOptionID
	}
	return outcome, nil
}
