package models

import (
	"time"

	"github.com/google/uuid"
)

// Decision is a participant's swipe on an option.
type Decision string

const (
	DecisionLike    Decision = "like"
	DecisionDislike Decision = "dislike"
)

// Valid reports whether d is a known decision value.
func (d Decision) Valid() bool {
	return d == DecisionLike || d == DecisionDislike
}

// Vote records one participant's decision on one option within a session.
// At most one vote exists per (session, user, option); a resubmission with a
// different decision overwrites the earlier one.
type Vote struct {
	SessionID uuid.UUID `json:"session_id"`
	UserID    uuid.UUID `json:"user_id"`
	OptionID  uuid.UUID `json:"option_id"`
	Decision  Decision  `json:"decision"`
	DecidedAt time.Time `json:"decided_at"`
}
