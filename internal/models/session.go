package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus is the lifecycle state of a session.
// Transitions are monotonic: open -> matched, open -> closed.
// Matched and closed are terminal.
type SessionStatus string

const (
	StatusOpen    SessionStatus = "open"
	StatusMatched SessionStatus = "matched"
	StatusClosed  SessionStatus = "closed"
)

// Session is a group agreement session over one category of options.
// A session matches when QuorumN distinct participants like the same option.
type Session struct {
	ID              uuid.UUID     `json:"id"`
	CreatorID       uuid.UUID     `json:"creator_id"`
	CategoryID      uuid.UUID     `json:"category_id"`
	QuorumN         int           `json:"quorum_n"`
	Status          SessionStatus `json:"status"`
	MatchedOptionID *uuid.UUID    `json:"matched_option_id,omitempty"`
	InviteCode      string        `json:"invite_code"`
	MatchedAt       *time.Time    `json:"matched_at,omitempty"`
	ClosedAt        *time.Time    `json:"closed_at,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`

	// Joined fields for list/detail responses.
	CategoryName     string  `json:"category_name,omitempty"`
	MatchedLabel     *string `json:"matched_label,omitempty"`
	ParticipantCount int     `json:"participant_count,omitempty"`
}

// IsOpen reports whether the session still accepts votes and joins.
func (s *Session) IsOpen() bool {
	return s.Status == StatusOpen
}

// Participant links a user to a session roster.
type Participant struct {
	SessionID uuid.UUID `json:"session_id"`
	UserID    uuid.UUID `json:"user_id"`
	JoinedAt  time.Time `json:"joined_at"`
}
