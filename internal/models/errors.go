package models

import "errors"

// Domain error kinds shared across repositories, the consensus engine and
// HTTP handlers. Repositories map storage-level failures (pgx.ErrNoRows,
// unique/foreign-key violations) onto these; handlers map them onto HTTP
// statuses. A lost compare-and-set race is never reported through an error.
var (
	ErrNotFound       = errors.New("not found")
	ErrNotParticipant = errors.New("user is not a session participant")
	ErrSessionNotOpen = errors.New("session is not open")
	ErrSessionMatched = errors.New("session already matched")
	ErrSessionClosed  = errors.New("session is closed")
	ErrAlreadyJoined  = errors.New("user already joined this session")
	ErrSessionFull    = errors.New("session roster is full")
	ErrUnauthorized   = errors.New("not permitted")
	ErrEmailTaken     = errors.New("email already registered")
)

// IsDomainErr reports whether err is one of the structural error kinds above.
// Structural errors are definitive outcomes and must never be retried.
func IsDomainErr(err error) bool {
	for _, kind := range []error{
		ErrNotFound, ErrNotParticipant, ErrSessionNotOpen, ErrSessionMatched,
		ErrSessionClosed, ErrAlreadyJoined, ErrSessionFull, ErrUnauthorized, ErrEmailTaken,
	} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}
