package sessions

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agreet/backend/internal/models"
)

// inviteCodeCreateAttempts bounds the collision-retry loop when inserting a
// session with a freshly generated invite code.
const inviteCodeCreateAttempts = 5

// Repository handles session and roster persistence. Session status is only
// ever written through the conditional updates TryMatch and TryClose.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a sessions repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

const sessionColumns = `s.id, s.creator_id, s.category_id, s.quorum_n, s.status, s.matched_option_id,
	s.invite_code, s.matched_at, s.closed_at, s.created_at,
	c.name,
	o.label,
	(SELECT COUNT(*) FROM session_participants sp WHERE sp.session_id = s.id)`

const sessionFrom = ` FROM sessions s
	JOIN categories c ON c.id = s.category_id
	LEFT JOIN options o ON o.id = s.matched_option_id`

func scanSession(row pgx.Row) (*models.Session, error) {
	var s models.Session
	err := row.Scan(&s.ID, &s.CreatorID, &s.CategoryID, &s.QuorumN, &s.Status, &s.MatchedOptionID,
		&s.InviteCode, &s.MatchedAt, &s.ClosedAt, &s.CreatedAt,
		&s.CategoryName, &s.MatchedLabel, &s.ParticipantCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

// Create inserts a session with a fresh invite code and auto-joins the
// creator, in one transaction. The partial unique index on open sessions'
// invite codes is the collision authority; on conflict a new code is tried.
func (r *Repository) Create(ctx context.Context, creatorID, categoryID uuid.UUID, quorumN int) (*models.Session, error) {
	for attempt := 0; attempt < inviteCodeCreateAttempts; attempt++ {
		code, err := GenerateInviteCode()
		if err != nil {
			return nil, err
		}
		session, err := r.createWithCode(ctx, creatorID, categoryID, quorumN, code)
		if err == nil {
			return session, nil
		}
		if isUniqueViolation(err) {
			continue
		}
		if isForeignKeyViolation(err) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	return nil, errors.New("could not allocate a unique invite code")
}

func (r *Repository) createWithCode(ctx context.Context, creatorID, categoryID uuid.UUID, quorumN int, code string) (*models.Session, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var sessionID uuid.UUID
	err = tx.QueryRow(ctx, `INSERT INTO sessions (id, creator_id, category_id, quorum_n, status, invite_code)
		VALUES (gen_random_uuid(), $1, $2, $3, 'open', $4)
		RETURNING id`, creatorID, categoryID, quorumN, code).Scan(&sessionID)
	if err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx, `INSERT INTO session_participants (session_id, user_id) VALUES ($1, $2)`,
		sessionID, creatorID); err != nil {
		return nil, err
	}

	session, err := scanSession(tx.QueryRow(ctx, `SELECT `+sessionColumns+sessionFrom+` WHERE s.id = $1`, sessionID))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return session, nil
}

// GetByID returns a session with category, matched option and roster count.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	return scanSession(r.pool.QueryRow(ctx, `SELECT `+sessionColumns+sessionFrom+` WHERE s.id = $1`, id))
}

// GetByInviteCode returns the most recent session carrying the code. Callers
// check status: only open sessions are joinable, but matched/closed lookups
// are needed to report the right conflict.
func (r *Repository) GetByInviteCode(ctx context.Context, code string) (*models.Session, error) {
	return scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+sessionFrom+` WHERE s.invite_code = $1 ORDER BY s.created_at DESC LIMIT 1`, code))
}

// IsParticipant reports whether the user is on the session roster.
func (r *Repository) IsParticipant(ctx context.Context, sessionID, userID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM session_participants WHERE session_id = $1 AND user_id = $2)`,
		sessionID, userID).Scan(&exists)
	return exists, err
}

// ParticipantCount returns the roster size.
func (r *Repository) ParticipantCount(ctx context.Context, sessionID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM session_participants WHERE session_id = $1`, sessionID).Scan(&n)
	return n, err
}

// AddParticipant adds a user to the roster. The primary key on
// (session_id, user_id) reports a duplicate join as ErrAlreadyJoined.
func (r *Repository) AddParticipant(ctx context.Context, sessionID, userID uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO session_participants (session_id, user_id) VALUES ($1, $2)`, sessionID, userID)
	if err != nil {
		if isUniqueViolation(err) {
			return models.ErrAlreadyJoined
		}
		if isForeignKeyViolation(err) {
			return models.ErrNotFound
		}
		return err
	}
	return nil
}

// ListByUser returns sessions the user participates in, filtered by status,
// most recent activity first.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID, statuses []models.SessionStatus) ([]models.Session, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+sessionColumns+sessionFrom+`
		JOIN session_participants me ON me.session_id = s.id AND me.user_id = $1
		WHERE s.status = ANY($2)
		ORDER BY COALESCE(s.matched_at, s.closed_at, s.created_at) DESC`,
		userID, statusStrings(statuses))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *s)
	}
	return list, rows.Err()
}

func statusStrings(statuses []models.SessionStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

// TryMatch atomically transitions the session from open to matched. It is the
// linearization point for consensus: the conditional update succeeds for
// exactly one caller; everyone else sees zero rows affected and backs off.
func (r *Repository) TryMatch(ctx context.Context, sessionID, optionID uuid.UUID) (bool, error) {
	ct, err := r.pool.Exec(ctx, `UPDATE sessions
		SET status = 'matched', matched_option_id = $2, matched_at = NOW()
		WHERE id = $1 AND status = 'open'`, sessionID, optionID)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

// TryClose atomically transitions the session from open to closed, using the
// same conditional-write discipline as TryMatch so a concurrent match and
// close resolve to whichever update lands first.
func (r *Repository) TryClose(ctx context.Context, sessionID uuid.UUID) (bool, error) {
	ct, err := r.pool.Exec(ctx, `UPDATE sessions
		SET status = 'closed', closed_at = NOW()
		WHERE id = $1 AND status = 'open'`, sessionID)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

// ParticipantTokens returns roster members holding an APNs token.
func (r *Repository) ParticipantTokens(ctx context.Context, sessionID uuid.UUID) (map[uuid.UUID]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT u.id, u.apns_token
		FROM session_participants sp
		JOIN users u ON u.id = sp.user_id
		WHERE sp.session_id = $1 AND u.apns_token IS NOT NULL`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tokens := make(map[uuid.UUID]string)
	for rows.Next() {
		var id uuid.UUID
		var token string
		if err := rows.Scan(&id, &token); err != nil {
			return nil, err
		}
		tokens[id] = token
	}
	return tokens, rows.Err()
}
