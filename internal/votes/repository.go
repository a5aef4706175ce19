package votes

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agreet/backend/internal/models"
)

// Repository is the vote ledger: the single source of truth for who liked
// what. The primary key on (session_id, user_id, option_id) enforces
// at-most-one vote per triple at the storage layer.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a votes repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Record upserts a vote. Re-sending the same decision is a no-op; a changed
// decision overwrites the earlier one. Safe to retry.
func (r *Repository) Record(ctx context.Context, v *models.Vote) error {
	const q = `INSERT INTO votes (session_id, user_id, option_id, decision)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (session_id, user_id, option_id)
		DO UPDATE SET decision = EXCLUDED.decision, decided_at = NOW()
		RETURNING decided_at`
	err := r.pool.QueryRow(ctx, q, v.SessionID, v.UserID, v.OptionID, v.Decision).Scan(&v.DecidedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return models.ErrNotFound
		}
		return err
	}
	return nil
}

// LikeCount returns how many distinct participants currently like the option.
func (r *Repository) LikeCount(ctx context.Context, sessionID, optionID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(DISTINCT user_id) FROM votes
		WHERE session_id = $1 AND option_id = $2 AND decision = 'like'`, sessionID, optionID).Scan(&n)
	return n, err
}

// ListForUser returns the user's votes in a session, oldest first. Used by
// the client to resume a partially swiped deck.
func (r *Repository) ListForUser(ctx context.Context, sessionID, userID uuid.UUID) ([]models.Vote, error) {
	rows, err := r.pool.Query(ctx, `SELECT session_id, user_id, option_id, decision, decided_at
		FROM votes WHERE session_id = $1 AND user_id = $2 ORDER BY decided_at`, sessionID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.Vote
	for rows.Next() {
		var v models.Vote
		if err := rows.Scan(&v.SessionID, &v.UserID, &v.OptionID, &v.Decision, &v.DecidedAt); err != nil {
			return nil, err
		}
		list = append(list, v)
	}
	return list, rows.Err()
}

// OptionInCategory reports whether the option belongs to the category.
func (r *Repository) OptionInCategory(ctx context.Context, optionID, categoryID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM options WHERE id = $1 AND category_id = $2)`,
		optionID, categoryID).Scan(&exists)
	return exists, err
}
