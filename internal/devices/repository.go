package devices

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agreet/backend/internal/models"
)

// Repository handles APNs device token persistence. The token lives on the
// user record; one registered device per user.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a devices repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// SetToken stores or clears (nil) the user's APNs token.
func (r *Repository) SetToken(ctx context.Context, userID uuid.UUID, token *string) error {
	ct, err := r.pool.Exec(ctx,
		`UPDATE users SET apns_token = $2, updated_at = NOW() WHERE id = $1`, userID, token)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// ClearTokens invalidates the tokens of users whose devices rejected
// delivery, so future sessions do not retry them.
func (r *Repository) ClearTokens(ctx context.Context, userIDs []uuid.UUID) error {
	if len(userIDs) == 0 {
		return nil
	}
	_, err := r.pool.Exec(ctx,
		`UPDATE users SET apns_token = NULL, updated_at = NOW() WHERE id = ANY($1)`, userIDs)
	return err
}
