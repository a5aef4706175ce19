package auth

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agreet/backend/internal/models"
)

// Repository handles user persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an auth repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const userColumns = `id, device_uuid, email, password_hash, display_name, role, apns_token, created_at, updated_at`

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.DeviceUUID, &u.Email, &u.PasswordHash, &u.DisplayName, &u.Role, &u.APNSToken, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// GetByID returns a user by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// GetByEmail returns a user by email.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
}

// GetOrCreateByDevice returns the user for a device installation, creating
// one on first sign-in. The unique index on device_uuid makes concurrent
// first sign-ins from the same device converge on one row.
func (r *Repository) GetOrCreateByDevice(ctx context.Context, deviceUUID, displayName string) (*models.User, error) {
	const q = `INSERT INTO users (id, device_uuid, display_name, role)
		VALUES (gen_random_uuid(), $1, $2, 'member')
		ON CONFLICT (device_uuid) DO UPDATE SET updated_at = NOW()
		RETURNING ` + userColumns
	return scanUser(r.pool.QueryRow(ctx, q, deviceUUID, displayName))
}

// UpgradeAccount attaches email and password hash to an anonymous user. The
// unique index on users.email decides concurrent registrations with the same
// address; the loser gets ErrEmailTaken.
func (r *Repository) UpgradeAccount(ctx context.Context, userID uuid.UUID, email, passwordHash string) (*models.User, error) {
	const q = `UPDATE users SET email = $2, password_hash = $3, updated_at = NOW()
		WHERE id = $1 AND email IS NULL
		RETURNING ` + userColumns
	user, err := scanUser(r.pool.QueryRow(ctx, q, userID, email, passwordHash))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, models.ErrEmailTaken
		}
		return nil, err
	}
	return user, nil
}

// UpdateDisplayName sets the user's display name.
func (r *Repository) UpdateDisplayName(ctx context.Context, userID uuid.UUID, name string) error {
	ct, err := r.pool.Exec(ctx, `UPDATE users SET display_name = $2, updated_at = NOW() WHERE id = $1`, userID, name)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
