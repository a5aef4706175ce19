package catalog

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agreet/backend/internal/models"
)

// Repository reads the category/option catalog. The session engine treats
// this data as read-only reference; only content management writes to it.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a catalog repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListCategories returns all categories.
func (r *Repository) ListCategories(ctx context.Context) ([]models.Category, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, created_at FROM categories ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.Category
	for rows.Next() {
		var cat models.Category
		if err := rows.Scan(&cat.ID, &cat.Name, &cat.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, cat)
	}
	return list, rows.Err()
}

// GetCategory returns a category by ID.
func (r *Repository) GetCategory(ctx context.Context, id uuid.UUID) (*models.Category, error) {
	var cat models.Category
	err := r.pool.QueryRow(ctx, `SELECT id, name, created_at FROM categories WHERE id = $1`, id).
		Scan(&cat.ID, &cat.Name, &cat.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	return &cat, nil
}

// ListOptions returns the options of a category.
func (r *Repository) ListOptions(ctx context.Context, categoryID uuid.UUID) ([]models.Option, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, category_id, label, image_path FROM options WHERE category_id = $1 ORDER BY label`, categoryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.Option
	for rows.Next() {
		var o models.Option
		if err := rows.Scan(&o.ID, &o.CategoryID, &o.Label, &o.ImagePath); err != nil {
			return nil, err
		}
		list = append(list, o)
	}
	return list, rows.Err()
}

// GetOption returns an option by ID.
func (r *Repository) GetOption(ctx context.Context, id uuid.UUID) (*models.Option, error) {
	var o models.Option
	err := r.pool.QueryRow(ctx,
		`SELECT id, category_id, label, image_path FROM options WHERE id = $1`, id).
		Scan(&o.ID, &o.CategoryID, &o.Label, &o.ImagePath)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	return &o, nil
}

// SetOptionImage stores the S3 key of an option's image.
func (r *Repository) SetOptionImage(ctx context.Context, optionID uuid.UUID, key string) error {
	ct, err := r.pool.Exec(ctx, `UPDATE options SET image_path = $2 WHERE id = $1`, optionID, key)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
