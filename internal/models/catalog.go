package models

import (
	"time"

	"github.com/google/uuid"
)

// Category groups options users can agree on (e.g. "Where to eat").
// Catalog data is read-only from the session engine's perspective.
type Category struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Option is one choice within a category.
type Option struct {
	ID         uuid.UUID `json:"id"`
	CategoryID uuid.UUID `json:"category_id"`
	Label      string    `json:"label"`
	ImagePath  *string   `json:"image_path,omitempty"`
	ImageURL   string    `json:"image_url,omitempty"`
}
