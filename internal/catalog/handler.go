package catalog

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agreet/backend/internal/models"
	"github.com/agreet/backend/pkg/response"
	"github.com/agreet/backend/pkg/storage"
)

// Store is the catalog data access the handler needs.
type Store interface {
	ListCategories(ctx context.Context) ([]models.Category, error)
	GetCategory(ctx context.Context, id uuid.UUID) (*models.Category, error)
	ListOptions(ctx context.Context, categoryID uuid.UUID) ([]models.Option, error)
	GetOption(ctx context.Context, id uuid.UUID) (*models.Option, error)
	SetOptionImage(ctx context.Context, optionID uuid.UUID, key string) error
}

// Handler serves the category/option catalog.
type Handler struct {
	store  Store
	s3     *storage.S3
	logger *zap.Logger
}

// NewHandler creates a catalog handler. s3 may be nil; image URLs are then
// omitted from option listings.
func NewHandler(store Store, s3 *storage.S3, logger *zap.Logger) *Handler {
	return &Handler{store: store, s3: s3, logger: logger}
}

// ListCategories handles GET /categories.
func (h *Handler) ListCategories(c *gin.Context) {
	categories, err := h.store.ListCategories(c.Request.Context())
	if err != nil {
		h.logger.Error("list categories", zap.Error(err))
		response.Internal(c, "failed to list categories")
		return
	}
	response.OK(c, gin.H{"categories": categories})
}

// ListOptions handles GET /categories/:id/options.
func (h *Handler) ListOptions(c *gin.Context) {
	categoryID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid category id")
		return
	}
	ctx := c.Request.Context()
	if _, err := h.store.GetCategory(ctx, categoryID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			response.NotFound(c, "category not found")
			return
		}
		h.logger.Error("get category", zap.Error(err))
		response.Internal(c, "failed to load category")
		return
	}
	options, err := h.store.ListOptions(ctx, categoryID)
	if err != nil {
		h.logger.Error("list options", zap.String("category_id", categoryID.String()), zap.Error(err))
		response.Internal(c, "failed to list options")
		return
	}
	h.resolveImageURLs(ctx, options)
	response.OK(c, gin.H{"options": options})
}

// resolveImageURLs fills ImageURL with a pre-signed link for each option that
// has a stored image. Presign failures are logged and leave the URL empty.
func (h *Handler) resolveImageURLs(ctx context.Context, options []models.Option) {
	if h.s3 == nil {
		return
	}
	for i := range options {
		if options[i].ImagePath == nil {
			continue
		}
		url, err := h.s3.PresignImageURL(ctx, *options[i].ImagePath)
		if err != nil {
			h.logger.Warn("presign option image",
				zap.String("option_id", options[i].ID.String()), zap.Error(err))
			continue
		}
		options[i].ImageURL = url
	}
}

// UploadOptionImage handles POST /options/:id/image (admin only).
func (h *Handler) UploadOptionImage(c *gin.Context) {
	if h.s3 == nil {
		response.ServiceUnavailable(c, "image storage not configured")
		return
	}
	optionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid option id")
		return
	}
	ctx := c.Request.Context()
	option, err := h.store.GetOption(ctx, optionID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			response.NotFound(c, "option not found")
			return
		}
		h.logger.Error("get option", zap.Error(err))
		response.Internal(c, "failed to load option")
		return
	}

	fileHeader, err := c.FormFile("image")
	if err != nil {
		response.BadRequest(c, "image file is required")
		return
	}
	if fileHeader.Size > storage.MaxImageFileSize {
		response.BadRequest(c, "image exceeds 5MB limit")
		return
	}
	contentType := fileHeader.Header.Get("Content-Type")
	if !storage.ValidateImageFileType(contentType, fileHeader.Filename) {
		response.BadRequest(c, "unsupported image type")
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		response.BadRequest(c, "failed to read image file")
		return
	}
	defer file.Close()

	if contentType == "" {
		contentType = storage.ContentTypeForFilename(fileHeader.Filename)
	}
	key := storage.OptionImageKey(optionID.String(), fileHeader.Filename)
	if _, err := h.s3.UploadImage(ctx, key, contentType, file, fileHeader.Size); err != nil {
		h.logger.Error("upload option image", zap.String("key", key), zap.Error(err))
		response.Internal(c, "failed to upload image")
		return
	}

	// Replace any previous image after the new one is in place.
	previous := option.ImagePath
	if err := h.store.SetOptionImage(ctx, optionID, key); err != nil {
		h.logger.Error("set option image", zap.String("key", key), zap.Error(err))
		response.Internal(c, "failed to save image")
		return
	}
	if previous != nil && *previous != key {
		if err := h.s3.DeleteImage(ctx, *previous); err != nil {
			h.logger.Warn("delete previous option image", zap.String("key", *previous), zap.Error(err))
		}
	}

	url, err := h.s3.PresignImageURL(ctx, key)
	if err != nil {
		h.logger.Warn("presign uploaded image", zap.String("key", key), zap.Error(err))
	}
	response.OK(c, gin.H{"image_path": key, "image_url": url})
}
