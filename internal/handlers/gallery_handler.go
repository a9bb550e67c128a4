package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/Dawstr8/polish-peaks/internal/models"
	"github.com/Dawstr8/polish-peaks/internal/observability"
)

// PhotoLister lists stored summit photos
type PhotoLister interface {
	List(ctx context.Context, sortBy, order string) ([]models.SummitPhoto, error)
}

// GalleryHandler serves the photo gallery
type GalleryHandler struct {
	photos   PhotoLister
	renderer *Renderer
}

// NewGalleryHandler creates a new GalleryHandler
func NewGalleryHandler(photos PhotoLister, renderer *Renderer) *GalleryHandler {
	return &GalleryHandler{photos: photos, renderer: renderer}
}

type galleryView struct {
	Photos []models.SummitPhoto
	Error  string
}

// Gallery renders all photos, most recent capture first. A failed listing
// is shown as a banner instead of the grid.
func (h *GalleryHandler) Gallery(w http.ResponseWriter, r *http.Request) {
	ctx, span := observability.StartSpan(r.Context(), "GalleryHandler.Gallery")
	defer span.End()

	view := galleryView{}
	photos, err := h.photos.List(ctx, "captured_at", "desc")
	if err != nil {
		observability.RecordError(span, err)
		observability.WithContext(ctx).Warnf("Listing photos failed: %v", err)
		view.Error = galleryFailure(err)
	} else {
		view.Photos = photos
	}

	h.renderer.HTML(w, r, http.StatusOK, "gallery", Page{Title: "Gallery", Nav: "gallery", Data: view})
}

// galleryFailure keeps transport and decode details out of the page
func galleryFailure(err error) string {
	var apiErr *models.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return "Photos could not be loaded. Please try again later."
}
