package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/Dawstr8/polish-peaks/internal/models"
	"github.com/Dawstr8/polish-peaks/internal/services"
)

// MetadataHandler exposes metadata extraction over JSON
type MetadataHandler struct {
	metadata     *services.MetadataService
	maxFileBytes int64
}

// NewMetadataHandler creates a new MetadataHandler
func NewMetadataHandler(metadata *services.MetadataService, maxFileBytes int64) *MetadataHandler {
	return &MetadataHandler{metadata: metadata, maxFileBytes: maxFileBytes}
}

// Extract reads the location and capture time of an uploaded photo
// @Summary Extract photo metadata
// @Description Reads GPS position, altitude and capture time from a photo's EXIF block. Photos without EXIF yield empty metadata.
// @Tags metadata
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Photo"
// @Success 200 {object} models.MetadataResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 413 {object} models.ErrorResponse
// @Router /api/metadata [post]
func (h *MetadataHandler) Extract(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxFileBytes+1<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, models.ErrFileTooLarge.Error())
			return
		}
		writeJSONError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, models.ErrEmptyFile.Error())
		return
	}
	defer file.Close()

	content, err := io.ReadAll(io.LimitReader(file, h.maxFileBytes+1))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "Failed to read file")
		return
	}
	if len(content) == 0 {
		writeJSONError(w, http.StatusBadRequest, models.ErrEmptyFile.Error())
		return
	}
	if int64(len(content)) > h.maxFileBytes {
		writeJSONError(w, http.StatusRequestEntityTooLarge, models.ErrFileTooLarge.Error())
		return
	}

	extraction := h.metadata.ExtractMetadataFromBytes(r.Context(), header.Filename, content)
	writeJSON(w, http.StatusOK, models.MetadataResponse{
		Metadata:  extraction.Metadata,
		Formatted: h.metadata.Formatter().Format(extraction.Metadata),
	})
}
