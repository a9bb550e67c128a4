package services

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	"github.com/jdeng/goheif"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DefaultPreviewMaxDim bounds the longer side of a wizard preview
const DefaultPreviewMaxDim = 800

const previewQuality = 80

// PreviewService renders downsized JPEG previews of staged photos
type PreviewService struct {
	maxDim int
}

// NewPreviewService creates a new PreviewService
func NewPreviewService(maxDim int) *PreviewService {
	if maxDim <= 0 {
		maxDim = DefaultPreviewMaxDim
	}
	return &PreviewService{maxDim: maxDim}
}

// RenderFile creates a preview for an image on disk
func (s *PreviewService) RenderFile(path string, orientation int) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return s.Render(data, orientation)
}

// Render creates a preview in memory and returns the JPEG bytes
func (s *PreviewService) Render(imageData []byte, orientation int) ([]byte, error) {
	var img image.Image
	var err error

	if IsHEICContent(imageData) {
		img, err = decodeHEIC(imageData)
	} else {
		img, _, err = image.Decode(bytes.NewReader(imageData))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	// Apply EXIF orientation correction
	img = applyOrientation(img, orientation)

	// Fit keeps the aspect ratio and never upscales
	resized := imaging.Fit(img, s.maxDim, s.maxDim, imaging.Lanczos)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: previewQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode preview: %w", err)
	}

	return buf.Bytes(), nil
}

// applyOrientation corrects image orientation based on EXIF data
func applyOrientation(img image.Image, orientation int) image.Image {
	switch orientation {
	case 2:
		return imaging.FlipH(img)
	case 3:
		return imaging.Rotate180(img)
	case 4:
		return imaging.FlipV(img)
	case 5:
		// Transpose (flip horizontal + rotate 270)
		return imaging.Rotate270(imaging.FlipH(img))
	case 6:
		// Rotate 90 CW
		return imaging.Rotate270(img)
	case 7:
		// Transverse (flip horizontal + rotate 90)
		return imaging.Rotate90(imaging.FlipH(img))
	case 8:
		// Rotate 90 CCW
		return imaging.Rotate90(img)
	default:
		return img
	}
}

// decodeHEIC decodes a HEIC/HEIF image using goheif (pure Go)
func decodeHEIC(data []byte) (image.Image, error) {
	img, err := goheif.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode HEIC image: %w", err)
	}
	return img, nil
}

// IsHEIC checks if the file is HEIC/HEIF format (requires special handling)
func IsHEIC(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return ext == ".heic" || ext == ".heif"
}

// IsHEICContent sniffs HEIC/HEIF from the leading bytes
func IsHEICContent(data []byte) bool {
	m := mimetype.Detect(data)
	return m.Is("image/heic") || m.Is("image/heif") || m.Is("image/heic-sequence") || m.Is("image/heif-sequence")
}
