package services

import (
	"context"

	"github.com/Dawstr8/polish-peaks/internal/models"
	"github.com/Dawstr8/polish-peaks/internal/observability"
)

// MetadataExtractor reads photo metadata from a file
type MetadataExtractor interface {
	ExtractFromFile(path string) (*EXIFData, error)
	ExtractFromBytes(data []byte) (*EXIFData, error)
}

// MetadataService bundles the extractor and the formatter
type MetadataService struct {
	extractor MetadataExtractor
	formatter *MetadataFormatter
	metrics   *observability.WizardMetrics
}

// NewMetadataService creates a new MetadataService
func NewMetadataService(extractor MetadataExtractor, formatter *MetadataFormatter, metrics *observability.WizardMetrics) *MetadataService {
	return &MetadataService{
		extractor: extractor,
		formatter: formatter,
		metrics:   metrics,
	}
}

// Extraction is the outcome of reading a photo's metadata
type Extraction struct {
	Metadata    models.PhotoMetadata
	Orientation int
}

// ExtractMetadata reads metadata from a staged file. Unreadable EXIF is
// logged and yields empty metadata.
func (s *MetadataService) ExtractMetadata(ctx context.Context, path string) Extraction {
	data, err := s.extractor.ExtractFromFile(path)
	return s.finish(ctx, path, formatOf(path), data, err)
}

// ExtractMetadataFromBytes is ExtractMetadata for an in-memory file
func (s *MetadataService) ExtractMetadataFromBytes(ctx context.Context, name string, content []byte) Extraction {
	data, err := s.extractor.ExtractFromBytes(content)
	format := "jpeg"
	if IsHEICContent(content) {
		format = "heic"
	}
	return s.finish(ctx, name, format, data, err)
}

func (s *MetadataService) finish(ctx context.Context, name, format string, data *EXIFData, err error) Extraction {
	_, span := observability.StartServiceSpan(ctx, "MetadataService", "Extract")
	defer span.End()

	if err != nil || data == nil {
		observability.WithContext(ctx).Warnf("Failed to extract EXIF metadata from %s: %v", name, err)
		s.metrics.RecordMetadataExtraction(ctx, format, false)
		return Extraction{Orientation: 1}
	}

	metadata := data.Metadata()
	s.metrics.RecordMetadataExtraction(ctx, format, metadata.Latitude != nil && metadata.Longitude != nil)
	return Extraction{Metadata: metadata, Orientation: data.Orientation}
}

// Formatter returns the formatter used for display
func (s *MetadataService) Formatter() *MetadataFormatter {
	return s.formatter
}

func formatOf(path string) string {
	if IsHEIC(path) {
		return "heic"
	}
	return "jpeg"
}
