package services

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jdeng/goheif"
	"github.com/rwcarlsen/goexif/exif"

	"github.com/Dawstr8/polish-peaks/internal/models"
)

// EXIFData is what the upload wizard reads from a summit photo: where and
// when it was taken, and how to rotate the preview
type EXIFData struct {
	Latitude    *float64
	Longitude   *float64
	Altitude    *float64
	DateTaken   *time.Time
	Orientation int
}

// Metadata converts the EXIF fields to photo metadata with an RFC 3339 UTC
// capture time
func (d *EXIFData) Metadata() models.PhotoMetadata {
	metadata := models.PhotoMetadata{
		Latitude:  d.Latitude,
		Longitude: d.Longitude,
		Altitude:  d.Altitude,
	}
	if d.DateTaken != nil {
		captured := d.DateTaken.UTC().Format(time.RFC3339)
		metadata.CapturedAt = &captured
	}
	return metadata
}

// EXIFService reads EXIF from JPEG, TIFF and HEIC photos
type EXIFService struct{}

// NewEXIFService creates a new EXIFService
func NewEXIFService() *EXIFService {
	return &EXIFService{}
}

// ExtractFromFile reads EXIF from a staged photo
func (s *EXIFService) ExtractFromFile(path string) (*EXIFData, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return s.extract(f, IsHEIC(path))
}

// ExtractFromBytes reads EXIF from an in-memory photo
func (s *EXIFService) ExtractFromBytes(data []byte) (*EXIFData, error) {
	return s.extract(bytes.NewReader(data), IsHEICContent(data))
}

type readerAt interface {
	io.Reader
	io.ReaderAt
}

func (s *EXIFService) extract(r readerAt, heic bool) (*EXIFData, error) {
	var src io.Reader = r
	if heic {
		// HEIC keeps EXIF in its own item; goexif wants the raw block
		raw, err := goheif.ExtractExif(r)
		if err != nil {
			return nil, fmt.Errorf("read HEIC exif item: %w", err)
		}
		src = bytes.NewReader(raw)
	}

	x, err := exif.Decode(src)
	if err != nil {
		return nil, fmt.Errorf("decode exif: %w", err)
	}

	data := &EXIFData{
		Orientation: orientationOf(x),
		Altitude:    altitudeOf(x),
	}
	// DateTimeOriginal, falling back to DateTime
	if taken, err := x.DateTime(); err == nil {
		data.DateTaken = &taken
	}
	if lat, lon, err := x.LatLong(); err == nil {
		data.Latitude, data.Longitude = &lat, &lon
	}
	return data, nil
}

func orientationOf(x *exif.Exif) int {
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	if v, err := tag.Int(0); err == nil && v >= 1 && v <= 8 {
		return v
	}
	return 1
}

// altitudeOf returns metres above sea level; GPSAltitudeRef 1 means below
func altitudeOf(x *exif.Exif) *float64 {
	tag, err := x.Get(exif.GPSAltitude)
	if err != nil {
		return nil
	}
	rat, err := tag.Rat(0)
	if err != nil || rat.Denom().Sign() == 0 {
		return nil
	}
	alt, _ := rat.Float64()
	if ref, err := x.Get(exif.GPSAltitudeRef); err == nil {
		if v, err := ref.Int(0); err == nil && v == 1 {
			alt = -alt
		}
	}
	return &alt
}
