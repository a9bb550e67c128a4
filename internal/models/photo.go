package models

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"time"
)

// SummitPhoto is a photo stored by the Polish Peaks API
type SummitPhoto struct {
	ID             int64      `json:"id"`
	FileName       string     `json:"file_name"`
	UploadedAt     time.Time  `json:"uploaded_at"`
	CapturedAt     *time.Time `json:"captured_at,omitempty"`
	Latitude       *float64   `json:"latitude,omitempty"`
	Longitude      *float64   `json:"longitude,omitempty"`
	Altitude       *float64   `json:"altitude,omitempty"`
	PeakID         *int64     `json:"peak_id,omitempty"`
	DistanceToPeak *float64   `json:"distance_to_peak,omitempty"`
	Peak           *Peak      `json:"peak,omitempty"`
}

// UnmarshalJSON reads the API's zone-less timestamps as UTC
func (p *SummitPhoto) UnmarshalJSON(data []byte) error {
	type plain SummitPhoto
	aux := struct {
		*plain
		UploadedAt Timestamp  `json:"uploaded_at"`
		CapturedAt *Timestamp `json:"captured_at,omitempty"`
	}{plain: (*plain)(p)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	p.UploadedAt = aux.UploadedAt.Time
	p.CapturedAt = aux.CapturedAt.ptr()
	return nil
}

// HasLocation reports whether both coordinates are present
func (p SummitPhoto) HasLocation() bool {
	return p.Latitude != nil && p.Longitude != nil
}

// SummitPhotoCreate is the metadata sent alongside an uploaded file
type SummitPhotoCreate struct {
	CapturedAt     *string  `json:"captured_at,omitempty"`
	Latitude       *float64 `json:"latitude,omitempty"`
	Longitude      *float64 `json:"longitude,omitempty"`
	Altitude       *float64 `json:"altitude,omitempty"`
	PeakID         *int64   `json:"peak_id,omitempty"`
	DistanceToPeak *float64 `json:"distance_to_peak,omitempty"`
}

// NewSummitPhotoCreate maps extracted metadata to a create request.
// Peak fields stay empty until a peak is chosen.
func NewSummitPhotoCreate(metadata PhotoMetadata) *SummitPhotoCreate {
	return &SummitPhotoCreate{
		CapturedAt: metadata.CapturedAt,
		Latitude:   metadata.Latitude,
		Longitude:  metadata.Longitude,
		Altitude:   metadata.Altitude,
	}
}

// Coordinates returns the location used for the nearby peak search.
// Zero coordinates count as missing.
func (c *SummitPhotoCreate) Coordinates() (lat, lon float64, ok bool) {
	if c == nil || c.Latitude == nil || c.Longitude == nil {
		return 0, 0, false
	}
	if *c.Latitude == 0 || *c.Longitude == 0 {
		return 0, 0, false
	}
	return *c.Latitude, *c.Longitude, true
}

// WithPeak returns a copy of the request pointing at the chosen peak
func (c SummitPhotoCreate) WithPeak(peakID int64, distance float64) *SummitPhotoCreate {
	c.PeakID = &peakID
	c.DistanceToPeak = &distance
	return &c
}

// WithoutPeak returns a copy of the request with the peak fields cleared
func (c SummitPhotoCreate) WithoutPeak() *SummitPhotoCreate {
	c.PeakID = nil
	c.DistanceToPeak = nil
	return &c
}

// PendingPhoto builds the preview record shown before the upload is confirmed
func (c *SummitPhotoCreate) PendingPhoto(fileName string, peak *Peak, now time.Time) *SummitPhoto {
	photo := &SummitPhoto{
		FileName:       fileName,
		UploadedAt:     now.UTC(),
		Latitude:       c.Latitude,
		Longitude:      c.Longitude,
		Altitude:       c.Altitude,
		PeakID:         c.PeakID,
		DistanceToPeak: c.DistanceToPeak,
		Peak:           peak,
	}
	if c.CapturedAt != nil {
		if t, err := time.Parse(time.RFC3339, *c.CapturedAt); err == nil {
			photo.CapturedAt = &t
		}
	}
	return photo
}

// SanitizeFilename removes path components and invalid characters
func SanitizeFilename(filename string) string {
	// Normalise Windows separators before taking the base name
	name := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))

	replacer := strings.NewReplacer(
		"..", "",
		"/", "_",
		"\\", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
	)

	return replacer.Replace(name)
}

// PhotoError is returned for invalid photo input
type PhotoError struct {
	Message string
}

func (e PhotoError) Error() string {
	return e.Message
}

var (
	ErrEmptyFilename    = PhotoError{"original filename cannot be empty"}
	ErrEmptyFile        = PhotoError{"no file provided or file is empty"}
	ErrNotAnImage       = PhotoError{"only image files are supported"}
	ErrInvalidExtension = PhotoError{"file extension not allowed"}
	ErrFileTooLarge     = PhotoError{"file size exceeds maximum allowed"}
	ErrPathTraversal    = PhotoError{"invalid path - path traversal detected"}
)
