package services

import (
	"fmt"
	"math"
	"time"

	"github.com/Dawstr8/polish-peaks/internal/models"
)

// NotAvailable is rendered for missing metadata values
const NotAvailable = "N/A"

const capturedAtLayout = "2 Jan 2006, 15:04"

// MetadataFormatter renders photo metadata for display
type MetadataFormatter struct {
	loc *time.Location
	now func() time.Time
}

// NewMetadataFormatter creates a formatter showing times in loc
func NewMetadataFormatter(loc *time.Location) *MetadataFormatter {
	if loc == nil {
		loc = time.Local
	}
	return &MetadataFormatter{loc: loc, now: time.Now}
}

// FormatLatitude renders a latitude with six decimals and a degree sign
func (f *MetadataFormatter) FormatLatitude(v *float64) string {
	return formatCoordinate(v)
}

// FormatLongitude renders a longitude with six decimals and a degree sign
func (f *MetadataFormatter) FormatLongitude(v *float64) string {
	return formatCoordinate(v)
}

// FormatAltitude renders metres with one decimal
func (f *MetadataFormatter) FormatAltitude(v *float64) string {
	if v == nil {
		return NotAvailable
	}
	return fmt.Sprintf("%.1fm", *v)
}

// FormatCapturedAt renders an RFC 3339 timestamp in the display location
func (f *MetadataFormatter) FormatCapturedAt(v *string) string {
	if v == nil || *v == "" {
		return NotAvailable
	}
	t, err := time.Parse(time.RFC3339, *v)
	if err != nil {
		return NotAvailable
	}
	return f.FormatTime(t)
}

// FormatTime renders t in the display location
func (f *MetadataFormatter) FormatTime(t time.Time) string {
	return t.In(f.loc).Format(capturedAtLayout)
}

// Format renders all metadata fields
func (f *MetadataFormatter) Format(m models.PhotoMetadata) models.FormattedMetadata {
	return models.FormattedMetadata{
		Latitude:   f.FormatLatitude(m.Latitude),
		Longitude:  f.FormatLongitude(m.Longitude),
		Altitude:   f.FormatAltitude(m.Altitude),
		CapturedAt: f.FormatCapturedAt(m.CapturedAt),
	}
}

// FormatCreate renders the metadata part of a create request
func (f *MetadataFormatter) FormatCreate(c *models.SummitPhotoCreate) models.FormattedMetadata {
	if c == nil {
		return f.Format(models.PhotoMetadata{})
	}
	return f.Format(models.PhotoMetadata{
		Latitude:   c.Latitude,
		Longitude:  c.Longitude,
		Altitude:   c.Altitude,
		CapturedAt: c.CapturedAt,
	})
}

// FormatDistance renders a peak distance as shown on peak cards
func (f *MetadataFormatter) FormatDistance(metres float64) string {
	return fmt.Sprintf("%.1fm away", metres)
}

// FormatRelative renders how long ago t was, e.g. "3 days ago"
func (f *MetadataFormatter) FormatRelative(t *time.Time) string {
	if t == nil {
		return NotAvailable
	}

	d := f.now().Sub(*t)
	if d < 0 {
		return "just now"
	}

	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return plural(int(d/time.Minute), "minute")
	case d < 24*time.Hour:
		return plural(int(d/time.Hour), "hour")
	case d < 30*24*time.Hour:
		return plural(int(d/(24*time.Hour)), "day")
	case d < 365*24*time.Hour:
		return plural(int(d/(30*24*time.Hour)), "month")
	default:
		return plural(int(d/(365*24*time.Hour)), "year")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s ago", unit)
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
}

func formatCoordinate(v *float64) string {
	if v == nil || math.IsNaN(*v) {
		return NotAvailable
	}
	return fmt.Sprintf("%.6f°", *v)
}
