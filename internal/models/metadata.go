package models

// PhotoMetadata holds the location and time read from a photo's EXIF block.
// CapturedAt is an RFC 3339 timestamp in UTC.
type PhotoMetadata struct {
	Latitude   *float64 `json:"latitude,omitempty"`
	Longitude  *float64 `json:"longitude,omitempty"`
	Altitude   *float64 `json:"altitude,omitempty"`
	CapturedAt *string  `json:"capturedAt,omitempty"`
}

// IsEmpty reports whether nothing could be extracted
func (m PhotoMetadata) IsEmpty() bool {
	return m.Latitude == nil && m.Longitude == nil && m.Altitude == nil && m.CapturedAt == nil
}

// FormattedMetadata is the display form of PhotoMetadata
type FormattedMetadata struct {
	Latitude   string `json:"latitude"`
	Longitude  string `json:"longitude"`
	Altitude   string `json:"altitude"`
	CapturedAt string `json:"capturedAt"`
}

// MetadataResponse is returned by the metadata extraction endpoint
type MetadataResponse struct {
	Metadata  PhotoMetadata     `json:"metadata"`
	Formatted FormattedMetadata `json:"formatted"`
}
