package models

// Peak is a known mountain summit
type Peak struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	Elevation int     `json:"elevation"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Range     string  `json:"range"`
}

// PeakWithDistance is a peak search hit, distance in metres
type PeakWithDistance struct {
	Peak     Peak    `json:"peak"`
	Distance float64 `json:"distance"`
}

// FindPeak returns the hit for the given peak id
func FindPeak(peaks []PeakWithDistance, peakID int64) (PeakWithDistance, bool) {
	for _, p := range peaks {
		if p.Peak.ID == peakID {
			return p, true
		}
	}
	return PeakWithDistance{}, false
}
