package apiclient

import (
	"context"
	"net/url"
	"strconv"

	"github.com/Dawstr8/polish-peaks/internal/models"
)

// PeakClient talks to the peak endpoints
type PeakClient struct {
	c *Client
}

// NewPeakClient creates a peak client
func NewPeakClient(c *Client) *PeakClient {
	return &PeakClient{c: c}
}

// FindNearby returns peaks around a point, closest first. maxDistance is in
// metres and omitted from the query when nil.
func (p *PeakClient) FindNearby(ctx context.Context, lat, lon float64, maxDistance *float64, limit int) ([]models.PeakWithDistance, error) {
	if limit <= 0 {
		limit = DefaultPeakLimit
	}

	query := url.Values{}
	query.Set("latitude", formatFloat(lat))
	query.Set("longitude", formatFloat(lon))
	query.Set("limit", strconv.Itoa(limit))
	if maxDistance != nil {
		query.Set("max_distance", formatFloat(*maxDistance))
	}

	var peaks []models.PeakWithDistance
	if err := p.c.get(ctx, pathPeaksFind, query, &peaks); err != nil {
		return nil, err
	}
	return peaks, nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
