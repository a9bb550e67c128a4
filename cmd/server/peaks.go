package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/Dawstr8/polish-peaks/internal/apiclient"
	"github.com/Dawstr8/polish-peaks/internal/services"
)

func newPeaksCmd() *cobra.Command {
	var (
		lat, lon    float64
		maxDistance float64
		limit       int
	)

	cmd := &cobra.Command{
		Use:   "peaks",
		Short: "Look up peaks near a position through the API",
		Example: `  # Peaks within 5 km of Morskie Oko
  polish-peaks peaks --lat 49.2011 --lon 20.0711 --max-distance 5000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			defer logger.Sync()

			if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
				return fmt.Errorf("position %f, %f is out of range", lat, lon)
			}
			if maxDistance <= 0 {
				maxDistance = cfg.Peaks.MaxDistanceMeters
			}
			if limit <= 0 {
				limit = cfg.Peaks.Limit
			}

			client := apiclient.NewClient(cfg.APIBaseURL, &http.Client{Timeout: 30 * time.Second})
			peaks := services.NewPeakService(apiclient.NewPeakClient(client), nil, services.PeakSearch{}, nil)

			hits, err := peaks.Find(cmd.Context(), lat, lon, &maxDistance, limit)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(hits)
		},
	}

	cmd.Flags().Float64Var(&lat, "lat", 0, "Latitude in decimal degrees")
	cmd.Flags().Float64Var(&lon, "lon", 0, "Longitude in decimal degrees")
	cmd.Flags().Float64Var(&maxDistance, "max-distance", 0, "Search radius in metres (default from config)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of peaks (default from config)")
	_ = cmd.MarkFlagRequired("lat")
	_ = cmd.MarkFlagRequired("lon")

	return cmd
}
