package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Dawstr8/polish-peaks/internal/models"
	"github.com/Dawstr8/polish-peaks/internal/services"
)

func newMetadataCmd() *cobra.Command {
	var timezone string

	cmd := &cobra.Command{
		Use:   "metadata <photo>",
		Short: "Print the location and capture time read from a photo",
		Long: `Reads GPS position, altitude and capture time from a photo's EXIF
block, the same way the upload wizard does, and prints them as JSON.
Photos without EXIF print empty metadata.`,
		Example: `  polish-peaks metadata IMG_2041.HEIC
  polish-peaks metadata --tz UTC rysy.jpg`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(args[0]); err != nil {
				return err
			}

			loc := time.Local
			if timezone != "" {
				var err error
				if loc, err = time.LoadLocation(timezone); err != nil {
					return fmt.Errorf("unknown time zone %q: %w", timezone, err)
				}
			}

			metadata := services.NewMetadataService(services.NewEXIFService(), services.NewMetadataFormatter(loc), nil)
			extraction := metadata.ExtractMetadata(cmd.Context(), args[0])

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(models.MetadataResponse{
				Metadata:  extraction.Metadata,
				Formatted: metadata.Formatter().Format(extraction.Metadata),
			})
		},
	}

	cmd.Flags().StringVar(&timezone, "tz", "Europe/Warsaw", "Time zone used for the formatted capture time")

	return cmd
}
