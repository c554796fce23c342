package main

import (
	"fmt"
	"time"

	mediaedge "github.com/always-cache/media-edge"
	"github.com/always-cache/media-edge/trigger"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newPrefetchCmd(flags *globalFlags) *cobra.Command {
	var (
		edgeURL  string
		mediaURL string
		urls     []string
	)
	cmd := &cobra.Command{
		Use:   "prefetch",
		Short: "Ask a running edge to cache media ahead of need",
		Long: `Ask a running edge to cache media ahead of need.

Without --url, tomorrow's media is pre-staged for every configured region and language.

Examples:
  mediaedge prefetch
  mediaedge prefetch --url https://media.example.com/eu/fr/2024-03-15.mp4`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := mediaedge.LoadConfig(flags.configFilename)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if cmd.Flags().Changed("media") {
				config.MediaBaseURL = mediaURL
			}
			loc, err := config.Locator()
			if err != nil {
				return err
			}
			poster := trigger.HTTPPoster{Endpoint: newEdgeClient(edgeURL).endpoint("/message")}
			t := trigger.New(config.TriggerConfig(poster, loc, &log.Logger))

			queued := 0
			if len(urls) > 0 {
				for _, u := range urls {
					queued += t.CacheRendered(u)
				}
			} else {
				queued = t.PrestageTomorrow(cmd.Context(), time.Now())
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d message(s) accepted\n", queued)
			return nil
		},
	}
	cmd.Flags().StringVar(&edgeURL, "edge", defaultEdgeURL, "URL of the edge server")
	cmd.Flags().StringVar(&mediaURL, "media", "", "Base URL of the media of the day")
	cmd.Flags().StringSliceVar(&urls, "url", nil, "Media URL to cache (repeatable)")
	return cmd
}
