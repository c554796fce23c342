package main

import (
	"fmt"
	"time"

	mediaedge "github.com/always-cache/media-edge"
	"github.com/always-cache/media-edge/locator"

	"github.com/spf13/cobra"
)

func newResolveCmd(flags *globalFlags) *cobra.Command {
	var (
		day      string
		region   string
		lang     string
		animated bool
		chain    bool
		mediaURL string
	)
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Print the media URL for a day, region and language",
		Long: `Print the media URL for a day, region and language.

Examples:
  mediaedge resolve --region eu --lang fr --day 2024-03-15
  mediaedge resolve --animated --chain   # print every fallback candidate`,
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
			d := locator.Today(time.Now())
			if day != "" {
				if d, err = locator.ParseDay(day); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			if !chain {
				fmt.Fprintln(out, loc.Resolve(d, region, lang, animated))
				return nil
			}
			if animated {
				fmt.Fprintln(out, loc.Resolve(d, region, lang, true))
			}
			fmt.Fprintln(out, loc.Resolve(d, region, lang, false))
			fmt.Fprintln(out, loc.Resolve(d.Yesterday(), region, lang, false))
			return nil
		},
	}
	cmd.Flags().StringVar(&day, "day", "", "Day as YYYY-MM-DD (default today, UTC)")
	cmd.Flags().StringVar(&region, "region", "global", "Region: us, eu, ap or global")
	cmd.Flags().StringVar(&lang, "lang", locator.DefaultLanguage, "Language tag")
	cmd.Flags().BoolVar(&animated, "animated", false, "Prefer the animated variant")
	cmd.Flags().BoolVar(&chain, "chain", false, "Print the whole fallback chain")
	cmd.Flags().StringVar(&mediaURL, "media", "", "Base URL of the media of the day")
	return cmd
}
