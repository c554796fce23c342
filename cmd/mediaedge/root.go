package main

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const defaultEdgeURL = "http://localhost:8080"

type globalFlags struct {
	configFilename string
	verbosityTrace bool
	logFilename    string
}

func newRootCmd() *cobra.Command {
	var flags globalFlags
	cmd := &cobra.Command{
		Use:   "mediaedge",
		Short: "Resilient media of the day delivery",
		Long: `mediaedge proxies an origin through a media cache manager.

Example usage:
  mediaedge serve --origin https://tale.example --media https://media.example.com
  mediaedge resolve --region eu --lang fr --day 2024-03-15
  mediaedge status
  mediaedge prefetch
  mediaedge clear`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging(flags)
		},
	}
	cmd.PersistentFlags().StringVar(&flags.configFilename, "config", "", "Path to config file")
	cmd.PersistentFlags().BoolVar(&flags.verbosityTrace, "vv", false, "Verbosity: trace logging")
	cmd.PersistentFlags().StringVar(&flags.logFilename, "log-file", "", "Log file to use (in addition to stdout)")

	cmd.AddCommand(
		newServeCmd(&flags),
		newResolveCmd(&flags),
		newStatusCmd(),
		newPrefetchCmd(&flags),
		newClearCmd(),
	)
	return cmd
}

// setupLogging sets the global logger from the flags.
func setupLogging(flags globalFlags) error {
	// set log level
	logLevel := zerolog.DebugLevel
	if flags.verbosityTrace {
		logLevel = zerolog.TraceLevel
	}

	// set up log output to stdout
	// also output to logfile if specified
	logOutputs := make([]io.Writer, 0)
	logOutputs = append(logOutputs, zerolog.ConsoleWriter{Out: os.Stdout})
	if flags.logFilename != "" {
		logFileOutput, err := os.OpenFile(flags.logFilename, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644)
		if err != nil {
			return err
		}
		logOutputs = append(logOutputs, logFileOutput)
	}
	multiWriter := zerolog.MultiLevelWriter(logOutputs...)
	log.Logger = log.Level(logLevel).Output(multiWriter).
		With().Str("version", version).Logger()
	return nil
}
