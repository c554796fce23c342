package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mediaedge "github.com/always-cache/media-edge"
	"github.com/always-cache/media-edge/core"
	"github.com/always-cache/media-edge/trigger"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newServeCmd(flags *globalFlags) *cobra.Command {
	var (
		port       int
		origin     string
		originHost string
		mediaURL   string
		provider   string
		db         string
		redisURL   string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the edge server",
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := mediaedge.LoadConfig(flags.configFilename)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			// flags override file and environment
			fs := cmd.Flags()
			if fs.Changed("port") {
				config.Port = port
			}
			if fs.Changed("origin") {
				config.Origin = origin
			}
			if fs.Changed("host") {
				config.OriginHost = originHost
			}
			if fs.Changed("media") {
				config.MediaBaseURL = mediaURL
			}
			if fs.Changed("provider") {
				config.Provider = provider
			}
			if fs.Changed("db") {
				config.DB = db
			}
			if fs.Changed("redis") {
				config.RedisURL = redisURL
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, config)
		},
	}
	cmd.Flags().IntVar(&port, "port", 8080, "Port to listen on")
	cmd.Flags().StringVar(&origin, "origin", "", "Origin URL to proxy to")
	cmd.Flags().StringVar(&originHost, "host", "", "Hostname of origin")
	cmd.Flags().StringVar(&mediaURL, "media", "", "Base URL of the media of the day")
	cmd.Flags().StringVar(&provider, "provider", "sqlite", "Caching provider to use (sqlite, memory, redis)")
	cmd.Flags().StringVar(&db, "db", "cache.db", "Cache DB file name (use 'memory' for in-memory db)")
	cmd.Flags().StringVar(&redisURL, "redis", "", "Redis URL for the redis provider")
	return cmd
}

func serve(ctx context.Context, config mediaedge.Config) error {
	originURL, err := config.OriginURL()
	if err != nil {
		return err
	}
	loc, err := config.Locator()
	if err != nil {
		return err
	}
	storage, err := config.OpenStorage()
	if err != nil {
		return fmt.Errorf("opening cache storage: %w", err)
	}
	defer storage.Close()

	managerConfig, err := config.ManagerConfig(storage, &log.Logger)
	if err != nil {
		return err
	}
	manager, err := core.CreateManager(managerConfig)
	if err != nil {
		return err
	}
	runtime := &core.Runtime{Network: managerConfig.Network}
	defer runtime.Close()
	if err := runtime.Register(ctx, manager); err != nil {
		return err
	}

	edge, err := mediaedge.CreateEdge(mediaedge.EdgeConfig{
		OriginURL:  *originURL,
		OriginHost: config.OriginHost,
		Runtime:    runtime,
		Locator:    loc,
		Logger:     &log.Logger,
	})
	if err != nil {
		return err
	}

	if config.PrestageInterval > 0 {
		scheduler := &trigger.Scheduler{
			Trigger:  trigger.New(config.TriggerConfig(runtime, loc, &log.Logger)),
			Interval: config.PrestageInterval,
		}
		go scheduler.Run(ctx)
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", config.Port),
		Handler:           edge,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	log.Info().Msgf("Proxying port %v to %s (with hostname '%s')", config.Port, originURL.String(), config.OriginHost)
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
