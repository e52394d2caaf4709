package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goodtune/studyspot/internal/config"
	"github.com/goodtune/studyspot/internal/dedupe"
	"github.com/goodtune/studyspot/internal/metrics"
	"github.com/goodtune/studyspot/internal/session"
	"github.com/goodtune/studyspot/internal/slackbot"
	"github.com/goodtune/studyspot/internal/study"
	"github.com/goodtune/studyspot/internal/sweeper"
	"github.com/goodtune/studyspot/internal/systemd"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/slack-go/slack/socketmode"
	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"server"},
	Short:   "Start the studyspot bot",
	Long:    `Connect to Slack over Socket Mode, run the expiry sweeper and serve metrics.`,
	RunE:    runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)
}

func runServer(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := config.ValidateSlack(cfg.Slack); err != nil {
		return err
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)
	log.Logger = logger

	logger.Info().
		Str("version", version).
		Str("config", configPath).
		Msg("Starting studyspot")

	// Check for systemd socket activation
	sdListeners, err := systemd.GetListeners()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to get systemd listeners")
	}

	if sdListeners.Activated {
		logger.Info().Msg("Using systemd socket activation")
	}

	loc, err := cfg.Study.Location()
	if err != nil {
		return err
	}

	// Initialize Session Registry
	registry := session.NewRegistry(session.Config{
		DefaultLocation: cfg.Study.DefaultLocation,
	}, logger)

	// Initialize Slack client and study service
	client := slackbot.NewClient(cfg.Slack.BotToken, cfg.Slack.AppToken, cfg.Slack.Debug)

	service := study.NewService(registry, slackbot.NewMessenger(client, logger), study.Config{
		ChannelID:       cfg.Study.ChannelID,
		Location:        loc,
		OtherLocation:   cfg.Study.OtherLocation,
		DefaultLocation: cfg.Study.DefaultLocation,
	}, logger)

	if cfg.Study.ChannelID == "" {
		logger.Warn().Msg("No study channel configured, announcements are acknowledged privately only")
	}

	logger.Info().
		Str("channel_id", cfg.Study.ChannelID).
		Str("timezone", loc.String()).
		Int("locations", len(cfg.Study.Locations)).
		Msg("Study service initialized")

	// Initialize Expiry Sweeper
	expirySweeper := sweeper.New(registry, service.Retract, sweeper.Config{
		Interval:       parseDuration(cfg.Sweeper.Interval, sweeper.DefaultInterval),
		RetractTimeout: parseDuration(cfg.Sweeper.RetractTimeout, sweeper.DefaultRetractTimeout),
	}, logger)

	expirySweeper.Start()
	logger.Info().Msg("Expiry Sweeper started")

	// Initialize event de-duplication
	store, err := dedupe.Open(cfg.Dedupe)
	if err != nil {
		return fmt.Errorf("failed to initialize event de-duplication: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close de-duplication store")
		}
	}()

	logger.Info().Str("backend", cfg.Dedupe.Backend).Msg("Event de-duplication initialized")

	// Initialize Slack bot
	bot := slackbot.New(client, service, store, slackbot.Config{
		Locations:      cfg.Study.Locations,
		Workers:        cfg.Slack.Workers,
		RequestTimeout: parseDuration(cfg.Slack.RequestTimeout, slackbot.DefaultRequestTimeout),
	}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	botErr := make(chan error, 1)
	go func() {
		botErr <- bot.Run(ctx, socketmode.New(client, socketmode.OptionDebug(cfg.Slack.Debug)))
	}()

	// Initialize Metrics Server
	metricsAddr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.MetricsPort)
	metricsServer := metrics.NewServer(metricsAddr, logger)

	// Use systemd socket-activated listener if available
	if sdListeners.Activated && sdListeners.Metrics != nil {
		metricsServer.SetListener(sdListeners.Metrics)
	}

	if err := metricsServer.Start(); err != nil {
		return fmt.Errorf("failed to start Metrics Server: %w", err)
	}

	logger.Info().
		Str("addr", metricsAddr).
		Msg("Metrics Server started")

	// Log startup complete
	logger.Info().Msg("studyspot startup complete")
	logger.Info().Msgf("Metrics: http://%s:%d/metrics", cfg.Server.BindAddress, cfg.Server.MetricsPort)

	// Notify systemd that we're ready to serve requests
	if err := systemd.NotifyReady(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd ready notification")
	} else {
		logger.Debug().Msg("Sent systemd ready notification")
	}
	go systemd.RunWatchdog(ctx, logger)

	// Wait for signals (shutdown or status)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	var runErr error

	// Signal handling loop
loop:
	for {
		select {
		case sig := <-sigChan:
			switch sig {
			case syscall.SIGHUP:
				logger.Info().
					Int("sessions", registry.Len()).
					Msg("SIGHUP received, registry status")
				continue
			case os.Interrupt, syscall.SIGTERM:
				logger.Info().Msg("Shutdown signal received, gracefully stopping...")
			}
			break loop
		case err := <-botErr:
			if err != nil {
				logger.Error().Err(err).Msg("Slack bot stopped")
				runErr = err
			}
			break loop
		}
	}

	// Notify systemd that we're stopping
	if err := systemd.NotifyStopping(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd stopping notification")
	}

	// Stop accepting events, then finish the queued ones
	cancel()
	select {
	case <-botErr:
	case <-time.After(parseDuration(cfg.Slack.RequestTimeout, slackbot.DefaultRequestTimeout)):
		logger.Warn().Msg("Timed out waiting for in-flight events")
	}

	expirySweeper.Stop()

	if err := metricsServer.Stop(); err != nil {
		logger.Error().Err(err).Msg("Error stopping Metrics Server")
	}

	logger.Info().Msg("studyspot stopped")

	return runErr
}

// setupLogger configures the logger based on configuration
func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	// Set log level
	level := zerolog.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	zerolog.SetGlobalLevel(level)

	// Set output format
	if cfg.Format == "text" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Default to JSON
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// parseDuration parses a duration string with a fallback
func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
