package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"wabridge/internal/config"
	"wabridge/internal/constants"
	"wabridge/internal/relay"
	"wabridge/internal/security"
	"wabridge/internal/service"
	"wabridge/internal/tracing"
	"wabridge/pkg/transport/wmeow"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	// CLI flags
	verbose    = flag.Bool("verbose", false, "Enable verbose logging")
	configPath = flag.String("config", "config.json", "Path to configuration file")
	version    = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("wabridge %s\nBuild Time: %s\nGit Commit: %s\n", Version, BuildTime, GitCommit)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logrus.Fatalf("Application error: %v", err)
	}
}

func run(ctx context.Context) error {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	logger.WithFields(logrus.Fields{
		"version": Version,
		"build":   BuildTime,
		"commit":  GitCommit,
	}).Info("Starting wabridge")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else if cfg.LogLevel != "" {
		level, err := logrus.ParseLevel(cfg.LogLevel)
		if err != nil {
			logger.Warnf("Invalid log level %q, defaulting to info", cfg.LogLevel)
			level = logrus.InfoLevel
		}
		logger.SetLevel(level)
	}

	tracingManager := tracing.NewManager(cfg.Tracing, logger)
	if err := tracingManager.Initialize(ctx); err != nil {
		logger.Warnf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := tracingManager.Shutdown(context.Background()); err != nil {
			logger.Warnf("Failed to shutdown tracing: %v", err)
		}
	}()

	encryptor, err := security.NewEncryptor()
	if err != nil {
		return fmt.Errorf("failed to initialize config encryption: %w", err)
	}

	configs, err := service.NewConfigStore(cfg.ConfigDir, encryptor)
	if err != nil {
		return fmt.Errorf("failed to initialize config store: %w", err)
	}

	store := service.NewSessionStore()
	poster := relay.NewPoster(constants.DefaultWebhookTimeoutSec*time.Second, logger)
	media := relay.NewMediaRelay(cfg.MediaDir, poster, logger)
	unmapped := relay.NewUnmappedLog(cfg.UnmappedLogPath, logger)
	connector := wmeow.NewConnector(cfg.DataDir, logger)

	controller := service.NewController(store, configs, connector, poster, media, unmapped, cfg.CallbackURL, cfg.DataDir, logger)
	gateway := service.NewSendGateway(store, configs, constants.DefaultDownloadTimeoutSec*time.Second, logger)

	// The scheduler runs once at startup, so session recovery and the first
	// staleness sweep happen before the ticker kicks in.
	scheduler := service.NewScheduler(cfg.MediaDir, cfg.RetentionDays, cfg.CleanupIntervalHours, logger)
	scheduler.SetSweep(controller.InitializeRecentlyActiveSessions)
	go scheduler.Start(ctx)
	defer scheduler.Stop()

	server := NewServer(cfg, controller, gateway, logger)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.DefaultGracefulShutdownSec*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}
