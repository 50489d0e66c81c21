package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/friendsincode/memorix/internal/config"
	"github.com/friendsincode/memorix/internal/db"
	"github.com/friendsincode/memorix/internal/events"
	"github.com/friendsincode/memorix/internal/logbuffer"
	"github.com/friendsincode/memorix/internal/logging"
	"github.com/friendsincode/memorix/internal/scan"
	"github.com/friendsincode/memorix/internal/server"
	"github.com/friendsincode/memorix/internal/telemetry"
)

var (
	logger zerolog.Logger
	cfg    *config.Config
	logBuf *logbuffer.Buffer
)

var rootCmd = &cobra.Command{
	Use:   "memorix",
	Short: "Memorix - Media catalog and storage reconciliation service",
	Long:  "Memorix walks local, NAS and S3 storage backends, reconciles discovered media against its catalog, and serves originals, thumbnails and live photo streams over HTTP.",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Memorix server",
	Long:  "Start the HTTP API server with metrics and the scan endpoint",
	RunE:  runServe,
}

var scanCmd = &cobra.Command{
	Use:   "scan <storage-id>",
	Short: "Run a scan for one storage from the command line",
	Args:  cobra.ExactArgs(1),
	RunE:  runScan,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	RunE:  runMigrate,
}

var scanMode string

func init() {
	scanCmd.Flags().StringVar(&scanMode, "mode", "incremental", "scan mode: incremental or full")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration (called by commands that need it)
func loadConfig() error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logBuf = logbuffer.New(1000)
	logger = logging.SetupWithWriter(cfg.Environment, logbuffer.NewWriter(logBuf, nil))
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	logger.Info().Msg("Memorix starting")

	gormDB, err := db.Connect(cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer func() { _ = db.Close(gormDB) }()

	if err := db.Migrate(gormDB); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	if err := db.RegisterCallbacks(gormDB); err != nil {
		return fmt.Errorf("register db callbacks: %w", err)
	}

	bus := events.NewBus()
	scans := scan.NewService(gormDB, cfg, bus, logger)
	srv := server.New(cfg, gormDB, bus, scans, logBuf, logger)

	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server error")
		}
	}()

	// Separate metrics listener, bound to loopback by default.
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", telemetry.Handler())
	metricsServer := &http.Server{
		Addr:              cfg.MetricsBind,
		Handler:           metricsMux,
		ReadHeaderTimeout: 15 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("metrics server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down gracefully...")

	timeoutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := metricsServer.Shutdown(timeoutCtx); err != nil {
		logger.Error().Err(err).Msg("metrics shutdown failed")
	}
	if err := srv.Close(); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("Memorix stopped")
	return nil
}

func runScan(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	gormDB, err := db.Connect(cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer func() { _ = db.Close(gormDB) }()

	if err := db.Migrate(gormDB); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	if err := db.RegisterCallbacks(gormDB); err != nil {
		return fmt.Errorf("register db callbacks: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	scans := scan.NewService(gormDB, cfg, events.NewBus(), logger)
	summary, err := scans.Run(ctx, scan.RunOptions{
		StorageID: args[0],
		Mode:      scan.ParseMode(scanMode),
		OnProgress: func(p scan.Progress) {
			fmt.Printf("%s: %d/%d\n", p.Stage, p.Processed, p.Total)
		},
	})
	if err != nil {
		return err
	}

	fmt.Printf("scan complete: %d/%d objects processed\n", summary.Processed, summary.Total)
	return nil
}

func runMigrate(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	gormDB, err := db.Connect(cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer func() { _ = db.Close(gormDB) }()

	if err := db.Migrate(gormDB); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	logger.Info().Msg("migrations applied")
	return nil
}
