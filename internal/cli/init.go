// Package cli holds the start-up steps shared by cmd/monthbook and
// cmd/monthbook-worker.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"monthbook/internal/amqp"
	"monthbook/internal/config"
	"monthbook/internal/log"
	"monthbook/internal/report"
	"monthbook/internal/services"
	"monthbook/internal/storage"
	"monthbook/internal/upload"
	"monthbook/internal/upload/drive"
	"monthbook/internal/upload/s3"
)

// SetupLogger builds the process logger at LOG_LEVEL and installs it as
// the slog default. Call LoadEnvFile first so .env can set the level.
func SetupLogger(component string) *log.Logger {
	logger := log.New(log.Config{
		Level:     log.ParseLevel(os.Getenv("LOG_LEVEL")),
		Component: component,
		Output:    os.Stdout,
	})
	log.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig(logger *log.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}
	return cfg
}

// OpenLedger opens the JSON ledger or exits.
func OpenLedger(logger *log.Logger, path string) *storage.LedgerStore {
	store, err := storage.NewLedgerStore(path)
	if err != nil {
		logger.Error("Failed to open ledger", log.FieldError, err, log.FieldFile, path)
		os.Exit(1)
	}
	return store
}

// OpenExportLog opens the export history database, or returns nil when
// no path is configured. It exits on failure.
func OpenExportLog(logger *log.Logger, dbPath string) *storage.ExportLog {
	if dbPath == "" {
		logger.Info("Export history disabled")
		return nil
	}
	exports, err := storage.NewExportLog(dbPath)
	if err != nil {
		logger.Error("Failed to initialize export log", log.FieldError, err, log.FieldFile, dbPath)
		os.Exit(1)
	}
	return exports
}

// Uploaders returns the configured upload targets. Each reports whether it
// is enabled on every publish, so a Drive credentials file that appears
// later is picked up without a restart.
func Uploaders(logger *log.Logger, cfg *config.Config) []upload.Uploader {
	d := drive.New(drive.Config{
		CredentialsFile: cfg.DriveCredentialsFile,
		FolderID:        cfg.DriveFolderID,
	})
	b := s3.New(s3.Config{
		Bucket:          cfg.S3Bucket,
		Region:          cfg.S3Region,
		Endpoint:        cfg.S3Endpoint,
		AccessKeyID:     cfg.S3AccessKeyID,
		SecretAccessKey: cfg.S3SecretAccessKey,
		Prefix:          cfg.S3Prefix,
	})
	logger.Info("Upload targets",
		"drive_enabled", d.Enabled(),
		"s3_enabled", b.Enabled())
	return []upload.Uploader{d, b}
}

// NewReportService wires the publisher and report service or exits.
func NewReportService(logger *log.Logger, cfg *config.Config, store *storage.LedgerStore, exports *storage.ExportLog) *services.ReportService {
	publisher, err := report.NewPublisher(report.PublisherConfig{
		Dir:           cfg.ReportDir,
		CleanupDelay:  cfg.ReportCleanupDelay,
		UploadTimeout: cfg.UploadTimeout,
	}, exports, Uploaders(logger, cfg)...)
	if err != nil {
		logger.Error("Failed to initialize report publisher", log.FieldError, err, "dir", cfg.ReportDir)
		os.Exit(1)
	}
	return services.NewReportService(store, publisher, exports)
}

// ConnectAMQP dials the broker when AMQP_URL is set. A nil client with a
// nil error means events are disabled.
func ConnectAMQP(logger *log.Logger, cfg *config.Config) (*amqp.Client, error) {
	if cfg.AMQPURL == "" {
		logger.Info("Ledger events disabled - no AMQP_URL provided")
		return nil, nil
	}
	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		return nil, err
	}
	logger.Info("AMQP connected", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	return client, nil
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// The returned context is cancelled on SIGINT or SIGTERM; cleanup then
// runs with a context bounded by timeout, and the returned channel closes
// once it has returned or the timeout has passed.
func GracefulShutdown(logger *log.Logger, timeout time.Duration, cleanup func(context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)

		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String())
		case <-ctx.Done():
		}
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		finished := make(chan struct{})
		go func() {
			defer close(finished)
			if cleanup != nil {
				cleanup(shutdownCtx)
			}
		}()

		select {
		case <-finished:
			logger.Info("Shutdown complete")
		case <-shutdownCtx.Done():
			logger.Warn("Shutdown timeout reached")
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled and cleanup has
// finished.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
