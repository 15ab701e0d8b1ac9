package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"monthbook/internal/cli"
	apphttp "monthbook/internal/http"
	"monthbook/internal/log"
	"monthbook/internal/middleware/ratelimit"
	"monthbook/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentApp)
	logger.Info("Starting monthbook")

	cfg := cli.LoadAndValidateConfig(logger)

	store := cli.OpenLedger(logger, cfg.LedgerDataFile)
	exports := cli.OpenExportLog(logger, cfg.ExportLogDBPath)
	defer exports.Close()

	// The ledger service takes an interface; a nil *amqp.Client must not
	// be stored in it.
	var events services.EventPublisher
	amqpClient, err := cli.ConnectAMQP(logger, cfg)
	if err != nil {
		logger.Warn("AMQP unavailable, ledger events disabled", log.FieldError, err)
	} else if amqpClient != nil {
		defer amqpClient.Close()
		events = amqpClient
	}

	ledger := services.NewLedgerService(store, events)
	reports := cli.NewReportService(logger, cfg, store, exports)

	rl := ratelimit.DefaultConfig()
	rl.RequestsPerMinute = cfg.RateLimitPerMinute
	rl.Burst = cfg.RateLimitBurst

	srv := apphttp.NewServer(cfg.Addr(), ledger, reports, apphttp.Options{
		RateLimit: rl,
		Ready: func(context.Context) error {
			if _, err := os.Stat(cfg.ReportDir); err != nil {
				return fmt.Errorf("report dir: %w", err)
			}
			if _, err := os.Stat(store.Path()); err != nil {
				return fmt.Errorf("ledger file: %w", err)
			}
			return nil
		},
	})

	srv.ReadTimeout = 15 * time.Second
	// Exports wait on uploads before responding.
	srv.WriteTimeout = cfg.UploadTimeout + 15*time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	_, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
	})

	logger.Info("Server starting",
		"addr", srv.Addr,
		"ledger", cfg.LedgerDataFile,
		"report_dir", cfg.ReportDir,
		"drive_folder", cfg.DriveFolderID,
		"s3_bucket", cfg.S3Bucket,
	)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server failed to start", log.FieldError, err, "addr", srv.Addr)
		os.Exit(1)
	}

	<-done
	logger.Info("Server stopped")
}
