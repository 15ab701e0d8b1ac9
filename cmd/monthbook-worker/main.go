package main

import (
	"context"
	"errors"
	"os"
	"time"

	"monthbook/internal/cli"
	"monthbook/internal/log"
	"monthbook/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentWorker)
	logger.Info("Starting monthbook-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the mirror worker")
		os.Exit(1)
	}

	store := cli.OpenLedger(logger, cfg.LedgerDataFile)
	exports := cli.OpenExportLog(logger, cfg.ExportLogDBPath)
	defer exports.Close()

	reports := cli.NewReportService(logger, cfg, store, exports)

	amqpClient, err := cli.ConnectAMQP(logger, cfg)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	mirror := worker.NewMirrorWorker(reports, worker.Config{
		FlushInterval: cfg.MirrorFlushInterval,
		MaxRetries:    cfg.MirrorMaxRetries,
	})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		// Stop flushes what is still pending.
		if err := mirror.Stop(ctx); err != nil {
			logger.Error("Mirror worker shutdown error", log.FieldError, err)
		}
	})

	// The flush loop outlives the signal so Stop can run its final flush.
	if err := mirror.Start(context.WithoutCancel(ctx)); err != nil {
		logger.Error("Failed to start mirror worker", log.FieldError, err)
		os.Exit(1)
	}

	go func() {
		err := amqpClient.ConsumeLedgerChanged(ctx, mirror.HandleLedgerChanged)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Message consumption failed", log.FieldError, err)
		}
	}()

	cli.WaitForShutdown(ctx, done)
}
