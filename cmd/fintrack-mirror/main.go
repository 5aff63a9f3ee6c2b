package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"fintrack/internal/backend"
	"fintrack/internal/cli"
	"fintrack/internal/config"
	"fintrack/internal/log"
	"fintrack/internal/sheets"
	gsheet "fintrack/internal/sheets/google"
	"fintrack/internal/worker"
)

// resyncInterval bounds how long a change missed by the consumer stays
// unmirrored.
const resyncInterval = time.Hour

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig((*config.Config).ValidateMirror)
	logger := log.Default().WithComponent(log.ComponentMirror)

	logger.Info("Starting fintrack-mirror")

	ctx, cancel := cli.GracefulShutdown(logger)
	defer cancel()

	bcfg, err := backend.FromAppConfig(cfg, cfg.AMQPMirrorQueue)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	be, err := backend.Open(ctx, bcfg)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err)
		os.Exit(1)
	}
	defer func() {
		if err := be.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", log.FieldError, err)
		}
	}()
	if be.Bus == nil {
		logger.Error("Change bus is unreachable", "url_set", cfg.AMQPURL != "")
		os.Exit(1)
	}

	sheet, err := gsheet.New(ctx, gsheet.Config{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		SheetName:       cfg.GoogleSheetName,
		CredentialsJSON: cfg.GoogleServiceAccountJSON,
		CredentialsFile: cfg.GoogleServiceAccountFile,
	})
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Google Sheets client initialized", log.FieldSheetsRef, cfg.GoogleSpreadsheetID)

	w := worker.NewMirrorWorker(be.Store, sheets.NewMirror(sheet))

	logger.Info("Performing startup sync check...")
	if err := w.StartupSyncCheck(ctx); err != nil {
		logger.Error("Failed startup sync check", log.FieldError, err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := be.Bus.ConsumeLedgerChanges(gctx, w.HandleLedgerChanged)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		ticker := time.NewTicker(resyncInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if err := w.StartupSyncCheck(gctx); err != nil {
					logger.Error("Periodic resync failed", log.FieldError, err)
				}
			}
		}
	})

	if err := g.Wait(); err != nil {
		logger.Error("Message consumption failed", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Mirror shutdown complete")
}
