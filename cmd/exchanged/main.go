package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/openoutcry/exchange/params"
	"github.com/openoutcry/exchange/pkg/api"
	"github.com/openoutcry/exchange/pkg/exchange"
	"github.com/openoutcry/exchange/pkg/storage"
	"github.com/openoutcry/exchange/pkg/util"
)

func main() {
	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv("")

	var (
		logger *zap.Logger
		err    error
	)
	if cfg.LogFile != "" {
		logger, err = util.NewLoggerWithFile(cfg.LogFile)
	} else {
		logger, err = util.NewLogger()
	}
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	// ---- Trade journal (optional audit trail) ----
	var journal *storage.TradeLog
	if cfg.Storage.TradeJournal {
		path := filepath.Join(cfg.Storage.DataDir, "trades")
		journal, err = storage.OpenTradeLog(path)
		if err != nil {
			logger.Fatal("open trade journal", zap.Error(err))
		}
		defer journal.Close()
		logger.Info("trade journal open", zap.String("path", path))
	}

	// ---- Exchange + event fan-out ----
	hub := api.NewHub(logger)
	ex := exchange.New(exchange.Options{
		StartingCash: cfg.Game.StartingCash,
		DepthLevels:  cfg.Game.DepthLevels,
	}, logger, journal, api.NewBroadcaster(hub))

	srv := api.NewServer(ex, hub, cfg.API, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			logger.Fatal("server failed", zap.Error(err))
		}
	case sig := <-stop:
		logger.Info("shutting down", zap.Stringer("signal", sig))
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Warn("shutdown", zap.Error(err))
		}
	}
}
