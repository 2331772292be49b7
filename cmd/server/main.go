package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/mcastellan/chatwire/internal/api"
	"github.com/mcastellan/chatwire/internal/config"
	"github.com/mcastellan/chatwire/internal/server"
	"github.com/mcastellan/chatwire/internal/stats"
	"github.com/mcastellan/chatwire/internal/store"
)

func main() {
	zl, err := zap.NewProduction()
	if err != nil {
		os.Exit(1)
	}
	logger := zl.Sugar()
	defer logger.Sync()

	cfg, err := config.FromEnv()
	if err != nil {
		logger.Fatalw("config", "error", err)
	}

	db, err := store.NewPgChatRepository(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatalw("db open", "error", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Errorw("db close", "error", err)
		}
	}()

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)

	chatServer := server.NewChatServer(logger, db, statsUpdater)

	srv := api.NewApp(mux, logger, chatServer, db, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Infow("received signal", "signal", sig.String())
	case err := <-errCh:
		logger.Errorw("server", "error", err)
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Errorw("HTTP server shutdown", "error", err)
	}

	logger.Info("shutting down chat server...")
	chatServer.Shutdown()

	logger.Info("shutdown complete")
}
