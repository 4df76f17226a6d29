package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ahmethakanbesel/stocksent/internal/config"
	"github.com/ahmethakanbesel/stocksent/internal/job"
	"github.com/ahmethakanbesel/stocksent/internal/platform/logger"
	"github.com/ahmethakanbesel/stocksent/internal/platform/sqlite"
	"github.com/ahmethakanbesel/stocksent/internal/price"
	jobrepo "github.com/ahmethakanbesel/stocksent/internal/repository/job"
	pricerepo "github.com/ahmethakanbesel/stocksent/internal/repository/price"
	"github.com/ahmethakanbesel/stocksent/internal/scraper/iex"
	"github.com/ahmethakanbesel/stocksent/internal/server"
)

func main() {
	configPath := flag.String("config", "stocksent.yaml", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logger.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format))

	// Root context: cancelled on SIGINT/SIGTERM so in-flight price fetches
	// stop promptly during graceful shutdown.
	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	db, err := sqlite.Open(cfg.Storage.DBPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	jobRepo := jobrepo.NewRepository(db.DB)
	src := iex.New(
		iex.WithRefDataURL(cfg.Prices.RefDataURL),
		iex.WithChartEndpoint(cfg.Prices.ChartEndpoint),
	)

	priceSvc := price.NewService(src, pricerepo.NewRepository(db.DB), jobRepo, price.Options{
		ChunkSize:      cfg.Prices.ChunkSize,
		ChunkDelay:     cfg.Prices.ChunkDelay,
		MaxAttempts:    cfg.Prices.MaxAttempts,
		RetryBaseDelay: cfg.Prices.RetryBaseDelay,
		MissingSymbols: price.MissingSymbolPolicy(cfg.Prices.MissingSymbols),
	})
	jobSvc := job.NewService(jobRepo)

	srv := server.New(rootCtx, cfg.Server.Port, cfg.Server.WriteTimeout, priceSvc, jobSvc)

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("server started", "port", cfg.Server.Port, "db", cfg.Storage.DBPath)
	<-done

	// Cancel root context first so in-flight fetches begin winding down.
	rootCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	slog.Info("server stopped")
}
