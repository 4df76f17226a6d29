// Command fetch-tweets scrapes tweets for every company in a company table
// and stores one gzip-compressed CSV per company.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ahmethakanbesel/stocksent/internal/config"
	"github.com/ahmethakanbesel/stocksent/internal/job"
	"github.com/ahmethakanbesel/stocksent/internal/platform/logger"
	"github.com/ahmethakanbesel/stocksent/internal/platform/sqlite"
	jobrepo "github.com/ahmethakanbesel/stocksent/internal/repository/job"
	"github.com/ahmethakanbesel/stocksent/internal/scraper/twitter"
	"github.com/ahmethakanbesel/stocksent/internal/tweet"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fetch tweets failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath    = flag.String("config", "stocksent.yaml", "path to YAML config file")
		companiesPath = flag.String("companies", "", "CSV with Symbol and Security columns (required)")
		queriesPath   = flag.String("queries", "", "YAML list of queries, one per company; defaults to $SYMBOL cashtags")
		dir           = flag.String("dir", "", "output directory (default from config)")
		overwrite     = flag.Bool("overwrite", false, "refetch companies whose file already exists")
		poolsize      = flag.Int("poolsize", 0, "days per search window and concurrent day queries (default from config)")
		record        = flag.Bool("record", false, "record runs in the database")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	slog.SetDefault(logger.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format))

	if *companiesPath == "" {
		return fmt.Errorf("-companies is required")
	}
	companies, err := loadCompanies(*companiesPath)
	if err != nil {
		return err
	}

	queries := tweet.CashtagQueries(companies)
	if *queriesPath != "" {
		if queries, err = loadQueries(*queriesPath); err != nil {
			return err
		}
	}

	outDir := cfg.Tweets.Dir
	if *dir != "" {
		outDir = *dir
	}
	pool := cfg.Tweets.PoolSize
	if *poolsize > 0 {
		pool = *poolsize
	}

	var jobRepo job.Repository
	if *record {
		db, err := sqlite.Open(cfg.Storage.DBPath)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()
		jobRepo = jobrepo.NewRepository(db.DB)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	orch := tweet.NewOrchestrator(twitter.New(twitter.WithBaseURL(cfg.Tweets.BaseURL)), jobRepo)
	return orch.FetchAll(ctx, companies, queries, outDir, *overwrite || cfg.Tweets.Overwrite, pool)
}

func loadCompanies(path string) ([]tweet.Company, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from a command-line flag
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return tweet.LoadCompanies(f)
}

func loadQueries(path string) ([]tweet.Query, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from a command-line flag
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return tweet.LoadQueries(f)
}
