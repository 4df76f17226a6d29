// Command fetch-prices downloads daily closes for a list of symbols and
// writes them as CSV or Parquet.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ahmethakanbesel/stocksent/internal/config"
	"github.com/ahmethakanbesel/stocksent/internal/job"
	"github.com/ahmethakanbesel/stocksent/internal/platform/logger"
	"github.com/ahmethakanbesel/stocksent/internal/platform/sqlite"
	"github.com/ahmethakanbesel/stocksent/internal/price"
	jobrepo "github.com/ahmethakanbesel/stocksent/internal/repository/job"
	pricerepo "github.com/ahmethakanbesel/stocksent/internal/repository/price"
	"github.com/ahmethakanbesel/stocksent/internal/scraper/iex"
	"github.com/ahmethakanbesel/stocksent/internal/store"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fetch prices failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  = flag.String("config", "stocksent.yaml", "path to YAML config file")
		symbolsFlag = flag.String("symbols", "", "comma-separated symbols")
		symbolsFile = flag.String("symbols-file", "", "file with one symbol per line")
		fromFlag    = flag.String("from", "2017-1-1", "first day, YYYY-MM-DD")
		toFlag      = flag.String("to", "2018-1-1", "last day, YYYY-MM-DD")
		out         = flag.String("out", "prices.csv", "output file (.csv or .parquet), - for CSV on stdout")
		save        = flag.Bool("save", false, "also store the closes in the database")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	slog.SetDefault(logger.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format))

	symbols := splitList(*symbolsFlag)
	if *symbolsFile != "" {
		fromFile, err := readSymbols(*symbolsFile)
		if err != nil {
			return err
		}
		symbols = append(symbols, fromFile...)
	}

	from, err := price.ParseDate(*fromFlag)
	if err != nil {
		return fmt.Errorf("invalid -from: %w", err)
	}
	to, err := price.ParseDate(*toFlag)
	if err != nil {
		return fmt.Errorf("invalid -to: %w", err)
	}

	var (
		priceRepo price.Repository
		jobRepo   job.Repository
	)
	if *save {
		db, err := sqlite.Open(cfg.Storage.DBPath)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()
		priceRepo = pricerepo.NewRepository(db.DB)
		jobRepo = jobrepo.NewRepository(db.DB)
	}

	src := iex.New(
		iex.WithRefDataURL(cfg.Prices.RefDataURL),
		iex.WithChartEndpoint(cfg.Prices.ChartEndpoint),
	)
	svc := price.NewService(src, priceRepo, jobRepo, price.Options{
		ChunkSize:      cfg.Prices.ChunkSize,
		ChunkDelay:     cfg.Prices.ChunkDelay,
		MaxAttempts:    cfg.Prices.MaxAttempts,
		RetryBaseDelay: cfg.Prices.RetryBaseDelay,
		MissingSymbols: price.MissingSymbolPolicy(cfg.Prices.MissingSymbols),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	table, err := svc.FetchPrices(ctx, price.Request{Symbols: symbols, From: from, To: to})
	if err != nil {
		return err
	}

	if *out == "-" {
		return store.WriteTableCSV(os.Stdout, table)
	}
	if err := store.WriteFile(*out, table); err != nil {
		return err
	}
	slog.Info("wrote prices", "path", *out, "symbols", len(table.Symbols), "points", table.Len())
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func readSymbols(path string) ([]string, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from a command-line flag
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return scanSymbols(f)
}

// scanSymbols reads one symbol per line, skipping blanks and # comments.
func scanSymbols(r io.Reader) ([]string, error) {
	var symbols []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		symbols = append(symbols, strings.ToUpper(line))
	}
	return symbols, sc.Err()
}
