package tweet

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ahmethakanbesel/stocksent/internal/apperror"
	"github.com/ahmethakanbesel/stocksent/internal/job"
	"github.com/ahmethakanbesel/stocksent/internal/scraper"
)

type Orchestrator struct {
	runner   *Runner
	recorder *job.Recorder
}

// NewOrchestrator creates an Orchestrator. jobRepo may be nil.
func NewOrchestrator(searcher scraper.TweetSearcher, jobRepo job.Repository) *Orchestrator {
	return &Orchestrator{
		runner:   NewRunner(searcher),
		recorder: job.NewRecorder(jobRepo),
	}
}

// FetchAll runs queries[i] for companies[i] and writes each company's
// tweets to <dir>/<symbol>.csv.gz. A company whose file already exists is
// skipped unless overwrite is set. The first failure stops the iteration;
// files written before it are kept.
func (o *Orchestrator) FetchAll(ctx context.Context, companies []Company, queries []Query, dir string, overwrite bool, poolsize int) error {
	if len(companies) != len(queries) {
		return apperror.New(apperror.BadRequest,
			fmt.Sprintf("got %d companies but %d queries", len(companies), len(queries)))
	}
	for _, c := range companies {
		if c.Symbol == "" {
			return apperror.New(apperror.BadRequest, "company symbol cannot be empty")
		}
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create tweet dir: %w", err)
	}

	for i, c := range companies {
		if err := ctx.Err(); err != nil {
			return err
		}

		q := queries[i].withDefaults()
		path := BatchPath(dir, c.Symbol)

		if !overwrite {
			exists, err := fileExists(path)
			if err != nil {
				return err
			}
			if exists {
				slog.Info("skipping company, tweets already fetched", "symbol", c.Symbol, "path", path)
				o.recorder.Skip(ctx, job.KindTweets, c.Symbol, q.Since, q.Until)
				continue
			}
		}

		run := o.recorder.Start(ctx, job.KindTweets, c.Symbol, q.Since, q.Until)
		records, err := o.runner.Query(ctx, q, poolsize)
		if err == nil {
			err = WriteBatchFile(path, records)
		}
		if err != nil {
			o.recorder.Fail(ctx, run, err)
			return fmt.Errorf("fetch tweets for %s: %w", c.Symbol, err)
		}
		o.recorder.Complete(ctx, run, int64(len(records)))

		slog.Info("fetched tweets", "count", len(records), "security", c.Security, "symbol", c.Symbol)
	}
	return nil
}

// BatchPath returns the batch file location for symbol.
func BatchPath(dir, symbol string) string {
	return filepath.Join(dir, symbol+batchExt)
}

func fileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
}
