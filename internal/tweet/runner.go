package tweet

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ahmethakanbesel/stocksent/internal/scraper"
)

const dateFormat = "2006-01-02"

// Runner splits a query's date range into windows of poolsize days and
// runs one bulk search per window.
type Runner struct {
	searcher scraper.TweetSearcher
}

func NewRunner(searcher scraper.TweetSearcher) *Runner {
	return &Runner{searcher: searcher}
}

// Query returns the records of every window in window order. Each window
// asks for at least N tweets per day. A search failure aborts the query.
func (r *Runner) Query(ctx context.Context, q Query, poolsize int) ([]Record, error) {
	q = q.withDefaults()
	if strings.TrimSpace(q.Query) == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}
	if q.Until.Before(q.Since) {
		return nil, fmt.Errorf("until %s is before since %s", q.Until.Format(dateFormat), q.Since.Format(dateFormat))
	}
	if poolsize <= 0 {
		poolsize = DefaultPoolSize
	}

	var records []Record
	for _, w := range scraper.SplitDateRange(q.Since, q.Until, poolsize) {
		tweets, err := r.searcher.Search(ctx, scraper.SearchRequest{
			Query:    q.Query,
			Lang:     q.Lang,
			From:     w.From,
			To:       w.To,
			Limit:    q.N * w.Days(),
			PoolSize: poolsize,
		})
		if err != nil {
			return nil, err
		}
		for _, t := range tweets {
			records = append(records, NewRecord(t))
		}
		slog.Info("queried tweet window", "query", q.Query,
			"from", w.From.Format(dateFormat), "to", w.To.Format(dateFormat), "count", len(tweets))
	}
	return records, nil
}
