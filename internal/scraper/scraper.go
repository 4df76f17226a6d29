package scraper

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// ChartPoint is one daily record as returned by a chart endpoint. Label is
// the display label ("Jan 5" or "Jan 5, 17"); Date is set only by sources
// that report it.
type ChartPoint struct {
	Label string  `json:"label"`
	Date  string  `json:"date"`
	Close float64 `json:"close"`
}

// PriceSource is a remote service exposing a symbol universe and trailing
// daily chart history.
type PriceSource interface {
	Source() string
	KnownSymbols(ctx context.Context) (map[string]struct{}, error)
	Chart(ctx context.Context, symbol, rangeToken string) ([]ChartPoint, error)
}

// Tweet is a single scraped tweet.
type Tweet struct {
	ID        string
	User      string
	Fullname  string
	URL       string
	Timestamp time.Time
	Text      string
	HTML      string
	Replies   int
	Retweets  int
	Likes     int
}

// SearchRequest describes one bulk search over an inclusive day range.
// Limit of zero means no limit.
type SearchRequest struct {
	Query    string
	Lang     string
	From     time.Time
	To       time.Time
	Limit    int
	PoolSize int
}

// TweetSearcher runs bulk tweet searches.
type TweetSearcher interface {
	Search(ctx context.Context, req SearchRequest) ([]Tweet, error)
}

// StatusError reports a non-200 response from an upstream endpoint.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned HTTP %d", e.URL, e.StatusCode)
}

// Retryable reports whether the request may succeed if repeated.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}
