package tweet

import (
	"strconv"
	"time"

	"github.com/ahmethakanbesel/stocksent/internal/scraper"
)

const (
	DefaultPoolSize = 30
	DefaultLang     = "en"

	timestampFormat = "2006-01-02 15:04:05"
)

var (
	DefaultSince = time.Date(2017, 1, 1, 0, 0, 0, 0, time.UTC)
	DefaultUntil = time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC)
)

// Columns is the attribute order of a Record in batch files.
var Columns = []string{"user", "fullname", "id", "url", "timestamp", "text", "replies", "retweets", "likes"}

// Record is a tweet's attributes keyed by column name. The raw html
// attribute is never present.
type Record map[string]string

// NewRecord flattens a scraped tweet into its attribute mapping.
func NewRecord(t scraper.Tweet) Record {
	r := Record{
		"user":      t.User,
		"fullname":  t.Fullname,
		"id":        t.ID,
		"url":       t.URL,
		"timestamp": t.Timestamp.UTC().Format(timestampFormat),
		"text":      t.Text,
		"replies":   strconv.Itoa(t.Replies),
		"retweets":  strconv.Itoa(t.Retweets),
		"likes":     strconv.Itoa(t.Likes),
		"html":      t.HTML,
	}
	delete(r, "html")
	return r
}

// Company is one row of the company table.
type Company struct {
	Symbol   string
	Security string
}

// Query describes one company's search. Zero fields take the defaults:
// Since 2017-01-01, Until 2018-01-01, Lang "en" and N 0 (no limit).
type Query struct {
	Query string
	N     int
	Since time.Time
	Until time.Time
	Lang  string
}

func (q Query) withDefaults() Query {
	if q.Since.IsZero() {
		q.Since = DefaultSince
	}
	if q.Until.IsZero() {
		q.Until = DefaultUntil
	}
	if q.Lang == "" {
		q.Lang = DefaultLang
	}
	if q.N < 0 {
		q.N = 0
	}
	return q
}
