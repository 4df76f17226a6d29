package tweet

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ahmethakanbesel/stocksent/internal/scraper"
)

type mockSearcher struct {
	mu       sync.Mutex
	requests []scraper.SearchRequest
	perCall  int
	failOn   string // query that fails
	err      error
}

func (m *mockSearcher) Search(_ context.Context, req scraper.SearchRequest) ([]scraper.Tweet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if m.failOn != "" && req.Query == m.failOn {
		return nil, m.err
	}

	tweets := make([]scraper.Tweet, m.perCall)
	for i := range tweets {
		tweets[i] = scraper.Tweet{
			ID:        fmt.Sprintf("%s-%d-%d", req.From.Format("20060102"), len(m.requests), i),
			User:      "trader",
			Fullname:  "Day Trader",
			URL:       "/trader/status/1",
			Timestamp: req.From.Add(time.Duration(i) * time.Hour),
			Text:      "buying " + req.Query,
			HTML:      "<p>buying " + req.Query + "</p>",
			Likes:     i,
		}
	}
	return tweets, nil
}

func (m *mockSearcher) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
