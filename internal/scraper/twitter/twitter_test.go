package twitter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ahmethakanbesel/stocksent/internal/scraper"
)

func tweetItem(id, user, text string, epoch int64, likes int) string {
	return fmt.Sprintf(`<li class="stream-item" data-item-id="%[1]s">
  <div class="tweet" data-screen-name="%[2]s" data-name="%[2]s Name" data-permalink-path="/%[2]s/status/%[1]s">
    <span class="_timestamp" data-time="%[4]d"></span>
    <p class="tweet-text">%[3]s <a href="/hashtag/AAPL">#AAPL</a></p>
    <span class="ProfileTweet-action--reply"><span class="ProfileTweet-actionCount" data-tweet-stat-count="1"></span></span>
    <span class="ProfileTweet-action--retweet"><span class="ProfileTweet-actionCount" data-tweet-stat-count="2"></span></span>
    <span class="ProfileTweet-action--favorite"><span class="ProfileTweet-actionCount" data-tweet-stat-count="%[5]d"></span></span>
  </div>
</li>`, id, user, text, epoch, likes)
}

func searchPage(position string, items ...string) string {
	return `<html><body><div class="stream-container" data-max-position="` + position + `"><ol>` +
		strings.Join(items, "") + `</ol></div></body></html>`
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestSearch_PaginatesTimeline(t *testing.T) {
	var timelineCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("q") != "$AAPL since:2017-01-03 until:2017-01-04" {
			t.Errorf("unexpected query %q", q.Get("q"))
		}
		if q.Get("l") != "en" {
			t.Errorf("expected lang en, got %q", q.Get("l"))
		}
		switch r.URL.Path {
		case "/search":
			_, _ = w.Write([]byte(searchPage("pos-1",
				tweetItem("1", "alice", "first", 1483452000, 3),
				tweetItem("2", "bob", "second", 1483455600, 0),
			)))
		case "/i/search/timeline":
			timelineCalls.Add(1)
			if q.Get("max_position") != "pos-1" {
				t.Errorf("unexpected max_position %q", q.Get("max_position"))
			}
			_ = json.NewEncoder(w).Encode(timelineResponse{
				ItemsHTML:    tweetItem("3", "carol", "third", 1483459200, 7) + tweetItem("2", "bob", "second", 1483455600, 0),
				MinPosition:  "pos-2",
				HasMoreItems: false,
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	s := New(WithClient(srv.Client()), WithBaseURL(srv.URL+"/"))
	tweets, err := s.Search(context.Background(), scraper.SearchRequest{
		Query: "$AAPL", Lang: "en", From: day(2017, 1, 3), To: day(2017, 1, 3), PoolSize: 2,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(tweets) != 3 {
		t.Fatalf("expected 3 unique tweets, got %d", len(tweets))
	}
	if timelineCalls.Load() != 1 {
		t.Errorf("expected 1 timeline request, got %d", timelineCalls.Load())
	}

	first := tweets[0]
	if first.ID != "1" || first.User != "alice" || first.Fullname != "alice Name" {
		t.Errorf("unexpected first tweet: %+v", first)
	}
	if first.URL != "/alice/status/1" {
		t.Errorf("unexpected url %q", first.URL)
	}
	if !first.Timestamp.Equal(time.Unix(1483452000, 0)) {
		t.Errorf("unexpected timestamp %v", first.Timestamp)
	}
	if first.Text != "first #AAPL" {
		t.Errorf("unexpected text %q", first.Text)
	}
	if !strings.Contains(first.HTML, `<a href="/hashtag/AAPL">`) {
		t.Errorf("expected raw html, got %q", first.HTML)
	}
	if first.Replies != 1 || first.Retweets != 2 || first.Likes != 3 {
		t.Errorf("unexpected counts: %+v", first)
	}
	if tweets[2].ID != "3" || tweets[2].Likes != 7 {
		t.Errorf("unexpected third tweet: %+v", tweets[2])
	}
}

func TestSearch_OneQueryPerDayInOrder(t *testing.T) {
	var (
		mu      sync.Mutex
		queried []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		mu.Lock()
		queried = append(queried, q)
		mu.Unlock()

		since := strings.Fields(q)[1]
		id := strings.TrimPrefix(since, "since:")
		_, _ = w.Write([]byte(searchPage("", tweetItem(id, "u", "t", 0, 0))))
	}))
	defer srv.Close()

	s := New(WithClient(srv.Client()), WithBaseURL(srv.URL))
	tweets, err := s.Search(context.Background(), scraper.SearchRequest{
		Query: "$MSFT", From: day(2017, 1, 30), To: day(2017, 2, 2), PoolSize: 3,
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(queried) != 4 {
		t.Fatalf("expected 4 day queries, got %d: %v", len(queried), queried)
	}
	want := []string{"2017-01-30", "2017-01-31", "2017-02-01", "2017-02-02"}
	if len(tweets) != len(want) {
		t.Fatalf("expected %d tweets, got %d", len(want), len(tweets))
	}
	for i, w := range want {
		if tweets[i].ID != w {
			t.Errorf("tweet %d: expected day %s, got %s", i, w, tweets[i].ID)
		}
	}
}

func TestSearch_LimitStopsPaging(t *testing.T) {
	var timelineCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/i/search/timeline" {
			timelineCalls.Add(1)
		}
		_, _ = w.Write([]byte(searchPage("more", tweetItem("1", "u", "a", 0, 0), tweetItem("2", "u", "b", 0, 0))))
	}))
	defer srv.Close()

	s := New(WithClient(srv.Client()), WithBaseURL(srv.URL))
	if _, err := s.Search(context.Background(), scraper.SearchRequest{
		Query: "x", From: day(2017, 1, 1), To: day(2017, 1, 1), Limit: 2, PoolSize: 1,
	}); err != nil {
		t.Fatal(err)
	}
	if timelineCalls.Load() != 0 {
		t.Errorf("limit reached on first page, expected no timeline requests, got %d", timelineCalls.Load())
	}
}

func TestSearch_ErrorCancelsOtherDays(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Query().Get("q"), "since:2017-01-01") {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	s := New(WithClient(srv.Client()), WithBaseURL(srv.URL))
	start := time.Now()
	_, err := s.Search(context.Background(), scraper.SearchRequest{
		Query: "x", From: day(2017, 1, 1), To: day(2017, 1, 2), PoolSize: 2,
	})
	var se *scraper.StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429 StatusError, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("sibling day request was not cancelled")
	}
}

func TestSearch_Validation(t *testing.T) {
	s := New()
	tests := []scraper.SearchRequest{
		{From: day(2017, 1, 1), To: day(2017, 1, 2)},
		{Query: "x", To: day(2017, 1, 2)},
		{Query: "x", From: day(2017, 1, 3), To: day(2017, 1, 2)},
	}
	for i, req := range tests {
		if _, err := s.Search(context.Background(), req); err == nil {
			t.Errorf("case %d: expected error", i)
		}
	}
}

func TestParseTweets_SkipsItemsWithoutBody(t *testing.T) {
	doc := searchPage("", `<li class="stream-item" data-item-id="99"><div class="promoted"></div></li>`, tweetItem("1", "u", "t", 0, 0))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(doc))
	}))
	defer srv.Close()

	tweets, err := New(WithClient(srv.Client()), WithBaseURL(srv.URL)).Search(context.Background(),
		scraper.SearchRequest{Query: "x", From: day(2017, 1, 1), To: day(2017, 1, 1)})
	if err != nil {
		t.Fatal(err)
	}
	if len(tweets) != 1 || tweets[0].ID != "1" {
		t.Errorf("expected only the real tweet, got %+v", tweets)
	}
}
