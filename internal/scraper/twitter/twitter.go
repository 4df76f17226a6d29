// Package twitter implements a tweet searcher over the legacy Twitter web
// search: the HTML search page followed by the JSON timeline endpoint for
// subsequent pages.
package twitter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"

	"github.com/ahmethakanbesel/stocksent/internal/scraper"
)

const (
	defaultBaseURL = "https://twitter.com"
	queryPath      = "/search"
	timelinePath   = "/i/search/timeline"
	dateFormat     = "2006-01-02"
	userAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

	sessionSelector = ".stream-container[data-max-position]"
	tweetsSelector  = ".stream-item[data-item-id]"
)

var _ scraper.TweetSearcher = (*Scraper)(nil)

// Scraper searches tweets one day at a time, with up to PoolSize days in
// flight.
type Scraper struct {
	client  *http.Client
	baseURL string
}

// New creates a Scraper with the given options applied.
func New(opts ...Option) *Scraper {
	s := &Scraper{
		client:  http.DefaultClient,
		baseURL: defaultBaseURL,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Option configures a Scraper.
type Option func(*Scraper)

func WithClient(c *http.Client) Option {
	return func(s *Scraper) { s.client = c }
}

// WithBaseURL overrides the site root the search and timeline paths are
// appended to.
func WithBaseURL(u string) Option {
	return func(s *Scraper) { s.baseURL = strings.TrimSuffix(u, "/") }
}

type timelineResponse struct {
	ItemsHTML    string `json:"items_html"`
	MinPosition  string `json:"min_position"`
	HasMoreItems bool   `json:"has_more_items"`
}

// Search runs req.Query once per day in [req.From, req.To]. req.Limit is
// spread evenly over the days, and each day stops paging once its share is
// reached. A zero limit pages until the timeline is exhausted. Results keep
// day order.
func (s *Scraper) Search(ctx context.Context, req scraper.SearchRequest) ([]scraper.Tweet, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}
	if req.From.IsZero() || req.To.IsZero() {
		return nil, fmt.Errorf("search window must have both ends")
	}
	if req.To.Before(req.From) {
		return nil, fmt.Errorf("search window end is before its start")
	}

	days := scraper.SplitDateRange(req.From, req.To, 1)
	perDay := 0
	if req.Limit > 0 {
		perDay = (req.Limit + len(days) - 1) / len(days)
	}

	results := make([][]scraper.Tweet, len(days))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(req.PoolSize, 1))

	for i, d := range days {
		g.Go(func() error {
			tweets, err := s.searchDay(gctx, req.Query, req.Lang, d.From, perDay)
			if err != nil {
				return fmt.Errorf("search %s: %w", d.From.Format(dateFormat), err)
			}
			results[i] = tweets
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var all []scraper.Tweet
	for _, tweets := range results {
		all = appendNew(all, tweets, seen)
	}

	slog.Info("retrieved tweets", "query", req.Query,
		"from", req.From.Format(dateFormat), "to", req.To.Format(dateFormat), "count", len(all))
	return all, nil
}

func (s *Scraper) searchDay(ctx context.Context, query, lang string, day time.Time, limit int) ([]scraper.Tweet, error) {
	q := fmt.Sprintf("%s since:%s until:%s", query, day.Format(dateFormat), day.AddDate(0, 0, 1).Format(dateFormat))
	params := url.Values{
		"f":        {"tweets"},
		"vertical": {"default"},
		"src":      {"typd"},
		"q":        {q},
	}
	if lang != "" {
		params.Set("l", lang)
	}

	body, err := s.get(ctx, s.baseURL+queryPath+"?"+params.Encode(), "text/html")
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse search page: %w", err)
	}

	seen := make(map[string]struct{})
	tweets := appendNew(nil, parseTweets(doc.Selection), seen)
	position := doc.Find(sessionSelector).AttrOr("data-max-position", "")

	params.Set("include_available_features", "1")
	params.Set("include_entities", "1")
	params.Set("reset_error_state", "false")

	for position != "" && (limit <= 0 || len(tweets) < limit) {
		params.Set("max_position", position)
		body, err := s.get(ctx, s.baseURL+timelinePath+"?"+params.Encode(), "application/json")
		if err != nil {
			return nil, err
		}

		var page timelineResponse
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("parse timeline: %w", err)
		}
		items, err := goquery.NewDocumentFromReader(strings.NewReader(page.ItemsHTML))
		if err != nil {
			return nil, fmt.Errorf("parse timeline items: %w", err)
		}

		before := len(tweets)
		tweets = appendNew(tweets, parseTweets(items.Selection), seen)
		if len(tweets) == before || !page.HasMoreItems {
			break
		}
		position = page.MinPosition
	}

	slog.Debug("retrieved tweets for day", "day", day.Format(dateFormat), "count", len(tweets))
	return tweets, nil
}

func (s *Scraper) get(ctx context.Context, reqURL, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", accept)
	req.Header.Set("X-Requested-With", "XMLHttpRequest")

	res, err := s.client.Do(req) //nolint:gosec // URL built from internal config
	if err != nil {
		return nil, err
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode != http.StatusOK {
		return nil, &scraper.StatusError{URL: reqURL, StatusCode: res.StatusCode}
	}
	return io.ReadAll(res.Body)
}

func appendNew(dst, tweets []scraper.Tweet, seen map[string]struct{}) []scraper.Tweet {
	for _, t := range tweets {
		if _, ok := seen[t.ID]; ok {
			continue
		}
		seen[t.ID] = struct{}{}
		dst = append(dst, t)
	}
	return dst
}

// parseTweets extracts the stream items under sel. Items without a tweet
// body, such as promoted modules, are skipped.
func parseTweets(sel *goquery.Selection) []scraper.Tweet {
	var tweets []scraper.Tweet
	sel.Find(tweetsSelector).Each(func(_ int, item *goquery.Selection) {
		body := item.Find("div.tweet").First()
		if body.Length() == 0 {
			return
		}

		textSel := body.Find(".tweet-text").First()
		html, _ := textSel.Html()
		epoch, _ := strconv.ParseInt(body.Find("._timestamp").First().AttrOr("data-time", "0"), 10, 64)

		tweets = append(tweets, scraper.Tweet{
			ID:        item.AttrOr("data-item-id", ""),
			User:      body.AttrOr("data-screen-name", ""),
			Fullname:  body.AttrOr("data-name", ""),
			URL:       body.AttrOr("data-permalink-path", ""),
			Timestamp: time.Unix(epoch, 0).UTC(),
			Text:      strings.TrimSpace(textSel.Text()),
			HTML:      html,
			Replies:   statCount(body, "reply"),
			Retweets:  statCount(body, "retweet"),
			Likes:     statCount(body, "favorite"),
		})
	})
	return tweets
}

func statCount(body *goquery.Selection, action string) int {
	v := body.Find(".ProfileTweet-action--" + action + " .ProfileTweet-actionCount").First().
		AttrOr("data-tweet-stat-count", "0")
	n, _ := strconv.Atoi(v)
	return n
}
