// Package iex implements a price source for the IEX 1.0 public API: the
// reference-data symbol list and the per-symbol chart endpoint.
package iex

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/ahmethakanbesel/stocksent/internal/scraper"
)

const (
	defaultRefDataURL    = "https://api.iextrading.com/1.0/ref-data/symbols"
	defaultChartEndpoint = "https://api.iextrading.com/1.0/stock"
)

var _ scraper.PriceSource = (*Client)(nil)

// Client talks to the IEX reference-data and chart endpoints. It keeps no
// session state between requests.
type Client struct {
	client        *http.Client
	refDataURL    string
	chartEndpoint string
}

// New creates a Client with the given options applied.
func New(opts ...Option) *Client {
	c := &Client{
		client:        http.DefaultClient,
		refDataURL:    defaultRefDataURL,
		chartEndpoint: defaultChartEndpoint,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Option configures a Client.
type Option func(*Client)

func WithClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// WithRefDataURL overrides the URL of the known-symbol list.
func WithRefDataURL(u string) Option {
	return func(c *Client) { c.refDataURL = u }
}

// WithChartEndpoint overrides the chart base URL. Requests go to
// <endpoint>/<symbol>/chart/<range>.
func WithChartEndpoint(ep string) Option {
	return func(c *Client) { c.chartEndpoint = strings.TrimSuffix(ep, "/") }
}

func (c *Client) Source() string { return "iex" }

type refSymbol struct {
	Symbol string `json:"symbol"`
}

// KnownSymbols fetches the current symbol universe. It performs exactly one
// request and does not retry.
func (c *Client) KnownSymbols(ctx context.Context) (map[string]struct{}, error) {
	var refs []refSymbol
	if err := c.getJSON(ctx, c.refDataURL, &refs); err != nil {
		return nil, fmt.Errorf("fetch known symbols: %w", err)
	}

	known := make(map[string]struct{}, len(refs))
	for _, r := range refs {
		if r.Symbol != "" {
			known[r.Symbol] = struct{}{}
		}
	}
	slog.Info("retrieved iex symbol universe", "count", len(known))
	return known, nil
}

// Chart fetches trailing daily history for symbol. rangeToken is an IEX
// range such as "1m" or "3y". A single request is made per call.
func (c *Client) Chart(ctx context.Context, symbol, rangeToken string) ([]scraper.ChartPoint, error) {
	if symbol == "" {
		return nil, fmt.Errorf("symbol cannot be empty")
	}
	reqURL := fmt.Sprintf("%s/%s/chart/%s", c.chartEndpoint, url.PathEscape(symbol), rangeToken)

	var points []scraper.ChartPoint
	if err := c.getJSON(ctx, reqURL, &points); err != nil {
		return nil, err
	}
	return points, nil
}

func (c *Client) getJSON(ctx context.Context, reqURL string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	res, err := c.client.Do(req) //nolint:gosec // URL built from internal config
	if err != nil {
		return err
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode != http.StatusOK {
		return &scraper.StatusError{URL: reqURL, StatusCode: res.StatusCode}
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("parse iex response: %w", err)
	}
	return nil
}
