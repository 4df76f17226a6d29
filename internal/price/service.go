package price

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/ahmethakanbesel/stocksent/internal/job"
	"github.com/ahmethakanbesel/stocksent/internal/scraper"
)

const (
	DefaultChunkSize      = 50
	DefaultChunkDelay     = 20 * time.Second
	DefaultMaxAttempts    = 5
	DefaultRetryBaseDelay = 500 * time.Millisecond

	dateFormat = "2006-01-02"
)

// Options tunes the chunked fetch. Zero values fall back to the defaults,
// except ChunkDelay where zero means no delay.
type Options struct {
	ChunkSize      int
	ChunkDelay     time.Duration
	MaxAttempts    int
	RetryBaseDelay time.Duration
	MissingSymbols MissingSymbolPolicy
}

func DefaultOptions() Options {
	return Options{
		ChunkSize:      DefaultChunkSize,
		ChunkDelay:     DefaultChunkDelay,
		MaxAttempts:    DefaultMaxAttempts,
		RetryBaseDelay: DefaultRetryBaseDelay,
		MissingSymbols: MissingOmit,
	}
}

func (o Options) withDefaults() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.ChunkDelay < 0 {
		o.ChunkDelay = 0
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.RetryBaseDelay <= 0 {
		o.RetryBaseDelay = DefaultRetryBaseDelay
	}
	if !o.MissingSymbols.Valid() {
		o.MissingSymbols = MissingOmit
	}
	return o
}

type Service struct {
	src      scraper.PriceSource
	repo     Repository // optional
	recorder *job.Recorder
	opts     Options
	now      func() time.Time

	onChunk func(index int, symbols []string)
}

// NewService wires a price source to optional persistence. repo and
// jobRepo may be nil.
func NewService(src scraper.PriceSource, repo Repository, jobRepo job.Repository, opts Options) *Service {
	return &Service{
		src:      src,
		repo:     repo,
		recorder: job.NewRecorder(jobRepo),
		opts:     opts.withDefaults(),
		now:      time.Now,
	}
}

// SetClock replaces the clock used to size trailing history requests.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

func (s *Service) Options() Options { return s.opts }

// FetchPrices validates the requested symbols against the source's symbol
// universe and fetches each valid symbol's closes in [From, To]. Symbols are
// processed in chunks of ChunkSize; the fetches within a chunk run
// concurrently and the first failure cancels the rest and fails the call.
// ChunkDelay separates consecutive chunks.
func (s *Service) FetchPrices(ctx context.Context, req Request) (*Table, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	symbols := dedupe(req.Symbols)
	run := s.recorder.Start(ctx, job.KindPrices, strings.Join(symbols, ","), req.From, req.To)

	table, err := s.fetch(ctx, symbols, req.From, req.To)
	if err != nil {
		s.recorder.Fail(ctx, run, err)
		return nil, err
	}

	if s.repo != nil {
		if _, err := s.save(ctx, table); err != nil {
			s.recorder.Fail(ctx, run, err)
			return nil, err
		}
	}

	s.recorder.Complete(ctx, run, int64(table.Len()))
	return table, nil
}

func (s *Service) fetch(ctx context.Context, symbols []string, from, to time.Time) (*Table, error) {
	known, err := s.src.KnownSymbols(ctx)
	if err != nil {
		return nil, err
	}

	valid := FilterKnown(symbols, known)
	if dropped := len(symbols) - len(valid); dropped > 0 {
		slog.Info("dropped unknown symbols", "source", s.src.Source(), "dropped", dropped, "requested", len(symbols))
	}

	fetched := make(map[string]Series, len(valid))
	chunks := scraper.Chunk(valid, s.opts.ChunkSize)

	for i, chunk := range chunks {
		slog.Info("fetching chunk", "chunk", i+1, "chunks", len(chunks), "symbols", len(chunk))
		if s.onChunk != nil {
			s.onChunk(i, chunk)
		}

		results := make([]Series, len(chunk))
		g, gctx := errgroup.WithContext(ctx)
		for j, symbol := range chunk {
			g.Go(func() error {
				series, err := s.fetchSymbol(gctx, symbol, from, to)
				if err != nil {
					return err
				}
				results[j] = series
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		for j, symbol := range chunk {
			fetched[symbol] = results[j]
		}

		if i < len(chunks)-1 && s.opts.ChunkDelay > 0 {
			if err := sleep(ctx, s.opts.ChunkDelay); err != nil {
				return nil, err
			}
		}
	}

	table := &Table{
		Symbols: make([]string, 0, len(symbols)),
		Series:  make(map[string]Series, len(symbols)),
	}
	for _, symbol := range symbols {
		series, ok := fetched[symbol]
		if !ok {
			if s.opts.MissingSymbols != MissingEmpty {
				continue
			}
			series = Series{}
		}
		table.Symbols = append(table.Symbols, symbol)
		table.Series[symbol] = series
	}
	return table, nil
}

// fetchSymbol requests enough trailing history to cover from, retrying
// transient failures with exponential backoff, and formats the result.
func (s *Service) fetchSymbol(ctx context.Context, symbol string, from, to time.Time) (Series, error) {
	token := RangeToken(YearsToFetch(from, s.now()))

	var (
		points   []scraper.ChartPoint
		attempts int
	)
	op := func() error {
		attempts++
		var err error
		points, err = s.src.Chart(ctx, symbol, token)
		if err == nil {
			return nil
		}
		var se *scraper.StatusError
		if errors.As(err, &se) && !se.Retryable() {
			return backoff.Permanent(err)
		}
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.opts.RetryBaseDelay
	b.MaxElapsedTime = 0
	bo := backoff.WithContext(backoff.WithMaxRetries(b, uint64(s.opts.MaxAttempts-1)), ctx)

	notify := func(err error, wait time.Duration) {
		slog.Warn("retrying chart request", "symbol", symbol, "range", token,
			"attempt", attempts, "wait", wait.String(), "error", err)
	}
	if err := backoff.RetryNotify(op, bo, notify); err != nil {
		return nil, &FetchError{Symbol: symbol, Attempts: attempts, Err: err}
	}

	series, err := FormatChart(points, from, to)
	if err != nil {
		return nil, fmt.Errorf("format %s: %w", symbol, err)
	}

	slog.Info("retrieved price data", "source", s.src.Source(), "symbol", symbol, "range", token,
		"from", from.Format(dateFormat), "to", to.Format(dateFormat), "count", len(series))
	return series, nil
}

// History returns stored closes for one symbol.
func (s *Service) History(ctx context.Context, req HistoryRequest) ([]Price, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if s.repo == nil {
		return nil, fmt.Errorf("price history unavailable: no repository configured")
	}
	to := req.To
	if to.IsZero() {
		to = s.now().UTC().Truncate(24 * time.Hour)
	}
	return s.repo.ListPrices(ctx, Source(s.src.Source()), req.Symbol, req.From, to)
}

func (s *Service) save(ctx context.Context, table *Table) (int64, error) {
	source := Source(s.src.Source())
	var total int64
	for _, symbol := range table.Symbols {
		series := table.Series[symbol]
		if len(series) == 0 {
			continue
		}
		prices := make([]Price, len(series))
		for i, p := range series {
			prices[i] = Price{Source: source, Symbol: symbol, Date: p.Date, ClosePrice: p.Close}
		}
		n, err := s.repo.SavePrices(ctx, prices)
		if err != nil {
			return total, fmt.Errorf("save prices: %w", err)
		}
		total += n
	}
	slog.Info("saved prices", "source", source, "symbols", len(table.Symbols), "new", total)
	return total, nil
}

// FilterKnown returns the candidates present in known, in candidate order.
func FilterKnown(candidates []string, known map[string]struct{}) []string {
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if _, ok := known[c]; ok {
			out = append(out, c)
		}
	}
	return out
}

// dedupe drops repeated symbols, keeping the first occurrence.
func dedupe(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.TrimSpace(s)
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
