package price

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ahmethakanbesel/stocksent/internal/job"
	"github.com/ahmethakanbesel/stocksent/internal/scraper"
)

// --- mock price source ---
type mockSource struct {
	mu         sync.Mutex
	known      map[string]struct{}
	knownErr   error
	charts     map[string][]scraper.ChartPoint
	failures   map[string]int   // transient failures before success
	errs       map[string]error // returned on every call
	block      map[string]bool  // wait for ctx cancellation
	calls      map[string]int
	tokens     []string
	knownCalls int
	inflight   atomic.Int32
	maxInfl    atomic.Int32
}

func newMockSource(known ...string) *mockSource {
	m := &mockSource{
		known:    make(map[string]struct{}),
		charts:   make(map[string][]scraper.ChartPoint),
		failures: make(map[string]int),
		errs:     make(map[string]error),
		block:    make(map[string]bool),
		calls:    make(map[string]int),
	}
	for _, k := range known {
		m.known[k] = struct{}{}
	}
	return m
}

func (m *mockSource) Source() string { return "iex" }

func (m *mockSource) KnownSymbols(_ context.Context) (map[string]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.knownCalls++
	if m.knownErr != nil {
		return nil, m.knownErr
	}
	return m.known, nil
}

func (m *mockSource) Chart(ctx context.Context, symbol, rangeToken string) ([]scraper.ChartPoint, error) {
	n := m.inflight.Add(1)
	defer m.inflight.Add(-1)
	for {
		cur := m.maxInfl.Load()
		if n <= cur || m.maxInfl.CompareAndSwap(cur, n) {
			break
		}
	}

	m.mu.Lock()
	m.calls[symbol]++
	m.tokens = append(m.tokens, rangeToken)
	err := m.errs[symbol]
	blocked := m.block[symbol]
	if err == nil && m.failures[symbol] > 0 {
		m.failures[symbol]--
		err = errors.New("connection reset by peer")
	}
	points := m.charts[symbol]
	m.mu.Unlock()

	if blocked {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	// Give concurrent calls in the same chunk a chance to overlap.
	time.Sleep(2 * time.Millisecond)
	if err != nil {
		return nil, err
	}
	return points, nil
}

func (m *mockSource) callCount(symbol string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[symbol]
}

// --- mock price repo ---
type mockPriceRepo struct {
	prices []Price
}

func (m *mockPriceRepo) SavePrices(_ context.Context, prices []Price) (int64, error) {
	m.prices = append(m.prices, prices...)
	return int64(len(prices)), nil
}

func (m *mockPriceRepo) ListPrices(_ context.Context, _ Source, symbol string, _, _ time.Time) ([]Price, error) {
	var out []Price
	for _, p := range m.prices {
		if p.Symbol == symbol {
			out = append(out, p)
		}
	}
	return out, nil
}

// --- mock job repo ---
type mockJobRepo struct {
	jobs   []*job.Job
	nextID int64
}

func (m *mockJobRepo) Create(_ context.Context, j *job.Job) error {
	m.nextID++
	j.ID = m.nextID
	cp := *j
	m.jobs = append(m.jobs, &cp)
	return nil
}

func (m *mockJobRepo) Update(_ context.Context, j *job.Job) error {
	for i, existing := range m.jobs {
		if existing.ID == j.ID {
			cp := *j
			m.jobs[i] = &cp
		}
	}
	return nil
}

func (m *mockJobRepo) Get(_ context.Context, _ int64) (*job.Job, error) { return nil, nil }

func (m *mockJobRepo) List(_ context.Context, _ job.Kind, _ string) ([]job.Job, error) {
	return nil, nil
}

func aaplChart() []scraper.ChartPoint {
	return []scraper.ChartPoint{
		{Label: "Dec 30, 16", Close: 115.82},
		{Label: "Jan 3, 17", Close: 116.15},
		{Label: "Jan 31, 17", Close: 121.35},
		{Label: "Feb 1, 17", Close: 128.75},
		{Label: "Feb 2, 17", Close: 128.53},
		{Label: "Jan 2", Close: 172.26},
	}
}

func testOptions() Options {
	return Options{ChunkSize: 50, RetryBaseDelay: time.Millisecond, MaxAttempts: 3}
}

func TestFilterKnown(t *testing.T) {
	known := map[string]struct{}{"AAPL": {}, "MSFT": {}, "GOOG": {}}

	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"all known", []string{"MSFT", "AAPL"}, []string{"MSFT", "AAPL"}},
		{"some unknown", []string{"XXX", "GOOG", "YYY", "AAPL"}, []string{"GOOG", "AAPL"}},
		{"none known", []string{"XXX"}, []string{}},
		{"empty input", nil, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FilterKnown(tt.in, known)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("FilterKnown(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestFetchPrices_DropsUnknownSymbols(t *testing.T) {
	src := newMockSource("AAPL")
	src.charts["AAPL"] = aaplChart()
	svc := NewService(src, nil, nil, testOptions())

	table, err := svc.FetchPrices(context.Background(), Request{
		Symbols: []string{"AAPL", "ZZZZINVALID"},
		From:    day(2017, 1, 1),
		To:      day(2017, 2, 1),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !reflect.DeepEqual(table.Symbols, []string{"AAPL"}) {
		t.Fatalf("expected only AAPL, got %v", table.Symbols)
	}
	if _, ok := table.Series["ZZZZINVALID"]; ok {
		t.Error("unknown symbol should be omitted")
	}
	series := table.Series["AAPL"]
	if len(series) != 3 {
		t.Fatalf("expected 3 points in January window, got %d: %v", len(series), series)
	}
	for _, p := range series {
		if p.Date.Before(day(2017, 1, 1)) || p.Date.After(day(2017, 2, 1)) {
			t.Errorf("point %v outside window", p.Date)
		}
	}
	if src.callCount("ZZZZINVALID") != 0 {
		t.Error("unknown symbol should never be fetched")
	}
	if src.knownCalls != 1 {
		t.Errorf("expected one known-symbol request, got %d", src.knownCalls)
	}
}

func TestFetchPrices_MissingEmptyPolicy(t *testing.T) {
	src := newMockSource("AAPL")
	src.charts["AAPL"] = aaplChart()
	opts := testOptions()
	opts.MissingSymbols = MissingEmpty
	svc := NewService(src, nil, nil, opts)

	table, err := svc.FetchPrices(context.Background(), Request{
		Symbols: []string{"ZZZZINVALID", "AAPL"},
		From:    day(2017, 1, 1),
		To:      day(2017, 2, 1),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(table.Symbols, []string{"ZZZZINVALID", "AAPL"}) {
		t.Fatalf("expected input order with unknown symbol, got %v", table.Symbols)
	}
	s, ok := table.Series["ZZZZINVALID"]
	if !ok || s == nil || len(s) != 0 {
		t.Errorf("expected empty series for unknown symbol, got %#v", s)
	}
}

func TestFetchPrices_Chunking(t *testing.T) {
	symbols := []string{"A", "B", "C", "D", "E", "F", "G"}
	src := newMockSource(symbols...)
	opts := testOptions()
	opts.ChunkSize = 3
	svc := NewService(src, nil, nil, opts)

	var chunks [][]string
	svc.onChunk = func(_ int, c []string) {
		chunks = append(chunks, append([]string(nil), c...))
	}

	table, err := svc.FetchPrices(context.Background(), Request{Symbols: symbols, From: day(2017, 1, 1), To: day(2017, 2, 1)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := [][]string{{"A", "B", "C"}, {"D", "E", "F"}, {"G"}}
	if !reflect.DeepEqual(chunks, want) {
		t.Errorf("chunks = %v, want %v", chunks, want)
	}
	if got := src.maxInfl.Load(); got > 3 {
		t.Errorf("max concurrent requests = %d, want <= 3", got)
	}
	if !reflect.DeepEqual(table.Symbols, symbols) {
		t.Errorf("table order = %v, want %v", table.Symbols, symbols)
	}
}

func TestFetchPrices_DelayOnlyBetweenChunks(t *testing.T) {
	src := newMockSource("A", "B", "C")
	opts := testOptions()
	opts.ChunkSize = 1
	opts.ChunkDelay = 40 * time.Millisecond
	svc := NewService(src, nil, nil, opts)

	start := time.Now()
	if _, err := svc.FetchPrices(context.Background(), Request{Symbols: []string{"A", "B", "C"}, From: day(2017, 1, 1), To: day(2017, 2, 1)}); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Errorf("expected two inter-chunk delays, elapsed %v", elapsed)
	}

	single := NewService(newMockSource("A"), nil, nil, Options{ChunkDelay: time.Second})
	start = time.Now()
	if _, err := single.FetchPrices(context.Background(), Request{Symbols: []string{"A"}, From: day(2017, 1, 1), To: day(2017, 2, 1)}); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed >= time.Second {
		t.Errorf("final chunk should not be followed by a delay, elapsed %v", elapsed)
	}
}

func TestFetchPrices_CancelDuringDelay(t *testing.T) {
	src := newMockSource("A", "B")
	svc := NewService(src, nil, nil, Options{ChunkSize: 1, ChunkDelay: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	svc.onChunk = func(i int, _ []string) {
		if i == 0 {
			time.AfterFunc(20*time.Millisecond, cancel)
		}
	}

	_, err := svc.FetchPrices(ctx, Request{Symbols: []string{"A", "B"}, From: day(2017, 1, 1), To: day(2017, 2, 1)})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if src.callCount("B") != 0 {
		t.Error("second chunk should not start after cancellation")
	}
}

func TestFetchPrices_RetriesTransientFailures(t *testing.T) {
	src := newMockSource("AAPL")
	src.charts["AAPL"] = aaplChart()
	src.failures["AAPL"] = 2
	svc := NewService(src, nil, nil, testOptions())

	table, err := svc.FetchPrices(context.Background(), Request{Symbols: []string{"AAPL"}, From: day(2017, 1, 1), To: day(2017, 2, 1)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := src.callCount("AAPL"); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
	if len(table.Series["AAPL"]) != 3 {
		t.Errorf("expected 3 points, got %d", len(table.Series["AAPL"]))
	}
}

func TestFetchPrices_RetryExhaustion(t *testing.T) {
	src := newMockSource("AAPL")
	src.errs["AAPL"] = &scraper.StatusError{URL: "chart", StatusCode: http.StatusServiceUnavailable}
	svc := NewService(src, nil, nil, testOptions())

	table, err := svc.FetchPrices(context.Background(), Request{Symbols: []string{"AAPL"}, From: day(2017, 1, 1), To: day(2017, 2, 1)})
	if table != nil {
		t.Error("expected no partial table")
	}
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if fe.Symbol != "AAPL" || fe.Attempts != 3 {
		t.Errorf("unexpected FetchError: %+v", fe)
	}
	var se *scraper.StatusError
	if !errors.As(err, &se) {
		t.Error("expected FetchError to unwrap to StatusError")
	}
}

func TestFetchPrices_PermanentErrorNotRetried(t *testing.T) {
	src := newMockSource("AAPL")
	src.errs["AAPL"] = &scraper.StatusError{URL: "chart", StatusCode: http.StatusNotFound}
	svc := NewService(src, nil, nil, testOptions())

	_, err := svc.FetchPrices(context.Background(), Request{Symbols: []string{"AAPL"}, From: day(2017, 1, 1), To: day(2017, 2, 1)})
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if fe.Attempts != 1 {
		t.Errorf("expected a single attempt, got %d", fe.Attempts)
	}
}

func TestFetchPrices_FirstFailureCancelsChunk(t *testing.T) {
	src := newMockSource("BAD", "SLOW", "NEXT")
	src.errs["BAD"] = &scraper.StatusError{URL: "chart", StatusCode: http.StatusNotFound}
	src.block["SLOW"] = true
	svc := NewService(src, nil, nil, Options{ChunkSize: 2, MaxAttempts: 1})

	done := make(chan error, 1)
	go func() {
		_, err := svc.FetchPrices(context.Background(), Request{Symbols: []string{"BAD", "SLOW", "NEXT"}, From: day(2017, 1, 1), To: day(2017, 2, 1)})
		done <- err
	}()

	select {
	case err := <-done:
		var fe *FetchError
		if !errors.As(err, &fe) || fe.Symbol != "BAD" {
			t.Fatalf("expected FetchError for BAD, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("sibling fetch was not cancelled")
	}
	if src.callCount("NEXT") != 0 {
		t.Error("next chunk should not run after a failure")
	}
}

func TestFetchPrices_KnownSymbolsError(t *testing.T) {
	src := newMockSource()
	src.knownErr = errors.New("dial tcp: no route to host")
	svc := NewService(src, nil, nil, testOptions())

	_, err := svc.FetchPrices(context.Background(), Request{Symbols: []string{"AAPL"}, From: day(2017, 1, 1), To: day(2017, 2, 1)})
	if !errors.Is(err, src.knownErr) {
		t.Fatalf("expected known-symbol error to propagate, got %v", err)
	}
	if src.callCount("AAPL") != 0 {
		t.Error("no chart requests expected")
	}
}

func TestFetchPrices_RangeTokenFromClock(t *testing.T) {
	src := newMockSource("AAPL")
	svc := NewService(src, nil, nil, testOptions())
	svc.SetClock(func() time.Time { return day(2019, 6, 1) })

	if _, err := svc.FetchPrices(context.Background(), Request{Symbols: []string{"AAPL"}, From: day(2017, 1, 1), To: day(2017, 2, 1)}); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(src.tokens, []string{"3y"}) {
		t.Errorf("expected range token 3y, got %v", src.tokens)
	}
}

func TestFetchPrices_DeduplicatesSymbols(t *testing.T) {
	src := newMockSource("AAPL", "MSFT")
	svc := NewService(src, nil, nil, testOptions())

	table, err := svc.FetchPrices(context.Background(), Request{Symbols: []string{"AAPL", "MSFT", "AAPL"}, From: day(2017, 1, 1), To: day(2017, 2, 1)})
	if err != nil {
		t.Fatal(err)
	}
	if src.callCount("AAPL") != 1 {
		t.Errorf("expected AAPL fetched once, got %d", src.callCount("AAPL"))
	}
	if !reflect.DeepEqual(table.Symbols, []string{"AAPL", "MSFT"}) {
		t.Errorf("unexpected symbols %v", table.Symbols)
	}
}

func TestFetchPrices_Validation(t *testing.T) {
	svc := NewService(newMockSource(), nil, nil, testOptions())
	tests := []Request{
		{From: day(2017, 1, 1), To: day(2017, 2, 1)},
		{Symbols: []string{" "}, From: day(2017, 1, 1), To: day(2017, 2, 1)},
		{Symbols: []string{"AAPL"}, To: day(2017, 2, 1)},
		{Symbols: []string{"AAPL"}, From: day(2017, 2, 1), To: day(2017, 1, 1)},
	}
	for i, req := range tests {
		if _, err := svc.FetchPrices(context.Background(), req); err == nil {
			t.Errorf("case %d: expected validation error", i)
		}
	}
}

func TestFetchPrices_PersistsAndRecords(t *testing.T) {
	src := newMockSource("AAPL")
	src.charts["AAPL"] = aaplChart()
	repo := &mockPriceRepo{}
	jobs := &mockJobRepo{}
	svc := NewService(src, repo, jobs, testOptions())

	if _, err := svc.FetchPrices(context.Background(), Request{Symbols: []string{"AAPL"}, From: day(2017, 1, 1), To: day(2017, 2, 1)}); err != nil {
		t.Fatal(err)
	}

	if len(repo.prices) != 3 {
		t.Fatalf("expected 3 saved prices, got %d", len(repo.prices))
	}
	if repo.prices[0].Source != SourceIEX || repo.prices[0].Symbol != "AAPL" {
		t.Errorf("unexpected saved price: %+v", repo.prices[0])
	}
	if len(jobs.jobs) != 1 {
		t.Fatalf("expected 1 job record, got %d", len(jobs.jobs))
	}
	if j := jobs.jobs[0]; j.Kind != job.KindPrices || j.Status != job.StatusCompleted || j.RecordsCount != 3 {
		t.Errorf("unexpected job record: %+v", j)
	}

	history, err := svc.History(context.Background(), HistoryRequest{Symbol: "AAPL", From: day(2017, 1, 1)})
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 3 {
		t.Errorf("expected 3 stored prices, got %d", len(history))
	}
}

func TestFetchPrices_RecordsFailure(t *testing.T) {
	src := newMockSource("AAPL")
	src.errs["AAPL"] = &scraper.StatusError{URL: "chart", StatusCode: http.StatusNotFound}
	jobs := &mockJobRepo{}
	svc := NewService(src, nil, jobs, testOptions())

	if _, err := svc.FetchPrices(context.Background(), Request{Symbols: []string{"AAPL"}, From: day(2017, 1, 1), To: day(2017, 2, 1)}); err == nil {
		t.Fatal("expected error")
	}
	if j := jobs.jobs[0]; j.Status != job.StatusFailed || j.Error == "" {
		t.Errorf("expected failed job with error, got %+v", j)
	}
}

func TestOptions_Defaults(t *testing.T) {
	got := NewService(newMockSource(), nil, nil, Options{}).Options()
	want := Options{
		ChunkSize:      DefaultChunkSize,
		ChunkDelay:     0,
		MaxAttempts:    DefaultMaxAttempts,
		RetryBaseDelay: DefaultRetryBaseDelay,
		MissingSymbols: MissingOmit,
	}
	if got != want {
		t.Errorf("Options() = %+v, want %+v", got, want)
	}
	if d := DefaultOptions(); d.ChunkDelay != 20*time.Second || d.ChunkSize != 50 {
		t.Errorf("unexpected defaults: %+v", d)
	}
}
