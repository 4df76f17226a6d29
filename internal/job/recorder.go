package job

import (
	"context"
	"log/slog"
	"time"
)

// Recorder writes run records as work starts and finishes. A nil Recorder,
// or one without a repository, accepts every call and stores nothing.
// Ledger write failures are logged and never fail the run itself.
type Recorder struct {
	repo Repository
}

func NewRecorder(repo Repository) *Recorder {
	return &Recorder{repo: repo}
}

// Start creates a running record.
func (r *Recorder) Start(ctx context.Context, kind Kind, symbol string, from, to time.Time) *Job {
	j := &Job{
		Kind:      kind,
		Symbol:    symbol,
		StartDate: from,
		EndDate:   to,
		Status:    StatusRunning,
	}
	if r == nil || r.repo == nil {
		return j
	}
	if err := r.repo.Create(ctx, j); err != nil {
		slog.Warn("job: create record", "kind", kind, "symbol", symbol, "error", err)
	}
	return j
}

// Skip stores a record that went straight to skipped.
func (r *Recorder) Skip(ctx context.Context, kind Kind, symbol string, from, to time.Time) {
	j := r.Start(ctx, kind, symbol, from, to)
	r.finish(ctx, j, StatusSkipped, 0, nil)
}

func (r *Recorder) Complete(ctx context.Context, j *Job, records int64) {
	r.finish(ctx, j, StatusCompleted, records, nil)
}

func (r *Recorder) Fail(ctx context.Context, j *Job, err error) {
	r.finish(ctx, j, StatusFailed, 0, err)
}

func (r *Recorder) finish(ctx context.Context, j *Job, status Status, records int64, err error) {
	j.Status = status
	j.RecordsCount = records
	if err != nil {
		j.Error = err.Error()
	}
	if r == nil || r.repo == nil || j.ID == 0 {
		return
	}
	// The run's own context may already be cancelled when it failed.
	if uerr := r.repo.Update(context.WithoutCancel(ctx), j); uerr != nil {
		slog.Warn("job: update record", "job", j.ID, "error", uerr)
	}
}
