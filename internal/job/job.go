package job

import "time"

// Kind names the pipeline a run belongs to.
type Kind string

const (
	KindPrices Kind = "prices"
	KindTweets Kind = "tweets"
)

func (k Kind) Valid() bool {
	return k == KindPrices || k == KindTweets
}

type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// Job records one fetch run: a FetchPrices call or one company of a tweet
// orchestration.
type Job struct {
	ID           int64     `json:"id"`
	Kind         Kind      `json:"kind"`
	Symbol       string    `json:"symbol"`
	StartDate    time.Time `json:"startDate"`
	EndDate      time.Time `json:"endDate"`
	Status       Status    `json:"status"`
	Error        string    `json:"error,omitempty"`
	RecordsCount int64     `json:"recordsCount"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
