package price

import (
	"strings"
	"time"

	"github.com/ahmethakanbesel/stocksent/internal/apperror"
)

var dateLayouts = []string{"2006-01-02", "2006-1-2"}

// ParseDate accepts YYYY-MM-DD with or without zero padding.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	var err error
	for _, layout := range dateLayouts {
		var t time.Time
		if t, err = time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, err
}

type Request struct {
	Symbols []string
	From    time.Time
	To      time.Time
}

func (r Request) Validate() *apperror.AppError {
	if len(r.Symbols) == 0 {
		return apperror.New(apperror.BadRequest, "at least one symbol is required")
	}
	for _, s := range r.Symbols {
		if strings.TrimSpace(s) == "" {
			return apperror.New(apperror.BadRequest, "symbols cannot be empty")
		}
	}
	if r.From.IsZero() {
		return apperror.New(apperror.BadRequest, "from date is required")
	}
	if r.To.IsZero() {
		return apperror.New(apperror.BadRequest, "to date is required")
	}
	if r.To.Before(r.From) {
		return apperror.New(apperror.BadRequest, "to date must not be before from date")
	}
	return nil
}

type HistoryRequest struct {
	Symbol string
	From   time.Time
	To     time.Time
}

func (r HistoryRequest) Validate() *apperror.AppError {
	if r.Symbol == "" {
		return apperror.New(apperror.BadRequest, "symbol is required")
	}
	if !r.To.IsZero() && r.To.Before(r.From) {
		return apperror.New(apperror.BadRequest, "to date must not be before from date")
	}
	return nil
}
