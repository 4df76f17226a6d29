package price

import (
	"fmt"
	"strconv"
	"time"
)

// historyPeriodDays approximates a year when sizing the trailing range.
const historyPeriodDays = 360

// YearsToFetch returns how many trailing years must be requested so that
// the history reaches back to from: whole 360-day periods between from and
// now, plus one.
func YearsToFetch(from, now time.Time) int {
	days := int(now.Sub(from).Hours() / 24)
	return max(days/historyPeriodDays+1, 1)
}

// RangeToken formats a trailing range, e.g. 3 -> "3y".
func RangeToken(years int) string {
	return strconv.Itoa(years) + "y"
}

// FetchError is returned when a symbol's chart could not be retrieved
// within the retry budget.
type FetchError struct {
	Symbol   string
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: giving up after %d attempt(s): %v", e.Symbol, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
