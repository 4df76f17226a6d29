package price

import "time"

type Source string

const SourceIEX Source = "iex"

// Price is a stored daily close.
type Price struct {
	ID         int64     `json:"id"`
	Source     Source    `json:"source"`
	Symbol     string    `json:"symbol"`
	Date       time.Time `json:"date"`
	ClosePrice float64   `json:"closePrice"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Point is one element of a Series.
type Point struct {
	Date  time.Time `json:"date"`
	Close float64   `json:"close"`
}

// Series is a closing-price series in the order received from the source.
type Series []Point

// Table maps symbols to their series. Symbols keeps the caller's order.
type Table struct {
	Symbols []string          `json:"symbols"`
	Series  map[string]Series `json:"series"`
}

// Len returns the total number of points across all series.
func (t *Table) Len() int {
	n := 0
	for _, s := range t.Series {
		n += len(s)
	}
	return n
}

// MissingSymbolPolicy decides how requested symbols absent from the known
// symbol set appear in a Table.
type MissingSymbolPolicy string

const (
	// MissingOmit leaves unknown symbols out of the table entirely.
	MissingOmit MissingSymbolPolicy = "omit"
	// MissingEmpty lists unknown symbols with an empty series.
	MissingEmpty MissingSymbolPolicy = "empty"
)

func (p MissingSymbolPolicy) Valid() bool {
	return p == MissingOmit || p == MissingEmpty
}
