// Package store exports price tables in long format, one row per
// (symbol, date, close), as CSV or Parquet.
package store

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/ahmethakanbesel/stocksent/internal/price"
)

const dateFormat = "2006-01-02"

// CloseRecord is the on-disk row schema.
type CloseRecord struct {
	Symbol    string  `parquet:"symbol"`
	Timestamp int64   `parquet:"date,timestamp(millisecond)"` // Unix ms
	Close     float64 `parquet:"close"`
}

// Records flattens table in symbol order, keeping each series' order.
func Records(table *price.Table) []CloseRecord {
	records := make([]CloseRecord, 0, table.Len())
	for _, symbol := range table.Symbols {
		for _, p := range table.Series[symbol] {
			records = append(records, CloseRecord{Symbol: symbol, Timestamp: p.Date.UnixMilli(), Close: p.Close})
		}
	}
	return records
}

// WriteTableCSV writes table as CSV with a symbol,date,close header.
func WriteTableCSV(w io.Writer, table *price.Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"symbol", "date", "close"}); err != nil {
		return err
	}
	for _, r := range Records(table) {
		row := []string{
			r.Symbol,
			time.UnixMilli(r.Timestamp).UTC().Format(dateFormat),
			strconv.FormatFloat(r.Close, 'f', -1, 64),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteTableParquet writes table to a Parquet file at path, creating parent
// directories as needed.
func WriteTableParquet(path string, table *price.Table) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	return parquet.WriteFile(path, Records(table))
}

// ReadTableParquet reads a file written by WriteTableParquet. Symbols are
// listed in first-seen order.
func ReadTableParquet(path string) (*price.Table, error) {
	rows, err := parquet.ReadFile[CloseRecord](path)
	if err != nil {
		return nil, err
	}

	table := &price.Table{Series: make(map[string]price.Series)}
	for _, r := range rows {
		if _, ok := table.Series[r.Symbol]; !ok {
			table.Symbols = append(table.Symbols, r.Symbol)
		}
		table.Series[r.Symbol] = append(table.Series[r.Symbol], price.Point{
			Date:  time.UnixMilli(r.Timestamp).UTC(),
			Close: r.Close,
		})
	}
	return table, nil
}

// WriteFile picks the format from the extension of path: .csv or .parquet.
func WriteFile(path string, table *price.Table) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".parquet":
		return WriteTableParquet(path, table)
	case ".csv":
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return err
		}
		f, err := os.Create(path) //nolint:gosec // path comes from a command-line flag
		if err != nil {
			return err
		}
		if err := WriteTableCSV(f, table); err != nil {
			_ = f.Close()
			return err
		}
		return f.Close()
	default:
		return fmt.Errorf("unsupported output format %q: use .csv or .parquet", filepath.Ext(path))
	}
}
