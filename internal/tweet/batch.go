package tweet

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/klauspost/compress/gzip"
)

const batchExt = ".csv.gz"

// WriteBatchFile writes records as a gzip-compressed CSV: a header row of
// an empty index column followed by Columns, then one row per record led
// by its zero-based index. The file is written next to path and renamed
// into place, so a failed write never leaves a partial batch behind.
func WriteBatchFile(path string, records []Record) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create batch file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	zw := gzip.NewWriter(tmp)
	if err := writeCSV(zw, records); err != nil {
		return fmt.Errorf("write batch %s: %w", path, err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("compress batch %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close batch %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename batch %s: %w", path, err)
	}
	return nil
}

func writeCSV(w io.Writer, records []Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(append([]string{""}, Columns...)); err != nil {
		return err
	}

	row := make([]string, len(Columns)+1)
	for i, r := range records {
		row[0] = strconv.Itoa(i)
		for j, col := range Columns {
			row[j+1] = r[col]
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadBatchFile reads a file written by WriteBatchFile back into records.
func ReadBatchFile(path string) ([]Record, error) {
	f, err := os.Open(path) //nolint:gosec // path is built from the tweet dir and a symbol
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("open batch %s: %w", path, err)
	}
	defer func() { _ = zr.Close() }()

	rows, err := csv.NewReader(zr).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read batch %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("read batch %s: missing header", path)
	}

	header := rows[0]
	records := make([]Record, 0, len(rows)-1)
	for _, row := range rows[1:] {
		r := make(Record, len(header)-1)
		for j := 1; j < len(header) && j < len(row); j++ {
			r[header[j]] = row[j]
		}
		records = append(records, r)
	}
	return records, nil
}
