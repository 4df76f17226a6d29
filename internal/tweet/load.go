package tweet

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ahmethakanbesel/stocksent/internal/price"
)

// LoadCompanies reads a company table in the S&P constituents layout. Only
// the Symbol and Security columns are used; other columns are ignored.
func LoadCompanies(r io.Reader) ([]Company, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("companies: empty file")
	}
	if err != nil {
		return nil, fmt.Errorf("companies: read header: %w", err)
	}

	symbolCol, securityCol := -1, -1
	for i, name := range header {
		switch strings.TrimSpace(name) {
		case "Symbol":
			symbolCol = i
		case "Security":
			securityCol = i
		}
	}
	if symbolCol < 0 || securityCol < 0 {
		return nil, fmt.Errorf("companies: header must contain Symbol and Security columns")
	}

	var companies []Company
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("companies: %w", err)
		}
		if symbolCol >= len(row) || securityCol >= len(row) {
			return nil, fmt.Errorf("companies: short row %v", row)
		}
		companies = append(companies, Company{
			Symbol:   strings.TrimSpace(row[symbolCol]),
			Security: strings.TrimSpace(row[securityCol]),
		})
	}
	return companies, nil
}

type queryEntry struct {
	Query string `yaml:"query"`
	N     int    `yaml:"n"`
	Since string `yaml:"since"`
	Until string `yaml:"until"`
	Lang  string `yaml:"lang"`
}

// LoadQueries reads a YAML list of queries. Dates may be written as
// 2017-01-01 or 2017-1-1; omitted fields take the Query defaults.
func LoadQueries(r io.Reader) ([]Query, error) {
	var entries []queryEntry
	if err := yaml.NewDecoder(r).Decode(&entries); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("queries: %w", err)
	}

	queries := make([]Query, len(entries))
	for i, e := range entries {
		q := Query{Query: e.Query, N: e.N, Lang: e.Lang}
		var err error
		if e.Since != "" {
			if q.Since, err = price.ParseDate(e.Since); err != nil {
				return nil, fmt.Errorf("queries[%d]: since: %w", i, err)
			}
		}
		if e.Until != "" {
			if q.Until, err = price.ParseDate(e.Until); err != nil {
				return nil, fmt.Errorf("queries[%d]: until: %w", i, err)
			}
		}
		queries[i] = q
	}
	return queries, nil
}

// CashtagQueries builds one "$SYMBOL" query per company with default
// settings, for runs without a queries file.
func CashtagQueries(companies []Company) []Query {
	queries := make([]Query, len(companies))
	for i, c := range companies {
		queries[i] = Query{Query: "$" + c.Symbol}
	}
	return queries
}
