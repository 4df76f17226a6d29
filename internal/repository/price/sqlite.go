package price

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	domain "github.com/ahmethakanbesel/stocksent/internal/price"
)

const (
	dateFormat = "2006-01-02"
	batchSize  = 500
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// SavePrices inserts closes, ignoring rows already stored for the same
// source, symbol and date. It returns the number of new rows.
func (r *Repository) SavePrices(ctx context.Context, prices []domain.Price) (int64, error) {
	var total int64
	for start := 0; start < len(prices); start += batchSize {
		batch := prices[start:min(start+batchSize, len(prices))]

		placeholders := make([]string, len(batch))
		args := make([]any, 0, len(batch)*4)
		for i, p := range batch {
			placeholders[i] = "(?, ?, ?, ?)"
			args = append(args, string(p.Source), p.Symbol, p.Date.Format(dateFormat), p.ClosePrice)
		}

		query := fmt.Sprintf( //nolint:gosec // placeholders are not user input
			"INSERT OR IGNORE INTO prices (source, symbol, date, close_price) VALUES %s",
			strings.Join(placeholders, ", "),
		)
		res, err := r.db.ExecContext(ctx, query, args...)
		if err != nil {
			return total, fmt.Errorf("save prices: %w", err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

// ListPrices returns stored closes in [from, to] ordered by date.
func (r *Repository) ListPrices(ctx context.Context, source domain.Source, symbol string, from, to time.Time) ([]domain.Price, error) {
	const query = `SELECT id, source, symbol, date, close_price, created_at
		FROM prices
		WHERE source = ? AND symbol = ? AND date BETWEEN ? AND ?
		ORDER BY date ASC`

	rows, err := r.db.QueryContext(ctx, query, string(source), symbol, from.Format(dateFormat), to.Format(dateFormat))
	if err != nil {
		return nil, fmt.Errorf("list prices: %w", err)
	}
	defer func() { _ = rows.Close() }()

	prices := []domain.Price{}
	for rows.Next() {
		var (
			p                    domain.Price
			src, day, createdStr string
		)
		if err := rows.Scan(&p.ID, &src, &p.Symbol, &day, &p.ClosePrice, &createdStr); err != nil {
			return nil, fmt.Errorf("scan price: %w", err)
		}
		p.Source = domain.Source(src)
		p.Date, _ = time.Parse(dateFormat, day)
		p.CreatedAt, _ = time.Parse(time.RFC3339, createdStr)
		prices = append(prices, p)
	}
	return prices, rows.Err()
}
