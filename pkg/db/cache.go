package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrNotFound = errors.New("record not found")

// CacheQueries stores upstream payloads with an expiry. Payloads are opaque
// JSON documents.
type CacheQueries struct {
	db  *sql.DB
	now func() time.Time
}

// StockEntry is one cached market-data payload.
type StockEntry struct {
	Ticker     string
	Period     string
	DataType   string
	Data       []byte
	DataPoints int
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// SentimentEntry is one cached sentiment analysis.
type SentimentEntry struct {
	ID               int64
	Ticker           string
	Period           string
	Model            string
	Data             []byte
	Text             string
	ProcessingTimeMs float64
	CreatedAt        time.Time
	ExpiresAt        time.Time
}

// GetStockData returns the unexpired payload for (ticker, period, dataType)
// or ErrNotFound.
func (q *CacheQueries) GetStockData(ctx context.Context, ticker, period, dataType string) (*StockEntry, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT ticker, period, data_type, data, COALESCE(data_points, 0), created_at, expires_at
		FROM stock_data_cache
		WHERE ticker = ? AND period = ? AND data_type = ? AND expires_at > ?
	`, strings.ToUpper(ticker), period, dataType, q.now().UnixMilli())

	var (
		e                  StockEntry
		data               string
		created, expiresAt int64
	)
	if err := row.Scan(&e.Ticker, &e.Period, &e.DataType, &data, &e.DataPoints, &created, &expiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query stock cache: %w", err)
	}
	e.Data = []byte(data)
	e.CreatedAt = time.UnixMilli(created)
	e.ExpiresAt = time.UnixMilli(expiresAt)
	return &e, nil
}

// SetStockData replaces the payload for (ticker, period, dataType).
func (q *CacheQueries) SetStockData(ctx context.Context, ticker, period, dataType string, data []byte, dataPoints int, ttl time.Duration) error {
	now := q.now()
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO stock_data_cache (ticker, period, data_type, data, data_points, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(ticker, period, data_type) DO UPDATE SET
			data = excluded.data,
			data_points = excluded.data_points,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at
	`, strings.ToUpper(ticker), period, dataType, string(data), dataPoints, now.UnixMilli(), now.Add(ttl).UnixMilli())
	if err != nil {
		return fmt.Errorf("upsert stock cache: %w", err)
	}
	return nil
}

// GetSentiment returns the unexpired analysis for (ticker, period, model)
// or ErrNotFound.
func (q *CacheQueries) GetSentiment(ctx context.Context, ticker, period, model string) (*SentimentEntry, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT id, ticker, period, model, analysis_data, COALESCE(analysis_text, ''),
		       COALESCE(processing_time_ms, 0), created_at, expires_at
		FROM sentiment_cache
		WHERE ticker = ? AND period = ? AND model = ? AND expires_at > ?
	`, strings.ToUpper(ticker), period, model, q.now().UnixMilli())

	var (
		e                  SentimentEntry
		data               string
		created, expiresAt int64
	)
	if err := row.Scan(&e.ID, &e.Ticker, &e.Period, &e.Model, &data, &e.Text, &e.ProcessingTimeMs, &created, &expiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query sentiment cache: %w", err)
	}
	e.Data = []byte(data)
	e.CreatedAt = time.UnixMilli(created)
	e.ExpiresAt = time.UnixMilli(expiresAt)
	return &e, nil
}

// GetSentimentByID returns an analysis by row id, expired or not, or
// ErrNotFound.
func (q *CacheQueries) GetSentimentByID(ctx context.Context, id int64) (*SentimentEntry, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT id, ticker, period, model, analysis_data, COALESCE(analysis_text, ''),
		       COALESCE(processing_time_ms, 0), created_at, expires_at
		FROM sentiment_cache
		WHERE id = ?
	`, id)

	var (
		e                  SentimentEntry
		data               string
		created, expiresAt int64
	)
	if err := row.Scan(&e.ID, &e.Ticker, &e.Period, &e.Model, &data, &e.Text, &e.ProcessingTimeMs, &created, &expiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query sentiment %d: %w", id, err)
	}
	e.Data = []byte(data)
	e.CreatedAt = time.UnixMilli(created)
	e.ExpiresAt = time.UnixMilli(expiresAt)
	return &e, nil
}

// SetSentiment replaces the analysis for (ticker, period, model) and returns
// its row id. Text is truncated to 1000 bytes.
func (q *CacheQueries) SetSentiment(ctx context.Context, e SentimentEntry, ttl time.Duration) (int64, error) {
	now := q.now()
	text := e.Text
	if len(text) > 1000 {
		text = text[:1000]
	}
	ticker := strings.ToUpper(e.Ticker)

	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM sentiment_cache WHERE ticker = ? AND period = ? AND model = ?`,
		ticker, e.Period, e.Model); err != nil {
		return 0, fmt.Errorf("delete sentiment cache: %w", err)
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO sentiment_cache (ticker, period, model, analysis_data, analysis_text, processing_time_ms, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, ticker, e.Period, e.Model, string(e.Data), text, e.ProcessingTimeMs, now.UnixMilli(), now.Add(ttl).UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("insert sentiment cache: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return id, tx.Commit()
}

// PurgeExpired deletes every expired row and returns how many went.
func (q *CacheQueries) PurgeExpired(ctx context.Context) (int64, error) {
	cutoff := q.now().UnixMilli()
	var total int64
	for _, table := range []string{"stock_data_cache", "sentiment_cache"} {
		res, err := q.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE expires_at <= ?", cutoff)
		if err != nil {
			return total, fmt.Errorf("purge %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}
