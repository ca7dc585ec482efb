// Package export writes candle series to disk as CSV, JSON or Parquet.
package export

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"market-dashboard/internal/aggregator"
)

// Bar is the on-disk row shape shared by every format.
type Bar struct {
	Ticker      string  `json:"ticker" parquet:"ticker"`
	PeriodStart int64   `json:"period_start_ms" parquet:"period_start_ms"`
	Open        float64 `json:"open" parquet:"open"`
	High        float64 `json:"high" parquet:"high"`
	Low         float64 `json:"low" parquet:"low"`
	Close       float64 `json:"close" parquet:"close"`
	Volume      float64 `json:"volume" parquet:"volume"`
}

// Time returns the bucket start.
func (b Bar) Time() time.Time { return time.UnixMilli(b.PeriodStart).UTC() }

// Saver writes one file of bars.
type Saver interface {
	Save(bars []Bar, path string) error
	Extension() string
}

// NewSaver picks a saver by format name. It returns nil for unknown formats.
func NewSaver(format string) Saver {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "csv":
		return CSVSaver{}
	case "parquet":
		return ParquetSaver{}
	case "json":
		return JSONSaver{}
	default:
		return nil
	}
}

// Bars converts candles for ticker into rows.
func Bars(ticker string, candles []aggregator.Candle) []Bar {
	out := make([]Bar, len(candles))
	for i, c := range candles {
		out[i] = Bar{
			Ticker:      ticker,
			PeriodStart: c.PeriodStart.UnixMilli(),
			Open:        c.Open,
			High:        c.High,
			Low:         c.Low,
			Close:       c.Close,
			Volume:      c.Volume,
		}
	}
	return out
}

// WriteFile saves candles to path, choosing the format from its extension.
func WriteFile(path, ticker string, candles []aggregator.Candle) (int, error) {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	s := NewSaver(ext)
	if s == nil {
		return 0, fmt.Errorf("export: unsupported format %q (use csv, json or parquet)", ext)
	}
	bars := Bars(ticker, candles)
	if err := s.Save(bars, path); err != nil {
		return 0, fmt.Errorf("export %s: %w", path, err)
	}
	return len(bars), nil
}
