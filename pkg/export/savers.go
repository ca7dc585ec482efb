package export

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"strconv"

	"github.com/parquet-go/parquet-go"
)

var csvHeader = []string{"ticker", "period_start", "open", "high", "low", "close", "volume"}

// CSVSaver writes a header row then one row per bar. Timestamps are RFC 3339.
type CSVSaver struct{}

func (CSVSaver) Extension() string { return "csv" }

func (CSVSaver) Save(bars []Bar, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return err
	}
	for _, b := range bars {
		rec := []string{
			b.Ticker,
			b.Time().Format("2006-01-02T15:04:05Z07:00"),
			ftoa(b.Open), ftoa(b.High), ftoa(b.Low), ftoa(b.Close), ftoa(b.Volume),
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}

func ftoa(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

// JSONSaver writes an indented array.
type JSONSaver struct{}

func (JSONSaver) Extension() string { return "json" }

func (JSONSaver) Save(bars []Bar, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(bars); err != nil {
		return err
	}
	return f.Close()
}

// ParquetSaver writes one row group of bars.
type ParquetSaver struct{}

func (ParquetSaver) Extension() string { return "parquet" }

func (ParquetSaver) Save(bars []Bar, path string) error {
	return parquet.WriteFile(path, bars)
}
