package data

import (
	"time"

	"market-dashboard/internal/aggregator"
	"market-dashboard/internal/marketsession"
)

// TickerInfo is the cached identity of a symbol.
type TickerInfo struct {
	Symbol    string `json:"symbol"`
	LongName  string `json:"longName"`
	ShortName string `json:"shortName"`
	Sector    string `json:"sector"`
	Industry  string `json:"industry"`
	MarketCap int64  `json:"marketCap,omitempty"`
	Currency  string `json:"currency"`
	Exchange  string `json:"exchange"`
	QuoteType string `json:"quoteType,omitempty"`
}

// Row is one OHLCV history row. Date is display text; Timestamp is RFC 3339
// in the market's offset.
type Row struct {
	Date      string  `json:"date"`
	Timestamp string  `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    int64   `json:"volume"`
}

// DateRange bounds a history payload.
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// History is the payload of the historical endpoint.
type History struct {
	Ticker      string    `json:"ticker"`
	CompanyName string    `json:"company_name"`
	Period      string    `json:"period"`
	Interval    string    `json:"interval"`
	DataPoints  int       `json:"data_points"`
	DateRange   DateRange `json:"date_range"`
	OHLCV       []Row     `json:"ohlcv"`
}

// Candles converts rows to candles. Rows with unparseable timestamps are
// skipped.
func (h *History) Candles() []aggregator.Candle {
	out := make([]aggregator.Candle, 0, len(h.OHLCV))
	for _, r := range h.OHLCV {
		ts, err := time.Parse(time.RFC3339, r.Timestamp)
		if err != nil {
			continue
		}
		out = append(out, aggregator.Candle{
			PeriodStart: ts,
			Open:        r.Open,
			High:        r.High,
			Low:         r.Low,
			Close:       r.Close,
			Volume:      float64(r.Volume),
		})
	}
	return out
}

// Closes returns the close column.
func (h *History) Closes() []float64 {
	out := make([]float64, len(h.OHLCV))
	for i, r := range h.OHLCV {
		out[i] = r.Close
	}
	return out
}

// MarketDetail labels where a security trades.
type MarketDetail struct {
	Country  string `json:"country"`
	Market   string `json:"market"`
	Currency string `json:"currency"`
	Timezone string `json:"timezone"`
}

// Company is the descriptive block of a summary.
type Company struct {
	LongName  string `json:"longName"`
	ShortName string `json:"shortName"`
	Exchange  string `json:"exchange"`
	Currency  string `json:"currency"`
}

// Metrics holds valuation figures; nil means Yahoo did not report it.
type Metrics struct {
	MarketCap   *float64 `json:"marketCap"`
	TrailingPE  *float64 `json:"trailingPE"`
	ForwardPE   *float64 `json:"forwardPE"`
	PriceToBook *float64 `json:"priceToBook"`
	EPS         *float64 `json:"eps"`
}

// PriceBlock holds the quote's price fields.
type PriceBlock struct {
	LastPrice            *float64 `json:"lastPrice"`
	PreviousClose        *float64 `json:"previousClose"`
	Open                 *float64 `json:"open"`
	DayLow               *float64 `json:"dayLow"`
	DayHigh              *float64 `json:"dayHigh"`
	FiftyTwoWeekLow      *float64 `json:"fiftyTwoWeekLow"`
	FiftyTwoWeekHigh     *float64 `json:"fiftyTwoWeekHigh"`
	FiftyDayAverage      *float64 `json:"fiftyDayAverage"`
	TwoHundredDayAverage *float64 `json:"twoHundredDayAverage"`
	Volume               *float64 `json:"volume"`
	AvgVolume            *float64 `json:"avgVolume"`
	Change               *float64 `json:"change"`
	ChangePercent        *float64 `json:"changePercent"`
}

// Dividends holds dividend fields.
type Dividends struct {
	DividendYield *float64 `json:"dividendYield"`
}

// Summary is the comprehensive quote payload.
type Summary struct {
	Ticker       string       `json:"ticker"`
	SecurityType string       `json:"securityType"`
	QuoteType    string       `json:"quoteType"`
	MarketState  string       `json:"marketState"`
	Market       MarketDetail `json:"market"`
	Company      Company      `json:"company"`
	Metrics      Metrics      `json:"metrics"`
	Price        PriceBlock   `json:"price"`
	Dividends    Dividends    `json:"dividends"`
	MarketTime   string       `json:"marketTime,omitempty"`
}

// MarketStatus is the display label for a ticker's market right now.
type MarketStatus struct {
	Ticker       string               `json:"ticker"`
	IsOpen       bool                 `json:"is_open"`
	Reason       string               `json:"reason"`
	Market       marketsession.Market `json:"market"`
	SessionStart time.Time            `json:"session_start"`
	SessionEnd   time.Time            `json:"session_end"`
	Timestamp    time.Time            `json:"timestamp"`
}
