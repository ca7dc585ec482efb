package aggregator

import "time"

// DefaultCapacity is the number of candles kept per ring.
const DefaultCapacity = 200

// Tick is a single streamed price update. Volume is session-cumulative.
type Tick struct {
	Close            float64
	CumulativeVolume float64
	ChangeAbs        float64
	ChangePct        float64
	Timestamp        time.Time
}

// Candle is an OHLCV aggregate over one fixed-duration bucket.
type Candle struct {
	PeriodStart time.Time `json:"period_start"`
	Open        float64   `json:"open"`
	High        float64   `json:"high"`
	Low         float64   `json:"low"`
	Close       float64   `json:"close"`
	Volume      float64   `json:"volume"`
}
