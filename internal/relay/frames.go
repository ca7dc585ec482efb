package relay

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"market-dashboard/internal/marketsession"
	"market-dashboard/internal/stream"
	"market-dashboard/pkg/market/yahoo"
)

// TickSource tags frames relayed from the Yahoo streamer.
const TickSource = "yahoo_finance_websocket"

// candleStep is the floor applied to candle_start on outgoing ticks.
const candleStep = 10 * time.Second

// MarketInfo describes the ticker's market on control frames.
type MarketInfo struct {
	Code        string  `json:"code"`
	Name        string  `json:"name"`
	Timezone    string  `json:"timezone"`
	UTCOffset   float64 `json:"utc_offset"`
	MarketOpen  string  `json:"market_open"`
	MarketClose string  `json:"market_close"`
	IsOpen      bool    `json:"is_open"`
	Status      string  `json:"status"`
}

func newMarketInfo(st marketsession.Status) MarketInfo {
	m := st.Market
	return MarketInfo{
		Code:        m.Code,
		Name:        m.Name,
		Timezone:    utcLabel(m.UTCOffset),
		UTCOffset:   m.UTCOffset,
		MarketOpen:  hhmm(m.OpenHour),
		MarketClose: hhmm(m.CloseHour),
		IsOpen:      st.Open,
		Status:      st.Reason,
	}
}

// TickFrame converts a streamer frame into the relay's tick message. A zero
// upstream time is replaced by now.
func TickFrame(p yahoo.Pricing, now time.Time) stream.TickMessage {
	ts := now.UTC()
	if p.Time > 0 {
		ts = time.UnixMilli(p.Time).UTC()
	}
	price := round4(decimal.NewFromFloat32(p.Price))
	return stream.TickMessage{
		Open:          price,
		High:          price,
		Low:           price,
		Close:         price,
		Volume:        float64(p.DayVolume),
		Change:        round4(decimal.NewFromFloat32(p.Change)),
		ChangePercent: round4(decimal.NewFromFloat32(p.ChangePercent)),
		Timestamp:     stream.FormatTimestamp(ts),
		CandleStart:   stream.FormatTimestamp(ts.Truncate(candleStep)),
		Source:        TickSource,
		MarketHours:   p.RegularHours(),
		LastSize:      p.LastSize,
	}
}

func round4(d decimal.Decimal) float64 {
	return d.Round(4).InexactFloat64()
}

func encode(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		// Only our own message types reach here.
		panic(fmt.Sprintf("relay: encode frame: %v", err))
	}
	return b
}

func utcLabel(offset float64) string {
	sign := "+"
	if offset < 0 {
		sign = "-"
		offset = -offset
	}
	return "UTC" + sign + hhmm(offset)
}

func hhmm(h float64) string {
	minutes := int(h*60 + 0.5)
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}
