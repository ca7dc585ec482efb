package marketsession

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Calculator resolves tickers against an ordered market table.
type Calculator struct {
	markets []Market
}

// New builds a calculator over markets. An empty table falls back to
// DefaultMarkets.
func New(markets []Market) *Calculator {
	if len(markets) == 0 {
		markets = DefaultMarkets()
	}
	return &Calculator{markets: markets}
}

// Markets returns a copy of the table in match order.
func (c *Calculator) Markets() []Market {
	return append([]Market(nil), c.markets...)
}

// Lookup returns the first market whose predicate matches ticker. The last
// entry is used when nothing matches.
func (c *Calculator) Lookup(ticker string) Market {
	for _, m := range c.markets {
		if m.Matches(ticker) {
			return m
		}
	}
	return c.markets[len(c.markets)-1]
}

// Session returns today's session bounds for ticker in UTC milliseconds.
// "Today" is the calendar date of the market's local wall clock at now.
func (c *Calculator) Session(ticker string, now time.Time) (startMs, endMs int64) {
	m := c.Lookup(ticker)
	midnight := localMidnightUTC(m, now)
	startMs = midnight.Add(hours(m.OpenHour)).UnixMilli()
	endMs = midnight.Add(hours(m.CloseHour)).UnixMilli()
	return startMs, endMs
}

// Status is the open/closed verdict for a ticker at an instant.
type Status struct {
	Open   bool   `json:"is_open"`
	Reason string `json:"reason"`
	Market Market `json:"market"`
}

// Status reports whether ticker's market is trading at now.
func (c *Calculator) Status(ticker string, now time.Time) Status {
	m := c.Lookup(ticker)
	local := now.UTC().Add(hours(m.UTCOffset))
	st := Status{Market: m}

	if !m.OpenAllWeek {
		if wd := local.Weekday(); wd == time.Saturday || wd == time.Sunday {
			st.Reason = fmt.Sprintf("%s is closed on weekends", m.Name)
			return st
		}
	}

	start, end := c.Session(ticker, now)
	ms := now.UnixMilli()
	switch {
	case ms < start:
		st.Reason = fmt.Sprintf("%s opens at %s", m.Name, clock(m.OpenHour))
	case ms > end:
		st.Reason = fmt.Sprintf("%s closed at %s", m.Name, clock(m.CloseHour))
	default:
		st.Open = true
		st.Reason = "Market is open"
	}
	return st
}

// localMidnightUTC shifts now into the market's wall clock, truncates to the
// date and shifts back, all without consulting the host time zone.
func localMidnightUTC(m Market, now time.Time) time.Time {
	offset := hours(m.UTCOffset)
	y, mo, d := now.UTC().Add(offset).Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, time.UTC).Add(-offset)
}

func hours(h float64) time.Duration {
	return time.Duration(math.Round(h * float64(time.Hour)))
}

func clock(h float64) string {
	whole := int(h)
	minutes := int(math.Round((h - float64(whole)) * 60))
	return fmt.Sprintf("%d:%02d", whole, minutes)
}

// Normalize upper-cases and trims a ticker symbol.
func Normalize(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}
