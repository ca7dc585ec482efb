package data

import (
	"time"

	"market-dashboard/pkg/market/yahoo"
)

// Periods is the accepted history period whitelist, in display order.
var Periods = []string{"1d", "5d", "1mo", "3mo", "6mo", "1y", "2y", "5y", "10y", "ytd", "max"}

var intervals = map[string]string{
	"1d":  "5m",
	"5d":  "15m",
	"1mo": "1h",
	"3mo": "1d",
	"6mo": "1d",
	"1y":  "1d",
	"2y":  "1wk",
	"5y":  "1wk",
	"10y": "1mo",
	"ytd": "1d",
	"max": "1mo",
}

// IntervalFor returns the bar interval used for period.
func IntervalFor(period string) (string, bool) {
	iv, ok := intervals[period]
	return iv, ok
}

// ValidPeriod reports whether period is whitelisted.
func ValidPeriod(period string) bool {
	_, ok := intervals[period]
	return ok
}

// IsIntraday reports whether interval bars are shorter than a day.
func IsIntraday(interval string) bool {
	switch interval {
	case "1m", "2m", "5m", "15m", "30m", "60m", "90m", "1h", "2h", "4h":
		return true
	}
	return false
}

// sessionsFor is how many trailing sessions an intraday period keeps.
var sessionsFor = map[string]int{"1d": 1, "5d": 5}

// window returns the fetch start for period. Intraday periods over-fetch
// calendar days and are trimmed to whole sessions afterwards.
func window(period string, now time.Time) time.Time {
	now = now.UTC()
	switch period {
	case "1d":
		return now.AddDate(0, 0, -5)
	case "5d":
		return now.AddDate(0, 0, -10)
	case "1mo":
		return now.AddDate(0, -1, 0)
	case "3mo":
		return now.AddDate(0, -3, 0)
	case "6mo":
		return now.AddDate(0, -6, 0)
	case "1y":
		return now.AddDate(-1, 0, 0)
	case "2y":
		return now.AddDate(-2, 0, 0)
	case "5y":
		return now.AddDate(-5, 0, 0)
	case "10y":
		return now.AddDate(-10, 0, 0)
	case "ytd":
		return time.Date(now.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
	default:
		return time.Unix(0, 0).UTC()
	}
}

// lastSessions keeps the bars of the n most recent local trading dates.
func lastSessions(bars []yahoo.Bar, n int, loc *time.Location) []yahoo.Bar {
	if n <= 0 || len(bars) == 0 {
		return bars
	}
	seen := 0
	prev := ""
	for i := len(bars) - 1; i >= 0; i-- {
		day := bars[i].Time.In(loc).Format("2006-01-02")
		if day != prev {
			seen++
			prev = day
			if seen > n {
				return bars[i+1:]
			}
		}
	}
	return bars
}
