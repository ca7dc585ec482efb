package chart

import (
	"slices"
	"time"
)

// Panel domains as [bottom, top] fractions of the plot height.
type panelDomains struct {
	Price  []float64
	Volume []float64
	RSI    []float64
}

// domainTable is keyed by (volume enabled, RSI enabled). The price panel
// always keeps the majority share.
var domainTable = map[[2]bool]panelDomains{
	{false, false}: {Price: []float64{0, 1}},
	{true, false}:  {Price: []float64{0.3, 1}, Volume: []float64{0, 0.25}},
	{false, true}:  {Price: []float64{0.3, 1}, RSI: []float64{0, 0.25}},
	{true, true}:   {Price: []float64{0.45, 1}, Volume: []float64{0.23, 0.4}, RSI: []float64{0, 0.18}},
}

func domainsFor(volume, rsi bool) panelDomains {
	return domainTable[[2]bool{volume, rsi}]
}

type palette struct {
	Paper, Plot, Font, Grid string
	Up, Down                string
	RSI, Forecast, Band     string
}

var themes = map[string]palette{
	ThemeLight: {
		Paper: "#ffffff", Plot: "#ffffff", Font: "#1f2933", Grid: "#e5e7eb",
		Up: "#26a69a", Down: "#ef5350",
		RSI: "#8b5cf6", Forecast: "#f97316", Band: "rgba(249,115,22,0.18)",
	},
	ThemeDark: {
		Paper: "#0f172a", Plot: "#0f172a", Font: "#e2e8f0", Grid: "#1e293b",
		Up: "#22c55e", Down: "#f43f5e",
		RSI: "#a78bfa", Forecast: "#fb923c", Band: "rgba(251,146,60,0.22)",
	},
}

var maColors = map[int]string{20: "#f59e0b", 50: "#3b82f6", 200: "#a855f7"}

const (
	intradayThreshold = 2 * time.Hour
	sparseThreshold   = 5 * 24 * time.Hour
)

// RangeBreaks picks which recurring gaps to hide from the sampling cadence of
// times: intraday data hides weekends and the overnight band, daily data hides
// weekends only, and data five days apart or sparser hides nothing.
func RangeBreaks(times []time.Time, s Session) []RangeBreak {
	if s.AllWeek {
		return nil
	}
	weekends := RangeBreak{Bounds: []any{"sat", "mon"}}
	med := medianInterval(times)
	switch {
	case med >= sparseThreshold:
		return nil
	case med > 0 && med < intradayThreshold:
		return []RangeBreak{weekends, {Bounds: []any{s.CloseHour, s.OpenHour}, Pattern: "hour"}}
	default:
		return []RangeBreak{weekends}
	}
}

func medianInterval(times []time.Time) time.Duration {
	if len(times) < 2 {
		return 0
	}
	gaps := make([]time.Duration, 0, len(times)-1)
	for i := 1; i < len(times); i++ {
		if d := times[i].Sub(times[i-1]); d > 0 {
			gaps = append(gaps, d)
		}
	}
	if len(gaps) == 0 {
		return 0
	}
	slices.Sort(gaps)
	mid := len(gaps) / 2
	if len(gaps)%2 == 0 {
		return (gaps[mid-1] + gaps[mid]) / 2
	}
	return gaps[mid]
}

func sameBreaks(a, b []RangeBreak) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Pattern != b[i].Pattern || !slices.Equal(a[i].Bounds, b[i].Bounds) {
			return false
		}
	}
	return true
}
