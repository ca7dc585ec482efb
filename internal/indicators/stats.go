package indicators

import (
	"math"
	"sort"
)

// TradingDaysPerYear annualises daily volatility.
const TradingDaysPerYear = 252

// ReturnSince is the percentage change from the close lookback bars ago to the
// last close. Short series fall back to the first close.
func ReturnSince(closes []float64, lookback int) float64 {
	if len(closes) == 0 {
		return 0
	}
	last := closes[len(closes)-1]
	base := closes[0]
	if len(closes) >= lookback && lookback > 0 {
		base = closes[len(closes)-lookback]
	}
	if base == 0 {
		return 0
	}
	return (last/base - 1) * 100
}

// AnnualisedVolatility is the sample standard deviation of bar-to-bar
// returns scaled by sqrt(252), in percent.
func AnnualisedVolatility(closes []float64) float64 {
	var rets []float64
	for i := 1; i < len(closes); i++ {
		if closes[i-1] == 0 {
			continue
		}
		rets = append(rets, closes[i]/closes[i-1]-1)
	}
	if len(rets) < 2 {
		return 0
	}
	mean := 0.0
	for _, r := range rets {
		mean += r
	}
	mean /= float64(len(rets))
	ss := 0.0
	for _, r := range rets {
		ss += (r - mean) * (r - mean)
	}
	std := math.Sqrt(ss / float64(len(rets)-1))
	return std * math.Sqrt(TradingDaysPerYear) * 100
}

// VolumeTrend compares the mean of the last recent volumes to the overall
// mean, in percent.
func VolumeTrend(volumes []float64, recent int) float64 {
	if len(volumes) == 0 || recent <= 0 {
		return 0
	}
	if recent > len(volumes) {
		recent = len(volumes)
	}
	all := mean(volumes)
	if all == 0 {
		return 0
	}
	return (mean(volumes[len(volumes)-recent:])/all - 1) * 100
}

// SupportResistance averages the three lowest lows and three highest highs of
// the last window bars.
func SupportResistance(highs, lows []float64, window int) (support, resistance float64) {
	if len(highs) == 0 || len(lows) == 0 {
		return 0, 0
	}
	h := tail(highs, window)
	l := tail(lows, window)
	hs := append([]float64(nil), h...)
	ls := append([]float64(nil), l...)
	sort.Sort(sort.Reverse(sort.Float64Slice(hs)))
	sort.Float64s(ls)
	return mean(ls[:min(3, len(ls))]), mean(hs[:min(3, len(hs))])
}

// Trend classifies price against its 20 and 50 bar averages.
func Trend(price, ma20, ma50 float64) string {
	switch {
	case price > ma20 && ma20 > ma50:
		return "BULLISH"
	case price < ma20 && ma20 < ma50:
		return "BEARISH"
	default:
		return "MIXED"
	}
}

func tail(values []float64, n int) []float64 {
	if n <= 0 || n >= len(values) {
		return values
	}
	return values[len(values)-n:]
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
