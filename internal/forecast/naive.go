package forecast

import (
	"context"
	"math"
)

// z-score of the 90th percentile.
const z90 = 1.2815515655446004

// NaiveDrift extrapolates the average step of the series, with a band that
// widens with the square root of the horizon.
type NaiveDrift struct{}

func (NaiveDrift) ID() string   { return "naive-drift" }
func (NaiveDrift) Name() string { return "Naive Drift" }
func (NaiveDrift) Description() string {
	return "Local random-walk-with-drift baseline, no worker required"
}

func (NaiveDrift) Predict(ctx context.Context, closes []float64, horizon int) (Output, error) {
	n := len(closes)
	if n < 2 {
		return Output{}, ErrInsufficientData
	}
	last := closes[n-1]
	drift := (last - closes[0]) / float64(n-1)

	var sum, sumSq float64
	for i := 1; i < n; i++ {
		d := closes[i] - closes[i-1] - drift
		sum += d
		sumSq += d * d
	}
	steps := float64(n - 1)
	sigma := math.Sqrt(math.Max(0, sumSq/steps-(sum/steps)*(sum/steps)))

	out := Output{
		Median: make([]float64, horizon),
		Lower:  make([]float64, horizon),
		Upper:  make([]float64, horizon),
	}
	for h := 1; h <= horizon; h++ {
		mid := last + drift*float64(h)
		width := z90 * sigma * math.Sqrt(float64(h))
		out.Median[h-1] = mid
		out.Lower[h-1] = mid - width
		out.Upper[h-1] = mid + width
	}
	return out, nil
}
