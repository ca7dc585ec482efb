package indicators

// SMA calculates the simple moving average for the last period values.
func SMA(values []float64, period int) float64 {
	if period <= 0 || len(values) < period {
		return 0
	}
	sum := 0.0
	for i := len(values) - period; i < len(values); i++ {
		sum += values[i]
	}
	return sum / float64(period)
}

// SMASeries returns the windowed mean at every index of values. Points before
// the first full window are nil so the result stays index-aligned with values.
func SMASeries(values []float64, period int) []*float64 {
	out := make([]*float64, len(values))
	if period <= 0 || len(values) < period {
		return out
	}
	sum := 0.0
	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
		}
		if i >= period-1 {
			avg := sum / float64(period)
			out[i] = &avg
		}
	}
	return out
}
