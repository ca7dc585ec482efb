package indicators

// RSI computes a basic Relative Strength Index with smoothing disabled for simplicity.
func RSI(values []float64, period int) float64 {
	if period <= 0 || len(values) < period+1 {
		return 0
	}

	gain := 0.0
	loss := 0.0
	for i := len(values) - period; i < len(values); i++ {
		change := values[i] - values[i-1]
		if change > 0 {
			gain += change
		} else {
			loss -= change
		}
	}
	return rsiFrom(gain, loss)
}

// RSISeries evaluates RSI over a sliding window of period price changes.
// The first period entries are nil because they lack a full window.
func RSISeries(values []float64, period int) []*float64 {
	out := make([]*float64, len(values))
	if period <= 0 || len(values) < period+1 {
		return out
	}

	gain, loss := 0.0, 0.0
	for i := 1; i < len(values); i++ {
		g, l := split(values[i] - values[i-1])
		gain += g
		loss += l
		if i > period {
			g, l = split(values[i-period] - values[i-period-1])
			gain -= g
			loss -= l
		}
		if i >= period {
			v := rsiFrom(gain, loss)
			out[i] = &v
		}
	}
	return out
}

// Signal labels an RSI reading the usual 70/30 way.
func Signal(rsi float64) string {
	switch {
	case rsi > 70:
		return "OVERBOUGHT"
	case rsi < 30:
		return "OVERSOLD"
	default:
		return "NEUTRAL"
	}
}

func split(change float64) (gain, loss float64) {
	if change > 0 {
		return change, 0
	}
	return 0, -change
}

func rsiFrom(gain, loss float64) float64 {
	// rolling sums can drift slightly below zero
	if loss <= 1e-12 {
		return 100
	}
	rs := gain / loss
	return 100 - (100 / (1 + rs))
}
