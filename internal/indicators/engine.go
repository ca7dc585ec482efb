package indicators

import "sync"

// Snapshot holds the latest indicator readings for one ticker.
type Snapshot struct {
	SMAShort float64
	SMALong  float64
	RSI      float64
	Samples  int
}

// Engine maintains per-ticker close windows fed by live ticks.
type Engine struct {
	mu      sync.Mutex
	prices  map[string][]float64
	window  int
	shortMA int
	longMA  int
	rsi     int
}

// NewEngine builds an indicator engine with the given windows.
func NewEngine(shortMA, longMA, rsiPeriod, window int) *Engine {
	if window < longMA {
		window = longMA
	}
	if window < rsiPeriod+1 {
		window = rsiPeriod + 1
	}
	return &Engine{
		prices:  make(map[string][]float64),
		window:  window,
		shortMA: shortMA,
		longMA:  longMA,
		rsi:     rsiPeriod,
	}
}

// Update ingests a new close and returns the latest readings. Readings whose
// window is not yet full are zero.
func (e *Engine) Update(ticker string, price float64) Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	arr := append(e.prices[ticker], price)
	if len(arr) > e.window {
		arr = arr[len(arr)-e.window:]
	}
	e.prices[ticker] = arr

	return Snapshot{
		SMAShort: SMA(arr, e.shortMA),
		SMALong:  SMA(arr, e.longMA),
		RSI:      RSI(arr, e.rsi),
		Samples:  len(arr),
	}
}

// Forget drops the window kept for ticker.
func (e *Engine) Forget(ticker string) {
	e.mu.Lock()
	delete(e.prices, ticker)
	e.mu.Unlock()
}
