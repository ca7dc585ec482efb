package aggregator

import (
	"math"
	"time"
)

// DefaultPeriodSeconds is the candle duration used until SetPeriod is called.
const DefaultPeriodSeconds = 10

// Aggregator buckets an irregular tick stream into fixed-duration candles.
// It is owned by a single goroutine and does no locking.
type Aggregator struct {
	ring           *Ring
	periodSeconds  int64
	lastCumulative float64
}

// New builds an aggregator with the given candle duration and ring capacity.
func New(periodSeconds, capacity int) *Aggregator {
	if periodSeconds <= 0 {
		periodSeconds = DefaultPeriodSeconds
	}
	return &Aggregator{
		ring:          NewRing(capacity),
		periodSeconds: int64(periodSeconds),
	}
}

// Period returns the current candle duration.
func (a *Aggregator) Period() time.Duration {
	return time.Duration(a.periodSeconds) * time.Second
}

// SetPeriod switches the candle duration. Existing candles cannot be
// re-bucketed, so a change clears everything including the volume baseline.
func (a *Aggregator) SetPeriod(periodSeconds int) {
	if periodSeconds <= 0 || int64(periodSeconds) == a.periodSeconds {
		return
	}
	a.periodSeconds = int64(periodSeconds)
	a.Reset()
}

// Reset clears the ring, the key map and the cumulative volume baseline.
func (a *Aggregator) Reset() {
	a.ring.Clear()
	a.lastCumulative = 0
}

// BucketStart floors t to the start of its bucket, in unix seconds.
func (a *Aggregator) BucketStart(t time.Time) int64 {
	return floorDiv(t.Unix(), a.periodSeconds) * a.periodSeconds
}

// Ingest folds one tick into the ring. Out-of-order ticks are applied to
// whichever bucket their own timestamp maps to.
func (a *Aggregator) Ingest(t Tick) {
	key := a.BucketStart(t.Timestamp)

	periodVolume := math.Max(0, t.CumulativeVolume-a.lastCumulative)
	a.lastCumulative = t.CumulativeVolume

	if c, ok := a.ring.Get(key); ok {
		c.Close = t.Close
		c.High = math.Max(c.High, t.Close)
		c.Low = math.Min(c.Low, t.Close)
		c.Volume += periodVolume
		return
	}

	a.ring.Append(key, Candle{
		PeriodStart: time.Unix(key, 0).UTC(),
		Open:        t.Close,
		High:        t.Close,
		Low:         t.Close,
		Close:       t.Close,
		Volume:      periodVolume,
	})
}

// Snapshot returns the candles oldest first.
func (a *Aggregator) Snapshot() []Candle {
	return a.ring.Snapshot()
}

// Len returns the number of candles currently held.
func (a *Aggregator) Len() int { return a.ring.Len() }

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
