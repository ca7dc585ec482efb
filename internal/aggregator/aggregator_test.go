package aggregator

import (
	"testing"
	"time"
)

func tickAt(sec int64, price, cum float64) Tick {
	return Tick{Close: price, CumulativeVolume: cum, Timestamp: time.Unix(sec, 0)}
}

func TestIngestBucketsTicks(t *testing.T) {
	agg := New(30, DefaultCapacity)
	agg.Ingest(tickAt(0, 100, 1000))
	agg.Ingest(tickAt(10, 101, 1200))
	agg.Ingest(tickAt(40, 99, 1500))

	got := agg.Snapshot()
	if len(got) != 2 {
		t.Fatalf("len=%d, expected 2", len(got))
	}

	// The baseline starts at 0 on a fresh ring, so the first tick contributes
	// its whole cumulative volume: 1000 + 200, not 200. A bucket that only sees
	// deltas is covered by TestIngestPeriodVolumeAfterBaseline.
	want := []Candle{
		{PeriodStart: time.Unix(0, 0).UTC(), Open: 100, High: 101, Low: 100, Close: 101, Volume: 1200},
		{PeriodStart: time.Unix(30, 0).UTC(), Open: 99, High: 99, Low: 99, Close: 99, Volume: 300},
	}
	for i := range want {
		if !got[i].PeriodStart.Equal(want[i].PeriodStart) {
			t.Fatalf("candle %d start=%v, expected %v", i, got[i].PeriodStart, want[i].PeriodStart)
		}
		if got[i].Open != want[i].Open || got[i].High != want[i].High ||
			got[i].Low != want[i].Low || got[i].Close != want[i].Close {
			t.Fatalf("candle %d = %+v, expected %+v", i, got[i], want[i])
		}
		if got[i].Volume != want[i].Volume {
			t.Fatalf("candle %d volume=%v, expected %v", i, got[i].Volume, want[i].Volume)
		}
	}
}

func TestIngestPeriodVolumeAfterBaseline(t *testing.T) {
	agg := New(30, DefaultCapacity)
	// Seed the baseline in an earlier bucket so the scenario buckets see pure deltas.
	agg.Ingest(tickAt(-30, 100, 1000))
	agg.Ingest(tickAt(0, 100, 1000))
	agg.Ingest(tickAt(10, 101, 1200))
	agg.Ingest(tickAt(40, 99, 1500))

	got := agg.Snapshot()
	if len(got) != 3 {
		t.Fatalf("len=%d, expected 3", len(got))
	}
	if got[1].Volume != 200 {
		t.Fatalf("bucket [0,30) volume=%v, expected 200", got[1].Volume)
	}
	if got[2].Volume != 300 {
		t.Fatalf("bucket [30,60) volume=%v, expected 300", got[2].Volume)
	}
}

func TestIngestVolumeSumMatchesCumulativeDelta(t *testing.T) {
	agg := New(5, DefaultCapacity)
	cums := []float64{500, 500, 640, 700, 910, 910, 1000, 1333}
	for i, cum := range cums {
		agg.Ingest(tickAt(int64(i*3), 10+float64(i%3), cum))
	}

	var sum float64
	for _, c := range agg.Snapshot() {
		sum += c.Volume
	}
	// Baseline starts at zero, so the first tick contributes its full cumulative volume.
	if want := cums[len(cums)-1]; sum != want {
		t.Fatalf("volume sum=%v, expected %v", sum, want)
	}
}

func TestIngestClampsVolumeReset(t *testing.T) {
	agg := New(60, DefaultCapacity)
	agg.Ingest(tickAt(0, 10, 5000))
	agg.Ingest(tickAt(1, 11, 20)) // counter reset upstream

	c := agg.Snapshot()[0]
	if c.Volume != 5000 {
		t.Fatalf("volume=%v, expected 5000 (negative delta clamped)", c.Volume)
	}
	agg.Ingest(tickAt(2, 11, 70))
	if c := agg.Snapshot()[0]; c.Volume != 5050 {
		t.Fatalf("volume=%v, expected 5050 after reset baseline", c.Volume)
	}
}

func TestIngestKeepsOHLCInvariant(t *testing.T) {
	agg := New(60, DefaultCapacity)
	prices := []float64{50, 52, 49.5, 51, 48, 53, 50.25}
	for i, p := range prices {
		agg.Ingest(tickAt(int64(i), p, float64(i)))
		c := agg.Snapshot()[0]
		if c.Low > c.High {
			t.Fatalf("low %v > high %v", c.Low, c.High)
		}
		for _, v := range []float64{c.Open, c.Close} {
			if v < c.Low || v > c.High {
				t.Fatalf("value %v outside [%v, %v]", v, c.Low, c.High)
			}
		}
	}
	c := agg.Snapshot()[0]
	if c.Open != 50 || c.High != 53 || c.Low != 48 || c.Close != 50.25 {
		t.Fatalf("candle=%+v", c)
	}
}

func TestRingEvictsOldest(t *testing.T) {
	agg := New(1, DefaultCapacity)
	total := DefaultCapacity + 37
	for i := 0; i < total; i++ {
		agg.Ingest(tickAt(int64(i), float64(i), float64(i)))
	}

	got := agg.Snapshot()
	if len(got) != DefaultCapacity {
		t.Fatalf("len=%d, expected %d", len(got), DefaultCapacity)
	}
	first := int64(total - DefaultCapacity)
	for i, c := range got {
		if want := first + int64(i); c.PeriodStart.Unix() != want {
			t.Fatalf("slot %d start=%d, expected %d", i, c.PeriodStart.Unix(), want)
		}
	}

	// Updating a surviving bucket must hit the right slot after wrap-around.
	agg.Ingest(Tick{Close: 1e6, CumulativeVolume: float64(total), Timestamp: time.Unix(first, 0)})
	if c := agg.Snapshot()[0]; c.High != 1e6 {
		t.Fatalf("oldest bucket high=%v, expected update in place", c.High)
	}
}

func TestSetPeriodResets(t *testing.T) {
	agg := New(30, DefaultCapacity)
	agg.Ingest(tickAt(0, 100, 1000))
	agg.Ingest(tickAt(10, 101, 1200))

	agg.SetPeriod(60)
	if agg.Len() != 0 {
		t.Fatalf("len=%d after period change, expected 0", agg.Len())
	}

	agg.Ingest(tickAt(70, 102, 1300))
	c := agg.Snapshot()[0]
	if c.Volume != 1300 {
		t.Fatalf("volume=%v, expected raw cumulative 1300 after reset", c.Volume)
	}
	if c.PeriodStart.Unix() != 60 {
		t.Fatalf("start=%d, expected 60", c.PeriodStart.Unix())
	}

	// Same period is a no-op.
	agg.SetPeriod(60)
	if agg.Len() != 1 {
		t.Fatalf("len=%d, expected 1", agg.Len())
	}
}

func TestOutOfOrderTickUpdatesOlderBucket(t *testing.T) {
	agg := New(10, DefaultCapacity)
	agg.Ingest(tickAt(0, 10, 100))
	agg.Ingest(tickAt(25, 12, 200))
	agg.Ingest(tickAt(5, 8, 250))

	got := agg.Snapshot()
	if len(got) != 2 {
		t.Fatalf("len=%d, expected 2", len(got))
	}
	if got[0].Low != 8 || got[0].Close != 8 || got[0].Volume != 150 {
		t.Fatalf("older bucket=%+v", got[0])
	}
	if got[1].Close != 12 {
		t.Fatalf("latest bucket=%+v", got[1])
	}
}

func TestBucketStartNegative(t *testing.T) {
	agg := New(30, DefaultCapacity)
	if got := agg.BucketStart(time.Unix(-1, 0)); got != -30 {
		t.Fatalf("BucketStart(-1)=%d, expected -30", got)
	}
}
