package chart

import (
	"errors"
	"slices"
	"testing"
	"time"

	"market-dashboard/internal/aggregator"
)

func bars(n int, step time.Duration) []aggregator.Candle {
	start := time.Date(2024, 3, 11, 14, 30, 0, 0, time.UTC)
	out := make([]aggregator.Candle, n)
	for i := range out {
		p := 100 + float64(i%5)
		out[i] = aggregator.Candle{
			PeriodStart: start.Add(time.Duration(i) * step),
			Open:        p - 0.5,
			High:        p + 1,
			Low:         p - 1,
			Close:       p,
			Volume:      float64(1000 + i),
		}
	}
	return out
}

func countOps(ops []string, name string) int {
	n := 0
	for _, op := range ops {
		if op == name {
			n++
		}
	}
	return n
}

func TestCreateDomains(t *testing.T) {
	cases := []struct {
		volume, rsi bool
		price       []float64
		vol         []float64
		rsiDomain   []float64
	}{
		{false, false, []float64{0, 1}, nil, nil},
		{true, false, []float64{0.3, 1}, []float64{0, 0.25}, nil},
		{false, true, []float64{0.3, 1}, nil, []float64{0, 0.25}},
		{true, true, []float64{0.45, 1}, []float64{0.23, 0.4}, []float64{0, 0.18}},
	}
	for _, tc := range cases {
		host := NewMemoryHost()
		r := NewRenderer(host, DefaultSession())
		cfg := Config{ShowVolume: tc.volume, ShowRSI: tc.rsi}
		if !r.Create("AAPL", bars(30, 5*time.Minute), cfg, nil) {
			t.Fatalf("create failed for %+v", cfg)
		}
		fig := host.Figure()
		if !slices.Equal(fig.Layout.YAxis.Domain, tc.price) {
			t.Fatalf("%+v price domain=%v, expected %v", cfg, fig.Layout.YAxis.Domain, tc.price)
		}
		if (fig.Layout.YAxis2 != nil) != tc.volume {
			t.Fatalf("%+v volume axis presence mismatch", cfg)
		}
		if tc.volume && !slices.Equal(fig.Layout.YAxis2.Domain, tc.vol) {
			t.Fatalf("%+v volume domain=%v, expected %v", cfg, fig.Layout.YAxis2.Domain, tc.vol)
		}
		if (fig.Layout.YAxis3 != nil) != tc.rsi {
			t.Fatalf("%+v rsi axis presence mismatch", cfg)
		}
		if tc.rsi && !slices.Equal(fig.Layout.YAxis3.Domain, tc.rsiDomain) {
			t.Fatalf("%+v rsi domain=%v, expected %v", cfg, fig.Layout.YAxis3.Domain, tc.rsiDomain)
		}
	}
}

func TestCreateTraces(t *testing.T) {
	host := NewMemoryHost()
	r := NewRenderer(host, DefaultSession())
	data := bars(60, 24*time.Hour)
	cfg := Config{MovingAverages: []int{50, 20, 20, 7}, ShowRSI: true, ShowVolume: true}
	if !r.Create("AAPL", data, cfg, nil) {
		t.Fatalf("create failed")
	}

	fig := host.Figure()
	var names []string
	for _, tr := range fig.Data {
		names = append(names, tr.Name)
		if len(tr.X) != len(data) {
			t.Fatalf("trace %s has %d points, expected %d", tr.Name, len(tr.X), len(data))
		}
	}
	want := []string{"Price", "SMA 20", "SMA 50", "Volume", "RSI 14"}
	if !slices.Equal(names, want) {
		t.Fatalf("traces=%v, expected %v", names, want)
	}

	sma20 := fig.Data[1].Y
	if sma20[18] != nil || sma20[19] == nil {
		t.Fatalf("SMA 20 padding wrong: [18]=%v [19]=%v", sma20[18], sma20[19])
	}
	rsi := fig.Data[4].Y
	if rsi[13] != nil || rsi[14] == nil {
		t.Fatalf("RSI padding wrong")
	}
	if fig.Data[4].YAxis != "y3" || fig.Data[3].YAxis != "y2" {
		t.Fatalf("panel axes wrong: volume=%s rsi=%s", fig.Data[3].YAxis, fig.Data[4].YAxis)
	}
}

func TestVolumeColors(t *testing.T) {
	pal := themes[ThemeLight]
	data := []aggregator.Candle{
		{Open: 10, Close: 9},
		{Open: 9, Close: 9.5},
		{Open: 9.5, Close: 9.2},
	}
	got := volumeColors(data, pal)
	want := []string{pal.Down, pal.Up, pal.Down}
	if !slices.Equal(got, want) {
		t.Fatalf("colors=%v, expected %v", got, want)
	}
}

func TestCreatePredictionBand(t *testing.T) {
	host := NewMemoryHost()
	r := NewRenderer(host, Session{Location: time.UTC})
	data := bars(10, 24*time.Hour)
	last := data[len(data)-1].PeriodStart
	pred := &Prediction{
		Dates:  []time.Time{last.Add(24 * time.Hour), last.Add(48 * time.Hour)},
		Prices: []float64{101, 102},
		Upper:  []float64{103, 105},
		Lower:  []float64{99, 98},
	}
	cfg := Config{ShowPredictions: true}
	if !r.Create("AAPL", data, cfg, pred) {
		t.Fatalf("create failed")
	}

	fig := host.Figure()
	var band, line *Trace
	for i := range fig.Data {
		switch fig.Data[i].Name {
		case "Confidence":
			band = &fig.Data[i]
		case "Forecast":
			line = &fig.Data[i]
		}
	}
	if band == nil || line == nil {
		t.Fatalf("forecast traces missing")
	}
	if band.Fill != "toself" {
		t.Fatalf("band fill=%s", band.Fill)
	}
	var ys []float64
	for _, y := range band.Y {
		ys = append(ys, *y)
	}
	if !slices.Equal(ys, []float64{103, 105, 98, 99}) {
		t.Fatalf("band y=%v", ys)
	}
	if band.X[0] != band.X[3] || band.X[1] != band.X[2] {
		t.Fatalf("band x not mirrored: %v", band.X)
	}

	// Hidden when the user turned predictions off.
	r2host := NewMemoryHost()
	r2 := NewRenderer(r2host, DefaultSession())
	r2.Create("AAPL", data, Config{}, pred)
	if n := len(r2host.Figure().Data); n != 1 {
		t.Fatalf("traces=%d, expected price only", n)
	}
}

func TestCreateFailures(t *testing.T) {
	host := NewMemoryHost()
	r := NewRenderer(host, DefaultSession())
	if r.Create("AAPL", nil, DefaultConfig(), nil) {
		t.Fatalf("create with no data should fail")
	}
	host.SetReady(false)
	if r.Create("AAPL", bars(3, time.Minute), DefaultConfig(), nil) {
		t.Fatalf("create with host unavailable should fail")
	}
	if len(host.Ops()) != 0 {
		t.Fatalf("host was called: %v", host.Ops())
	}
}

func TestUpdatePaths(t *testing.T) {
	host := NewMemoryHost()
	r := NewRenderer(host, DefaultSession())
	cfg := DefaultConfig()
	data := bars(20, 10*time.Second)

	if !r.Update("AAPL", data, cfg, nil) {
		t.Fatalf("first update failed")
	}
	if ops := host.Ops(); !slices.Equal(ops, []string{"newPlot"}) {
		t.Fatalf("ops=%v, expected create on first update", ops)
	}

	data = append(data, aggregator.Candle{PeriodStart: data[len(data)-1].PeriodStart.Add(10 * time.Second), Open: 1, High: 2, Low: 1, Close: 2, Volume: 5})
	if !r.Update("AAPL", data, cfg, nil) {
		t.Fatalf("incremental update failed")
	}
	ops := host.Ops()
	if countOps(ops, "newPlot") != 1 || countOps(ops, "relayout") != 0 {
		t.Fatalf("ops=%v, expected restyles only", ops)
	}
	if got := len(host.Figure().Data[0].Close); got != len(data) {
		t.Fatalf("price trace has %d points, expected %d", got, len(data))
	}

	r.Update("AAPL 30s", data, cfg, nil)
	if fig := host.Figure(); fig.Layout.Title.Text != "AAPL 30s" {
		t.Fatalf("title=%q", fig.Layout.Title.Text)
	}
	if countOps(host.Ops(), "relayout") != 1 || countOps(host.Ops(), "newPlot") != 1 {
		t.Fatalf("ops=%v, expected one relayout", host.Ops())
	}

	cfg.ShowRSI = true
	r.Update("AAPL 30s", data, cfg, nil)
	if countOps(host.Ops(), "newPlot") != 2 {
		t.Fatalf("config change should recreate: %v", host.Ops())
	}

	pred := &Prediction{Dates: []time.Time{time.Now()}, Prices: []float64{1}}
	r.Update("AAPL 30s", data, cfg, pred)
	if countOps(host.Ops(), "newPlot") != 3 {
		t.Fatalf("predictions should recreate: %v", host.Ops())
	}
	// Dropping the forecast needs a recreate too.
	r.Update("AAPL 30s", data, cfg, nil)
	if countOps(host.Ops(), "newPlot") != 4 {
		t.Fatalf("removing predictions should recreate: %v", host.Ops())
	}
}

func TestUpdateFallsBackOnError(t *testing.T) {
	host := NewMemoryHost()
	r := NewRenderer(host, DefaultSession())
	data := bars(5, time.Minute)
	r.Create("AAPL", data, DefaultConfig(), nil)

	host.FailNext(errors.New("boom"))
	if !r.Update("AAPL", data, DefaultConfig(), nil) {
		t.Fatalf("update should recover through create")
	}
	if countOps(host.Ops(), "newPlot") != 2 {
		t.Fatalf("ops=%v, expected fallback create", host.Ops())
	}
}

func TestCleanupTwice(t *testing.T) {
	host := NewMemoryHost()
	r := NewRenderer(host, DefaultSession())
	r.Create("AAPL", bars(5, time.Minute), DefaultConfig(), nil)

	r.Cleanup()
	r.Cleanup()
	if host.Figure() != nil {
		t.Fatalf("figure still present after cleanup")
	}
	if r.HasChart() {
		t.Fatalf("renderer still reports a chart")
	}
	if countOps(host.Ops(), "purge") != 1 {
		t.Fatalf("ops=%v", host.Ops())
	}
}

func TestRangeBreaks(t *testing.T) {
	times := func(step time.Duration) []time.Time {
		var out []time.Time
		for _, c := range bars(10, step) {
			out = append(out, c.PeriodStart)
		}
		return out
	}
	s := DefaultSession()

	intraday := RangeBreaks(times(5*time.Minute), s)
	if len(intraday) != 2 || intraday[1].Pattern != "hour" {
		t.Fatalf("intraday breaks=%+v", intraday)
	}
	if intraday[1].Bounds[0] != 16.0 || intraday[1].Bounds[1] != 9.5 {
		t.Fatalf("hour band=%v", intraday[1].Bounds)
	}
	if daily := RangeBreaks(times(24*time.Hour), s); len(daily) != 1 {
		t.Fatalf("daily breaks=%+v", daily)
	}
	if weekly := RangeBreaks(times(7*24*time.Hour), s); len(weekly) != 0 {
		t.Fatalf("weekly breaks=%+v", weekly)
	}
	s.AllWeek = true
	if crypto := RangeBreaks(times(5*time.Minute), s); len(crypto) != 0 {
		t.Fatalf("24/7 breaks=%+v", crypto)
	}
}

func TestConfigNormalize(t *testing.T) {
	c := Config{MovingAverages: []int{200, 20, 13, 20}, Theme: "neon"}.Normalize()
	if !slices.Equal(c.MovingAverages, []int{20, 200}) {
		t.Fatalf("windows=%v", c.MovingAverages)
	}
	if c.Theme != ThemeLight {
		t.Fatalf("theme=%s", c.Theme)
	}
	if !c.Equal(Config{MovingAverages: []int{200, 20}}) {
		t.Fatalf("expected equal configs")
	}
}
