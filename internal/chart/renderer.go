package chart

import (
	"fmt"
	"log"
	"strconv"
	"time"

	"market-dashboard/internal/aggregator"
	"market-dashboard/internal/indicators"
)

const (
	rsiPeriod = 14
	xLayout   = "2006-01-02 15:04:05"
)

// Renderer builds and patches a price chart on a Host. It is not safe for
// concurrent use; one goroutine owns each renderer.
type Renderer struct {
	host    Host
	session Session

	hasChart    bool
	lastConfig  Config
	lastTitle   string
	lastBreaks  []RangeBreak
	hadForecast bool
	priceTrace  int
	volumeTrace int
	overlays    []overlay
}

// NewRenderer draws on host using session for axis time and gap suppression.
func NewRenderer(host Host, session Session) *Renderer {
	if session.Location == nil {
		session.Location = time.UTC
	}
	return &Renderer{host: host, session: session, volumeTrace: -1}
}

// SetSession changes the trading clock; the next draw is a full create.
func (r *Renderer) SetSession(s Session) {
	if s.Location == nil {
		s.Location = time.UTC
	}
	r.session = s
	r.hasChart = false
}

// HasChart reports whether a figure is currently drawn.
func (r *Renderer) HasChart() bool { return r.hasChart }

// Create draws a fresh figure. It returns false when the host is not ready,
// data is empty or the host rejects the figure.
func (r *Renderer) Create(title string, data []aggregator.Candle, cfg Config, pred *Prediction) bool {
	if r.host == nil || !r.host.Ready() {
		log.Printf("chart: host unavailable, skip %q", title)
		return false
	}
	if len(data) == 0 {
		log.Printf("chart: no data for %q", title)
		return false
	}

	cfg = cfg.Normalize()
	if !cfg.ShowPredictions {
		pred = nil
	}
	fig, idx := r.build(title, data, cfg, pred)
	if err := r.host.NewPlot(fig); err != nil {
		log.Printf("chart: newPlot %q failed: %v", title, err)
		r.hasChart = false
		return false
	}

	r.hasChart = true
	r.lastConfig = cfg
	r.lastTitle = title
	r.lastBreaks = fig.Layout.XAxis.RangeBreaks
	r.hadForecast = pred.present()
	r.priceTrace = idx.price
	r.volumeTrace = idx.volume
	r.overlays = idx.overlays
	return true
}

// Update patches the drawn figure in place when it can and recreates it
// otherwise: no chart yet, a forecast to draw or remove, a changed overlay
// config, or any host error.
func (r *Renderer) Update(title string, data []aggregator.Candle, cfg Config, pred *Prediction) bool {
	cfg = cfg.Normalize()
	if !cfg.ShowPredictions {
		pred = nil
	}
	if !r.hasChart || pred.present() || r.hadForecast || !cfg.Equal(r.lastConfig) {
		return r.Create(title, data, cfg, pred)
	}
	if len(data) == 0 || !r.host.Ready() {
		return r.Create(title, data, cfg, pred)
	}
	if err := r.patch(title, data, cfg); err != nil {
		log.Printf("chart: update %q failed, recreating: %v", title, err)
		return r.Create(title, data, cfg, pred)
	}
	return true
}

// Cleanup purges the host. Calling it again is a no-op.
func (r *Renderer) Cleanup() {
	if r.host != nil && r.hasChart {
		if err := r.host.Purge(); err != nil {
			log.Printf("chart: purge: %v", err)
		}
	}
	r.hasChart = false
	r.hadForecast = false
	r.lastTitle = ""
	r.lastBreaks = nil
	r.overlays = nil
	r.volumeTrace = -1
}

func (r *Renderer) patch(title string, data []aggregator.Candle, cfg Config) error {
	cols := columnsOf(data, r.session.Location)

	if err := r.host.Restyle(Restyle{Trace: r.priceTrace, Update: map[string]any{
		"x": cols.x, "open": cols.open, "high": cols.high, "low": cols.low, "close": cols.close,
	}}); err != nil {
		return fmt.Errorf("restyle price: %w", err)
	}
	if r.volumeTrace >= 0 {
		if err := r.host.Restyle(Restyle{Trace: r.volumeTrace, Update: map[string]any{
			"x": cols.x, "y": cols.volume, "marker.color": volumeColors(data, themes[cfg.Theme]),
		}}); err != nil {
			return fmt.Errorf("restyle volume: %w", err)
		}
	}
	// Overlays derive from the same closes and would go stale otherwise.
	for _, o := range r.overlays {
		if err := r.host.Restyle(Restyle{Trace: o.trace, Update: map[string]any{
			"x": cols.x, "y": o.series(cols.close),
		}}); err != nil {
			return fmt.Errorf("restyle overlay %d: %w", o.trace, err)
		}
	}

	relayout := map[string]any{}
	if title != r.lastTitle {
		relayout["title.text"] = title
	}
	breaks := RangeBreaks(cols.times, r.session)
	if !sameBreaks(breaks, r.lastBreaks) {
		relayout["xaxis.rangebreaks"] = breaks
	}
	if len(relayout) > 0 {
		if err := r.host.Relayout(relayout); err != nil {
			return fmt.Errorf("relayout: %w", err)
		}
	}
	r.lastTitle = title
	r.lastBreaks = breaks
	return nil
}

type traceIndex struct {
	price    int
	volume   int
	overlays []overlay
}

// overlay is an indicator line recomputed from closes on every patch.
type overlay struct {
	trace  int
	window int
	rsi    bool
}

func (o overlay) series(closes []float64) []*float64 {
	if o.rsi {
		return indicators.RSISeries(closes, o.window)
	}
	return indicators.SMASeries(closes, o.window)
}

func (r *Renderer) build(title string, data []aggregator.Candle, cfg Config, pred *Prediction) (Figure, traceIndex) {
	pal := themes[cfg.Theme]
	dom := domainsFor(cfg.ShowVolume, cfg.ShowRSI)
	cols := columnsOf(data, r.session.Location)
	idx := traceIndex{volume: -1}
	hidden := false

	traces := []Trace{{
		Type:       "candlestick",
		Name:       "Price",
		X:          cols.x,
		Open:       cols.open,
		High:       cols.high,
		Low:        cols.low,
		Close:      cols.close,
		YAxis:      "y",
		Increasing: &Side{Line: Line{Color: pal.Up}, FillColor: pal.Up},
		Decreasing: &Side{Line: Line{Color: pal.Down}, FillColor: pal.Down},
	}}

	for _, w := range cfg.MovingAverages {
		idx.overlays = append(idx.overlays, overlay{trace: len(traces), window: w})
		traces = append(traces, Trace{
			Type:  "scatter",
			Mode:  "lines",
			Name:  "SMA " + strconv.Itoa(w),
			X:     cols.x,
			Y:     indicators.SMASeries(cols.close, w),
			YAxis: "y",
			Line:  &Line{Color: maColors[w], Width: 1.5},
		})
	}

	if pred.present() {
		px := make([]string, len(pred.Dates))
		for i, d := range pred.Dates {
			px[i] = d.In(r.session.Location).Format(xLayout)
		}
		if pred.hasBand() {
			bx := make([]string, 0, 2*len(px))
			by := make([]*float64, 0, 2*len(px))
			bx = append(bx, px...)
			by = append(by, ptrs(pred.Upper)...)
			for i := len(px) - 1; i >= 0; i-- {
				bx = append(bx, px[i])
				v := pred.Lower[i]
				by = append(by, &v)
			}
			traces = append(traces, Trace{
				Type:       "scatter",
				Name:       "Confidence",
				X:          bx,
				Y:          by,
				YAxis:      "y",
				Fill:       "toself",
				FillColor:  pal.Band,
				Line:       &Line{Color: "rgba(0,0,0,0)"},
				HoverInfo:  "skip",
				ShowLegend: &hidden,
			})
		}
		traces = append(traces, Trace{
			Type:  "scatter",
			Mode:  "lines",
			Name:  "Forecast",
			X:     px,
			Y:     ptrs(pred.Prices),
			YAxis: "y",
			Line:  &Line{Color: pal.Forecast, Width: 2, Dash: "dash"},
		})
	}

	if cfg.ShowVolume {
		idx.volume = len(traces)
		traces = append(traces, Trace{
			Type:       "bar",
			Name:       "Volume",
			X:          cols.x,
			Y:          cols.volume,
			YAxis:      "y2",
			Marker:     &Marker{Color: volumeColors(data, pal)},
			ShowLegend: &hidden,
		})
	}

	if cfg.ShowRSI {
		idx.overlays = append(idx.overlays, overlay{trace: len(traces), window: rsiPeriod, rsi: true})
		traces = append(traces, Trace{
			Type:  "scatter",
			Mode:  "lines",
			Name:  "RSI " + strconv.Itoa(rsiPeriod),
			X:     cols.x,
			Y:     indicators.RSISeries(cols.close, rsiPeriod),
			YAxis: "y3",
			Line:  &Line{Color: pal.RSI, Width: 1.2},
		})
	}

	layout := Layout{
		Title:        Title{Text: title},
		PaperBGColor: pal.Paper,
		PlotBGColor:  pal.Plot,
		Font:         Font{Color: pal.Font},
		ShowLegend:   true,
		Legend:       &Legend{Orientation: "h", Y: 1.08},
		Margin:       Margin{L: 50, R: 20, T: 60, B: 40},
		UIRevision:   "chart",
		XAxis: Axis{
			Anchor:      "y",
			GridColor:   pal.Grid,
			RangeBreaks: RangeBreaks(cols.times, r.session),
			RangeSlider: &RangeSlider{Visible: false},
		},
		YAxis: Axis{Title: "Price", Domain: dom.Price, GridColor: pal.Grid},
	}
	if dom.Volume != nil {
		layout.YAxis2 = &Axis{Title: "Volume", Domain: dom.Volume, GridColor: pal.Grid}
		layout.XAxis.Anchor = "y2"
	}
	if dom.RSI != nil {
		layout.YAxis3 = &Axis{Title: "RSI", Domain: dom.RSI, Range: []float64{0, 100}, GridColor: pal.Grid}
		layout.XAxis.Anchor = "y3"
	}

	return Figure{Data: traces, Layout: layout}, idx
}

type columns struct {
	times  []time.Time
	x      []string
	open   []float64
	high   []float64
	low    []float64
	close  []float64
	volume []*float64
}

func columnsOf(data []aggregator.Candle, loc *time.Location) columns {
	n := len(data)
	c := columns{
		times:  make([]time.Time, n),
		x:      make([]string, n),
		open:   make([]float64, n),
		high:   make([]float64, n),
		low:    make([]float64, n),
		close:  make([]float64, n),
		volume: make([]*float64, n),
	}
	for i, d := range data {
		c.times[i] = d.PeriodStart
		c.x[i] = d.PeriodStart.In(loc).Format(xLayout)
		c.open[i] = d.Open
		c.high[i] = d.High
		c.low[i] = d.Low
		c.close[i] = d.Close
		v := d.Volume
		c.volume[i] = &v
	}
	return c
}

// volumeColors colours each bar against the previous close; the first bar
// compares against its own open.
func volumeColors(data []aggregator.Candle, pal palette) []string {
	out := make([]string, len(data))
	for i, d := range data {
		ref := d.Open
		if i > 0 {
			ref = data[i-1].Close
		}
		if d.Close >= ref {
			out[i] = pal.Up
		} else {
			out[i] = pal.Down
		}
	}
	return out
}

func ptrs(values []float64) []*float64 {
	out := make([]*float64, len(values))
	for i := range values {
		v := values[i]
		out[i] = &v
	}
	return out
}
