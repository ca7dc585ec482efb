package terminal

import (
	"context"
	"fmt"
	"io"

	"market-dashboard/internal/aggregator"
	"market-dashboard/internal/chart"
	"market-dashboard/internal/indicators"
	"market-dashboard/internal/stream"
)

// Options configures a terminal watch session.
type Options struct {
	Ticker        string
	CandleSeconds int
	Dialer        stream.Dialer
	Validator     stream.Validator
	Session       chart.Session
	Config        chart.Config
	Out           io.Writer
	Width         int
}

// Watcher streams one ticker into a terminal host. It also reports
// tick-level moving averages and RSI from its own indicator engine.
type Watcher struct {
	opts     Options
	ctl      *stream.Controller
	renderer *chart.Renderer
	host     *Host
	engine   *indicators.Engine
}

// NewWatcher wires a controller, renderer and host.
func NewWatcher(opts Options) *Watcher {
	if opts.CandleSeconds <= 0 {
		opts.CandleSeconds = aggregator.DefaultPeriodSeconds
	}
	w := &Watcher{
		opts:   opts,
		host:   NewHost(opts.Out, opts.Width),
		engine: indicators.NewEngine(7, 25, 14, 200),
	}
	w.renderer = chart.NewRenderer(w.host, opts.Session)
	w.ctl = stream.NewController(stream.Options{
		Dialer:     opts.Dialer,
		Validator:  opts.Validator,
		Aggregator: aggregator.New(opts.CandleSeconds, aggregator.DefaultCapacity),
		Observer:   w,
	})
	return w
}

// Run validates and connects, then redraws on every candle change until ctx
// ends. It returns the candles held when the session stopped.
func (w *Watcher) Run(ctx context.Context) ([]aggregator.Candle, error) {
	defer w.ctl.Stop()
	if err := w.ctl.Start(ctx, w.opts.Ticker); err != nil {
		return nil, err
	}
	w.ctl.Run(ctx, w.redraw)
	return w.ctl.Candles(), nil
}

// Controller exposes the stream controller.
func (w *Watcher) Controller() *stream.Controller { return w.ctl }

func (w *Watcher) redraw() {
	title := fmt.Sprintf("%s live (%ds candles)", w.opts.Ticker, w.opts.CandleSeconds)
	w.renderer.Update(title, w.ctl.Candles(), w.opts.Config, nil)
}

func (w *Watcher) StateChanged(from, to stream.State) {
	style := mutedStyle
	switch to {
	case stream.StateError, stream.StateDisconnected:
		style = errorStyle
	case stream.StateStreamingUnavailable:
		style = warningStyle
	}
	fmt.Fprintln(w.opts.Out, style.Render(fmt.Sprintf("%s: %s -> %s", w.opts.Ticker, from, to)))
}

func (w *Watcher) TickApplied(t aggregator.Tick) {
	s := w.engine.Update(w.opts.Ticker, t.Close)
	style := upStyle
	if t.ChangeAbs < 0 {
		style = downStyle
	}
	line := fmt.Sprintf("%s %s %s", t.Timestamp.Format("15:04:05"),
		style.Render(fmt.Sprintf("%.2f", t.Close)),
		style.Render(fmt.Sprintf("%+.2f (%+.2f%%)", t.ChangeAbs, t.ChangePct)))
	if s.SMALong != 0 {
		line += mutedStyle.Render(fmt.Sprintf("  sma7 %.2f sma25 %.2f rsi %.1f", s.SMAShort, s.SMALong, s.RSI))
	}
	fmt.Fprintln(w.opts.Out, line)
}

func (w *Watcher) Control(msg stream.ControlMessage) {
	style := upStyle
	if !msg.StreamingAvailable {
		style = warningStyle
	}
	fmt.Fprintln(w.opts.Out, style.Render(msg.Message))
}
