// Package view serves live chart views: each browser socket gets its own
// stream controller, candle aggregator and renderer.
package view

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"strings"

	"github.com/google/uuid"

	"market-dashboard/internal/aggregator"
	"market-dashboard/internal/chart"
	"market-dashboard/internal/marketsession"
	"market-dashboard/internal/monitor"
	"market-dashboard/internal/settings"
	"market-dashboard/internal/stream"
)

// Browser commands.
const (
	CmdStart  = "start"
	CmdStop   = "stop"
	CmdPeriod = "period"
	CmdConfig = "config"
)

// Outbound ops.
const (
	OpNewPlot  = "newPlot"
	OpRestyle  = "restyle"
	OpRelayout = "relayout"
	OpPurge    = "purge"
	OpState    = "state"
	OpControl  = "control"
	OpTick     = "tick"
	OpError    = "error"
)

var ErrUnknownCommand = errors.New("unknown command")

// Command is one instruction from the browser.
type Command struct {
	Type    string        `json:"type"`
	Ticker  string        `json:"ticker,omitempty"`
	Seconds int           `json:"seconds,omitempty"`
	Config  *chart.Config `json:"config,omitempty"`
}

// Message is one frame to the browser.
type Message struct {
	Op        string         `json:"op"`
	View      string         `json:"view,omitempty"`
	Figure    *chart.Figure  `json:"figure,omitempty"`
	Trace     *int           `json:"trace,omitempty"`
	Update    map[string]any `json:"update,omitempty"`
	State     stream.State   `json:"state,omitempty"`
	Ticker    string         `json:"ticker,omitempty"`
	Message   string         `json:"message,omitempty"`
	Reason    string         `json:"reason,omitempty"`
	Available *bool          `json:"streaming_available,omitempty"`
	Price     float64        `json:"price,omitempty"`
	Change    float64        `json:"change,omitempty"`
	ChangePct float64        `json:"change_percent,omitempty"`
}

// Options wires a view. Validator, Sessions and Metrics are optional.
type Options struct {
	Dialer        stream.Dialer
	Validator     stream.Validator
	Sessions      *marketsession.Calculator
	Metrics       *monitor.SystemMetrics
	Config        chart.Config
	CandleSeconds int
}

// View is one live chart. All methods run on the goroutine that calls Run.
type View struct {
	ID       string
	ctl      *stream.Controller
	host     *socketHost
	renderer *chart.Renderer
	sessions *marketsession.Calculator
	metrics  *monitor.SystemMetrics
	cfg      chart.Config
	send     func(Message) error
}

// New builds an idle view that writes to the browser through send.
func New(opts Options, send func(Message) error) *View {
	if opts.Sessions == nil {
		opts.Sessions = marketsession.New(nil)
	}
	if opts.CandleSeconds <= 0 {
		opts.CandleSeconds = aggregator.DefaultPeriodSeconds
	}
	v := &View{
		ID:       uuid.NewString(),
		sessions: opts.Sessions,
		metrics:  opts.Metrics,
		cfg:      opts.Config.Normalize(),
		send:     send,
	}
	v.host = newSocketHost(send)
	v.renderer = chart.NewRenderer(v.host, chart.DefaultSession())
	v.ctl = stream.NewController(stream.Options{
		Dialer:     opts.Dialer,
		Validator:  opts.Validator,
		Aggregator: aggregator.New(opts.CandleSeconds, aggregator.DefaultCapacity),
		Observer:   v,
	})
	return v
}

// Controller exposes the stream controller.
func (v *View) Controller() *stream.Controller { return v.ctl }

// Handle applies one browser command.
func (v *View) Handle(ctx context.Context, cmd Command) error {
	switch cmd.Type {
	case CmdStart:
		ticker := marketsession.Normalize(cmd.Ticker)
		if ticker == "" {
			return v.fail(errors.New("ticker is required"))
		}
		v.renderer.Cleanup()
		v.renderer.SetSession(chart.SessionFor(v.sessions.Lookup(ticker)))
		if err := v.ctl.Start(ctx, ticker); err != nil {
			return v.fail(err)
		}
		return nil
	case CmdStop:
		v.ctl.Stop()
		v.renderer.Cleanup()
		return nil
	case CmdPeriod:
		if !slices.Contains(settings.CandleDurations, cmd.Seconds) {
			return v.fail(fmt.Errorf("candle period %ds not in %v", cmd.Seconds, settings.CandleDurations))
		}
		v.ctl.SetPeriod(cmd.Seconds)
		v.redraw()
		return nil
	case CmdConfig:
		if cmd.Config == nil {
			return v.fail(errors.New("config is required"))
		}
		v.cfg = cmd.Config.Normalize()
		v.redraw()
		return nil
	}
	return v.fail(fmt.Errorf("%w %q", ErrUnknownCommand, cmd.Type))
}

// Run applies commands and stream events until ctx ends or commands closes.
func (v *View) Run(ctx context.Context, commands <-chan Command) {
	if v.metrics != nil {
		v.metrics.AddChartViews(1)
		defer v.metrics.AddChartViews(-1)
	}
	defer v.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case cmd, ok := <-commands:
			if !ok {
				return
			}
			if err := v.Handle(ctx, cmd); err != nil {
				log.Printf("view %s: %s: %v", v.ID[:8], cmd.Type, err)
			}
		case ev := <-v.ctl.Events():
			if v.ctl.Dispatch(ev) {
				v.redraw()
			}
		}
	}
}

// Close stops streaming and purges the chart.
func (v *View) Close() {
	v.ctl.Stop()
	v.renderer.Cleanup()
	if n := v.host.Dropped(); n > 0 {
		log.Printf("view %s: %d figure frames dropped", v.ID[:8], n)
	}
}

func (v *View) redraw() {
	candles := v.ctl.Candles()
	if len(candles) == 0 {
		v.renderer.Cleanup()
		return
	}
	v.renderer.Update(v.title(), candles, v.cfg, nil)
}

func (v *View) title() string {
	return fmt.Sprintf("%s live (%s candles)", strings.ToUpper(v.ctl.Ticker()), v.ctl.Aggregator().Period())
}

func (v *View) fail(err error) error {
	_ = v.send(Message{Op: OpError, View: v.ID, Message: err.Error()})
	return err
}

// StateChanged implements stream.Observer.
func (v *View) StateChanged(from, to stream.State) {
	_ = v.send(Message{Op: OpState, View: v.ID, State: to, Ticker: v.ctl.Ticker()})
}

// TickApplied implements stream.Observer.
func (v *View) TickApplied(t aggregator.Tick) {
	_ = v.send(Message{Op: OpTick, View: v.ID, Ticker: v.ctl.Ticker(), Price: t.Close, Change: t.ChangeAbs, ChangePct: t.ChangePct})
}

// Control implements stream.Observer.
func (v *View) Control(msg stream.ControlMessage) {
	available := msg.StreamingAvailable
	_ = v.send(Message{Op: OpControl, View: v.ID, Ticker: v.ctl.Ticker(), Message: msg.Message, Reason: msg.Reason, Available: &available})
}
