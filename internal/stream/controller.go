package stream

import (
	"context"
	"errors"
	"fmt"
	"log"

	"market-dashboard/internal/aggregator"
)

// State is the connection lifecycle of a controller.
type State string

const (
	StateIdle                 State = "idle"
	StateConnecting           State = "connecting"
	StateConnected            State = "connected"
	StateStreaming            State = "streaming"
	StateStreamingUnavailable State = "streaming_unavailable"
	StateDisconnected         State = "disconnected"
	StateError                State = "error"
)

type eventKind int

const (
	eventMessage eventKind = iota
	eventError
	eventClosed
)

// Event is an inbound transport occurrence tagged with the session that
// produced it. Only the owner goroutine applies events, through Dispatch.
type Event struct {
	session uint64
	kind    eventKind
	data    []byte
	err     error
}

// Observer receives controller notifications on the owner goroutine.
type Observer interface {
	StateChanged(from, to State)
	TickApplied(t aggregator.Tick)
	Control(msg ControlMessage)
}

// Options configures a Controller.
type Options struct {
	Dialer     Dialer
	Validator  Validator
	Aggregator *aggregator.Aggregator
	Observer   Observer
	// Buffer is the event channel capacity; zero means 256.
	Buffer int
}

// Controller owns one streaming session at a time: validation, dialling,
// frame classification and state transitions. All methods except the
// reader goroutine's channel sends run on the owner goroutine.
type Controller struct {
	dialer    Dialer
	validator Validator
	agg       *aggregator.Aggregator
	observer  Observer
	events    chan Event

	state    State
	session  uint64
	ticker   string
	conn     Conn
	cancel   context.CancelFunc
	lastTick *aggregator.Tick
	lastCtl  *ControlMessage
}

// NewController builds an idle controller.
func NewController(opts Options) *Controller {
	if opts.Aggregator == nil {
		opts.Aggregator = aggregator.New(aggregator.DefaultPeriodSeconds, aggregator.DefaultCapacity)
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 256
	}
	return &Controller{
		dialer:    opts.Dialer,
		validator: opts.Validator,
		agg:       opts.Aggregator,
		observer:  opts.Observer,
		events:    make(chan Event, opts.Buffer),
		state:     StateIdle,
	}
}

// Events is the channel the owner must drain into Dispatch.
func (c *Controller) Events() <-chan Event { return c.events }

func (c *Controller) State() State { return c.state }

func (c *Controller) Ticker() string { return c.ticker }

// LastTick returns the most recent applied tick, if any.
func (c *Controller) LastTick() (aggregator.Tick, bool) {
	if c.lastTick == nil {
		return aggregator.Tick{}, false
	}
	return *c.lastTick, true
}

// LastControl returns the most recent control frame of this session.
func (c *Controller) LastControl() (ControlMessage, bool) {
	if c.lastCtl == nil {
		return ControlMessage{}, false
	}
	return *c.lastCtl, true
}

// Candles snapshots the aggregator.
func (c *Controller) Candles() []aggregator.Candle { return c.agg.Snapshot() }

// Aggregator exposes the owned aggregator.
func (c *Controller) Aggregator() *aggregator.Aggregator { return c.agg }

// Start tears down any current session, validates ticker and opens a new
// one. A validation failure moves to error without dialling; a dial failure
// moves to error as well.
func (c *Controller) Start(ctx context.Context, ticker string) error {
	c.Stop()
	c.ticker = ticker

	if c.validator != nil {
		if err := c.validator.Validate(ctx, ticker); err != nil {
			c.setState(StateError)
			return fmt.Errorf("validate %s: %w", ticker, err)
		}
	}
	if c.dialer == nil {
		c.setState(StateError)
		return errors.New("stream: no dialer configured")
	}

	c.setState(StateConnecting)
	sessCtx, cancel := context.WithCancel(ctx)
	conn, err := c.dialer.Dial(sessCtx, ticker)
	if err != nil {
		cancel()
		c.setState(StateError)
		return fmt.Errorf("dial %s: %w", ticker, err)
	}

	c.session++
	c.conn = conn
	c.cancel = cancel
	c.agg.Reset()
	c.lastTick = nil
	c.lastCtl = nil
	c.setState(StateConnected)

	go c.read(sessCtx, c.session, conn)
	return nil
}

// Stop closes the current session, if any, and clears candles and the last
// tick. Close errors are ignored.
func (c *Controller) Stop() {
	c.session++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.agg.Reset()
	c.lastTick = nil
	c.lastCtl = nil
	c.setState(StateIdle)
}

// SetPeriod changes candle duration; a different value clears the candles.
func (c *Controller) SetPeriod(seconds int) {
	c.agg.SetPeriod(seconds)
}

// Dispatch applies one event. Events from an earlier session are dropped.
// It reports whether the candles changed.
func (c *Controller) Dispatch(ev Event) bool {
	if ev.session != c.session {
		return false
	}

	switch ev.kind {
	case eventError:
		log.Printf("stream: %s transport error: %v", c.ticker, ev.err)
		c.closeConn()
		if c.state != StateStreamingUnavailable {
			c.setState(StateError)
		}
		return false
	case eventClosed:
		c.closeConn()
		if c.state != StateStreamingUnavailable {
			c.setState(StateDisconnected)
		}
		return false
	}

	frame, err := Classify(ev.data)
	if err != nil {
		log.Printf("stream: %s dropped frame: %v", c.ticker, err)
		return false
	}

	if ctl := frame.Control; ctl != nil {
		c.lastCtl = ctl
		if c.observer != nil {
			c.observer.Control(*ctl)
		}
		if ctl.StreamingAvailable {
			c.setState(StateConnected)
		} else {
			c.setState(StateStreamingUnavailable)
		}
		return false
	}

	c.agg.Ingest(*frame.Tick)
	c.lastTick = frame.Tick
	c.setState(StateStreaming)
	if c.observer != nil {
		c.observer.TickApplied(*frame.Tick)
	}
	return true
}

// Run drains events until ctx is done. It suits owners with nothing else to
// multiplex; redraw is called after every candle change.
func (c *Controller) Run(ctx context.Context, redraw func()) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-c.events:
			if c.Dispatch(ev) && redraw != nil {
				redraw()
			}
		}
	}
}

func (c *Controller) setState(s State) {
	if c.state == s {
		return
	}
	prev := c.state
	c.state = s
	if c.observer != nil {
		c.observer.StateChanged(prev, s)
	}
}

func (c *Controller) closeConn() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

func (c *Controller) read(ctx context.Context, session uint64, conn Conn) {
	for {
		data, err := conn.ReadMessage()
		ev := Event{session: session, kind: eventMessage, data: data}
		if err != nil {
			ev = Event{session: session, kind: eventError, err: err}
			if IsNormalClose(err) {
				ev.kind = eventClosed
			}
		}
		select {
		case c.events <- ev:
		case <-ctx.Done():
			return
		}
		if err != nil {
			return
		}
	}
}
