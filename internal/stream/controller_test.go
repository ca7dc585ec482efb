package stream

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"market-dashboard/internal/aggregator"
)

type fakeConn struct {
	in   chan []byte
	errs chan error
	once sync.Once
	closed chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan []byte, 16), errs: make(chan error, 1), closed: make(chan struct{})}
}

func (f *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case b := <-f.in:
		return b, nil
	case err := <-f.errs:
		return nil, err
	case <-f.closed:
		return nil, io.EOF
	}
}

func (f *fakeConn) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

type fakeDialer struct {
	conns []*fakeConn
	calls int
	err   error
}

func (d *fakeDialer) Dial(ctx context.Context, ticker string) (Conn, error) {
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	c := newFakeConn()
	d.conns = append(d.conns, c)
	return c, nil
}

type recorder struct {
	transitions []State
	ticks       int
	controls    int
}

func (r *recorder) StateChanged(from, to State) { r.transitions = append(r.transitions, to) }
func (r *recorder) TickApplied(t aggregator.Tick) { r.ticks++ }
func (r *recorder) Control(msg ControlMessage) { r.controls++ }

func pump(t *testing.T, c *Controller) bool {
	t.Helper()
	select {
	case ev := <-c.Events():
		return c.Dispatch(ev)
	case <-time.After(2 * time.Second):
		t.Fatalf("no event delivered")
		return false
	}
}

func TestStartValidationFailure(t *testing.T) {
	d := &fakeDialer{}
	c := NewController(Options{
		Dialer: d,
		Validator: ValidatorFunc(func(ctx context.Context, ticker string) error {
			return ErrTickerRejected
		}),
	})
	err := c.Start(context.Background(), "NOPE")
	if !errors.Is(err, ErrTickerRejected) {
		t.Fatalf("err=%v, expected ErrTickerRejected", err)
	}
	if c.State() != StateError {
		t.Fatalf("state=%s, expected error", c.State())
	}
	if d.calls != 0 {
		t.Fatalf("dialer called %d times", d.calls)
	}
}

func TestStartDialFailure(t *testing.T) {
	c := NewController(Options{Dialer: &fakeDialer{err: errors.New("refused")}})
	if err := c.Start(context.Background(), "AAPL"); err == nil {
		t.Fatalf("expected dial error")
	}
	if c.State() != StateError {
		t.Fatalf("state=%s, expected error", c.State())
	}
}

func TestControllerLifecycle(t *testing.T) {
	d := &fakeDialer{}
	rec := &recorder{}
	c := NewController(Options{Dialer: d, Observer: rec, Aggregator: aggregator.New(30, aggregator.DefaultCapacity)})
	if err := c.Start(context.Background(), "AAPL"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if c.State() != StateConnected {
		t.Fatalf("state=%s, expected connected", c.State())
	}
	conn := d.conns[0]

	conn.in <- []byte(`{"close":100,"volume":1000,"change":1,"change_percent":1,"timestamp":"1970-01-01T00:00:00Z"}`)
	if !pump(t, c) {
		t.Fatalf("tick should change candles")
	}
	if c.State() != StateStreaming {
		t.Fatalf("state=%s, expected streaming", c.State())
	}
	if tick, ok := c.LastTick(); !ok || tick.Close != 100 {
		t.Fatalf("last tick=%+v ok=%v", tick, ok)
	}

	conn.in <- []byte(`{"source":"system_message","streaming_available":false,"message":"closed","reason":"market_closed"}`)
	pump(t, c)
	if c.State() != StateStreamingUnavailable {
		t.Fatalf("state=%s, expected streaming_unavailable", c.State())
	}
	before := len(rec.transitions)
	conn.in <- []byte(`{"source":"system_message","streaming_available":false,"message":"closed"}`)
	pump(t, c)
	if len(rec.transitions) != before {
		t.Fatalf("repeated unavailable frame changed state: %v", rec.transitions)
	}

	// Transport errors do not override an unavailable stream.
	conn.errs <- errors.New("reset by peer")
	pump(t, c)
	if c.State() != StateStreamingUnavailable {
		t.Fatalf("state=%s, expected streaming_unavailable to stick", c.State())
	}
	if rec.ticks != 1 || rec.controls != 2 {
		t.Fatalf("ticks=%d controls=%d", rec.ticks, rec.controls)
	}
}

func TestControllerAvailableAgain(t *testing.T) {
	d := &fakeDialer{}
	c := NewController(Options{Dialer: d})
	c.Start(context.Background(), "AAPL")
	conn := d.conns[0]

	conn.in <- []byte(`{"source":"system_message","streaming_available":false,"message":"x"}`)
	pump(t, c)
	conn.in <- []byte(`{"source":"system_message","streaming_available":true,"message":"ok"}`)
	pump(t, c)
	if c.State() != StateConnected {
		t.Fatalf("state=%s, expected connected", c.State())
	}

	conn.errs <- errors.New("boom")
	pump(t, c)
	if c.State() != StateError {
		t.Fatalf("state=%s, expected error", c.State())
	}
}

func TestControllerClose(t *testing.T) {
	d := &fakeDialer{}
	c := NewController(Options{Dialer: d})
	c.Start(context.Background(), "AAPL")
	d.conns[0].errs <- io.EOF
	pump(t, c)
	if c.State() != StateDisconnected {
		t.Fatalf("state=%s, expected disconnected", c.State())
	}
}

func TestControllerDropsStaleSession(t *testing.T) {
	d := &fakeDialer{}
	c := NewController(Options{Dialer: d})
	c.Start(context.Background(), "AAPL")
	old := d.conns[0]

	// Queue a frame from the first session, then restart.
	old.in <- []byte(`{"close":1,"volume":1,"timestamp":0}`)
	time.Sleep(50 * time.Millisecond)
	c.Start(context.Background(), "MSFT")

	deadline := time.After(200 * time.Millisecond)
	for {
		select {
		case ev := <-c.Events():
			if c.Dispatch(ev) {
				t.Fatalf("stale event was applied")
			}
			continue
		case <-deadline:
		}
		break
	}
	if c.State() != StateConnected || len(c.Candles()) != 0 {
		t.Fatalf("state=%s candles=%d", c.State(), len(c.Candles()))
	}
	if c.Ticker() != "MSFT" {
		t.Fatalf("ticker=%s", c.Ticker())
	}
}

func TestStopClears(t *testing.T) {
	d := &fakeDialer{}
	c := NewController(Options{Dialer: d})
	c.Start(context.Background(), "AAPL")
	d.conns[0].in <- []byte(`{"close":5,"volume":10,"timestamp":1700000000000}`)
	pump(t, c)

	c.Stop()
	if c.State() != StateIdle {
		t.Fatalf("state=%s, expected idle", c.State())
	}
	if _, ok := c.LastTick(); ok {
		t.Fatalf("last tick survived stop")
	}
	if len(c.Candles()) != 0 {
		t.Fatalf("candles survived stop")
	}
	select {
	case <-d.conns[0].closed:
	default:
		t.Fatalf("connection not closed")
	}
	// Stopping twice is harmless.
	c.Stop()
}

func TestClassifyTimestamps(t *testing.T) {
	want := time.Date(2024, 3, 12, 14, 30, 0, 0, time.UTC)
	frames := []string{
		`{"close":1,"timestamp":"2024-03-12T14:30:00Z"}`,
		`{"close":1,"timestamp":"2024-03-12T09:30:00-05:00"}`,
		`{"close":1,"timestamp":1710253800000}`,
		`{"close":1,"timestamp":"1710253800000"}`,
	}
	for _, raw := range frames {
		f, err := Classify([]byte(raw))
		if err != nil {
			t.Fatalf("classify %s: %v", raw, err)
		}
		if f.Tick == nil || !f.Tick.Timestamp.Equal(want) {
			t.Fatalf("classify %s: tick=%+v", raw, f.Tick)
		}
	}

	bad := []string{`not json`, `{"volume":1,"timestamp":0}`, `{"close":1}`, `{"close":1,"timestamp":"yesterday"}`}
	for _, raw := range bad {
		if _, err := Classify([]byte(raw)); !errors.Is(err, ErrMalformedFrame) {
			t.Fatalf("classify %s: err=%v, expected ErrMalformedFrame", raw, err)
		}
	}
}

func TestHTTPValidator(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if strings.HasSuffix(r.URL.Path, "/AAPL") {
			w.Write([]byte(`{"success":true,"message":"ok"}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"success":false,"message":"Invalid ticker"}`))
	}))
	defer srv.Close()

	v := NewHTTPValidator(srv.URL)
	if err := v.Validate(context.Background(), "AAPL"); err != nil {
		t.Fatalf("AAPL: %v", err)
	}
	if err := v.Validate(context.Background(), "ZZZZ"); !errors.Is(err, ErrTickerRejected) {
		t.Fatalf("ZZZZ: err=%v, expected ErrTickerRejected", err)
	}
}

func TestWSDialerEndToEnd(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ws/AAPL" {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage, []byte(`{"close":187.5,"volume":42,"timestamp":1710253800000}`))
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		time.Sleep(50 * time.Millisecond)
	}))
	defer srv.Close()

	c := NewController(Options{Dialer: NewWSDialer("ws" + strings.TrimPrefix(srv.URL, "http"))})
	if err := c.Start(context.Background(), "AAPL"); err != nil {
		t.Fatalf("start: %v", err)
	}
	pump(t, c)
	if c.State() != StateStreaming {
		t.Fatalf("state=%s, expected streaming", c.State())
	}
	pump(t, c)
	if c.State() != StateDisconnected {
		t.Fatalf("state=%s, expected disconnected after close frame", c.State())
	}
	c.Stop()
}
