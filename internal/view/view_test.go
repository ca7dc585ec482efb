package view

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

	"market-dashboard/internal/chart"
	"market-dashboard/internal/stream"
)

type pipeConn struct {
	in     chan []byte
	once   sync.Once
	closed chan struct{}
}

func (p *pipeConn) ReadMessage() ([]byte, error) {
	select {
	case b := <-p.in:
		return b, nil
	case <-p.closed:
		return nil, io.EOF
	}
}

func (p *pipeConn) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}

type pipeDialer struct {
	mu    sync.Mutex
	conns []*pipeConn
}

func (d *pipeDialer) Dial(ctx context.Context, ticker string) (stream.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c := &pipeConn{in: make(chan []byte, 16), closed: make(chan struct{})}
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *pipeDialer) last() *pipeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[len(d.conns)-1]
}

type outbox struct {
	msgs []Message
	// reject fails the next n sends of an op, as a full buffer would.
	reject map[string]int
}

func (o *outbox) send(m Message) error {
	if o.reject[m.Op] > 0 {
		o.reject[m.Op]--
		return errors.New("buffer full")
	}
	o.msgs = append(o.msgs, m)
	return nil
}

func (o *outbox) ops() []string {
	out := make([]string, len(o.msgs))
	for i, m := range o.msgs {
		out[i] = m.Op
		if m.Op == OpState {
			out[i] += ":" + string(m.State)
		}
	}
	return out
}

func (o *outbox) count(op string) int {
	n := 0
	for _, m := range o.msgs {
		if m.Op == op {
			n++
		}
	}
	return n
}

// step delivers one controller event the way Run would.
func step(t *testing.T, v *View) {
	t.Helper()
	select {
	case ev := <-v.Controller().Events():
		if v.Controller().Dispatch(ev) {
			v.redraw()
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no event delivered")
	}
}

const (
	tick1 = `{"close":100,"volume":1000,"change":1,"change_percent":1,"timestamp":"2024-03-11T14:30:01Z"}`
	tick2 = `{"close":101,"volume":1500,"change":2,"change_percent":2,"timestamp":"2024-03-11T14:30:04Z"}`
	hello = `{"source":"system_message","streaming_available":true,"message":"Connected to live data feed for AAPL"}`
)

func TestViewLifecycle(t *testing.T) {
	ctx := context.Background()
	d := &pipeDialer{}
	box := &outbox{}
	v := New(Options{Dialer: d}, box.send)

	if err := v.Handle(ctx, Command{Type: CmdStart, Ticker: " aapl "}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if got := strings.Join(box.ops(), ","); got != "state:connecting,state:connected" {
		t.Fatalf("ops=%s", got)
	}

	conn := d.last()
	conn.in <- []byte(hello)
	step(t, v)
	ctl := box.msgs[len(box.msgs)-1]
	if ctl.Op != OpControl || ctl.Available == nil || !*ctl.Available || ctl.Ticker != "AAPL" {
		t.Fatalf("control=%+v", ctl)
	}

	conn.in <- []byte(tick1)
	step(t, v)
	if box.count(OpNewPlot) != 1 || box.count(OpTick) != 1 {
		t.Fatalf("ops=%v", box.ops())
	}
	var plot *chart.Figure
	for _, m := range box.msgs {
		if m.Op == OpNewPlot {
			plot = m.Figure
		}
	}
	if plot.Layout.Title.Text != "AAPL live (10s candles)" {
		t.Fatalf("title=%q", plot.Layout.Title.Text)
	}

	conn.in <- []byte(tick2)
	step(t, v)
	if box.count(OpNewPlot) != 1 || box.count(OpRestyle) == 0 {
		t.Fatalf("second tick should patch in place, ops=%v", box.ops())
	}
	if c := v.Controller().Candles(); len(c) != 1 || c[0].Close != 101 || c[0].Volume != 1500 {
		t.Fatalf("candles=%+v", c)
	}

	if err := v.Handle(ctx, Command{Type: CmdConfig, Config: &chart.Config{ShowVolume: true, MovingAverages: []int{20}}}); err != nil {
		t.Fatalf("config: %v", err)
	}
	if box.count(OpNewPlot) != 2 {
		t.Fatalf("config change should recreate, ops=%v", box.ops())
	}

	if err := v.Handle(ctx, Command{Type: CmdPeriod, Seconds: 30}); err != nil {
		t.Fatalf("period: %v", err)
	}
	if box.count(OpPurge) != 1 || len(v.Controller().Candles()) != 0 {
		t.Fatalf("period change should clear, ops=%v", box.ops())
	}

	if err := v.Handle(ctx, Command{Type: CmdStop}); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if v.Controller().State() != stream.StateIdle {
		t.Fatalf("state=%s", v.Controller().State())
	}
}

func TestViewRecoversFromDroppedFrames(t *testing.T) {
	d := &pipeDialer{}
	box := &outbox{reject: map[string]int{OpNewPlot: 1}}
	v := New(Options{Dialer: d}, box.send)
	if err := v.Handle(context.Background(), Command{Type: CmdStart, Ticker: "AAPL"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	conn := d.last()

	conn.in <- []byte(tick1)
	step(t, v)
	if box.count(OpNewPlot) != 0 || v.host.Dropped() != 1 {
		t.Fatalf("first figure should be dropped, ops=%v", box.ops())
	}

	conn.in <- []byte(tick2)
	step(t, v)
	if box.count(OpNewPlot) != 1 {
		t.Fatalf("next tick should recreate, ops=%v", box.ops())
	}

	box.reject[OpRestyle] = 1
	conn.in <- []byte(`{"close":102,"volume":1600,"change":3,"change_percent":3,"timestamp":"2024-03-11T14:30:06Z"}`)
	step(t, v)
	if box.count(OpNewPlot) != 2 {
		t.Fatalf("failed patch should recreate, ops=%v", box.ops())
	}

	restyles := box.count(OpRestyle)
	conn.in <- []byte(`{"close":103,"volume":1700,"change":4,"change_percent":4,"timestamp":"2024-03-11T14:30:08Z"}`)
	step(t, v)
	if box.count(OpRestyle) <= restyles || box.count(OpNewPlot) != 2 {
		t.Fatalf("chart should patch again, ops=%v", box.ops())
	}
	if v.host.Dropped() != 2 {
		t.Fatalf("dropped=%d", v.host.Dropped())
	}
}

func TestViewRejectsBadCommands(t *testing.T) {
	box := &outbox{}
	v := New(Options{Dialer: &pipeDialer{}}, box.send)
	ctx := context.Background()

	tests := []struct {
		cmd  Command
		want error
	}{
		{Command{Type: "zoom"}, ErrUnknownCommand},
		{Command{Type: CmdPeriod, Seconds: 7}, nil},
		{Command{Type: CmdStart}, nil},
		{Command{Type: CmdConfig}, nil},
	}
	for _, tt := range tests {
		err := v.Handle(ctx, tt.cmd)
		if err == nil {
			t.Fatalf("%+v accepted", tt.cmd)
		}
		if tt.want != nil && !errors.Is(err, tt.want) {
			t.Fatalf("%+v: err=%v", tt.cmd, err)
		}
	}
	if box.count(OpError) != len(tests) {
		t.Fatalf("ops=%v", box.ops())
	}
}

func TestViewValidationFailure(t *testing.T) {
	box := &outbox{}
	reject := stream.ValidatorFunc(func(ctx context.Context, ticker string) error { return stream.ErrTickerRejected })
	v := New(Options{Dialer: &pipeDialer{}, Validator: reject}, box.send)
	if err := v.Handle(context.Background(), Command{Type: CmdStart, Ticker: "ZZZZ"}); !errors.Is(err, stream.ErrTickerRejected) {
		t.Fatalf("err=%v", err)
	}
	if v.Controller().State() != stream.StateError || box.count(OpError) != 1 {
		t.Fatalf("state=%s ops=%v", v.Controller().State(), box.ops())
	}
}

func TestServeOverWebsocket(t *testing.T) {
	d := &pipeDialer{}
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		Serve(r.Context(), conn, Options{Dialer: d})
	}))
	defer srv.Close()

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()
	_ = client.SetReadDeadline(time.Now().Add(5 * time.Second))

	if err := client.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	var m Message
	if err := client.ReadJSON(&m); err != nil || m.Op != OpError {
		t.Fatalf("malformed command: %+v, %v", m, err)
	}

	if err := client.WriteJSON(Command{Type: CmdStart, Ticker: "MSFT"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	for {
		if err := client.ReadJSON(&m); err != nil {
			t.Fatalf("read: %v", err)
		}
		if m.Op == OpState && m.State == stream.StateConnected {
			break
		}
	}

	d.last().in <- []byte(tick1)
	for {
		m = Message{}
		if err := client.ReadJSON(&m); err != nil {
			t.Fatalf("read: %v", err)
		}
		if m.Op == OpNewPlot {
			break
		}
	}
	if m.Figure == nil || len(m.Figure.Data) == 0 {
		t.Fatalf("figure=%+v", m.Figure)
	}
}
