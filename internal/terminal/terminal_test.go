package terminal

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

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

type pipeDialer struct{ conn *pipeConn }

func (d *pipeDialer) Dial(ctx context.Context, ticker string) (stream.Conn, error) {
	return d.conn, nil
}

// syncBuffer is written by the watcher goroutine and read by the test.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestSparkline(t *testing.T) {
	tests := []struct {
		in    []float64
		width int
		want  string
	}{
		{nil, 5, ""},
		{[]float64{1, 1, 1}, 5, "▁▁▁"},
		{[]float64{1, 2, 3, 4, 5, 6, 7, 8}, 8, "▁▂▃▄▅▆▇█"},
		{[]float64{9, 1, 8}, 2, "▁█"},
	}
	for _, tt := range tests {
		if got := Sparkline(tt.in, tt.width); got != tt.want {
			t.Errorf("Sparkline(%v, %d)=%q, expected %q", tt.in, tt.width, got, tt.want)
		}
	}
}

func TestRenderWithoutCandles(t *testing.T) {
	out := Render(&chart.Figure{Layout: chart.Layout{Title: chart.Title{Text: "AAPL"}}}, 10)
	if !strings.Contains(out, "waiting for data") {
		t.Fatalf("render=%q", out)
	}
}

func TestWatcherDrawsLiveCandles(t *testing.T) {
	conn := &pipeConn{in: make(chan []byte, 8), closed: make(chan struct{})}
	out := &syncBuffer{}
	w := NewWatcher(Options{
		Ticker:        "AAPL",
		CandleSeconds: 10,
		Dialer:        &pipeDialer{conn: conn},
		Session:       chart.DefaultSession(),
		Config:        chart.DefaultConfig(),
		Out:           out,
	})

	ctx, cancel := context.WithCancel(context.Background())
	type result struct {
		n   int
		err error
	}
	done := make(chan result, 1)
	go func() {
		candles, err := w.Run(ctx)
		done <- result{len(candles), err}
	}()

	conn.in <- []byte(`{"source":"system_message","streaming_available":true,"message":"Connected to live data feed for AAPL"}`)
	conn.in <- []byte(`{"close":172.5,"volume":1000,"change":1.5,"change_percent":0.88,"timestamp":"2024-03-12T14:30:01Z"}`)
	conn.in <- []byte(`{"close":173.0,"volume":1300,"change":2.0,"change_percent":1.17,"timestamp":"2024-03-12T14:30:12Z"}`)

	deadline := time.Now().Add(2 * time.Second)
	for !strings.Contains(out.String(), "2 candles") && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	cancel()
	res := <-done
	if res.err != nil || res.n != 2 {
		t.Fatalf("run: candles=%d err=%v", res.n, res.err)
	}

	got := out.String()
	for _, want := range []string{"Connected to live data feed for AAPL", "172.50", "AAPL live (10s candles)", "2 candles"} {
		if !strings.Contains(got, want) {
			t.Fatalf("output missing %q:\n%s", want, got)
		}
	}
	if w.Controller().State() != stream.StateIdle {
		t.Fatalf("state=%s after run", w.Controller().State())
	}
}
