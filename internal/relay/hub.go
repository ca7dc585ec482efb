package relay

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"market-dashboard/internal/events"
	"market-dashboard/internal/marketsession"
	"market-dashboard/internal/monitor"
	"market-dashboard/internal/stream"
	"market-dashboard/pkg/cache"
	"market-dashboard/pkg/market/yahoo"
)

// Upstream opens a pricing stream for one symbol. *yahoo.Streamer satisfies it.
type Upstream interface {
	Subscribe(ctx context.Context, symbol string) (<-chan yahoo.Pricing, func(), func() error, error)
}

// Options configures a Hub.
type Options struct {
	Bus      *events.Bus
	Upstream Upstream
	Sessions *marketsession.Calculator
	Metrics  *monitor.SystemMetrics
	// StreamOutsideHours opens upstream sessions even when the market
	// calendar says closed.
	StreamOutsideHours bool
	// Buffer is the per-subscriber frame buffer.
	Buffer int
}

// Hub multiplexes one upstream session per ticker to any number of
// subscribers. Frames are published on the bus as encoded JSON.
type Hub struct {
	bus          *events.Bus
	upstream     Upstream
	sessions     *marketsession.Calculator
	metrics      *monitor.SystemMetrics
	outsideHours bool
	buffer       int
	now          func() time.Time

	mu    sync.Mutex
	feeds map[string]*feed

	// status holds the latest control frame per ticker, replayed to late
	// subscribers; ticks holds the latest tick.
	status *cache.Sharded[[]byte]
	ticks  *cache.Sharded[stream.TickMessage]
}

type feed struct {
	refs   int
	cancel context.CancelFunc
	done   chan struct{}
}

func (f *feed) finished() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// start launches an upstream session for f. Callers hold h.mu.
func (h *Hub) start(ticker string, f *feed) {
	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	f.done = make(chan struct{})
	go h.run(ctx, ticker, f.done)
}

func offer(out chan<- []byte, b []byte) {
	select {
	case out <- b:
	default:
	}
}

// NewHub builds a hub. Bus and Upstream are required.
func NewHub(opts Options) *Hub {
	if opts.Bus == nil {
		opts.Bus = events.NewBus()
	}
	if opts.Sessions == nil {
		opts.Sessions = marketsession.New(nil)
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 256
	}
	return &Hub{
		bus:          opts.Bus,
		upstream:     opts.Upstream,
		sessions:     opts.Sessions,
		metrics:      opts.Metrics,
		outsideHours: opts.StreamOutsideHours,
		buffer:       opts.Buffer,
		now:          time.Now,
		feeds:        make(map[string]*feed),
		status:       cache.NewSharded[[]byte](),
		ticks:        cache.NewSharded[stream.TickMessage](),
	}
}

// Subscribe attaches to ticker's frame stream, starting the upstream session
// if this is the first subscriber or the previous session already ended. The
// returned channel is closed after unsubscribe is called.
func (h *Hub) Subscribe(ticker string) (<-chan []byte, func()) {
	ticker = marketsession.Normalize(ticker)
	busCh, busUnsub := h.bus.Subscribe(events.TickTopic(ticker), h.buffer)

	h.mu.Lock()
	f := h.feeds[ticker]
	started := true
	switch {
	case f == nil:
		f = &feed{}
		h.feeds[ticker] = f
		h.start(ticker, f)
	case f.finished():
		// market closed or upstream gone; retry for everyone on the topic
		h.status.Delete(ticker)
		h.start(ticker, f)
	default:
		started = false
	}
	f.refs++
	h.mu.Unlock()

	out := make(chan []byte, h.buffer)
	if !started {
		if st, ok := h.status.Get(ticker); ok {
			offer(out, st)
			if tk, ok := h.ticks.Get(ticker); ok {
				offer(out, encode(tk))
			}
		}
	}

	go func() {
		defer close(out)
		for msg := range busCh {
			b, ok := msg.([]byte)
			if !ok {
				continue
			}
			// slow consumer; drop rather than stall the feed
			offer(out, b)
		}
	}()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			busUnsub()
			h.release(ticker)
		})
	}
	return out, unsub
}

func (h *Hub) release(ticker string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	f := h.feeds[ticker]
	if f == nil {
		return
	}
	f.refs--
	if f.refs > 0 {
		return
	}
	f.cancel()
	delete(h.feeds, ticker)
	h.status.Delete(ticker)
}

// Active returns the tickers with at least one subscriber.
func (h *Hub) Active() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.feeds))
	for t := range h.feeds {
		out = append(out, t)
	}
	return out
}

// LastTick returns the most recent tick relayed for ticker, if any.
func (h *Hub) LastTick(ticker string) (stream.TickMessage, time.Duration, bool) {
	return h.ticks.GetWithAge(marketsession.Normalize(ticker))
}

// PruneTicks drops cached ticks older than maxAge for tickers nobody
// watches.
func (h *Hub) PruneTicks(maxAge time.Duration) int {
	h.mu.Lock()
	active := make(map[string]bool, len(h.feeds))
	for t := range h.feeds {
		active[t] = true
	}
	h.mu.Unlock()

	removed := 0
	for _, key := range h.ticks.Keys() {
		if active[key] {
			continue
		}
		if _, age, ok := h.ticks.GetWithAge(key); ok && age > maxAge {
			h.ticks.Delete(key)
			removed++
		}
	}
	return removed
}

// Close cancels every upstream session.
func (h *Hub) Close() {
	h.mu.Lock()
	feeds := h.feeds
	h.feeds = make(map[string]*feed)
	h.mu.Unlock()
	for _, f := range feeds {
		f.cancel()
		<-f.done
	}
}

func (h *Hub) run(ctx context.Context, ticker string, done chan struct{}) {
	defer close(done)

	st := h.sessions.Status(ticker, h.now())
	info := newMarketInfo(st)
	if !st.Open && !h.outsideHours {
		h.control(ctx, ticker, false, stream.ReasonMarketClosed, st.Reason, info)
		return
	}
	if h.upstream == nil {
		h.control(ctx, ticker, false, stream.ReasonUpstreamError, "Live streaming is not configured", info)
		return
	}

	start := time.Now()
	prices, stop, errFn, err := h.upstream.Subscribe(ctx, ticker)
	if h.metrics != nil {
		h.metrics.UpstreamLatency.RecordDuration(time.Since(start))
	}
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Printf("relay: %s upstream connect failed: %v", ticker, err)
		h.countError()
		h.control(ctx, ticker, false, stream.ReasonUpstreamError, fmt.Sprintf("Live streaming connection failed: %v", err), info)
		return
	}
	defer stop()

	h.bus.Publish(events.EventStreamStarted, events.StreamLifecycle{Ticker: ticker})
	reason := "unsubscribed"
	defer func() {
		h.bus.Publish(events.EventStreamStopped, events.StreamLifecycle{Ticker: ticker, Reason: reason})
	}()

	h.control(ctx, ticker, true, stream.ReasonConnected, fmt.Sprintf("Connected to live data feed for %s", ticker), info)

	for {
		select {
		case <-ctx.Done():
			return
		case p, ok := <-prices:
			if !ok {
				if ctx.Err() != nil {
					return
				}
				msg := "Live streaming connection closed"
				if err := errFn(); err != nil {
					msg = fmt.Sprintf("Live streaming connection failed: %v", err)
				}
				reason = "upstream closed"
				h.countError()
				h.control(ctx, ticker, false, stream.ReasonUpstreamError, msg, info)
				return
			}
			if p.Price == 0 {
				continue
			}
			tick := TickFrame(p, h.now())
			h.ticks.Set(ticker, tick)
			h.bus.Publish(events.TickTopic(ticker), encode(tick))
			if h.metrics != nil {
				h.metrics.IncrementTicks()
			}
		}
	}
}

func (h *Hub) control(ctx context.Context, ticker string, available bool, reason, message string, info MarketInfo) {
	if ctx.Err() != nil {
		return
	}
	ctl := stream.NewControl(available, reason, message)
	ctl.MarketInfo = info
	b := encode(ctl)
	h.status.Set(ticker, b)
	h.bus.Publish(events.TickTopic(ticker), b)
}

func (h *Hub) countError() {
	if h.metrics != nil {
		h.metrics.IncrementErrors()
	}
}
