package monitor

import (
	"context"
	"log"
	"time"

	"market-dashboard/internal/events"
)

// Monitor watches stream lifecycle events, keeps the upstream session gauge
// current and forwards a one-line notice to AlertFn.
type Monitor struct {
	Bus     *events.Bus
	Metrics *SystemMetrics
	AlertFn func(string)
}

func (m *Monitor) Start(ctx context.Context) {
	if m.Bus == nil {
		log.Println("monitor not fully configured; skipping")
		return
	}
	if m.AlertFn == nil {
		m.AlertFn = func(s string) { log.Println(s) }
	}
	started, unsubStarted := m.Bus.Subscribe(events.EventStreamStarted, 50)
	stopped, unsubStopped := m.Bus.Subscribe(events.EventStreamStopped, 50)
	go func() {
		defer unsubStarted()
		defer unsubStopped()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-started:
				if !ok {
					return
				}
				if m.Metrics != nil {
					m.Metrics.AddUpstreamSessions(1)
				}
				m.AlertFn(formatAlert("stream started", msg))
			case msg, ok := <-stopped:
				if !ok {
					return
				}
				if m.Metrics != nil {
					m.Metrics.AddUpstreamSessions(-1)
				}
				m.AlertFn(formatAlert("stream stopped", msg))
			}
		}
	}()
}

func formatAlert(prefix string, msg any) string {
	return "[" + time.Now().Format(time.RFC3339) + "] " + prefix + ": " + toString(msg)
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case events.StreamLifecycle:
		if t.Reason == "" {
			return t.Ticker
		}
		return t.Ticker + " (" + t.Reason + ")"
	default:
		return "unknown"
	}
}
