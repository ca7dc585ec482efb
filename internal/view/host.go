package view

import (
	"fmt"
	"sync/atomic"

	"market-dashboard/internal/chart"
)

// socketHost forwards figure operations to the browser as messages.
type socketHost struct {
	send    func(Message) error
	dropped atomic.Int64
}

func newSocketHost(send func(Message) error) *socketHost {
	return &socketHost{send: send}
}

// Ready stays true for the life of the socket. A full outbound buffer drops
// one frame; the renderer then recreates the figure on its next draw.
func (h *socketHost) Ready() bool { return h.send != nil }

func (h *socketHost) NewPlot(fig chart.Figure) error {
	return h.emit(Message{Op: OpNewPlot, Figure: &fig})
}

func (h *socketHost) Restyle(r chart.Restyle) error {
	trace := r.Trace
	return h.emit(Message{Op: OpRestyle, Trace: &trace, Update: r.Update})
}

func (h *socketHost) Relayout(update map[string]any) error {
	return h.emit(Message{Op: OpRelayout, Update: update})
}

func (h *socketHost) Purge() error {
	return h.emit(Message{Op: OpPurge})
}

// Dropped counts figure frames the browser never got.
func (h *socketHost) Dropped() int64 { return h.dropped.Load() }

func (h *socketHost) emit(m Message) error {
	if err := h.send(m); err != nil {
		h.dropped.Add(1)
		return fmt.Errorf("drop %s: %w", m.Op, err)
	}
	return nil
}
