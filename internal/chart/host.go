package chart

import (
	"encoding/json"
	"errors"
	"sync"
)

// ErrNoChart is returned by a host asked to patch a figure it does not have.
var ErrNoChart = errors.New("chart: no figure")

// Host is the rendering surface a Renderer draws on. Implementations
// forward figure operations to a browser, a terminal or memory.
type Host interface {
	Ready() bool
	NewPlot(fig Figure) error
	Restyle(r Restyle) error
	Relayout(update map[string]any) error
	Purge() error
}

// MemoryHost keeps the current figure in memory and applies patches to it.
// It backs server-rendered chart responses and tests.
type MemoryHost struct {
	mu       sync.Mutex
	fig      *Figure
	ready    bool
	ops      []string
	relayout map[string]any
	failNext error
}

// NewMemoryHost returns a ready host with no figure.
func NewMemoryHost() *MemoryHost {
	return &MemoryHost{ready: true}
}

func (h *MemoryHost) SetReady(ready bool) {
	h.mu.Lock()
	h.ready = ready
	h.mu.Unlock()
}

// FailNext makes the next NewPlot, Restyle or Relayout call return err.
func (h *MemoryHost) FailNext(err error) {
	h.mu.Lock()
	h.failNext = err
	h.mu.Unlock()
}

func (h *MemoryHost) Ready() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ready
}

func (h *MemoryHost) NewPlot(fig Figure) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ops = append(h.ops, "newPlot")
	if err := h.takeFailure(); err != nil {
		return err
	}
	h.fig = &fig
	h.relayout = map[string]any{}
	return nil
}

func (h *MemoryHost) Restyle(r Restyle) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ops = append(h.ops, "restyle")
	if err := h.takeFailure(); err != nil {
		return err
	}
	if h.fig == nil || r.Trace < 0 || r.Trace >= len(h.fig.Data) {
		return ErrNoChart
	}
	tr := &h.fig.Data[r.Trace]
	for k, v := range r.Update {
		switch k {
		case "x":
			tr.X, _ = v.([]string)
		case "y":
			tr.Y, _ = v.([]*float64)
		case "open":
			tr.Open, _ = v.([]float64)
		case "high":
			tr.High, _ = v.([]float64)
		case "low":
			tr.Low, _ = v.([]float64)
		case "close":
			tr.Close, _ = v.([]float64)
		case "marker.color":
			colors, _ := v.([]string)
			tr.Marker = &Marker{Color: colors}
		}
	}
	return nil
}

func (h *MemoryHost) Relayout(update map[string]any) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ops = append(h.ops, "relayout")
	if err := h.takeFailure(); err != nil {
		return err
	}
	if h.fig == nil {
		return ErrNoChart
	}
	for k, v := range update {
		h.relayout[k] = v
		switch k {
		case "title.text":
			h.fig.Layout.Title.Text, _ = v.(string)
		case "xaxis.rangebreaks":
			h.fig.Layout.XAxis.RangeBreaks, _ = v.([]RangeBreak)
		}
	}
	return nil
}

func (h *MemoryHost) Purge() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ops = append(h.ops, "purge")
	h.fig = nil
	return nil
}

// Figure returns a copy of the current figure, or nil.
func (h *MemoryHost) Figure() *Figure {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.fig == nil {
		return nil
	}
	cp := *h.fig
	cp.Data = append([]Trace(nil), h.fig.Data...)
	return &cp
}

// JSON encodes the current figure.
func (h *MemoryHost) JSON() ([]byte, error) {
	fig := h.Figure()
	if fig == nil {
		return nil, ErrNoChart
	}
	return json.Marshal(fig)
}

// Ops lists the host calls made so far, in order.
func (h *MemoryHost) Ops() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.ops...)
}

func (h *MemoryHost) takeFailure() error {
	err := h.failNext
	h.failNext = nil
	return err
}
