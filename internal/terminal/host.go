// Package terminal draws live candles in a text terminal for the watch
// command.
package terminal

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"market-dashboard/internal/chart"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED")).
			Padding(0, 1)

	panelStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#3B82F6")).
			Padding(0, 1)

	upStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#26a69a")).Bold(true)
	downStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#ef5350")).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B")).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)
)

// sparkRunes draw the close column, low to high.
var sparkRunes = []rune("▁▂▃▄▅▆▇█")

// Host keeps the figure in memory and prints a summary panel after every
// change.
type Host struct {
	mem   *chart.MemoryHost
	out   io.Writer
	width int
}

// NewHost prints to out; width bounds the sparkline.
func NewHost(out io.Writer, width int) *Host {
	if width <= 0 {
		width = 60
	}
	return &Host{mem: chart.NewMemoryHost(), out: out, width: width}
}

func (h *Host) Ready() bool { return h.mem.Ready() }

func (h *Host) NewPlot(fig chart.Figure) error {
	if err := h.mem.NewPlot(fig); err != nil {
		return err
	}
	h.draw()
	return nil
}

func (h *Host) Restyle(r chart.Restyle) error {
	if err := h.mem.Restyle(r); err != nil {
		return err
	}
	h.draw()
	return nil
}

func (h *Host) Relayout(update map[string]any) error {
	return h.mem.Relayout(update)
}

func (h *Host) Purge() error {
	return h.mem.Purge()
}

// Figure returns the figure currently shown.
func (h *Host) Figure() *chart.Figure { return h.mem.Figure() }

func (h *Host) draw() {
	fig := h.mem.Figure()
	if fig == nil {
		return
	}
	fmt.Fprintln(h.out, Render(fig, h.width))
}

// Render formats fig as a bordered panel: the latest candle, a close
// sparkline and the last value of every line overlay.
func Render(fig *chart.Figure, width int) string {
	var candles *chart.Trace
	var lines []string
	for i := range fig.Data {
		tr := &fig.Data[i]
		switch {
		case tr.Type == "candlestick":
			candles = tr
		case tr.Type == "scatter" && len(tr.Y) > 0:
			if v := lastValue(tr.Y); v != nil {
				lines = append(lines, fmt.Sprintf("%-10s %10.2f", tr.Name, *v))
			}
		}
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(fig.Layout.Title.Text))
	b.WriteString("\n")
	if candles == nil || len(candles.Close) == 0 {
		b.WriteString(mutedStyle.Render("waiting for data"))
		return panelStyle.Render(b.String())
	}

	n := len(candles.Close)
	o, c := candles.Open[n-1], candles.Close[n-1]
	style := upStyle
	if c < o {
		style = downStyle
	}
	fmt.Fprintf(&b, "%s  O %.2f  H %.2f  L %.2f  C %s\n",
		mutedStyle.Render(candles.X[n-1]), o, candles.High[n-1], candles.Low[n-1], style.Render(fmt.Sprintf("%.2f", c)))
	b.WriteString(Sparkline(candles.Close, width))
	for _, l := range lines {
		b.WriteString("\n")
		b.WriteString(l)
	}
	fmt.Fprintf(&b, "\n%s", mutedStyle.Render(fmt.Sprintf("%d candles", n)))
	return panelStyle.Render(b.String())
}

// Sparkline scales the last width values onto block characters.
func Sparkline(values []float64, width int) string {
	if len(values) > width {
		values = values[len(values)-width:]
	}
	if len(values) == 0 {
		return ""
	}
	lo, hi := values[0], values[0]
	for _, v := range values {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	out := make([]rune, len(values))
	for i, v := range values {
		idx := 0
		if hi > lo {
			idx = int((v - lo) / (hi - lo) * float64(len(sparkRunes)-1))
		}
		out[i] = sparkRunes[idx]
	}
	return string(out)
}

func lastValue(ys []*float64) *float64 {
	for i := len(ys) - 1; i >= 0; i-- {
		if ys[i] != nil {
			return ys[i]
		}
	}
	return nil
}
