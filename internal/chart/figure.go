package chart

// Figure is a Plotly-shaped chart description. It marshals to the JSON the
// browser host hands to Plotly.newPlot.
type Figure struct {
	Data   []Trace `json:"data"`
	Layout Layout  `json:"layout"`
}

// Trace is one series on the figure. Only the fields relevant to the trace
// type are populated.
type Trace struct {
	Type       string     `json:"type"`
	Name       string     `json:"name,omitempty"`
	X          []string   `json:"x"`
	Y          []*float64 `json:"y,omitempty"`
	Open       []float64  `json:"open,omitempty"`
	High       []float64  `json:"high,omitempty"`
	Low        []float64  `json:"low,omitempty"`
	Close      []float64  `json:"close,omitempty"`
	YAxis      string     `json:"yaxis,omitempty"`
	Mode       string     `json:"mode,omitempty"`
	Fill       string     `json:"fill,omitempty"`
	FillColor  string     `json:"fillcolor,omitempty"`
	Line       *Line      `json:"line,omitempty"`
	Marker     *Marker    `json:"marker,omitempty"`
	Increasing *Side      `json:"increasing,omitempty"`
	Decreasing *Side      `json:"decreasing,omitempty"`
	ShowLegend *bool      `json:"showlegend,omitempty"`
	HoverInfo  string     `json:"hoverinfo,omitempty"`
}

// Line styles a scatter line or a candle outline.
type Line struct {
	Color string  `json:"color,omitempty"`
	Width float64 `json:"width,omitempty"`
	Dash  string  `json:"dash,omitempty"`
}

// Marker carries per-point colours for bar traces.
type Marker struct {
	Color []string `json:"color,omitempty"`
}

// Side styles the increasing or decreasing candles.
type Side struct {
	Line      Line   `json:"line"`
	FillColor string `json:"fillcolor,omitempty"`
}

// Layout describes axes, panels and theme colours.
type Layout struct {
	Title        Title   `json:"title"`
	PaperBGColor string  `json:"paper_bgcolor"`
	PlotBGColor  string  `json:"plot_bgcolor"`
	Font         Font    `json:"font"`
	ShowLegend   bool    `json:"showlegend"`
	XAxis        Axis    `json:"xaxis"`
	YAxis        Axis    `json:"yaxis"`
	YAxis2       *Axis   `json:"yaxis2,omitempty"`
	YAxis3       *Axis   `json:"yaxis3,omitempty"`
	Margin       Margin  `json:"margin"`
	Legend       *Legend `json:"legend,omitempty"`
	UIRevision   string  `json:"uirevision,omitempty"`
}

type Title struct {
	Text string `json:"text"`
}

type Font struct {
	Color string `json:"color"`
}

type Margin struct {
	L int `json:"l"`
	R int `json:"r"`
	T int `json:"t"`
	B int `json:"b"`
}

type Legend struct {
	Orientation string  `json:"orientation"`
	Y           float64 `json:"y"`
}

// Axis is a cartesian axis. Domain is the vertical share of the plot area
// given to the panel that uses the axis.
type Axis struct {
	Title       string       `json:"title,omitempty"`
	Domain      []float64    `json:"domain,omitempty"`
	Range       []float64    `json:"range,omitempty"`
	Anchor      string       `json:"anchor,omitempty"`
	GridColor   string       `json:"gridcolor,omitempty"`
	RangeBreaks []RangeBreak `json:"rangebreaks,omitempty"`
	RangeSlider *RangeSlider `json:"rangeslider,omitempty"`
}

type RangeSlider struct {
	Visible bool `json:"visible"`
}

// RangeBreak hides a recurring gap on a date axis.
type RangeBreak struct {
	Bounds  []any  `json:"bounds"`
	Pattern string `json:"pattern,omitempty"`
}

// Restyle is an in-place data replacement for a single trace.
type Restyle struct {
	Trace  int            `json:"trace"`
	Update map[string]any `json:"update"`
}
