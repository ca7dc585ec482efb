package chart

import (
	"slices"
	"time"

	"market-dashboard/internal/marketsession"
)

// Moving-average windows a user may enable.
var AllowedMovingAverages = []int{20, 50, 200}

const (
	ThemeLight = "light"
	ThemeDark  = "dark"
)

// Config is the user's overlay selection for a chart.
type Config struct {
	MovingAverages  []int  `json:"moving_averages"`
	ShowRSI         bool   `json:"show_rsi"`
	Theme           string `json:"theme"`
	ShowVolume      bool   `json:"show_volume"`
	ShowPredictions bool   `json:"show_predictions"`
}

// DefaultConfig is used for clients that have never saved settings.
func DefaultConfig() Config {
	return Config{
		MovingAverages:  []int{20},
		Theme:           ThemeLight,
		ShowVolume:      true,
		ShowPredictions: true,
	}
}

// Normalize drops unknown MA windows, sorts and dedupes the rest and fixes an
// unknown theme to light.
func (c Config) Normalize() Config {
	out := c
	out.MovingAverages = nil
	for _, w := range c.MovingAverages {
		if slices.Contains(AllowedMovingAverages, w) && !slices.Contains(out.MovingAverages, w) {
			out.MovingAverages = append(out.MovingAverages, w)
		}
	}
	slices.Sort(out.MovingAverages)
	if out.Theme != ThemeDark {
		out.Theme = ThemeLight
	}
	return out
}

// Equal compares two normalized configs.
func (c Config) Equal(o Config) bool {
	a, b := c.Normalize(), o.Normalize()
	return slices.Equal(a.MovingAverages, b.MovingAverages) &&
		a.ShowRSI == b.ShowRSI &&
		a.Theme == b.Theme &&
		a.ShowVolume == b.ShowVolume &&
		a.ShowPredictions == b.ShowPredictions
}

// Prediction is a forecast overlay. Upper and Lower are optional but must
// match Dates in length to be drawn.
type Prediction struct {
	Dates  []time.Time
	Prices []float64
	Upper  []float64
	Lower  []float64
}

func (p *Prediction) present() bool {
	return p != nil && len(p.Dates) > 0 && len(p.Dates) == len(p.Prices)
}

func (p *Prediction) hasBand() bool {
	return len(p.Upper) == len(p.Dates) && len(p.Lower) == len(p.Dates)
}

// Session describes the trading clock the x axis is drawn in. The hour band
// gap runs from CloseHour to OpenHour.
type Session struct {
	Location  *time.Location
	OpenHour  float64
	CloseHour float64
	AllWeek   bool
}

// DefaultSession is US equity hours at a fixed UTC-5.
func DefaultSession() Session {
	return Session{
		Location:  time.FixedZone("UTC-5", -5*3600),
		OpenHour:  9.5,
		CloseHour: 16,
	}
}

// SessionFor draws the axis in m's fixed offset and hours.
func SessionFor(m marketsession.Market) Session {
	return Session{
		Location:  time.FixedZone(m.Code, int(m.UTCOffset*3600)),
		OpenHour:  m.OpenHour,
		CloseHour: m.CloseHour,
		AllWeek:   m.OpenAllWeek,
	}
}
