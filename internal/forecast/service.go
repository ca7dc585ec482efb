package forecast

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"market-dashboard/internal/chart"
	"market-dashboard/internal/data"
	"market-dashboard/internal/marketsession"
	"market-dashboard/internal/monitor"
)

// Request defaults.
const (
	DefaultModel  = "chronos-bolt-small"
	DefaultDays   = 30
	DefaultPeriod = "2y"
	MaxDays       = 365
	minContext    = 10
)

// Request is the forecast endpoint body.
type Request struct {
	Ticker       string `json:"ticker"`
	Model        string `json:"model"`
	ForecastDays int    `json:"forecast_days"`
	Period       string `json:"period"`
}

// Normalize fills defaults and checks ranges.
func (r *Request) Normalize() error {
	r.Ticker = marketsession.Normalize(r.Ticker)
	if r.Model == "" {
		r.Model = DefaultModel
	}
	if r.ForecastDays == 0 {
		r.ForecastDays = DefaultDays
	}
	if r.Period == "" {
		r.Period = DefaultPeriod
	}
	if r.ForecastDays < 1 || r.ForecastDays > MaxDays {
		return fmt.Errorf("%w: %d (1-%d)", ErrInvalidForecastLen, r.ForecastDays, MaxDays)
	}
	if !data.ValidPeriod(r.Period) {
		return fmt.Errorf("%w: %s", data.ErrInvalidPeriod, r.Period)
	}
	return nil
}

// Result is the forecast endpoint payload.
type Result struct {
	Ticker          string         `json:"ticker"`
	CompanyName     string         `json:"company_name"`
	ModelID         string         `json:"model"`
	ModelName       string         `json:"model_name"`
	CurrentPrice    float64        `json:"current_price"`
	ForecastPrice   float64        `json:"forecast_price"`
	PriceChange     float64        `json:"price_change"`
	PercentChange   float64        `json:"percent_change"`
	ForecastDates   []string       `json:"forecast_dates"`
	ForecastPrices  []float64      `json:"forecast_prices"`
	ConfidenceLower []float64      `json:"confidence_lower,omitempty"`
	ConfidenceUpper []float64      `json:"confidence_upper,omitempty"`
	Metrics         map[string]any `json:"metrics"`
}

// Prediction converts the result into a chart overlay.
func (r *Result) Prediction() *chart.Prediction {
	p := &chart.Prediction{Prices: r.ForecastPrices, Upper: r.ConfidenceUpper, Lower: r.ConfidenceLower}
	for _, d := range r.ForecastDates {
		t, err := time.Parse("2006-01-02", d)
		if err != nil {
			return nil
		}
		p.Dates = append(p.Dates, t)
	}
	return p
}

// History loads the close series a forecast runs on. *data.Service
// satisfies it.
type History interface {
	Info(ctx context.Context, ticker string) (*data.TickerInfo, error)
	History(ctx context.Context, ticker, period string) (*data.History, bool, error)
}

// Service resolves a request to a model run.
type Service struct {
	models   *Registry
	history  History
	sessions *marketsession.Calculator
	metrics  *monitor.SystemMetrics
}

// NewService wires a forecast service. metrics may be nil.
func NewService(models *Registry, history History, sessions *marketsession.Calculator, metrics *monitor.SystemMetrics) *Service {
	if sessions == nil {
		sessions = marketsession.New(nil)
	}
	return &Service{models: models, history: history, sessions: sessions, metrics: metrics}
}

// Models lists the registry.
func (s *Service) Models(ctx context.Context) []ModelInfo { return s.models.List(ctx) }

// Predict validates req, loads history and runs the model.
func (s *Service) Predict(ctx context.Context, req Request) (*Result, error) {
	if err := req.Normalize(); err != nil {
		return nil, err
	}
	model, err := s.models.Get(req.Model)
	if err != nil {
		return nil, err
	}
	info, err := s.history.Info(ctx, req.Ticker)
	if err != nil {
		return nil, err
	}
	h, _, err := s.history.History(ctx, info.Symbol, req.Period)
	if err != nil {
		return nil, err
	}
	closes := h.Closes()
	if len(closes) < minContext {
		return nil, fmt.Errorf("%w: %d points", ErrInsufficientData, len(closes))
	}

	log.Printf("forecast: %s predicting %s for %d days on %s", model.Name(), info.Symbol, req.ForecastDays, req.Period)
	start := time.Now()
	out, err := model.Predict(ctx, closes, req.ForecastDays)
	if s.metrics != nil {
		s.metrics.ForecastLatency.RecordDuration(time.Since(start))
		if err != nil {
			s.metrics.IncrementErrors()
		}
	}
	if err != nil {
		return nil, err
	}

	candles := h.Candles()
	last := candles[len(candles)-1].PeriodStart
	market := s.sessions.Lookup(info.Symbol)

	current := closes[len(closes)-1]
	target := current
	if len(out.Median) > 0 {
		target = out.Median[len(out.Median)-1]
	}
	res := &Result{
		Ticker:          info.Symbol,
		CompanyName:     info.LongName,
		ModelID:         model.ID(),
		ModelName:       model.Name(),
		CurrentPrice:    current,
		ForecastPrice:   target,
		PriceChange:     target - current,
		PercentChange:   percentOf(target-current, current),
		ForecastDates:   ForecastDates(last, req.ForecastDays, market.OpenAllWeek),
		ForecastPrices:  out.Median,
		ConfidenceLower: out.Lower,
		ConfidenceUpper: out.Upper,
	}
	res.Metrics = estimateMetrics(closes, out)
	res.Metrics["forecast_days"] = req.ForecastDays
	res.Metrics["model_name"] = model.Name()
	res.Metrics["model_type"] = model.ID()

	log.Printf("forecast: %s $%.2f -> $%.2f (%+.1f%%)", model.Name(), current, target, res.PercentChange)
	return res, nil
}

// percentOf returns part as a percentage of whole, or 0 when whole is zero
// so results stay JSON-encodable.
func percentOf(part, whole float64) float64 {
	if whole == 0 {
		return 0
	}
	p := part / whole * 100
	if math.IsNaN(p) || math.IsInf(p, 0) {
		return 0
	}
	return p
}

// ForecastDates lists horizon dates after last. Weekends are skipped unless
// the market trades all week.
func ForecastDates(last time.Time, horizon int, allWeek bool) []string {
	out := make([]string, 0, horizon)
	d := time.Date(last.Year(), last.Month(), last.Day(), 0, 0, 0, 0, time.UTC)
	for len(out) < horizon {
		d = d.AddDate(0, 0, 1)
		if !allWeek && (d.Weekday() == time.Saturday || d.Weekday() == time.Sunday) {
			continue
		}
		out = append(out, d.Format("2006-01-02"))
	}
	return out
}

// estimateMetrics derives error estimates from the band width, or from
// historical dispersion when the model gave no band.
func estimateMetrics(closes []float64, out Output) map[string]any {
	n := len(closes)
	current := closes[n-1]

	var mean float64
	for _, c := range closes {
		mean += c
	}
	mean /= float64(n)
	var variance float64
	for _, c := range closes {
		variance += (c - mean) * (c - mean)
	}
	std := math.Sqrt(variance / float64(n))

	mae := std * 0.7
	rmse := mae * 1.3
	banded := len(out.Lower) > 0 && len(out.Lower) == len(out.Upper)
	if banded {
		var width float64
		for i := range out.Upper {
			width += out.Upper[i] - out.Lower[i]
		}
		width /= float64(len(out.Upper))
		mae = width / 3.2
		rmse = mae * 1.25
	}
	mape := math.Min(percentOf(mae, math.Abs(current)), 100)

	return map[string]any{
		"mae":              mae,
		"rmse":             rmse,
		"mape":             mape,
		"data_points":      n,
		"confidence_based": banded,
	}
}
