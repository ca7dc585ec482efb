package sentiment

import (
	"math"

	"market-dashboard/internal/data"
	"market-dashboard/internal/indicators"
)

// Lookbacks in trading days.
const (
	oneMonth    = 22
	threeMonths = 66
	sixMonths   = 132
	volumeDays  = 10
	levelWindow = 50
	rsiPeriod   = 14
)

// CompanyInfo describes the issuer in the prompt.
type CompanyInfo struct {
	Name      string `json:"name"`
	Sector    string `json:"sector"`
	Industry  string `json:"industry"`
	Market    string `json:"market"`
	Country   string `json:"country"`
	MarketCap int64  `json:"market_cap,omitempty"`
}

// PriceAction summarises recent returns.
type PriceAction struct {
	CurrentPrice     float64        `json:"current_price"`
	OneMonthReturn   float64        `json:"one_month_return"`
	ThreeMonthReturn float64        `json:"three_month_return"`
	SixMonthReturn   float64        `json:"six_month_return"`
	Volatility       float64        `json:"volatility"`
	VolumeTrend      float64        `json:"volume_trend"`
	DataPoints       int            `json:"data_points"`
	DateRange        data.DateRange `json:"date_range"`
}

type MovingAverages struct {
	MA20        float64 `json:"ma20"`
	MA50        float64 `json:"ma50"`
	MA200       float64 `json:"ma200"`
	Trend       string  `json:"trend"`
	PriceVsMA20 float64 `json:"price_vs_ma20"`
	PriceVsMA50 float64 `json:"price_vs_ma50"`
}

type Momentum struct {
	RSI       float64 `json:"rsi"`
	RSISignal string  `json:"rsi_signal"`
}

type Levels struct {
	Resistance           float64 `json:"resistance_level"`
	Support              float64 `json:"support_level"`
	DistanceToResistance float64 `json:"distance_to_resistance"`
	DistanceToSupport    float64 `json:"distance_to_support"`
}

// Technical is the indicator block of the prompt.
type Technical struct {
	MovingAverages MovingAverages `json:"moving_averages"`
	Momentum       Momentum       `json:"momentum"`
	Levels         Levels         `json:"support_resistance"`
}

// PredictionContext tells the model whether forecasts are on offer.
type PredictionContext struct {
	Available   bool   `json:"available"`
	ModelsCount int    `json:"models_count,omitempty"`
	Note        string `json:"note,omitempty"`
}

// Context is everything the analysis prompt is built from.
type Context struct {
	Ticker      string             `json:"ticker"`
	Company     CompanyInfo        `json:"company_info"`
	PriceAction PriceAction        `json:"price_action"`
	Technical   Technical          `json:"technical_analysis"`
	Predictions *PredictionContext `json:"predictions,omitempty"`
	News        []Headline         `json:"news,omitempty"`
}

// BuildContext derives price action and indicators from h. It returns
// ErrNoHistory for an empty series.
func BuildContext(info *data.TickerInfo, h *data.History) (*Context, error) {
	if h == nil || len(h.OHLCV) == 0 {
		return nil, ErrNoHistory
	}
	n := len(h.OHLCV)
	closes := make([]float64, n)
	highs := make([]float64, n)
	lows := make([]float64, n)
	volumes := make([]float64, n)
	for i, r := range h.OHLCV {
		closes[i], highs[i], lows[i], volumes[i] = r.Close, r.High, r.Low, float64(r.Volume)
	}
	price := closes[n-1]
	market := data.DetectMarket(info.Symbol, info.Exchange, info.Currency)

	ctx := &Context{
		Ticker: info.Symbol,
		Company: CompanyInfo{
			Name:      info.LongName,
			Sector:    info.Sector,
			Industry:  info.Industry,
			Market:    market.Market,
			Country:   market.Country,
			MarketCap: info.MarketCap,
		},
		PriceAction: PriceAction{
			CurrentPrice:     price,
			OneMonthReturn:   indicators.ReturnSince(closes, oneMonth),
			ThreeMonthReturn: indicators.ReturnSince(closes, threeMonths),
			SixMonthReturn:   indicators.ReturnSince(closes, sixMonths),
			Volatility:       indicators.AnnualisedVolatility(closes),
			VolumeTrend:      indicators.VolumeTrend(volumes, volumeDays),
			DataPoints:       n,
			DateRange:        data.DateRange{Start: h.OHLCV[0].Date, End: h.OHLCV[n-1].Date},
		},
	}

	// Short series fall back to the current price.
	ma := func(period int) float64 {
		if v := indicators.SMA(closes, period); v != 0 {
			return v
		}
		return price
	}
	ma20, ma50, ma200 := ma(20), ma(50), ma(200)
	rsi := 50.0
	if len(closes) > rsiPeriod {
		rsi = indicators.RSI(closes, rsiPeriod)
	}
	support, resistance := indicators.SupportResistance(highs, lows, levelWindow)

	ctx.Technical = Technical{
		MovingAverages: MovingAverages{
			MA20:        ma20,
			MA50:        ma50,
			MA200:       ma200,
			Trend:       indicators.Trend(price, ma20, ma50),
			PriceVsMA20: pct(price, ma20),
			PriceVsMA50: pct(price, ma50),
		},
		Momentum: Momentum{RSI: rsi, RSISignal: indicators.Signal(rsi)},
		Levels: Levels{
			Resistance:           resistance,
			Support:              support,
			DistanceToResistance: pct(resistance, price),
			DistanceToSupport:    pct(price, support),
		},
	}
	return ctx, nil
}

// pct is (a/b - 1) in percent, zero when b is.
func pct(a, b float64) float64 {
	if b == 0 || math.IsNaN(a) {
		return 0
	}
	return (a/b - 1) * 100
}
