package yahoo

import "time"

// Bar is one historical OHLCV row.
type Bar struct {
	Time     time.Time `json:"time"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	AdjClose float64   `json:"adj_close"`
	Volume   float64   `json:"volume"`
}

// Quote is the subset of the Yahoo quote and equity documents the dashboard
// shows. Fields Yahoo omits for a security type stay zero.
type Quote struct {
	Symbol           string    `json:"symbol"`
	ShortName        string    `json:"short_name"`
	LongName         string    `json:"long_name"`
	Exchange         string    `json:"exchange"`
	FullExchangeName string    `json:"full_exchange_name"`
	Currency         string    `json:"currency"`
	MarketState      string    `json:"market_state"`
	QuoteType        string    `json:"quote_type"`
	Tradeable        bool      `json:"is_tradeable"`
	Price            float64   `json:"price"`
	PreviousClose    float64   `json:"previous_close"`
	Change           float64   `json:"change"`
	ChangePercent    float64   `json:"change_percent"`
	Open             float64   `json:"open"`
	DayHigh          float64   `json:"day_high"`
	DayLow           float64   `json:"day_low"`
	Volume           int64     `json:"volume"`
	AvgVolume3Month  int64     `json:"avg_volume_3m"`
	FiftyTwoWeekHigh float64   `json:"fifty_two_week_high"`
	FiftyTwoWeekLow  float64   `json:"fifty_two_week_low"`
	FiftyDayAverage  float64   `json:"fifty_day_average"`
	TwoHundredDayAvg float64   `json:"two_hundred_day_average"`
	MarketCap        int64     `json:"market_cap"`
	TrailingPE       float64   `json:"trailing_pe"`
	ForwardPE        float64   `json:"forward_pe"`
	EPS              float64   `json:"eps"`
	DividendYield    float64   `json:"dividend_yield"`
	PriceToBook      float64   `json:"price_to_book"`
	MarketTime       time.Time `json:"market_time"`
}

// Pricing is one decoded frame of the Yahoo streamer.
type Pricing struct {
	ID            string
	Price         float32
	Time          int64 // unix ms
	Currency      string
	Exchange      string
	QuoteType     int32
	MarketHours   int32
	ChangePercent float32
	DayVolume     int64
	DayHigh       float32
	DayLow        float32
	Change        float32
	ShortName     string
	OpenPrice     float32
	PreviousClose float32
	LastSize      int64
}

// RegularHours reports whether the frame was produced in the regular session.
func (p Pricing) RegularHours() bool { return p.MarketHours == 1 }
