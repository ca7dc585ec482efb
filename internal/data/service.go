package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"market-dashboard/internal/marketsession"
	"market-dashboard/internal/monitor"
	"market-dashboard/pkg/db"
	"market-dashboard/pkg/market/yahoo"
)

var (
	ErrInvalidTicker = errors.New("invalid ticker")
	ErrInvalidPeriod = errors.New("invalid period")
	ErrNoData        = errors.New("no historical data available")
)

// Cache lifetimes per payload kind.
const (
	TTLHistory = time.Hour
	TTLInfo    = 4 * time.Hour
	TTLSummary = 2 * time.Hour
)

// Cache stores encoded payloads with an expiry. *db.CacheQueries satisfies it.
type Cache interface {
	GetStockData(ctx context.Context, ticker, period, dataType string) (*db.StockEntry, error)
	SetStockData(ctx context.Context, ticker, period, dataType string, data []byte, dataPoints int, ttl time.Duration) error
	PurgeExpired(ctx context.Context) (int64, error)
}

// Service answers market-data questions from Yahoo through a read-through
// cache.
type Service struct {
	src      yahoo.Source
	cache    Cache
	sessions *marketsession.Calculator
	metrics  *monitor.SystemMetrics
	now      func() time.Time
}

// NewService builds a service. cache and metrics may be nil.
func NewService(src yahoo.Source, cache Cache, sessions *marketsession.Calculator, metrics *monitor.SystemMetrics) *Service {
	if sessions == nil {
		sessions = marketsession.New(nil)
	}
	return &Service{src: src, cache: cache, sessions: sessions, metrics: metrics, now: time.Now}
}

// Sessions exposes the market table the service labels tickers with.
func (s *Service) Sessions() *marketsession.Calculator { return s.sessions }

// Info returns the ticker's identity or ErrInvalidTicker.
func (s *Service) Info(ctx context.Context, ticker string) (*TickerInfo, error) {
	ticker = marketsession.Normalize(ticker)
	if ticker == "" {
		return nil, ErrInvalidTicker
	}
	var info TickerInfo
	if s.cached(ctx, ticker, "info", "info", &info) {
		return &info, nil
	}

	q, err := s.quote(ctx, ticker)
	if err != nil {
		return nil, err
	}
	info = TickerInfo{
		Symbol:    ticker,
		LongName:  firstNonEmpty(q.LongName, q.ShortName, ticker),
		ShortName: firstNonEmpty(q.ShortName, ticker),
		Sector:    "Unknown",
		Industry:  "Unknown",
		MarketCap: q.MarketCap,
		Currency:  firstNonEmpty(q.Currency, "USD"),
		Exchange:  firstNonEmpty(q.Exchange, "Unknown"),
		QuoteType: q.QuoteType,
	}
	s.store(ctx, ticker, "info", "info", info, 1, TTLInfo)
	return &info, nil
}

// Validate reports ErrInvalidTicker for symbols Yahoo does not know.
func (s *Service) Validate(ctx context.Context, ticker string) error {
	_, err := s.Info(ctx, ticker)
	return err
}

// History returns bars for period at its mapped interval. The second return
// reports a cache hit.
func (s *Service) History(ctx context.Context, ticker, period string) (*History, bool, error) {
	if period == "" {
		period = "1y"
	}
	interval, ok := IntervalFor(period)
	if !ok {
		return nil, false, fmt.Errorf("%w: %s", ErrInvalidPeriod, period)
	}
	info, err := s.Info(ctx, ticker)
	if err != nil {
		return nil, false, err
	}
	ticker = info.Symbol

	var h History
	if s.cached(ctx, ticker, period, "history", &h) && len(h.OHLCV) > 0 {
		return &h, true, nil
	}

	now := s.now()
	start := window(period, now)
	bars, err := s.bars(ctx, ticker, start, now, interval)
	if err != nil {
		log.Printf("data: %s history at %s failed, retrying daily: %v", ticker, interval, err)
		interval = "1d"
		if bars, err = s.bars(ctx, ticker, start, now, interval); err != nil {
			return nil, false, err
		}
	}

	market := s.sessions.Lookup(ticker)
	loc := time.FixedZone(market.Code, int(market.UTCOffset*3600))
	if n, ok := sessionsFor[period]; ok && IsIntraday(interval) {
		bars = lastSessions(bars, n, loc)
	}
	if len(bars) == 0 {
		return nil, false, fmt.Errorf("%w for %s", ErrNoData, ticker)
	}

	h = buildHistory(info, period, interval, bars, loc)
	s.store(ctx, ticker, period, "history", h, h.DataPoints, TTLHistory)
	return &h, false, nil
}

func buildHistory(info *TickerInfo, period, interval string, bars []yahoo.Bar, loc *time.Location) History {
	dateLayout := "2006-01-02"
	if IsIntraday(interval) {
		dateLayout = "2006-01-02 15:04"
	}
	rows := make([]Row, len(bars))
	for i, b := range bars {
		t := b.Time.In(loc)
		rows[i] = Row{
			Date:      t.Format(dateLayout),
			Timestamp: t.Format(time.RFC3339),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    int64(b.Volume),
		}
	}
	return History{
		Ticker:      info.Symbol,
		CompanyName: info.LongName,
		Period:      period,
		Interval:    interval,
		DataPoints:  len(rows),
		DateRange: DateRange{
			Start: bars[0].Time.In(loc).Format("2006-01-02"),
			End:   bars[len(bars)-1].Time.In(loc).Format("2006-01-02"),
		},
		OHLCV: rows,
	}
}

// Summary returns the comprehensive quote block.
func (s *Service) Summary(ctx context.Context, ticker string) (*Summary, bool, error) {
	info, err := s.Info(ctx, ticker)
	if err != nil {
		return nil, false, err
	}
	ticker = info.Symbol

	var sum Summary
	if s.cached(ctx, ticker, "summary", "summary", &sum) {
		return &sum, true, nil
	}
	q, err := s.quote(ctx, ticker)
	if err != nil {
		return nil, false, err
	}
	sum = Summary{
		Ticker:       ticker,
		SecurityType: SecurityType(q.QuoteType),
		QuoteType:    q.QuoteType,
		MarketState:  q.MarketState,
		Market:       DetectMarket(ticker, q.FullExchangeName, q.Currency),
		Company: Company{
			LongName:  firstNonEmpty(q.LongName, info.LongName),
			ShortName: q.ShortName,
			Exchange:  q.Exchange,
			Currency:  q.Currency,
		},
		Metrics: Metrics{
			MarketCap:   num(float64(q.MarketCap)),
			TrailingPE:  num(q.TrailingPE),
			ForwardPE:   num(q.ForwardPE),
			PriceToBook: num(q.PriceToBook),
			EPS:         num(q.EPS),
		},
		Price: PriceBlock{
			LastPrice:            num(q.Price),
			PreviousClose:        num(q.PreviousClose),
			Open:                 num(q.Open),
			DayLow:               num(q.DayLow),
			DayHigh:              num(q.DayHigh),
			FiftyTwoWeekLow:      num(q.FiftyTwoWeekLow),
			FiftyTwoWeekHigh:     num(q.FiftyTwoWeekHigh),
			FiftyDayAverage:      num(q.FiftyDayAverage),
			TwoHundredDayAverage: num(q.TwoHundredDayAvg),
			Volume:               num(float64(q.Volume)),
			AvgVolume:            num(float64(q.AvgVolume3Month)),
			Change:               num(q.Change),
			ChangePercent:        num(q.ChangePercent),
		},
		Dividends: Dividends{DividendYield: num(q.DividendYield)},
	}
	if !q.MarketTime.IsZero() && q.MarketTime.Unix() > 0 {
		sum.MarketTime = q.MarketTime.Format(time.RFC3339)
	}
	s.store(ctx, ticker, "summary", "summary", sum, 1, TTLSummary)
	return &sum, false, nil
}

// MarketStatus labels ticker's market at the current instant.
func (s *Service) MarketStatus(ticker string) MarketStatus {
	ticker = marketsession.Normalize(ticker)
	now := s.now()
	st := s.sessions.Status(ticker, now)
	start, end := s.sessions.Session(ticker, now)
	return MarketStatus{
		Ticker:       ticker,
		IsOpen:       st.Open,
		Reason:       st.Reason,
		Market:       st.Market,
		SessionStart: time.UnixMilli(start).UTC(),
		SessionEnd:   time.UnixMilli(end).UTC(),
		Timestamp:    now.UTC(),
	}
}

// Purge deletes expired cache rows.
func (s *Service) Purge(ctx context.Context) (int64, error) {
	if s.cache == nil {
		return 0, nil
	}
	return s.cache.PurgeExpired(ctx)
}

func (s *Service) quote(ctx context.Context, ticker string) (*yahoo.Quote, error) {
	start := time.Now()
	q, err := s.src.Quote(ctx, ticker)
	s.upstreamDone(start, err)
	if err != nil {
		if errors.Is(err, yahoo.ErrSymbolNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrInvalidTicker, ticker)
		}
		return nil, err
	}
	return q, nil
}

func (s *Service) bars(ctx context.Context, ticker string, start, end time.Time, interval string) ([]yahoo.Bar, error) {
	t0 := time.Now()
	bars, err := s.src.History(ctx, ticker, start, end, interval)
	s.upstreamDone(t0, err)
	return bars, err
}

func (s *Service) upstreamDone(start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.UpstreamLatency.RecordDuration(time.Since(start))
	if err != nil {
		s.metrics.IncrementErrors()
	}
}

// cached decodes a live cache row into out. Cache failures read as misses.
func (s *Service) cached(ctx context.Context, ticker, period, dataType string, out any) bool {
	if s.cache == nil {
		return false
	}
	start := time.Now()
	e, err := s.cache.GetStockData(ctx, ticker, period, dataType)
	if s.metrics != nil {
		s.metrics.DBLatency.RecordDuration(time.Since(start))
	}
	if err != nil {
		if !errors.Is(err, db.ErrNotFound) {
			log.Printf("data: cache read %s/%s/%s: %v", ticker, period, dataType, err)
		}
		if s.metrics != nil {
			s.metrics.CacheMiss()
		}
		return false
	}
	if err := json.Unmarshal(e.Data, out); err != nil {
		log.Printf("data: cache decode %s/%s/%s: %v", ticker, period, dataType, err)
		return false
	}
	if s.metrics != nil {
		s.metrics.CacheHit()
	}
	return true
}

func (s *Service) store(ctx context.Context, ticker, period, dataType string, v any, points int, ttl time.Duration) {
	if s.cache == nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		log.Printf("data: cache encode %s/%s: %v", ticker, dataType, err)
		return
	}
	if err := s.cache.SetStockData(ctx, ticker, period, dataType, b, points, ttl); err != nil {
		log.Printf("data: cache write %s/%s/%s: %v", ticker, period, dataType, err)
	}
}

func num(v float64) *float64 {
	if v == 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
