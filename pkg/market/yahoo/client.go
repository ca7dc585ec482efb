package yahoo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"
	"github.com/piquette/finance-go/equity"
	"github.com/piquette/finance-go/quote"
	"golang.org/x/time/rate"
)

// ErrSymbolNotFound is returned when Yahoo has no quote for a symbol.
var ErrSymbolNotFound = errors.New("yahoo: symbol not found")

// Source is the market-data surface the dashboard consumes.
type Source interface {
	History(ctx context.Context, symbol string, start, end time.Time, interval string) ([]Bar, error)
	Quote(ctx context.Context, symbol string) (*Quote, error)
}

// Client reads Yahoo Finance through finance-go. Calls share one limiter so
// bursts of dashboard requests do not trip Yahoo's throttling.
type Client struct {
	limiter *rate.Limiter
}

// NewClient allows perSecond requests with the given burst.
func NewClient(perSecond float64, burst int) *Client {
	if perSecond <= 0 {
		perSecond = 2
	}
	if burst <= 0 {
		burst = 4
	}
	return &Client{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// History returns bars in [start, end] at interval ("5m", "1h", "1d", "1wk", "1mo").
func (c *Client) History(ctx context.Context, symbol string, start, end time.Time, interval string) ([]Bar, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	params := &chart.Params{
		Symbol:   strings.ToUpper(symbol),
		Start:    datetime.New(&start),
		End:      datetime.New(&end),
		Interval: datetime.Interval(interval),
	}

	iter := chart.Get(params)
	var bars []Bar
	for iter.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		b := iter.Bar()
		open, _ := b.Open.Float64()
		high, _ := b.High.Float64()
		low, _ := b.Low.Float64()
		cls, _ := b.Close.Float64()
		adj, _ := b.AdjClose.Float64()
		// Yahoo pads sessions with empty rows.
		if cls == 0 && open == 0 {
			continue
		}
		bars = append(bars, Bar{
			Time:     time.Unix(int64(b.Timestamp), 0).UTC(),
			Open:     open,
			High:     high,
			Low:      low,
			Close:    cls,
			AdjClose: adj,
			Volume:   float64(b.Volume),
		})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("yahoo history %s: %w", symbol, err)
	}
	return bars, nil
}

// Quote fetches the quote document, enriched with equity fundamentals when
// Yahoo has them.
func (c *Client) Quote(ctx context.Context, symbol string) (*Quote, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	symbol = strings.ToUpper(symbol)
	q, err := quote.Get(symbol)
	if err != nil {
		return nil, fmt.Errorf("yahoo quote %s: %w", symbol, err)
	}
	if q == nil {
		return nil, fmt.Errorf("%w: %s", ErrSymbolNotFound, symbol)
	}

	out := &Quote{
		Symbol:           q.Symbol,
		ShortName:        q.ShortName,
		Exchange:         q.ExchangeID,
		FullExchangeName: q.FullExchangeName,
		Currency:         q.CurrencyID,
		MarketState:      string(q.MarketState),
		QuoteType:        string(q.QuoteType),
		Tradeable:        q.IsTradeable,
		Price:            q.RegularMarketPrice,
		PreviousClose:    q.RegularMarketPreviousClose,
		Change:           q.RegularMarketChange,
		ChangePercent:    q.RegularMarketChangePercent,
		Open:             q.RegularMarketOpen,
		DayHigh:          q.RegularMarketDayHigh,
		DayLow:           q.RegularMarketDayLow,
		Volume:           int64(q.RegularMarketVolume),
		AvgVolume3Month:  int64(q.AverageDailyVolume3Month),
		FiftyTwoWeekHigh: q.FiftyTwoWeekHigh,
		FiftyTwoWeekLow:  q.FiftyTwoWeekLow,
		FiftyDayAverage:  q.FiftyDayAverage,
		TwoHundredDayAvg: q.TwoHundredDayAverage,
		MarketTime:       time.Unix(int64(q.RegularMarketTime), 0).UTC(),
	}
	if out.Symbol == "" {
		out.Symbol = symbol
	}

	if out.QuoteType == "EQUITY" {
		if err := c.limiter.Wait(ctx); err != nil {
			return out, nil
		}
		if eq, err := equity.Get(symbol); err == nil && eq != nil {
			out.LongName = eq.LongName
			out.MarketCap = eq.MarketCap
			out.TrailingPE = eq.TrailingPE
			out.ForwardPE = eq.ForwardPE
			out.EPS = eq.EpsTrailingTwelveMonths
			out.DividendYield = eq.TrailingAnnualDividendYield
			out.PriceToBook = eq.PriceToBook
		}
	}
	return out, nil
}
