package sentiment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"market-dashboard/internal/data"
	"market-dashboard/internal/forecast"
	"market-dashboard/internal/monitor"
	"market-dashboard/pkg/db"
)

var (
	ErrNoHistory       = errors.New("no price history to analyse")
	ErrLLMUnavailable  = errors.New("analysis service temporarily unavailable")
	ErrUpstreamContent = errors.New("analysis service returned an error")
)

const (
	DefaultPeriod = "2y"
	CacheTTL      = 6 * time.Hour
	Disclaimer    = "This analysis is for educational purposes only and not investment advice. Always conduct your own research before making investment decisions."

	task      = "financial_sentiment"
	newsLimit = 5
)

// Market is the data the analysis reads. *data.Service satisfies it.
type Market interface {
	Info(ctx context.Context, ticker string) (*data.TickerInfo, error)
	History(ctx context.Context, ticker, period string) (*data.History, bool, error)
}

// ModelLister reports forecast models. *forecast.Service satisfies it.
type ModelLister interface {
	Models(ctx context.Context) []forecast.ModelInfo
}

// Cache persists finished reports. *db.CacheQueries satisfies it.
type Cache interface {
	GetSentiment(ctx context.Context, ticker, period, model string) (*db.SentimentEntry, error)
	SetSentiment(ctx context.Context, e db.SentimentEntry, ttl time.Duration) (int64, error)
}

// Request selects what to analyse.
type Request struct {
	Ticker             string
	Period             string
	IncludePredictions bool
}

type DataSources struct {
	FinancialData     bool `json:"financial_data"`
	TechnicalAnalysis bool `json:"technical_analysis"`
	Predictions       bool `json:"predictions"`
	NewsData          bool `json:"news_data"`
}

type Metadata struct {
	Ticker            string      `json:"ticker"`
	AnalysisTimestamp time.Time   `json:"analysis_timestamp"`
	DataPeriod        string      `json:"data_period"`
	LLMModel          string      `json:"llm_model"`
	ProcessingTimeMs  float64     `json:"processing_time_ms"`
	TotalTokens       int         `json:"total_tokens"`
	DataSources       DataSources `json:"data_sources"`
	AnalysisID        int64       `json:"analysis_id,omitempty"`
}

// Report is the sentiment endpoint payload.
type Report struct {
	Ticker            string     `json:"ticker"`
	CompanyName       string     `json:"company_name"`
	AnalysisTimestamp time.Time  `json:"analysis_timestamp"`
	SentimentAnalysis Sections   `json:"sentiment_analysis"`
	Sentiment         Sentiment  `json:"sentiment"`
	Risks             []Risk     `json:"risks,omitempty"`
	Catalysts         []Catalyst `json:"catalysts,omitempty"`
	News              []Headline `json:"news,omitempty"`
	Metadata          Metadata   `json:"metadata"`
	Disclaimer        string     `json:"disclaimer"`
}

func (r *Report) UnmarshalJSON(b []byte) error {
	type alias Report
	aux := struct {
		*alias
		Sentiment json.RawMessage `json:"sentiment"`
	}{alias: (*alias)(r)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	s, err := decodeSentiment(aux.Sentiment)
	if err != nil {
		return err
	}
	r.Sentiment = s
	return nil
}

// Options wires a Service. News, Models, Cache and Metrics are optional.
type Options struct {
	Market  Market
	Models  ModelLister
	LLM     LLM
	News    NewsProvider
	Cache   Cache
	Metrics *monitor.SystemMetrics
	// Model is the LLM model id; it is part of the cache key.
	Model string
}

// Service runs and caches sentiment analyses.
type Service struct {
	opts Options
	now  func() time.Time
}

func NewService(opts Options) *Service {
	if opts.LLM == nil {
		opts.LLM = MockLLM{}
	}
	if opts.Model == "" {
		opts.Model = DefaultLLMModel
	}
	return &Service{opts: opts, now: time.Now}
}

// Analyze returns the report for req, from cache when a fresh one exists.
// The second return reports a cache hit.
func (s *Service) Analyze(ctx context.Context, req Request) (*Report, bool, error) {
	if req.Period == "" {
		req.Period = DefaultPeriod
	}
	if !data.ValidPeriod(req.Period) {
		return nil, false, fmt.Errorf("%w: %s", data.ErrInvalidPeriod, req.Period)
	}
	info, err := s.opts.Market.Info(ctx, req.Ticker)
	if err != nil {
		return nil, false, err
	}

	if r := s.cached(ctx, info.Symbol, req.Period); r != nil {
		return r, true, nil
	}

	h, _, err := s.opts.Market.History(ctx, info.Symbol, req.Period)
	if err != nil {
		return nil, false, err
	}
	c, err := BuildContext(info, h)
	if err != nil {
		return nil, false, err
	}
	if req.IncludePredictions {
		c.Predictions = s.predictionContext(ctx)
	}
	if s.opts.News != nil {
		news, err := s.opts.News.Headlines(ctx, info.Symbol, newsLimit)
		if err != nil {
			log.Printf("sentiment: news for %s unavailable: %v", info.Symbol, err)
		}
		c.News = news
	}

	start := s.now()
	comp, err := s.opts.LLM.Complete(ctx, ChatRequest{
		Task:        task,
		Model:       s.opts.Model,
		Prompt:      BuildPrompt(c),
		Temperature: 0.1,
		MaxTokens:   1500,
	})
	elapsed := s.now().Sub(start)
	if s.opts.Metrics != nil {
		s.opts.Metrics.SentimentLatency.RecordDuration(elapsed)
	}
	if err != nil {
		s.countError()
		return nil, false, err
	}
	if IsErrorMarker(comp.Content) {
		s.countError()
		return nil, false, fmt.Errorf("%w: %s", ErrUpstreamContent, strings.TrimSpace(comp.Content))
	}

	a := Parse(comp.Content)
	now := s.now().UTC()
	r := &Report{
		Ticker:            info.Symbol,
		CompanyName:       info.LongName,
		AnalysisTimestamp: now,
		SentimentAnalysis: a.Sections,
		Sentiment:         a.Sentiment,
		Risks:             a.Risks,
		Catalysts:         a.Catalysts,
		News:              c.News,
		Metadata: Metadata{
			Ticker:            info.Symbol,
			AnalysisTimestamp: now,
			DataPeriod:        req.Period,
			LLMModel:          comp.Model,
			ProcessingTimeMs:  float64(elapsed.Microseconds()) / 1000,
			TotalTokens:       comp.Usage.TotalTokens,
			DataSources: DataSources{
				FinancialData:     true,
				TechnicalAnalysis: true,
				Predictions:       c.Predictions != nil && c.Predictions.Available,
				NewsData:          len(c.News) > 0,
			},
		},
		Disclaimer: Disclaimer,
	}
	s.store(ctx, req.Period, r, comp.Content)
	return r, false, nil
}

func (s *Service) predictionContext(ctx context.Context) *PredictionContext {
	if s.opts.Models == nil {
		return nil
	}
	n := 0
	for _, m := range s.opts.Models.Models(ctx) {
		if m.Available {
			n++
		}
	}
	if n == 0 {
		return &PredictionContext{Available: false}
	}
	return &PredictionContext{
		Available:   true,
		ModelsCount: n,
		Note:        "Prediction integration available via /api/financial/predict endpoint",
	}
}

func (s *Service) cached(ctx context.Context, ticker, period string) *Report {
	if s.opts.Cache == nil {
		return nil
	}
	e, err := s.opts.Cache.GetSentiment(ctx, ticker, period, s.opts.Model)
	if err != nil {
		if !errors.Is(err, db.ErrNotFound) {
			log.Printf("sentiment: cache read %s: %v", ticker, err)
		}
		if s.opts.Metrics != nil {
			s.opts.Metrics.CacheMiss()
		}
		return nil
	}
	var r Report
	if err := json.Unmarshal(e.Data, &r); err != nil {
		log.Printf("sentiment: cache entry %d unreadable: %v", e.ID, err)
		return nil
	}
	r.Metadata.AnalysisID = e.ID
	if s.opts.Metrics != nil {
		s.opts.Metrics.CacheHit()
	}
	return &r
}

func (s *Service) store(ctx context.Context, period string, r *Report, text string) {
	if s.opts.Cache == nil {
		return
	}
	payload, err := json.Marshal(r)
	if err != nil {
		log.Printf("sentiment: encode %s: %v", r.Ticker, err)
		return
	}
	id, err := s.opts.Cache.SetSentiment(ctx, db.SentimentEntry{
		Ticker:           r.Ticker,
		Period:           period,
		Model:            s.opts.Model,
		Data:             payload,
		Text:             text,
		ProcessingTimeMs: r.Metadata.ProcessingTimeMs,
	}, CacheTTL)
	if err != nil {
		log.Printf("sentiment: cache write %s: %v", r.Ticker, err)
		return
	}
	r.Metadata.AnalysisID = id
	log.Printf("sentiment: cached %s period=%s id=%d", r.Ticker, period, id)
}

func (s *Service) countError() {
	if s.opts.Metrics != nil {
		s.opts.Metrics.IncrementErrors()
	}
}
