package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"market-dashboard/internal/chart"
	"market-dashboard/internal/chat"
	"market-dashboard/internal/data"
	"market-dashboard/internal/forecast"
	"market-dashboard/internal/marketsession"
	"market-dashboard/internal/sentiment"
	"market-dashboard/internal/settings"
	"market-dashboard/pkg/db"

	"github.com/gin-gonic/gin"
)

func respondOK(c *gin.Context, status int, payload any, message string) {
	c.JSON(status, gin.H{
		"success":   true,
		"message":   message,
		"data":      payload,
		"timestamp": time.Now().UTC(),
	})
}

func respondError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, gin.H{
		"success": false,
		"code":    code,
		"error":   http.StatusText(status),
		"message": msg,
	})
}

// fail maps a service error to its HTTP status.
func (s *Server) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, data.ErrInvalidTicker):
		respondError(c, http.StatusNotFound, "INVALID_TICKER", err.Error())
	case errors.Is(err, data.ErrNoData):
		respondError(c, http.StatusNotFound, "NO_DATA", err.Error())
	case errors.Is(err, data.ErrInvalidPeriod):
		respondError(c, http.StatusBadRequest, "INVALID_PERIOD", err.Error())
	case errors.Is(err, forecast.ErrUnknownModel):
		respondError(c, http.StatusBadRequest, "UNKNOWN_MODEL", err.Error())
	case errors.Is(err, forecast.ErrInvalidForecastLen):
		respondError(c, http.StatusBadRequest, "INVALID_FORECAST_DAYS", err.Error())
	case errors.Is(err, forecast.ErrInsufficientData), errors.Is(err, sentiment.ErrNoHistory):
		respondError(c, http.StatusUnprocessableEntity, "INSUFFICIENT_DATA", err.Error())
	case errors.Is(err, forecast.ErrModelUnavailable), errors.Is(err, forecast.ErrUpstreamContent):
		respondError(c, http.StatusServiceUnavailable, "FORECAST_UNAVAILABLE", "prediction service temporarily unavailable")
	case errors.Is(err, sentiment.ErrLLMUnavailable), errors.Is(err, sentiment.ErrUpstreamContent):
		respondError(c, http.StatusServiceUnavailable, "ANALYSIS_UNAVAILABLE", sentiment.ErrLLMUnavailable.Error())
	case errors.Is(err, chat.ErrSessionNotFound):
		respondError(c, http.StatusBadRequest, "INVALID_SESSION", err.Error())
	case errors.Is(err, chat.ErrEmptyMessage):
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		respondError(c, http.StatusGatewayTimeout, "TIMEOUT", "request timed out")
	default:
		log.Printf("[API] %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}

func (s *Server) unavailable(c *gin.Context, what string) {
	respondError(c, http.StatusServiceUnavailable, "NOT_CONFIGURED", what+" is not configured")
}

func cacheHeader(c *gin.Context, hit bool) {
	if hit {
		c.Header("X-Cache", "HIT")
	} else {
		c.Header("X-Cache", "MISS")
	}
}

func (s *Server) getTicker(c *gin.Context) {
	info, err := s.Data.Info(c.Request.Context(), c.Param("ticker"))
	if err != nil {
		s.fail(c, err)
		return
	}
	respondOK(c, http.StatusOK, info, "Ticker "+info.Symbol+" is valid")
}

func (s *Server) getHistory(c *gin.Context) {
	period := c.DefaultQuery("period", "1y")
	h, hit, err := s.Data.History(c.Request.Context(), c.Param("ticker"), period)
	if err != nil {
		s.fail(c, err)
		return
	}
	cacheHeader(c, hit)
	respondOK(c, http.StatusOK, h, fmt.Sprintf("Retrieved %d data points for %s", h.DataPoints, h.Ticker))
}

func (s *Server) getSummary(c *gin.Context) {
	sum, hit, err := s.Data.Summary(c.Request.Context(), c.Param("ticker"))
	if err != nil {
		s.fail(c, err)
		return
	}
	cacheHeader(c, hit)
	respondOK(c, http.StatusOK, sum, "Summary for "+sum.Ticker)
}

func (s *Server) getMarketStatus(c *gin.Context) {
	ticker := marketsession.Normalize(c.Param("ticker"))
	if ticker == "" {
		respondError(c, http.StatusBadRequest, "INVALID_TICKER", "ticker is required")
		return
	}
	st := s.Data.MarketStatus(ticker)
	state := "closed"
	if st.IsOpen {
		state = "open"
	}
	respondOK(c, http.StatusOK, st, st.Market.Name+" is "+state)
}

func (s *Server) getModels(c *gin.Context) {
	if s.Forecast == nil {
		s.unavailable(c, "forecasting")
		return
	}
	models := s.Forecast.Models(c.Request.Context())
	available := 0
	for _, m := range models {
		if m.Available {
			available++
		}
	}
	respondOK(c, http.StatusOK, gin.H{
		"models":  models,
		"default": forecast.DefaultModel,
	}, fmt.Sprintf("Found %d available models", available))
}

func (s *Server) predict(c *gin.Context) {
	if s.Forecast == nil {
		s.unavailable(c, "forecasting")
		return
	}
	var req forecast.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	if strings.TrimSpace(req.Ticker) == "" {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "ticker is required")
		return
	}
	res, err := s.Forecast.Predict(c.Request.Context(), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	respondOK(c, http.StatusOK, res, fmt.Sprintf("Prediction completed for %s using %s", res.CompanyName, res.ModelName))
}

func (s *Server) getSentiment(c *gin.Context) {
	if s.Sentiment == nil {
		s.unavailable(c, "sentiment analysis")
		return
	}
	include := true
	if raw := c.Query("include_predictions"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "include_predictions must be a boolean")
			return
		}
		include = v
	}
	report, cached, err := s.Sentiment.Analyze(c.Request.Context(), sentiment.Request{
		Ticker:             c.Param("ticker"),
		Period:             c.DefaultQuery("period", sentiment.DefaultPeriod),
		IncludePredictions: include,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	cacheHeader(c, cached)
	if cached {
		respondOK(c, http.StatusOK, report, "Cached AI sentiment analysis for "+report.Ticker)
		return
	}
	respondOK(c, http.StatusOK, report, "AI sentiment analysis completed for "+report.Ticker)
}

// getChart renders a historical chart server-side and returns the figure.
// Query: period, ma (comma separated windows), rsi, volume, theme and, for a
// forecast overlay, forecast=true with optional model and days.
func (s *Server) getChart(c *gin.Context) {
	ctx := c.Request.Context()
	h, _, err := s.Data.History(ctx, c.Param("ticker"), c.DefaultQuery("period", "1y"))
	if err != nil {
		s.fail(c, err)
		return
	}

	cfg, err := chartConfigFromQuery(c)
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	var pred *chart.Prediction
	if cfg.ShowPredictions && c.Query("forecast") == "true" {
		if s.Forecast == nil {
			s.unavailable(c, "forecasting")
			return
		}
		days, _ := strconv.Atoi(c.DefaultQuery("days", "0"))
		res, err := s.Forecast.Predict(ctx, forecast.Request{
			Ticker:       h.Ticker,
			Model:        c.Query("model"),
			ForecastDays: days,
			Period:       h.Period,
		})
		if err != nil {
			s.fail(c, err)
			return
		}
		pred = res.Prediction()
	}

	host := chart.NewMemoryHost()
	r := chart.NewRenderer(host, chart.SessionFor(s.Data.Sessions().Lookup(h.Ticker)))
	if !r.Create(h.CompanyName+" ("+h.Ticker+")", h.Candles(), cfg, pred) {
		respondError(c, http.StatusInternalServerError, "RENDER_FAILED", "chart could not be rendered")
		return
	}
	raw, err := host.JSON()
	if err != nil {
		s.fail(c, err)
		return
	}
	respondOK(c, http.StatusOK, json.RawMessage(raw), fmt.Sprintf("Chart for %s with %d candles", h.Ticker, h.DataPoints))
}

func chartConfigFromQuery(c *gin.Context) (chart.Config, error) {
	cfg := chart.DefaultConfig()
	if raw, ok := c.GetQuery("ma"); ok {
		cfg.MovingAverages = nil
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			w, err := strconv.Atoi(part)
			if err != nil {
				return cfg, fmt.Errorf("bad moving average %q", part)
			}
			cfg.MovingAverages = append(cfg.MovingAverages, w)
		}
	}
	for name, dst := range map[string]*bool{"rsi": &cfg.ShowRSI, "volume": &cfg.ShowVolume, "predictions": &cfg.ShowPredictions} {
		raw, ok := c.GetQuery(name)
		if !ok {
			continue
		}
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return cfg, fmt.Errorf("%s must be a boolean", name)
		}
		*dst = v
	}
	if theme := c.Query("theme"); theme != "" {
		cfg.Theme = theme
	}
	return cfg.Normalize(), nil
}

func (s *Server) getMetrics(c *gin.Context) {
	body := gin.H{}
	if s.Metrics != nil {
		body["metrics"] = s.Metrics.GetSnapshot()
	}
	if s.Hub != nil {
		body["active_streams"] = s.Hub.Active()
	}
	respondOK(c, http.StatusOK, body, "System metrics")
}

func (s *Server) settingsStore(c *gin.Context) (settings.Store, bool) {
	if s.DB == nil {
		s.unavailable(c, "settings storage")
		return nil, false
	}
	return s.DB.Settings(CurrentClientID(c)), true
}

func (s *Server) getSettings(c *gin.Context) {
	store, ok := s.settingsStore(c)
	if !ok {
		return
	}
	st, err := settings.Load(c.Request.Context(), store)
	if err != nil {
		s.fail(c, err)
		return
	}
	respondOK(c, http.StatusOK, st, "Settings loaded")
}

func (s *Server) putSettings(c *gin.Context) {
	store, ok := s.settingsStore(c)
	if !ok {
		return
	}
	var st settings.Settings
	if err := c.ShouldBindJSON(&st); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	st = st.Normalize()
	if err := settings.Save(c.Request.Context(), store, st); err != nil {
		s.fail(c, err)
		return
	}
	respondOK(c, http.StatusOK, st, "Settings saved")
}

func (s *Server) deleteSettings(c *gin.Context) {
	store, ok := s.settingsStore(c)
	if !ok {
		return
	}
	if err := settings.Reset(c.Request.Context(), store); err != nil {
		s.fail(c, err)
		return
	}
	respondOK(c, http.StatusOK, settings.Defaults(), "Settings reset")
}

type chatSessionRequest struct {
	Ticker              string `json:"ticker" binding:"required"`
	Period              string `json:"period"`
	SentimentAnalysisID int64  `json:"sentiment_analysis_id"`
}

type chatMessageRequest struct {
	SessionID string `json:"session_id" binding:"required"`
	Message   string `json:"message"`
}

func (s *Server) createChatSession(c *gin.Context) {
	if s.Chat == nil {
		s.unavailable(c, "chat")
		return
	}
	var req chatSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	id, err := s.Chat.CreateSession(c.Request.Context(), req.Ticker, req.Period, req.SentimentAnalysisID)
	if err != nil {
		s.fail(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"session_id": id}, "Chat session created successfully")
}

func (s *Server) sendChatMessage(c *gin.Context) {
	if s.Chat == nil {
		s.unavailable(c, "chat")
		return
	}
	var req chatMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	reply, err := s.Chat.Send(c.Request.Context(), req.SessionID, req.Message)
	if err != nil {
		s.fail(c, err)
		return
	}
	respondOK(c, http.StatusOK, reply, "Message processed")
}

func (s *Server) getChatHistory(c *gin.Context) {
	if s.Chat == nil {
		s.unavailable(c, "chat")
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "limit must be a positive integer")
			return
		}
		limit = n
	}
	msgs, err := s.Chat.History(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"messages": msgs}, fmt.Sprintf("Loaded %d messages", len(msgs)))
}

// clearAll empties chat and cache tables. Client settings survive.
func (s *Server) clearAll(c *gin.Context) {
	if s.DB == nil {
		s.unavailable(c, "database")
		return
	}
	before, err := s.DB.ClearAll(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	log.Printf("[API] cleared all tables: %+v", before)
	respondOK(c, http.StatusOK, gin.H{"before": before, "after": db.TableCounts{}}, "All tables cleared")
}
