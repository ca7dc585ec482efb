package api

import (
	"net/http"
	"time"

	"market-dashboard/internal/chat"
	"market-dashboard/internal/data"
	"market-dashboard/internal/forecast"
	"market-dashboard/internal/monitor"
	"market-dashboard/internal/relay"
	"market-dashboard/internal/sentiment"
	"market-dashboard/pkg/db"

	"github.com/gin-gonic/gin"
)

// Options wires the HTTP surface. Forecast, Sentiment, Chat and Hub may be
// nil; their routes then answer 503.
type Options struct {
	Data      *data.Service
	Forecast  *forecast.Service
	Sentiment *sentiment.Service
	Chat      *chat.Service
	Hub       *relay.Hub
	DB        *db.Database
	Metrics   *monitor.SystemMetrics
	JWTSecret string
	Version   string

	// RateLimit is requests per second per client IP; zero means 20.
	RateLimit float64
	RateBurst int
	Timeout   time.Duration
}

// Server wires HTTP and websocket endpoints around the dashboard services.
type Server struct {
	Router    *gin.Engine
	Data      *data.Service
	Forecast  *forecast.Service
	Sentiment *sentiment.Service
	Chat      *chat.Service
	Hub       *relay.Hub
	DB        *db.Database
	Metrics   *monitor.SystemMetrics
	JWTSecret string
	Version   string

	timeout time.Duration
	limiter *ipLimiter
}

func NewServer(opts Options) *Server {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	r := gin.New()

	// Middleware stack (order matters!)
	r.Use(gin.Recovery())              // Panic recovery (first)
	r.Use(RequestIDMiddleware())       // Request ID tracking
	r.Use(RequestLogger(opts.Metrics)) // Request logging (after ID is set)
	r.Use(CORSMiddleware())            // CORS (last before routes)

	s := &Server{
		Router:    r,
		Data:      opts.Data,
		Forecast:  opts.Forecast,
		Sentiment: opts.Sentiment,
		Chat:      opts.Chat,
		Hub:       opts.Hub,
		DB:        opts.DB,
		Metrics:   opts.Metrics,
		JWTSecret: opts.JWTSecret,
		Version:   opts.Version,
		timeout:   opts.Timeout,
		limiter:   newIPLimiter(opts.RateLimit, opts.RateBurst),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)

	// Sockets stay outside the timeout middleware.
	s.Router.GET("/ws/chart", s.chartSocket)
	s.Router.GET("/ws/:ticker", s.tickSocket)

	api := s.Router.Group("/api")
	api.Use(RateLimitMiddleware(s.limiter))
	api.Use(TimeoutMiddleware(s.timeout))
	{
		api.GET("/metrics", s.getMetrics)
		api.POST("/session", s.createSession)

		fin := api.Group("/financial")
		{
			fin.GET("/ticker/:ticker", s.getTicker)
			fin.GET("/history/:ticker", s.getHistory)
			fin.GET("/summary/:ticker", s.getSummary)
			fin.GET("/market/:ticker", s.getMarketStatus)
			fin.GET("/models", s.getModels)
			fin.POST("/predict", s.predict)
			fin.GET("/sentiment/:ticker", s.getSentiment)
		}

		api.GET("/chart/:ticker", s.getChart)

		// Follow-up questions on a sentiment analysis
		chatGrp := api.Group("/chat")
		{
			chatGrp.POST("/sessions", s.createChatSession)
			chatGrp.POST("/message", s.sendChatMessage)
			chatGrp.GET("/sessions/:id/messages", s.getChatHistory)
		}

		admin := api.Group("/admin")
		admin.Use(AuthMiddleware(s.JWTSecret))
		{
			admin.POST("/clear-all", s.clearAll)
		}

		// Client settings
		protected := api.Group("/settings")
		protected.Use(AuthMiddleware(s.JWTSecret))
		{
			protected.GET("", s.getSettings)
			protected.PUT("", s.putSettings)
			protected.DELETE("", s.deleteSettings)
		}
	}
}

func (s *Server) health(c *gin.Context) {
	body := gin.H{"status": "ok", "version": s.Version, "timestamp": time.Now().UTC()}
	if s.Hub != nil {
		body["streams"] = len(s.Hub.Active())
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) Start(addr string) error {
	return s.Router.Run(addr)
}
