package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"market-dashboard/internal/api"
	"market-dashboard/internal/chat"
	"market-dashboard/internal/data"
	"market-dashboard/internal/events"
	"market-dashboard/internal/forecast"
	"market-dashboard/internal/marketsession"
	"market-dashboard/internal/monitor"
	"market-dashboard/internal/relay"
	"market-dashboard/internal/scheduler"
	"market-dashboard/internal/sentiment"
	"market-dashboard/pkg/config"
	"market-dashboard/pkg/db"
	"market-dashboard/pkg/i18n"
	"market-dashboard/pkg/market/yahoo"
)

func newServeCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if port, _ := cmd.Flags().GetString("port"); port != "" {
				cfg.Port = port
			}
			return serve(cfg)
		},
	}
	cmd.Flags().String("port", "", "Listen port, overrides PORT")
	return cmd
}

func serve(cfg *config.Config) error {
	log.Println(i18n.Get("Starting"))
	log.Printf(i18n.Get("ConfigLoaded"), cfg.Port)
	log.Printf(i18n.Get("UsingDBPath"), cfg.DBPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Printf(i18n.Get("DBInitFailed"), err)
		return err
	}
	defer database.Close()
	if err := db.ApplyMigrations(database); err != nil {
		log.Printf(i18n.Get("DBMigrationsFailed"), err)
		return err
	}
	if cfg.ClearDBOnStartup {
		if n, err := database.ClearAll(ctx); err != nil {
			log.Printf(i18n.Get("DBClearFailed"), err)
		} else {
			log.Printf(i18n.Get("DBCleared"), n.ChatMessages, n.ChatSessions, n.StockCache, n.SentimentCache)
		}
	}

	metrics := monitor.NewSystemMetrics()
	log.Println(i18n.Get("SystemMetricsInit"))

	var markets []marketsession.Market
	if cfg.MarketsFile != "" {
		if markets, err = marketsession.LoadFile(cfg.MarketsFile); err != nil {
			log.Printf(i18n.Get("MarketsLoadFailed"), cfg.MarketsFile, err)
		} else {
			log.Printf(i18n.Get("MarketsLoaded"), len(markets), cfg.MarketsFile)
		}
	}
	sessions := marketsession.New(markets)

	dataSvc := data.NewService(yahoo.NewClient(cfg.YahooRPS, cfg.YahooBurst), database.Cache(), sessions, metrics)

	// Forecast models
	registry := forecast.NewRegistry(forecast.NaiveDrift{})
	if cfg.ForecastWorkerAddr != "" {
		worker, err := forecast.NewWorkerClient(cfg.ForecastWorkerAddr)
		if err != nil {
			log.Printf(i18n.Get("ForecastWorkerInitFailed"), err)
		} else {
			defer worker.Close()
			for _, m := range forecast.ChronosModels(worker) {
				registry.Register(m)
			}
			log.Printf(i18n.Get("ForecastWorkerEnabled"), cfg.ForecastWorkerAddr)
		}
	} else {
		log.Println(i18n.Get("ForecastWorkerDisabled"))
	}
	forecastSvc := forecast.NewService(registry, dataSvc, sessions, metrics)

	// Sentiment
	llm, err := sentiment.NewLLM(sentiment.LLMConfig{
		Provider: cfg.LLMProvider,
		APIKey:   cfg.LLMAPIKey,
		BaseURL:  cfg.LLMBaseURL,
		Timeout:  cfg.LLMTimeout,
	})
	if err != nil {
		log.Printf(i18n.Get("LLMInitFailed"), err)
		llm = sentiment.MockLLM{}
	}
	var news sentiment.NewsProvider
	if cfg.NewsEnabled {
		news = sentiment.NewYahooNews(cfg.NewsSearchURL)
		log.Println(i18n.Get("NewsEnabled"))
	}
	sentimentSvc := sentiment.NewService(sentiment.Options{
		Market:  dataSvc,
		Models:  forecastSvc,
		LLM:     llm,
		News:    news,
		Cache:   database.Cache(),
		Metrics: metrics,
		Model:   cfg.LLMModel,
	})
	log.Printf(i18n.Get("LLMProvider"), cfg.LLMProvider, cfg.LLMModel)
	chatSvc := chat.NewService(chat.Options{
		Store:    database.Chat(),
		Analyses: database.Cache(),
		LLM:      llm,
		Model:    cfg.LLMModel,
		Metrics:  metrics,
	})

	// Live relay
	bus := events.NewBus()
	hub := relay.NewHub(relay.Options{
		Bus:                bus,
		Upstream:           yahoo.NewStreamer(cfg.StreamURL),
		Sessions:           sessions,
		Metrics:            metrics,
		StreamOutsideHours: cfg.StreamOutsideHours,
	})
	defer hub.Close()
	if cfg.StreamOutsideHours {
		log.Println(i18n.Get("StreamingOutsideHours"))
	}
	log.Println(i18n.Get("RelayStarted"))

	mon := &monitor.Monitor{Bus: bus, Metrics: metrics}
	mon.Start(ctx)

	sched := scheduler.New(ctx, dataSvc, hub, cfg.TickMaxAge)
	sched.Chats = chatSvc
	if err := sched.Register(cfg.PurgeSchedule); err != nil {
		log.Printf(i18n.Get("SchedulerJobFailed"), "register", err)
	} else {
		sched.Start(cfg.PurgeSchedule)
		defer sched.Stop()
	}

	srv := api.NewServer(api.Options{
		Data:      dataSvc,
		Forecast:  forecastSvc,
		Sentiment: sentimentSvc,
		Chat:      chatSvc,
		Hub:       hub,
		DB:        database,
		Metrics:   metrics,
		JWTSecret: cfg.JWTSecret,
		Version:   buildVersion(),
		RateLimit: cfg.RateLimit,
		RateBurst: cfg.RateBurst,
		Timeout:   cfg.RequestTimeout,
	})
	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf(i18n.Get("ServerListening"), cfg.Port)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigChan:
	case err := <-errCh:
		log.Printf(i18n.Get("APIServerError"), err)
		return err
	}

	log.Println(i18n.Get("ShuttingDown"))
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf(i18n.Get("APIServerError"), err)
	}
	cancel()
	log.Println(i18n.Get("ShutdownComplete"))
	return nil
}
