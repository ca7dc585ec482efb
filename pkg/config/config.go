package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/denisbrodbeck/machineid"
	"github.com/joho/godotenv"
)

// appID salts the machine-bound fallback secret.
const appID = "market-dashboard"

// Config holds environment-driven settings for the dashboard.
type Config struct {
	Port string

	// Database
	DBPath string

	// Market calendar override (YAML); empty uses the built-in table.
	MarketsFile string

	// Streaming
	StreamURL          string
	StreamOutsideHours bool

	// Yahoo REST throttling
	YahooRPS   float64
	YahooBurst int

	// Forecast worker (gRPC); empty disables Chronos models.
	ForecastWorkerAddr string

	// Sentiment
	LLMProvider   string // "mock" (default) or "openrouter"
	LLMModel      string
	LLMAPIKey     string
	LLMBaseURL    string
	LLMTimeout    time.Duration
	NewsEnabled   bool
	NewsSearchURL string

	// HTTP
	RateLimit      float64
	RateBurst      int
	RequestTimeout time.Duration

	// Maintenance schedule (cron spec, seconds optional)
	PurgeSchedule    string
	TickMaxAge       time.Duration
	ClearDBOnStartup bool

	// Auth
	JWTSecret string

	// Localization
	Language string // "en" or "zh"
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	// Database path: prefer DB_PATH, then DATABASE_PATH for backward compatibility.
	dbPath := getEnv("DB_PATH", "")
	if dbPath == "" {
		dbPath = getEnv("DATABASE_PATH", "./data/dashboard.db")
	}

	apiKey := getEnv("OPENROUTER_API_KEY", "")
	if apiKey == "" {
		apiKey = os.Getenv("LLM_API_KEY")
	}

	return &Config{
		Port:               getEnv("PORT", "8080"),
		DBPath:             dbPath,
		MarketsFile:        getEnv("MARKETS_FILE", ""),
		StreamURL:          getEnv("YAHOO_STREAM_URL", ""),
		StreamOutsideHours: getEnvBool("STREAM_OUTSIDE_HOURS", false),
		YahooRPS:           getEnvFloat("YAHOO_RPS", 2),
		YahooBurst:         getEnvInt("YAHOO_BURST", 4),
		ForecastWorkerAddr: getEnv("FORECAST_WORKER_ADDR", ""),
		LLMProvider:        strings.ToLower(getEnv("LLM_PROVIDER", "mock")),
		LLMModel:           getEnv("LLM_MODEL", ""),
		LLMAPIKey:          apiKey,
		LLMBaseURL:         getEnv("LLM_BASE_URL", ""),
		LLMTimeout:         getEnvDuration("LLM_TIMEOUT", 60*time.Second),
		NewsEnabled:        getEnvBool("NEWS_ENABLED", true),
		NewsSearchURL:      getEnv("NEWS_SEARCH_URL", ""),
		RateLimit:          getEnvFloat("API_RATE_LIMIT", 20),
		RateBurst:          getEnvInt("API_RATE_BURST", 50),
		RequestTimeout:     getEnvDuration("API_TIMEOUT", 90*time.Second),
		PurgeSchedule:      getEnv("PURGE_SCHEDULE", "@every 15m"),
		TickMaxAge:         getEnvDuration("TICK_MAX_AGE", time.Hour),
		ClearDBOnStartup:   getEnvBool("CLEAR_DB_ON_STARTUP", false),
		JWTSecret:          jwtSecret(),
		Language:           getEnv("LANGUAGE", "en"),
	}, nil
}

// jwtSecret prefers JWT_SECRET and falls back to a secret derived from the
// machine id, so tokens survive restarts on the same host.
func jwtSecret() string {
	if v := os.Getenv("JWT_SECRET"); v != "" {
		return v
	}
	id, err := machineid.ProtectedID(appID)
	if err != nil {
		log.Printf("config: machine id unavailable, using dev secret: %v", err)
		return "dev-secret"
	}
	return id
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitAndTrim(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// Watchlist parses a comma separated ticker list, upper-cased.
func Watchlist(val string) []string {
	out := splitAndTrim(val)
	for i := range out {
		out[i] = strings.ToUpper(out[i])
	}
	return out
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

// getEnvDuration accepts Go durations ("90s") or bare seconds.
func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return def
}
