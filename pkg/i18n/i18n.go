package i18n

import (
	"reflect"
	"sync"
)

// Language type
type Language string

const (
	LangEN Language = "en"
	LangZH Language = "zh"
)

// Messages holds all translatable strings
type Messages struct {
	// System
	Starting           string
	ConfigLoaded       string
	UsingDBPath        string
	ServerListening    string
	ShuttingDown       string
	ShutdownComplete   string
	SystemMetricsInit  string
	ConfigLoadFailed   string
	DBInitFailed       string
	DBMigrationsFailed string
	APIServerError     string

	// Markets and streaming
	MarketsLoaded         string
	MarketsLoadFailed     string
	StreamingOutsideHours string
	RelayStarted          string

	// Forecasting
	ForecastWorkerEnabled    string
	ForecastWorkerInitFailed string
	ForecastWorkerDisabled   string

	// Sentiment
	LLMProvider   string
	LLMInitFailed string
	NewsEnabled   string

	// Maintenance
	SchedulerStarted    string
	SchedulerJobFailed  string
	CachePurged         string
	TicksPruned         string
	ChatSessionsExpired string
	DBCleared           string
	DBClearFailed       string

	// Terminal
	WatchStarted  string
	WatchStopped  string
	ExportWritten string
	ExportFailed  string
}

var (
	currentLang Language = LangEN
	mu          sync.RWMutex
	messages    *Messages
)

// English messages
var messagesEN = Messages{
	// System
	Starting:           "Starting market dashboard...",
	ConfigLoaded:       "Config loaded (Port: %s)",
	UsingDBPath:        "Using DB path: %s",
	ServerListening:    "Server listening on :%s",
	ShuttingDown:       "Shutting down gracefully...",
	ShutdownComplete:   "Shutdown complete.",
	SystemMetricsInit:  "System metrics initialized",
	ConfigLoadFailed:   "Failed to load config: %v",
	DBInitFailed:       "Failed to init database: %v",
	DBMigrationsFailed: "Failed to apply migrations: %v",
	APIServerError:     "API server error: %v",

	// Markets and streaming
	MarketsLoaded:         "Loaded %d markets from %s",
	MarketsLoadFailed:     "Failed to load markets file %s, using built-in calendar: %v",
	StreamingOutsideHours: "Live streaming enabled outside market hours",
	RelayStarted:          "Tick relay ready",

	// Forecasting
	ForecastWorkerEnabled:    "Forecast worker enabled at %s",
	ForecastWorkerInitFailed: "Forecast worker client init failed: %v",
	ForecastWorkerDisabled:   "Forecast worker not configured, serving naive models only",

	// Sentiment
	LLMProvider:   "Sentiment analysis using %s (%s)",
	LLMInitFailed: "LLM provider init failed, using mock: %v",
	NewsEnabled:   "News headlines enabled for sentiment prompts",

	// Maintenance
	SchedulerStarted:    "Maintenance scheduler started (%s)",
	SchedulerJobFailed:  "Scheduled job %s failed: %v",
	CachePurged:         "Cache purge removed %d expired rows",
	TicksPruned:         "Pruned %d stale ticks",
	ChatSessionsExpired: "Removed %d expired chat sessions",
	DBCleared:           "Database cleared on startup: chat_messages=%d chat_sessions=%d stock_cache=%d sentiment_cache=%d",
	DBClearFailed:       "Failed to clear database on startup: %v",

	// Terminal
	WatchStarted:  "Watching %s with %ds candles (Ctrl+C to stop)",
	WatchStopped:  "Stopped watching %s",
	ExportWritten: "Exported %d candles to %s",
	ExportFailed:  "Export failed: %v",
}

// Chinese messages
var messagesZH = Messages{
	// System
	Starting:           "啟動行情儀表板...",
	ConfigLoaded:       "設定已載入（埠號：%s）",
	UsingDBPath:        "使用資料庫路徑：%s",
	ServerListening:    "服務監聽於 :%s",
	ShuttingDown:       "正在優雅關閉...",
	ShutdownComplete:   "已完成關閉。",
	SystemMetricsInit:  "系統指標初始化完成",
	ConfigLoadFailed:   "讀取設定失敗：%v",
	DBInitFailed:       "初始化資料庫失敗：%v",
	DBMigrationsFailed: "套用資料庫遷移失敗：%v",
	APIServerError:     "API 伺服器錯誤：%v",

	// Markets and streaming
	MarketsLoaded:         "已從 %[2]s 載入 %[1]d 個市場",
	MarketsLoadFailed:     "讀取市場檔案 %s 失敗，改用內建行事曆：%v",
	StreamingOutsideHours: "非交易時段仍啟用即時串流",
	RelayStarted:          "即時報價轉發已就緒",

	// Forecasting
	ForecastWorkerEnabled:    "預測 worker 已啟用，位址 %s",
	ForecastWorkerInitFailed: "初始化預測 worker 客戶端失敗：%v",
	ForecastWorkerDisabled:   "未設定預測 worker，僅提供基準模型",

	// Sentiment
	LLMProvider:   "情緒分析使用 %s（%s）",
	LLMInitFailed: "初始化 LLM 供應商失敗，改用模擬：%v",
	NewsEnabled:   "情緒分析提示已加入新聞標題",

	// Maintenance
	SchedulerStarted:    "維護排程已啟動（%s）",
	SchedulerJobFailed:  "排程工作 %s 失敗：%v",
	CachePurged:         "快取清理移除 %d 筆過期資料",
	TicksPruned:         "清除 %d 筆過期報價",
	ChatSessionsExpired: "移除 %d 個過期對話",
	DBCleared:           "啟動時已清空資料庫：chat_messages=%d chat_sessions=%d stock_cache=%d sentiment_cache=%d",
	DBClearFailed:       "啟動時清空資料庫失敗：%v",

	// Terminal
	WatchStarted:  "監看 %s，K 線週期 %d 秒（Ctrl+C 結束）",
	WatchStopped:  "停止監看 %s",
	ExportWritten: "已匯出 %d 根 K 線至 %s",
	ExportFailed:  "匯出失敗：%v",
}

func init() {
	messages = &messagesEN
}

// SetLanguage sets the current language
func SetLanguage(lang Language) {
	mu.Lock()
	defer mu.Unlock()

	currentLang = lang
	switch lang {
	case LangZH:
		messages = &messagesZH
	default:
		messages = &messagesEN
	}
}

// GetLanguage returns the current language
func GetLanguage() Language {
	mu.RLock()
	defer mu.RUnlock()
	return currentLang
}

// M returns the current messages
func M() *Messages {
	mu.RLock()
	defer mu.RUnlock()
	return messages
}

// Get returns specific message by key dynamically using reflection
func Get(key string) string {
	msg := M()
	v := reflect.ValueOf(msg).Elem()
	f := v.FieldByName(key)
	if f.IsValid() && f.Kind() == reflect.String {
		return f.String()
	}
	return key
}
