package i18n

import (
	"fmt"
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
	Starting            string
	ConfigLoaded        string
	ConfigLoadFailed    string
	ExchangesFileLoaded string
	UsingDBPath         string
	DBInitFailed        string
	DBMigrationsFailed  string
	ServerListening     string
	APIServerError      string
	ShuttingDown        string
	MockFeedEnabled     string

	// Session
	SessionRestored      string
	SessionRestoreFailed string
	SessionSelected      string
	PreferenceSaveFailed string

	// User notices
	ExchangeNotIntegrated string
	UnsupportedInterval   string
	SymbolsLoadFailed     string
	NoSymbols             string
	RemoteAPIFailed       string
	InvalidIndicators     string
	MissingParameter      string
	CoinbaseRealtime      string
	NoLiveSession         string
	PriceUnavailable      string
}

var (
	currentLang Language = LangEN
	mu          sync.RWMutex
	messages    *Messages
)

// English messages
var messagesEN = Messages{
	Starting:            "Starting market data core...",
	ConfigLoaded:        "Config loaded (Port: %s)",
	ConfigLoadFailed:    "Failed to load config: %v",
	ExchangesFileLoaded: "Exchange overrides loaded from %s",
	UsingDBPath:         "Using DB path: %s",
	DBInitFailed:        "Failed to init database: %v",
	DBMigrationsFailed:  "Failed to apply migrations: %v",
	ServerListening:     "Server listening on :%s",
	APIServerError:      "API server error: %v",
	ShuttingDown:        "Shutting down gracefully...",
	MockFeedEnabled:     "Mock feed enabled; exchanges are simulated",

	SessionRestored:      "Session restored: %s %s %s",
	SessionRestoreFailed: "Could not restore session: %v",
	SessionSelected:      "Session selected: %s %s %s",
	PreferenceSaveFailed: "Failed to save preference: %v",

	ExchangeNotIntegrated: "The exchange %q is not yet supported.",
	UnsupportedInterval:   "Interval %q is not supported by %s.",
	SymbolsLoadFailed:     "Failed to load symbols for %s: %v",
	NoSymbols:             "%s lists no tradable symbols.",
	RemoteAPIFailed:       "%s API error: %s",
	InvalidIndicators:     "Invalid indicators: %v",
	MissingParameter:      "Missing parameter %q.",
	CoinbaseRealtime:      "Live order book and trades are unavailable for Coinbase; chart data is polled periodically.",
	NoLiveSession:         "No live session is running.",
	PriceUnavailable:      "No price cached for %s on %s.",
}

// Traditional Chinese messages
var messagesZH = Messages{
	Starting:            "行情核心啟動中...",
	ConfigLoaded:        "設定已載入（Port：%s）",
	ConfigLoadFailed:    "載入設定失敗：%v",
	ExchangesFileLoaded: "已從 %s 載入交易所設定",
	UsingDBPath:         "使用資料庫路徑：%s",
	DBInitFailed:        "初始化資料庫失敗：%v",
	DBMigrationsFailed:  "套用資料庫遷移失敗：%v",
	ServerListening:     "伺服器監聽於 :%s",
	APIServerError:      "API 伺服器錯誤：%v",
	ShuttingDown:        "正在優雅關閉...",
	MockFeedEnabled:     "已啟用模擬行情，交易所資料為模擬",

	SessionRestored:      "已還原連線：%s %s %s",
	SessionRestoreFailed: "無法還原連線：%v",
	SessionSelected:      "已選擇連線：%s %s %s",
	PreferenceSaveFailed: "儲存偏好設定失敗：%v",

	ExchangeNotIntegrated: "尚未支援交易所 %q。",
	UnsupportedInterval:   "%[2]s 不支援週期 %[1]q。",
	SymbolsLoadFailed:     "載入 %s 交易對失敗：%v",
	NoSymbols:             "%s 沒有可交易的交易對。",
	RemoteAPIFailed:       "%s API 錯誤：%s",
	InvalidIndicators:     "指標參數錯誤：%v",
	MissingParameter:      "缺少參數 %q。",
	CoinbaseRealtime:      "Coinbase 不提供即時委託簿與成交，圖表資料將定期更新。",
	NoLiveSession:         "目前沒有即時連線。",
	PriceUnavailable:      "%[2]s 上沒有 %[1]s 的快取價格。",
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

// T formats the message under key with args.
func T(key string, args ...any) string {
	return fmt.Sprintf(Get(key), args...)
}
