package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"candlepipe/internal/indicator"
	"candlepipe/internal/model"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Angel One credentials, required only when history is fetched from the broker
	AngelAPIKey     string
	AngelClientCode string
	AngelPassword   string
	AngelTOTPSecret string

	// Infrastructure
	SQLitePath    string
	JournalPath   string
	RedisAddr     string // empty disables the redis sink and signal stream
	RedisPassword string
	RedisDB       int
	MetricsAddr   string
	FeedAddr      string // websocket signal feed; empty disables it
	LogLevel      string

	// Alerting; each channel is enabled when its settings are present
	TelegramBotToken string
	TelegramChatID   string
	AlertWebhookURL  string

	// Run scope
	Universe     string // comma separated entries
	UniverseFile string // overrides Universe when set
	Timespan     string
	LookbackDays int
	Indicators   string // comma separated indicator names; empty uses the defaults
	Strategies   string // comma separated strategy names
	BinsPath     string
	BatchSize    int
	FailFast     bool

	// Paper trading
	PaperQty      int64
	SlippageBps   int64
	InitialEquity int64 // cents
	HistoryPacing time.Duration
}

// Load reads configuration from environment variables with sensible
// defaults. A .env file in the working directory is loaded first if present.
func Load() (*Config, error) {
	_ = godotenv.Load()
	cfg := &Config{
		AngelAPIKey:     os.Getenv("ANGEL_API_KEY"),
		AngelClientCode: os.Getenv("ANGEL_CLIENT_CODE"),
		AngelPassword:   os.Getenv("ANGEL_PASSWORD"),
		AngelTOTPSecret: os.Getenv("ANGEL_TOTP_SECRET"),

		SQLitePath:    getEnv("SQLITE_PATH", "data/candles.db"),
		JournalPath:   getEnv("JOURNAL_PATH", "data/trades.db"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       intEnv("REDIS_DB", 0),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),
		FeedAddr:      os.Getenv("FEED_ADDR"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),

		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:   os.Getenv("TELEGRAM_CHAT_ID"),
		AlertWebhookURL:  os.Getenv("ALERT_WEBHOOK_URL"),

		Universe:     getEnv("UNIVERSE", "NSE:99926000:NIFTY"),
		UniverseFile: os.Getenv("UNIVERSE_FILE"),
		Timespan:     getEnv("TIMESPAN", "day"),
		LookbackDays: intEnv("LOOKBACK_DAYS", 365),
		Indicators:   os.Getenv("INDICATORS"),
		Strategies:   getEnv("STRATEGIES", "simple_sma"),
		BinsPath:     getEnv("BINS_PATH", "data/bins.yaml"),
		BatchSize:    intEnv("BATCH_SIZE", 500),
		FailFast:     boolEnv("FAIL_FAST", false),

		PaperQty:      int64(intEnv("PAPER_QTY", 1)),
		SlippageBps:   int64(intEnv("SLIPPAGE_BPS", 5)),
		InitialEquity: int64(intEnv("INITIAL_EQUITY_CENTS", 10_000_000)),
		HistoryPacing: durationEnv("HISTORY_PACING", 350*time.Millisecond),
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if _, err := model.ParseTimespan(c.Timespan); err != nil {
		return fmt.Errorf("[config] TIMESPAN: %w", err)
	}
	if _, err := indicator.ParseSpecs(c.Indicators); err != nil {
		return fmt.Errorf("[config] INDICATORS: %w", err)
	}
	if c.LookbackDays <= 0 {
		return errors.New("[config] LOOKBACK_DAYS must be positive")
	}
	if (c.TelegramBotToken == "") != (c.TelegramChatID == "") {
		return errors.New("[config] TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID must be set together")
	}
	if c.PaperQty <= 0 {
		return errors.New("[config] PAPER_QTY must be positive")
	}
	return nil
}

// Span returns the parsed timespan. Load has already validated it.
func (c *Config) Span() model.Timespan {
	ts, _ := model.ParseTimespan(c.Timespan)
	return ts
}

// Specs returns the configured indicators, or the defaults when none are set.
func (c *Config) Specs() []indicator.Spec {
	specs, _ := indicator.ParseSpecs(c.Indicators)
	if len(specs) == 0 {
		return indicator.DefaultSpecs()
	}
	return specs
}

// StrategyNames splits Strategies into names.
func (c *Config) StrategyNames() []string {
	var names []string
	for _, p := range strings.Split(c.Strategies, ",") {
		if p = strings.TrimSpace(p); p != "" {
			names = append(names, p)
		}
	}
	return names
}

// From returns the start of the lookback window relative to now.
func (c *Config) From(now time.Time) time.Time {
	return now.AddDate(0, 0, -c.LookbackDays).UTC().Truncate(24 * time.Hour)
}

// RequireAngel reports which broker credentials are missing.
func (c *Config) RequireAngel() error {
	var missing []string
	for k, v := range map[string]string{
		"ANGEL_API_KEY":     c.AngelAPIKey,
		"ANGEL_CLIENT_CODE": c.AngelClientCode,
		"ANGEL_PASSWORD":    c.AngelPassword,
		"ANGEL_TOTP_SECRET": c.AngelTOTPSecret,
	} {
		if v == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("[config] required env vars not set: %s", strings.Join(missing, ", "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func intEnv(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func boolEnv(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %v", key, v, fallback)
		return fallback
	}
	return b
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %s", key, v, fallback)
		return fallback
	}
	return d
}
