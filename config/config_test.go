package config

import (
	"strings"
	"testing"
	"time"

	"candlepipe/internal/model"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"TIMESPAN", "INDICATORS", "STRATEGIES", "LOOKBACK_DAYS", "REDIS_ADDR", "PAPER_QTY"} {
		t.Setenv(k, "")
	}
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Span() != model.Day {
		t.Errorf("span: %s", cfg.Span())
	}
	if len(cfg.Specs()) != 7 {
		t.Errorf("default specs: %v", cfg.Specs())
	}
	if got := cfg.StrategyNames(); len(got) != 1 || got[0] != "simple_sma" {
		t.Errorf("strategies: %v", got)
	}
	if cfg.RedisAddr != "" {
		t.Errorf("redis should be disabled by default")
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("TIMESPAN", "1h")
	t.Setenv("INDICATORS", "sma2, rsi7")
	t.Setenv("STRATEGIES", "simple_sma, rsi_threshold,")
	t.Setenv("LOOKBACK_DAYS", "30")
	t.Setenv("FAIL_FAST", "true")
	t.Setenv("HISTORY_PACING", "1s")
	t.Setenv("BATCH_SIZE", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Span() != model.Hour || !cfg.FailFast || cfg.HistoryPacing != time.Second {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if cfg.BatchSize != 500 {
		t.Errorf("invalid int should fall back: %d", cfg.BatchSize)
	}
	if specs := cfg.Specs(); len(specs) != 2 || specs[1].Name() != "rsi7" {
		t.Errorf("specs: %v", specs)
	}
	if got := cfg.StrategyNames(); len(got) != 2 {
		t.Errorf("strategies: %v", got)
	}
	now := time.Date(2024, 3, 31, 15, 0, 0, 0, time.UTC)
	if from := cfg.From(now); !from.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("from: %v", from)
	}
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("TIMESPAN", "fortnight")
	if _, err := Load(); err == nil {
		t.Error("bad timespan accepted")
	}
	t.Setenv("TIMESPAN", "day")
	t.Setenv("INDICATORS", "atr14")
	if _, err := Load(); err == nil {
		t.Error("bad indicator accepted")
	}
	t.Setenv("INDICATORS", "")
	t.Setenv("TELEGRAM_BOT_TOKEN", "tok")
	t.Setenv("TELEGRAM_CHAT_ID", "")
	if _, err := Load(); err == nil {
		t.Error("telegram token without chat id accepted")
	}
}

func TestRequireAngel(t *testing.T) {
	cfg := &Config{AngelAPIKey: "k", AngelPassword: "p"}
	err := cfg.RequireAngel()
	if err == nil || !strings.Contains(err.Error(), "ANGEL_CLIENT_CODE, ANGEL_TOTP_SECRET") {
		t.Fatalf("expected sorted missing vars, got %v", err)
	}
	cfg.AngelClientCode, cfg.AngelTOTPSecret = "c", "s"
	if err := cfg.RequireAngel(); err != nil {
		t.Fatal(err)
	}
}
