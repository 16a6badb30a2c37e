package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "app:\n  name: whalewatcher\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Scheduler.IngestInterval != 5*time.Minute {
		t.Fatalf("默认抓取间隔应为 5m, 实际 %s", cfg.Scheduler.IngestInterval)
	}
	if cfg.Scheduler.PriceInterval != time.Hour {
		t.Fatalf("默认价格间隔应为 60m, 实际 %s", cfg.Scheduler.PriceInterval)
	}
	if !cfg.Scheduler.RunOnStart {
		t.Fatalf("run_on_start should default to true")
	}
	if cfg.Storage.Driver != DriverSQLite {
		t.Fatalf("driver = %q, want sqlite", cfg.Storage.Driver)
	}
	if cfg.Timezone != "Asia/Shanghai" {
		t.Fatalf("timezone = %q", cfg.Timezone)
	}
	if !cfg.Feed.RequireTLS || !cfg.Feed.InsecureSkipVerify {
		t.Fatalf("feed TLS defaults unexpected: %+v", cfg.Feed)
	}
	if cfg.Export.MaxDays != 30 {
		t.Fatalf("export.max_days = %d", cfg.Export.MaxDays)
	}
}

func TestLoadFileOverrides(t *testing.T) {
	path := writeConfig(t, strings.Join([]string{
		"scheduler:",
		"  ingest_interval: 90s",
		"  advisory_lock_key: 4242",
		"storage:",
		"  driver: postgres",
		"  dsn: postgres://localhost/whales",
		"timezone: UTC",
	}, "\n"))

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Scheduler.IngestInterval != 90*time.Second {
		t.Fatalf("ingest_interval = %s", cfg.Scheduler.IngestInterval)
	}
	if cfg.Scheduler.AdvisoryLockKey != 4242 {
		t.Fatalf("advisory_lock_key = %d", cfg.Scheduler.AdvisoryLockKey)
	}
	if cfg.Storage.Driver != DriverPostgres || cfg.Storage.DSN == "" {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("WHALEWATCHER_SCHEDULER_PRICE_INTERVAL", "15m")
	t.Setenv("WHALEWATCHER_PRICE_ASSET", "ethereum")

	cfg, err := Load(writeConfig(t, "timezone: UTC\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Scheduler.PriceInterval != 15*time.Minute {
		t.Fatalf("环境变量应覆盖 price_interval, 实际 %s", cfg.Scheduler.PriceInterval)
	}
	if cfg.Price.Asset != "ethereum" {
		t.Fatalf("price.asset = %q", cfg.Price.Asset)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"zero interval":     "scheduler:\n  ingest_interval: 0s\n",
		"plain http feed":   "feed:\n  url: http://example.com/rss\n",
		"unknown timezone":  "timezone: Mars/Olympus\n",
		"unknown driver":    "storage:\n  driver: mongo\n",
		"postgres no dsn":   "storage:\n  driver: postgres\n",
		"telegram no token": "alerting:\n  telegram:\n    enabled: true\n    chat_id: \"1\"\n",
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, body)); err == nil {
				t.Fatalf("配置应校验失败")
			}
		})
	}
}

func TestPlainHTTPFeedAllowedWithoutTLSRequirement(t *testing.T) {
	cfg, err := Load(writeConfig(t, "feed:\n  url: http://localhost:1200/rss\n  require_tls: false\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Feed.URL != "http://localhost:1200/rss" {
		t.Fatalf("feed.url = %q", cfg.Feed.URL)
	}
}

func TestResolveDays(t *testing.T) {
	cfg := &Config{Export: ExportConfig{MaxDays: 30}}
	if got := cfg.ResolveDays(0); got != 30 {
		t.Fatalf("ResolveDays(0) = %d", got)
	}
	if got := cfg.ResolveDays(7); got != 7 {
		t.Fatalf("ResolveDays(7) = %d", got)
	}
}
