package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validYAML = `
telegram:
  token: "123:abc"
  owner_user_id: 100
  poll_timeout: "15s"
logging:
  level: "debug"
  console: true
posts:
  timezone_offset: 3
  jitter_minutes: 5
  low_stock_threshold: 4
  tick_interval: "20s"
  firing_window: "90s"
media:
  dir: "./media"
storage:
  driver: "file"
  path: "./state.json"
`

func writeConfig(t *testing.T, name, body string) *Manager {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return NewManager(path)
}

func TestLoadValidYAML(t *testing.T) {
	t.Parallel()
	m := writeConfig(t, "config.yml", validYAML)

	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Telegram.Token != "123:abc" || cfg.Telegram.OwnerUserID != 100 {
		t.Fatalf("telegram section = %+v", cfg.Telegram)
	}
	if cfg.Posts.TimezoneOffset != 3 || cfg.Posts.JitterMinutes != 5 {
		t.Fatalf("posts section = %+v", cfg.Posts)
	}
	if got := cfg.Posts.LowStock(); got != 4 {
		t.Fatalf("LowStock = %d, want 4", got)
	}
	if got := cfg.Posts.Tick(); got != 20*time.Second {
		t.Fatalf("Tick = %v, want 20s", got)
	}
	if got := cfg.Posts.Window(); got != 90*time.Second {
		t.Fatalf("Window = %v, want 90s", got)
	}
	if m.Get() != cfg {
		t.Fatal("Load did not commit the config")
	}
}

func TestDefaultsApply(t *testing.T) {
	t.Parallel()
	m := writeConfig(t, "config.yml", `
telegram:
  token: "t"
  owner_user_id: 1
logging:
  level: "info"
posts:
  timezone_offset: 0
media:
  dir: "./media"
`)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if got := cfg.Posts.LowStock(); got != DefaultLowStockThreshold {
		t.Fatalf("LowStock = %d, want default %d", got, DefaultLowStockThreshold)
	}
	if got := cfg.Posts.Tick(); got != DefaultTickInterval {
		t.Fatalf("Tick = %v, want default %v", got, DefaultTickInterval)
	}
	if got := cfg.Posts.Window(); got != DefaultFiringWindow {
		t.Fatalf("Window = %v, want default %v", got, DefaultFiringWindow)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	m := writeConfig(t, "config.yml", validYAML+"\nmystery_section:\n  x: 1\n")
	if _, err := m.Parse(); err == nil {
		t.Fatal("expected error for unknown top-level field")
	}
}

func TestValidateErrors(t *testing.T) {
	t.Parallel()
	low := -1
	tests := []struct {
		name string
		mut  func(c *Config)
		want string
	}{
		{name: "missing token", mut: func(c *Config) { c.Telegram.Token = " " }, want: "telegram.token"},
		{name: "missing owner", mut: func(c *Config) { c.Telegram.OwnerUserID = 0 }, want: "owner_user_id"},
		{name: "offset too low", mut: func(c *Config) { c.Posts.TimezoneOffset = -13 }, want: "timezone_offset"},
		{name: "offset too high", mut: func(c *Config) { c.Posts.TimezoneOffset = 15 }, want: "timezone_offset"},
		{name: "negative jitter", mut: func(c *Config) { c.Posts.JitterMinutes = -1 }, want: "jitter"},
		{name: "negative threshold", mut: func(c *Config) { c.Posts.LowStockThreshold = &low }, want: "low_stock"},
		{name: "bad tick", mut: func(c *Config) { c.Posts.TickInterval = "soon" }, want: "tick_interval"},
		{name: "bad window", mut: func(c *Config) { c.Posts.FiringWindow = "never" }, want: "firing_window"},
		{name: "bad poll timeout", mut: func(c *Config) { c.Telegram.PollTimeout = "later" }, want: "poll_timeout"},
		{name: "missing media dir", mut: func(c *Config) { c.Media.Dir = "" }, want: "media.dir"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Telegram: TelegramConfig{Token: "t", OwnerUserID: 1},
				Media:    MediaConfig{Dir: "./media"},
			}
			tt.mut(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	if d, err := ParseDurationField("x", " 90s "); err != nil || d != 90*time.Second {
		t.Fatalf("ParseDurationField = (%v, %v)", d, err)
	}
	if d, err := ParseDurationField("x", ""); err != nil || d != 0 {
		t.Fatalf("empty field = (%v, %v), want (0, nil)", d, err)
	}
	if _, err := ParseDurationField("x", "-5s"); err == nil {
		t.Fatal("expected error for negative duration")
	}
	if d, err := ParseDurationOrDefault("x", "", time.Minute); err != nil || d != time.Minute {
		t.Fatalf("ParseDurationOrDefault = (%v, %v), want (1m, nil)", d, err)
	}
}
