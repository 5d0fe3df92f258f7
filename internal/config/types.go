package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`

	// Posts controls the posting schedule engine.
	Posts PostsConfig `json:"posts"`

	Media   MediaConfig    `json:"media"`
	Storage *StorageConfig `json:"storage,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`

	// OwnerUserID identifies the bot owner. The owner is created on first
	// run and can never be removed or demoted.
	OwnerUserID int64 `json:"owner_user_id"`

	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// PostsConfig controls slot computation and the scheduler tick.
//
// All durations are Go duration strings (e.g. "30s", "1m").
type PostsConfig struct {
	// TimezoneOffset is the fixed offset, in hours, of the local time used
	// in channel slot definitions relative to UTC (e.g. 3 for UTC+3).
	TimezoneOffset int `json:"timezone_offset"`

	// JitterMinutes spreads each slot by a uniform random offset in
	// [-J, +J] minutes so posts don't land on the exact minute every day.
	JitterMinutes int `json:"jitter_minutes"`

	// LowStockThreshold triggers a refill notification when a channel's
	// queue drains to this many items or fewer. Default 6.
	LowStockThreshold *int `json:"low_stock_threshold,omitempty"`

	TickInterval string `json:"tick_interval,omitempty"` // default "30s"
	FiringWindow string `json:"firing_window,omitempty"` // default "60s"
}

type MediaConfig struct {
	// Dir is the root directory for channel media blobs.
	Dir string `json:"dir"`
}

// StorageConfig selects the state snapshot backend.
//
// Driver values:
//   - "file": JSON snapshot with atomic tmp+rename replace (default)
//   - "sqlite": SQLite database file (optional build tag)
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

const (
	DefaultLowStockThreshold = 6
	DefaultTickInterval      = 30 * time.Second
	DefaultFiringWindow      = 60 * time.Second
	DefaultPollTimeout       = 10 * time.Second
)

// Validate rejects configs the services cannot run with. It is also used as
// the Manager's reload validator, so a bad edit never reaches subscribers.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return errors.New("telegram.token is required")
	}
	if c.Telegram.OwnerUserID == 0 {
		return errors.New("telegram.owner_user_id is required")
	}
	if _, err := ParseDurationField("telegram.poll_timeout", c.Telegram.PollTimeout); err != nil {
		return err
	}

	// UTC offsets in use worldwide span -12..+14.
	if c.Posts.TimezoneOffset < -12 || c.Posts.TimezoneOffset > 14 {
		return fmt.Errorf("posts.timezone_offset: %d out of range [-12, 14]", c.Posts.TimezoneOffset)
	}
	if c.Posts.JitterMinutes < 0 {
		return errors.New("posts.jitter_minutes must be >= 0")
	}
	if c.Posts.LowStockThreshold != nil && *c.Posts.LowStockThreshold < 0 {
		return errors.New("posts.low_stock_threshold must be >= 0")
	}
	if d, err := ParseDurationField("posts.tick_interval", c.Posts.TickInterval); err != nil {
		return err
	} else if c.Posts.TickInterval != "" && d == 0 {
		return errors.New("posts.tick_interval must be > 0")
	}
	if d, err := ParseDurationField("posts.firing_window", c.Posts.FiringWindow); err != nil {
		return err
	} else if c.Posts.FiringWindow != "" && d == 0 {
		return errors.New("posts.firing_window must be > 0")
	}

	if strings.TrimSpace(c.Media.Dir) == "" {
		return errors.New("media.dir is required")
	}

	if c.Storage != nil {
		if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
			return err
		}
	}
	return nil
}

// LowStock returns the effective low-stock threshold.
func (p PostsConfig) LowStock() int {
	if p.LowStockThreshold == nil {
		return DefaultLowStockThreshold
	}
	return *p.LowStockThreshold
}

// Tick returns the effective scheduler tick interval.
func (p PostsConfig) Tick() time.Duration {
	d, err := ParseDurationOrDefault("posts.tick_interval", p.TickInterval, DefaultTickInterval)
	if err != nil {
		return DefaultTickInterval
	}
	return d
}

// Window returns the effective firing window.
func (p PostsConfig) Window() time.Duration {
	d, err := ParseDurationOrDefault("posts.firing_window", p.FiringWindow, DefaultFiringWindow)
	if err != nil {
		return DefaultFiringWindow
	}
	return d
}
