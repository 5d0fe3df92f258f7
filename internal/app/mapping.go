package app

import (
	"postbot/internal/config"
	"postbot/internal/scheduler"
	"postbot/internal/storage"
	"postbot/internal/transport/telegram/router"
)

const defaultStatePath = "./postbot_state.json"

func mapStorageConfig(cfg *config.Config) storage.Config {
	sc := storage.Config{Path: defaultStatePath}
	if cfg.Storage == nil {
		return sc
	}
	sc.Driver = cfg.Storage.Driver
	if cfg.Storage.Path != "" {
		sc.Path = cfg.Storage.Path
	}
	// Validate() already rejected malformed durations.
	bt, _ := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	sc.BusyTimeout = bt
	return sc
}

func mapSchedulerConfig(cfg *config.Config) scheduler.Config {
	return scheduler.Config{
		UTCOffset: cfg.Posts.TimezoneOffset,
		Jitter:    cfg.Posts.JitterMinutes,
		LowStock:  cfg.Posts.LowStock(),
		Tick:      cfg.Posts.Tick(),
		Window:    cfg.Posts.Window(),
	}
}

func mapRouterConfig(cfg *config.Config) router.Config {
	return router.Config{
		UTCOffset: cfg.Posts.TimezoneOffset,
		Jitter:    cfg.Posts.JitterMinutes,
	}
}
