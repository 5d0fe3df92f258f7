// Package app assembles the bot: config, logging, storage, state store,
// media library, Telegram adapter, notifier, scheduler and the menu router.
package app

import (
	"context"
	"sync"

	"postbot/internal/config"
	"postbot/internal/media"
	"postbot/internal/notifier"
	"postbot/internal/scheduler"
	"postbot/internal/storage"
	"postbot/internal/store"
	kit "postbot/internal/transport"
	telegram "postbot/internal/transport/telegram/adapter"
	"postbot/internal/transport/telegram/router"
	logx "postbot/pkg/logx"
)

type App struct {
	cfgm *config.Manager

	log  logx.Logger
	logs *logx.Service

	backend storage.Store
	st      *store.Store
	lib     *media.Library

	adapter kit.Adapter
	notif   *notifier.Service
	sched   *scheduler.Service
	router  *router.Router

	runMu  sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(ctx context.Context, cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	backend, err := storage.Open(mapStorageConfig(cfg), log.With(logx.String("comp", "storage")))
	if err != nil {
		logSvc.Close()
		return nil, err
	}

	lib, err := media.NewLibrary(cfg.Media.Dir)
	if err != nil {
		backend.Close()
		logSvc.Close()
		return nil, err
	}

	st, err := store.Open(ctx, backend, lib, cfg.Telegram.OwnerUserID, log.With(logx.String("comp", "store")))
	if err != nil {
		backend.Close()
		logSvc.Close()
		return nil, err
	}

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, config.DefaultPollTimeout)
	if err != nil {
		backend.Close()
		logSvc.Close()
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		backend.Close()
		logSvc.Close()
		return nil, err
	}

	notif := notifier.New(notifier.Config{}, ad, log.With(logx.String("comp", "notifier")))
	sched := scheduler.New(mapSchedulerConfig(cfg), st, ad, notif, lib, log.With(logx.String("comp", "scheduler")))
	rt := router.New(mapRouterConfig(cfg), st, ad, lib, log.With(logx.String("comp", "router")))

	return &App{
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		backend: backend,
		st:      st,
		lib:     lib,
		adapter: ad,
		notif:   notif,
		sched:   sched,
		router:  rt,
	}, nil
}

func (a *App) Start(ctx context.Context) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return cfg.Validate()
	})

	if err := a.adapter.Start(runCtx, a.router.Updates()); err != nil {
		cancel()
		return err
	}
	a.router.Start(runCtx)
	a.sched.Start(runCtx)

	// Config file watcher plus the reload fan-out applying hot knobs.
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.cfgm.Watch(runCtx); err != nil && runCtx.Err() == nil {
			a.log.Warn("config watcher stopped", logx.Err(err))
		}
	}()

	sub := a.cfgm.Subscribe(8)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-runCtx.Done():
				return
			case cfg, ok := <-sub:
				if !ok {
					return
				}
				a.applyConfig(cfg)
			}
		}
	}()

	a.log.Info("bot started")
	return nil
}

// applyConfig re-applies the hot-reloadable knobs. Token, owner, media dir
// and storage driver changes require a restart and are ignored here.
func (a *App) applyConfig(cfg *config.Config) {
	a.logs.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	a.sched.Apply(mapSchedulerConfig(cfg))
	a.router.Apply(mapRouterConfig(cfg))
	a.notif.Apply(notifier.Config{})
	a.log.Info("config reloaded")
}

func (a *App) Stop(ctx context.Context) {
	a.runMu.Lock()
	cancel := a.cancel
	a.cancel = nil
	a.runMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()

	a.sched.Stop(ctx)
	a.router.Stop(ctx)
	if err := a.adapter.Stop(ctx); err != nil {
		a.log.Warn("adapter stop failed", logx.Err(err))
	}
	a.wg.Wait()

	if err := a.backend.Close(); err != nil {
		a.log.Warn("closing storage failed", logx.Err(err))
	}
	a.log.Info("bot stopped")
	a.logs.Close()
}
