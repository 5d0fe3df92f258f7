package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"runtime/debug"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"postbot/internal/store"
	"postbot/internal/transport"
	logx "postbot/pkg/logx"
)

// Config holds the posting knobs. Apply() may swap it at runtime.
type Config struct {
	UTCOffset int           // hours; slot labels are local = UTC+offset
	Jitter    int           // minutes, uniform in [-J, +J]
	LowStock  int           // refill alert when queue drains to <= this
	Tick      time.Duration // evaluation interval
	Window    time.Duration // |now - slot| tolerance for firing
}

// StateStore is the slice of the state store the scheduler drains.
type StateStore interface {
	Channels() []store.ChannelInfo
	DequeueMedia(ctx context.Context, channelID int64) (store.MediaItem, error)
	QueueLen(channelID int64) int
	UsersWithPermission(required store.Role) []int64
	UsersWithChannelAccess(channelID int64) []int64
}

// Publisher delivers one media item to a channel.
type Publisher interface {
	SendPhoto(ctx context.Context, to transport.ChatTarget, path string, caption string) error
	SendVideo(ctx context.Context, to transport.ChatTarget, path string, caption string) error
}

// Notifier delivers best-effort out-of-band notices to users.
type Notifier interface {
	Notify(ctx context.Context, userID int64, text string)
}

// Blobs releases consumed media blobs.
type Blobs interface {
	Release(path string) error
}

// Service fires channel posts on their configured slots. One tick evaluates
// every (channel, slot) pair independently: resolve the jittered instant
// once, skip outside the firing window, skip if the dedup ledger already
// fired it today, otherwise drain one item and publish it.
type Service struct {
	log   logx.Logger
	st    StateStore
	pub   Publisher
	not   Notifier
	blobs Blobs

	mu  sync.Mutex
	cfg Config
	c   *cron.Cron

	// tickMu guarantees ticks never run concurrently with themselves even
	// if a slow publish pushes one past the next cron firing.
	tickMu sync.Mutex

	ledger *Ledger
	rng    *rand.Rand
	now    func() time.Time

	runCtx    context.Context
	runCancel context.CancelFunc
}

func New(cfg Config, st StateStore, pub Publisher, not Notifier, blobs Blobs, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		log:    log,
		st:     st,
		pub:    pub,
		not:    not,
		blobs:  blobs,
		cfg:    withDefaults(cfg),
		ledger: NewLedger(),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		now:    time.Now,
	}
}

func withDefaults(cfg Config) Config {
	if cfg.Tick <= 0 {
		cfg.Tick = 30 * time.Second
	}
	if cfg.Window <= 0 {
		cfg.Window = 60 * time.Second
	}
	if cfg.LowStock < 0 {
		cfg.LowStock = 0
	}
	return cfg
}

// Apply swaps the posting knobs. A tick interval change restarts the cron.
func (s *Service) Apply(cfg Config) {
	cfg = withDefaults(cfg)
	s.mu.Lock()
	restart := s.c != nil && cfg.Tick != s.cfg.Tick
	s.cfg = cfg
	ctx := s.runCtx
	s.mu.Unlock()

	if restart && ctx != nil {
		s.stopCron()
		s.startCron(ctx)
		s.log.Info("tick interval changed", logx.Duration("tick", cfg.Tick))
	}
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.c != nil {
		s.mu.Unlock()
		return
	}
	s.runCtx, s.runCancel = context.WithCancel(ctx)
	runCtx := s.runCtx
	s.mu.Unlock()

	s.startCron(runCtx)
	s.log.Info("post scheduler started", logx.Duration("tick", s.snapshotCfg().Tick))
}

func (s *Service) Stop(ctx context.Context) {
	_ = ctx
	s.mu.Lock()
	cancel := s.runCancel
	s.runCancel = nil
	s.runCtx = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.stopCron()
	s.log.Info("post scheduler stopped")
}

func (s *Service) startCron(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := cron.New()
	tick := s.cfg.Tick
	c.Schedule(cron.Every(tick), cron.FuncJob(func() {
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("panic in scheduler tick", logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			}
		}()
		if ctx.Err() != nil {
			return
		}
		s.Tick(ctx)
	}))
	c.Start()
	s.c = c
}

func (s *Service) stopCron() {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}

func (s *Service) snapshotCfg() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Tick runs one evaluation pass. Exported for the tests; the cron calls it
// on the configured interval.
func (s *Service) Tick(ctx context.Context) {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	cfg := s.snapshotCfg()
	now := s.now()
	s.ledger.Prune(now)

	for _, ch := range s.st.Channels() {
		// Resolve jittered instants once; the same instant feeds both the
		// window check and the dedup key below.
		slots := SlotTimes(ch.PostTimes, now, cfg.UTCOffset, cfg.Jitter, s.rng)
		for _, sl := range slots {
			diff := now.Sub(sl.At)
			if diff < 0 {
				diff = -diff
			}
			if diff > cfg.Window {
				continue
			}
			if s.ledger.Fired(ch.ID, sl.At, sl.Label) {
				continue
			}
			if s.postOnce(ctx, ch, cfg) {
				s.ledger.MarkFired(ch.ID, sl.At, sl.Label)
				s.log.Info("scheduled post published",
					logx.Int64("channel", ch.ID), logx.String("slot", sl.Label))
			}
		}
	}
}

// postOnce drains one item and publishes it. Returns true only on a
// successful publish, so an unfired slot stays eligible for the rest of its
// window. An empty queue alerts the admins on every tick of the window.
func (s *Service) postOnce(ctx context.Context, ch store.ChannelInfo, cfg Config) bool {
	item, err := s.st.DequeueMedia(ctx, ch.ID)
	if errors.Is(err, store.ErrQueueEmpty) {
		text := fmt.Sprintf("❌ Channel %q has no media to post!", ch.Name)
		for _, uid := range s.st.UsersWithPermission(store.RoleAdmin) {
			s.not.Notify(ctx, uid, text)
		}
		return false
	}
	if err != nil {
		s.log.Error("dequeue failed", logx.Int64("channel", ch.ID), logx.Err(err))
		return false
	}

	// The store lock is already released here; the publish network call
	// must not stall inbound update handling.
	to := transport.ChatTarget{ChatID: ch.ID}
	switch item.Kind {
	case transport.MediaVideo:
		err = s.pub.SendVideo(ctx, to, item.Location, ch.PostText)
	default:
		err = s.pub.SendPhoto(ctx, to, item.Location, ch.PostText)
	}
	if err != nil {
		s.log.Warn("publish failed",
			logx.Int64("channel", ch.ID), logx.String("location", item.Location), logx.Err(err))
		return false
	}

	if rerr := s.blobs.Release(item.Location); rerr != nil {
		s.log.Warn("releasing published blob failed", logx.String("location", item.Location), logx.Err(rerr))
	}

	if remaining := s.st.QueueLen(ch.ID); remaining <= cfg.LowStock {
		text := fmt.Sprintf("⚠️ Channel %q is down to %d queued media. Time to restock!", ch.Name, remaining)
		for _, uid := range s.st.UsersWithChannelAccess(ch.ID) {
			s.not.Notify(ctx, uid, text)
		}
	}
	return true
}
