// Package router drives the bot's conversational menu surface. It consumes
// platform-neutral updates on a single goroutine, so every workflow step
// runs serialized against the state store.
package router

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"postbot/internal/media"
	"postbot/internal/store"
	"postbot/internal/transport"
	"postbot/pkg/logx"
)

// Config carries the posting knobs the router needs to render the status
// screen (the same slot resolution the scheduler uses).
type Config struct {
	UTCOffset int // hours; slot labels are local = UTC+offset
	Jitter    int // minutes, uniform in [-J, +J]
}

// nextStep is a one-shot handler for the next text message from a user,
// used for "send me the user id" style prompts. Pending steps are held in
// memory only and do not survive a restart.
type nextStep func(ctx context.Context, msg *transport.Message) error

type Router struct {
	log     logx.Logger
	st      *store.Store
	adapter transport.Adapter
	lib     *media.Library

	updates chan transport.Update

	cfgMu sync.Mutex
	cfg   Config

	// pending maps user id to the handler for that user's next text
	// message. Touched only from the run loop.
	pending map[int64]nextStep

	rng *rand.Rand

	runMu   sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func New(cfg Config, st *store.Store, adapter transport.Adapter, lib *media.Library, log logx.Logger) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Router{
		log:     log,
		st:      st,
		adapter: adapter,
		lib:     lib,
		updates: make(chan transport.Update, 64),
		cfg:     cfg,
		pending: make(map[int64]nextStep),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Updates returns the channel the adapter should feed.
func (r *Router) Updates() chan<- transport.Update { return r.updates }

// Apply swaps the posting knobs on config reload.
func (r *Router) Apply(cfg Config) {
	r.cfgMu.Lock()
	r.cfg = cfg
	r.cfgMu.Unlock()
}

func (r *Router) snapshotCfg() Config {
	r.cfgMu.Lock()
	defer r.cfgMu.Unlock()
	return r.cfg
}

func (r *Router) Start(ctx context.Context) {
	r.runMu.Lock()
	defer r.runMu.Unlock()
	if r.running {
		return
	}
	r.running = true
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.run(runCtx)
	}()
}

func (r *Router) Stop(ctx context.Context) {
	r.runMu.Lock()
	cancel := r.cancel
	r.cancel = nil
	wasRunning := r.running
	r.running = false
	r.runMu.Unlock()

	if !wasRunning {
		return
	}
	cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (r *Router) run(ctx context.Context) {
	r.log.Info("router started")
	defer r.log.Info("router stopped")
	for {
		select {
		case <-ctx.Done():
			return
		case up := <-r.updates:
			if up.Message == nil {
				continue
			}
			r.handleMessage(ctx, up.Message)
		}
	}
}

func (r *Router) handleMessage(ctx context.Context, msg *transport.Message) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("handler panicked", logx.Any("panic", rec), logx.Int64("user", msg.FromID))
		}
	}()

	if msg.Media != nil {
		r.handleMediaUpload(ctx, msg)
		return
	}

	// Back always cancels a pending prompt.
	if msg.Text == btnBack {
		delete(r.pending, msg.FromID)
		r.handleBack(ctx, msg)
		return
	}

	if step, ok := r.pending[msg.FromID]; ok {
		delete(r.pending, msg.FromID)
		if err := step(ctx, msg); err != nil {
			r.log.Warn("prompt step failed", logx.Err(err), logx.Int64("user", msg.FromID))
		}
		return
	}

	r.dispatch(ctx, msg)
}
