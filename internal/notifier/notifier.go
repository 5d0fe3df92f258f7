// Package notifier delivers best-effort out-of-band notices to users.
//
// Failures are logged and swallowed: a blocked user or a flaky network must
// never surface as an error in the scheduler or the update router. Sends
// are rate limited so fanouts to many users stay inside platform limits.
package notifier

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"postbot/internal/transport"
	logx "postbot/pkg/logx"
)

type Config struct {
	// RatePerSec caps outbound notification sends. Default 3.
	RatePerSec int
}

type Service struct {
	adapter transport.Adapter
	log     logx.Logger

	mu      sync.Mutex
	limiter *rate.Limiter
}

func New(cfg Config, adapter transport.Adapter, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{adapter: adapter, log: log}
	s.Apply(cfg)
	return s
}

func (s *Service) Apply(cfg Config) {
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 3
	}
	s.mu.Lock()
	// Token bucket: burst = rate per sec, so short fanouts don't stall.
	s.limiter = rate.NewLimiter(rate.Limit(rps), rps)
	s.mu.Unlock()
}

// Notify sends one notice. Errors are swallowed by contract.
func (s *Service) Notify(ctx context.Context, userID int64, text string) {
	s.mu.Lock()
	lim := s.limiter
	s.mu.Unlock()

	if err := lim.Wait(ctx); err != nil {
		return
	}
	to := transport.ChatTarget{ChatID: userID}
	if err := s.adapter.SendText(ctx, to, text, &transport.SendOptions{DisablePreview: true}); err != nil {
		s.log.Debug("notification send failed", logx.Int64("user", userID), logx.Err(err))
		return
	}
	s.log.Debug("notification sent", logx.Int64("user", userID))
}

// NotifyMany fans one notice out to several users.
func (s *Service) NotifyMany(ctx context.Context, userIDs []int64, text string) {
	for _, id := range userIDs {
		s.Notify(ctx, id, text)
	}
}
