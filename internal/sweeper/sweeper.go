// Package sweeper deletes expired entities from stores without native TTL.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"mentorgraph/internal/ledger"
)

const runTimeout = 30 * time.Second

type Sweeper struct {
	store    ledger.Sweeper
	schedule cron.Schedule
	spec     string
	logger   *slog.Logger
	now      func() time.Time

	mu   sync.Mutex
	cron *cron.Cron
}

// New returns a Sweeper for store running on a standard cron spec such as
// "@every 1m" or "*/5 * * * *".
func New(store ledger.Sweeper, spec string, logger *slog.Logger) (*Sweeper, error) {
	if store == nil {
		return nil, errors.New("sweeper: store must not be nil")
	}
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("sweeper: schedule %q: %w", spec, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{store: store, schedule: schedule, spec: spec, logger: logger, now: time.Now}, nil
}

// RunOnce deletes every entity expired as of now.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	n, err := s.store.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("sweeper: DeleteExpired: %w", err)
	}
	return n, nil
}

// Start runs the sweep on schedule until ctx is cancelled or Stop is called.
// Overlapping runs are skipped.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return
	}

	logger := cronLogger{s.logger}
	c := cron.New(cron.WithLogger(logger), cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)))
	c.Schedule(s.schedule, cron.FuncJob(func() {
		runCtx, cancel := context.WithTimeout(ctx, runTimeout)
		defer cancel()
		n, err := s.RunOnce(runCtx)
		if err != nil {
			s.logger.ErrorContext(runCtx, "expired entity sweep failed", "err", err)
			return
		}
		if n > 0 {
			s.logger.InfoContext(runCtx, "expired entities deleted", "count", n)
		}
	}))
	c.Start()
	s.cron = c
	s.logger.Info("expiry sweeper started", "schedule", s.spec)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	<-c.Stop().Done()
}

// cronLogger routes cron's internal logging through slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "err", err)...)
}
