package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// TickFunc runs one dispatch pass for the captured instant.
type TickFunc func(ctx context.Context, now time.Time) error

// Scheduler invokes a TickFunc on a fixed interval, starting with an
// immediate tick. Ticks run one at a time from this scheduler's point of
// view; overlap safety across processes is the store's job.
type Scheduler struct {
	interval time.Duration
	tickFn   TickFunc

	running atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	// lastMu guards the last-tick record separately so a tick in flight
	// never blocks Stop, which holds mu while waiting for done.
	lastMu   sync.Mutex
	lastErr  error
	lastTick time.Time
}

func New(interval time.Duration, tickFn TickFunc) (*Scheduler, error) {
	if interval <= 0 {
		return nil, errors.New("interval must be > 0")
	}
	if tickFn == nil {
		return nil, errors.New("tickFn must not be nil")
	}
	return &Scheduler{
		interval: interval,
		tickFn:   tickFn,
		done:     make(chan struct{}),
	}, nil
}

func (s *Scheduler) Start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running.Store(true)

	go func() {
		defer close(s.done)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		slog.Info("dispatch scheduler started", "interval", s.interval.String())

		s.safeTick(ctx, time.Now())

		for {
			select {
			case <-ctx.Done():
				slog.Info("dispatch scheduler stopping")
				return
			case now := <-ticker.C:
				s.safeTick(ctx, now)
			}
		}
	}()

	return true
}

func (s *Scheduler) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.Load() {
		return false
	}

	s.cancel()
	<-s.done
	s.running.Store(false)

	slog.Info("dispatch scheduler stopped")
	return true
}

func (s *Scheduler) IsRunning() bool {
	return s.running.Load()
}

// LastTick reports when the most recent tick ran and the error it returned,
// for the status endpoint.
func (s *Scheduler) LastTick() (time.Time, error) {
	s.lastMu.Lock()
	defer s.lastMu.Unlock()
	return s.lastTick, s.lastErr
}

func (s *Scheduler) safeTick(ctx context.Context, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("scheduler tick panic recovered", "panic", r)
		}
	}()

	start := time.Now()
	err := s.tickFn(ctx, now)

	s.lastMu.Lock()
	s.lastTick = now
	s.lastErr = err
	s.lastMu.Unlock()

	if err != nil {
		slog.Error("scheduler tick failed", "error", err, "duration_ms", time.Since(start).Milliseconds())
		return
	}
	slog.Info("scheduler tick completed", "duration_ms", time.Since(start).Milliseconds())
}
