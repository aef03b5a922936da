package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// SweepFunc removes expired state as of now and reports how many entries were dropped.
type SweepFunc func(now time.Time) int

// Sweeper runs a SweepFunc on a fixed interval until stopped.
type Sweeper struct {
	name     string
	interval time.Duration
	sweep    SweepFunc
	logger   *zap.Logger
	clock    func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// SweeperOption customises a Sweeper.
type SweeperOption func(*Sweeper)

// WithSweeperLogger sets the logger used for sweep reports.
func WithSweeperLogger(logger *zap.Logger) SweeperOption {
	return func(s *Sweeper) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSweeperClock overrides the clock handed to the sweep function.
func WithSweeperClock(clock func() time.Time) SweeperOption {
	return func(s *Sweeper) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewSweeper validates the interval and sweep function.
func NewSweeper(name string, interval time.Duration, sweep SweepFunc, opts ...SweeperOption) (*Sweeper, error) {
	if interval <= 0 {
		return nil, errors.New("sweeper: interval must be positive")
	}
	if sweep == nil {
		return nil, errors.New("sweeper: sweep function is required")
	}
	s := &Sweeper{
		name:     name,
		interval: interval,
		sweep:    sweep,
		logger:   zap.NewNop(),
		clock:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Start launches the sweep loop. Calling Start on a running sweeper is a no-op.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(runCtx, s.done)
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Sweeper) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := s.sweep(s.clock().UTC()); removed > 0 {
				s.logger.Info("sweep removed entries", zap.String("sweeper", s.name), zap.Int("count", removed))
			}
		}
	}
}
