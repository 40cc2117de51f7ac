package application

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	DefaultSweepInterval = time.Hour
	DefaultPendingTTL    = 24 * time.Hour
)

// SweepObserver is notified after a sweep cycle expired at least one identity.
type SweepObserver interface {
	OnPendingExpired(ctx context.Context, count int64, cutoff time.Time)
}

// Sweeper periodically deactivates identities left unverified past PendingTTL.
type Sweeper struct {
	machine    *StatusMachine
	logger     *logrus.Logger
	observer   SweepObserver
	now        func() time.Time
	Interval   time.Duration
	PendingTTL time.Duration
}

func NewSweeper(machine *StatusMachine, logger *logrus.Logger, observer SweepObserver, now func() time.Time, interval, pendingTTL time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if pendingTTL <= 0 {
		pendingTTL = DefaultPendingTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Sweeper{
		machine:    machine,
		logger:     logger,
		observer:   observer,
		now:        now,
		Interval:   interval,
		PendingTTL: pendingTTL,
	}
}

// RunOnce executes a single sweep cycle.
func (s *Sweeper) RunOnce(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.PendingTTL)
	n, err := s.machine.ExpirePending(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 && s.observer != nil {
		s.observer.OnPendingExpired(ctx, n, cutoff)
	}
	return n, nil
}

// Run sweeps immediately and then on every tick until ctx is done. A failed
// cycle is logged and the next tick still runs.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.cycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cycle(ctx)
		}
	}
}

func (s *Sweeper) cycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil && s.logger != nil {
			s.logger.WithField("panic", r).Error("pending identity sweep panicked")
		}
	}()
	start := time.Now()
	n, err := s.RunOnce(ctx)
	if s.logger == nil {
		return
	}
	if err != nil {
		s.logger.WithError(err).Error("pending identity sweep failed")
		return
	}
	s.logger.WithFields(logrus.Fields{
		"expired":  n,
		"duration": time.Since(start).String(),
	}).Info("pending identity sweep completed")
}
