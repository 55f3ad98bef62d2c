// Package scheduler wires up the cron job that resets the weekly
// notification counters.
package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// CounterResetter zeroes every member's weekly notification counter.
type CounterResetter interface {
	ResetAllCounts(ctx context.Context) (int64, error)
}

// Scheduler wraps robfig/cron and manages the weekly reset. The reset is
// idempotent, so a missed or doubled tick is harmless.
type Scheduler struct {
	cron   *cron.Cron
	store  CounterResetter
	logger *zap.Logger
	spec   string // cron spec, e.g. "0 0 * * 1"
}

// New creates a Scheduler firing on the given cron spec.
func New(store CounterResetter, logger *zap.Logger, spec string) *Scheduler {
	return &Scheduler{
		cron:   cron.New(),
		store:  store,
		logger: logger,
		spec:   spec,
	}
}

// Start registers the reset job and starts the scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.spec, func() {
		s.runReset(ctx)
	})
	if err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}

	s.cron.Start()
	s.logger.Info("weekly reset scheduled", zap.String("spec", s.spec))

	return nil
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) runReset(ctx context.Context) {
	n, err := s.store.ResetAllCounts(ctx)
	if err != nil {
		s.logger.Error("weekly counter reset failed", zap.Error(err))
		return
	}
	s.logger.Info("weekly notification counters reset", zap.Int64("members", n))
}
