/**
 * @description
 * Cron wiring for the fee-collection batch.
 */
package app

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Scheduler owns the cron instance running the periodic batches.
type Scheduler struct {
	cron      *cron.Cron
	collector FeeCollector
	logger    *slog.Logger
	schedule  string
}

// NewScheduler creates a scheduler that will run the fee collector on the
// given cron schedule.
func NewScheduler(collector FeeCollector, logger *slog.Logger, schedule string) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger)))

	return &Scheduler{
		cron:      c,
		collector: collector,
		logger:    logger,
		schedule:  schedule,
	}
}

// Start registers the fee-collection job and starts the cron scheduler.
func (s *Scheduler) Start() {
	if _, err := s.cron.AddFunc(s.schedule, s.runFeeCollection); err != nil {
		s.logger.Error("failed to schedule fee collection job", "error", err)
	} else {
		s.logger.Info("scheduled fee collection job", "schedule", s.schedule)
	}

	s.cron.Start()
}

// Stop gracefully stops the cron scheduler. The returned context is done
// once in-flight jobs have finished.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) runFeeCollection() {
	s.logger.Info("starting fee collection batch")

	result, err := s.collector.Run(context.Background())
	if err != nil {
		s.logger.Error("fee collection batch failed", "error", err)
		return
	}

	s.logger.Info("fee collection batch finished",
		"evaluated", result.Evaluated,
		"charged", result.Charged,
		"failed", result.Failed,
		"skipped", result.Skipped,
	)
}
