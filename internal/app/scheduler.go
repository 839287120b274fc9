/**
 * @description
 * Cron scheduler for periodic maintenance: refreshing the ledger accounts
 * cache so closed accounts stop being offered even when no broker event made
 * it through.
 */
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron     *cron.Cron
	accounts *AccountsCache
	logger   *slog.Logger
	schedule string
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(accounts *AccountsCache, logger *slog.Logger, schedule string) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger)))

	return &Scheduler{
		cron:     c,
		accounts: accounts,
		logger:   logger,
		schedule: schedule,
	}
}

// Start registers the jobs and starts the cron scheduler.
func (s *Scheduler) Start() {
	if _, err := s.cron.AddFunc(s.schedule, s.refreshAccounts); err != nil {
		s.logger.Error("failed to schedule accounts refresh job", "error", err)
	} else {
		s.logger.Info("scheduled accounts refresh job", "schedule", s.schedule)
	}

	s.cron.Start()
}

func (s *Scheduler) refreshAccounts() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	accounts, err := s.accounts.Refresh(ctx)
	if err != nil {
		s.logger.Error("accounts refresh failed", "error", err)
		return
	}
	s.logger.Info("accounts cache refreshed", "count", len(accounts))
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
