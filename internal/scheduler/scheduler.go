// Package scheduler drives scheduled scraping runs off a cron expression,
// per §6's SCRAPE_CRON_SCHEDULE setting.
package scheduler

import (
	"context"
	"log"
	"os"

	"github.com/robfig/cron/v3"

	"github.com/codepr/topicscraper/internal/runlog"
)

// Runner is the subset of the Orchestrator the scheduler depends on.
type Runner interface {
	StartAll(ctx context.Context, trigger runlog.Trigger, callerID string) error
}

// Scheduler wraps a cron.Cron instance, translating schedule ticks into
// scheduled orchestrator runs.
type Scheduler struct {
	cron   *cron.Cron
	runner Runner
	logger *log.Logger
	entry  cron.EntryID
}

// New builds a Scheduler that isn't started until Start is called.
func New(runner Runner) *Scheduler {
	return &Scheduler{
		cron:   cron.New(),
		runner: runner,
		logger: log.New(os.Stderr, "scheduler: ", log.LstdFlags),
	}
}

// Start registers the cron expression and begins ticking. Returns an error
// if the expression fails to parse.
func (s *Scheduler) Start(expr string) error {
	id, err := s.cron.AddFunc(expr, s.runScheduled)
	if err != nil {
		return err
	}
	s.entry = id
	s.cron.Start()
	return nil
}

func (s *Scheduler) runScheduled() {
	if err := s.runner.StartAll(context.Background(), runlog.TriggerScheduled, ""); err != nil {
		s.logger.Printf("scheduled run failed to start: %v", err)
	}
}

// Stop halts future ticks and waits for any in-flight scheduler-invoked job
// to finish its own StartAll call before returning.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
