package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/codepr/topicscraper/internal/runlog"
)

type countingRunner struct {
	calls int32
}

func (c *countingRunner) StartAll(ctx context.Context, trigger runlog.Trigger, callerID string) error {
	atomic.AddInt32(&c.calls, 1)
	return nil
}

func TestSchedulerTicksTriggerRuns(t *testing.T) {
	r := &countingRunner{}
	s := New(r)
	if err := s.Start("@every 50ms"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Stop()

	time.Sleep(200 * time.Millisecond)
	if atomic.LoadInt32(&r.calls) == 0 {
		t.Errorf("expected at least one scheduled run")
	}
}

func TestSchedulerRejectsInvalidExpression(t *testing.T) {
	r := &countingRunner{}
	s := New(r)
	if err := s.Start("not a cron expression"); err == nil {
		t.Errorf("expected an error for an invalid cron expression")
	}
}
