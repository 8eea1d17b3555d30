package runlog

import (
	"errors"
	"testing"
)

func TestStartOpensRunning(t *testing.T) {
	r := Start("rss-news", "News Feed", "https://example.com", TriggerManual, "", ConfigSnapshot{})
	if r.Status() != StatusRunning {
		t.Errorf("expected running, got %s", r.Status())
	}
	if r.SessionID() == "" {
		t.Errorf("expected a non-empty session id")
	}
}

func TestCompleteWithNoFailuresIsCompleted(t *testing.T) {
	r := Start("rss-news", "News Feed", "https://example.com", TriggerManual, "", ConfigSnapshot{})
	r.Complete(Results{Found: 2, Inserted: 2})
	snap := r.Snapshot()
	if snap.Status != StatusCompleted {
		t.Errorf("expected completed, got %s", snap.Status)
	}
	if snap.EndedAt == nil || snap.EndedAt.Before(snap.StartedAt) {
		t.Errorf("expected endedAt >= startedAt")
	}
}

func TestCompleteWithFailuresIsPartial(t *testing.T) {
	r := Start("rss-news", "News Feed", "https://example.com", TriggerManual, "", ConfigSnapshot{})
	r.Complete(Results{Found: 2, Inserted: 1, Failed: 1, URLsFailed: 1})
	if r.Status() != StatusPartial {
		t.Errorf("expected partial, got %s", r.Status())
	}
}

func TestCompleteWithOnlyURLsFailedStaysCompleted(t *testing.T) {
	r := Start("rss-news", "News Feed", "https://example.com", TriggerManual, "", ConfigSnapshot{})
	r.Complete(Results{Found: 1, URLsFailed: 1})
	if r.Status() != StatusCompleted {
		t.Errorf("expected completed (urlsFailed alone doesn't imply partial), got %s", r.Status())
	}
}

func TestEmptyFeedCompletesWithZeroCounters(t *testing.T) {
	r := Start("rss-news", "News Feed", "https://example.com", TriggerManual, "", ConfigSnapshot{})
	r.Complete(Results{})
	snap := r.Snapshot()
	if snap.Status != StatusCompleted {
		t.Errorf("expected completed, got %s", snap.Status)
	}
	if snap.Results != (Results{}) {
		t.Errorf("expected all-zero counters, got %+v", snap.Results)
	}
}

func TestFailAppendsErrorAndTerminates(t *testing.T) {
	r := Start("rss-news", "News Feed", "https://example.com", TriggerManual, "", ConfigSnapshot{})
	r.Fail(errors.New("store unavailable"))
	snap := r.Snapshot()
	if snap.Status != StatusFailed {
		t.Errorf("expected failed, got %s", snap.Status)
	}
	if len(snap.Errors) != 1 {
		t.Fatalf("expected 1 error entry, got %d", len(snap.Errors))
	}
}

func TestDoubleTerminalTransitionFirstWins(t *testing.T) {
	r := Start("rss-news", "News Feed", "https://example.com", TriggerManual, "", ConfigSnapshot{})
	r.Complete(Results{Found: 1, Inserted: 1})
	r.Cancel()
	if r.Status() != StatusCompleted {
		t.Errorf("expected first terminal transition (completed) to win, got %s", r.Status())
	}
}

func TestAddErrorAndWarningNoOpAfterTerminal(t *testing.T) {
	r := Start("rss-news", "News Feed", "https://example.com", TriggerManual, "", ConfigSnapshot{})
	r.Cancel()
	r.AddError(ErrorEntry{Message: "too late"})
	r.AddWarning(WarningEntry{Message: "too late"})
	snap := r.Snapshot()
	if len(snap.Errors) != 0 || len(snap.Warnings) != 0 {
		t.Errorf("expected no appends after terminal, got errors=%d warnings=%d", len(snap.Errors), len(snap.Warnings))
	}
}

func TestRecordAttemptFailureAppendsClassifiedEntry(t *testing.T) {
	r := Start("rss-news", "News Feed", "https://example.com", TriggerManual, "", ConfigSnapshot{})
	r.RecordAttemptFailure("https://example.com/a", 1, errors.New("unexpected status 503 Service Unavailable"))
	r.RecordAttemptFailure("https://example.com/a", 2, errors.New("unexpected status 503 Service Unavailable"))
	snap := r.Snapshot()
	if len(snap.Errors) != 2 {
		t.Fatalf("expected 2 error entries, got %d", len(snap.Errors))
	}
	if snap.Errors[0].RetryCount != 1 || snap.Errors[1].RetryCount != 2 {
		t.Errorf("expected retryCount sequence [1 2], got [%d %d]", snap.Errors[0].RetryCount, snap.Errors[1].RetryCount)
	}
	if snap.Errors[0].Kind != "FetchError" {
		t.Errorf("expected FetchError kind, got %s", snap.Errors[0].Kind)
	}
}

func TestFailedURLProducesMatchingErrorEntry(t *testing.T) {
	r := Start("rss-news", "News Feed", "https://example.com", TriggerManual, "", ConfigSnapshot{})
	r.AddError(ErrorEntry{URL: "https://example.com/a", Kind: "FetchTimeout", RetryCount: 3})
	r.Complete(Results{Found: 1, Failed: 1, URLsFailed: 1})
	found := false
	for _, e := range r.Snapshot().Errors {
		if e.URL == "https://example.com/a" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected errors[] to contain an entry for the failed url")
	}
}
