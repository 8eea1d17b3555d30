// Package runlog implements the per-session RunLog state machine of §4.6:
// pending -> running -> {completed|failed|cancelled|partial}, with
// append-only error/warning accumulation while running.
package runlog

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/codepr/topicscraper/internal/scraperrors"
)

// Status is one of the RunLog's states.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	StatusPartial   Status = "partial"
)

// Trigger is the reason a run started.
type Trigger string

const (
	TriggerManual    Trigger = "manual"
	TriggerScheduled Trigger = "scheduled"
	TriggerAPI       Trigger = "api"
	TriggerSystem    Trigger = "system"
)

// Results is the counters bucket accumulated incrementally during a run.
type Results struct {
	Found         int `bson:"found" json:"found"`
	Inserted      int `bson:"inserted" json:"inserted"`
	Updated       int `bson:"updated" json:"updated"`
	Duplicates    int `bson:"duplicates" json:"duplicates"`
	Failed        int `bson:"failed" json:"failed"`
	URLsProcessed int `bson:"urlsProcessed" json:"urlsProcessed"`
	URLsFailed    int `bson:"urlsFailed" json:"urlsFailed"`
}

// Add accumulates delta into r in place.
func (r *Results) Add(delta Results) {
	r.Found += delta.Found
	r.Inserted += delta.Inserted
	r.Updated += delta.Updated
	r.Duplicates += delta.Duplicates
	r.Failed += delta.Failed
	r.URLsProcessed += delta.URLsProcessed
	r.URLsFailed += delta.URLsFailed
}

// Performance is the performance-counters bucket of §3.
type Performance struct {
	AvgTimePerItemMs float64 `bson:"avgTimePerItem" json:"avgTimePerItem"`
	TotalRequests    int64   `bson:"totalRequests" json:"totalRequests"`
	FailedRequests   int64   `bson:"failedRequests" json:"failedRequests"`
	AvgResponseMs    float64 `bson:"avgResponseTime" json:"avgResponseTime"`
	DataTransferred  int64   `bson:"dataTransferred" json:"dataTransferred"`
	MemoryUsageBytes int64   `bson:"memoryUsage" json:"memoryUsage"`
}

// ErrorEntry is a single append-only error record.
type ErrorEntry struct {
	Timestamp  time.Time `bson:"timestamp" json:"timestamp"`
	Kind       string    `bson:"kind" json:"kind"`
	Message    string    `bson:"message" json:"message"`
	URL        string    `bson:"url,omitempty" json:"url,omitempty"`
	Stack      string    `bson:"stack,omitempty" json:"stack,omitempty"`
	RetryCount int       `bson:"retryCount" json:"retryCount"`
}

// WarningEntry is a single append-only warning record.
type WarningEntry struct {
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
	Message   string    `bson:"message" json:"message"`
	URL       string    `bson:"url,omitempty" json:"url,omitempty"`
}

// ConfigSnapshot freezes the configuration in effect when the run started.
type ConfigSnapshot struct {
	MaxItems     int           `bson:"maxItems" json:"maxItems"`
	DelayMin     time.Duration `bson:"delayMin" json:"delayMin"`
	DelayMax     time.Duration `bson:"delayMax" json:"delayMax"`
	Timeout      time.Duration `bson:"timeout" json:"timeout"`
	MaxRetries   int           `bson:"maxRetries" json:"maxRetries"`
	UserAgent    string        `bson:"userAgent" json:"userAgent"`
	Keywords     []string      `bson:"keywords" json:"keywords"`
	Filters      []string      `bson:"filters" json:"filters"`
}

// RateLimitSummary rolls up the politeness layer's activity for the run.
type RateLimitSummary struct {
	WasThrottled  bool  `bson:"wasThrottled" json:"wasThrottled"`
	ThrottleCount int64 `bson:"throttleCount" json:"throttleCount"`
	TotalDelayMs  int64 `bson:"totalDelayMs" json:"totalDelayMs"`
}

// RobotsSummary rolls up the robots cache's activity for the run.
type RobotsSummary struct {
	Checked           int64 `bson:"checked" json:"checked"`
	URLsBlocked       int64 `bson:"urlsBlocked" json:"urlsBlocked"`
	CrawlDelayApplied int64 `bson:"crawlDelayApplied" json:"crawlDelayApplied"`
}

// Data holds a RunLog's plain field state, with no embedded lock, so it
// can be copied freely for snapshots and persistence.
type Data struct {
	SessionID   string           `bson:"_id" json:"sessionId"`
	AdapterName string           `bson:"adapterName" json:"adapterName"`
	SourceLabel string           `bson:"sourceLabel" json:"sourceLabel"`
	OriginURL   string           `bson:"originUrl" json:"originUrl"`
	Status      Status           `bson:"status" json:"status"`
	StartedAt   time.Time        `bson:"startedAt" json:"startedAt"`
	EndedAt     *time.Time       `bson:"endedAt,omitempty" json:"endedAt,omitempty"`
	Duration    time.Duration    `bson:"duration" json:"duration"`
	Results     Results          `bson:"results" json:"results"`
	Performance Performance      `bson:"performance" json:"performance"`
	Errors      []ErrorEntry     `bson:"errors" json:"errors"`
	Warnings    []WarningEntry   `bson:"warnings" json:"warnings"`
	Config      ConfigSnapshot   `bson:"config" json:"config"`
	Trigger     Trigger          `bson:"trigger" json:"trigger"`
	CallerID    string           `bson:"callerId,omitempty" json:"callerId,omitempty"`
	RateLimit   RateLimitSummary `bson:"rateLimit" json:"rateLimit"`
	Robots      RobotsSummary    `bson:"robots" json:"robots"`
}

// RunLog is one scraping session, guarded by an internal mutex since it is
// mutated concurrently from the fetch pipeline (addError/addWarning) and
// read concurrently from the admin status endpoint.
type RunLog struct {
	mu   sync.Mutex
	data Data

	terminal bool
}

// NewSessionID mints an opaque monotonic-source-random session token.
func NewSessionID() string {
	var buf [12]byte
	_, _ = rand.Read(buf[:])
	return time.Now().UTC().Format("20060102T150405") + "-" + hex.EncodeToString(buf[:])
}

// Start opens a RunLog entry in the "running" state, per the startSession
// transition of §4.6.
func Start(adapterName, sourceLabel, originURL string, trigger Trigger, callerID string, cfg ConfigSnapshot) *RunLog {
	return &RunLog{
		data: Data{
			SessionID:   NewSessionID(),
			AdapterName: adapterName,
			SourceLabel: sourceLabel,
			OriginURL:   originURL,
			Status:      StatusRunning,
			StartedAt:   time.Now(),
			Config:      cfg,
			Trigger:     trigger,
			CallerID:    callerID,
		},
	}
}

// SessionID returns the run's opaque session token.
func (r *RunLog) SessionID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.data.SessionID
}

// Status returns the run's current status.
func (r *RunLog) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.data.Status
}

// UpdateResults accumulates delta into the run's counters. Valid only
// while running; a no-op once terminal.
func (r *RunLog) UpdateResults(delta Results) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.terminal {
		return
	}
	r.data.Results.Add(delta)
}

// AddError appends an error entry. Valid only while running.
func (r *RunLog) AddError(e ErrorEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.terminal {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	r.data.Errors = append(r.data.Errors, e)
}

// AddWarning appends a warning entry. Valid only while running.
func (r *RunLog) AddWarning(w WarningEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.terminal {
		return
	}
	if w.Timestamp.IsZero() {
		w.Timestamp = time.Now()
	}
	r.data.Warnings = append(r.data.Warnings, w)
}

// WarnRobotsDisallowed satisfies fetcher.RobotsLog, letting the fetcher
// append a robots-skip warning without importing the runlog package's
// richer API.
func (r *RunLog) WarnRobotsDisallowed(url string) {
	r.AddWarning(WarningEntry{Message: "skipped: disallowed by robots.txt", URL: url})
}

// WarnRobotsFetchError satisfies fetcher.RobotsLog, recording that a
// robots.txt fetch for origin failed and was treated as permissive per
// §4.1, without failing the fetch itself.
func (r *RunLog) WarnRobotsFetchError(origin string, err error) {
	rfe := &scraperrors.RobotsFetchError{Origin: origin, Err: err}
	r.AddWarning(WarningEntry{Message: rfe.Error(), URL: origin})
}

// RecordAttemptFailure satisfies fetcher.RobotsLog, appending an error
// entry for a single failed fetch attempt with its retry count, per §3's
// ErrorEntry.retryCount and §8 Scenario 4. Called once per failed attempt,
// regardless of whether a later attempt of the same Fetch call succeeds.
func (r *RunLog) RecordAttemptFailure(url string, attempt int, err error) {
	r.AddError(ErrorEntry{
		Kind:       ClassifyFetchError(err),
		Message:    err.Error(),
		URL:        url,
		RetryCount: attempt,
	})
}

// ClassifyFetchError buckets a fetch error into one of the coarse kinds
// used for run-log error entries, matching the error kinds of §7's
// propagation-policy table.
func ClassifyFetchError(err error) string {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "disallowed"):
		return "RobotsDisallowed"
	case strings.Contains(msg, "context deadline exceeded"), strings.Contains(msg, "Timeout"):
		return "FetchTimeout"
	default:
		return "FetchError"
	}
}

// SetRateLimitSummary records the politeness layer's activity for the run.
// Valid only while running; a no-op once terminal.
func (r *RunLog) SetRateLimitSummary(s RateLimitSummary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.terminal {
		return
	}
	r.data.RateLimit = s
}

// SetRobotsSummary records the robots cache's activity for the run. Valid
// only while running; a no-op once terminal.
func (r *RunLog) SetRobotsSummary(s RobotsSummary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.terminal {
		return
	}
	r.data.Robots = s
}

// Complete transitions the run to "completed", or to "partial" if results
// carries any failures, per §4.6. No-op if already terminal (first wins).
func (r *RunLog) Complete(results Results) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.terminal {
		return
	}
	r.data.Results.Add(results)
	r.finishLocked(StatusCompleted)
	if r.data.Results.Failed > 0 {
		r.data.Status = StatusPartial
	}
}

// Fail transitions the run to "failed", appending err as a final error
// entry. No-op if already terminal.
func (r *RunLog) Fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.terminal {
		return
	}
	if err != nil {
		r.data.Errors = append(r.data.Errors, ErrorEntry{Timestamp: time.Now(), Kind: "fatal", Message: err.Error()})
	}
	r.finishLocked(StatusFailed)
}

// Cancel transitions the run to "cancelled". No-op if already terminal.
func (r *RunLog) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.terminal {
		return
	}
	r.finishLocked(StatusCancelled)
}

// finishLocked sets the terminal bookkeeping fields. Caller must hold r.mu.
func (r *RunLog) finishLocked(status Status) {
	now := time.Now()
	r.data.EndedAt = &now
	r.data.Duration = now.Sub(r.data.StartedAt)
	r.data.Status = status
	r.terminal = true
}

// Snapshot returns a value copy of the run log's data, safe to read
// without holding the caller's own lock.
func (r *RunLog) Snapshot() Data {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := r.data
	cp.Errors = append([]ErrorEntry(nil), r.data.Errors...)
	cp.Warnings = append([]WarningEntry(nil), r.data.Warnings...)
	return cp
}

// IsTerminal reports whether the run has reached a terminal status.
func (r *RunLog) IsTerminal() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.terminal
}
