// Package orchestrator implements the explicit scraper singleton of §4.7:
// one Orchestrator instance owns every registered Source Adapter, runs them
// with bounded concurrency, and tracks what's currently running so the
// Admin API can report and control it.
package orchestrator

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"sync"
	"time"

	"github.com/codepr/topicscraper/internal/adapter"
	"github.com/codepr/topicscraper/internal/content"
	"github.com/codepr/topicscraper/internal/fetcher"
	"github.com/codepr/topicscraper/internal/messaging"
	"github.com/codepr/topicscraper/internal/ratelimit"
	"github.com/codepr/topicscraper/internal/relevance"
	"github.com/codepr/topicscraper/internal/robots"
	"github.com/codepr/topicscraper/internal/runlog"
	"github.com/codepr/topicscraper/internal/scraperrors"
)

// AdapterStatus is the orchestrator's current view of one adapter's last
// (or in-flight) run: status, startTime, optional endTime, optional error,
// per §4.7's `adapterName -> {status, startTime, endTime?, error?}` map.
type AdapterStatus struct {
	Name      string        `json:"name"`
	Running   bool          `json:"running"`
	StartedAt *time.Time    `json:"startTime,omitempty"`
	EndedAt   *time.Time    `json:"endTime,omitempty"`
	LastRun   *time.Time    `json:"lastRun,omitempty"`
	LastRunID string        `json:"lastRunId,omitempty"`
	LastState runlog.Status `json:"lastState,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// OverallCounters is the orchestrator-wide tally of §4.7:
// {totalScraped, totalInserted, totalErrors}, reset at the start of every
// StartAll/StartSpecific call.
type OverallCounters struct {
	TotalScraped  int64 `json:"totalScraped"`
	TotalInserted int64 `json:"totalInserted"`
	TotalErrors   int64 `json:"totalErrors"`
}

// Status is the overall snapshot returned by GET /api/scraper/status: the
// adapter map, the overall counters, and the live limiter/robots-cache
// telemetry §4.7 requires alongside them.
type Status struct {
	Running     bool            `json:"running"`
	Adapters    []AdapterStatus `json:"adapters"`
	Overall     OverallCounters `json:"overall"`
	RateLimit   ratelimit.Stats `json:"rateLimit"`
	QueueLength int64           `json:"queueLength"`
	Robots      robots.Stats    `json:"robots"`
}

// RunEvent is the JSON payload published to the messaging bus once a run
// has reached its terminal state, decoupling telemetry consumers from the
// orchestrator's internals.
type RunEvent struct {
	SessionID string         `json:"sessionId"`
	Adapter   string         `json:"adapter"`
	Status    runlog.Status  `json:"status"`
	Results   runlog.Results `json:"results"`
	Timestamp time.Time      `json:"timestamp"`
}

// Config is the set of tunables the orchestrator applies to every run.
type Config struct {
	MaxItemsPerCategory int
	RequestTimeout      time.Duration
	MaxRetries          int
	MaxConcurrent       int
	DelayMin            time.Duration
	DelayMax            time.Duration
	RobotsUserAgent     string
	Keywords            []string
	ContentMaxAgeDays   int
}

// Orchestrator is the explicit singleton coordinating every registered
// adapter, made explicit per §9's "avoid a hidden package-scope singleton"
// design note.
type Orchestrator struct {
	mu       sync.Mutex
	adapters map[string]adapter.Adapter
	status   map[string]*AdapterStatus
	running  bool
	cancel   context.CancelFunc
	overall  OverallCounters

	fetcher     *fetcher.Fetcher
	limiter     *ratelimit.Limiter
	robots      *robots.Cache
	filter      *relevance.Filter
	store       *content.Store
	runLogStore *runlog.Store
	bus         messaging.Producer
	cfg         Config
	logger      *log.Logger
}

// New builds an Orchestrator wired to the shared fetch/rate-limit/robots/
// content dependencies. bus may be nil, in which case run events are
// dropped rather than queued.
func New(f *fetcher.Fetcher, limiter *ratelimit.Limiter, robotsCache *robots.Cache, store *content.Store,
	runLogStore *runlog.Store, bus messaging.Producer, cfg Config) *Orchestrator {
	return &Orchestrator{
		adapters:    make(map[string]adapter.Adapter),
		status:      make(map[string]*AdapterStatus),
		fetcher:     f,
		limiter:     limiter,
		robots:      robotsCache,
		filter:      relevance.New(cfg.Keywords),
		store:       store,
		runLogStore: runLogStore,
		bus:         bus,
		cfg:         cfg,
		logger:      log.New(os.Stderr, "orchestrator: ", log.LstdFlags),
	}
}

// Register adds an adapter under its own name. Call before StartAll/StartSpecific.
func (o *Orchestrator) Register(a adapter.Adapter) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.adapters[a.Name()] = a
	o.status[a.Name()] = &AdapterStatus{Name: a.Name()}
}

// Status returns a snapshot of the orchestrator's current state, per GET
// /api/scraper/status: the adapter map, the overall counters, and the
// live rate-limiter and robots-cache telemetry.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	out := Status{Running: o.running, Overall: o.overall}
	for _, s := range o.status {
		cp := *s
		out.Adapters = append(out.Adapters, cp)
	}
	o.mu.Unlock()

	if o.limiter != nil {
		out.RateLimit = o.limiter.Stats()
		out.QueueLength = o.limiter.QueueLength()
	}
	if o.robots != nil {
		out.Robots = o.robots.Stats()
	}
	return out
}

// StartAll runs every registered adapter concurrently, bounded by
// cfg.MaxConcurrent, and is blocked by §4.7's literal "only one run at a
// time" rule: a second call while any run is in flight returns
// ErrAlreadyRunning. Per-adapter concurrency ambiguity in the source spec
// is resolved here in favor of the conservative reading.
func (o *Orchestrator) StartAll(ctx context.Context, trigger runlog.Trigger, callerID string) error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return scraperrors.ErrAlreadyRunning
	}
	o.running = true
	o.overall = OverallCounters{}
	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	names := make([]string, 0, len(o.adapters))
	for name := range o.adapters {
		names = append(names, name)
	}
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.running = false
		o.cancel = nil
		o.mu.Unlock()
	}()

	o.limiter.Reset()

	maxConcurrent := o.cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	gate := make(chan struct{}, maxConcurrent)
	var wg sync.WaitGroup
	for _, name := range names {
		wg.Add(1)
		gate <- struct{}{}
		go func(name string) {
			defer wg.Done()
			defer func() { <-gate }()
			if err := o.runAdapter(runCtx, name, trigger, callerID); err != nil {
				o.logger.Printf("adapter %s run failed: %v", name, err)
			}
		}(name)
	}
	wg.Wait()

	if o.cfg.ContentMaxAgeDays > 0 && o.store != nil {
		if n, err := o.store.Cleanup(ctx, o.cfg.ContentMaxAgeDays); err != nil {
			o.logger.Printf("content cleanup failed: %v", err)
		} else if n > 0 {
			o.logger.Printf("content cleanup removed %d expired records", n)
		}
	}
	return nil
}

// StartSpecific runs a single named adapter, subject to the same
// single-flight rule as StartAll.
func (o *Orchestrator) StartSpecific(ctx context.Context, name string, trigger runlog.Trigger, callerID string) error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return scraperrors.ErrAlreadyRunning
	}
	if _, ok := o.adapters[name]; !ok {
		o.mu.Unlock()
		return scraperrors.ErrAdapterNotFound
	}
	o.running = true
	o.overall = OverallCounters{}
	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.running = false
		o.cancel = nil
		o.mu.Unlock()
	}()

	o.limiter.Reset()
	return o.runAdapter(runCtx, name, trigger, callerID)
}

// StopAll cancels any in-flight run cooperatively.
func (o *Orchestrator) StopAll() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancel != nil {
		o.cancel()
	}
}

// runAdapter executes a single adapter's scraping pass end-to-end: open a
// run log, run the adapter through a Helper, bulk-upsert its batch,
// terminate the run log, persist it, and publish a RunEvent.
func (o *Orchestrator) runAdapter(ctx context.Context, name string, trigger runlog.Trigger, callerID string) error {
	a := o.adapters[name]

	cfgSnap := runlog.ConfigSnapshot{
		MaxItems:   o.cfg.MaxItemsPerCategory,
		DelayMin:   o.cfg.DelayMin,
		DelayMax:   o.cfg.DelayMax,
		Timeout:    o.cfg.RequestTimeout,
		MaxRetries: o.cfg.MaxRetries,
		UserAgent:  o.cfg.RobotsUserAgent,
		Keywords:   o.filter.Keywords(),
	}
	rl := runlog.Start(name, name, "", trigger, callerID, cfgSnap)

	o.updateAdapterStatus(name, true, rl, nil)

	h := &adapter.Helper{Fetcher: o.fetcher, Filter: o.filter, RunLog: rl, AdapterID: name}
	collect, batch := adapter.NewCollector(o.filter, name, name)

	var rlBefore ratelimit.Stats
	var robotsBefore robots.Stats
	if o.limiter != nil {
		rlBefore = o.limiter.Stats()
	}
	if o.robots != nil {
		robotsBefore = o.robots.Stats()
	}

	runErr := a.Run(ctx, h, collect)

	if o.limiter != nil {
		after := o.limiter.Stats()
		rl.SetRateLimitSummary(runlog.RateLimitSummary{
			WasThrottled:  after.ThrottledRequests > rlBefore.ThrottledRequests,
			ThrottleCount: after.ThrottledRequests - rlBefore.ThrottledRequests,
			TotalDelayMs:  after.TotalDelayMs - rlBefore.TotalDelayMs,
		})
	}
	if o.robots != nil {
		after := o.robots.Stats()
		rl.SetRobotsSummary(runlog.RobotsSummary{
			Checked:           after.Checked - robotsBefore.Checked,
			URLsBlocked:       after.URLsBlocked - robotsBefore.URLsBlocked,
			CrawlDelayApplied: after.CrawlDelayApplied - robotsBefore.CrawlDelayApplied,
		})
	}

	var summary content.UpsertSummary
	var storeErr error
	if len(batch.Records) > 0 && o.store != nil {
		summary, storeErr = o.store.BulkUpsert(ctx, batch.Records)
	}

	switch {
	case ctx.Err() != nil:
		rl.Cancel()
	case runErr != nil:
		rl.Fail(runErr)
	case storeErr != nil:
		rl.Fail(storeErr)
	default:
		rl.Complete(runlog.Results{
			Found:      batch.Found,
			Inserted:   summary.Inserted,
			Updated:    summary.Modified,
			Duplicates: summary.Duplicates,
		})
	}

	o.mu.Lock()
	o.overall.TotalScraped += int64(batch.Found)
	o.overall.TotalInserted += int64(summary.Inserted)
	o.overall.TotalErrors += int64(len(rl.Snapshot().Errors))
	o.mu.Unlock()

	if o.runLogStore != nil {
		if err := o.runLogStore.Save(ctx, rl.Snapshot()); err != nil {
			o.logger.Printf("failed to persist run log %s: %v", rl.SessionID(), err)
		}
	}

	var runErrMsg string
	if runErr != nil {
		runErrMsg = runErr.Error()
	} else if storeErr != nil {
		runErrMsg = storeErr.Error()
	}
	o.updateAdapterStatus(name, false, rl, &runErrMsg)

	o.publishEvent(rl)

	if runErr != nil {
		return runErr
	}
	return storeErr
}

// updateAdapterStatus records the adapter's running/startTime/endTime/error
// fields in the orchestrator's status map, per §4.7's
// `adapterName -> {status, startTime, endTime?, error?}` contract.
func (o *Orchestrator) updateAdapterStatus(name string, running bool, rl *runlog.RunLog, errMsg *string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s, ok := o.status[name]
	if !ok {
		s = &AdapterStatus{Name: name}
		o.status[name] = s
	}
	s.Running = running
	now := time.Now()
	if running {
		s.StartedAt = &now
		s.EndedAt = nil
		s.Error = ""
		return
	}
	s.EndedAt = &now
	s.LastRun = &now
	s.LastRunID = rl.SessionID()
	s.LastState = rl.Status()
	if errMsg != nil {
		s.Error = *errMsg
	}
}

func (o *Orchestrator) publishEvent(rl *runlog.RunLog) {
	if o.bus == nil {
		return
	}
	snap := rl.Snapshot()
	payload, err := json.Marshal(RunEvent{
		SessionID: snap.SessionID,
		Adapter:   snap.AdapterName,
		Status:    snap.Status,
		Results:   snap.Results,
		Timestamp: time.Now(),
	})
	if err != nil {
		o.logger.Printf("failed to marshal run event: %v", err)
		return
	}
	if err := o.bus.Produce(payload); err != nil {
		o.logger.Println("unable to publish run event:", err)
	}
}

// IsRunning reports whether any run is currently in flight.
func (o *Orchestrator) IsRunning() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}
