// Package robots implements a fetch-once, TTL-cached robots.txt lookup
// service. It answers allow/deny and crawl-delay queries per origin,
// coalescing concurrent misses on the same origin into a single network
// fetch.
package robots

import (
	"container/list"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"

	"github.com/codepr/topicscraper/internal/scraperrors"
)

const (
	robotsTxtPath       = "/robots.txt"
	defaultFetchTimeout = 10 * time.Second
	defaultTTL          = time.Hour
	defaultMaxCacheSize = 100
)

// entry is the cached robots state for a single origin, mirroring the
// RobotsEntry record of the data model: fetched-at, exists flag and parsed
// ruleset (nil on a permissive fallback). The raw field is never filled:
// fetch hands the response straight to the parser without keeping the body.
type entry struct {
	origin    string
	fetchedAt time.Time
	exists    bool
	robots    *robotstxt.RobotsData
	raw       string
}

func (e *entry) expired(ttl time.Duration) bool {
	return time.Since(e.fetchedAt) > ttl
}

// Stats exposes the robots cache's telemetry, rolled up into the run log's
// robots summary.
type Stats struct {
	Checked           int64
	URLsBlocked       int64
	CrawlDelayApplied int64
	FetchErrors       int64
}

// Cache is a TTL+LRU bounded cache of per-origin robots.txt rulesets, with
// single-flight de-duplication of concurrent misses on the same origin. A
// cache hit moves the entry to the back, so eviction drops the least
// recently used origin.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List // front = least recently used
	ttl     time.Duration
	maxSize int
	client  *http.Client

	inflight map[string]*flight

	stats Stats
}

type flight struct {
	done chan struct{}
	e    *entry
	err  error
}

// Option configures a Cache at construction time.
type Option func(*Cache)

// WithTTL overrides the default one-hour cache TTL.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) { c.ttl = ttl }
}

// WithMaxSize overrides the default bound of 100 cached origins.
func WithMaxSize(n int) Option {
	return func(c *Cache) { c.maxSize = n }
}

// WithHTTPClient overrides the client used to fetch robots.txt; useful for
// injecting a client with a custom transport in tests.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Cache) { c.client = client }
}

// New creates an empty robots Cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries:  make(map[string]*list.Element),
		order:    list.New(),
		ttl:      defaultTTL,
		maxSize:  defaultMaxCacheSize,
		client:   &http.Client{Timeout: defaultFetchTimeout},
		inflight: make(map[string]*flight),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Stats returns a snapshot of the cache's telemetry counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// IsAllowed reports whether ua may fetch rawURL per the origin's cached
// robots.txt rules. A fetch error or missing robots.txt is treated as
// permissive (allow), per §4.1.
func (c *Cache) IsAllowed(rawURL, ua string) bool {
	allowed, _ := c.Check(rawURL, ua)
	return allowed
}

// Check behaves like IsAllowed, but also returns the *scraperrors.
// RobotsFetchError (if any) raised by the robots.txt fetch this call
// needed to answer the question, so a caller can surface it as a run-log
// warning per §4.1 ("Fails with RobotsFetchError (non-fatal; surfaced as
// a warning on the run log)"). err is nil on a cache hit or a clean miss
// (no robots.txt, or a 4xx status short of 500).
func (c *Cache) Check(rawURL, ua string) (allowed bool, err error) {
	c.mu.Lock()
	c.stats.Checked++
	c.mu.Unlock()

	e, ferr := c.lookup(rawURL)
	if e == nil || !e.exists || e.robots == nil {
		return true, ferr
	}
	u, parseErr := url.Parse(rawURL)
	if parseErr != nil {
		return true, ferr
	}
	group := e.robots.FindGroup(ua)
	allowed = group.Test(requestURI(u))
	if !allowed {
		c.mu.Lock()
		c.stats.URLsBlocked++
		c.mu.Unlock()
	}
	return allowed, ferr
}

// GetCrawlDelay returns the crawl-delay directive (if any) for ua at
// rawURL's origin.
func (c *Cache) GetCrawlDelay(rawURL, ua string) (time.Duration, bool) {
	e, _ := c.lookup(rawURL)
	if e == nil || !e.exists || e.robots == nil {
		return 0, false
	}
	group := e.robots.FindGroup(ua)
	if group == nil || group.CrawlDelay <= 0 {
		return 0, false
	}
	c.mu.Lock()
	c.stats.CrawlDelayApplied++
	c.mu.Unlock()
	return group.CrawlDelay, true
}

// GetSitemaps returns the sitemap URLs declared by rawURL's origin.
func (c *Cache) GetSitemaps(rawURL string) []string {
	e, _ := c.lookup(rawURL)
	if e == nil || !e.exists || e.robots == nil {
		return nil
	}
	return e.robots.Sitemaps
}

// lookup returns the cached or freshly fetched entry for rawURL's origin,
// coalescing concurrent misses via single-flight, plus the fetch error (if
// any) from the fetch that produced it. The error is returned to every
// caller coalesced onto the same in-flight fetch, not just the one that
// triggered it, so each of their run logs can record the warning.
func (c *Cache) lookup(rawURL string) (*entry, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, nil
	}
	origin := originOf(u)

	c.mu.Lock()
	if el, ok := c.entries[origin]; ok {
		e := el.Value.(*entry)
		if !e.expired(c.ttl) {
			c.order.MoveToBack(el)
			c.mu.Unlock()
			return e, nil
		}
		c.removeLocked(origin)
	}
	if fl, ok := c.inflight[origin]; ok {
		c.mu.Unlock()
		<-fl.done
		return fl.e, fl.err
	}
	fl := &flight{done: make(chan struct{})}
	c.inflight[origin] = fl
	c.mu.Unlock()

	e, ferr := c.fetch(origin)

	c.mu.Lock()
	delete(c.inflight, origin)
	c.insertLocked(origin, e)
	fl.e = e
	fl.err = ferr
	c.mu.Unlock()
	close(fl.done)
	return e, ferr
}

// fetch performs the one-shot network fetch of <origin>/robots.txt. Any
// network or parse error yields a permissive (non-existent) entry and
// increments fetchErrors; the decision on error is always "allow", but the
// wrapped error is still returned so the caller can log it as a warning.
func (c *Cache) fetch(origin string) (*entry, error) {
	now := time.Now()
	target := origin + robotsTxtPath
	resp, err := c.client.Get(target)
	if err != nil {
		c.mu.Lock()
		c.stats.FetchErrors++
		c.mu.Unlock()
		return &entry{origin: origin, fetchedAt: now, exists: false}, &scraperrors.RobotsFetchError{Origin: origin, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		c.mu.Lock()
		c.stats.FetchErrors++
		c.mu.Unlock()
		statusErr := fmt.Errorf("unexpected status %s", resp.Status)
		return &entry{origin: origin, fetchedAt: now, exists: false}, &scraperrors.RobotsFetchError{Origin: origin, Err: statusErr}
	}
	if resp.StatusCode != http.StatusOK {
		return &entry{origin: origin, fetchedAt: now, exists: false}, nil
	}

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		c.mu.Lock()
		c.stats.FetchErrors++
		c.mu.Unlock()
		return &entry{origin: origin, fetchedAt: now, exists: false}, &scraperrors.RobotsFetchError{Origin: origin, Err: err}
	}
	return &entry{origin: origin, fetchedAt: now, exists: true, robots: data}, nil
}

// insertLocked stores e, evicting the oldest entry if at capacity. Caller
// must hold c.mu.
func (c *Cache) insertLocked(origin string, e *entry) {
	if el, ok := c.entries[origin]; ok {
		el.Value = e
		c.order.MoveToBack(el)
		return
	}
	if c.order.Len() >= c.maxSize {
		oldest := c.order.Front()
		if oldest != nil {
			old := oldest.Value.(*entry)
			c.order.Remove(oldest)
			delete(c.entries, old.origin)
		}
	}
	el := c.order.PushBack(e)
	c.entries[origin] = el
}

// removeLocked drops an expired entry so the next lookup re-fetches.
// Caller must hold c.mu.
func (c *Cache) removeLocked(origin string) {
	if el, ok := c.entries[origin]; ok {
		c.order.Remove(el)
		delete(c.entries, origin)
	}
}

func originOf(u *url.URL) string {
	scheme := u.Scheme
	if scheme == "" {
		scheme = "https"
	}
	return scheme + "://" + u.Host
}

func requestURI(u *url.URL) string {
	if u.RawQuery == "" {
		return u.Path
	}
	return u.Path + "?" + u.RawQuery
}
