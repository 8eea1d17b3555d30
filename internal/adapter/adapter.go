// Package adapter defines the Source Adapter capability and the shared
// fetch/robots/retry/filter/emit helper every adapter implementation calls,
// per §4.4 and §9 ("Adapter polymorphism").
package adapter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/codepr/topicscraper/internal/content"
	"github.com/codepr/topicscraper/internal/fetcher"
	"github.com/codepr/topicscraper/internal/relevance"
	"github.com/codepr/topicscraper/internal/runlog"
)

// Batch is the set of candidate records an adapter run produced after
// relevance filtering, plus the accounting needed to populate a RunLog.
type Batch struct {
	Records       []*content.ContentRecord
	Found         int
	URLsProcessed int
	URLsFailed    int
}

// Adapter is the single capability every source implements: run a
// scraping pass and yield a filtered batch of candidate records. Modeled
// as a small interface rather than an inheritance chain, per §9.
type Adapter interface {
	// Name is the adapter's stable identifier, used for orchestrator
	// routing and run-log attribution.
	Name() string
	// Run executes one scraping pass, pushing every relevant candidate it
	// finds via the Collector passed to it.
	Run(ctx context.Context, h *Helper, collect Collector) error
}

// Collector receives candidate records as an adapter discovers them.
// Implementations are expected to apply the relevance filter before
// keeping the item, matching addItem in §4.4.
type Collector interface {
	// AddItem validates, filters, and stages a candidate; it returns true
	// if the candidate passed validation and relevance and was staged.
	AddItem(candidate *content.ContentRecord, tags, keywords []string) bool
}

// Helper bundles the shared dependencies every adapter routes its requests
// through: the Fetcher (robots/concurrency/rate-limit/retry envelope), the
// relevance Filter, and the owning run's log for warnings/errors.
type Helper struct {
	Fetcher   *fetcher.Fetcher
	Filter    *relevance.Filter
	RunLog    *runlog.RunLog
	AdapterID string
}

// FetchOptions narrows a single Helper.Fetch call.
type FetchOptions = fetcher.CallOptions

// Fetch routes one URL through the Fetcher, accumulating run-log results
// and errors on failure per the propagation policy of §7.
func (h *Helper) Fetch(ctx context.Context, url string, opts FetchOptions) ([]byte, error) {
	res, err := h.Fetcher.Fetch(ctx, url, opts, h.RunLog)
	if err != nil {
		h.RunLog.UpdateResults(runlog.Results{URLsFailed: 1})
		h.RunLog.AddError(runlog.ErrorEntry{
			Kind:    runlog.ClassifyFetchError(err),
			Message: err.Error(),
			URL:     url,
		})
		return nil, err
	}
	h.RunLog.UpdateResults(runlog.Results{URLsProcessed: 1})
	return res.Body, nil
}

// collector is the default Collector: applies addItem semantics (title +
// URL required, relevance filter over the composed corpus) and stages
// surviving candidates into a Batch.
type collector struct {
	batch       *Batch
	filter      *relevance.Filter
	sourceLabel string
	adapterID   string
}

// NewCollector builds the default addItem-style Collector that backs most
// adapters.
func NewCollector(filter *relevance.Filter, sourceLabel, adapterID string) (Collector, *Batch) {
	batch := &Batch{}
	return &collector{batch: batch, filter: filter, sourceLabel: sourceLabel, adapterID: adapterID}, batch
}

// AddItem implements the addItem algorithm of §4.4: drop anything missing
// a title or URL, compose the lower-cased corpus, and keep the candidate
// only if the corpus matches at least one configured keyword. The corpus
// is built from the candidate as the adapter produced it (title,
// description, its own tags and keyword hits, source labels); the tags and
// keywords passed in are attached afterwards and do not count toward
// relevance, so an adapter's fixed default tags cannot make every
// candidate pass.
func (c *collector) AddItem(candidate *content.ContentRecord, tags, keywords []string) bool {
	if strings.TrimSpace(candidate.Title) == "" || strings.TrimSpace(candidate.URL) == "" {
		return false
	}
	c.batch.Found++

	corpus := composeCorpus(candidate, c.sourceLabel)
	candidate.Tags = mergeUnique(candidate.Tags, tags)
	candidate.KeywordHits = mergeUnique(candidate.KeywordHits, keywords)
	candidate.ScrapedBy = c.adapterID
	candidate.ScrapedAt = time.Now()
	if candidate.Status == "" {
		candidate.Status = content.StatusActive
	}

	ok, hits := c.filter.Matches(corpus)
	if !ok {
		return false
	}
	candidate.KeywordHits = mergeUnique(candidate.KeywordHits, hits)
	candidate.ApplyHash()
	c.batch.Records = append(c.batch.Records, candidate)
	return true
}

func composeCorpus(c *content.ContentRecord, sourceLabel string) string {
	parts := []string{c.Title, c.Description, strings.Join(c.Tags, " "), strings.Join(c.KeywordHits, " "), sourceLabel, c.SourceName}
	return strings.ToLower(strings.Join(parts, " "))
}

func mergeUnique(existing, extra []string) []string {
	seen := make(map[string]bool, len(existing)+len(extra))
	out := make([]string, 0, len(existing)+len(extra))
	for _, v := range append(append([]string{}, existing...), extra...) {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

// NormalizeHost lower-cases a hostname and strips a leading "www.", per
// the Source Adapter's origin-host normalization in §4.4.
func NormalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	return strings.TrimPrefix(host, "www.")
}

// ErrNoParser is returned by an adapter when it cannot find a usable
// parser implementation for a feed payload's content type.
var ErrNoParser = fmt.Errorf("adapter: no parser registered for this feed content type")
