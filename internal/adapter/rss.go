package adapter

import (
	"bytes"
	"context"
	"net/url"
	"strings"

	"github.com/mmcdole/gofeed"

	"github.com/codepr/topicscraper/internal/content"
	"github.com/codepr/topicscraper/internal/runlog"
	"github.com/codepr/topicscraper/internal/scraperrors"
)

// RSSSource describes one feed a RSSAdapter consumes: its URL, the friendly
// source name attached to every record, the fixed category it publishes
// under, and extra tags layered on top of the defaults.
type RSSSource struct {
	Name     string
	FeedURL  string
	Category content.Category
	Tags     []string
}

// RSSAdapter fetches one or more RSS/Atom feeds and normalizes each entry
// into a ContentRecord candidate.
type RSSAdapter struct {
	name    string
	sources []RSSSource
	parser  *gofeed.Parser
}

// NewRSSAdapter builds an adapter with a stable name and the list of feeds
// it polls on each run.
func NewRSSAdapter(name string, sources []RSSSource) *RSSAdapter {
	return &RSSAdapter{name: name, sources: sources, parser: gofeed.NewParser()}
}

// Name implements Adapter.
func (a *RSSAdapter) Name() string { return a.name }

// Run implements Adapter: fetches every configured feed through the shared
// Helper (robots/rate-limit/retry envelope), parses it with gofeed, and
// stages each normalized item through collect.AddItem.
func (a *RSSAdapter) Run(ctx context.Context, h *Helper, collect Collector) error {
	for _, src := range a.sources {
		if err := ctx.Err(); err != nil {
			return err
		}
		body, err := h.Fetch(ctx, src.FeedURL, FetchOptions{})
		if err != nil {
			// Already recorded on the run log by Helper.Fetch; move on to
			// the next feed rather than failing the whole run.
			continue
		}

		feed, err := a.parser.Parse(bytes.NewReader(body))
		if err != nil {
			perr := &scraperrors.ParseError{Source: src.FeedURL, Err: err}
			h.RunLog.AddError(runlog.ErrorEntry{
				Kind:    "ParseError",
				Message: perr.Error(),
				URL:     src.FeedURL,
			})
			continue
		}

		host := feedHost(src.FeedURL)
		for _, item := range feed.Items {
			record := normalizeItem(item, src, host, feed.Title)
			tags := append([]string{string(src.Category), "webmethods", "rss"}, src.Tags...)
			collect.AddItem(record, tags, nil)
		}
	}
	return nil
}

func normalizeItem(item *gofeed.Item, src RSSSource, host, feedTitle string) *content.ContentRecord {
	record := &content.ContentRecord{
		Category:       src.Category,
		Title:          strings.TrimSpace(item.Title),
		Description:    strings.TrimSpace(item.Description),
		URL:            item.Link,
		SourceHost:     host,
		SourceName:     firstNonEmpty(src.Name, feedTitle, host),
		RelevanceScore: defaultRelevanceScore(item),
	}
	if item.Image != nil {
		record.ImageURL = item.Image.URL
	}
	if len(item.Authors) > 0 {
		record.Author = &content.Author{Name: item.Authors[0].Name}
	} else if item.Author != nil {
		record.Author = &content.Author{Name: item.Author.Name}
	}
	if item.PublishedParsed != nil {
		t := *item.PublishedParsed
		record.PublishedAt = &t
	} else if item.UpdatedParsed != nil {
		t := *item.UpdatedParsed
		record.PublishedAt = &t
	}
	if item.Content != "" {
		record.Body = item.Content
	}

	if src.Category == content.CategoryJob {
		record.JobDetail = parseJobTitle(item.Title)
	}
	return record
}

// defaultRelevanceScore picks a baseline score in [50,60], nudged upward
// slightly when the item carries its own feed categories, matching the
// "default relevance in a narrow band, adapters may refine it" note of
// §4.4.
func defaultRelevanceScore(item *gofeed.Item) float64 {
	score := 50.0
	if len(item.Categories) > 0 {
		score += 10.0
	}
	return score
}

// parseJobTitle splits the common job-feed title shape "role - company -
// location" into a JobDetail sub-record. Any segment that's missing is left
// zero-valued rather than guessed.
func parseJobTitle(title string) *content.JobDetail {
	parts := strings.Split(title, " - ")
	jd := &content.JobDetail{}
	if len(parts) >= 2 {
		jd.Company = strings.TrimSpace(parts[1])
	}
	if len(parts) >= 3 {
		jd.Location = strings.TrimSpace(parts[2])
		jd.Remote = strings.Contains(strings.ToLower(jd.Location), "remote")
	}
	return jd
}

func feedHost(feedURL string) string {
	u, err := url.Parse(feedURL)
	if err != nil {
		return ""
	}
	return NormalizeHost(u.Host)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
