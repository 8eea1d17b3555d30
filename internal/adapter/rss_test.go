package adapter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/codepr/topicscraper/internal/content"
	"github.com/codepr/topicscraper/internal/fetcher"
	"github.com/codepr/topicscraper/internal/ratelimit"
	"github.com/codepr/topicscraper/internal/relevance"
	"github.com/codepr/topicscraper/internal/robots"
	"github.com/codepr/topicscraper/internal/runlog"
)

const sampleFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>Example Feed</title>
  <item>
    <title>webMethods Integration Server gets a new release</title>
    <description>A look at the new webMethods feature set</description>
    <link>https://example.com/articles/wm-release</link>
    <pubDate>Mon, 02 Jan 2006 15:04:05 MST</pubDate>
  </item>
  <item>
    <title>Completely unrelated gardening tips</title>
    <description>Nothing to do with integration platforms</description>
    <link>https://example.com/articles/gardening</link>
  </item>
</channel>
</rss>`

const sampleJobFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>Example Jobs</title>
  <item>
    <title>webMethods Developer - Acme Corp - Remote</title>
    <description>Looking for a webMethods integration developer</description>
    <link>https://example.com/jobs/1</link>
  </item>
</channel>
</rss>`

// noRateLimit keys its profile by "0.1", the base domain BaseDomain derives
// from an httptest server's 127.0.0.1 host.
func noRateLimit() *ratelimit.Limiter {
	return ratelimit.New(map[string]ratelimit.DomainProfile{
		"0.1": {Capacity: 1000, RefillRate: 1000, MinDelay: 0, MaxDelay: 0},
	}, 8)
}

func newTestHelper(adapterID string) *Helper {
	f := fetcher.New(robots.New(), noRateLimit(), fetcher.WithoutRobots())
	r := runlog.Start(adapterID, "test source", "", runlog.TriggerManual, "", runlog.ConfigSnapshot{})
	return &Helper{
		Fetcher:   f,
		Filter:    relevance.New([]string{"webmethods"}),
		RunLog:    r,
		AdapterID: adapterID,
	}
}

func TestRSSAdapterKeepsOnlyRelevantItems(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(sampleFeed))
	}))
	defer server.Close()

	h := newTestHelper("rss-news")
	a := NewRSSAdapter("rss-news", []RSSSource{
		{Name: "Example Feed", FeedURL: server.URL, Category: content.CategoryNews},
	})
	collect, batch := NewCollector(h.Filter, "Example Feed", "rss-news")

	if err := a.Run(context.Background(), h, collect); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if batch.Found != 2 {
		t.Errorf("expected 2 items found before filtering, got %d", batch.Found)
	}
	if len(batch.Records) != 1 {
		t.Fatalf("expected 1 relevant record, got %d", len(batch.Records))
	}
	rec := batch.Records[0]
	if rec.Title != "webMethods Integration Server gets a new release" {
		t.Errorf("unexpected title kept: %q", rec.Title)
	}
	if rec.ContentHash == "" {
		t.Errorf("expected content hash to be set")
	}
	if rec.SourceHost != "example.com" {
		t.Errorf("expected normalized source host, got %q", rec.SourceHost)
	}
}

func TestRSSAdapterParsesJobTitle(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(sampleJobFeed))
	}))
	defer server.Close()

	h := newTestHelper("rss-jobs")
	a := NewRSSAdapter("rss-jobs", []RSSSource{
		{Name: "Example Jobs", FeedURL: server.URL, Category: content.CategoryJob},
	})
	collect, batch := NewCollector(h.Filter, "Example Jobs", "rss-jobs")

	if err := a.Run(context.Background(), h, collect); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(batch.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(batch.Records))
	}
	jd := batch.Records[0].JobDetail
	if jd == nil {
		t.Fatalf("expected job detail to be populated")
	}
	if jd.Company != "Acme Corp" {
		t.Errorf("expected company 'Acme Corp', got %q", jd.Company)
	}
	if !jd.Remote {
		t.Errorf("expected remote=true from 'Remote' location")
	}
}

func TestRSSAdapterSkipsItemsMissingTitleOrURL(t *testing.T) {
	const feed = `<?xml version="1.0"?><rss version="2.0"><channel><title>F</title>
	<item><title></title><link>https://example.com/x</link></item>
	</channel></rss>`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(feed))
	}))
	defer server.Close()

	h := newTestHelper("rss-news")
	a := NewRSSAdapter("rss-news", []RSSSource{
		{Name: "F", FeedURL: server.URL, Category: content.CategoryNews},
	})
	collect, batch := NewCollector(h.Filter, "F", "rss-news")

	if err := a.Run(context.Background(), h, collect); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(batch.Records) != 0 || batch.Found != 0 {
		t.Errorf("expected title-less item to be dropped before counting as found, got found=%d records=%d", batch.Found, len(batch.Records))
	}
}

func TestNormalizeHostStripsWWW(t *testing.T) {
	if got := NormalizeHost("WWW.Example.COM"); got != "example.com" {
		t.Errorf("expected example.com, got %q", got)
	}
}
