package relevance

import "testing"

func TestMatchesSubstring(t *testing.T) {
	f := New([]string{"webmethods"})
	ok, hits := f.Matches("a webMethods release note")
	if !ok || len(hits) != 1 {
		t.Errorf("expected a match, got ok=%v hits=%v", ok, hits)
	}
}

func TestNoMatchReturnsFalse(t *testing.T) {
	f := New([]string{"webmethods"})
	ok, _ := f.Matches("completely unrelated content")
	if ok {
		t.Errorf("expected no match")
	}
}

func TestDefaultKeywordsUsedWhenEmpty(t *testing.T) {
	f := New(nil)
	if len(f.Keywords()) != 1 || f.Keywords()[0] != "webmethods" {
		t.Errorf("expected default keyword set, got %v", f.Keywords())
	}
}

func TestStemmingCatchesRelatedForms(t *testing.T) {
	f := New([]string{"scraping"})
	ok, _ := f.Matches("we built a scraper to scrape pages")
	if !ok {
		t.Errorf("expected stemmed match between 'scraping' and 'scrape'")
	}
}
