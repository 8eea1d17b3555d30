package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/codepr/topicscraper/internal/ratelimit"
	"github.com/codepr/topicscraper/internal/robots"
)

type recordingWarner struct {
	urls         []string
	retries      []int
	robotsErrors []string
}

func (r *recordingWarner) WarnRobotsDisallowed(url string) {
	r.urls = append(r.urls, url)
}

func (r *recordingWarner) WarnRobotsFetchError(origin string, err error) {
	r.robotsErrors = append(r.robotsErrors, origin)
}

func (r *recordingWarner) RecordAttemptFailure(url string, attempt int, err error) {
	r.retries = append(r.retries, attempt)
}

// noRateLimit keys its profile by "0.1", the base domain BaseDomain derives
// from an httptest server's 127.0.0.1 host.
func noRateLimit() *ratelimit.Limiter {
	return ratelimit.New(map[string]ratelimit.DomainProfile{
		"0.1": {Capacity: 1000, RefillRate: 1000, MinDelay: 0, MaxDelay: 0},
	}, 8)
}

func TestFetchSucceeds(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("payload"))
	}))
	defer server.Close()

	f := New(robots.New(), noRateLimit(), WithoutRobots())
	res, err := f.Fetch(context.Background(), server.URL, CallOptions{}, nil)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if string(res.Body) != "payload" {
		t.Errorf("expected payload body, got %q", res.Body)
	}
	if res.Attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", res.Attempts)
	}
}

func TestFetchRetriesThenSucceeds(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	f := New(robots.New(), noRateLimit(), WithoutRobots(), WithDefaultMaxRetries(3),
		WithBackoff(5*time.Millisecond, 20*time.Millisecond))
	res, err := f.Fetch(context.Background(), server.URL, CallOptions{}, nil)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if res.Attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", res.Attempts)
	}
}

func TestFetchRetriesThenSucceedsLogsIntermediateFailures(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	f := New(robots.New(), noRateLimit(), WithoutRobots(), WithDefaultMaxRetries(3),
		WithBackoff(5*time.Millisecond, 20*time.Millisecond))
	warner := &recordingWarner{}
	res, err := f.Fetch(context.Background(), server.URL, CallOptions{}, warner)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if res.Attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", res.Attempts)
	}
	if len(warner.retries) != 2 {
		t.Fatalf("expected 2 intermediate failure entries, got %d: %v", len(warner.retries), warner.retries)
	}
	if warner.retries[0] != 1 || warner.retries[1] != 2 {
		t.Errorf("expected retryCount sequence [1 2], got %v", warner.retries)
	}
}

func TestFetchExhaustsRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	f := New(robots.New(), noRateLimit(), WithoutRobots(), WithDefaultMaxRetries(1))
	_, err := f.Fetch(context.Background(), server.URL, CallOptions{}, nil)
	if err == nil {
		t.Fatalf("expected error after exhausting retries")
	}
}

func TestFetchZeroRetriesNeverRetries(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	f := New(robots.New(), noRateLimit(), WithoutRobots(), WithDefaultMaxRetries(0))
	_, err := f.Fetch(context.Background(), server.URL, CallOptions{}, nil)
	if err == nil {
		t.Fatalf("expected error")
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("expected exactly 1 call with MaxRetries=0, got %d", got)
	}
}

func TestFetchRobotsDisallowedSkipsNetwork(t *testing.T) {
	var calls int32
	handler := http.NewServeMux()
	handler.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("User-agent: *\nDisallow: /blocked\n"))
	})
	handler.HandleFunc("/blocked", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = w.Write([]byte("should not be fetched"))
	})
	server := httptest.NewServer(handler)
	defer server.Close()

	f := New(robots.New(), noRateLimit())
	warner := &recordingWarner{}
	_, err := f.Fetch(context.Background(), server.URL+"/blocked", CallOptions{}, warner)
	if err == nil {
		t.Fatalf("expected robots disallow error")
	}
	if len(warner.urls) != 1 {
		t.Errorf("expected exactly one robots warning, got %d", len(warner.urls))
	}
	if got := atomic.LoadInt32(&calls); got != 0 {
		t.Errorf("expected no network call for disallowed URL, got %d calls", got)
	}
}

func TestPickWeightsByClass(t *testing.T) {
	for i := 0; i < 20; i++ {
		a := Pick(ClassMobile)
		if a.class != ClassMobile {
			t.Fatalf("expected mobile agent, got class %v for %s", a.class, a.ua)
		}
	}
}

func ExampleFetcher_Fetch() {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "hi")
	}))
	defer server.Close()
	f := New(robots.New(), noRateLimit(), WithoutRobots())
	res, _ := f.Fetch(context.Background(), server.URL, CallOptions{}, nil)
	fmt.Println(string(res.Body))
	// Output: hi
}
