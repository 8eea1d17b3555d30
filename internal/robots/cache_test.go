package robots

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func serverMockWithRobotsTxt() *httptest.Server {
	handler := http.NewServeMux()
	handler.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("User-agent: *\nDisallow: /private\nCrawl-delay: 2\n"))
	})
	return httptest.NewServer(handler)
}

func serverMockWithoutRobotsTxt() *httptest.Server {
	handler := http.NewServeMux()
	handler.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	return httptest.NewServer(handler)
}

func TestIsAllowedDenied(t *testing.T) {
	server := serverMockWithRobotsTxt()
	defer server.Close()

	c := New()
	if c.IsAllowed(server.URL+"/private/page", "test-agent") {
		t.Errorf("IsAllowed failed: expected false for disallowed path")
	}
	if !c.IsAllowed(server.URL+"/public/page", "test-agent") {
		t.Errorf("IsAllowed failed: expected true for allowed path")
	}
}

func TestIsAllowedPermissiveOnMissingRobots(t *testing.T) {
	server := serverMockWithoutRobotsTxt()
	defer server.Close()

	c := New()
	if !c.IsAllowed(server.URL+"/anything", "test-agent") {
		t.Errorf("IsAllowed failed: expected permissive allow when robots.txt is missing")
	}
}

func TestIsAllowedPermissiveOnNetworkError(t *testing.T) {
	c := New(WithHTTPClient(&http.Client{Timeout: time.Millisecond}))
	if !c.IsAllowed("http://127.0.0.1:1/unreachable", "test-agent") {
		t.Errorf("IsAllowed failed: expected permissive allow on fetch error")
	}
	if c.Stats().FetchErrors == 0 {
		t.Errorf("expected fetchErrors counter to be incremented")
	}
}

func TestGetCrawlDelay(t *testing.T) {
	server := serverMockWithRobotsTxt()
	defer server.Close()

	c := New()
	delay, ok := c.GetCrawlDelay(server.URL+"/page", "test-agent")
	if !ok || delay != 2*time.Second {
		t.Errorf("GetCrawlDelay failed: expected 2s got %v (ok=%v)", delay, ok)
	}
}

func TestSingleFlightCoalescesConcurrentMisses(t *testing.T) {
	var hits int32
	handler := http.NewServeMux()
	handler.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		time.Sleep(20 * time.Millisecond)
		_, _ = w.Write([]byte("User-agent: *\nDisallow:\n"))
	})
	server := httptest.NewServer(handler)
	defer server.Close()

	c := New()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.IsAllowed(fmt.Sprintf("%s/page-%d", server.URL, i), "test-agent")
		}(i)
	}
	wg.Wait()

	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Errorf("expected exactly 1 robots.txt fetch, got %d", got)
	}
}

func TestCacheEvictsAtMaxSize(t *testing.T) {
	servers := make([]*httptest.Server, 3)
	for i := range servers {
		servers[i] = serverMockWithoutRobotsTxt()
		defer servers[i].Close()
	}

	c := New(WithMaxSize(2))
	for _, s := range servers {
		c.IsAllowed(s.URL+"/a", "ua")
	}

	c.mu.Lock()
	size := c.order.Len()
	c.mu.Unlock()
	if size > 2 {
		t.Errorf("expected cache bounded to 2 entries, got %d", size)
	}
}
