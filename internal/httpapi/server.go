package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/codepr/topicscraper/internal/content"
	"github.com/codepr/topicscraper/internal/orchestrator"
	"github.com/codepr/topicscraper/internal/runlog"
)

// Pinger checks store connectivity for the liveness endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server wires the Admin API's dependencies and builds the routed handler.
type Server struct {
	orchestrator      *orchestrator.Orchestrator
	content           *content.Store
	runLogs           *runlog.Store
	pinger            Pinger
	logDir            string
	contentMaxAgeDays int
	allowedOrigins    []string
	startedAt         time.Time
}

// New builds a Server. logDir is the directory the structured file logs
// (error.log, combined.log, ...) are rotated into by lumberjack.
// allowedOrigins is the ALLOWED_ORIGINS config value; a single "*" entry
// allows any origin.
func New(o *orchestrator.Orchestrator, c *content.Store, rl *runlog.Store, pinger Pinger, logDir string, contentMaxAgeDays int, allowedOrigins []string) *Server {
	return &Server{
		orchestrator:      o,
		content:           c,
		runLogs:           rl,
		pinger:            pinger,
		logDir:            logDir,
		contentMaxAgeDays: contentMaxAgeDays,
		allowedOrigins:    allowedOrigins,
		startedAt:         time.Now(),
	}
}

// Router builds the gorilla/mux router exposing every endpoint of §6.
// Routes match on the encoded path, so an escaped separator in a path
// variable (e.g. "..%2F") reaches the handler's own validation instead of
// being cleaned into a redirect.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter().UseEncodedPath()

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	r.HandleFunc("/api/scraper/status", s.handleScraperStatus).Methods(http.MethodGet)
	r.HandleFunc("/api/scraper/types", s.handleScraperTypes).Methods(http.MethodGet)
	r.HandleFunc("/api/scraper/start", s.handleScraperStart).Methods(http.MethodPost)
	r.HandleFunc("/api/scraper/start/{name}", s.handleScraperStartOne).Methods(http.MethodPost)
	r.HandleFunc("/api/scraper/stop", s.handleScraperStop).Methods(http.MethodPost)
	r.HandleFunc("/api/scraper/logs", s.handleScraperLogs).Methods(http.MethodGet)
	r.HandleFunc("/api/scraper/logs/{id}", s.handleScraperLogByID).Methods(http.MethodGet)
	r.HandleFunc("/api/scraper/stats", s.handleScraperStats).Methods(http.MethodGet)
	r.HandleFunc("/api/scraper/file-logs/{filename}", s.handleFileLogs).Methods(http.MethodGet)

	r.HandleFunc("/api/content", s.handleContentList).Methods(http.MethodGet)
	r.HandleFunc("/api/content/stats/overview", s.handleContentOverview).Methods(http.MethodGet)
	r.HandleFunc("/api/content/cleanup", s.handleContentCleanup).Methods(http.MethodPost)
	r.HandleFunc("/api/content/{id}", s.handleContentGet).Methods(http.MethodGet)
	r.HandleFunc("/api/content/{id}", s.handleContentDelete).Methods(http.MethodDelete)
	r.HandleFunc("/api/content/{id}/status", s.handleContentSetStatus).Methods(http.MethodPatch)

	r.Use(s.corsMiddleware)
	return r
}

// corsMiddleware applies the ALLOWED_ORIGINS policy to every response. A
// single "*" entry (the default) allows any origin; otherwise the request
// Origin is echoed back only when present in the configured list.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	allowAll := len(s.allowedOrigins) == 0
	allowed := make(map[string]bool, len(s.allowedOrigins))
	for _, o := range s.allowedOrigins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			if allowAll {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			} else if allowed[origin] {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Vary", "Origin")
			}
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
