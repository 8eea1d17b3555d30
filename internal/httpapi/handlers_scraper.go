package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/codepr/topicscraper/internal/runlog"
	"github.com/codepr/topicscraper/internal/scraperrors"
)

type healthBody struct {
	Status      string `json:"status"`
	UptimeMs    int64  `json:"uptimeMs"`
	StoreStatus string `json:"storeStatus"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	storeStatus := "ok"
	if s.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.pinger.Ping(ctx); err != nil {
			storeStatus = "unreachable"
		}
	}
	ok(w, http.StatusOK, healthBody{
		Status:      "ok",
		UptimeMs:    time.Since(s.startedAt).Milliseconds(),
		StoreStatus: storeStatus,
	})
}

func (s *Server) handleScraperStatus(w http.ResponseWriter, r *http.Request) {
	ok(w, http.StatusOK, s.orchestrator.Status())
}

func (s *Server) handleScraperTypes(w http.ResponseWriter, r *http.Request) {
	st := s.orchestrator.Status()
	names := make([]string, 0, len(st.Adapters))
	for _, a := range st.Adapters {
		names = append(names, a.Name)
	}
	ok(w, http.StatusOK, names)
}

type startRequest struct {
	TriggeredBy string `json:"triggeredBy"`
}

func (s *Server) handleScraperStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	err := s.orchestrator.StartAll(r.Context(), runlog.TriggerAPI, req.TriggeredBy)
	s.respondToStart(w, err)
}

func (s *Server) handleScraperStartOne(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	var req startRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	err := s.orchestrator.StartSpecific(r.Context(), name, runlog.TriggerAPI, req.TriggeredBy)
	s.respondToStart(w, err)
}

func (s *Server) respondToStart(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		ok(w, http.StatusAccepted, map[string]string{"status": "started"})
	case errors.Is(err, scraperrors.ErrAlreadyRunning):
		fail(w, http.StatusConflict, "AlreadyRunning", err.Error())
	case errors.Is(err, scraperrors.ErrAdapterNotFound):
		fail(w, http.StatusNotFound, "NotFound", err.Error())
	default:
		fail(w, http.StatusInternalServerError, "InternalError", "scraper failed to start")
	}
}

func (s *Server) handleScraperStop(w http.ResponseWriter, r *http.Request) {
	s.orchestrator.StopAll()
	ok(w, http.StatusOK, map[string]string{"status": "stopping"})
}

func (s *Server) handleScraperLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := runlog.ListFilter{
		AdapterName: q.Get("scraperName"),
		Source:      q.Get("source"),
		Status:      runlog.Status(q.Get("status")),
		Page:        atoiDefault(q.Get("page"), 1),
		Limit:       atoiDefault(q.Get("limit"), 20),
	}
	if v := q.Get("startDate"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			f.Start = t
		}
	}
	if v := q.Get("endDate"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			f.End = t
		}
	}

	page, err := s.runLogs.List(r.Context(), f)
	if err != nil {
		fail(w, http.StatusInternalServerError, "InternalError", "failed to list run logs")
		return
	}
	okPaginated(w, page.Items, Pagination{Page: page.Page, Limit: page.Limit, Total: page.Total})
}

func (s *Server) handleScraperLogByID(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	data, err := s.runLogs.Get(r.Context(), id)
	if err != nil {
		fail(w, http.StatusNotFound, "NotFound", "run log not found")
		return
	}
	ok(w, http.StatusOK, data)
}

func (s *Server) handleScraperStats(w http.ResponseWriter, r *http.Request) {
	days := atoiDefault(r.URL.Query().Get("days"), 7)
	page, err := s.runLogs.List(r.Context(), runlog.ListFilter{
		Start: time.Now().AddDate(0, 0, -days),
		Limit: 1000,
	})
	if err != nil {
		fail(w, http.StatusInternalServerError, "InternalError", "failed to aggregate stats")
		return
	}

	var totals runlog.Results
	byStatus := map[runlog.Status]int{}
	for _, d := range page.Items {
		totals.Add(d.Results)
		byStatus[d.Status]++
	}
	ok(w, http.StatusOK, map[string]interface{}{
		"days":     days,
		"runCount": len(page.Items),
		"totals":   totals,
		"byStatus": byStatus,
	})
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
