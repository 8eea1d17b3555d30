package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/codepr/topicscraper/internal/content"
)

func (s *Server) handleContentList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := content.ListFilter{
		Category:       content.Category(q.Get("type")),
		SourceHost:     q.Get("source"),
		Tags:           splitCSV(q.Get("tags")),
		Keywords:       splitCSV(q.Get("keywords")),
		Status:         content.Status(q.Get("status")),
		Search:         q.Get("search"),
		SortField:      q.Get("sort"),
		SortDescending: strings.EqualFold(q.Get("order"), "desc"),
		Page:           atoiDefault(q.Get("page"), 1),
		Limit:          atoiDefault(q.Get("limit"), 20),
	}
	if v := q.Get("minRelevance"); v != "" {
		if fv, err := strconv.ParseFloat(v, 64); err == nil {
			f.MinRelevance = fv
		}
	}
	if v := q.Get("maxAgeDays"); v != "" {
		f.MaxAgeDays = atoiDefault(v, 0)
	}

	var (
		page *content.Page
		err  error
	)
	if f.Search != "" {
		page, err = s.content.Search(r.Context(), f)
	} else {
		page, err = s.content.ByType(r.Context(), f)
	}
	if err != nil {
		fail(w, http.StatusInternalServerError, "InternalError", "failed to list content")
		return
	}
	okPaginated(w, page.Items, Pagination{Page: page.Page, Limit: page.Limit, Total: page.Total})
}

func (s *Server) handleContentGet(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	record, err := s.content.Get(r.Context(), id)
	if err != nil {
		fail(w, http.StatusNotFound, "NotFound", "content not found")
		return
	}
	ok(w, http.StatusOK, record)
}

func (s *Server) handleContentDelete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.content.Delete(r.Context(), id); err != nil {
		fail(w, http.StatusInternalServerError, "InternalError", "failed to delete content")
		return
	}
	ok(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type setStatusRequest struct {
	Status string `json:"status"`
}

func (s *Server) handleContentSetStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req setStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, http.StatusBadRequest, "BadRequest", "invalid request body")
		return
	}
	status := content.Status(req.Status)
	if !content.ValidStatuses[status] {
		fail(w, http.StatusBadRequest, "InvalidStatus", "unknown status value")
		return
	}
	if err := s.content.SetStatus(r.Context(), id, status); err != nil {
		fail(w, http.StatusInternalServerError, "InternalError", "failed to update status")
		return
	}
	ok(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (s *Server) handleContentCleanup(w http.ResponseWriter, r *http.Request) {
	n, err := s.content.Cleanup(r.Context(), s.contentMaxAgeDays)
	if err != nil {
		fail(w, http.StatusInternalServerError, "InternalError", "cleanup failed")
		return
	}
	ok(w, http.StatusOK, map[string]int64{"deleted": n})
}

func (s *Server) handleContentOverview(w http.ResponseWriter, r *http.Request) {
	stats, err := s.content.Overview(r.Context())
	if err != nil {
		fail(w, http.StatusInternalServerError, "InternalError", "failed to compute overview")
		return
	}
	ok(w, http.StatusOK, stats)
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
