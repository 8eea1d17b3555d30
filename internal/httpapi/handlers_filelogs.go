package httpapi

import (
	"bufio"
	"net/http"
	"os"
	"path/filepath"
	"regexp"

	"github.com/gorilla/mux"
)

// filenamePattern matches the admin API's allowed file-log names; anything
// else (including path separators) is rejected with 404 rather than
// resolved against the filesystem.
var filenamePattern = regexp.MustCompile(`^[A-Za-z0-9_\-.]+\.log$`)

func (s *Server) handleFileLogs(w http.ResponseWriter, r *http.Request) {
	filename := mux.Vars(r)["filename"]
	if !filenamePattern.MatchString(filename) {
		fail(w, http.StatusNotFound, "NotFound", "unknown log file")
		return
	}

	maxLines := atoiDefault(r.URL.Query().Get("maxLines"), 500)
	path := filepath.Join(s.logDir, filename)
	lines, err := tailLines(path, maxLines)
	if err != nil {
		fail(w, http.StatusNotFound, "NotFound", "log file not found")
		return
	}
	ok(w, http.StatusOK, map[string]interface{}{"filename": filename, "lines": lines})
}

// tailLines returns up to the last maxLines lines of path. It reads the
// whole file sequentially and keeps a bounded ring buffer, trading memory
// efficiency on very large logs for a simple, obviously-correct
// implementation (the rotation policy keeps file sizes to a few MB).
func tailLines(path string, maxLines int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	ring := make([]string, 0, maxLines)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if len(ring) == maxLines {
			ring = ring[1:]
		}
		ring = append(ring, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return ring, nil
}
