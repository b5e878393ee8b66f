package httpserver

import (
	"bytes"
	"net/http"

	"github.com/helixir/paper-search-service/internal/domain"
	"github.com/helixir/paper-search-service/internal/format"
)

// contentTypes maps each output format to its response media type.
var contentTypes = map[format.Format]string{
	format.JSON:     "application/json",
	format.YAML:     "application/yaml",
	format.Markdown: "text/markdown; charset=utf-8",
	format.Text:     "text/plain; charset=utf-8",
}

// writeResult renders result in f. Rendering happens into a buffer first so
// that a failure can still produce a 500.
func writeResult(w http.ResponseWriter, searchID string, result *domain.SearchResult, f format.Format) {
	var buf bytes.Buffer
	if err := format.Render(&buf, searchID, result, f); err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	w.Header().Set("Content-Type", contentTypes[f])
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
