package web

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/JonMunkholm/formsvc/internal/core"
	"github.com/JonMunkholm/formsvc/internal/logging"
)

// exportFlushEvery is the number of CSV lines written between flushes.
const exportFlushEvery = 100

// handleExportCSV streams a form's submissions as CSV.
//
// Errors before the first line (unknown form, bad version, export limiter
// saturated) get a normal JSON error response. Once the header line is
// written the status is committed, so later failures are only logged and
// the response is cut short.
func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	formID, err := parseIDParam(r, "formID", "form")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	version := r.URL.Query().Get("version")
	if version == "" {
		version = core.ExportVersionV1
	}

	export, err := s.service.ExportCSV(r.Context(), formID, version)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	flusher, _ := w.(http.Flusher)
	started := false
	lines := 0

	for chunk, err := range export.Chunks(r.Context()) {
		if err != nil {
			if !started {
				s.respondError(w, r, err)
				return
			}
			if !errors.Is(err, r.Context().Err()) {
				logging.FromContext(r.Context()).Error("export aborted mid-stream",
					"form_id", formID,
					"lines", lines,
					"error", err,
				)
			}
			return
		}

		if !started {
			w.Header().Set("Content-Type", "text/csv; charset=utf-8")
			w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, export.Filename()))
			w.Header().Set("Cache-Control", "no-store")
			w.WriteHeader(http.StatusOK)
			started = true
		}

		if _, err := io.WriteString(w, chunk); err != nil {
			// Client went away; breaking stops the store query.
			return
		}
		lines++
		if flusher != nil && lines%exportFlushEvery == 0 {
			flusher.Flush()
		}
	}

	if flusher != nil {
		flusher.Flush()
	}
}
