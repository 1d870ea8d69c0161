package web

// handlers_common.go holds request parsing and response helpers shared by
// the handlers.

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/JonMunkholm/formsvc/internal/core"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

// MaxBodySize bounds JSON request bodies (1MB).
const MaxBodySize = 1 << 20

// parseIntParam parses an integer query parameter. Missing values yield
// defaultVal; range checks are left to the caller.
func parseIntParam(r *http.Request, name string, defaultVal int) (int, error) {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return 0, core.Validationf("%s must be an integer", name)
	}
	return i, nil
}

// parsePage reads page and page_size.
func parsePage(r *http.Request) (page, pageSize int, err error) {
	if page, err = parseIntParam(r, "page", 1); err != nil {
		return 0, 0, err
	}
	if pageSize, err = parseIntParam(r, "page_size", core.DefaultPageSize); err != nil {
		return 0, 0, err
	}
	return page, pageSize, nil
}

// parseIDParam parses a positive int64 URL parameter.
func parseIDParam(r *http.Request, name, what string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id < 1 {
		return 0, core.NotFoundf("%s not found", what)
	}
	return id, nil
}

// decodeJSON reads a JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodySize)
	if err := render.DecodeJSON(r.Body, v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return core.Validationf("request body too large")
		}
		return core.Validationf("invalid JSON body")
	}
	return nil
}

// writeJSON encodes v with the given status.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	render.Status(r, status)
	render.JSON(w, r, v)
}
