package web

// errors.go turns handler errors into JSON error responses.
//
// The flow:
//  1. A handler gets an error from core.Service.
//  2. respondError picks the status from the error kind.
//  3. core.MapError produces the client-facing message and code.
//  4. The technical error is logged with the request id; 5xx at error level.
//  5. The body {error, message, action, code, kind} is written.
//
// Infrastructure errors never leak their text: MapError either matches a
// known pattern or returns the generic ERR000 message.

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/JonMunkholm/formsvc/internal/core"
	"github.com/JonMunkholm/formsvc/internal/logging"
	"github.com/go-chi/render"
)

// ErrorResponse is the JSON body of every error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
	Kind    string `json:"kind,omitempty"`
}

// statusFor maps an error to its HTTP status.
func statusFor(err error) int {
	switch core.KindOf(err) {
	case core.KindValidation:
		return http.StatusBadRequest
	case core.KindConflict:
		return http.StatusConflict
	case core.KindNotFound:
		return http.StatusNotFound
	}
	if errors.Is(err, core.ErrTooManyExports) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// respondError writes err with the status implied by its kind.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	s.respondStatus(w, r, statusFor(err), err)
}

// respondStatus writes err with an explicit status.
func (s *Server) respondStatus(w http.ResponseWriter, r *http.Request, status int, err error) {
	msg := core.MapError(err)

	logger := logging.FromContext(r.Context())
	level := slog.LevelDebug
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	logger.Log(r.Context(), level, "request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"code", msg.Code,
		"error", err.Error(),
	)

	if status == http.StatusServiceUnavailable && errors.Is(err, core.ErrTooManyExports) {
		w.Header().Set("Retry-After", "5")
	}

	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
		Kind:    string(core.KindOf(err)),
	})
}
