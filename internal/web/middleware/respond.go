package middleware

import (
	"net/http"

	"github.com/JonMunkholm/formsvc/internal/core"
	"github.com/go-chi/render"
)

// errorBody mirrors the error shape written by the web handlers.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
	Kind    string `json:"kind,omitempty"`
}

// writeError answers a request the middleware refuses to pass on.
func writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	msg := core.MapError(err)
	render.Status(r, status)
	render.JSON(w, r, errorBody{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	})
}
