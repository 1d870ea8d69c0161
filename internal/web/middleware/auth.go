package middleware

import (
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
)

// AdminTokenHeader carries the admin token. The "token" query parameter is
// accepted as a fallback for download links.
const AdminTokenHeader = "X-Admin-Token"

var (
	errMissingToken = errors.New("missing admin token")
	errInvalidToken = errors.New("invalid admin token")
)

// AdminToken returns middleware that rejects requests not carrying token.
// An empty configured token rejects every request.
func AdminToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			given := r.Header.Get(AdminTokenHeader)
			if given == "" {
				given = r.URL.Query().Get("token")
			}

			if given == "" {
				slog.Warn("auth: missing admin token",
					"path", r.URL.Path,
					"method", r.Method,
					"remote_addr", r.RemoteAddr,
				)
				writeError(w, r, http.StatusUnauthorized, errMissingToken)
				return
			}

			if !validToken(given, token) {
				slog.Warn("auth: invalid admin token",
					"path", r.URL.Path,
					"method", r.Method,
					"remote_addr", r.RemoteAddr,
				)
				writeError(w, r, http.StatusForbidden, errInvalidToken)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// validToken compares in constant time.
func validToken(given, want string) bool {
	if want == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(given), []byte(want)) == 1
}
