package web

import (
	"context"
	"net/http"

	"github.com/JonMunkholm/formsvc/internal/core"
	mw "github.com/JonMunkholm/formsvc/internal/web/middleware"
)

// withClient adds the caller's IP and User-Agent to ctx for log correlation.
func withClient(ctx context.Context, r *http.Request) context.Context {
	return core.WithClient(ctx, core.ClientInfo{
		IP:        mw.ClientIP(r),
		UserAgent: r.UserAgent(),
	})
}
