package core

import "context"

type clientKey struct{}

// ClientInfo describes the caller of a public operation. It is only used for
// log correlation and never stored with a submission.
type ClientInfo struct {
	IP        string
	UserAgent string
}

// WithClient attaches client details to ctx.
func WithClient(ctx context.Context, c ClientInfo) context.Context {
	return context.WithValue(ctx, clientKey{}, c)
}

// ClientFromContext returns the client attached by WithClient, or the zero
// value.
func ClientFromContext(ctx context.Context) ClientInfo {
	c, _ := ctx.Value(clientKey{}).(ClientInfo)
	return c
}
