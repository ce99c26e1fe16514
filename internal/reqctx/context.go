package reqctx

import "context"

type ctxKey struct{}

// With attaches the request carrier to a context.
func With(ctx context.Context, rc *Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, rc)
}

// From extracts the request carrier, or nil when the call is not part of a
// tracked request (e.g. the heater disables per-request accounting).
func From(ctx context.Context) *Context {
	rc, _ := ctx.Value(ctxKey{}).(*Context)
	return rc
}
