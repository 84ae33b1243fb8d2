package auth

import "context"

type requestContextKey struct{}
type tokenContextKey struct{}

// ContextWith attaches the resolved RequestContext to the request context.
// The value is stored once, after session validation, and treated as
// immutable for the lifetime of the request.
func ContextWith(ctx context.Context, rc RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey{}, &rc)
}

// FromContext extracts the RequestContext attached by the authn middleware.
func FromContext(ctx context.Context) (RequestContext, bool) {
	if ctx == nil {
		return RequestContext{}, false
	}
	v, ok := ctx.Value(requestContextKey{}).(*RequestContext)
	if !ok || v == nil {
		return RequestContext{}, false
	}
	return *v, true
}

// ContextWithToken stores the raw bearer token inside the context so logout
// can revoke the exact session that authenticated the request.
func ContextWithToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, tokenContextKey{}, token)
}

// TokenFromContext returns the bearer token if it was previously attached.
func TokenFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	v, ok := ctx.Value(tokenContextKey{}).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
