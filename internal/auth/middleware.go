package auth

import (
	"context"
	"net/http"
	"strings"
)

// ContextKey is used for storing the caller identity in a request context.
type ContextKey string

const ActorContextKey ContextKey = "actor"

// HeaderAPIKey carries the API key.
const HeaderAPIKey = "X-API-Key"

// Middleware provides HTTP middleware for API key authentication.
type Middleware struct {
	verifier *Verifier
	onDenied func(w http.ResponseWriter, r *http.Request)
}

// NewMiddleware creates a new auth middleware. onDenied writes the rejection
// response; when nil a plain 401 is written.
func NewMiddleware(v *Verifier, onDenied func(w http.ResponseWriter, r *http.Request)) *Middleware {
	if onDenied == nil {
		onDenied = func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
		}
	}
	return &Middleware{verifier: v, onDenied: onDenied}
}

// RequireKey wraps a handler to require a valid API key.
func (m *Middleware) RequireKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := KeyFromRequest(r)
		if !m.verifier.Verify(key) {
			m.onDenied(w, r)
			return
		}
		ctx := context.WithValue(r.Context(), ActorContextKey, "api-key:"+Redact(key))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// KeyFromRequest returns the key from the X-API-Key header, or from an
// Authorization bearer token.
func KeyFromRequest(r *http.Request) string {
	if key := r.Header.Get(HeaderAPIKey); key != "" {
		return key
	}
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	}
	return ""
}

// WithActor returns ctx carrying actor.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, ActorContextKey, actor)
}

// ActorFromContext returns the caller identity, or "" when unauthenticated.
func ActorFromContext(ctx context.Context) string {
	actor, _ := ctx.Value(ActorContextKey).(string)
	return actor
}
