package session

import (
	"context"
	"net/http"
)

type dataContextKey struct{}

// WithData returns a context carrying the session data.
func WithData(ctx context.Context, data *Data) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, dataContextKey{}, data)
}

// FromContext returns the session data attached by the middleware, if any.
func FromContext(ctx context.Context) (*Data, bool) {
	if ctx == nil {
		return nil, false
	}
	data, ok := ctx.Value(dataContextKey{}).(*Data)
	return data, ok && data != nil
}

// Middleware attaches session data to the request context when a valid
// session exists. It never rejects; RequireAuth does.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if data, err := m.GetSession(r.Context(), r); err == nil {
			r = r.WithContext(WithData(r.Context(), data))
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAuth rejects requests without a session. The storefront API is
// JSON-only, so the rejection is a 401 body rather than a redirect.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := FromContext(r.Context()); !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"authentication required"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}
