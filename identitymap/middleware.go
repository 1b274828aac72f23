package identitymap

import (
	"net/http"
)

// Middleware gives every request its own scope and ends it when the handler
// returns.
func Middleware(m *Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, scope := m.Begin(r.Context())
			defer m.End(ctx, scope)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
