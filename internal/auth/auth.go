package auth

import (
	"net/http"
	"strings"
)

// Middleware guards the HTTP API with a shared bearer token. With no token
// configured the middleware is disabled and every request passes, which is
// the local-development default.
type Middleware struct {
	token string
}

// NewMiddleware creates auth middleware for the given token.
func NewMiddleware(token string) *Middleware {
	return &Middleware{token: token}
}

// RequireAuth wraps an http.Handler and requires valid authentication.
func (m *Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.isAuthenticated(r) {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAuthFunc wraps an http.HandlerFunc and requires valid authentication.
func (m *Middleware) RequireAuthFunc(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !m.isAuthenticated(r) {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (m *Middleware) isAuthenticated(r *http.Request) bool {
	if m.token == "" {
		return true
	}

	// WebSocket clients cannot set headers from a browser, so the token
	// may also arrive as a query parameter.
	if token := r.URL.Query().Get("token"); token != "" {
		return token == m.token
	}

	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return false
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return false
	}
	return parts[1] == m.token
}

// IsEnabled returns true if authentication is configured.
func (m *Middleware) IsEnabled() bool {
	return m.token != ""
}
