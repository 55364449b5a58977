// Package middleware provides HTTP middlewares for authentication and logging.
package middleware

import (
	"context"
	"net/http"
)

type ctxKey string

const userKey ctxKey = "user"

// PublicPaths are reachable without a client certificate. A certificate, if
// presented, is still read so /api/session can report the user.
var PublicPaths = map[string]bool{
	"/api/register":       true,
	"/api/session":        true,
	"/api/check-strength": true,
	"/metrics":            true,
}

// CertAuth is a middleware that enforces mutual TLS authentication.
//
// On successful validation, it extracts the Common Name (CN) from the client's
// certificate and stores it in the request context, so it can be used
// downstream as the authenticated user ID.
func CertAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		login := peerLogin(r)
		if login == "" && !PublicPaths[r.URL.Path] {
			writeError(w, "no client certificate provided", http.StatusUnauthorized)
			return
		}
		if login != "" {
			r = r.WithContext(WithUser(r.Context(), login))
		}
		next.ServeHTTP(w, r)
	})
}

func peerLogin(r *http.Request) string {
	if r.TLS == nil || len(r.TLS.PeerCertificates) == 0 {
		return ""
	}
	return r.TLS.PeerCertificates[0].Subject.CommonName
}

// WithUser returns ctx carrying login as the authenticated user.
func WithUser(ctx context.Context, login string) context.Context {
	return context.WithValue(ctx, userKey, login)
}

// GetUserIDFromContext extracts the user ID (Common Name from client certificate)
// from the request context. Returns an empty string if not found.
func GetUserIDFromContext(ctx context.Context) string {
	val := ctx.Value(userKey)
	if s, ok := val.(string); ok {
		return s
	}
	return ""
}

func writeError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}
