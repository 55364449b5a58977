// Package http provides the HTTP handlers of the LoginKeeper storage backend:
// certificate-based registration and session introspection, and the
// credential store API.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/atinyakov/LoginKeeper/internal/middleware"
	"github.com/atinyakov/LoginKeeper/internal/models"
	"github.com/atinyakov/LoginKeeper/internal/service"
)

// AuthService defines the authentication operations required by the
// handlers.
type AuthService interface {
	Register(ctx context.Context, login string) error
	Session(ctx context.Context, login string) (models.Session, error)
}

// CertIssuer signs client certificates.
type CertIssuer interface {
	Issue(login string) (certPEM, keyPEM []byte, err error)
}

// AuthHandler handles HTTP requests for user registration and login.
type AuthHandler struct {
	AuthService AuthService
	Issuer      CertIssuer
	Logger      *zap.Logger
}

// RegisterRequest represents the JSON payload for user registration.
type RegisterRequest struct {
	// Login is the username to register.
	Login string `json:"login"`
}

func (h *AuthHandler) log() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger
}

// Register creates the user and returns a PEM client certificate and key
// whose Common Name is the login.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Login == "" {
		writeError(w, "invalid request", http.StatusBadRequest)
		return
	}

	err := h.AuthService.Register(r.Context(), req.Login)
	switch {
	case errors.Is(err, service.ErrUserExists):
		writeError(w, "user already exists", http.StatusConflict)
		return
	case service.IsValidation(err):
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		h.log().Error("register user", zap.Error(err))
		writeError(w, "internal error", http.StatusInternalServerError)
		return
	}

	certPEM, keyPEM, err := h.Issuer.Issue(req.Login)
	if err != nil {
		h.log().Error("issue client certificate", zap.Error(err))
		writeError(w, "failed to generate certificate", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"cert": string(certPEM),
		"key":  string(keyPEM),
	})
}

// Login checks that the presented certificate belongs to a registered user.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	login := middleware.GetUserIDFromContext(r.Context())
	if login == "" {
		writeError(w, "client certificate required", http.StatusUnauthorized)
		return
	}

	s, err := h.AuthService.Session(r.Context(), login)
	if err != nil {
		h.log().Error("session lookup", zap.Error(err))
		writeError(w, "internal error", http.StatusInternalServerError)
		return
	}
	if !s.Authenticated {
		writeError(w, "user not found", http.StatusForbidden)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"user":   login,
	})
}

// Session reports {authenticated, user}. A request without a client
// certificate is a valid, unauthenticated session.
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	s, err := h.AuthService.Session(r.Context(), middleware.GetUserIDFromContext(r.Context()))
	if err != nil {
		h.log().Error("session lookup", zap.Error(err))
		writeError(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, s)
}
