package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/atinyakov/LoginKeeper/internal/health"
	"github.com/atinyakov/LoginKeeper/internal/middleware"
	"github.com/atinyakov/LoginKeeper/internal/models"
	"github.com/atinyakov/LoginKeeper/internal/service"
)

// CredentialService defines the credential store operations required by
// the CredentialHandler.
type CredentialService interface {
	Search(ctx context.Context, login string, f models.SearchFilter) ([]models.StoredCredential, error)
	Get(ctx context.Context, login, id string) (models.StoredCredential, error)
	Exists(ctx context.Context, login string, q models.ExistsQuery) (bool, error)
	Create(ctx context.Context, login string, nc models.NewCredential) (models.StoredCredential, error)
	ToggleFavorite(ctx context.Context, login, id string) (bool, error)
	Delete(ctx context.Context, login, id string) error
	Health(ctx context.Context, login string) (health.Summary, error)
	CheckStrength(password string) (health.Check, error)
}

// CredentialHandler serves /api/credentials and /api/check-strength.
type CredentialHandler struct {
	Service CredentialService
	Logger  *zap.Logger
}

func (h *CredentialHandler) log() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger
}

// fail maps service errors to status codes.
func (h *CredentialHandler) fail(w http.ResponseWriter, op string, err error) {
	switch {
	case service.IsValidation(err):
		writeError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, service.ErrDuplicate):
		writeError(w, "Password already exists for this site", http.StatusConflict)
	case errors.Is(err, service.ErrNotFound):
		writeError(w, "Password not found", http.StatusNotFound)
	default:
		h.log().Error(op, zap.Error(err))
		writeError(w, "internal error", http.StatusInternalServerError)
	}
}

// List handles GET /api/credentials?query=&category=&favorites=.
func (h *CredentialHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	favorites, _ := strconv.ParseBool(q.Get("favorites"))
	f := models.SearchFilter{
		Query:         q.Get("query"),
		Category:      q.Get("category"),
		FavoritesOnly: favorites,
	}

	creds, err := h.Service.Search(r.Context(), middleware.GetUserIDFromContext(r.Context()), f)
	if err != nil {
		h.fail(w, "search credentials", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"credentials": creds})
}

// Get handles GET /api/credentials/{id}.
func (h *CredentialHandler) Get(w http.ResponseWriter, r *http.Request) {
	c, err := h.Service.Get(r.Context(), middleware.GetUserIDFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "get credential", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// Exists handles POST /api/credentials/exists.
func (h *CredentialHandler) Exists(w http.ResponseWriter, r *http.Request) {
	var q models.ExistsQuery
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		writeError(w, "invalid body", http.StatusBadRequest)
		return
	}
	found, err := h.Service.Exists(r.Context(), middleware.GetUserIDFromContext(r.Context()), q)
	if err != nil {
		h.fail(w, "check credential", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"exists": found})
}

// Create handles POST /api/credentials.
func (h *CredentialHandler) Create(w http.ResponseWriter, r *http.Request) {
	var nc models.NewCredential
	if err := json.NewDecoder(r.Body).Decode(&nc); err != nil {
		writeError(w, "invalid body", http.StatusBadRequest)
		return
	}
	c, err := h.Service.Create(r.Context(), middleware.GetUserIDFromContext(r.Context()), nc)
	if err != nil {
		h.fail(w, "create credential", err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// ToggleFavorite handles POST /api/credentials/{id}/favorite.
func (h *CredentialHandler) ToggleFavorite(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	fav, err := h.Service.ToggleFavorite(r.Context(), middleware.GetUserIDFromContext(r.Context()), id)
	if err != nil {
		h.fail(w, "toggle favorite", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "favorite": fav})
}

// Delete handles DELETE /api/credentials/{id}.
func (h *CredentialHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.Delete(r.Context(), middleware.GetUserIDFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		h.fail(w, "delete credential", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Health handles GET /api/credentials/health.
func (h *CredentialHandler) Health(w http.ResponseWriter, r *http.Request) {
	sum, err := h.Service.Health(r.Context(), middleware.GetUserIDFromContext(r.Context()))
	if err != nil {
		h.fail(w, "credential health", err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// CheckStrength handles POST /api/check-strength. It needs no session.
func (h *CredentialHandler) CheckStrength(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid body", http.StatusBadRequest)
		return
	}
	c, err := h.Service.CheckStrength(req.Password)
	if err != nil {
		h.fail(w, "check strength", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}
