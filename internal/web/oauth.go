package web

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"strings"
	"sync"

	"github.com/flowlane/flowlane/internal/auth"
	"github.com/flowlane/flowlane/pkg/models"
)

// MemoryUserStore resolves OAuth identities to models.User records, the way
// Directory keeps per-chat metadata in an in-memory map — this runtime has
// no user database of its own, only the identities OAuth logins establish.
// Keyed by (provider, provider user id) so the same email logging in via two
// providers gets two distinct users, matching auth.UserInfo's own identity
// shape instead of silently merging accounts on email collision.
type MemoryUserStore struct {
	mu    sync.Mutex
	users map[string]*models.User
}

// NewMemoryUserStore builds an empty MemoryUserStore.
func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{users: make(map[string]*models.User)}
}

// FindOrCreate implements auth.UserStore.
func (s *MemoryUserStore) FindOrCreate(_ context.Context, info *auth.UserInfo) (*models.User, error) {
	key := info.Provider + ":" + info.ID

	s.mu.Lock()
	defer s.mu.Unlock()
	if user, ok := s.users[key]; ok {
		return user, nil
	}
	user := &models.User{ID: key, Email: info.Email, Name: info.Name, AvatarURL: info.AvatarURL}
	s.users[key] = user
	return user, nil
}

// setupOAuthRoutes wires /api/auth/oauth/{provider}/login and
// .../callback. Grounded on the teacher's own auth.HandleCallback flow:
// login redirects to the provider's consent screen with a random state,
// callback exchanges the code for a bearer JWT the client then presents to
// every other endpoint via AuthMiddleware. A nil Config.Auth (no oauth
// providers registered) leaves the route unhandled -- it 404s from mux like
// any other unmounted path.
func (h *Handler) setupOAuthRoutes() {
	if h.config.Auth == nil {
		return
	}
	h.mux.HandleFunc("/api/auth/oauth/", h.apiOAuth)
}

func (h *Handler) apiOAuth(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(strings.TrimPrefix(r.URL.Path, "/api/auth/oauth/"))
	if len(parts) != 2 {
		h.jsonError(w, "expected /api/auth/oauth/{provider}/{login|callback}", http.StatusNotFound)
		return
	}
	provider, action := parts[0], parts[1]

	switch action {
	case "login":
		h.apiOAuthLogin(w, r, provider)
	case "callback":
		h.apiOAuthCallback(w, r, provider)
	default:
		h.jsonError(w, "not found", http.StatusNotFound)
	}
}

func (h *Handler) apiOAuthLogin(w http.ResponseWriter, r *http.Request, provider string) {
	url, ok := h.config.Auth.AuthURL(provider, randomState())
	if !ok {
		h.jsonError(w, "unknown oauth provider", http.StatusNotFound)
		return
	}
	http.Redirect(w, r, url, http.StatusFound)
}

func (h *Handler) apiOAuthCallback(w http.ResponseWriter, r *http.Request, provider string) {
	code := r.URL.Query().Get("code")
	if code == "" {
		h.jsonError(w, "missing code", http.StatusBadRequest)
		return
	}

	result, err := h.config.Auth.HandleCallback(r.Context(), provider, code)
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusUnauthorized)
		return
	}

	h.jsonResponse(w, map[string]any{"token": result.Token, "user": result.User})
}

func randomState() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}
