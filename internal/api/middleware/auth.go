package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/tenantsvc/internal/api/response"
	"github.com/kiranshivaraju/tenantsvc/internal/store"
	"github.com/kiranshivaraju/tenantsvc/pkg/models"
	"golang.org/x/crypto/bcrypt"
)

// KeyPrefixLen is the number of leading key characters stored in clear.
const KeyPrefixLen = 8

// AuthStore is the subset of the store the auth middleware needs.
type AuthStore interface {
	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	GetUser(ctx context.Context, id int64) (*models.User, error)
}

// Auth resolves the API key on each request into a principal.
type Auth struct {
	store AuthStore
}

// NewAuth creates a new Auth middleware.
func NewAuth(s AuthStore) *Auth {
	return &Auth{store: s}
}

// Authenticate validates the Bearer token, looks up the API key and its
// owner, and sets the principal and key prefix in the request context.
func (a *Auth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawKey := extractBearerToken(r)
		if rawKey == "" {
			response.Error(w, http.StatusUnauthorized,
				response.CodeUnauthorized, "Missing or invalid Authorization header", nil)
			return
		}

		if len(rawKey) < KeyPrefixLen {
			response.Error(w, http.StatusUnauthorized,
				response.CodeUnauthorized, "Invalid API key format", nil)
			return
		}

		prefix := rawKey[:KeyPrefixLen]

		keys, err := a.store.GetAPIKeyByPrefix(r.Context(), prefix)
		if err != nil {
			slog.Error("api key lookup failed", "error", err)
			response.Error(w, http.StatusInternalServerError,
				response.CodeInternalError, "Failed to validate API key", nil)
			return
		}

		var matched *models.APIKey
		for _, key := range keys {
			if bcrypt.CompareHashAndPassword([]byte(key.KeyHash), []byte(rawKey)) == nil {
				matched = key
				break
			}
		}
		if matched == nil {
			response.Error(w, http.StatusUnauthorized,
				response.CodeUnauthorized, "Invalid API key", nil)
			return
		}

		user, err := a.store.GetUser(r.Context(), matched.UserID)
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusUnauthorized,
				response.CodeUnauthorized, "Invalid API key", nil)
			return
		}
		if err != nil {
			slog.Error("api key owner lookup failed", "error", err, "key_id", matched.ID)
			response.Error(w, http.StatusInternalServerError,
				response.CodeInternalError, "Failed to validate API key", nil)
			return
		}

		// Update last_used_at async
		go a.store.UpdateAPIKeyLastUsed(context.WithoutCancel(r.Context()), matched.ID)

		ctx := SetPrincipal(r.Context(), user.Principal())
		ctx = setKeyPrefix(ctx, prefix)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
