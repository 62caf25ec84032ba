package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/fairyhunter13/stock-intel/internal/domain"
	"github.com/fairyhunter13/stock-intel/internal/usecase"
)

type userIDKey struct{}

// UserIDFrom extracts the authenticated user id set by RequireAuth.
func UserIDFrom(r *http.Request) string {
	if v := r.Context().Value(userIDKey{}); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

// RequireAuth verifies the bearer token and injects the user id into the
// request context.
func RequireAuth(verifier domain.TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				writeError(w, r, fmt.Errorf("missing bearer token: %w", domain.ErrUnauthorized), nil)
				return
			}
			userID, err := verifier.Verify(token)
			if err != nil {
				writeError(w, r, err, nil)
				return
			}
			ctx := context.WithValue(r.Context(), userIDKey{}, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AuthHandlers serves registration and login.
type AuthHandlers struct {
	Auth *usecase.AuthService
}

type credentialsRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=72"`
}

// Register handles POST /v1/auth/register.
func (h *AuthHandlers) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, fmt.Errorf("malformed body: %w", domain.ErrInvalidArgument), nil)
		return
	}
	if details, err := validateBody(req); err != nil {
		writeError(w, r, err, details)
		return
	}
	u, err := h.Auth.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":    u.ID,
		"email": u.Email,
	})
}

// Login handles POST /v1/auth/login.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, fmt.Errorf("malformed body: %w", domain.ErrInvalidArgument), nil)
		return
	}
	if details, err := validateBody(req); err != nil {
		writeError(w, r, err, details)
		return
	}
	token, err := h.Auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}
