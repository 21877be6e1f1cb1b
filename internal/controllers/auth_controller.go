package controllers

import (
	"context"
	"net/http"

	"github.com/finpilot/finpilot/pkg/finpilot/core"
	"github.com/finpilot/finpilot/pkg/finpilot/domain"
)

// UserRepo is what auth needs from the user repository.
type UserRepo interface {
	FindByApiKey(apiKey string) (*domain.User, error)
}

type AuthController struct {
	UserRepo UserRepo
}

func NewBaseController(userRepo UserRepo) *AuthController {
	return &AuthController{UserRepo: userRepo}
}

// RequireAuth authenticates the request by API key.
// Supported headers: X-API-Key: <key>
func (c *AuthController) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		apiKey := r.Header.Get("X-API-Key")
		if apiKey != "" {
			u, err := c.UserRepo.FindByApiKey(apiKey)
			if err == nil && u != nil {
				ctx := context.WithValue(r.Context(), core.CtxKeyUsername, u.Username)
				next(w, r.WithContext(ctx))
				return
			}
		}
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	}
}
