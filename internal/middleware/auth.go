package middleware

import (
	"context"
	"log"
	"net/http"
	"strings"

	"github.com/pennywise/backend/internal/models"
	"github.com/pennywise/backend/internal/services"
)

type contextKey string

const accountKey contextKey = "account"

// Authenticator resolves a bearer credential to its account.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*models.Account, error)
}

// NewAuthMiddleware rejects requests without a valid bearer credential and
// stores the authenticated account in the request context.
func NewAuthMiddleware(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				services.SendErrorResponse(w, "Authorization header required", http.StatusUnauthorized, nil)
				return
			}

			scheme, token, found := strings.Cut(authHeader, " ")
			token = strings.TrimSpace(token)
			if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
				services.SendErrorResponse(w, "Invalid authorization header format", http.StatusUnauthorized, nil)
				return
			}

			account, err := auth.Authenticate(r.Context(), token)
			if err != nil {
				if services.KindOf(err) == "" {
					log.Printf("[AUTH] Session check failed: %v", err)
					services.SendServiceError(w, err)
					return
				}
				services.SendErrorResponse(w, "Invalid or expired session", http.StatusUnauthorized, nil)
				return
			}

			ctx := context.WithValue(r.Context(), accountKey, account)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AccountFromContext returns the account stored by the auth middleware.
func AccountFromContext(ctx context.Context) (*models.Account, bool) {
	account, ok := ctx.Value(accountKey).(*models.Account)
	return account, ok && account != nil
}

// WithAccount returns a copy of ctx carrying account.
func WithAccount(ctx context.Context, account *models.Account) context.Context {
	return context.WithValue(ctx, accountKey, account)
}
