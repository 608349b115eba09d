package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	mW "github.com/pennywise/backend/internal/middleware"
	"github.com/pennywise/backend/internal/ratelimit"
	"github.com/pennywise/backend/internal/services"
)

// RouterConfig carries everything the HTTP surface depends on.
type RouterConfig struct {
	Auth        *services.AuthService
	Expenses    *services.ExpenseService
	AuthLimiter ratelimit.Limiter
	APILimiter  ratelimit.Limiter
	FrontendURL string
}

// NewRouter builds the chi router with middleware and all routes.
func NewRouter(cfg RouterConfig) http.Handler {
	authHandler := NewAuthHandler(cfg.Auth)
	expenseHandler := NewExpenseHandler(cfg.Expenses)
	requireSession := mW.NewAuthMiddleware(cfg.Auth)

	r := chi.NewRouter()

	r.Use(mW.SecurityHeaders)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.FrontendURL},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", IdempotencyKeyHeader},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		services.SendErrorResponse(w, "Route not found", http.StatusNotFound, nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		services.SendErrorResponse(w, "Method not allowed", http.StatusMethodNotAllowed, nil)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		services.SendJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/auth", func(r chi.Router) {
		r.Use(mW.RateLimit(cfg.AuthLimiter, mW.ClientIPKey("auth")))

		r.Post("/request-otp", authHandler.RequestPasscode)
		r.Post("/verify-otp", authHandler.VerifyPasscode)
		r.Post("/login", authHandler.Login)
		r.Post("/google", authHandler.LoginFederated)
		r.With(requireSession).Get("/me", authHandler.Me)
	})

	r.Route("/expenses", func(r chi.Router) {
		r.Use(requireSession)
		r.Use(mW.RateLimit(cfg.APILimiter, mW.AccountKey("api")))

		r.Post("/", expenseHandler.CreateExpense)
		r.Get("/", expenseHandler.ListExpenses)
		r.Delete("/{expenseId}", expenseHandler.DeleteExpense)
	})

	return r
}
