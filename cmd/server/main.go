package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pennywise/backend/internal/audit"
	"github.com/pennywise/backend/internal/config"
	"github.com/pennywise/backend/internal/database"
	"github.com/pennywise/backend/internal/handlers"
	"github.com/pennywise/backend/internal/ratelimit"
	"github.com/pennywise/backend/internal/repository"
	"github.com/pennywise/backend/internal/services"
)

// @title Expense Tracker API
// @version 1.0
// @description Passcode and federated authentication with per-account expenses
// @host localhost:8080
// @BasePath /
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

type stores struct {
	accounts  repository.AccountRepository
	passcodes repository.PasscodeRepository
	expenses  repository.ExpenseRepository
}

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	ctx := context.Background()

	var db *sql.DB
	var repos stores
	switch cfg.Store.Driver {
	case config.StoreDriverPostgres:
		db, err = database.InitDB(ctx, cfg.Database)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()

		if err := database.Migrate(ctx, db); err != nil {
			log.Fatalf("Failed to migrate database: %v", err)
		}
		repos = stores{
			accounts:  repository.NewPostgresAccounts(db),
			passcodes: repository.NewPostgresPasscodes(db),
			expenses:  repository.NewPostgresExpenses(db),
		}
	default:
		log.Println("[STORE] Using in-memory store, data is lost on restart")
		repos = stores{
			accounts:  repository.NewMemoryAccounts(),
			passcodes: repository.NewMemoryPasscodes(),
			expenses:  repository.NewMemoryExpenses(),
		}
	}

	authLimiter, apiLimiter, closeLimiters := initLimiters(ctx, cfg)
	defer closeLimiters()

	auditLogger := audit.NewAuditLogger()

	hasher, err := services.NewArgon2Hasher(cfg.Argon2)
	if err != nil {
		log.Fatalf("Invalid password hashing parameters: %v", err)
	}
	tokens, err := services.NewTokenService(cfg.JWT)
	if err != nil {
		log.Fatalf("Failed to initialize token service: %v", err)
	}

	var identity services.IdentityVerifier
	if cfg.Google.ClientID != "" {
		google, err := services.NewGoogleIdentityVerifier(ctx, cfg.Google.ClientID, &http.Client{Timeout: 10 * time.Second})
		if err != nil {
			log.Fatalf("Failed to initialize Google sign-in: %v", err)
		}
		identity = google
	} else {
		log.Println("[AUTH] GOOGLE_CLIENT_ID not set, federated login disabled")
	}

	notifier := services.NewNotifier(cfg.SMTP)
	passcodes := services.NewPasscodeService(repos.passcodes, notifier, auditLogger, cfg.Passcode)
	resolver := services.NewAccountResolver(repos.accounts, auditLogger)

	authService, err := services.NewAuthService(repos.accounts, resolver, passcodes, hasher, tokens, identity, auditLogger)
	if err != nil {
		log.Fatalf("Failed to initialize auth service: %v", err)
	}
	expenseService := services.NewExpenseService(repos.expenses, auditLogger)

	router := handlers.NewRouter(handlers.RouterConfig{
		Auth:        authService,
		Expenses:    expenseService,
		AuthLimiter: authLimiter,
		APILimiter:  apiLimiter,
		FrontendURL: cfg.Server.FrontendURL,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on :%s", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}

// initLimiters prefers Redis so limits hold across instances and falls back
// to per-process counters when Redis is unreachable.
func initLimiters(ctx context.Context, cfg *config.Config) (auth, api ratelimit.Limiter, closeFn func()) {
	window := cfg.RateLimit.Window

	if redisClient := database.InitRedis(ctx, cfg.Redis); redisClient != nil {
		return ratelimit.NewRedisLimiter(redisClient, cfg.RateLimit.AuthMax, window),
			ratelimit.NewRedisLimiter(redisClient, cfg.RateLimit.APIMax, window),
			func() {
				if err := redisClient.Close(); err != nil {
					log.Printf("[REDIS] close: %v", err)
				}
			}
	}

	log.Println("[RATELIMIT] Redis unavailable, using in-memory limiter")
	authMem := ratelimit.NewMemoryLimiter(cfg.RateLimit.AuthMax, window)
	apiMem := ratelimit.NewMemoryLimiter(cfg.RateLimit.APIMax, window)
	return authMem, apiMem, func() {
		authMem.Close()
		apiMem.Close()
	}
}
