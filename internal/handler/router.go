package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/boddenberg/mazebank-go/internal/domain"
	"github.com/boddenberg/mazebank-go/internal/infra/cache"
	"github.com/boddenberg/mazebank-go/internal/infra/observability"
	"github.com/boddenberg/mazebank-go/internal/port"
	"github.com/boddenberg/mazebank-go/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// Deps are the collaborators the HTTP layer needs.
type Deps struct {
	Auth         *service.AuthService
	Accounts     *service.AccountService
	Users        *service.UserService
	Transactions *service.TransactionService

	UserStore port.UserStore
	Actors    *cache.InMemory[domain.Actor]
	Store     port.Pinger
	StoreName string
	Location  *time.Location

	Metrics *observability.Metrics
	Logger  *zap.Logger
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(d Deps) http.Handler {
	logger := d.Logger
	loc := d.Location
	if loc == nil {
		loc = time.UTC
	}

	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.TracingMiddleware)
	r.Use(observability.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(d.Store, d.StoreName))
	r.Get("/readyz", readyzHandler(d.Store, logger))
	r.Handle("/metrics", promhttp.HandlerFor(d.Metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {

		// =============================================
		// Auth (public)
		// =============================================
		r.Post("/auth/register", authRegisterHandler(d.Auth, logger))
		r.Post("/auth/login", authLoginHandler(d.Auth, logger))

		r.Group(func(r chi.Router) {
			r.Use(JWTAuthMiddleware(d.Auth, d.UserStore, d.Actors, d.Metrics, logger))
			employee := RequireEmployee(logger)

			// =============================================
			// Users
			// =============================================
			r.Get("/users/me", meHandler(d.Users, logger))
			r.With(employee).Get("/users", listUsersHandler(d.Users, logger))
			r.Get("/users/{id}", getUserHandler(d.Users, logger))
			r.Patch("/users/{id}", patchUserHandler(d.Users, logger))
			r.With(employee).Delete("/users/{id}", deleteUserHandler(d.Users, logger))
			r.With(employee).Put("/users/{id}/block", blockUserHandler(d.Users, true, logger))
			r.With(employee).Put("/users/{id}/unblock", blockUserHandler(d.Users, false, logger))
			r.Get("/users/{id}/balance", userBalanceHandler(d.Users, logger))
			r.Get("/users/{id}/accounts", userAccountsHandler(d.Accounts, logger))
			r.Get("/users/{id}/transactions", userTransactionsHandler(d.Transactions, loc, logger))

			// =============================================
			// Accounts
			// =============================================
			r.With(employee).Post("/accounts", createAccountHandler(d.Accounts, logger))
			r.With(employee).Get("/accounts", listAccountsHandler(d.Accounts, logger))
			r.Get("/accounts/search", searchAccountsHandler(d.Accounts, logger))
			r.Get("/accounts/{id}", getAccountHandler(d.Accounts, logger))
			r.With(employee).Patch("/accounts/{id}", patchAccountHandler(d.Accounts, logger))
			r.With(employee).Put("/accounts/{id}/lock", lockAccountHandler(d.Accounts, true, logger))
			r.With(employee).Put("/accounts/{id}/unlock", lockAccountHandler(d.Accounts, false, logger))
			r.Get("/accounts/{id}/limits", accountLimitsHandler(d.Accounts, logger))
			r.Post("/accounts/{id}/deposit", atmHandler(d.Accounts, domain.TransactionDeposit, logger))
			r.Post("/accounts/{id}/withdraw", atmHandler(d.Accounts, domain.TransactionWithdrawal, logger))

			// =============================================
			// Transactions
			// =============================================
			r.Post("/transactions", transferHandler(d.Transactions, logger))
			r.Get("/transactions/{id}", getTransactionHandler(d.Transactions, logger))

			// =============================================
			// Admin
			// =============================================
			r.With(employee).Get("/admin/stats", statsHandler(d.Metrics, logger))
		})
	})

	return r
}

// ============================================================
// Probes
// ============================================================

func healthzHandler(store port.Pinger, storeName string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := time.Now().Format(time.RFC3339)

		services := []domain.ServiceHealth{
			{Name: "mazebank-api", Status: "healthy", LastChecked: now},
		}

		if store != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()

			start := time.Now()
			err := store.Ping(ctx)
			status := "healthy"
			if err != nil {
				status = "unhealthy"
			}
			services = append(services, domain.ServiceHealth{
				Name: storeName, Status: status, LatencyMs: time.Since(start).Milliseconds(),
				LastChecked: now,
			})
		}

		overallStatus := "healthy"
		for _, s := range services {
			if s.Status != "healthy" {
				overallStatus = "degraded"
				break
			}
		}

		writeJSON(w, http.StatusOK, domain.HealthStatus{
			Status:   overallStatus,
			Services: services,
		})
	}
}

func readyzHandler(store port.Pinger, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := store.Ping(ctx); err != nil {
				logger.Warn("readiness check failed", zap.Error(err))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func statsHandler(metrics *observability.Metrics, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := metrics.Snapshot()
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}
