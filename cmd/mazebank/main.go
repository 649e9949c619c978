package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/boddenberg/mazebank-go/internal/config"
	"github.com/boddenberg/mazebank-go/internal/domain"
	"github.com/boddenberg/mazebank-go/internal/handler"
	"github.com/boddenberg/mazebank-go/internal/infra/cache"
	"github.com/boddenberg/mazebank-go/internal/infra/memory"
	"github.com/boddenberg/mazebank-go/internal/infra/observability"
	"github.com/boddenberg/mazebank-go/internal/infra/postgres"
	"github.com/boddenberg/mazebank-go/internal/infra/resilience"
	"github.com/boddenberg/mazebank-go/internal/port"
	"github.com/boddenberg/mazebank-go/internal/service"

	"go.uber.org/zap"
)

// backend is what both store implementations provide.
type backend interface {
	port.UnitOfWork
	port.Pinger
	Accounts() port.AccountStore
	Transactions() port.TransactionStore
	Users() port.UserStore
}

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel, "mazebank-api")
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("store", cfg.Store),
		zap.Duration("cache_ttl", cfg.CacheTTL),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
		zap.Int("max_concurrency", cfg.MaxConcurrency),
		zap.Duration("jwt_access_ttl", cfg.JWTAccessTTL),
		zap.String("bank_timezone", cfg.BankTimezone),
	)

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, "mazebank-api")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Store ---
	ctx := context.Background()
	store, closeStore, err := openStore(ctx, cfg, metrics, logger)
	if err != nil {
		logger.Fatal("failed to open store", zap.Error(err))
	}
	defer closeStore()

	// --- Cache ---
	actors := cache.New[domain.Actor](cfg.CacheTTL)
	defer actors.Close()

	// --- Services ---
	loc := cfg.Location()
	clock := service.SystemClock{Location: loc}

	engine := service.NewTransferEngine(store, store.Accounts(), store.Transactions(), clock, metrics, logger)
	authSvc := service.NewAuthService(store.Users(), cfg.JWTSecret, cfg.JWTAccessTTL, clock, logger)
	accountSvc := service.NewAccountService(store, store.Accounts(), store.Users(), engine, clock, logger)
	userSvc := service.NewUserService(store, store.Users(), store.Accounts(), actors, logger)
	txnSvc := service.NewTransactionService(engine, store.Transactions(), store.Accounts(), store.Users(), logger)

	if err := authSvc.SeedEmployee(ctx, cfg.SeedEmployeeEmail, cfg.SeedEmployeePassword); err != nil {
		logger.Fatal("failed to seed employee", zap.Error(err))
	}

	// --- Router ---
	router := handler.NewRouter(handler.Deps{
		Auth:         authSvc,
		Accounts:     accountSvc,
		Users:        userSvc,
		Transactions: txnSvc,
		UserStore:    store.Users(),
		Actors:       actors,
		Store:        store,
		StoreName:    cfg.Store,
		Location:     loc,
		Metrics:      metrics,
		Logger:       logger,
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}

func openStore(ctx context.Context, cfg *config.Config, metrics *observability.Metrics, logger *zap.Logger) (backend, func(), error) {
	switch cfg.Store {
	case config.StoreMemory:
		logger.Warn("using in-memory store; data is lost on restart")
		return memory.New(), func() {}, nil

	case config.StorePostgres:
		db, err := postgres.Open(ctx, cfg.DatabaseURL, postgres.Options{
			MaxOpenConns:    cfg.DBMaxOpenConns,
			ConnMaxLifetime: cfg.DBConnMaxLifetime,
			Resilience: resilience.Config{
				MaxRetries:     cfg.MaxRetries,
				InitialBackoff: cfg.InitialBackoff,
				MaxConcurrency: cfg.MaxConcurrency,
			},
		}, metrics, logger)
		if err != nil {
			return nil, nil, err
		}
		if err := db.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		logger.Info("postgres store ready")
		return db, func() { _ = db.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}
