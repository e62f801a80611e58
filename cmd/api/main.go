package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/josh-kwaku/console-bank/internal/auth"
	"github.com/josh-kwaku/console-bank/internal/config"
	"github.com/josh-kwaku/console-bank/internal/handler"
	"github.com/josh-kwaku/console-bank/internal/logging"
	"github.com/josh-kwaku/console-bank/internal/metrics"
	"github.com/josh-kwaku/console-bank/internal/middleware"
	"github.com/josh-kwaku/console-bank/internal/repository"
	"github.com/josh-kwaku/console-bank/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.RequireJWTSecret(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	logging.Init("bank-api", cfg.LogLevel, cfg.AppEnv, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := repository.NewPostgresDB(ctx, cfg.DatabaseURL, repository.PoolConfig{
		MaxOpenConns:     cfg.DBMaxOpenConns,
		MaxIdleConns:     cfg.DBMaxIdleConns,
		ConnMaxLifetimeS: cfg.DBConnMaxLifetimeS,
		ConnMaxIdleTimeS: cfg.DBConnMaxIdleTimeS,
	}, cfg.DBConnectAttempts)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := repository.Migrate(db); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	var collector *metrics.Collector
	if cfg.MetricsEnabled {
		collector = metrics.NewCollector()
	}

	userRepo := repository.NewUserRepository(db)
	accountRepo := repository.NewAccountRepository(db)
	txLog := service.NewTransactionLog(repository.NewTransactionRepository(db), db)

	ledger := service.NewLedger(accountRepo, txLog, db, collector)
	users := service.NewUserService(userRepo, accountRepo, db, cfg.BcryptCost)

	if name, password, ok := cfg.BootstrapAdmin(); ok {
		if err := users.EnsureAdmin(ctx, name, password); err != nil {
			slog.Error("failed to bootstrap admin", "error", err)
			os.Exit(1)
		}
	}

	idempotencyRepo := repository.NewIdempotencyRepository(db)
	go sweepIdempotencyKeys(ctx, idempotencyRepo, cfg.IdempotencySweepInterval)

	mux := newRouter(routerDeps{
		health:         handler.NewHealthHandler(db),
		auth:           handler.NewAuthHandler(auth.NewAuthenticator(userRepo, cfg.BcryptCost), cfg.JWTSecret, cfg.JWTExpiry),
		accounts:       handler.NewAccountHandler(ledger, users),
		admin:          handler.NewAdminHandler(users, ledger),
		metrics:        collector,
		users:          userRepo,
		idempotency:    idempotencyRepo,
		idempotencyTTL: cfg.IdempotencyTTL,
		jwtSecret:      cfg.JWTSecret,
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           middleware.Chain(mux, middleware.Tracing, middleware.Logging(collector), middleware.Recovery),
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("server started", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

type expiredKeySweeper interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// sweepIdempotencyKeys removes expired idempotency keys until ctx is done.
func sweepIdempotencyKeys(ctx context.Context, repo expiredKeySweeper, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := repo.DeleteExpired(ctx)
			if err != nil {
				slog.Error("idempotency sweep failed", "error", err)
				continue
			}
			if n > 0 {
				slog.Info("idempotency keys expired", "count", n)
			}
		}
	}
}
