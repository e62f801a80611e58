package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/josh-kwaku/console-bank/internal/auth"
	"github.com/josh-kwaku/console-bank/internal/config"
	"github.com/josh-kwaku/console-bank/internal/console"
	"github.com/josh-kwaku/console-bank/internal/logging"
	"github.com/josh-kwaku/console-bank/internal/repository"
	"github.com/josh-kwaku/console-bank/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logging.Init("bank-console", cfg.LogLevel, cfg.AppEnv, os.Stderr)

	// SIGINT keeps its default behaviour; the menu blocks on stdin.
	if err := run(context.Background(), cfg); err != nil {
		slog.Error("console exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	db, err := repository.NewPostgresDB(ctx, cfg.DatabaseURL, repository.PoolConfig{
		MaxOpenConns:     cfg.DBMaxOpenConns,
		MaxIdleConns:     cfg.DBMaxIdleConns,
		ConnMaxLifetimeS: cfg.DBConnMaxLifetimeS,
		ConnMaxIdleTimeS: cfg.DBConnMaxIdleTimeS,
	}, cfg.DBConnectAttempts)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := repository.Migrate(db); err != nil {
		return err
	}

	userRepo := repository.NewUserRepository(db)
	accountRepo := repository.NewAccountRepository(db)
	txLog := service.NewTransactionLog(repository.NewTransactionRepository(db), db)

	ledger := service.NewLedger(accountRepo, txLog, db, nil)
	users := service.NewUserService(userRepo, accountRepo, db, cfg.BcryptCost)

	if name, password, ok := cfg.BootstrapAdmin(); ok {
		if err := users.EnsureAdmin(ctx, name, password); err != nil {
			return err
		}
	}

	session := auth.NewSession(auth.NewAuthenticator(userRepo, cfg.BcryptCost))
	return console.New(os.Stdin, os.Stdout, session, ledger, users).Run(ctx)
}
