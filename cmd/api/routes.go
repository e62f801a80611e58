package main

import (
	"net/http"
	"time"

	"github.com/josh-kwaku/console-bank/internal/handler"
	"github.com/josh-kwaku/console-bank/internal/metrics"
	"github.com/josh-kwaku/console-bank/internal/middleware"
	"github.com/josh-kwaku/console-bank/internal/repository"
)

type routerDeps struct {
	health         *handler.HealthHandler
	auth           *handler.AuthHandler
	accounts       *handler.AccountHandler
	admin          *handler.AdminHandler
	metrics        *metrics.Collector
	users          *repository.UserRepository
	idempotency    *repository.IdempotencyRepository
	idempotencyTTL time.Duration
	jwtSecret      string
}

func newRouter(d routerDeps) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", d.health.Liveness)
	mux.HandleFunc("GET /health/ready", d.health.Readiness)
	if d.metrics != nil {
		mux.Handle("GET /metrics", d.metrics.Handler())
	}

	mux.HandleFunc("POST /api/v1/auth/login", d.auth.Login)

	authed := middleware.Auth(d.jwtSecret, d.users)
	idempotent := middleware.Idempotency(d.idempotency, d.idempotencyTTL)
	user := func(h http.HandlerFunc) http.Handler {
		return authed(h)
	}
	money := func(h http.HandlerFunc) http.Handler {
		return authed(idempotent(h))
	}
	admin := func(h http.HandlerFunc) http.Handler {
		return authed(middleware.RequireAdmin(h))
	}

	mux.Handle("GET /api/v1/account", user(d.accounts.Get))
	mux.Handle("POST /api/v1/account/deposit", money(d.accounts.Deposit))
	mux.Handle("POST /api/v1/account/withdraw", money(d.accounts.Withdraw))
	mux.Handle("POST /api/v1/account/transfer", money(d.accounts.Transfer))
	mux.Handle("GET /api/v1/account/transactions", user(d.accounts.Transactions))

	mux.Handle("GET /api/v1/admin/users", admin(d.admin.ListUsers))
	mux.Handle("POST /api/v1/admin/users", admin(d.admin.CreateUser))
	mux.Handle("PUT /api/v1/admin/users/{id}", admin(d.admin.UpdateUser))
	mux.Handle("DELETE /api/v1/admin/users/{id}", admin(d.admin.DeleteUser))
	mux.Handle("GET /api/v1/admin/transactions", admin(d.admin.Transactions))

	return mux
}
