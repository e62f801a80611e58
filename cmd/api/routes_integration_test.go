package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/josh-kwaku/console-bank/internal/auth"
	"github.com/josh-kwaku/console-bank/internal/domain"
	"github.com/josh-kwaku/console-bank/internal/handler"
	"github.com/josh-kwaku/console-bank/internal/metrics"
	"github.com/josh-kwaku/console-bank/internal/repository"
	"github.com/josh-kwaku/console-bank/internal/service"
	"github.com/josh-kwaku/console-bank/internal/testutil"
)

const routerTestSecret = "router-test-secret"

func setupRouter(t *testing.T) (http.Handler, *repository.UserRepository, func(*testing.T, string) string) {
	t.Helper()
	db := testutil.SetupTestDB(t)

	userRepo := repository.NewUserRepository(db)
	accountRepo := repository.NewAccountRepository(db)
	txLog := service.NewTransactionLog(repository.NewTransactionRepository(db), db)
	collector := metrics.NewCollector()
	ledger := service.NewLedger(accountRepo, txLog, db, collector)
	users := service.NewUserService(userRepo, accountRepo, db, bcrypt.MinCost)

	mux := newRouter(routerDeps{
		health:         handler.NewHealthHandler(db),
		auth:           handler.NewAuthHandler(auth.NewAuthenticator(userRepo, bcrypt.MinCost), routerTestSecret, time.Hour),
		accounts:       handler.NewAccountHandler(ledger, users),
		admin:          handler.NewAdminHandler(users, ledger),
		metrics:        collector,
		users:          userRepo,
		idempotency:    repository.NewIdempotencyRepository(db),
		idempotencyTTL: time.Hour,
		jwtSecret:      routerTestSecret,
	})

	login := func(t *testing.T, username string) string {
		t.Helper()
		testutil.SeedTestUser(t, db, username, domain.RoleUser)
		rr := httptest.NewRecorder()
		body := `{"username":"` + username + `","password":"` + testutil.TestPassword + `"}`
		mux.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body)))
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

		var resp struct {
			Data struct {
				Token string `json:"token"`
			} `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		return resp.Data.Token
	}
	return mux, userRepo, login
}

func call(h http.Handler, method, path, token, key, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func balanceOf(t *testing.T, h http.Handler, token string) string {
	t.Helper()
	rr := call(h, http.MethodGet, "/api/v1/account", token, "", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var resp struct {
		Data struct {
			Balance string `json:"balance"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp.Data.Balance
}

func TestRouter_DepositReplayCreditsOnce(t *testing.T) {
	h, _, login := setupRouter(t)
	tok := login(t, "alice")

	first := call(h, http.MethodPost, "/api/v1/account/deposit", tok, "dep-1", `{"amount":"25.00"}`)
	require.Less(t, first.Code, 300, first.Body.String())

	second := call(h, http.MethodPost, "/api/v1/account/deposit", tok, "dep-1", `{"amount":"25.00"}`)
	assert.Equal(t, first.Code, second.Code)
	assert.Equal(t, "true", second.Header().Get("X-Idempotent-Replayed"))
	assert.JSONEq(t, first.Body.String(), second.Body.String())

	assert.Equal(t, "25.00", balanceOf(t, h, tok))

	conflict := call(h, http.MethodPost, "/api/v1/account/deposit", tok, "dep-1", `{"amount":"30.00"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, conflict.Code)

	missing := call(h, http.MethodPost, "/api/v1/account/deposit", tok, "", `{"amount":"1.00"}`)
	assert.Equal(t, http.StatusBadRequest, missing.Code)
	assert.Equal(t, "25.00", balanceOf(t, h, tok))
}

func TestRouter_ClosedUserTokenRejected(t *testing.T) {
	h, users, login := setupRouter(t)
	tok := login(t, "alice")
	require.Equal(t, "0.00", balanceOf(t, h, tok))

	u, err := users.GetByUsername(t.Context(), "alice")
	require.NoError(t, err)
	require.NoError(t, users.UpdateStatus(t.Context(), u.ID, domain.UserStatusClosed))

	rr := call(h, http.MethodGet, "/api/v1/account", tok, "", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Contains(t, rr.Body.String(), "INVALID_TOKEN")
}
