package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/console-bank/internal/auth"
	"github.com/josh-kwaku/console-bank/internal/domain"
	"github.com/josh-kwaku/console-bank/internal/handler"
	"github.com/josh-kwaku/console-bank/internal/logging"
	"github.com/josh-kwaku/console-bank/internal/repository"
)

type idempotencyRepository interface {
	Get(ctx context.Context, key string, userID uuid.UUID) (*repository.IdempotencyEntry, error)
	Reserve(ctx context.Context, entry *repository.IdempotencyEntry) (bool, error)
	Complete(ctx context.Context, key string, userID uuid.UUID, status int, body []byte) error
	Release(ctx context.Context, key string, userID uuid.UUID) error
}

const (
	idempotencyHeader = "Idempotency-Key"
	replayedHeader    = "X-Idempotent-Replayed"
	maxIdempotencyKey = 255
	maxIdempotentBody = 1 << 20
)

// Idempotency makes a money-moving request safe to retry. The first request
// for a key reserves it and stores the response; a repeat with the same body
// replays that response, and a repeat with a different body is rejected.
// Server errors release the key. It must run after Auth.
func Idempotency(repo idempotencyRepository, ttl time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get(idempotencyHeader)
			if key == "" || len(key) > maxIdempotencyKey {
				handler.RespondAppError(w, handler.ErrMissingIdempotencyKey, nil)
				return
			}

			p, ok := auth.PrincipalFromContext(r.Context())
			if !ok {
				handler.RespondAppError(w, handler.ErrMissingToken, nil)
				return
			}

			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxIdempotentBody))
			if err != nil {
				handler.RespondAppError(w, handler.ErrInvalidRequest, nil)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			log := logging.FromContext(r.Context()).With("idempotency_key", key)
			now := time.Now().UTC()
			entry := &repository.IdempotencyEntry{
				Key:         key,
				UserID:      p.UserID,
				RequestHash: requestHash(r.Method, r.URL.Path, body),
				CreatedAt:   now,
				ExpiresAt:   now.Add(ttl),
			}

			reserved, err := repo.Reserve(r.Context(), entry)
			if err != nil {
				log.Error("idempotency reserve failed", "error", err)
				handler.RespondDomainError(w, domain.StorageError("Idempotency", err))
				return
			}
			if !reserved {
				replay(w, r, repo, entry, log)
				return
			}

			rec := &responseRecorder{ResponseWriter: w, body: &bytes.Buffer{}, statusCode: http.StatusOK}
			// Storage writes outlive a client that hung up mid-request.
			storeCtx := context.WithoutCancel(r.Context())
			finished := false
			defer func() {
				if finished {
					return
				}
				if err := repo.Release(storeCtx, key, p.UserID); err != nil {
					log.Error("idempotency release failed", "error", err)
				}
			}()

			next.ServeHTTP(rec, r)
			finished = true

			if rec.statusCode >= http.StatusInternalServerError {
				if err := repo.Release(storeCtx, key, p.UserID); err != nil {
					log.Error("idempotency release failed", "error", err)
				}
				return
			}
			if err := repo.Complete(storeCtx, key, p.UserID, rec.statusCode, rec.body.Bytes()); err != nil {
				log.Error("idempotency store failed", "error", err)
			}
		})
	}
}

func replay(w http.ResponseWriter, r *http.Request, repo idempotencyRepository, entry *repository.IdempotencyEntry, log *slog.Logger) {
	cached, err := repo.Get(r.Context(), entry.Key, entry.UserID)
	if err != nil {
		log.Error("idempotency lookup failed", "error", err)
		handler.RespondDomainError(w, domain.StorageError("Idempotency", err))
		return
	}
	switch {
	case cached == nil:
		// Released or expired between reserve and lookup.
		handler.RespondAppError(w, handler.ErrIdempotencyInProgress, nil)
	case cached.RequestHash != entry.RequestHash:
		handler.RespondAppError(w, handler.ErrIdempotencyConflict, nil)
	case !cached.Completed():
		handler.RespondAppError(w, handler.ErrIdempotencyInProgress, nil)
	default:
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set(replayedHeader, "true")
		w.WriteHeader(cached.StatusCode)
		if _, err := w.Write(cached.ResponseBody); err != nil {
			log.Error("idempotent replay write failed", "error", err)
		}
	}
}

func requestHash(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte(path))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

type responseRecorder struct {
	http.ResponseWriter
	statusCode int
	body       *bytes.Buffer
}

func (r *responseRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}
