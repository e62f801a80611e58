package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// IdempotencyEntry is a reserved key and, once the request finished, the
// response it produced. StatusCode is zero while the request is in flight.
type IdempotencyEntry struct {
	Key          string
	UserID       uuid.UUID
	RequestHash  string
	StatusCode   int
	ResponseBody []byte
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

func (e *IdempotencyEntry) Completed() bool {
	return e.StatusCode != 0
}

type IdempotencyRepository struct {
	db *sql.DB
}

func NewIdempotencyRepository(db *sql.DB) *IdempotencyRepository {
	return &IdempotencyRepository{db: db}
}

func (r *IdempotencyRepository) Get(ctx context.Context, key string, userID uuid.UUID) (*IdempotencyEntry, error) {
	var (
		e      IdempotencyEntry
		status sql.NullInt32
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT idempotency_key, user_id, request_hash, status_code, response_body, created_at, expires_at
		FROM idempotency_keys
		WHERE idempotency_key = $1 AND user_id = $2 AND expires_at > now()`,
		key, userID,
	).Scan(&e.Key, &e.UserID, &e.RequestHash, &status, &e.ResponseBody, &e.CreatedAt, &e.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	e.StatusCode = int(status.Int32)
	return &e, nil
}

// Reserve claims the key for a new request. It reports false when a live
// entry already holds the key; an expired entry is taken over.
func (r *IdempotencyRepository) Reserve(ctx context.Context, entry *IdempotencyEntry) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO idempotency_keys (idempotency_key, user_id, request_hash, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (idempotency_key, user_id) DO UPDATE
		SET request_hash = EXCLUDED.request_hash,
		    status_code = NULL,
		    response_body = NULL,
		    created_at = EXCLUDED.created_at,
		    expires_at = EXCLUDED.expires_at
		WHERE idempotency_keys.expires_at <= now()`,
		entry.Key, entry.UserID, entry.RequestHash, entry.CreatedAt, entry.ExpiresAt,
	)
	if err != nil {
		return false, fmt.Errorf("Reserve: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("Reserve: rows affected: %w", err)
	}
	return n == 1, nil
}

func (r *IdempotencyRepository) Complete(ctx context.Context, key string, userID uuid.UUID, status int, body []byte) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE idempotency_keys SET status_code = $3, response_body = $4
		WHERE idempotency_key = $1 AND user_id = $2`,
		key, userID, status, body,
	)
	if err != nil {
		return fmt.Errorf("Complete: %w", err)
	}
	return nil
}

// Release drops an in-flight reservation so the client may retry with the
// same key.
func (r *IdempotencyRepository) Release(ctx context.Context, key string, userID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM idempotency_keys
		WHERE idempotency_key = $1 AND user_id = $2 AND status_code IS NULL`,
		key, userID,
	)
	if err != nil {
		return fmt.Errorf("Release: %w", err)
	}
	return nil
}

func (r *IdempotencyRepository) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM idempotency_keys WHERE expires_at <= now()`,
	)
	if err != nil {
		return 0, fmt.Errorf("DeleteExpired: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("DeleteExpired: rows affected: %w", err)
	}
	return n, nil
}
