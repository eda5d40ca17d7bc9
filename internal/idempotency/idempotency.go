// Package idempotency implements the (scope, key) -> cached response
// store: SHA-256 request-payload hashing, insert-on-conflict claim, and
// last-write-wins response storage.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is the idempotency record repository.
type Store struct {
	pool *pgxpool.Pool
}

// New builds a Store over the given pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// HashPayload hashes a request payload as the SHA-256 of its encoding/json
// encoding (map keys sorted, struct fields in declaration order).
func HashPayload(payload any) (string, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// GetResponse returns the previously stored response for (scope, key), if
// any has been stored yet.
func (s *Store) GetResponse(ctx context.Context, scope, key string) (json.RawMessage, bool, error) {
	var resp json.RawMessage
	err := s.pool.QueryRow(ctx,
		`SELECT response FROM idempotency_record WHERE scope = $1 AND key = $2`,
		scope, key,
	).Scan(&resp)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if resp == nil {
		return nil, false, nil
	}
	return resp, true, nil
}

// Claim attempts an atomic first-writer insert on (scope, key), storing the
// request hash for debugging. Returns true iff this caller is the first.
func (s *Store) Claim(ctx context.Context, scope, key, requestHash string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO idempotency_record (scope, key, request_hash)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (scope, key) DO NOTHING`,
		scope, key, requestHash,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// StoreResponse upserts the response body for later GetResponse hits. This
// must be called after the caller's business mutation commits so a crash
// before storage simply causes a retry to re-execute the business side.
func (s *Store) StoreResponse(ctx context.Context, scope, key string, response any) error {
	b, err := json.Marshal(response)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO idempotency_record (scope, key, response)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (scope, key) DO UPDATE SET response = EXCLUDED.response`,
		scope, key, b,
	)
	return err
}
