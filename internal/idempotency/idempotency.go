package idempotency

import (
	"context"
	"encoding/hex"
	"errors"

	"golang.org/x/crypto/blake2b"
)

var (
	ErrInProgress = errors.New("request with this idempotency key is in progress")
	ErrKeyReused  = errors.New("idempotency key reused with a different request")
)

const (
	statusPending = "pending"
	statusDone    = "done"
)

// Record is what a key maps to: a pending marker while the first request
// runs, then the response to replay.
type Record struct {
	Status      string `json:"status"`
	Fingerprint string `json:"fingerprint"`
	Code        int    `json:"code,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

type Store interface {
	// Begin claims key. It returns (nil, nil) when the caller owns the key and
	// must run the request, or the completed record to replay.
	Begin(ctx context.Context, key, fingerprint string) (*Record, error)
	Complete(ctx context.Context, key, fingerprint string, code int, body []byte) error
	Release(ctx context.Context, key string) error
}

// Key scopes a client key to one user and route.
func Key(userID, route, clientKey string) string {
	return "idem:" + userID + ":" + route + ":" + clientKey
}

// Fingerprint identifies a request body so reuse of a key with a different
// payload is detected.
func Fingerprint(body []byte) string {
	sum := blake2b.Sum256(body)
	return hex.EncodeToString(sum[:])
}

func check(rec *Record, fingerprint string) (*Record, error) {
	if rec.Fingerprint != fingerprint {
		return nil, ErrKeyReused
	}
	if rec.Status != statusDone {
		return nil, ErrInProgress
	}
	return rec, nil
}
