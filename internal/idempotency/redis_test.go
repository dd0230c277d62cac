package idempotency

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ttl = 24 * time.Hour

func encode(t *testing.T, rec Record) string {
	t.Helper()
	raw, err := json.Marshal(rec)
	require.NoError(t, err)
	return string(raw)
}

func TestRedisStoreBeginClaimsNewKey(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewRedisStore(db, ttl)

	mock.ExpectSetNX("k", encode(t, Record{Status: statusPending, Fingerprint: "fp"}), ttl).SetVal(true)

	rec, err := store.Begin(context.Background(), "k", "fp")
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStoreBeginReplaysCompleted(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewRedisStore(db, ttl)
	done := Record{Status: statusDone, Fingerprint: "fp", Code: 200, Body: []byte(`{"success":true}`)}

	mock.ExpectSetNX("k", encode(t, Record{Status: statusPending, Fingerprint: "fp"}), ttl).SetVal(false)
	mock.ExpectGet("k").SetVal(encode(t, done))

	rec, err := store.Begin(context.Background(), "k", "fp")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 200, rec.Code)
	assert.JSONEq(t, `{"success":true}`, string(rec.Body))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStoreBeginConflicts(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewRedisStore(db, ttl)

	mock.ExpectSetNX("k", encode(t, Record{Status: statusPending, Fingerprint: "fp"}), ttl).SetVal(false)
	mock.ExpectGet("k").SetVal(encode(t, Record{Status: statusPending, Fingerprint: "fp"}))
	_, err := store.Begin(context.Background(), "k", "fp")
	assert.ErrorIs(t, err, ErrInProgress)

	mock.ExpectSetNX("k", encode(t, Record{Status: statusPending, Fingerprint: "other"}), ttl).SetVal(false)
	mock.ExpectGet("k").SetVal(encode(t, Record{Status: statusDone, Fingerprint: "fp", Code: 200}))
	_, err = store.Begin(context.Background(), "k", "other")
	assert.ErrorIs(t, err, ErrKeyReused)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStoreBeginRetriesWhenKeyExpires(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewRedisStore(db, ttl)
	marker := encode(t, Record{Status: statusPending, Fingerprint: "fp"})

	mock.ExpectSetNX("k", marker, ttl).SetVal(false)
	mock.ExpectGet("k").RedisNil()
	mock.ExpectSetNX("k", marker, ttl).SetVal(true)

	rec, err := store.Begin(context.Background(), "k", "fp")
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStoreCompleteAndRelease(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewRedisStore(db, ttl)

	mock.ExpectSet("k", encode(t, Record{Status: statusDone, Fingerprint: "fp", Code: 201, Body: []byte("{}")}), ttl).SetVal("OK")
	mock.ExpectDel("k").SetVal(1)

	require.NoError(t, store.Complete(context.Background(), "k", "fp", 201, []byte("{}")))
	require.NoError(t, store.Release(context.Background(), "k"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
