package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
)

type RedisStore struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewRedisStore(client redis.Cmdable, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Begin(ctx context.Context, key, fingerprint string) (*Record, error) {
	marker, err := json.Marshal(Record{Status: statusPending, Fingerprint: fingerprint})
	if err != nil {
		return nil, err
	}
	for attempt := 0; attempt < 2; attempt++ {
		claimed, err := s.client.SetNX(ctx, key, string(marker), s.ttl).Result()
		if err != nil {
			return nil, err
		}
		if claimed {
			return nil, nil
		}
		raw, err := s.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			// expired between SetNX and Get
			continue
		}
		if err != nil {
			return nil, err
		}
		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, err
		}
		return check(&rec, fingerprint)
	}
	return nil, ErrInProgress
}

func (s *RedisStore) Complete(ctx context.Context, key, fingerprint string, code int, body []byte) error {
	payload, err := json.Marshal(Record{Status: statusDone, Fingerprint: fingerprint, Code: code, Body: body})
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key, string(payload), s.ttl).Err()
}

func (s *RedisStore) Release(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}
