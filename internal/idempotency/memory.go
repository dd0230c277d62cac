package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is the single-process fallback used when Redis is not
// configured.
type MemoryStore struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	records map[string]memoryRecord
}

type memoryRecord struct {
	rec     Record
	expires time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{ttl: ttl, now: time.Now, records: make(map[string]memoryRecord)}
}

func (s *MemoryStore) Begin(_ context.Context, key, fingerprint string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if existing, ok := s.records[key]; ok && now.Before(existing.expires) {
		rec := existing.rec
		return check(&rec, fingerprint)
	}
	s.records[key] = memoryRecord{rec: Record{Status: statusPending, Fingerprint: fingerprint}, expires: now.Add(s.ttl)}
	return nil, nil
}

func (s *MemoryStore) Complete(_ context.Context, key, fingerprint string, code int, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key] = memoryRecord{
		rec:     Record{Status: statusDone, Fingerprint: fingerprint, Code: code, Body: body},
		expires: s.now().Add(s.ttl),
	}
	s.sweep()
	return nil
}

func (s *MemoryStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
	return nil
}

// sweep drops expired records. Callers hold mu.
func (s *MemoryStore) sweep() {
	now := s.now()
	for key, r := range s.records {
		if !now.Before(r.expires) {
			delete(s.records, key)
		}
	}
}
