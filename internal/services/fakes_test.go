package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"bettabuckz/internal/models"
	"bettabuckz/internal/store"
	"bettabuckz/internal/websocket"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type fakeTxRunner struct {
	err error
}

func (f fakeTxRunner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	if f.err != nil {
		return f.err
	}
	return fn(nil)
}

type stubUserStore struct {
	existsFn func(ctx context.Context, userID string) (bool, error)
}

func (s stubUserStore) Exists(ctx context.Context, userID string) (bool, error) {
	if s.existsFn == nil {
		return true, nil
	}
	return s.existsFn(ctx, userID)
}

type stubTournamentStore struct {
	getByIDFn func(ctx context.Context, tournamentID string) (models.Tournament, error)
}

func (s stubTournamentStore) GetByID(ctx context.Context, tournamentID string) (models.Tournament, error) {
	if s.getByIDFn == nil {
		return models.Tournament{}, store.ErrNotFound
	}
	return s.getByIDFn(ctx, tournamentID)
}

type stubAlertStore struct {
	mu       sync.Mutex
	created  []models.ReconciliationAlert
	createFn func(ctx context.Context, alert models.ReconciliationAlert) error
}

func (s *stubAlertStore) Create(ctx context.Context, alert models.ReconciliationAlert) error {
	s.mu.Lock()
	s.created = append(s.created, alert)
	s.mu.Unlock()
	if s.createFn == nil {
		return nil
	}
	return s.createFn(ctx, alert)
}

type stubHub struct {
	mu    sync.Mutex
	calls []websocket.BalanceUpdate
}

func (s *stubHub) BroadcastBalance(_ string, update websocket.BalanceUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, update)
}

// memBook is an in-memory accounts table plus entry log. WithTx runs one
// transaction at a time and restores the previous state when fn fails.
type memBook struct {
	txMu sync.Mutex
	mu   sync.Mutex

	balances map[string]int64
	entries  []models.LedgerEntry
	keys     map[string]string

	appendFn func(entry models.LedgerEntry) error
}

func newMemBook(balances map[string]int64) *memBook {
	b := &memBook{balances: map[string]int64{}, keys: map[string]string{}}
	for userID, balance := range balances {
		b.seed(userID, balance)
	}
	return b
}

// seed opens a balance with a matching log entry so the log sum stays equal
// to the stored balance.
func (b *memBook) seed(userID string, balance int64) {
	b.balances[userID] = balance
	if balance != 0 {
		b.entries = append(b.entries, models.LedgerEntry{
			ID:           "seed-" + userID,
			UserID:       userID,
			Kind:         models.KindPurchase,
			Amount:       balance,
			BalanceAfter: balance,
			CreatedAt:    time.Now(),
		})
	}
}

func (b *memBook) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	b.txMu.Lock()
	defer b.txMu.Unlock()

	b.mu.Lock()
	balances := make(map[string]int64, len(b.balances))
	for k, v := range b.balances {
		balances[k] = v
	}
	keys := make(map[string]string, len(b.keys))
	for k, v := range b.keys {
		keys[k] = v
	}
	entries := len(b.entries)
	b.mu.Unlock()

	if err := fn(nil); err != nil {
		b.mu.Lock()
		b.balances = balances
		b.keys = keys
		b.entries = b.entries[:entries]
		b.mu.Unlock()
		return err
	}
	return nil
}

func (b *memBook) Ensure(_ context.Context, _ store.Execer, userID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.balances[userID]; !ok {
		b.balances[userID] = 0
	}
	return nil
}

func (b *memBook) GetForUpdate(_ context.Context, _ store.Getter, userID string) (models.Account, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	balance, ok := b.balances[userID]
	if !ok {
		return models.Account{}, store.ErrNotFound
	}
	return models.Account{UserID: userID, Balance: balance}, nil
}

func (b *memBook) GetBalance(_ context.Context, userID string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balances[userID], nil
}

func (b *memBook) AdjustBalance(_ context.Context, _ store.Execer, userID string, delta int64) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	balance, ok := b.balances[userID]
	if !ok || balance+delta < 0 {
		return 0, nil
	}
	b.balances[userID] = balance + delta
	return 1, nil
}

func (b *memBook) SetBalance(_ context.Context, _ store.Execer, userID string, balance int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances[userID] = balance
	return nil
}

func (b *memBook) ListDrift(_ context.Context) ([]models.BalanceDrift, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sums := map[string]int64{}
	for _, e := range b.entries {
		sums[e.UserID] += e.Amount
	}
	var drift []models.BalanceDrift
	for userID, balance := range b.balances {
		if sums[userID] != balance {
			drift = append(drift, models.BalanceDrift{
				UserID:        userID,
				StoredBalance: balance,
				LedgerBalance: sums[userID],
				Difference:    balance - sums[userID],
			})
		}
	}
	sort.Slice(drift, func(i, j int) bool { return drift[i].UserID < drift[j].UserID })
	return drift, nil
}

func (b *memBook) Append(_ context.Context, _ store.Execer, entry models.LedgerEntry) error {
	if b.appendFn != nil {
		if err := b.appendFn(entry); err != nil {
			return err
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if entry.IdempotencyKey != nil {
		k := entry.UserID + "|" + *entry.IdempotencyKey
		if _, dup := b.keys[k]; dup {
			return &pq.Error{Code: "23505"}
		}
		b.keys[k] = entry.ID
	}
	entry.CreatedAt = time.Now()
	b.entries = append(b.entries, entry)
	return nil
}

func (b *memBook) GetByID(_ context.Context, entryID string) (models.LedgerEntry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, e := range b.entries {
		if e.ID == entryID {
			return e, nil
		}
	}
	return models.LedgerEntry{}, store.ErrNotFound
}

func (b *memBook) GetByIdempotencyKey(_ context.Context, userID, key string) (models.LedgerEntry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, e := range b.entries {
		if e.UserID == userID && e.IdempotencyKey != nil && *e.IdempotencyKey == key {
			return e, nil
		}
	}
	return models.LedgerEntry{}, store.ErrNotFound
}

func (b *memBook) ListByUser(_ context.Context, userID string, limit, offset int) ([]models.LedgerEntry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []models.LedgerEntry
	for i := len(b.entries) - 1; i >= 0; i-- {
		if b.entries[i].UserID == userID {
			out = append(out, b.entries[i])
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (b *memBook) SumByUser(_ context.Context, _ store.Getter, userID string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var sum int64
	for _, e := range b.entries {
		if e.UserID == userID {
			sum += e.Amount
		}
	}
	return sum, nil
}

func (b *memBook) balance(userID string) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balances[userID]
}

func (b *memBook) entriesFor(userID string) []models.LedgerEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []models.LedgerEntry
	for _, e := range b.entries {
		if e.UserID == userID && e.ID != "seed-"+userID {
			out = append(out, e)
		}
	}
	return out
}

func newTestLedger(book *memBook, hub BalanceHub, alerts AlertStore, tournaments TournamentStore) *LedgerService {
	if tournaments == nil {
		tournaments = stubTournamentStore{}
	}
	if alerts == nil {
		alerts = &stubAlertStore{}
	}
	svc := NewLedgerService(book, book, book, stubUserStore{}, tournaments, alerts, hub, nil, nil)
	svc.compensationRetry = newCompensationRetry(time.Millisecond)
	return svc
}
