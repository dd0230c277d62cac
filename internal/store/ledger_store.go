package store

import (
	"context"

	"bettabuckz/internal/models"
)

// LedgerStore is append-only: it has no update or delete paths.
type LedgerStore struct {
	db DB
}

func NewLedgerStore(db DB) *LedgerStore {
	return &LedgerStore{db: db}
}

const ledgerColumns = `id, user_id, kind, amount, balance_after, counterparty_user_id, reference, description, idempotency_key, created_at`

func (s *LedgerStore) Append(ctx context.Context, tx Execer, entry models.LedgerEntry) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO ledger_entries (id, user_id, kind, amount, balance_after, counterparty_user_id, reference, description, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, entry.ID, entry.UserID, string(entry.Kind), entry.Amount, entry.BalanceAfter, entry.CounterpartyUserID, entry.Reference, entry.Description, entry.IdempotencyKey)
	return err
}

func (s *LedgerStore) GetByID(ctx context.Context, entryID string) (models.LedgerEntry, error) {
	var row models.LedgerEntry
	err := s.db.GetContext(ctx, &row, `SELECT `+ledgerColumns+` FROM ledger_entries WHERE id = $1`, entryID)
	if err != nil {
		return models.LedgerEntry{}, notFound(err)
	}
	return row, nil
}

func (s *LedgerStore) GetByIdempotencyKey(ctx context.Context, userID, key string) (models.LedgerEntry, error) {
	var row models.LedgerEntry
	err := s.db.GetContext(ctx, &row, `
		SELECT `+ledgerColumns+`
		FROM ledger_entries
		WHERE user_id = $1 AND idempotency_key = $2
	`, userID, key)
	if err != nil {
		return models.LedgerEntry{}, notFound(err)
	}
	return row, nil
}

func (s *LedgerStore) ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.LedgerEntry, error) {
	rows := []models.LedgerEntry{}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+ledgerColumns+`
		FROM ledger_entries
		WHERE user_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *LedgerStore) SumByUser(ctx context.Context, q Getter, userID string) (int64, error) {
	var sum int64
	err := q.GetContext(ctx, &sum, `
		SELECT COALESCE(SUM(amount), 0)
		FROM ledger_entries
		WHERE user_id = $1
	`, userID)
	return sum, err
}
