package store

import (
	"context"

	"bettabuckz/internal/models"
)

type AccountStore struct {
	db DB
}

func NewAccountStore(db DB) *AccountStore {
	return &AccountStore{db: db}
}

// Ensure creates the zero-balance account for userID if it does not exist.
// A missing user surfaces as a foreign key violation.
func (s *AccountStore) Ensure(ctx context.Context, tx Execer, userID string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO accounts (user_id, balance)
		VALUES ($1, 0)
		ON CONFLICT (user_id) DO NOTHING
	`, userID)
	return err
}

func (s *AccountStore) GetForUpdate(ctx context.Context, tx Getter, userID string) (models.Account, error) {
	var row models.Account
	err := tx.GetContext(ctx, &row, `
		SELECT user_id, balance, created_at, updated_at
		FROM accounts
		WHERE user_id = $1
		FOR UPDATE
	`, userID)
	if err != nil {
		return models.Account{}, notFound(err)
	}
	return row, nil
}

// GetBalance returns 0 for users that never had a ledger mutation.
func (s *AccountStore) GetBalance(ctx context.Context, userID string) (int64, error) {
	var balance int64
	err := s.db.GetContext(ctx, &balance, `
		SELECT COALESCE((SELECT balance FROM accounts WHERE user_id = $1), 0)
	`, userID)
	return balance, err
}

// AdjustBalance applies delta only if the result stays non-negative and
// reports how many rows changed.
func (s *AccountStore) AdjustBalance(ctx context.Context, tx Execer, userID string, delta int64) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE accounts
		SET balance = balance + $1, updated_at = NOW()
		WHERE user_id = $2 AND balance + $1 >= 0
	`, delta, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *AccountStore) SetBalance(ctx context.Context, tx Execer, userID string, balance int64) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE accounts
		SET balance = $1, updated_at = NOW()
		WHERE user_id = $2
	`, balance, userID)
	return err
}

// ListDrift returns accounts whose stored balance differs from the sum of
// their ledger entries.
func (s *AccountStore) ListDrift(ctx context.Context) ([]models.BalanceDrift, error) {
	var rows []models.BalanceDrift
	err := s.db.SelectContext(ctx, &rows, `
		SELECT a.user_id,
		       a.balance AS stored_balance,
		       COALESCE(SUM(l.amount), 0) AS ledger_balance,
		       (a.balance - COALESCE(SUM(l.amount), 0)) AS difference
		FROM accounts a
		LEFT JOIN ledger_entries l ON l.user_id = a.user_id
		GROUP BY a.user_id, a.balance
		HAVING a.balance <> COALESCE(SUM(l.amount), 0)
		ORDER BY a.user_id
	`)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
