package store

import (
	"context"

	"bettabuckz/internal/models"

	"github.com/lib/pq"
)

// WatchStore persists the confirmation watcher's view of on-chain deposits.
type WatchStore struct {
	db DB
}

func NewWatchStore(db DB) *WatchStore {
	return &WatchStore{db: db}
}

const watchColumns = `tx_hash, address, amount_sats, confirmations, status, payment_id, first_seen_at, confirmed_at, credited_at`

// InsertIfNew records a first sighting and reports whether the hash was new.
func (s *WatchStore) InsertIfNew(ctx context.Context, tx models.WatchedTransaction) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO btc_watched_transactions (tx_hash, address, amount_sats, confirmations, status)
		VALUES ($1, $2, $3, $4, 'pending')
		ON CONFLICT (tx_hash) DO NOTHING
	`, tx.TxHash, tx.Address, tx.AmountSats, tx.Confirmations)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	return rows == 1, err
}

func (s *WatchStore) Get(ctx context.Context, txHash string) (models.WatchedTransaction, error) {
	var row models.WatchedTransaction
	err := s.db.GetContext(ctx, &row, `SELECT `+watchColumns+` FROM btc_watched_transactions WHERE tx_hash = $1`, txHash)
	if err != nil {
		return models.WatchedTransaction{}, notFound(err)
	}
	return row, nil
}

func (s *WatchStore) ListByStatus(ctx context.Context, statuses ...models.WatchStatus) ([]models.WatchedTransaction, error) {
	values := make([]string, 0, len(statuses))
	for _, status := range statuses {
		values = append(values, string(status))
	}
	rows := []models.WatchedTransaction{}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+watchColumns+`
		FROM btc_watched_transactions
		WHERE status = ANY($1)
		ORDER BY first_seen_at
	`, pq.Array(values))
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// UpdateConfirmations never lowers a stored count.
func (s *WatchStore) UpdateConfirmations(ctx context.Context, txHash string, confirmations int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE btc_watched_transactions
		SET confirmations = GREATEST(confirmations, $2)
		WHERE tx_hash = $1
	`, txHash, confirmations)
	return err
}

// MarkConfirmed moves a pending transaction to confirmed and binds it to a
// payment. It reports false if another worker got there first.
func (s *WatchStore) MarkConfirmed(ctx context.Context, txHash, paymentID string, confirmations int) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE btc_watched_transactions
		SET status = 'confirmed', payment_id = $2, confirmations = GREATEST(confirmations, $3), confirmed_at = NOW()
		WHERE tx_hash = $1 AND status = 'pending'
	`, txHash, paymentID, confirmations)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	return rows == 1, err
}

// MarkCredited is the at-most-once gate for the ledger credit event.
func (s *WatchStore) MarkCredited(ctx context.Context, txHash string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE btc_watched_transactions
		SET status = 'credited', credited_at = NOW()
		WHERE tx_hash = $1 AND status = 'confirmed'
	`, txHash)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	return rows == 1, err
}

// BindPayment ties a pending transaction to the payment it pays before it
// confirms. An existing binding is kept.
func (s *WatchStore) BindPayment(ctx context.Context, txHash, paymentID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE btc_watched_transactions
		SET payment_id = $2
		WHERE tx_hash = $1 AND status = 'pending' AND payment_id IS NULL
	`, txHash, paymentID)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	return rows == 1, err
}

func (s *WatchStore) MarkUnmatched(ctx context.Context, txHash string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE btc_watched_transactions
		SET status = 'unmatched'
		WHERE tx_hash = $1 AND status = 'pending'
	`, txHash)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	return rows == 1, err
}

// MarkFlagged parks a confirmed transaction whose payment needs manual
// verification.
func (s *WatchStore) MarkFlagged(ctx context.Context, txHash string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE btc_watched_transactions
		SET status = 'flagged'
		WHERE tx_hash = $1 AND status = 'confirmed'
	`, txHash)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	return rows == 1, err
}
