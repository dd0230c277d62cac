package store

import (
	"context"
	"time"

	"bettabuckz/internal/models"
)

type PaymentStore struct {
	db DB
}

func NewPaymentStore(db DB) *PaymentStore {
	return &PaymentStore{db: db}
}

const paymentColumns = `id, user_id, rail, direction, status, amount_usd_cents, credit_amount, fee_amount, amount_crypto, address, provider_reference, confirmations, package_id, description, expires_at, created_at, updated_at`

func (s *PaymentStore) Create(ctx context.Context, p models.Payment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payments (id, user_id, rail, direction, status, amount_usd_cents, credit_amount, fee_amount, amount_crypto, address, provider_reference, package_id, description, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, p.ID, p.UserID, string(p.Rail), string(p.Direction), string(p.Status), p.AmountUSDCents, p.CreditAmount, p.FeeAmount, p.AmountCrypto, p.Address, p.ProviderReference, p.PackageID, p.Description, p.ExpiresAt)
	return err
}

func (s *PaymentStore) GetByID(ctx context.Context, paymentID string) (models.Payment, error) {
	var row models.Payment
	err := s.db.GetContext(ctx, &row, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, paymentID)
	if err != nil {
		return models.Payment{}, notFound(err)
	}
	return row, nil
}

func (s *PaymentStore) GetByProviderReference(ctx context.Context, rail models.Rail, reference string) (models.Payment, error) {
	var row models.Payment
	err := s.db.GetContext(ctx, &row, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE rail = $1 AND provider_reference = $2
	`, string(rail), reference)
	if err != nil {
		return models.Payment{}, notFound(err)
	}
	return row, nil
}

func (s *PaymentStore) SetProviderReference(ctx context.Context, paymentID, reference string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE payments
		SET provider_reference = $2, updated_at = NOW()
		WHERE id = $1
	`, paymentID, reference)
	return err
}

// Transition moves a payment out of pending. It reports false if the payment
// had already left pending, so each terminal transition happens once.
func (s *PaymentStore) Transition(ctx context.Context, paymentID string, to models.PaymentStatus) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE payments
		SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`, paymentID, string(to))
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	return rows == 1, err
}

func (s *PaymentStore) UpdateConfirmations(ctx context.Context, paymentID string, confirmations int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE payments
		SET confirmations = $2, updated_at = NOW()
		WHERE id = $1
	`, paymentID, confirmations)
	return err
}

// ListPendingAddresses returns the deposit addresses of inbound bitcoin
// payments still waiting for funds.
func (s *PaymentStore) ListPendingAddresses(ctx context.Context) ([]string, error) {
	var rows []string
	err := s.db.SelectContext(ctx, &rows, `
		SELECT DISTINCT address
		FROM payments
		WHERE rail = 'bitcoin' AND direction = 'inbound' AND status = 'pending' AND address IS NOT NULL
	`)
	return rows, err
}

func (s *PaymentStore) ListPendingByAddress(ctx context.Context, address string) ([]models.Payment, error) {
	rows := []models.Payment{}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE rail = 'bitcoin' AND direction = 'inbound' AND status = 'pending' AND address = $1
		ORDER BY created_at
	`, address)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *PaymentStore) ListStale(ctx context.Context, rail models.Rail, olderThan time.Time) ([]models.Payment, error) {
	rows := []models.Payment{}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE rail = $1 AND status = 'pending' AND created_at < $2
		ORDER BY created_at
	`, string(rail), olderThan)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// LatestByAddress returns the newest inbound bitcoin payment quoted on an
// address, whatever its status.
func (s *PaymentStore) LatestByAddress(ctx context.Context, address string) (models.Payment, error) {
	var row models.Payment
	err := s.db.GetContext(ctx, &row, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE rail = 'bitcoin' AND direction = 'inbound' AND address = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, address)
	if err != nil {
		return models.Payment{}, notFound(err)
	}
	return row, nil
}

// ExpireBitcoinQuotes fails inbound bitcoin payments past their quote expiry
// that never saw a deposit. An unbound deposit still waiting for
// confirmations on the address holds the quote open.
func (s *PaymentStore) ExpireBitcoinQuotes(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE payments p
		SET status = 'failed', updated_at = NOW()
		WHERE p.rail = 'bitcoin'
		  AND p.direction = 'inbound'
		  AND p.status = 'pending'
		  AND p.expires_at < $1
		  AND NOT EXISTS (
			SELECT 1 FROM btc_watched_transactions w
			WHERE w.payment_id = p.id
			   OR (w.address = p.address AND w.payment_id IS NULL AND w.status = 'pending')
		  )
	`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
