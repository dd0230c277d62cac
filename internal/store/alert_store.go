package store

import (
	"context"

	"bettabuckz/internal/models"
)

// AlertStore records ledger states that need an operator.
type AlertStore struct {
	db DB
}

func NewAlertStore(db DB) *AlertStore {
	return &AlertStore{db: db}
}

func (s *AlertStore) Create(ctx context.Context, alert models.ReconciliationAlert) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reconciliation_alerts (id, kind, user_id, counterparty_user_id, amount, reference, root_cause, compensation_error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, alert.ID, alert.Kind, alert.UserID, alert.CounterpartyUserID, alert.Amount, alert.Reference, alert.RootCause, alert.CompensationError)
	return err
}

func (s *AlertStore) GetByID(ctx context.Context, alertID string) (models.ReconciliationAlert, error) {
	var row models.ReconciliationAlert
	err := s.db.GetContext(ctx, &row, `
		SELECT id, kind, user_id, counterparty_user_id, amount, reference, root_cause, compensation_error, resolved_by, resolved_at, created_at
		FROM reconciliation_alerts
		WHERE id = $1
	`, alertID)
	if err != nil {
		return models.ReconciliationAlert{}, notFound(err)
	}
	return row, nil
}

func (s *AlertStore) ListOpen(ctx context.Context, limit, offset int) ([]models.ReconciliationAlert, error) {
	rows := []models.ReconciliationAlert{}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, kind, user_id, counterparty_user_id, amount, reference, root_cause, compensation_error, resolved_by, resolved_at, created_at
		FROM reconciliation_alerts
		WHERE resolved_at IS NULL
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Resolve closes an open alert. It returns false when the alert was already
// resolved or does not exist.
func (s *AlertStore) Resolve(ctx context.Context, tx Execer, alertID, resolvedBy string) (bool, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE reconciliation_alerts
		SET resolved_at = NOW(), resolved_by = $2
		WHERE id = $1 AND resolved_at IS NULL
	`, alertID, resolvedBy)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	return rows == 1, err
}
