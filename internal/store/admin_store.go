package store

import (
	"context"

	"bettabuckz/internal/models"
)

// AdminStore resolves operators allowed to run reconciliation and refunds.
type AdminStore struct {
	db DB
}

func NewAdminStore(db DB) *AdminStore {
	return &AdminStore{db: db}
}

// GetOperator returns ErrNotFound for users without an admins row.
func (s *AdminStore) GetOperator(ctx context.Context, userID string) (models.Operator, error) {
	operator := models.Operator{UserID: userID}
	if err := s.db.GetContext(ctx, &operator.IsSuper, `
		SELECT is_super
		FROM admins
		WHERE user_id = $1
	`, userID); err != nil {
		return models.Operator{}, notFound(err)
	}
	if operator.IsSuper {
		return operator, nil
	}
	if err := s.db.SelectContext(ctx, &operator.Roles, `
		SELECT role
		FROM admin_roles
		WHERE admin_user_id = $1
		ORDER BY role
	`, userID); err != nil {
		return models.Operator{}, err
	}
	return operator, nil
}
