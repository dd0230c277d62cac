package store

import (
	"context"
	"fmt"
)

// WalletStore tracks the HD derivation cursor for deposit addresses.
type WalletStore struct {
	db DB
}

func NewWalletStore(db DB) *WalletStore {
	return &WalletStore{db: db}
}

func (s *WalletStore) Init(ctx context.Context, xpub string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO hd_wallet_state (id, xpub, next_index)
		VALUES (1, $1, 0)
		ON CONFLICT (id) DO NOTHING
	`, xpub)
	return err
}

// NextIndex atomically reserves a derivation index.
func (s *WalletStore) NextIndex(ctx context.Context) (uint32, string, error) {
	var row struct {
		Index int64  `db:"derivation_index"`
		XPub  string `db:"xpub"`
	}
	err := s.db.GetContext(ctx, &row, `
		UPDATE hd_wallet_state
		SET next_index = next_index + 1, updated_at = NOW()
		WHERE id = 1
		RETURNING next_index - 1 AS derivation_index, xpub
	`)
	if err != nil {
		return 0, "", notFound(err)
	}
	if row.Index < 0 || row.Index >= 1<<31 {
		return 0, "", fmt.Errorf("derivation index %d out of range", row.Index)
	}
	return uint32(row.Index), row.XPub, nil
}
