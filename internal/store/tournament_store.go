package store

import (
	"context"

	"bettabuckz/internal/models"
)

type TournamentStore struct {
	db DB
}

func NewTournamentStore(db DB) *TournamentStore {
	return &TournamentStore{db: db}
}

func (s *TournamentStore) GetByID(ctx context.Context, tournamentID string) (models.Tournament, error) {
	var row models.Tournament
	err := s.db.GetContext(ctx, &row, `
		SELECT id, name, entry_fee, status
		FROM tournaments
		WHERE id = $1
	`, tournamentID)
	if err != nil {
		return models.Tournament{}, notFound(err)
	}
	return row, nil
}
