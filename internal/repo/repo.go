// Package repo persists finished games, move archives, move analysis, and
// player rating state.
package repo

import (
	"context"

	"github.com/capricechess/caprice/internal/domain"
)

type Repository interface {
	// GetRating returns (nil, nil) for an unknown player.
	GetRating(ctx context.Context, playerID string) (*domain.RatingState, error)
	UpsertRating(ctx context.Context, state *domain.RatingState) error

	// SaveGame upserts a finished game together with its move archive.
	SaveGame(ctx context.Context, game *domain.GameSession, moves []*domain.MoveRecord) error
	// GetGame returns (nil, nil) for an unknown code.
	GetGame(ctx context.Context, code string) (*domain.GameSession, error)
	GetMoves(ctx context.Context, code string) ([]*domain.MoveRecord, error)
	SetAnalysisStatus(ctx context.Context, code string, status domain.AnalysisStatus) error
	SaveAnalysis(ctx context.Context, code string, scores []domain.MoveScore) error
	// GetAnalysis returns (nil, nil) when no analysis has been stored.
	GetAnalysis(ctx context.Context, code string) ([]domain.MoveScore, error)

	Close() error
}

// RatingOrDefault loads a player's rating state, materializing a fresh
// 1200-rated record for first-time players.
func RatingOrDefault(ctx context.Context, r Repository, playerID string, defaultElo int) (*domain.RatingState, error) {
	state, err := r.GetRating(ctx, playerID)
	if err != nil {
		return nil, err
	}
	if state == nil {
		state = &domain.RatingState{PlayerID: playerID, Elo: defaultElo}
	}
	return state, nil
}
