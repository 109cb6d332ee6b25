package repo

import (
	"context"
	"sync"
	"time"

	"github.com/capricechess/caprice/internal/domain"
)

// memrepo is an in-memory repository used in tests and when no database is
// configured.
type memrepo struct {
	mu sync.RWMutex

	ratings  map[string]*domain.RatingState
	games    map[string]*domain.GameSession
	moves    map[string][]*domain.MoveRecord
	analysis map[string][]domain.MoveScore
}

func NewMemory() Repository {
	return &memrepo{
		ratings:  make(map[string]*domain.RatingState),
		games:    make(map[string]*domain.GameSession),
		moves:    make(map[string][]*domain.MoveRecord),
		analysis: make(map[string][]domain.MoveScore),
	}
}

func (m *memrepo) GetRating(ctx context.Context, playerID string) (*domain.RatingState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.ratings[playerID]
	if !ok {
		return nil, nil
	}
	cp := *state
	return &cp, nil
}

func (m *memrepo) UpsertRating(ctx context.Context, state *domain.RatingState) error {
	if state == nil {
		return nil
	}
	cp := *state
	cp.UpdatedAt = time.Now()
	m.mu.Lock()
	m.ratings[state.PlayerID] = &cp
	m.mu.Unlock()
	return nil
}

func (m *memrepo) SaveGame(ctx context.Context, game *domain.GameSession, moves []*domain.MoveRecord) error {
	if game == nil {
		return nil
	}
	cp := *game
	m.mu.Lock()
	m.games[game.Code] = &cp
	m.moves[game.Code] = append([]*domain.MoveRecord(nil), moves...)
	m.mu.Unlock()
	return nil
}

func (m *memrepo) SetAnalysisStatus(ctx context.Context, code string, status domain.AnalysisStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g, ok := m.games[code]; ok {
		g.AnalysisStatus = status
	}
	return nil
}

func (m *memrepo) SaveAnalysis(ctx context.Context, code string, scores []domain.MoveScore) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.analysis[code] = append([]domain.MoveScore(nil), scores...)
	if g, ok := m.games[code]; ok {
		g.AnalysisStatus = domain.AnalysisCompleted
	}
	return nil
}

func (m *memrepo) GetGame(ctx context.Context, code string) (*domain.GameSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if g, ok := m.games[code]; ok {
		cp := *g
		return &cp, nil
	}
	return nil, nil
}

func (m *memrepo) GetAnalysis(ctx context.Context, code string) ([]domain.MoveScore, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	scores, ok := m.analysis[code]
	if !ok {
		return nil, nil
	}
	return append([]domain.MoveScore(nil), scores...), nil
}

func (m *memrepo) GetMoves(ctx context.Context, code string) ([]*domain.MoveRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.MoveRecord, 0, len(m.moves[code]))
	for _, mv := range m.moves[code] {
		cp := *mv
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memrepo) Close() error { return nil }
