package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/capricechess/caprice/internal/domain"
)

type postgresRepo struct {
	db *sql.DB
}

func NewPostgres(databaseURL string) (Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &postgresRepo{db: db}, nil
}

func (r *postgresRepo) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *postgresRepo) GetRating(ctx context.Context, playerID string) (*domain.RatingState, error) {
	const q = `SELECT player_id, elo, wins, losses, draws, quiz_answered, quiz_correct, updated_at
		FROM player_ratings WHERE player_id = $1`
	state := &domain.RatingState{}
	err := r.db.QueryRowContext(ctx, q, playerID).Scan(
		&state.PlayerID, &state.Elo, &state.Wins, &state.Losses, &state.Draws,
		&state.QuizAnswered, &state.QuizCorrect, &state.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return state, nil
}

func (r *postgresRepo) UpsertRating(ctx context.Context, state *domain.RatingState) error {
	if state == nil {
		return nil
	}
	const q = `INSERT INTO player_ratings (
			player_id, elo, wins, losses, draws, quiz_answered, quiz_correct, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (player_id) DO UPDATE SET
			elo=EXCLUDED.elo,
			wins=EXCLUDED.wins,
			losses=EXCLUDED.losses,
			draws=EXCLUDED.draws,
			quiz_answered=EXCLUDED.quiz_answered,
			quiz_correct=EXCLUDED.quiz_correct,
			updated_at=EXCLUDED.updated_at`
	_, err := r.db.ExecContext(ctx, q,
		state.PlayerID, state.Elo, state.Wins, state.Losses, state.Draws,
		state.QuizAnswered, state.QuizCorrect, time.Now(),
	)
	return err
}

func (r *postgresRepo) SaveGame(ctx context.Context, game *domain.GameSession, moves []*domain.MoveRecord) error {
	if game == nil {
		return nil
	}
	movesRaw, err := json.Marshal(moves)
	if err != nil {
		return err
	}

	const q = `INSERT INTO games (
			code, white_id, black_id, final_fen, result,
			engine_tier, quiz_subject, analysis_status, moves,
			created_at, ended_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (code) DO UPDATE SET
			final_fen=EXCLUDED.final_fen,
			result=EXCLUDED.result,
			analysis_status=EXCLUDED.analysis_status,
			moves=EXCLUDED.moves,
			ended_at=EXCLUDED.ended_at`
	_, err = r.db.ExecContext(ctx, q,
		game.Code, game.WhiteID, nullable(game.BlackID), game.FEN, game.Result,
		nullable(string(game.EngineTier)), nullable(strings.Join(game.QuizSubjects, ",")),
		string(game.AnalysisStatus), string(movesRaw),
		game.CreatedAt, time.Now(),
	)
	return err
}

func (r *postgresRepo) GetGame(ctx context.Context, code string) (*domain.GameSession, error) {
	const q = `SELECT code, white_id, COALESCE(black_id, ''), final_fen, result,
			COALESCE(engine_tier, ''), COALESCE(quiz_subject, ''), analysis_status, created_at
		FROM games WHERE code = $1`
	g := &domain.GameSession{Status: domain.StatusFinished}
	var tier, subject, status string
	err := r.db.QueryRowContext(ctx, q, code).Scan(
		&g.Code, &g.WhiteID, &g.BlackID, &g.FEN, &g.Result,
		&tier, &subject, &status, &g.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	g.EngineTier = domain.EngineTier(tier)
	if subject != "" {
		g.QuizSubjects = strings.Split(subject, ",")
	}
	g.AnalysisStatus = domain.AnalysisStatus(status)
	return g, nil
}

func (r *postgresRepo) GetMoves(ctx context.Context, code string) ([]*domain.MoveRecord, error) {
	const q = `SELECT COALESCE(moves, '[]') FROM games WHERE code = $1`
	var raw string
	err := r.db.QueryRowContext(ctx, q, code).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var moves []*domain.MoveRecord
	if err := json.Unmarshal([]byte(raw), &moves); err != nil {
		return nil, fmt.Errorf("decode move archive for %s: %w", code, err)
	}
	return moves, nil
}

func (r *postgresRepo) SetAnalysisStatus(ctx context.Context, code string, status domain.AnalysisStatus) error {
	const q = `UPDATE games SET analysis_status = $2 WHERE code = $1`
	_, err := r.db.ExecContext(ctx, q, code, string(status))
	return err
}

func (r *postgresRepo) SaveAnalysis(ctx context.Context, code string, scores []domain.MoveScore) error {
	raw, err := json.Marshal(scores)
	if err != nil {
		return err
	}
	const q = `UPDATE games SET analysis = $2, analysis_status = $3 WHERE code = $1`
	_, err = r.db.ExecContext(ctx, q, code, string(raw), string(domain.AnalysisCompleted))
	return err
}

func (r *postgresRepo) GetAnalysis(ctx context.Context, code string) ([]domain.MoveScore, error) {
	const q = `SELECT analysis FROM games WHERE code = $1 AND analysis IS NOT NULL`
	var raw string
	err := r.db.QueryRowContext(ctx, q, code).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var scores []domain.MoveScore
	if err := json.Unmarshal([]byte(raw), &scores); err != nil {
		return nil, fmt.Errorf("decode analysis for %s: %w", code, err)
	}
	return scores, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: strings.TrimSpace(s) != ""}
}
