// Package store keeps live game state in redis: session snapshots, the
// move list, per-player blocked move pairs, and quiz question pools.
package store

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/capricechess/caprice/internal/domain"
)

const (
	ttlGame    = 24 * time.Hour
	ttlBlocked = 10 * time.Minute
)

type Store struct{ rdb *redis.Client }

func New(rdb *redis.Client) *Store { return &Store{rdb: rdb} }

func (s *Store) keyGame(code string) string  { return "game:" + strings.TrimSpace(code) }
func (s *Store) keyMoves(code string) string { return s.keyGame(code) + ":moves" }
func (s *Store) keyBlocked(code, player string) string {
	return s.keyGame(code) + ":blocked_moves:" + player
}
func (s *Store) keyQuizzes(code, subject string) string {
	return s.keyGame(code) + ":quizzes:" + strings.ToLower(strings.TrimSpace(subject))
}

func (s *Store) SaveSession(ctx context.Context, g *domain.GameSession) error {
	raw, err := json.Marshal(g)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, s.keyGame(g.Code), raw, ttlGame).Err(); err != nil {
		return err
	}
	_ = s.rdb.Expire(ctx, s.keyMoves(g.Code), ttlGame).Err()
	return nil
}

// LoadSession returns (nil, nil) when the code is unknown.
func (s *Store) LoadSession(ctx context.Context, code string) (*domain.GameSession, error) {
	raw, err := s.rdb.Get(ctx, s.keyGame(code)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var g domain.GameSession
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

func (s *Store) DeleteSession(ctx context.Context, code string) error {
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, s.keyGame(code))
	pipe.Del(ctx, s.keyMoves(code))
	_, err := pipe.Exec(ctx)
	return err
}

func (s *Store) AppendMove(ctx context.Context, mv *domain.MoveRecord) error {
	raw, err := json.Marshal(mv)
	if err != nil {
		return err
	}
	if err := s.rdb.RPush(ctx, s.keyMoves(mv.GameCode), raw).Err(); err != nil {
		return err
	}
	return s.rdb.Expire(ctx, s.keyMoves(mv.GameCode), ttlGame).Err()
}

func (s *Store) MoveCount(ctx context.Context, code string) (int, error) {
	n, err := s.rdb.LLen(ctx, s.keyMoves(code)).Result()
	return int(n), err
}

func (s *Store) Moves(ctx context.Context, code string) ([]*domain.MoveRecord, error) {
	raws, err := s.rdb.LRange(ctx, s.keyMoves(code), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*domain.MoveRecord, 0, len(raws))
	for _, raw := range raws {
		var mv domain.MoveRecord
		if err := json.Unmarshal([]byte(raw), &mv); err != nil {
			return nil, err
		}
		out = append(out, &mv)
	}
	return out, nil
}

// LastMove returns (nil, nil) when no moves are recorded yet.
func (s *Store) LastMove(ctx context.Context, code string) (*domain.MoveRecord, error) {
	raw, err := s.rdb.LIndex(ctx, s.keyMoves(code), -1).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var mv domain.MoveRecord
	if err := json.Unmarshal(raw, &mv); err != nil {
		return nil, err
	}
	return &mv, nil
}

// DropLastMove removes the most recent move record. Used when a quiz fails
// and the gated move is rolled back.
func (s *Store) DropLastMove(ctx context.Context, code string) error {
	err := s.rdb.RPop(ctx, s.keyMoves(code)).Err()
	if err == redis.Nil {
		return nil
	}
	return err
}

// BlockMove blacklists a from/to pair for the player. The whole set shares
// one expiry, refreshed on each add.
func (s *Store) BlockMove(ctx context.Context, code, player, from, to string) error {
	key := s.keyBlocked(code, player)
	if err := s.rdb.SAdd(ctx, key, from+":"+to).Err(); err != nil {
		return err
	}
	return s.rdb.Expire(ctx, key, ttlBlocked).Err()
}

func (s *Store) IsBlocked(ctx context.Context, code, player, from, to string) (bool, error) {
	return s.rdb.SIsMember(ctx, s.keyBlocked(code, player), from+":"+to).Result()
}

func (s *Store) PushQuestions(ctx context.Context, code, subject string, qs []domain.QuizQuestion) error {
	if len(qs) == 0 {
		return nil
	}
	vals := make([]any, 0, len(qs))
	for _, q := range qs {
		raw, err := json.Marshal(q)
		if err != nil {
			return err
		}
		vals = append(vals, raw)
	}
	key := s.keyQuizzes(code, subject)
	if err := s.rdb.RPush(ctx, key, vals...).Err(); err != nil {
		return err
	}
	return s.rdb.Expire(ctx, key, ttlGame).Err()
}

// PopQuestion takes the next question from the pool, (nil, nil) when empty.
func (s *Store) PopQuestion(ctx context.Context, code, subject string) (*domain.QuizQuestion, error) {
	raw, err := s.rdb.LPop(ctx, s.keyQuizzes(code, subject)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var q domain.QuizQuestion
	if err := json.Unmarshal(raw, &q); err != nil {
		return nil, err
	}
	return &q, nil
}

func (s *Store) QuestionCount(ctx context.Context, code, subject string) (int, error) {
	n, err := s.rdb.LLen(ctx, s.keyQuizzes(code, subject)).Result()
	return int(n), err
}
