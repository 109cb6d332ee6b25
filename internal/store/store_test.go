package store

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/capricechess/caprice/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb)
}

func TestSessionRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	g := &domain.GameSession{
		Code:    "abc123defg",
		WhiteID: "w1",
		FEN:     domain.StartFEN,
		Status:  domain.StatusWaiting,
	}
	if err := s.SaveSession(ctx, g); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}
	got, err := s.LoadSession(ctx, "abc123defg")
	if err != nil {
		t.Fatalf("LoadSession: %v", err)
	}
	if got == nil || got.WhiteID != "w1" || got.Status != domain.StatusWaiting {
		t.Fatalf("round trip mismatch: %+v", got)
	}

	missing, err := s.LoadSession(ctx, "nope")
	if err != nil || missing != nil {
		t.Fatalf("unknown code should be (nil, nil), got %+v, %v", missing, err)
	}
}

func TestMoveListOrderAndRollback(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	const code = "abc123defg"

	for i := 1; i <= 3; i++ {
		mv := &domain.MoveRecord{GameCode: code, Number: i, UCI: "e2e4"}
		if err := s.AppendMove(ctx, mv); err != nil {
			t.Fatalf("AppendMove #%d: %v", i, err)
		}
	}
	n, err := s.MoveCount(ctx, code)
	if err != nil || n != 3 {
		t.Fatalf("MoveCount = %d, %v; want 3", n, err)
	}

	last, err := s.LastMove(ctx, code)
	if err != nil || last == nil || last.Number != 3 {
		t.Fatalf("LastMove = %+v, %v", last, err)
	}

	if err := s.DropLastMove(ctx, code); err != nil {
		t.Fatalf("DropLastMove: %v", err)
	}
	moves, err := s.Moves(ctx, code)
	if err != nil {
		t.Fatalf("Moves: %v", err)
	}
	if len(moves) != 2 || moves[len(moves)-1].Number != 2 {
		t.Fatalf("rollback left %d moves, last = %+v", len(moves), moves[len(moves)-1])
	}
}

func TestBlockedMovesPerPlayer(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	const code = "abc123defg"

	if err := s.BlockMove(ctx, code, "p1", "d1", "d8"); err != nil {
		t.Fatalf("BlockMove: %v", err)
	}
	blocked, err := s.IsBlocked(ctx, code, "p1", "d1", "d8")
	if err != nil || !blocked {
		t.Fatalf("pair should be blocked, got %v, %v", blocked, err)
	}
	other, err := s.IsBlocked(ctx, code, "p2", "d1", "d8")
	if err != nil || other {
		t.Fatalf("block must not leak across players, got %v, %v", other, err)
	}
	reverse, err := s.IsBlocked(ctx, code, "p1", "d8", "d1")
	if err != nil || reverse {
		t.Fatalf("block is directional, got %v, %v", reverse, err)
	}
}

func TestQuestionPool(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	const code = "abc123defg"

	qs := []domain.QuizQuestion{
		{Question: "q1", Options: []string{"a", "b"}, Answer: 1},
		{Question: "q2", Options: []string{"a", "b"}, Answer: 2},
	}
	if err := s.PushQuestions(ctx, code, "History", qs); err != nil {
		t.Fatalf("PushQuestions: %v", err)
	}
	n, err := s.QuestionCount(ctx, code, "history")
	if err != nil || n != 2 {
		t.Fatalf("subject key should be lowercased: count = %d, %v", n, err)
	}

	first, err := s.PopQuestion(ctx, code, "history")
	if err != nil || first == nil || first.Question != "q1" {
		t.Fatalf("PopQuestion = %+v, %v", first, err)
	}
	if _, err := s.PopQuestion(ctx, code, "history"); err != nil {
		t.Fatalf("PopQuestion #2: %v", err)
	}
	empty, err := s.PopQuestion(ctx, code, "history")
	if err != nil || empty != nil {
		t.Fatalf("drained pool should be (nil, nil), got %+v, %v", empty, err)
	}
}
