package quiz

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/capricechess/caprice/internal/domain"
	"github.com/capricechess/caprice/internal/store"
)

func newTestGate(t *testing.T, onExpire func(domain.PendingQuiz)) (*Gate, *store.Store) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	st := store.New(rdb)
	if onExpire == nil {
		onExpire = func(domain.PendingQuiz) {}
	}
	return New(st, onExpire), st
}

func TestRequiresQuiz(t *testing.T) {
	for piece, want := range map[string]bool{
		"queen": true, "rook": true, "bishop": true,
		"pawn": false, "knight": false, "king": false, "": false,
	} {
		if got := RequiresQuiz(piece); got != want {
			t.Errorf("RequiresQuiz(%q) = %v, want %v", piece, got, want)
		}
	}
}

func TestIssueDrawsFromPool(t *testing.T) {
	g, st := newTestGate(t, nil)
	ctx := context.Background()
	const code = "abc123defg"

	err := st.PushQuestions(ctx, code, "history", []domain.QuizQuestion{
		{Question: "pooled", Options: []string{"a", "b"}, Answer: 2},
	})
	if err != nil {
		t.Fatalf("PushQuestions: %v", err)
	}

	quiz, err := g.Issue(ctx, code, "history", "p1", 5)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if quiz.Question != "pooled" || quiz.Answer != 2 || quiz.MoveNumber != 5 {
		t.Fatalf("unexpected quiz: %+v", quiz)
	}
	if g.Pending(code) == nil {
		t.Fatal("quiz should be pending")
	}
	g.Cancel(code)
}

func TestIssueFallsBackToPlaceholder(t *testing.T) {
	g, _ := newTestGate(t, nil)
	quiz, err := g.Issue(context.Background(), "abc123defg", "history", "p1", 1)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if quiz.Question == "" || len(quiz.Options) == 0 || quiz.Answer != 1 {
		t.Fatalf("placeholder quiz malformed: %+v", quiz)
	}
	g.Cancel("abc123defg")
}

func TestSecondIssueRejected(t *testing.T) {
	g, _ := newTestGate(t, nil)
	ctx := context.Background()
	if _, err := g.Issue(ctx, "abc123defg", "history", "p1", 1); err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := g.Issue(ctx, "abc123defg", "history", "p1", 2); !errors.Is(err, ErrQuizPending) {
		t.Fatalf("want ErrQuizPending, got %v", err)
	}
	g.Cancel("abc123defg")
}

func TestAnswerResolvesOnce(t *testing.T) {
	g, _ := newTestGate(t, nil)
	ctx := context.Background()
	const code = "abc123defg"

	quiz, err := g.Issue(ctx, code, "history", "p1", 1)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	correct, resolved, err := g.Answer(code, quiz.ID, "p1", quiz.Answer)
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if !correct || resolved.ID != quiz.ID {
		t.Fatalf("want correct resolution, got correct=%v quiz=%+v", correct, resolved)
	}
	if g.Pending(code) != nil {
		t.Fatal("quiz should no longer be pending")
	}

	// Duplicate submit is a no-op error, not a second resolution.
	if _, _, err := g.Answer(code, quiz.ID, "p1", quiz.Answer); !errors.Is(err, ErrNoPendingQuiz) {
		t.Fatalf("want ErrNoPendingQuiz on duplicate, got %v", err)
	}
}

func TestAnswerValidation(t *testing.T) {
	g, _ := newTestGate(t, nil)
	ctx := context.Background()
	const code = "abc123defg"

	quiz, err := g.Issue(ctx, code, "history", "p1", 1)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, _, err := g.Answer(code, "wrong-id", "p1", 1); !errors.Is(err, ErrQuizMismatch) {
		t.Fatalf("want ErrQuizMismatch, got %v", err)
	}
	if _, _, err := g.Answer(code, quiz.ID, "p2", 1); !errors.Is(err, ErrNotYourQuiz) {
		t.Fatalf("want ErrNotYourQuiz, got %v", err)
	}
	correct, _, err := g.Answer(code, quiz.ID, "p1", quiz.Answer+1)
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if correct {
		t.Fatal("wrong option must not be correct")
	}
}

func TestConcurrentAnswersResolveExactlyOnce(t *testing.T) {
	g, _ := newTestGate(t, nil)
	ctx := context.Background()
	const code = "abc123defg"

	quiz, err := g.Issue(ctx, code, "history", "p1", 1)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := g.Answer(code, quiz.ID, "p1", quiz.Answer); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("exactly one answer should win, got %d", wins)
	}
}

func TestLateAnswerGradedWrong(t *testing.T) {
	g, _ := newTestGate(t, nil)
	ctx := context.Background()
	const code = "abc123defg"

	quiz, err := g.Issue(ctx, code, "history", "p1", 1)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	g.mu.Lock()
	g.pending[code].quiz.IssuedAt = time.Now().Add(-AnswerTimeout - time.Second)
	g.mu.Unlock()

	correct, resolved, err := g.Answer(code, quiz.ID, "p1", quiz.Answer)
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if correct {
		t.Fatal("an answer past the deadline must grade as wrong")
	}
	if resolved == nil || g.Pending(code) != nil {
		t.Fatal("late answer should still resolve the quiz")
	}
}

func TestTakeWinsResolutionRaceOnce(t *testing.T) {
	g, _ := newTestGate(t, nil)
	ctx := context.Background()
	const code = "abc123defg"

	quiz, err := g.Issue(ctx, code, "history", "p1", 1)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if !g.Take(code, quiz.ID) {
		t.Fatal("first Take should win")
	}
	if g.Take(code, quiz.ID) {
		t.Fatal("second Take must lose")
	}
	if _, _, err := g.Answer(code, quiz.ID, "p1", quiz.Answer); !errors.Is(err, ErrNoPendingQuiz) {
		t.Fatalf("Answer after Take: want ErrNoPendingQuiz, got %v", err)
	}

	quiz, err = g.Issue(ctx, code, "history", "p1", 2)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, _, err := g.Answer(code, quiz.ID, "p1", quiz.Answer); err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if g.Take(code, quiz.ID) {
		t.Fatal("Take after Answer must lose")
	}
}

func TestCancelSuppressesExpiry(t *testing.T) {
	expired := make(chan domain.PendingQuiz, 1)
	g, _ := newTestGate(t, func(q domain.PendingQuiz) { expired <- q })
	ctx := context.Background()
	const code = "abc123defg"

	if _, err := g.Issue(ctx, code, "history", "p1", 1); err != nil {
		t.Fatalf("Issue: %v", err)
	}
	g.Cancel(code)
	if g.Pending(code) != nil {
		t.Fatal("cancel should clear the pending quiz")
	}
	select {
	case q := <-expired:
		t.Fatalf("expiry fired after cancel: %+v", q)
	default:
	}
}
