// Package quiz gates major captures behind a timed multiple-choice
// question. One quiz can be pending per game; the answer races a 30s
// timer and exactly one side wins.
package quiz

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/capricechess/caprice/internal/domain"
	"github.com/capricechess/caprice/internal/store"
)

const (
	AnswerTimeout = 30 * time.Second
	BlockSeconds  = 600
)

var (
	ErrNoPendingQuiz = errors.New("no pending quiz")
	ErrQuizMismatch  = errors.New("quiz id mismatch")
	ErrNotYourQuiz   = errors.New("quiz belongs to another player")
	ErrQuizPending   = errors.New("a quiz is already pending")
)

// placeholder is served when the generated pool is empty.
var placeholder = domain.QuizQuestion{
	Question: "Which option is listed first?",
	Options:  []string{"This one", "The second one", "The third one", "The fourth one"},
	Answer:   1,
}

// RequiresQuiz reports whether capturing the given piece is gated. Only
// queen, rook, and bishop captures are.
func RequiresQuiz(captured string) bool {
	switch captured {
	case "queen", "rook", "bishop":
		return true
	}
	return false
}

type pendingEntry struct {
	quiz domain.PendingQuiz
	done chan struct{}
}

type Gate struct {
	store    *store.Store
	onExpire func(domain.PendingQuiz)

	mu      sync.Mutex
	pending map[string]*pendingEntry
}

// New builds a gate. onExpire fires on the timer goroutine when the clock
// runs out; the callback must win the quiz with Take before acting, since
// an answer may land first.
func New(st *store.Store, onExpire func(domain.PendingQuiz)) *Gate {
	return &Gate{
		store:    st,
		onExpire: onExpire,
		pending:  make(map[string]*pendingEntry),
	}
}

// Issue draws the next question for the game's subject and starts the
// answer clock. A second quiz on the same game is rejected.
func (g *Gate) Issue(ctx context.Context, code, subject, playerID string, moveNumber int) (*domain.PendingQuiz, error) {
	q, err := g.store.PopQuestion(ctx, code, subject)
	if err != nil {
		return nil, err
	}
	if q == nil {
		q = &placeholder
	}

	quiz := domain.PendingQuiz{
		ID:         uuid.NewString(),
		GameCode:   code,
		PlayerID:   playerID,
		MoveNumber: moveNumber,
		Question:   q.Question,
		Options:    q.Options,
		Answer:     q.Answer,
		IssuedAt:   time.Now(),
	}
	entry := &pendingEntry{quiz: quiz, done: make(chan struct{})}

	g.mu.Lock()
	if _, exists := g.pending[code]; exists {
		g.mu.Unlock()
		return nil, ErrQuizPending
	}
	g.pending[code] = entry
	g.mu.Unlock()

	go g.watch(entry)
	return &quiz, nil
}

func (g *Gate) watch(entry *pendingEntry) {
	timer := time.NewTimer(AnswerTimeout)
	defer timer.Stop()
	select {
	case <-timer.C:
		g.onExpire(entry.quiz)
	case <-entry.done:
	}
}

// Take removes the quiz if it is still the pending one, for the expiry
// path. Reports whether this caller won the race against Answer.
func (g *Gate) Take(code, quizID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	cur, ok := g.pending[code]
	if !ok || cur.quiz.ID != quizID {
		return false
	}
	delete(g.pending, code)
	close(cur.done)
	return true
}

// Answer resolves the pending quiz. An answer past the deadline is graded
// wrong regardless of the choice. Answering an already-resolved quiz
// returns ErrNoPendingQuiz, so duplicate submissions are harmless.
func (g *Gate) Answer(code, quizID, playerID string, answer int) (bool, *domain.PendingQuiz, error) {
	g.mu.Lock()
	entry, ok := g.pending[code]
	if !ok {
		g.mu.Unlock()
		return false, nil, ErrNoPendingQuiz
	}
	if entry.quiz.ID != quizID {
		g.mu.Unlock()
		return false, nil, ErrQuizMismatch
	}
	if entry.quiz.PlayerID != playerID {
		g.mu.Unlock()
		return false, nil, ErrNotYourQuiz
	}
	delete(g.pending, code)
	close(entry.done)
	g.mu.Unlock()

	quiz := entry.quiz
	if time.Since(quiz.IssuedAt) > AnswerTimeout {
		return false, &quiz, nil
	}
	return answer == quiz.Answer, &quiz, nil
}

// Pending returns a snapshot of the game's open quiz, or nil.
func (g *Gate) Pending(code string) *domain.PendingQuiz {
	g.mu.Lock()
	defer g.mu.Unlock()
	if entry, ok := g.pending[code]; ok {
		quiz := entry.quiz
		return &quiz
	}
	return nil
}

// Cancel drops an open quiz without firing the expiry path, for games that
// end while a quiz is on the table.
func (g *Gate) Cancel(code string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if entry, ok := g.pending[code]; ok {
		delete(g.pending, code)
		close(entry.done)
	}
}
