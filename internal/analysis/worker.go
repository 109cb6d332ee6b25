// Package analysis replays finished games through the engine and stores a
// per-move evaluation alongside the game archive.
package analysis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/capricechess/caprice/internal/domain"
	"github.com/capricechess/caprice/internal/engine"
	"github.com/capricechess/caprice/internal/obslog"
	"github.com/capricechess/caprice/internal/repo"
)

const (
	queueSize  = 64
	jobTimeout = 5 * time.Minute
)

// Evaluator scores a single position. *engine.Engine satisfies it.
type Evaluator interface {
	Evaluate(ctx context.Context, fen string, depth int) (engine.Score, error)
}

type Worker struct {
	repo   repo.Repository
	eval   Evaluator
	depth  int
	jobs   chan string
	wg     sync.WaitGroup
	once   sync.Once
	logger *zap.Logger
}

// New starts the given number of background workers. A nil evaluator is
// allowed; jobs are then marked failed immediately.
func New(rp repo.Repository, eval Evaluator, depth, workers int) *Worker {
	if workers < 1 {
		workers = 1
	}
	w := &Worker{
		repo:   rp,
		eval:   eval,
		depth:  depth,
		jobs:   make(chan string, queueSize),
		logger: obslog.L().Named("analysis"),
	}
	for i := 0; i < workers; i++ {
		w.wg.Add(1)
		go w.run()
	}
	return w
}

// Enqueue schedules a finished game for analysis. It never blocks; when the
// queue is full the job is dropped and the game stays pending.
func (w *Worker) Enqueue(code string) {
	select {
	case w.jobs <- code:
	default:
		w.logger.Warn("analysis queue full, dropping job", zap.String("code", code))
	}
}

// Close stops accepting jobs and waits for in-flight ones to finish.
func (w *Worker) Close() {
	w.once.Do(func() { close(w.jobs) })
	w.wg.Wait()
}

func (w *Worker) run() {
	defer w.wg.Done()
	for code := range w.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		if err := w.Process(ctx, code); err != nil {
			w.logger.Error("analysis failed", zap.String("code", code), zap.Error(err))
			if err := w.repo.SetAnalysisStatus(ctx, code, domain.AnalysisFailed); err != nil {
				w.logger.Error("mark analysis failed", zap.String("code", code), zap.Error(err))
			}
		}
		cancel()
	}
}

// Process analyzes a single archived game synchronously.
func (w *Worker) Process(ctx context.Context, code string) error {
	if w.eval == nil {
		return fmt.Errorf("no evaluator configured")
	}
	if err := w.repo.SetAnalysisStatus(ctx, code, domain.AnalysisInProgress); err != nil {
		return err
	}
	moves, err := w.repo.GetMoves(ctx, code)
	if err != nil {
		return err
	}
	if len(moves) == 0 {
		return w.repo.SaveAnalysis(ctx, code, []domain.MoveScore{})
	}

	scores := make([]domain.MoveScore, 0, len(moves))
	for _, mv := range moves {
		sc, err := w.eval.Evaluate(ctx, mv.FENAfter, w.depth)
		if err != nil {
			return fmt.Errorf("evaluate move %d: %w", mv.Number, err)
		}
		// The engine scores for the side to move; flip odd plies so every
		// entry reads from white's perspective.
		cp, mate := sc.CP, sc.Mate
		if mv.Number%2 == 1 {
			cp, mate = -cp, -mate
		}
		scores = append(scores, domain.MoveScore{
			MoveNumber: mv.Number,
			CP:         cp,
			Mate:       mate,
			BestMove:   sc.BestMove,
		})
	}
	return w.repo.SaveAnalysis(ctx, code, scores)
}
