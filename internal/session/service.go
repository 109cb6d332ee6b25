// Package session is the game state machine: it owns the lifecycle of a
// game (waiting -> active -> finished), validates and applies moves, runs
// the quiz gate on major captures, and settles ratings when a game ends.
package session

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/capricechess/caprice/internal/domain"
	"github.com/capricechess/caprice/internal/gamelock"
	"github.com/capricechess/caprice/internal/obslog"
	"github.com/capricechess/caprice/internal/position"
	"github.com/capricechess/caprice/internal/quiz"
	"github.com/capricechess/caprice/internal/rating"
	"github.com/capricechess/caprice/internal/repo"
	"github.com/capricechess/caprice/internal/store"
	"github.com/capricechess/caprice/pkg/wire"
)

// EnginePlayerID marks the built-in opponent's seat in engine games.
const EnginePlayerID = "engine"

type Broadcaster interface {
	ToGame(code string, frame []byte)
	ToPlayer(playerID string, frame []byte)
}

// MovePicker chooses the built-in opponent's reply.
type MovePicker interface {
	BestMove(ctx context.Context, fen string, tier domain.EngineTier) (string, error)
}

// Analyzer receives finished games for background evaluation.
type Analyzer interface {
	Enqueue(code string)
}

// PoolFiller populates a game's quiz question pool.
type PoolFiller interface {
	Fill(ctx context.Context, code, subject string) error
}

type Deps struct {
	Store     *store.Store
	Repo      repo.Repository
	Locks     *gamelock.Locker
	Broadcast Broadcaster
	Picker    MovePicker // nil disables engine games
	Analyzer  Analyzer   // nil disables analysis
	Filler    PoolFiller // nil leaves pools to the placeholder question
}

type Service struct {
	store  *store.Store
	repo   repo.Repository
	locks  *gamelock.Locker
	gate   *quiz.Gate
	bcast  Broadcaster
	picker MovePicker
	anal   Analyzer
	filler PoolFiller
	logger *zap.Logger
}

func New(d Deps) *Service {
	s := &Service{
		store:  d.Store,
		repo:   d.Repo,
		locks:  d.Locks,
		bcast:  d.Broadcast,
		picker: d.Picker,
		anal:   d.Analyzer,
		filler: d.Filler,
		logger: obslog.L().Named("session"),
	}
	s.gate = quiz.New(d.Store, s.onQuizExpired)
	return s
}

// Gate exposes the quiz gate, mainly for tests.
func (s *Service) Gate() *quiz.Gate { return s.gate }

// CreateGame opens a new game hosted by whiteID. A non-empty tier seats
// the built-in engine as black and starts immediately; otherwise the game
// waits for a black player. Subject tags beyond the cap are dropped; the
// quiz gate draws from the first.
func (s *Service) CreateGame(ctx context.Context, whiteID string, subjects []string, tier domain.EngineTier) (*domain.GameSession, error) {
	code, err := NewGameCode()
	if err != nil {
		return nil, err
	}
	if len(subjects) > domain.MaxQuizSubjects {
		subjects = subjects[:domain.MaxQuizSubjects]
	}
	g := &domain.GameSession{
		Code:           code,
		WhiteID:        whiteID,
		FEN:            domain.StartFEN,
		Status:         domain.StatusWaiting,
		EngineTier:     tier,
		QuizSubjects:   subjects,
		AnalysisStatus: domain.AnalysisPending,
		CreatedAt:      time.Now(),
	}
	if tier != domain.TierNone {
		g.BlackID = EnginePlayerID
		g.Status = domain.StatusActive
	}
	if err := s.store.SaveSession(ctx, g); err != nil {
		return nil, err
	}
	s.fillPool(code, g.PrimarySubject())
	s.logger.Info("game created",
		zap.String("code", code),
		zap.String("white", whiteID),
		zap.String("tier", string(tier)))
	return g, nil
}

// CreateMatchedGame starts an active game between two matched players with
// random colors.
func (s *Service) CreateMatchedGame(ctx context.Context, a, b string, subject string) (*domain.GameSession, error) {
	code, err := NewGameCode()
	if err != nil {
		return nil, err
	}
	white, black := a, b
	if flip, err := coinFlip(); err == nil && flip {
		white, black = b, a
	}
	var subjects []string
	if subject != "" {
		subjects = []string{subject}
	}
	g := &domain.GameSession{
		Code:           code,
		WhiteID:        white,
		BlackID:        black,
		FEN:            domain.StartFEN,
		Status:         domain.StatusActive,
		QuizSubjects:   subjects,
		AnalysisStatus: domain.AnalysisPending,
		CreatedAt:      time.Now(),
	}
	if err := s.store.SaveSession(ctx, g); err != nil {
		return nil, err
	}
	s.fillPool(code, subject)
	s.logger.Info("matched game created",
		zap.String("code", code),
		zap.String("white", white),
		zap.String("black", black))
	return g, nil
}

func (s *Service) fillPool(code, subject string) {
	if s.filler == nil || subject == "" {
		return
	}
	go func() {
		if err := s.filler.Fill(context.Background(), code, subject); err != nil {
			s.logger.Warn("quiz pool fill failed",
				zap.String("code", code),
				zap.String("subject", subject),
				zap.Error(err))
		}
	}()
}

func coinFlip() (bool, error) {
	b := make([]byte, 1)
	if _, err := rand.Read(b); err != nil {
		return false, err
	}
	return b[0]%2 == 1, nil
}

// Load returns the live session for a code.
func (s *Service) Load(ctx context.Context, code string) (*domain.GameSession, error) {
	return s.loadSession(ctx, code)
}

func (s *Service) loadSession(ctx context.Context, code string) (*domain.GameSession, error) {
	g, err := s.store.LoadSession(ctx, code)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, ErrGameNotFound
	}
	return g, nil
}

// Snapshot builds the full game_update payload sent on join.
func (s *Service) Snapshot(ctx context.Context, code string) (*wire.GameUpdatePayload, error) {
	g, err := s.loadSession(ctx, code)
	if err != nil {
		return nil, err
	}
	count, err := s.store.MoveCount(ctx, code)
	if err != nil {
		return nil, err
	}
	return &wire.GameUpdatePayload{
		Code:           g.Code,
		FEN:            g.FEN,
		Status:         string(g.Status),
		WhiteID:        g.WhiteID,
		BlackID:        g.BlackID,
		Turn:           string(g.TurnColor()),
		MoveCount:      count,
		EngineTier:     string(g.EngineTier),
		QuizSubjects:   g.QuizSubjects,
		DrawOfferBy:    g.DrawOfferBy,
		AnalysisStatus: string(g.AnalysisStatus),
	}, nil
}

// ClaimBlackSlot seats playerID as black in a waiting game. The per-game
// lock guarantees exactly one claimant wins an open slot.
func (s *Service) ClaimBlackSlot(ctx context.Context, code, playerID string) error {
	return s.locks.With(ctx, code, func() error {
		g, err := s.loadSession(ctx, code)
		if err != nil {
			return err
		}
		if g.Status != domain.StatusWaiting {
			return ErrSlotTaken
		}
		if g.WhiteID == playerID {
			return ErrAlreadySeated
		}
		if g.BlackID != "" {
			return ErrSlotTaken
		}
		g.BlackID = playerID
		g.Status = domain.StatusActive
		if err := s.store.SaveSession(ctx, g); err != nil {
			return err
		}
		s.bcast.ToGame(code, wire.MustMarshal(wire.TypeBlackPlayerJoined, &wire.PlayerEventPayload{
			PlayerID: playerID,
			Color:    string(domain.Black),
		}))
		s.broadcastUpdate(ctx, g)
		return nil
	})
}

// ApplyMove validates and plays a move. Captures of queen, rook, or bishop
// stop here with a quiz: the position does not advance until the quiz is
// answered correctly.
func (s *Service) ApplyMove(ctx context.Context, code, playerID, from, to, promotion string) error {
	return s.locks.With(ctx, code, func() error {
		g, err := s.loadSession(ctx, code)
		if err != nil {
			return err
		}
		if g.Status != domain.StatusActive {
			return ErrGameNotActive
		}
		color, ok := g.PlayerColor(playerID)
		if !ok {
			return ErrNotAPlayer
		}
		if pending := s.gate.Pending(code); pending != nil {
			if pending.PlayerID == playerID {
				return ErrQuizPending
			}
			return ErrNotYourTurn
		}
		if g.TurnColor() != color {
			return ErrNotYourTurn
		}
		blocked, err := s.store.IsBlocked(ctx, code, playerID, from, to)
		if err != nil {
			return err
		}
		if blocked {
			return ErrMoveBlocked
		}

		facts, err := position.Apply(g.FEN, from, to, promotion)
		if err != nil {
			return err
		}
		count, err := s.store.MoveCount(ctx, code)
		if err != nil {
			return err
		}
		rec := &domain.MoveRecord{
			GameCode:     code,
			Number:       count + 1,
			PlayerID:     playerID,
			From:         from,
			To:           to,
			Piece:        facts.Piece,
			Captured:     facts.Captured,
			UCI:          facts.UCI,
			FENBefore:    g.FEN,
			FENAfter:     facts.FENAfter,
			QuizRequired: quiz.RequiresQuiz(facts.Captured),
			CreatedAt:    time.Now(),
		}
		if err := s.store.AppendMove(ctx, rec); err != nil {
			return err
		}

		if rec.QuizRequired {
			subject := g.PrimarySubject()
			pq, err := s.gate.Issue(ctx, code, subject, playerID, rec.Number)
			if err != nil {
				_ = s.store.DropLastMove(ctx, code)
				return err
			}
			s.bcast.ToPlayer(playerID, wire.MustMarshal(wire.TypeQuizRequired, &wire.QuizRequiredPayload{
				QuizID:     pq.ID,
				Question:   pq.Question,
				Options:    pq.Options,
				MoveNumber: pq.MoveNumber,
				Subject:    subject,
				DeadlineMS: quiz.AnswerTimeout.Milliseconds(),
			}))
			return nil
		}
		return s.commitMove(ctx, g, rec)
	})
}

// commitMove advances the position and runs post-move checks. Caller holds
// the game lock.
func (s *Service) commitMove(ctx context.Context, g *domain.GameSession, rec *domain.MoveRecord) error {
	g.FEN = rec.FENAfter
	g.DrawOfferBy = ""
	if err := s.store.SaveSession(ctx, g); err != nil {
		return err
	}

	score, err := position.Score(rec.FENAfter)
	if err != nil {
		score = 0
	}
	s.bcast.ToGame(g.Code, wire.MustMarshal(wire.TypeMoveMade, &wire.MoveMadePayload{
		FromSquare:    rec.From,
		ToSquare:      rec.To,
		Piece:         rec.Piece,
		MoveNumber:    rec.Number,
		FENAfter:      rec.FENAfter,
		CapturedPiece: rec.Captured,
		UUID:          rec.PlayerID,
		Score:         score,
	}))

	term, err := position.Status(g.FEN)
	if err != nil {
		return err
	}
	if term.Finished {
		return s.finishLocked(ctx, g, term.Winner, string(term.Method))
	}
	if g.IsEngineGame() && g.TurnColor() == domain.Black {
		go s.engineReply(g.Code)
	}
	return nil
}

// engineReply plays the built-in opponent's answer on its own goroutine.
func (s *Service) engineReply(code string) {
	if s.picker == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := s.locks.With(ctx, code, func() error {
		g, err := s.loadSession(ctx, code)
		if err != nil {
			return err
		}
		if g.Status != domain.StatusActive || !g.IsEngineGame() || g.TurnColor() != domain.Black {
			return nil
		}
		best, err := s.picker.BestMove(ctx, g.FEN, g.EngineTier)
		if err != nil {
			return fmt.Errorf("engine move: %w", err)
		}
		if len(best) < 4 {
			return fmt.Errorf("engine move %q malformed", best)
		}
		from, to, promo := best[:2], best[2:4], best[4:]

		facts, err := position.Apply(g.FEN, from, to, promo)
		if err != nil {
			return fmt.Errorf("engine move %q rejected: %w", best, err)
		}
		count, err := s.store.MoveCount(ctx, code)
		if err != nil {
			return err
		}
		rec := &domain.MoveRecord{
			GameCode:  code,
			Number:    count + 1,
			PlayerID:  EnginePlayerID,
			From:      from,
			To:        to,
			Piece:     facts.Piece,
			Captured:  facts.Captured,
			UCI:       facts.UCI,
			FENBefore: g.FEN,
			FENAfter:  facts.FENAfter,
			CreatedAt: time.Now(),
		}
		if err := s.store.AppendMove(ctx, rec); err != nil {
			return err
		}
		return s.commitMove(ctx, g, rec)
	})
	if err != nil {
		s.logger.Error("engine reply failed", zap.String("code", code), zap.Error(err))
	}
}

// AnswerQuiz resolves the pending quiz. A correct answer commits the gated
// move; a wrong or late one rolls it back and blocks the pair for ten
// minutes. The gate is resolved under the game lock so no move can slip in
// between grading and commit.
func (s *Service) AnswerQuiz(ctx context.Context, code, playerID, quizID string, answer int) error {
	return s.locks.With(ctx, code, func() error {
		correct, pq, err := s.gate.Answer(code, quizID, playerID, answer)
		if err != nil {
			return err
		}
		s.recordQuizStat(ctx, playerID, correct)

		if !correct {
			reason := "incorrect"
			if time.Since(pq.IssuedAt) > quiz.AnswerTimeout {
				reason = "timeout"
			}
			return s.failQuizLocked(ctx, *pq, reason)
		}
		g, err := s.loadSession(ctx, code)
		if err != nil {
			return err
		}
		if g.Status != domain.StatusActive {
			return ErrGameNotActive
		}
		rec, err := s.store.LastMove(ctx, code)
		if err != nil {
			return err
		}
		if rec == nil || rec.Number != pq.MoveNumber || rec.PlayerID != pq.PlayerID {
			return nil
		}
		return s.commitMove(ctx, g, rec)
	})
}

func (s *Service) onQuizExpired(pq domain.PendingQuiz) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := s.locks.With(ctx, pq.GameCode, func() error {
		// An answer may have claimed the quiz while we waited for the lock.
		if !s.gate.Take(pq.GameCode, pq.ID) {
			return nil
		}
		s.recordQuizStat(ctx, pq.PlayerID, false)
		return s.failQuizLocked(ctx, pq, "timeout")
	})
	if err != nil {
		s.logger.Error("quiz expiry rollback failed",
			zap.String("code", pq.GameCode), zap.Error(err))
	}
}

// failQuizLocked deletes the gated move, blocks the pair, and tells the
// room. The session FEN never advanced, so no position revert is needed.
// Caller holds the game lock.
func (s *Service) failQuizLocked(ctx context.Context, pq domain.PendingQuiz, reason string) error {
	g, err := s.loadSession(ctx, pq.GameCode)
	if err != nil {
		return err
	}
	rec, err := s.store.LastMove(ctx, pq.GameCode)
	if err != nil {
		return err
	}
	payload := &wire.QuizFailedPayload{
		QuizID:     pq.ID,
		PlayerID:   pq.PlayerID,
		FEN:        g.FEN,
		Reason:     reason,
		BlockedSec: quiz.BlockSeconds,
	}
	if rec != nil && rec.Number == pq.MoveNumber && rec.PlayerID == pq.PlayerID {
		if err := s.store.DropLastMove(ctx, pq.GameCode); err != nil {
			return err
		}
		if err := s.store.BlockMove(ctx, pq.GameCode, pq.PlayerID, rec.From, rec.To); err != nil {
			return err
		}
		payload.From = rec.From
		payload.To = rec.To
	}
	s.bcast.ToGame(pq.GameCode, wire.MustMarshal(wire.TypeQuizFailed, payload))
	return nil
}

func (s *Service) recordQuizStat(ctx context.Context, playerID string, correct bool) {
	state, err := repo.RatingOrDefault(ctx, s.repo, playerID, rating.DefaultElo)
	if err != nil {
		s.logger.Warn("quiz stat load failed", zap.String("player", playerID), zap.Error(err))
		return
	}
	state.QuizAnswered++
	if correct {
		state.QuizCorrect++
	}
	if err := s.repo.UpsertRating(ctx, state); err != nil {
		s.logger.Warn("quiz stat save failed", zap.String("player", playerID), zap.Error(err))
	}
}

// Resign ends the game in the opponent's favor.
func (s *Service) Resign(ctx context.Context, code, playerID string) error {
	return s.locks.With(ctx, code, func() error {
		g, err := s.loadSession(ctx, code)
		if err != nil {
			return err
		}
		if g.Status != domain.StatusActive {
			return ErrGameNotActive
		}
		color, ok := g.PlayerColor(playerID)
		if !ok {
			return ErrNotAPlayer
		}
		return s.finishLocked(ctx, g, color.Opponent(), "resignation")
	})
}

// OfferDraw records a standing draw offer; the room learns via game_update.
func (s *Service) OfferDraw(ctx context.Context, code, playerID string) error {
	return s.locks.With(ctx, code, func() error {
		g, err := s.loadSession(ctx, code)
		if err != nil {
			return err
		}
		if g.Status != domain.StatusActive {
			return ErrGameNotActive
		}
		if _, ok := g.PlayerColor(playerID); !ok {
			return ErrNotAPlayer
		}
		g.DrawOfferBy = playerID
		if err := s.store.SaveSession(ctx, g); err != nil {
			return err
		}
		s.broadcastUpdate(ctx, g)
		return nil
	})
}

// AcceptDraw ends the game as a draw if the opponent's offer stands.
func (s *Service) AcceptDraw(ctx context.Context, code, playerID string) error {
	return s.locks.With(ctx, code, func() error {
		g, err := s.loadSession(ctx, code)
		if err != nil {
			return err
		}
		if g.Status != domain.StatusActive {
			return ErrGameNotActive
		}
		if _, ok := g.PlayerColor(playerID); !ok {
			return ErrNotAPlayer
		}
		if g.DrawOfferBy == "" {
			return ErrNoDrawOffer
		}
		if g.DrawOfferBy == playerID {
			return ErrSelfAccept
		}
		return s.finishLocked(ctx, g, "", "agreement")
	})
}

// Abort cancels a waiting game before black joins.
func (s *Service) Abort(ctx context.Context, code, playerID string) error {
	return s.locks.With(ctx, code, func() error {
		g, err := s.loadSession(ctx, code)
		if err != nil {
			return err
		}
		if g.Status != domain.StatusWaiting || g.WhiteID != playerID {
			return ErrGameNotActive
		}
		g.Status = domain.StatusAborted
		if err := s.store.SaveSession(ctx, g); err != nil {
			return err
		}
		s.broadcastUpdate(ctx, g)
		return nil
	})
}

// finishLocked closes out a game: persists the result and archive, settles
// ratings, announces game_over, and queues analysis. Caller holds the lock.
func (s *Service) finishLocked(ctx context.Context, g *domain.GameSession, winner domain.Color, method string) error {
	g.Status = domain.StatusFinished
	g.Result = resultString(winner, method)
	g.DrawOfferBy = ""
	s.gate.Cancel(g.Code)

	deltas := s.settle(ctx, g, winner)

	if err := s.store.SaveSession(ctx, g); err != nil {
		return err
	}
	moves, err := s.store.Moves(ctx, g.Code)
	if err != nil {
		return err
	}
	if err := s.repo.SaveGame(ctx, g, moves); err != nil {
		s.logger.Error("game archive failed", zap.String("code", g.Code), zap.Error(err))
	}

	winnerID := ""
	switch winner {
	case domain.White:
		winnerID = g.WhiteID
	case domain.Black:
		winnerID = g.BlackID
	}
	s.bcast.ToGame(g.Code, wire.MustMarshal(wire.TypeGameOver, &wire.GameOverPayload{
		Result:    g.Result,
		Winner:    winnerID,
		EloDeltas: deltas,
	}))
	s.logger.Info("game finished",
		zap.String("code", g.Code),
		zap.String("result", g.Result))

	if s.anal != nil {
		s.anal.Enqueue(g.Code)
	}
	return nil
}

// resultString renders the terminal result. Wins name the color and the
// method; every draw flavor collapses to "draw".
func resultString(winner domain.Color, method string) string {
	if winner == "" {
		return "draw"
	}
	return fmt.Sprintf("%s_win_by_%s", winner, method)
}

// settle applies rating updates and returns the per-player Elo deltas.
// Easy-tier engine games are exhibition: the delta is reported but never
// persisted.
func (s *Service) settle(ctx context.Context, g *domain.GameSession, winner domain.Color) map[string]int {
	scoreFor := func(c domain.Color) float64 {
		if winner == "" {
			return rating.ScoreDraw
		}
		if winner == c {
			return rating.ScoreWin
		}
		return rating.ScoreLoss
	}

	if g.IsEngineGame() {
		human := g.WhiteID
		state, err := repo.RatingOrDefault(ctx, s.repo, human, rating.DefaultElo)
		if err != nil {
			s.logger.Error("rating load failed", zap.String("player", human), zap.Error(err))
			return nil
		}
		score := scoreFor(domain.White)
		newElo := rating.Update(state.Elo, rating.TierElo[g.EngineTier], state.Played(), score)
		delta := newElo - state.Elo
		if !rating.PersistsRating(g.EngineTier) {
			// Exhibition tier: the swing is announced but never written back.
			return map[string]int{human: delta}
		}
		state.Elo = newElo
		bumpRecord(state, score)
		if err := s.repo.UpsertRating(ctx, state); err != nil {
			s.logger.Error("rating save failed", zap.String("player", human), zap.Error(err))
			return nil
		}
		return map[string]int{human: delta}
	}

	white, err := repo.RatingOrDefault(ctx, s.repo, g.WhiteID, rating.DefaultElo)
	if err != nil {
		s.logger.Error("rating load failed", zap.String("player", g.WhiteID), zap.Error(err))
		return nil
	}
	black, err := repo.RatingOrDefault(ctx, s.repo, g.BlackID, rating.DefaultElo)
	if err != nil {
		s.logger.Error("rating load failed", zap.String("player", g.BlackID), zap.Error(err))
		return nil
	}

	whiteScore := scoreFor(domain.White)
	blackScore := scoreFor(domain.Black)
	newWhite := rating.Update(white.Elo, black.Elo, white.Played(), whiteScore)
	newBlack := rating.Update(black.Elo, white.Elo, black.Played(), blackScore)

	deltas := map[string]int{
		g.WhiteID: newWhite - white.Elo,
		g.BlackID: newBlack - black.Elo,
	}
	white.Elo, black.Elo = newWhite, newBlack
	bumpRecord(white, whiteScore)
	bumpRecord(black, blackScore)
	for _, state := range []*domain.RatingState{white, black} {
		if err := s.repo.UpsertRating(ctx, state); err != nil {
			s.logger.Error("rating save failed", zap.String("player", state.PlayerID), zap.Error(err))
		}
	}
	return deltas
}

func bumpRecord(state *domain.RatingState, score float64) {
	switch score {
	case rating.ScoreWin:
		state.Wins++
	case rating.ScoreLoss:
		state.Losses++
	default:
		state.Draws++
	}
}

func (s *Service) broadcastUpdate(ctx context.Context, g *domain.GameSession) {
	snap, err := s.Snapshot(ctx, g.Code)
	if err != nil {
		s.logger.Warn("snapshot failed", zap.String("code", g.Code), zap.Error(err))
		return
	}
	s.bcast.ToGame(g.Code, wire.MustMarshal(wire.TypeGameUpdate, snap))
}
