package domain

import (
	"strings"
	"time"
)

// StartFEN is the standard initial position.
const StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

type GameStatus string

const (
	StatusWaiting  GameStatus = "waiting"
	StatusActive   GameStatus = "active"
	StatusFinished GameStatus = "finished"
	StatusAborted  GameStatus = "aborted"
)

type Color string

const (
	White Color = "white"
	Black Color = "black"
)

func (c Color) Opponent() Color {
	if c == White {
		return Black
	}
	return White
}

// EngineTier identifies the built-in engine opponent difficulty. Empty
// means a human opponent.
type EngineTier string

const (
	TierNone   EngineTier = ""
	TierEasy   EngineTier = "easy"
	TierNormal EngineTier = "normal"
	TierHard   EngineTier = "hard"
)

type AnalysisStatus string

const (
	AnalysisPending    AnalysisStatus = "pending"
	AnalysisInProgress AnalysisStatus = "in_progress"
	AnalysisCompleted  AnalysisStatus = "completed"
	AnalysisFailed     AnalysisStatus = "failed"
)

type GameSession struct {
	Code           string
	WhiteID        string
	BlackID        string
	FEN            string
	Status         GameStatus
	Result         string
	EngineTier     EngineTier
	QuizSubjects   []string // subject tags, at most MaxQuizSubjects
	DrawOfferBy    string
	AnalysisStatus AnalysisStatus
	CreatedAt      time.Time
}

// TurnColor derives the side to move from the session FEN.
func (g *GameSession) TurnColor() Color {
	fields := strings.Fields(g.FEN)
	if len(fields) > 1 && fields[1] == "b" {
		return Black
	}
	return White
}

func (g *GameSession) PlayerColor(playerID string) (Color, bool) {
	switch playerID {
	case "":
		return "", false
	case g.WhiteID:
		return White, true
	case g.BlackID:
		return Black, true
	}
	return "", false
}

func (g *GameSession) IsEngineGame() bool { return g.EngineTier != TierNone }

// MaxQuizSubjects caps the subject tags a game may carry.
const MaxQuizSubjects = 3

// PrimarySubject is the tag the quiz gate draws questions from.
func (g *GameSession) PrimarySubject() string {
	if len(g.QuizSubjects) == 0 {
		return ""
	}
	return g.QuizSubjects[0]
}

type MoveRecord struct {
	GameCode     string
	Number       int
	PlayerID     string
	From         string
	To           string
	Piece        string
	Captured     string
	UCI          string
	FENBefore    string
	FENAfter     string
	QuizRequired bool
	CreatedAt    time.Time
}

// QuizQuestion is one pooled multiple-choice question. Answer is the
// 1-based index into Options.
type QuizQuestion struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
	Answer   int      `json:"answer"`
}

type PendingQuiz struct {
	ID         string
	GameCode   string
	PlayerID   string
	MoveNumber int
	Question   string
	Options    []string
	Answer     int
	IssuedAt   time.Time
}

type RatingState struct {
	PlayerID     string
	Elo          int
	Wins         int
	Losses       int
	Draws        int
	QuizAnswered int
	QuizCorrect  int
	UpdatedAt    time.Time
}

func (r *RatingState) Played() int { return r.Wins + r.Losses + r.Draws }

// WinRatio is wins over games played, 0.5 for an unplayed account.
func (r *RatingState) WinRatio() float64 {
	played := r.Played()
	if played == 0 {
		return 0.5
	}
	return float64(r.Wins) / float64(played)
}

type SearchEntry struct {
	SearchID   string    `json:"search_id"`
	PlayerID   string    `json:"player_id"`
	Elo        int       `json:"elo"`
	WinRatio   float64   `json:"win_ratio"`
	Subject    string    `json:"subject,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

type MoveScore struct {
	MoveNumber int    `json:"move_number"`
	CP         int    `json:"cp"`
	Mate       int    `json:"mate,omitempty"`
	BestMove   string `json:"best_move,omitempty"`
}
