// Package position wraps the chess rules library behind the small surface
// the session layer needs: apply a UCI move to a FEN, classify terminal
// positions, and score material.
package position

import (
	"errors"
	"strings"

	nchess "github.com/corentings/chess/v2"

	"github.com/capricechess/caprice/internal/domain"
)

var (
	ErrBadFEN      = errors.New("invalid fen")
	ErrBadSquare   = errors.New("invalid square")
	ErrIllegalMove = errors.New("illegal move")
)

// MoveFacts describes a legal move applied to a position.
type MoveFacts struct {
	Piece    string
	Captured string
	UCI      string
	FENAfter string
}

// TerminalMethod classifies why a game ended.
type TerminalMethod string

const (
	MethodNone                 TerminalMethod = ""
	MethodCheckmate            TerminalMethod = "checkmate"
	MethodStalemate            TerminalMethod = "stalemate"
	MethodInsufficientMaterial TerminalMethod = "insufficient_material"
	MethodFiftyMoveRule        TerminalMethod = "fifty_move_rule"
	MethodThreefoldRepetition  TerminalMethod = "threefold_repetition"
)

// Terminal is the outcome of a position check. Winner is empty for draws.
type Terminal struct {
	Finished bool
	Winner   domain.Color
	Method   TerminalMethod
}

var pieceValues = map[nchess.PieceType]int{
	nchess.Pawn:   1,
	nchess.Knight: 3,
	nchess.Bishop: 3,
	nchess.Rook:   5,
	nchess.Queen:  9,
}

// Apply validates and plays from->to (UCI squares) on the given FEN. The
// promotion letter is honored only when a pawn reaches the last rank;
// otherwise it is ignored. Captured reports the piece removed from the
// destination square, or the pawn for en passant.
func Apply(fen, from, to, promotion string) (*MoveFacts, error) {
	game, err := gameFromFEN(fen)
	if err != nil {
		return nil, err
	}
	board := game.Position().Board()

	fromSq, ok := parseSquare(from)
	if !ok {
		return nil, ErrBadSquare
	}
	toSq, ok := parseSquare(to)
	if !ok {
		return nil, ErrBadSquare
	}

	moving := board.Piece(fromSq)
	if moving == nchess.NoPiece {
		return nil, ErrIllegalMove
	}

	uci := strings.ToLower(from + to)
	if moving.Type() == nchess.Pawn && lastRank(moving.Color(), toSq) && promotion != "" {
		uci += strings.ToLower(promotion[:1])
	}

	captured := ""
	if target := board.Piece(toSq); target != nchess.NoPiece {
		captured = pieceName(target.Type())
	} else if moving.Type() == nchess.Pawn && fromSq.File() != toSq.File() {
		// en passant
		captured = pieceName(nchess.Pawn)
	}

	if err := game.PushNotationMove(uci, nchess.UCINotation{}, nil); err != nil {
		return nil, ErrIllegalMove
	}

	return &MoveFacts{
		Piece:    pieceName(moving.Type()),
		Captured: captured,
		UCI:      uci,
		FENAfter: game.FEN(),
	}, nil
}

// Status classifies the position. Checkmate, stalemate, and insufficient
// material come from the rules engine directly; fifty-move and threefold
// claims are applied automatically when eligible, in that order.
func Status(fen string) (Terminal, error) {
	game, err := gameFromFEN(fen)
	if err != nil {
		return Terminal{}, err
	}

	if out := game.Outcome(); out != nchess.NoOutcome {
		t := Terminal{Finished: true}
		switch out {
		case nchess.WhiteWon:
			t.Winner = domain.White
		case nchess.BlackWon:
			t.Winner = domain.Black
		}
		switch game.Method() {
		case nchess.Checkmate:
			t.Method = MethodCheckmate
		case nchess.Stalemate:
			t.Method = MethodStalemate
		case nchess.InsufficientMaterial:
			t.Method = MethodInsufficientMaterial
		case nchess.FiftyMoveRule, nchess.SeventyFiveMoveRule:
			t.Method = MethodFiftyMoveRule
		case nchess.ThreefoldRepetition, nchess.FivefoldRepetition:
			t.Method = MethodThreefoldRepetition
		}
		return t, nil
	}

	eligible := map[nchess.Method]bool{}
	for _, m := range game.EligibleDraws() {
		eligible[m] = true
	}
	if eligible[nchess.FiftyMoveRule] {
		return Terminal{Finished: true, Method: MethodFiftyMoveRule}, nil
	}
	if eligible[nchess.ThreefoldRepetition] {
		return Terminal{Finished: true, Method: MethodThreefoldRepetition}, nil
	}
	return Terminal{}, nil
}

// Score is the material balance, white minus black.
func Score(fen string) (int, error) {
	game, err := gameFromFEN(fen)
	if err != nil {
		return 0, err
	}
	board := game.Position().Board()
	total := 0
	for file := nchess.FileA; file <= nchess.FileH; file++ {
		for rank := nchess.Rank1; rank <= nchess.Rank8; rank++ {
			piece := board.Piece(nchess.NewSquare(file, rank))
			if piece == nchess.NoPiece {
				continue
			}
			v := pieceValues[piece.Type()]
			if piece.Color() == nchess.White {
				total += v
			} else {
				total -= v
			}
		}
	}
	return total, nil
}

func gameFromFEN(fen string) (*nchess.Game, error) {
	opt, err := nchess.FEN(fen)
	if err != nil {
		return nil, ErrBadFEN
	}
	return nchess.NewGame(opt), nil
}

func parseSquare(s string) (nchess.Square, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != 2 || s[0] < 'a' || s[0] > 'h' || s[1] < '1' || s[1] > '8' {
		return 0, false
	}
	return nchess.NewSquare(nchess.File(s[0]-'a'), nchess.Rank(s[1]-'1')), true
}

func lastRank(c nchess.Color, sq nchess.Square) bool {
	if c == nchess.White {
		return sq.Rank() == nchess.Rank8
	}
	return sq.Rank() == nchess.Rank1
}

func pieceName(pt nchess.PieceType) string {
	switch pt {
	case nchess.King:
		return "king"
	case nchess.Queen:
		return "queen"
	case nchess.Rook:
		return "rook"
	case nchess.Bishop:
		return "bishop"
	case nchess.Knight:
		return "knight"
	case nchess.Pawn:
		return "pawn"
	}
	return ""
}
