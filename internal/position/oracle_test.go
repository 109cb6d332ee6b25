package position

import (
	"errors"
	"strings"
	"testing"

	"github.com/capricechess/caprice/internal/domain"
)

func TestApplyOpeningMove(t *testing.T) {
	facts, err := Apply(domain.StartFEN, "e2", "e4", "")
	if err != nil {
		t.Fatalf("apply e2e4: %v", err)
	}
	if facts.Piece != "pawn" {
		t.Fatalf("piece = %q, want pawn", facts.Piece)
	}
	if facts.Captured != "" {
		t.Fatalf("unexpected capture %q", facts.Captured)
	}
	if facts.UCI != "e2e4" {
		t.Fatalf("uci = %q", facts.UCI)
	}
	if !strings.Contains(facts.FENAfter, " b ") {
		t.Fatalf("turn should pass to black, fen = %q", facts.FENAfter)
	}
}

func TestApplyIllegalMove(t *testing.T) {
	if _, err := Apply(domain.StartFEN, "e2", "e5", ""); !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("e2e5 should be illegal, got %v", err)
	}
	if _, err := Apply(domain.StartFEN, "e7", "e5", ""); !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("black move on white turn should be illegal, got %v", err)
	}
	if _, err := Apply(domain.StartFEN, "z9", "e4", ""); !errors.Is(err, ErrBadSquare) {
		t.Fatalf("bad square should fail, got %v", err)
	}
}

func TestApplyReportsCapture(t *testing.T) {
	// Scholar's-mate shape: white queen takes the f7 pawn.
	fen := "r1bqkbnr/pppp1ppp/2n5/4p3/2B1P3/5Q2/PPPP1PPP/RNB1K1NR w KQkq - 4 4"
	facts, err := Apply(fen, "f3", "f7", "")
	if err != nil {
		t.Fatalf("qxf7: %v", err)
	}
	if facts.Piece != "queen" || facts.Captured != "pawn" {
		t.Fatalf("got piece=%q captured=%q", facts.Piece, facts.Captured)
	}
}

func TestApplyPromotion(t *testing.T) {
	fen := "8/P7/8/8/8/4k3/8/4K3 w - - 0 1"
	facts, err := Apply(fen, "a7", "a8", "q")
	if err != nil {
		t.Fatalf("promote: %v", err)
	}
	if facts.UCI != "a7a8q" {
		t.Fatalf("uci = %q, want a7a8q", facts.UCI)
	}
	if !strings.Contains(strings.Fields(facts.FENAfter)[0], "Q") {
		t.Fatalf("board lacks promoted queen: %q", facts.FENAfter)
	}
}

func TestApplyIgnoresPromotionOffLastRank(t *testing.T) {
	facts, err := Apply(domain.StartFEN, "e2", "e4", "q")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if facts.UCI != "e2e4" {
		t.Fatalf("promotion suffix should be dropped, uci = %q", facts.UCI)
	}
}

func TestStatusCheckmate(t *testing.T) {
	// Fool's mate final position, white mated.
	fen := "rnb1kbnr/pppp1ppp/8/4p3/6Pq/5P2/PPPPP2P/RNBQKBNR w KQkq - 1 3"
	term, err := Status(fen)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !term.Finished || term.Method != MethodCheckmate {
		t.Fatalf("want checkmate, got %+v", term)
	}
	if term.Winner != domain.Black {
		t.Fatalf("winner = %q, want black", term.Winner)
	}
}

func TestStatusStalemate(t *testing.T) {
	fen := "7k/5Q2/6K1/8/8/8/8/8 b - - 0 1"
	term, err := Status(fen)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !term.Finished || term.Method != MethodStalemate {
		t.Fatalf("want stalemate, got %+v", term)
	}
	if term.Winner != "" {
		t.Fatalf("stalemate has no winner, got %q", term.Winner)
	}
}

func TestStatusInsufficientMaterial(t *testing.T) {
	term, err := Status("8/8/4k3/8/8/4K3/8/8 w - - 0 1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !term.Finished || term.Method != MethodInsufficientMaterial {
		t.Fatalf("want insufficient material, got %+v", term)
	}
}

func TestStatusFiftyMoveClaim(t *testing.T) {
	term, err := Status("8/4k3/8/8/3R4/8/4K3/8 w - - 100 80")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !term.Finished || term.Method != MethodFiftyMoveRule {
		t.Fatalf("want fifty-move claim, got %+v", term)
	}
}

func TestStatusOngoing(t *testing.T) {
	term, err := Status(domain.StartFEN)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if term.Finished {
		t.Fatalf("start position should be ongoing, got %+v", term)
	}
}

func TestScoreBalance(t *testing.T) {
	score, err := Score(domain.StartFEN)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if score != 0 {
		t.Fatalf("start position balance = %d, want 0", score)
	}
	up, err := Score("8/4k3/8/8/3Q4/8/4K3/8 w - - 0 1")
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if up != 9 {
		t.Fatalf("lone queen balance = %d, want 9", up)
	}
}
