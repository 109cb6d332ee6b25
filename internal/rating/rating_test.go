package rating

import (
	"math"
	"testing"
)

func TestExpectedSymmetry(t *testing.T) {
	if got := Expected(1200, 1200); math.Abs(got-0.5) > 1e-9 {
		t.Fatalf("equal ratings expected 0.5, got %v", got)
	}
	ea := Expected(1400, 1200)
	eb := Expected(1200, 1400)
	if math.Abs(ea+eb-1.0) > 1e-9 {
		t.Fatalf("expected scores should sum to 1, got %v + %v", ea, eb)
	}
	if ea <= 0.5 {
		t.Fatalf("higher-rated player should be favored, got %v", ea)
	}
}

func TestGradualKDecays(t *testing.T) {
	if got := GradualK(0); math.Abs(got-40.0) > 1e-9 {
		t.Fatalf("new account K = %v, want 40", got)
	}
	prev := GradualK(0)
	for _, games := range []int{5, 20, 100, 500} {
		k := GradualK(games)
		if k >= prev {
			t.Fatalf("K should decrease with games: K(%d)=%v >= %v", games, k, prev)
		}
		prev = k
	}
	if k := GradualK(10000); k < 10.0 || k > 10.01 {
		t.Fatalf("K should floor near 10, got %v", k)
	}
}

func TestUpdateDirection(t *testing.T) {
	tests := []struct {
		name   string
		ra, rb int
		games  int
		score  float64
		wantUp bool
	}{
		{"win gains", 1200, 1200, 10, ScoreWin, true},
		{"loss drops", 1200, 1200, 10, ScoreLoss, false},
		{"upset win gains big", 1000, 1600, 0, ScoreWin, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Update(tt.ra, tt.rb, tt.games, tt.score)
			if tt.wantUp && got <= tt.ra {
				t.Fatalf("Update(%d,%d,%d,%v) = %d, want > %d", tt.ra, tt.rb, tt.games, tt.score, got, tt.ra)
			}
			if !tt.wantUp && got >= tt.ra {
				t.Fatalf("Update(%d,%d,%d,%v) = %d, want < %d", tt.ra, tt.rb, tt.games, tt.score, got, tt.ra)
			}
		})
	}
}

func TestUpdateZeroSumAtEqualConditions(t *testing.T) {
	// Same rating and experience on both sides means the winner gains
	// exactly what the loser sheds.
	const r, games = 1200, 25
	winner := Update(r, r, games, ScoreWin)
	loser := Update(r, r, games, ScoreLoss)
	if (winner - r) != (r - loser) {
		t.Fatalf("not zero sum: winner +%d, loser -%d", winner-r, r-loser)
	}
}

func TestHighRatingDampened(t *testing.T) {
	// A 2600 player wins less than a 1000 player does in the same spot.
	highGain := Update(2600, 2600, 0, ScoreWin) - 2600
	lowGain := Update(1000, 1000, 0, ScoreWin) - 1000
	if highGain >= lowGain {
		t.Fatalf("high-rated gain %d should be below low-rated gain %d", highGain, lowGain)
	}
	if highGain != lowGain/2 {
		t.Fatalf("rating factor floors at 0.5: got %d, want %d", highGain, lowGain/2)
	}
}

func TestTierPersistence(t *testing.T) {
	if PersistsRating("easy") {
		t.Fatal("easy tier must not persist rating")
	}
	if !PersistsRating("normal") || !PersistsRating("hard") {
		t.Fatal("normal and hard tiers must persist rating")
	}
}
