package engine

import (
	"testing"

	"github.com/capricechess/caprice/internal/domain"
)

func TestParseInfoScoreCP(t *testing.T) {
	var s Score
	parseInfoScore("info depth 12 seldepth 18 multipv 1 score cp 34 nodes 5120 pv e2e4 e7e5", &s)
	if s.CP != 34 || s.Mate != 0 {
		t.Fatalf("got %+v, want cp 34", s)
	}
}

func TestParseInfoScoreMate(t *testing.T) {
	var s Score
	parseInfoScore("info depth 20 score mate 3 pv d1h5", &s)
	if s.Mate != 3 || s.CP != mateValue {
		t.Fatalf("got %+v, want mate 3", s)
	}
	parseInfoScore("info depth 20 score mate -2 pv a2a3", &s)
	if s.Mate != -2 || s.CP != -mateValue {
		t.Fatalf("got %+v, want mate -2", s)
	}
}

func TestParseInfoScoreIgnoresNoise(t *testing.T) {
	s := Score{CP: 50}
	parseInfoScore("info string NNUE evaluation enabled", &s)
	if s.CP != 50 {
		t.Fatalf("noise line must not change score, got %+v", s)
	}
}

func TestTierSettingsCoverAllTiers(t *testing.T) {
	for _, tier := range []domain.EngineTier{domain.TierEasy, domain.TierNormal, domain.TierHard} {
		if _, ok := tiers[tier]; !ok {
			t.Fatalf("missing settings for tier %q", tier)
		}
	}
}
