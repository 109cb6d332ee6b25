// Package rating implements adaptive Elo updates. K shrinks exponentially
// with games played and high-rated accounts move more slowly.
package rating

import "math"

const (
	kMin  = 10.0
	kMax  = 40.0
	decay = 0.03

	DefaultElo = 1200
)

// Game outcome scores from the updated player's perspective.
const (
	ScoreWin  = 1.0
	ScoreDraw = 0.5
	ScoreLoss = 0.0
)

// Expected is the classic Elo expected score of a against b.
func Expected(ra, rb int) float64 {
	return 1.0 / (1.0 + math.Pow(10, float64(rb-ra)/400.0))
}

// GradualK interpolates from kMax down toward kMin as experience grows.
func GradualK(gamesPlayed int) float64 {
	return kMin + (kMax-kMin)*math.Exp(-decay*float64(gamesPlayed))
}

// ratingFactor dampens swings for accounts rated well above 1000; it never
// drops below 0.5.
func ratingFactor(r int) float64 {
	f := 1.0 - float64(r-1000)/2000.0
	return math.Max(0.5, f)
}

// Update returns the new rating for a player rated ra with gamesPlayed
// prior games, after scoring `score` against an opponent rated rb.
func Update(ra, rb, gamesPlayed int, score float64) int {
	k := GradualK(gamesPlayed) * ratingFactor(ra)
	delta := k * (score - Expected(ra, rb))
	return ra + int(math.Round(delta))
}
