// Package matchmaking pairs searching players by rating and win ratio,
// relaxing the rating tolerance the longer a player waits.
package matchmaking

import (
	"math"
	"time"

	"github.com/capricechess/caprice/internal/domain"
)

const (
	// MaxWait is how long a search stays in the queue before timing out.
	MaxWait = 60 * time.Second
	// SweepInterval is how often the matcher re-checks the queue.
	SweepInterval = 2 * time.Second

	eloScale   = 200.0
	ratioScale = 0.3
)

// PairScore ranks a candidate pairing; lower is better. Waiting reduces
// the score so long-waiting players are paired first.
func PairScore(a, b domain.SearchEntry, now time.Time) float64 {
	eloDiff := math.Abs(float64(a.Elo - b.Elo))
	ratioDiff := math.Abs(a.WinRatio - b.WinRatio)
	minWait := math.Min(now.Sub(a.EnqueuedAt).Seconds(), now.Sub(b.EnqueuedAt).Seconds())
	return math.Pow(eloDiff/eloScale, 2) + math.Pow(ratioDiff/ratioScale, 2) - minWait/10.0
}

// Acceptable reports whether two entries may be paired. The rating window
// starts at 200 and widens by 50 per 10 seconds of the longer wait; the
// win-ratio gap is fixed at 0.3.
func Acceptable(a, b domain.SearchEntry, now time.Time) bool {
	eloDiff := math.Abs(float64(a.Elo - b.Elo))
	ratioDiff := math.Abs(a.WinRatio - b.WinRatio)
	wait := math.Max(now.Sub(a.EnqueuedAt).Seconds(), now.Sub(b.EnqueuedAt).Seconds())
	maxEloDiff := 200.0 + (wait/10.0)*50.0
	return eloDiff <= maxEloDiff && ratioDiff <= ratioScale
}
