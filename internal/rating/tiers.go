package rating

import "github.com/capricechess/caprice/internal/domain"

// TierElo maps engine opponents to the fixed rating used in Elo math.
var TierElo = map[domain.EngineTier]int{
	domain.TierEasy:   900,
	domain.TierNormal: 1400,
	domain.TierHard:   1800,
}

// PersistsRating reports whether a game against the given engine tier
// writes back to the human player's rating. Easy-tier games do not count.
func PersistsRating(tier domain.EngineTier) bool {
	return tier != domain.TierEasy
}
