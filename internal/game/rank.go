package game

import "sort"

// RankByScore orders results by descending score and assigns 1-based ranks.
// Equal scores share a rank.
func RankByScore(entries []PlayerResult) []PlayerResult {
	ranked := make([]PlayerResult, len(entries))
	copy(ranked, entries)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	for i := range ranked {
		if i > 0 && ranked[i].Score == ranked[i-1].Score {
			ranked[i].Rank = ranked[i-1].Rank
			continue
		}
		ranked[i].Rank = i + 1
	}
	return ranked
}
