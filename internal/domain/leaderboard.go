package domain

import "sort"

// LeaderboardEntry is a snapshot-friendly view of a player.
type LeaderboardEntry struct {
	Rank  int    `json:"rank"`
	Name  string `json:"name"`
	Score int    `json:"score"`
	Color string `json:"color"`
}

// Leaderboard orders players by score descending. Equal scores keep their
// relative input order; the input slice is not modified.
func Leaderboard(players []Player) []LeaderboardEntry {
	sorted := make([]Player, len(players))
	copy(sorted, players)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})

	entries := make([]LeaderboardEntry, 0, len(sorted))
	for i, p := range sorted {
		entries = append(entries, LeaderboardEntry{
			Rank:  i + 1,
			Name:  p.Name,
			Score: p.Score,
			Color: p.Color,
		})
	}
	return entries
}
