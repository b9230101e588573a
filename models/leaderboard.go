package models

// LeaderboardEntry is one row of the community leaderboard, ordered by
// TotalXP descending. Only enrolled users appear.
type LeaderboardEntry struct {
	Rank    int    `json:"rank"`
	UserID  string `json:"user_id"`
	TotalXP int64  `json:"total_xp"`
	Level   int    `json:"level"`
}
