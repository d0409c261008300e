package domain

// LeaderboardEntry is one row of the derived leaderboard projection.
// Rank is recomputed from Score on every read.
type LeaderboardEntry struct {
	Username string `json:"username"`
	Guild    string `json:"guild,omitempty"`
	Score    int    `json:"score"`
	Rank     string `json:"rank"`
}
