// Package rank derives hunter rank tiers from cumulative scores.
package rank

// Tier is a coarse letter grade derived purely from a numeric score.
type Tier string

const (
	TierS Tier = "S"
	TierA Tier = "A"
	TierB Tier = "B"
	TierC Tier = "C"
	TierD Tier = "D"
	TierE Tier = "E"
)

// threshold pairs a minimum score with its tier, ordered highest-first.
// First match wins.
type threshold struct {
	min  int
	tier Tier
}

var thresholds = []threshold{
	{3000, TierS},
	{1500, TierA},
	{800, TierB},
	{400, TierC},
	{100, TierD},
}

// ForScore maps a cumulative score to its rank tier. Scores below every
// threshold, including negative scores after hint deductions, map to E.
func ForScore(score int) Tier {
	for _, t := range thresholds {
		if score >= t.min {
			return t.tier
		}
	}
	return TierE
}
