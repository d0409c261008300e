package store

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/arisectf/arise-server/internal/domain"
)

//go:embed challenges.json
var seedData []byte

type seedChallenge struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Category    string `json:"category"`
	Points      int    `json:"points"`
	Description string `json:"description"`
	Flag        string `json:"flag"`
	Hint        string `json:"hint"`
	HintCost    int    `json:"hint_cost"`
}

// DefaultChallenges returns the embedded challenge set.
func DefaultChallenges() ([]domain.Challenge, error) {
	var raw []seedChallenge
	if err := json.Unmarshal(seedData, &raw); err != nil {
		return nil, fmt.Errorf("parse embedded challenges: %w", err)
	}

	challenges := make([]domain.Challenge, 0, len(raw))
	for _, sc := range raw {
		cat := domain.Category(sc.Category)
		if !cat.Valid() {
			return nil, fmt.Errorf("challenge %d: unknown category %q", sc.ID, sc.Category)
		}
		if sc.Points <= 0 {
			return nil, fmt.Errorf("challenge %d: points must be positive", sc.ID)
		}
		if sc.HintCost < 0 {
			return nil, fmt.Errorf("challenge %d: hint cost must be non-negative", sc.ID)
		}
		challenges = append(challenges, domain.Challenge{
			ID:          sc.ID,
			Title:       sc.Title,
			Category:    cat,
			Points:      sc.Points,
			Description: sc.Description,
			FlagSecret:  sc.Flag,
			HintText:    sc.Hint,
			HintCost:    sc.HintCost,
		})
	}
	return challenges, nil
}
