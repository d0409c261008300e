package domain

import (
	"time"
)

// SolveRecord tracks per-(user, challenge) progress. Both flags are
// monotone: once true they never revert.
type SolveRecord struct {
	UserID       int64      `json:"user_id"`
	ChallengeID  int64      `json:"challenge_id"`
	Solved       bool       `json:"solved"`
	SolvedAt     *time.Time `json:"solved_at,omitempty"`
	HintUnlocked bool       `json:"hint_unlocked"`
}

// HintReceipt is the result of an atomic hint unlock.
// Deducted is zero when the hint was already unlocked.
type HintReceipt struct {
	Hint            string
	Deducted        int
	NewScore        int
	AlreadyUnlocked bool
}

// SolveReceipt is the result of an atomic solve award.
// Awarded is zero when the challenge was already solved.
type SolveReceipt struct {
	Awarded       int
	NewScore      int
	AlreadySolved bool
	SolvedAt      time.Time
}
