// Package game implements the challenge and scoring engine: the hint
// ledger, the submission judge and the leaderboard projection.
package game

import (
	"context"
	"crypto/subtle"
	"fmt"

	"github.com/arisectf/arise-server/internal/domain"
	"github.com/arisectf/arise-server/internal/errs"
	"github.com/arisectf/arise-server/internal/rank"
	"github.com/arisectf/arise-server/internal/store"
)

// Service coordinates scoring state. The store owns atomicity per
// (user, challenge) pair; the service owns judging and rank derivation.
type Service struct {
	repo store.Repository
}

// NewService constructs a game Service.
func NewService(repo store.Repository) *Service {
	return &Service{repo: repo}
}

// ChallengeView is one challenge annotated with the caller's progress.
// Hint is populated only once the caller has unlocked it.
type ChallengeView struct {
	ID           int64           `json:"id"`
	Title        string          `json:"title"`
	Category     domain.Category `json:"category"`
	Points       int             `json:"points"`
	Description  string          `json:"description"`
	Solved       bool            `json:"solved"`
	HintUnlocked bool            `json:"hint_unlocked"`
	HintCost     int             `json:"hint_cost"`
	Hint         string          `json:"hint,omitempty"`
}

// ChallengeDetails is the lazy-fetch view of a single challenge.
type ChallengeDetails struct {
	Description string `json:"description"`
	Hint        string `json:"hint,omitempty"`
}

// HintResult is the outcome of a hint unlock, including the rank the
// caller should display after the deduction.
type HintResult struct {
	Hint            string
	Deducted        int
	NewScore        int
	NewRank         rank.Tier
	AlreadyUnlocked bool
}

// Outcome discriminates the three possible submission results.
type Outcome int

const (
	// OutcomeWrong means the flag did not match; nothing was mutated.
	OutcomeWrong Outcome = iota
	// OutcomeCorrect means the flag matched and points were awarded.
	OutcomeCorrect
	// OutcomeAlreadySolved means the challenge was solved before this call.
	OutcomeAlreadySolved
)

// SubmissionResult is the outcome of a flag submission. NewScore and
// NewRank are authoritative for OutcomeCorrect and OutcomeAlreadySolved.
type SubmissionResult struct {
	Outcome     Outcome
	Awarded     int
	NewScore    int
	NewRank     rank.Tier
	RankChanged bool
}

// ListChallenges returns every challenge annotated with the user's
// solved and hint state. Hints and descriptions are delivered inline;
// flag secrets never leave this layer.
func (s *Service) ListChallenges(ctx context.Context, userID int64) ([]ChallengeView, error) {
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if user == nil {
		return nil, errs.ErrNotFound
	}

	challenges, err := s.repo.ListChallenges(ctx)
	if err != nil {
		return nil, fmt.Errorf("list challenges: %w", err)
	}

	records, err := s.repo.ListSolveRecords(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list solve records: %w", err)
	}

	views := make([]ChallengeView, 0, len(challenges))
	for _, ch := range challenges {
		view := ChallengeView{
			ID:          ch.ID,
			Title:       ch.Title,
			Category:    ch.Category,
			Points:      ch.Points,
			Description: ch.Description,
			HintCost:    ch.HintCost,
		}
		if rec := records[ch.ID]; rec != nil {
			view.Solved = rec.Solved
			view.HintUnlocked = rec.HintUnlocked
			if rec.HintUnlocked {
				view.Hint = ch.HintText
			}
		}
		views = append(views, view)
	}
	return views, nil
}

// GetChallengeDetails returns the description of one challenge and, if
// the user has unlocked it, the hint.
func (s *Service) GetChallengeDetails(ctx context.Context, userID, challengeID int64) (*ChallengeDetails, error) {
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if user == nil {
		return nil, errs.ErrNotFound
	}

	ch, err := s.repo.GetChallenge(ctx, challengeID)
	if err != nil {
		return nil, fmt.Errorf("load challenge: %w", err)
	}
	if ch == nil {
		return nil, errs.ErrNotFound
	}

	details := &ChallengeDetails{Description: ch.Description}

	rec, err := s.repo.GetSolveRecord(ctx, userID, challengeID)
	if err != nil {
		return nil, fmt.Errorf("load solve record: %w", err)
	}
	if rec != nil && rec.HintUnlocked {
		details.Hint = ch.HintText
	}
	return details, nil
}

// UnlockHint purchases the hint for (user, challenge). The first call
// deducts the hint cost, even if that drives the score negative; every
// later call is an idempotent read with no further deduction.
func (s *Service) UnlockHint(ctx context.Context, userID, challengeID int64) (*HintResult, error) {
	receipt, err := s.repo.UnlockHint(ctx, userID, challengeID)
	if err != nil {
		return nil, err
	}

	return &HintResult{
		Hint:            receipt.Hint,
		Deducted:        receipt.Deducted,
		NewScore:        receipt.NewScore,
		NewRank:         rank.ForScore(receipt.NewScore),
		AlreadyUnlocked: receipt.AlreadyUnlocked,
	}, nil
}

// SubmitFlag judges a flag submission. The solved state machine has one
// transition out of UNSOLVED: a correct submission. Wrong submissions
// loop freely and never mutate anything.
func (s *Service) SubmitFlag(ctx context.Context, userID, challengeID int64, flag string) (*SubmissionResult, error) {
	if flag == "" {
		return nil, fmt.Errorf("%w: flag is required", errs.ErrValidation)
	}

	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if user == nil {
		return nil, errs.ErrNotFound
	}

	ch, err := s.repo.GetChallenge(ctx, challengeID)
	if err != nil {
		return nil, fmt.Errorf("load challenge: %w", err)
	}
	if ch == nil {
		return nil, errs.ErrNotFound
	}

	rec, err := s.repo.GetSolveRecord(ctx, userID, challengeID)
	if err != nil {
		return nil, fmt.Errorf("load solve record: %w", err)
	}
	if rec != nil && rec.Solved {
		return &SubmissionResult{
			Outcome:  OutcomeAlreadySolved,
			NewScore: user.Score,
			NewRank:  rank.ForScore(user.Score),
		}, nil
	}

	// Exact, case-sensitive comparison in constant time.
	if subtle.ConstantTimeCompare([]byte(flag), []byte(ch.FlagSecret)) != 1 {
		return &SubmissionResult{
			Outcome:  OutcomeWrong,
			NewScore: user.Score,
			NewRank:  rank.ForScore(user.Score),
		}, nil
	}

	// The award re-checks solved state atomically, so a racing duplicate
	// lands on the already-solved branch instead of double-awarding.
	receipt, err := s.repo.AwardSolve(ctx, userID, challengeID)
	if err != nil {
		return nil, err
	}
	if receipt.AlreadySolved {
		return &SubmissionResult{
			Outcome:  OutcomeAlreadySolved,
			NewScore: receipt.NewScore,
			NewRank:  rank.ForScore(receipt.NewScore),
		}, nil
	}

	oldRank := rank.ForScore(receipt.NewScore - receipt.Awarded)
	newRank := rank.ForScore(receipt.NewScore)
	return &SubmissionResult{
		Outcome:     OutcomeCorrect,
		Awarded:     receipt.Awarded,
		NewScore:    receipt.NewScore,
		NewRank:     newRank,
		RankChanged: oldRank != newRank,
	}, nil
}

// Leaderboard projects all users ordered by score descending with a
// username-ascending tie-break, each annotated with the derived rank.
// limit <= 0 returns every user.
func (s *Service) Leaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	users, err := s.repo.ListUsersByScore(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list users by score: %w", err)
	}

	entries := make([]domain.LeaderboardEntry, 0, len(users))
	for _, u := range users {
		entries = append(entries, domain.LeaderboardEntry{
			Username: u.Username,
			Guild:    u.Guild,
			Score:    u.Score,
			Rank:     string(rank.ForScore(u.Score)),
		})
	}
	return entries, nil
}
