package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/arisectf/arise-server/internal/domain"
	"github.com/arisectf/arise-server/internal/errs"
)

func newTestStore(t *testing.T) Repository {
	t.Helper()

	repo, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() {
		if err := repo.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return repo
}

func createTestUser(t *testing.T, repo Repository, username string, score int) int64 {
	t.Helper()

	id, err := repo.CreateUser(context.Background(), &domain.User{
		Username:     username,
		Email:        username + "@example.com",
		Contact:      "1234567890",
		PasswordHash: "hash",
		Score:        score,
	})
	if err != nil {
		t.Fatalf("CreateUser(%s): %v", username, err)
	}
	return id
}

func seedTestChallenge(t *testing.T, repo Repository, ch domain.Challenge) {
	t.Helper()

	if err := repo.SeedChallenges(context.Background(), []domain.Challenge{ch}); err != nil {
		t.Fatalf("SeedChallenges: %v", err)
	}
}

func TestCreateUserDuplicate(t *testing.T) {
	repo := newTestStore(t)
	createTestUser(t, repo, "jinwoo", 0)

	_, err := repo.CreateUser(context.Background(), &domain.User{
		Username:     "jinwoo",
		Email:        "other@example.com",
		PasswordHash: "hash",
	})
	if !errors.Is(err, errs.ErrAlreadyExists) {
		t.Errorf("duplicate username: got %v, want ErrAlreadyExists", err)
	}
}

func TestGetUserByIdentifier(t *testing.T) {
	repo := newTestStore(t)
	id := createTestUser(t, repo, "jinwoo", 0)

	for _, identifier := range []string{"jinwoo", "jinwoo@example.com", "1234567890"} {
		user, err := repo.GetUserByIdentifier(context.Background(), identifier)
		if err != nil {
			t.Fatalf("GetUserByIdentifier(%s): %v", identifier, err)
		}
		if user == nil || user.ID != id {
			t.Errorf("GetUserByIdentifier(%s) = %+v, want user %d", identifier, user, id)
		}
	}

	user, err := repo.GetUserByIdentifier(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("GetUserByIdentifier(nobody): %v", err)
	}
	if user != nil {
		t.Errorf("expected nil for unknown identifier, got %+v", user)
	}
}

func TestUnlockHintDeductsOnce(t *testing.T) {
	repo := newTestStore(t)
	userID := createTestUser(t, repo, "jinwoo", 50)
	seedTestChallenge(t, repo, domain.Challenge{
		ID: 1, Title: "GCD", Category: domain.CategoryEasy, Points: 100,
		FlagSecret: "flag{84}", HintText: "use euclid", HintCost: 10,
	})

	first, err := repo.UnlockHint(context.Background(), userID, 1)
	if err != nil {
		t.Fatalf("UnlockHint: %v", err)
	}
	if first.Hint != "use euclid" || first.Deducted != 10 || first.NewScore != 40 {
		t.Errorf("first unlock = %+v, want hint deducted 10 from 50", first)
	}
	if first.AlreadyUnlocked {
		t.Error("first unlock reported AlreadyUnlocked")
	}

	second, err := repo.UnlockHint(context.Background(), userID, 1)
	if err != nil {
		t.Fatalf("UnlockHint (repeat): %v", err)
	}
	if !second.AlreadyUnlocked || second.Deducted != 0 || second.NewScore != 40 {
		t.Errorf("second unlock = %+v, want idempotent read with zero deduction", second)
	}
	if second.Hint != first.Hint {
		t.Errorf("second unlock hint %q differs from first %q", second.Hint, first.Hint)
	}
}

func TestUnlockHintCanGoNegative(t *testing.T) {
	repo := newTestStore(t)
	userID := createTestUser(t, repo, "jinwoo", 50)
	seedTestChallenge(t, repo, domain.Challenge{
		ID: 1, Title: "Expensive", Category: domain.CategoryExtreme, Points: 1000,
		FlagSecret: "flag{x}", HintText: "pricey", HintCost: 100,
	})

	receipt, err := repo.UnlockHint(context.Background(), userID, 1)
	if err != nil {
		t.Fatalf("UnlockHint: %v", err)
	}
	if receipt.NewScore != -50 {
		t.Errorf("NewScore = %d, want -50 (deduction is unclamped)", receipt.NewScore)
	}
}

func TestUnlockHintNotFound(t *testing.T) {
	repo := newTestStore(t)
	userID := createTestUser(t, repo, "jinwoo", 0)

	if _, err := repo.UnlockHint(context.Background(), userID, 99); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("unknown challenge: got %v, want ErrNotFound", err)
	}
	if _, err := repo.UnlockHint(context.Background(), 99, 1); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("unknown user: got %v, want ErrNotFound", err)
	}
}

func TestAwardSolveExactlyOnce(t *testing.T) {
	repo := newTestStore(t)
	userID := createTestUser(t, repo, "jinwoo", 0)
	seedTestChallenge(t, repo, domain.Challenge{
		ID: 1, Title: "GCD", Category: domain.CategoryEasy, Points: 100,
		FlagSecret: "flag{84}", HintCost: 10,
	})

	first, err := repo.AwardSolve(context.Background(), userID, 1)
	if err != nil {
		t.Fatalf("AwardSolve: %v", err)
	}
	if first.AlreadySolved || first.Awarded != 100 || first.NewScore != 100 {
		t.Errorf("first award = %+v, want 100 points awarded once", first)
	}
	if first.SolvedAt.IsZero() {
		t.Error("first award has zero SolvedAt")
	}

	second, err := repo.AwardSolve(context.Background(), userID, 1)
	if err != nil {
		t.Fatalf("AwardSolve (repeat): %v", err)
	}
	if !second.AlreadySolved || second.Awarded != 0 || second.NewScore != 100 {
		t.Errorf("second award = %+v, want already-solved with no score change", second)
	}

	rec, err := repo.GetSolveRecord(context.Background(), userID, 1)
	if err != nil {
		t.Fatalf("GetSolveRecord: %v", err)
	}
	if rec == nil || !rec.Solved || rec.SolvedAt == nil {
		t.Errorf("solve record = %+v, want solved with timestamp", rec)
	}
}

func TestAwardSolveConcurrent(t *testing.T) {
	repo := newTestStore(t)
	userID := createTestUser(t, repo, "jinwoo", 0)
	seedTestChallenge(t, repo, domain.Challenge{
		ID: 1, Title: "GCD", Category: domain.CategoryEasy, Points: 100,
		FlagSecret: "flag{84}", HintCost: 10,
	})

	const n = 10
	var wg sync.WaitGroup
	awarded := make([]int, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			receipt, err := repo.AwardSolve(context.Background(), userID, 1)
			if err != nil {
				t.Errorf("AwardSolve: %v", err)
				return
			}
			awarded[i] = receipt.Awarded
		}(i)
	}
	wg.Wait()

	total := 0
	for _, a := range awarded {
		total += a
	}
	if total != 100 {
		t.Errorf("total awarded across %d racing submissions = %d, want 100", n, total)
	}

	user, err := repo.GetUser(context.Background(), userID)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if user.Score != 100 {
		t.Errorf("final score = %d, want 100", user.Score)
	}
}

func TestUnlockHintConcurrent(t *testing.T) {
	repo := newTestStore(t)
	userID := createTestUser(t, repo, "jinwoo", 100)
	seedTestChallenge(t, repo, domain.Challenge{
		ID: 1, Title: "GCD", Category: domain.CategoryEasy, Points: 100,
		FlagSecret: "flag{84}", HintText: "use euclid", HintCost: 10,
	})

	const n = 10
	var wg sync.WaitGroup
	deducted := make([]int, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			receipt, err := repo.UnlockHint(context.Background(), userID, 1)
			if err != nil {
				t.Errorf("UnlockHint: %v", err)
				return
			}
			deducted[i] = receipt.Deducted
		}(i)
	}
	wg.Wait()

	total := 0
	for _, d := range deducted {
		total += d
	}
	if total != 10 {
		t.Errorf("total deducted across %d racing unlocks = %d, want 10", n, total)
	}
}

func TestListUsersByScoreOrdering(t *testing.T) {
	repo := newTestStore(t)
	createTestUser(t, repo, "cha", 50)
	createTestUser(t, repo, "jinwoo", 3000)
	createTestUser(t, repo, "baek", 1500)
	createTestUser(t, repo, "ahn", 1500)

	users, err := repo.ListUsersByScore(context.Background(), 0)
	if err != nil {
		t.Fatalf("ListUsersByScore: %v", err)
	}

	var got []string
	for _, u := range users {
		got = append(got, u.Username)
	}
	want := []string{"jinwoo", "ahn", "baek", "cha"}
	if len(got) != len(want) {
		t.Fatalf("got %d users, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d = %s, want %s (score desc, username asc)", i, got[i], want[i])
		}
	}

	limited, err := repo.ListUsersByScore(context.Background(), 2)
	if err != nil {
		t.Fatalf("ListUsersByScore(limit=2): %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("limit=2 returned %d users", len(limited))
	}
}

func TestSeedChallengesIdempotent(t *testing.T) {
	repo := newTestStore(t)

	challenges, err := DefaultChallenges()
	if err != nil {
		t.Fatalf("DefaultChallenges: %v", err)
	}
	if len(challenges) != 17 {
		t.Fatalf("embedded seed has %d challenges, want 17", len(challenges))
	}

	for i := 0; i < 2; i++ {
		if err := repo.SeedChallenges(context.Background(), challenges); err != nil {
			t.Fatalf("SeedChallenges (pass %d): %v", i+1, err)
		}
	}

	stored, err := repo.ListChallenges(context.Background())
	if err != nil {
		t.Fatalf("ListChallenges: %v", err)
	}
	if len(stored) != 17 {
		t.Errorf("stored %d challenges after double seed, want 17", len(stored))
	}

	gcd, err := repo.GetChallenge(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetChallenge: %v", err)
	}
	if gcd == nil || gcd.FlagSecret != "flag{84}" || gcd.Points != 100 {
		t.Errorf("challenge 1 = %+v, want GCD seed row", gcd)
	}
}
